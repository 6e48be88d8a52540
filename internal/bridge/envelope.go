package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"opencv-bridge/internal/errs"
)

const (
	MethodSegmentImage        = "segmentImage"
	MethodCheckForBlurryImage = "checkForBlurryImage"
	MethodGetName             = "getName"
)

// maxRequestBytes bounds one newline-delimited request; base64 images are large
const maxRequestBytes = 64 << 20

type Request struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Image  string `json:"image,omitempty"`
}

// Response holds either Result or Error, never both
type Response struct {
	ID     string      `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Handle dispatches one request. Failures become a single error body; there are
// no partial results.
func (m *Module) Handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	var (
		result interface{}
		err    error
	)
	switch req.Method {
	case MethodSegmentImage:
		result, err = m.SegmentImage(ctx, req.Image)
	case MethodCheckForBlurryImage:
		result, err = m.CheckForBlurryImage(ctx, req.Image)
	case MethodGetName:
		result = m.Name()
	default:
		err = fmt.Errorf("unknown method %q", req.Method)
	}

	if err != nil {
		resp.Error = errorBody(err)
		return resp
	}
	resp.Result = result
	return resp
}

// Serve reads one JSON request per line from r and writes one JSON response per
// line to w, until r is exhausted or ctx is cancelled.
func (m *Module) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = Response{Error: &ErrorBody{Kind: "RequestError", Message: fmt.Sprintf("malformed request: %v", err)}}
		} else {
			resp = m.Handle(ctx, req)
		}

		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

func errorBody(err error) *ErrorBody {
	kind := errs.KindOf(err).String()
	var e *errs.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = "Cancelled"
		} else {
			kind = "RequestError"
		}
	}
	return &ErrorBody{Kind: kind, Message: err.Error()}
}
