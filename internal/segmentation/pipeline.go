// Package segmentation binarizes an image, traces region contours and renders
// them as a false-colour label image.
package segmentation

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/logger"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/processing/chain"
	"opencv-bridge/internal/processing/filters"

	"gocv.io/x/gocv"
)

const (
	DefaultThreshold = 40
	DefaultMaxValue  = 255
	// DefaultMaxLevel is the nesting depth handed to drawContours
	DefaultMaxLevel = 100

	labelChannels = 4
)

type Options struct {
	Threshold float64
	MaxValue  float64
	MaxLevel  int
	Colors    ColorGenerator
	Logger    logger.Logger

	// TransparentLabels forces label alpha to 0 while keeping the colour channels
	TransparentLabels bool
}

func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		MaxValue:  DefaultMaxValue,
		MaxLevel:  DefaultMaxLevel,
	}
}

// Result holds the binary mask first and the label image second, both row-major
type Result struct {
	Width    int
	Height   int
	Source   []byte
	Labels   []byte
	Contours []Contour
}

// SourceBuffer wraps Source as a single-channel buffer
func (r *Result) SourceBuffer() (*imagebuf.Buffer, error) {
	return imagebuf.FromBytes(r.Width, r.Height, 1, r.Source)
}

// LabelBuffer wraps Labels as a 4-channel RGBA buffer
func (r *Result) LabelBuffer() (*imagebuf.Buffer, error) {
	return imagebuf.FromBytes(r.Width, r.Height, labelChannels, r.Labels)
}

type Pipeline struct {
	opts   Options
	chain  *chain.ProcessingChain
	logger logger.Logger
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Colors == nil {
		opts.Colors = NewRandomColors(0)
	}
	log := logger.OrNoOp(opts.Logger)

	return &Pipeline{
		opts: opts,
		chain: chain.NewProcessingChain(log,
			filters.NewGrayscaleConverter(filters.RGBA),
			filters.NewBinaryThreshold(opts.Threshold, opts.MaxValue),
		),
		logger: log,
	}
}

// Segment runs grayscale, threshold, contour tracing and filled rendering over img.
// A blank image yields no contours and an all-zero label image.
func (p *Pipeline) Segment(img *imagebuf.Buffer) (result *Result, err error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	scope := memory.NewScope("segment", p.logger)
	defer scope.Close()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errs.Internal("segmentation.Segment", "recovered: %v", r)
		}
	}()

	input, err := img.ToMat(scope, "input")
	if err != nil {
		return nil, err
	}

	mask, err := p.chain.Execute(scope, input)
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}

	// findContours may rewrite its input on older OpenCV builds, so trace a copy
	traced, err := scope.Clone(mask, "traced")
	if err != nil {
		return nil, errs.New(errs.InternalError, "segmentation.Segment", err)
	}

	hierarchy, err := scope.Empty("hierarchy")
	if err != nil {
		return nil, errs.New(errs.InternalError, "segmentation.Segment", err)
	}

	vector, contours, err := extractContours(traced, hierarchy)
	if err != nil {
		return nil, err
	}
	defer vector.Close()

	labels, err := scope.NewMat(img.Height, img.Width, gocv.MatTypeCV8UC4, "labels")
	if err != nil {
		return nil, errs.New(errs.InternalError, "segmentation.Segment", err)
	}

	for i := range contours {
		c := p.opts.Colors.Next()
		if p.opts.TransparentLabels {
			c.A = 0
		}
		contours[i].Color = c
		gocv.DrawContoursWithParams(labels.Ptr(), vector, i, matColor(contours[i].Color), -1,
			gocv.Line8, hierarchy.GetMat(), p.opts.MaxLevel, image.Point{})
	}

	source, err := mask.Bytes()
	if err != nil {
		return nil, errs.New(errs.InternalError, "segmentation.Segment", err)
	}
	labelBytes, err := labels.Bytes()
	if err != nil {
		return nil, errs.New(errs.InternalError, "segmentation.Segment", err)
	}

	holes := 0
	for _, c := range contours {
		if c.IsHole {
			holes++
		}
	}
	p.logger.Debug("Segmentation", "segmentation completed", map[string]interface{}{
		"width":    img.Width,
		"height":   img.Height,
		"contours": len(contours),
		"holes":    holes,
		"micros":   time.Since(start).Microseconds(),
	})

	return &Result{
		Width:    img.Width,
		Height:   img.Height,
		Source:   source,
		Labels:   labelBytes,
		Contours: contours,
	}, nil
}

// matColor reorders c for gocv, which writes colours into channels as B, G, R, A.
// The label Mat is laid out RGBA.
func matColor(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.B, G: c.G, B: c.R, A: c.A}
}
