// Package blur scores image sharpness from the Laplacian response.
package blur

import (
	"fmt"
	"time"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/logger"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/processing/chain"
	"opencv-bridge/internal/processing/filters"
)

type Metric string

const (
	// MetricPacked compares the maximum packed ARGB response word against Threshold
	MetricPacked Metric = "packed"
	// MetricVariance compares the variance of the unclamped Laplacian against VarianceThreshold
	MetricVariance Metric = "variance"
)

const (
	DefaultThreshold         int32   = -8118750
	DefaultVarianceThreshold float64 = 100
)

type Options struct {
	Metric            Metric
	Threshold         int32
	VarianceThreshold float64
	Logger            logger.Logger
}

func DefaultOptions() Options {
	return Options{
		Metric:            MetricPacked,
		Threshold:         DefaultThreshold,
		VarianceThreshold: DefaultVarianceThreshold,
	}
}

type Result struct {
	IsBlurry bool
	// Score is the maximum packed response word; Threshold is what it was compared to
	Score       int32
	Threshold   int32
	MaxResponse uint8
	Variance    float64
	Metric      Metric
}

type Pipeline struct {
	opts   Options
	chain  *chain.ProcessingChain
	logger logger.Logger
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Metric == "" {
		opts.Metric = MetricPacked
	}
	switch opts.Metric {
	case MetricPacked, MetricVariance:
	default:
		return nil, fmt.Errorf("unknown blur metric %q", opts.Metric)
	}
	log := logger.OrNoOp(opts.Logger)

	return &Pipeline{
		opts: opts,
		chain: chain.NewProcessingChain(log,
			filters.NewGrayscaleConverter(filters.BGRA),
		),
		logger: log,
	}, nil
}

// Score converts img to grayscale, takes its Laplacian and reports the verdict of
// the configured metric. Both the packed score and the variance are always filled in.
func (p *Pipeline) Score(img *imagebuf.Buffer) (result *Result, err error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	scope := memory.NewScope("blur", p.logger)
	defer scope.Close()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errs.Internal("blur.Score", "recovered: %v", r)
		}
	}()

	input, err := img.ToMat(scope, "input")
	if err != nil {
		return nil, err
	}

	gray, err := p.chain.Execute(scope, input)
	if err != nil {
		return nil, fmt.Errorf("grayscale: %w", err)
	}

	response, err := filters.NewLaplacianFilter().Apply(scope, gray)
	if err != nil {
		return nil, err
	}
	samples, err := response.Bytes()
	if err != nil {
		return nil, errs.New(errs.InternalError, "blur.Score", err)
	}
	if len(samples) != img.Width*img.Height {
		return nil, errs.Internal("blur.Score", "Laplacian response has %d samples for %dx%d", len(samples), img.Width, img.Height)
	}

	variance, err := filters.LaplacianVarianceMat(scope, gray)
	if err != nil {
		return nil, err
	}

	score, peak := MaxPacked(samples)
	result = &Result{
		Score:       score,
		Threshold:   p.opts.Threshold,
		MaxResponse: peak,
		Variance:    variance,
		Metric:      p.opts.Metric,
	}

	switch p.opts.Metric {
	case MetricVariance:
		result.IsBlurry = variance < p.opts.VarianceThreshold
	default:
		result.IsBlurry = score <= p.opts.Threshold
	}

	p.logger.Debug("BlurScore", "blur scored", map[string]interface{}{
		"metric":       string(p.opts.Metric),
		"score":        score,
		"max_response": peak,
		"variance":     variance,
		"blurry":       result.IsBlurry,
		"micros":       time.Since(start).Microseconds(),
	})

	return result, nil
}
