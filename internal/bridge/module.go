// Package bridge exposes segmentImage and checkForBlurryImage to a host runtime.
// Every call decodes its own image and owns all of its buffers.
package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"opencv-bridge/internal/blur"
	"opencv-bridge/internal/codec"
	"opencv-bridge/internal/config"
	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/logger"
	"opencv-bridge/internal/segmentation"
	"opencv-bridge/internal/timing"
)

// ModuleName is the name the host registers the module under
const ModuleName = "RNOpenCvLibrary"

type Module struct {
	cfg       config.Config
	logger    logger.Logger
	newColors func() segmentation.ColorGenerator
	stats     callStats
	timings   *timing.Tracker
}

type callStats struct {
	segmentCalls atomic.Int64
	blurCalls    atomic.Int64
	failures     atomic.Int64
}

// Stats is a snapshot of the call counters
type Stats struct {
	SegmentCalls int64
	BlurCalls    int64
	Failures     int64
}

type Option func(*Module)

func WithLogger(l logger.Logger) Option {
	return func(m *Module) {
		m.logger = logger.OrNoOp(l)
	}
}

// WithColorSource replaces the per-call label colour generator
func WithColorSource(f func() segmentation.ColorGenerator) Option {
	return func(m *Module) {
		m.newColors = f
	}
}

func New(cfg config.Config, opts ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := &Module{
		cfg:     cfg,
		logger:  logger.NoOp{},
		timings: timing.NewTracker(),
	}
	seed := uint64(cfg.Segmentation.Seed)
	m.newColors = func() segmentation.ColorGenerator {
		return segmentation.NewRandomColors(seed)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Module) Name() string {
	return ModuleName
}

// Timings returns the duration summary of successful calls for method
func (m *Module) Timings(method string) timing.Summary {
	return m.timings.Get(method)
}

func (m *Module) GetStats() Stats {
	return Stats{
		SegmentCalls: m.stats.segmentCalls.Load(),
		BlurCalls:    m.stats.blurCalls.Load(),
		Failures:     m.stats.failures.Load(),
	}
}

// SegmentResponse carries the binary mask and the label image as integer arrays,
// mask first
type SegmentResponse struct {
	Source   []int `json:"source"`
	Labels   []int `json:"labels"`
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Contours int   `json:"contours"`
}

func (m *Module) SegmentImage(ctx context.Context, encoded string) (*SegmentResponse, error) {
	img, err := m.decode(ctx, "segmentImage", encoded)
	if err != nil {
		return nil, err
	}

	res, err := m.Segment(ctx, img)
	if err != nil {
		return nil, err
	}

	return &SegmentResponse{
		Source:   toInts(res.Source),
		Labels:   toInts(res.Labels),
		Width:    res.Width,
		Height:   res.Height,
		Contours: len(res.Contours),
	}, nil
}

// Segment runs the segmentation pipeline on an already decoded image
func (m *Module) Segment(ctx context.Context, img *imagebuf.Buffer) (*segmentation.Result, error) {
	m.stats.segmentCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, m.fail("segmentImage", err)
	}

	stop := m.timings.Start(MethodSegmentImage)
	opts := segmentation.DefaultOptions()
	opts.Threshold = m.cfg.Segmentation.Threshold
	opts.MaxValue = m.cfg.Segmentation.MaxValue
	opts.MaxLevel = m.cfg.Segmentation.MaxLevel
	opts.TransparentLabels = m.cfg.Segmentation.TransparentLabels
	opts.Colors = m.newColors()
	opts.Logger = m.logger
	pipeline := segmentation.NewPipeline(opts)

	res, err := pipeline.Segment(img)
	if err != nil {
		return nil, m.fail("segmentImage", err)
	}

	m.logger.Info("Bridge", "segmentImage completed", map[string]interface{}{
		"width":    res.Width,
		"height":   res.Height,
		"contours": len(res.Contours),
		"millis":   stop().Milliseconds(),
	})
	return res, nil
}

func (m *Module) CheckForBlurryImage(ctx context.Context, encoded string) (bool, error) {
	img, err := m.decode(ctx, "checkForBlurryImage", encoded)
	if err != nil {
		return false, err
	}

	res, err := m.ScoreBlur(ctx, img)
	if err != nil {
		return false, err
	}
	return res.IsBlurry, nil
}

// ScoreBlur runs the blur pipeline on an already decoded image
func (m *Module) ScoreBlur(ctx context.Context, img *imagebuf.Buffer) (*blur.Result, error) {
	m.stats.blurCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, m.fail("checkForBlurryImage", err)
	}

	stop := m.timings.Start(MethodCheckForBlurryImage)
	opts := blur.DefaultOptions()
	opts.Metric = blur.Metric(m.cfg.Blur.Metric)
	opts.Threshold = m.cfg.Blur.Threshold
	opts.VarianceThreshold = m.cfg.Blur.VarianceThreshold
	opts.Logger = m.logger
	pipeline, err := blur.NewPipeline(opts)
	if err != nil {
		return nil, m.fail("checkForBlurryImage", err)
	}

	res, err := pipeline.Score(img)
	if err != nil {
		return nil, m.fail("checkForBlurryImage", err)
	}

	m.logger.Info("Bridge", "checkForBlurryImage completed", map[string]interface{}{
		"metric":   string(res.Metric),
		"score":    res.Score,
		"variance": res.Variance,
		"blurry":   res.IsBlurry,
		"millis":   stop().Milliseconds(),
	})
	return res, nil
}

func (m *Module) decode(ctx context.Context, method, encoded string) (*imagebuf.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, m.fail(method, err)
	}

	img, err := codec.DecodeBase64(encoded)
	if err != nil {
		return nil, m.fail(method, err)
	}

	m.logger.Debug("Bridge", "image decoded", map[string]interface{}{
		"method":   method,
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
	})
	return img, nil
}

func (m *Module) fail(method string, err error) error {
	m.stats.failures.Add(1)
	m.logger.Error("Bridge", err, map[string]interface{}{
		"method": method,
		"kind":   errs.KindOf(err).String(),
	})
	return fmt.Errorf("%s: %w", method, err)
}

func toInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// Shutdown logs the call counters; the module holds no other resources
func (m *Module) Shutdown() {
	stats := m.GetStats()
	fields := map[string]interface{}{
		"segment_calls": stats.SegmentCalls,
		"blur_calls":    stats.BlurCalls,
		"failures":      stats.Failures,
	}
	for _, op := range m.timings.Operations() {
		fields[op+"_avg_ms"] = m.timings.Get(op).Average().Milliseconds()
	}
	m.logger.Info("Bridge", "module shutdown", fields)
}
