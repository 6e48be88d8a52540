package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"opencv-bridge/internal/blur"
	"opencv-bridge/internal/bridge"
	"opencv-bridge/internal/codec"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/segmentation"
	"opencv-bridge/internal/shutdown"

	"golang.org/x/sync/errgroup"
)

func runSegment(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	in := fs.String("in", "", "input image")
	out := fs.String("out", "", "output PNG for the label image")
	source := fs.String("source", "", "optional output PNG for the thresholded mask")
	seed := fs.Int64("seed", env.cfg.Segmentation.Seed, "label colour seed, 0 for random")
	palette := fs.Bool("palette", false, "use the fixed label palette instead of random colours")
	threshold := fs.Float64("threshold", env.cfg.Segmentation.Threshold, "binary threshold level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		fs.Usage()
		return errors.New("segment requires -in and -out")
	}

	cfg := env.cfg
	cfg.Segmentation.Seed = *seed
	cfg.Segmentation.Threshold = *threshold

	colors := func() segmentation.ColorGenerator {
		return segmentation.NewRandomColors(uint64(*seed))
	}
	if *palette {
		colors = func() segmentation.ColorGenerator {
			return segmentation.NewPaletteColors()
		}
	}

	module, err := bridge.New(cfg, bridge.WithLogger(env.logger), bridge.WithColorSource(colors))
	if err != nil {
		return err
	}
	env.shutdown.Register(module)

	img, err := decodeFile(*in)
	if err != nil {
		return err
	}

	res, err := module.Segment(ctx, img)
	if err != nil {
		return err
	}

	labels, err := res.LabelBuffer()
	if err != nil {
		return err
	}
	if err := writePNG(*out, labels); err != nil {
		return err
	}

	if *source != "" {
		mask, err := res.SourceBuffer()
		if err != nil {
			return err
		}
		if err := writePNG(*source, mask); err != nil {
			return err
		}
	}

	fmt.Fprintf(env.stdout, "%s\t%dx%d\t%d contours\n", *in, res.Width, res.Height, len(res.Contours))
	return nil
}

type blurOutcome struct {
	path   string
	result *blur.Result
	err    error
}

func runBlur(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("blur", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	metric := fs.String("metric", env.cfg.Blur.Metric, "packed or variance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("blur requires at least one file")
	}

	module := env.module
	if *metric != env.cfg.Blur.Metric {
		cfg := env.cfg
		cfg.Blur.Metric = *metric
		m, err := bridge.New(cfg, bridge.WithLogger(env.logger))
		if err != nil {
			return err
		}
		env.shutdown.Register(m)
		module = m
	}

	files := fs.Args()
	outcomes := make([]blurOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.cfg.Workers)
	for i, path := range files {
		g.Go(func() error {
			outcomes[i] = scoreFile(gctx, module, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed []error
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", o.path, o.err))
			fmt.Fprintf(env.stdout, "%s\terror\t%v\n", o.path, o.err)
			continue
		}
		if o.result.Metric == blur.MetricVariance {
			fmt.Fprintf(env.stdout, "%s\t%t\tvariance=%.2f\n", o.path, o.result.IsBlurry, o.result.Variance)
		} else {
			fmt.Fprintf(env.stdout, "%s\t%t\tscore=%d\n", o.path, o.result.IsBlurry, o.result.Score)
		}
	}
	return errors.Join(failed...)
}

func scoreFile(ctx context.Context, module *bridge.Module, path string) blurOutcome {
	img, err := decodeFile(path)
	if err != nil {
		return blurOutcome{path: path, err: err}
	}
	res, err := module.ScoreBlur(ctx, img)
	return blurOutcome{path: path, result: res, err: err}
}

func runServe(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env.logger.Info("Main", "serving requests on stdin", map[string]interface{}{
		"module": env.module.Name(),
	})

	// A blocked stdin read does not observe ctx. Closing stdin on shutdown
	// unblocks it; readers that cannot be closed leave the goroutine to die
	// with the process.
	if closer, ok := env.stdin.(io.Closer); ok {
		env.shutdown.Register(shutdown.Func(func() {
			_ = closer.Close()
		}))
	}

	done := make(chan error, 1)
	go func() {
		done <- env.module.Serve(ctx, env.stdin, env.stdout)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func decodeFile(path string) (*imagebuf.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	img, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func writePNG(path string, buf *imagebuf.Buffer) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := codec.EncodePNG(f, buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
