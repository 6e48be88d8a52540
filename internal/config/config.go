package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MetricPacked   = "packed"
	MetricVariance = "variance"
)

type Config struct {
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Blur         BlurConfig         `yaml:"blur"`
	Log          LogConfig          `yaml:"log"`
	Shutdown     ShutdownConfig     `yaml:"shutdown"`
	Workers      int                `yaml:"workers"`
}

type SegmentationConfig struct {
	Threshold float64 `yaml:"threshold"`
	MaxValue  float64 `yaml:"max_value"`
	// MaxLevel is the hierarchy depth passed to drawContours
	MaxLevel int   `yaml:"max_level"`
	Seed     int64 `yaml:"seed"`

	// TransparentLabels draws label colours with alpha 0, as older clients expect
	TransparentLabels bool `yaml:"transparent_labels"`
}

type BlurConfig struct {
	Metric string `yaml:"metric"`
	// Threshold is compared against the packed ARGB score
	Threshold         int32   `yaml:"threshold"`
	VarianceThreshold float64 `yaml:"variance_threshold"`
}

type ShutdownConfig struct {
	// StepTimeout bounds each component's shutdown, e.g. "10s"
	StepTimeout time.Duration `yaml:"step_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Segmentation: SegmentationConfig{
			Threshold: 40,
			MaxValue:  255,
			MaxLevel:  100,
		},
		Blur: BlurConfig{
			Metric:            MetricPacked,
			Threshold:         -8118750,
			VarianceThreshold: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Shutdown: ShutdownConfig{
			StepTimeout: 10 * time.Second,
		},
		Workers: runtime.NumCPU(),
	}
}

// Load starts from Default, overlays the YAML file at path (if non-empty) and then
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	} else if v, ok := lookup("DEBUG"); ok && v == "1" {
		c.Log.Level = "debug"
	}
	if v, ok := lookup("OPENCV_BRIDGE_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("OPENCV_BRIDGE_BLUR_METRIC"); ok && v != "" {
		c.Blur.Metric = strings.ToLower(v)
	}
	if v, ok := lookup("OPENCV_BRIDGE_BLUR_THRESHOLD"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("OPENCV_BRIDGE_BLUR_THRESHOLD: %w", err)
		}
		c.Blur.Threshold = int32(n)
	}
	if v, ok := lookup("OPENCV_BRIDGE_SEGMENTATION_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPENCV_BRIDGE_SEGMENTATION_THRESHOLD: %w", err)
		}
		c.Segmentation.Threshold = f
	}
	if v, ok := lookup("OPENCV_BRIDGE_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPENCV_BRIDGE_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

func (c Config) Validate() error {
	var problems []error

	if c.Segmentation.Threshold < 0 || c.Segmentation.Threshold > 255 {
		problems = append(problems, fmt.Errorf("segmentation.threshold %.1f outside [0, 255]", c.Segmentation.Threshold))
	}
	if c.Segmentation.MaxValue <= 0 || c.Segmentation.MaxValue > 255 {
		problems = append(problems, fmt.Errorf("segmentation.max_value %.1f outside (0, 255]", c.Segmentation.MaxValue))
	}
	if c.Segmentation.MaxLevel < 0 {
		problems = append(problems, fmt.Errorf("segmentation.max_level %d is negative", c.Segmentation.MaxLevel))
	}
	switch c.Blur.Metric {
	case MetricPacked, MetricVariance:
	default:
		problems = append(problems, fmt.Errorf("blur.metric %q is not %q or %q", c.Blur.Metric, MetricPacked, MetricVariance))
	}
	if c.Blur.VarianceThreshold < 0 {
		problems = append(problems, fmt.Errorf("blur.variance_threshold %.2f is negative", c.Blur.VarianceThreshold))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Errorf("log.format %q is not console or json", c.Log.Format))
	}
	if c.Shutdown.StepTimeout <= 0 {
		problems = append(problems, fmt.Errorf("shutdown.step_timeout must be positive, got %s", c.Shutdown.StepTimeout))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}

	return errors.Join(problems...)
}
