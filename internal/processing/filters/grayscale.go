package filters

import (
	"fmt"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ChannelOrder says how the colour samples of a 3- or 4-channel buffer are laid out
// as far as the luminance weights are concerned.
type ChannelOrder int

const (
	// RGBA weights channel 0 as red. Used by segmentation.
	RGBA ChannelOrder = iota
	// BGRA weights channel 0 as blue. Blur scoring converts its RGBA input this way.
	BGRA
)

func (o ChannelOrder) String() string {
	if o == BGRA {
		return "bgra"
	}
	return "rgba"
}

// GrayscaleConverter reduces a 3- or 4-channel Mat to single-channel luminance
type GrayscaleConverter struct {
	Order ChannelOrder
}

func NewGrayscaleConverter(order ChannelOrder) *GrayscaleConverter {
	return &GrayscaleConverter{Order: order}
}

func (g *GrayscaleConverter) Name() string {
	return "grayscale_" + g.Order.String()
}

// Apply returns a copy for single-channel input, so grayscale is idempotent
func (g *GrayscaleConverter) Apply(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateChannels(input, g.Name(), 1, 3, 4); err != nil {
		return nil, errs.New(errs.InvalidFormat, "filters.Grayscale", err)
	}

	if input.Channels() == 1 {
		return scope.Clone(input, "gray")
	}

	code := g.conversionCode(input.Channels())

	dst, err := scope.Empty("gray")
	if err != nil {
		return nil, errs.New(errs.InternalError, "filters.Grayscale", err)
	}
	if err := gocv.CvtColor(input.GetMat(), dst.Ptr(), code); err != nil {
		return nil, errs.New(errs.InternalError, "filters.Grayscale", err)
	}
	if dst.Empty() {
		return nil, errs.Internal("filters.Grayscale", "conversion produced an empty Mat")
	}

	return dst, nil
}

func (g *GrayscaleConverter) conversionCode(channels int) gocv.ColorConversionCode {
	switch {
	case channels == 4 && g.Order == BGRA:
		return gocv.ColorBGRAToGray
	case channels == 4:
		return gocv.ColorRGBAToGray
	case g.Order == BGRA:
		return gocv.ColorBGRToGray
	default:
		return gocv.ColorRGBToGray
	}
}

// ToGrayscale is the buffer-level form of GrayscaleConverter
func ToGrayscale(buf *imagebuf.Buffer, order ChannelOrder) (*imagebuf.Buffer, error) {
	return applyToBuffer(NewGrayscaleConverter(order), buf)
}

type step interface {
	Name() string
	Apply(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error)
}

func applyToBuffer(s step, buf *imagebuf.Buffer) (*imagebuf.Buffer, error) {
	scope := memory.NewScope(s.Name(), nil)
	defer scope.Close()

	in, err := buf.ToMat(scope, "input")
	if err != nil {
		return nil, err
	}

	out, err := s.Apply(scope, in)
	if err != nil {
		return nil, err
	}

	result, err := imagebuf.FromMat(out)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", s.Name(), err)
	}
	return result, nil
}
