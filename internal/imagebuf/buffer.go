// Package imagebuf holds the 8-bit pixel grid shared by the segmentation and
// blur pipelines, and moves it in and out of OpenCV.
package imagebuf

import (
	"image"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/opencv/safe"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// Buffer is a row-major, channel-interleaved grid of 8-bit samples.
// len(Pix) == Width*Height*Channels for every valid buffer.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New allocates a zeroed buffer
func New(width, height, channels int) (*Buffer, error) {
	if err := checkShape("imagebuf.New", width, height, channels); err != nil {
		return nil, err
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}, nil
}

// FromBytes wraps pix without copying
func FromBytes(width, height, channels int, pix []byte) (*Buffer, error) {
	b := &Buffer{Width: width, Height: height, Channels: channels, Pix: pix}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// FromImage renders img into a 4-channel RGBA buffer, the layout an ARGB_8888
// bitmap has once copied into an OpenCV Mat.
func FromImage(img image.Image) (*Buffer, error) {
	if img == nil {
		return nil, errs.Format("imagebuf.FromImage", "image is nil")
	}
	bounds := img.Bounds()
	if err := checkShape("imagebuf.FromImage", bounds.Dx(), bounds.Dy(), 4); err != nil {
		return nil, err
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return &Buffer{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Channels: 4,
		Pix:      rgba.Pix[:4*bounds.Dx()*bounds.Dy()],
	}, nil
}

func (b *Buffer) Validate() error {
	if b == nil {
		return errs.Format("imagebuf.Validate", "buffer is nil")
	}
	if err := checkShape("imagebuf.Validate", b.Width, b.Height, b.Channels); err != nil {
		return err
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) != want {
		return errs.Format("imagebuf.Validate", "buffer holds %d bytes, %dx%dx%d needs %d",
			len(b.Pix), b.Width, b.Height, b.Channels, want)
	}
	return nil
}

// Pixel returns all channels of (x, y) as a sub-slice of Pix
func (b *Buffer) Pixel(x, y int) []byte {
	i := (y*b.Width + x) * b.Channels
	return b.Pix[i : i+b.Channels : i+b.Channels]
}

// MatType maps the channel count onto the matching 8-bit OpenCV type
func (b *Buffer) MatType() (gocv.MatType, error) {
	switch b.Channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	case 4:
		return gocv.MatTypeCV8UC4, nil
	default:
		return gocv.MatTypeCV8UC1, errs.Format("imagebuf.MatType", "unsupported channel count %d", b.Channels)
	}
}

// ToMat copies the buffer into a Mat owned by scope
func (b *Buffer) ToMat(scope *memory.Scope, tag string) (*safe.Mat, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	matType, err := b.MatType()
	if err != nil {
		return nil, err
	}

	mat, err := scope.FromBytes(b.Height, b.Width, matType, b.Pix, tag)
	if err != nil {
		return nil, errs.New(errs.InternalError, "imagebuf.ToMat", err)
	}
	return mat, nil
}

// FromMat copies an 8-bit Mat with 1, 3 or 4 channels into a new buffer
func FromMat(mat *safe.Mat) (*Buffer, error) {
	if err := safe.ValidateChannels(mat, "imagebuf.FromMat", 1, 3, 4); err != nil {
		return nil, errs.New(errs.InvalidFormat, "imagebuf.FromMat", err)
	}
	switch mat.Type() {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
	default:
		return nil, errs.Format("imagebuf.FromMat", "Mat type %d is not 8-bit unsigned", int(mat.Type()))
	}

	pix, err := mat.Bytes()
	if err != nil {
		return nil, errs.New(errs.InternalError, "imagebuf.FromMat", err)
	}
	return FromBytes(mat.Cols(), mat.Rows(), mat.Channels(), pix)
}

func checkShape(op string, width, height, channels int) error {
	if err := safe.ValidateDimensions(width, height, op); err != nil {
		return errs.New(errs.InvalidFormat, op, err)
	}
	switch channels {
	case 1, 3, 4:
		return nil
	default:
		return errs.Format(op, "unsupported channel count %d", channels)
	}
}
