// Package codec turns encoded images into pixel buffers and back.
package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/opencv/safe"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels caps width*height of a decoded image. Decoders allocate the full
// pixel buffer from the header before reading any pixel data.
const MaxPixels = 1 << 26

// DecodeBase64 accepts standard base64 with or without padding, with embedded
// whitespace, and with an optional data: URI prefix.
func DecodeBase64(encoded string) (*imagebuf.Buffer, error) {
	data, err := decodeBase64String(encoded)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes PNG, JPEG, GIF, BMP, TIFF or WebP data into a 4-channel RGBA buffer
func Decode(data []byte) (*imagebuf.Buffer, error) {
	if len(data) == 0 {
		return nil, errs.Decode("codec.Decode", "no image data")
	}

	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errs.New(errs.DecodeError, "codec.Decode", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.New(errs.DecodeError, "codec.Decode", err)
	}

	buf, err := imagebuf.FromImage(img)
	if err != nil {
		return nil, errs.New(errs.DecodeError, "codec.Decode", err)
	}
	return buf, nil
}

func checkHeader(header image.Config) error {
	if err := safe.ValidateDimensions(header.Width, header.Height, "codec.Decode"); err != nil {
		return errs.New(errs.DecodeError, "codec.Decode", err)
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > MaxPixels {
		return errs.Decode("codec.Decode", "image %dx%d exceeds the %d pixel limit",
			header.Width, header.Height, MaxPixels)
	}
	return nil
}

func decodeBase64String(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, errs.Decode("codec.DecodeBase64", "data URI without payload")
		}
		s = s[comma+1:]
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, errs.Decode("codec.DecodeBase64", "empty input")
	}

	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, errs.New(errs.DecodeError, "codec.DecodeBase64", err)
	}
	return data, nil
}

// EncodeBase64 is the inverse of DecodeBase64 for raw bytes
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodePNG writes a 1-channel buffer as 8-bit gray and a 4-channel buffer as RGBA
func EncodePNG(w io.Writer, buf *imagebuf.Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}

	var img image.Image
	switch buf.Channels {
	case 1:
		img = &image.Gray{Pix: buf.Pix, Stride: buf.Width, Rect: image.Rect(0, 0, buf.Width, buf.Height)}
	case 4:
		img = &image.NRGBA{Pix: buf.Pix, Stride: 4 * buf.Width, Rect: image.Rect(0, 0, buf.Width, buf.Height)}
	case 3:
		rgba := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
		for y := 0; y < buf.Height; y++ {
			for x := 0; x < buf.Width; x++ {
				px := buf.Pixel(x, y)
				rgba.SetNRGBA(x, y, color.NRGBA{R: px[0], G: px[1], B: px[2], A: 255})
			}
		}
		img = rgba
	}

	if err := png.Encode(w, img); err != nil {
		return errs.New(errs.InternalError, "codec.EncodePNG", err)
	}
	return nil
}
