package filters

import (
	"testing"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformRGBA(t *testing.T, w, h int, r, g, b, a byte) *imagebuf.Buffer {
	t.Helper()
	buf, err := imagebuf.New(w, h, 4)
	require.NoError(t, err)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = r, g, b, a
	}
	return buf
}

func grayFrom(t *testing.T, w, h int, pix []byte) *imagebuf.Buffer {
	t.Helper()
	buf, err := imagebuf.FromBytes(w, h, 1, pix)
	require.NoError(t, err)
	return buf
}

func TestToGrayscaleUniform(t *testing.T) {
	gray, err := ToGrayscale(uniformRGBA(t, 4, 4, 128, 128, 128, 255), RGBA)
	require.NoError(t, err)

	assert.Equal(t, 1, gray.Channels)
	assert.Equal(t, 4, gray.Width)
	assert.Equal(t, 4, gray.Height)
	for _, v := range gray.Pix {
		assert.Equal(t, byte(128), v)
	}
}

func TestToGrayscaleIsIdempotent(t *testing.T) {
	src := grayFrom(t, 3, 2, []byte{0, 17, 40, 41, 200, 255})

	once, err := ToGrayscale(src, RGBA)
	require.NoError(t, err)
	twice, err := ToGrayscale(once, BGRA)
	require.NoError(t, err)

	assert.Equal(t, src.Pix, once.Pix)
	assert.Equal(t, once.Pix, twice.Pix)
}

func TestChannelOrderChangesWeights(t *testing.T) {
	red := uniformRGBA(t, 1, 1, 255, 0, 0, 255)

	asRGBA, err := ToGrayscale(red, RGBA)
	require.NoError(t, err)
	asBGRA, err := ToGrayscale(red, BGRA)
	require.NoError(t, err)

	assert.InDelta(t, 76, int(asRGBA.Pix[0]), 1, "red weighted as red")
	assert.InDelta(t, 29, int(asBGRA.Pix[0]), 1, "red weighted as blue")
}

func TestToGrayscaleThreeChannels(t *testing.T) {
	buf, err := imagebuf.FromBytes(1, 1, 3, []byte{0, 0, 255})
	require.NoError(t, err)

	gray, err := ToGrayscale(buf, RGBA)
	require.NoError(t, err)
	assert.InDelta(t, 29, int(gray.Pix[0]), 1)
}

func TestToGrayscaleRejectsBrokenBuffer(t *testing.T) {
	broken := &imagebuf.Buffer{Width: 2, Height: 2, Channels: 4, Pix: make([]byte, 3)}

	_, err := ToGrayscale(broken, RGBA)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidFormat))
}

func TestThresholdIsStrictlyGreater(t *testing.T) {
	src := grayFrom(t, 4, 1, []byte{0, 40, 41, 255})

	out, err := Threshold(src, 40, 255)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, out.Pix)
}

func TestThresholdCustomMaxValue(t *testing.T) {
	src := grayFrom(t, 2, 1, []byte{10, 100})

	out, err := Threshold(src, 50, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 7}, out.Pix)
}

func TestThresholdRequiresSingleChannel(t *testing.T) {
	_, err := Threshold(uniformRGBA(t, 2, 2, 1, 2, 3, 4), 40, 255)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidFormat))
}

func TestLaplacianFlatIsZero(t *testing.T) {
	pix := make([]byte, 25)
	for i := range pix {
		pix[i] = 90
	}

	out, err := Laplacian(grayFrom(t, 5, 5, pix))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 25), out.Pix)
}

func TestLaplacianSinglePoint(t *testing.T) {
	pix := make([]byte, 25)
	pix[12] = 255

	out, err := Laplacian(grayFrom(t, 5, 5, pix))
	require.NoError(t, err)

	assert.Equal(t, byte(0), out.Pixel(2, 2)[0], "negative centre saturates to 0")
	assert.Equal(t, byte(255), out.Pixel(1, 2)[0])
	assert.Equal(t, byte(255), out.Pixel(3, 2)[0])
	assert.Equal(t, byte(255), out.Pixel(2, 1)[0])
	assert.Equal(t, byte(255), out.Pixel(2, 3)[0])
	assert.Equal(t, byte(0), out.Pixel(1, 1)[0], "diagonals are outside the 3x3 cross")
}

func TestLaplacianVariance(t *testing.T) {
	flat := make([]byte, 64)
	checker := make([]byte, 64)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			flat[y*8+x] = 128
			if (x+y)%2 == 0 {
				checker[y*8+x] = 255
			}
		}
	}

	flatVar, err := LaplacianVariance(grayFrom(t, 8, 8, flat))
	require.NoError(t, err)
	checkerVar, err := LaplacianVariance(grayFrom(t, 8, 8, checker))
	require.NoError(t, err)

	assert.InDelta(t, 0, flatVar, 1e-9)
	assert.Greater(t, checkerVar, 1000.0)
}
