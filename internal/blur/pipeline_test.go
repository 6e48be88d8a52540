package blur

import (
	"testing"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(t *testing.T, w, h int, v byte) *imagebuf.Buffer {
	t.Helper()
	buf, err := imagebuf.New(w, h, 4)
	require.NoError(t, err)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = v, v, v, 255
	}
	return buf
}

func checkerboard(t *testing.T, w, h int) *imagebuf.Buffer {
	t.Helper()
	buf := flatImage(t, w, h, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				buf.Pixel(x, y)[0] = 255
				buf.Pixel(x, y)[1] = 255
				buf.Pixel(x, y)[2] = 255
			}
		}
	}
	return buf
}

func newPipeline(t *testing.T, metric Metric) *Pipeline {
	t.Helper()
	opts := DefaultOptions()
	opts.Metric = metric
	p, err := NewPipeline(opts)
	require.NoError(t, err)
	return p
}

func TestFlatImageIsBlurry(t *testing.T) {
	res, err := newPipeline(t, MetricPacked).Score(flatImage(t, 8, 8, 97))
	require.NoError(t, err)

	assert.Equal(t, uint8(0), res.MaxResponse)
	assert.Equal(t, PackedFloor, res.Score)
	assert.Equal(t, DefaultThreshold, res.Threshold)
	assert.True(t, res.IsBlurry)
}

func TestSharpImageIsNotBlurry(t *testing.T) {
	res, err := newPipeline(t, MetricPacked).Score(checkerboard(t, 8, 8))
	require.NoError(t, err)

	assert.Equal(t, uint8(255), res.MaxResponse)
	assert.Equal(t, int32(-1), res.Score, "0xFFFFFFFF as a signed word")
	assert.False(t, res.IsBlurry)
}

func TestScoreIsDeterministic(t *testing.T) {
	img := checkerboard(t, 9, 7)
	img.Pixel(4, 4)[0] = 60
	p := newPipeline(t, MetricPacked)

	first, err := p.Score(img)
	require.NoError(t, err)
	second, err := p.Score(img)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestVarianceMetric(t *testing.T) {
	p := newPipeline(t, MetricVariance)

	flat, err := p.Score(flatImage(t, 8, 8, 200))
	require.NoError(t, err)
	assert.InDelta(t, 0, flat.Variance, 1e-9)
	assert.True(t, flat.IsBlurry)
	assert.Equal(t, MetricVariance, flat.Metric)

	sharp, err := p.Score(checkerboard(t, 8, 8))
	require.NoError(t, err)
	assert.Greater(t, sharp.Variance, DefaultVarianceThreshold)
	assert.False(t, sharp.IsBlurry)
}

func TestCustomPackedThreshold(t *testing.T) {
	opts := DefaultOptions()
	opts.Threshold = -1
	p, err := NewPipeline(opts)
	require.NoError(t, err)

	res, err := p.Score(checkerboard(t, 8, 8))
	require.NoError(t, err)
	assert.True(t, res.IsBlurry, "score equal to the threshold counts as blurry")
}

func TestUnknownMetric(t *testing.T) {
	opts := DefaultOptions()
	opts.Metric = "fft"
	_, err := NewPipeline(opts)
	assert.Error(t, err)
}

func TestInvalidBuffer(t *testing.T) {
	_, err := newPipeline(t, MetricPacked).Score(&imagebuf.Buffer{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 4)})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidFormat))
}

func TestGrayInputIsAccepted(t *testing.T) {
	gray, err := imagebuf.FromBytes(3, 3, 1, make([]byte, 9))
	require.NoError(t, err)

	res, err := newPipeline(t, MetricPacked).Score(gray)
	require.NoError(t, err)
	assert.True(t, res.IsBlurry)
}

// halfPainted fills the left half of a black image with one RGBA colour
func halfPainted(t *testing.T, w, h int, r, g, b byte) *imagebuf.Buffer {
	t.Helper()
	buf := flatImage(t, w, h, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			copy(buf.Pixel(x, y), []byte{r, g, b, 255})
		}
	}
	return buf
}

func TestFirstChannelIsWeightedAsBlue(t *testing.T) {
	p := newPipeline(t, MetricPacked)

	red, err := p.Score(halfPainted(t, 8, 8, 255, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 29, int(red.MaxResponse), 1, "255 in channel 0 carries the blue weight")

	blue, err := p.Score(halfPainted(t, 8, 8, 0, 0, 255))
	require.NoError(t, err)
	assert.InDelta(t, 76, int(blue.MaxResponse), 1, "255 in channel 2 carries the red weight")

	// 0.587*100 + 0.299*255 is 135; with RGBA weights it would be 88 and blurry
	edge, err := p.Score(halfPainted(t, 8, 8, 0, 100, 255))
	require.NoError(t, err)
	assert.InDelta(t, 135, int(edge.MaxResponse), 1)
	assert.Equal(t, PackGray(edge.MaxResponse), edge.Score)
	assert.False(t, edge.IsBlurry)
}
