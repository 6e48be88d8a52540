package chain

import (
	"errors"
	"testing"

	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/opencv/safe"
	"opencv-bridge/internal/processing/filters"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type failingStep struct{}

func (failingStep) Name() string { return "explode" }

func (failingStep) Apply(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error) {
	return nil, errors.New("boom")
}

func TestChainRunsStepsInOrder(t *testing.T) {
	scope := memory.NewScope("chain", nil)
	defer scope.Close()

	pix := []byte{
		128, 128, 128, 255, 10, 10, 10, 255,
		200, 200, 200, 255, 0, 0, 0, 255,
	}
	input, err := scope.FromBytes(2, 2, gocv.MatTypeCV8UC4, pix, "input")
	require.NoError(t, err)

	c := NewProcessingChain(nil,
		filters.NewGrayscaleConverter(filters.RGBA),
		filters.NewBinaryThreshold(40, 255),
	)

	out, err := c.Execute(scope, input)
	require.NoError(t, err)

	data, err := out.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 255, 0}, data)
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	scope := memory.NewScope("chain", nil)
	defer scope.Close()

	input, err := scope.NewMat(2, 2, gocv.MatTypeCV8UC1, "input")
	require.NoError(t, err)

	c := NewProcessingChain(nil, failingStep{}, filters.NewLaplacianFilter())

	_, err = c.Execute(scope, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step explode failed")
}
