package filters

import (
	"fmt"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// BinaryThreshold maps samples above Level to MaxValue and everything else to 0
type BinaryThreshold struct {
	Level    float64
	MaxValue float64
}

func NewBinaryThreshold(level, maxValue float64) *BinaryThreshold {
	return &BinaryThreshold{Level: level, MaxValue: maxValue}
}

func (t *BinaryThreshold) Name() string {
	return fmt.Sprintf("threshold_%g", t.Level)
}

func (t *BinaryThreshold) Apply(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateChannels(input, t.Name(), 1); err != nil {
		return nil, errs.New(errs.InvalidFormat, "filters.Threshold", err)
	}

	dst, err := scope.Empty("binary")
	if err != nil {
		return nil, errs.New(errs.InternalError, "filters.Threshold", err)
	}
	gocv.Threshold(input.GetMat(), dst.Ptr(), float32(t.Level), float32(t.MaxValue), gocv.ThresholdBinary)
	if dst.Empty() {
		return nil, errs.Internal("filters.Threshold", "threshold produced an empty Mat")
	}

	return dst, nil
}

// Threshold is the buffer-level form of BinaryThreshold. buf must be single channel.
func Threshold(buf *imagebuf.Buffer, level, maxValue float64) (*imagebuf.Buffer, error) {
	return applyToBuffer(NewBinaryThreshold(level, maxValue), buf)
}
