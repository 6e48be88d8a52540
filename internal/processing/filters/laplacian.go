package filters

import (
	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/imagebuf"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// LaplacianFilter is the 3x3 aperture Laplacian with 8-bit saturated output
type LaplacianFilter struct{}

func NewLaplacianFilter() *LaplacianFilter {
	return &LaplacianFilter{}
}

func (l *LaplacianFilter) Name() string {
	return "laplacian"
}

func (l *LaplacianFilter) Apply(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error) {
	return laplacian(scope, input, gocv.MatTypeCV8U, "laplacian_8u")
}

// Laplacian is the buffer-level form of LaplacianFilter. buf must be single channel.
func Laplacian(buf *imagebuf.Buffer) (*imagebuf.Buffer, error) {
	return applyToBuffer(NewLaplacianFilter(), buf)
}

// LaplacianVarianceMat computes the variance of the unclamped Laplacian response
func LaplacianVarianceMat(scope *memory.Scope, input *safe.Mat) (float64, error) {
	response, err := laplacian(scope, input, gocv.MatTypeCV64F, "laplacian_64f")
	if err != nil {
		return 0, err
	}

	mean, err := scope.Empty("laplacian_mean")
	if err != nil {
		return 0, errs.New(errs.InternalError, "filters.LaplacianVariance", err)
	}
	stdDev, err := scope.Empty("laplacian_stddev")
	if err != nil {
		return 0, errs.New(errs.InternalError, "filters.LaplacianVariance", err)
	}

	gocv.MeanStdDev(response.GetMat(), mean.Ptr(), stdDev.Ptr())
	if stdDev.Empty() {
		return 0, errs.Internal("filters.LaplacianVariance", "standard deviation unavailable")
	}

	sd := stdDev.GetMat()
	sigma := sd.GetDoubleAt(0, 0)
	return sigma * sigma, nil
}

// LaplacianVariance is the buffer-level form of LaplacianVarianceMat
func LaplacianVariance(buf *imagebuf.Buffer) (float64, error) {
	scope := memory.NewScope("laplacian_variance", nil)
	defer scope.Close()

	in, err := buf.ToMat(scope, "input")
	if err != nil {
		return 0, err
	}
	return LaplacianVarianceMat(scope, in)
}

func laplacian(scope *memory.Scope, input *safe.Mat, depth gocv.MatType, tag string) (*safe.Mat, error) {
	if err := safe.ValidateChannels(input, "laplacian", 1); err != nil {
		return nil, errs.New(errs.InvalidFormat, "filters.Laplacian", err)
	}

	dst, err := scope.Empty(tag)
	if err != nil {
		return nil, errs.New(errs.InternalError, "filters.Laplacian", err)
	}
	gocv.Laplacian(input.GetMat(), dst.Ptr(), depth, 1, 1, 0, gocv.BorderDefault)
	if dst.Empty() {
		return nil, errs.Internal("filters.Laplacian", "Laplacian produced an empty Mat")
	}

	return dst, nil
}
