package segmentation

import (
	"image"
	"image/color"

	"opencv-bridge/internal/errs"
	"opencv-bridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Contour is one closed boundary from the two-level hierarchy. Outer boundaries
// have Parent -1; holes point at the outer boundary that encloses them.
type Contour struct {
	Points   []image.Point
	Parent   int
	Children []int
	IsHole   bool
	Color    color.RGBA
}

// hierarchy entry layout produced by findContours
const (
	hierNext = iota
	hierPrev
	hierFirstChild
	hierParent
)

// extractContours traces the binary mask with RETR_CCOMP and CHAIN_APPROX_SIMPLE.
// The returned vector and hierarchy Mat belong to the caller.
func extractContours(mask *safe.Mat, hierarchy *safe.Mat) (gocv.PointsVector, []Contour, error) {
	if err := safe.ValidateChannels(mask, "findContours", 1); err != nil {
		return gocv.PointsVector{}, nil, errs.New(errs.InvalidFormat, "segmentation.extractContours", err)
	}

	vector := gocv.FindContoursWithParams(mask.GetMat(), hierarchy.Ptr(), gocv.RetrievalCComp, gocv.ChainApproxSimple)

	count := vector.Size()
	contours := make([]Contour, count)
	for i := 0; i < count; i++ {
		contours[i] = Contour{
			Points: vector.At(i).ToPoints(),
			Parent: -1,
		}
	}

	if count == 0 {
		return vector, contours, nil
	}

	h := hierarchy.GetMat()
	if h.Empty() || h.Total() != count {
		vector.Close()
		return gocv.PointsVector{}, nil, errs.Internal("segmentation.extractContours",
			"hierarchy has %d entries for %d contours", h.Total(), count)
	}

	for i := 0; i < count; i++ {
		entry := h.GetVeciAt(0, i)
		parent := int(entry[hierParent])
		if parent < 0 {
			continue
		}
		if parent >= count {
			vector.Close()
			return gocv.PointsVector{}, nil, errs.Internal("segmentation.extractContours",
				"contour %d has parent %d out of range", i, parent)
		}
		contours[i].Parent = parent
		contours[i].IsHole = true
		contours[parent].Children = append(contours[parent].Children, i)
	}

	return vector, contours, nil
}

// Bounds is the axis-aligned box around the contour vertices
func (c Contour) Bounds() image.Rectangle {
	if len(c.Points) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: c.Points[0], Max: c.Points[0]}
	for _, p := range c.Points[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	// vertices are pixel centres, so the covered area extends one pixel further
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}
