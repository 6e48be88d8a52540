package safe

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Tracker is implemented by memory.Scope; declared here to avoid an import cycle
type Tracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

// Mat guards a gocv.Mat against use after Close and double Close
type Mat struct {
	mat     gocv.Mat
	isValid int32
	mu      sync.RWMutex
	id      uint64
	tracker Tracker
	tag     string
}

var nextMatID uint64

// NewMatWithTracker allocates a zero-filled Mat and reports it to tracker, if any
func NewMatWithTracker(rows, cols int, matType gocv.MatType, tracker Tracker, tag string) (*Mat, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to create Mat with size %dx%d", cols, rows)
	}

	return wrap(mat, tracker, tag), nil
}

// NewMatFromBytes copies data into a Mat owned by OpenCV, so the caller may reuse data
func NewMatFromBytes(rows, cols int, matType gocv.MatType, data []byte, tracker Tracker, tag string) (*Mat, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}

	view, err := gocv.NewMatFromBytes(rows, cols, matType, data)
	if err != nil {
		return nil, fmt.Errorf("Mat from %d bytes: %w", len(data), err)
	}
	defer view.Close()

	return NewMatFromMatWithTracker(view, tracker, tag)
}

// NewMatFromMatWithTracker clones srcMat; the caller keeps ownership of srcMat
func NewMatFromMatWithTracker(srcMat gocv.Mat, tracker Tracker, tag string) (*Mat, error) {
	if srcMat.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}

	if srcMat.Rows() <= 0 || srcMat.Cols() <= 0 {
		return nil, fmt.Errorf("source Mat has invalid dimensions: %dx%d", srcMat.Cols(), srcMat.Rows())
	}

	clonedMat := srcMat.Clone()
	if clonedMat.Empty() {
		clonedMat.Close()
		return nil, fmt.Errorf("failed to clone Mat")
	}

	return wrap(clonedMat, tracker, tag), nil
}

// Adopt takes ownership of mat without copying. mat may be empty; OpenCV
// functions writing into it will allocate.
func Adopt(mat gocv.Mat, tracker Tracker, tag string) *Mat {
	return wrap(mat, tracker, tag)
}

func wrap(mat gocv.Mat, tracker Tracker, tag string) *Mat {
	safeMat := &Mat{
		mat:     mat,
		isValid: 1,
		id:      atomic.AddUint64(&nextMatID, 1),
		tracker: tracker,
		tag:     tag,
	}

	if tracker != nil {
		tracker.TrackAllocation(safeMat.id, byteSize(mat), tag)
	}

	// Set finalizer for cleanup if Close() is not called
	runtime.SetFinalizer(safeMat, (*Mat).finalize)

	return safeMat
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}

	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Cols()
}

func (sm *Mat) Channels() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Channels()
}

func (sm *Mat) Type() gocv.MatType {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return gocv.MatTypeCV8UC1
	}

	return sm.mat.Type()
}

// Bytes returns a copy of the pixel data in row-major, channel-interleaved order
func (sm *Mat) Bytes() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, fmt.Errorf("Mat is invalid")
	}

	if sm.mat.Empty() {
		return nil, fmt.Errorf("Mat is empty")
	}

	if !sm.mat.IsContinuous() {
		cont := sm.mat.Clone()
		defer cont.Close()
		return cont.ToBytes(), nil
	}

	return sm.mat.ToBytes(), nil
}

// GetMat exposes the wrapped Mat. The returned value shares the native object,
// so OpenCV calls writing through &m update sm.
func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.mat
}

// Ptr returns a pointer suitable as an OpenCV destination argument
func (sm *Mat) Ptr() *gocv.Mat {
	return &sm.mat
}

func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		if sm.tracker != nil {
			sm.tracker.TrackDeallocation(sm.id, sm.tag)
		}

		sm.mat.Close()

		// Clear finalizer since we're cleaning up manually
		runtime.SetFinalizer(sm, nil)
	}
}

// finalize is called by Go's garbage collector as last resort cleanup
func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}

func byteSize(mat gocv.Mat) int64 {
	if mat.Empty() {
		return 0
	}
	return int64(mat.Rows()*mat.Cols()) * int64(getMatTypeSize(mat.Type()))
}

func getMatTypeSize(matType gocv.MatType) int {
	switch matType {
	case gocv.MatTypeCV8UC1:
		return 1
	case gocv.MatTypeCV8UC3:
		return 3
	case gocv.MatTypeCV8UC4:
		return 4
	case gocv.MatTypeCV16SC1:
		return 2
	case gocv.MatTypeCV32SC4:
		return 16
	case gocv.MatTypeCV64FC1:
		return 8
	default:
		return 1
	}
}
