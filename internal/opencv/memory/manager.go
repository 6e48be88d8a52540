package memory

import (
	"fmt"
	"sync"
	"time"

	"opencv-bridge/internal/logger"
	"opencv-bridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Scope owns every Mat allocated during one pipeline call. Close releases them all,
// so a single deferred Close covers both the normal return and every early failure.
type Scope struct {
	name        string
	allocations map[uint64]*AllocationRecord
	order       []*safe.Mat
	mu          sync.Mutex
	stats       Stats
	logger      logger.Logger
	closed      bool
	openedAt    time.Time
}

type AllocationRecord struct {
	Tag       string
	CreatedAt time.Time
	Size      int64
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PeakMats       int64
}

func NewScope(name string, log logger.Logger) *Scope {
	return &Scope{
		name:        name,
		allocations: make(map[uint64]*AllocationRecord),
		logger:      logger.OrNoOp(log),
		openedAt:    time.Now(),
	}
}

// NewMat allocates a zero-filled Mat owned by the scope
func (s *Scope) NewMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	mat, err := safe.NewMatWithTracker(rows, cols, matType, s, tag)
	if err != nil {
		return nil, err
	}
	s.keep(mat)
	return mat, nil
}

// FromBytes copies data into a new Mat owned by the scope
func (s *Scope) FromBytes(rows, cols int, matType gocv.MatType, data []byte, tag string) (*safe.Mat, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	mat, err := safe.NewMatFromBytes(rows, cols, matType, data, s, tag)
	if err != nil {
		return nil, err
	}
	s.keep(mat)
	return mat, nil
}

// Empty returns an unallocated Mat for use as an OpenCV destination
func (s *Scope) Empty(tag string) (*safe.Mat, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	mat := safe.Adopt(gocv.NewMat(), s, tag)
	s.keep(mat)
	return mat, nil
}

// Clone copies src into a Mat owned by the scope
func (s *Scope) Clone(src *safe.Mat, tag string) (*safe.Mat, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(src, "clone"); err != nil {
		return nil, err
	}

	mat, err := safe.NewMatFromMatWithTracker(src.GetMat(), s, tag)
	if err != nil {
		return nil, err
	}
	s.keep(mat)
	return mat, nil
}

func (s *Scope) TrackAllocation(id uint64, size int64, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allocations[id] = &AllocationRecord{Tag: tag, CreatedAt: time.Now(), Size: size}
	s.stats.TotalAllocated += size
	s.stats.ActiveMats++
	if s.stats.ActiveMats > s.stats.PeakMats {
		s.stats.PeakMats = s.stats.ActiveMats
	}
}

func (s *Scope) TrackDeallocation(id uint64, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.allocations[id]
	if !exists {
		return
	}
	delete(s.allocations, id)
	s.stats.TotalReleased += record.Size
	s.stats.ActiveMats--
}

func (s *Scope) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases every Mat still held, in reverse allocation order. Safe to call twice.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	mats := s.order
	s.order = nil
	s.mu.Unlock()

	for i := len(mats) - 1; i >= 0; i-- {
		mats[i].Close()
	}

	stats := s.GetStats()
	s.logger.Debug("MemoryScope", "scope released", map[string]interface{}{
		"scope":          s.name,
		"mats":           len(mats),
		"peak_mats":      stats.PeakMats,
		"bytes":          stats.TotalAllocated,
		"leaked":         stats.ActiveMats,
		"elapsed_micros": time.Since(s.openedAt).Microseconds(),
	})
}

func (s *Scope) keep(mat *safe.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, mat)
}

func (s *Scope) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory scope %s is closed", s.name)
	}
	return nil
}
