package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestScopeReleasesEverything(t *testing.T) {
	scope := NewScope("test", nil)

	a, err := scope.NewMat(4, 4, gocv.MatTypeCV8UC4, "labels")
	require.NoError(t, err)
	b, err := scope.FromBytes(2, 2, gocv.MatTypeCV8UC1, []byte{0, 1, 2, 3}, "input")
	require.NoError(t, err)
	c, err := scope.Clone(b, "copy")
	require.NoError(t, err)

	stats := scope.GetStats()
	assert.Equal(t, int64(3), stats.ActiveMats)
	assert.Equal(t, int64(64+4+4), stats.TotalAllocated)

	scope.Close()

	for _, m := range []interface{ IsValid() bool }{a, b, c} {
		assert.False(t, m.IsValid())
	}
	stats = scope.GetStats()
	assert.Zero(t, stats.ActiveMats)
	assert.Equal(t, stats.TotalAllocated, stats.TotalReleased)
	assert.Equal(t, int64(3), stats.PeakMats)
}

func TestScopeRejectsAllocationAfterClose(t *testing.T) {
	scope := NewScope("closed", nil)
	scope.Close()
	scope.Close()

	_, err := scope.NewMat(1, 1, gocv.MatTypeCV8UC1, "late")
	assert.Error(t, err)
	_, err = scope.Empty("late")
	assert.Error(t, err)
}

func TestEarlyCloseOfMemberIsAccounted(t *testing.T) {
	scope := NewScope("early", nil)
	defer scope.Close()

	m, err := scope.NewMat(2, 2, gocv.MatTypeCV8UC1, "tmp")
	require.NoError(t, err)
	m.Close()

	stats := scope.GetStats()
	assert.Zero(t, stats.ActiveMats)
	assert.Equal(t, int64(4), stats.TotalReleased)
}
