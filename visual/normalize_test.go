package visual

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDownsamplePeaks(t *testing.T) {
	got := Normalize([]float64{0, 0, 5, 0, 0, 0, 0, 0}, 4, true)
	assert.Equal(t, []float64{0, 5, 0, 0}, got)
}

func TestNormalizeDownsampleMean(t *testing.T) {
	got := Normalize([]float64{1, -3, 2, 2, 0, 0, -4, 0}, 4, false)
	assert.Equal(t, []float64{2, 2, 0, 2}, got)
}

func TestNormalizePeaksUseAbsoluteValue(t *testing.T) {
	got := Normalize([]float64{-7, 1, 0.5, -0.25}, 2, true)
	assert.Equal(t, []float64{7, 0.5}, got)
}

func TestNormalizeUpsampleInterpolates(t *testing.T) {
	got := Normalize([]float64{0, 10}, 3, false)
	assert.InDeltaSlice(t, []float64{0, 5, 10}, got, 1e-9)
}

func TestNormalizeUpsampleSingleSample(t *testing.T) {
	got := Normalize([]float64{0.3}, 5, true)
	assert.InDeltaSlice(t, []float64{0.3, 0.3, 0.3, 0.3, 0.3}, got, 1e-9)
}

func TestNormalizeIdentityLength(t *testing.T) {
	data := []float64{0.1, -0.2, 0.3}
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, Normalize(data, 3, true))
}

func TestNormalizeDegenerateInputs(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, Normalize(nil, 3, true))
	assert.Empty(t, Normalize([]float64{1, 2}, 0, true))
	assert.Equal(t, []float64{4}, Normalize([]float64{1, -4, 2}, 1, true))
}

func TestNormalizeAlwaysReturnsTargetLength(t *testing.T) {
	for n := 1; n <= 40; n++ {
		data := make([]float64, n)
		for i := range data {
			data[i] = float64((i*7)%5) - 2
		}
		for m := 1; m <= 40; m++ {
			for _, peaks := range []bool{true, false} {
				got := Normalize(data, m, peaks)
				require.Lenf(t, got, m, "n=%d m=%d peaks=%v", n, m, peaks)
			}
		}
	}
}

func TestCacheSkipsRecomputation(t *testing.T) {
	c := NewCache()
	b := NewBuffer([]float64{0, 0, 5, 0, 0, 0, 0, 0})

	first := c.Normalize(b, 4, true)
	second := c.Normalize(b, 4, true)
	assert.Equal(t, []float64{0, 5, 0, 0}, second)
	assert.Equal(t, int64(1), c.Misses())
	assert.Same(t, &first[0], &second[0])

	c.Normalize(b, 4, false)
	c.Normalize(b, 2, true)
	assert.Equal(t, int64(3), c.Misses())
}

func TestCacheKeysOnIdentityNotValue(t *testing.T) {
	c := NewCache()
	a := NewBuffer([]float64{1, 2, 3, 4})
	b := NewBuffer([]float64{1, 2, 3, 4})

	c.Normalize(a, 2, true)
	c.Normalize(b, 2, true)
	assert.Equal(t, int64(2), c.Misses())
	assert.Equal(t, 2, c.Len())
}

func TestSnapshotsReuseUnchangedBuffer(t *testing.T) {
	readings := [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4}, {4, 3, 2, 1}, nil}
	next := Snapshots(func() []float64 {
		v := readings[0]
		readings = readings[1:]
		return v
	})
	c := NewCache()

	a := next()
	b := next()
	assert.Same(t, a, b)
	c.Normalize(a, 2, true)
	c.Normalize(b, 2, true)
	assert.Equal(t, int64(1), c.Misses(), "a steady spectrum is normalized once")

	changed := next()
	assert.NotSame(t, a, changed)
	assert.Nil(t, next())
}

func TestCacheEvictsCollectedBuffers(t *testing.T) {
	c := NewCache()
	func() {
		b := NewBuffer([]float64{1, 2, 3})
		c.Normalize(b, 2, true)
	}()
	require.Equal(t, 1, c.Len())

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Skip("cleanup did not run within deadline; GC timing is not guaranteed")
	}
}
