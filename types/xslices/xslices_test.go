package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	m := map[string]int{"stride": 1, "pad": 0}
	assert.ElementsMatch(t, []string{"stride", "pad"}, Keys(m))
	assert.Empty(t, Keys(map[int]int{}))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"kernel": 3, "depth": 8, "size": 7}
	assert.Equal(t, []string{"depth", "kernel", "size"}, SortedKeys(m))
}

func TestMap(t *testing.T) {
	in := []int{1, 2, 3}
	assert.Equal(t, []string{"1x", "2x", "3x"}, Map(in, func(v int) string {
		return string(rune('0'+v)) + "x"
	}))
	assert.Empty(t, Map(nil, func(v int) int { return v }))
}

func TestFillSlice(t *testing.T) {
	slice := make([]float32, 13)
	FillSlice(slice, float32(0.1))
	for ii, v := range slice {
		assert.Equalf(t, float32(0.1), v, "element %d doesn't match", ii)
	}
	FillSlice([]int{}, 7) // Must not panic.
}

func TestIota(t *testing.T) {
	assert.Equal(t, []float64{3, 4}, Iota(3.0, 2))
	assert.Equal(t, []int{10, 11, 12, 13}, Iota(10, 4))
}

func TestMinMax(t *testing.T) {
	slice := []float64{3, -2, 7, 1}
	assert.Equal(t, 7.0, Max(slice))
	assert.Equal(t, -2.0, Min(slice))
	assert.Equal(t, 0.0, Max([]float64{}))
	assert.Equal(t, 0.0, Min([]float64(nil)))
}
