package obl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapMergeSums(t *testing.T) {
	values := make([]int, 1000)
	expected := 0
	for ind := range values {
		values[ind] = ind * ind % 17
		expected += values[ind]
	}
	for _, workerCount := range []int{1, 2, 7, 64} {
		var sum int
		MapMerge(
			EquallyDivided(len(values), workerCount),
			func(r IndexRange, out *int) {
				for ind := r.Begin; ind < r.End; ind++ {
					*out += values[ind]
				}
			},
			func(out *int, parts []int) {
				for _, part := range parts {
					*out += part
				}
			},
			&sum,
		)
		assert.Equal(t, expected, sum, "worker count %d", workerCount)
	}
}

func TestMapMergePartsOrder(t *testing.T) {
	ranges := EquallyDivided(10, 4)
	var output []int
	mergeCalled := false
	MapMerge(
		ranges,
		func(r IndexRange, out *[]int) {
			*out = append(*out, r.Begin)
		},
		func(out *[]int, parts [][]int) {
			mergeCalled = true
			for _, part := range parts {
				*out = append(*out, part...)
			}
		},
		&output,
	)
	assert.True(t, mergeCalled)
	assert.Equal(t, []int{0, 3, 6, 9}, output)
}

func TestMapMergeSingleRangeSkipsMerge(t *testing.T) {
	output := 0
	MapMerge(
		[]IndexRange{{0, 3}},
		func(r IndexRange, out *int) { *out = r.Size() },
		func(out *int, parts []int) { t.Fatal("merge called for a single range") },
		&output,
	)
	assert.Equal(t, 3, output)
}
