package obl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlainFold(t *testing.T) {
	fold := NewPlainFold([][]float64{{1, 2, 3}, {4, 5, 6}}, nil)
	assert.Equal(t, 3, fold.DocCount())
	assert.Equal(t, 1, fold.BodyTailCount())
	assert.Equal(t, 2, fold.ApproxDimension())
	assert.Equal(t, []float64{1, 1, 1}, fold.SampleWeights)
	assert.Equal(t, 3.0, fold.BodyTails[0].BodySumWeight)
	assert.Equal(t, 3, fold.BodyTails[0].TailFinish)
	assert.False(t, fold.HasQueryInfo())

	weighted := NewPlainFold([][]float64{{1, 2}}, []float64{0.5, 2})
	assert.Equal(t, 2.5, weighted.BodyTails[0].BodySumWeight)

	assert.Panics(t, func() { NewPlainFold(nil, nil) })
	assert.Panics(t, func() { NewPlainFold([][]float64{{1, 2}}, []float64{1}) })
}

func testGroupedFold() *Fold {
	fold := &Fold{
		Indices:       []uint32{0, 1, 0, 1, 0, 1},
		LearnWeights:  []float64{1, 2, 3, 4, 5, 6},
		SampleWeights: []float64{6, 5, 4, 3, 2, 1},
		BodyTails: []BodyTail{{
			BodyFinish:                4,
			TailFinish:                5,
			BodySumWeight:             10,
			WeightedDerivatives:       [][]float64{{10, 11, 12, 13, 14, 15}},
			SampleWeightedDerivatives: [][]float64{{20, 21, 22, 23, 24, 25}},
			PairwiseWeights:           []float64{1, 1, 1, 1, 1, 1},
			SamplePairwiseWeights:     []float64{2, 2, 2, 2, 2, 2},
		}},
		LearnQueries:        []QueryInfo{{0, 2}, {2, 4}, {4, 6}},
		FeaturesPermutation: Permutation{Begin: 10},
		CtrPermutation:      Permutation{Indexing: []uint32{5, 4, 3, 2, 1, 0}, BlockSize: 1},
	}
	fold.validatedSizes()
	return fold
}

func TestSelectSmallestSplitSideTrue(t *testing.T) {
	fold := testGroupedFold()
	selected := fold.SelectSmallestSplitSide(1, []bool{true, false, false, true, false, false})

	assert.True(t, selected.SmallestSplitSideValue)
	assert.Equal(t, []uint32{2, 3}, selected.Indices)
	assert.Equal(t, []float64{1, 4}, selected.LearnWeights)
	assert.Equal(t, []float64{6, 3}, selected.SampleWeights)
	assert.Equal(t, []QueryInfo{{0, 1}, {1, 2}}, selected.LearnQueries)
	assert.Equal(t, Permutation{Indexing: []uint32{10, 13}, BlockSize: 1}, selected.FeaturesPermutation)
	assert.Equal(t, Permutation{Indexing: []uint32{5, 2}, BlockSize: 1}, selected.CtrPermutation)

	bt := selected.BodyTails[0]
	assert.Equal(t, 2, bt.BodyFinish)
	assert.Equal(t, 2, bt.TailFinish)
	assert.Equal(t, 5.0, bt.BodySumWeight)
	assert.Equal(t, [][]float64{{10, 13}}, bt.WeightedDerivatives)
	assert.Equal(t, [][]float64{{20, 23}}, bt.SampleWeightedDerivatives)
	assert.Equal(t, []float64{2, 2}, bt.SamplePairwiseWeights)
	selected.validatedSizes()
}

func TestSelectSmallestSplitSideFalse(t *testing.T) {
	fold := testGroupedFold()
	selected := fold.SelectSmallestSplitSide(1, []bool{true, true, false, true, true, false})

	assert.False(t, selected.SmallestSplitSideValue)
	assert.Equal(t, []uint32{2, 3}, selected.Indices)
	assert.Equal(t, []QueryInfo{{0, 1}, {1, 2}}, selected.LearnQueries)

	bt := selected.BodyTails[0]
	assert.Equal(t, 1, bt.BodyFinish)
	assert.Equal(t, 1, bt.TailFinish)
	assert.Equal(t, 3.0, bt.BodySumWeight)
	assert.Equal(t, [][]float64{{22}}, bt.SampleWeightedDerivatives)
	selected.validatedSizes()
}

func TestSelectSmallestSplitSideTieKeepsTrue(t *testing.T) {
	fold := NewPlainFold([][]float64{{1, 2}}, nil)
	selected := fold.SelectSmallestSplitSide(0, []bool{false, true})
	require.True(t, selected.SmallestSplitSideValue)
	assert.Equal(t, []uint32{1}, selected.Indices)
	assert.Nil(t, selected.LearnQueries)
}

func TestFoldValidatedSizes(t *testing.T) {
	fold := testGroupedFold()
	fold.SampleWeights = fold.SampleWeights[:2]
	assert.Panics(t, fold.validatedSizes)

	fold = testGroupedFold()
	fold.LearnQueries = []QueryInfo{{0, 3}}
	assert.Panics(t, fold.validatedSizes)

	fold = testGroupedFold()
	fold.BodyTails[0].BodyFinish = 6
	assert.Panics(t, fold.validatedSizes)
}
