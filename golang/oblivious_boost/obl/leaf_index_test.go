package obl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexBitCount(t *testing.T) {
	assert.Equal(t, 8, indexBitCount(0, 256))
	assert.Equal(t, 8, indexBitCount(2, 64))
	assert.Equal(t, 16, indexBitCount(1, 256))
	assert.Equal(t, 16, indexBitCount(6, 1024))
	assert.Equal(t, 32, indexBitCount(16, 65536))
	assert.Panics(t, func() { indexBitCount(17, 65536) })
}

func expectedSingleIndex(fold *Fold, indexer StatsIndexer, column columnAccessor, perm Permutation, docRange IndexRange) []uint32 {
	var expected []uint32
	for doc := docRange.Begin; doc < docRange.End; doc++ {
		expected = append(expected, uint32(indexer.Index(int(fold.Indices[doc]), int(column(perm.Row(doc))))))
	}
	return expected
}

func TestSetSingleIndexRegimes(t *testing.T) {
	column := NewCompressedColumnFitted([]uint32{3, 1, 4, 1, 5, 2, 6, 0})
	fold := NewPlainFold([][]float64{make([]float64, 8)}, nil)
	copy(fold.Indices, []uint32{0, 1, 0, 1, 1, 0, 1, 0})
	indexer := NewStatsIndexer(7)
	indexing := []uint32{4, 5, 6, 7, 0, 1, 2, 3}

	perms := map[string]Permutation{
		"block":     {Indexing: indexing, BlockSize: 4},
		"arbitrary": {Indexing: indexing, BlockSize: 1},
	}
	require.Equal(t, BlockPermutation, perms["block"].Kind())
	require.Equal(t, ArbitraryPermutation, perms["arbitrary"].Kind())

	for _, docRange := range []IndexRange{{0, 8}, {2, 7}, {5, 6}} {
		var results [][]uint32
		for name, perm := range perms {
			out := make([]uint8, docRange.Size())
			setSingleIndex(fold, indexer, column.At, perm, docRange, out)
			got := make([]uint32, len(out))
			for ind, val := range out {
				got[ind] = uint32(val)
			}
			assert.Equal(t, expectedSingleIndex(fold, indexer, column.At, perm, docRange), got, "%s %v", name, docRange)
			results = append(results, got)
		}
		assert.Equal(t, results[0], results[1])
	}
}

func TestSetSingleIndexWithoutPermutation(t *testing.T) {
	column := NewCompressedColumnFitted([]uint32{9, 9, 0, 1, 2, 3})
	fold := NewPlainFold([][]float64{make([]float64, 4)}, nil)
	copy(fold.Indices, []uint32{1, 0, 1, 0})
	indexer := NewStatsIndexer(4)
	perm := Permutation{Begin: 2}
	require.Equal(t, NoPermutation, perm.Kind())

	out := make([]uint16, 3)
	setSingleIndex(fold, indexer, column.At, perm, IndexRange{1, 4}, out)
	assert.Equal(t, []uint16{1, 6, 3}, out)
}

func TestEnsembleColumnSources(t *testing.T) {
	ctr := CtrRef{Projection: "cat_0", CtrIdx: 1}
	features := &QuantizedFeatures{
		FloatFeatures: []FloatFeatureColumn{
			{Values: NewCompressedColumnFitted([]uint32{0, 2, 1, 2}), BorderCount: 2},
			{BorderCount: 1, Packed: &PackedBinaryIndex{PackIdx: 0, BitIdx: 1}},
		},
		BinaryPacks: []BinaryPackColumn{{
			Values:   NewCompressedColumnFitted([]uint32{0b01, 0b10, 0b11, 0b00}),
			Features: []PackedFeature{{Float, 2}, {Float, 1}},
		}},
		Ctrs:     OnlineCtrStorage{ctr: {Values: []uint8{5, 6, 7, 8}, BorderCount: 8}},
		DocCount: 4,
	}
	fold := NewPlainFold([][]float64{make([]float64, 4)}, nil)
	fold.CtrPermutation = Permutation{Indexing: []uint32{3, 2, 1, 0}, BlockSize: 1}

	read := func(ensemble SplitEnsemble) []uint32 {
		bucketOf := features.newBucketReader(fold, ensemble)
		var buckets []uint32
		for doc := 0; doc < fold.DocCount(); doc++ {
			buckets = append(buckets, bucketOf(doc))
		}
		return buckets
	}
	assert.Equal(t, []uint32{0, 2, 1, 2}, read(floatEnsemble(0)))
	assert.Equal(t, []uint32{0, 1, 1, 0}, read(floatEnsemble(1)))
	assert.Equal(t, []uint32{1, 2, 3, 0}, read(BinaryPack{PackIdx: 0}))
	assert.Equal(t, []uint32{8, 7, 6, 5}, read(SingleFeature{Type: OnlineCtr, FeatureIdx: -1, Ctr: ctr}))

	assert.Equal(t, 2, features.BucketCount(floatEnsemble(1)))
	assert.Equal(t, 4, features.BucketCount(BinaryPack{PackIdx: 0}))
	assert.Equal(t, 9, features.BucketCount(SingleFeature{Type: OnlineCtr, Ctr: ctr}))
	assert.Panics(t, func() { features.BucketCount(SingleFeature{Type: OnlineCtr, Ctr: CtrRef{Projection: "missing"}}) })
}

func TestSplitValues(t *testing.T) {
	features := scenarioFeatures()
	fold := scenarioFold()
	assert.Equal(t, []bool{false, true, true, true}, features.SplitValues(fold, floatEnsemble(0), 0, 2))
	assert.Equal(t, []bool{false, false, true, false}, features.SplitValues(fold, floatEnsemble(0), 1, 2))

	oneHot := &QuantizedFeatures{
		CatFeatures: []CatFeatureColumn{{Values: NewCompressedColumnFitted([]uint32{2, 0, 1, 2}), UniqueValues: 3}},
		DocCount:    4,
	}
	ensemble := SingleFeature{Type: OneHotFeature, FeatureIdx: 0}
	assert.Equal(t, []bool{true, false, false, true}, oneHot.SplitValues(fold, ensemble, 2, 4))
}

func TestUpdateIndices(t *testing.T) {
	fold := scenarioFold()
	fold.UpdateIndices([]bool{true, false, true, false}, 1)
	assert.Equal(t, []uint32{2, 0, 3, 1}, fold.Indices)
	assert.Panics(t, func() { fold.UpdateIndices([]bool{true}, 2) })
}
