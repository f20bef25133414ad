package obl

import "log"

//FullIndex is the storage type of composite (leaf, bucket) indices.
type FullIndex interface {
	~uint8 | ~uint16 | ~uint32
}

//columnAccessor returns the bucket stored at a row of a column.
type columnAccessor func(row int) uint32

//indexBitCount returns the width required for composite indices, rounded up to 8, 16 or 32.
func indexBitCount(depth, bucketCount int) int {
	bitCount := depth + ValueBitCount(uint32(bucketCount-1))
	switch {
	case bitCount <= 8:
		return 8
	case bitCount <= 16:
		return 16
	case bitCount <= 32:
		return 32
	}
	log.Panicf("composite index needs %d bits: depth %d, bucket count %d", bitCount, depth, bucketCount)
	return 0
}

//setSingleIndex fills out[doc-docRange.Begin] with the composite index of every document in docRange.
func setSingleIndex[T FullIndex](
	fold *Fold,
	indexer StatsIndexer,
	column columnAccessor,
	perm Permutation,
	docRange IndexRange,
	out []T,
) {
	indices := fold.Indices
	switch perm.Kind() {
	case NoPermutation:
		for doc := docRange.Begin; doc < docRange.End; doc++ {
			out[doc-docRange.Begin] = T(indexer.Index(int(indices[doc]), int(column(perm.Begin+doc))))
		}
	case BlockPermutation:
		rowCount := len(perm.Indexing)
		blockStart := docRange.Begin
		for blockStart < docRange.End {
			firstRow := int(perm.Indexing[blockStart])
			blockEnd := (firstRow/perm.BlockSize + 1) * perm.BlockSize
			if blockEnd > rowCount {
				blockEnd = rowCount
			}
			nextBlockStart := blockStart + blockEnd - firstRow
			if nextBlockStart > docRange.End {
				nextBlockStart = docRange.End
			}
			for doc := blockStart; doc < nextBlockStart; doc++ {
				row := firstRow + doc - blockStart
				out[doc-docRange.Begin] = T(indexer.Index(int(indices[doc]), int(column(row))))
			}
			blockStart = nextBlockStart
		}
	default:
		for doc := docRange.Begin; doc < docRange.End; doc++ {
			row := int(perm.Indexing[doc])
			out[doc-docRange.Begin] = T(indexer.Index(int(indices[doc]), int(column(row))))
		}
	}
}

//ensembleColumn returns the column holding the buckets of an ensemble and the permutation
//addressing it from the fold.
func (features *QuantizedFeatures) ensembleColumn(fold *Fold, ensemble SplitEnsemble) (columnAccessor, Permutation) {
	switch ensemble := ensemble.(type) {
	case SingleFeature:
		switch ensemble.Type {
		case FloatFeature:
			column := features.FloatFeatures[ensemble.FeatureIdx]
			if column.Packed != nil {
				return features.packedBitAccessor(*column.Packed), fold.FeaturesPermutation
			}
			return column.Values.At, fold.FeaturesPermutation
		case OneHotFeature:
			column := features.CatFeatures[ensemble.FeatureIdx]
			if column.Packed != nil {
				return features.packedBitAccessor(*column.Packed), fold.FeaturesPermutation
			}
			return column.Values.At, fold.FeaturesPermutation
		case OnlineCtr:
			values := features.ctrColumn(ensemble.Ctr).Values
			return func(row int) uint32 { return uint32(values[row]) }, fold.CtrPermutation
		}
	case BinaryPack:
		return features.BinaryPacks[ensemble.PackIdx].Values.At, fold.FeaturesPermutation
	case ExclusiveBundle:
		return features.Bundles[ensemble.BundleIdx].Values.At, fold.FeaturesPermutation
	}
	log.Panicf("unexpected split ensemble %v", ensemble)
	return nil, Permutation{}
}

func (features *QuantizedFeatures) packedBitAccessor(packed PackedBinaryIndex) columnAccessor {
	pack := features.BinaryPacks[packed.PackIdx].Values
	bit := uint(packed.BitIdx)
	return func(row int) uint32 { return (pack.At(row) >> bit) & 1 }
}

//buildSingleIndex computes composite indices of docRange for an ensemble.
func buildSingleIndex[T FullIndex](
	fold *Fold,
	features *QuantizedFeatures,
	ensemble SplitEnsemble,
	indexer StatsIndexer,
	docRange IndexRange,
	out []T,
) {
	column, perm := features.ensembleColumn(fold, ensemble)
	setSingleIndex(fold, indexer, column, perm, docRange, out)
}

//newBucketReader returns the ensemble bucket of each fold document.
func (features *QuantizedFeatures) newBucketReader(fold *Fold, ensemble SplitEnsemble) func(doc int) uint32 {
	column, perm := features.ensembleColumn(fold, ensemble)
	return func(doc int) uint32 { return column(perm.Row(doc)) }
}

//SplitValues evaluates the splitIdx-th candidate of an ensemble for every fold document.
func (features *QuantizedFeatures) SplitValues(fold *Fold, ensemble SplitEnsemble, splitIdx int, oneHotMaxSize uint32) []bool {
	bucketOf := features.newBucketReader(fold, ensemble)
	isTrue := candidateTruth(ensemble, splitIdx, oneHotMaxSize)
	values := make([]bool, fold.DocCount())
	for doc := range values {
		values[doc] = isTrue(bucketOf(doc))
	}
	return values
}
