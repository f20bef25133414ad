package obl

import "math/bits"

// Statistics for score calculation are stored in a flat array, one slot per (leaf, bucket).
// StatsIndexer navigates in this array.
type StatsIndexer struct {
	BucketCount int
}

//NewStatsIndexer creates an indexer for a split ensemble with bucketCount buckets.
func NewStatsIndexer(bucketCount int) StatsIndexer {
	return StatsIndexer{BucketCount: bucketCount}
}

//CalcSize returns the number of slots used at the given depth.
func (indexer StatsIndexer) CalcSize(depth int) int {
	return (1 << uint(depth)) * indexer.BucketCount
}

//Index returns the flat slot of a bucket inside a leaf.
func (indexer StatsIndexer) Index(leaf, bucket int) int {
	return indexer.BucketCount*leaf + bucket
}

//ValueBitCount returns the number of bits required to store v.
func ValueBitCount(v uint32) int {
	return bits.Len32(v)
}
