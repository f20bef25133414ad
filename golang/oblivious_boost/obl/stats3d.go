package obl

import (
	"log"

	"gorgonia.org/tensor"
)

//statFieldCount is the number of float fields of BucketStats.
const statFieldCount = 4

//Stats3D is the raw statistics of a split ensemble at one level: blocks of MaxLeafCount*BucketCount
//buckets, one block per body tail and dimension.
type Stats3D struct {
	Stats        []BucketStats
	BucketCount  int
	MaxLeafCount int
	Ensemble     SplitEnsemble
}

//BlockCount returns the number of (body tail, dimension) blocks.
func (stats3d *Stats3D) BlockCount() int {
	splitStatsCount := stats3d.BucketCount * stats3d.MaxLeafCount
	if splitStatsCount == 0 {
		return 0
	}
	return len(stats3d.Stats) / splitStatsCount
}

//At returns the statistics of a bucket in a leaf of a block.
func (stats3d *Stats3D) At(block, leaf, bucket int) BucketStats {
	return stats3d.Stats[(block*stats3d.MaxLeafCount+leaf)*stats3d.BucketCount+bucket]
}

//Tensor exposes the statistics as a dense tensor of shape [blocks, leaves, buckets, 4]. The last axis
//holds SumWeightedDelta, SumWeight, SumDelta and Count.
func (stats3d *Stats3D) Tensor() *tensor.Dense {
	backing := make([]float64, 0, len(stats3d.Stats)*statFieldCount)
	for _, stats := range stats3d.Stats {
		backing = append(backing, stats.SumWeightedDelta, stats.SumWeight, stats.SumDelta, stats.Count)
	}
	return tensor.New(
		tensor.WithShape(stats3d.BlockCount(), stats3d.MaxLeafCount, stats3d.BucketCount, statFieldCount),
		tensor.WithBacking(backing),
	)
}

//Stats3DFromTensor restores statistics exported by Tensor.
func Stats3DFromTensor(t *tensor.Dense, ensemble SplitEnsemble) *Stats3D {
	shape := t.Shape()
	if len(shape) != 4 || shape[3] != statFieldCount {
		log.Panicf("unexpected stats tensor shape %v", shape)
	}
	backing, ok := t.Data().([]float64)
	if !ok {
		log.Panicf("stats tensor of %v", t.Dtype())
	}
	stats3d := &Stats3D{
		Stats:        make([]BucketStats, len(backing)/statFieldCount),
		MaxLeafCount: shape[1],
		BucketCount:  shape[2],
		Ensemble:     ensemble,
	}
	for ind := range stats3d.Stats {
		fields := backing[ind*statFieldCount : (ind+1)*statFieldCount]
		stats3d.Stats[ind] = BucketStats{fields[0], fields[1], fields[2], fields[3]}
	}
	return stats3d
}
