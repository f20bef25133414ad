package obl

import "log"

//statsRequest describes one statistics calculation for a split ensemble.
type statsRequest struct {
	fold            *Fold
	features        *QuantizedFeatures
	ensemble        SplitEnsemble
	indexer         StatsIndexer
	isCaching       bool
	isPlainMode     bool
	depth           int
	splitStatsCount int
	workerCount     int
}

//statsCount returns the size of the statistics array: one block of splitStatsCount slots
//per body tail and dimension.
func (req *statsRequest) statsCount() int {
	return req.fold.BodyTailCount() * req.fold.ApproxDimension() * req.splitStatsCount
}

//forEachBodyTailAndDim calls fn with the offset of every (body tail, dimension) block.
func (req *statsRequest) forEachBodyTailAndDim(fn func(bodyTailIdx, dim, offset int)) {
	approxDim := req.fold.ApproxDimension()
	for bodyTailIdx := 0; bodyTailIdx < req.fold.BodyTailCount(); bodyTailIdx++ {
		for dim := 0; dim < approxDim; dim++ {
			fn(bodyTailIdx, dim, (bodyTailIdx*approxDim+dim)*req.splitStatsCount)
		}
	}
}

//calcStats fills stats for req, choosing the composite index width once.
func calcStats(req *statsRequest, stats []BucketStats) {
	if len(stats) < req.statsCount() {
		log.Panicf("stats size %d < required %d", len(stats), req.statsCount())
	}
	if req.indexer.CalcSize(req.depth) > req.splitStatsCount {
		log.Panicf("split stats count %d < size %d at depth %d", req.splitStatsCount, req.indexer.CalcSize(req.depth), req.depth)
	}
	switch indexBitCount(req.depth, req.indexer.BucketCount) {
	case 8:
		calcStatsImpl[uint8](req, stats)
	case 16:
		calcStatsImpl[uint16](req, stats)
	default:
		calcStatsImpl[uint32](req, stats)
	}
}

func calcStatsImpl[T FullIndex](req *statsRequest, stats []BucketStats) {
	fold := req.fold
	if req.isCaching {
		assertUpperHalf(fold, req.depth)
	}
	statsCount := req.statsCount()
	filledSize := req.indexer.CalcSize(req.depth)
	stats = stats[:statsCount]

	MapMerge(
		fold.CalcStatsIndexRanges(req.workerCount),
		func(r IndexRange, out *[]BucketStats) {
			docRange := fold.docRange(r)
			singleIdx := make([]T, docRange.Size())
			buildSingleIndex(fold, req.features, req.ensemble, req.indexer, docRange, singleIdx)

			if *out == nil {
				*out = make([]BucketStats, statsCount)
			}
			req.forEachBodyTailAndDim(func(bodyTailIdx, dim, offset int) {
				calcStatsKernel(
					req.isCaching && r.Begin == 0,
					singleIdx,
					fold,
					req.isPlainMode,
					req.indexer,
					req.depth,
					&fold.BodyTails[bodyTailIdx],
					dim,
					docRange,
					(*out)[offset:offset+req.splitStatsCount],
				)
			})
		},
		func(out *[]BucketStats, parts [][]BucketStats) {
			req.forEachBodyTailAndDim(func(_, _, offset int) {
				outSubset := (*out)[offset : offset+filledSize]
				for _, part := range parts {
					partSubset := part[offset : offset+filledSize]
					for ind := range outSubset {
						outSubset[ind].Add(partSubset[ind])
					}
				}
			})
		},
		&stats,
	)

	if req.isCaching {
		req.forEachBodyTailAndDim(func(_, _, offset int) {
			fixUpStats(req.depth, req.indexer, fold.SmallestSplitSideValue, stats[offset:offset+req.splitStatsCount])
		})
	}
}

//assertUpperHalf checks that every document of a previous level view is routed to a new leaf.
func assertUpperHalf(fold *Fold, depth int) {
	if depth == 0 {
		log.Panicf("incremental statistics at depth 0")
	}
	half := uint32(1) << uint(depth-1)
	for doc, leaf := range fold.Indices {
		if leaf < half || leaf >= 2*half {
			log.Panicf("document %d has leaf %d outside of [%d, %d)", doc, leaf, half, 2*half)
		}
	}
}

func calcStatsKernel[T FullIndex](
	isCaching bool,
	singleIdx []T,
	fold *Fold,
	isPlainMode bool,
	indexer StatsIndexer,
	depth int,
	bt *BodyTail,
	dim int,
	docRange IndexRange,
	stats []BucketStats,
) {
	if isCaching {
		clearStats(stats[indexer.CalcSize(depth-1):indexer.CalcSize(depth)])
	} else {
		clearStats(stats[:indexer.CalcSize(depth)])
	}

	if bt.TailFinish <= docRange.Begin {
		return
	}
	weights, sampleWeights := fold.LearnWeights, fold.SampleWeights
	if bt.PairwiseWeights != nil {
		weights, sampleWeights = bt.PairwiseWeights, bt.SamplePairwiseWeights
	}
	tailFinish := min(bt.TailFinish, docRange.End)

	if isPlainMode {
		updateWeighted(singleIdx, docRange.Begin, bt.SampleWeightedDerivatives[dim], sampleWeights, IndexRange{docRange.Begin, tailFinish}, stats)
		return
	}
	if bt.BodyFinish > docRange.Begin {
		updateDeltaCount(singleIdx, docRange.Begin, bt.WeightedDerivatives[dim], weights, IndexRange{docRange.Begin, min(bt.BodyFinish, docRange.End)}, stats)
	}
	if tailFinish > bt.BodyFinish {
		updateWeighted(singleIdx, docRange.Begin, bt.SampleWeightedDerivatives[dim], sampleWeights, IndexRange{max(bt.BodyFinish, docRange.Begin), tailFinish}, stats)
	}
}

//updateWeighted accumulates tail sums. singleIdx starts at document offset.
func updateWeighted[T FullIndex](singleIdx []T, offset int, weightedDer, sampleWeights []float64, docRange IndexRange, stats []BucketStats) {
	for doc := docRange.Begin; doc < docRange.End; doc++ {
		leafStats := &stats[singleIdx[doc-offset]]
		leafStats.SumWeightedDelta += weightedDer[doc]
		leafStats.SumWeight += sampleWeights[doc]
	}
}

//updateDeltaCount accumulates body sums. Without weights every document counts as one.
func updateDeltaCount[T FullIndex](singleIdx []T, offset int, derivatives, weights []float64, docRange IndexRange, stats []BucketStats) {
	if weights == nil {
		for doc := docRange.Begin; doc < docRange.End; doc++ {
			leafStats := &stats[singleIdx[doc-offset]]
			leafStats.SumDelta += derivatives[doc]
			leafStats.Count++
		}
		return
	}
	for doc := docRange.Begin; doc < docRange.End; doc++ {
		leafStats := &stats[singleIdx[doc-offset]]
		leafStats.SumDelta += derivatives[doc]
		leafStats.Count += weights[doc]
	}
}

//fixUpStats turns parent statistics plus the statistics of the smaller child into both children.
func fixUpStats(depth int, indexer StatsIndexer, selectedSplitValue bool, stats []BucketStats) {
	half := indexer.CalcSize(depth - 1)
	for ind := 0; ind < half; ind++ {
		stats[ind].Remove(stats[ind+half])
		if !selectedSplitValue {
			stats[ind], stats[ind+half] = stats[ind+half], stats[ind]
		}
	}
}
