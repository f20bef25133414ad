package obl

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//CompetitorPair is a pair of fold documents where Winner should be ranked above Loser.
type CompetitorPair struct {
	Winner int
	Loser  int
	Weight float64
}

//PairWeightStats holds pair weights by the smaller (first) and the greater (second) bucket of a pair.
type PairWeightStats struct {
	SmallerBorderWeightSum float64
	GreaterBorderWeightSum float64
}

func (stats *PairWeightStats) add(other PairWeightStats) {
	stats.SmallerBorderWeightSum += other.SmallerBorderWeightSum
	stats.GreaterBorderWeightSum += other.GreaterBorderWeightSum
}

//PairwiseStats are the aggregates of pairwise scoring for one ordered split ensemble.
//DerSums is indexed by [leaf*BucketCount + bucket]. PairWeights is indexed by
//[(smallerLeaf*LeafCount + greaterLeaf)*BucketCount + bucket] where smallerLeaf is the leaf
//of the pair document with the smaller bucket.
type PairwiseStats struct {
	LeafCount   int
	BucketCount int
	DerSums     []float64
	PairWeights []PairWeightStats
}

func newPairwiseStats(leafCount, bucketCount int) PairwiseStats {
	return PairwiseStats{
		LeafCount:   leafCount,
		BucketCount: bucketCount,
		DerSums:     make([]float64, leafCount*bucketCount),
		PairWeights: make([]PairWeightStats, leafCount*leafCount*bucketCount),
	}
}

//Add accumulates other into the receiver.
func (stats *PairwiseStats) Add(other PairwiseStats) {
	for ind, der := range other.DerSums {
		stats.DerSums[ind] += der
	}
	for ind := range other.PairWeights {
		stats.PairWeights[ind].add(other.PairWeights[ind])
	}
}

//PairwiseScoreCalcer stores scores calculated from PairwiseStats.
type PairwiseScoreCalcer struct {
	scores []float64
}

func (calcer *PairwiseScoreCalcer) SetSplitsCount(splitsCount int) {
	calcer.scores = make([]float64, splitsCount)
}

func (calcer *PairwiseScoreCalcer) SplitsCount() int {
	return len(calcer.scores)
}

func (calcer *PairwiseScoreCalcer) Scores() []float64 {
	return append([]float64(nil), calcer.scores...)
}

//SetScore sets the score of one candidate.
func (calcer *PairwiseScoreCalcer) SetScore(splitIdx int, score float64) {
	calcer.scores[splitIdx] = score
}

func checkPairwiseEnsemble(ensemble SplitEnsemble) error {
	if single, ok := ensemble.(SingleFeature); ok && (single.Type == FloatFeature || single.Type == OnlineCtr) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPairwiseUnsupportedEnsemble, ensemble)
}

//calcPairwiseStats aggregates derivatives and pair weights. Documents and pairs are cut into the same
//number of blocks and every block is aggregated by one worker.
func calcPairwiseStats(
	fold *Fold,
	features *QuantizedFeatures,
	ensemble SplitEnsemble,
	pairs []CompetitorPair,
	depth, workerCount int,
) PairwiseStats {
	leafCount := 1 << uint(depth)
	bucketCount := features.BucketCount(ensemble)
	bucketOf := features.newBucketReader(fold, ensemble)
	derivatives := fold.BodyTails[0].WeightedDerivatives[0]

	docCount := fold.DocCount()
	blockCount := len(fold.CalcStatsIndexRanges(workerCount))
	docPart := (docCount + blockCount - 1) / blockCount
	pairPart := (len(pairs) + blockCount - 1) / blockCount

	output := newPairwiseStats(leafCount, bucketCount)
	MapMerge(
		EquallyDivided(blockCount, blockCount),
		func(r IndexRange, out *PairwiseStats) {
			if out.DerSums == nil {
				*out = newPairwiseStats(leafCount, bucketCount)
			}
			for doc := min(docCount, docPart*r.Begin); doc < min(docCount, docPart*r.End); doc++ {
				out.DerSums[int(fold.Indices[doc])*bucketCount+int(bucketOf(doc))] += derivatives[doc]
			}
			for ind := min(len(pairs), pairPart*r.Begin); ind < min(len(pairs), pairPart*r.End); ind++ {
				pair := pairs[ind]
				smaller, greater := pair.Winner, pair.Loser
				smallerBucket, greaterBucket := bucketOf(smaller), bucketOf(greater)
				if smallerBucket > greaterBucket {
					smaller, greater = greater, smaller
					smallerBucket, greaterBucket = greaterBucket, smallerBucket
				}
				offset := (int(fold.Indices[smaller])*leafCount + int(fold.Indices[greater])) * bucketCount
				out.PairWeights[offset+int(smallerBucket)].SmallerBorderWeightSum += pair.Weight
				out.PairWeights[offset+int(greaterBucket)].GreaterBorderWeightSum += pair.Weight
			}
		},
		func(out *PairwiseStats, parts []PairwiseStats) {
			for _, part := range parts {
				out.Add(part)
			}
		},
		&output,
	)
	return output
}

//calculatePairwiseScore solves the regularized pairwise system of the 2*LeafCount virtual leaves
//for every border and scores it with b^T x. A singular system scores 0.
func calculatePairwiseScore(stats PairwiseStats, l2Regularizer, nonDiagRegularizer float64, calcer *PairwiseScoreCalcer) {
	leafCount, bucketCount := stats.LeafCount, stats.BucketCount
	splitsCount := bucketCount - 1
	calcer.SetSplitsCount(splitsCount)
	n := 2 * leafCount

	falseDers := make([]float64, leafCount)
	totalDers := make([]float64, leafCount)
	for leaf := 0; leaf < leafCount; leaf++ {
		for bucket := 0; bucket < bucketCount; bucket++ {
			totalDers[leaf] += stats.DerSums[leaf*bucketCount+bucket]
		}
	}
	smaller := make([]float64, leafCount*leafCount)
	greater := make([]float64, leafCount*leafCount)
	total := make([]float64, leafCount*leafCount)
	for edge := range total {
		for bucket := 0; bucket < bucketCount; bucket++ {
			total[edge] += stats.PairWeights[edge*bucketCount+bucket].SmallerBorderWeightSum
		}
	}

	b := mat.NewVecDense(n, nil)
	for splitIdx := 0; splitIdx < splitsCount; splitIdx++ {
		system := mat.NewSymDense(n, nil)
		addEdge := func(u, v int, weight float64) {
			if u == v || weight == 0 {
				return
			}
			system.SetSym(u, u, system.At(u, u)+weight)
			system.SetSym(v, v, system.At(v, v)+weight)
			system.SetSym(u, v, system.At(u, v)-weight)
		}
		for leaf := 0; leaf < leafCount; leaf++ {
			falseDers[leaf] += stats.DerSums[leaf*bucketCount+splitIdx]
			b.SetVec(leaf, falseDers[leaf])
			b.SetVec(leaf+leafCount, totalDers[leaf]-falseDers[leaf])
		}
		for smallerLeaf := 0; smallerLeaf < leafCount; smallerLeaf++ {
			for greaterLeaf := 0; greaterLeaf < leafCount; greaterLeaf++ {
				edge := smallerLeaf*leafCount + greaterLeaf
				pairWeights := stats.PairWeights[edge*bucketCount+splitIdx]
				smaller[edge] += pairWeights.SmallerBorderWeightSum
				greater[edge] += pairWeights.GreaterBorderWeightSum
				addEdge(smallerLeaf, greaterLeaf, greater[edge])
				addEdge(smallerLeaf, greaterLeaf+leafCount, smaller[edge]-greater[edge])
				addEdge(smallerLeaf+leafCount, greaterLeaf+leafCount, total[edge]-smaller[edge])
			}
		}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				reg := -nonDiagRegularizer / float64(n)
				if i == j {
					reg += l2Regularizer + nonDiagRegularizer
				}
				system.SetSym(i, j, system.At(i, j)+reg)
			}
		}

		var chol mat.Cholesky
		if !chol.Factorize(system) {
			continue
		}
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, b); err != nil {
			continue
		}
		calcer.SetScore(splitIdx, mat.Dot(b, &x))
	}
}
