package obl

import (
	"fmt"
	"math"
)

//ScoreCalcer collects one score per split candidate. Higher is better.
type ScoreCalcer interface {
	SetSplitsCount(splitsCount int)
	SplitsCount() int
	Scores() []float64
}

//PointwiseScoreCalcer accumulates scores leaf by leaf from bucket statistics.
//The leaf value estimate is the ridge average, see CalcAverage.
type PointwiseScoreCalcer interface {
	ScoreCalcer
	SetL2Regularizer(l2Regularizer float64)
	//AddLeafPlain adds both children of a leaf using the weighted sums.
	AddLeafPlain(splitIdx int, falseStats, trueStats BucketStats)
	//AddLeafOrdered adds both children of a leaf estimating values on the body sums.
	AddLeafOrdered(splitIdx int, falseStats, trueStats BucketStats)
	//AddLeaf adds one leaf with a known value.
	AddLeaf(splitIdx int, leafApprox float64, leafStats BucketStats)
}

//CalcAverage returns the ridge regularized leaf value.
func CalcAverage(sumDelta, count, l2Regularizer float64) float64 {
	if count > 0 {
		return sumDelta / (count + l2Regularizer)
	}
	return 0
}

//NewScoreCalcer creates a pointwise score calcer by its name.
func NewScoreCalcer(scoreFunction ScoreFunction) (PointwiseScoreCalcer, error) {
	switch scoreFunction {
	case Cosine:
		return &CosineScoreCalcer{}, nil
	case L2:
		return &L2ScoreCalcer{}, nil
	}
	return nil, fmt.Errorf("%w: %q is not a pointwise score function", ErrUnsupportedScoreFunction, scoreFunction)
}

type pointwiseBase struct {
	l2Regularizer float64
}

func (base *pointwiseBase) SetL2Regularizer(l2Regularizer float64) {
	base.l2Regularizer = l2Regularizer
}

//CosineScoreCalcer scores a split by the cosine between the leaf values and the derivatives.
type CosineScoreCalcer struct {
	pointwiseBase
	numerators   []float64
	denominators []float64
}

func (calcer *CosineScoreCalcer) SetSplitsCount(splitsCount int) {
	calcer.numerators = make([]float64, splitsCount)
	calcer.denominators = make([]float64, splitsCount)
	for ind := range calcer.denominators {
		calcer.denominators[ind] = 1e-100
	}
}

func (calcer *CosineScoreCalcer) SplitsCount() int {
	return len(calcer.numerators)
}

func (calcer *CosineScoreCalcer) Scores() []float64 {
	scores := make([]float64, len(calcer.numerators))
	for ind := range scores {
		scores[ind] = calcer.numerators[ind] / math.Sqrt(calcer.denominators[ind])
	}
	return scores
}

func (calcer *CosineScoreCalcer) AddLeaf(splitIdx int, leafApprox float64, leafStats BucketStats) {
	calcer.numerators[splitIdx] += leafApprox * leafStats.SumWeightedDelta
	calcer.denominators[splitIdx] += leafApprox * leafApprox * leafStats.SumWeight
}

func (calcer *CosineScoreCalcer) AddLeafPlain(splitIdx int, falseStats, trueStats BucketStats) {
	calcer.AddLeaf(splitIdx, CalcAverage(falseStats.SumWeightedDelta, falseStats.SumWeight, calcer.l2Regularizer), falseStats)
	calcer.AddLeaf(splitIdx, CalcAverage(trueStats.SumWeightedDelta, trueStats.SumWeight, calcer.l2Regularizer), trueStats)
}

func (calcer *CosineScoreCalcer) AddLeafOrdered(splitIdx int, falseStats, trueStats BucketStats) {
	calcer.AddLeaf(splitIdx, CalcAverage(falseStats.SumDelta, falseStats.Count, calcer.l2Regularizer), falseStats)
	calcer.AddLeaf(splitIdx, CalcAverage(trueStats.SumDelta, trueStats.Count, calcer.l2Regularizer), trueStats)
}

//L2ScoreCalcer scores a split by the decrease of the squared error of the leaf values.
type L2ScoreCalcer struct {
	pointwiseBase
	scores []float64
}

func (calcer *L2ScoreCalcer) SetSplitsCount(splitsCount int) {
	calcer.scores = make([]float64, splitsCount)
}

func (calcer *L2ScoreCalcer) SplitsCount() int {
	return len(calcer.scores)
}

func (calcer *L2ScoreCalcer) Scores() []float64 {
	return append([]float64(nil), calcer.scores...)
}

func (calcer *L2ScoreCalcer) AddLeaf(splitIdx int, leafApprox float64, leafStats BucketStats) {
	calcer.scores[splitIdx] += 2*leafApprox*leafStats.SumWeightedDelta - leafApprox*leafApprox*leafStats.SumWeight
}

func (calcer *L2ScoreCalcer) AddLeafPlain(splitIdx int, falseStats, trueStats BucketStats) {
	calcer.AddLeaf(splitIdx, CalcAverage(falseStats.SumWeightedDelta, falseStats.SumWeight, calcer.l2Regularizer), falseStats)
	calcer.AddLeaf(splitIdx, CalcAverage(trueStats.SumWeightedDelta, trueStats.SumWeight, calcer.l2Regularizer), trueStats)
}

func (calcer *L2ScoreCalcer) AddLeafOrdered(splitIdx int, falseStats, trueStats BucketStats) {
	calcer.AddLeaf(splitIdx, CalcAverage(falseStats.SumDelta, falseStats.Count, calcer.l2Regularizer), falseStats)
	calcer.AddLeaf(splitIdx, CalcAverage(trueStats.SumDelta, trueStats.Count, calcer.l2Regularizer), trueStats)
}
