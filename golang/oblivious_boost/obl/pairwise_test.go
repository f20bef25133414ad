package obl

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPairwiseScorer(t *testing.T, features *QuantizedFeatures) *Scorer {
	t.Helper()
	return newTestScorer(t, features, func(options *ScoringOptions) {
		options.ScoreFunction = Pairwise
		options.PairwiseNonDiagReg = 0.1
	})
}

func TestCalcPairwiseStats(t *testing.T) {
	features := NewFloatFeatures([][]uint32{{0, 1, 2, 0}}, []int{2})
	fold := NewPlainFold([][]float64{{1, 2, 3, 4}}, nil)
	copy(fold.Indices, []uint32{0, 1, 0, 1})
	pairs := []CompetitorPair{
		{Winner: 0, Loser: 1, Weight: 1},
		{Winner: 2, Loser: 3, Weight: 2},
	}

	stats := calcPairwiseStats(fold, features, floatEnsemble(0), pairs, 1, 1)
	assert.Equal(t, 2, stats.LeafCount)
	assert.Equal(t, 3, stats.BucketCount)
	assert.Equal(t, []float64{1, 0, 3, 4, 2, 0}, stats.DerSums)

	expected := make([]PairWeightStats, 12)
	expected[3].SmallerBorderWeightSum = 1
	expected[4].GreaterBorderWeightSum = 1
	expected[6].SmallerBorderWeightSum = 2
	expected[8].GreaterBorderWeightSum = 2
	assert.Equal(t, expected, stats.PairWeights)

	assert.Equal(t, stats, calcPairwiseStats(fold, features, floatEnsemble(0), pairs, 1, 3))
}

func TestCalcPairwiseStatsWorkerCountInvariance(t *testing.T) {
	features, fold := randomDataset(21, 200, []int{7})
	rnd := rand.New(rand.NewSource(21))
	for doc := range fold.Indices {
		fold.Indices[doc] = uint32(rnd.Intn(4))
	}
	pairs := make([]CompetitorPair, 500)
	for ind := range pairs {
		pairs[ind] = CompetitorPair{Winner: rnd.Intn(200), Loser: rnd.Intn(200), Weight: float64(rnd.Intn(4)+1) / 2}
	}
	sequential := calcPairwiseStats(fold, features, floatEnsemble(0), pairs, 2, 1)
	for _, workerCount := range []int{2, 3, 8} {
		assert.Equal(t, sequential, calcPairwiseStats(fold, features, floatEnsemble(0), pairs, 2, workerCount))
	}
}

func TestPairwiseScoreSingleBorder(t *testing.T) {
	features := NewFloatFeatures([][]uint32{{0, 1}}, []int{1})
	scorer := newPairwiseScorer(t, features)
	fold := NewPlainFold([][]float64{{1, -1}}, nil)

	level := &TreeLevel{Fold: fold, Pairs: []CompetitorPair{{Winner: 0, Loser: 1, Weight: 1}}}
	scores, err := scorer.CalcScores(level, floatEnsemble(0))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2 / 3.1}, scores, 1e-12)

	var stats PairwiseStats
	require.NoError(t, scorer.CalcStatsAndScores(level, floatEnsemble(0), nil, &stats, nil))
	assert.Equal(t, []float64{1, -1}, stats.DerSums)
}

func TestPairwiseScoresAreFinite(t *testing.T) {
	features, fold := randomDataset(4, 120, []int{5, 3})
	rnd := rand.New(rand.NewSource(4))
	for doc := range fold.Indices {
		fold.Indices[doc] = uint32(doc % 2)
	}
	pairs := make([]CompetitorPair, 300)
	for ind := range pairs {
		pairs[ind] = CompetitorPair{Winner: rnd.Intn(120), Loser: rnd.Intn(120), Weight: 1}
	}
	scorer := newPairwiseScorer(t, features)
	for feature := range features.FloatFeatures {
		scores, err := scorer.CalcScores(&TreeLevel{Fold: fold, Depth: 1, Pairs: pairs}, floatEnsemble(feature))
		require.NoError(t, err)
		require.Len(t, scores, features.FloatFeatures[feature].BorderCount)
		for _, score := range scores {
			assert.False(t, math.IsNaN(score) || math.IsInf(score, 0))
			assert.GreaterOrEqual(t, score, 0.0)
		}
	}
}

func TestPairwiseRejections(t *testing.T) {
	features := NewFloatFeatures([][]uint32{{0, 1}}, []int{1})
	features.CatFeatures = []CatFeatureColumn{{Values: NewCompressedColumnFitted([]uint32{0, 1}), UniqueValues: 2}}
	scorer := newPairwiseScorer(t, features)
	assert.Nil(t, scorer.Cache)
	level := &TreeLevel{Fold: NewPlainFold([][]float64{{1, -1}}, nil)}

	_, err := scorer.CalcScores(level, SingleFeature{Type: OneHotFeature})
	assert.True(t, errors.Is(err, ErrPairwiseUnsupportedEnsemble))
	_, err = scorer.CalcScores(level, testBundle())
	assert.True(t, errors.Is(err, ErrPairwiseUnsupportedEnsemble))

	var stats3d Stats3D
	assert.Error(t, scorer.CalcStatsAndScores(level, floatEnsemble(0), &stats3d, nil, nil))
	assert.Error(t, scorer.CalcStatsAndScores(level, floatEnsemble(0), nil, nil, &L2ScoreCalcer{}))

	options := DefaultScoringOptions()
	options.ScoreFunction = Pairwise
	options.BoostingType = Ordered
	_, err = NewScorer(features, options, nil, nil)
	assert.True(t, errors.Is(err, ErrUnsupportedScoreFunction))
}
