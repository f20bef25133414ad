package obl

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

//scenarioFeatures is one float feature with two borders over four documents.
func scenarioFeatures() *QuantizedFeatures {
	return NewFloatFeatures([][]uint32{{0, 1, 2, 1}}, []int{2})
}

//scenarioFold puts the first two documents into leaf 0 and the others into leaf 1.
func scenarioFold() *Fold {
	fold := NewPlainFold([][]float64{{-1, 2, 0.5, -0.5}}, nil)
	copy(fold.Indices, []uint32{0, 0, 1, 1})
	return fold
}

//randomDataset generates float features and a unit weight fold. Derivatives are multiples of 1/4,
//so all statistics sums are exact.
func randomDataset(seed int64, docCount int, borderCounts []int) (*QuantizedFeatures, *Fold) {
	rnd := rand.New(rand.NewSource(seed))
	columns := make([][]uint32, len(borderCounts))
	for feature, borderCount := range borderCounts {
		columns[feature] = make([]uint32, docCount)
		for doc := range columns[feature] {
			columns[feature][doc] = uint32(rnd.Intn(borderCount + 1))
		}
	}
	derivatives := make([]float64, docCount)
	for doc := range derivatives {
		derivatives[doc] = float64(rnd.Intn(17)-8) / 4
	}
	return NewFloatFeatures(columns, borderCounts), NewPlainFold([][]float64{derivatives}, nil)
}

func newTestScorer(t *testing.T, features *QuantizedFeatures, configure func(options *ScoringOptions)) *Scorer {
	t.Helper()
	options := DefaultScoringOptions()
	options.L2Reg = 1
	options.UseTreeLevelCaching = false
	if configure != nil {
		configure(&options)
	}
	scorer, err := NewScorer(features, options, nil, nil)
	require.NoError(t, err)
	return scorer
}

func floatEnsemble(featureIdx int) SingleFeature {
	return SingleFeature{Type: FloatFeature, FeatureIdx: featureIdx}
}
