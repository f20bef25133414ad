package obl

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
)

//TreeGrower grows one oblivious tree level by level with a Scorer.
type TreeGrower struct {
	Scorer *Scorer
	Logger *slog.Logger
}

//NewTreeGrower creates a grower sharing the logger of the scorer.
func NewTreeGrower(scorer *Scorer) *TreeGrower {
	return &TreeGrower{Scorer: scorer, Logger: scorer.Logger}
}

type bestCandidate struct {
	ensemble SplitEnsemble
	splitIdx int
	score    float64
	found    bool
}

//Grow grows a tree of at most MaxDepth levels over fold. The fold itself is not modified.
//At every level the candidate with the highest score wins, the first seen one on ties.
//Growing stops early when no candidate has a finite score.
func (grower *TreeGrower) Grow(fold *Fold, ensembles []SplitEnsemble, pairs []CompetitorPair) (*ObliviousTree, error) {
	scorer := grower.Scorer
	options := &scorer.Options
	fold.validatedSizes()
	scorer.StartTree()

	current := *fold
	current.Indices = make([]uint32, fold.DocCount())

	tree := &ObliviousTree{}
	var prevLevelFold *Fold
	var treeConstraints []int
	for depth := 0; depth < options.MaxDepth; depth++ {
		level := &TreeLevel{
			Fold:                         &current,
			PrevLevelFold:                prevLevelFold,
			InitialFold:                  fold,
			Depth:                        depth,
			CurrTreeMonotonicConstraints: treeConstraints,
			Pairs:                        pairs,
		}

		var best bestCandidate
		for _, ensemble := range ensembles {
			scores, err := scorer.CalcScores(level, ensemble)
			if err != nil {
				return nil, fmt.Errorf("depth %d, %s: %w", depth, ensemble, err)
			}
			for splitIdx, score := range scores {
				if math.IsNaN(score) || math.IsInf(score, 0) {
					continue
				}
				if !best.found || score > best.score {
					best = bestCandidate{ensemble: ensemble, splitIdx: splitIdx, score: score, found: true}
				}
			}
		}
		if !best.found {
			grower.Logger.Info("no split candidates left", "depth", depth)
			break
		}

		split := scorer.Features.CandidateSplit(best.ensemble, best.splitIdx, options.OneHotMaxSize)
		grower.Logger.Info("split selected",
			"depth", depth,
			"ensemble", best.ensemble.String(),
			"split", split.String(),
			"score", best.score)
		tree.Splits = append(tree.Splits, TreeSplit{
			Depth:    depth,
			Split:    split,
			Ensemble: best.ensemble.String(),
			SplitIdx: best.splitIdx,
			Score:    best.score,
		})

		splitValues := scorer.Features.SplitValues(&current, best.ensemble, best.splitIdx, options.OneHotMaxSize)
		if scorer.Cache != nil {
			prevLevelFold = current.SelectSmallestSplitSide(depth, splitValues)
		}
		current.UpdateIndices(splitValues, depth)

		constraint := 0
		if split.Type == FloatFeature && len(options.MonotoneConstraints) > 0 {
			constraint = options.MonotoneConstraints[split.FeatureIdx]
		}
		treeConstraints = append(treeConstraints, constraint)
	}

	grower.setLeafValues(tree, &current, fold, treeConstraints)
	return tree, nil
}

//setLeafValues computes ridge leaf values from the plain sums of the first body tail and
//projects them onto the monotone orders of the tree.
func (grower *TreeGrower) setLeafValues(tree *ObliviousTree, current, initialFold *Fold, treeConstraints []int) {
	leafCount := tree.LeafCount()
	approxDim := current.ApproxDimension()
	bt := &current.BodyTails[0]
	initialBodyTail := initialFold.BodyTails[0]
	scaledL2 := scaledL2Regularizer(grower.Scorer.Options.L2Reg, initialBodyTail.BodySumWeight, initialBodyTail.BodyFinish)

	tree.LeafWeights = make([]float64, leafCount)
	tree.LeafDocCounts = make([]int, leafCount)
	sumDers := make([][]float64, approxDim)
	for dim := range sumDers {
		sumDers[dim] = make([]float64, leafCount)
	}
	for doc := 0; doc < bt.TailFinish; doc++ {
		leaf := current.Indices[doc]
		tree.LeafWeights[leaf] += current.SampleWeights[doc]
		tree.LeafDocCounts[leaf]++
		for dim := 0; dim < approxDim; dim++ {
			sumDers[dim][leaf] += bt.SampleWeightedDerivatives[dim][doc]
		}
	}

	orders := BuildMonotonicLinearOrdersOnLeafs(treeConstraints)
	regWeights := make([]float64, leafCount)
	floats.AddConst(scaledL2, floats.AddTo(regWeights, regWeights, tree.LeafWeights))

	tree.LeafValues = make([][]float64, leafCount)
	for leaf := range tree.LeafValues {
		tree.LeafValues[leaf] = make([]float64, approxDim)
	}
	values := make([]float64, leafCount)
	for dim := 0; dim < approxDim; dim++ {
		for leaf := 0; leaf < leafCount; leaf++ {
			values[leaf] = CalcAverage(sumDers[dim][leaf], tree.LeafWeights[leaf], scaledL2)
		}
		for _, order := range orders {
			CalcOneDimensionalIsotonicRegression(values, regWeights, order, values)
		}
		for leaf := 0; leaf < leafCount; leaf++ {
			tree.LeafValues[leaf][dim] = values[leaf]
		}
	}
	grower.Logger.Debug("leaf values calculated",
		"leaves", leafCount,
		"total_weight", floats.Sum(tree.LeafWeights))
}
