package obl

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"
)

//TreeLevel is the state of the growing tree at one level.
//PrevLevelFold is the view returned by Fold.SelectSmallestSplitSide for the split of the previous level,
//it is used only by the depth cache. InitialFold gives the weights of the regularizer scaling and
//defaults to Fold.
type TreeLevel struct {
	Fold                         *Fold
	PrevLevelFold                *Fold
	InitialFold                  *Fold
	Depth                        int
	CurrTreeMonotonicConstraints []int
	Pairs                        []CompetitorPair
}

//Scorer calculates bucket statistics and split scores for one tree at a time.
type Scorer struct {
	Features *QuantizedFeatures
	Options  ScoringOptions
	Cache    *BucketStatsCache
	Metrics  *Metrics
	Logger   *slog.Logger
}

//NewScorer validates options and creates a scorer. metrics and logger may be nil.
func NewScorer(features *QuantizedFeatures, options ScoringOptions, metrics *Metrics, logger *slog.Logger) (*Scorer, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if len(options.MonotoneConstraints) > 0 && len(options.MonotoneConstraints) != features.FloatFeatureCount() {
		return nil, fmt.Errorf("%w: %d monotone constraints for %d float features",
			ErrInvalidOptions, len(options.MonotoneConstraints), features.FloatFeatureCount())
	}
	if logger == nil {
		logger = slog.Default()
	}
	scorer := &Scorer{
		Features: features,
		Options:  options,
		Metrics:  metrics,
		Logger:   logger,
	}
	if options.UseTreeLevelCaching && options.ScoreFunction != Pairwise {
		scorer.Cache = NewBucketStatsCache(options.CacheCapacity)
		scorer.Cache.onEvict = metrics.observeEviction
	}
	return scorer, nil
}

//StartTree drops cached statistics of the previous tree.
func (scorer *Scorer) StartTree() {
	if scorer.Cache != nil {
		scorer.Cache.Reset()
	}
}

//NewScoreCalcer creates the calcer matching the configured score function.
func (scorer *Scorer) NewScoreCalcer() ScoreCalcer {
	if scorer.Options.ScoreFunction == Pairwise {
		return &PairwiseScoreCalcer{}
	}
	calcer, err := NewScoreCalcer(scorer.Options.ScoreFunction)
	if err != nil {
		log.Panicf("validated options: %v", err)
	}
	return calcer
}

//CalcScores returns the scores of every candidate of an ensemble at the given level.
func (scorer *Scorer) CalcScores(level *TreeLevel, ensemble SplitEnsemble) ([]float64, error) {
	calcer := scorer.NewScoreCalcer()
	if err := scorer.CalcStatsAndScores(level, ensemble, nil, nil, calcer); err != nil {
		return nil, err
	}
	return calcer.Scores(), nil
}

//CalcStatsAndScores calculates statistics of an ensemble and optionally exports them into stats3d
//or pairwiseStats and scores the candidates with calcer. At least one output must be given.
func (scorer *Scorer) CalcStatsAndScores(
	level *TreeLevel,
	ensemble SplitEnsemble,
	stats3d *Stats3D,
	pairwiseStats *PairwiseStats,
	calcer ScoreCalcer,
) error {
	if stats3d == nil && pairwiseStats == nil && calcer == nil {
		return errors.New("stats3d, pairwiseStats and calcer are empty, nothing to calculate")
	}
	options := &scorer.Options
	bucketCount := scorer.Features.BucketCount(ensemble)
	indexer := NewStatsIndexer(bucketCount)
	depth := level.Depth

	if options.ScoreFunction == Pairwise {
		if stats3d != nil {
			return errors.New("pairwise scoring is incompatible with stats3d calculation")
		}
		if err := checkPairwiseEnsemble(ensemble); err != nil {
			return err
		}
		started := time.Now()
		stats := calcPairwiseStats(level.Fold, scorer.Features, ensemble, level.Pairs, depth, options.WorkerCount)
		scorer.Metrics.observeStatsCalc(modePairwise, level.Fold.DocCount(), started)
		if pairwiseStats != nil {
			*pairwiseStats = stats
		}
		if calcer != nil {
			pairwiseCalcer, ok := calcer.(*PairwiseScoreCalcer)
			if !ok {
				return fmt.Errorf("%w: %T can not score pairwise statistics", ErrUnsupportedScoreFunction, calcer)
			}
			calculatePairwiseScore(stats, options.L2Reg, options.PairwiseNonDiagReg, pairwiseCalcer)
			scorer.Metrics.observeSplitsScored(pairwiseCalcer.SplitsCount())
		}
		return nil
	}
	if pairwiseStats != nil {
		return errors.New("pointwise scoring is incompatible with pairwiseStats calculation")
	}

	req := &statsRequest{
		fold:        level.Fold,
		features:    scorer.Features,
		ensemble:    ensemble,
		indexer:     indexer,
		isPlainMode: options.IsPlainMode(),
		depth:       depth,
		workerCount: options.WorkerCount,
	}
	blockCount := level.Fold.BodyTailCount() * level.Fold.ApproxDimension()
	var splitStats []BucketStats
	if scorer.Cache == nil {
		req.splitStatsCount = indexer.CalcSize(depth)
		splitStats = make([]BucketStats, blockCount*req.splitStatsCount)
		scorer.calcStats(req, splitStats, modeScratch)
	} else {
		req.splitStatsCount = indexer.CalcSize(options.MaxDepth)
		var dirty bool
		splitStats, dirty = scorer.Cache.GetStats(ensemble.Key(), blockCount*req.splitStatsCount, bucketCount, depth)
		if depth == 0 || dirty {
			scorer.calcStats(req, splitStats, modeScratch)
		} else {
			if level.PrevLevelFold == nil {
				log.Panicf("cached statistics of %s at depth %d need the previous level fold", ensemble, depth)
			}
			req.fold = level.PrevLevelFold
			req.isCaching = true
			scorer.calcStats(req, splitStats, modeCached)
		}
	}
	if stats3d != nil {
		*stats3d = Stats3D{
			Stats:        StatsInUse(blockCount, req.splitStatsCount, indexer.CalcSize(depth), splitStats),
			BucketCount:  bucketCount,
			MaxLeafCount: 1 << uint(depth),
			Ensemble:     ensemble,
		}
	}
	if calcer == nil {
		return nil
	}

	pointwiseCalcer, ok := calcer.(PointwiseScoreCalcer)
	if !ok {
		return fmt.Errorf("%w: %T can not score bucket statistics", ErrUnsupportedScoreFunction, calcer)
	}
	splitsCount := CalcSplitsCount(ensemble, bucketCount, options.OneHotMaxSize)
	pointwiseCalcer.SetSplitsCount(splitsCount)
	candidateConstraints := scorer.candidateMonotonicConstraints(ensemble, splitsCount, level.CurrTreeMonotonicConstraints)

	initialFold := level.InitialFold
	if initialFold == nil {
		initialFold = level.Fold
	}
	calculateNonPairwiseScore(
		initialFold,
		level.Fold.BodyTailCount(),
		level.Fold.ApproxDimension(),
		ensemble,
		options.IsPlainMode(),
		1<<uint(depth),
		options.L2Reg,
		options.OneHotMaxSize,
		indexer,
		splitStats,
		req.splitStatsCount,
		level.CurrTreeMonotonicConstraints,
		candidateConstraints,
		pointwiseCalcer,
	)
	scorer.Metrics.observeSplitsScored(splitsCount)
	return nil
}

func (scorer *Scorer) calcStats(req *statsRequest, stats []BucketStats, mode string) {
	started := time.Now()
	calcStats(req, stats)
	scorer.Metrics.observeStatsCalc(mode, req.fold.DocCount(), started)
	scorer.Logger.Debug("bucket statistics calculated",
		"ensemble", req.ensemble.String(),
		"depth", req.depth,
		"mode", mode,
		"bucket_count", req.indexer.BucketCount,
		"documents", req.fold.DocCount(),
		"elapsed", time.Since(started))
}

//candidateMonotonicConstraints returns the constraint of every candidate, or nil when neither the
//tree nor the candidates are constrained.
func (scorer *Scorer) candidateMonotonicConstraints(ensemble SplitEnsemble, splitsCount int, currTreeConstraints []int) []int {
	monotone := scorer.Options.MonotoneConstraints
	engaged := false
	for _, constraint := range currTreeConstraints {
		engaged = engaged || constraint != 0
	}
	var candidateConstraints []int
	if len(monotone) > 0 {
		candidateConstraints = make([]int, splitsCount)
		for splitIdx := range candidateConstraints {
			split := scorer.Features.CandidateSplit(ensemble, splitIdx, scorer.Options.OneHotMaxSize)
			if split.Type == FloatFeature {
				candidateConstraints[splitIdx] = monotone[split.FeatureIdx]
				engaged = engaged || candidateConstraints[splitIdx] != 0
			}
		}
	}
	if !engaged {
		return nil
	}
	if candidateConstraints == nil {
		candidateConstraints = make([]int, splitsCount)
	}
	return candidateConstraints
}

//scaledL2Regularizer scales the regularizer to the mean document weight of a body.
func scaledL2Regularizer(l2Regularizer, sumAllWeights float64, docCount int) float64 {
	if docCount == 0 {
		return l2Regularizer
	}
	return l2Regularizer * (sumAllWeights / float64(docCount))
}

func calculateNonPairwiseScore(
	initialFold *Fold,
	bodyTailCount, approxDimension int,
	ensemble SplitEnsemble,
	isPlainMode bool,
	leafCount int,
	l2Regularizer float64,
	oneHotMaxSize uint32,
	indexer StatsIndexer,
	splitStats []BucketStats,
	splitStatsCount int,
	currTreeConstraints, candidateConstraints []int,
	calcer PointwiseScoreCalcer,
) {
	for bodyTailIdx := 0; bodyTailIdx < bodyTailCount; bodyTailIdx++ {
		bt := initialFold.BodyTails[bodyTailIdx]
		scaledL2 := scaledL2Regularizer(l2Regularizer, bt.BodySumWeight, bt.BodyFinish)
		calcer.SetL2Regularizer(scaledL2)
		for dim := 0; dim < approxDimension; dim++ {
			offset := (bodyTailIdx*approxDimension + dim) * splitStatsCount
			updateScores(
				splitStats[offset:offset+splitStatsCount],
				leafCount,
				indexer,
				ensemble,
				scaledL2,
				isPlainMode,
				oneHotMaxSize,
				currTreeConstraints,
				candidateConstraints,
				calcer,
			)
		}
	}
}

//updateScores derives (true, false) statistics of every candidate in every leaf and adds them to the calcer.
func updateScores(
	stats []BucketStats,
	leafCount int,
	indexer StatsIndexer,
	ensemble SplitEnsemble,
	scaledL2 float64,
	isPlainMode bool,
	oneHotMaxSize uint32,
	currTreeConstraints, candidateConstraints []int,
	calcer PointwiseScoreCalcer,
) {
	var store *monotonicLeafStore
	if candidateConstraints != nil {
		store = newMonotonicLeafStore(calcer.SplitsCount(), leafCount)
	}
	addSplit := func(trueStats, falseStats BucketStats, splitIdx int) {
		switch {
		case store != nil:
			store.add(isPlainMode, scaledL2, trueStats, falseStats, splitIdx)
		case isPlainMode:
			calcer.AddLeafPlain(splitIdx, falseStats, trueStats)
		default:
			calcer.AddLeafOrdered(splitIdx, falseStats, trueStats)
		}
	}
	bucketCount := indexer.BucketCount

	switch ensemble := ensemble.(type) {
	case SingleFeature:
		for leaf := 0; leaf < leafCount; leaf++ {
			leafStats := stats[indexer.Index(leaf, 0):indexer.Index(leaf+1, 0)]
			var allStats BucketStats
			for _, bucketStats := range leafStats {
				allStats.Add(bucketStats)
			}
			if ensemble.Type == OneHotFeature {
				for bucket := 0; bucket < bucketCount; bucket++ {
					falseStats := allStats
					falseStats.Remove(leafStats[bucket])
					addSplit(leafStats[bucket], falseStats, bucket)
				}
				continue
			}
			trueStats := allStats
			var falseStats BucketStats
			for splitIdx := 0; splitIdx < bucketCount-1; splitIdx++ {
				falseStats.Add(leafStats[splitIdx])
				trueStats.Remove(leafStats[splitIdx])
				addSplit(trueStats, falseStats, splitIdx)
			}
		}
	case BinaryPack:
		binaryFeaturesCount := ValueBitCount(uint32(bucketCount - 1))
		for leaf := 0; leaf < leafCount; leaf++ {
			for bit := 0; bit < binaryFeaturesCount; bit++ {
				var trueStats, falseStats BucketStats
				for bucket := 0; bucket < bucketCount; bucket++ {
					if (bucket>>uint(bit))&1 == 1 {
						trueStats.Add(stats[indexer.Index(leaf, bucket)])
					} else {
						falseStats.Add(stats[indexer.Index(leaf, bucket)])
					}
				}
				addSplit(trueStats, falseStats, bit)
			}
		}
	case ExclusiveBundle:
		partsStats := make([]BucketStats, len(ensemble.Parts))
		for leaf := 0; leaf < leafCount; leaf++ {
			allStats := stats[indexer.Index(leaf, bucketCount-1)]
			for partIdx, part := range ensemble.Parts {
				partsStats[partIdx] = BucketStats{}
				for bucket := part.Bounds.Begin; bucket < part.Bounds.End; bucket++ {
					partsStats[partIdx].Add(stats[indexer.Index(leaf, bucket)])
				}
				allStats.Add(partsStats[partIdx])
			}

			binsBegin := 0
			for partIdx, part := range ensemble.Parts {
				if !UseForCalcScores(part, oneHotMaxSize) {
					continue
				}
				bounds := part.Bounds
				if part.FeatureType == Float {
					trueStats := partsStats[partIdx]
					falseStats := allStats
					falseStats.Remove(partsStats[partIdx])
					for splitIdx := 0; splitIdx < bounds.Size(); splitIdx++ {
						if splitIdx != 0 {
							binStats := stats[indexer.Index(leaf, bounds.Begin+splitIdx-1)]
							falseStats.Add(binStats)
							trueStats.Remove(binStats)
						}
						addSplit(trueStats, falseStats, binsBegin+splitIdx)
					}
					binsBegin += bounds.Size()
					continue
				}

				//a split on the default value of a binary feature equals the split on its only other value
				if bounds.Size() > 1 {
					trueStats := allStats
					trueStats.Remove(partsStats[partIdx])
					addSplit(trueStats, partsStats[partIdx], binsBegin)
				}
				for bin := 0; bin < bounds.Size(); bin++ {
					binStats := stats[indexer.Index(leaf, bounds.Begin+bin)]
					falseStats := allStats
					falseStats.Remove(binStats)
					addSplit(binStats, falseStats, binsBegin+bin+1)
				}
				binsBegin += bounds.Size() + 1
			}
		}
	default:
		log.Panicf("unexpected split ensemble %T", ensemble)
	}

	if store != nil {
		store.score(currTreeConstraints, candidateConstraints, calcer)
	}
}

//GetScores recalculates plain mode scores from exported statistics. Only Cosine and L2 are supported.
func GetScores(stats3d *Stats3D, depth int, sumAllWeights float64, allDocCount int, options ScoringOptions) ([]float64, error) {
	calcer, err := NewScoreCalcer(options.ScoreFunction)
	if err != nil {
		return nil, err
	}
	if depth < 0 || 1<<uint(depth) > stats3d.MaxLeafCount {
		return nil, fmt.Errorf("depth %d does not fit %d exported leaves", depth, stats3d.MaxLeafCount)
	}
	splitStatsCount := stats3d.BucketCount * stats3d.MaxLeafCount
	indexer := NewStatsIndexer(stats3d.BucketCount)
	calcer.SetSplitsCount(CalcSplitsCount(stats3d.Ensemble, stats3d.BucketCount, options.OneHotMaxSize))

	scaledL2 := scaledL2Regularizer(options.L2Reg, sumAllWeights, allDocCount)
	calcer.SetL2Regularizer(scaledL2)
	for block := 0; block < stats3d.BlockCount(); block++ {
		updateScores(
			stats3d.Stats[block*splitStatsCount:(block+1)*splitStatsCount],
			1<<uint(depth),
			indexer,
			stats3d.Ensemble,
			scaledL2,
			true,
			options.OneHotMaxSize,
			nil,
			nil,
			calcer,
		)
	}
	return calcer.Scores(), nil
}
