package obl

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketStatsCacheDirtyFlag(t *testing.T) {
	cache := NewBucketStatsCache(0)
	key := floatEnsemble(0).Key()

	stats, dirty := cache.GetStats(key, 8, 2, 0)
	require.True(t, dirty)
	require.Len(t, stats, 8)
	stats[3].SumWeight = 7

	stats, dirty = cache.GetStats(key, 8, 2, 1)
	assert.False(t, dirty)
	assert.Equal(t, 7.0, stats[3].SumWeight)

	_, dirty = cache.GetStats(key, 8, 2, 0)
	assert.True(t, dirty, "depth 0 always starts from scratch")

	cache.MarkDirty()
	_, dirty = cache.GetStats(key, 8, 2, 2)
	assert.True(t, dirty)
	_, dirty = cache.GetStats(key, 8, 2, 3)
	assert.False(t, dirty)

	assert.Equal(t, 1, cache.Len())
	cache.Reset()
	assert.Equal(t, 0, cache.Len())
}

func TestBucketStatsCacheLevelGap(t *testing.T) {
	cache := NewBucketStatsCache(0)
	key := floatEnsemble(0).Key()

	cache.GetStats(key, 8, 2, 0)
	_, dirty := cache.GetStats(key, 8, 2, 2)
	assert.True(t, dirty, "statistics of depth 0 are not the parent of depth 2")
	_, dirty = cache.GetStats(key, 8, 2, 2)
	assert.True(t, dirty, "the same level twice is recalculated")
	_, dirty = cache.GetStats(key, 8, 2, 3)
	assert.False(t, dirty)

	assert.NotPanics(t, func() { cache.GetStats(key, 6, 3, 1) }, "a level gap allows a new layout")
}

func TestBucketStatsCacheBucketCountChange(t *testing.T) {
	cache := NewBucketStatsCache(4)
	key := floatEnsemble(1).Key()
	cache.GetStats(key, 6, 3, 0)

	assert.Panics(t, func() { cache.GetStats(key, 8, 4, 1) })

	stats, dirty := cache.GetStats(key, 8, 4, 0)
	assert.True(t, dirty)
	assert.Len(t, stats, 8)

	cache.MarkDirty()
	stats, dirty = cache.GetStats(key, 4, 2, 3)
	assert.True(t, dirty)
	assert.Len(t, stats, 4)
}

func TestBucketStatsCacheEviction(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	cache := NewBucketStatsCache(2)
	cache.onEvict = metrics.observeEviction

	for feature := 0; feature < 3; feature++ {
		cache.GetStats(floatEnsemble(feature).Key(), 2, 1, 0)
	}
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 1, cache.Evictions())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheEvictions))

	_, dirty := cache.GetStats(floatEnsemble(0).Key(), 2, 1, 1)
	assert.True(t, dirty, "an evicted ensemble is recalculated")

	cache.Reset()
	assert.Equal(t, 0, cache.Evictions())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheEvictions), "reset is not an eviction")
}

func TestStatsInUse(t *testing.T) {
	stats := make([]BucketStats, 8)
	for ind := range stats {
		stats[ind].SumWeight = float64(ind)
	}
	compact := StatsInUse(2, 4, 2, stats)
	require.Len(t, compact, 4)
	assert.Equal(t, []float64{0, 1, 4, 5}, []float64{compact[0].SumWeight, compact[1].SumWeight, compact[2].SumWeight, compact[3].SumWeight})
	assert.Panics(t, func() { StatsInUse(2, 4, 5, stats) })
}

//levelStats exports statistics of an ensemble at the current level of fold.
func levelStats(t *testing.T, scorer *Scorer, level *TreeLevel, ensemble SplitEnsemble) Stats3D {
	t.Helper()
	var stats3d Stats3D
	require.NoError(t, scorer.CalcStatsAndScores(level, ensemble, &stats3d, nil, nil))
	return stats3d
}

func TestCachedStatsMatchScratch(t *testing.T) {
	features, initialFold := randomDataset(3, 97, []int{4, 9})

	scratch := newTestScorer(t, features, nil)
	cached := newTestScorer(t, features, func(options *ScoringOptions) {
		options.UseTreeLevelCaching = true
	})
	require.NotNil(t, cached.Cache)
	require.Nil(t, scratch.Cache)

	for _, splitIdx := range []int{0, 2, 3} {
		cached.StartTree()
		fold := *initialFold
		fold.Indices = make([]uint32, initialFold.DocCount())

		level := &TreeLevel{Fold: &fold, Depth: 0}
		for feature := range features.FloatFeatures {
			levelStats(t, cached, level, floatEnsemble(feature))
		}

		splitValues := features.SplitValues(&fold, floatEnsemble(0), splitIdx, 2)
		prevLevelFold := fold.SelectSmallestSplitSide(0, splitValues)
		fold.UpdateIndices(splitValues, 0)

		level = &TreeLevel{Fold: &fold, PrevLevelFold: prevLevelFold, InitialFold: initialFold, Depth: 1}
		for feature := range features.FloatFeatures {
			expected := levelStats(t, scratch, level, floatEnsemble(feature))
			got := levelStats(t, cached, level, floatEnsemble(feature))
			require.Equal(t, expected.Stats, got.Stats, "split %d, feature %d, side %v", splitIdx, feature, prevLevelFold.SmallestSplitSideValue)
		}
	}
}

func TestCachedStatsAfterSkippedLevel(t *testing.T) {
	features, initialFold := randomDataset(5, 120, []int{7, 5})
	scratch := newTestScorer(t, features, nil)
	cached := newTestScorer(t, features, func(options *ScoringOptions) {
		options.UseTreeLevelCaching = true
	})
	cached.StartTree()

	fold := *initialFold
	fold.Indices = make([]uint32, initialFold.DocCount())
	level := &TreeLevel{Fold: &fold, Depth: 0}
	for feature := range features.FloatFeatures {
		levelStats(t, cached, level, floatEnsemble(feature))
	}

	var prevLevelFold *Fold
	for depth, splitIdx := range []int{2, 4} {
		splitValues := features.SplitValues(&fold, floatEnsemble(0), splitIdx, 2)
		prevLevelFold = fold.SelectSmallestSplitSide(depth, splitValues)
		fold.UpdateIndices(splitValues, depth)
		if depth == 0 {
			//feature 1 is not scored at depth 1
			level = &TreeLevel{Fold: &fold, PrevLevelFold: prevLevelFold, InitialFold: initialFold, Depth: 1}
			levelStats(t, cached, level, floatEnsemble(0))
		}
	}

	level = &TreeLevel{Fold: &fold, PrevLevelFold: prevLevelFold, InitialFold: initialFold, Depth: 2}
	for feature := range features.FloatFeatures {
		expected := levelStats(t, scratch, level, floatEnsemble(feature))
		got := levelStats(t, cached, level, floatEnsemble(feature))
		require.Equal(t, expected.Stats, got.Stats, "feature %d", feature)
		for _, stats := range got.Stats {
			assert.GreaterOrEqual(t, stats.SumWeight, 0.0)
		}
	}
}
