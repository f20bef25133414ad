package obl

import (
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
)

//DefaultCacheCapacity is the number of split ensembles kept by a cache created with capacity 0.
const DefaultCacheCapacity = 4096

type cacheEntry struct {
	stats       []BucketStats
	bucketCount int
	depth       int
	dirty       bool
}

//BucketStatsCache keeps statistics of split ensembles across the levels of one tree, so that
//the statistics at a new level are derived from the parent level and the smaller child only.
//It is used by one tree growing goroutine at a time.
type BucketStatsCache struct {
	entries   *lru.Cache[EnsembleKey, *cacheEntry]
	evictions int
	onEvict   func()
	purging   bool
}

//NewBucketStatsCache creates a cache holding at most capacity split ensembles.
func NewBucketStatsCache(capacity int) *BucketStatsCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	cache := &BucketStatsCache{}
	entries, err := lru.NewWithEvict[EnsembleKey, *cacheEntry](capacity, cache.handleEviction)
	if err != nil {
		log.Panicf("stats cache: %v", err)
	}
	cache.entries = entries
	return cache
}

func (cache *BucketStatsCache) handleEviction(_ EnsembleKey, _ *cacheEntry) {
	if cache.purging {
		return
	}
	cache.evictions++
	if cache.onEvict != nil {
		cache.onEvict()
	}
}

//Reset drops all entries. It is called when a new tree starts.
func (cache *BucketStatsCache) Reset() {
	cache.purging = true
	cache.entries.Purge()
	cache.purging = false
	cache.evictions = 0
}

//MarkDirty forces recalculation from scratch for every entry at the next GetStats.
func (cache *BucketStatsCache) MarkDirty() {
	for _, key := range cache.entries.Keys() {
		if entry, ok := cache.entries.Peek(key); ok {
			entry.dirty = true
		}
	}
}

//Len returns the number of cached ensembles.
func (cache *BucketStatsCache) Len() int {
	return cache.entries.Len()
}

//Evictions returns the number of entries evicted since the last Reset.
func (cache *BucketStatsCache) Evictions() int {
	return cache.evictions
}

//GetStats returns the statistics array of an ensemble with at least statsCount slots.
//dirty reports that the content can not be reused and must be recalculated from scratch.
//An entry is reused only when it holds the statistics of the level right above depth.
//A clean entry at depth > 0 must keep the bucket count it was created with.
func (cache *BucketStatsCache) GetStats(key EnsembleKey, statsCount, bucketCount, depth int) ([]BucketStats, bool) {
	entry, ok := cache.entries.Get(key)
	if !ok {
		entry = &cacheEntry{stats: make([]BucketStats, statsCount), bucketCount: bucketCount, depth: depth}
		cache.entries.Add(key, entry)
		return entry.stats, true
	}
	dirty := entry.dirty || depth == 0 || depth != entry.depth+1
	if !dirty && (entry.bucketCount != bucketCount || len(entry.stats) != statsCount) {
		log.Panicf("cached %v has bucket count %d and %d stats at depth %d, requested %d and %d",
			key, entry.bucketCount, len(entry.stats), depth, bucketCount, statsCount)
	}
	if len(entry.stats) != statsCount {
		entry.stats = make([]BucketStats, statsCount)
	}
	entry.bucketCount = bucketCount
	entry.depth = depth
	entry.dirty = false
	return entry.stats, dirty
}

//StatsInUse compacts a cached array with blockCount blocks of splitStatsCount slots to blocks
//of the statsInUse slots filled at the current depth.
func StatsInUse(blockCount, splitStatsCount, statsInUse int, stats []BucketStats) []BucketStats {
	if statsInUse > splitStatsCount {
		log.Panicf("stats in use %d > split stats count %d", statsInUse, splitStatsCount)
	}
	result := make([]BucketStats, 0, blockCount*statsInUse)
	for block := 0; block < blockCount; block++ {
		begin := block * splitStatsCount
		result = append(result, stats[begin:begin+statsInUse]...)
	}
	return result
}
