package obl

//BucketStats accumulates statistics of the documents falling into one (leaf, bucket) slot.
//Plain boosting fills SumWeightedDelta and SumWeight. Ordered boosting also fills SumDelta and
//Count from the body documents.
type BucketStats struct {
	SumWeightedDelta float64
	SumWeight        float64
	SumDelta         float64
	Count            float64
}

//Add accumulates other into the receiver.
func (stats *BucketStats) Add(other BucketStats) {
	stats.SumWeightedDelta += other.SumWeightedDelta
	stats.SumWeight += other.SumWeight
	stats.SumDelta += other.SumDelta
	stats.Count += other.Count
}

//Remove subtracts other from the receiver. other must have been added before.
func (stats *BucketStats) Remove(other BucketStats) {
	stats.SumWeightedDelta -= other.SumWeightedDelta
	stats.SumWeight -= other.SumWeight
	stats.SumDelta -= other.SumDelta
	stats.Count -= other.Count
}

func clearStats(stats []BucketStats) {
	for ind := range stats {
		stats[ind] = BucketStats{}
	}
}
