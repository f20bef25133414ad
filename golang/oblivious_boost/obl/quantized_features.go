package obl

import (
	"log"
	"sort"
)

//PackedBinaryIndex addresses a binary feature stored as one bit of a binary pack.
type PackedBinaryIndex struct {
	PackIdx int
	BitIdx  int
}

//FloatFeatureColumn holds bucket indices of one quantized float feature.
//A packed feature has no own Values and is read from its pack.
type FloatFeatureColumn struct {
	Values      *CompressedColumn
	BorderCount int
	Packed      *PackedBinaryIndex
}

//CatFeatureColumn holds perfect hashes of one categorical feature.
type CatFeatureColumn struct {
	Values       *CompressedColumn
	UniqueValues int
	Packed       *PackedBinaryIndex
}

//PackedFeature names the feature behind one bit of a binary pack.
type PackedFeature struct {
	FeatureType FeatureType
	FeatureIdx  int
}

//BinaryPackColumn stores up to 32 binary features, one bit each.
type BinaryPackColumn struct {
	Values   *CompressedColumn
	Features []PackedFeature
}

//ExclusiveBundleColumn stores several mutually exclusive features in one column.
type ExclusiveBundleColumn struct {
	Values *CompressedColumn
	Parts  []BundlePart
}

//CtrColumn is one online counter table quantized into BorderCount+1 buckets.
//Values follow the fold order.
type CtrColumn struct {
	Values      []uint8
	BorderCount int
}

//OnlineCtrStorage keeps the online counter tables computed for the current fold.
type OnlineCtrStorage map[CtrRef]*CtrColumn

//QuantizedFeatures is the read-only quantized dataset. Feature columns follow
//the data order, counter tables follow the fold order.
type QuantizedFeatures struct {
	FloatFeatures []FloatFeatureColumn
	CatFeatures   []CatFeatureColumn
	BinaryPacks   []BinaryPackColumn
	Bundles       []ExclusiveBundleColumn
	Ctrs          OnlineCtrStorage
	DocCount      int
}

//NewFloatFeatures wraps a bucket matrix given by columns into quantized features.
func NewFloatFeatures(columns [][]uint32, borderCounts []int) *QuantizedFeatures {
	if len(columns) != len(borderCounts) {
		log.Panicf("%d columns but %d border counts", len(columns), len(borderCounts))
	}
	features := &QuantizedFeatures{}
	for ind, values := range columns {
		if ind == 0 {
			features.DocCount = len(values)
		} else if len(values) != features.DocCount {
			log.Panicf("column %d has %d values, expected %d", ind, len(values), features.DocCount)
		}
		features.FloatFeatures = append(features.FloatFeatures, FloatFeatureColumn{
			Values:      NewCompressedColumnFitted(values),
			BorderCount: borderCounts[ind],
		})
	}
	return features
}

//BucketCount returns the number of buckets in the statistics layout of an ensemble.
func (features *QuantizedFeatures) BucketCount(ensemble SplitEnsemble) int {
	switch ensemble := ensemble.(type) {
	case SingleFeature:
		switch ensemble.Type {
		case FloatFeature:
			column := features.FloatFeatures[ensemble.FeatureIdx]
			if column.Packed != nil {
				return 2
			}
			return column.BorderCount + 1
		case OneHotFeature:
			column := features.CatFeatures[ensemble.FeatureIdx]
			if column.Packed != nil {
				return 2
			}
			return column.UniqueValues
		case OnlineCtr:
			return features.ctrColumn(ensemble.Ctr).BorderCount + 1
		}
	case BinaryPack:
		return 1 << uint(len(features.BinaryPacks[ensemble.PackIdx].Features))
	case ExclusiveBundle:
		return ensemble.BinCount()
	}
	log.Panicf("unexpected split ensemble %v", ensemble)
	return 0
}

func (features *QuantizedFeatures) ctrColumn(ctr CtrRef) *CtrColumn {
	column, ok := features.Ctrs[ctr]
	if !ok {
		log.Panicf("online counter %+v is not calculated", ctr)
	}
	return column
}

//Ensembles lists every split ensemble of the dataset: unpacked float features, unpacked one-hot
//categorical features with at most oneHotMaxSize values, binary packs, bundles and counters.
func (features *QuantizedFeatures) Ensembles(oneHotMaxSize uint32) []SplitEnsemble {
	var ensembles []SplitEnsemble
	for ind, column := range features.FloatFeatures {
		if column.Packed == nil && column.BorderCount > 0 {
			ensembles = append(ensembles, SingleFeature{Type: FloatFeature, FeatureIdx: ind})
		}
	}
	for ind, column := range features.CatFeatures {
		if column.Packed == nil && column.UniqueValues > 1 && uint32(column.UniqueValues) <= oneHotMaxSize {
			ensembles = append(ensembles, SingleFeature{Type: OneHotFeature, FeatureIdx: ind})
		}
	}
	for ind := range features.BinaryPacks {
		ensembles = append(ensembles, BinaryPack{PackIdx: ind})
	}
	for ind, bundle := range features.Bundles {
		ensembles = append(ensembles, ExclusiveBundle{BundleIdx: ind, Parts: bundle.Parts})
	}

	ctrs := make([]CtrRef, 0, len(features.Ctrs))
	for ctr := range features.Ctrs {
		ctrs = append(ctrs, ctr)
	}
	sort.Slice(ctrs, func(i, j int) bool {
		a, b := ctrs[i], ctrs[j]
		if a.Projection != b.Projection {
			return a.Projection < b.Projection
		}
		if a.CtrIdx != b.CtrIdx {
			return a.CtrIdx < b.CtrIdx
		}
		if a.TargetBorderIdx != b.TargetBorderIdx {
			return a.TargetBorderIdx < b.TargetBorderIdx
		}
		return a.PriorIdx < b.PriorIdx
	})
	for _, ctr := range ctrs {
		ensembles = append(ensembles, SingleFeature{Type: OnlineCtr, FeatureIdx: -1, Ctr: ctr})
	}
	return ensembles
}

//FloatFeatureCount returns the number of float features, the length of the monotone constraint vector.
func (features *QuantizedFeatures) FloatFeatureCount() int {
	return len(features.FloatFeatures)
}
