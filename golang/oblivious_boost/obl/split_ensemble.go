package obl

import (
	"fmt"
	"log"
)

//SplitType is the kind of a single split candidate.
type SplitType int

const (
	FloatFeature SplitType = iota
	OneHotFeature
	OnlineCtr
)

func (splitType SplitType) String() string {
	switch splitType {
	case FloatFeature:
		return "Float"
	case OneHotFeature:
		return "OneHot"
	case OnlineCtr:
		return "OnlineCtr"
	}
	return fmt.Sprintf("SplitType(%d)", int(splitType))
}

//FeatureType is the type of a feature stored inside a pack or a bundle.
type FeatureType int

const (
	Float FeatureType = iota
	Categorical
)

//CtrRef addresses one online counter table: a feature combination, the counter kind,
//the target border and the prior.
type CtrRef struct {
	Projection      string
	CtrIdx          int
	TargetBorderIdx int
	PriorIdx        int
}

//BundlePart is one member feature of an exclusive bundle. Bounds are the bundle values
//occupied by the non-default bins of the feature.
type BundlePart struct {
	FeatureType FeatureType
	FeatureIdx  int
	Bounds      IndexRange
}

//SplitEnsemble is a unit of split candidates sharing one encoded column.
//It is one of SingleFeature, BinaryPack or ExclusiveBundle.
type SplitEnsemble interface {
	Key() EnsembleKey
	String() string
	isSplitEnsemble()
}

//EnsembleKind tags the variant of a SplitEnsemble.
type EnsembleKind int

const (
	OneFeatureEnsemble EnsembleKind = iota
	BinarySplitsEnsemble
	ExclusiveBundleEnsemble
)

//EnsembleKey is a comparable identity of a split ensemble.
type EnsembleKey struct {
	Kind       EnsembleKind
	SplitType  SplitType
	FeatureIdx int
	Ctr        CtrRef
}

//SingleFeature is a split ensemble of one float, one-hot or online counter feature.
type SingleFeature struct {
	Type       SplitType
	FeatureIdx int
	Ctr        CtrRef
}

func (SingleFeature) isSplitEnsemble() {}

func (ensemble SingleFeature) Key() EnsembleKey {
	key := EnsembleKey{Kind: OneFeatureEnsemble, SplitType: ensemble.Type, FeatureIdx: ensemble.FeatureIdx}
	if ensemble.Type == OnlineCtr {
		key.FeatureIdx = -1
		key.Ctr = ensemble.Ctr
	}
	return key
}

func (ensemble SingleFeature) String() string {
	if ensemble.Type == OnlineCtr {
		return fmt.Sprintf("ctr[%s:%d:%d:%d]", ensemble.Ctr.Projection, ensemble.Ctr.CtrIdx, ensemble.Ctr.TargetBorderIdx, ensemble.Ctr.PriorIdx)
	}
	return fmt.Sprintf("%s_%d", ensemble.Type, ensemble.FeatureIdx)
}

//BinaryPack is a split ensemble of binary features packed into the bits of one column.
type BinaryPack struct {
	PackIdx int
}

func (BinaryPack) isSplitEnsemble() {}

func (ensemble BinaryPack) Key() EnsembleKey {
	return EnsembleKey{Kind: BinarySplitsEnsemble, FeatureIdx: ensemble.PackIdx}
}

func (ensemble BinaryPack) String() string {
	return fmt.Sprintf("pack_%d", ensemble.PackIdx)
}

//ExclusiveBundle is a split ensemble of mutually exclusive features sharing one column.
//The last bucket of the bundle means that all members have their default value.
type ExclusiveBundle struct {
	BundleIdx int
	Parts     []BundlePart
}

func (ExclusiveBundle) isSplitEnsemble() {}

func (ensemble ExclusiveBundle) Key() EnsembleKey {
	return EnsembleKey{Kind: ExclusiveBundleEnsemble, FeatureIdx: ensemble.BundleIdx}
}

func (ensemble ExclusiveBundle) String() string {
	return fmt.Sprintf("bundle_%d", ensemble.BundleIdx)
}

//BinCount returns the number of buckets of the bundle including the default one.
func (ensemble ExclusiveBundle) BinCount() int {
	if len(ensemble.Parts) == 0 {
		return 1
	}
	return ensemble.Parts[len(ensemble.Parts)-1].Bounds.End + 1
}

//UseForCalcScores tells whether candidates of a bundle part are evaluated.
//Categorical parts take part only when they are small enough for one-hot encoding.
func UseForCalcScores(part BundlePart, oneHotMaxSize uint32) bool {
	if part.FeatureType == Float {
		return true
	}
	return uint32(part.Bounds.Size()+1) <= oneHotMaxSize
}

//CalcSplitsCount returns the number of split candidates of an ensemble.
func CalcSplitsCount(ensemble SplitEnsemble, bucketCount int, oneHotMaxSize uint32) int {
	switch ensemble := ensemble.(type) {
	case SingleFeature:
		if ensemble.Type == OneHotFeature {
			return bucketCount
		}
		return bucketCount - 1
	case BinaryPack:
		return ValueBitCount(uint32(bucketCount - 1))
	case ExclusiveBundle:
		splitsCount := 0
		for _, part := range ensemble.Parts {
			if !UseForCalcScores(part, oneHotMaxSize) {
				continue
			}
			if part.FeatureType == Float {
				splitsCount += part.Bounds.Size()
			} else {
				splitsCount += part.Bounds.Size() + 1
			}
		}
		return splitsCount
	}
	log.Panicf("unexpected split ensemble %T", ensemble)
	return 0
}

//Split is one concrete split candidate. A document goes to the true side when its feature bucket
//is greater than BinBorder (Float, OnlineCtr) or equal to Value (OneHot).
type Split struct {
	Type       SplitType
	FeatureIdx int
	Ctr        CtrRef
	BinBorder  int
	Value      int
}

func (split Split) String() string {
	switch split.Type {
	case OneHotFeature:
		return fmt.Sprintf("cat_%d == %d", split.FeatureIdx, split.Value)
	case OnlineCtr:
		return fmt.Sprintf("ctr[%s:%d:%d:%d] > %d", split.Ctr.Projection, split.Ctr.CtrIdx, split.Ctr.TargetBorderIdx, split.Ctr.PriorIdx, split.BinBorder)
	}
	return fmt.Sprintf("f_%d > bin %d", split.FeatureIdx, split.BinBorder)
}

//CandidateSplit maps a candidate index of an ensemble back to a concrete split.
func (features *QuantizedFeatures) CandidateSplit(ensemble SplitEnsemble, splitIdx int, oneHotMaxSize uint32) Split {
	switch ensemble := ensemble.(type) {
	case SingleFeature:
		switch ensemble.Type {
		case OneHotFeature:
			return Split{Type: OneHotFeature, FeatureIdx: ensemble.FeatureIdx, Value: splitIdx}
		case OnlineCtr:
			return Split{Type: OnlineCtr, FeatureIdx: -1, Ctr: ensemble.Ctr, BinBorder: splitIdx}
		}
		return Split{Type: FloatFeature, FeatureIdx: ensemble.FeatureIdx, BinBorder: splitIdx}
	case BinaryPack:
		packed := features.BinaryPacks[ensemble.PackIdx].Features[splitIdx]
		if packed.FeatureType == Float {
			return Split{Type: FloatFeature, FeatureIdx: packed.FeatureIdx, BinBorder: 0}
		}
		return Split{Type: OneHotFeature, FeatureIdx: packed.FeatureIdx, Value: 1}
	case ExclusiveBundle:
		binsBegin := 0
		for _, part := range ensemble.Parts {
			if !UseForCalcScores(part, oneHotMaxSize) {
				continue
			}
			if part.FeatureType == Float {
				if splitIdx < binsBegin+part.Bounds.Size() {
					return Split{Type: FloatFeature, FeatureIdx: part.FeatureIdx, BinBorder: splitIdx - binsBegin}
				}
				binsBegin += part.Bounds.Size()
			} else {
				if splitIdx < binsBegin+part.Bounds.Size()+1 {
					return Split{Type: OneHotFeature, FeatureIdx: part.FeatureIdx, Value: splitIdx - binsBegin}
				}
				binsBegin += part.Bounds.Size() + 1
			}
		}
		log.Panicf("split index %d is out of %s", splitIdx, ensemble)
	}
	log.Panicf("unexpected split ensemble %T", ensemble)
	return Split{}
}

//candidateTruth returns a predicate on ensemble buckets that is true for documents on the
//true side of the splitIdx-th candidate. It agrees with the derivation in updateScores.
func candidateTruth(ensemble SplitEnsemble, splitIdx int, oneHotMaxSize uint32) func(bucket uint32) bool {
	switch ensemble := ensemble.(type) {
	case SingleFeature:
		if ensemble.Type == OneHotFeature {
			return func(bucket uint32) bool { return int(bucket) == splitIdx }
		}
		return func(bucket uint32) bool { return int(bucket) > splitIdx }
	case BinaryPack:
		return func(bucket uint32) bool { return (bucket>>uint(splitIdx))&1 == 1 }
	case ExclusiveBundle:
		binsBegin := 0
		for _, part := range ensemble.Parts {
			if !UseForCalcScores(part, oneHotMaxSize) {
				continue
			}
			bounds := part.Bounds
			if part.FeatureType == Float {
				if splitIdx < binsBegin+bounds.Size() {
					from := bounds.Begin + splitIdx - binsBegin
					return func(bucket uint32) bool { return int(bucket) >= from && int(bucket) < bounds.End }
				}
				binsBegin += bounds.Size()
			} else {
				if splitIdx == binsBegin {
					return func(bucket uint32) bool { return !bounds.Contains(int(bucket)) }
				}
				if splitIdx < binsBegin+bounds.Size()+1 {
					value := bounds.Begin + splitIdx - binsBegin - 1
					return func(bucket uint32) bool { return int(bucket) == value }
				}
				binsBegin += bounds.Size() + 1
			}
		}
		log.Panicf("split index %d is out of %s", splitIdx, ensemble)
	}
	log.Panicf("unexpected split ensemble %T", ensemble)
	return nil
}
