package obl

import "log"

//PermutationKind is the addressing regime of a Permutation.
type PermutationKind int

const (
	NoPermutation PermutationKind = iota
	BlockPermutation
	ArbitraryPermutation
)

//Permutation maps fold documents to rows of a stored column.
//Without Indexing the row is Begin+doc. With BlockSize > 1 the permutation
//moves whole blocks of BlockSize consecutive rows, otherwise every entry is arbitrary.
type Permutation struct {
	Indexing  []uint32
	BlockSize int
	Begin     int
}

//Kind returns the addressing regime of the permutation.
func (perm Permutation) Kind() PermutationKind {
	switch {
	case perm.Indexing == nil:
		return NoPermutation
	case perm.BlockSize > 1:
		return BlockPermutation
	}
	return ArbitraryPermutation
}

//Row returns the stored row of the doc-th fold document.
func (perm Permutation) Row(doc int) int {
	if perm.Indexing == nil {
		return perm.Begin + doc
	}
	return int(perm.Indexing[doc])
}

//BodyTail is one ordered boosting segment of the fold. Documents [0, BodyFinish) form the body,
//[BodyFinish, TailFinish) the tail. Derivative arrays are indexed [dim][doc].
type BodyTail struct {
	BodyFinish                int
	TailFinish                int
	BodySumWeight             float64
	WeightedDerivatives       [][]float64
	SampleWeightedDerivatives [][]float64
	PairwiseWeights           []float64
	SamplePairwiseWeights     []float64
}

//QueryInfo is a group of consecutive documents that must never be split between workers.
type QueryInfo struct {
	Begin, End int
}

//Fold is the view of the learn documents used for one tree level.
//Indices holds the current leaf of each document. LearnWeights may be nil meaning unit weights.
type Fold struct {
	Indices                []uint32
	LearnWeights           []float64
	SampleWeights          []float64
	BodyTails              []BodyTail
	LearnQueries           []QueryInfo
	FeaturesPermutation    Permutation
	CtrPermutation         Permutation
	SmallestSplitSideValue bool
}

//NewPlainFold creates a single segment fold in the data order. derivatives are indexed [dim][doc]
//and are already multiplied by weights.
func NewPlainFold(derivatives [][]float64, weights []float64) *Fold {
	if len(derivatives) == 0 {
		log.Panicf("fold requires at least one derivative dimension")
	}
	docCount := len(derivatives[0])
	if weights == nil {
		weights = make([]float64, docCount)
		for ind := range weights {
			weights[ind] = 1
		}
	}
	sumWeight := 0.0
	for _, w := range weights {
		sumWeight += w
	}
	fold := &Fold{
		Indices:       make([]uint32, docCount),
		LearnWeights:  weights,
		SampleWeights: weights,
		BodyTails: []BodyTail{{
			BodyFinish:                docCount,
			TailFinish:                docCount,
			BodySumWeight:             sumWeight,
			WeightedDerivatives:       derivatives,
			SampleWeightedDerivatives: derivatives,
		}},
	}
	fold.validatedSizes()
	return fold
}

//DocCount returns the number of documents in the fold.
func (fold *Fold) DocCount() int {
	return len(fold.Indices)
}

//BodyTailCount returns the number of ordered boosting segments.
func (fold *Fold) BodyTailCount() int {
	return len(fold.BodyTails)
}

//ApproxDimension returns the number of target dimensions.
func (fold *Fold) ApproxDimension() int {
	if len(fold.BodyTails) == 0 {
		return 0
	}
	return len(fold.BodyTails[0].WeightedDerivatives)
}

//HasQueryInfo tells whether documents are grouped.
func (fold *Fold) HasQueryInfo() bool {
	return len(fold.LearnQueries) > 0
}

//CalcStatsIndexRanges partitions the fold for parallel statistics calculation. With groups
//the ranges are over group indices, otherwise over documents.
func (fold *Fold) CalcStatsIndexRanges(workerCount int) []IndexRange {
	if fold.HasQueryInfo() {
		return EquallyDivided(len(fold.LearnQueries), workerCount)
	}
	return EquallyDivided(fold.DocCount(), workerCount)
}

//docRange converts a partition range to the documents it covers.
func (fold *Fold) docRange(r IndexRange) IndexRange {
	if !fold.HasQueryInfo() {
		return r
	}
	if r.Empty() {
		return IndexRange{}
	}
	return IndexRange{fold.LearnQueries[r.Begin].Begin, fold.LearnQueries[r.End-1].End}
}

func (fold *Fold) validatedSizes() {
	docCount := fold.DocCount()
	if fold.LearnWeights != nil && len(fold.LearnWeights) != docCount {
		log.Panicf("learn weights size %d != doc count %d", len(fold.LearnWeights), docCount)
	}
	if len(fold.SampleWeights) != docCount {
		log.Panicf("sample weights size %d != doc count %d", len(fold.SampleWeights), docCount)
	}
	if len(fold.BodyTails) == 0 {
		log.Panicf("fold has no body tails")
	}
	approxDim := fold.ApproxDimension()
	for ind, bt := range fold.BodyTails {
		if bt.BodyFinish > bt.TailFinish || bt.TailFinish > docCount {
			log.Panicf("body tail %d: body finish %d, tail finish %d, doc count %d", ind, bt.BodyFinish, bt.TailFinish, docCount)
		}
		if len(bt.WeightedDerivatives) != approxDim || len(bt.SampleWeightedDerivatives) != approxDim {
			log.Panicf("body tail %d: derivatives dimension mismatch", ind)
		}
		for dim := 0; dim < approxDim; dim++ {
			if len(bt.WeightedDerivatives[dim]) < bt.TailFinish || len(bt.SampleWeightedDerivatives[dim]) < bt.TailFinish {
				log.Panicf("body tail %d: derivatives of dim %d are shorter than tail finish %d", ind, dim, bt.TailFinish)
			}
		}
		if bt.PairwiseWeights != nil && (len(bt.PairwiseWeights) < bt.TailFinish || len(bt.SamplePairwiseWeights) < bt.TailFinish) {
			log.Panicf("body tail %d: pairwise weights are shorter than tail finish %d", ind, bt.TailFinish)
		}
	}
	if fold.HasQueryInfo() && fold.LearnQueries[len(fold.LearnQueries)-1].End != docCount {
		log.Panicf("queries cover %d documents of %d", fold.LearnQueries[len(fold.LearnQueries)-1].End, docCount)
	}
}

//UpdateIndices routes documents with a true split value to the upper child of their leaf.
//depth is the level of the applied split.
func (fold *Fold) UpdateIndices(splitValues []bool, depth int) {
	if len(splitValues) != fold.DocCount() {
		log.Panicf("split values size %d != doc count %d", len(splitValues), fold.DocCount())
	}
	for doc, value := range splitValues {
		if value {
			fold.Indices[doc] |= 1 << uint(depth)
		}
	}
}

//SelectSmallestSplitSide builds the view used for incremental statistics at the next level. It keeps
//only the documents on the smaller side of the split applied at depth and places them into the upper
//half of leaves. The receiver must have indices before the split at depth.
func (fold *Fold) SelectSmallestSplitSide(depth int, splitValues []bool) *Fold {
	docCount := fold.DocCount()
	if len(splitValues) != docCount {
		log.Panicf("split values size %d != doc count %d", len(splitValues), docCount)
	}
	trueCount := 0
	for _, value := range splitValues {
		if value {
			trueCount++
		}
	}
	sideValue := trueCount <= docCount-trueCount

	selected := make([]int, 0, docCount)
	for doc, value := range splitValues {
		if value == sideValue {
			selected = append(selected, doc)
		}
	}

	result := &Fold{
		Indices:                make([]uint32, len(selected)),
		SampleWeights:          make([]float64, len(selected)),
		FeaturesPermutation:    selectPermutation(fold.FeaturesPermutation, selected),
		CtrPermutation:         selectPermutation(fold.CtrPermutation, selected),
		SmallestSplitSideValue: sideValue,
	}
	if fold.LearnWeights != nil {
		result.LearnWeights = make([]float64, len(selected))
	}
	for ind, doc := range selected {
		result.Indices[ind] = fold.Indices[doc] | 1<<uint(depth)
		result.SampleWeights[ind] = fold.SampleWeights[doc]
		if fold.LearnWeights != nil {
			result.LearnWeights[ind] = fold.LearnWeights[doc]
		}
	}

	for _, bt := range fold.BodyTails {
		result.BodyTails = append(result.BodyTails, selectBodyTail(bt, selected, fold.LearnWeights))
	}

	if fold.HasQueryInfo() {
		pos := 0
		for _, query := range fold.LearnQueries {
			begin := pos
			for pos < len(selected) && selected[pos] < query.End {
				pos++
			}
			if pos > begin {
				result.LearnQueries = append(result.LearnQueries, QueryInfo{begin, pos})
			}
		}
	}
	return result
}

func selectPermutation(perm Permutation, selected []int) Permutation {
	indexing := make([]uint32, len(selected))
	for ind, doc := range selected {
		indexing[ind] = uint32(perm.Row(doc))
	}
	return Permutation{Indexing: indexing, BlockSize: 1}
}

func selectBodyTail(bt BodyTail, selected []int, learnWeights []float64) BodyTail {
	result := BodyTail{
		WeightedDerivatives:       make([][]float64, len(bt.WeightedDerivatives)),
		SampleWeightedDerivatives: make([][]float64, len(bt.SampleWeightedDerivatives)),
	}
	for _, doc := range selected {
		if doc < bt.BodyFinish {
			result.BodyFinish++
			if learnWeights != nil {
				result.BodySumWeight += learnWeights[doc]
			} else {
				result.BodySumWeight++
			}
		}
		if doc < bt.TailFinish {
			result.TailFinish++
		}
	}
	inTail := selected[:result.TailFinish]
	pick := func(values []float64) []float64 {
		if values == nil {
			return nil
		}
		picked := make([]float64, len(inTail))
		for ind, doc := range inTail {
			picked[ind] = values[doc]
		}
		return picked
	}
	for dim := range bt.WeightedDerivatives {
		result.WeightedDerivatives[dim] = pick(bt.WeightedDerivatives[dim])
		result.SampleWeightedDerivatives[dim] = pick(bt.SampleWeightedDerivatives[dim])
	}
	result.PairwiseWeights = pick(bt.PairwiseWeights)
	result.SamplePairwiseWeights = pick(bt.SamplePairwiseWeights)
	return result
}
