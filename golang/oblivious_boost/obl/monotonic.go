package obl

import "log"

//BuildMonotonicLinearOrdersOnLeafs returns chains of leaves along which leaf values must not decrease.
//constraints[level] is the constraint of the split at that level: +1 means the true child is not less
//than the false one, -1 the opposite. Leaves that differ in unconstrained levels are independent,
//so one chain is built per combination of unconstrained bits. Inside a chain the constrained bits
//are ordered lexicographically with the deepest level most significant.
func BuildMonotonicLinearOrdersOnLeafs(constraints []int) [][]int {
	var constrained, free []int
	for level, constraint := range constraints {
		if constraint != 0 {
			constrained = append(constrained, level)
		} else {
			free = append(free, level)
		}
	}
	if len(constrained) == 0 {
		return nil
	}

	orders := make([][]int, 0, 1<<uint(len(free)))
	for freeMask := 0; freeMask < 1<<uint(len(free)); freeMask++ {
		base := 0
		for ind, level := range free {
			if (freeMask>>uint(ind))&1 == 1 {
				base |= 1 << uint(level)
			}
		}
		order := make([]int, 0, 1<<uint(len(constrained)))
		for rank := 0; rank < 1<<uint(len(constrained)); rank++ {
			leaf := base
			for ind, level := range constrained {
				bit := (rank >> uint(ind)) & 1
				if constraints[level] < 0 {
					bit ^= 1
				}
				leaf |= bit << uint(level)
			}
			order = append(order, leaf)
		}
		orders = append(orders, order)
	}
	return orders
}

type pavBlock struct {
	sumWeightedValue float64
	sumWeight        float64
	sumValue         float64
	count            int
}

func (block *pavBlock) value() float64 {
	if block.sumWeight > 0 {
		return block.sumWeightedValue / block.sumWeight
	}
	return block.sumValue / float64(block.count)
}

func (block *pavBlock) merge(other pavBlock) {
	block.sumWeightedValue += other.sumWeightedValue
	block.sumWeight += other.sumWeight
	block.sumValue += other.sumValue
	block.count += other.count
}

//CalcOneDimensionalIsotonicRegression writes into out the weighted least squares projection of values
//onto sequences that do not decrease along order. Indices outside order are left untouched.
//out may be values itself.
func CalcOneDimensionalIsotonicRegression(values, weights []float64, order []int, out []float64) {
	if len(values) != len(weights) || len(out) < len(values) {
		log.Panicf("isotonic regression: %d values, %d weights, %d outputs", len(values), len(weights), len(out))
	}
	blocks := make([]pavBlock, 0, len(order))
	for _, ind := range order {
		current := pavBlock{
			sumWeightedValue: weights[ind] * values[ind],
			sumWeight:        weights[ind],
			sumValue:         values[ind],
			count:            1,
		}
		for len(blocks) > 0 && blocks[len(blocks)-1].value() > current.value() {
			current.merge(blocks[len(blocks)-1])
			blocks = blocks[:len(blocks)-1]
		}
		blocks = append(blocks, current)
	}

	pos := 0
	for _, block := range blocks {
		value := block.value()
		for end := pos + block.count; pos < end; pos++ {
			out[order[pos]] = value
		}
	}
}

//monotonicLeafStore keeps raw values of the 2*leafCount virtual leaves of every candidate, so that scores
//are computed from the projected values. The false child of leaf l is l, the true child is l+leafCount.
type monotonicLeafStore struct {
	leafCount               int
	leafDeltas              [][]float64
	bodyLeafWeights         [][]float64
	tailLeafSumWeightedDers [][]float64
	tailLeafWeights         [][]float64
	leafsProcessed          []int
}

func newMonotonicLeafStore(splitsCount, leafCount int) *monotonicLeafStore {
	store := &monotonicLeafStore{
		leafCount:      leafCount,
		leafsProcessed: make([]int, splitsCount),
	}
	for _, vec := range []*[][]float64{&store.leafDeltas, &store.bodyLeafWeights, &store.tailLeafSumWeightedDers, &store.tailLeafWeights} {
		*vec = make([][]float64, splitsCount)
		for splitIdx := range *vec {
			(*vec)[splitIdx] = make([]float64, 2*leafCount)
		}
	}
	return store
}

//add records both children of the next leaf of a candidate.
func (store *monotonicLeafStore) add(isPlainMode bool, l2Regularizer float64, trueStats, falseStats BucketStats, splitIdx int) {
	leaf := store.leafsProcessed[splitIdx]
	if leaf >= store.leafCount {
		log.Panicf("candidate %d got more than %d leaves", splitIdx, store.leafCount)
	}
	for _, leafStats := range []*BucketStats{&falseStats, &trueStats} {
		var bodyLeafWeight float64
		if isPlainMode {
			bodyLeafWeight = leafStats.SumWeight
			store.leafDeltas[splitIdx][leaf] = CalcAverage(leafStats.SumWeightedDelta, bodyLeafWeight, l2Regularizer)
		} else {
			bodyLeafWeight = leafStats.Count
			store.leafDeltas[splitIdx][leaf] = CalcAverage(leafStats.SumDelta, bodyLeafWeight, l2Regularizer)
		}
		//isotonic regression with l2 reduces to plain isotonic regression with shifted weights
		store.bodyLeafWeights[splitIdx][leaf] = bodyLeafWeight + l2Regularizer
		store.tailLeafWeights[splitIdx][leaf] = leafStats.SumWeight
		store.tailLeafSumWeightedDers[splitIdx][leaf] = leafStats.SumWeightedDelta
		leaf += store.leafCount
	}
	store.leafsProcessed[splitIdx]++
}

//score projects the stored leaf values and adds the constrained leaves to the calcer.
func (store *monotonicLeafStore) score(currTreeConstraints, candidateConstraints []int, calcer PointwiseScoreCalcer) {
	possibleOrders := map[int][][]int{}
	constraints := append(append([]int(nil), currTreeConstraints...), 0)
	for _, candidateConstraint := range candidateConstraints {
		if _, ok := possibleOrders[candidateConstraint]; ok {
			continue
		}
		constraints[len(constraints)-1] = candidateConstraint
		possibleOrders[candidateConstraint] = BuildMonotonicLinearOrdersOnLeafs(constraints)
	}

	for splitIdx, candidateConstraint := range candidateConstraints {
		leafDeltas := store.leafDeltas[splitIdx]
		for _, order := range possibleOrders[candidateConstraint] {
			CalcOneDimensionalIsotonicRegression(leafDeltas, store.bodyLeafWeights[splitIdx], order, leafDeltas)
		}
		for leaf := 0; leaf < 2*store.leafCount; leaf++ {
			calcer.AddLeaf(splitIdx, leafDeltas[leaf], BucketStats{
				SumWeightedDelta: store.tailLeafSumWeightedDers[splitIdx][leaf],
				SumWeight:        store.tailLeafWeights[splitIdx][leaf],
			})
		}
	}
}
