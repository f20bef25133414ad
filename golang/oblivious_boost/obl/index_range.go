package obl

//IndexRange is a half interval [Begin, End) of document, group or pair indices.
type IndexRange struct {
	Begin, End int
}

//NewIndexRange initializes a new half interval.
func NewIndexRange(begin, end int) IndexRange {
	return IndexRange{begin, end}
}

//Size returns the number of indices in the interval.
func (r IndexRange) Size() int {
	if r.End < r.Begin {
		return 0
	}
	return r.End - r.Begin
}

//Empty checks whether the interval contains no indices.
func (r IndexRange) Empty() bool {
	return r.Size() == 0
}

//Contains checks whether the index belongs to the interval.
func (r IndexRange) Contains(ind int) bool {
	return ind >= r.Begin && ind < r.End
}

//EquallyDivided splits [0, count) into at most partCount contiguous ranges of almost equal size.
//An empty collection still produces one empty range so a reduction always has an output to clear.
func EquallyDivided(count, partCount int) []IndexRange {
	if partCount < 1 {
		partCount = 1
	}
	if count <= 0 {
		return []IndexRange{{0, 0}}
	}
	if partCount > count {
		partCount = count
	}
	partSize := (count + partCount - 1) / partCount

	ranges := make([]IndexRange, 0, partCount)
	for begin := 0; begin < count; begin += partSize {
		end := begin + partSize
		if end > count {
			end = count
		}
		ranges = append(ranges, IndexRange{begin, end})
	}
	return ranges
}
