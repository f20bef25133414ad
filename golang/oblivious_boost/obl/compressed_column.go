package obl

import "log"

//CompressedColumn stores bucket values of one quantized column with BitsPerKey bits per document.
//Keys never cross a 64 bit word boundary.
type CompressedColumn struct {
	BitsPerKey int
	Size       int
	Data       []uint64
}

func validBitsPerKey(bitsPerKey int) bool {
	switch bitsPerKey {
	case 1, 2, 4, 8, 16, 32:
		return true
	}
	return false
}

//NewCompressedColumn packs values with the given key width.
func NewCompressedColumn(bitsPerKey int, values []uint32) *CompressedColumn {
	if !validBitsPerKey(bitsPerKey) {
		log.Panicf("unsupported bits per key %d", bitsPerKey)
	}
	keysPerWord := 64 / bitsPerKey
	column := &CompressedColumn{
		BitsPerKey: bitsPerKey,
		Size:       len(values),
		Data:       make([]uint64, (len(values)+keysPerWord-1)/keysPerWord),
	}
	mask := column.mask()
	for ind, val := range values {
		if uint64(val) > mask {
			log.Panicf("value %d at %d does not fit into %d bits", val, ind, bitsPerKey)
		}
		shift := uint(ind%keysPerWord) * uint(bitsPerKey)
		column.Data[ind/keysPerWord] |= uint64(val) << shift
	}
	return column
}

//NewCompressedColumnFitted packs values with the narrowest key width that holds maxValue.
func NewCompressedColumnFitted(values []uint32) *CompressedColumn {
	maxValue := uint32(0)
	for _, val := range values {
		if val > maxValue {
			maxValue = val
		}
	}
	bitsPerKey := 1
	for bitsPerKey < ValueBitCount(maxValue) {
		bitsPerKey *= 2
	}
	return NewCompressedColumn(bitsPerKey, values)
}

func (column *CompressedColumn) mask() uint64 {
	return (uint64(1) << uint(column.BitsPerKey)) - 1
}

//At returns the value of the ind-th document.
func (column *CompressedColumn) At(ind int) uint32 {
	keysPerWord := 64 / column.BitsPerKey
	shift := uint(ind%keysPerWord) * uint(column.BitsPerKey)
	return uint32((column.Data[ind/keysPerWord] >> shift) & column.mask())
}

//Values unpacks the whole column.
func (column *CompressedColumn) Values() []uint32 {
	result := make([]uint32, column.Size)
	for ind := range result {
		result[ind] = column.At(ind)
	}
	return result
}
