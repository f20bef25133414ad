package obl

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

//ReadNpy reads the content of npy file
func ReadNpy(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("open npy: %w", err)
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read npy header %s: %w", fileName, err)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, fmt.Errorf("read npy %s: %w", fileName, err)
	}
	return denseMat, nil
}

//WriteNpy writes a matrix into npy file
func WriteNpy(fileName string, m mat.Matrix) error {
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("create npy: %w", err)
	}
	if err := npyio.Write(f, m); err != nil {
		_ = f.Close()
		return fmt.Errorf("write npy %s: %w", fileName, err)
	}
	return f.Close()
}

//Dataset is a quantized learn set read from npy files. Buckets has one row per document and one
//column per float feature. Derivatives has one column per dimension. Weights and LeafIndices are
//optional columns.
type Dataset struct {
	Buckets     *mat.Dense
	Derivatives *mat.Dense
	Weights     *mat.Dense
	LeafIndices *mat.Dense
}

//DatasetFiles names the npy files of a dataset. Empty names are skipped.
type DatasetFiles struct {
	Buckets     string `json:"buckets" yaml:"buckets" validate:"required"`
	Derivatives string `json:"derivatives" yaml:"derivatives" validate:"required"`
	Weights     string `json:"weights,omitempty" yaml:"weights,omitempty"`
	LeafIndices string `json:"leaf_indices,omitempty" yaml:"leaf_indices,omitempty"`
}

//ReadDataset reads and checks the files of a dataset.
func ReadDataset(files DatasetFiles, logger *slog.Logger) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dataset := &Dataset{}
	for _, item := range []struct {
		name     string
		fileName string
		target   **mat.Dense
	}{
		{"buckets", files.Buckets, &dataset.Buckets},
		{"derivatives", files.Derivatives, &dataset.Derivatives},
		{"weights", files.Weights, &dataset.Weights},
		{"leaf indices", files.LeafIndices, &dataset.LeafIndices},
	} {
		if item.fileName == "" {
			continue
		}
		logger.Info("load npy", "component", item.name, "file", item.fileName)
		m, err := ReadNpy(item.fileName)
		if err != nil {
			return nil, err
		}
		*item.target = m
	}
	if err := dataset.validatedDimensions(); err != nil {
		return nil, err
	}
	return dataset, nil
}

func (dataset *Dataset) validatedDimensions() error {
	if dataset.Buckets == nil || dataset.Derivatives == nil {
		return fmt.Errorf("dataset requires buckets and derivatives")
	}
	h, w := dataset.Buckets.Dims()
	if derH, _ := dataset.Derivatives.Dims(); derH != h {
		return fmt.Errorf("derivatives have %d rows, buckets have %d", derH, h)
	}
	for _, column := range []struct {
		name string
		m    *mat.Dense
	}{{"weights", dataset.Weights}, {"leaf indices", dataset.LeafIndices}} {
		if column.m == nil {
			continue
		}
		if colH, colW := column.m.Dims(); colH != h || colW != 1 {
			return fmt.Errorf("%s have shape (%d, %d), expected (%d, 1)", column.name, colH, colW, h)
		}
	}
	for p := 0; p < h; p++ {
		for q := 0; q < w; q++ {
			if !isBucketValue(dataset.Buckets.At(p, q)) {
				return fmt.Errorf("bucket (%d, %d) = %v is not a bucket index", p, q, dataset.Buckets.At(p, q))
			}
		}
		if dataset.LeafIndices != nil && !isBucketValue(dataset.LeafIndices.At(p, 0)) {
			return fmt.Errorf("leaf index of row %d = %v is not a leaf", p, dataset.LeafIndices.At(p, 0))
		}
	}
	return nil
}

func isBucketValue(val float64) bool {
	return val >= 0 && val <= math.MaxUint32 && val == math.Trunc(val)
}

//Height returns the number of documents.
func (dataset *Dataset) Height() int {
	h, _ := dataset.Buckets.Dims()
	return h
}

//Features converts the bucket matrix into quantized float features. The border count of a feature
//is its maximal bucket.
func (dataset *Dataset) Features() *QuantizedFeatures {
	h, w := dataset.Buckets.Dims()
	columns := make([][]uint32, w)
	borderCounts := make([]int, w)
	for q := 0; q < w; q++ {
		columns[q] = make([]uint32, h)
		for p := 0; p < h; p++ {
			columns[q][p] = uint32(dataset.Buckets.At(p, q))
			borderCounts[q] = max(borderCounts[q], int(columns[q][p]))
		}
	}
	features := NewFloatFeatures(columns, borderCounts)
	features.DocCount = h
	return features
}

//Fold creates a plain fold in the data order with derivatives multiplied by weights.
func (dataset *Dataset) Fold() *Fold {
	h, d := dataset.Derivatives.Dims()
	var weights []float64
	if dataset.Weights != nil {
		weights = mat.Col(nil, 0, dataset.Weights)
	}
	derivatives := make([][]float64, d)
	for dim := range derivatives {
		derivatives[dim] = mat.Col(nil, dim, dataset.Derivatives)
		if weights != nil {
			for p := 0; p < h; p++ {
				derivatives[dim][p] *= weights[p]
			}
		}
	}
	fold := NewPlainFold(derivatives, weights)
	if dataset.LeafIndices != nil {
		for p := 0; p < h; p++ {
			fold.Indices[p] = uint32(dataset.LeafIndices.At(p, 0))
		}
	}
	return fold
}

//Depth returns the smallest depth holding the leaf indices.
func (dataset *Dataset) Depth() int {
	if dataset.LeafIndices == nil {
		return 0
	}
	return ValueBitCount(uint32(mat.Max(dataset.LeafIndices)))
}
