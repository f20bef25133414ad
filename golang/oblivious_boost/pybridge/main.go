// SPDX-License-Identifier: Apache-2.0

package main

/*
#cgo CFLAGS: -I.
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/tarstars/oblivious_boosting/golang/oblivious_boost/obl"
)

//scorerConfig is the part of a scorer fixed at creation, the features come with every call.
type scorerConfig struct {
	options obl.ScoringOptions
}

var (
	handleMu   sync.Mutex
	nextHandle uint64 = 1
	scorers           = make(map[uint64]*scorerConfig)

	lastErrorMu sync.Mutex
	lastError   string

	logSilenceOnce sync.Once
)

func silenceLogs() {
	logSilenceOnce.Do(func() {
		log.SetOutput(io.Discard)
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
}

func setLastError(err error) {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	if err != nil {
		lastError = err.Error()
	} else {
		lastError = ""
	}
}

func getLastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	return lastError
}

func storeScorer(config *scorerConfig) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	handle := nextHandle
	scorers[handle] = config
	nextHandle++
	return handle
}

func fetchScorer(handle uint64) (*scorerConfig, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	config, ok := scorers[handle]
	if !ok {
		return nil, errors.New("invalid scorer handle")
	}
	return config, nil
}

func copyFloatSlice(ptr *C.double, length int) ([]float64, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	src := unsafe.Slice((*float64)(unsafe.Pointer(ptr)), length)
	dst := make([]float64, length)
	copy(dst, src)
	return dst, nil
}

func copyUintSlice(ptr *C.uint, length int) ([]uint32, error) {
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length == 0 {
		return nil, nil
	}
	if ptr == nil {
		return nil, errors.New("null pointer for non-empty slice")
	}
	src := unsafe.Slice((*uint32)(unsafe.Pointer(ptr)), length)
	dst := make([]uint32, length)
	copy(dst, src)
	return dst, nil
}

func buildScoreFunction(kind C.int) (obl.ScoreFunction, error) {
	switch kind {
	case 0:
		return obl.Cosine, nil
	case 1:
		return obl.L2, nil
	default:
		return "", fmt.Errorf("%w: kind %d", obl.ErrUnsupportedScoreFunction, int(kind))
	}
}

//export CreateScorer
func CreateScorer(l2Reg C.double, scoreFunction C.int, oneHotMaxSize C.uint, workerCount C.int) C.ulonglong {
	silenceLogs()
	function, err := buildScoreFunction(scoreFunction)
	if err != nil {
		setLastError(err)
		return 0
	}
	options := obl.DefaultScoringOptions()
	options.L2Reg = float64(l2Reg)
	options.ScoreFunction = function
	options.OneHotMaxSize = uint32(oneHotMaxSize)
	options.WorkerCount = int(workerCount)
	options.UseTreeLevelCaching = false
	if err := options.Validate(); err != nil {
		setLastError(err)
		return 0
	}
	setLastError(nil)
	return C.ulonglong(storeScorer(&scorerConfig{options: options}))
}

//export FreeScorer
func FreeScorer(handle C.ulonglong) {
	handleMu.Lock()
	defer handleMu.Unlock()
	delete(scorers, uint64(handle))
}

//ScoreFloatFeature scores the borders of one float feature at depth. buckets, leafIndices, derivatives
//and weights have rows elements, weights may be null. out receives borderCount scores.
//Returns 0 on success and -1 on failure, see GetLastError.
//
//export ScoreFloatFeature
func ScoreFloatFeature(
	handle C.ulonglong,
	bucketsPtr *C.uint,
	derivativesPtr *C.double,
	weightsPtr *C.double,
	leafIndicesPtr *C.uint,
	rows C.int,
	borderCount C.int,
	depth C.int,
	out *C.double,
) C.int {
	scores, err := scoreFloatFeature(handle, bucketsPtr, derivativesPtr, weightsPtr, leafIndicesPtr, int(rows), int(borderCount), int(depth))
	if err != nil {
		setLastError(err)
		return -1
	}
	if len(scores) > 0 {
		if out == nil {
			setLastError(errors.New("null output buffer"))
			return -1
		}
		copy(unsafe.Slice((*float64)(unsafe.Pointer(out)), len(scores)), scores)
	}
	setLastError(nil)
	return 0
}

func scoreFloatFeature(
	handle C.ulonglong,
	bucketsPtr *C.uint,
	derivativesPtr *C.double,
	weightsPtr *C.double,
	leafIndicesPtr *C.uint,
	rows, borderCount, depth int,
) (scores []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score float feature: %v", r)
		}
	}()
	config, err := fetchScorer(uint64(handle))
	if err != nil {
		return nil, err
	}
	if borderCount < 0 || depth < 0 || depth > config.options.MaxDepth {
		return nil, fmt.Errorf("invalid border count %d or depth %d", borderCount, depth)
	}
	buckets, err := copyUintSlice(bucketsPtr, rows)
	if err != nil {
		return nil, fmt.Errorf("buckets: %w", err)
	}
	derivatives, err := copyFloatSlice(derivativesPtr, rows)
	if err != nil {
		return nil, fmt.Errorf("derivatives: %w", err)
	}
	var weights []float64
	if weightsPtr != nil {
		if weights, err = copyFloatSlice(weightsPtr, rows); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		for p := range derivatives {
			derivatives[p] *= weights[p]
		}
	}
	leafIndices, err := copyUintSlice(leafIndicesPtr, rows)
	if err != nil && depth > 0 {
		return nil, fmt.Errorf("leaf indices: %w", err)
	}
	for p, bucket := range buckets {
		if int(bucket) > borderCount {
			return nil, fmt.Errorf("bucket %d of row %d exceeds border count %d", bucket, p, borderCount)
		}
		if leafIndices != nil && leafIndices[p]>>uint(depth) != 0 {
			return nil, fmt.Errorf("leaf %d of row %d exceeds depth %d", leafIndices[p], p, depth)
		}
	}

	features := obl.NewFloatFeatures([][]uint32{buckets}, []int{borderCount})
	features.DocCount = rows
	fold := obl.NewPlainFold([][]float64{derivatives}, weights)
	if leafIndices != nil && depth > 0 {
		copy(fold.Indices, leafIndices)
	}

	scorer, err := obl.NewScorer(features, config.options, nil, nil)
	if err != nil {
		return nil, err
	}
	ensemble := obl.SingleFeature{Type: obl.FloatFeature, FeatureIdx: 0}
	return scorer.CalcScores(&obl.TreeLevel{Fold: fold, Depth: depth}, ensemble)
}

//export GetLastError
func GetLastError() *C.char {
	msg := getLastError()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

//export FreeCString
func FreeCString(str *C.char) {
	if str != nil {
		C.free(unsafe.Pointer(str))
	}
}

func main() {}
