package obl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//ScoreFunction selects the split scoring formula.
type ScoreFunction string

const (
	Cosine   ScoreFunction = "Cosine"
	L2       ScoreFunction = "L2"
	Pairwise ScoreFunction = "Pairwise"
)

//BoostingType selects plain or ordered statistics.
type BoostingType string

const (
	Plain   BoostingType = "Plain"
	Ordered BoostingType = "Ordered"
)

var (
	ErrUnsupportedScoreFunction    = errors.New("unsupported score function")
	ErrPairwiseUnsupportedEnsemble = errors.New("pairwise scoring supports only float and online counter features")
	ErrInvalidOptions              = errors.New("invalid scoring options")
)

var optionsValidate = validator.New()

//ScoringOptions configures statistics calculation and split scoring.
type ScoringOptions struct {
	L2Reg               float64       `json:"l2_reg" yaml:"l2_reg" validate:"gte=0"`
	PairwiseNonDiagReg  float64       `json:"pairwise_non_diag_reg" yaml:"pairwise_non_diag_reg" validate:"gte=0"`
	OneHotMaxSize       uint32        `json:"one_hot_max_size" yaml:"one_hot_max_size"`
	ScoreFunction       ScoreFunction `json:"score_function" yaml:"score_function" validate:"oneof=Cosine L2 Pairwise"`
	BoostingType        BoostingType  `json:"boosting_type" yaml:"boosting_type" validate:"oneof=Plain Ordered"`
	MaxDepth            int           `json:"max_depth" yaml:"max_depth" validate:"gte=1,lte=16"`
	WorkerCount         int           `json:"worker_count" yaml:"worker_count" validate:"gte=1"`
	UseTreeLevelCaching bool          `json:"use_tree_level_caching" yaml:"use_tree_level_caching"`
	CacheCapacity       int           `json:"cache_capacity" yaml:"cache_capacity" validate:"gte=0"`
	MonotoneConstraints []int         `json:"monotone_constraints,omitempty" yaml:"monotone_constraints,omitempty" validate:"dive,oneof=-1 0 1"`
}

//DefaultScoringOptions returns the options used when a config omits them.
func DefaultScoringOptions() ScoringOptions {
	return ScoringOptions{
		L2Reg:               3,
		PairwiseNonDiagReg:  0.1,
		OneHotMaxSize:       2,
		ScoreFunction:       Cosine,
		BoostingType:        Plain,
		MaxDepth:            6,
		WorkerCount:         1,
		UseTreeLevelCaching: true,
	}
}

//IsPlainMode tells whether ordered body statistics are not used.
func (options *ScoringOptions) IsPlainMode() bool {
	return options.BoostingType != Ordered
}

//Validate checks field ranges and combinations of options.
func (options *ScoringOptions) Validate() error {
	if err := optionsValidate.Struct(options); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if options.ScoreFunction == Pairwise && !options.IsPlainMode() {
		return fmt.Errorf("%w: %s with %s boosting", ErrUnsupportedScoreFunction, Pairwise, Ordered)
	}
	return nil
}

//LoadScoringOptions reads options from a yaml or json file. Missing fields keep the defaults.
func LoadScoringOptions(path string) (ScoringOptions, error) {
	options := DefaultScoringOptions()
	if err := DecodeConfigFile(path, &options); err != nil {
		return ScoringOptions{}, err
	}
	if err := options.Validate(); err != nil {
		return ScoringOptions{}, fmt.Errorf("%s: %w", path, err)
	}
	return options, nil
}

//DecodeConfigFile decodes a json file by its extension, yaml otherwise.
func DecodeConfigFile(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, target)
	} else {
		err = yaml.Unmarshal(data, target)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}
