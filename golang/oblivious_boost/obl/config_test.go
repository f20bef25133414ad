package obl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringOptionsValidate(t *testing.T) {
	defaults := DefaultScoringOptions()
	require.NoError(t, defaults.Validate())

	tests := []struct {
		name   string
		modify func(options *ScoringOptions)
		target error
	}{
		{"negative l2", func(options *ScoringOptions) { options.L2Reg = -1 }, ErrInvalidOptions},
		{"too deep", func(options *ScoringOptions) { options.MaxDepth = 17 }, ErrInvalidOptions},
		{"no workers", func(options *ScoringOptions) { options.WorkerCount = 0 }, ErrInvalidOptions},
		{"unknown score function", func(options *ScoringOptions) { options.ScoreFunction = "NewtonL2" }, ErrInvalidOptions},
		{"bad monotone constraint", func(options *ScoringOptions) { options.MonotoneConstraints = []int{0, 2} }, ErrInvalidOptions},
		{"ordered pairwise", func(options *ScoringOptions) {
			options.ScoreFunction = Pairwise
			options.BoostingType = Ordered
		}, ErrUnsupportedScoreFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := DefaultScoringOptions()
			tt.modify(&options)
			err := options.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "%v", err)
		})
	}
}

func TestLoadScoringOptions(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "options.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("l2_reg: 5\nscore_function: L2\nmonotone_constraints: [1, 0, -1]\n"), 0o644))
	options, err := LoadScoringOptions(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 5.0, options.L2Reg)
	assert.Equal(t, L2, options.ScoreFunction)
	assert.Equal(t, []int{1, 0, -1}, options.MonotoneConstraints)
	assert.Equal(t, DefaultScoringOptions().MaxDepth, options.MaxDepth)

	jsonPath := filepath.Join(dir, "options.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"max_depth": 3, "boosting_type": "Ordered", "worker_count": 4}`), 0o644))
	options, err = LoadScoringOptions(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, options.MaxDepth)
	assert.Equal(t, Ordered, options.BoostingType)
	assert.False(t, options.IsPlainMode())
	assert.Equal(t, 4, options.WorkerCount)
	assert.Equal(t, Cosine, options.ScoreFunction)

	invalidPath := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalidPath, []byte("max_depth: 40\n"), 0o644))
	_, err = LoadScoringOptions(invalidPath)
	assert.True(t, errors.Is(err, ErrInvalidOptions))

	brokenPath := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(brokenPath, []byte("{"), 0o644))
	_, err = LoadScoringOptions(brokenPath)
	assert.Error(t, err)

	_, err = LoadScoringOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
