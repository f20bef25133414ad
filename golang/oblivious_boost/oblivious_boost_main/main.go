package main

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tarstars/oblivious_boosting/golang/oblivious_boost/obl"
	"gonum.org/v1/gonum/mat"
)

var (
	configFileName string
	memprofile     string
	logLevel       string

	modelFileName  string
	figureType     string
	figureFileName string

	logger         = slog.Default()
	configValidate = validator.New()
)

//ScoreConfig describes a run of the score command.
type ScoreConfig struct {
	Dataset        obl.DatasetFiles   `json:"dataset" yaml:"dataset"`
	Options        obl.ScoringOptions `json:"options" yaml:"options"`
	ReportFileName string             `json:"filename_report" yaml:"filename_report" validate:"required"`
	ScoresFileName string             `json:"filename_scores,omitempty" yaml:"filename_scores,omitempty"`
}

//GrowConfig describes a run of the grow command.
type GrowConfig struct {
	Dataset        obl.DatasetFiles   `json:"dataset" yaml:"dataset"`
	Options        obl.ScoringOptions `json:"options" yaml:"options"`
	ModelFileName  string             `json:"filename_model" yaml:"filename_model" validate:"required"`
	FigureFileName string             `json:"filename_figure,omitempty" yaml:"filename_figure,omitempty"`
	FigureType     string             `json:"figure_type,omitempty" yaml:"figure_type,omitempty"`
}

//EnsembleReport is the score report of one split ensemble.
type EnsembleReport struct {
	Ensemble  string    `json:"ensemble"`
	Scores    []float64 `json:"scores"`
	BestSplit string    `json:"best_split"`
	BestScore float64   `json:"best_score"`
}

func decodeConfig(srcConfig string, out interface{}) error {
	if err := obl.DecodeConfigFile(srcConfig, out); err != nil {
		return err
	}
	if err := configValidate.Struct(out); err != nil {
		return fmt.Errorf("config %s: %w", srcConfig, err)
	}
	return nil
}

func score(srcConfig string) error {
	config := ScoreConfig{Options: obl.DefaultScoringOptions()}
	if err := decodeConfig(srcConfig, &config); err != nil {
		return err
	}
	//one level is scored, nothing to reuse
	config.Options.UseTreeLevelCaching = false

	dataset, err := obl.ReadDataset(config.Dataset, logger)
	if err != nil {
		return err
	}
	features := dataset.Features()
	metrics := obl.NewMetrics(prometheus.NewRegistry())
	scorer, err := obl.NewScorer(features, config.Options, metrics, logger)
	if err != nil {
		return err
	}

	level := &obl.TreeLevel{Fold: dataset.Fold(), Depth: dataset.Depth()}
	logger.Info("score level", "depth", level.Depth, "documents", dataset.Height())

	var reports []EnsembleReport
	maxSplits := 0
	for _, ensemble := range features.Ensembles(config.Options.OneHotMaxSize) {
		scores, err := scorer.CalcScores(level, ensemble)
		if err != nil {
			return err
		}
		report := EnsembleReport{Ensemble: ensemble.String(), Scores: scores, BestScore: math.Inf(-1)}
		for splitIdx, val := range scores {
			if val > report.BestScore {
				report.BestScore = val
				report.BestSplit = features.CandidateSplit(ensemble, splitIdx, config.Options.OneHotMaxSize).String()
			}
		}
		maxSplits = max(maxSplits, len(scores))
		reports = append(reports, report)
	}

	reportByteRepr, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(config.ReportFileName, reportByteRepr, 0o644); err != nil {
		return err
	}

	if config.ScoresFileName != "" && len(reports) > 0 && maxSplits > 0 {
		scoresMatrix := mat.NewDense(len(reports), maxSplits, nil)
		for p, report := range reports {
			for q := 0; q < maxSplits; q++ {
				val := math.NaN()
				if q < len(report.Scores) {
					val = report.Scores[q]
				}
				scoresMatrix.Set(p, q, val)
			}
		}
		if err := obl.WriteNpy(config.ScoresFileName, scoresMatrix); err != nil {
			return err
		}
	}
	return nil
}

func grow(srcConfig string) error {
	config := GrowConfig{Options: obl.DefaultScoringOptions()}
	if err := decodeConfig(srcConfig, &config); err != nil {
		return err
	}
	dataset, err := obl.ReadDataset(config.Dataset, logger)
	if err != nil {
		return err
	}
	features := dataset.Features()
	scorer, err := obl.NewScorer(features, config.Options, obl.NewMetrics(prometheus.NewRegistry()), logger)
	if err != nil {
		return err
	}

	tree, err := obl.NewTreeGrower(scorer).Grow(dataset.Fold(), features.Ensembles(config.Options.OneHotMaxSize), nil)
	if err != nil {
		return err
	}
	if err := tree.Save(config.ModelFileName); err != nil {
		return err
	}
	if config.FigureFileName != "" {
		kind := config.FigureType
		if kind == "" {
			kind = "svg"
		}
		return tree.Render(config.FigureFileName, kind)
	}
	return nil
}

func graph() error {
	tree, err := obl.LoadTree(modelFileName)
	if err != nil {
		return err
	}
	return tree.Render(figureFileName, figureType)
}

func writeMemProfile() {
	if memprofile == "" {
		return
	}
	f, err := os.Create(memprofile)
	obl.HandleError(err)
	defer func() { obl.HandleError(f.Close()) }()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write memory profile: ", err)
	}
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", logLevel, err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run_id", uuid.NewString()), nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oblivious_boost",
		Short:         "Histogram split scoring for oblivious trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = newLogger()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			writeMemProfile()
		},
	}
	rootCmd.PersistentFlags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file`")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score every float feature split at the level given by leaf indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return score(configFileName)
		},
	}
	growCmd := &cobra.Command{
		Use:   "grow",
		Short: "Grow one oblivious tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return grow(configFileName)
		},
	}
	for _, cmd := range []*cobra.Command{scoreCmd, growCmd} {
		cmd.Flags().StringVar(&configFileName, "config", "oblivious_config.yaml", "a config file for the run of the program")
	}

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Render a saved tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return graph()
		},
	}
	graphCmd.Flags().StringVar(&modelFileName, "model", "tree.json", "a saved tree")
	graphCmd.Flags().StringVar(&figureType, "format", "svg", "png, svg, jpg or dot")
	graphCmd.Flags().StringVar(&figureFileName, "out", "tree.svg", "output file")

	rootCmd.AddCommand(scoreCmd, growCmd, graphCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
