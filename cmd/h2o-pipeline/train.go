package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanorepuser4/h2o-3/pkg/config"
	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/frameio"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a pipeline and optionally score frames with it",
		Args:  cobra.NoArgs,
		RunE:  runTrain,
	}
	addPipelineFlags(cmd)
	cmd.Flags().StringSlice("score", nil, "CSV files to score with the trained pipeline")
	cmd.Flags().StringP("out", "o", "", "Directory receiving <frame>_predictions.csv for every scored file")
	cmd.Flags().Bool("metrics", true, "Compute metrics on scored frames that carry the response column")
	return cmd
}

// addPipelineFlags registers the flags shared by train and grid.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("pipeline", "p", "", "Path to the pipeline specification (YAML)")
	cmd.Flags().String("train", "", "Training frame (CSV)")
	cmd.Flags().String("valid", "", "Validation frame (CSV)")
	cmd.Flags().StringArray("set", nil, "Override a pipeline parameter, as path=value (repeatable)")
	_ = cmd.MarkFlagRequired("train")
}

// pipelineInput is what train and grid read before training.
type pipelineInput struct {
	params *pipeline.Parameters
	train  *domain.Frame
	valid  *domain.Frame
}

func (a *app) readPipelineInput(cmd *cobra.Command) (*pipelineInput, error) {
	specPath, _ := cmd.Flags().GetString("pipeline")
	if specPath == "" {
		specPath = a.cfg.Pipeline.File
	}
	if specPath == "" {
		return nil, fmt.Errorf("no pipeline specification: use --pipeline or set pipeline.file")
	}

	spec, err := config.LoadPipelineSpec(specPath)
	if err != nil {
		return nil, err
	}
	params, err := spec.ToParameters(a.registry)
	if err != nil {
		return nil, err
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	if err := applyOverrides(params, sets); err != nil {
		return nil, err
	}

	in := &pipelineInput{params: params}
	trainPath, _ := cmd.Flags().GetString("train")
	if in.train, err = frameio.ReadFile(trainPath); err != nil {
		return nil, fmt.Errorf("failed to read training frame: %w", err)
	}
	if validPath, _ := cmd.Flags().GetString("valid"); validPath != "" {
		if in.valid, err = frameio.ReadFile(validPath); err != nil {
			return nil, fmt.Errorf("failed to read validation frame: %w", err)
		}
	}
	return in, nil
}

// applyOverrides sets every path=value pair on params, in order. Values are
// passed as text and coerced by the parameter that receives them.
func applyOverrides(params *pipeline.Parameters, sets []string) error {
	for _, set := range sets {
		path, value, ok := strings.Cut(set, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			return fmt.Errorf("%w: --set %q is not of the form path=value", domain.ErrConfigInvalid, set)
		}
		if err := params.SetParameter(path, strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return params.Validate()
}

func runTrain(cmd *cobra.Command, _ []string) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	in, err := a.readPipelineInput(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	builder, err := pipeline.NewBuilder(in.params, a.registry, a.stores, a.options()...)
	if err != nil {
		return err
	}

	start := time.Now()
	model, err := builder.Train(ctx, in.train, in.valid)
	a.collector.RecordTrain(err, time.Since(start))
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model %s\n", model.Key())
	printMetrics(out, "training", model.TrainingMetrics())
	printMetrics(out, "validation", model.ValidationMetrics())

	scorePaths, _ := cmd.Flags().GetStringSlice("score")
	outDir, _ := cmd.Flags().GetString("out")
	withMetrics, _ := cmd.Flags().GetBool("metrics")
	for _, path := range scorePaths {
		if err := a.scoreFile(ctx, out, model, path, outDir, withMetrics); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) scoreFile(ctx context.Context, out io.Writer, model *pipeline.Model, path, outDir string, withMetrics bool) error {
	fr, err := frameio.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if withMetrics && model.Parameters().ResponseColumn != "" && fr.Index(model.Parameters().ResponseColumn) < 0 {
		withMetrics = false
	}

	dest := domain.Key(fmt.Sprintf("%s_predictions", fr.Key()))
	start := time.Now()
	preds, err := model.Score(ctx, fr, dest, withMetrics)
	a.collector.RecordScore(model.Key().String(), err, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to score %s: %w", path, err)
	}
	defer a.stores.Frames.Remove(preds.Key())

	if withMetrics {
		if mm, ok := a.stores.Metrics.Get(model.Key(), fr.Key()); ok {
			printMetrics(out, string(fr.Key()), mm)
		}
	}

	if outDir == "" {
		return frameio.WriteCSV(out, preds)
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	target := filepath.Join(outDir, string(dest)+".csv")
	if err := frameio.WriteFile(target, preds); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	a.logger.Info("Predictions written", "model", model.Key(), "frame", fr.Key(), "path", target, "rows", preds.NumRows())
	return nil
}

func printMetrics(out io.Writer, label string, mm *domain.ModelMetrics) {
	if mm == nil {
		return
	}
	fmt.Fprintf(out, "%s metrics (%s):\n", label, mm.FrameKey)
	for _, name := range mm.Names() {
		v, _ := mm.Value(name)
		fmt.Fprintf(out, "  %-6s %g\n", name, v)
	}
}
