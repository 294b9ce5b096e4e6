package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/grid"
)

func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Train one pipeline per combination of hyper-parameter values",
		Long: `Trains one pipeline per combination of the hyper-parameter values given as a
JSON object of parameter path to value list, inline or as @file:

  h2o-pipeline grid -p houses.yaml --train train.csv --valid valid.csv \
    --hyper '{"estimator.lambda": [0, 0.1, 1], "scale.center": [true, false]}'`,
		Args: cobra.NoArgs,
		RunE: runGrid,
	}
	addPipelineFlags(cmd)
	cmd.Flags().String("hyper", "", "Hyper-parameter space as JSON, or @path to a JSON file")
	cmd.Flags().String("sort-by", domain.MetricRMSE, "Metric used to pick the best model")
	cmd.Flags().Int("parallelism", 0, "Concurrent training runs (defaults to grid.parallelism)")
	_ = cmd.MarkFlagRequired("hyper")
	return cmd
}

// readHyper returns the inline JSON or the content of the file after "@".
func readHyper(raw string) (string, error) {
	path, ok := strings.CutPrefix(raw, "@")
	if !ok {
		return raw, nil
	}
	//nolint:gosec // hyper space file is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read hyper space %s: %w", path, err)
	}
	return string(data), nil
}

func runGrid(cmd *cobra.Command, _ []string) (err error) {
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

	hyperFlag, _ := cmd.Flags().GetString("hyper")
	raw, err := readHyper(hyperFlag)
	if err != nil {
		return err
	}
	space, err := grid.ParseHyperSpace(raw)
	if err != nil {
		return err
	}

	parallelism := a.cfg.Grid.Parallelism
	if cmd.Flags().Changed("parallelism") {
		parallelism, _ = cmd.Flags().GetInt("parallelism")
	}

	searcher := grid.NewSearcher(grid.Config{
		Registry:    a.registry,
		Stores:      a.stores,
		Parallelism: parallelism,
		Logger:      a.logger,
		Observer:    a.collector,
		Options:     a.options(),
	})
	result, err := searcher.Search(cmd.Context(), in.params, space, in.train, in.valid)
	if err != nil {
		return err
	}

	metric, _ := cmd.Flags().GetString("sort-by")
	out := cmd.OutOrStdout()
	for _, e := range result.Models {
		mm := e.Model.ValidationMetrics()
		if mm == nil {
			mm = e.Model.TrainingMetrics()
		}
		v, _ := mm.Value(metric)
		fmt.Fprintf(out, "%s\t%s=%g\t%s\n", e.Key, metric, v, formatValues(e.Values))
	}
	for _, e := range result.Failures {
		fmt.Fprintf(out, "%s\tfailed: %v\t%s\n", e.Key, e.Err, formatValues(e.Values))
	}
	if result.Duplicates > 0 {
		fmt.Fprintf(out, "skipped %d duplicate combinations\n", result.Duplicates)
	}
	if best, ok := result.Best(metric); ok {
		fmt.Fprintf(out, "best %s\n", best.Key)
	}
	if len(result.Models) == 0 {
		return fmt.Errorf("no model trained: %d combinations failed", len(result.Failures))
	}
	return nil
}

func formatValues(values map[string]any) string {
	parts := make([]string, 0, len(values))
	for _, path := range sortedKeys(values) {
		parts = append(parts, fmt.Sprintf("%s=%v", path, values[path]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
