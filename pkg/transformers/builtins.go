package transformers

import (
	"sort"

	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

var (
	_ runtime.Transformer = (*StandardScaler)(nil)
	_ runtime.Preparer    = (*StandardScaler)(nil)
	_ runtime.Checksummer = (*StandardScaler)(nil)
	_ runtime.Transformer = (*MeanImputer)(nil)
	_ runtime.Preparer    = (*MeanImputer)(nil)
	_ runtime.Transformer = (*ColumnDropper)(nil)
	_ runtime.Transformer = (*MissingRowFilter)(nil)
)

// RegisterBuiltins registers the built-in transformers with r.
func RegisterBuiltins(r *pipeline.Registry) {
	r.RegisterTransformer(KindScaler, "v1", func(id string, values map[string]any) (runtime.Transformer, error) {
		return applyParams(NewStandardScaler(id), values)
	}, "standard_scaler", "scale")
	r.RegisterTransformer(KindImputer, "v1", func(id string, values map[string]any) (runtime.Transformer, error) {
		return applyParams(NewMeanImputer(id), values)
	}, "mean_imputer", "impute")
	r.RegisterTransformer(KindDrop, "v1", func(id string, values map[string]any) (runtime.Transformer, error) {
		return applyParams(NewColumnDropper(id), values)
	}, "column_dropper", "drop_columns")
	r.RegisterTransformer(KindMissingFilter, "v1", func(id string, values map[string]any) (runtime.Transformer, error) {
		return applyParams(NewMissingRowFilter(id), values)
	}, "missing_row_filter", "dropna")
}

func sortedNames(values map[string]any) []string {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
