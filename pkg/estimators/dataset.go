package estimators

import (
	"fmt"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

type datasetRow struct {
	x []float64
	y float64
}

// dataset is the complete rows of a training frame split into features and response.
type dataset struct {
	response string
	features []string
	rows     []datasetRow
}

func requireResponse(fr *domain.Frame, response string) ([]float64, error) {
	if response == "" {
		return nil, fmt.Errorf("%w: %s is required", domain.ErrConfigInvalid, ParamResponseColumn)
	}
	if fr == nil {
		return nil, fmt.Errorf("%w: nil training frame", domain.ErrInvalidFrame)
	}
	return fr.MustVec(response)
}

// newDataset uses every column except the response and the ignored columns as a feature.
func newDataset(fr *domain.Frame, p *Params) (*dataset, error) {
	response := p.table.String(ParamResponseColumn)
	y, err := requireResponse(fr, response)
	if err != nil {
		return nil, err
	}

	ignored := make(map[string]struct{})
	for _, c := range p.table.Strings(ParamIgnoredColumns) {
		ignored[c] = struct{}{}
	}
	ds := &dataset{response: response}
	var cols [][]float64
	for i, name := range fr.Names() {
		if _, skip := ignored[name]; skip || name == response {
			continue
		}
		ds.features = append(ds.features, name)
		cols = append(cols, fr.Vecs()[i])
	}
	if len(ds.features) == 0 {
		return nil, fmt.Errorf("%w: frame %q has no feature columns", domain.ErrInvalidFrame, fr.Key())
	}

	for r := 0; r < fr.NumRows(); r++ {
		if domain.IsNA(y[r]) {
			continue
		}
		x := make([]float64, len(cols))
		complete := true
		for j, col := range cols {
			if domain.IsNA(col[r]) {
				complete = false
				break
			}
			x[j] = col[r]
		}
		if complete {
			ds.rows = append(ds.rows, datasetRow{x: x, y: y[r]})
		}
	}
	return ds, nil
}

// attachMetrics computes and stores the training and validation metrics.
func (m *RegressionModel) attachMetrics(in runtime.TrainInput) error {
	for _, target := range []struct {
		fr  *domain.Frame
		dst **domain.ModelMetrics
	}{
		{in.Train, &m.trainingMetrics},
		{in.Valid, &m.validationMetrics},
	} {
		if target.fr == nil {
			continue
		}
		preds, err := m.predictFrame(target.fr)
		if err != nil {
			return fmt.Errorf("metrics on %q: %w", target.fr.Key(), err)
		}
		mm, ok := m.metricsFor(target.fr, preds)
		if !ok {
			continue
		}
		if err := m.stores.Metrics.Put(mm); err != nil {
			return err
		}
		*target.dst = mm
	}
	return nil
}
