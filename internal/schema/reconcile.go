package schema

import (
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/features"
)

// Scaler transforms a reconciled row before scoring.
type Scaler interface {
	Width() int
	Transform(values []float64) ([]float64, error)
}

// Row is a vector aligned to a version's columns.
type Row struct {
	Version Tag
	Columns []string
	// Values is what the scorer receives (scaled when the version requires it).
	Values []float64
}

// Width is the number of values.
func (r *Row) Width() int { return len(r.Values) }

// Reconcile aligns v to ver's columns. Categorical attributes are one-hot
// expanded over the trained vocabulary, absent columns are zero, extra
// attributes are dropped. A missing raw attribute is an error.
func Reconcile(v *features.Vector, ver Version, scaler Scaler) (*Row, error) {
	if ver.Scaled && scaler == nil {
		return nil, eris.Wrapf(ErrSchemaMismatch, "version %s requires a scaler", ver.Tag)
	}
	if !ver.Scaled && scaler != nil {
		return nil, eris.Wrapf(ErrSchemaMismatch, "version %s takes unscaled input", ver.Tag)
	}
	if scaler != nil && scaler.Width() != ver.Width() {
		return nil, eris.Wrapf(ErrSchemaMismatch, "scaler width %d, version %s has %d columns",
			scaler.Width(), ver.Tag, ver.Width())
	}

	for _, attr := range ver.Required() {
		if !v.Has(attr) {
			return nil, eris.Wrapf(features.ErrMissingAttribute, "%s", attr)
		}
	}

	expanded := make(map[string]float64, ver.Width())
	for _, k := range v.Keys() {
		if x, ok := v.Number(k); ok {
			expanded[k] = x
		}
	}
	for _, attr := range ver.Categorical {
		label, ok := v.Label(attr)
		if !ok {
			return nil, eris.Wrapf(features.ErrMissingAttribute, "%s is not categorical", attr)
		}
		col := attr + "_" + label
		if !slices.Contains(ver.Columns, col) {
			zap.L().Debug("schema: value outside trained vocabulary",
				zap.String("version", string(ver.Tag)),
				zap.String("attribute", attr),
				zap.String("value", label),
			)
			continue
		}
		expanded[col] = 1
	}

	values := make([]float64, ver.Width())
	for i, col := range ver.Columns {
		values[i] = expanded[col]
	}

	row := &Row{
		Version: ver.Tag,
		Columns: ver.Columns,
		Values:  values,
	}
	if scaler != nil {
		scaled, err := scaler.Transform(values)
		if err != nil {
			return nil, eris.Wrap(err, "schema: scale")
		}
		if len(scaled) != len(values) {
			return nil, eris.Wrapf(ErrSchemaMismatch, "scaler returned %d values, want %d", len(scaled), len(values))
		}
		row.Values = scaled
	}
	return row, nil
}
