package model

import (
	"context"

	"github.com/rotisserie/eris"
)

// Scorer maps a positional input row to one scalar.
type Scorer interface {
	Width() int
	Score(ctx context.Context, values []float64) (float64, error)
}

// LinearScorer is intercept + coefficients . values.
type LinearScorer struct {
	intercept float64
	coef      []float64
}

// NewLinearScorer builds a scorer from an artifact with local coefficients.
func NewLinearScorer(a *Artifact) (*LinearScorer, error) {
	if a.Remote() {
		return nil, eris.Wrap(ErrSchemaMismatch, "model: artifact has no coefficients")
	}
	coef := make([]float64, len(a.Coefficients))
	copy(coef, a.Coefficients)
	return &LinearScorer{intercept: a.Intercept, coef: coef}, nil
}

// Width is the coefficient count.
func (s *LinearScorer) Width() int { return len(s.coef) }

// Score evaluates the linear model.
func (s *LinearScorer) Score(ctx context.Context, values []float64) (float64, error) {
	if len(values) != len(s.coef) {
		return 0, eris.Wrapf(ErrSchemaMismatch, "model: got %d values, want %d", len(values), len(s.coef))
	}
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "model: score")
	}
	y := s.intercept
	for i, x := range values {
		y += s.coef[i] * x
	}
	return y, nil
}

// StandardScaler applies (x - mean) / scale per column.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler validates and copies the fitted parameters. A zero scale
// is treated as 1, matching constant training columns.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) != len(scale) {
		return nil, eris.Wrapf(ErrSchemaMismatch, "model: scaler mean has %d values, scale has %d", len(mean), len(scale))
	}
	s := &StandardScaler{
		mean:  make([]float64, len(mean)),
		scale: make([]float64, len(scale)),
	}
	copy(s.mean, mean)
	for i, x := range scale {
		if x == 0 {
			x = 1
		}
		s.scale[i] = x
	}
	return s, nil
}

// Width is the number of columns the scaler was fitted on.
func (s *StandardScaler) Width() int { return len(s.mean) }

// Transform returns a scaled copy of values.
func (s *StandardScaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.mean) {
		return nil, eris.Wrapf(ErrSchemaMismatch, "model: scaler got %d values, want %d", len(values), len(s.mean))
	}
	out := make([]float64, len(values))
	for i, x := range values {
		out[i] = (x - s.mean[i]) / s.scale[i]
	}
	return out, nil
}
