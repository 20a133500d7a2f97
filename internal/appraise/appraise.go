// Package appraise wires the feature pipeline, schema reconciliation and
// scoring into a single price estimate.
package appraise

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/estimate"
	"github.com/sells-group/resale-estimator/internal/features"
	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/metrics"
	"github.com/sells-group/resale-estimator/internal/model"
	"github.com/sells-group/resale-estimator/internal/refdata"
	"github.com/sells-group/resale-estimator/internal/schema"
)

// Result is one appraisal.
type Result struct {
	Price    string           `json:"price"`
	Amount   int64            `json:"amount"`
	Raw      float64          `json:"raw"`
	Town     string           `json:"town"`
	Station  string           `json:"mrt_station"`
	Location geo.Coordinate   `json:"location"`
	Listing  features.Listing `json:"listing"`
	Features *features.Vector `json:"features"`
	Version  schema.Tag       `json:"version"`
	At       time.Time        `json:"at"`
}

// Recorder persists results. Failures are logged, not returned to the caller.
type Recorder interface {
	Record(ctx context.Context, r *Result) error
}

// Option configures an Appraiser.
type Option func(*Appraiser)

// WithRecorder stores every successful result.
func WithRecorder(r Recorder) Option {
	return func(a *Appraiser) { a.recorder = r }
}

// WithMetrics records estimate counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Appraiser) { a.metrics = m }
}

// WithClock overrides the wall clock used for temporal features and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Appraiser) { a.now = now }
}

// WithTimeout bounds the scoring step.
func WithTimeout(d time.Duration) Option {
	return func(a *Appraiser) { a.timeout = d }
}

// Appraiser is safe for concurrent use.
type Appraiser struct {
	version   schema.Version
	assembler *features.Assembler
	estimator *estimate.Estimator
	scaler    schema.Scaler
	recorder  Recorder
	metrics   *metrics.Metrics
	now       func() time.Time
	timeout   time.Duration
	log       *zap.Logger
}

// New checks that scorer and scaler belong to ver and returns an Appraiser.
func New(store *refdata.Store, ver schema.Version, scorer model.Scorer, scaler schema.Scaler, opts ...Option) (*Appraiser, error) {
	if store == nil {
		return nil, eris.New("appraise: nil reference store")
	}
	if scorer == nil {
		return nil, eris.New("appraise: nil scorer")
	}
	if scorer.Width() != ver.Width() {
		return nil, eris.Wrapf(model.ErrSchemaMismatch, "appraise: scorer width %d, schema %s has %d columns",
			scorer.Width(), ver.Tag, ver.Width())
	}
	if ver.Scaled != (scaler != nil) {
		return nil, eris.Wrapf(model.ErrSchemaMismatch, "appraise: schema %s scaled=%t, scaler present=%t",
			ver.Tag, ver.Scaled, scaler != nil)
	}
	if scaler != nil && scaler.Width() != ver.Width() {
		return nil, eris.Wrapf(model.ErrSchemaMismatch, "appraise: scaler width %d, schema %s has %d columns",
			scaler.Width(), ver.Tag, ver.Width())
	}

	a := &Appraiser{
		version: ver,
		scaler:  scaler,
		now:     time.Now,
		timeout: estimate.DefaultTimeout,
		log:     zap.L().With(zap.String("component", "appraise"), zap.String("version", string(ver.Tag))),
	}
	for _, o := range opts {
		o(a)
	}
	a.assembler = features.NewAssembler(store, ver.Plan, features.WithClock(a.now))
	a.estimator = &estimate.Estimator{Scorer: scorer, Timeout: a.timeout}
	return a, nil
}

// Version returns the schema version the appraiser scores against.
func (a *Appraiser) Version() schema.Version { return a.version }

// Appraise estimates the resale price of listing at (lat, lon).
func (a *Appraiser) Appraise(ctx context.Context, lat, lon float64, listing features.Listing) (*Result, error) {
	start := time.Now()
	res, err := a.appraise(ctx, lat, lon, listing)
	a.metrics.ObserveEstimate(string(a.version.Tag), time.Since(start).Seconds(), err)
	if err != nil {
		a.log.Debug("appraisal failed", zap.Error(err))
		return nil, err
	}

	if a.recorder != nil {
		if rerr := a.recorder.Record(ctx, res); rerr != nil {
			a.log.Warn("record estimate", zap.Error(rerr))
		}
	}
	return res, nil
}

func (a *Appraiser) appraise(ctx context.Context, lat, lon float64, listing features.Listing) (*Result, error) {
	q, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return nil, err
	}

	vec, err := a.assembler.Assemble(ctx, q, listing)
	if err != nil {
		return nil, eris.Wrap(err, "appraise: assemble features")
	}

	row, err := schema.Reconcile(vec, a.version, a.scaler)
	if err != nil {
		return nil, eris.Wrap(err, "appraise: reconcile")
	}

	est, err := a.estimator.Estimate(ctx, row)
	if err != nil {
		return nil, eris.Wrap(err, "appraise: estimate")
	}

	town, _ := vec.Label(features.AttrTown)
	station, _ := vec.Label(schema.AttrStation)

	a.log.Info("estimated price",
		zap.String("point", q.String()),
		zap.String("town", town),
		zap.String("price", est.Price),
	)

	return &Result{
		Price:    est.Price,
		Amount:   est.Amount,
		Raw:      est.Raw,
		Town:     town,
		Station:  station,
		Location: q,
		Listing:  listing,
		Features: vec,
		Version:  a.version.Tag,
		At:       a.now().UTC(),
	}, nil
}
