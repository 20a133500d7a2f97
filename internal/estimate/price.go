// Package estimate turns a reconciled row into a floored, formatted price.
package estimate

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/resale-estimator/internal/model"
	"github.com/sells-group/resale-estimator/internal/schema"
)

// DefaultTimeout bounds a single scoring call.
const DefaultTimeout = 5 * time.Second

// Step is the granularity prices are floored to.
const Step = 1000

// ErrInvalidScore is returned when the scorer produces NaN or an infinity.
var ErrInvalidScore = eris.New("estimate: non-finite score")

// Estimate is a scored price.
type Estimate struct {
	// Raw is the scorer output before flooring.
	Raw float64 `json:"raw"`
	// Amount is Raw floored to a multiple of Step.
	Amount int64 `json:"amount"`
	// Price is Amount with thousands separators, e.g. "450,000".
	Price string `json:"price"`
}

// Estimator scores rows with a timeout.
type Estimator struct {
	Scorer  model.Scorer
	Timeout time.Duration
}

// New returns an Estimator using DefaultTimeout.
func New(scorer model.Scorer) *Estimator {
	return &Estimator{Scorer: scorer, Timeout: DefaultTimeout}
}

type scoreResult struct {
	y   float64
	err error
}

// Estimate scores row. The scorer must accept exactly the row's width.
func (e *Estimator) Estimate(ctx context.Context, row *schema.Row) (*Estimate, error) {
	if w := e.Scorer.Width(); w != row.Width() {
		return nil, eris.Wrapf(model.ErrSchemaMismatch, "estimate: scorer width %d, row %s width %d", w, row.Version, row.Width())
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan scoreResult, 1)
	go func() {
		y, err := e.Scorer.Score(ctx, row.Values)
		done <- scoreResult{y, err}
	}()

	var res scoreResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "estimate: score")
	}
	if res.err != nil {
		return nil, eris.Wrap(res.err, "estimate: score")
	}
	return FromScore(res.y)
}

// maxScore is the largest score whose floored amount fits in an int64.
const maxScore = float64(math.MaxInt64 / Step * Step)

// FromScore floors y to the lower multiple of Step and formats it. Prices
// are non-negative; scores that are not finite, negative, or too large for
// an int64 amount are rejected.
func FromScore(y float64) (*Estimate, error) {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return nil, eris.Wrapf(ErrInvalidScore, "score %v", y)
	}
	if y < 0 || y >= maxScore {
		return nil, eris.Wrapf(ErrInvalidScore, "score %v out of range", y)
	}
	amount := int64(math.Floor(y/Step) * Step)
	return &Estimate{
		Raw:    y,
		Amount: amount,
		Price:  Format(amount),
	}, nil
}

// Format renders amount with English thousands separators.
func Format(amount int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", amount)
}
