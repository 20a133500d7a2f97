// Package store persists appraisal history.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-estimator/internal/appraise"
)

// ErrNotFound is returned when an estimate id does not exist.
var ErrNotFound = eris.New("store: estimate not found")

// DefaultLimit caps Recent when the caller passes no limit.
const DefaultLimit = 20

// MaxLimit is the largest page Recent returns.
const MaxLimit = 500

// Estimate is one stored appraisal.
type Estimate struct {
	ID             string          `json:"id"`
	Version        string          `json:"version"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	StoreyRange    int             `json:"storey_range"`
	FloorArea      int             `json:"floor_area_sqm"`
	RemainingLease int             `json:"remaining_lease"`
	Town           string          `json:"town"`
	Station        string          `json:"mrt_station"`
	Price          string          `json:"price"`
	Amount         int64           `json:"amount"`
	Features       json.RawMessage `json:"features"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store defines estimate history persistence. Implementations satisfy appraise.Recorder.
type Store interface {
	Record(ctx context.Context, r *appraise.Result) error
	Get(ctx context.Context, id string) (*Estimate, error)
	Recent(ctx context.Context, limit int) ([]Estimate, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// FromResult converts an appraisal into a row with a fresh id.
func FromResult(r *appraise.Result) (*Estimate, error) {
	feats, err := json.Marshal(r.Features)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal features")
	}
	created := r.At
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &Estimate{
		ID:             uuid.New().String(),
		Version:        string(r.Version),
		Latitude:       r.Location.Lat,
		Longitude:      r.Location.Lon,
		StoreyRange:    r.Listing.StoreyRange,
		FloorArea:      r.Listing.FloorArea,
		RemainingLease: r.Listing.RemainingLease,
		Town:           r.Town,
		Station:        r.Station,
		Price:          r.Price,
		Amount:         r.Amount,
		Features:       feats,
		CreatedAt:      created,
	}, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
