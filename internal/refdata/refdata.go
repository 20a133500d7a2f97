// Package refdata loads the static reference datasets (stations, stops, malls,
// schools and planning-area polygons) used by every estimate.
package refdata

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/resale-estimator/internal/geo"
)

// ErrEmptyDataset is returned when a dataset required by a computation has no rows.
var ErrEmptyDataset = eris.New("refdata: empty reference dataset")

// Kind identifies a point dataset.
type Kind string

// Point dataset kinds.
const (
	KindTransit   Kind = "transit"
	KindBus       Kind = "bus"
	KindMall      Kind = "mall"
	KindPrimary   Kind = "primary_school"
	KindSecondary Kind = "secondary_school"
)

// AllKinds lists every point dataset in load order.
var AllKinds = []Kind{KindTransit, KindBus, KindMall, KindPrimary, KindSecondary}

// Entry is a named point of interest with the flags attached at load time.
type Entry struct {
	Name           string
	Coord          geo.Coordinate
	MRTInterchange bool
	BusInterchange bool
	Affiliated     bool
	Elite          bool
}

// Region is a planning-area polygon. Geometry is a *geom.Polygon or *geom.MultiPolygon.
type Region struct {
	Name     string
	Geometry geom.T
}

// Source provides raw reference rows in dataset order.
type Source interface {
	Entries(ctx context.Context, kind Kind) ([]Entry, error)
	Regions(ctx context.Context) ([]Region, error)
}
