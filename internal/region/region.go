// Package region resolves a coordinate to the planning area that contains it.
package region

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/refdata"
)

// Unknown is returned when no region contains the point. It is a normal result.
const Unknown = "unknown"

// Locator answers point-in-region queries over a fixed, ordered region list.
type Locator struct {
	regions []refdata.Region
}

// NewLocator wraps regions. The slice is not copied and must not be mutated.
func NewLocator(regions []refdata.Region) *Locator {
	return &Locator{regions: regions}
}

// Locate returns the name of the first region whose interior contains p.
// Points on a boundary or inside a hole are not contained.
func (l *Locator) Locate(p geo.Coordinate) (string, error) {
	if len(l.regions) == 0 {
		return "", eris.Wrap(refdata.ErrEmptyDataset, "region: locate")
	}

	pt := []float64{p.Lon, p.Lat}
	for _, r := range l.regions {
		ok, err := Contains(r.Geometry, pt)
		if err != nil {
			return "", eris.Wrapf(err, "region: %s", r.Name)
		}
		if ok {
			return r.Name, nil
		}
	}

	zap.L().Debug("region: point outside all regions",
		zap.Float64("lat", p.Lat),
		zap.Float64("lon", p.Lon),
	)
	return Unknown, nil
}

// Contains reports whether the (x, y) point lies strictly inside g.
func Contains(g geom.T, pt []float64) (bool, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, pt), nil
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), pt) {
				return true, nil
			}
		}
		return false, nil
	case nil:
		return false, eris.New("region: nil geometry")
	default:
		return false, eris.Errorf("region: unsupported geometry %T", g)
	}
}

func polygonContains(p *geom.Polygon, pt []float64) bool {
	if p.Empty() || p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	if !p.Bounds().OverlapsPoint(layout, geom.Coord(pt)) {
		return false
	}

	shell := p.LinearRing(0)
	if xy.LocatePointInRing(layout, pt, shell.FlatCoords()) != location.Interior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		// Interior or boundary of a hole is outside the polygon.
		if xy.LocatePointInRing(layout, pt, p.LinearRing(i).FlatCoords()) != location.Exterior {
			return false
		}
	}
	return true
}
