package refdata

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ParseWKT decodes a POLYGON or MULTIPOLYGON in lon/lat order.
func ParseWKT(s string) (geom.T, error) {
	if s == "" {
		return nil, eris.New("empty geometry")
	}

	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "decode WKT")
	}

	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}
}

// FormatWKT encodes a region geometry back to WKT.
func FormatWKT(g geom.T) (string, error) {
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "encode WKT")
	}
	return s, nil
}
