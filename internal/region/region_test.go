package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/refdata"
)

func mustRegion(t *testing.T, name, wkt string) refdata.Region {
	t.Helper()
	g, err := refdata.ParseWKT(wkt)
	require.NoError(t, err)
	return refdata.Region{Name: name, Geometry: g}
}

func testRegions(t *testing.T) []refdata.Region {
	return []refdata.Region{
		mustRegion(t, "BISHAN", "POLYGON ((103.83 1.34, 103.86 1.34, 103.86 1.37, 103.83 1.37, 103.83 1.34))"),
		mustRegion(t, "DONUT", "POLYGON ((103.90 1.30, 104.00 1.30, 104.00 1.40, 103.90 1.40, 103.90 1.30), (103.94 1.34, 103.96 1.34, 103.96 1.36, 103.94 1.36, 103.94 1.34))"),
		mustRegion(t, "CENTRAL AREA", "MULTIPOLYGON (((103.70 1.20, 103.72 1.20, 103.72 1.22, 103.70 1.22, 103.70 1.20)), ((103.75 1.25, 103.77 1.25, 103.77 1.27, 103.75 1.27, 103.75 1.25)))"),
		mustRegion(t, "OVERLAP", "POLYGON ((103.84 1.35, 103.85 1.35, 103.85 1.36, 103.84 1.36, 103.84 1.35))"),
	}
}

func TestLocate(t *testing.T) {
	loc := NewLocator(testRegions(t))

	tests := []struct {
		name     string
		lat, lon float64
		want     string
	}{
		{"inside", 1.3521, 103.8450, "BISHAN"},
		{"outside all", 1.4500, 103.6000, Unknown},
		{"inside hole", 1.3500, 103.9500, Unknown},
		{"ring around hole", 1.3200, 103.9200, "DONUT"},
		{"on hole boundary", 1.3400, 103.9500, Unknown},
		{"on shell boundary", 1.3400, 103.8400, Unknown},
		{"on shell vertex", 1.3400, 103.8300, Unknown},
		{"second multipolygon part", 1.2600, 103.7600, "CENTRAL AREA"},
		{"first match wins", 1.3550, 103.8450, "BISHAN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loc.Locate(geo.MustCoordinate(tt.lat, tt.lon))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocate_EmptyDataset(t *testing.T) {
	_, err := NewLocator(nil).Locate(geo.MustCoordinate(1.35, 103.85))
	assert.ErrorIs(t, err, refdata.ErrEmptyDataset)
}

func TestLocate_UnsupportedGeometry(t *testing.T) {
	loc := NewLocator([]refdata.Region{
		{Name: "POINT", Geometry: geom.NewPointFlat(geom.XY, []float64{103.85, 1.35})},
	})
	_, err := loc.Locate(geo.MustCoordinate(1.35, 103.85))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry")
}

func TestContains_NilGeometry(t *testing.T) {
	_, err := Contains(nil, []float64{0, 0})
	assert.Error(t, err)
}
