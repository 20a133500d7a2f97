package features

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/proximity"
	"github.com/sells-group/resale-estimator/internal/refdata"
)

var (
	query   = geo.MustCoordinate(1.3521, 103.8198)
	listing = Listing{StoreyRange: 10, FloorArea: 90, RemainingLease: 80}
	june    = func() time.Time { return time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC) }
)

func testStore(t *testing.T, primary []refdata.Entry) *refdata.Store {
	t.Helper()
	g, err := refdata.ParseWKT("POLYGON ((103.80 1.34, 103.84 1.34, 103.84 1.37, 103.80 1.37, 103.80 1.34))")
	require.NoError(t, err)
	return refdata.NewStore(map[refdata.Kind][]refdata.Entry{
		refdata.KindTransit: {
			{Name: "Bishan", Coord: geo.MustCoordinate(1.3557, 103.8198), MRTInterchange: true},
			{Name: "Marymount", Coord: geo.MustCoordinate(1.3490, 103.8390)},
		},
		refdata.KindPrimary: primary,
	}, []refdata.Region{{Name: "BISHAN", Geometry: g}})
}

var testPlan = Plan{
	Proximity: []proximity.Spec{
		{
			Kind:         refdata.KindTransit,
			Prefix:       "mrt",
			Distance:     true,
			NearestName:  "mrt_station",
			Interchanges: []proximity.Interchange{{Name: "near_mrt_itc", Flag: proximity.MRTInterchange}},
		},
		{
			Kind:   refdata.KindPrimary,
			Prefix: "pri",
			Radii:  []int{1000, 2000},
			Gates:  []proximity.Gate{{Name: "aff", Match: proximity.EliteAffiliated, Radii: []int{1000}}},
		},
	},
	SoldMonth: true,
}

func TestAssemble(t *testing.T) {
	store := testStore(t, []refdata.Entry{
		{Coord: geo.MustCoordinate(1.3530, 103.8198), Affiliated: true, Elite: true},
		{Coord: geo.MustCoordinate(1.3650, 103.8198)},
	})
	a := NewAssembler(store, testPlan, WithClock(june))

	v, err := a.Assemble(context.Background(), query, listing)
	require.NoError(t, err)

	assert.Equal(t, testPlan.Names(), v.Keys())

	num := func(name string) float64 {
		x, ok := v.Number(name)
		require.True(t, ok, name)
		return x
	}
	assert.Equal(t, 10.0, num(AttrStoreyRange))
	assert.Equal(t, 90.0, num(AttrFloorArea))
	assert.Equal(t, 80.0, num(AttrRemainingLease))
	assert.Equal(t, 8.0, num(AttrSoldYear))
	assert.Equal(t, 6.0, num(AttrSoldMonth))
	assert.InDelta(t, 400, num("mrt_dist"), 2)
	assert.Equal(t, 1.0, num("near_mrt_itc"))
	assert.Equal(t, 1.0, num("pri_u1km"))
	assert.Equal(t, 2.0, num("pri_u2km"))
	assert.Equal(t, 1.0, num("pri_aff_u1km"))

	station, ok := v.Label("mrt_station")
	require.True(t, ok)
	assert.Equal(t, "Bishan", station)

	town, ok := v.Label(AttrTown)
	require.True(t, ok)
	assert.Equal(t, "BISHAN", town)
}

func TestAssemble_NoSoldMonth(t *testing.T) {
	plan := testPlan
	plan.SoldMonth = false
	store := testStore(t, []refdata.Entry{{Coord: query}})

	v, err := NewAssembler(store, plan, WithClock(june)).Assemble(context.Background(), query, listing)
	require.NoError(t, err)
	assert.False(t, v.Has(AttrSoldMonth))
	assert.True(t, v.Has(AttrSoldYear))
}

func TestAssemble_UnknownTown(t *testing.T) {
	store := testStore(t, []refdata.Entry{{Coord: query}})
	far := geo.MustCoordinate(1.4400, 103.7800)

	v, err := NewAssembler(store, testPlan, WithClock(june)).Assemble(context.Background(), far, listing)
	require.NoError(t, err)
	town, _ := v.Label(AttrTown)
	assert.Equal(t, "unknown", town)
}

func TestAssemble_EmptyPrimarySchools(t *testing.T) {
	store := testStore(t, nil)

	_, err := NewAssembler(store, testPlan, WithClock(june)).Assemble(context.Background(), query, listing)
	require.Error(t, err)
	assert.ErrorIs(t, err, refdata.ErrEmptyDataset)
}

func TestAssemble_InvalidListing(t *testing.T) {
	store := testStore(t, []refdata.Entry{{Coord: query}})
	a := NewAssembler(store, testPlan)

	_, err := a.Assemble(context.Background(), query, Listing{StoreyRange: 10, FloorArea: 90})
	assert.ErrorIs(t, err, ErrMissingAttribute)

	_, err = a.Assemble(context.Background(), query, Listing{StoreyRange: 10, FloorArea: -1, RemainingLease: 80})
	assert.ErrorIs(t, err, ErrInvalidListing)
}

func TestAssemble_CancelledContext(t *testing.T) {
	store := testStore(t, []refdata.Entry{{Coord: query}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAssembler(store, testPlan).Assemble(ctx, query, listing)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseListing(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]string
		want    Listing
		wantErr error
	}{
		{
			name:  "valid",
			attrs: map[string]string{"storey_range": "10", "floor_area_sqm": " 90 ", "remaining_lease": "80"},
			want:  listing,
		},
		{
			name:    "missing",
			attrs:   map[string]string{"storey_range": "10", "floor_area_sqm": "90"},
			wantErr: ErrMissingAttribute,
		},
		{
			name:    "blank",
			attrs:   map[string]string{"storey_range": "", "floor_area_sqm": "90", "remaining_lease": "80"},
			wantErr: ErrMissingAttribute,
		},
		{
			name:    "non numeric",
			attrs:   map[string]string{"storey_range": "ten", "floor_area_sqm": "90", "remaining_lease": "80"},
			wantErr: ErrInvalidListing,
		},
		{
			name:    "zero",
			attrs:   map[string]string{"storey_range": "10", "floor_area_sqm": "0", "remaining_lease": "80"},
			wantErr: ErrInvalidListing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseListing(tt.attrs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVector(t *testing.T) {
	v := NewVector()
	v.SetNumber("b", 2)
	v.SetLabel("town", "BISHAN")
	v.SetNumber("a", 1)
	v.SetNumber("b", 3)

	assert.Equal(t, []string{"b", "town", "a"}, v.Keys())
	assert.Equal(t, 3, v.Len())

	x, ok := v.Number("b")
	assert.True(t, ok)
	assert.Equal(t, 3.0, x)

	_, ok = v.Number("town")
	assert.False(t, ok)
	_, ok = v.Label("a")
	assert.False(t, ok)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"b":3,"town":"BISHAN","a":1}`, string(raw))
}
