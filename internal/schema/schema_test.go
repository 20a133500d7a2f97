package schema

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resale-estimator/internal/features"
)

type fakeScaler struct {
	width int
	err   error
}

func (f fakeScaler) Width() int { return f.width }

func (f fakeScaler) Transform(values []float64) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(values))
	for i, x := range values {
		out[i] = x * 2
	}
	return out, nil
}

func vectorFor(ver Version, town string) *features.Vector {
	v := features.NewVector()
	for i, attr := range ver.Required() {
		if attr == features.AttrTown {
			continue
		}
		v.SetNumber(attr, float64(i+1))
	}
	v.SetLabel(features.AttrTown, town)
	return v
}

func TestVersions(t *testing.T) {
	assert.Equal(t, 50, V1.Width())
	assert.Equal(t, 36, V2.Width())
	assert.True(t, V1.Scaled)
	assert.False(t, V2.Scaled)
	assert.Equal(t, Towns, V1.Vocabulary("town"))
	assert.Equal(t, Towns, V2.Vocabulary("town"))

	assert.NotContains(t, V2.Columns, "bus_dist")
	assert.NotContains(t, V2.Columns, "sold_month")
	assert.Contains(t, V1.Columns, "bus_u300m")
	assert.Contains(t, V1.Columns, "near_bus_itc")
}

func TestVersions_PlanCoversColumns(t *testing.T) {
	for _, ver := range Versions {
		t.Run(string(ver.Tag), func(t *testing.T) {
			produced := ver.Plan.Names()
			for _, attr := range ver.Required() {
				assert.Contains(t, produced, attr)
			}
		})
	}
}

func TestV2_ColumnOrder(t *testing.T) {
	want := []string{
		"storey_range", "floor_area_sqm", "remaining_lease", "sold_year", "mrt_dist", "mall_dist",
		"pri_u2km", "pri_aff_u1km", "sec_u2km", "sec_aff_u1km",
		"town_ANG MO KIO", "town_BEDOK", "town_BISHAN", "town_BUKIT BATOK", "town_BUKIT MERAH",
		"town_BUKIT PANJANG", "town_BUKIT TIMAH", "town_CENTRAL AREA", "town_CHOA CHU KANG",
		"town_CLEMENTI", "town_GEYLANG", "town_HOUGANG", "town_JURONG EAST", "town_JURONG WEST",
		"town_KALLANG/WHAMPOA", "town_MARINE PARADE", "town_PASIR RIS", "town_PUNGGOL",
		"town_QUEENSTOWN", "town_SEMBAWANG", "town_SENGKANG", "town_SERANGOON", "town_TAMPINES",
		"town_TOA PAYOH", "town_WOODLANDS", "town_YISHUN",
	}
	assert.Equal(t, want, V2.Columns)
}

func TestLookup(t *testing.T) {
	v, err := Lookup("v1")
	require.NoError(t, err)
	assert.Equal(t, TagV1, v.Tag)

	v, err = Lookup(" V2 ")
	require.NoError(t, err)
	assert.Equal(t, TagV2, v.Tag)

	_, err = Lookup("v3")
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestReconcile_OneHotAndOrder(t *testing.T) {
	v := vectorFor(V2, "BISHAN")
	v.SetNumber("bus_dist", 120)
	v.SetLabel("mrt_station", "Bishan")

	row, err := Reconcile(v, V2, nil)
	require.NoError(t, err)

	require.Equal(t, len(V2.Columns), row.Width())
	assert.Equal(t, V2.Columns, row.Columns)
	assert.Equal(t, TagV2, row.Version)

	for i, col := range V2.Columns {
		switch {
		case col == "town_BISHAN":
			assert.Equal(t, 1.0, row.Values[i], col)
		case i < 10:
			x, _ := v.Number(col)
			assert.Equal(t, x, row.Values[i], col)
		default:
			assert.Equal(t, 0.0, row.Values[i], col)
		}
	}
}

func TestReconcile_MissingOneHotFilledWithZero(t *testing.T) {
	v := vectorFor(V2, "PUNGGOL")

	row, err := Reconcile(v, V2, nil)
	require.NoError(t, err)

	assert.Len(t, row.Values, len(V2.Columns))
	idx := indexOf(V2.Columns, "town_YISHUN")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 0.0, row.Values[idx])
	assert.Equal(t, 1.0, row.Values[indexOf(V2.Columns, "town_PUNGGOL")])
}

func TestReconcile_UnknownTownAllZero(t *testing.T) {
	row, err := Reconcile(vectorFor(V2, "unknown"), V2, nil)
	require.NoError(t, err)

	for i, col := range V2.Columns[10:] {
		assert.Equal(t, 0.0, row.Values[10+i], col)
	}
}

func TestReconcile_MissingAttribute(t *testing.T) {
	v := features.NewVector()
	v.SetNumber("storey_range", 10)
	v.SetLabel("town", "BISHAN")

	_, err := Reconcile(v, V2, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, features.ErrMissingAttribute)
	assert.Contains(t, err.Error(), "floor_area_sqm")
}

func TestReconcile_MissingTown(t *testing.T) {
	v := vectorFor(V2, "BISHAN")
	fresh := features.NewVector()
	for _, k := range v.Keys() {
		if x, ok := v.Number(k); ok {
			fresh.SetNumber(k, x)
		}
	}

	_, err := Reconcile(fresh, V2, nil)
	assert.ErrorIs(t, err, features.ErrMissingAttribute)
}

func TestReconcile_Scaler(t *testing.T) {
	v := vectorFor(V1, "BEDOK")

	row, err := Reconcile(v, V1, fakeScaler{width: V1.Width()})
	require.NoError(t, err)
	require.Len(t, row.Values, 50)
	for i, col := range row.Columns {
		want, _ := v.Number(col)
		if col == "town_BEDOK" {
			want = 1
		}
		assert.Equal(t, want*2, row.Values[i], col)
	}
}

func TestReconcile_ScalerMismatch(t *testing.T) {
	tests := []struct {
		name   string
		ver    Version
		scaler Scaler
	}{
		{"scaled version without scaler", V1, nil},
		{"unscaled version with scaler", V2, fakeScaler{width: V2.Width()}},
		{"wrong width", V1, fakeScaler{width: 36}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(vectorFor(tt.ver, "BEDOK"), tt.ver, tt.scaler)
			assert.ErrorIs(t, err, ErrSchemaMismatch)
		})
	}
}

func TestReconcile_ScalerError(t *testing.T) {
	_, err := Reconcile(vectorFor(V1, "BEDOK"), V1, fakeScaler{width: 50, err: eris.New("boom")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func indexOf(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}
