// Package schema defines the model input layouts and aligns feature vectors to them.
package schema

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-estimator/internal/features"
	"github.com/sells-group/resale-estimator/internal/proximity"
	"github.com/sells-group/resale-estimator/internal/refdata"
)

var (
	// ErrSchemaMismatch is returned when a model, scaler or row disagrees with a version.
	ErrSchemaMismatch = eris.New("schema: schema mismatch")
	// ErrUnknownVersion is returned by Lookup for unrecognised tags.
	ErrUnknownVersion = eris.New("schema: unknown version")
)

// AttrStation carries the nearest transit station's name. It is never a model input.
const AttrStation = "mrt_station"

// Tag identifies a (schema, model) pair.
type Tag string

// Known tags.
const (
	TagV1 Tag = "v1"
	TagV2 Tag = "v2"
)

// Version is one trained model's input contract. Versions are not interchangeable.
type Version struct {
	Tag         Tag
	Description string
	// Columns is the positional model input.
	Columns []string
	// Categorical attributes are one-hot expanded into <attr>_<value> columns.
	Categorical []string
	// Scaled versions require a fitted scaler before scoring.
	Scaled bool
	Plan   features.Plan
	// EliteTopRows is the school-loading convention the model was trained with.
	EliteTopRows int
}

// Width is the number of model input columns.
func (v Version) Width() int { return len(v.Columns) }

// Vocabulary returns the trained values of a categorical attribute, in column order.
func (v Version) Vocabulary(attr string) []string {
	prefix := attr + "_"
	var out []string
	for _, c := range v.Columns {
		if strings.HasPrefix(c, prefix) {
			out = append(out, strings.TrimPrefix(c, prefix))
		}
	}
	return out
}

// Required lists the raw vector attributes reconciliation needs: every
// column that is not a one-hot expansion, plus the categorical attributes.
func (v Version) Required() []string {
	var out []string
	for _, c := range v.Columns {
		if !v.isOneHot(c) {
			out = append(out, c)
		}
	}
	return append(out, v.Categorical...)
}

func (v Version) isOneHot(col string) bool {
	for _, attr := range v.Categorical {
		if strings.HasPrefix(col, attr+"_") {
			return true
		}
	}
	return false
}

// Towns is the planning-area vocabulary both models were trained on.
var Towns = []string{
	"ANG MO KIO", "BEDOK", "BISHAN", "BUKIT BATOK", "BUKIT MERAH", "BUKIT PANJANG",
	"BUKIT TIMAH", "CENTRAL AREA", "CHOA CHU KANG", "CLEMENTI", "GEYLANG", "HOUGANG",
	"JURONG EAST", "JURONG WEST", "KALLANG/WHAMPOA", "MARINE PARADE", "PASIR RIS",
	"PUNGGOL", "QUEENSTOWN", "SEMBAWANG", "SENGKANG", "SERANGOON", "TAMPINES",
	"TOA PAYOH", "WOODLANDS", "YISHUN",
}

func townColumns() []string {
	out := make([]string, len(Towns))
	for i, t := range Towns {
		out[i] = features.AttrTown + "_" + t
	}
	return out
}

func columns(numeric ...string) []string {
	return append(numeric, townColumns()...)
}

var (
	radii12 = []int{1000, 2000}

	transitFull = proximity.Spec{
		Kind:        refdata.KindTransit,
		Prefix:      "mrt",
		Distance:    true,
		NearestName: AttrStation,
		Interchanges: []proximity.Interchange{
			{Name: "near_mrt_itc", Flag: proximity.MRTInterchange},
			{Name: "near_bus_itc", Flag: proximity.BusInterchange},
		},
	}

	transitReduced = proximity.Spec{
		Kind:        refdata.KindTransit,
		Prefix:      "mrt",
		Distance:    true,
		NearestName: AttrStation,
	}
)

func schoolsFull(kind refdata.Kind, prefix string) proximity.Spec {
	return proximity.Spec{
		Kind:   kind,
		Prefix: prefix,
		Radii:  radii12,
		Gates: []proximity.Gate{
			{Name: "aff", Match: proximity.EliteAffiliated, Radii: radii12},
			{Name: "elite", Match: proximity.Elite, Radii: radii12},
		},
	}
}

func schoolsReduced(kind refdata.Kind, prefix string) proximity.Spec {
	return proximity.Spec{
		Kind:   kind,
		Prefix: prefix,
		Radii:  []int{2000},
		Gates:  []proximity.Gate{{Name: "aff", Match: proximity.EliteAffiliated, Radii: []int{1000}}},
	}
}

// V1 is the full feature set: bus stops, interchange flags, sale month and the
// elite/affiliation school breakdown. Its model was trained on standardised inputs.
var V1 = Version{
	Tag:         TagV1,
	Description: "full",
	Columns: columns(
		"storey_range", "floor_area_sqm", "remaining_lease", "sold_year", "sold_month",
		"mrt_dist", "near_mrt_itc", "near_bus_itc",
		"bus_dist", "bus_u300m",
		"mall_dist", "mall_u1km",
		"pri_u1km", "pri_u2km", "pri_aff_u1km", "pri_aff_u2km", "pri_elite_u1km", "pri_elite_u2km",
		"sec_u1km", "sec_u2km", "sec_aff_u1km", "sec_aff_u2km", "sec_elite_u1km", "sec_elite_u2km",
	),
	Categorical: []string{features.AttrTown},
	Scaled:      true,
	Plan: features.Plan{
		Proximity: []proximity.Spec{
			transitFull,
			{Kind: refdata.KindBus, Prefix: "bus", Distance: true, Radii: []int{300}},
			{Kind: refdata.KindMall, Prefix: "mall", Distance: true, Radii: []int{1000}},
			schoolsFull(refdata.KindPrimary, "pri"),
			schoolsFull(refdata.KindSecondary, "sec"),
		},
		SoldMonth: true,
	},
	EliteTopRows: refdata.DefaultEliteTopRows,
}

// V2 is the reduced feature set served in production: no bus data and only the
// affiliated-elite school counts. Its model takes raw inputs.
var V2 = Version{
	Tag:         TagV2,
	Description: "reduced",
	Columns: columns(
		"storey_range", "floor_area_sqm", "remaining_lease", "sold_year",
		"mrt_dist", "mall_dist",
		"pri_u2km", "pri_aff_u1km", "sec_u2km", "sec_aff_u1km",
	),
	Categorical: []string{features.AttrTown},
	Plan: features.Plan{
		Proximity: []proximity.Spec{
			transitReduced,
			{Kind: refdata.KindMall, Prefix: "mall", Distance: true},
			schoolsReduced(refdata.KindPrimary, "pri"),
			schoolsReduced(refdata.KindSecondary, "sec"),
		},
	},
	EliteTopRows: refdata.DefaultEliteTopRows,
}

// Versions lists every known version.
var Versions = []Version{V1, V2}

// Lookup resolves a version tag such as "v1".
func Lookup(tag string) (Version, error) {
	t := Tag(strings.ToLower(strings.TrimSpace(tag)))
	for _, v := range Versions {
		if v.Tag == t {
			return v, nil
		}
	}
	return Version{}, eris.Wrapf(ErrUnknownVersion, "tag %q", tag)
}

// Kinds lists the reference datasets the version's plan reads.
func (v Version) Kinds() []refdata.Kind {
	out := make([]refdata.Kind, 0, len(v.Plan.Proximity))
	for _, s := range v.Plan.Proximity {
		out = append(out, s.Kind)
	}
	return out
}
