// Package proximity turns a query point and one reference dataset into
// nearest-distance, radius-count and interchange features.
package proximity

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-estimator/internal/geo"
	"github.com/sells-group/resale-estimator/internal/refdata"
)

// InterchangeRadius is the maximum nearest-entry distance for an interchange flag.
const InterchangeRadius = 500

// Predicate selects entries by their load-time flags.
type Predicate func(refdata.Entry) bool

// Gate counts entries within each radius that satisfy Match.
type Gate struct {
	Name  string // output infix, e.g. "aff" -> pri_aff_u1km
	Match Predicate
	Radii []int
}

// Interchange emits Name=1 when the nearest entry satisfies Flag within InterchangeRadius.
type Interchange struct {
	Name string
	Flag Predicate
}

// Spec fixes the features computed for one dataset kind.
type Spec struct {
	Kind         refdata.Kind
	Prefix       string
	Distance     bool   // emit <prefix>_dist
	NearestName  string // attribute receiving the nearest entry's name; empty to skip
	Radii        []int  // emit <prefix>_<label> counts
	Gates        []Gate
	Interchanges []Interchange
}

// Feature is one computed attribute.
type Feature struct {
	Name  string
	Value float64
}

// Partial is the output of one Spec in deterministic order.
type Partial struct {
	Kind     refdata.Kind
	Features []Feature
	Nearest  string
}

// Common predicates.
var (
	MRTInterchange  Predicate = func(e refdata.Entry) bool { return e.MRTInterchange }
	BusInterchange  Predicate = func(e refdata.Entry) bool { return e.BusInterchange }
	Elite           Predicate = func(e refdata.Entry) bool { return e.Elite }
	EliteAffiliated Predicate = func(e refdata.Entry) bool { return e.Affiliated && e.Elite }
)

// RadiusLabel renders a radius as used in column names: 300 -> u300m, 2000 -> u2km.
func RadiusLabel(meters int) string {
	if meters >= 1000 && meters%1000 == 0 {
		return fmt.Sprintf("u%dkm", meters/1000)
	}
	return fmt.Sprintf("u%dm", meters)
}

// Names lists the attribute names spec produces, in output order.
func (s Spec) Names() []string {
	var names []string
	if s.Distance {
		names = append(names, s.Prefix+"_dist")
	}
	for _, ic := range s.Interchanges {
		names = append(names, ic.Name)
	}
	for _, r := range s.Radii {
		names = append(names, s.Prefix+"_"+RadiusLabel(r))
	}
	for _, g := range s.Gates {
		for _, r := range g.Radii {
			names = append(names, s.Prefix+"_"+g.Name+"_"+RadiusLabel(r))
		}
	}
	return names
}

// Aggregate computes spec's features for q over entries.
func Aggregate(q geo.Coordinate, entries []refdata.Entry, spec Spec) (Partial, error) {
	if len(entries) == 0 {
		return Partial{}, eris.Wrapf(refdata.ErrEmptyDataset, "proximity: %s", spec.Kind)
	}

	dists := make([]int, len(entries))
	minDist := math.MaxInt
	nearest := 0
	for i, e := range entries {
		d := geo.Distance(q, e.Coord)
		dists[i] = d
		if d < minDist {
			minDist = d
			nearest = i
		}
	}

	out := Partial{Kind: spec.Kind, Nearest: entries[nearest].Name}

	if spec.Distance {
		out.Features = append(out.Features, Feature{spec.Prefix + "_dist", float64(minDist)})
	}

	for _, ic := range spec.Interchanges {
		out.Features = append(out.Features, Feature{ic.Name, boolValue(nearInterchange(entries, dists, minDist, ic.Flag))})
	}

	for _, r := range spec.Radii {
		out.Features = append(out.Features, Feature{spec.Prefix + "_" + RadiusLabel(r), float64(countWithin(entries, dists, r, nil))})
	}

	for _, g := range spec.Gates {
		for _, r := range g.Radii {
			name := spec.Prefix + "_" + g.Name + "_" + RadiusLabel(r)
			out.Features = append(out.Features, Feature{name, float64(countWithin(entries, dists, r, g.Match))})
		}
	}

	return out, nil
}

// nearInterchange reports whether any entry at the minimum distance is flagged,
// provided that distance is within InterchangeRadius.
func nearInterchange(entries []refdata.Entry, dists []int, minDist int, flag Predicate) bool {
	if minDist > InterchangeRadius {
		return false
	}
	for i, d := range dists {
		if d == minDist && flag(entries[i]) {
			return true
		}
	}
	return false
}

func countWithin(entries []refdata.Entry, dists []int, meters int, match Predicate) int {
	n := 0
	for i, d := range dists {
		if d <= meters && (match == nil || match(entries[i])) {
			n++
		}
	}
	return n
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
