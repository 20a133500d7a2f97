package features

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrMissingAttribute is returned when a required attribute is absent.
	ErrMissingAttribute = eris.New("features: missing attribute")
	// ErrInvalidListing is returned for non-numeric or non-positive listing values.
	ErrInvalidListing = eris.New("features: invalid listing")
)

// Listing attribute names.
const (
	AttrStoreyRange    = "storey_range"
	AttrFloorArea      = "floor_area_sqm"
	AttrRemainingLease = "remaining_lease"
)

// Listing is the caller-supplied part of a query.
type Listing struct {
	StoreyRange    int `json:"storey_range"`
	FloorArea      int `json:"floor_area_sqm"`
	RemainingLease int `json:"remaining_lease"`
}

// Validate checks every attribute is a positive integer. A zero value is
// treated as absent.
func (l Listing) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{AttrStoreyRange, l.StoreyRange},
		{AttrFloorArea, l.FloorArea},
		{AttrRemainingLease, l.RemainingLease},
	} {
		if f.v == 0 {
			return eris.Wrapf(ErrMissingAttribute, "listing %s", f.name)
		}
		if f.v < 0 {
			return eris.Wrapf(ErrInvalidListing, "listing %s = %d", f.name, f.v)
		}
	}
	return nil
}

// ParseListing builds a Listing from string attributes, e.g. query parameters.
func ParseListing(attrs map[string]string) (Listing, error) {
	var l Listing
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{AttrStoreyRange, &l.StoreyRange},
		{AttrFloorArea, &l.FloorArea},
		{AttrRemainingLease, &l.RemainingLease},
	} {
		raw, ok := attrs[f.name]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return Listing{}, eris.Wrapf(ErrMissingAttribute, "listing %s", f.name)
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Listing{}, eris.Wrapf(ErrInvalidListing, "listing %s = %q", f.name, raw)
		}
		*f.dst = n
	}
	return l, l.Validate()
}
