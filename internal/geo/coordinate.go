// Package geo provides coordinates and great-circle distance for the feature pipeline.
package geo

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is NaN or out of range.
var ErrInvalidCoordinate = eris.New("geo: invalid coordinate")

// Coordinate is a WGS84 position in decimal degrees. Construct with NewCoordinate.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// NewCoordinate validates lat/lon and returns a Coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Coordinate{}, eris.Wrapf(ErrInvalidCoordinate, "latitude %v outside [-90, 90]", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return Coordinate{}, eris.Wrapf(ErrInvalidCoordinate, "longitude %v outside [-180, 180]", lon)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// MustCoordinate is NewCoordinate for static values; it panics on invalid input.
func MustCoordinate(lat, lon float64) Coordinate {
	c, err := NewCoordinate(lat, lon)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lon)
}
