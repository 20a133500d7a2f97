package geo

import "math"

// EarthRadiusKM is the sphere radius the reference features were generated with.
const EarthRadiusKM = 6373.0

// Distance returns the haversine distance between a and b in whole metres,
// truncated toward zero.
func Distance(a, b Coordinate) int {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon) - radians(a.Lon)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return int(EarthRadiusKM * c * 1000)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
