// Package geo watches the device position and decides when a movement is
// large enough to be announced to the chat server.
package geo

import (
	"math"
	"time"
)

const (
	// EarthRadiusKm is the mean Earth radius used by Distance.
	EarthRadiusKm = 6371.0

	// MovementThresholdKm is the distance a device must move from the last
	// reported position before a new position is reported.
	MovementThresholdKm = 0.1
)

// Position is a single WGS 84 fix.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sample is one reading delivered by a Source. Err is set when the platform
// failed to produce a fix.
type Sample struct {
	Position  Position
	Timestamp time.Time
	Err       error
}

// Distance returns the great-circle distance between a and b in kilometres
// using the haversine formula.
func Distance(a, b Position) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
