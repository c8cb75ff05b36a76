package domain

import "math"

// DefaultHourlyRate matches the rate the parking controller has always charged.
const DefaultHourlyRate = 5.0

// ComputeFare charges every started hour, with one hour as the minimum even for a zero-length stay.
func ComputeFare(durationHours, hourlyRate float64) float64 {
	if durationHours < 0 {
		durationHours = 0
	}
	return math.Max(hourlyRate, hourlyRate*math.Ceil(durationHours))
}
