package domain

import "math"

// Projection constants for the dashboard savings figures. These are
// illustrative, not measured.
const (
	litersPerLeakPerDay = 1200
	savingsMultiplier   = 2
	hoursPerYear        = 24 * 365
	currencyDivisor     = 1000
)

// Stats summarizes the fleet for the dashboard.
type Stats struct {
	TotalMeters              int     `json:"total_meters"`
	ActiveLeaks              int     `json:"active_leaks"`
	WaterSavedTodayM3        float64 `json:"water_saved_today_m3"`
	ProjectedYearlySavingJOD float64 `json:"projected_yearly_saving_jod"`
}

// ComputeStats derives the savings projections from the active leak count.
func ComputeStats(totalMeters, activeLeaks int) Stats {
	leaks := float64(activeLeaks)
	saved := leaks * litersPerLeakPerDay * savingsMultiplier
	yearly := leaks * litersPerLeakPerDay * hoursPerYear * savingsMultiplier / currencyDivisor
	return Stats{
		TotalMeters:              totalMeters,
		ActiveLeaks:              activeLeaks,
		WaterSavedTodayM3:        roundTo(saved, 1),
		ProjectedYearlySavingJOD: roundTo(yearly, 1),
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
