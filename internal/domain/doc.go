// Package domain models the water-meter fleet and the leak-detection outcome.
//
// # Meters
//
// The fleet is created once at startup by [SeedMeters]. Meter ids follow the
// sequence "meter_0000", "meter_0001", ... and each meter takes its base
// position from a location pool, cycling when the pool is shorter than the
// fleet, with a uniform jitter of up to ±0.003 degrees on both axes. Position
// and street never change afterwards.
//
// # State invariants
//
//	status == normal  =>  flow_rate_lph == 0
//	severity          ==  ComputeSeverity(flow_rate_lph)
//
// [MeterUpdate.Validate] enforces both before a store applies an update.
//
// # Flow and severity
//
// A declared leak maps its confidence c onto a flow estimate:
//
//	flow = int(350 + (2200 - 350) * c)     c clamped to [0, 1]
//
// Severity is a fixed threshold ladder on flow (liters per hour):
//
//	0 normal | 1-399 low | 400-899 medium | 900-1499 high | >=1500 critical
//
// The thresholds are part of the dashboard contract and must not drift.
//
// # Stats
//
// Savings figures are projections from the active leak count alone:
//
//	water_saved_today_m3        = leaks * 1200 * 2
//	projected_yearly_saving_jod = leaks * 1200 * 24 * 365 * 2 / 1000
//
// # Errors
//
// Failures on the ingest path are [*Error] values tagged with a [Kind]. The
// HTTP adapter translates kinds into status codes; nothing in this package
// knows about transports.
package domain
