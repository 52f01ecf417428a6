package domain

// Flow estimation bounds in liters per hour. A declared leak always reports at
// least BaseFlowLPH and at most MaxFlowLPH.
const (
	BaseFlowLPH = 350
	MaxFlowLPH  = 2200
)

// Severity thresholds in liters per hour.
const (
	criticalFlowLPH = 1500
	highFlowLPH     = 900
	mediumFlowLPH   = 400
)

// EstimateFlow maps a leak confidence to an estimated flow rate. Non-leaks
// report zero flow; leaks scale linearly from BaseFlowLPH to MaxFlowLPH with
// confidence clamped to [0, 1]. The result is truncated to whole liters.
func EstimateFlow(isLeak bool, confidence float64) int {
	if !isLeak {
		return 0
	}
	c := min(max(confidence, 0), 1)
	return int(BaseFlowLPH + (MaxFlowLPH-BaseFlowLPH)*c)
}

// ComputeSeverity buckets a flow rate:
//
//	flow >= 1500       critical
//	900 <= flow < 1500 high
//	400 <= flow < 900  medium
//	0 < flow < 400     low
//	flow == 0          normal
func ComputeSeverity(flowRateLPH int) Severity {
	switch {
	case flowRateLPH >= criticalFlowLPH:
		return SeverityCritical
	case flowRateLPH >= highFlowLPH:
		return SeverityHigh
	case flowRateLPH >= mediumFlowLPH:
		return SeverityMedium
	case flowRateLPH > 0:
		return SeverityLow
	default:
		return SeverityNormal
	}
}
