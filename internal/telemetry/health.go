package telemetry

import "strings"

// DangerMarker is the substring upstream puts into danger health zones.
const DangerMarker = "Danger"

// IsDanger reports whether f is in a danger health zone. It is the only
// severity rule; every view derives its colors from it.
func IsDanger(f Frame) bool {
	return strings.Contains(f.HealthZone, DangerMarker)
}

// ISO 10816-3 velocity zone boundaries in mm/s (class II machines, rigid
// foundation), as applied by the turbine agent.
const (
	ZoneABoundary = 1.4
	ZoneBBoundary = 2.8
	ZoneCBoundary = 7.1
)

// Zone labels published by the turbine agent.
const (
	ZoneA = "Zone A (Good)"
	ZoneB = "Zone B (Acceptable)"
	ZoneC = "Zone C (Unsatisfactory)"
	ZoneD = "Zone D (Danger)"
)

// ClassifyRMS maps an RMS velocity onto its zone label. The monitor does not
// classify incoming frames; the simulator uses this to label what it sends.
func ClassifyRMS(rms float64) string {
	switch {
	case rms < ZoneABoundary:
		return ZoneA
	case rms < ZoneBBoundary:
		return ZoneB
	case rms < ZoneCBoundary:
		return ZoneC
	default:
		return ZoneD
	}
}
