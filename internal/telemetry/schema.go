package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
)

// Wire field names of a telemetry record.
const (
	fieldTurbineID     = "turbine_id"
	fieldHealthZone    = "health_zone"
	fieldRMSVelocity   = "rms_velocity"
	fieldSpectrumPeaks = "spectrum_peaks"
	fieldTimestamp     = "timestamp"
)

var requiredFields = []string{
	fieldTurbineID,
	fieldHealthZone,
	fieldRMSVelocity,
	fieldSpectrumPeaks,
}

// wireFrame is the JSON shape published by turbine agents.
type wireFrame struct {
	TurbineID     string    `json:"turbine_id"`
	HealthZone    string    `json:"health_zone"`
	RMSVelocity   float64   `json:"rms_velocity"`
	SpectrumPeaks []float64 `json:"spectrum_peaks"`
	Timestamp     int64     `json:"timestamp,omitempty"`
}

type record map[string]json.RawMessage

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (r record) checkRequired() error {
	for _, name := range requiredFields {
		v, ok := r[name]
		if !ok {
			return malformed(name, "missing required field", nil)
		}
		if isNull(v) {
			return malformed(name, "field is null", nil)
		}
	}

	return nil
}

func (r record) str(name string) (string, error) {
	var s string
	if err := json.Unmarshal(r[name], &s); err != nil {
		return "", malformed(name, "expected a string", err)
	}

	return s, nil
}

func (r record) number(name string) (float64, error) {
	return parseNumber(name, r[name])
}

func (r record) numbers(name string) ([]float64, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(r[name], &items); err != nil {
		return nil, malformed(name, "expected an array of numbers", err)
	}

	out := make([]float64, len(items))
	for i, item := range items {
		if isNull(item) {
			return nil, malformed(name, "array contains null", nil)
		}
		v, err := parseNumber(name, item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}

	return out, nil
}

// optionalInt returns 0 when the field is absent or null.
func (r record) optionalInt(name string) (int64, error) {
	v, ok := r[name]
	if !ok || isNull(v) {
		return 0, nil
	}

	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, malformed(name, "expected an integer", err)
	}
	if n < 0 {
		return 0, malformed(name, "must not be negative", nil)
	}

	return n, nil
}

func parseNumber(name string, raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, malformed(name, "expected a number", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed(name, "number is not finite", nil)
	}

	return v, nil
}
