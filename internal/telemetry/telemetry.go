package telemetry

import (
	"encoding/json"
	"unicode/utf8"

	"codeberg.org/mutker/ecoguard/internal/errors"
)

// Decode parses a raw broker payload into a Frame. It never returns a
// partially populated frame: any problem yields a *DecodeError and the zero
// Frame.
func Decode(raw []byte) (Frame, error) {
	if !utf8.Valid(raw) {
		return Frame{}, malformed("", "payload is not valid UTF-8", nil)
	}

	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Frame{}, malformed("", "payload is not a JSON object", err)
	}
	if r == nil {
		return Frame{}, malformed("", "payload is null", nil)
	}

	if err := r.checkRequired(); err != nil {
		return Frame{}, err
	}

	turbineID, err := r.str(fieldTurbineID)
	if err != nil {
		return Frame{}, err
	}
	if turbineID == "" {
		return Frame{}, malformed(fieldTurbineID, "must not be empty", nil)
	}

	healthZone, err := r.str(fieldHealthZone)
	if err != nil {
		return Frame{}, err
	}

	rms, err := r.number(fieldRMSVelocity)
	if err != nil {
		return Frame{}, err
	}
	if rms < 0 {
		return Frame{}, malformed(fieldRMSVelocity, "must not be negative", nil)
	}

	peaks, err := r.numbers(fieldSpectrumPeaks)
	if err != nil {
		return Frame{}, err
	}

	ts, err := r.optionalInt(fieldTimestamp)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		TurbineID:     turbineID,
		HealthZone:    healthZone,
		RMSVelocity:   rms,
		SpectrumPeaks: peaks,
		Timestamp:     ts,
	}, nil
}

// Encode serializes f in the wire format accepted by Decode.
func Encode(f Frame) ([]byte, error) {
	peaks := f.SpectrumPeaks
	if peaks == nil {
		peaks = []float64{}
	}

	b, err := json.Marshal(wireFrame{
		TurbineID:     f.TurbineID,
		HealthZone:    f.HealthZone,
		RMSVelocity:   f.RMSVelocity,
		SpectrumPeaks: peaks,
		Timestamp:     f.Timestamp,
	})
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFrame, err)
	}

	return b, nil
}
