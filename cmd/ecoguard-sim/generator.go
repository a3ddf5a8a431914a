package main

import (
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/ecoguard/internal/telemetry"
)

// Harmonics of a 25 Hz shaft (1500 RPM) and their amplitudes.
const (
	fundamentalHz = 25.0
	amp1x         = 2.5
	amp2x         = 0.8
	amp3x         = 0.3
	noiseStdDev   = 0.05
)

// generator produces spectra with the harmonic shape of a rotating shaft.
// wear scales every harmonic and pushes RMS velocity up over time.
type generator struct {
	turbineID string
	bins      int
	wear      float64
	rng       *rand.Rand
	start     time.Time
}

func newGenerator(turbineID string, bins int, wear float64, seed int64) *generator {
	return &generator{
		turbineID: turbineID,
		bins:      bins,
		wear:      wear,
		rng:       rand.New(rand.NewSource(seed)), // #nosec G404 -- synthetic data
		start:     time.Now(),
	}
}

func (g *generator) next(now time.Time) telemetry.Frame {
	elapsed := now.Sub(g.start).Seconds()
	severity := 1 + g.wear*elapsed/60 + 0.1*math.Sin(elapsed/10)

	peaks := make([]float64, g.bins)
	for i := range peaks {
		peaks[i] = math.Abs(g.rng.NormFloat64() * noiseStdDev)
	}
	g.spread(peaks, fundamentalHz, amp1x*severity)
	g.spread(peaks, 2*fundamentalHz, amp2x*severity)
	g.spread(peaks, 3*fundamentalHz, amp3x*severity)

	var sum float64
	for _, a := range []float64{amp1x, amp2x, amp3x} {
		sum += (a * severity) * (a * severity) / 2
	}
	rms := math.Round(math.Sqrt(sum)*100) / 100

	return telemetry.Frame{
		TurbineID:     g.turbineID,
		HealthZone:    telemetry.ClassifyRMS(rms),
		RMSVelocity:   rms,
		SpectrumPeaks: peaks,
		Timestamp:     now.Unix(),
	}
}

// spread adds amp at hz, split linearly over the two nearest bins.
func (g *generator) spread(peaks []float64, hz, amp float64) {
	pos := hz / telemetry.BinWidthHz
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)

	if lo >= 0 && lo < len(peaks) {
		peaks[lo] += amp * (1 - frac)
	}
	if lo+1 < len(peaks) && frac > 0 {
		peaks[lo+1] += amp * frac
	}
}
