package telemetry

// Spectrum lengths the upstream agent sends for each platform. Decoding
// never enforces them; they only size placeholders.
const (
	WideBins    = 50
	CompactBins = 32

	// BinWidthHz is the informal frequency width of one spectrum bin.
	BinWidthHz = 10
)

// Placeholder values shown before the first frame is accepted.
const (
	PlaceholderTurbineID  = "Loading..."
	PlaceholderHealthZone = "Unknown"
)

// Frame is one validated snapshot of a turbine's sensor-derived state.
// Frames are values: SpectrumPeaks is owned by the frame and must not be
// modified after construction.
type Frame struct {
	TurbineID     string
	HealthZone    string
	RMSVelocity   float64
	SpectrumPeaks []float64
	// Timestamp is the upstream unix time in seconds, zero when not sent.
	Timestamp int64
}

// NewFrame builds a Frame that owns a private copy of peaks.
func NewFrame(turbineID, healthZone string, rms float64, peaks []float64) Frame {
	return Frame{
		TurbineID:     turbineID,
		HealthZone:    healthZone,
		RMSVelocity:   rms,
		SpectrumPeaks: clonePeaks(peaks),
	}
}

// Placeholder returns the frame rendered before any data arrives.
func Placeholder(bins int) Frame {
	if bins < 0 {
		bins = 0
	}

	return Frame{
		TurbineID:     PlaceholderTurbineID,
		HealthZone:    PlaceholderHealthZone,
		SpectrumPeaks: make([]float64, bins),
	}
}

// Clone returns a copy of f that shares no memory with it.
func (f Frame) Clone() Frame {
	f.SpectrumPeaks = clonePeaks(f.SpectrumPeaks)
	return f
}

// Peaks returns at most n leading spectrum values. Shorter spectra are
// returned whole.
func (f Frame) Peaks(n int) []float64 {
	if n < 0 {
		n = 0
	}
	if n > len(f.SpectrumPeaks) {
		n = len(f.SpectrumPeaks)
	}

	return f.SpectrumPeaks[:n:n]
}

func clonePeaks(peaks []float64) []float64 {
	out := make([]float64, len(peaks))
	copy(out, peaks)
	return out
}
