package view

import (
	"strconv"

	"codeberg.org/mutker/ecoguard/internal/telemetry"
)

const (
	CompactTitle = "EcoGuard Mobile"

	CompactDangerColor = "#ff6b6b"
	CompactOKColor     = "#7efc6e"

	// CompactPeaks is how many leading spectrum values the mobile view lists.
	CompactPeaks = 16
	PeaksCaption = "Spectrum peaks (first 16):"
)

// Mobile is the compact view model.
type Mobile struct {
	Title        string `json:"title"`
	TurbineID    string `json:"turbine_id"`
	HealthZone   string `json:"health_zone"`
	Danger       bool   `json:"danger"`
	HealthColor  string `json:"health_color"`
	RMS          string `json:"rms"`
	PeaksCaption string `json:"peaks_caption"`
	Peaks        []Peak `json:"peaks"`
}

type Peak struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// Compact renders at most CompactPeaks leading peaks as "index: value".
func Compact(f telemetry.Frame) Mobile {
	danger := telemetry.IsDanger(f)

	color := CompactOKColor
	if danger {
		color = CompactDangerColor
	}

	src := f.Peaks(CompactPeaks)
	peaks := make([]Peak, len(src))
	for i, v := range src {
		peaks[i] = Peak{
			Index: i,
			Value: v,
			Text:  strconv.Itoa(i) + ": " + telemetry.FormatNumeric(&v),
		}
	}

	return Mobile{
		Title:        CompactTitle,
		TurbineID:    f.TurbineID,
		HealthZone:   f.HealthZone,
		Danger:       danger,
		HealthColor:  color,
		RMS:          telemetry.FormatRMS(f),
		PeaksCaption: PeaksCaption,
		Peaks:        peaks,
	}
}
