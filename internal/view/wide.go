package view

import "codeberg.org/mutker/ecoguard/internal/telemetry"

const (
	WideTitle = "EcoGuard Dashboard"

	WideDangerColor = "#ff4d4d"
	WideOKColor     = "#4dff4d"

	BarDangerColor = "rgba(255, 99, 132, 0.8)"
	BarOKColor     = "rgba(54, 162, 235, 0.8)"

	DatasetLabel = "FFT Magnitude"
	SuggestedMax = 5.0
)

// Dashboard is the wide view model. Chart is shaped after Chart.js bar
// chart data and options.
type Dashboard struct {
	Title       string `json:"title"`
	TurbineID   string `json:"turbine_id"`
	HealthZone  string `json:"health_zone"`
	Danger      bool   `json:"danger"`
	HealthColor string `json:"health_color"`
	RMS         string `json:"rms"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	Chart       Chart  `json:"chart"`
}

type Chart struct {
	Labels   []string     `json:"labels"`
	Datasets []Dataset    `json:"datasets"`
	Options  ChartOptions `json:"options"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor"`
}

// ChartOptions disables animation: every redraw replaces values outright.
type ChartOptions struct {
	Responsive   bool    `json:"responsive"`
	Animation    bool    `json:"animation"`
	SuggestedMax float64 `json:"suggestedMax"`
	BeginAtZero  bool    `json:"beginAtZero"`
	ShowXAxis    bool    `json:"showXAxis"`
}

// Wide renders the full spectrum with one label per bin.
func Wide(f telemetry.Frame) Dashboard {
	danger := telemetry.IsDanger(f)
	peaks := f.Peaks(len(f.SpectrumPeaks))

	data := make([]float64, len(peaks))
	labels := make([]string, len(peaks))
	for i, v := range peaks {
		data[i] = v
		labels[i] = telemetry.BinLabel(i)
	}

	healthColor, barColor := WideOKColor, BarOKColor
	if danger {
		healthColor, barColor = WideDangerColor, BarDangerColor
	}

	return Dashboard{
		Title:       WideTitle,
		TurbineID:   f.TurbineID,
		HealthZone:  f.HealthZone,
		Danger:      danger,
		HealthColor: healthColor,
		RMS:         telemetry.FormatRMS(f),
		Timestamp:   f.Timestamp,
		Chart: Chart{
			Labels: labels,
			Datasets: []Dataset{{
				Label:           DatasetLabel,
				Data:            data,
				BackgroundColor: barColor,
			}},
			Options: ChartOptions{
				Responsive:   true,
				Animation:    false,
				SuggestedMax: SuggestedMax,
				BeginAtZero:  true,
			},
		},
	}
}
