package server

import (
	"encoding/json"
	"html/template"
	"net/http"

	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"codeberg.org/mutker/ecoguard/internal/view"
)

type pageData struct {
	Title   string
	View    string
	Initial template.JS
}

var pages = map[string]*template.Template{
	view.WideName:    template.Must(template.New(view.WideName).Parse(widePage)),
	view.CompactName: template.Must(template.New(view.CompactName).Parse(compactPage)),
}

func renderPage(w http.ResponseWriter, b view.Binding, f telemetry.Frame) error {
	initial, err := json.Marshal(b.Render(f))
	if err != nil {
		return err
	}

	title := view.WideTitle
	if b.Name() == view.CompactName {
		title = view.CompactTitle
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return pages[b.Name()].Execute(w, pageData{
		Title:   title,
		View:    b.Name(),
		Initial: template.JS(initial), // #nosec G203 -- marshalled JSON
	})
}

const streamScript = `
function connect(view, apply) {
  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  const ws = new WebSocket(proto + "//" + location.host + "/ws/" + view);
  ws.onmessage = (ev) => apply(JSON.parse(ev.data));
  ws.onclose = () => setTimeout(() => connect(view, apply), 1000);
}
`

const widePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
<style>
body { padding: 2rem; font-family: sans-serif; background: #1e1e1e; color: white; min-height: 100vh; }
.cards { display: flex; gap: 2rem; margin-bottom: 2rem; }
.card { padding: 1rem; background: #333; border-radius: 8px; }
.card p { font-size: 1.5rem; font-weight: bold; }
.chart { height: 400px; width: 100%; background: #2a2a2a; padding: 1rem; border-radius: 8px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="cards">
  <div class="card"><h3>Turbine ID</h3><p id="turbine"></p></div>
  <div class="card"><h3>Health State</h3><p id="health"></p></div>
  <div class="card"><h3>RMS Velocity</h3><p id="rms"></p></div>
</div>
<div class="chart"><canvas id="spectrum"></canvas></div>
<script>` + streamScript + `
const initial = {{.Initial}};
const chart = new Chart(document.getElementById("spectrum"), {
  type: "bar",
  data: initial.chart,
  options: {
    responsive: initial.chart.options.responsive,
    animation: initial.chart.options.animation,
    maintainAspectRatio: false,
    scales: {
      y: { suggestedMax: initial.chart.options.suggestedMax, beginAtZero: initial.chart.options.beginAtZero },
      x: { display: initial.chart.options.showXAxis },
    },
  },
});
function apply(d) {
  document.getElementById("turbine").textContent = d.turbine_id;
  const health = document.getElementById("health");
  health.textContent = d.health_zone;
  health.style.color = d.health_color;
  document.getElementById("rms").textContent = d.rms;
  chart.data.labels = d.chart.labels;
  chart.data.datasets = d.chart.datasets;
  chart.update("none");
}
apply(initial);
connect({{.View}}, apply);
</script>
</body>
</html>
`

const compactPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #141414; padding: 16px; font-family: sans-serif; }
h1 { font-size: 22px; color: white; margin-bottom: 12px; }
.card { background: #222; padding: 12px; border-radius: 8px; margin-bottom: 8px; }
.label { color: #aaa; font-size: 12px; }
.value { color: white; font-size: 18px; font-weight: 600; }
.caption { margin-top: 12px; color: #ddd; }
.peak { color: #ccc; padding: 2px 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="card"><div class="label">Turbine</div><div class="value" id="turbine"></div></div>
<div class="card"><div class="label">Health</div><div class="value" id="health"></div></div>
<div class="card"><div class="label">RMS Velocity</div><div class="value" id="rms"></div></div>
<div class="caption" id="caption"></div>
<div id="peaks"></div>
<script>` + streamScript + `
function apply(d) {
  document.getElementById("turbine").textContent = d.turbine_id;
  const health = document.getElementById("health");
  health.textContent = d.health_zone;
  health.style.color = d.health_color;
  document.getElementById("rms").textContent = d.rms;
  document.getElementById("caption").textContent = d.peaks_caption;
  const list = document.getElementById("peaks");
  list.replaceChildren(...d.peaks.map((p) => {
    const row = document.createElement("div");
    row.className = "peak";
    row.textContent = p.text;
    return row;
  }));
}
apply({{.Initial}});
connect({{.View}}, apply);
</script>
</body>
</html>
`
