package engine

import (
	"fmt"
	"html/template"
	"os"

	"github.com/olivefarm/enginecore/internal/footprint"
)

// writeParetoChart renders the frontier as a self-contained HTML page: a
// scatter of the first two objectives (in priority order) when there are at
// least two, otherwise a plain table of every node's metrics.
func writeParetoChart(path string, frontier *footprint.Footprint) error {
	objectives := frontier.Objectives()
	keys := objectives.Keys()

	data := chartData{Title: "Pareto frontier"}
	if len(keys) >= 2 {
		data.XLabel, data.YLabel = string(keys[0]), string(keys[1])
	}
	for _, n := range frontier.Nodes() {
		if n.Metrics == nil {
			continue
		}
		row := chartRow{ModelID: string(n.ModelID)}
		for _, k := range keys {
			row.Values = append(row.Values, fmt.Sprintf("%s=%v", k, n.Metrics.Value[k].Value))
		}
		if len(keys) >= 2 {
			row.X = n.Metrics.Value[keys[0]].Value
			row.Y = n.Metrics.Value[keys[1]].Value
		}
		data.Rows = append(data.Rows, row)
	}
	if len(keys) >= 2 && len(data.Rows) > 0 {
		data.Scatter = scatterPoints(data.Rows)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("engine: create pareto chart: %w", err)
	}
	defer f.Close()
	return chartTemplate.Execute(f, data)
}

type chartRow struct {
	ModelID string
	Values  []string
	X, Y    float64
}

type chartPoint struct {
	CX, CY  float64
	ModelID string
	Label   string
}

type chartData struct {
	Title          string
	XLabel, YLabel string
	Rows           []chartRow
	Scatter        []chartPoint
}

const chartW, chartH, chartPad = 640.0, 400.0, 40.0

// scatterPoints maps metric values onto the fixed SVG viewport.
func scatterPoints(rows []chartRow) []chartPoint {
	minX, maxX := rows[0].X, rows[0].X
	minY, maxY := rows[0].Y, rows[0].Y
	for _, r := range rows[1:] {
		minX, maxX = min(minX, r.X), max(maxX, r.X)
		minY, maxY = min(minY, r.Y), max(maxY, r.Y)
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}
	out := make([]chartPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, chartPoint{
			CX:      chartPad + (r.X-minX)/spanX*(chartW-2*chartPad),
			CY:      chartH - chartPad - (r.Y-minY)/spanY*(chartH-2*chartPad),
			ModelID: r.ModelID,
			Label:   fmt.Sprintf("%s (%v, %v)", r.ModelID, r.X, r.Y),
		})
	}
	return out
}

var chartTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Scatter}}
<svg width="640" height="400" style="border:1px solid #ccc">
  <text x="320" y="395" text-anchor="middle" font-size="12">{{.XLabel}}</text>
  <text x="12" y="200" text-anchor="middle" font-size="12" transform="rotate(-90 12 200)">{{.YLabel}}</text>
  {{range .Scatter}}<circle cx="{{.CX}}" cy="{{.CY}}" r="5" fill="steelblue"><title>{{.Label}}</title></circle>
  {{end}}
</svg>
{{end}}
<table border="1" cellpadding="4">
  <tr><th>model_id</th><th>metrics</th></tr>
  {{range .Rows}}<tr><td>{{.ModelID}}</td><td>{{range .Values}}{{.}} {{end}}</td></tr>
  {{end}}
</table>
</body>
</html>
`))
