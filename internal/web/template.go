package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	// uptime renders whole days then the remainder, e.g. "3d 4h5m6s".
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		const day = 24 * time.Hour
		if d < day {
			return d.String()
		}
		return fmt.Sprintf("%dd %s", int64(d/day), d%day)
	},
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
	"num": func(v float64) string {
		return humanize.FormatFloat("#,###.##", v)
	},
	"unix": func(sec int64) string {
		return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Hydroponics</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 35%; }
.ok { color: green; font-weight: bold; }
.out { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Hydroponics{{if .Config.Simulated}} (simulated){{end}}</h1>

<h2>Readings</h2>
<table>
<tr><th>Quantity</th><th>Value</th><th>Band</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td>
<td class="{{if not .Reading.Valid}}unknown{{else if not .Band.Set}}{{else if .Band.Contains .Reading.Value}}ok{{else}}out{{end}}">{{if .Reading.Valid}}{{num .Reading.Value}}{{else}}&ndash;{{end}}</td>
<td>{{if .Band.Set}}{{num .Band.Min}} &ndash; {{num .Band.Max}}{{end}}</td></tr>
{{end}}<tr><td>acidity offset</td><td>{{num .Env.AcidityOffset}}</td><td></td></tr>
</table>

<h2>Growth Cycle</h2>
<table>
<tr><th>Started</th><td>{{if .Env.Cycle.Initialized}}{{unix .Env.Cycle.StartTime}}{{else}}not started{{end}}</td></tr>
<tr><th>Day</th><td>{{.Env.Cycle.ElapsedDays}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Flags</th><td>{{.Env.Bits}}</td></tr>
</table>

<h2>Actuators</h2>
<table>
<tr><th>Group</th><th>Phase</th><th>Last</th></tr>
{{range .Actuators}}<tr><td>{{.Name}}</td><td>{{.Phase}}{{if .Label}} ({{.Label}}){{end}}</td>
<td>{{if .LastLabel}}{{.LastLabel}}, {{end}}{{ago .LastActivation}} [{{.Activations}}]</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Gate</th><td>{{.Config.Gate}}</td></tr>
<tr><th>Telemetry</th><td>{{if eq .Config.TelemetryMs 0}}disabled{{else}}{{.Config.TelemetryMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/api/dosing">Dosing</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>
`

type row struct {
	Name    string
	Reading env.Reading
	Band    env.Band
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// The template needs plain fields, not methods with arguments.
	rows := make([]row, 0, len(env.Quantities))
	for _, q := range env.Quantities {
		rows = append(rows, row{Name: q.String(), Reading: snap.Env.Reading(q), Band: snap.Env.Band(q)})
	}
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
		Rows   []row
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
		Rows:     rows,
	}
	return indexTmpl.Execute(w, data)
}
