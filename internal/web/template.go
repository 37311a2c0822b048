package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/homekit-gate/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"door": status.DoorName,
	"lock": status.LockName,
	"doorClass": func(n int) string {
		switch status.DoorName(n) {
		case "OPEN":
			return "open"
		case "CLOSED":
			return "closed"
		case "OPENING", "CLOSING":
			return "moving"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Gate</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #888; }
.moving { color: blue; }
.unknown { color: orange; }
.warn { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; margin-right: 6px; }
</style>
</head>
<body>
<h1>Gate</h1>

<h2>State</h2>
<table>
<tr><th>Door</th><td class="{{doorClass .Door}}">{{door .Door}}</td></tr>
<tr><th>Target</th><td>{{door .Target}}</td></tr>
<tr><th>Obstructed</th><td{{if .Obstructed}} class="warn"{{end}}>{{if .Obstructed}}yes{{else}}no{{end}}</td></tr>
<tr><th>Lock</th><td>{{lock .Lock}}</td></tr>
<tr><th>Lock target</th><td>{{lock .LockTarget}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
{{if .LastFault}}<tr><th>Last fault</th><td class="warn">{{.LastFault}} ({{.LastFaultAt.UTC.Format "2006-01-02T15:04:05Z"}})</td></tr>{{end}}
</table>

<p>
<button onclick="target('door','open')">Open</button>
<button onclick="target('door','closed')">Close</button>
<button onclick="target('lock','secured')">Lock</button>
<button onclick="target('lock','unsecured')">Unlock</button>
</p>

<h2>Connectivity</h2>
<table>
<tr><th>HomeKit</th><td>{{if .Paired}}paired{{else}}not paired{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Opened</th><td>{{.Counts.Opened}}</td></tr>
<tr><th>Closed</th><td>{{.Counts.Closed}}</td></tr>
<tr><th>Obstructions</th><td>{{.Counts.Obstructions}}</td></tr>
<tr><th>Faults</th><td>{{.Counts.Faults}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Timeout</th><td>{{if eq .Config.TimeoutMs 0}}disabled{{else}}{{.Config.TimeoutMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>HAP</th><td>{{.Config.HAPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/characteristics">Characteristics</a></p>
<script>
function target(what, value) {
  fetch("/api/" + what + "/target", {
    method: "PUT",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({ target: value })
  }).then(function() { setTimeout(function() { location.reload(); }, 500); });
}
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
