package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/devicestatus/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Device Status</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Device Status{{if .Config.Device}} ({{.Config.Device}}){{end}}<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Gestures</h2>
<table id="gestures">
{{range .Gestures}}<tr id="g-{{.Type}}"><th>{{.Type}}</th><td>{{.Summary}}</td><td>{{.Count}}</td></tr>
{{else}}<tr id="g-none"><td colspan="3" class="off">no gestures yet</td></tr>
{{end}}</table>

<h2>Cooperate</h2>
<table>
<tr><th>State</th><td class="{{if .Cooperate.Enabled}}on{{else}}off{{end}}">{{.Cooperate.State}}</td></tr>
<tr><th>Role</th><td>{{.Cooperate.Role}}</td></tr>
{{if .Cooperate.Peer}}<tr><th>Peer</th><td>{{.Cooperate.Peer}}</td></tr>{{end}}
<tr><th>Transitions</th><td>{{.Cooperate.Changes}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Touch input</th><td>{{if .Config.Evdev}}{{.Config.Evdev}}{{else}}disabled{{end}}</td></tr>
<tr><th>Touch dropped</th><td>{{.TouchDropped}}</td></tr>
<tr><th>Sensor errors</th><td>{{.SensorErrors}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var table = document.getElementById("gestures");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function show(m) {
    var none = document.getElementById("g-none");
    if (none) { none.parentNode.removeChild(none); }
    var row = document.getElementById("g-" + m.type);
    if (!row) {
      row = table.insertRow(-1);
      row.id = "g-" + m.type;
      row.insertCell(0).outerHTML = "<th>" + m.type + "</th>";
      row.insertCell(1);
      row.insertCell(2).textContent = "0";
    }
    var parts = [];
    if (m.value !== "INVALID") { parts.push(m.value); }
    if (m.status !== "INVALID") { parts.push(m.status); }
    if (m.action !== "INVALID") { parts.push(m.action); }
    if (m.rotate !== "INVALID") { parts.push(m.rotate); }
    row.cells[1].textContent = parts.join(" ");
    row.cells[2].textContent = String(parseInt(row.cells[2].textContent, 10) + 1);
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/events");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(e) {
      try {
        var msg = JSON.parse(e.data);
        if (msg.motion) { show(msg.motion); }
      } catch (err) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

type gestureRow struct {
	Type    string
	Summary string
	Count   int
}

func summarize(g status.Gesture) string {
	r := g.Result
	s := ""
	add := func(v string) {
		if v == "INVALID" {
			return
		}
		if s != "" {
			s += " "
		}
		s += v
	}
	add(r.Value.String())
	add(r.Status.String())
	add(r.Action.String())
	add(r.RotateAction.String())
	return s
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	rows := make([]gestureRow, 0, len(snap.Gestures))
	for t, g := range snap.Gestures {
		rows = append(rows, gestureRow{Type: t.String(), Summary: summarize(g), Count: g.Count})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Type < rows[j].Type })

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Gestures []gestureRow
		Uptime   time.Duration
	}{
		Snapshot: snap,
		Gestures: rows,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
