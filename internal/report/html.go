package report

import (
	"html/template"
	"io"
	"time"

	"github.com/anstrom/bannerscan/internal/scanning"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Scan report for {{.Result.DisplayName}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
th { background: #eee; }
code { white-space: pre-wrap; }
</style>
</head>
<body>
<h1>Scan report for {{.Result.DisplayName}}</h1>
<p>Ports {{.Result.Range}} scanned {{.Started}} in {{.Elapsed}}{{if .Result.RunID}} (run {{.Result.RunID}}){{end}}.</p>
<p>{{.Counts.Open}} open, {{.Counts.Closed}} closed, {{.Counts.Error}} error of {{.Counts.Total}} ports.</p>
{{if .Open}}<table>
<tr><th>Port</th><th>Status</th><th>Service</th><th>Banner</th></tr>
{{range .Open}}<tr><td>{{.Port}}</td><td>{{.Status}}</td><td>{{.Service}}</td><td><code>{{.Banner}}</code></td></tr>
{{end}}</table>
{{else}}<p>No open ports found.</p>
{{end}}</body>
</html>
`))

// HTMLRenderer writes a standalone HTML summary of a host.
type HTMLRenderer struct{}

func (HTMLRenderer) Format() string    { return "html" }
func (HTMLRenderer) Extension() string { return "html" }

func (HTMLRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	return htmlTemplate.Execute(w, struct {
		Result  *scanning.HostScanResult
		Counts  scanning.Counts
		Open    []scanning.PortResult
		Started string
		Elapsed time.Duration
	}{
		Result:  result,
		Counts:  result.Counts(),
		Open:    sortedByPort(result.Open()),
		Started: result.StartTime.Format(time.RFC3339),
		Elapsed: result.Duration.Round(time.Millisecond),
	})
}
