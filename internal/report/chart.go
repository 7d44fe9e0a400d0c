package report

import (
	"fmt"
	"io"
	"slices"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/anstrom/bannerscan/internal/scanning"
)

const (
	chartHeight     = 480
	chartMinWidth   = 640
	chartBarWidth   = 40
	chartBarSpacing = 24
	chartMargin     = 160
)

// ChartRenderer draws an SVG bar chart of open ports per service.
type ChartRenderer struct{}

func (ChartRenderer) Format() string    { return "chart" }
func (ChartRenderer) Extension() string { return "svg" }

func (ChartRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	bars, top := serviceBars(result.Open())
	if len(bars) == 0 {
		// go-chart refuses empty bar charts
		bars = []chart.Value{{Label: "none", Value: 0}}
	}

	width := chartMargin + len(bars)*(chartBarWidth+chartBarSpacing)
	if width < chartMinWidth {
		width = chartMinWidth
	}

	graph := chart.BarChart{
		Title: fmt.Sprintf("Open ports on %s", result.DisplayName()),
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		Width:      width,
		Height:     chartHeight,
		BarWidth:   chartBarWidth,
		BarSpacing: chartBarSpacing,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(top + 1)},
		},
		Bars: bars,
	}
	return graph.Render(chart.SVG, w)
}

// serviceBars counts open ports per service, sorted by service name.
func serviceBars(open []scanning.PortResult) (bars []chart.Value, top int) {
	counts := make(map[string]int)
	for _, p := range open {
		counts[p.Service]++
	}

	names := make([]string, 0, len(counts))
	for name, n := range counts {
		names = append(names, name)
		top = max(top, n)
	}
	slices.Sort(names)

	for _, name := range names {
		bars = append(bars, chart.Value{Label: name, Value: float64(counts[name])})
	}
	return bars, top
}
