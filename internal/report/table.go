package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/bannerscan/internal/scanning"
)

// TableRenderer prints the open ports of a host as a console table.
type TableRenderer struct{}

func (TableRenderer) Format() string    { return "table" }
func (TableRenderer) Extension() string { return "" }

// Render writes a heading line followed by a Port/Status/Service/Banner table.
func (TableRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	counts := result.Counts()
	if _, err := fmt.Fprintf(w, "\nHost %s: %d open, %d closed, %d error (%d ports in %s)\n",
		result.DisplayName(), counts.Open, counts.Closed, counts.Error, counts.Total,
		result.Duration.Round(time.Millisecond)); err != nil {
		return err
	}

	open := result.Open()
	if len(open) == 0 {
		_, err := fmt.Fprintln(w, "No open ports found")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Port", "Status", "Service", "Banner")
	for _, p := range sortedByPort(open) {
		if err := table.Append([]string{
			strconv.Itoa(int(p.Port)),
			string(p.Status),
			p.Service,
			p.Banner,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
