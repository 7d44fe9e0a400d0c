package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/anstrom/bannerscan/internal/scanning"
)

var csvHeader = []string{"Port", "Status", "Service", "Banner"}

// CSVRenderer writes the open ports of a host as CSV.
type CSVRenderer struct{}

func (CSVRenderer) Format() string    { return "csv" }
func (CSVRenderer) Extension() string { return "csv" }

func (CSVRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range sortedByPort(result.Open()) {
		if err := cw.Write([]string{strconv.Itoa(int(p.Port)), string(p.Status), p.Service, p.Banner}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
