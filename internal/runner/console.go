package runner

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/anstrom/bannerscan/internal/scanning"
)

// ConsolePrinter writes one status line per completed probe.
type ConsolePrinter struct {
	mu         sync.Mutex
	w          io.Writer
	hideClosed bool
}

// NewConsolePrinter creates a printer. Every status is printed unless
// hideClosed suppresses the closed lines.
func NewConsolePrinter(w io.Writer, hideClosed bool) *ConsolePrinter {
	return &ConsolePrinter{w: w, hideClosed: hideClosed}
}

// Publish prints the line for p.
func (c *ConsolePrinter) Publish(_ string, p scanning.Progress) {
	res := p.Result
	prefix := fmt.Sprintf("[%*d/%d] %s", digits(p.Total), p.Completed, p.Total, res.Address())

	var line string
	switch res.Status {
	case scanning.StatusOpen:
		line = fmt.Sprintf("%s open %s", prefix, res.Service)
		if res.Banner != "" {
			line += fmt.Sprintf(" %q", res.Banner)
		}
	case scanning.StatusClosed:
		if c.hideClosed {
			return
		}
		line = prefix + " closed"
	default:
		line = fmt.Sprintf("%s error: %s", prefix, res.ErrorDetail)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, line)
}

// PublishHost prints a one-line summary for a finished host.
func (c *ConsolePrinter) PublishHost(result *scanning.HostScanResult) {
	counts := result.Counts()

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "Finished %s: %d open, %d closed, %d error in %s\n",
		result.DisplayName(), counts.Open, counts.Closed, counts.Error, result.Duration.Round(time.Millisecond))
}

func digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
