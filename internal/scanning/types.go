package scanning

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/bannerscan/internal/errors"
)

const (
	// Port validation constants.
	expectedPortRangeParts = 2
	maxPort                = 65535
)

// Status is the terminal classification of a single probe.
type Status string

const (
	// StatusOpen means the port accepted a connection.
	StatusOpen Status = "open"
	// StatusClosed means the connection was refused, unreachable or timed out at connect.
	StatusClosed Status = "closed"
	// StatusError means the probe failed abnormally.
	StatusError Status = "error"
)

// ScanError represents error types for probe operations.
type ScanError struct {
	Op   string // Operation that failed
	Err  error  // Original error
	Host string // Host where the error occurred, if applicable
	Port uint16 // Port where the error occurred, if applicable
}

func (e *ScanError) Error() string {
	if e.Host != "" && e.Port > 0 {
		return fmt.Sprintf("%s failed for %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
	}
	if e.Host != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// PortRange is an inclusive range of TCP ports.
type PortRange struct {
	Start uint16 `json:"start" yaml:"start" xml:"start,attr"`
	End   uint16 `json:"end" yaml:"end" xml:"end,attr"`
}

// ParsePortRange parses "80" or "20-8080" into a validated PortRange.
func ParsePortRange(expr string) (PortRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return PortRange{}, errors.ErrConfigMissing("scan.ports")
	}

	parts := strings.Split(expr, "-")
	if len(parts) > expectedPortRangeParts {
		return PortRange{}, errors.ErrConfigInvalid("scan.ports", expr)
	}

	start, err := parsePort(parts[0])
	if err != nil {
		return PortRange{}, err
	}
	end := start
	if len(parts) == expectedPortRangeParts {
		if end, err = parsePort(parts[1]); err != nil {
			return PortRange{}, err
		}
	}

	if start < 1 || end < 1 || start > end {
		return PortRange{}, errors.ErrPortRange(start, end)
	}
	return PortRange{Start: uint16(start), End: uint16(end)}, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.ErrConfigInvalid("scan.ports", s)
	}
	if port < 0 || port > maxPort {
		return 0, errors.ErrPortRange(port, port)
	}
	return port, nil
}

// Validate rejects empty, inverted, or zero-based ranges.
func (r PortRange) Validate() error {
	if r.Start == 0 || r.End == 0 || r.Start > r.End {
		return errors.ErrPortRange(int(r.Start), int(r.End))
	}
	return nil
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	if r.Start > r.End {
		return 0
	}
	return int(r.End) - int(r.Start) + 1
}

// Contains reports whether port lies inside the range.
func (r PortRange) Contains(port uint16) bool {
	return port >= r.Start && port <= r.End
}

func (r PortRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(int(r.Start))
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// PortResult is the outcome of probing one (host, port) pair.
// Service and Banner are only meaningful for open ports, ErrorDetail only for errors.
type PortResult struct {
	Host        string        `json:"host" yaml:"host"`
	Port        uint16        `json:"port" yaml:"port"`
	Status      Status        `json:"status" yaml:"status"`
	Service     string        `json:"service,omitempty" yaml:"service,omitempty"`
	Banner      string        `json:"banner" yaml:"banner"`
	ErrorDetail string        `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
}

// IsOpen reports whether the probe found the port open.
func (r PortResult) IsOpen() bool {
	return r.Status == StatusOpen
}

// Address returns the host:port the probe targeted.
func (r PortResult) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

func openResult(host string, port uint16, banner string) PortResult {
	return PortResult{
		Host:    host,
		Port:    port,
		Status:  StatusOpen,
		Service: ServiceName(port),
		Banner:  banner,
	}
}

func closedResult(host string, port uint16) PortResult {
	return PortResult{Host: host, Port: port, Status: StatusClosed}
}

func errorResult(host string, port uint16, err error) PortResult {
	return PortResult{
		Host:        host,
		Port:        port,
		Status:      StatusError,
		ErrorDetail: err.Error(),
	}
}

// HostScanResult contains every probe result for one host, in completion order.
type HostScanResult struct {
	// RunID identifies the orchestrator run that produced the result
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	// Host is the address or name that was scanned
	Host string `json:"host" yaml:"host"`
	// Hostname is the reverse DNS name of Host, if resolved
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	// Range is the port range that was scanned
	Range PortRange `json:"range" yaml:"range"`
	// Results holds one entry per port in the order probes completed
	Results []PortResult `json:"results" yaml:"results"`
	// StartTime is when the scan started
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	// EndTime is when the last probe completed
	EndTime time.Time `json:"end_time" yaml:"end_time"`
	// Duration is how long the scan took
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// NewHostScanResult creates a result with the current time as start time.
func NewHostScanResult(host string, rng PortRange) *HostScanResult {
	return &HostScanResult{
		Host:      host,
		Range:     rng,
		Results:   make([]PortResult, 0, rng.Size()),
		StartTime: time.Now(),
	}
}

// Complete marks the scan as complete and calculates duration.
func (r *HostScanResult) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Open returns the open-port subset, preserving completion order.
func (r *HostScanResult) Open() []PortResult {
	open := make([]PortResult, 0)
	for _, res := range r.Results {
		if res.IsOpen() {
			open = append(open, res)
		}
	}
	return open
}

// Counts tallies results by status.
type Counts struct {
	Open   int `json:"open" yaml:"open"`
	Closed int `json:"closed" yaml:"closed"`
	Error  int `json:"error" yaml:"error"`
	Total  int `json:"total" yaml:"total"`
}

// Counts returns the number of results in each status.
func (r *HostScanResult) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Status {
		case StatusOpen:
			c.Open++
		case StatusClosed:
			c.Closed++
		case StatusError:
			c.Error++
		}
	}
	c.Total = len(r.Results)
	return c
}

// DisplayName returns "host (hostname)" when a reverse name is known.
func (r *HostScanResult) DisplayName() string {
	if r.Hostname == "" || r.Hostname == r.Host {
		return r.Host
	}
	return fmt.Sprintf("%s (%s)", r.Host, r.Hostname)
}
