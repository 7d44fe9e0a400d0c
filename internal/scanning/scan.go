package scanning

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/metrics"
)

const (
	// DefaultConcurrency caps in-flight probes per host.
	DefaultConcurrency = 1000
)

// Progress describes one completed probe within a host scan.
type Progress struct {
	Host      string     `json:"host"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	Result    PortResult `json:"result"`
}

// ProgressFunc receives progress events from the goroutine consuming results.
type ProgressFunc func(Progress)

// HostScanner scans a port range on one host with bounded concurrency.
type HostScanner struct {
	prober      *Prober
	concurrency int
	recorder    metrics.Recorder
	logger      *logging.Logger
}

// ScannerOption configures a HostScanner.
type ScannerOption func(*HostScanner)

// WithConcurrency caps simultaneous probes. Zero or less means one slot per
// port, i.e. every probe in the range runs at once.
func WithConcurrency(n int) ScannerOption {
	return func(s *HostScanner) {
		s.concurrency = n
	}
}

// WithRecorder reports probe metrics into r.
func WithRecorder(r metrics.Recorder) ScannerOption {
	return func(s *HostScanner) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithScannerLogger sets the scanner's logger.
func WithScannerLogger(l *logging.Logger) ScannerOption {
	return func(s *HostScanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHostScanner creates a host scanner around prober.
func NewHostScanner(prober *Prober, opts ...ScannerOption) *HostScanner {
	s := &HostScanner{
		prober:      prober,
		concurrency: DefaultConcurrency,
		recorder:    nopRecorder{},
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HostScanner) validate(host string, rng PortRange, timeout time.Duration) error {
	if strings.TrimSpace(host) == "" {
		return errors.ErrInvalidTarget(host)
	}
	if err := rng.Validate(); err != nil {
		return err
	}
	if timeout <= 0 {
		return errors.ErrConfigInvalid("scan.timeout", timeout)
	}
	return nil
}

func (s *HostScanner) capacityFor(total int) int {
	if s.concurrency <= 0 || s.concurrency > total {
		return total
	}
	return s.concurrency
}

// Stream launches one probe per port in rng and returns a channel carrying
// exactly one result per port in completion order. The channel is buffered
// to the range size so probes never wait on the consumer, and it is closed
// after the last probe finishes. If ctx ends before a port gets a slot, that
// port is reported as an error rather than dropped.
func (s *HostScanner) Stream(ctx context.Context, host string, rng PortRange, timeout time.Duration) (<-chan PortResult, error) {
	if err := s.validate(host, rng, timeout); err != nil {
		return nil, err
	}

	total := rng.Size()
	results := make(chan PortResult, total)
	limiter := NewWeightedLimiter(s.capacityFor(total), s.recorder)

	go func() {
		var wg sync.WaitGroup
		for p := int(rng.Start); p <= int(rng.End); p++ {
			port := uint16(p)

			if err := limiter.Acquire(ctx); err != nil {
				results <- errorResult(host, port, &ScanError{Op: "schedule", Host: host, Port: port, Err: err})
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer limiter.Release()

				res := s.prober.Probe(ctx, host, port, timeout)
				s.recorder.ObserveProbe(string(res.Status), res.Duration)
				results <- res
			}()
		}
		wg.Wait()
		close(results)
	}()

	return results, nil
}

// Scan runs Stream to completion, accumulating every result and invoking
// progress after each one. The returned result is never nil when err is nil.
func (s *HostScanner) Scan(ctx context.Context, host string, rng PortRange, timeout time.Duration,
	progress ProgressFunc) (*HostScanResult, error) {
	stream, err := s.Stream(ctx, host, rng, timeout)
	if err != nil {
		return nil, err
	}

	total := rng.Size()
	s.logger.InfoScan("Starting host scan", host,
		"ports", rng.String(),
		"total", total,
		"timeout", timeout,
		"concurrency", s.capacityFor(total))

	result := NewHostScanResult(host, rng)
	for res := range stream {
		result.Results = append(result.Results, res)
		if progress != nil {
			progress(Progress{
				Host:      host,
				Completed: len(result.Results),
				Total:     total,
				Result:    res,
			})
		}
	}
	result.Complete()

	counts := result.Counts()
	s.logger.InfoScan("Host scan completed", host,
		"open", counts.Open,
		"closed", counts.Closed,
		"errors", counts.Error,
		"duration", result.Duration)

	return result, nil
}
