// Package runner drives a complete scan run: every configured host is
// scanned in order and each result is handed to the reporting and delivery
// collaborators.
package runner

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/bannerscan/internal/config"
	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/metrics"
	"github.com/anstrom/bannerscan/internal/report"
	"github.com/anstrom/bannerscan/internal/scanning"
)

// Host scan outcomes recorded in metrics.
const (
	hostCompleted = "completed"
	hostCanceled  = "canceled"
	hostFailed    = "failed"
)

// Reporter renders a host result into artifacts.
type Reporter interface {
	Write(result *scanning.HostScanResult) ([]report.Artifact, error)
}

// Deliverer transmits a host result and its artifacts.
type Deliverer interface {
	Deliver(ctx context.Context, result *scanning.HostScanResult, artifacts []report.Artifact) error
}

// NameResolver returns a reverse name for a host, or "".
type NameResolver interface {
	Reverse(ctx context.Context, host string) string
}

// ProgressSink observes a run as it happens.
type ProgressSink interface {
	Publish(runID string, p scanning.Progress)
	PublishHost(result *scanning.HostScanResult)
}

// Metrics is what the runner records about a run.
type Metrics interface {
	metrics.Recorder
	ObserveHost(host, status string, open int, duration time.Duration)
	IncrementReportErrors(stage string)
	IncrementRuns()
}

// Runner sequences host scans and hands results to collaborators.
type Runner struct {
	reporter  Reporter
	deliverer Deliverer
	resolver  NameResolver
	sinks     []ProgressSink
	dialer    scanning.Dialer
	metrics   Metrics
	logger    *logging.Logger
	newRunID  func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithReporter sets the reporting collaborator.
func WithReporter(r Reporter) Option {
	return func(rn *Runner) { rn.reporter = r }
}

// WithDeliverer sets the delivery collaborator.
func WithDeliverer(d Deliverer) Option {
	return func(rn *Runner) { rn.deliverer = d }
}

// WithResolver enables reverse lookups of scanned hosts.
func WithResolver(r NameResolver) Option {
	return func(rn *Runner) { rn.resolver = r }
}

// WithProgress adds a progress sink. May be given more than once.
func WithProgress(s ProgressSink) Option {
	return func(rn *Runner) { rn.sinks = append(rn.sinks, s) }
}

// WithDialer overrides the dialer used by probes.
func WithDialer(d scanning.Dialer) Option {
	return func(rn *Runner) { rn.dialer = d }
}

// WithMetrics records run metrics into m.
func WithMetrics(m Metrics) Option {
	return func(rn *Runner) { rn.metrics = m }
}

// WithLogger sets the runner's logger.
func WithLogger(l *logging.Logger) Option {
	return func(rn *Runner) { rn.logger = l }
}

// New creates a Runner. Collaborators left unset are skipped.
func New(opts ...Option) *Runner {
	r := &Runner{
		metrics:  nopMetrics{},
		logger:   logging.Default(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	return r
}

// Run scans every configured host one at a time, in configured order.
// Configuration errors are returned before anything is scanned. Reporting
// and delivery failures are logged, do not stop the run, and are joined into
// the returned error alongside the results of every host.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) ([]*scanning.HostScanResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng, err := cfg.PortRange()
	if err != nil {
		return nil, err
	}

	runID := r.newRunID()
	logger := r.logger.WithRunID(runID)
	scanner := r.newScanner(cfg, logger)

	logger.Info("Starting scan run",
		"hosts", len(cfg.Scan.Hosts),
		"ports", rng.String(),
		"timeout", cfg.Scan.Timeout)

	results := make([]*scanning.HostScanResult, 0, len(cfg.Scan.Hosts))
	var errs []error

	for _, host := range cfg.Scan.Hosts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, errors.ErrScanCanceled(host, ctxErr))
			break
		}

		result, err := scanner.Scan(ctx, host, rng, cfg.Scan.Timeout, func(p scanning.Progress) {
			for _, s := range r.sinks {
				s.Publish(runID, p)
			}
		})
		if err != nil {
			logger.ErrorScan("Host scan failed", host, err)
			r.metrics.ObserveHost(host, hostFailed, 0, 0)
			errs = append(errs, errors.WrapScanErrorWithTarget(errors.CodeScanFailed, "Host scan failed", host, err).
				WithContext("ports", rng.String()))
			continue
		}

		result.RunID = runID
		if r.resolver != nil {
			result.Hostname = r.resolver.Reverse(ctx, host)
		}

		status := hostCompleted
		if ctx.Err() != nil {
			status = hostCanceled
		}
		r.metrics.ObserveHost(host, status, len(result.Open()), result.Duration)
		for _, s := range r.sinks {
			s.PublishHost(result)
		}

		errs = append(errs, r.handOff(ctx, logger, result)...)
		results = append(results, result)
	}

	r.metrics.IncrementRuns()
	logger.Info("Scan run finished", "hosts_scanned", len(results))
	return results, stderrors.Join(errs...)
}

func (r *Runner) newScanner(cfg *config.Config, logger *logging.Logger) *scanning.HostScanner {
	proberOpts := []scanning.ProberOption{
		scanning.WithBannerSize(cfg.Scan.BannerSize),
		scanning.WithProberLogger(logger),
	}
	if r.dialer != nil {
		proberOpts = append(proberOpts, scanning.WithDialer(r.dialer))
	}

	return scanning.NewHostScanner(scanning.NewProber(proberOpts...),
		scanning.WithConcurrency(cfg.Scan.Concurrency),
		scanning.WithRecorder(r.metrics),
		scanning.WithScannerLogger(logger))
}

// handOff passes result to the reporter and then the deliverer.
func (r *Runner) handOff(ctx context.Context, logger *logging.Logger, result *scanning.HostScanResult) []error {
	var errs []error
	hostLogger := logger.WithTarget(result.Host)

	var artifacts []report.Artifact
	if r.reporter != nil {
		var err error
		artifacts, err = r.reporter.Write(result)
		if err != nil {
			hostLogger.WithError(err).Error("Reporting failed")
			r.metrics.IncrementReportErrors("report")
			errs = append(errs, err)
		}
	}

	if r.deliverer != nil {
		if err := r.deliverer.Deliver(ctx, result, artifacts); err != nil {
			hostLogger.WithError(err).Error("Delivery failed")
			r.metrics.IncrementReportErrors("delivery")
			errs = append(errs, err)
		}
	}
	return errs
}

type nopMetrics struct{}

func (nopMetrics) ObserveProbe(string, time.Duration)             {}
func (nopMetrics) ProbeStarted()                                  {}
func (nopMetrics) ProbeFinished()                                 {}
func (nopMetrics) ObserveHost(string, string, int, time.Duration) {}
func (nopMetrics) IncrementReportErrors(string)                   {}
func (nopMetrics) IncrementRuns()                                 {}
