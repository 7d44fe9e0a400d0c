package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/bannerscan/internal/api"
	"github.com/anstrom/bannerscan/internal/config"
	"github.com/anstrom/bannerscan/internal/delivery"
	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/metrics"
	"github.com/anstrom/bannerscan/internal/report"
	"github.com/anstrom/bannerscan/internal/resolve"
	"github.com/anstrom/bannerscan/internal/runner"
	"github.com/anstrom/bannerscan/internal/scanning"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan hosts for open ports and grab banners",
	Long: `Probe every port of the configured range on each host in turn. Each port
is reported as open, closed or error as soon as its probe finishes; open ports
carry the service name and the first bytes the service sent.

Hosts, ports and the other settings come from the config file and
BANNERSCAN_* environment variables unless overridden by flags.`,
	Example: `  bannerscan scan --hosts 127.0.0.1 --ports 20-8080
  bannerscan scan --hosts 10.0.0.5,10.0.0.6 --ports 22 --timeout 500ms
  bannerscan scan --hosts scanme.example --formats table,csv,chart --output-dir ./out
  bannerscan scan --hosts 192.0.2.10 --email ops@example.com --listen 127.0.0.1:9090`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addRunFlags(scanCmd)
}

// addRunFlags registers the flags shared by every command that runs scans.
func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSlice("hosts", nil, "Comma-separated hosts to scan, in order")
	flags.String("ports", "", "Inclusive port range, e.g. '20-8080' or '22'")
	flags.Duration("timeout", 0, "Per-probe timeout covering connect, send and banner read")
	flags.Int("concurrency", scanning.DefaultConcurrency, "Maximum simultaneous probes per host, 0 for one per port")
	flags.Int("banner-size", scanning.DefaultBannerSize, "Maximum banner bytes read from each open port")
	flags.String("output-dir", "", "Directory for report files")
	flags.StringSlice("formats", nil, "Report formats: table, csv, html, chart, xml, json, yaml")
	flags.StringSlice("email", nil, "Mail each host report to these recipients")
	flags.String("listen", "", "Serve /health, /metrics and /ws/progress on this address")
	flags.Bool("hide-closed", false, "Do not print a line for each closed port")
}

// applyRunFlags applies flags that do not map one-to-one onto a config key.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("ports") {
		ports, err := flags.GetString("ports")
		if err != nil {
			return err
		}
		if err := cfg.SetPorts(ports); err != nil {
			return err
		}
	}

	if flags.Changed("email") {
		to, err := flags.GetStringSlice("email")
		if err != nil {
			return err
		}
		cfg.Email.To = to
		cfg.Email.Enabled = len(to) > 0
	}

	if flags.Changed("listen") {
		addr, err := flags.GetString("listen")
		if err != nil {
			return err
		}
		cfg.Server.ListenAddr = addr
		cfg.Server.Enabled = addr != ""
	}

	return cfg.Validate()
}

// runConfig resolves the configuration for a command that runs scans.
func runConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a runner together with the optional observability server
// feeding off it.
type session struct {
	runner *runner.Runner
	server *api.Server
	logger *logging.Logger
}

// newSession wires the runner's collaborators from cfg.
func newSession(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger) (*session, error) {
	out := cmd.OutOrStdout()

	writer, err := report.NewWriter(cfg.Report.OutputDir, cfg.Report.Formats, out, logger)
	if err != nil {
		return nil, err
	}

	hideClosed, _ := cmd.Flags().GetBool("hide-closed")
	pm := metrics.GetGlobalMetrics()
	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithReporter(writer),
		runner.WithMetrics(pm),
		runner.WithProgress(runner.NewConsolePrinter(out, hideClosed)),
	}

	if cfg.Email.Enabled {
		opts = append(opts, runner.WithDeliverer(delivery.NewMailer(delivery.Settings{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, nil, logger)))
	}

	if cfg.DNS.Resolve {
		opts = append(opts, runner.WithResolver(resolve.New(cfg.DNS.Server, cfg.DNS.Timeout, logger)))
	}

	s := &session{logger: logger}
	if cfg.Server.Enabled {
		s.server = api.New(cfg.Server.ListenAddr, pm, api.NewProgressHub(logger), logger)
		opts = append(opts, runner.WithProgress(s.server.Hub()))
	}

	s.runner = runner.New(opts...)
	return s, nil
}

// serve starts the observability server, if any, until the returned stop
// function is called.
func (s *session) serve(ctx context.Context) (stop func()) {
	if s.server == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.server.Start(ctx); err != nil {
			s.logger.Error("Observability server failed", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// signalContext returns a context canceled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := runConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.Default()
	s, err := newSession(cmd, cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stop := s.serve(ctx)
	defer stop()

	results, err := s.runner.Run(ctx, cfg)

	open := 0
	for _, r := range results {
		open += len(r.Open())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d of %d hosts, %d open ports\n",
		len(results), len(cfg.Scan.Hosts), open)
	if errors.IsCode(err, errors.CodeCanceled) {
		fmt.Fprintln(cmd.OutOrStdout(), "Scan interrupted, remaining hosts were skipped")
	}

	return err
}
