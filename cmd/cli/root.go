// Package cli provides the command-line interface for bannerscan.
// It implements the Cobra command tree for one-off scans, scheduled scans
// and configuration management.
package cli

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/bannerscan/internal/config"
	"github.com/anstrom/bannerscan/internal/logging"
)

const defaultConfigName = "bannerscan"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// flagKeys maps flags that mirror a config key onto that key. Flags only
// override the file and environment when set explicitly.
var flagKeys = map[string]string{
	"hosts":       "scan.hosts",
	"timeout":     "scan.timeout",
	"concurrency": "scan.concurrency",
	"banner-size": "scan.banner_size",
	"output-dir":  "report.output_dir",
	"formats":     "report.formats",
	"cron":        "schedule.cron",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bannerscan",
	Short: "Concurrent TCP port scanner with banner grabbing",
	Long: `bannerscan probes a range of TCP ports on each configured host, records
which ports are open, closed or in error, and captures the first bytes each
open service sends. Results are printed as they arrive and can be written as
table, CSV, HTML, chart, XML, JSON or YAML reports and mailed out.`,
	Version:           getVersion(),
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./"+defaultConfigName+".yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output, including debug logs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

// newViper returns a viper instance carrying defaults, environment overrides
// and the config file, if one can be read.
func newViper() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	config.ConfigureEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(defaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			logging.Warn("Config file unreadable, using defaults", "path", cfgFile, "error", err)
		}
	} else if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
	return v
}

// bindFlags binds every explicitly mapped flag of cmd onto v.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// loadConfig resolves the effective configuration for cmd from defaults, the
// config file, BANNERSCAN_* variables and the command's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := newViper()
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

// initLogging configures the default logger before any command runs. An
// invalid configuration falls back to the logging flags; the command itself
// reports the configuration error.
func initLogging(cmd *cobra.Command, _ []string) error {
	logConfig := logging.DefaultConfig()
	if cfg, err := loadConfig(cmd); err == nil {
		logConfig = cfg.LoggerConfig()
	} else {
		logConfig.Level = logging.LogLevel(logLevel)
		logConfig.Format = logging.LogFormat(logFormat)
	}
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	logConfig.AddSource = logConfig.Level == logging.LevelDebug

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)
	return nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}
