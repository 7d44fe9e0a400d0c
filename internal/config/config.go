// Package config loads, validates and saves bannerscan run configuration.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/scanning"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600

	// EnvPrefix is the prefix for environment overrides, e.g. BANNERSCAN_SCAN_TIMEOUT.
	EnvPrefix = "BANNERSCAN"
)

// Report formats understood by the report package.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatHTML  = "html"
	FormatChart = "chart"
	FormatXML   = "xml"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Config represents the complete run configuration
type Config struct {
	// Scan holds the targets and probe settings
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Report selects artifacts written per host
	Report ReportConfig `yaml:"report" json:"report"`

	// Email configures report delivery
	Email EmailConfig `yaml:"email" json:"email"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Server configures the metrics and progress endpoint
	Server ServerConfig `yaml:"server" json:"server"`

	// DNS configures reverse name lookups
	DNS DNSConfig `yaml:"dns" json:"dns"`

	// Schedule configures repeated runs
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
}

// ScanConfig holds scanning-related settings
type ScanConfig struct {
	// Hosts are scanned one at a time in this order
	Hosts []string `yaml:"hosts" json:"hosts" validate:"required,min=1,dive,required"`

	// Inclusive port bounds
	StartPort int `yaml:"start_port" json:"start_port" validate:"min=1,max=65535"`
	EndPort   int `yaml:"end_port" json:"end_port" validate:"min=1,max=65535"`

	// Timeout bounds each probe's connect, write and read together. It is a
	// duration string such as "2s"; a bare integer is read as nanoseconds.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=1ms"`

	// Maximum in-flight probes per host, 0 for one per port
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"min=0"`

	// Bytes read from each open port
	BannerSize int `yaml:"banner_size" json:"banner_size" validate:"min=1,max=65536"`
}

// ReportConfig holds reporting settings
type ReportConfig struct {
	// Directory artifacts are written to
	OutputDir string `yaml:"output_dir" json:"output_dir" validate:"required"`

	// Formats to produce for each host
	Formats []string `yaml:"formats" json:"formats" validate:"dive,oneof=table csv html chart xml json yaml"`
}

// EmailConfig holds SMTP delivery settings
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Host     string   `yaml:"host" json:"host" validate:"required_if=Enabled true"`
	Port     int      `yaml:"port" json:"port" validate:"min=0,max=65535"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"-"`
	From     string   `yaml:"from" json:"from" validate:"omitempty,email"`
	To       []string `yaml:"to,omitempty" json:"to,omitempty" validate:"required_if=Enabled true,dive,email"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// ServerConfig holds metrics and progress server settings
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"required_if=Enabled true"`
}

// DNSConfig holds reverse lookup settings
type DNSConfig struct {
	// Resolve reverse names for report headers
	Resolve bool `yaml:"resolve" json:"resolve"`

	// Server is a host:port queried directly; empty uses the system resolver
	Server string `yaml:"server" json:"server" validate:"omitempty,hostname_port"`

	// Timeout per lookup; zero uses the resolver default
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"omitempty,gte=1ms"`
}

// ScheduleConfig holds settings for repeated runs
type ScheduleConfig struct {
	// Cron expression, standard five fields or a descriptor such as @hourly
	Cron string `yaml:"cron" json:"cron"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Hosts:       []string{"127.0.0.1"},
			StartPort:   20,
			EndPort:     8080,
			Timeout:     2 * time.Second,
			Concurrency: scanning.DefaultConcurrency,
			BannerSize:  scanning.DefaultBannerSize,
		},
		Report: ReportConfig{
			OutputDir: "reports",
			Formats:   []string{FormatTable},
		},
		Email: EmailConfig{
			Port: 587,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:9090",
		},
		DNS: DNSConfig{
			Timeout: 2 * time.Second,
		},
	}
}

// Load reads a YAML configuration file. A missing or unparseable file is not
// an error: the defaults are returned and a warning is logged. Values that
// parse but fail validation are returned as an error.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("Config file unavailable, using defaults", "path", path, "error", err)
		return config, nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		logging.Warn("Config file malformed, using defaults", "path", path, "error", err)
		return Default(), nil
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadStrict reads and validates a YAML configuration file like Load, but a
// missing or unparseable file is an error instead of a fallback to defaults.
func LoadStrict(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.CodeFilePermission
		if stderrors.Is(err, os.ErrNotExist) {
			code = errors.CodeFileNotFound
		}
		return nil, errors.WrapConfigError(code, "cannot read config file", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "cannot parse config file", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return errors.WrapConfigError(errors.CodeDirectoryCreate, "failed to create config directory", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return errors.WrapConfigError(errors.CodeFilePermission, "failed to write config file", err)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to marshal config", err)
	}
	return data, nil
}

// SetDefaults registers every default value with v so environment variables
// and flags can override keys that are absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("scan.hosts", d.Scan.Hosts)
	v.SetDefault("scan.start_port", d.Scan.StartPort)
	v.SetDefault("scan.end_port", d.Scan.EndPort)
	v.SetDefault("scan.timeout", d.Scan.Timeout)
	v.SetDefault("scan.concurrency", d.Scan.Concurrency)
	v.SetDefault("scan.banner_size", d.Scan.BannerSize)
	v.SetDefault("report.output_dir", d.Report.OutputDir)
	v.SetDefault("report.formats", d.Report.Formats)
	v.SetDefault("email.enabled", d.Email.Enabled)
	v.SetDefault("email.host", d.Email.Host)
	v.SetDefault("email.port", d.Email.Port)
	v.SetDefault("email.username", d.Email.Username)
	v.SetDefault("email.password", d.Email.Password)
	v.SetDefault("email.from", d.Email.From)
	v.SetDefault("email.to", d.Email.To)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("dns.resolve", d.DNS.Resolve)
	v.SetDefault("dns.server", d.DNS.Server)
	v.SetDefault("dns.timeout", d.DNS.Timeout)
	v.SetDefault("schedule.cron", d.Schedule.Cron)
}

// ConfigureEnv enables BANNERSCAN_* environment overrides on v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper builds a validated Config from everything v knows about: the
// config file, environment overrides and bound flags.
func FromViper(v *viper.Viper) (*Config, error) {
	config := Default()
	err := v.Unmarshal(config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to decode configuration", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the port range rule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("failed on %q rule", fe.Tag()), field, fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
	}

	if c.Scan.StartPort > c.Scan.EndPort {
		return errors.ErrPortRange(c.Scan.StartPort, c.Scan.EndPort)
	}
	return nil
}

// PortRange returns the validated scan range.
func (c *Config) PortRange() (scanning.PortRange, error) {
	rng := scanning.PortRange{Start: uint16(c.Scan.StartPort), End: uint16(c.Scan.EndPort)}
	if c.Scan.StartPort < 1 || c.Scan.EndPort > 65535 {
		return scanning.PortRange{}, errors.ErrPortRange(c.Scan.StartPort, c.Scan.EndPort)
	}
	if err := rng.Validate(); err != nil {
		return scanning.PortRange{}, err
	}
	return rng, nil
}

// SetPorts applies a "start-end" or single-port expression to the scan range.
func (c *Config) SetPorts(expr string) error {
	rng, err := scanning.ParsePortRange(expr)
	if err != nil {
		return err
	}
	c.Scan.StartPort = int(rng.Start)
	c.Scan.EndPort = int(rng.End)
	return nil
}

// HasFormat reports whether format is among the configured report formats.
func (c *Config) HasFormat(format string) bool {
	for _, f := range c.Report.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// LoggerConfig converts the logging section into a logging.Config.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Format: logging.LogFormat(c.Logging.Format),
		Output: c.Logging.Output,
	}
}
