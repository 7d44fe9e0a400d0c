package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/scanning"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"127.0.0.1"}, cfg.Scan.Hosts)
	assert.Equal(t, 20, cfg.Scan.StartPort)
	assert.Equal(t, 8080, cfg.Scan.EndPort)
	assert.Equal(t, 2*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, scanning.DefaultConcurrency, cfg.Scan.Concurrency)
	assert.Equal(t, scanning.DefaultBannerSize, cfg.Scan.BannerSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "valid yaml config",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.yaml", `
scan:
  hosts: [10.0.0.1, scanme.example]
  start_port: 1
  end_port: 1024
  timeout: 500ms
  concurrency: 64
report:
  formats: [csv, html]
`)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"10.0.0.1", "scanme.example"}, cfg.Scan.Hosts)
				assert.Equal(t, 1, cfg.Scan.StartPort)
				assert.Equal(t, 1024, cfg.Scan.EndPort)
				assert.Equal(t, 500*time.Millisecond, cfg.Scan.Timeout)
				assert.Equal(t, 64, cfg.Scan.Concurrency)
				assert.Equal(t, []string{"csv", "html"}, cfg.Report.Formats)
				// untouched sections keep their defaults
				assert.Equal(t, scanning.DefaultBannerSize, cfg.Scan.BannerSize)
				assert.Equal(t, "info", cfg.Logging.Level)
			},
		},
		{
			name: "missing file uses defaults",
			path: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope.yaml")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "malformed file uses defaults",
			path: func(t *testing.T) string {
				return writeConfig(t, "bad.yaml", "scan: [unterminated\n  hosts: {")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "inverted port range",
			path: func(t *testing.T) string {
				return writeConfig(t, "inverted.yaml", "scan:\n  start_port: 100\n  end_port: 10\n")
			},
			wantErr: true,
		},
		{
			name: "port out of bounds",
			path: func(t *testing.T) string {
				return writeConfig(t, "bounds.yaml", "scan:\n  end_port: 70000\n")
			},
			wantErr: true,
		},
		{
			name: "bare integer timeout is nanoseconds",
			path: func(t *testing.T) string {
				return writeConfig(t, "nanos.yaml", "scan:\n  timeout: 2\n")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.path(t))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoadStrict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
		code    errors.ErrorCode
	}{
		{name: "missing file", missing: true, code: errors.CodeFileNotFound},
		{name: "malformed file", content: "scan: [this is: not: valid\n  hosts: {", code: errors.CodeConfiguration},
		{name: "invalid values", content: "scan:\n  banner_size: 0\n", code: errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.yaml")
			if !tt.missing {
				path = writeConfig(t, "config.yaml", tt.content)
			}

			cfg, err := LoadStrict(path)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Equal(t, tt.code, errors.GetCode(err))

			var cfgErr *errors.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}

	t.Run("valid file", func(t *testing.T) {
		path := writeConfig(t, "config.yaml", "scan:\n  hosts: [192.0.2.7]\n  timeout: 1500ms\n")
		cfg, err := LoadStrict(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"192.0.2.7"}, cfg.Scan.Hosts)
		assert.Equal(t, 1500*time.Millisecond, cfg.Scan.Timeout)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
		code   errors.ErrorCode
	}{
		{"no hosts", func(c *Config) { c.Scan.Hosts = nil }, "scan.hosts", errors.CodeValidation},
		{"empty host", func(c *Config) { c.Scan.Hosts = []string{""} }, "scan.hosts[0]", errors.CodeValidation},
		{"zero start", func(c *Config) { c.Scan.StartPort = 0 }, "scan.start_port", errors.CodeValidation},
		{"zero timeout", func(c *Config) { c.Scan.Timeout = 0 }, "scan.timeout", errors.CodeValidation},
		{"nanosecond timeout", func(c *Config) { c.Scan.Timeout = 2 }, "scan.timeout", errors.CodeValidation},
		{"sub-millisecond dns timeout", func(c *Config) { c.DNS.Timeout = time.Microsecond }, "dns.timeout", errors.CodeValidation},
		{"negative concurrency", func(c *Config) { c.Scan.Concurrency = -1 }, "scan.concurrency", errors.CodeValidation},
		{"unknown format", func(c *Config) { c.Report.Formats = []string{"pdf"} }, "report.formats[0]", errors.CodeValidation},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level", errors.CodeValidation},
		{"email without host", func(c *Config) {
			c.Email.Enabled = true
			c.Email.To = []string{"ops@example.com"}
		}, "email.host", errors.CodeValidation},
		{"server without address", func(c *Config) {
			c.Server.Enabled = true
			c.Server.ListenAddr = ""
		}, "server.listen_addr", errors.CodeValidation},
		{"inverted range", func(c *Config) {
			c.Scan.StartPort = 9000
			c.Scan.EndPort = 8000
		}, "scan.start_port", errors.CodePortRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))

			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scan.Hosts = []string{"192.0.2.10"}
	cfg.Scan.Timeout = 750 * time.Millisecond
	cfg.Schedule.Cron = "@hourly"

	path := filepath.Join(t.TempDir(), "nested", "bannerscan.yaml")
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePerm), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFromViper(t *testing.T) {
	t.Setenv("BANNERSCAN_SCAN_TIMEOUT", "3s")
	t.Setenv("BANNERSCAN_LOGGING_LEVEL", "debug")

	path := writeConfig(t, "bannerscan.yaml", "scan:\n  hosts: [198.51.100.7]\n  end_port: 100\n")

	v := viper.New()
	SetDefaults(v)
	ConfigureEnv(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"198.51.100.7"}, cfg.Scan.Hosts)
	assert.Equal(t, 20, cfg.Scan.StartPort)
	assert.Equal(t, 100, cfg.Scan.EndPort)
	assert.Equal(t, 3*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("scan.start_port", 500)
	v.Set("scan.end_port", 400)

	_, err := FromViper(v)
	assert.True(t, errors.IsCode(err, errors.CodePortRange))
}

func TestPortRangeAndSetPorts(t *testing.T) {
	cfg := Default()
	rng, err := cfg.PortRange()
	require.NoError(t, err)
	assert.Equal(t, scanning.PortRange{Start: 20, End: 8080}, rng)

	require.NoError(t, cfg.SetPorts("22-25"))
	assert.Equal(t, 22, cfg.Scan.StartPort)
	assert.Equal(t, 25, cfg.Scan.EndPort)

	assert.Error(t, cfg.SetPorts("25-22"))
	assert.Equal(t, 22, cfg.Scan.StartPort)

	cfg.Scan.EndPort = 70000
	_, err = cfg.PortRange()
	assert.Error(t, err)
}

func TestHasFormatAndLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Report.Formats = []string{FormatCSV, FormatChart}
	assert.True(t, cfg.HasFormat(FormatCSV))
	assert.False(t, cfg.HasFormat(FormatHTML))

	cfg.Logging.Format = "json"
	lc := cfg.LoggerConfig()
	assert.Equal(t, "json", string(lc.Format))
	assert.Equal(t, "stderr", lc.Output)
}
