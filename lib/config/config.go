// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/releasecheck"
	"github.com/bureau-foundation/edge-desktop/lib/service"
)

// EnvVar names the environment variable read by Load.
const EnvVar = "EDGE_DESKTOP_CONFIG"

// Config is the client configuration.
type Config struct {
	// DataService is the tunnel data service endpoint.
	// Default: unix:/run/edge-desktop/data.sock
	DataService service.Endpoint `yaml:"data_service"`

	// MonitorService is the lifecycle monitor endpoint.
	// Default: unix:/run/edge-desktop/monitor.sock
	MonitorService service.Endpoint `yaml:"monitor_service"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	StopWait  StopWaitConfig  `yaml:"stop_wait"`

	// LogLevel is one of FATAL, ERROR, WARN, INFO, DEBUG, TRACE,
	// VERBOSE. Default: INFO
	LogLevel string `yaml:"log_level"`

	ReleaseCheck ReleaseCheckConfig `yaml:"release_check"`

	// StateDir holds client-side files such as the log file.
	// Default: ${HOME}/.local/state/edge-desktop
	StateDir string `yaml:"state_dir"`
}

// ReconnectConfig is the event stream reconnect schedule. Durations
// use time.ParseDuration syntax.
type ReconnectConfig struct {
	// InitialBackoff is the first retry delay. Default: 1s
	InitialBackoff string `yaml:"initial_backoff"`

	// MaxBackoff caps the doubling delay. Default: 30s
	MaxBackoff string `yaml:"max_backoff"`
}

// StopWaitConfig bounds the wait for a stopping data service.
type StopWaitConfig struct {
	// Budget is how long to wait before offering force-terminate.
	// Default: 30s
	Budget string `yaml:"budget"`

	// PollInterval is the time between status queries. Default: 2s
	PollInterval string `yaml:"poll_interval"`
}

// ReleaseCheckConfig configures the update check made when the
// monitor cannot be reached.
type ReleaseCheckConfig struct {
	// URL is a GitHub latest-release endpoint.
	URL string `yaml:"url"`

	// Enabled turns the check on. Default: true
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used for anything the file does
// not set.
func Default() *Config {
	return &Config{
		DataService:    service.UnixEndpoint("/run/edge-desktop/data.sock"),
		MonitorService: service.UnixEndpoint("/run/edge-desktop/monitor.sock"),
		Reconnect: ReconnectConfig{
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
		},
		StopWait: StopWaitConfig{
			Budget:       "30s",
			PollInterval: "2s",
		},
		LogLevel: loglevel.Info.String(),
		ReleaseCheck: ReleaseCheckConfig{
			URL:     releasecheck.DefaultURL,
			Enabled: true,
		},
		StateDir: "${HOME}/.local/state/edge-desktop",
	}
}

// Load loads the file named by EDGE_DESKTOP_CONFIG. It fails if the
// variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your edge-desktop.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) ExpandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.StateDir = expandVars(c.StateDir, vars)
	vars["EDGE_STATE_DIR"] = c.StateDir

	if c.DataService.Network == "unix" {
		c.DataService.Address = expandVars(c.DataService.Address, vars)
	}
	if c.MonitorService.Network == "unix" {
		c.MonitorService.Address = expandVars(c.MonitorService.Address, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	for name, endpoint := range map[string]service.Endpoint{
		"data_service":    c.DataService,
		"monitor_service": c.MonitorService,
	} {
		if endpoint.Network != "unix" && endpoint.Network != "tcp" {
			errs = append(errs, fmt.Errorf("%s.network must be unix or tcp, got %q", name, endpoint.Network))
		}
		if endpoint.Address == "" {
			errs = append(errs, fmt.Errorf("%s.address is required", name))
		}
	}

	initial, err := parsePositive("reconnect.initial_backoff", c.Reconnect.InitialBackoff)
	errs = appendErr(errs, err)
	maximum, err := parsePositive("reconnect.max_backoff", c.Reconnect.MaxBackoff)
	errs = appendErr(errs, err)
	if initial > 0 && maximum > 0 && maximum < initial {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff (%s) is less than initial_backoff (%s)", maximum, initial))
	}

	budget, err := parsePositive("stop_wait.budget", c.StopWait.Budget)
	errs = appendErr(errs, err)
	interval, err := parsePositive("stop_wait.poll_interval", c.StopWait.PollInterval)
	errs = appendErr(errs, err)
	if budget > 0 && interval > 0 && interval > budget {
		errs = append(errs, fmt.Errorf("stop_wait.poll_interval (%s) exceeds budget (%s)", interval, budget))
	}

	if _, err := loglevel.Parse(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if c.ReleaseCheck.Enabled && c.ReleaseCheck.URL == "" {
		errs = append(errs, fmt.Errorf("release_check.url is required when enabled"))
	}

	if c.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir is required"))
	}

	return errors.Join(errs...)
}

// Durations holds the parsed duration fields.
type Durations struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StopBudget     time.Duration
	StopQuantum    time.Duration
}

// Durations parses the duration fields. Call Validate first; an
// unparseable field here is an error.
func (c *Config) Durations() (Durations, error) {
	var durations Durations
	var errs []error
	var err error
	durations.InitialBackoff, err = parsePositive("reconnect.initial_backoff", c.Reconnect.InitialBackoff)
	errs = appendErr(errs, err)
	durations.MaxBackoff, err = parsePositive("reconnect.max_backoff", c.Reconnect.MaxBackoff)
	errs = appendErr(errs, err)
	durations.StopBudget, err = parsePositive("stop_wait.budget", c.StopWait.Budget)
	errs = appendErr(errs, err)
	durations.StopQuantum, err = parsePositive("stop_wait.poll_interval", c.StopWait.PollInterval)
	errs = appendErr(errs, err)
	return durations, errors.Join(errs...)
}

// Level returns the parsed log level.
func (c *Config) Level() (loglevel.Level, error) {
	return loglevel.Parse(c.LogLevel)
}

// EnsureStateDir creates the state directory.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.StateDir, err)
	}
	return nil
}

// LogFilePath is the default --log-file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.StateDir, "edge-desktop.log")
}

func parsePositive(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
