// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the HCL configuration file.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/wirewall/internal/brand"
	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/errors"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string `hcl:"log_level,optional"`
	LogJSON  bool   `hcl:"log_json,optional"`

	Daemon *DaemonConfig `hcl:"daemon,block"`

	// Attach blocks bind interfaces at startup.
	Attach []AttachConfig `hcl:"attach,block"`

	// Rule blocks are static rules admitted through the controller at boot,
	// validated exactly like rules added at runtime.
	Rules []controller.RuleSpec `hcl:"rule,block"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	SocketPath      string `hcl:"socket_path,optional"`
	PidFile         string `hcl:"pid_file,optional"`
	Workers         int    `hcl:"workers,optional"`
	MaxRules        int    `hcl:"max_rules,optional"`
	HarvestInterval string `hcl:"harvest_interval,optional"`
	SweepInterval   string `hcl:"sweep_interval,optional"`
	MetricsListen   string `hcl:"metrics_listen,optional"`

	harvest time.Duration
	sweep   time.Duration
}

// AttachConfig binds one interface in the given mode at startup.
type AttachConfig struct {
	Interface string `hcl:"interface,label"`
	Mode      string `hcl:"mode,optional"`
	Force     bool   `hcl:"force,optional"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(brand.DefaultConfigDir, brand.ConfigFileName)
}

// Load reads and decodes path, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read config file")
	}
	return Decode(path, data)
}

// Decode parses HCL from data. The eval context exposes env ("env.HOME")
// and hostname so configs can reference the environment.
func Decode(filename string, data []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, evalContext(), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	hostname, _ := os.Hostname()
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":      cty.MapVal(ensureNonEmpty(env)),
			"hostname": cty.StringVal(hostname),
		},
	}
}

func ensureNonEmpty(m map[string]cty.Value) map[string]cty.Value {
	if len(m) == 0 {
		m["_"] = cty.StringVal("")
	}
	return m
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Daemon == nil {
		c.Daemon = &DaemonConfig{}
	}
	d := c.Daemon
	if d.SocketPath == "" {
		d.SocketPath = filepath.Join(brand.DefaultRunDir, brand.SocketName)
	}
	if d.PidFile == "" {
		d.PidFile = filepath.Join(brand.DefaultRunDir, brand.BinaryName+".pid")
	}
	if d.Workers <= 0 {
		d.Workers = runtime.NumCPU()
	}
	if d.HarvestInterval == "" {
		d.HarvestInterval = "5s"
	}
	if d.SweepInterval == "" {
		d.SweepInterval = "1s"
	}
}

// Validate checks everything that can be checked without a live system.
// Rule specs get full validation at admission; here only label uniqueness
// and obvious structural problems are rejected.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf(errors.KindValidation, "invalid log_level %q", c.LogLevel)
	}

	d := c.Daemon
	var err error
	if d.MaxRules < 0 {
		return errors.Errorf(errors.KindValidation, "max_rules must not be negative")
	}
	if d.harvest, err = time.ParseDuration(d.HarvestInterval); err != nil || d.harvest <= 0 {
		return errors.Errorf(errors.KindValidation, "invalid harvest_interval %q", d.HarvestInterval)
	}
	if d.sweep, err = time.ParseDuration(d.SweepInterval); err != nil || d.sweep <= 0 {
		return errors.Errorf(errors.KindValidation, "invalid sweep_interval %q", d.SweepInterval)
	}

	seen := map[string]bool{}
	for _, a := range c.Attach {
		if a.Interface == "" {
			return errors.New(errors.KindValidation, "attach block requires an interface name")
		}
		switch a.Mode {
		case "", "native", "driver", "generic", "offload":
		default:
			return errors.Errorf(errors.KindValidation, "invalid attach mode %q for %s", a.Mode, a.Interface)
		}
		if seen[a.Interface] {
			return errors.Errorf(errors.KindValidation, "duplicate attach block for %s", a.Interface)
		}
		seen[a.Interface] = true
	}

	labels := map[string]bool{}
	for _, r := range c.Rules {
		if r.Label == "" {
			return errors.New(errors.KindValidation, "rule block requires a label")
		}
		if labels[r.Label] {
			return errors.Errorf(errors.KindValidation, "duplicate rule label %q", r.Label)
		}
		labels[r.Label] = true
	}
	return nil
}

// Harvest returns the parsed harvest interval.
func (d *DaemonConfig) Harvest() time.Duration { return d.harvest }

// Sweep returns the parsed sweep interval.
func (d *DaemonConfig) Sweep() time.Duration { return d.sweep }
