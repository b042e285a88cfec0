// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Avalon settings from defaults, a YAML file, an
// optional profile file, AVALON_* environment variables and --set flags,
// in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/jllopis/avalon/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AVALON_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Actors    ActorsConfig    `koanf:"actors"`
	Match     MatchConfig     `koanf:"match"`
	History   HistoryConfig   `koanf:"history"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// LLMConfig is the backend used by every automated seat unless the seat
// overrides it.
type LLMConfig struct {
	Provider    string  `koanf:"provider"` // ollama, openai, deepseek, mock
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	// MemoryWindow is how many messages of its own conversation a seat
	// replays. Zero disables seat memory.
	MemoryWindow int `koanf:"memory_window"`
	// MemoryTokens bounds the replayed conversation by estimated tokens
	// instead of messages. It wins over MemoryWindow when set.
	MemoryTokens int `koanf:"memory_tokens"`
}

type ActorsConfig struct {
	Retries                   int  `koanf:"retries"`
	TimeoutSeconds            int  `koanf:"timeout_seconds"`
	InteractiveTimeoutSeconds int  `koanf:"interactive_timeout_seconds"`
	BreakerFailures           int  `koanf:"breaker_failures"`
	BreakerResetSeconds       int  `koanf:"breaker_reset_seconds"`
	DisableBreaker            bool `koanf:"disable_breaker"`
	// ModerateComments blocks table talk aimed at the other models.
	ModerateComments bool `koanf:"moderate_comments"`
	// Seats overrides the backend of single seats by name.
	Seats map[string]SeatConfig `koanf:"seats"`
}

type SeatConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	Temperature *float64 `koanf:"temperature"`
}

type MatchConfig struct {
	Seats []string `koanf:"seats"`
	// Seed makes a match reproducible. Zero draws a fresh seed.
	Seed   int64    `koanf:"seed"`
	Humans []string `koanf:"humans"`
}

type HistoryConfig struct {
	LogDir     string   `koanf:"log_dir"`
	Formats    []string `koanf:"formats"` // json, yaml, text
	SQLitePath string   `koanf:"sqlite_path"`
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

// Timeout returns the per-attempt bound of automated actors.
func (a ActorsConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// InteractiveTimeout returns the per-attempt bound of human seats.
func (a ActorsConfig) InteractiveTimeout() time.Duration {
	return time.Duration(a.InteractiveTimeoutSeconds) * time.Second
}

// BreakerReset returns how long an open breaker waits before probing.
func (a ActorsConfig) BreakerReset() time.Duration {
	return time.Duration(a.BreakerResetSeconds) * time.Second
}

// Seat returns the backend settings of seat, falling back to the shared
// LLM settings for every field the seat leaves empty.
func (c Config) Seat(name string) LLMConfig {
	out := c.LLM
	s, ok := c.Actors.Seats[name]
	if !ok {
		return out
	}
	if s.Provider != "" && s.Provider != out.Provider {
		out.Provider = s.Provider
		out.BaseURL = ""
		out.APIKey = ""
	}
	if s.Model != "" {
		out.Model = s.Model
	}
	if s.BaseURL != "" {
		out.BaseURL = s.BaseURL
	}
	if s.Temperature != nil {
		out.Temperature = *s.Temperature
	}
	return out
}

// IsHuman reports whether seat is played by a person.
func (m MatchConfig) IsHuman(seat string) bool {
	for _, h := range m.Humans {
		if h == seat {
			return true
		}
	}
	return false
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":      "ollama",
	"llm.model":         "deepseek-r1",
	"llm.base_url":      "",
	"llm.temperature":   0.7,
	"llm.memory_window": 20,
	"llm.memory_tokens": 0,

	"actors.retries":                     3,
	"actors.timeout_seconds":             120,
	"actors.interactive_timeout_seconds": 0,
	"actors.breaker_failures":            3,
	"actors.breaker_reset_seconds":       60,
	"actors.moderate_comments":           true,

	"match.seats": []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank"},
	"match.seed":  0,

	"history.log_dir":     "game_logs",
	"history.formats":     []string{"json", "text"},
	"history.sqlite_path": "",

	"telemetry.exporter":             "none",
	"telemetry.otlp_timeout_seconds": 10,
}

// Load reads path (optional) over the defaults, then the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile is Load plus config.<profile>.yaml next to path, when it
// exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI understands --config, --profile (or --env) and repeated
// --set key=value flags. Unknown arguments are ignored so the caller can
// pass its raw os.Args.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.ConfigPath, opts.Profile, overrides)
}

type cliOptions struct {
	ConfigPath string
	Profile    string
}

func load(path, profile string, overrides []override) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "invalid default", err).WithContext("key", key)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "cannot read config file", err).
				WithContext("path", path)
		}
		if p := profileConfigPath(path, profile); p != "" {
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, errors.New(errors.CodeConfiguration, "cannot read profile file", err).
					WithContext("path", p)
			}
		}
	}

	// AVALON_LLM_API_KEY -> llm.api_key: the first underscore splits the
	// section from the key.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "cannot read environment", err)
	}

	for _, o := range overrides {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "invalid override", err).WithContext("key", o.key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "cannot decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// profileConfigPath returns <dir>/<name>.<profile><ext> for base when that
// file exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	p := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

type override struct {
	key   string
	value any
}

func parseCLIOverrides(args []string) (cliOptions, []override, error) {
	var opts cliOptions
	var out []override

	value := func(i int, flag string) (string, int, error) {
		arg := args[i]
		if v, ok := strings.CutPrefix(arg, flag+"="); ok {
			return v, i, nil
		}
		if i+1 >= len(args) {
			return "", i, errors.Newf(errors.CodeConfiguration, "%s needs a value", flag)
		}
		return args[i+1], i + 1, nil
	}
	is := func(arg, flag string) bool {
		return arg == flag || strings.HasPrefix(arg, flag+"=")
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var (
			v   string
			err error
		)
		switch {
		case is(arg, "--config"):
			v, i, err = value(i, "--config")
			opts.ConfigPath = v
		case is(arg, "--profile"):
			v, i, err = value(i, "--profile")
			opts.Profile = v
		case is(arg, "--env"):
			v, i, err = value(i, "--env")
			opts.Profile = v
		case is(arg, "--set"):
			v, i, err = value(i, "--set")
			if err == nil {
				var o override
				o, err = parseOverride(v)
				out = append(out, o)
			}
		}
		if err != nil {
			return cliOptions{}, nil, err
		}
	}
	return opts, out, nil
}

// parseOverride splits key=value and decodes value as YAML, so numbers,
// booleans, lists and maps keep their type.
func parseOverride(s string) (override, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, errors.Newf(errors.CodeConfiguration, "--set wants key=value, got %q", s)
	}
	var v any
	if err := yamlv3.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return override{key: key, value: raw}, nil
	}
	if _, isMap := v.(map[string]any); isMap && !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		// "a: b" is text, not a map.
		return override{key: key, value: raw}, nil
	}
	return override{key: key, value: v}, nil
}

var (
	logFormats    = []string{"json", "text"}
	providers     = []string{"ollama", "openai", "deepseek", "mock"}
	exporters     = []string{"stdout", "otlp", "none"}
	historyFormat = []string{"json", "yaml", "text"}
)

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if !oneOf(c.Log.Format, logFormats) {
		return invalid("log.format", c.Log.Format)
	}
	if !oneOf(c.LLM.Provider, providers) {
		return invalid("llm.provider", c.LLM.Provider)
	}
	for name, s := range c.Actors.Seats {
		if s.Provider != "" && !oneOf(s.Provider, providers) {
			return invalid("actors.seats."+name+".provider", s.Provider)
		}
	}
	if c.Actors.Retries < 1 {
		return invalid("actors.retries", c.Actors.Retries)
	}
	if !oneOf(c.Telemetry.Exporter, exporters) {
		return invalid("telemetry.exporter", c.Telemetry.Exporter)
	}
	for _, f := range c.History.Formats {
		if !oneOf(f, historyFormat) {
			return invalid("history.formats", f)
		}
	}
	for _, h := range c.Match.Humans {
		if !oneOf(h, c.Match.Seats) {
			return invalid("match.humans", h)
		}
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func invalid(key string, v any) error {
	return errors.Newf(errors.CodeConfiguration, "invalid value %v for %s", v, key).WithContext("key", key)
}
