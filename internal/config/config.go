// Package config loads runtime settings from a file and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fca/internal/dispatch"
)

// Config holds runtime parameters. Load fills unset fields from Default.
type Config struct {
	Mode             string            `json:"mode" yaml:"mode" toml:"mode" env:"COMMUNICATION_MODE"`
	Catalogs         map[string]string `json:"catalogs" yaml:"catalogs" toml:"catalogs" env:"FCA_CATALOGS"`
	Transport        TransportConfig   `json:"transport" yaml:"transport" toml:"transport"`
	Log              LogConfig         `json:"log" yaml:"log" toml:"log"`
	Report           ReportConfig      `json:"report" yaml:"report" toml:"report"`
	HTTP             HTTPConfig        `json:"http" yaml:"http" toml:"http"`
	LegacyIDCoercion bool              `json:"legacy_id_coercion" yaml:"legacy_id_coercion" toml:"legacy_id_coercion" env:"FCA_LEGACY_ID_COERCION"`
}

// TransportConfig addresses the device WebSocket endpoint.
type TransportConfig struct {
	URL     string `json:"url" yaml:"url" toml:"url" env:"FCA_TRANSPORT_URL"`
	Timeout string `json:"timeout" yaml:"timeout" toml:"timeout" env:"FCA_TRANSPORT_TIMEOUT"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" env:"FCA_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" toml:"format" env:"FCA_LOG_FORMAT"`
}

// ReportConfig locates the SQLite journal. An empty path disables it.
type ReportConfig struct {
	Path string `json:"path" yaml:"path" toml:"path" env:"FCA_REPORT_PATH"`
}

// HTTPConfig is the north-bound listen address.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr" env:"FCA_HTTP_ADDR"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Mode:     string(dispatch.ModeSDK),
		Catalogs: map[string]string{},
		Transport: TransportConfig{
			URL:     "ws://127.0.0.1:9998",
			Timeout: "5s",
		},
		Log:  LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path (if non-empty), overlays the process environment and
// validates the result.
func Load(path string) (Config, error) {
	return LoadEnv(path, envMap(os.Environ()))
}

// LoadEnv is Load with an explicit environment. A nil environ is empty.
func LoadEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, filepath.Ext(path), &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode parses r into cfg by file extension: .yaml/.yml, .json or .toml.
// Unknown keys are errors.
func Decode(r io.Reader, ext string, cfg *Config) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	switch ext = strings.ToLower(ext); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse toml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config extension: %q", ext)
	}
	return nil
}

// Validate checks enumerated and parsed fields.
func (c Config) Validate() error {
	if _, err := dispatch.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Transport.Timeout); err != nil {
		return fmt.Errorf("transport.timeout: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	for surface, path := range c.Catalogs {
		if surface == "" || path == "" {
			return fmt.Errorf("catalogs: empty surface or path (%q: %q)", surface, path)
		}
	}
	return nil
}

// DispatchMode returns the parsed mode. Call after Validate.
func (c Config) DispatchMode() dispatch.Mode {
	m, _ := dispatch.ParseMode(c.Mode)
	return m
}

// TransportTimeout returns the parsed transport timeout. Call after Validate.
func (c Config) TransportTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Transport.Timeout)
	return d
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}
