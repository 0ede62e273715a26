package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fca/internal/dispatch"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "fca.yaml",
			content: `mode: Transport
catalogs:
  core: /specs/core.json
transport:
  url: ws://device:9998
  timeout: 2s
log:
  level: debug
  format: json
report:
  path: /tmp/fca.db
http:
  addr: ":9090"
legacy_id_coercion: true
`,
		},
		{
			name: "json",
			file: "fca.json",
			content: `{"mode":"Transport","catalogs":{"core":"/specs/core.json"},
"transport":{"url":"ws://device:9998","timeout":"2s"},
"log":{"level":"debug","format":"json"},"report":{"path":"/tmp/fca.db"},
"http":{"addr":":9090"},"legacy_id_coercion":true}`,
		},
		{
			name: "toml",
			file: "fca.toml",
			content: `mode = "Transport"
legacy_id_coercion = true

[catalogs]
core = "/specs/core.json"

[transport]
url = "ws://device:9998"
timeout = "2s"

[log]
level = "debug"
format = "json"

[report]
path = "/tmp/fca.db"

[http]
addr = ":9090"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadEnv(writeTempFile(t, tt.file, tt.content), nil)
			require.NoError(t, err)

			assert.Equal(t, dispatch.ModeTransport, cfg.DispatchMode())
			assert.Equal(t, map[string]string{"core": "/specs/core.json"}, cfg.Catalogs)
			assert.Equal(t, "ws://device:9998", cfg.Transport.URL)
			assert.Equal(t, 2*time.Second, cfg.TransportTimeout())
			assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
			assert.Equal(t, "/tmp/fca.db", cfg.Report.Path)
			assert.Equal(t, ":9090", cfg.HTTP.Addr)
			assert.True(t, cfg.LegacyIDCoercion)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadEnv("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, dispatch.ModeSDK, cfg.DispatchMode())
	assert.Equal(t, 5*time.Second, cfg.TransportTimeout())
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadEnv(writeTempFile(t, "fca.yml", "log:\n  level: warn\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	p := writeTempFile(t, "fca.yaml", "mode: SDK\ntransport:\n  url: ws://file:1\n")
	cfg, err := LoadEnv(p, map[string]string{
		"COMMUNICATION_MODE":     "Transport",
		"FCA_TRANSPORT_URL":      "ws://env:2",
		"FCA_LOG_LEVEL":          "error",
		"FCA_CATALOGS":           "core:/a.json,manage:/b.json",
		"FCA_LEGACY_ID_COERCION": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, dispatch.ModeTransport, cfg.DispatchMode())
	assert.Equal(t, "ws://env:2", cfg.Transport.URL)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, map[string]string{"core": "/a.json", "manage": "/b.json"}, cfg.Catalogs)
	assert.True(t, cfg.LegacyIDCoercion)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
		want    string
	}{
		{name: "unsupported extension", file: "fca.txt", content: "x", want: "unsupported config extension"},
		{name: "unknown yaml key", file: "fca.yaml", content: "bogus: 1\n", want: "parse yaml"},
		{name: "unknown json key", file: "fca.json", content: `{"bogus":1}`, want: "parse json"},
		{name: "unknown toml key", file: "fca.toml", content: "bogus = 1\n", want: "parse toml"},
		{name: "bad mode", file: "fca.yaml", content: "mode: carrier-pigeon\n", want: "invalid communication mode"},
		{name: "bad timeout", file: "fca.yaml", content: "transport:\n  timeout: soon\n", want: "transport.timeout"},
		{name: "bad log format", file: "fca.yaml", content: "log:\n  format: xml\n", want: "log.format"},
		{name: "bad env mode", file: "fca.yaml", content: "{}\n", env: map[string]string{"COMMUNICATION_MODE": "nope"}, want: "invalid communication mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEnv(writeTempFile(t, tt.file, tt.content), tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadEnv(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "open config"))
}
