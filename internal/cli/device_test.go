package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fca/internal/testutil"
)

// wsDevice acknowledges every request. A listen request is followed by
// one notification carrying payload under the request's method.
type wsDevice struct {
	t       *testing.T
	payload any

	mu       sync.Mutex
	requests []map[string]any
}

func (d *wsDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		d.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		d.mu.Lock()
		d.requests = append(d.requests, req)
		d.mu.Unlock()

		method, _ := req["method"].(string)
		params, _ := req["params"].(map[string]any)
		listen, _ := params["listen"].(bool)
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0", "id": req["id"],
			"result": map[string]any{"event": method, "listening": listen},
		})
		if listen && d.payload != nil {
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": method, "params": d.payload})
		}
	}
}

// methods returns the method and listen flag of every request received.
func (d *wsDevice) methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, req := range d.requests {
		params, _ := req["params"].(map[string]any)
		out = append(out, req["method"].(string)+" listen="+jsonString(params["listen"]))
	}
	return out
}

// expectMethods waits for the device to have read exactly want.
func (d *wsDevice) expectMethods(t *testing.T, want ...string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, d.methods())
	}, 2*time.Second, 10*time.Millisecond, "device saw %v", d.methods())
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// startDevice serves d and returns its WebSocket URL.
func startDevice(t *testing.T, d *wsDevice) string {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// writeCatalog writes the mock OpenRPC document as JSON into dir.
func writeCatalog(t *testing.T, dir string) string {
	t.Helper()
	data, err := json.Marshal(testutil.MockDocument())
	require.NoError(t, err)
	path := filepath.Join(dir, "mock-openrpc.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// writeConfig writes a YAML config pointing at the device and the mock
// catalog under the mocksdk surface.
func writeConfig(t *testing.T, deviceURL, mode string) string {
	t.Helper()
	dir := t.TempDir()
	catalogPath := writeCatalog(t, dir)
	content := "mode: " + mode + "\n" +
		"catalogs:\n  mocksdk: " + catalogPath + "\n" +
		"transport:\n  url: " + deviceURL + "\n  timeout: 2s\n" +
		"log:\n  level: error\n"
	path := filepath.Join(dir, "fca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
