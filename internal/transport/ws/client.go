// Package ws is a JSON-RPC 2.0 over WebSocket client for Firebolt devices.
//
// Listening follows the Firebolt convention: a request
// {"method": "module.onEvent", "params": {"listen": true}} is acknowledged
// with a response carrying the request id, and later events arrive as
// further responses with that same id. Devices that push events as
// notifications named after the method are also supported.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/fca/internal/dispatch"
)

// ErrClosed is returned for requests issued after the connection closed.
var ErrClosed = errors.New("ws: connection closed")

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 5 * time.Second

// request is an outgoing JSON-RPC request.
type request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// message is any incoming JSON-RPC frame.
type message struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// subscription routes events of one listen request.
type subscription struct {
	id     int64
	method string
	cb     dispatch.Callback
}

// Client is a dispatch.Transport over one WebSocket connection.
//
// Thread-safety: Client is safe for concurrent use. Callbacks run on the
// read goroutine and must not block.
type Client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]*dispatch.Pending
	subs     map[int64]*subscription
	byMethod map[string][]*subscription
	closed   bool
	closing  bool
	err      error

	done chan struct{}
}

var _ dispatch.Transport = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithWriteTimeout sets the per-frame write deadline.
//
// Default: 5s (DefaultWriteTimeout)
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.writeTimeout = d
	}
}

// Dial connects to a device and starts reading.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newClient(conn, opts...), nil
}

func newClient(conn *websocket.Conn, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		pending:      make(map[int64]*dispatch.Pending),
		subs:         make(map[int64]*subscription),
		byMethod:     make(map[string][]*subscription),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Listen implements dispatch.Transport.
func (c *Client) Listen(ctx context.Context, module, method string, cb dispatch.Callback) (*dispatch.Pending, error) {
	full := module + "." + method

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	p := dispatch.NewPending(id)
	sub := &subscription{id: id, method: full, cb: cb}
	c.pending[id] = p
	c.subs[id] = sub
	c.byMethod[full] = append(c.byMethod[full], sub)
	c.mu.Unlock()
	p.OnCancel(func() { c.forget(id) })

	if err := c.write(ctx, request{JSONRPC: "2.0", ID: id, Method: full, Params: map[string]any{"listen": true}}); err != nil {
		c.forget(id)
		return nil, err
	}
	slog.Debug("listen sent", "id", id, "method", full)
	return p, nil
}

// Send implements dispatch.Transport. A {"listen": false} request also
// stops routing events of that method to every listener of it.
func (c *Client) Send(ctx context.Context, module, method string, params map[string]any) error {
	full := module + "." + method

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextID++
	id := c.nextID
	if listen, ok := params["listen"].(bool); ok && !listen {
		for sid, s := range c.subs {
			if s.method == full {
				delete(c.subs, sid)
			}
		}
		delete(c.byMethod, full)
	}
	c.mu.Unlock()

	return c.write(ctx, request{JSONRPC: "2.0", ID: id, Method: full, Params: params})
}

// Close closes the connection. Pending requests are rejected with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) write(ctx context.Context, req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

// forget drops the pending request and the subscription of one listen id.
func (c *Client) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	s, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)

	subs := c.byMethod[s.method]
	kept := subs[:0]
	for _, other := range subs {
		if other != s {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		delete(c.byMethod, s.method)
		return
	}
	c.byMethod[s.method] = kept
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		c.route(msg)
	}
}

// route dispatches one incoming frame.
func (c *Client) route(msg message) {
	if msg.ID == nil {
		if msg.Method == "" {
			return
		}
		c.mu.Lock()
		subs := append([]*subscription(nil), c.byMethod[msg.Method]...)
		c.mu.Unlock()
		for _, sub := range subs {
			sub.cb(decode(msg.Params))
		}
		return
	}

	id := *msg.ID
	c.mu.Lock()
	p, isPending := c.pending[id]
	delete(c.pending, id)
	sub := c.subs[id]
	c.mu.Unlock()

	if isPending {
		if len(msg.Error) > 0 {
			c.forget(id)
			p.Reject(dispatch.Reject(decode(msg.Error)))
			return
		}
		p.Resolve(decode(msg.Result))
		return
	}
	if sub != nil {
		sub.cb(decode(msg.Result))
	}
}

// shutdown rejects every pending request and marks the client closed.
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	c.closed = true
	if !c.closing && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.err = cause
	}
	failed := c.err != nil
	pending := c.pending
	c.pending = make(map[int64]*dispatch.Pending)
	c.mu.Unlock()

	if failed {
		slog.Debug("read loop ended", "error", cause)
	}
	for _, p := range pending {
		p.Reject(ErrClosed)
	}
}

func decode(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
