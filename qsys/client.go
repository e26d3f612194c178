// Package qsys owns the single secure-WebSocket session to a Q-SYS core.
// It is responsible for connection lifecycle, reconnection with backoff,
// a circuit breaker around outward commands, and heartbeats — nothing
// about components, controls, or change groups lives here; that is the
// adapter's job.
package qsys

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
)

// WebSocket timeout constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 * 1024 * 1024

	// sendCommand's own deadline, separate from the socket-level pings.
	defaultCommandTimeout = 5 * time.Second
	maxCommandTimeout     = 30 * time.Second
	commandRetryAttempts  = 3

	reconnectInitialBackoff = 1 * time.Second
	reconnectMaxBackoff     = 30 * time.Second
	reconnectShortTermLimit = 10
	reconnectLongTermPeriod = 30 * time.Second

	heartbeatDefaultInterval = 30 * time.Second
	heartbeatFailureLimit    = 2
)

// State is the connection lifecycle state owned by the client (spec §3).
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateReconnecting State = "Reconnecting"
	StateShuttingDown State = "ShuttingDown"
)

// Target identifies the core to dial.
type Target struct {
	Host    string
	Port    int
	User    string
	Pass    string
	Timeout time.Duration
}

// UpdateHandler is invoked with every unsolicited (non-call-correlated)
// message the core pushes — SDK-side control updates.
type UpdateHandler func(method string, params json.RawMessage)

// ReconnectHandler is invoked after a successful reconnect with the outage
// duration, so the adapter can rebuild its discovery cache (spec §8).
type ReconnectHandler func(outage time.Duration)

// Client owns one websocket connection to a Q-SYS core.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	target Target

	state            atomic.Value // State
	attempt          int
	lastSuccess      time.Time
	disconnectAt     time.Time
	disconnectReason string

	breaker *breaker

	onUpdate    UpdateHandler
	onReconnect ReconnectHandler

	pending   map[int64]chan rpcResponse
	pendingMu sync.Mutex
	nextID    int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	autoReconnect bool

	// dialURLOverride lets tests point the client at a plain-ws httptest
	// server instead of the computed wss:// core URL.
	dialURLOverride string
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// New constructs a Client bound to target but does not dial yet.
func New(target Target) *Client {
	if target.Timeout <= 0 {
		target.Timeout = defaultCommandTimeout
	}
	c := &Client{
		target:        target,
		breaker:       newBreaker(defaultBreakerThreshold, defaultBreakerCooldown),
		pending:       make(map[int64]chan rpcResponse),
		autoReconnect: true,
	}
	c.state.Store(StateDisconnected)
	return c
}

// SetTestDialURL points Connect/reconnect at an explicit ws:// URL instead
// of the computed wss:// core address. For use by tests only.
func (c *Client) SetTestDialURL(url string) {
	c.dialURLOverride = url
}

// OnUpdate registers the handler invoked for unsolicited core messages.
func (c *Client) OnUpdate(h UpdateHandler) { c.onUpdate = h }

// OnReconnect registers the handler invoked after a successful reconnect.
func (c *Client) OnReconnect(h ReconnectHandler) { c.onReconnect = h }

// State returns the current connection state.
func (c *Client) State() State {
	return c.state.Load().(State)
}

// IsConnected reports whether a command can currently be sent.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Diagnostics is a point-in-time snapshot of connection health, for the
// manage_connection tool's status/diagnose and connect/disconnect/reconnect
// actions (spec §4.F).
type Diagnostics struct {
	State            State
	BreakerState     BreakerState
	ReconnectAttempt int
	LastSuccess      time.Time
	DisconnectedAt   time.Time
	DisconnectReason string
	Target           string
}

func (c *Client) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Diagnostics{
		State:            c.State(),
		BreakerState:     c.breaker.State(),
		ReconnectAttempt: c.attempt,
		LastSuccess:      c.lastSuccess,
		DisconnectedAt:   c.disconnectAt,
		DisconnectReason: c.disconnectReason,
		Target:           c.target.Host,
	}
}

func (c *Client) setState(s State) {
	c.state.Store(s)
	logger.Infow("qsys connection state changed", logger.FieldState, string(s))
}

// Connect dials the core and starts the read/write pumps and heartbeat.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	// The session outlives ctx: it runs until Disconnect, not until the
	// caller's connect deadline.
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.setState(StateConnecting)

	if err := c.dial(); err != nil {
		c.setState(StateDisconnected)
		return errors.WrapKind(err, errors.KindConnection, "connect to core")
	}

	c.attempt = 0
	c.lastSuccess = time.Now()
	c.setState(StateConnected)

	c.wg.Add(3)
	go c.readPump()
	go c.writeHeartbeat()
	go c.watchDisconnect()

	return nil
}

func (c *Client) dial() error {
	target := c.dialURLOverride
	if target == "" {
		u := url.URL{
			Scheme: "wss",
			Host:   c.target.Host + ":" + strconv.Itoa(c.target.Port),
			Path:   "/qrc-public-api/v0",
		}
		target = u.String()
	}

	dialer := websocket.Dialer{
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true}, // Q-SYS cores commonly run self-signed certs
		HandshakeTimeout: c.target.Timeout,
	}

	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		return err
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.conn = conn
	return nil
}

// Disconnect closes the session and stops all background loops. It does
// not trigger a reconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()

	c.autoReconnect = false
	c.setState(StateShuttingDown)

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		c.conn.Close()
		c.conn = nil
	}
	// readPump's deferred handleDisconnect takes c.mu, so release it before
	// waiting for the background loops to exit.
	c.mu.Unlock()
	c.wg.Wait()
	c.setState(StateDisconnected)
	return nil
}

func (c *Client) readPump() {
	defer c.wg.Done()
	defer c.handleDisconnect("read error")

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatchIncoming(data)
	}
}

func (c *Client) dispatchIncoming(data []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warnw("discarding malformed core message", "error", err.Error())
		return
	}

	if env.Method != "" {
		if c.onUpdate != nil {
			c.onUpdate(env.Method, env.Params)
		}
		return
	}

	c.pendingMu.Lock()
	id := env.ID
	if id == 0 {
		// A null response id is correlated by order: it answers the oldest
		// outstanding call.
		for pid := range c.pending {
			if id == 0 || pid < id {
				id = pid
			}
		}
	}
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- rpcResponse{Result: env.Result, Error: env.Error}
	}
}

func (c *Client) writeHeartbeat() {
	defer c.wg.Done()

	interval := heartbeatDefaultInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, defaultCommandTimeout)
			_, err := c.SendCommand(ctx, "NoOp", nil)
			cancel()
			if err != nil {
				failures++
				if failures >= heartbeatFailureLimit {
					c.handleDisconnect("heartbeat failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (c *Client) watchDisconnect() {
	defer c.wg.Done()
	<-c.ctx.Done()
}

func (c *Client) handleDisconnect(reason string) {
	c.mu.Lock()
	if c.State() == StateShuttingDown || c.State() == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.disconnectAt = time.Now()
	c.disconnectReason = reason
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	autoReconnect := c.autoReconnect
	c.mu.Unlock()

	c.failAllPending(errors.NewKind(errors.KindConnection, "connection lost: "+reason))

	if autoReconnect {
		c.setState(StateReconnecting)
		go c.reconnectLoop()
	} else {
		c.setState(StateDisconnected)
	}
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- rpcResponse{Error: &rpcError{Code: -1, Message: err.Error()}}
		delete(c.pending, id)
	}
}

// reconnectLoop implements spec §4.A's policy: exponential backoff capped
// at 30s for reconnectShortTermLimit attempts, then a fixed long-term
// interval indefinitely until Disconnect() is called.
func (c *Client) reconnectLoop() {
	outageStart := c.disconnectAt

	for {
		c.mu.Lock()
		if !c.autoReconnect {
			c.mu.Unlock()
			return
		}
		attempt := c.attempt
		c.attempt++
		c.mu.Unlock()

		var wait time.Duration
		if attempt < reconnectShortTermLimit {
			wait = reconnectInitialBackoff * time.Duration(1<<uint(attempt))
			if wait > reconnectMaxBackoff {
				wait = reconnectMaxBackoff
			}
		} else {
			wait = reconnectLongTermPeriod
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(wait):
		}

		c.mu.Lock()
		if !c.autoReconnect {
			c.mu.Unlock()
			return
		}
		err := c.dial()
		if err != nil {
			c.mu.Unlock()
			logger.Warnw("reconnect attempt failed", "attempt", attempt+1, "error", err.Error())
			continue
		}

		c.ctx, c.cancel = context.WithCancel(context.Background())
		c.attempt = 0
		c.lastSuccess = time.Now()
		c.wg.Add(3)
		go c.readPump()
		go c.writeHeartbeat()
		go c.watchDisconnect()
		c.mu.Unlock()

		c.setState(StateConnected)
		outage := time.Since(outageStart)
		if c.onReconnect != nil {
			c.onReconnect(outage)
		}
		return
	}
}

// SendCommand issues one JSON-RPC call to the core and waits for its
// response, subject to the circuit breaker and a capped-retry policy for
// transient failures.
func (c *Client) SendCommand(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if !c.breaker.allow() {
		return nil, errors.NewKind(errors.KindCircuitOpen, "circuit breaker open: "+method)
	}

	var lastErr error
	for attempt := 0; attempt < commandRetryAttempts; attempt++ {
		result, err := c.sendOnce(ctx, method, params)
		if err == nil {
			c.breaker.recordSuccess()
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			c.breaker.recordFailure()
			return nil, err
		}
		if attempt < commandRetryAttempts-1 {
			select {
			case <-ctx.Done():
				c.breaker.recordFailure()
				return nil, errors.WrapKind(ctx.Err(), errors.KindTimeout, method)
			case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
			}
		}
	}
	c.breaker.recordFailure()
	return nil, lastErr
}

func isRetryable(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindConnection, errors.KindTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) sendOnce(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	connected := c.State() == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return nil, errors.NewKind(errors.KindConnection, "core not connected")
	}

	id := atomic.AddInt64(&c.nextID, 1)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindValidation, "marshal command params")
	}

	env := rpcEnvelope{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindInternal, "marshal command envelope")
	}

	respCh := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	c.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	writeErr := conn.WriteMessage(websocket.TextMessage, body)
	c.mu.Unlock()

	if writeErr != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, errors.WrapKind(writeErr, errors.KindConnection, "write command")
	}

	deadline := c.target.Timeout
	if deadline <= 0 || deadline > maxCommandTimeout {
		deadline = maxCommandTimeout
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, errors.Newfk(errors.KindInternal, "core error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-timer.C:
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, errors.NewKind(errors.KindTimeout, "command timed out: "+method)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, errors.WrapKind(ctx.Err(), errors.KindTimeout, method)
	}
}
