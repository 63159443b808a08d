package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/events"
	"github.com/deliverly/adminsync/internal/metrics"
)

var (
	// ErrNotConnected is returned by Emit when no healthy connection exists.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrUnauthorized is returned when the server rejects the handshake
	// credential. It is terminal: no reconnect attempts follow, the session
	// layer has to re-authenticate and call Connect again.
	ErrUnauthorized = errors.New("realtime: credential rejected")
	// ErrRetriesExhausted is returned when the reconnect bound is exceeded.
	ErrRetriesExhausted = errors.New("realtime: reconnect attempts exhausted")
)

// CredentialFunc supplies the bearer token at (re)connect time. It is read
// fresh on every attempt so a rotated token is picked up automatically.
type CredentialFunc func() (string, error)

// Config holds the connection parameters.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://api.example.com/admin/ws.
	URL string
	// Room is the server-side channel joined after every successful
	// handshake. Defaults to "admin".
	Room string
	// MaxReconnectAttempts bounds automatic reconnection after an
	// unexpected disconnect. Defaults to 5.
	MaxReconnectAttempts int
	// ReconnectDelay is the delay floor before the first reconnect
	// attempt. Defaults to 1s.
	ReconnectDelay time.Duration
	// ReconnectDelayMax caps the escalating delay. Defaults to 5s.
	ReconnectDelayMax time.Duration
	// HandshakeTimeout bounds a single dial. Defaults to 10s.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single outbound frame. Defaults to 5s.
	WriteTimeout time.Duration
	// PingInterval drives keepalive pings. Defaults to 25s; the read
	// deadline is 2x this.
	PingInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Room == "" {
		c.Room = "admin"
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReconnectDelayMax == 0 {
		c.ReconnectDelayMax = 5 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
}

// frame is the wire envelope in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinRoomPayload struct {
	Room string `json:"room"`
}

// Manager owns the single persistent event connection. It is constructed
// explicitly at authenticated-session start and torn down at logout; there
// is no package-level instance.
type Manager struct {
	cfg      Config
	registry *events.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	dialer   *websocket.Dialer

	credential CredentialFunc
	// onUnauthorized fires when the server rejects the credential, so the
	// session layer can purge it and redirect to re-authentication.
	onUnauthorized func()

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	closed   bool // explicit Disconnect: terminal for auto-reconnect
	gen      int  // invalidates read loops of torn-down connections
	watchers map[int]chan State
	nextW    int

	writeMu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithUnauthorizedHook installs the session-level handler for rejected
// credentials.
func WithUnauthorizedHook(fn func()) ManagerOption {
	return func(m *Manager) { m.onUnauthorized = fn }
}

// NewManager creates a connection manager. It does not dial; call Connect.
func NewManager(cfg Config, credential CredentialFunc, registry *events.Registry, logger *zap.Logger, mx *metrics.Metrics, opts ...ManagerOption) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:        cfg,
		registry:   registry,
		logger:     logger.Named("realtime"),
		metrics:    mx,
		credential: credential,
		state:      StateDisconnected,
		watchers:   make(map[int]chan State),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect establishes the connection and joins the configured room. It is
// idempotent: calling it while already connected (or while a connect is in
// progress) returns immediately without side effects. A terminal Failed or
// explicitly disconnected manager is revived by calling Connect again.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected, StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.setStateLocked(ctx, StateConnecting)
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		if errors.Is(err, ErrUnauthorized) {
			m.setStateLocked(ctx, StateFailed)
		} else {
			m.setStateLocked(ctx, StateDisconnected)
		}
		m.mu.Unlock()
		return err
	}

	m.adopt(ctx, conn)
	return nil
}

// dial performs one handshake attempt: open the socket with the bearer
// credential attached, then emit the room join so server-side delivery is
// scoped to this client.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := m.credential()
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			m.logger.Error("Handshake credential rejected",
				zap.Int("status", resp.StatusCode))
			if m.onUnauthorized != nil {
				m.onUnauthorized()
			}
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	if err := m.writeFrame(conn, "join_room", joinRoomPayload{Room: m.cfg.Room}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join room %q: %w", m.cfg.Room, err)
	}

	m.logger.Info("Connected",
		zap.String("url", m.cfg.URL),
		zap.String("room", m.cfg.Room))
	return conn, nil
}

// adopt installs a freshly dialed connection and starts its read and
// keepalive loops.
func (m *Manager) adopt(ctx context.Context, conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.gen++
	gen := m.gen
	m.setStateLocked(ctx, StateConnected)
	m.mu.Unlock()

	readDeadline := 2 * m.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	go m.readLoop(conn, gen)
	go m.pingLoop(conn, gen)
}

// readLoop consumes inbound frames and dispatches them synchronously, in
// arrival order, through the registry.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			m.handleReadError(gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(2 * m.cfg.PingInterval))

		m.metrics.EventsReceived.Inc()
		m.registry.Dispatch(context.Background(), events.Event{
			Type:       events.Type(f.Event),
			Payload:    f.Data,
			ReceivedAt: time.Now(),
		})
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		stale := m.gen != gen || m.conn != conn
		m.mu.Unlock()
		if stale {
			return
		}

		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		m.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// handleReadError decides between a clean shutdown and the reconnect path.
func (m *Manager) handleReadError(gen int, err error) {
	m.mu.Lock()
	if m.gen != gen {
		// A newer connection replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}
	if m.closed {
		m.setStateLocked(context.Background(), StateDisconnected)
		m.mu.Unlock()
		return
	}

	m.logger.Warn("Connection lost", zap.Error(err))
	m.conn = nil
	m.setStateLocked(context.Background(), StateReconnecting)
	m.mu.Unlock()

	go m.reconnectLoop()
}

// reconnectLoop retries the handshake up to the configured bound with an
// escalating delay capped at ReconnectDelayMax. Exceeding the bound is
// terminal: the manager parks in StateFailed until an explicit Connect.
func (m *Manager) reconnectLoop() {
	ctx := context.Background()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectDelay
	bo.MaxInterval = m.cfg.ReconnectDelayMax
	bo.RandomizationFactor = 0
	bo.Reset()

	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(bo.NextBackOff())

		m.mu.Lock()
		if m.closed || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		conn, err := m.dial(ctx)
		if err == nil {
			// dial already re-sent the room join; without it the server
			// would silently stop delivering events to this client.
			m.metrics.Reconnects.Inc()
			m.logger.Info("Reconnected", zap.Int("attempt", attempt))
			m.adopt(ctx, conn)
			return
		}

		if errors.Is(err, ErrUnauthorized) {
			m.mu.Lock()
			m.setStateLocked(ctx, StateFailed)
			m.mu.Unlock()
			return
		}

		m.logger.Warn("Reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.MaxReconnectAttempts),
			zap.Error(err))
	}

	m.logger.Error("Reconnect attempts exhausted; manual reconnect required",
		zap.Int("attempts", m.cfg.MaxReconnectAttempts))
	m.mu.Lock()
	m.setStateLocked(ctx, StateFailed)
	m.mu.Unlock()
}

// Emit sends one outbound frame. Business writes do not go through here;
// the event connection only carries room membership and diagnostics.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return m.writeFrame(conn, event, payload)
}

func (m *Manager) writeFrame(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteJSON(frame{Event: event, Data: data})
}

// Disconnect tears the socket down. It is terminal: no automatic reconnect
// follows an explicit disconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.gen++
	conn := m.conn
	m.conn = nil
	m.setStateLocked(context.Background(), StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch returns a channel of state transitions plus a cancel function that
// releases it. The channel is buffered; a slow watcher misses intermediate
// states rather than blocking the manager.
func (m *Manager) Watch() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextW
	m.nextW++
	ch := make(chan State, 8)
	m.watchers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
}

// setStateLocked records a transition, updates the gauge, notifies watchers
// and mirrors connected/disconnected edges as registry pseudo-events for the
// connectivity indicator. Caller holds m.mu.
func (m *Manager) setStateLocked(ctx context.Context, next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	m.metrics.ConnState.Set(float64(next))
	m.logger.Debug("Connection state changed",
		zap.String("from", prev.String()),
		zap.String("to", next.String()))

	for _, ch := range m.watchers {
		select {
		case ch <- next:
		default:
		}
	}

	if next == StateConnected {
		go m.registry.Dispatch(ctx, events.Event{Type: events.Connect, ReceivedAt: time.Now()})
	} else if prev == StateConnected {
		go m.registry.Dispatch(ctx, events.Event{Type: events.Disconnect, ReceivedAt: time.Now()})
	}
}
