package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/config"
	"github.com/deliverly/adminsync/internal/domain"
	"github.com/deliverly/adminsync/internal/realtime"
)

// pushServer is a minimal event endpoint: it records room joins and lets
// the test push domain events to the connected client.
type pushServer struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    []*websocket.Conn
	joins    int
	srv      *httptest.Server
}

func newPushServer(t *testing.T) *pushServer {
	p := &pushServer{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := p.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		go func() {
			for {
				var f map[string]json.RawMessage
				if err := conn.ReadJSON(&f); err != nil {
					return
				}
				if string(f["event"]) == `"join_room"` {
					p.mu.Lock()
					p.joins++
					p.mu.Unlock()
				}
			}
		}()
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *pushServer) url() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

func (p *pushServer) push(t *testing.T, event string, payload any) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.conns, "no client connected")
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	conn := p.conns[len(p.conns)-1]
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(data)}))
}

func newAppFixture(t *testing.T) (*Service, *pushServer, *atomic.Int64) {
	t.Helper()

	var orderFetches atomic.Int64
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/orders" {
			orderFetches.Add(1)
		}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(domain.Page[domain.Order]{
			Items: []domain.Order{{ID: "O1", Status: "pending"}},
			Total: 1,
		})
	}))
	t.Cleanup(apiSrv.Close)

	push := newPushServer(t)

	cfg := &config.Config{
		APIBaseURL:          apiSrv.URL,
		WebSocketURL:        push.url(),
		Room:                "admin",
		ReconnectAttempts:   5,
		ReconnectDelayMs:    10,
		ReconnectDelayMaxMs: 30,
		ListStaleMs:         60000,
		ListGCMs:            600000,
		DetailStaleMs:       60000,
		DetailGCMs:          600000,
		StatsStaleMs:        60000,
		StatsGCMs:           600000,
		GCIntervalMs:        60000,
	}

	svc, err := New(cfg, zap.NewNop(), func() (string, error) { return "tok", nil }, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, svc.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Teardown(ctx)
	})

	return svc, push, &orderFetches
}

func TestPushedEventStalesListAndNextReadRefetches(t *testing.T) {
	svc, push, orderFetches := newAppFixture(t)

	q := svc.Orders.List(domain.OrderFilters{Status: "pending"})
	q.Mount()
	defer q.Unmount()

	_, st, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, cache.StatusFresh, st)
	require.Equal(t, int64(1), orderFetches.Load())

	push.push(t, "order_status_update", map[string]string{"orderId": "O1"})

	require.Eventually(t, func() bool {
		_, st, _ := q.Get(context.Background())
		return st == cache.StatusStale || orderFetches.Load() == 2
	}, time.Second, 5*time.Millisecond)

	// The stale read already kicked the revalidation; exactly one new
	// network call results.
	require.Eventually(t, func() bool { return orderFetches.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), orderFetches.Load())
}

func (p *pushServer) joinCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joins
}

func TestServiceConnectionLifecycle(t *testing.T) {
	svc, push, _ := newAppFixture(t)

	assert.Equal(t, realtime.StateConnected, svc.ConnectionState())
	require.Eventually(t, func() bool { return push.joinCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Teardown(ctx))
	assert.Equal(t, realtime.StateDisconnected, svc.ConnectionState())

	// Logout then login: the same service can be re-initialized, and the
	// room is joined again on the fresh connection.
	require.NoError(t, svc.Init(context.Background()))
	assert.Equal(t, realtime.StateConnected, svc.ConnectionState())
	require.Eventually(t, func() bool { return push.joinCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRefreshAllStalesEveryNamespace(t *testing.T) {
	svc, _, orderFetches := newAppFixture(t)

	q := svc.Orders.List(domain.OrderFilters{})
	_, st, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, cache.StatusFresh, st)

	svc.RefreshAll()

	_, st, err = q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cache.StatusStale, st)
	require.Eventually(t, func() bool { return orderFetches.Load() == 2 }, time.Second, 5*time.Millisecond)
}
