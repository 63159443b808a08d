// Package app wires the sync layer together. The Service is the explicit
// root object owning connection, cache and router lifecycles: constructed
// at authenticated-session start, torn down at logout, and passed by
// reference into whatever renders the dashboard. Nothing in this module is
// a package-level singleton.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deliverly/adminsync/internal/api"
	"github.com/deliverly/adminsync/internal/cache"
	"github.com/deliverly/adminsync/internal/config"
	"github.com/deliverly/adminsync/internal/consumers"
	"github.com/deliverly/adminsync/internal/domain"
	"github.com/deliverly/adminsync/internal/events"
	"github.com/deliverly/adminsync/internal/metrics"
	"github.com/deliverly/adminsync/internal/realtime"
	"github.com/deliverly/adminsync/internal/router"
)

// CredentialFunc supplies the bearer token for both the event connection
// and the read/write endpoints.
type CredentialFunc func() (string, error)

// Service is the assembled sync layer.
type Service struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *events.Registry
	store    *cache.Store
	conn     *realtime.Manager
	router   *router.Router

	Orders  *consumers.Orders
	Riders  *consumers.Riders
	KYC     *consumers.KYC
	Tickets *consumers.Tickets
	Stats   *consumers.Stats

	cancel context.CancelFunc
	group  *errgroup.Group

	// onUnauthorized is the session-level credential-purge hook shared by
	// the websocket handshake and the HTTP client.
	onUnauthorized func()
}

// Option configures a Service.
type Option func(*Service)

// WithUnauthorizedHook installs the handler invoked when either transport
// reports a rejected credential.
func WithUnauthorizedHook(fn func()) Option {
	return func(s *Service) { s.onUnauthorized = fn }
}

// New assembles the service. It does not connect; call Init.
func New(cfg *config.Config, logger *zap.Logger, credential CredentialFunc, registerer prometheus.Registerer, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		logger: logger.Named("adminsync"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mx := metrics.New(registerer)
	s.registry = events.NewRegistry(logger)
	s.store = cache.New(logger, mx)

	rt, err := router.New(s.store, logger)
	if err != nil {
		return nil, fmt.Errorf("build invalidation router: %w", err)
	}
	s.router = rt
	s.router.Bind(s.registry)

	unauthorized := func() {
		if s.onUnauthorized != nil {
			s.onUnauthorized()
		}
	}

	s.conn = realtime.NewManager(realtime.Config{
		URL:                  cfg.WebSocketURL,
		Room:                 cfg.Room,
		MaxReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay(),
		ReconnectDelayMax:    cfg.ReconnectDelayMax(),
	}, realtime.CredentialFunc(credential), s.registry, logger, mx,
		realtime.WithUnauthorizedHook(unauthorized))

	client := api.NewClient(cfg.APIBaseURL, api.CredentialFunc(credential), logger,
		api.WithUnauthorizedHook(unauthorized))

	policies := consumers.Policies{
		LiveList: cache.Policy{
			StaleAfter: time.Duration(cfg.ListStaleMs) * time.Millisecond,
			GCAfter:    time.Duration(cfg.ListGCMs) * time.Millisecond,
		},
		Detail: cache.Policy{
			StaleAfter: time.Duration(cfg.DetailStaleMs) * time.Millisecond,
			GCAfter:    time.Duration(cfg.DetailGCMs) * time.Millisecond,
		},
		Stats: cache.Policy{
			StaleAfter: time.Duration(cfg.StatsStaleMs) * time.Millisecond,
			GCAfter:    time.Duration(cfg.StatsGCMs) * time.Millisecond,
		},
	}

	s.Orders = consumers.NewOrders(s.store, client, policies, logger)
	s.Riders = consumers.NewRiders(s.store, client, policies, logger)
	s.KYC = consumers.NewKYC(s.store, client, policies, logger)
	s.Tickets = consumers.NewTickets(s.store, client, policies, logger)
	s.Stats = consumers.NewStats(s.store, client, policies, logger)

	return s, nil
}

// Init opens the event connection and starts the GC sweeper. Called once
// per authenticated session.
func (s *Service) Init(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.conn.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("open event connection: %w", err)
	}

	s.group, _ = errgroup.WithContext(runCtx)
	s.group.Go(func() error {
		s.store.RunSweeper(runCtx, s.cfg.GCInterval())
		return nil
	})

	s.logger.Info("Sync layer initialized",
		zap.String("websocket_url", s.cfg.WebSocketURL),
		zap.String("room", s.cfg.Room))
	return nil
}

// Teardown closes the connection and stops background work. Called at
// logout; the service can be re-initialized afterwards.
func (s *Service) Teardown(ctx context.Context) error {
	s.conn.Disconnect()
	if s.cancel != nil {
		s.cancel()
	}
	if s.group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()

	select {
	case err := <-done:
		s.logger.Info("Sync layer torn down")
		return err
	case <-ctx.Done():
		return errors.New("teardown timed out")
	}
}

// Reconnect is the explicit recovery path once automatic retries have been
// exhausted, e.g. after the auth layer re-establishes a session.
func (s *Service) Reconnect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// ConnectionState reports connection health for the indicator.
func (s *Service) ConnectionState() realtime.State {
	return s.conn.State()
}

// WatchConnection streams connection state transitions.
func (s *Service) WatchConnection() (<-chan realtime.State, func()) {
	return s.conn.Watch()
}

// Registry exposes the subscription registry for additional listeners, such
// as the connectivity indicator.
func (s *Service) Registry() *events.Registry {
	return s.registry
}

// RefreshAll marks every cached namespace stale, backing the dashboard-wide
// refresh control. Fetches happen as views re-read, not here.
func (s *Service) RefreshAll() {
	total := 0
	for _, root := range domain.Roots() {
		total += s.store.Invalidate(root)
	}
	s.logger.Info("Manual refresh requested", zap.Int("entries_invalidated", total))
}
