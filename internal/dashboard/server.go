// Package dashboard serves the MapCap IPO dashboard: the single page, one
// websocket session per open page, and a small read-only JSON API.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"mapcap-ipo/internal/observability"
	"mapcap-ipo/internal/storage"
	"mapcap-ipo/internal/wallet"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Backend    Backend
	Identities storage.IdentityStore
	Events     storage.PaymentEventStore
	History    storage.SnapshotStore

	// StubWallet, when set, replaces the browser Pi SDK with a scripted
	// wallet for every session.
	StubWallet func() wallet.SDK

	PiSandbox      bool
	PollInterval   time.Duration
	AllowedOrigins []string
	Clock          clock.Clock
	Logger         *zap.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	opts     Options
	logger   *zap.Logger
	page     *template.Template
	upgrader websocket.Upgrader
	origins  map[string]bool

	wg sync.WaitGroup
}

// New creates a server. Backend and all three stores are required.
func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("dashboard: backend is required")
	}
	if opts.Identities == nil || opts.Events == nil || opts.History == nil {
		return nil, errors.New("dashboard: identity, payment event and snapshot stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	page, err := parsePage()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger.Named("dashboard"),
		page:    page,
		origins: make(map[string]bool),
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// checkOrigin accepts same-host pages and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.origins["*"] || s.origins[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Handler returns the routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Read-only API, callable from other origins
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	api := http.NewServeMux()
	api.HandleFunc("/api/stats", s.handleStats)
	api.HandleFunc("/api/history", s.handleHistory)
	api.HandleFunc("/api/audit", s.handleAudit)
	mux.Handle("/api/", corsMiddleware.Handler(api))

	// Page and its session
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handlePage)

	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// waits for open sessions to end.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	s.wg.Wait()
	s.logger.Info("HTTP server stopped")
	return nil
}

// Wait blocks until all sessions have ended.
func (s *Server) Wait() {
	s.wg.Wait()
}
