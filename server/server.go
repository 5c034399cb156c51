package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/middleware"
	"github.com/MrEthical07/deskauth/token"
)

// Broker is the subset of *deskauth.Broker the routes call.
type Broker interface {
	middleware.Authenticator
	SwitchWorkspace(ctx context.Context, claims token.Claims, targetWorkspaceUID string) (*deskauth.TokenPair, error)
	Ping(ctx context.Context) error
}

// Billing is implemented by *billing.Client.
type Billing interface {
	Do(ctx context.Context, claims token.Claims, method, path string, body, out interface{}) error
}

// Options configures the HTTP server.
type Options struct {
	Addr string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// Billing enables /api/billing when non-nil.
	Billing Billing

	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	HealthTimeout   time.Duration

	Logger logr.Logger
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = 2 * time.Second
	}
	return o
}

// Server serves the broker routes.
type Server struct {
	broker Broker
	opts   Options
	log    logr.Logger
	router *mux.Router
}

// New builds the router. It does not start listening.
func New(broker Broker, opts Options) (*Server, error) {
	if broker == nil {
		return nil, errors.New("server: broker is required")
	}
	opts = opts.withDefaults()
	s := &Server{
		broker: broker,
		opts:   opts,
		log:    opts.Logger.WithName("server"),
		router: mux.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestContext, s.accessLog)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, nil)
	})

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Guard(s.broker))
	api.HandleFunc("/auth/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/auth/namespace/switch", s.handleSwitch).Methods(http.MethodPost)
	if s.opts.Billing != nil {
		api.HandleFunc("/billing/{path:.+}", s.handleBilling)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then drains within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.V(1).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"requestId", deskauth.RequestIDFromContext(r.Context()),
		)
	})
}
