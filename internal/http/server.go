package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/log"
	"deals/internal/middleware/ratelimit"
	"deals/internal/middleware/security"
	"deals/internal/middleware/trace"
	"deals/internal/report"
	appweb "deals/web"
)

// DealService is what the deal pages and API need from the service layer.
type DealService interface {
	ListDeals(ctx context.Context, query string) ([]core.Deal, error)
	GetDeal(ctx context.Context, id int64) (core.Deal, error)
	CreateDeal(ctx context.Context, actor string, form core.DealForm) (core.Deal, error)
	UpdateDeal(ctx context.Context, actor string, id int64, form core.DealForm) (core.Deal, error)
	DeleteDeal(ctx context.Context, actor string, id int64) error
	ListManagers(ctx context.Context) ([]core.Manager, error)
	CreateManager(ctx context.Context, actor string, form core.ManagerForm) (core.Manager, error)
}

type ReportService interface {
	Generate(ctx context.Context, filter core.ReportFilter) (report.Report, error)
	Export(ctx context.Context, w io.Writer, f report.Format, r report.Report) error
}

// Authenticator verifies logins and session tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Principal, error)
	IssueToken(p auth.Principal) (string, error)
	ParseToken(token string) (auth.Principal, error)
	TTL() time.Duration
}

// Options wires the server's collaborators.
type Options struct {
	Deals   DealService
	Reports ReportService
	Auth    Authenticator
	// Ready reports whether the record store is reachable; nil means always ready.
	Ready  func(context.Context) error
	Logger *log.Logger

	CookieSecure   bool
	LoginRateLimit int
}

type Server struct {
	http.Server
	pages   map[string]*template.Template
	deals   DealService
	reports ReportService
	auth    Authenticator
	ready   func(context.Context) error

	cookieSecure bool
	loginLimiter *ratelimit.Limiter
	shutdownOnce sync.Once
}

func NewServer(addr string, opts Options) (*Server, error) {
	pages, err := parsePages(appweb.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		pages:        pages,
		deals:        opts.Deals,
		reports:      opts.Reports,
		auth:         opts.Auth,
		ready:        opts.Ready,
		cookieSecure: opts.CookieSecure,
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.LoginRateLimit}),
	}
	s.Handler = s.routes(logger)
	return s, nil
}

func (s *Server) routes(logger *log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(trace.NewMiddleware(security.ClientIP).Handler)
	r.Use(log.Middleware(logger))
	r.Use(trace.Recovery)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		logger.Warn("Failed to mount embedded static FS", log.Err(err))
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)

		r.Get("/login", s.handleLoginForm)
		r.With(s.loginLimiter.Middleware(security.ClientIP, s.handleLoginLimited)).Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Get("/", s.authed(s.handleDealList))
		r.Route("/deals", func(r chi.Router) {
			r.Get("/", s.authed(s.handleDealList))
			r.Get("/new", s.authed(s.handleDealNew))
			r.Post("/new", s.authed(s.handleDealCreate))
			r.Get("/{id}/edit", s.authed(s.handleDealEdit))
			r.Post("/{id}/edit", s.authed(s.handleDealUpdate))
			r.Get("/{id}/delete", s.authed(s.handleDealConfirmDelete))
			r.Post("/{id}/delete", s.authed(s.handleDealDelete))
		})
		r.Get("/report", s.authed(s.handleReportForm))
		r.Post("/report", s.authed(s.handleReport))
		r.Get("/managers", s.authed(s.handleManagerList))
		r.Post("/managers", s.authed(s.handleManagerCreate))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/deals", s.authed(s.handleAPIDeals))
			r.Get("/report", s.authed(s.handleAPIReport))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found.")
	})
	return r
}

// Shutdown stops the login limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.loginLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.FromContext(ctx).InfoContext(ctx, "HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewResponse().Text("ok").Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.Err(err))
			NewResponse().Status(http.StatusServiceUnavailable).Text("not ready").Write(w)
			return
		}
	}
	NewResponse().Text("ready").Write(w)
}
