// Package server is the local origin: a chi router that serves the web UI
// through the worker and exposes the submission and history operations over
// HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/services"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

// StatusFunc reports connectivity and the number of queued requests.
type StatusFunc func(ctx context.Context) Status

type Status struct {
	Online  bool   `json:"online"`
	State   string `json:"state"`
	Last    string `json:"last"`
	Pending int    `json:"pending"`
}

type Options struct {
	Addr string
	// Upstream is the origin the worker serves; asset paths are resolved
	// against it.
	Upstream *url.URL
	// Assets fetches upstream assets, normally the worker.
	Assets     http.RoundTripper
	Submission services.SubmissionService
	History    services.HistoryService
	// Notifications is mounted at /ws when set.
	Notifications http.Handler
	Status        StatusFunc
	Log           logging.Logger
}

type Server struct {
	opts   Options
	log    logging.Logger
	router *chi.Mux
}

func New(opts Options) *Server {
	s := &Server{
		opts: opts,
		log:  opts.Log.With("module", "origin_server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/hashtags", s.handleGenerate)
	r.Get("/history", s.handleHistory)
	r.Delete("/history/{timestamp}", s.handleDeleteHistory)
	r.Get("/status", s.handleStatus)
	if opts.Notifications != nil {
		r.Method(http.MethodGet, "/ws", opts.Notifications)
	}
	r.Get("/*", s.handleAsset)

	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Run listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.log.Info(context.WithoutCancel(ctx), "Stopping origin server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info(ctx, "Starting origin server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
