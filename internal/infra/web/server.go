package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/infra/logging"
	"subscription-payments/internal/reconcile"
)

// FinalStateReader serves the persisted resolution of sessions the manager no
// longer holds in memory.
type FinalStateReader interface {
	FinalState(ctx context.Context, sessionID string) (model.Resolution, error)
}

type Server struct {
	manager  *reconcile.Manager
	surfaces FinalStateReader
	auth     *AuthManager
	server   *http.Server
	log      *zerolog.Logger
}

func NewServer(port int, manager *reconcile.Manager, surfaces FinalStateReader, auth *AuthManager, logger *zerolog.Logger) *Server {
	webLog := logger.With().Str("component", "WebServer").Logger()
	s := &Server{manager: manager, surfaces: surfaces, auth: auth, log: &webLog}

	r := chi.NewRouter()
	r.Use(s.traceID, s.requestLog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/checkout", s.handleOpenCheckout)
		r.Get("/checkout/{sessionID}", s.handleCheckoutStatus)
		r.Post("/checkout/{sessionID}/heartbeat", s.handleHeartbeat)
		r.Delete("/checkout/{sessionID}", s.handleCancel)
	})

	// Gateway return pages; reached by browser redirect, no bearer token.
	r.Get("/payments/return/success", s.handleReturnTerminal)
	r.Get("/payments/return/failure", s.handleReturnTerminal)
	r.Get("/payments/return/pending", s.handleReturnPending)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logging.With(r.Context(), s.log).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
