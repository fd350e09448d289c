// Package server exposes the decision pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/audit"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/corpus"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/rules"
)

// #region config
type Config struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
}

func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		RequestTimeout:    30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxBodyBytes:      64 << 10,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("server: addr is required")
	case c.RequestTimeout <= 0:
		return fmt.Errorf("server: request_timeout must be > 0, got %s", c.RequestTimeout)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("server: max_body_bytes must be > 0, got %d", c.MaxBodyBytes)
	}
	return nil
}

// #endregion config

// #region server
// Decider runs one request through the pipeline.
type Decider interface {
	Decide(ctx context.Context, req refund.Request) (refund.Decision, error)
}

// Deps are the read and decide surfaces behind the routes. Audit may be nil,
// which disables the decision lookup route.
type Deps struct {
	Decider Decider
	Audit   audit.Reader
	Corpus  *corpus.Corpus
	Rules   []rules.Definition
}

type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{config: config, deps: deps, logger: logger.With("component", "server")}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/policies", s.handleListPolicies)
	r.Get("/api/v1/rules", s.handleListRules)
	r.Route("/api/v1/decisions", func(r chi.Router) {
		r.Post("/", s.handleDecide)
		r.Get("/{correlationID}", s.handleGetDecision)
	})
	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down within
// ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// #endregion server

// #region handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"policies": s.deps.Corpus.Len(),
		"rules":    len(s.deps.Rules),
	})
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req refund.Request
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	d, err := s.deps.Decider.Decide(r.Context(), req)
	if err != nil {
		var inputErr *refund.InputError
		if errors.As(err, &inputErr) {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "invalid refund request",
				"problems": inputErr.Problems,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "decision failed", err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		respondError(w, http.StatusNotImplemented, "no queryable audit sink configured", nil)
		return
	}
	id := chi.URLParam(r, "correlationID")
	events, err := s.deps.Audit.Query(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audit query failed", err)
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, "decision not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"correlation_id": id,
		"events":         events,
	})
}

type policyView struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Reasons    []string `json:"reasons,omitempty"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	var filter refund.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, err := refund.ParseCategory(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid category", err)
			return
		}
		filter = c
	}
	out := []policyView{}
	for _, d := range s.deps.Corpus.Documents() {
		if filter != "" && d.Category != filter {
			continue
		}
		v := policyView{
			ID:         d.ID,
			Category:   string(d.Category),
			Question:   d.Question,
			Answer:     d.Answer,
			Confidence: d.Confidence,
		}
		for _, reason := range d.Reasons {
			v.Reasons = append(v.Reasons, string(reason))
		}
		out = append(out, v)
	}
	respondJSON(w, http.StatusOK, out)
}

type ruleView struct {
	ID             string `json:"id"`
	Tier           string `json:"tier"`
	Description    string `json:"description"`
	Expression     string `json:"expression"`
	RequiresPolicy string `json:"requires_policy,omitempty"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	out := make([]ruleView, len(s.deps.Rules))
	for i, d := range s.deps.Rules {
		out[i] = ruleView{
			ID:             d.ID,
			Tier:           d.Tier.String(),
			Description:    d.Description,
			Expression:     d.Expression,
			RequiresPolicy: d.RequiresPolicy,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// #endregion handlers
