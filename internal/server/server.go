package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/DailyDigest/internal/model"
	"github.com/TobiSchelling/DailyDigest/internal/pipeline"
)

var md = goldmark.New()

const defaultLogLimit = 20

var digestPage = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>Daily Digest · {{.Date}}</title>
<style>body{max-width:46rem;margin:2rem auto;padding:0 1rem;font-family:system-ui,sans-serif;line-height:1.6}blockquote{border-left:4px solid #ccc;margin:0;padding-left:1rem;color:#444}</style>
</head>
<body>
<p><small>{{.UserID}} · {{.Items}} items</small></p>
{{.Body}}
</body>
</html>`))

// Runner runs a digest on demand.
type Runner interface {
	Run(ctx context.Context, userID string) (*pipeline.RunResult, error)
}

// Reports reads per-user run history.
type Reports interface {
	GetPushLogs(ctx context.Context, userID string, limit int) ([]model.PushLog, error)
	GetLastReport(ctx context.Context, userID string) (*model.DigestReport, error)
}

// Server is the HTTP trigger and preview surface.
type Server struct {
	runner  Runner
	reports Reports
	metrics http.Handler
	log     zerolog.Logger
	router  chi.Router
}

// New creates a new Server. metricsHandler may be nil.
func New(runner Runner, reports Reports, metricsHandler http.Handler, logger zerolog.Logger) *Server {
	s := &Server{runner: runner, reports: reports, metrics: metricsHandler, log: logger}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/digest/run", s.handleRun)
		r.Get("/users/{userID}/logs", s.handleLogs)
	})
	r.Get("/digest/{userID}", s.handleDigest)

	s.router = r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// ListenAndServe serves on addr until ctx is done, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type runRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	result, err := s.runner.Run(r.Context(), req.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", req.UserID).Msg("triggered run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := s.reports.GetPushLogs(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "logs": logs})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	report, err := s.reports.GetLastReport(r.Context(), userID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	err = digestPage.Execute(&buf, map[string]any{
		"UserID": userID,
		"Date":   report.Date.Format("2006-01-02"),
		"Items":  report.TotalItems,
		"Body":   renderMarkdown(report.ReportContent),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("rendering digest page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// renderMarkdown converts report markdown to HTML. goldmark drops raw HTML
// by default, so model output cannot inject markup.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
