package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/kv"
	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/model"
	"github.com/TobiSchelling/DailyDigest/internal/pipeline"
	"github.com/TobiSchelling/DailyDigest/internal/settings"
)

type fakeRunner struct {
	users []string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, userID string) (*pipeline.RunResult, error) {
	f.users = append(f.users, userID)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.RunResult{UserID: userID, Status: pipeline.StatusSent}, nil
}

func newTestServer(t *testing.T, runner Runner) (*Server, *settings.Repository) {
	t.Helper()
	repo := settings.NewRepository(kv.NewMemory(), 0)
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RunFinished(pipeline.StatusSent, time.Second)
	return New(runner, repo, metrics.Handler(reg), zerolog.Nop()), repo
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRunRoute(t *testing.T) {
	runner := &fakeRunner{}
	srv, _ := newTestServer(t, runner)

	rec := do(srv, "POST", "/api/digest/run", `{"userId":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got pipeline.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != pipeline.StatusSent || got.UserID != "alice" {
		t.Errorf("unexpected result %+v", got)
	}
	if len(runner.users) != 1 || runner.users[0] != "alice" {
		t.Errorf("unexpected runs %v", runner.users)
	}
}

func TestRunRouteValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	for _, body := range []string{`not json`, `{}`, `{"userId":"  "}`} {
		if rec := do(srv, "POST", "/api/digest/run", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	if rec := do(srv, "GET", "/api/digest/run", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRunRouteError(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{err: errors.New("store down")})
	rec := do(srv, "POST", "/api/digest/run", `{"userId":"alice"}`)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "store down") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body)
	}
}

func TestLogsRoute(t *testing.T) {
	srv, repo := newTestServer(t, &fakeRunner{})
	for i := 0; i < 3; i++ {
		repo.SavePushLog(context.Background(), "alice", model.PushLog{ID: fmt.Sprint(i), Status: model.PushSuccess})
	}

	rec := do(srv, "GET", "/api/users/alice/logs?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Logs []model.PushLog `json:"logs"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Logs) != 2 || body.Logs[0].ID != "2" {
		t.Errorf("unexpected logs %+v", body.Logs)
	}

	if rec := do(srv, "GET", "/api/users/alice/logs?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDigestRoute(t *testing.T) {
	srv, repo := newTestServer(t, &fakeRunner{})

	if rec := do(srv, "GET", "/digest/alice", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any report, got %d", rec.Code)
	}

	repo.SaveLastReport(context.Background(), "alice", &model.DigestReport{
		TotalItems:    4,
		ReportContent: "# Daily Digest\n\n> **TL;DR** big day\n\n## Coding\n\n- [Go 1.26](https://go.dev)\n\n<script>alert(1)</script>",
		Date:          time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	rec := do(srv, "GET", "/digest/alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<h1>Daily Digest</h1>", `<a href="https://go.dev">Go 1.26</a>`, "2026-03-10", "4 items"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body", want)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("raw HTML from the report must not be rendered")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})
	if rec := do(srv, "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec := do(srv, "GET", "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dailydigest_runs_total") {
		t.Errorf("expected run metrics, got %d", rec.Code)
	}
}
