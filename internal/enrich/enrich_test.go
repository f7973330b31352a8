package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

const articlePage = `<html><head><title>Post</title></head><body>
<nav>Home | About</nav>
<article><h1>Big news</h1>
<p>The team released a new version of the compiler today with many improvements to build times and diagnostics.</p>
<p>Benchmarks show a thirty percent reduction in incremental build time across large monorepos, according to the announcement.</p>
<p>The release also adds better error messages for generic type inference failures.</p>
</article></body></html>`

const metaOnlyPage = `<html><head><meta property="og:description" content="Short teaser for the story."></head><body><p>hi</p></body></html>`

func TestFillSnippets(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/article":
			w.Write([]byte(articlePage))
		case "/meta":
			w.Write([]byte(metaOnlyPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := New(srv.Client(), 5*time.Second, zerolog.Nop())
	items := []model.RawItem{
		{Title: "has snippet", Link: srv.URL + "/article", ContentSnippet: "already here"},
		{Title: "needs article", Link: srv.URL + "/article"},
		{Title: "needs meta", Link: srv.URL + "/meta"},
		{Title: "no link"},
	}

	out, res := e.FillSnippets(context.Background(), items)
	if out[0].ContentSnippet != "already here" {
		t.Error("existing snippet must not be replaced")
	}
	if !strings.Contains(out[1].ContentSnippet, "thirty percent") {
		t.Errorf("expected readability text, got %q", out[1].ContentSnippet)
	}
	if out[2].ContentSnippet != "Short teaser for the story." {
		t.Errorf("expected meta description fallback, got %q", out[2].ContentSnippet)
	}
	if items[1].ContentSnippet != "" {
		t.Error("input slice must not be modified")
	}
	if res.Fetched != 2 {
		t.Errorf("expected 2 fetched, got %d", res.Fetched)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestFillSnippetsSkipsFailedHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	e := New(srv.Client(), 5*time.Second, zerolog.Nop())
	items := []model.RawItem{
		{Title: "a", Link: srv.URL + "/1"},
		{Title: "b", Link: srv.URL + "/2"},
		{Title: "c", Link: srv.URL + "/3"},
	}
	_, res := e.FillSnippets(context.Background(), items)
	if hits.Load() != 1 {
		t.Errorf("expected one request before skipping the host, got %d", hits.Load())
	}
	if res.Failed != 1 || res.Skipped != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}
