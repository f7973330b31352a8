package enrich

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

const (
	maxPageBytes   = 2 << 20
	minArticleText = 100
)

// Result holds the results of an enrichment pass.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// Enricher fills empty snippets from the linked page, so the analyzer sees
// more than a bare title.
type Enricher struct {
	client  *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// New creates an Enricher.
func New(client *http.Client, timeout time.Duration, logger zerolog.Logger) *Enricher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{client: client, timeout: timeout, log: logger}
}

// FillSnippets returns a copy of items where empty snippets are replaced by
// extracted page text. Once a host fails, its remaining items are skipped.
func (e *Enricher) FillSnippets(ctx context.Context, items []model.RawItem) ([]model.RawItem, *Result) {
	out := make([]model.RawItem, len(items))
	copy(out, items)
	r := &Result{}
	failedHosts := make(map[string]struct{})

	for i, item := range out {
		if item.ContentSnippet != "" || item.Link == "" {
			continue
		}
		u, err := url.Parse(item.Link)
		if err != nil || u.Host == "" {
			r.Skipped++
			continue
		}
		host := strings.ToLower(u.Host)
		if _, failed := failedHosts[host]; failed {
			r.Skipped++
			continue
		}

		text, err := e.fetchText(ctx, u)
		if err != nil {
			failedHosts[host] = struct{}{}
			r.Failed++
			e.log.Debug().Err(err).Str("url", item.Link).Msg("content fetch failed, skipping host")
			continue
		}
		if text == "" {
			r.Failed++
			continue
		}

		out[i].ContentSnippet = model.TruncateRunes(text, model.MaxSnippetRunes)
		r.Fetched++
	}

	if r.Fetched+r.Failed > 0 {
		e.log.Info().Int("fetched", r.Fetched).Int("failed", r.Failed).Int("skipped", r.Skipped).Msg("snippet enrichment complete")
	}
	return out, r
}

type statusError int

func (s statusError) Error() string { return http.StatusText(int(s)) }

func (e *Enricher) fetchText(ctx context.Context, u *url.URL) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "DailyDigest/1.0 (news digest)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil {
		text := strings.Join(strings.Fields(article.TextContent), " ")
		if len(text) > minArticleText {
			return text, nil
		}
	}
	return metaDescription(body), nil
}

// metaDescription falls back to the page's description tags.
func metaDescription(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`, `meta[name="twitter:description"]`} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if text := strings.TrimSpace(content); text != "" {
				return text
			}
		}
	}
	return ""
}
