package collect

import (
	"context"
	"html"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

const (
	defaultMaxPerFeed = 30
	defaultMaxTotal   = 200
)

var strictPolicy = bluemonday.StrictPolicy()

// Fetcher downloads and normalizes feeds.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	maxPerFeed int
	maxTotal   int
	log        zerolog.Logger
	metrics    metrics.Recorder
}

// FetcherOptions configures a Fetcher. Zero values take defaults.
type FetcherOptions struct {
	Client     *http.Client
	Timeout    time.Duration
	MaxPerFeed int
	MaxTotal   int
	Logger     zerolog.Logger
	Metrics    metrics.Recorder
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:     opts.Client,
		timeout:    opts.Timeout,
		maxPerFeed: opts.MaxPerFeed,
		maxTotal:   opts.MaxTotal,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = 20 * time.Second
	}
	if f.maxPerFeed <= 0 {
		f.maxPerFeed = defaultMaxPerFeed
	}
	if f.maxTotal <= 0 {
		f.maxTotal = defaultMaxTotal
	}
	if f.metrics == nil {
		f.metrics = metrics.Nop{}
	}
	return f
}

// FetchAll fetches every feed concurrently. A failing feed contributes no
// items; the output keeps the input feed order and is capped at maxTotal.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []model.RawItem {
	perFeed := make([][]model.RawItem, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, feedURL string) {
			defer wg.Done()
			items, err := f.fetchOne(ctx, feedURL)
			f.metrics.FeedFetched(err == nil)
			if err != nil {
				f.log.Warn().Err(err).Str("feed_url", feedURL).Msg("feed fetch failed")
				return
			}
			f.log.Debug().Str("feed_url", feedURL).Int("items", len(items)).Msg("feed parsed")
			perFeed[i] = items
		}(i, u)
	}
	wg.Wait()

	var all []model.RawItem
	for _, items := range perFeed {
		all = append(all, items...)
	}
	if len(all) > f.maxTotal {
		all = all[:f.maxTotal]
	}
	return all
}

func (f *Fetcher) fetchOne(ctx context.Context, feedURL string) ([]model.RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = "DailyDigest/1.0 (feed reader)"

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = extractSourceName(feedURL)
	}

	items := make([]model.RawItem, 0, min(len(feed.Items), f.maxPerFeed))
	for _, it := range feed.Items {
		if len(items) >= f.maxPerFeed {
			break
		}
		items = append(items, parseItem(it, source))
	}
	return items, nil
}

func parseItem(item *gofeed.Item, source string) model.RawItem {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}

	var pub time.Time
	if item.PublishedParsed != nil {
		pub = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		pub = *item.UpdatedParsed
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	return model.RawItem{
		Title:          strings.TrimSpace(stripHTML(item.Title)),
		Link:           link,
		ContentSnippet: model.TruncateRunes(stripHTML(body), model.MaxSnippetRunes),
		PubDate:        pub,
		SourceName:     source,
	}
}

// stripHTML removes all markup, decodes entities and collapses whitespace.
func stripHTML(text string) string {
	if text == "" {
		return ""
	}
	s := html.UnescapeString(strictPolicy.Sanitize(text))
	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	if name == "" {
		return host
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
