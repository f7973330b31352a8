package collect

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/dedup"
	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// Result counts items at each collection stage.
type Result struct {
	Fetched      int
	InWindow     int
	UniqueTitles int
	New          int
}

// Collector runs fetch, window, title dedup and the seen-link gate.
type Collector struct {
	fetcher   *Fetcher
	gate      *dedup.URLGate
	threshold float64
	now       func() time.Time
	log       zerolog.Logger
	metrics   metrics.Recorder
}

// NewCollector creates a Collector. threshold <= 0 uses dedup.DefaultThreshold.
func NewCollector(fetcher *Fetcher, gate *dedup.URLGate, threshold float64, logger zerolog.Logger, rec metrics.Recorder) *Collector {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Collector{
		fetcher:   fetcher,
		gate:      gate,
		threshold: threshold,
		now:       time.Now,
		log:       logger,
		metrics:   rec,
	}
}

// SetClock overrides the time used for the freshness window.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// FetchNewItems returns the items from urls the user has not yet received.
// Only store failures are returned as errors.
func (c *Collector) FetchNewItems(ctx context.Context, userID string, urls []string, windowDays int) ([]model.RawItem, *Result, error) {
	r := &Result{}
	if len(urls) == 0 {
		return nil, r, nil
	}

	items := c.fetcher.FetchAll(ctx, urls)
	r.Fetched = len(items)

	items = FilterByWindow(items, windowDays, c.now())
	r.InWindow = len(items)

	items = dedup.DedupeTitles(items, c.threshold)
	r.UniqueTitles = len(items)

	items, err := c.gate.FilterNew(ctx, userID, items)
	if err != nil {
		return nil, r, err
	}
	r.New = len(items)

	c.metrics.StageItems("fetched", r.Fetched)
	c.metrics.StageItems("in_window", r.InWindow)
	c.metrics.StageItems("unique_titles", r.UniqueTitles)
	c.metrics.StageItems("new", r.New)

	c.log.Info().
		Str("user_id", userID).
		Int("feeds", len(urls)).
		Int("fetched", r.Fetched).
		Int("in_window", r.InWindow).
		Int("unique", r.UniqueTitles).
		Int("new", r.New).
		Msg("collection complete")
	return items, r, nil
}
