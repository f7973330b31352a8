package collect

import (
	"time"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// DefaultWindowDays is the freshness horizon when none is configured.
const DefaultWindowDays = 30

// FilterByWindow keeps items published within days of now. Items with no
// parseable date are dropped.
func FilterByWindow(items []model.RawItem, days int, now time.Time) []model.RawItem {
	if days <= 0 {
		days = DefaultWindowDays
	}
	cutoff := now.AddDate(0, 0, -days)

	var out []model.RawItem
	for _, item := range items {
		if item.PubDate.IsZero() || item.PubDate.Before(cutoff) {
			continue
		}
		out = append(out, item)
	}
	return out
}
