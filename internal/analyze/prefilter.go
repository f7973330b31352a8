package analyze

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// DefaultPrefilterLimit is how many items reach the per-item analyzer.
const DefaultPrefilterLimit = 20

const prefilterPrompt = `Below are %d news headlines, numbered from 1.

Select the %d most important ones for a daily tech digest. Prefer substantive news over marketing, and never pick two headlines about the same story.%s

Headlines:
%s

Reply with ONLY the selected numbers, comma separated, e.g. "3,1,7".`

// Prefilter trims a large batch with one call to a cheap model.
type Prefilter struct {
	caller *llm.Caller
	model  string
	log    zerolog.Logger
}

// NewPrefilter creates a Prefilter that asks modelName.
func NewPrefilter(caller *llm.Caller, modelName string, logger zerolog.Logger) *Prefilter {
	return &Prefilter{caller: caller, model: modelName, log: logger}
}

// Select returns at most limit items. Batches within the limit are returned
// unchanged; if the model gives no usable answer the first limit items are kept.
func (p *Prefilter) Select(ctx context.Context, items []model.RawItem, limit int, keyword string) []model.RawItem {
	if limit <= 0 {
		limit = DefaultPrefilterLimit
	}
	if len(items) <= limit {
		return items
	}

	var lines strings.Builder
	for i, item := range items {
		fmt.Fprintf(&lines, "%d. %s\n", i+1, item.Title)
	}
	focus := ""
	if kw := strings.TrimSpace(keyword); kw != "" {
		focus = fmt.Sprintf("\nGive extra weight to headlines related to %q.", kw)
	}

	text, err := p.caller.Call(ctx, "prefilter", llm.Request{
		Model:     p.model,
		Prompt:    fmt.Sprintf(prefilterPrompt, len(items), limit, focus, lines.String()),
		MaxTokens: 256,
	})
	if err != nil {
		p.log.Warn().Err(err).Int("items", len(items)).Msg("prefilter failed, keeping first items")
		return items[:limit]
	}

	picked := parseSelection(text, len(items), limit)
	if len(picked) == 0 {
		p.log.Warn().Str("reply", model.TruncateRunes(text, 200)).Msg("prefilter reply unusable, keeping first items")
		return items[:limit]
	}

	out := make([]model.RawItem, 0, len(picked))
	for _, idx := range picked {
		out = append(out, items[idx])
	}
	p.log.Info().Int("from", len(items)).Int("kept", len(out)).Msg("prefilter complete")
	return out
}

// parseSelection reads the comma separated 1-based indices in reply order,
// dropping tokens that are not bare numbers, out of range or repeated, and
// returns at most limit 0-based indices.
func parseSelection(text string, n, limit int) []int {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' })
	seen := make(map[int]bool, len(fields))
	var out []int
	for _, f := range fields {
		v, err := strconv.Atoi(strings.Trim(f, " \t\r\"'."))
		if err != nil || v < 1 || v > n || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v-1)
		if len(out) == limit {
			break
		}
	}
	return out
}
