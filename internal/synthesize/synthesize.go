package synthesize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// EmptySection is the content of a category with no analyzed items.
const EmptySection = "(empty)"

const synthesisPrompt = `You are writing one section of a daily technology news digest. The section covers: %s

Write a compact markdown list with one bullet per article below, most important first. Each bullet gives the headline in bold, one sentence on why it matters, and the link. Merge bullets that cover the same story. Do not add a heading and do not invent facts.

Articles:
%s`

// Result holds the results of a synthesis run.
type Result struct {
	Sections  int
	Fallbacks int
}

// Synthesizer writes one markdown section per category.
type Synthesizer struct {
	caller *llm.Caller
	model  string
	log    zerolog.Logger
}

// NewSynthesizer creates a new category synthesizer.
func NewSynthesizer(caller *llm.Caller, modelName string, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{caller: caller, model: modelName, log: logger}
}

// Synthesize groups items by category in report order and renders each
// non-empty group. Groups without deep-analyzed items render as EmptySection
// without a model call.
func (s *Synthesizer) Synthesize(ctx context.Context, items []model.AnalyzedItem) ([]model.CategorySection, *Result) {
	groups := GroupByCategory(items)
	r := &Result{}

	var sections []model.CategorySection
	for _, cat := range model.Categories {
		group, ok := groups[cat]
		if !ok {
			continue
		}

		var deep []model.AnalyzedItem
		for _, item := range group {
			if item.IsDeepAnalyzed {
				deep = append(deep, item)
			}
		}

		content := EmptySection
		if len(deep) > 0 {
			var fellBack bool
			content, fellBack = s.synthesizeGroup(ctx, cat, deep)
			if fellBack {
				r.Fallbacks++
			}
		}
		sections = append(sections, model.CategorySection{Category: cat.Label(), Content: content})
	}

	r.Sections = len(sections)
	s.log.Info().Int("sections", r.Sections).Int("fallbacks", r.Fallbacks).Msg("synthesis complete")
	return sections, r
}

func (s *Synthesizer) synthesizeGroup(ctx context.Context, cat model.Category, items []model.AnalyzedItem) (string, bool) {
	text, err := s.caller.Call(ctx, "synthesize", llm.Request{
		Model:     s.model,
		Prompt:    fmt.Sprintf(synthesisPrompt, cat.Label(), formatItems(items)),
		MaxTokens: 1024,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.log.Warn().Err(err).Str("category", string(cat)).Msg("synthesis failed, using bullet list")
		return BulletList(items), true
	}
	return text, false
}

// GroupByCategory buckets items by category, each bucket ordered by score
// descending. Ties keep input order.
func GroupByCategory(items []model.AnalyzedItem) map[model.Category][]model.AnalyzedItem {
	groups := make(map[model.Category][]model.AnalyzedItem)
	for _, item := range items {
		cat := model.ParseCategory(string(item.Category))
		groups[cat] = append(groups[cat], item)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Score > g[j].Score })
	}
	return groups
}

// BulletList renders items without a model: title, summary and link verbatim.
func BulletList(items []model.AnalyzedItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := fmt.Sprintf("- **%s**: %s", item.Title, item.Summary)
		if item.Link != "" {
			line += "\n  " + item.Link
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatItems(items []model.AnalyzedItem) string {
	parts := make([]string, 0, len(items))
	for i, item := range items {
		parts = append(parts, fmt.Sprintf("[%d] %s (score %d)\n  Summary: %s\n  URL: %s",
			i+1, item.Title, item.Score, item.Summary, item.Link))
	}
	return strings.Join(parts, "\n\n")
}
