package analyze

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// Fallback scores for items that did not get a real analysis.
const (
	ScoreFailed     = 2
	ScoreLowQuality = 3
)

const minSummaryRunes = 4

// DefaultSystemPrompt is used unless the user supplies their own.
const DefaultSystemPrompt = `You are an editor for a daily technology news digest.

For the article you are given, respond with ONLY this JSON object and nothing else:
{
    "title": "the headline, cleaned up",
    "summary": "one or two sentences (max 80 words) on what happened and why it matters",
    "category": "AI Tech" | "Product" | "Market" | "Coding" | "Other",
    "score": 1-10,
    "reasoning": "one sentence explaining the score"
}

score: 10 = must-read for practitioners, 1 = noise.
If the content is too thin to summarize, set summary to "INSUFFICIENT_CONTENT".`

const itemPrompt = `Title: %s
Source: %s
Link: %s
Content:
%s`

// insufficientMarkers flag summaries that carry no information.
var insufficientMarkers = []string{
	"insufficient_content",
	"insufficient content",
	"not enough information",
	"内容不足",
	"信息不足",
	"无法总结",
}

// Result holds the results of an analysis run.
type Result struct {
	Deep       int
	LowQuality int
	Failed     int
}

// Analyzer scores and summarizes items one model call at a time.
type Analyzer struct {
	caller *llm.Caller
	model  string
	system string
	log    zerolog.Logger
}

// NewAnalyzer creates an Analyzer. An empty systemPrompt uses DefaultSystemPrompt;
// a non-empty focus keyword is appended to it.
func NewAnalyzer(caller *llm.Caller, modelName, systemPrompt, focus string, logger zerolog.Logger) *Analyzer {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if kw := strings.TrimSpace(focus); kw != "" {
		systemPrompt += fmt.Sprintf("\n\nThe reader is especially interested in %q; score related items higher.", kw)
	}
	return &Analyzer{caller: caller, model: modelName, system: systemPrompt, log: logger}
}

// AnalyzeAll analyzes items sequentially. The output always has one entry
// per input, in input order.
func (a *Analyzer) AnalyzeAll(ctx context.Context, items []model.RawItem) ([]model.AnalyzedItem, *Result) {
	out := make([]model.AnalyzedItem, len(items))
	r := &Result{}
	for i, item := range items {
		out[i] = a.Analyze(ctx, item)
		switch {
		case out[i].IsDeepAnalyzed:
			r.Deep++
		case out[i].Score == ScoreLowQuality:
			r.LowQuality++
		default:
			r.Failed++
		}
	}
	a.log.Info().Int("deep", r.Deep).Int("low_quality", r.LowQuality).Int("failed", r.Failed).Msg("analysis complete")
	return out, r
}

// Analyze runs one item. Errors never escape; they demote the item instead.
func (a *Analyzer) Analyze(ctx context.Context, item model.RawItem) model.AnalyzedItem {
	content := item.ContentSnippet
	if content == "" {
		content = item.Title
	}
	source := item.SourceName
	if source == "" {
		source = "Unknown"
	}

	text, err := a.caller.Call(ctx, "analyze", llm.Request{
		Model:     a.model,
		System:    a.system,
		Prompt:    fmt.Sprintf(itemPrompt, item.Title, source, item.Link, content),
		MaxTokens: 512,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("title", item.Title).Msg("analysis failed")
		return failed(item, fmt.Sprintf("analysis failed: %v", err))
	}

	parsed := llm.ParseJSONResponse(text)
	if parsed == nil {
		a.log.Warn().Str("title", item.Title).Msg("analysis reply was not JSON")
		return failed(item, "analysis reply could not be parsed")
	}

	result := model.AnalyzedItem{
		Title:          item.Title,
		Summary:        strings.TrimSpace(llm.GetString(parsed, "summary", "")),
		Category:       model.ParseCategory(llm.GetString(parsed, "category", "")),
		Score:          clampScore(llm.GetInt(parsed, "score", 5)),
		Reasoning:      strings.TrimSpace(llm.GetString(parsed, "reasoning", "")),
		Link:           item.Link,
		IsDeepAnalyzed: true,
	}

	if isLowQuality(result.Summary) {
		result.Score = ScoreLowQuality
		result.Summary = item.Title
		result.IsDeepAnalyzed = false
		if result.Reasoning == "" {
			result.Reasoning = "not enough content to analyze"
		}
	}
	return result
}

func failed(item model.RawItem, reason string) model.AnalyzedItem {
	return model.AnalyzedItem{
		Title:          item.Title,
		Summary:        item.Title,
		Category:       model.CategoryOther,
		Score:          ScoreFailed,
		Reasoning:      reason,
		Link:           item.Link,
		IsDeepAnalyzed: false,
	}
}

func isLowQuality(summary string) bool {
	if utf8.RuneCountInString(summary) < minSummaryRunes {
		return true
	}
	lower := strings.ToLower(summary)
	for _, m := range insufficientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func clampScore(s int) int {
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}
