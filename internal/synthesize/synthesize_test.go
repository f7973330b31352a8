package synthesize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

type mockProvider struct {
	response string
	err      error
	prompts  []string
}

func (m *mockProvider) Generate(_ context.Context, r llm.Request) (string, error) {
	m.prompts = append(m.prompts, r.Prompt)
	return m.response, m.err
}

func newSynth(p llm.Provider) *Synthesizer {
	return NewSynthesizer(&llm.Caller{Provider: p}, "m", zerolog.Nop())
}

func TestSynthesizeCategoryOrder(t *testing.T) {
	items := []model.AnalyzedItem{
		{Title: "other", Category: model.CategoryOther, Score: 5, Summary: "s", IsDeepAnalyzed: true},
		{Title: "coding", Category: model.CategoryCoding, Score: 5, Summary: "s", IsDeepAnalyzed: true},
		{Title: "ai", Category: model.CategoryAITech, Score: 5, Summary: "s", IsDeepAnalyzed: true},
	}
	p := &mockProvider{response: "- **x**"}
	sections, res := newSynth(p).Synthesize(context.Background(), items)

	want := []string{model.CategoryAITech.Label(), model.CategoryCoding.Label(), model.CategoryOther.Label()}
	if len(sections) != len(want) {
		t.Fatalf("expected %d sections, got %d", len(want), len(sections))
	}
	for i, w := range want {
		if sections[i].Category != w {
			t.Errorf("section %d: expected %q, got %q", i, w, sections[i].Category)
		}
	}
	if res.Fallbacks != 0 || len(p.prompts) != 3 {
		t.Errorf("expected 3 calls and no fallbacks, got %d calls, %+v", len(p.prompts), res)
	}
}

func TestSynthesizeEmptyGroupSkipsModel(t *testing.T) {
	items := []model.AnalyzedItem{
		{Title: "failed", Category: model.CategoryMarket, Score: 2},
		{Title: "thin", Category: model.CategoryMarket, Score: 3},
	}
	p := &mockProvider{response: "unused"}
	sections, _ := newSynth(p).Synthesize(context.Background(), items)
	if len(sections) != 1 || sections[0].Content != EmptySection {
		t.Fatalf("expected one empty section, got %+v", sections)
	}
	if len(p.prompts) != 0 {
		t.Error("model must not be called for a group without deep items")
	}
}

func TestSynthesizeExcludesShallowItemsFromPrompt(t *testing.T) {
	items := []model.AnalyzedItem{
		{Title: "Low one", Category: model.CategoryProduct, Score: 9, IsDeepAnalyzed: false},
		{Title: "Mid one", Category: model.CategoryProduct, Score: 5, IsDeepAnalyzed: true},
		{Title: "Top one", Category: model.CategoryProduct, Score: 8, IsDeepAnalyzed: true},
	}
	p := &mockProvider{response: "ok"}
	newSynth(p).Synthesize(context.Background(), items)

	prompt := p.prompts[0]
	if strings.Contains(prompt, "Low one") {
		t.Error("shallow item leaked into prompt")
	}
	if strings.Index(prompt, "Top one") > strings.Index(prompt, "Mid one") {
		t.Error("expected items ordered by score")
	}
}

func TestSynthesizeFallback(t *testing.T) {
	items := []model.AnalyzedItem{
		{Title: "A", Summary: "sa", Link: "https://a", Category: model.CategoryCoding, Score: 4, IsDeepAnalyzed: true},
		{Title: "B", Summary: "sb", Link: "https://b", Category: model.CategoryCoding, Score: 7, IsDeepAnalyzed: true},
	}
	p := &mockProvider{err: errors.New("down")}
	sections, res := newSynth(p).Synthesize(context.Background(), items)
	want := "- **B**: sb\n  https://b\n- **A**: sa\n  https://a"
	if sections[0].Content != want {
		t.Errorf("unexpected fallback:\n%s", sections[0].Content)
	}
	if res.Fallbacks != 1 {
		t.Errorf("expected 1 fallback, got %d", res.Fallbacks)
	}
}

func TestGroupByCategoryNormalizes(t *testing.T) {
	groups := GroupByCategory([]model.AnalyzedItem{{Category: "ai_tech"}, {Category: "weird"}})
	if len(groups[model.CategoryAITech]) != 1 || len(groups[model.CategoryOther]) != 1 {
		t.Errorf("unexpected grouping %+v", groups)
	}
}
