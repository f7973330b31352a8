package compose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// scriptedProvider returns replies in order, repeating the last one.
type scriptedProvider struct {
	replies []string
	err     error
	calls   int
}

func (s *scriptedProvider) Generate(context.Context, llm.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	i := min(s.calls-1, len(s.replies)-1)
	return s.replies[i], nil
}

func newComposer(p llm.Provider) *Composer {
	return NewComposer(&llm.Caller{Provider: p}, "m", Options{}, zerolog.Nop())
}

var deepItems = []model.AnalyzedItem{
	{Title: "A", Summary: "Alpha shipped", IsDeepAnalyzed: true},
	{Title: "B", Summary: "B", IsDeepAnalyzed: false},
}

func TestTLDRStaticWithoutDeepItems(t *testing.T) {
	p := &scriptedProvider{replies: []string{"unused"}}
	got := newComposer(p).TLDR(context.Background(), []model.AnalyzedItem{{Title: "x", Summary: "x"}})
	if got != NoHighValueTLDR {
		t.Errorf("expected static message, got %q", got)
	}
	if p.calls != 0 {
		t.Error("model must not be called")
	}
}

func TestTLDRCapped(t *testing.T) {
	p := &scriptedProvider{replies: []string{"  \"" + strings.Repeat("要", 150) + "\"  "}}
	got := newComposer(p).TLDR(context.Background(), deepItems)
	if n := utf8.RuneCountInString(got); n != DefaultTLDRMaxRunes {
		t.Errorf("expected %d runes, got %d", DefaultTLDRMaxRunes, n)
	}
	if strings.ContainsAny(got, `" `) {
		t.Errorf("expected trimmed reply, got %q", got)
	}
}

func TestTLDRErrorFallsBack(t *testing.T) {
	p := &scriptedProvider{err: errors.New("down")}
	if got := newComposer(p).TLDR(context.Background(), deepItems); got != NoHighValueTLDR {
		t.Errorf("expected static message, got %q", got)
	}
}

func TestAssemble(t *testing.T) {
	date := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	out := Assemble(date, "short", []model.CategorySection{
		{Category: "AI", Content: "- one"},
		{Category: "Other", Content: "(empty)"},
	}, 2)
	for _, want := range []string{"2026-03-10", "> **TL;DR** short", "## AI\n\n- one", "## Other", "2 items"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "## AI") > strings.Index(out, "## Other") {
		t.Error("sections out of order")
	}
}

func TestCompressUnderSoftLimitSkipsModel(t *testing.T) {
	p := &scriptedProvider{replies: []string{"x"}}
	text := strings.Repeat("a", DefaultSoftLimit)
	if got := newComposer(p).Compress(context.Background(), text); got != text || p.calls != 0 {
		t.Errorf("expected untouched text and no calls, got %d calls", p.calls)
	}
}

func TestCompressAcceptsShorterReply(t *testing.T) {
	p := &scriptedProvider{replies: []string{strings.Repeat("b", 3000)}}
	got := newComposer(p).Compress(context.Background(), strings.Repeat("a", 6000))
	if got != strings.Repeat("b", 3000) || p.calls != 1 {
		t.Errorf("expected one accepted compression, got %d runes after %d calls", utf8.RuneCountInString(got), p.calls)
	}
}

func TestCompressRejectsLongerReply(t *testing.T) {
	p := &scriptedProvider{replies: []string{strings.Repeat("b", 9000)}}
	got := newComposer(p).Compress(context.Background(), strings.Repeat("a", 6000))
	if p.calls != DefaultCompressAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultCompressAttempts, p.calls)
	}
	if !strings.HasPrefix(got, "aaa") || !strings.HasSuffix(got, TruncationMarker) {
		t.Error("expected original text truncated with marker")
	}
}

func TestCompressLengthInvariant(t *testing.T) {
	for _, n := range []int{10, 4800, 4801, 5000, 5001, 12000} {
		for name, p := range map[string]*scriptedProvider{
			"error":    {err: errors.New("down")},
			"longer":   {replies: []string{strings.Repeat("字", n+100)}},
			"borderln": {replies: []string{strings.Repeat("字", 4999)}},
		} {
			got := newComposer(p).Compress(context.Background(), strings.Repeat("字", n))
			if l := utf8.RuneCountInString(got); l > DefaultHardLimit {
				t.Errorf("%s/%d: result has %d runes", name, n, l)
			}
		}
	}
}

func TestTruncate(t *testing.T) {
	got := Truncate(strings.Repeat("x", 5100), 5000)
	if utf8.RuneCountInString(got) != 5000 || !strings.HasSuffix(got, TruncationMarker) {
		t.Errorf("unexpected truncation, %d runes", utf8.RuneCountInString(got))
	}
	if got := Truncate("short", 5000); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
}

func TestReport(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Alpha leads today"}}
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	r := newComposer(p).Report(context.Background(), date, deepItems, []model.CategorySection{{Category: "AI", Content: "- a"}})
	if r.TLDR != "Alpha leads today" || r.TotalItems != 2 {
		t.Errorf("unexpected report %+v", r)
	}
	if !strings.Contains(r.ReportContent, "Alpha leads today") {
		t.Error("report content missing TL;DR")
	}
}
