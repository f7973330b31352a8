package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TobiSchelling/DailyDigest/internal/kv"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 9, 0, 0, 0, time.UTC)
}

func TestTitleSimilarity(t *testing.T) {
	if s := TitleSimilarity("Foo Launches", "foo launches!"); s != 1 {
		t.Errorf("expected identical normalized titles to score 1, got %v", s)
	}
	if s := TitleSimilarity("OpenAI ships GPT-5", "Local bakery wins award"); s > 0.3 {
		t.Errorf("expected unrelated titles to score low, got %v", s)
	}
	if s := TitleSimilarity("", "anything"); s != 0 {
		t.Errorf("expected empty title to score 0, got %v", s)
	}
	if s := TitleSimilarity("苹果发布新款手机", "苹果发布新款手机！"); s != 1 {
		t.Errorf("expected CJK punctuation to be ignored, got %v", s)
	}
}

func TestDedupeKeepsLaterDuplicate(t *testing.T) {
	items := []model.RawItem{
		{Title: "Foo Launches", Link: "https://a.example/1", PubDate: day(1)},
		{Title: "Foo Launches", Link: "https://b.example/1", PubDate: day(2)},
	}
	got := DedupeTitles(items, DefaultThreshold)
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if !got[0].PubDate.Equal(day(2)) {
		t.Errorf("expected the Jan 2 item to survive, got %v", got[0].PubDate)
	}
}

func TestDedupeDropsOlderArrival(t *testing.T) {
	items := []model.RawItem{
		{Title: "Foo Launches", Link: "new", PubDate: day(3)},
		{Title: "Foo Launches", Link: "old", PubDate: day(1)},
		{Title: "Foo Launches", Link: "same-time", PubDate: day(3)},
	}
	got := DedupeTitles(items, DefaultThreshold)
	if len(got) != 1 || got[0].Link != "new" {
		t.Errorf("expected only the first, freshest item, got %+v", got)
	}
}

func TestDedupeReplacesInPlace(t *testing.T) {
	items := []model.RawItem{
		{Title: "Rust 2.0 released with new borrow checker", PubDate: day(1), Link: "a"},
		{Title: "Unrelated news about gardening tools", PubDate: day(1), Link: "b"},
		{Title: "Rust 2.0 released with a new borrow checker", PubDate: day(4), Link: "c"},
	}
	got := DedupeTitles(items, DefaultThreshold)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Link != "c" || got[1].Link != "b" {
		t.Errorf("expected fresher duplicate at original position, got %s, %s", got[0].Link, got[1].Link)
	}
}

func TestDedupeEmptyTitlesPassThrough(t *testing.T) {
	items := []model.RawItem{{Title: ""}, {Title: ""}, {Title: "!!!"}}
	if got := DedupeTitles(items, DefaultThreshold); len(got) != 3 {
		t.Errorf("expected all empty-titled items to survive, got %d", len(got))
	}
}

func TestDedupeConverges(t *testing.T) {
	items := []model.RawItem{
		{Title: "A big story", PubDate: day(1)},
		{Title: "A big story", PubDate: day(2)},
		{Title: "Another thing entirely", PubDate: day(1)},
	}
	once := DedupeTitles(items, DefaultThreshold)
	twice := DedupeTitles(once, DefaultThreshold)
	if len(once) != len(twice) {
		t.Errorf("expected dedup to be idempotent, got %d then %d", len(once), len(twice))
	}
}

func TestURLGateIdempotent(t *testing.T) {
	store := kv.NewMemory()
	gate := NewURLGate(store, 0)
	ctx := context.Background()
	items := []model.RawItem{
		{Title: "One", Link: "https://example.com/1"},
		{Title: "Two", Link: "https://example.com/2"},
	}

	first, err := gate.FilterNew(ctx, "u1", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 {
		t.Errorf("expected 2 new items on first pass, got %d", len(first))
	}

	second, _ := gate.FilterNew(ctx, "u1", items)
	if len(second) != 0 {
		t.Errorf("expected 0 new items on second pass, got %d", len(second))
	}

	other, _ := gate.FilterNew(ctx, "u2", items)
	if len(other) != 2 {
		t.Errorf("expected links to be tracked per user, got %d", len(other))
	}
}

func TestURLGateExpiresAfterTTL(t *testing.T) {
	store := kv.NewMemory()
	now := day(1)
	store.SetClock(func() time.Time { return now })
	gate := NewURLGate(store, SeenTTL)
	items := []model.RawItem{{Title: "One", Link: "https://example.com/1"}}

	gate.FilterNew(context.Background(), "u1", items)
	now = now.Add(SeenTTL + time.Minute)
	got, _ := gate.FilterNew(context.Background(), "u1", items)
	if len(got) != 1 {
		t.Errorf("expected link to be new again after TTL, got %d", len(got))
	}
}

func TestURLGateLinklessItemsCollide(t *testing.T) {
	gate := NewURLGate(kv.NewMemory(), 0)
	items := []model.RawItem{
		{Title: "First without link"},
		{Title: "Second without link"},
		{Title: "Has link", Link: "https://example.com/x"},
	}
	got, _ := gate.FilterNew(context.Background(), "u1", items)
	if len(got) != 2 {
		t.Fatalf("expected first link-less item and the linked item, got %d", len(got))
	}
	if got[0].Title != "First without link" {
		t.Errorf("expected the first link-less item to win, got %q", got[0].Title)
	}
}

type failingStore struct{ kv.Store }

func (failingStore) SetNX(context.Context, []string, string, time.Duration) ([]bool, error) {
	return nil, errors.New("store down")
}

func TestURLGatePropagatesStoreErrors(t *testing.T) {
	gate := NewURLGate(failingStore{}, 0)
	_, err := gate.FilterNew(context.Background(), "u1", []model.RawItem{{Link: "x"}})
	if err == nil {
		t.Fatal("expected store error")
	}
}
