package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxSnippetRunes caps RawItem.ContentSnippet.
const MaxSnippetRunes = 2000

// RawItem is one normalized feed entry.
type RawItem struct {
	Title          string    `json:"title"`
	Link           string    `json:"link"`
	ContentSnippet string    `json:"contentSnippet"`
	PubDate        time.Time `json:"pubDate"`
	SourceName     string    `json:"sourceName"`
}

// Category is the analyzer's topical bucket.
type Category string

const (
	CategoryAITech  Category = "AI Tech"
	CategoryProduct Category = "Product"
	CategoryMarket  Category = "Market"
	CategoryCoding  Category = "Coding"
	CategoryOther   Category = "Other"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryAITech,
	CategoryProduct,
	CategoryMarket,
	CategoryCoding,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryAITech:  "🤖 AI 技术 / AI Tech",
	CategoryProduct: "🚀 产品动态 / Product",
	CategoryMarket:  "📈 市场商业 / Market",
	CategoryCoding:  "💻 编程开发 / Coding",
	CategoryOther:   "📌 其他 / Other",
}

// Label returns the heading shown in the report.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryOther]
}

// ParseCategory maps free-form model output onto a known category.
func ParseCategory(s string) Category {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(norm)
	switch norm {
	case "aitech", "ai", "技术", "ai技术":
		return CategoryAITech
	case "product", "产品":
		return CategoryProduct
	case "market", "市场", "business":
		return CategoryMarket
	case "coding", "code", "编程", "dev", "development":
		return CategoryCoding
	default:
		return CategoryOther
	}
}

// AnalyzedItem is a RawItem after the per-item model pass.
// IsDeepAnalyzed is false whenever Summary fell back to Title.
type AnalyzedItem struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Category       Category `json:"category"`
	Score          int      `json:"score"`
	Reasoning      string   `json:"reasoning"`
	Link           string   `json:"link"`
	IsDeepAnalyzed bool     `json:"isDeepAnalyzed"`
}

// CategorySection is one rendered category block.
type CategorySection struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

// DigestReport is the assembled output of one digest run.
type DigestReport struct {
	TLDR          string            `json:"tldr"`
	Sections      []CategorySection `json:"sections"`
	TotalItems    int               `json:"totalItems"`
	ReportContent string            `json:"reportContent"`
	Date          time.Time         `json:"date"`
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
