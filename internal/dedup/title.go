// Package dedup removes repeated stories before they reach the model.
package dedup

import (
	"math"
	"strings"
	"unicode"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// DefaultThreshold is the similarity above which two titles are one story.
const DefaultThreshold = 0.75

// normalizeTitle lowercases and keeps only letters and digits, so CJK text
// survives while punctuation and spacing differences vanish.
func normalizeTitle(title string) []rune {
	var out []rune
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

type bigram [2]rune

func bigrams(title string) map[bigram]struct{} {
	runes := normalizeTitle(title)
	set := make(map[bigram]struct{}, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[bigram{runes[i], runes[i+1]}] = struct{}{}
	}
	return set
}

// similarity is |A∩B| / sqrt(|A|·|B|); empty sets never match.
func similarity(a, b map[bigram]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for g := range small {
		if _, ok := large[g]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// TitleSimilarity compares two titles on their character bigrams.
func TitleSimilarity(a, b string) float64 {
	return similarity(bigrams(a), bigrams(b))
}

// DedupeTitles collapses near-duplicate titles, keeping the freshest copy
// of each story at the position where the story first appeared.
func DedupeTitles(items []model.RawItem, threshold float64) []model.RawItem {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	kept := make([]model.RawItem, 0, len(items))
	sets := make([]map[bigram]struct{}, 0, len(items))

	for _, item := range items {
		set := bigrams(item.Title)
		match := -1
		for i, existing := range sets {
			if similarity(set, existing) > threshold {
				match = i
				break
			}
		}

		if match < 0 {
			kept = append(kept, item)
			sets = append(sets, set)
			continue
		}
		if item.PubDate.After(kept[match].PubDate) {
			kept[match] = item
			sets[match] = set
		}
	}
	return kept
}
