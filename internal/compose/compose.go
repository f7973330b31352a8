package compose

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// Defaults for Options.
const (
	DefaultSoftLimit        = 4800
	DefaultHardLimit        = 5000
	DefaultCompressAttempts = 2
	DefaultTLDRMaxRunes     = 100
)

// NoHighValueTLDR is used when nothing was analyzed or the TL;DR call failed.
const NoHighValueTLDR = "今日暂无高价值资讯 / No high-value items today."

// TruncationMarker ends a report cut at the hard limit.
const TruncationMarker = "\n\n...(truncated)"

const tldrPrompt = `Below are summaries of today's most relevant tech news items.

Write a single TL;DR of at most %d characters capturing the most important takeaway. Reply with the TL;DR text only, no quotes and no prefix.

Summaries:
%s`

const compressPrompt = `The following markdown digest is %d characters long. Rewrite it to be under %d characters.

Keep every section heading, the TL;DR block and every link. Shorten the prose and drop the least important bullets first. Reply with the rewritten markdown only.

%s`

// Options tunes a Composer.
type Options struct {
	SoftLimit        int
	HardLimit        int
	CompressAttempts int
	TLDRMaxRunes     int
}

func (o Options) withDefaults() Options {
	if o.HardLimit <= 0 {
		o.HardLimit = DefaultHardLimit
	}
	if o.SoftLimit <= 0 || o.SoftLimit > o.HardLimit {
		o.SoftLimit = min(DefaultSoftLimit, o.HardLimit)
	}
	if o.CompressAttempts < 0 {
		o.CompressAttempts = 0
	} else if o.CompressAttempts == 0 {
		o.CompressAttempts = DefaultCompressAttempts
	}
	if o.TLDRMaxRunes <= 0 {
		o.TLDRMaxRunes = DefaultTLDRMaxRunes
	}
	return o
}

// Composer turns analyzed items and sections into the final report text.
type Composer struct {
	caller *llm.Caller
	model  string
	opts   Options
	log    zerolog.Logger
}

// NewComposer creates a new report composer.
func NewComposer(caller *llm.Caller, modelName string, opts Options, logger zerolog.Logger) *Composer {
	return &Composer{caller: caller, model: modelName, opts: opts.withDefaults(), log: logger}
}

// Report runs TLDR, Assemble and Compress in order.
func (c *Composer) Report(ctx context.Context, date time.Time, items []model.AnalyzedItem, sections []model.CategorySection) *model.DigestReport {
	tldr := c.TLDR(ctx, items)
	content := c.Compress(ctx, Assemble(date, tldr, sections, len(items)))
	return &model.DigestReport{
		TLDR:          tldr,
		Sections:      sections,
		TotalItems:    len(items),
		ReportContent: content,
		Date:          date,
	}
}

// TLDR summarizes the deep-analyzed items in one short line.
func (c *Composer) TLDR(ctx context.Context, items []model.AnalyzedItem) string {
	var summaries []string
	for _, item := range items {
		if item.IsDeepAnalyzed && strings.TrimSpace(item.Summary) != "" {
			summaries = append(summaries, "- "+item.Summary)
		}
	}
	if len(summaries) == 0 {
		return NoHighValueTLDR
	}

	text, err := c.caller.Call(ctx, "tldr", llm.Request{
		Model:     c.model,
		Prompt:    fmt.Sprintf(tldrPrompt, c.opts.TLDRMaxRunes, strings.Join(summaries, "\n")),
		MaxTokens: 256,
	})
	text = strings.Trim(strings.TrimSpace(text), `"“”`)
	if err != nil || text == "" {
		c.log.Warn().Err(err).Msg("tldr generation failed, using static message")
		return NoHighValueTLDR
	}
	return model.TruncateRunes(text, c.opts.TLDRMaxRunes)
}

// Assemble lays out the report: heading, TL;DR, sections, footer.
func Assemble(date time.Time, tldr string, sections []model.CategorySection, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# 📰 每日资讯 / Daily Digest · %s\n\n", date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "> **TL;DR** %s\n", tldr)
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", s.Category, strings.TrimSpace(s.Content))
	}
	fmt.Fprintf(&sb, "\n---\n共 %d 条资讯 / %d items analyzed", total, total)
	return sb.String()
}

// Compress shortens text above the soft limit with the model, accepting a
// reply only if it is strictly shorter, then hard-truncates anything still
// above the hard limit. The result never exceeds the hard limit.
func (c *Composer) Compress(ctx context.Context, text string) string {
	length := utf8.RuneCountInString(text)
	for attempt := 0; attempt < c.opts.CompressAttempts && length > c.opts.SoftLimit; attempt++ {
		reply, err := c.caller.Call(ctx, "compress", llm.Request{
			Model:     c.model,
			Prompt:    fmt.Sprintf(compressPrompt, length, c.opts.SoftLimit, text),
			MaxTokens: 4096,
		})
		reply = strings.TrimSpace(reply)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("compression failed")
			continue
		}
		n := utf8.RuneCountInString(reply)
		if reply == "" || n >= length {
			c.log.Debug().Int("before", length).Int("after", n).Msg("compression did not shorten report")
			continue
		}
		c.log.Info().Int("before", length).Int("after", n).Msg("report compressed")
		text, length = reply, n
	}
	return Truncate(text, c.opts.HardLimit)
}

// Truncate cuts text to at most limit runes, ending it with TruncationMarker
// when anything was removed.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	keep := limit - utf8.RuneCountInString(TruncationMarker)
	if keep <= 0 {
		return model.TruncateRunes(text, limit)
	}
	return model.TruncateRunes(text, keep) + TruncationMarker
}
