package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/analyze"
	"github.com/TobiSchelling/DailyDigest/internal/collect"
	"github.com/TobiSchelling/DailyDigest/internal/compose"
	"github.com/TobiSchelling/DailyDigest/internal/config"
	"github.com/TobiSchelling/DailyDigest/internal/dedup"
	"github.com/TobiSchelling/DailyDigest/internal/enrich"
	"github.com/TobiSchelling/DailyDigest/internal/kv"
	"github.com/TobiSchelling/DailyDigest/internal/llm"
	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/model"
	"github.com/TobiSchelling/DailyDigest/internal/netguard"
	"github.com/TobiSchelling/DailyDigest/internal/push"
	"github.com/TobiSchelling/DailyDigest/internal/ratelimit"
	"github.com/TobiSchelling/DailyDigest/internal/settings"
	"github.com/TobiSchelling/DailyDigest/internal/synthesize"
)

// Run statuses.
const (
	StatusSkipped       = "skipped"
	StatusCompleted     = "completed"
	StatusNoPushTarget  = "no_push_target"
	StatusSent          = "sent"
	StatusPartialFailed = "partial_failed"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// RunResult holds the results of one digest run.
type RunResult struct {
	UserID   string                         `json:"userId"`
	Status   string                         `json:"status"`
	Reason   string                         `json:"reason,omitempty"`
	Steps    []StepResult                   `json:"steps"`
	Report   *model.DigestReport            `json:"report,omitempty"`
	Channels map[string]model.ChannelResult `json:"channels,omitempty"`
	PushLog  *model.PushLog                 `json:"pushLog,omitempty"`
	Duration time.Duration                  `json:"duration"`
}

func (r *RunResult) step(name, format string, args ...any) {
	r.Steps = append(r.Steps, StepResult{Name: name, Summary: fmt.Sprintf(format, args...)})
}

// ProviderFactory builds the model backend for a run.
type ProviderFactory func(ctx context.Context, cfg llm.Config) (llm.Provider, error)

// Deps are the collaborators of a Pipeline. Only Config and Store are required.
type Deps struct {
	Config *config.Config
	Store  kv.Store
	Logger zerolog.Logger

	Metrics metrics.Recorder
	// HTTPClient replaces every outbound client when set.
	HTTPClient  *http.Client
	NewProvider ProviderFactory
	// Pacer overrides the per-provider pacing from Config.
	Pacer *ratelimit.Pacer
	Now   func() time.Time
}

// Pipeline runs the digest for one user at a time.
type Pipeline struct {
	cfg         *config.Config
	repo        *settings.Repository
	collector   *collect.Collector
	enricher    *enrich.Enricher
	dispatcher  *push.Dispatcher
	newProvider ProviderFactory
	modelClient *http.Client
	pacer       *ratelimit.Pacer
	now         func() time.Time
	log         zerolog.Logger
	metrics     metrics.Recorder
}

// New wires a Pipeline from its dependencies.
func New(d Deps) *Pipeline {
	cfg := d.Config
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.NewProvider == nil {
		d.NewProvider = llm.New
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	guard := netguard.Guard{AllowPrivate: cfg.Network.AllowPrivate}
	client := func(timeout time.Duration) *http.Client {
		if d.HTTPClient != nil {
			return d.HTTPClient
		}
		return guard.Client(timeout)
	}
	modelClient := d.HTTPClient
	if modelClient == nil {
		modelClient = &http.Client{Timeout: cfg.Timeouts.Model}
	}

	fetcher := collect.NewFetcher(collect.FetcherOptions{
		Client:     client(cfg.Timeouts.Feed),
		Timeout:    cfg.Timeouts.Feed,
		MaxPerFeed: cfg.Pipeline.MaxItemsPerFeed,
		MaxTotal:   cfg.Pipeline.MaxTotalItems,
		Logger:     d.Logger,
		Metrics:    d.Metrics,
	})
	collector := collect.NewCollector(fetcher, dedup.NewURLGate(d.Store, cfg.Pipeline.SeenTTL), cfg.Pipeline.TitleSimilarity, d.Logger, d.Metrics)
	collector.SetClock(d.Now)

	var enricher *enrich.Enricher
	if cfg.Pipeline.EnrichSnippets {
		enricher = enrich.New(client(cfg.Timeouts.Content), cfg.Timeouts.Content, d.Logger)
	}

	return &Pipeline{
		cfg:       cfg,
		repo:      settings.NewRepository(d.Store, cfg.Pipeline.PushLogRetention),
		collector: collector,
		enricher:  enricher,
		dispatcher: push.NewDispatcher(push.Options{
			Client:  client(cfg.Timeouts.Push),
			Timeout: cfg.Timeouts.Push,
			Kdocs: push.KdocsOptions{
				TokenURL:      cfg.Kdocs.TokenURL,
				APIBase:       cfg.Kdocs.APIBase,
				MaxFieldRunes: cfg.Kdocs.MaxFieldRunes,
			},
			Logger:  d.Logger,
			Metrics: d.Metrics,
		}),
		newProvider: d.NewProvider,
		modelClient: modelClient,
		pacer:       d.Pacer,
		now:         d.Now,
		log:         d.Logger,
		metrics:     d.Metrics,
	}
}

// Repository exposes the settings store the pipeline reads.
func (p *Pipeline) Repository() *settings.Repository {
	return p.repo
}

// Run executes the digest for userID. Per-item and per-channel failures
// degrade inside the result; only store, settings and provider setup
// failures are returned as errors.
func (p *Pipeline) Run(ctx context.Context, userID string) (*RunResult, error) {
	start := p.now()
	log := p.log.With().Str("user_id", userID).Logger()
	r := &RunResult{UserID: userID}

	err := p.run(ctx, log, userID, r)
	r.Duration = p.now().Sub(start)
	if err != nil {
		log.Error().Err(err).Msg("digest run failed")
		p.metrics.RunFinished("error", r.Duration)
		return nil, err
	}
	log.Info().Str("status", r.Status).Dur("duration", r.Duration).Msg("digest run finished")
	p.metrics.RunFinished(r.Status, r.Duration)
	return r, nil
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, userID string, r *RunResult) error {
	s, err := p.repo.GetSettings(ctx, userID)
	if err != nil {
		return err
	}
	if s == nil {
		r.Status, r.Reason = StatusSkipped, "no settings"
		return nil
	}
	sources, err := p.repo.GetRSSSources(ctx, userID)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		r.Status, r.Reason = StatusSkipped, "no rss sources"
		return nil
	}
	// Routing is read before the URL gate claims links, so a store or decode
	// failure cannot consume items that were never pushed.
	channels, err := p.repo.GetPushChannels(ctx, userID)
	if err != nil {
		return err
	}
	themes, err := p.repo.GetAllThemePushConfigs(ctx, userID)
	if err != nil {
		return err
	}

	// Collect
	windowDays := s.WindowDays
	if windowDays <= 0 {
		windowDays = p.cfg.Pipeline.WindowDays
	}
	items, cres, err := p.collector.FetchNewItems(ctx, userID, sources, windowDays)
	if err != nil {
		return err
	}
	r.step("Collect", "%d fetched, %d in window, %d unique, %d new", cres.Fetched, cres.InWindow, cres.UniqueTitles, cres.New)
	if len(items) == 0 {
		r.Status, r.Reason = StatusCompleted, "no new items"
		return nil
	}

	provider, err := p.provider(ctx, s)
	if err != nil {
		return err
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}
	caller := p.caller(provider, s.Provider)
	defaults := p.cfg.Providers.For(s.Provider)
	mainModel := firstNonEmpty(s.Model, defaults.Model)

	// Prefilter
	if len(items) > p.cfg.Pipeline.PrefilterLimit {
		prefilterModel := firstNonEmpty(s.PrefilterModel, defaults.PrefilterModel, mainModel)
		before := len(items)
		items = analyze.NewPrefilter(caller, prefilterModel, log).Select(ctx, items, p.cfg.Pipeline.PrefilterLimit, s.FocusKeyword)
		r.step("Prefilter", "%d of %d kept", len(items), before)
	}
	p.metrics.StageItems("prefiltered", len(items))

	// Enrich
	if p.enricher != nil {
		var eres *enrich.Result
		items, eres = p.enricher.FillSnippets(ctx, items)
		r.step("Enrich", "%d snippets fetched, %d failed", eres.Fetched, eres.Failed)
	}

	// Analyze
	analyzed, ares := analyze.NewAnalyzer(caller, mainModel, s.AnalysisPrompt, s.FocusKeyword, log).AnalyzeAll(ctx, items)
	r.step("Analyze", "%d deep, %d low quality, %d failed", ares.Deep, ares.LowQuality, ares.Failed)
	p.metrics.StageItems("analyzed", ares.Deep)

	// Synthesize
	sections, sres := synthesize.NewSynthesizer(caller, mainModel, log).Synthesize(ctx, analyzed)
	r.step("Synthesize", "%d sections, %d fallbacks", sres.Sections, sres.Fallbacks)

	// Compose
	loc, _ := s.Location()
	composer := compose.NewComposer(caller, mainModel, compose.Options{
		SoftLimit:        p.cfg.Pipeline.SoftLimit,
		HardLimit:        p.cfg.Pipeline.HardLimit,
		CompressAttempts: p.cfg.Pipeline.CompressAttempts,
		TLDRMaxRunes:     p.cfg.Pipeline.TLDRMaxRunes,
	}, log)
	report := composer.Report(ctx, p.now().In(loc), analyzed, sections)
	r.Report = report
	r.step("Compose", "%d runes", len([]rune(report.ReportContent)))
	if err := p.repo.SaveLastReport(ctx, userID, report); err != nil {
		return err
	}

	// Push
	targets := push.Resolve(s, channels, themes)

	entry := model.PushLog{
		ID:        uuid.NewString(),
		Timestamp: p.now(),
		Details: model.PushLogDetails{
			ThemeCount:   len(s.SubscribedThemes),
			SourceCount:  len(sources),
			ChannelCount: len(targets),
		},
	}

	if len(targets) == 0 {
		entry.Status = model.PushFailed
		entry.Error = "no push channel configured"
		r.Status = StatusNoPushTarget
	} else {
		results := p.dispatcher.Dispatch(ctx, report, targets)
		succeeded := push.Succeeded(results)
		entry.Details.SuccessCount = succeeded
		entry.Details.Channels = results
		r.Channels = results
		r.step("Push", "%d of %d channels succeeded", succeeded, len(targets))

		entry.Status = model.PushFailed
		if succeeded > 0 {
			entry.Status = model.PushSuccess
		}
		if succeeded < len(targets) {
			entry.Error = fmt.Sprintf("%d of %d channels failed", len(targets)-succeeded, len(targets))
			r.Status = StatusPartialFailed
		} else {
			r.Status = StatusSent
		}
	}

	r.PushLog = &entry
	return p.repo.SavePushLog(ctx, userID, entry)
}

func (p *Pipeline) provider(ctx context.Context, s *model.Settings) (llm.Provider, error) {
	defaults := p.cfg.Providers.For(s.Provider)
	provider, err := p.newProvider(ctx, llm.Config{
		Provider:   s.Provider,
		APIKey:     s.APIKey,
		BaseURL:    firstNonEmpty(s.BaseURL, defaults.BaseURL),
		Model:      firstNonEmpty(s.Model, defaults.Model),
		HTTPClient: p.modelClient,
	})
	if err != nil {
		return nil, fmt.Errorf("creating model provider: %w", err)
	}
	return provider, nil
}

// caller is shared by every stage of a run so pacing spans stages.
func (p *Pipeline) caller(provider llm.Provider, providerName string) *llm.Caller {
	pacer := p.pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(p.cfg.Pacing.For(providerName))
	}
	policy := llm.DefaultPolicy()
	policy.MaxRetries = p.cfg.Retry.MaxRetries
	policy.BaseDelay = p.cfg.Retry.BaseDelay
	return &llm.Caller{
		Provider: provider,
		Pacer:    pacer,
		Policy:   policy,
		Timeout:  p.cfg.Timeouts.Model,
		Metrics:  p.metrics,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
