// Package push resolves a user's delivery channels and sends reports to them.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// Pseudo-channel ids built from legacy single-target settings.
const (
	LegacyWebhookID = "legacy-webhook"
	LegacyKdocsID   = "legacy-kdocs"
)

// ErrEmailNotImplemented is reported for every email channel.
var ErrEmailNotImplemented = errors.New("email channel not implemented")

const maxResponseBytes = 2048

// Sender delivers a report to one channel variant and returns the remote
// response for the push log.
type Sender interface {
	Send(ctx context.Context, ch model.PushChannel, report *model.DigestReport) (string, error)
}

// Options configures a Dispatcher.
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	Kdocs   KdocsOptions
	Logger  zerolog.Logger
	Metrics metrics.Recorder
}

// Dispatcher sends a report to each channel in turn.
type Dispatcher struct {
	senders map[model.ChannelType]Sender
	timeout time.Duration
	log     zerolog.Logger
	metrics metrics.Recorder
}

// NewDispatcher creates a Dispatcher with the built-in senders.
func NewDispatcher(opts Options) *Dispatcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	return &Dispatcher{
		senders: map[model.ChannelType]Sender{
			model.ChannelWebhook: &WebhookSender{Client: client},
			model.ChannelKdocs:   NewKdocsSender(client, opts.Kdocs),
			model.ChannelEmail:   emailSender{},
		},
		timeout: opts.Timeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// SetSender replaces the sender for a channel type.
func (d *Dispatcher) SetSender(t model.ChannelType, s Sender) {
	d.senders[t] = s
}

// Resolve picks the channels for a run. Subscribed themes are walked in
// order, primary before secondaries; only enabled channels count and each id
// appears once. With nothing resolved, legacy settings become pseudo-channels.
func Resolve(s *model.Settings, channels []model.PushChannel, themes map[string]model.ThemePushConfig) []model.PushChannel {
	byID := make(map[string]model.PushChannel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	var out []model.PushChannel
	seen := make(map[string]bool)
	add := func(id string) {
		ch, ok := byID[id]
		if id == "" || !ok || !ch.Enabled || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, ch)
	}
	for _, theme := range s.SubscribedThemes {
		cfg, ok := themes[theme]
		if !ok {
			continue
		}
		add(cfg.PrimaryChannelID)
		for _, id := range cfg.SecondaryChannelIDs {
			add(id)
		}
	}
	if len(out) > 0 {
		return out
	}

	if s.WebhookURL != "" {
		out = append(out, model.PushChannel{
			ID:         LegacyWebhookID,
			Type:       model.ChannelWebhook,
			Name:       "Webhook",
			Enabled:    true,
			WebhookURL: s.WebhookURL,
		})
	}
	if s.HasLegacyKdocs() {
		out = append(out, model.PushChannel{
			ID:             LegacyKdocsID,
			Type:           model.ChannelKdocs,
			Name:           "Kdocs",
			Enabled:        true,
			KdocsAppID:     s.KdocsAppID,
			KdocsAppSecret: s.KdocsAppSecret,
			KdocsFileToken: s.KdocsFileToken,
			KdocsDBSheetID: s.KdocsDBSheetID,
		})
	}
	return out
}

// Dispatch sends report to every channel sequentially. A failing channel
// never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, report *model.DigestReport, channels []model.PushChannel) map[string]model.ChannelResult {
	results := make(map[string]model.ChannelResult, len(channels))
	for _, ch := range channels {
		res := model.ChannelResult{ChannelID: ch.ID, Name: ch.Name, Type: ch.Type}

		resp, err := d.send(ctx, ch, report)
		if err != nil {
			res.Error = err.Error()
			d.log.Warn().Err(err).Str("channel_id", ch.ID).Str("type", string(ch.Type)).Msg("push failed")
		} else {
			res.Success = true
			res.Response = resp
			d.log.Info().Str("channel_id", ch.ID).Str("type", string(ch.Type)).Msg("push sent")
		}
		d.metrics.ChannelPush(string(ch.Type), res.Success)
		results[ch.ID] = res
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, ch model.PushChannel, report *model.DigestReport) (string, error) {
	if err := ch.Validate(); err != nil {
		return "", err
	}
	sender, ok := d.senders[ch.Type]
	if !ok {
		return "", fmt.Errorf("unsupported channel type %q", ch.Type)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return sender.Send(ctx, ch, report)
}

// Succeeded counts successful results.
func Succeeded(results map[string]model.ChannelResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

type emailSender struct{}

func (emailSender) Send(context.Context, model.PushChannel, *model.DigestReport) (string, error) {
	return "", ErrEmailNotImplemented
}
