package model

import (
	"fmt"
	"time"

	// Timezone names must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// Provider families accepted in Settings.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Settings is a user's digest configuration.
type Settings struct {
	Provider       string `json:"provider" yaml:"provider"`
	APIKey         string `json:"apiKey" yaml:"api_key"`
	BaseURL        string `json:"baseUrl,omitempty" yaml:"base_url,omitempty"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	PrefilterModel string `json:"prefilterModel,omitempty" yaml:"prefilter_model,omitempty"`
	FocusKeyword   string `json:"focusKeyword,omitempty" yaml:"focus_keyword,omitempty"`
	AnalysisPrompt string `json:"analysisPrompt,omitempty" yaml:"analysis_prompt,omitempty"`

	PushHour   int    `json:"pushHour" yaml:"push_hour"`
	PushDays   []int  `json:"pushDays" yaml:"push_days"`
	Timezone   string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	WindowDays int    `json:"windowDays,omitempty" yaml:"window_days,omitempty"`

	SubscribedThemes []string `json:"subscribedThemes" yaml:"subscribed_themes"`

	// Legacy single-target settings, used when no theme routing resolves.
	WebhookURL     string `json:"webhookUrl,omitempty" yaml:"webhook_url,omitempty"`
	KdocsAppID     string `json:"kdocsAppId,omitempty" yaml:"kdocs_app_id,omitempty"`
	KdocsAppSecret string `json:"kdocsAppSecret,omitempty" yaml:"kdocs_app_secret,omitempty"`
	KdocsFileToken string `json:"kdocsFileToken,omitempty" yaml:"kdocs_file_token,omitempty"`
	KdocsDBSheetID string `json:"kdocsDBSheetId,omitempty" yaml:"kdocs_db_sheet_id,omitempty"`
}

// Validate checks the settings once at load time.
func (s Settings) Validate() error {
	switch s.Provider {
	case "", ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.PushHour < 0 || s.PushHour > 23 {
		return fmt.Errorf("push hour out of range: %d", s.PushHour)
	}
	for _, d := range s.PushDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("push day out of range: %d", d)
		}
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	if s.WebhookURL != "" {
		if err := validateHTTPURL(s.WebhookURL); err != nil {
			return fmt.Errorf("legacy %w", err)
		}
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC.
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// HasLegacyKdocs reports whether the legacy table target is complete.
func (s Settings) HasLegacyKdocs() bool {
	return s.KdocsAppID != "" && s.KdocsAppSecret != "" && s.KdocsFileToken != ""
}

// PushLog status values.
const (
	PushSuccess = "success"
	PushFailed  = "failed"
)

// ChannelResult is the outcome of pushing to one channel.
type ChannelResult struct {
	ChannelID string      `json:"channelId"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	Success   bool        `json:"success"`
	Response  string      `json:"response,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// PushLogDetails summarizes one run's fan-out.
type PushLogDetails struct {
	ThemeCount   int                      `json:"themeCount"`
	SourceCount  int                      `json:"sourceCount"`
	ChannelCount int                      `json:"channelCount"`
	SuccessCount int                      `json:"successCount"`
	Channels     map[string]ChannelResult `json:"channels,omitempty"`
}

// PushLog is one entry per digest run.
type PushLog struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Details   PushLogDetails `json:"details"`
}
