package model

import (
	"fmt"
	"net/url"
	"strings"
)

// ChannelType tags the PushChannel variant.
type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
	ChannelEmail   ChannelType = "email"
	ChannelKdocs   ChannelType = "kdocs"
)

// PushChannel is a delivery target. Exactly one variant's fields are
// meaningful, selected by Type.
type PushChannel struct {
	ID      string      `json:"id" yaml:"id"`
	Type    ChannelType `json:"type" yaml:"type"`
	Name    string      `json:"name" yaml:"name"`
	Enabled bool        `json:"enabled" yaml:"enabled"`

	WebhookURL string `json:"webhookUrl,omitempty" yaml:"webhook_url,omitempty"`

	EmailAddress string `json:"emailAddress,omitempty" yaml:"email_address,omitempty"`

	KdocsAppID     string `json:"kdocsAppId,omitempty" yaml:"kdocs_app_id,omitempty"`
	KdocsAppSecret string `json:"kdocsAppSecret,omitempty" yaml:"kdocs_app_secret,omitempty"`
	KdocsFileToken string `json:"kdocsFileToken,omitempty" yaml:"kdocs_file_token,omitempty"`
	KdocsDBSheetID string `json:"kdocsDBSheetId,omitempty" yaml:"kdocs_db_sheet_id,omitempty"`
}

// Validate checks that the fields required by the channel's variant are set.
func (c PushChannel) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("channel has no id")
	}
	switch c.Type {
	case ChannelWebhook:
		return validateHTTPURL(c.WebhookURL)
	case ChannelEmail:
		if !strings.Contains(c.EmailAddress, "@") {
			return fmt.Errorf("channel %s: invalid email address %q", c.ID, c.EmailAddress)
		}
	case ChannelKdocs:
		if c.KdocsAppID == "" || c.KdocsAppSecret == "" || c.KdocsFileToken == "" {
			return fmt.Errorf("channel %s: kdocs app id, secret and file token are required", c.ID)
		}
	default:
		return fmt.Errorf("channel %s: unknown type %q", c.ID, c.Type)
	}
	return nil
}

// ThemePushConfig routes one theme's digest to channels.
type ThemePushConfig struct {
	PrimaryChannelID    string   `json:"primaryChannelId" yaml:"primary_channel_id"`
	SecondaryChannelIDs []string `json:"secondaryChannelIds" yaml:"secondary_channel_ids"`
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url must be http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url has no host: %q", raw)
	}
	return nil
}
