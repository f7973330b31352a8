package settings

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// UserSeed is one user's full configuration in an import file.
type UserSeed struct {
	ID               string                           `yaml:"id"`
	Settings         model.Settings                   `yaml:"settings"`
	RSSSources       []string                         `yaml:"rss_sources"`
	PushChannels     []model.PushChannel              `yaml:"push_channels"`
	ThemePushConfigs map[string]model.ThemePushConfig `yaml:"theme_push_configs"`
}

// ImportFile is the YAML document accepted by Import.
type ImportFile struct {
	Users []UserSeed `yaml:"users"`
}

// URLValidator rejects URLs that must not be stored.
type URLValidator func(string) error

// ImportPath reads an import file from disk.
func (r *Repository) ImportPath(ctx context.Context, path string, validate URLValidator) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.Import(ctx, f, validate)
}

// Import decodes a YAML document and stores every user in it. All users are
// validated before anything is written. validate may be nil.
func (r *Repository) Import(ctx context.Context, in io.Reader, validate URLValidator) ([]string, error) {
	var doc ImportFile
	if err := yaml.NewDecoder(in).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}

	for _, u := range doc.Users {
		if err := u.validate(validate); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(doc.Users))
	for _, u := range doc.Users {
		if err := r.SaveSettings(ctx, u.ID, &u.Settings); err != nil {
			return ids, err
		}
		if err := r.SaveRSSSources(ctx, u.ID, u.RSSSources); err != nil {
			return ids, err
		}
		if err := r.SavePushChannels(ctx, u.ID, u.PushChannels); err != nil {
			return ids, err
		}
		if err := r.SaveThemePushConfigs(ctx, u.ID, u.ThemePushConfigs); err != nil {
			return ids, err
		}
		if err := r.AddUser(ctx, u.ID); err != nil {
			return ids, err
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (u UserSeed) validate(validateURL URLValidator) error {
	if u.ID == "" {
		return fmt.Errorf("user without id")
	}
	if err := u.Settings.Validate(); err != nil {
		return fmt.Errorf("user %s: %w", u.ID, err)
	}
	for _, ch := range u.PushChannels {
		if !ch.Enabled {
			continue
		}
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	if validateURL == nil {
		return nil
	}
	for _, src := range u.RSSSources {
		if err := validateURL(src); err != nil {
			return fmt.Errorf("user %s: feed %s: %w", u.ID, src, err)
		}
	}
	for _, ch := range u.PushChannels {
		if ch.Type == model.ChannelWebhook {
			if err := validateURL(ch.WebhookURL); err != nil {
				return fmt.Errorf("user %s: channel %s: %w", u.ID, ch.ID, err)
			}
		}
	}
	if u.Settings.WebhookURL != "" {
		if err := validateURL(u.Settings.WebhookURL); err != nil {
			return fmt.Errorf("user %s: legacy webhook: %w", u.ID, err)
		}
	}
	return nil
}
