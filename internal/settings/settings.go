// Package settings reads and writes per-user digest configuration in the
// key-value store.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/TobiSchelling/DailyDigest/internal/kv"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// DefaultPushLogRetention is how many push logs are kept per user.
const DefaultPushLogRetention = 50

const usersKey = "users"

func userKey(userID, name string) string {
	return "user:" + userID + ":" + name
}

// Repository is the typed view over the store.
type Repository struct {
	store     kv.Store
	retention int
}

// NewRepository creates a Repository. retention <= 0 uses the default.
func NewRepository(store kv.Store, retention int) *Repository {
	if retention <= 0 {
		retention = DefaultPushLogRetention
	}
	return &Repository{store: store, retention: retention}
}

// getJSON decodes key into v. found is false when the key is absent.
func (r *Repository) getJSON(ctx context.Context, key string, v any) (found bool, err error) {
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (r *Repository) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, string(b), 0); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// GetSettings returns nil without error when the user has no settings.
func (r *Repository) GetSettings(ctx context.Context, userID string) (*model.Settings, error) {
	var s model.Settings
	found, err := r.getJSON(ctx, userKey(userID, "settings"), &s)
	if err != nil || !found {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings for %s: %w", userID, err)
	}
	return &s, nil
}

// SaveSettings validates and stores settings.
func (r *Repository) SaveSettings(ctx context.Context, userID string, s *model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return r.setJSON(ctx, userKey(userID, "settings"), s)
}

// GetRSSSources returns the user's feed URLs.
func (r *Repository) GetRSSSources(ctx context.Context, userID string) ([]string, error) {
	var urls []string
	if _, err := r.getJSON(ctx, userKey(userID, "rss_sources"), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// SaveRSSSources replaces the user's feed URLs.
func (r *Repository) SaveRSSSources(ctx context.Context, userID string, urls []string) error {
	return r.setJSON(ctx, userKey(userID, "rss_sources"), urls)
}

// GetPushChannels returns the user's channels as stored. Channels are
// validated one at a time when dispatched, so a broken or draft entry never
// hides the others.
func (r *Repository) GetPushChannels(ctx context.Context, userID string) ([]model.PushChannel, error) {
	var channels []model.PushChannel
	if _, err := r.getJSON(ctx, userKey(userID, "push_channels"), &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// SavePushChannels validates the enabled channels and replaces the list.
// Disabled channels are kept as drafts.
func (r *Repository) SavePushChannels(ctx context.Context, userID string, channels []model.PushChannel) error {
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		if err := ch.Validate(); err != nil {
			return err
		}
	}
	return r.setJSON(ctx, userKey(userID, "push_channels"), channels)
}

// GetAllThemePushConfigs returns routing keyed by theme.
func (r *Repository) GetAllThemePushConfigs(ctx context.Context, userID string) (map[string]model.ThemePushConfig, error) {
	configs := make(map[string]model.ThemePushConfig)
	if _, err := r.getJSON(ctx, userKey(userID, "theme_push_configs"), &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// SaveThemePushConfigs replaces the user's routing.
func (r *Repository) SaveThemePushConfigs(ctx context.Context, userID string, configs map[string]model.ThemePushConfig) error {
	return r.setJSON(ctx, userKey(userID, "theme_push_configs"), configs)
}

// SavePushLog prepends log and trims the list to the retention limit.
func (r *Repository) SavePushLog(ctx context.Context, userID string, log model.PushLog) error {
	b, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encoding push log: %w", err)
	}
	key := userKey(userID, "push_logs")
	if _, err := r.store.LPush(ctx, key, string(b)); err != nil {
		return fmt.Errorf("saving push log: %w", err)
	}
	if err := r.store.LTrim(ctx, key, 0, r.retention-1); err != nil {
		return fmt.Errorf("trimming push logs: %w", err)
	}
	return nil
}

// GetPushLogs returns up to limit logs, newest first. limit <= 0 returns all.
func (r *Repository) GetPushLogs(ctx context.Context, userID string, limit int) ([]model.PushLog, error) {
	stop := -1
	if limit > 0 {
		stop = limit - 1
	}
	raw, err := r.store.LRange(ctx, userKey(userID, "push_logs"), 0, stop)
	if err != nil {
		return nil, fmt.Errorf("reading push logs: %w", err)
	}
	logs := make([]model.PushLog, 0, len(raw))
	for _, entry := range raw {
		var l model.PushLog
		if err := json.Unmarshal([]byte(entry), &l); err != nil {
			return nil, fmt.Errorf("decoding push log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// SaveLastReport stores the most recent report for preview.
func (r *Repository) SaveLastReport(ctx context.Context, userID string, report *model.DigestReport) error {
	return r.setJSON(ctx, userKey(userID, "last_report"), report)
}

// GetLastReport returns nil without error when no report exists.
func (r *Repository) GetLastReport(ctx context.Context, userID string) (*model.DigestReport, error) {
	var report model.DigestReport
	found, err := r.getJSON(ctx, userKey(userID, "last_report"), &report)
	if err != nil || !found {
		return nil, err
	}
	return &report, nil
}

// ListUsers returns registered user ids in sorted order.
func (r *Repository) ListUsers(ctx context.Context) ([]string, error) {
	var users []string
	if _, err := r.getJSON(ctx, usersKey, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AddUser registers userID for scheduled runs.
func (r *Repository) AddUser(ctx context.Context, userID string) error {
	users, err := r.ListUsers(ctx)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(users, userID)
	if i < len(users) && users[i] == userID {
		return nil
	}
	users = append(users, "")
	copy(users[i+1:], users[i:])
	users[i] = userID
	return r.setJSON(ctx, usersKey, users)
}
