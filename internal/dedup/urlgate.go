package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/TobiSchelling/DailyDigest/internal/kv"
	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// SeenTTL is how long a delivered link stays claimed.
const SeenTTL = 7 * 24 * time.Hour

// SeenKey is the store key recording that userID has received link.
// Every item without a link maps to the same key for a given user.
func SeenKey(userID, link string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + link))
	return "seen:" + hex.EncodeToString(sum[:])
}

// URLGate drops items whose link was already delivered to the user.
type URLGate struct {
	store kv.Store
	ttl   time.Duration
}

// NewURLGate creates a gate over store. A non-positive ttl uses SeenTTL.
func NewURLGate(store kv.Store, ttl time.Duration) *URLGate {
	if ttl <= 0 {
		ttl = SeenTTL
	}
	return &URLGate{store: store, ttl: ttl}
}

// FilterNew claims every item's link in one batch and returns the items
// whose claim succeeded. Claims are not released if the run later fails.
func (g *URLGate) FilterNew(ctx context.Context, userID string, items []model.RawItem) ([]model.RawItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = SeenKey(userID, item.Link)
	}

	claimed, err := g.store.SetNX(ctx, keys, "1", g.ttl)
	if err != nil {
		return nil, fmt.Errorf("claiming seen links: %w", err)
	}

	var fresh []model.RawItem
	for i, ok := range claimed {
		if ok {
			fresh = append(fresh, items[i])
		}
	}
	return fresh, nil
}
