// Package cooldown tracks per-phone no-contact windows, kept separate from the
// gate's own rate state so operators and the flow engine can impose quiet
// periods of their own (complaints, escalations, delivery failures).
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/phone"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/pkg/logging"
)

// Status reports whether a phone is inside a cooldown window.
type Status struct {
	InCooldown bool
	Until      time.Time
}

// Store keeps cooldown windows as Redis keys with TTLs.
type Store struct {
	redis  *redis.Client
	logger *logging.Logger
}

// NewStore creates a cooldown store on the given Redis client.
func NewStore(client *redis.Client, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{redis: client, logger: logger}
}

func cooldownKey(p string) string {
	return "cooldown:" + phone.NormalizeE164(p)
}

// Start places the phone in cooldown for the given duration, extending any
// existing window only when the new one ends later.
func (s *Store) Start(ctx context.Context, p string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("cooldown: duration must be positive")
	}
	key := cooldownKey(p)
	ttl, err := s.redis.TTL(ctx, key).Result()
	if err == nil && ttl > d {
		return nil
	}
	if err := s.redis.Set(ctx, key, "1", d).Err(); err != nil {
		return fmt.Errorf("cooldown: start %s: %w", p, err)
	}
	return nil
}

// IsInCooldown reports whether the phone is currently inside a window.
func (s *Store) IsInCooldown(ctx context.Context, p string) (Status, error) {
	key := cooldownKey(p)
	ttl, err := s.redis.TTL(ctx, key).Result()
	if err != nil {
		return Status{}, fmt.Errorf("cooldown: check %s: %w", p, err)
	}
	if ttl <= 0 {
		// -2 key missing, -1 no expiry (should not happen for our keys).
		return Status{}, nil
	}
	return Status{InCooldown: true, Until: time.Now().Add(ttl)}, nil
}

// Clear removes any cooldown window for the phone.
func (s *Store) Clear(ctx context.Context, p string) error {
	if err := s.redis.Del(ctx, cooldownKey(p)).Err(); err != nil {
		return fmt.Errorf("cooldown: clear %s: %w", p, err)
	}
	return nil
}
