package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/phone"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/pkg/logging"
)

const (
	fieldContactStatus   = "contact_status"
	fieldStage           = "stage"
	fieldTags            = "tags"
	fieldLastInteraction = "last_interaction"
	fieldLastFollowUpAt  = "last_follow_up_at"
)

// RedisStore keeps one hash per phone. Sessions are created lazily: reading a
// phone that has no hash yields a fresh ACTIVE session.
type RedisStore struct {
	redis  *redis.Client
	logger *logging.Logger
	ttl    time.Duration
}

// NewRedisStore creates a session store on the given Redis client.
// ttl <= 0 keeps sessions forever.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{redis: client, logger: logger, ttl: ttl}
}

func sessionKey(p string) string {
	return "session:" + phone.NormalizeE164(p)
}

// GetSession loads the session for a phone, returning a default ACTIVE record
// when none is stored.
func (s *RedisStore) GetSession(ctx context.Context, p string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, sessionKey(p)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", p, err)
	}
	sess := newSession(phone.NormalizeE164(p))
	if len(fields) == 0 {
		return sess, nil
	}
	if v := fields[fieldContactStatus]; v != "" {
		sess.ContactStatus = ContactStatus(v)
	}
	sess.Stage = fields[fieldStage]
	if v := fields[fieldTags]; v != "" {
		sess.Tags = strings.Split(v, ",")
	}
	sess.LastInteraction = parseTimeField(fields[fieldLastInteraction])
	sess.LastFollowUpAt = parseTimeField(fields[fieldLastFollowUpAt])
	return sess, nil
}

// SaveSession writes the whole record.
func (s *RedisStore) SaveSession(ctx context.Context, sess *Session) error {
	if sess == nil || sess.Phone == "" {
		return fmt.Errorf("session: save requires a phone")
	}
	key := sessionKey(sess.Phone)
	values := map[string]any{
		fieldContactStatus: string(sess.ContactStatus),
		fieldStage:         sess.Stage,
		fieldTags:          strings.Join(sess.Tags, ","),
	}
	if !sess.LastInteraction.IsZero() {
		values[fieldLastInteraction] = sess.LastInteraction.UTC().Format(time.RFC3339Nano)
	}
	if !sess.LastFollowUpAt.IsZero() {
		values[fieldLastFollowUpAt] = sess.LastFollowUpAt.UTC().Format(time.RFC3339Nano)
	}
	if err := s.redis.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", sess.Phone, err)
	}
	s.expire(ctx, key)
	return nil
}

// SetLastFollowUpAt records the moment an outbound follow-up was delivered.
func (s *RedisStore) SetLastFollowUpAt(ctx context.Context, p string, at time.Time) error {
	return s.setTimeField(ctx, p, fieldLastFollowUpAt, at)
}

// TouchInteraction records inbound activity from the user.
func (s *RedisStore) TouchInteraction(ctx context.Context, p string, at time.Time) error {
	return s.setTimeField(ctx, p, fieldLastInteraction, at)
}

// SetContactStatus flips the reachability flag, e.g. after a STOP keyword.
func (s *RedisStore) SetContactStatus(ctx context.Context, p string, status ContactStatus) error {
	key := sessionKey(p)
	if err := s.redis.HSet(ctx, key, fieldContactStatus, string(status)).Err(); err != nil {
		return fmt.Errorf("session: set contact status %s: %w", p, err)
	}
	s.expire(ctx, key)
	return nil
}

// AddTag appends a tag when not already present.
func (s *RedisStore) AddTag(ctx context.Context, p, tag string) error {
	sess, err := s.GetSession(ctx, p)
	if err != nil {
		return err
	}
	if sess.HasTag(tag) {
		return nil
	}
	sess.Tags = append(sess.Tags, tag)
	return s.SaveSession(ctx, sess)
}

func (s *RedisStore) setTimeField(ctx context.Context, p, field string, at time.Time) error {
	key := sessionKey(p)
	if err := s.redis.HSet(ctx, key, field, at.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("session: set %s for %s: %w", field, p, err)
	}
	s.expire(ctx, key)
	return nil
}

func (s *RedisStore) expire(ctx context.Context, key string) {
	if s.ttl <= 0 {
		return
	}
	if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.logger.Warn("session expire failed", "key", key, "error", err)
	}
}

func parseTimeField(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
