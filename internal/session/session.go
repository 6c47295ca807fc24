// Package session tracks per-phone conversation state: contact status, funnel
// stage, tags, and the interaction timestamps the outbound gate reads.
package session

import (
	"context"
	"time"
)

// ContactStatus describes whether a phone may still be contacted.
type ContactStatus string

const (
	// ContactActive means the user has not opted out of messaging.
	ContactActive ContactStatus = "ACTIVE"
	// ContactOptOut means the user asked to stop receiving messages.
	ContactOptOut ContactStatus = "OPT_OUT"
)

// TagBlacklist marks a phone that must never be contacted regardless of status.
const TagBlacklist = "blacklist"

// Session is the per-phone conversation record.
type Session struct {
	Phone           string
	ContactStatus   ContactStatus
	Stage           string
	Tags            []string
	LastInteraction time.Time
	LastFollowUpAt  time.Time
}

// HasTag reports whether the session carries the given tag.
func (s *Session) HasTag(tag string) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// OptedOut reports whether the user may no longer be contacted.
func (s *Session) OptedOut() bool {
	return s != nil && s.ContactStatus == ContactOptOut
}

// Store persists sessions. Implementations return a fresh ACTIVE session for
// phones that have never been seen; callers never observe a nil session
// without an error.
type Store interface {
	GetSession(ctx context.Context, phone string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	SetLastFollowUpAt(ctx context.Context, phone string, at time.Time) error
	SetContactStatus(ctx context.Context, phone string, status ContactStatus) error
	AddTag(ctx context.Context, phone, tag string) error
	TouchInteraction(ctx context.Context, phone string, at time.Time) error
}

// newSession returns the default record for a phone with no stored state.
func newSession(phone string) *Session {
	return &Session{
		Phone:         phone,
		ContactStatus: ContactActive,
	}
}
