// Package gate is the single path through which the bot contacts a user
// outside of a direct reply. Every candidate outbound message runs the full
// policy pipeline; messages are dispatched only when no gate objects.
package gate

import (
	"context"
	"time"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/cooldown"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/session"
)

// MessageType classifies a candidate outbound message.
type MessageType string

const (
	MessageGeneral  MessageType = "general"
	MessageFollowUp MessageType = "followup"
	MessageOrder    MessageType = "order"
	MessageSystem   MessageType = "system"
)

// Priority affects the active-user quiet period only.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Gate identifiers reported in SendResult.BlockedBy.
const (
	GateNoReach       = "no-reach"
	GateOrderStatus   = "order-status"
	GateCooldown      = "cooldown"
	GateRecency       = "recency"
	GateTimeWindow    = "time-window"
	GateRateLimit     = "rate-limit"
	GateContentPolicy = "content-policy"
)

// OutboundContext describes a candidate message. Immutable per call.
type OutboundContext struct {
	Phone            string
	MessageType      MessageType
	Stage            string
	Status           string
	Priority         Priority
	BypassTimeWindow bool
	BypassRateLimit  bool
}

// SendResult reports the gate's decision. Policy blocks are data, not errors.
type SendResult struct {
	Sent         bool
	BlockedBy    []string
	Reason       string
	DelayApplied time.Duration
	DecisionID   string
}

// Stats is a read-only snapshot of the gate's counters.
type Stats struct {
	TotalSent         uint64
	TotalBlocked      uint64
	BlockedByGate     map[string]uint64
	GlobalHourlyCount int
}

// DispatchFunc delivers the message to the chat channel. Supplied by the
// caller per send; the gate has no transport dependency of its own.
type DispatchFunc func(ctx context.Context, message string) error

// SessionStore is the slice of the session collaborator the gate needs.
type SessionStore interface {
	GetSession(ctx context.Context, phone string) (*session.Session, error)
	SetLastFollowUpAt(ctx context.Context, phone string, at time.Time) error
}

// OrderLookup answers whether the phone has an order the bot must not
// contradict with marketing copy.
type OrderLookup interface {
	HasActiveOrConfirmedOrder(ctx context.Context, phone string) (bool, error)
}

// CooldownLookup reports externally imposed no-contact windows.
type CooldownLookup interface {
	IsInCooldown(ctx context.Context, phone string) (cooldown.Status, error)
}

// ValidationResult is the content validator's verdict on a message.
type ValidationResult struct {
	Allowed bool
	Reason  string
}

// ContentValidator inspects message copy against business rules.
type ContentValidator interface {
	ValidateOutbound(ctx context.Context, message string, octx OutboundContext) (ValidationResult, error)
}
