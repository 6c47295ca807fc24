package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/cooldown"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/session"
)

// sendEval carries everything the policy checks read: the candidate message,
// the collaborator lookups (fetched once, before the checks run), and the
// phone's rate snapshot.
type sendEval struct {
	octx    OutboundContext
	message string
	now     time.Time

	sess    *session.Session
	sessErr error

	orderActive bool
	orderErr    error

	cooldown    cooldown.Status
	cooldownErr error

	content    ValidationResult
	contentErr error

	// Rate snapshot, taken under the phone's shard lock.
	chatCount int
	lastSend  time.Time
}

// gateFailure is one failing check's contribution to the aggregate result.
type gateFailure struct {
	id     string
	detail string
}

// policyCheck pairs a gate identifier with its predicate. Checks never
// short-circuit: all of them run on every call so operators see every reason
// a message was suppressed.
type policyCheck struct {
	id  string
	run func(*Gate, *sendEval) (blocked bool, detail string)
}

// Recency and rate-limit each have two sub-conditions; they share a gate
// identifier and BlockedBy deduplicates.
var policyChecks = []policyCheck{
	{GateNoReach, (*Gate).checkNoReach},
	{GateOrderStatus, (*Gate).checkOrderStatus},
	{GateCooldown, (*Gate).checkCooldown},
	{GateRecency, (*Gate).checkFollowUpSpacing},
	{GateRecency, (*Gate).checkActiveQuiet},
	{GateTimeWindow, (*Gate).checkTimeWindow},
	{GateRateLimit, (*Gate).checkHourlyCap},
	{GateRateLimit, (*Gate).checkMinInterval},
	{GateContentPolicy, (*Gate).checkContent},
}

// checkNoReach blocks opted-out and blacklisted users. Guards a contractual
// constraint, so a session lookup failure fails closed.
func (g *Gate) checkNoReach(e *sendEval) (bool, string) {
	if e.sessErr != nil {
		return true, "session lookup failed, cannot verify reachability"
	}
	var parts []string
	if e.sess.OptedOut() {
		parts = append(parts, "user has opted out")
	}
	if e.sess.HasTag(session.TagBlacklist) {
		parts = append(parts, "user is blacklisted")
	}
	if len(parts) == 0 {
		return false, ""
	}
	return true, strings.Join(parts, " and ")
}

// checkOrderStatus suppresses non-order traffic while an order is in flight.
// Order and system messages always pass. Fails closed on lookup error.
func (g *Gate) checkOrderStatus(e *sendEval) (bool, string) {
	if e.octx.MessageType == MessageOrder || e.octx.MessageType == MessageSystem {
		return false, ""
	}
	if e.orderErr != nil {
		return true, "order lookup failed, cannot verify order status"
	}
	if e.orderActive {
		return true, "active or confirmed order exists, only order/system messages allowed"
	}
	return false, ""
}

func (g *Gate) checkCooldown(e *sendEval) (bool, string) {
	if e.cooldownErr != nil {
		if g.cfg.FailOpenOnCooldownError {
			return false, ""
		}
		return true, "cooldown lookup failed, failing closed"
	}
	if e.cooldown.InCooldown {
		return true, fmt.Sprintf("phone is in cooldown until %s", e.cooldown.Until.Format(time.RFC3339))
	}
	return false, ""
}

func (g *Gate) checkFollowUpSpacing(e *sendEval) (bool, string) {
	if e.octx.MessageType != MessageFollowUp || e.sess == nil {
		return false, ""
	}
	if e.sess.LastFollowUpAt.IsZero() {
		return false, ""
	}
	if e.now.Sub(e.sess.LastFollowUpAt) < g.cfg.MinFollowUpGap {
		return true, fmt.Sprintf("Too soon since last follow-up (minimum gap %s)", g.cfg.MinFollowUpGap)
	}
	return false, ""
}

func (g *Gate) checkActiveQuiet(e *sendEval) (bool, string) {
	if e.octx.Priority == PriorityHigh || e.sess == nil {
		return false, ""
	}
	if e.sess.LastInteraction.IsZero() {
		return false, ""
	}
	if e.now.Sub(e.sess.LastInteraction) < g.cfg.MinActiveGap {
		return true, "user was recently active, deferring non-urgent message"
	}
	return false, ""
}

func (g *Gate) checkTimeWindow(e *sendEval) (bool, string) {
	if e.octx.BypassTimeWindow {
		return false, ""
	}
	if !g.cfg.SendWindow.Contains(e.now) {
		return true, fmt.Sprintf("outside allowed send window (%s)", g.cfg.SendWindow)
	}
	return false, ""
}

func (g *Gate) checkHourlyCap(e *sendEval) (bool, string) {
	if e.octx.BypassRateLimit {
		return false, ""
	}
	if e.chatCount >= g.cfg.PerChatHourlyLimit {
		return true, fmt.Sprintf("Per-chat hourly limit reached (%d/hour)", g.cfg.PerChatHourlyLimit)
	}
	return false, ""
}

func (g *Gate) checkMinInterval(e *sendEval) (bool, string) {
	if e.octx.BypassRateLimit || e.lastSend.IsZero() {
		return false, ""
	}
	if e.now.Sub(e.lastSend) < g.cfg.MinSendInterval {
		return true, "Too soon since last message to this phone"
	}
	return false, ""
}

func (g *Gate) checkContent(e *sendEval) (bool, string) {
	if e.contentErr != nil {
		if g.cfg.FailOpenOnContentError {
			return false, ""
		}
		return true, "content validation failed, failing closed"
	}
	if !e.content.Allowed {
		detail := e.content.Reason
		if detail == "" {
			detail = "message rejected by content policy"
		}
		return true, "content policy violation: " + detail
	}
	return false, ""
}
