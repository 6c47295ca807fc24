package gate

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/observability/metrics"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/phone"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/pkg/logging"
)

var tracer = otel.Tracer("techaura.internal.gate")

// Deps are the collaborators the gate consumes. Sessions, Orders, Cooldowns
// and Content are required; Logger and Metrics fall back to defaults.
type Deps struct {
	Sessions  SessionStore
	Orders    OrderLookup
	Cooldowns CooldownLookup
	Content   ContentValidator
	Logger    *logging.Logger
	Metrics   *metrics.GateMetrics
}

// Gate decides, for every candidate outbound message, whether it may be sent.
// One instance is constructed at process start and injected into the flow
// engine; it owns the rate/recency state exclusively and never persists it.
type Gate struct {
	cfg  Config
	deps Deps
	rate *rateState

	statsMu       sync.Mutex
	totalSent     uint64
	totalBlocked  uint64
	blockedByGate map[string]uint64

	clock func() time.Time
	sleep func(time.Duration)
}

// New constructs a gate. Collaborators are required; policy knobs with zero
// values are replaced by safe minimums.
func New(cfg Config, deps Deps) (*Gate, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("gate: session store is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("gate: order lookup is required")
	}
	if deps.Cooldowns == nil {
		return nil, fmt.Errorf("gate: cooldown lookup is required")
	}
	if deps.Content == nil {
		return nil, fmt.Errorf("gate: content validator is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if cfg.PerChatHourlyLimit <= 0 {
		cfg.PerChatHourlyLimit = DefaultConfig().PerChatHourlyLimit
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Millisecond
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Gate{
		cfg:           cfg,
		deps:          deps,
		rate:          newRateState(),
		blockedByGate: make(map[string]uint64),
		clock:         time.Now,
		sleep:         time.Sleep,
	}, nil
}

// Send runs the full policy pipeline for one candidate message and, when no
// gate objects, delivers it through dispatch. Policy blocks are reported in
// the result, never as errors; only a dispatch fault returns an error, and a
// failed dispatch leaves rate and stats state exactly as if the call never
// happened.
func (g *Gate) Send(ctx context.Context, phoneNumber, message string, octx OutboundContext, dispatch DispatchFunc) (SendResult, error) {
	ctx, span := tracer.Start(ctx, "gate.send")
	defer span.End()

	p := phone.NormalizeE164(phoneNumber)
	if p == "" {
		return SendResult{}, fmt.Errorf("gate: phone is required")
	}
	if dispatch == nil {
		return SendResult{}, fmt.Errorf("gate: dispatch is required")
	}
	octx.Phone = p
	if octx.MessageType == "" {
		octx.MessageType = MessageGeneral
	}
	if octx.Priority == "" {
		octx.Priority = PriorityNormal
	}
	span.SetAttributes(
		attribute.String("gate.message_type", string(octx.MessageType)),
		attribute.String("gate.priority", string(octx.Priority)),
	)

	decisionID := uuid.NewString()
	evalStart := time.Now()

	e := &sendEval{octx: octx, message: message, now: g.clock()}
	g.gather(ctx, e)

	// The shard lock covers the rate snapshot, the full pipeline evaluation,
	// and the reservation, so concurrent sends to one phone are linearized.
	// All collaborator I/O happened above, outside the lock.
	shard := g.rate.lock(p)
	e.chatCount, e.lastSend = shard.snapshot(p, e.now)

	var failures []gateFailure
	for _, c := range policyChecks {
		if blocked, detail := c.run(g, e); blocked {
			failures = append(failures, gateFailure{id: c.id, detail: detail})
		}
	}
	passed := len(failures) == 0
	if passed {
		shard.reserve(p, e.now)
	}
	shard.mu.Unlock()

	g.deps.Metrics.ObserveDecisionLatency(time.Since(evalStart).Seconds())

	if !passed {
		result := aggregateBlocked(failures)
		result.DecisionID = decisionID
		g.recordBlocked(result, octx)
		span.SetAttributes(attribute.StringSlice("gate.blocked_by", result.BlockedBy))
		g.deps.Logger.Info("outbound blocked",
			"decision_id", decisionID,
			"phone", p,
			"message_type", string(octx.MessageType),
			"blocked_by", result.BlockedBy,
			"reason", result.Reason,
		)
		return result, nil
	}

	g.rate.reserveGlobal(e.now)

	delay := g.randomDelay()
	g.sleep(delay)

	if err := dispatch(ctx, message); err != nil {
		// Treat as if no send occurred.
		shard.release(p, e.now)
		g.rate.releaseGlobal(e.now)
		g.deps.Logger.Error("dispatch failed",
			"decision_id", decisionID,
			"phone", p,
			"error", err,
		)
		return SendResult{DecisionID: decisionID}, err
	}

	g.recordSent(octx)
	if octx.MessageType == MessageFollowUp {
		if err := g.deps.Sessions.SetLastFollowUpAt(ctx, p, e.now); err != nil {
			g.deps.Logger.Warn("failed to record follow-up time",
				"decision_id", decisionID,
				"phone", p,
				"error", err,
			)
		}
	}
	g.deps.Logger.Info("outbound sent",
		"decision_id", decisionID,
		"phone", p,
		"message_type", string(octx.MessageType),
		"delay_ms", delay.Milliseconds(),
	)
	return SendResult{Sent: true, DelayApplied: delay, DecisionID: decisionID}, nil
}

// gather fetches every collaborator input the checks need. Lookup errors are
// recorded per collaborator; the checks decide whether each one fails open or
// closed.
func (g *Gate) gather(ctx context.Context, e *sendEval) {
	e.sess, e.sessErr = g.deps.Sessions.GetSession(ctx, e.octx.Phone)
	if e.sessErr != nil {
		g.deps.Logger.Error("session lookup failed", "phone", e.octx.Phone, "error", e.sessErr)
	}

	if e.octx.MessageType != MessageOrder && e.octx.MessageType != MessageSystem {
		e.orderActive, e.orderErr = g.deps.Orders.HasActiveOrConfirmedOrder(ctx, e.octx.Phone)
		if e.orderErr != nil {
			g.deps.Logger.Error("order lookup failed", "phone", e.octx.Phone, "error", e.orderErr)
		}
	}

	e.cooldown, e.cooldownErr = g.deps.Cooldowns.IsInCooldown(ctx, e.octx.Phone)
	if e.cooldownErr != nil {
		g.deps.Logger.Warn("cooldown lookup failed", "phone", e.octx.Phone, "error", e.cooldownErr)
	}

	e.content, e.contentErr = g.deps.Content.ValidateOutbound(ctx, e.message, e.octx)
	if e.contentErr != nil {
		g.deps.Logger.Warn("content validation failed", "phone", e.octx.Phone, "error", e.contentErr)
	}
}

// aggregateBlocked folds every failing check into one result. BlockedBy keeps
// pipeline order with duplicates removed; the reason lists every detail.
func aggregateBlocked(failures []gateFailure) SendResult {
	seen := make(map[string]struct{}, len(failures))
	var ids []string
	details := make([]string, 0, len(failures))
	for _, f := range failures {
		if _, ok := seen[f.id]; !ok {
			seen[f.id] = struct{}{}
			ids = append(ids, f.id)
		}
		details = append(details, f.detail)
	}
	return SendResult{
		BlockedBy: ids,
		Reason:    "Blocked by: " + strings.Join(details, "; "),
	}
}

func (g *Gate) randomDelay() time.Duration {
	spread := g.cfg.MaxDelay - g.cfg.MinDelay
	if spread <= 0 {
		return g.cfg.MinDelay
	}
	return g.cfg.MinDelay + time.Duration(rand.Int63n(int64(spread)+1))
}

func (g *Gate) recordSent(octx OutboundContext) {
	g.statsMu.Lock()
	g.totalSent++
	g.statsMu.Unlock()
	g.deps.Metrics.ObserveDecision("sent", string(octx.MessageType))
}

func (g *Gate) recordBlocked(result SendResult, octx OutboundContext) {
	g.statsMu.Lock()
	g.totalBlocked++
	for _, id := range result.BlockedBy {
		g.blockedByGate[id]++
	}
	g.statsMu.Unlock()
	g.deps.Metrics.ObserveDecision("blocked", string(octx.MessageType))
	for _, id := range result.BlockedBy {
		g.deps.Metrics.ObserveBlockedGate(id)
	}
}

// GetStats returns a point-in-time snapshot of the gate's counters.
func (g *Gate) GetStats() Stats {
	g.statsMu.Lock()
	byGate := make(map[string]uint64, len(g.blockedByGate))
	for k, v := range g.blockedByGate {
		byGate[k] = v
	}
	stats := Stats{
		TotalSent:     g.totalSent,
		TotalBlocked:  g.totalBlocked,
		BlockedByGate: byGate,
	}
	g.statsMu.Unlock()
	stats.GlobalHourlyCount = g.rate.globalCount(g.clock())
	return stats
}

// ResetStats zeroes the counters. Rate windows and session data are untouched.
func (g *Gate) ResetStats() {
	g.statsMu.Lock()
	g.totalSent = 0
	g.totalBlocked = 0
	g.blockedByGate = make(map[string]uint64)
	g.statsMu.Unlock()
}

// ClearRateLimits wipes every per-phone window and the global window. Used for
// operational resets and test isolation; session data is untouched.
func (g *Gate) ClearRateLimits() {
	g.rate.clear()
}
