package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/cooldown"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/session"
)

// testNow is a weekday noon UTC, inside the default send window.
var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*session.Session
	err       error
	followUps map[string]time.Time
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions:  make(map[string]*session.Session),
		followUps: make(map[string]time.Time),
	}
}

func (f *fakeSessions) GetSession(_ context.Context, phone string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[phone]; ok {
		copied := *s
		return &copied, nil
	}
	return &session.Session{Phone: phone, ContactStatus: session.ContactActive}, nil
}

func (f *fakeSessions) SetLastFollowUpAt(_ context.Context, phone string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUps[phone] = at
	return nil
}

func (f *fakeSessions) set(s *session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Phone] = s
}

type fakeOrders struct {
	active bool
	err    error
	calls  atomic.Int32
}

func (f *fakeOrders) HasActiveOrConfirmedOrder(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return f.active, f.err
}

type fakeCooldowns struct {
	status cooldown.Status
	err    error
}

func (f *fakeCooldowns) IsInCooldown(context.Context, string) (cooldown.Status, error) {
	return f.status, f.err
}

type fakeContent struct {
	result ValidationResult
	err    error
}

func (f *fakeContent) ValidateOutbound(context.Context, string, OutboundContext) (ValidationResult, error) {
	return f.result, f.err
}

type testEnv struct {
	gate      *Gate
	sessions  *fakeSessions
	orders    *fakeOrders
	cooldowns *fakeCooldowns
	content   *fakeContent
	now       time.Time
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SendWindow = MustParseSendWindow("08:00", "21:00", "UTC")
	cfg.MinDelay = time.Microsecond
	cfg.MaxDelay = time.Microsecond
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		sessions:  newFakeSessions(),
		orders:    &fakeOrders{},
		cooldowns: &fakeCooldowns{},
		content:   &fakeContent{result: ValidationResult{Allowed: true}},
		now:       testNow,
	}
	g, err := New(cfg, Deps{
		Sessions:  env.sessions,
		Orders:    env.orders,
		Cooldowns: env.cooldowns,
		Content:   env.content,
	})
	require.NoError(t, err)
	g.clock = func() time.Time { return env.now }
	g.sleep = func(time.Duration) {}
	env.gate = g
	return env
}

func (e *testEnv) send(t *testing.T, phone string, octx OutboundContext) SendResult {
	t.Helper()
	result, err := e.gate.Send(context.Background(), phone, "hola", octx, noopDispatch)
	require.NoError(t, err)
	return result
}

func noopDispatch(context.Context, string) error { return nil }

func TestSendOptedOutAlwaysBlocked(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.set(&session.Session{
		Phone:         "+573001112233",
		ContactStatus: session.ContactOptOut,
	})

	for _, mt := range []MessageType{MessageGeneral, MessageFollowUp, MessageOrder, MessageSystem} {
		result := env.send(t, "+573001112233", OutboundContext{MessageType: mt, BypassRateLimit: true})
		assert.False(t, result.Sent, "message type %s", mt)
		assert.Contains(t, result.BlockedBy, GateNoReach)
		assert.Contains(t, result.Reason, "opted out")
	}
}

func TestSendBlacklistedAlwaysBlocked(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.set(&session.Session{
		Phone:         "+573001112233",
		ContactStatus: session.ContactActive,
		Tags:          []string{session.TagBlacklist},
	})

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageOrder, Priority: PriorityHigh})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateNoReach)
	assert.Contains(t, result.Reason, "blacklisted")
}

func TestOrderMessagesBypassOrderStatusGate(t *testing.T) {
	env := newTestEnv(t)
	env.orders.active = true

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageOrder})
	assert.True(t, result.Sent)

	result = env.send(t, "+573001112234", OutboundContext{MessageType: MessageSystem})
	assert.True(t, result.Sent)

	result = env.send(t, "+573001112235", OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateOrderStatus)
}

func TestPerChatHourlyLimit(t *testing.T) {
	env := newTestEnv(t)
	phone := "+573001112233"

	// Ten sends with enough spacing for the min-interval check all succeed.
	for i := 0; i < 10; i++ {
		env.now = testNow.Add(time.Duration(i) * 4 * time.Minute)
		result := env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
		require.True(t, result.Sent, "send %d should pass", i+1)
	}

	// The 11th inside the same rolling hour is over the cap.
	env.now = testNow.Add(41 * time.Minute)
	result := env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateRateLimit)
	assert.Contains(t, result.Reason, "Per-chat hourly limit")

	// Once the oldest send leaves the trailing hour, capacity returns.
	env.now = testNow.Add(62 * time.Minute)
	result = env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
	assert.True(t, result.Sent)
}

func TestMinSendInterval(t *testing.T) {
	env := newTestEnv(t)
	phone := "+573001112233"

	result := env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
	require.True(t, result.Sent)

	env.now = env.now.Add(2 * time.Second)
	result = env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateRateLimit)
	assert.Contains(t, result.Reason, "Too soon since last message")
}

func TestBypassRateLimit(t *testing.T) {
	env := newTestEnv(t)
	phone := "+573001112233"

	for i := 0; i < 15; i++ {
		result := env.send(t, phone, OutboundContext{MessageType: MessageGeneral, BypassRateLimit: true})
		require.True(t, result.Sent, "bypassed send %d", i+1)
	}
}

func TestFollowUpSpacing(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.set(&session.Session{
		Phone:          "+573001112233",
		ContactStatus:  session.ContactActive,
		LastFollowUpAt: testNow.Add(-time.Hour),
	})

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageFollowUp})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateRecency)
	assert.Contains(t, result.Reason, "Too soon since last follow-up")

	env.sessions.set(&session.Session{
		Phone:          "+573001112234",
		ContactStatus:  session.ContactActive,
		LastFollowUpAt: testNow.Add(-48 * time.Hour),
	})
	result = env.send(t, "+573001112234", OutboundContext{MessageType: MessageFollowUp})
	assert.True(t, result.Sent)
}

func TestActiveUserQuietPeriod(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.set(&session.Session{
		Phone:           "+573001112233",
		ContactStatus:   session.ContactActive,
		LastInteraction: testNow.Add(-30 * time.Minute),
	})

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral, Priority: PriorityHigh})
	assert.True(t, result.Sent, "high priority bypasses the quiet period")

	env.now = env.now.Add(time.Minute)
	result = env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral, Priority: PriorityNormal})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateRecency)
	assert.Contains(t, result.Reason, "recently active")
}

func TestTimeWindowAndBypass(t *testing.T) {
	env := newTestEnv(t)
	env.now = time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateTimeWindow)

	result = env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral, BypassTimeWindow: true})
	assert.True(t, result.Sent)
}

func TestCooldownBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.cooldowns.status = cooldown.Status{InCooldown: true, Until: testNow.Add(time.Hour)}

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateCooldown)
	assert.Contains(t, result.Reason, "cooldown")
}

func TestContentPolicyBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.content.result = ValidationResult{Allowed: false, Reason: "urgency copy (last chance)"}

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral, Status: "confirmed"})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateContentPolicy)
	assert.Contains(t, result.Reason, "urgency copy")
}

func TestMultipleGatesAggregate(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.set(&session.Session{
		Phone:          "+573001112233",
		ContactStatus:  session.ContactOptOut,
		LastFollowUpAt: testNow.Add(-time.Hour),
	})
	env.cooldowns.status = cooldown.Status{InCooldown: true, Until: testNow.Add(time.Hour)}

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageFollowUp})
	assert.False(t, result.Sent)
	assert.Greater(t, len(result.BlockedBy), 1)
	assert.True(t, strings.HasPrefix(result.Reason, "Blocked by: "), "reason %q", result.Reason)
	assert.Contains(t, result.BlockedBy, GateNoReach)
	assert.Contains(t, result.BlockedBy, GateCooldown)
	assert.Contains(t, result.BlockedBy, GateRecency)
}

func TestChecksDoNotShortCircuit(t *testing.T) {
	env := newTestEnv(t)
	// Even with the user opted out, the order lookup still runs: every check
	// is evaluated on every call.
	env.sessions.set(&session.Session{
		Phone:         "+573001112233",
		ContactStatus: session.ContactOptOut,
	})

	env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.Equal(t, int32(1), env.orders.calls.Load())
}

func TestSessionLookupErrorFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.err = errors.New("redis down")

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateNoReach)
}

func TestOrderLookupErrorFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.orders.err = errors.New("backend timeout")

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateOrderStatus)

	// Order messages never consult the order lookup, so they still go out.
	result = env.send(t, "+573001112234", OutboundContext{MessageType: MessageOrder})
	assert.True(t, result.Sent)
}

func TestCooldownLookupErrorPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.cooldowns.err = errors.New("redis down")
	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.True(t, result.Sent, "cooldown errors fail open by default")

	env = newTestEnv(t, func(cfg *Config) { cfg.FailOpenOnCooldownError = false })
	env.cooldowns.err = errors.New("redis down")
	result = env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	assert.False(t, result.Sent)
	assert.Contains(t, result.BlockedBy, GateCooldown)
}

func TestDispatchErrorPropagatesWithoutStateChange(t *testing.T) {
	env := newTestEnv(t)
	phone := "+573001112233"
	dispatchErr := errors.New("channel unavailable")

	_, err := env.gate.Send(context.Background(), phone, "hola", OutboundContext{MessageType: MessageGeneral},
		func(context.Context, string) error { return dispatchErr })
	require.ErrorIs(t, err, dispatchErr)

	stats := env.gate.GetStats()
	assert.Zero(t, stats.TotalSent)
	assert.Zero(t, stats.GlobalHourlyCount)

	// The reservation was rolled back: an immediate retry is not throttled
	// by the min-interval check.
	result := env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
	assert.True(t, result.Sent)
}

func TestFollowUpRecordsLastFollowUpAt(t *testing.T) {
	env := newTestEnv(t)

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageFollowUp})
	require.True(t, result.Sent)
	assert.Equal(t, testNow, env.sessions.followUps["+573001112233"])

	// Non-follow-ups never touch the session's follow-up timestamp.
	result = env.send(t, "+573001112234", OutboundContext{MessageType: MessageGeneral})
	require.True(t, result.Sent)
	_, ok := env.sessions.followUps["+573001112234"]
	assert.False(t, ok)
}

func TestDelayAppliedOnSuccess(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MinDelay = 500 * time.Millisecond
		cfg.MaxDelay = 1500 * time.Millisecond
	})
	var slept time.Duration
	env.gate.sleep = func(d time.Duration) { slept = d }

	result := env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	require.True(t, result.Sent)
	assert.Equal(t, result.DelayApplied, slept)
	assert.GreaterOrEqual(t, result.DelayApplied, 500*time.Millisecond)
	assert.LessOrEqual(t, result.DelayApplied, 1500*time.Millisecond)
}

func TestStatsAndReset(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.set(&session.Session{Phone: "+573001112233", ContactStatus: session.ContactOptOut})

	env.send(t, "+573001112233", OutboundContext{MessageType: MessageGeneral})
	env.send(t, "+573001112234", OutboundContext{MessageType: MessageFollowUp})

	stats := env.gate.GetStats()
	assert.Equal(t, uint64(1), stats.TotalSent)
	assert.Equal(t, uint64(1), stats.TotalBlocked)
	assert.Equal(t, uint64(1), stats.BlockedByGate[GateNoReach])
	assert.Equal(t, 1, stats.GlobalHourlyCount)

	followUpBefore := env.sessions.followUps["+573001112234"]
	env.gate.ResetStats()

	stats = env.gate.GetStats()
	assert.Zero(t, stats.TotalSent)
	assert.Zero(t, stats.TotalBlocked)
	assert.Empty(t, stats.BlockedByGate)
	// Session timestamps survive a stats reset.
	assert.Equal(t, followUpBefore, env.sessions.followUps["+573001112234"])
}

func TestClearRateLimitsRestoresCapacity(t *testing.T) {
	env := newTestEnv(t)
	phone := "+573001112233"

	for i := 0; i < 10; i++ {
		env.now = testNow.Add(time.Duration(i) * 4 * time.Minute)
		require.True(t, env.send(t, phone, OutboundContext{MessageType: MessageGeneral}).Sent)
	}
	env.now = env.now.Add(5 * time.Minute)
	require.False(t, env.send(t, phone, OutboundContext{MessageType: MessageGeneral}).Sent)

	env.gate.ClearRateLimits()
	result := env.send(t, phone, OutboundContext{MessageType: MessageGeneral})
	assert.True(t, result.Sent)
}

func TestConcurrentSendsSamePhoneRespectCap(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MinSendInterval = 0
		cfg.PerChatHourlyLimit = 10
	})
	phone := "+573001112233"

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.gate.Send(context.Background(), phone, "hola", OutboundContext{MessageType: MessageGeneral}, noopDispatch)
		}()
	}
	wg.Wait()

	stats := env.gate.GetStats()
	assert.Equal(t, uint64(10), stats.TotalSent, "the cap must hold under concurrency")
	assert.Equal(t, uint64(40), stats.TotalBlocked)
}

func TestConcurrentSendsDifferentPhones(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := fmt.Sprintf("+5730011122%02d", n)
			_, _ = env.gate.Send(context.Background(), p, "hola", OutboundContext{MessageType: MessageGeneral}, noopDispatch)
		}(i)
	}
	wg.Wait()

	stats := env.gate.GetStats()
	assert.Equal(t, uint64(32), stats.TotalSent)
}

func TestSendInputValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.gate.Send(context.Background(), "", "hola", OutboundContext{}, noopDispatch)
	assert.Error(t, err)

	_, err = env.gate.Send(context.Background(), "+573001112233", "hola", OutboundContext{}, nil)
	assert.Error(t, err)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}
