package gate

import "time"

// Config contains the gate's policy knobs. These are deployment tuning
// values, not correctness invariants.
type Config struct {
	// Minimum gap between two outbound follow-ups to the same phone.
	MinFollowUpGap time.Duration
	// Quiet period after inbound activity during which only high-priority
	// messages go out.
	MinActiveGap time.Duration
	// Local-time window inside which sends are allowed.
	SendWindow SendWindow
	// Max sends to one phone in a trailing hour.
	PerChatHourlyLimit int
	// Minimum spacing between two sends to the same phone.
	MinSendInterval time.Duration
	// Bounds for the randomized human-like delay applied before dispatch.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Collaborator fault policy. No-reach and order-status always fail
	// closed; cooldown and content checks guard softer rules, so operators
	// choose whether their lookup errors block sends.
	FailOpenOnCooldownError bool
	FailOpenOnContentError  bool
}

// DefaultConfig returns the policy limits used in production.
func DefaultConfig() Config {
	return Config{
		MinFollowUpGap:          24 * time.Hour,
		MinActiveGap:            time.Hour,
		SendWindow:              MustParseSendWindow("08:00", "21:00", "America/Bogota"),
		PerChatHourlyLimit:      10,
		MinSendInterval:         45 * time.Second,
		MinDelay:                800 * time.Millisecond,
		MaxDelay:                2500 * time.Millisecond,
		FailOpenOnCooldownError: true,
		FailOpenOnContentError:  true,
	}
}
