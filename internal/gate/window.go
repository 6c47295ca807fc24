package gate

import (
	"fmt"
	"time"
)

// SendWindow represents the daily local-time window inside which outbound
// sends are allowed.
type SendWindow struct {
	StartMinutes int
	EndMinutes   int
	location     *time.Location
	enabled      bool
}

// ParseSendWindow returns a send window from HH:MM strings.
func ParseSendWindow(start, end, tz string) (SendWindow, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return SendWindow{}, fmt.Errorf("gate: load send window tz: %w", err)
		}
	}
	startMin, err := parseClock(start)
	if err != nil {
		return SendWindow{}, fmt.Errorf("gate: parse send window start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return SendWindow{}, fmt.Errorf("gate: parse send window end: %w", err)
	}
	return SendWindow{
		StartMinutes: startMin,
		EndMinutes:   endMin,
		location:     loc,
		enabled:      true,
	}, nil
}

// MustParseSendWindow is ParseSendWindow for static configuration; it panics
// on malformed input.
func MustParseSendWindow(start, end, tz string) SendWindow {
	w, err := ParseSendWindow(start, end, tz)
	if err != nil {
		panic(err)
	}
	return w
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the given moment falls inside the allowed window.
// A zero or degenerate window allows every moment.
func (w SendWindow) Contains(now time.Time) bool {
	if !w.enabled || w.StartMinutes == w.EndMinutes {
		return true
	}
	local := now.In(w.location)
	minutes := local.Hour()*60 + local.Minute()
	if w.StartMinutes < w.EndMinutes {
		return minutes >= w.StartMinutes && minutes < w.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= w.StartMinutes || minutes < w.EndMinutes
}

// String renders the window for block reasons and logs.
func (w SendWindow) String() string {
	if !w.enabled || w.StartMinutes == w.EndMinutes {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s",
		w.StartMinutes/60, w.StartMinutes%60,
		w.EndMinutes/60, w.EndMinutes%60,
		w.location.String())
}
