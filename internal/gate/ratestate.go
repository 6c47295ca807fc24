package gate

import (
	"hash/fnv"
	"sync"
	"time"
)

const rateShardCount = 32

// rateWindow is the trailing-hour horizon for both per-phone and global counts.
const rateWindow = time.Hour

// rateState tracks send timestamps per phone (sharded, per-shard mutex so
// unrelated conversations never contend) plus one global rolling window.
// Blocked attempts never touch this state.
type rateState struct {
	shards [rateShardCount]rateShard

	globalMu sync.Mutex
	global   []time.Time
}

type rateShard struct {
	mu     sync.Mutex
	phones map[string][]time.Time
}

func newRateState() *rateState {
	rs := &rateState{}
	for i := range rs.shards {
		rs.shards[i].phones = make(map[string][]time.Time)
	}
	return rs
}

func (rs *rateState) shardFor(phone string) *rateShard {
	h := fnv.New32a()
	h.Write([]byte(phone))
	return &rs.shards[h.Sum32()%rateShardCount]
}

// lock acquires the shard guarding the phone. The caller evaluates the rate
// checks and reserves a slot without releasing it, so two concurrent sends to
// one phone cannot both pass the cap on stale counts.
func (rs *rateState) lock(phone string) *rateShard {
	s := rs.shardFor(phone)
	s.mu.Lock()
	return s
}

// snapshot prunes the phone's window against now and returns the count of
// sends in the trailing hour plus the most recent send time. Caller holds the
// shard lock.
func (s *rateShard) snapshot(phone string, now time.Time) (count int, last time.Time) {
	sends := pruneWindow(s.phones[phone], now)
	if len(sends) == 0 {
		delete(s.phones, phone)
	} else {
		s.phones[phone] = sends
		last = sends[len(sends)-1]
	}
	return len(sends), last
}

// reserve books a send slot for the phone. Caller holds the shard lock.
func (s *rateShard) reserve(phone string, at time.Time) {
	s.phones[phone] = append(s.phones[phone], at)
}

// release rolls back a reservation after a dispatch failure.
func (s *rateShard) release(phone string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sends := s.phones[phone]
	for i := len(sends) - 1; i >= 0; i-- {
		if sends[i].Equal(at) {
			s.phones[phone] = append(sends[:i], sends[i+1:]...)
			return
		}
	}
}

func (rs *rateState) reserveGlobal(at time.Time) {
	rs.globalMu.Lock()
	defer rs.globalMu.Unlock()
	rs.global = append(pruneWindow(rs.global, at), at)
}

func (rs *rateState) releaseGlobal(at time.Time) {
	rs.globalMu.Lock()
	defer rs.globalMu.Unlock()
	for i := len(rs.global) - 1; i >= 0; i-- {
		if rs.global[i].Equal(at) {
			rs.global = append(rs.global[:i], rs.global[i+1:]...)
			return
		}
	}
}

// globalCount returns the number of sends across all phones in the trailing hour.
func (rs *rateState) globalCount(now time.Time) int {
	rs.globalMu.Lock()
	defer rs.globalMu.Unlock()
	rs.global = pruneWindow(rs.global, now)
	return len(rs.global)
}

// clear wipes every window. Session data is untouched; this is rate state only.
func (rs *rateState) clear() {
	for i := range rs.shards {
		s := &rs.shards[i]
		s.mu.Lock()
		s.phones = make(map[string][]time.Time)
		s.mu.Unlock()
	}
	rs.globalMu.Lock()
	rs.global = nil
	rs.globalMu.Unlock()
}

// pruneWindow drops timestamps older than the trailing hour.
func pruneWindow(sends []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(sends) && !sends[i].After(cutoff) {
		i++
	}
	return sends[i:]
}
