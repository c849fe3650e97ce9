package quota

import (
	"fmt"
	"sync"
	"time"
)

// Status is the current standing of one user/category allowance.
type Status struct {
	Limit     int
	Bonus     int
	Used      int
	Remaining int
	// ResetsAt is the next UTC midnight, when the daily allowance renews.
	ResetsAt time.Time
}

// Exhausted reports whether no signals remain today.
func (s Status) Exhausted() bool {
	return s.Remaining <= 0
}

type usage struct {
	day   string
	used  int
	bonus int
}

// Service tracks daily signal allowances per user and category. State is
// in-memory and keyed by the injected clock's UTC date, so day rollover and
// resets are deterministic under test.
type Service struct {
	mu      sync.Mutex
	limit   int
	clock   func() time.Time
	usage   map[string]*usage
}

// NewService constructs a quota service with the given daily limit.
func NewService(dailyLimit int, clock func() time.Time) *Service {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		limit: dailyLimit,
		clock: clock,
		usage: make(map[string]*usage),
	}
}

// Remaining returns the current standing without consuming anything.
func (s *Service) Remaining(user, category string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, now := s.current(user, category)
	return s.status(u, now)
}

// Consume spends one signal from today's allowance. The boolean reports
// whether a signal was available; exhaustion is a normal outcome, not an
// error.
func (s *Service) Consume(user, category string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, now := s.current(user, category)
	if u.used >= s.limit+u.bonus {
		return s.status(u, now), false
	}

	u.used++
	return s.status(u, now), true
}

// GrantBonus adds extra signals on top of today's limit. Bonuses do not
// carry over past midnight.
func (s *Service) GrantBonus(user, category string, n int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, now := s.current(user, category)
	if n > 0 {
		u.bonus += n
	}
	return s.status(u, now)
}

// current returns today's usage record, discarding any stale one from a
// previous day.
func (s *Service) current(user, category string) (*usage, time.Time) {
	now := s.clock().UTC()
	day := now.Format(time.DateOnly)
	key := fmt.Sprintf("%s|%s", user, category)

	u, ok := s.usage[key]
	if !ok || u.day != day {
		u = &usage{day: day}
		s.usage[key] = u
	}
	return u, now
}

func (s *Service) status(u *usage, now time.Time) Status {
	remaining := s.limit + u.bonus - u.used
	if remaining < 0 {
		remaining = 0
	}

	midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return Status{
		Limit:     s.limit,
		Bonus:     u.bonus,
		Used:      u.used,
		Remaining: remaining,
		ResetsAt:  midnight,
	}
}
