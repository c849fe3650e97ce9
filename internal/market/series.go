package market

// Series is a bounded rolling window of historical closes for one symbol.
// It is owned by a single writer (the symbol's poller goroutine); readers
// must use the copying accessors.
type Series struct {
	capacity int
	closes   []float64
	last     *Quote
}

// NewSeries creates an empty series with the given window capacity.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = 1
	}
	return &Series{capacity: capacity, closes: make([]float64, 0, capacity)}
}

// Seed replaces the window content with historical closes, keeping only the
// most recent capacity entries.
func (s *Series) Seed(closes []float64) {
	if len(closes) > s.capacity {
		closes = closes[len(closes)-s.capacity:]
	}
	s.closes = append(s.closes[:0], closes...)
}

// Append records a new quote, evicting the oldest close past the window.
func (s *Series) Append(q Quote) {
	if len(s.closes) == s.capacity {
		copy(s.closes, s.closes[1:])
		s.closes = s.closes[:len(s.closes)-1]
	}
	s.closes = append(s.closes, q.Price.InexactFloat64())
	quote := q
	s.last = &quote
}

// Closes returns a copied snapshot of the window, oldest first.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.closes))
	copy(out, s.closes)
	return out
}

// Len reports the number of closes currently held.
func (s *Series) Len() int {
	return len(s.closes)
}

// Last returns the most recently appended quote, if any.
func (s *Series) Last() (Quote, bool) {
	if s.last == nil {
		return Quote{}, false
	}
	return *s.last, true
}
