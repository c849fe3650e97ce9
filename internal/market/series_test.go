package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func quoteAt(price float64) Quote {
	return Quote{
		Symbol:    "BTCUSDT",
		Market:    KindCrypto,
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now().UTC(),
	}
}

func TestSeriesAppendEvictsOldest(t *testing.T) {
	s := NewSeries(3)
	for _, p := range []float64{1, 2, 3, 4} {
		s.Append(quoteAt(p))
	}

	closes := s.Closes()
	if len(closes) != 3 {
		t.Fatalf("window should stay at capacity, got %d", len(closes))
	}
	if closes[0] != 2 || closes[2] != 4 {
		t.Fatalf("oldest close should be evicted, got %v", closes)
	}
}

func TestSeriesSeedTruncates(t *testing.T) {
	s := NewSeries(3)
	s.Seed([]float64{1, 2, 3, 4, 5})

	closes := s.Closes()
	if len(closes) != 3 || closes[0] != 3 {
		t.Fatalf("seed should keep the most recent capacity entries, got %v", closes)
	}
}

func TestSeriesClosesIsACopy(t *testing.T) {
	s := NewSeries(3)
	s.Append(quoteAt(10))

	snapshot := s.Closes()
	snapshot[0] = 99

	if s.Closes()[0] != 10 {
		t.Fatal("mutating a snapshot must not affect the series")
	}
}

func TestSeriesLast(t *testing.T) {
	s := NewSeries(3)
	if _, ok := s.Last(); ok {
		t.Fatal("empty series has no last quote")
	}

	s.Append(quoteAt(42))
	last, ok := s.Last()
	if !ok || !last.Price.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("unexpected last quote %v", last)
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"crypto", "forex", "index"} {
		if _, err := ParseKind(s); err != nil {
			t.Fatalf("ParseKind(%q) should succeed: %v", s, err)
		}
	}
	if _, err := ParseKind("bond"); err == nil {
		t.Fatal("unknown kind should fail")
	}
}
