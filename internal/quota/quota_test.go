package quota

import (
	"testing"
	"time"
)

func TestConsumeToExhaustion(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(2, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if _, ok := svc.Consume("alice", "crypto"); !ok {
			t.Fatalf("consume %d should succeed", i+1)
		}
	}

	status, ok := svc.Consume("alice", "crypto")
	if ok {
		t.Fatal("third consume should be refused")
	}
	if !status.Exhausted() || status.Remaining != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestQuotaIsPerUserAndCategory(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(1, func() time.Time { return now })

	if _, ok := svc.Consume("alice", "crypto"); !ok {
		t.Fatal("first consume should succeed")
	}
	if _, ok := svc.Consume("alice", "forex"); !ok {
		t.Fatal("different category has its own allowance")
	}
	if _, ok := svc.Consume("bob", "crypto"); !ok {
		t.Fatal("different user has their own allowance")
	}
	if _, ok := svc.Consume("alice", "crypto"); ok {
		t.Fatal("alice's crypto allowance is spent")
	}
}

func TestBonusExtendsToday(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(1, func() time.Time { return now })

	if _, ok := svc.Consume("alice", "crypto"); !ok {
		t.Fatal("first consume should succeed")
	}
	if _, ok := svc.Consume("alice", "crypto"); ok {
		t.Fatal("limit reached")
	}

	status := svc.GrantBonus("alice", "crypto", 2)
	if status.Remaining != 2 {
		t.Fatalf("bonus should add headroom, got %+v", status)
	}
	if _, ok := svc.Consume("alice", "crypto"); !ok {
		t.Fatal("bonus signal should be consumable")
	}
}

func TestDayRolloverResets(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	svc := NewService(1, func() time.Time { return now })

	svc.GrantBonus("alice", "crypto", 5)
	if _, ok := svc.Consume("alice", "crypto"); !ok {
		t.Fatal("consume should succeed")
	}

	now = now.Add(2 * time.Minute) // past midnight

	status := svc.Remaining("alice", "crypto")
	if status.Used != 0 || status.Bonus != 0 {
		t.Fatalf("rollover should reset usage and bonus, got %+v", status)
	}
	if status.Remaining != 1 {
		t.Fatalf("new day starts at the base limit, got %+v", status)
	}
}
