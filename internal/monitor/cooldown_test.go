package monitor

import (
	"testing"
	"time"

	"powerwatch-backend/internal/rules"
)

func TestWithinCooldown(t *testing.T) {
	now := time.Now()
	if !WithinCooldown(now.Add(-5*time.Second), now, 10*time.Second) {
		t.Fatalf("expected within cooldown")
	}
	if WithinCooldown(now.Add(-15*time.Second), now, 10*time.Second) {
		t.Fatalf("expected cooldown elapsed")
	}
}

func TestNotifier(t *testing.T) {
	n := NewNotifier(time.Minute)
	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	steps := []struct {
		state  rules.Severity
		offset time.Duration
		notify bool
	}{
		{rules.OK, 0, false},
		{rules.OK, time.Hour, false},
		{rules.Warning, time.Hour + time.Second, true},
		{rules.Warning, time.Hour + 30*time.Second, false},
		{rules.Warning, time.Hour + 2*time.Minute, true},
		{rules.Critical, time.Hour + 2*time.Minute + time.Second, true},
		{rules.OK, time.Hour + 3*time.Minute, true},
	}
	for i, s := range steps {
		notify, _, _ := n.Observe("cab-01/Cabinet Door", s.state, t0.Add(s.offset))
		if notify != s.notify {
			t.Fatalf("step %d: expected notify=%v", i, s.notify)
		}
	}
	_, prev, seen := n.Observe("cab-01/Cabinet Door", rules.OK, t0.Add(2*time.Hour))
	if !seen || prev != rules.OK {
		t.Fatalf("unexpected history %s %v", prev, seen)
	}
	n.Observe("cab-02/Cabinet Door", rules.Critical, t0)
	n.ForgetPrefix("cab-01/")
	if _, _, seen := n.Observe("cab-02/Cabinet Door", rules.Critical, t0); !seen {
		t.Fatalf("other device history should survive")
	}
	if notify, _, seen := n.Observe("cab-01/Cabinet Door", rules.Critical, t0); !notify || seen {
		t.Fatalf("forgotten key should behave as new")
	}
}

func TestSeedActsAsPriorNotice(t *testing.T) {
	n := NewNotifier(time.Minute)
	t0 := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	if n.Known("k") {
		t.Fatalf("unexpected known key")
	}
	n.Seed("k", rules.Critical, t0)
	n.Seed("k", rules.OK, t0)
	if !n.Known("k") {
		t.Fatalf("expected seeded key")
	}
	if notify, prev, _ := n.Observe("k", rules.Critical, t0.Add(time.Second)); notify || prev != rules.Critical {
		t.Fatalf("seeded CRIT should not re-notify inside cooldown")
	}
}
