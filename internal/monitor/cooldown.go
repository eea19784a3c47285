package monitor

import (
	"strings"
	"sync"
	"time"

	"powerwatch-backend/internal/rules"
)

func WithinCooldown(last, now time.Time, cooldown time.Duration) bool {
	return now.Sub(last) < cooldown
}

type lastNotice struct {
	state rules.Severity
	at    time.Time
}

// Notifier decides which reports are worth an event: every state change,
// and repeats of a non-OK state once the cooldown has passed.
type Notifier struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]lastNotice
}

func NewNotifier(cooldown time.Duration) *Notifier {
	return &Notifier{cooldown: cooldown, last: map[string]lastNotice{}}
}

// Observe records a state for key and reports whether to notify, together
// with the previously known state.
func (n *Notifier) Observe(key string, state rules.Severity, now time.Time) (bool, rules.Severity, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	prev, seen := n.last[key]
	switch {
	case !seen:
		n.last[key] = lastNotice{state: state, at: now}
		return state != rules.OK, rules.OK, false
	case prev.state != state:
		n.last[key] = lastNotice{state: state, at: now}
		return true, prev.state, true
	case state != rules.OK && !WithinCooldown(prev.at, now, n.cooldown):
		n.last[key] = lastNotice{state: state, at: now}
		return true, prev.state, true
	default:
		return false, prev.state, true
	}
}

// ForgetPrefix drops every key starting with prefix.
func (n *Notifier) ForgetPrefix(prefix string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k := range n.last {
		if strings.HasPrefix(k, prefix) {
			delete(n.last, k)
		}
	}
}

// Known reports whether key has any recorded state.
func (n *Notifier) Known(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.last[key]
	return ok
}

// Seed records a state observed before this process started, as if it had
// been notified at the given instant.
func (n *Notifier) Seed(key string, state rules.Severity, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.last[key]; !ok {
		n.last[key] = lastNotice{state: state, at: at}
	}
}
