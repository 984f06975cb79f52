package tracker

import "time"

// NotificationGate enforces a minimum interval between outgoing notifications.
// It is owned by a single Tracker and needs no locking.
type NotificationGate struct {
	cooldown   time.Duration
	lastSentAt time.Time
	sent       bool
}

// NewNotificationGate creates a gate that lets the first notification through.
func NewNotificationGate(cooldown time.Duration) *NotificationGate {
	if cooldown < 0 {
		cooldown = 0
	}
	return &NotificationGate{cooldown: cooldown}
}

// Allow reports whether a notification may be sent at now.
func (g *NotificationGate) Allow(now time.Time) bool {
	if !g.sent {
		return true
	}
	return now.Sub(g.lastSentAt) >= g.cooldown
}

// MarkSent records a notification sent at now.
func (g *NotificationGate) MarkSent(now time.Time) {
	g.lastSentAt = now
	g.sent = true
}

// LastSentAt returns the time of the last notification and whether one was sent.
func (g *NotificationGate) LastSentAt() (time.Time, bool) {
	return g.lastSentAt, g.sent
}

// Cooldown returns the configured cooldown.
func (g *NotificationGate) Cooldown() time.Duration {
	return g.cooldown
}
