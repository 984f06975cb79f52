// Package tracker turns per-frame detections into persistent tracks and
// decides when a label's appearance should fire a notification.
//
// A Tracker is not safe for concurrent use. It is driven once per sampling
// cycle from the consumer loop.
package tracker

import (
	"time"

	"catwatch/internal/models"
)

const (
	DefaultIoUThreshold = 0.3
	DefaultTimeout      = 15
	DefaultCooldown     = 10 * time.Second
)

// Config holds the tracker tuning knobs.
type Config struct {
	Labels       []string      // target labels, in notification priority order
	IoUThreshold float64       // minimum overlap (exclusive) to continue a track
	Timeout      int           // unmatched cycles before a track is dropped
	Cooldown     time.Duration // minimum time between notifications
}

// Result is the output of one sampling cycle.
type Result struct {
	Tracks []models.Track
	Event  *models.Event // nil when no notification fires
}

// Tracker maintains tracks across sampling cycles.
type Tracker struct {
	labels    []string
	targets   map[string]bool
	threshold float64
	timeout   int

	tracks  []*models.Track // creation order, which is also match priority
	nextID  int
	cycles  uint64
	present map[string]bool
	gate    *NotificationGate
}

// New creates a tracker. An out-of-range IoU threshold or timeout falls back
// to its default; a zero cooldown disables rate limiting.
func New(cfg Config) *Tracker {
	if cfg.IoUThreshold <= 0 || cfg.IoUThreshold >= 1 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	if cfg.Timeout < 1 {
		cfg.Timeout = DefaultTimeout
	}

	labels := make([]string, 0, len(cfg.Labels))
	targets := make(map[string]bool, len(cfg.Labels))
	present := make(map[string]bool, len(cfg.Labels))
	for _, l := range cfg.Labels {
		if targets[l] {
			continue
		}
		labels = append(labels, l)
		targets[l] = true
		present[l] = false
	}

	return &Tracker{
		labels:    labels,
		targets:   targets,
		threshold: cfg.IoUThreshold,
		timeout:   cfg.Timeout,
		present:   present,
		gate:      NewNotificationGate(cfg.Cooldown),
	}
}

// Update runs one sampling cycle with the detections of the current frame.
func (t *Tracker) Update(detections []models.Detection, now time.Time) Result {
	t.cycles++

	for _, tr := range t.tracks {
		tr.Age++
	}

	matched := make(map[*models.Track]bool, len(detections))
	for _, det := range detections {
		if !t.targets[det.Label] {
			continue
		}

		if tr := t.firstMatch(det, matched); tr != nil {
			tr.Box = det.Box
			tr.Confidence = det.Confidence
			tr.Age = 0
			matched[tr] = true
			continue
		}

		tr := &models.Track{
			ID:         t.nextID,
			Label:      det.Label,
			Box:        det.Box,
			Confidence: det.Confidence,
		}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		matched[tr] = true
	}

	t.evict()

	return Result{
		Tracks: t.Tracks(),
		Event:  t.notify(now),
	}
}

// firstMatch is a linear first-match scan, not an optimal assignment.
// Per-frame detection counts are small enough that this stays cheap.
func (t *Tracker) firstMatch(det models.Detection, matched map[*models.Track]bool) *models.Track {
	for _, tr := range t.tracks {
		if matched[tr] || tr.Label != det.Label {
			continue
		}
		if tr.Box.IoU(det.Box) > t.threshold {
			return tr
		}
	}
	return nil
}

func (t *Tracker) evict() {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.Age < t.timeout {
			kept = append(kept, tr)
		}
	}
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = kept
}

// notify updates per-label presence and returns the event to send, if any.
func (t *Tracker) notify(now time.Time) *models.Event {
	var rising *models.Track

	for _, label := range t.labels {
		fresh := t.freshTrack(label)
		isPresent := fresh != nil
		if isPresent && !t.present[label] && rising == nil {
			rising = fresh
		}
		t.present[label] = isPresent
	}

	if rising == nil || !t.gate.Allow(now) {
		return nil
	}

	t.gate.MarkSent(now)
	ev := models.NewEvent(*rising, now)
	return &ev
}

func (t *Tracker) freshTrack(label string) *models.Track {
	for _, tr := range t.tracks {
		if tr.Label == label && tr.Fresh() {
			return tr
		}
	}
	return nil
}

// Tracks returns a copy of the current track set in creation order.
func (t *Tracker) Tracks() []models.Track {
	out := make([]models.Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = *tr
	}
	return out
}

// Present reports whether label was present as of the last cycle.
func (t *Tracker) Present(label string) bool {
	return t.present[label]
}

// Labels returns the target labels in priority order.
func (t *Tracker) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Cycles returns the number of sampling cycles run so far.
func (t *Tracker) Cycles() uint64 {
	return t.cycles
}

// Gate exposes the notification gate.
func (t *Tracker) Gate() *NotificationGate {
	return t.gate
}
