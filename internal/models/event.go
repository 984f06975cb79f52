package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a notification fired when a label goes from absent to present.
type Event struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	TrackID    int       `json:"track_id"`
	Confidence float64   `json:"confidence"`
	Box        Box       `json:"box"`
	OccurredAt time.Time `json:"occurred_at"`
	Snapshot   string    `json:"snapshot,omitempty"` // filename of the stored annotated frame

	// Image holds the annotated JPEG until the snapshot is flushed.
	Image []byte `json:"-"`
}

// NewEvent creates an event for the given track.
func NewEvent(track Track, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Label:      track.Label,
		TrackID:    track.ID,
		Confidence: track.Confidence,
		Box:        track.Box,
		OccurredAt: at,
	}
}

// Payload is the short form sent to the notification transport, e.g. "CAT".
func (e Event) Payload() string {
	return DisplayLabel(e.Label)
}

// StatusMessage is the human-readable status line, e.g. "CAT DETECTED BY CAMERA".
func (e Event) StatusMessage() string {
	return e.Payload() + " DETECTED BY CAMERA"
}

// DisplayLabel upper-cases a label for captions and payloads.
func DisplayLabel(label string) string {
	return strings.ToUpper(label)
}
