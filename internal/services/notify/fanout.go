package notify

import (
	"catwatch/internal/models"
	"catwatch/internal/services/pipeline"
)

// Fanout hands each event to every notifier in order.
type Fanout []pipeline.Notifier

func (f Fanout) Publish(event models.Event) {
	for _, n := range f {
		if n != nil {
			n.Publish(event)
		}
	}
}
