package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"catwatch/internal/logger"
	"catwatch/internal/models"
	"catwatch/internal/services/framebuffer"
	"catwatch/internal/services/tracker"
)

// Settings tunes the processing loop.
type Settings struct {
	Interval     int           // run detection on every Nth consumed frame
	Confidence   float64       // passed to the detector
	TargetSize   int           // passed to the detector
	IdleTimeout  time.Duration // 0 disables starvation detection
	PollInterval time.Duration
}

// Stats is a snapshot of processor counters.
type Stats struct {
	Frames            uint64 `json:"frames"`
	Cycles            uint64 `json:"cycles"`
	InferenceFailures uint64 `json:"inference_failures"`
	RenderFailures    uint64 `json:"render_failures"`
	Events            uint64 `json:"events"`
	Tracks            int    `json:"tracks"`
}

// Processor is the consumer loop: it pulls frames, runs detection on the
// sampling cadence, updates the tracker, renders and hands results onward.
type Processor[F Frame] struct {
	buffer   *framebuffer.Buffer[F]
	detector Detector[F]
	tracker  *tracker.Tracker
	renderer Renderer[F]
	sinks    []Sink
	notifier Notifier
	logger   *logger.Logger
	settings Settings
	now      func() time.Time

	tracksMu sync.RWMutex
	tracks   []models.Track

	frames            atomic.Uint64
	cycles            atomic.Uint64
	inferenceFailures atomic.Uint64
	renderFailures    atomic.Uint64
	events            atomic.Uint64
}

// Option configures a Processor.
type Option[F Frame] func(*Processor[F])

// WithRenderer sets the overlay renderer. Without one, sinks receive nothing
// and events carry no image.
func WithRenderer[F Frame](r Renderer[F]) Option[F] {
	return func(p *Processor[F]) { p.renderer = r }
}

// WithSinks adds consumers of annotated frames.
func WithSinks[F Frame](sinks ...Sink) Option[F] {
	return func(p *Processor[F]) { p.sinks = append(p.sinks, sinks...) }
}

// WithNotifier sets the event notifier.
func WithNotifier[F Frame](n Notifier) Option[F] {
	return func(p *Processor[F]) { p.notifier = n }
}

// WithClock replaces time.Now, for tests.
func WithClock[F Frame](now func() time.Time) Option[F] {
	return func(p *Processor[F]) { p.now = now }
}

// NewProcessor creates the consumer loop.
func NewProcessor[F Frame](buffer *framebuffer.Buffer[F], detector Detector[F], tr *tracker.Tracker, logger *logger.Logger, settings Settings, opts ...Option[F]) *Processor[F] {
	if settings.Interval < 1 {
		settings.Interval = 1
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 5 * time.Millisecond
	}
	p := &Processor[F]{
		buffer:   buffer,
		detector: detector,
		tracker:  tr,
		logger:   logger,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes frames until ctx is cancelled (nil), the producer closed the
// buffer and it is empty (ErrSourceExhausted), or the buffer stayed empty for
// IdleTimeout (ErrBufferStarved). A frame already dequeued is always finished.
// Frames left in the buffer are released on return.
func (p *Processor[F]) Run(ctx context.Context) error {
	defer func() {
		if n := p.buffer.Drain(); n > 0 {
			p.logger.Info("Released %d unprocessed frame(s)", n)
		}
	}()

	p.logger.Info("🎬 Processor started - detecting every %d frame(s)", p.settings.Interval)

	var emptySince time.Time
	for {
		if ctx.Err() != nil {
			p.logger.Info("🛑 Processor stopped")
			return nil
		}

		closed := p.buffer.Closed()
		frame, ok := p.buffer.Pop()
		if !ok {
			if closed {
				return ErrSourceExhausted
			}

			now := p.now()
			if emptySince.IsZero() {
				emptySince = now
			} else if p.settings.IdleTimeout > 0 && now.Sub(emptySince) >= p.settings.IdleTimeout {
				p.logger.Error("No frames for %v - giving up", now.Sub(emptySince))
				return ErrBufferStarved
			}

			select {
			case <-ctx.Done():
			case <-time.After(p.settings.PollInterval):
			}
			continue
		}

		emptySince = time.Time{}
		p.process(frame)
	}
}

func (p *Processor[F]) process(frame F) {
	defer func() {
		if err := frame.Close(); err != nil {
			p.logger.Warning("Failed to release frame: %v", err)
		}
	}()

	n := p.frames.Add(1)

	var event *models.Event
	if (n-1)%uint64(p.settings.Interval) == 0 {
		event = p.detect(frame)
	}

	tracks := p.Tracks()

	var image []byte
	if p.renderer != nil {
		var err error
		image, err = p.renderer.Render(frame, tracks)
		if err != nil {
			p.renderFailures.Add(1)
			p.logger.Error("Failed to render overlays: %v", err)
		} else {
			for _, sink := range p.sinks {
				sink.UpdateJPEG(image)
			}
		}
	}

	if event != nil {
		event.Image = image
		p.events.Add(1)
		p.logger.Info("🔔 %s detected (track %d) - notifying", event.Payload(), event.TrackID)
		if p.notifier != nil {
			p.notifier.Publish(*event)
		}
	}
}

// detect runs one sampling cycle. On inference failure the previous track
// set is kept untouched.
func (p *Processor[F]) detect(frame F) *models.Event {
	p.cycles.Add(1)

	detections, err := p.detector.Infer(frame, p.settings.Confidence, p.settings.TargetSize)
	if err != nil {
		p.inferenceFailures.Add(1)
		p.logger.Warning("Inference failed, keeping previous tracks: %v", err)
		return nil
	}

	res := p.tracker.Update(detections, p.now())
	p.tracksMu.Lock()
	p.tracks = res.Tracks
	p.tracksMu.Unlock()

	p.logger.Debug("Cycle %d: %d detection(s), %d track(s)", p.tracker.Cycles(), len(detections), len(res.Tracks))
	return res.Event
}

// Tracks returns the latest track set. Safe to call from other goroutines.
func (p *Processor[F]) Tracks() []models.Track {
	p.tracksMu.RLock()
	defer p.tracksMu.RUnlock()
	return append([]models.Track(nil), p.tracks...)
}

// Stats returns a snapshot of processor counters.
func (p *Processor[F]) Stats() Stats {
	return Stats{
		Frames:            p.frames.Load(),
		Cycles:            p.cycles.Load(),
		InferenceFailures: p.inferenceFailures.Load(),
		RenderFailures:    p.renderFailures.Load(),
		Events:            p.events.Load(),
		Tracks:            len(p.Tracks()),
	}
}
