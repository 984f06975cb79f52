// Package pipeline runs the capture producer and the processing consumer
// around a shared latest-wins frame buffer.
//
//	source → Producer → framebuffer → Processor → detector → tracker
//	                                            ↘ renderer → sinks
//	                                            ↘ notifier (fire-and-forget)
package pipeline

import (
	"context"
	"errors"

	"catwatch/internal/models"
)

var (
	// ErrSourceExhausted means the capture source will never produce another frame.
	ErrSourceExhausted = errors.New("capture source exhausted")
	// ErrBufferStarved means the buffer stayed empty longer than the idle timeout.
	ErrBufferStarved = errors.New("frame buffer starved")
)

// Frame is an owned image buffer. Close releases it.
type Frame interface {
	Close() error
}

// Source produces frames. Read returns ok == false when no frame is ready yet,
// and ErrSourceExhausted once the source is permanently gone.
type Source[F Frame] interface {
	Read() (frame F, ok bool, err error)
	Close() error
}

// Detector runs the detection model synchronously on one frame.
type Detector[F Frame] interface {
	Infer(frame F, confidence float64, targetSize int) ([]models.Detection, error)
}

// Renderer draws track overlays onto the frame and returns the encoded image.
type Renderer[F Frame] interface {
	Render(frame F, tracks []models.Track) ([]byte, error)
}

// Sink receives every annotated frame, e.g. an MJPEG stream.
type Sink interface {
	UpdateJPEG(jpeg []byte)
}

// Notifier delivers events. Publish must not block and never reports errors.
type Notifier interface {
	Publish(event models.Event)
}

// Run starts producer and processor and blocks until the processor stops.
// The producer is then cancelled and awaited. Source exhaustion is reported
// as ErrSourceExhausted; a cancelled ctx yields nil.
func Run[F Frame](ctx context.Context, producer *Producer[F], processor *Processor[F]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	producerDone := make(chan error, 1)
	go func() {
		producerDone <- producer.Run(ctx)
	}()

	consumerErr := processor.Run(ctx)
	cancel()
	producerErr := <-producerDone

	if consumerErr != nil {
		return consumerErr
	}
	return producerErr
}
