package pipeline

import (
	"context"
	"errors"
	"time"

	"catwatch/internal/logger"
	"catwatch/internal/services/framebuffer"
)

const defaultRetryDelay = 10 * time.Millisecond

// Producer reads a source continuously and pushes into the buffer.
type Producer[F Frame] struct {
	source     Source[F]
	buffer     *framebuffer.Buffer[F]
	logger     *logger.Logger
	retryDelay time.Duration
}

// NewProducer creates a producer. retryDelay is the pause after a read that
// yielded no frame; zero uses a short default.
func NewProducer[F Frame](source Source[F], buffer *framebuffer.Buffer[F], logger *logger.Logger, retryDelay time.Duration) *Producer[F] {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Producer[F]{
		source:     source,
		buffer:     buffer,
		logger:     logger,
		retryDelay: retryDelay,
	}
}

// Run reads until ctx is cancelled or the source is exhausted. On return the
// source is closed and the buffer is marked closed.
func (p *Producer[F]) Run(ctx context.Context) error {
	defer p.buffer.Close()
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warning("Failed to release capture source: %v", err)
		}
	}()

	p.logger.Info("📷 Capture producer started")

	for {
		if ctx.Err() != nil {
			p.logger.Info("📷 Capture producer stopped")
			return nil
		}

		frame, ok, err := p.source.Read()
		if err != nil {
			if errors.Is(err, ErrSourceExhausted) {
				p.logger.Warning("Capture source exhausted: %v", err)
				return err
			}
			p.logger.Debug("Transient capture error: %v", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
			case <-time.After(p.retryDelay):
			}
			continue
		}

		if p.buffer.Push(frame) {
			p.logger.Debug("Frame buffer full - dropped oldest frame")
		}
	}
}
