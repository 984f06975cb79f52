package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"catwatch/internal/config"
	"catwatch/internal/logger"
	"catwatch/internal/models"
	"catwatch/internal/repository"
)

const timestampLayout = "2006-01-02_15-04-05"

// Stats is a snapshot of recorder counters.
type Stats struct {
	Pending       int    `json:"pending"`
	Stored        uint64 `json:"stored"`
	Snapshots     uint64 `json:"snapshots"`
	DroppedImages uint64 `json:"dropped_images"`
	FailedInserts uint64 `json:"failed_inserts"`
}

// BufferService records notification events. Publish only appends to an
// in-memory buffer; Flush writes the annotated frames to disk and the events
// to the repository. At most bufferLimit images are held between flushes,
// later events are still recorded but without a snapshot.
type BufferService struct {
	imagesDir   string
	bufferLimit int
	repo        repository.EventRepository
	logger      *logger.Logger

	mu      sync.Mutex
	pending []models.Event
	images  int
	stats   Stats
}

func NewBufferService(cfg config.SnapshotsConfig, repo repository.EventRepository, logger *logger.Logger) *BufferService {
	return &BufferService{
		imagesDir:   cfg.Directory,
		bufferLimit: cfg.BufferLimit,
		repo:        repo,
		logger:      logger,
	}
}

// Run flushes every interval until ctx ends, then flushes once more.
func (s *BufferService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Publish buffers an event and its image. It never blocks on I/O.
func (s *BufferService) Publish(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(event.Image) > 0 {
		if s.images < s.bufferLimit {
			s.images++
			s.logger.Debug("Snapshot buffer size: %d/%d", s.images, s.bufferLimit)
		} else {
			event.Image = nil
			s.stats.DroppedImages++
			s.logger.Warning("Snapshot buffer full (%d), storing %s event without image", s.bufferLimit, event.Label)
		}
	}
	s.pending = append(s.pending, event)
}

// Flush persists every buffered event and returns how many were stored.
func (s *BufferService) Flush() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.images = 0
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	dirReady := true
	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory %s: %v", s.imagesDir, err)
		dirReady = false
	}

	var stored, snapshots uint64
	for i := range pending {
		event := &pending[i]
		if dirReady && len(event.Image) > 0 {
			filename := SnapshotName(*event)
			if err := os.WriteFile(filepath.Join(s.imagesDir, filename), event.Image, 0644); err != nil {
				s.logger.Error("Error saving image %s: %v", filename, err)
			} else {
				event.Snapshot = filename
				snapshots++
			}
		}
		event.Image = nil

		if err := s.repo.Insert(event); err != nil {
			s.logger.Error("Error storing event %s: %v", event.ID, err)
			s.mu.Lock()
			s.stats.FailedInserts++
			s.mu.Unlock()
			continue
		}
		stored++
	}

	s.mu.Lock()
	s.stats.Stored += stored
	s.stats.Snapshots += snapshots
	s.mu.Unlock()

	s.logger.Info("💾 Flushed %d events (%d snapshots)", stored, snapshots)
	return int(stored)
}

func (s *BufferService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Pending = len(s.pending)
	return stats
}

// SnapshotName is the file name of an event's annotated frame.
func SnapshotName(event models.Event) string {
	id := event.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%d_%s.jpg", event.OccurredAt.Format(timestampLayout), event.Label, event.TrackID, id)
}
