// Package stream publishes annotated frames as an MJPEG stream.
package stream

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/hybridgroup/mjpeg"
)

// Stream is a pipeline sink serving the latest annotated frame to every
// connected /video client. It also keeps a copy for single-frame snapshots.
type Stream struct {
	mjpeg  *mjpeg.Stream
	frames atomic.Uint64

	mu     sync.RWMutex
	latest []byte
}

func New() *Stream {
	return &Stream{mjpeg: mjpeg.NewStream()}
}

// UpdateJPEG replaces the current frame. The caller may reuse jpeg afterwards.
func (s *Stream) UpdateJPEG(jpeg []byte) {
	frame := append([]byte(nil), jpeg...)

	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()

	s.frames.Add(1)
	s.mjpeg.UpdateJPEG(frame)
}

// Latest returns the most recent frame, or nil before the first one.
func (s *Stream) Latest() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Frames counts frames handed to the stream.
func (s *Stream) Frames() uint64 {
	return s.frames.Load()
}

// ServeHTTP streams multipart/x-mixed-replace JPEG frames until the client leaves.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mjpeg.ServeHTTP(w, r)
}

// SnapshotHandler serves the latest frame as a single image/jpeg.
func (s *Stream) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := s.Latest()
		if frame == nil {
			http.Error(w, "No frame captured yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(frame)
	}
}
