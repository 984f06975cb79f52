package handlers

import (
	"net/http"

	"catwatch/internal/models"
)

// TrackLister exposes the current track set.
type TrackLister interface {
	Tracks() []models.Track
}

// TracksHandler returns the tracks of the latest sampling cycle.
func TracksHandler(src TrackLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracks := src.Tracks()
		if tracks == nil {
			tracks = []models.Track{}
		}
		writeJSON(w, map[string]interface{}{
			"tracks": tracks,
			"count":  len(tracks),
		})
	}
}

// StatsHandler returns whatever snapshot stats produces as JSON.
func StatsHandler(stats func() interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, stats())
	}
}
