package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"catwatch/internal/dto"
	"catwatch/internal/logger"
	"catwatch/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// EventsHandler lists stored notification events, newest first.
//
//	GET /api/events?label=cat&after=2024-05-01&before=2024-05-02&page=1&limit=20
func EventsHandler(repo repository.EventRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := min(atoiDefault(q.Get("limit"), defaultPageSize), maxPageSize)

		filter := &dto.EventFilters{
			Label:  q.Get("label"),
			After:  parseDate(q.Get("after")),
			Before: parseDate(q.Get("before")),
		}

		total, err := repo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Failed to count events: %v", err)
			http.Error(w, "Failed to query events", http.StatusInternalServerError)
			return
		}

		filter.Limit = limit
		filter.Offset = (page - 1) * limit
		events, err := repo.GetAll(filter)
		if err != nil {
			logger.Error("Failed to list events: %v", err)
			http.Error(w, "Failed to query events", http.StatusInternalServerError)
			return
		}

		counts, err := repo.CountByLabel()
		if err != nil {
			logger.Error("Failed to count labels: %v", err)
			http.Error(w, "Failed to query events", http.StatusInternalServerError)
			return
		}

		writeJSON(w, dto.EventsData{
			Events:      events,
			Counts:      counts,
			Length:      total,
			TotalPages:  (total + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// SnapshotHandler serves the stored annotated frame of one event.
//
//	GET /api/events/snapshot?id=<event id>
func SnapshotHandler(repo repository.EventRepository, imagesDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id parameter", http.StatusBadRequest)
			return
		}

		event, err := repo.GetByID(id)
		if errors.Is(err, repository.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "Failed to query event", http.StatusInternalServerError)
			return
		}
		if event.Snapshot == "" {
			http.Error(w, "Event has no snapshot", http.StatusNotFound)
			return
		}

		path := filepath.Join(imagesDir, filepath.Base(event.Snapshot))
		if _, err := os.Stat(path); err != nil {
			http.Error(w, "Snapshot file not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format)
// or an RFC 3339 timestamp. Invalid input yields the zero time.
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}
