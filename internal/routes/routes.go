package routes

import (
	"net/http"

	"catwatch/internal/config"
	"catwatch/internal/handlers"
	"catwatch/internal/logger"
	"catwatch/internal/repository"
	"catwatch/internal/services/stream"
	"catwatch/internal/services/websocket"
)

// Deps are the services the HTTP surface reads from.
type Deps struct {
	Events repository.EventRepository
	Stream *stream.Stream
	Hub    *websocket.HubService
	Tracks handlers.TrackLister
	Stats  func() interface{}
}

// SetupRoutes registers the live view, the MJPEG stream and the API endpoints.
func SetupRoutes(deps Deps, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", handlers.IndexHandler)
	mux.Handle("/video", deps.Stream)
	mux.HandleFunc("/snapshot.jpg", deps.Stream.SnapshotHandler())

	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(deps.Hub, logger))
	mux.HandleFunc("/api/events", handlers.EventsHandler(deps.Events, logger))
	mux.HandleFunc("/api/events/snapshot", handlers.SnapshotHandler(deps.Events, cfg.Snapshots.Directory))
	mux.HandleFunc("/api/tracks", handlers.TracksHandler(deps.Tracks))
	mux.HandleFunc("/api/stats", handlers.StatsHandler(deps.Stats))
	mux.HandleFunc("/logs", handlers.LogsHandler(cfg.LogDirectory))

	return mux
}
