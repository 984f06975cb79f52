package handlers

import (
	"net/http"
	"os"
	"path/filepath"
)

// LogsHandler serves one of the logger's files (info, warning or error) as plain text.
func LogsHandler(logDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := r.URL.Query().Get("level")
		switch level {
		case "":
			level = "info"
		case "info", "warning", "error":
		default:
			http.Error(w, "Unknown log level", http.StatusBadRequest)
			return
		}
		serveLogFile(w, r, logDir, level+".log")
	}
}

func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Log file not found: "+filename, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}
