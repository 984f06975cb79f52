package repository

import (
	"errors"
	"time"

	"catwatch/internal/dto"
	"catwatch/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// EventRepository defines the interface for notification event storage.
type EventRepository interface {
	// Create operations
	Insert(event *models.Event) error

	// Read operations
	GetByID(id string) (*models.Event, error)
	GetAll(filter *dto.EventFilters) ([]models.Event, error)
	GetTotalCount(filter *dto.EventFilters) (int, error)
	CountByLabel() (map[string]int, error)

	// Delete operations
	DeleteBefore(t time.Time) (int64, error)
}
