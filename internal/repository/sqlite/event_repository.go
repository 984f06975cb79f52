package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"catwatch/internal/dto"
	"catwatch/internal/models"
	"catwatch/internal/repository"
)

const eventColumns = `id, label, track_id, confidence, x1, y1, x2, y2, occurred_at, snapshot`

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

var _ repository.EventRepository = (*EventRepository)(nil)

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert stores a new event. Timestamps are kept in UTC so range filters compare correctly.
func (r *EventRepository) Insert(event *models.Event) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Label, event.TrackID, event.Confidence,
		event.Box.X1, event.Box.Y1, event.Box.X2, event.Box.Y2,
		event.OccurredAt.UTC(), event.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) GetByID(id string) (*models.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

// GetAll returns events matching filter, newest first.
func (r *EventRepository) GetAll(filter *dto.EventFilters) ([]models.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT ` + eventColumns + ` FROM events` + where + ` ORDER BY occurred_at DESC, created_at DESC`

	if filter != nil && (filter.Limit > 0 || filter.Offset > 0) {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(filter.Offset, 0))
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetTotalCount counts events matching filter, ignoring limit and offset.
func (r *EventRepository) GetTotalCount(filter *dto.EventFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM events`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountByLabel returns how many events each label has fired.
func (r *EventRepository) CountByLabel() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT label, COUNT(*) FROM events GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes events older than t and reports how many were deleted.
func (r *EventRepository) DeleteBefore(t time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM events WHERE occurred_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return result.RowsAffected()
}

func buildWhere(filter *dto.EventFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var (
		clauses []string
		args    []interface{}
	)
	if filter.Label != "" {
		clauses = append(clauses, "label = ?")
		args = append(args, strings.ToLower(filter.Label))
	}
	if !filter.After.IsZero() {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, filter.After.UTC())
	}
	if !filter.Before.IsZero() {
		clauses = append(clauses, "occurred_at < ?")
		args = append(args, filter.Before.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (models.Event, error) {
	var event models.Event
	err := s.Scan(&event.ID, &event.Label, &event.TrackID, &event.Confidence,
		&event.Box.X1, &event.Box.Y1, &event.Box.X2, &event.Box.Y2,
		&event.OccurredAt, &event.Snapshot)
	return event, err
}
