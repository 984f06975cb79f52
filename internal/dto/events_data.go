// EventsData is a paginated response payload for the event log.
package dto

import "catwatch/internal/models"

type EventsData struct {
	Events      []models.Event `json:"events"`
	Counts      map[string]int `json:"counts"`
	Length      int            `json:"length"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Limit       int            `json:"pageSize"`
}
