// EventFilters narrow the stored event list.
package dto

import "time"

type EventFilters struct {
	Label  string
	After  time.Time
	Before time.Time
	Limit  int
	Offset int
}
