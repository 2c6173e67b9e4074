package models

import "encoding/json"

// MDrawing is a saved set of chart annotations with the view state needed to
// restore it (layout, instruments, timeframe, date range).
type MDrawing struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Layout      int             `json:"layout"`
	Instruments []string        `json:"instruments"`
	Timeframe   string          `json:"timeframe"`
	StartDate   string          `json:"start_date,omitempty"`
	EndDate     string          `json:"end_date,omitempty"`
	Drawings    json.RawMessage `json:"drawings"`
	CreatedAt   string          `json:"created_at"`
}

// -----------------------------------------------------------------------------

// MDrawingSummary is the list-view projection of a saved drawing set.
// The serialized annotation payload is only loaded on a direct get.
type MDrawingSummary struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Layout      int      `json:"layout"`
	Instruments []string `json:"instruments"`
	Timeframe   string   `json:"timeframe"`
	CreatedAt   string   `json:"created_at"`
}

// -----------------------------------------------------------------------------

// MDrawingList is the fixed response shape of the drawings list endpoint.
// The drawings field is always present, possibly empty.
type MDrawingList struct {
	Drawings   []MDrawingSummary `json:"drawings"`
	Pagination MPagination       `json:"pagination"`
}
