package models

// MPagination is the metadata attached to every paged result.
type MPagination struct {
	Offset  int   `json:"offset"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// -----------------------------------------------------------------------------

// MPage is a bounded, ordered slice of bars plus pagination metadata.
// DroppedBars counts malformed rows excluded during aggregation.
type MPage struct {
	Bars        []MBar      `json:"bars"`
	Pagination  MPagination `json:"pagination"`
	Timeframe   string      `json:"timeframe"`
	DroppedBars int         `json:"dropped_bars,omitempty"`
}
