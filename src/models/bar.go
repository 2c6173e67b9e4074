package models

// MBar represents a single OHLCV price record.
// For aggregated output, Timestamp is the bucket start and BarCount carries
// the number of raw bars reduced into the bucket.
type MBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	BarCount  int     `json:"bar_count,omitempty"`

	// Malformed marks rows read with NULL OHLC fields. Such bars are
	// excluded from aggregation and counted, never silently dropped.
	Malformed bool `json:"-"`
}

// -----------------------------------------------------------------------------

// MBarQuery describes a filtered, ordered read against one instrument table.
// FromTime/ToTime are inclusive epoch-second bounds; nil means unbounded.
// Limit == 0 means no LIMIT clause (used by the streaming aggregation path).
type MBarQuery struct {
	Table    string
	FromTime *int64
	ToTime   *int64
	Offset   int
	Limit    int
}
