package models

// MDateRange holds the first and last bar timestamps of a table, formatted
// as dates for display.
type MDateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// -----------------------------------------------------------------------------

// MInstrument describes one discovered instrument table.
type MInstrument struct {
	TableName   string     `json:"table_name"`
	Instrument  string     `json:"instrument"`
	RecordCount int64      `json:"record_count"`
	DateRange   MDateRange `json:"date_range"`
	DisplayName string     `json:"display_name"`
}
