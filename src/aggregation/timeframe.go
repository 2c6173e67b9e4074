package aggregation

import (
	"time"

	"trading-data-viewer/src/helpers"
)

// -----------------------------------------------------------------------------
// Timeframe
// -----------------------------------------------------------------------------

// Timeframe is a validated target granularity for bar aggregation.
// Intraday timeframes bucket by epoch-aligned fixed windows. The daily
// timeframe is the one deliberate exception: it aligns to calendar-day
// boundaries in the instrument's session timezone, because a session day,
// not raw elapsed time, is what a daily candle means to a trader.
type Timeframe struct {
	Name     string
	Width    time.Duration
	Calendar bool
}

// -----------------------------------------------------------------------------

// RawTimeframe requests bars at the native storage granularity, bypassing
// aggregation entirely.
const RawTimeframe = "raw"

// supported timeframes, keyed by request name (set carried over from the
// chart front end).
var widths = map[string]time.Duration{
	"1min":   1 * time.Minute,
	"5min":   5 * time.Minute,
	"15min":  15 * time.Minute,
	"30min":  30 * time.Minute,
	"60min":  60 * time.Minute,
	"120min": 120 * time.Minute,
	"240min": 240 * time.Minute,
	"1day":   24 * time.Hour,
}

// SupportedTimeframes lists every accepted timeframe name, raw included.
var SupportedTimeframes = []string{
	RawTimeframe, "1min", "5min", "15min", "30min", "60min", "120min", "240min", "1day",
}

// -----------------------------------------------------------------------------

// IsSupported reports whether name is a recognized timeframe.
func IsSupported(name string) bool {
	if name == RawTimeframe {
		return true
	}
	_, ok := widths[name]
	return ok
}

// -----------------------------------------------------------------------------

// ParseTimeframe resolves a request timeframe against the native storage
// granularity. Timeframes below the native granularity, or not expressible
// as a whole multiple of it, are rejected.
func ParseTimeframe(name string, native time.Duration) (Timeframe, error) {
	if name == RawTimeframe {
		return Timeframe{Name: RawTimeframe}, nil
	}

	width, ok := widths[name]
	if !ok {
		return Timeframe{}, helpers.WrapError(helpers.ErrInvalidTimeframe, nil,
			"unsupported timeframe '%s'", name)
	}
	if native <= 0 {
		return Timeframe{}, helpers.WrapError(helpers.ErrInvalidTimeframe, nil,
			"native granularity must be positive")
	}
	if width < native || width%native != 0 {
		return Timeframe{}, helpers.WrapError(helpers.ErrInvalidTimeframe, nil,
			"timeframe '%s' is not a multiple of the native granularity %s", name, native)
	}

	return Timeframe{
		Name:     name,
		Width:    width,
		Calendar: name == "1day",
	}, nil
}

// -----------------------------------------------------------------------------

// Raw reports whether this timeframe requests unaggregated bars.
func (tf Timeframe) Raw() bool {
	return tf.Name == RawTimeframe
}

// -----------------------------------------------------------------------------

// BucketStart computes the deterministic bucket key for a bar timestamp:
// the start of the half-open window [start, start+width) containing ts.
func (tf Timeframe) BucketStart(ts int64, loc *time.Location) int64 {
	if tf.Calendar {
		if loc == nil {
			loc = time.UTC
		}
		t := time.Unix(ts, 0).In(loc)
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc).Unix()
	}

	w := int64(tf.Width / time.Second)
	return ts - (ts % w)
}
