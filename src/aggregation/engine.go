package aggregation

import (
	"time"

	"trading-data-viewer/src/models"
)

// -----------------------------------------------------------------------------
// Streaming OHLCV Accumulator
// -----------------------------------------------------------------------------

// Accumulator reduces an ascending stream of raw bars into coarser buckets
// with O(1) auxiliary state. Input must already be sorted by timestamp
// (the storage query orders rows); the accumulator never resorts. Buckets
// with no raw bars produce no output, so sparsity in the input is preserved.
type Accumulator struct {
	tf  Timeframe
	loc *time.Location

	bucket   int64
	open     float64
	high     float64
	low      float64
	close    float64
	volume   int64
	barCount int
	active   bool

	dropped int
	emitted int
}

// -----------------------------------------------------------------------------

// NewAccumulator creates an accumulator for the given timeframe. loc is the
// session timezone governing calendar-day alignment; nil means UTC.
func NewAccumulator(tf Timeframe, loc *time.Location) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{tf: tf, loc: loc}
}

// -----------------------------------------------------------------------------

// Add feeds one raw bar. When the bar opens a new bucket, the previous
// bucket's reduced bar is returned; otherwise nil. Malformed bars (NULL
// OHLC fields in storage) are excluded from the reduction and counted.
func (a *Accumulator) Add(bar models.MBar) *models.MBar {
	if bar.Malformed {
		a.dropped++
		return nil
	}

	key := a.tf.BucketStart(bar.Timestamp, a.loc)

	var completed *models.MBar
	if a.active && key != a.bucket {
		completed = a.emit()
	}

	if !a.active {
		a.bucket = key
		a.open = bar.Open
		a.high = bar.High
		a.low = bar.Low
		a.close = bar.Close
		a.volume = bar.Volume
		a.barCount = 1
		a.active = true
		return completed
	}

	// Chronological order decides open/close: first bar in the bucket set
	// open above, the latest one always overwrites close here.
	if bar.High > a.high {
		a.high = bar.High
	}
	if bar.Low < a.low {
		a.low = bar.Low
	}
	a.close = bar.Close
	a.volume += bar.Volume
	a.barCount++

	return completed
}

// -----------------------------------------------------------------------------

// Flush returns the final partial bucket, or nil when no bucket is open.
// Must be called once after the input stream ends.
func (a *Accumulator) Flush() *models.MBar {
	if !a.active {
		return nil
	}
	return a.emit()
}

// -----------------------------------------------------------------------------

// Dropped returns the count of malformed bars excluded so far.
func (a *Accumulator) Dropped() int {
	return a.dropped
}

// Emitted returns the count of aggregated bars produced so far.
func (a *Accumulator) Emitted() int {
	return a.emitted
}

// -----------------------------------------------------------------------------

func (a *Accumulator) emit() *models.MBar {
	out := &models.MBar{
		Timestamp: a.bucket,
		Open:      a.open,
		High:      a.high,
		Low:       a.low,
		Close:     a.close,
		Volume:    a.volume,
		BarCount:  a.barCount,
	}
	a.active = false
	a.emitted++
	return out
}

// -----------------------------------------------------------------------------
// Slice Convenience
// -----------------------------------------------------------------------------

// Aggregate reduces an ascending slice of raw bars into tf buckets.
// Returns the aggregated bars and the count of malformed bars excluded.
// An empty input yields an empty output, not an error. A raw timeframe
// returns the input unchanged.
func Aggregate(bars []models.MBar, tf Timeframe, loc *time.Location) ([]models.MBar, int) {
	if tf.Raw() {
		return bars, 0
	}

	acc := NewAccumulator(tf, loc)
	out := make([]models.MBar, 0, len(bars))

	for _, bar := range bars {
		if done := acc.Add(bar); done != nil {
			out = append(out, *done)
		}
	}
	if done := acc.Flush(); done != nil {
		out = append(out, *done)
	}

	return out, acc.Dropped()
}
