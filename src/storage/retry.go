package storage

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/models"

	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// Outcome Classification
// -----------------------------------------------------------------------------

// Outcome tags a storage result so retry decisions are made on an explicit
// classification, not on string inspection at call sites.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransient
	OutcomeFatal
)

// SQLite primary result codes signalling lock contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// -----------------------------------------------------------------------------

// Classify maps an error to its retry class. Only lock/busy contention on the
// embedded store (or lock/serialization failures on Postgres) is transient;
// schema, constraint and validation errors are fatal and propagate directly.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqliteBusy, sqliteLocked:
			return OutcomeTransient
		}
		return OutcomeFatal
	}

	var pe *pq.Error
	if errors.As(err, &pe) {
		switch string(pe.Code) {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
			return OutcomeTransient
		}
		return OutcomeFatal
	}

	// Driver-agnostic fallback for wrapped lock errors.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return OutcomeTransient
	}

	return OutcomeFatal
}

// -----------------------------------------------------------------------------
// Retry Wrapper
// -----------------------------------------------------------------------------

// WithRetry runs fn up to cfg.MaxAttempts times, backing off exponentially
// (capped, with jitter) between attempts. Only transient outcomes are
// retried; fatal errors propagate immediately. When attempts run out, the
// last transient error is surfaced as ErrStorageContention.
func WithRetry(ctx context.Context, log *logger.Logger, cfg models.MRetryConfig, operation string, fn func() error) error {
	base := time.Duration(cfg.BaseDelayMs) * time.Millisecond
	maxDelay := time.Duration(cfg.MaxDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		switch Classify(err) {
		case OutcomeOK:
			return nil
		case OutcomeFatal:
			return err
		}

		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := base << (attempt - 1)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))

		log.Warning("%s hit lock contention (attempt %d/%d), retrying in %v: %v",
			operation, attempt, cfg.MaxAttempts, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return helpers.WrapError(helpers.ErrStorageContention, ctx.Err(),
				"%s canceled during backoff", operation)
		}
	}

	return helpers.WrapError(helpers.ErrStorageContention, lastErr,
		"%s failed after %d attempts", operation, cfg.MaxAttempts)
}
