package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trading-data-viewer/src/aggregation"
	"trading-data-viewer/src/cache"
	"trading-data-viewer/src/config"
	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/interfaces"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/models"
	"trading-data-viewer/src/storage"
	"trading-data-viewer/src/utils"
)

// -----------------------------------------------------------------------------
// Data Service
// -----------------------------------------------------------------------------

const instrumentsCacheKey = "instruments"

// DataService orchestrates bar retrieval: identifier validation, connection
// acquisition, retry, in-memory aggregation and pagination, in that order.
type DataService struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    interfaces.IBarStore
	Pool     *storage.ConnectionPool
	Cache    *cache.Cache
	Calendar *utils.TradingCalendar

	native time.Duration
}

// -----------------------------------------------------------------------------

func NewDataService(cfg *config.Config, log *logger.Logger, store interfaces.IBarStore,
	pool *storage.ConnectionPool, cch *cache.Cache) (*DataService, error) {

	native, err := cfg.NativeInterval()
	if err != nil {
		return nil, err
	}

	return &DataService{
		Config:   cfg,
		Logger:   log.Named("service"),
		Store:    store,
		Pool:     pool,
		Cache:    cch,
		Calendar: utils.GetCalendar(cfg.CalendarMIC),
		native:   native,
	}, nil
}

// -----------------------------------------------------------------------------

// withConn runs fn on a pooled connection under the retry policy. The
// connection is held for the whole retry sequence so attempts observe a
// consistent session.
func (s *DataService) withConn(ctx context.Context, operation string, fn func(*sql.Conn) error) error {
	handle, err := s.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	return storage.WithRetry(ctx, s.Logger, s.Config.Retry, operation, func() error {
		return fn(handle.Conn())
	})
}

// -----------------------------------------------------------------------------
// Bar Retrieval
// -----------------------------------------------------------------------------

// GetBars returns one page of bars for the given table at the requested
// timeframe. Validation failures surface before any connection is taken.
func (s *DataService) GetBars(ctx context.Context, table, timeframe, startDate, endDate string,
	offset, limit int) (*models.MPage, error) {

	if err := storage.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	tf, err := aggregation.ParseTimeframe(timeframe, s.native)
	if err != nil {
		return nil, err
	}

	fromTime, toTime, err := parseDateRange(startDate, endDate, s.Calendar.Location())
	if err != nil {
		return nil, err
	}

	offset = clampOffset(offset)
	limit = clampLimit(limit, s.Config.Paging)

	query := models.MBarQuery{
		Table:    table,
		FromTime: fromTime,
		ToTime:   toTime,
	}

	var page *models.MPage
	operation := fmt.Sprintf("getBars(%s/%s)", table, tf.Name)

	err = s.withConn(ctx, operation, func(conn *sql.Conn) error {
		exists, err := s.Store.TableExists(ctx, conn, table)
		if err != nil {
			return err
		}
		if !exists {
			return helpers.WrapError(helpers.ErrNotFound, nil, "no data table for '%s'", table)
		}

		if tf.Raw() {
			page, err = s.rawPage(ctx, conn, query, offset, limit)
		} else {
			page, err = s.aggregatedPage(ctx, conn, query, tf, offset, limit)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// -----------------------------------------------------------------------------

// rawPage serves the native timeframe straight from storage: the database
// does the slicing, no accumulator involved. The count and data queries share
// one well-formedness filter, so total, offset and has_more all range over
// the same sequence of renderable bars; excluded NULL-OHLC rows are reported
// via the malformed diagnostic count only.
func (s *DataService) rawPage(ctx context.Context, conn *sql.Conn, query models.MBarQuery,
	offset, limit int) (*models.MPage, error) {

	total, err := s.Store.CountBars(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	dropped, err := s.Store.CountMalformedBars(ctx, conn, query)
	if err != nil {
		return nil, err
	}

	query.Offset = offset
	query.Limit = limit
	bars, err := s.Store.QueryBars(ctx, conn, query)
	if err != nil {
		return nil, err
	}

	return buildPage(bars, offset, limit, total, aggregation.RawTimeframe, int(dropped)), nil
}

// -----------------------------------------------------------------------------

// aggregatedPage streams every native bar in the range through an
// accumulator, counting all completed buckets so the reported total is exact
// while only the requested window stays in memory.
func (s *DataService) aggregatedPage(ctx context.Context, conn *sql.Conn, query models.MBarQuery,
	tf aggregation.Timeframe, offset, limit int) (*models.MPage, error) {

	acc := aggregation.NewAccumulator(tf, s.Calendar.Location())
	out := make([]models.MBar, 0, limit)
	var total int64

	collect := func(b *models.MBar) {
		if b == nil {
			return
		}
		total++
		if total > int64(offset) && len(out) < limit {
			out = append(out, *b)
		}
	}

	err := s.Store.StreamBars(ctx, conn, query, func(bar models.MBar) error {
		collect(acc.Add(bar))
		return nil
	})
	if err != nil {
		return nil, err
	}
	collect(acc.Flush())

	// Malformed rows never reach the stream; the diagnostic count comes
	// from the store so raw and aggregated pages report it identically.
	dropped, err := s.Store.CountMalformedBars(ctx, conn, query)
	if err != nil {
		return nil, err
	}

	return buildPage(out, offset, limit, total, tf.Name, int(dropped)), nil
}

// -----------------------------------------------------------------------------
// Instrument Catalog
// -----------------------------------------------------------------------------

// ListInstruments returns the discovered instrument tables, served from the
// cache when warm. Concurrent cold calls share a single discovery pass.
func (s *DataService) ListInstruments(ctx context.Context) ([]models.MInstrument, error) {
	value, err := s.Cache.GetOrCompute(instrumentsCacheKey, func() (interface{}, error) {
		var instruments []models.MInstrument
		err := s.withConn(ctx, "listInstruments", func(conn *sql.Conn) error {
			var err error
			instruments, err = s.Store.ListInstruments(ctx, conn)
			return err
		})
		return instruments, err
	})
	if err != nil {
		return nil, err
	}

	instruments, ok := value.([]models.MInstrument)
	if !ok {
		return nil, fmt.Errorf("unexpected cache entry type %T for %s", value, instrumentsCacheKey)
	}
	return instruments, nil
}

// -----------------------------------------------------------------------------

// RefreshInstruments drops the cached catalog and rebuilds it. Wired to the
// maintenance scheduler so newly ingested tables show up without a restart.
func (s *DataService) RefreshInstruments(ctx context.Context) error {
	s.Cache.Invalidate(instrumentsCacheKey)
	instruments, err := s.ListInstruments(ctx)
	if err != nil {
		s.Logger.Warning("catalog refresh failed: %v", err)
		return err
	}
	s.Logger.Info("catalog refreshed, %d instrument table(s)", len(instruments))
	return nil
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthCheck probes storage through the pool and reports the number of
// discoverable instrument tables.
func (s *DataService) HealthCheck(ctx context.Context) (int, error) {
	instruments, err := s.ListInstruments(ctx)
	if err != nil {
		return 0, err
	}
	return len(instruments), nil
}

// PoolStats exposes connection pool gauges for the health endpoint.
func (s *DataService) PoolStats() storage.PoolStats {
	return s.Pool.Stats()
}
