package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"trading-data-viewer/src/cache"
	"trading-data-viewer/src/config"
	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/models"
	"trading-data-viewer/src/storage"
)

// ts0 is aligned to both the native minute and the 5-minute bucket width.
const ts0 = int64(1_699_999_800)

func newTestService(t *testing.T) *DataService {
	t.Helper()

	cfg := &config.Config{MConfig: &models.MConfig{
		Name:        "viewer-test",
		Host:        "127.0.0.1",
		Port:        8086,
		LogLevel:    "CRITICAL",
		CalendarMIC: "xnys",
		Storage: models.MStorageConfig{
			DBType:         "sqlite",
			DBPath:         filepath.Join(t.TempDir(), "service_test.db"),
			NativeInterval: "1m",
		},
		Pool:   models.MPoolConfig{MaxConnections: 4, AcquireTimeoutSeconds: 5, IdleTimeoutSeconds: 300},
		Retry:  models.MRetryConfig{MaxAttempts: 3, BaseDelayMs: 1, MaxDelayMs: 4},
		Paging: models.MPagingConfig{DefaultLimit: 250, HardCap: 50000},
		Cache:  models.MCacheConfig{Capacity: 100},
	}}

	log := logger.NewLogger(cfg.LogLevel, cfg.Name)

	store, err := storage.NewSQLiteStore(cfg.MConfig, log)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Initialize(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pool := storage.NewConnectionPool(store.Handle(), cfg.Pool, log)
	t.Cleanup(pool.Close)

	svc, err := NewDataService(cfg, log, store, pool, cache.New(cfg.Cache.Capacity, 0, log))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// seedBars creates a bar table with n consecutive minute bars from ts0.
// Bar i: open=100+i, high=open+1, low=open-1, close=open+0.5, volume=10.
func seedBars(t *testing.T, svc *DataService, table string, n int) {
	t.Helper()
	db := svc.Store.Handle()

	if _, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE "%s" (
			timestamp INTEGER NOT NULL,
			open REAL, high REAL, low REAL, close REAL,
			volume INTEGER
		)`, table)); err != nil {
		t.Fatalf("create %s: %v", table, err)
	}

	for i := 0; i < n; i++ {
		o := 100.0 + float64(i)
		if _, err := db.Exec(fmt.Sprintf(
			`INSERT INTO "%s" (timestamp, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?)`, table),
			ts0+int64(i)*60, o, o+1, o-1, o+0.5, 10); err != nil {
			t.Fatalf("seed %s: %v", table, err)
		}
	}
}

// -----------------------------------------------------------------------------
// Validation Order
// -----------------------------------------------------------------------------

func TestGetBarsRejectsUnsafeIdentifier(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetBars(context.Background(), "es_bars; DROP TABLE es_bars", "raw", "", "", 0, 10)
	if !errors.Is(err, helpers.ErrInvalidIdentifier) {
		t.Fatalf("got %v, want ErrInvalidIdentifier", err)
	}
}

func TestGetBarsRejectsUnknownTimeframe(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 5)

	for _, tf := range []string{"7min", "3h", "weekly", ""} {
		_, err := svc.GetBars(context.Background(), "es_bars", tf, "", "", 0, 10)
		if !errors.Is(err, helpers.ErrInvalidTimeframe) {
			t.Errorf("timeframe %q: got %v, want ErrInvalidTimeframe", tf, err)
		}
	}
}

func TestGetBarsUnknownTableIsNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetBars(context.Background(), "zz_bars", "raw", "", "", 0, 10)
	if !errors.Is(err, helpers.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGetBarsRejectsBadDate(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 5)

	_, err := svc.GetBars(context.Background(), "es_bars", "raw", "01/02/2024", "", 0, 10)
	if !errors.Is(err, helpers.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

// -----------------------------------------------------------------------------
// Raw Retrieval
// -----------------------------------------------------------------------------

func TestGetBarsRaw(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 10)

	page, err := svc.GetBars(context.Background(), "es_bars", "raw", "", "", 0, 4)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}

	if len(page.Bars) != 4 {
		t.Fatalf("got %d bars, want 4", len(page.Bars))
	}
	if page.Pagination.Total != 10 || !page.Pagination.HasMore {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if page.Bars[0].Timestamp != ts0 || page.Bars[0].Open != 100 {
		t.Errorf("first bar = %+v", page.Bars[0])
	}
	if page.Timeframe != "raw" {
		t.Errorf("timeframe = %q", page.Timeframe)
	}
}

func TestGetBarsDefaultLimit(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 300)

	page, err := svc.GetBars(context.Background(), "es_bars", "raw", "", "", 0, 0)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(page.Bars) != 250 || page.Pagination.Limit != 250 {
		t.Errorf("default limit not applied: %d bars, limit %d", len(page.Bars), page.Pagination.Limit)
	}
}

func TestGetBarsClampsOversizedLimit(t *testing.T) {
	svc := newTestService(t)
	svc.Config.Paging.HardCap = 20
	svc.Config.Paging.DefaultLimit = 5
	seedBars(t, svc, "es_bars", 50)

	page, err := svc.GetBars(context.Background(), "es_bars", "raw", "", "", 0, 1_000_000)
	if err != nil {
		t.Fatalf("oversized limit must clamp, not fail: %v", err)
	}
	if len(page.Bars) != 20 || page.Pagination.Limit != 20 {
		t.Errorf("clamp failed: %d bars, limit %d", len(page.Bars), page.Pagination.Limit)
	}
	if !page.Pagination.HasMore || page.Pagination.Total != 50 {
		t.Errorf("pagination = %+v", page.Pagination)
	}
}

// -----------------------------------------------------------------------------
// Aggregated Retrieval
// -----------------------------------------------------------------------------

func TestGetBarsAggregated(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 25) // 5 complete 5-minute buckets

	page, err := svc.GetBars(context.Background(), "es_bars", "5min", "", "", 0, 100)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}

	if len(page.Bars) != 5 {
		t.Fatalf("got %d buckets, want 5", len(page.Bars))
	}
	if page.Pagination.Total != 5 || page.Pagination.HasMore {
		t.Errorf("pagination = %+v", page.Pagination)
	}

	for k, b := range page.Bars {
		first := 100.0 + float64(5*k)
		last := first + 4
		if b.Timestamp != ts0+int64(k)*300 {
			t.Errorf("bucket %d timestamp = %d", k, b.Timestamp)
		}
		if b.Open != first || b.Close != last+0.5 || b.High != last+1 || b.Low != first-1 {
			t.Errorf("bucket %d OHLC = %+v", k, b)
		}
		if b.Volume != 50 || b.BarCount != 5 {
			t.Errorf("bucket %d volume=%d count=%d", k, b.Volume, b.BarCount)
		}
	}
}

func TestGetBarsAggregatedPaginationConsistency(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 25)

	full, err := svc.GetBars(context.Background(), "es_bars", "5min", "", "", 0, 100)
	if err != nil {
		t.Fatalf("full fetch: %v", err)
	}

	var paged []models.MBar
	for offset := 0; ; offset += 2 {
		page, err := svc.GetBars(context.Background(), "es_bars", "5min", "", "", offset, 2)
		if err != nil {
			t.Fatalf("page at offset %d: %v", offset, err)
		}
		if page.Pagination.Total != full.Pagination.Total {
			t.Fatalf("total drifted: %d at offset %d, want %d",
				page.Pagination.Total, offset, full.Pagination.Total)
		}
		paged = append(paged, page.Bars...)
		if !page.Pagination.HasMore {
			if len(page.Bars) == 0 && offset < int(full.Pagination.Total) {
				t.Fatalf("empty page before end at offset %d", offset)
			}
			break
		}
	}

	if len(paged) != len(full.Bars) {
		t.Fatalf("concatenated %d bars, want %d", len(paged), len(full.Bars))
	}
	for i := range paged {
		if paged[i] != full.Bars[i] {
			t.Errorf("bar %d differs: paged=%+v full=%+v", i, paged[i], full.Bars[i])
		}
	}
}

func TestGetBarsExcludesMalformed(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 10)

	// A row with NULL prices must be excluded and counted, never aggregated.
	if _, err := svc.Store.Handle().Exec(
		`INSERT INTO es_bars (timestamp, open, high, low, close, volume) VALUES (?, NULL, NULL, NULL, NULL, NULL)`,
		ts0+30); err != nil {
		t.Fatalf("seed malformed row: %v", err)
	}

	page, err := svc.GetBars(context.Background(), "es_bars", "5min", "", "", 0, 100)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if page.DroppedBars != 1 {
		t.Errorf("dropped = %d, want 1", page.DroppedBars)
	}
	if page.Bars[0].BarCount != 5 {
		t.Errorf("malformed row leaked into bucket: %+v", page.Bars[0])
	}
}

func TestGetBarsRawMalformedPaginationConsistency(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 10)

	if _, err := svc.Store.Handle().Exec(
		`INSERT INTO es_bars (timestamp, open, high, low, close, volume) VALUES (?, NULL, NULL, NULL, NULL, NULL)`,
		ts0+90); err != nil {
		t.Fatalf("seed malformed row: %v", err)
	}

	// A single page holding every renderable bar must be final: total ranges
	// over well-formed rows only, the NULL row shows up in dropped_bars.
	full, err := svc.GetBars(context.Background(), "es_bars", "raw", "", "", 0, 250)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(full.Bars) != 10 || full.Pagination.Total != 10 {
		t.Fatalf("got %d bars, total %d, want 10/10", len(full.Bars), full.Pagination.Total)
	}
	if full.Pagination.HasMore {
		t.Error("has_more=true on a page containing every renderable bar")
	}
	if full.DroppedBars != 1 {
		t.Errorf("dropped = %d, want 1", full.DroppedBars)
	}

	// Walking by returned count must terminate without duplicates.
	seen := map[int64]bool{}
	var walked []models.MBar
	for offset := 0; ; {
		page, err := svc.GetBars(context.Background(), "es_bars", "raw", "", "", offset, 4)
		if err != nil {
			t.Fatalf("page at offset %d: %v", offset, err)
		}
		for _, b := range page.Bars {
			if seen[b.Timestamp] {
				t.Fatalf("bar %d delivered twice", b.Timestamp)
			}
			seen[b.Timestamp] = true
		}
		walked = append(walked, page.Bars...)
		if !page.Pagination.HasMore {
			break
		}
		offset += len(page.Bars)
	}
	if len(walked) != 10 {
		t.Fatalf("walked %d bars, want 10", len(walked))
	}
	for i, b := range walked {
		if b.Timestamp != full.Bars[i].Timestamp {
			t.Errorf("bar %d out of order: %d vs %d", i, b.Timestamp, full.Bars[i].Timestamp)
		}
	}
}

func TestGetBarsDateRange(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 25)

	loc := svc.Calendar.Location()
	day := time.Unix(ts0, 0).In(loc).Format("2006-01-02")

	page, err := svc.GetBars(context.Background(), "es_bars", "raw", day, day, 0, 1000)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	// All seeded bars fall inside one session day.
	if page.Pagination.Total == 0 {
		t.Error("date-bounded query returned nothing")
	}

	empty, err := svc.GetBars(context.Background(), "es_bars", "raw", "1990-01-01", "1990-01-02", 0, 1000)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if empty.Pagination.Total != 0 || len(empty.Bars) != 0 || empty.Pagination.HasMore {
		t.Errorf("out-of-range query = %+v", empty.Pagination)
	}
}

// -----------------------------------------------------------------------------
// Instrument Catalog
// -----------------------------------------------------------------------------

func TestListInstruments(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 10)
	seedBars(t, svc, "nq_bars", 10)

	// Neither a non-suffixed table nor one missing bar columns may surface.
	db := svc.Store.Handle()
	if _, err := db.Exec(`CREATE TABLE notes (id INTEGER, body TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE broken_bars (timestamp INTEGER, price REAL)`); err != nil {
		t.Fatal(err)
	}

	instruments, err := svc.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("got %d instruments, want 2: %+v", len(instruments), instruments)
	}
	if instruments[0].Instrument != "ES" || instruments[1].Instrument != "NQ" {
		t.Errorf("unexpected catalog: %+v", instruments)
	}
	if instruments[0].RecordCount != 10 {
		t.Errorf("record count = %d", instruments[0].RecordCount)
	}
}

func TestListInstrumentsCachedUntilRefresh(t *testing.T) {
	svc := newTestService(t)
	seedBars(t, svc, "es_bars", 10)

	first, err := svc.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("ListInstruments: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("got %d instruments, want 1", len(first))
	}

	seedBars(t, svc, "nq_bars", 10)

	cached, err := svc.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("cached ListInstruments: %v", err)
	}
	if len(cached) != 1 {
		t.Errorf("cache missed: got %d instruments", len(cached))
	}

	if err := svc.RefreshInstruments(context.Background()); err != nil {
		t.Fatalf("RefreshInstruments: %v", err)
	}
	refreshed, err := svc.ListInstruments(context.Background())
	if err != nil {
		t.Fatalf("refreshed ListInstruments: %v", err)
	}
	if len(refreshed) != 2 {
		t.Errorf("got %d instruments after refresh, want 2", len(refreshed))
	}
}

// -----------------------------------------------------------------------------
// Saved Drawings
// -----------------------------------------------------------------------------

func TestDrawingLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.SaveDrawing(ctx, &models.MDrawing{
		Name:        "morning setup",
		Layout:      2,
		Instruments: []string{"ES", "NQ"},
		Timeframe:   "15min",
		Drawings:    []byte(`[{"type":"trendline","points":[1,2]}]`),
	})
	if err != nil {
		t.Fatalf("SaveDrawing: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d", id)
	}

	got, err := svc.GetDrawing(ctx, id)
	if err != nil {
		t.Fatalf("GetDrawing: %v", err)
	}
	if got.Name != "morning setup" || got.Layout != 2 || got.Timeframe != "15min" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Instruments) != 2 || got.Instruments[0] != "ES" {
		t.Errorf("instruments = %v", got.Instruments)
	}

	list, err := svc.ListDrawings(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListDrawings: %v", err)
	}
	if len(list.Drawings) != 1 || list.Pagination.Total != 1 || list.Pagination.HasMore {
		t.Errorf("list = %+v", list)
	}

	if err := svc.DeleteDrawing(ctx, id); err != nil {
		t.Fatalf("DeleteDrawing: %v", err)
	}
	if err := svc.DeleteDrawing(ctx, id); !errors.Is(err, helpers.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err := svc.GetDrawing(ctx, id); !errors.Is(err, helpers.ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
}

func TestSaveDrawingValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SaveDrawing(ctx, &models.MDrawing{Name: "   "}); !errors.Is(err, helpers.ErrInvalidInput) {
		t.Errorf("blank name: got %v, want ErrInvalidInput", err)
	}

	// Out-of-range layout and timeframe are coerced, not rejected.
	id, err := svc.SaveDrawing(ctx, &models.MDrawing{Name: "odd", Layout: 7, Timeframe: "37min"})
	if err != nil {
		t.Fatalf("SaveDrawing: %v", err)
	}
	got, err := svc.GetDrawing(ctx, id)
	if err != nil {
		t.Fatalf("GetDrawing: %v", err)
	}
	if got.Layout != 1 || got.Timeframe != "1min" {
		t.Errorf("coercion failed: layout=%d timeframe=%q", got.Layout, got.Timeframe)
	}
	if string(got.Drawings) != "[]" {
		t.Errorf("missing payload should default to [], got %s", got.Drawings)
	}
}
