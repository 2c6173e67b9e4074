package service

import (
	"errors"
	"testing"
	"time"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/models"
)

func TestParseDateRange(t *testing.T) {
	from, to, err := parseDateRange("2024-01-02", "2024-01-02", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *from != 1704153600 {
		t.Errorf("from = %d", *from)
	}
	if *to != 1704153600+86399 {
		t.Errorf("to = %d, want inclusive end of day", *to)
	}

	from, to, err = parseDateRange("", "", time.UTC)
	if err != nil || from != nil || to != nil {
		t.Errorf("open range: %v %v %v", from, to, err)
	}
}

func TestParseDateRangeInverted(t *testing.T) {
	_, _, err := parseDateRange("2024-02-01", "2024-01-01", time.UTC)
	if !errors.Is(err, helpers.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestClampLimit(t *testing.T) {
	cfg := models.MPagingConfig{DefaultLimit: 250, HardCap: 50000}

	cases := map[int]int{
		0:       250,
		-5:      250,
		100:     100,
		50000:   50000,
		50001:   50000,
		9000000: 50000,
	}
	for in, want := range cases {
		if got := clampLimit(in, cfg); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBuildPageHasMore(t *testing.T) {
	bars := make([]models.MBar, 10)

	p := buildPage(bars, 0, 10, 25, "5min", 0)
	if !p.Pagination.HasMore {
		t.Error("expected has_more at offset 0 of 25")
	}

	p = buildPage(bars[:5], 20, 10, 25, "5min", 0)
	if p.Pagination.HasMore {
		t.Error("unexpected has_more on final page")
	}

	p = buildPage(nil, 100, 10, 25, "5min", 0)
	if p.Bars == nil || p.Pagination.HasMore {
		t.Error("past-the-end page must be empty and final")
	}
}
