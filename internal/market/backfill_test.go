package market

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBackfill_SkipsWhenCoverageSufficient(t *testing.T) {
	store := &fakeStore{
		countCandlesFn: func(string, string) (int, error) { return 150, nil },
	}
	ex := &fakeExchange{}

	c := NewBackfillController(store, ex, BackfillOptions{Threshold: 100}, nil)

	outcome, err := c.Backfill(context.Background(), "BTCUSDT", "1m", 500)
	if err != nil {
		t.Fatalf("Backfill returned error: %v", err)
	}
	if outcome.Status != BackfillSkipped {
		t.Errorf("expected skipped, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Reason, "150") {
		t.Errorf("expected reason to carry the existing count, got %q", outcome.Reason)
	}
	if ex.callCount("FetchCandles") != 0 {
		t.Errorf("exchange must not be called on skip path")
	}
}

func TestBackfill_FailsWhenExchangeEmpty(t *testing.T) {
	c := NewBackfillController(&fakeStore{}, &fakeExchange{}, BackfillOptions{}, nil)

	outcome, err := c.Backfill(context.Background(), "XYZUSDT", "1m", 500)
	if err != nil {
		t.Fatalf("Backfill returned error: %v", err)
	}
	if outcome.Status != BackfillFailed {
		t.Errorf("expected failed, got %s", outcome.Status)
	}
	if outcome.CandlesWritten != 0 {
		t.Errorf("expected 0 written, got %d", outcome.CandlesWritten)
	}
}

func TestBackfill_FailsWithExchangeErrorText(t *testing.T) {
	ex := &fakeExchange{
		fetchCandlesFn: func(string, string, int) ([]Candle, error) {
			return nil, errors.New("request timeout")
		},
	}

	c := NewBackfillController(&fakeStore{}, ex, BackfillOptions{}, nil)

	outcome, err := c.Backfill(context.Background(), "BTCUSDT", "1m", 500)
	if err != nil {
		t.Fatalf("Backfill returned error: %v", err)
	}
	if outcome.Status != BackfillFailed {
		t.Errorf("expected failed, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Reason, "request timeout") {
		t.Errorf("expected error text in reason, got %q", outcome.Reason)
	}
}

func TestBackfill_SucceedsAndIsIdempotent(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fetched := makeCandles("BTCUSDT", "1m", 200, base, time.Minute)

	firstRun := true
	store := &fakeStore{
		countCandlesFn: func(string, string) (int, error) { return 0, nil },
		writeCandlesFn: func(candles []Candle) (int, error) {
			// 自然键幂等：重复写入已有开盘时间不计入新增。
			if firstRun {
				firstRun = false
				return len(candles), nil
			}
			return 0, nil
		},
	}
	ex := &fakeExchange{
		fetchCandlesFn: func(string, string, int) ([]Candle, error) { return fetched, nil },
	}

	c := NewBackfillController(store, ex, BackfillOptions{Threshold: 300}, nil)

	outcome, err := c.Backfill(context.Background(), "BTCUSDT", "1m", 200)
	if err != nil {
		t.Fatalf("first Backfill returned error: %v", err)
	}
	if outcome.Status != BackfillSucceeded || outcome.CandlesWritten != 200 {
		t.Errorf("unexpected first outcome: %+v", outcome)
	}

	outcome, err = c.Backfill(context.Background(), "BTCUSDT", "1m", 200)
	if err != nil {
		t.Fatalf("second Backfill returned error: %v", err)
	}
	if outcome.Status != BackfillSucceeded || outcome.CandlesWritten != 0 {
		t.Errorf("expected idempotent second run with 0 written, got %+v", outcome)
	}
}

func TestBackfill_CountErrorProceeds(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	store := &fakeStore{
		countCandlesFn: func(string, string) (int, error) {
			return 0, errors.New("influx unreachable")
		},
	}
	ex := &fakeExchange{
		fetchCandlesFn: func(string, string, int) ([]Candle, error) {
			return makeCandles("BTCUSDT", "1m", 50, base, time.Minute), nil
		},
	}

	c := NewBackfillController(store, ex, BackfillOptions{}, nil)

	outcome, err := c.Backfill(context.Background(), "BTCUSDT", "1m", 50)
	if err != nil {
		t.Fatalf("Backfill returned error: %v", err)
	}
	if outcome.Status != BackfillSucceeded {
		t.Errorf("coverage-count failure should not block backfill, got %s", outcome.Status)
	}
}

func TestBackfill_InvalidRequest(t *testing.T) {
	c := NewBackfillController(&fakeStore{}, &fakeExchange{}, BackfillOptions{MaxLimit: 1000}, nil)

	if _, err := c.Backfill(context.Background(), "BTCUSDT", "banana", 100); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for bad timeframe, got %v", err)
	}
	if _, err := c.Backfill(context.Background(), "BTCUSDT", "1m", 2000); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for oversized limit, got %v", err)
	}
}
