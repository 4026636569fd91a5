package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCandleResolver_StoreSufficient(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stored := makeCandles("BTCUSDT", "1m", 60, base, time.Minute)

	store := &fakeStore{
		recentCandlesFn: func(string, string, int) ([]Candle, error) {
			return stored, nil
		},
	}
	ex := &fakeExchange{}

	r := NewCandleResolver(store, ex, CandleResolverOptions{}, nil)

	candles, source, err := r.Resolve(context.Background(), "BTCUSDT", "1m", 100)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if source != SourceStore {
		t.Errorf("expected source=store, got %s", source)
	}
	if len(candles) != 60 {
		t.Errorf("expected 60 candles, got %d", len(candles))
	}
	if ex.callCount("FetchCandles") != 0 {
		t.Errorf("exchange must not be called when store coverage is sufficient")
	}
}

func TestCandleResolver_SmallLimitSufficiency(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// limit=10 时充分阈值为 min(50, 5)=5。
	store := &fakeStore{
		recentCandlesFn: func(string, string, int) ([]Candle, error) {
			return makeCandles("ETHUSDT", "1h", 5, base, time.Hour), nil
		},
	}
	ex := &fakeExchange{}

	r := NewCandleResolver(store, ex, CandleResolverOptions{}, nil)

	_, source, err := r.Resolve(context.Background(), "ETHUSDT", "1h", 10)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if source != SourceStore {
		t.Errorf("expected source=store, got %s", source)
	}
}

func TestCandleResolver_FallbackAndRepair(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fetched := makeCandles("XYZUSDT", "1m", 100, base, time.Minute)

	done := make(chan struct{})
	var written []Candle

	store := &fakeStore{
		writeDone: done,
		writeCandlesFn: func(candles []Candle) (int, error) {
			written = candles
			return len(candles), nil
		},
	}
	ex := &fakeExchange{
		fetchCandlesFn: func(string, string, int) ([]Candle, error) {
			return fetched, nil
		},
	}

	r := NewCandleResolver(store, ex, CandleResolverOptions{}, nil)

	candles, source, err := r.Resolve(context.Background(), "XYZUSDT", "1m", 100)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if source != SourceExchange {
		t.Errorf("expected source=exchange, got %s", source)
	}
	if len(candles) != 100 {
		t.Errorf("expected 100 candles, got %d", len(candles))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("opportunistic store write did not happen")
	}
	if len(written) != 100 {
		t.Errorf("expected 100 candles written back, got %d", len(written))
	}
}

func TestCandleResolver_RepairFailureDoesNotAffectResult(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	done := make(chan struct{})

	store := &fakeStore{
		writeDone: done,
		writeCandlesFn: func([]Candle) (int, error) {
			return 0, errors.New("influx write failed")
		},
	}
	ex := &fakeExchange{
		fetchCandlesFn: func(string, string, int) ([]Candle, error) {
			return makeCandles("BTCUSDT", "5m", 80, base, 5*time.Minute), nil
		},
	}

	r := NewCandleResolver(store, ex, CandleResolverOptions{}, nil)

	candles, source, err := r.Resolve(context.Background(), "BTCUSDT", "5m", 100)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if source != SourceExchange || len(candles) != 80 {
		t.Errorf("unexpected result: source=%s count=%d", source, len(candles))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("opportunistic store write did not happen")
	}
}

func TestCandleResolver_BothEmpty(t *testing.T) {
	store := &fakeStore{}
	ex := &fakeExchange{}

	r := NewCandleResolver(store, ex, CandleResolverOptions{}, nil)

	_, _, err := r.Resolve(context.Background(), "XYZUSDT", "1m", 100)
	if !errors.Is(err, ErrNoCandleData) {
		t.Fatalf("expected ErrNoCandleData, got %v", err)
	}
}

func TestCandleResolver_InvalidRequest(t *testing.T) {
	r := NewCandleResolver(&fakeStore{}, &fakeExchange{}, CandleResolverOptions{MaxLimit: 1000}, nil)

	if _, _, err := r.Resolve(context.Background(), "BTCUSDT", "7m", 100); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for unsupported timeframe, got %v", err)
	}
	if _, _, err := r.Resolve(context.Background(), "BTCUSDT", "1m", 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for limit=0, got %v", err)
	}
	if _, _, err := r.Resolve(context.Background(), "BTCUSDT", "1m", 1001); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for limit>max, got %v", err)
	}
}
