package market

import (
	"context"
	"sync"
	"time"
)

type fakeStore struct {
	mu    sync.Mutex
	calls []string

	latestPriceFn   func(symbol string) (*PricePoint, error)
	recentCandlesFn func(symbol, timeframe string, limit int) ([]Candle, error)
	countCandlesFn  func(symbol, timeframe string) (int, error)
	writeCandlesFn  func(candles []Candle) (int, error)

	writeDone chan struct{}
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStore) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeStore) LatestPrice(_ context.Context, symbol string, _ time.Duration) (*PricePoint, error) {
	f.record("LatestPrice")
	if f.latestPriceFn == nil {
		return nil, nil
	}
	return f.latestPriceFn(symbol)
}

func (f *fakeStore) RecentCandles(_ context.Context, symbol, timeframe string, _ time.Duration, limit int) ([]Candle, error) {
	f.record("RecentCandles")
	if f.recentCandlesFn == nil {
		return nil, nil
	}
	return f.recentCandlesFn(symbol, timeframe, limit)
}

func (f *fakeStore) CountCandles(_ context.Context, symbol, timeframe string, _ time.Duration) (int, error) {
	f.record("CountCandles")
	if f.countCandlesFn == nil {
		return 0, nil
	}
	return f.countCandlesFn(symbol, timeframe)
}

func (f *fakeStore) WriteCandles(_ context.Context, candles []Candle) (int, error) {
	f.record("WriteCandles")
	written, err := len(candles), error(nil)
	if f.writeCandlesFn != nil {
		written, err = f.writeCandlesFn(candles)
	}
	if f.writeDone != nil {
		close(f.writeDone)
		f.writeDone = nil
	}
	return written, err
}

type fakeExchange struct {
	mu    sync.Mutex
	calls []string

	fetchPriceFn   func(symbol string) (PricePoint, error)
	fetchCandlesFn func(symbol, timeframe string, limit int) ([]Candle, error)
}

func (f *fakeExchange) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeExchange) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeExchange) FetchPrice(_ context.Context, symbol string) (PricePoint, error) {
	f.record("FetchPrice")
	if f.fetchPriceFn == nil {
		return PricePoint{}, nil
	}
	return f.fetchPriceFn(symbol)
}

func (f *fakeExchange) FetchCandles(_ context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	f.record("FetchCandles")
	if f.fetchCandlesFn == nil {
		return nil, nil
	}
	return f.fetchCandlesFn(symbol, timeframe, limit)
}

func makeCandles(symbol, timeframe string, n int, start time.Time, step time.Duration) []Candle {
	candles := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		open := 100 + float64(i)
		candles = append(candles, Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  start.Add(time.Duration(i) * step),
			Open:      open,
			High:      open + 1,
			Low:       open - 1,
			Close:     open + 0.5,
			Volume:    10,
		})
	}
	return candles
}
