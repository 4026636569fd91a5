package market

import (
	"context"
	"time"
)

// storeClient 为时序存储读写能力的最小集合。
// 查询不命中时返回空结果而非错误。
type storeClient interface {
	LatestPrice(ctx context.Context, symbol string, lookback time.Duration) (*PricePoint, error)
	RecentCandles(ctx context.Context, symbol, timeframe string, lookback time.Duration, limit int) ([]Candle, error)
	CountCandles(ctx context.Context, symbol, timeframe string, window time.Duration) (int, error)
	WriteCandles(ctx context.Context, candles []Candle) (int, error)
}

// exchangeClient 为交易所行情能力的最小集合。
type exchangeClient interface {
	FetchPrice(ctx context.Context, symbol string) (PricePoint, error)
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}
