package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CandleResolverOptions 控制K线解析行为。
type CandleResolverOptions struct {
	// Lookback 为存储查询的回看窗口。
	Lookback time.Duration
	// FetchTimeout 为交易所历史K线调用的超时。
	FetchTimeout time.Duration
	// RepairTimeout 为后台补写存储的独立超时。
	RepairTimeout time.Duration
	// MaxLimit 为单次请求允许的最大K线数。
	MaxLimit int
}

func (o *CandleResolverOptions) applyDefaults() {
	if o.Lookback <= 0 {
		o.Lookback = 7 * 24 * time.Hour
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.RepairTimeout <= 0 {
		o.RepairTimeout = 30 * time.Second
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 1000
	}
}

// CandleResolver 优先返回存储中的K线，覆盖不足时降级到交易所，
// 并在后台将交易所数据补写回存储。
type CandleResolver struct {
	store    storeClient
	exchange exchangeClient
	opts     CandleResolverOptions
	logger   *zap.Logger
}

// NewCandleResolver 创建K线解析器。
func NewCandleResolver(store storeClient, exchange exchangeClient,
	opts CandleResolverOptions, logger *zap.Logger) *CandleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()

	return &CandleResolver{
		store:    store,
		exchange: exchange,
		opts:     opts,
		logger:   logger,
	}
}

// Resolve 返回最多 limit 根K线及其来源，按开盘时间升序。
// 存储根数达到 min(50, limit/2) 视为覆盖充分；两个来源均为空时返回 ErrNoCandleData。
func (r *CandleResolver) Resolve(ctx context.Context, symbol, timeframe string, limit int) (
	[]Candle, Source, error) {
	if !IsSupportedTimeframe(timeframe) {
		return nil, "", fmt.Errorf("%w: 不支持的K线周期 %q", ErrInvalidRequest, timeframe)
	}
	if limit <= 0 || limit > r.opts.MaxLimit {
		return nil, "", fmt.Errorf("%w: limit 必须位于[1,%d]", ErrInvalidRequest, r.opts.MaxLimit)
	}

	stored, err := r.store.RecentCandles(ctx, symbol, timeframe, r.opts.Lookback, limit)
	if err != nil {
		r.logger.Warn("存储K线查询失败，降级到交易所",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err),
		)
		stored = nil
	}

	if len(stored) > 0 && len(stored) >= sufficientCount(limit) {
		return stored, SourceStore, nil
	}

	r.logger.Info("存储K线覆盖不足，从交易所拉取",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("stored", len(stored)),
		zap.Int("limit", limit),
	)

	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	fetched, err := r.exchange.FetchCandles(fetchCtx, symbol, timeframe, limit)
	if err != nil {
		r.logger.Error("交易所K线查询失败",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err),
		)
		return nil, "", fmt.Errorf("%w: %s %s", ErrNoCandleData, symbol, timeframe)
	}
	if len(fetched) == 0 {
		return nil, "", fmt.Errorf("%w: %s %s", ErrNoCandleData, symbol, timeframe)
	}

	// 补写存储不阻塞响应，调用方取消也不影响后台写入。
	go r.repairStore(fetched)

	return fetched, SourceExchange, nil
}

func (r *CandleResolver) repairStore(candles []Candle) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.RepairTimeout)
	defer cancel()

	written, err := r.store.WriteCandles(ctx, candles)
	if err != nil {
		r.logger.Warn("后台补写K线失败",
			zap.String("symbol", candles[0].Symbol),
			zap.String("timeframe", candles[0].Timeframe),
			zap.Error(err),
		)
		return
	}

	r.logger.Info("后台补写K线完成",
		zap.String("symbol", candles[0].Symbol),
		zap.String("timeframe", candles[0].Timeframe),
		zap.Int("written", written),
	)
}

// sufficientCount 为存储覆盖充分的最低根数。
func sufficientCount(limit int) int {
	half := limit / 2
	if half < 50 {
		return half
	}
	return 50
}
