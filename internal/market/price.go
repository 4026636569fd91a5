package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PriceResolverOptions 控制价格解析行为。
type PriceResolverOptions struct {
	// Lookback 为存储查询的回看窗口。
	Lookback time.Duration
	// Freshness 为存储价格可信的最大年龄。
	Freshness time.Duration
	// FetchTimeout 为交易所实时价格调用的超时。
	FetchTimeout time.Duration
}

func (o *PriceResolverOptions) applyDefaults() {
	if o.Lookback <= 0 {
		o.Lookback = time.Hour
	}
	if o.Freshness <= 0 {
		o.Freshness = 5 * time.Minute
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Second
	}
}

// PriceResolver 依次尝试时序存储与交易所，返回最新可信价格。
type PriceResolver struct {
	store    storeClient
	exchange exchangeClient
	opts     PriceResolverOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewPriceResolver 创建价格解析器。
func NewPriceResolver(store storeClient, exchange exchangeClient,
	opts PriceResolverOptions, logger *zap.Logger) *PriceResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()

	return &PriceResolver{
		store:    store,
		exchange: exchange,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve 返回交易对的最新可信价格。
// 存储命中且足够新鲜时直接返回；否则降级到交易所实时接口。
// 存储故障只降级不报错，仅当两个来源都无法给出价格时返回 ErrPriceNotFound。
func (r *PriceResolver) Resolve(ctx context.Context, symbol string) (PricePoint, error) {
	point, err := r.store.LatestPrice(ctx, symbol, r.opts.Lookback)
	switch {
	case err != nil:
		r.logger.Warn("存储价格查询失败，降级到交易所",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	case point != nil:
		age := r.now().Sub(point.ObservedAt)
		if age <= r.opts.Freshness {
			return *point, nil
		}
		r.logger.Debug("存储价格已过期，降级到交易所",
			zap.String("symbol", symbol),
			zap.Duration("age", age),
		)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	live, err := r.exchange.FetchPrice(fetchCtx, symbol)
	if err != nil {
		r.logger.Error("交易所价格查询失败",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return PricePoint{}, fmt.Errorf("%w: %s", ErrPriceNotFound, symbol)
	}

	return live, nil
}
