package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BackfillOptions 控制回填行为。
type BackfillOptions struct {
	// Window 为评估覆盖度的近期窗口。
	Window time.Duration
	// Threshold 为跳过回填的最低覆盖根数。
	Threshold int
	// FetchTimeout 为交易所历史K线调用的超时。
	FetchTimeout time.Duration
	// MaxLimit 为单次回填允许的最大K线数。
	MaxLimit int
}

func (o *BackfillOptions) applyDefaults() {
	if o.Window <= 0 {
		o.Window = 24 * time.Hour
	}
	if o.Threshold <= 0 {
		o.Threshold = 100
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 45 * time.Second
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 1000
	}
}

// BackfillController 按需修复存储的K线覆盖。
// 重复调用是安全的：覆盖充分时为廉价跳过，写入以自然键幂等。
type BackfillController struct {
	store    storeClient
	exchange exchangeClient
	opts     BackfillOptions
	logger   *zap.Logger
}

// NewBackfillController 创建回填控制器。
func NewBackfillController(store storeClient, exchange exchangeClient,
	opts BackfillOptions, logger *zap.Logger) *BackfillController {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()

	return &BackfillController{
		store:    store,
		exchange: exchange,
		opts:     opts,
		logger:   logger,
	}
}

// Backfill 评估覆盖度并在不足时从交易所批量拉取写入存储。
// 交易所故障不重试，以 FAILED 结果返回；仅参数非法时返回错误。
func (c *BackfillController) Backfill(ctx context.Context, symbol, timeframe string, limit int) (
	BackfillOutcome, error) {
	if !IsSupportedTimeframe(timeframe) {
		return BackfillOutcome{}, fmt.Errorf("%w: 不支持的K线周期 %q", ErrInvalidRequest, timeframe)
	}
	if limit <= 0 || limit > c.opts.MaxLimit {
		return BackfillOutcome{}, fmt.Errorf("%w: limit 必须位于[1,%d]", ErrInvalidRequest, c.opts.MaxLimit)
	}

	outcome := BackfillOutcome{Symbol: symbol, Timeframe: timeframe}

	count, err := c.store.CountCandles(ctx, symbol, timeframe, c.opts.Window)
	if err != nil {
		// 覆盖度未知时按零处理，宁可多拉一次也不漏补。
		c.logger.Warn("统计存储覆盖度失败",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err),
		)
		count = 0
	}

	if count >= c.opts.Threshold {
		outcome.Status = BackfillSkipped
		outcome.Reason = fmt.Sprintf("覆盖充分（%d根 >= %d根）", count, c.opts.Threshold)
		return outcome, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	candles, err := c.exchange.FetchCandles(fetchCtx, symbol, timeframe, limit)
	if err != nil {
		outcome.Status = BackfillFailed
		outcome.Reason = fmt.Sprintf("交易所拉取失败: %v", err)
		return outcome, nil
	}
	if len(candles) == 0 {
		outcome.Status = BackfillFailed
		outcome.Reason = "交易所未返回任何K线"
		return outcome, nil
	}

	written, err := c.store.WriteCandles(ctx, candles)
	outcome.CandlesWritten = written
	if err != nil {
		outcome.Status = BackfillFailed
		outcome.Reason = fmt.Sprintf("写入存储失败: %v", err)
		return outcome, nil
	}

	outcome.Status = BackfillSucceeded
	outcome.Reason = fmt.Sprintf("成功回填%d根K线", written)

	c.logger.Info("回填完成",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("written", written),
		zap.Int("fetched", len(candles)),
	)

	return outcome, nil
}
