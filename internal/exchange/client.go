package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/aamirshehzad9/AITB/internal/config"
	"github.com/aamirshehzad9/AITB/internal/market"
)

// Client 负责与 Binance 现货行情接口交互并实现重试机制。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Binance 现货行情客户端。行情接口均为只读，密钥可以为空。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// FetchPrice 获取指定交易对的最新成交价。
func (c *Client) FetchPrice(ctx context.Context, symbol string) (market.PricePoint, error) {
	unified := UnifiedSymbol(symbol)

	var raw ccxt.Ticker
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ticker_%s", symbol), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		ticker, err := c.exchange.FetchTicker(unified)
		if err != nil {
			return err
		}

		raw = ticker
		return nil
	})
	if err != nil {
		return market.PricePoint{}, err
	}

	last := derefFloat(raw.Last)
	if last <= 0 {
		return market.PricePoint{}, fmt.Errorf("交易所未返回 %s 的有效价格", symbol)
	}

	observedAt := time.Now().UTC()
	if raw.Timestamp != nil {
		observedAt = time.UnixMilli(int64(*raw.Timestamp)).UTC()
	}

	return market.PricePoint{
		Symbol:     CompactSymbol(derefStringOr(raw.Symbol, unified)),
		Price:      last,
		ObservedAt: observedAt,
		Source:     market.SourceExchange,
	}, nil
}

// FetchTickers 获取指定交易对集合的24小时行情快照，按成交量降序排列。
func (c *Client) FetchTickers(ctx context.Context, symbols []string) ([]market.Ticker, error) {
	unified := make([]string, 0, len(symbols))
	for _, s := range symbols {
		unified = append(unified, UnifiedSymbol(s))
	}

	var raw ccxt.Tickers
	err := c.callWithRetry(ctx, "fetch_tickers", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		tickers, err := c.exchange.FetchTickers(ccxt.WithFetchTickersSymbols(unified))
		if err != nil {
			return err
		}

		raw = tickers
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := make([]market.Ticker, 0, len(raw.Tickers))
	for sym, t := range raw.Tickers {
		last := derefFloat(t.Last)
		if last <= 0 {
			continue
		}

		ts := now
		if t.Timestamp != nil {
			ts = time.UnixMilli(int64(*t.Timestamp)).UTC()
		}

		result = append(result, market.Ticker{
			Symbol:             CompactSymbol(sym),
			LastPrice:          last,
			PriceChange:        derefFloat(t.Change),
			PriceChangePercent: derefFloat(t.Percentage),
			Volume:             derefFloat(t.BaseVolume),
			Timestamp:          ts,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Volume > result[j].Volume
	})

	return result, nil
}

// FetchCandles 获取指定周期的历史K线数据。
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) (
	[]market.Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	unified := UnifiedSymbol(symbol)
	compact := CompactSymbol(unified)

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s_%s", symbol, timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			unified,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, market.Candle{
			Symbol:    compact,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.cfg.Name))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		}
		return err, IsRetryable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefStringOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
