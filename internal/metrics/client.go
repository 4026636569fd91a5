package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/aamirshehzad9/AITB/internal/config"
	"github.com/aamirshehzad9/AITB/internal/market"
)

const (
	measurementPrices  = "prices"
	measurementCandles = "candles"
)

// Client 封装对 InfluxDB 的范围查询与点位写入。
// 查询零行不视为错误，统一返回空结果；点位写入以
// (measurement, tags, timestamp) 为自然键，重复写入等价于覆盖。
type Client struct {
	cfg      config.InfluxConfig
	logger   *zap.Logger
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
}

// NewClient 构造 InfluxDB 客户端。
func NewClient(cfg config.InfluxConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &Client{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// LatestPrice 查询回看窗口内某交易对的最新价格点，无数据时返回 nil。
func (c *Client) LatestPrice(ctx context.Context, symbol string, lookback time.Duration) (
	*market.PricePoint, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.symbol == %q)
  |> filter(fn: (r) => r._field == "price")
  |> last()
`, c.cfg.Bucket, int(lookback.Seconds()), measurementPrices, symbol)

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	result, err := c.queryAPI.Query(queryCtx, flux)
	if err != nil {
		return nil, fmt.Errorf("metrics: 查询最新价格失败: %w", err)
	}

	var point *market.PricePoint
	for result.Next() {
		record := result.Record()
		point = &market.PricePoint{
			Symbol:     symbol,
			Price:      asFloat(record.Value()),
			ObservedAt: record.Time().UTC(),
			Source:     market.SourceStore,
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("metrics: 读取价格结果失败: %w", err)
	}

	return point, nil
}

// RecentCandles 查询回看窗口内最近的K线，按开盘时间升序返回，最多 limit 根。
func (c *Client) RecentCandles(ctx context.Context, symbol, timeframe string,
	lookback time.Duration, limit int) ([]market.Candle, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.symbol == %q)
  |> filter(fn: (r) => r.timeframe == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: false)
  |> tail(n: %d)
`, c.cfg.Bucket, int(lookback.Seconds()), measurementCandles, symbol, timeframe, limit)

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	result, err := c.queryAPI.Query(queryCtx, flux)
	if err != nil {
		return nil, fmt.Errorf("metrics: 查询K线失败: %w", err)
	}

	candles := make([]market.Candle, 0, limit)
	for result.Next() {
		record := result.Record()
		candles = append(candles, market.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  record.Time().UTC(),
			Open:      asFloat(record.ValueByKey("open")),
			High:      asFloat(record.ValueByKey("high")),
			Low:       asFloat(record.ValueByKey("low")),
			Close:     asFloat(record.ValueByKey("close")),
			Volume:    asFloat(record.ValueByKey("volume")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("metrics: 读取K线结果失败: %w", err)
	}

	return candles, nil
}

// CountCandles 统计近期窗口内已有的K线数量。
func (c *Client) CountCandles(ctx context.Context, symbol, timeframe string,
	window time.Duration) (int, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.symbol == %q)
  |> filter(fn: (r) => r.timeframe == %q)
  |> filter(fn: (r) => r._field == "close")
  |> count()
`, c.cfg.Bucket, int(window.Seconds()), measurementCandles, symbol, timeframe)

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	result, err := c.queryAPI.Query(queryCtx, flux)
	if err != nil {
		return 0, fmt.Errorf("metrics: 统计K线数量失败: %w", err)
	}

	count := 0
	for result.Next() {
		count += int(asFloat(result.Record().Value()))
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("metrics: 读取统计结果失败: %w", err)
	}

	return count, nil
}

// WriteCandles 将K线批量写入存储，返回新增根数。
// 已存在的开盘时间会被覆盖写入但不计入新增。
func (c *Client) WriteCandles(ctx context.Context, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	existing, err := c.existingOpenTimes(ctx, candles)
	if err != nil {
		// 去重查询失败只影响计数口径，不阻塞写入。
		c.logger.Warn("metrics: 查询已有K线失败，按全量计数", zap.Error(err))
		existing = map[int64]struct{}{}
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	written := 0
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			measurementCandles,
			map[string]string{
				"symbol":    candle.Symbol,
				"timeframe": candle.Timeframe,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		if err := c.writeAPI.WritePoint(writeCtx, point); err != nil {
			return written, fmt.Errorf("metrics: 写入K线失败: %w", err)
		}
		if _, ok := existing[candle.OpenTime.Unix()]; !ok {
			written++
		}
	}

	return written, nil
}

// Ready 探测存储连通性。
func (c *Client) Ready(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	ok, err := c.client.Ping(pingCtx)
	if err != nil {
		c.logger.Warn("metrics: 存储连通性检测失败", zap.Error(err))
		return false
	}
	return ok
}

// Close 释放底层HTTP资源。
func (c *Client) Close() {
	c.client.Close()
}

func (c *Client) existingOpenTimes(ctx context.Context, candles []market.Candle) (
	map[int64]struct{}, error) {
	first, last := candles[0].OpenTime, candles[0].OpenTime
	for _, candle := range candles[1:] {
		if candle.OpenTime.Before(first) {
			first = candle.OpenTime
		}
		if candle.OpenTime.After(last) {
			last = candle.OpenTime
		}
	}

	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.symbol == %q)
  |> filter(fn: (r) => r.timeframe == %q)
  |> filter(fn: (r) => r._field == "close")
  |> keep(columns: ["_time"])
`, c.cfg.Bucket,
		first.UTC().Format(time.RFC3339),
		last.Add(time.Second).UTC().Format(time.RFC3339),
		measurementCandles, candles[0].Symbol, candles[0].Timeframe)

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	result, err := c.queryAPI.Query(queryCtx, flux)
	if err != nil {
		return nil, err
	}

	times := make(map[int64]struct{})
	for result.Next() {
		times[result.Record().Time().Unix()] = struct{}{}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	return times, nil
}

func asFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return 0
}
