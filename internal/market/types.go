package market

import "time"

// Source 标识一次行情解析实际命中的数据来源。
type Source string

const (
	// SourceStore 表示数据来自时序存储。
	SourceStore Source = "store"
	// SourceExchange 表示数据来自交易所实时接口。
	SourceExchange Source = "exchange"
)

// PricePoint 代表某个交易对在某一时刻的价格观测。
type PricePoint struct {
	Symbol     string
	Price      float64
	ObservedAt time.Time
	Source     Source
}

// Candle 代表单根已收盘K线，以 (Symbol, Timeframe, OpenTime) 唯一标识。
type Candle struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker 为交易所24小时行情快照。
type Ticker struct {
	Symbol             string
	LastPrice          float64
	PriceChange        float64
	PriceChangePercent float64
	Volume             float64
	Timestamp          time.Time
}

// BackfillStatus 表示一次回填的结果状态。
type BackfillStatus string

const (
	BackfillSkipped   BackfillStatus = "skipped"
	BackfillSucceeded BackfillStatus = "success"
	BackfillFailed    BackfillStatus = "failed"
)

// BackfillOutcome 描述单次回填的执行结果，仅随响应返回，不做持久化。
type BackfillOutcome struct {
	Symbol         string
	Timeframe      string
	CandlesWritten int
	Status         BackfillStatus
	Reason         string
}

var supportedTimeframes = map[string]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "12h": {},
	"1d": {}, "1w": {},
}

// IsSupportedTimeframe 判断K线周期是否受支持。
func IsSupportedTimeframe(tf string) bool {
	_, ok := supportedTimeframes[tf]
	return ok
}
