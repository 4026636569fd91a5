package market

import "errors"

var (
	// ErrPriceNotFound 表示存储与交易所均无法给出价格。
	ErrPriceNotFound = errors.New("market: price not found")
	// ErrNoCandleData 表示存储与交易所均未返回任何K线。
	ErrNoCandleData = errors.New("market: no candle data")
	// ErrInvalidRequest 表示请求参数非法，调用方不应重试。
	ErrInvalidRequest = errors.New("market: invalid request")
)
