package exchange

import "strings"

// Binance 现货行情接口使用紧凑交易对（BTCUSDT），ccxt 使用统一格式（BTC/USDT）。
var quoteAssets = []string{
	"USDT", "USDC", "FDUSD", "TUSD", "BUSD", "DAI",
	"BTC", "ETH", "BNB", "EUR", "TRY",
}

// UnifiedSymbol 将紧凑交易对转换为 ccxt 统一格式。
func UnifiedSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.Contains(symbol, "/") {
		return symbol
	}

	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			base := symbol[:len(symbol)-len(quote)]
			return base + "/" + quote
		}
	}

	return symbol
}

// CompactSymbol 将 ccxt 统一格式转换回紧凑交易对。
func CompactSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(symbol)), "/", "")
}
