package exchange

import "testing"

func TestUnifiedSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTCUSDT", "BTC/USDT"},
		{"btcusdt", "BTC/USDT"},
		{" ETHUSDC ", "ETH/USDC"},
		{"DOGEBTC", "DOGE/BTC"},
		{"BTC/USDT", "BTC/USDT"},
		{"USDT", "USDT"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := UnifiedSymbol(tc.in); got != tc.want {
			t.Errorf("UnifiedSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompactSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTC/USDT", "BTCUSDT"},
		{"btc/usdt", "BTCUSDT"},
		{"BTCUSDT", "BTCUSDT"},
	}

	for _, tc := range cases {
		if got := CompactSymbol(tc.in); got != tc.want {
			t.Errorf("CompactSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
