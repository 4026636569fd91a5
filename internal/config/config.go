package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "aitb"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 8502)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.price_timeout", "5s")
	v.SetDefault("exchange.ticker_timeout", "10s")
	v.SetDefault("exchange.candles_timeout", "30s")
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.org", "aitb")
	v.SetDefault("influx.bucket", "aitb")
	v.SetDefault("influx.query_timeout", "2s")
	v.SetDefault("influx.write_timeout", "30s")

	v.SetDefault("market.price_freshness", "300s")
	v.SetDefault("market.price_lookback", "1h")
	v.SetDefault("market.candle_lookback", "168h")
	v.SetDefault("market.repair_timeout", "30s")
	v.SetDefault("market.backfill_window", "24h")
	v.SetDefault("market.backfill_threshold", 100)
	v.SetDefault("market.max_candle_limit", 1000)
	v.SetDefault("market.markets_top_n", 20)
	v.SetDefault("market.default_symbols", []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "XRPUSDT", "SOLUSDT",
		"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "DOTUSDT", "MATICUSDT",
		"LINKUSDT", "ATOMUSDT", "LTCUSDT", "UNIUSDT", "ETCUSDT",
		"FILUSDT", "TRXUSDT", "ALGOUSDT", "XLMUSDT", "VETUSDT",
	})

	v.SetDefault("bot.default_symbol", "BTCUSDT")
	v.SetDefault("bot.default_timeframe", "15m")
	v.SetDefault("bot.max_heartbeat_age", "60s")

	v.SetDefault("database.path", "data/aitb.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
