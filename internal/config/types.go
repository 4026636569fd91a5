package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了服务运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Influx   InfluxConfig   `mapstructure:"influx"`
	Market   MarketConfig   `mapstructure:"market"`
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ServerConfig 控制HTTP服务监听参数。
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name           string        `mapstructure:"name"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	APIPass        string        `mapstructure:"api_password"`
	UseSandbox     bool          `mapstructure:"use_sandbox"`
	PriceTimeout   time.Duration `mapstructure:"price_timeout"`
	TickerTimeout  time.Duration `mapstructure:"ticker_timeout"`
	CandlesTimeout time.Duration `mapstructure:"candles_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// InfluxConfig 描述时序存储连接信息。
type InfluxConfig struct {
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	Org          string        `mapstructure:"org"`
	Bucket       string        `mapstructure:"bucket"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MarketConfig 控制行情数据解析策略。
type MarketConfig struct {
	PriceFreshness    time.Duration `mapstructure:"price_freshness"`
	PriceLookback     time.Duration `mapstructure:"price_lookback"`
	CandleLookback    time.Duration `mapstructure:"candle_lookback"`
	RepairTimeout     time.Duration `mapstructure:"repair_timeout"`
	BackfillWindow    time.Duration `mapstructure:"backfill_window"`
	BackfillThreshold int           `mapstructure:"backfill_threshold"`
	MaxCandleLimit    int           `mapstructure:"max_candle_limit"`
	MarketsTopN       int           `mapstructure:"markets_top_n"`
	DefaultSymbols    []string      `mapstructure:"default_symbols"`
}

// BotConfig 控制远端交易机器人的监管参数。
type BotConfig struct {
	DefaultSymbol    string        `mapstructure:"default_symbol"`
	DefaultTimeframe string        `mapstructure:"default_timeframe"`
	MaxHeartbeatAge  time.Duration `mapstructure:"max_heartbeat_age"`
}

// DatabaseConfig 管理事件日志数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.shutdown_timeout 必须大于0"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.PriceTimeout <= 0 || c.Exchange.TickerTimeout <= 0 || c.Exchange.CandlesTimeout <= 0 {
		err = multierr.Append(err, errors.New("exchange 超时参数必须为正"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Influx.URL == "" {
		err = multierr.Append(err, errors.New("influx.url 不能为空"))
	}
	if c.Influx.Org == "" || c.Influx.Bucket == "" {
		err = multierr.Append(err, errors.New("influx.org 与 influx.bucket 不能为空"))
	}
	if c.Influx.QueryTimeout <= 0 || c.Influx.WriteTimeout <= 0 {
		err = multierr.Append(err, errors.New("influx 超时参数必须为正"))
	}
	if c.Market.PriceFreshness <= 0 {
		err = multierr.Append(err, errors.New("market.price_freshness 必须大于0"))
	}
	if c.Market.PriceLookback < c.Market.PriceFreshness {
		err = multierr.Append(err, errors.New("market.price_lookback 不应小于 price_freshness"))
	}
	if c.Market.CandleLookback <= 0 {
		err = multierr.Append(err, errors.New("market.candle_lookback 必须大于0"))
	}
	if c.Market.RepairTimeout <= 0 {
		err = multierr.Append(err, errors.New("market.repair_timeout 必须大于0"))
	}
	if c.Market.BackfillWindow <= 0 {
		err = multierr.Append(err, errors.New("market.backfill_window 必须大于0"))
	}
	if c.Market.BackfillThreshold <= 0 {
		err = multierr.Append(err, errors.New("market.backfill_threshold 必须大于0"))
	}
	if c.Market.MaxCandleLimit <= 0 {
		err = multierr.Append(err, errors.New("market.max_candle_limit 必须大于0"))
	}
	if c.Market.MarketsTopN <= 0 {
		err = multierr.Append(err, errors.New("market.markets_top_n 必须大于0"))
	}
	if len(c.Market.DefaultSymbols) == 0 {
		err = multierr.Append(err, errors.New("market.default_symbols 至少包含一个交易对"))
	}
	if c.Bot.DefaultSymbol == "" {
		err = multierr.Append(err, errors.New("bot.default_symbol 不能为空"))
	}
	if c.Bot.DefaultTimeframe == "" {
		err = multierr.Append(err, errors.New("bot.default_timeframe 不能为空"))
	}
	if c.Bot.MaxHeartbeatAge <= 0 {
		err = multierr.Append(err, errors.New("bot.max_heartbeat_age 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
