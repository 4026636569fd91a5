package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aamirshehzad9/AITB/internal/bot"
	"github.com/aamirshehzad9/AITB/internal/config"
	"github.com/aamirshehzad9/AITB/internal/exchange"
	"github.com/aamirshehzad9/AITB/internal/market"
	"github.com/aamirshehzad9/AITB/internal/metrics"
	"github.com/aamirshehzad9/AITB/internal/monitor"
	"github.com/aamirshehzad9/AITB/internal/store"
)

// App 聚合核心依赖并驱动服务生命周期。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	server  *Server
	metrics *metrics.Client
}

// New 组装数据适配服务的全部组件。
func New(cfg *config.Config, logger *zap.Logger, journal *store.Store) (*App, error) {
	metricsClient := metrics.NewClient(cfg.Influx, logger)

	exchangeClient, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		metricsClient.Close()
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(journal, logger)
	if err != nil {
		metricsClient.Close()
		return nil, err
	}

	prices := market.NewPriceResolver(metricsClient, exchangeClient, market.PriceResolverOptions{
		Lookback:     cfg.Market.PriceLookback,
		Freshness:    cfg.Market.PriceFreshness,
		FetchTimeout: cfg.Exchange.PriceTimeout,
	}, logger)

	candles := market.NewCandleResolver(metricsClient, exchangeClient, market.CandleResolverOptions{
		Lookback:      cfg.Market.CandleLookback,
		FetchTimeout:  cfg.Exchange.CandlesTimeout,
		RepairTimeout: cfg.Market.RepairTimeout,
		MaxLimit:      cfg.Market.MaxCandleLimit,
	}, logger)

	backfill := market.NewBackfillController(metricsClient, exchangeClient, market.BackfillOptions{
		Window:       cfg.Market.BackfillWindow,
		Threshold:    cfg.Market.BackfillThreshold,
		FetchTimeout: cfg.Exchange.CandlesTimeout,
		MaxLimit:     cfg.Market.MaxCandleLimit,
	}, logger)

	supervisor := bot.NewSupervisor(cfg.Bot, logger)

	server := NewServer(ServerDeps{
		Prices:         prices,
		Candles:        candles,
		Backfill:       backfill,
		Tickers:        exchangeClient,
		Probe:          metricsClient,
		Supervisor:     supervisor,
		Journal:        monitorSvc,
		DefaultSymbols: cfg.Market.DefaultSymbols,
		MarketsTopN:    cfg.Market.MarketsTopN,
		TickerTimeout:  cfg.Exchange.TickerTimeout,
		MaxCandleLimit: cfg.Market.MaxCandleLimit,
	}, logger)

	return &App{
		cfg:     cfg,
		logger:  logger,
		server:  server,
		metrics: metricsClient,
	}, nil
}

// Run 启动HTTP服务并阻塞到退出信号。
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.server.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	a.logger.Info("数据适配服务已启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("addr", addr),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("influx", a.cfg.Influx.URL),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("关闭HTTP服务失败: %w", err)
		}
		return nil
	})

	err := group.Wait()
	a.metrics.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.logger.Info("服务收到退出信号，已停止")
	return nil
}
