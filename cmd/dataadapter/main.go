package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aamirshehzad9/AITB/internal/app"
	"github.com/aamirshehzad9/AITB/internal/config"
	"github.com/aamirshehzad9/AITB/internal/log"
	"github.com/aamirshehzad9/AITB/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	journal, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化事件数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			logger.Warn("关闭事件数据库失败", zap.Error(closeErr))
		}
	}()

	adapter, err := app.New(cfg, logger, journal)
	if err != nil {
		logger.Error("初始化服务失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := adapter.Run(ctx); err != nil {
		logger.Error("服务运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务已安全退出")
}
