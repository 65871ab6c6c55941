package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plasmatrader/internal/adapter"
	"plasmatrader/internal/config"
	"plasmatrader/internal/core"
	"plasmatrader/internal/execution"
	"plasmatrader/internal/features"
	"plasmatrader/internal/forecast"
	"plasmatrader/internal/fusion"
	"plasmatrader/internal/kafka"
	"plasmatrader/internal/risk"
	"plasmatrader/internal/telemetry"
	"plasmatrader/internal/trader"

	"github.com/adshao/go-binance/v2"
	"github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("config", os.Getenv("PLASMA_CONFIG"), "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting plasmatrader",
		zap.String("symbol", cfg.Symbol),
		zap.Float64("initial_balance", cfg.InitialBalance),
		zap.Strings("timeframes", cfg.Fusion.Timeframes),
		zap.Duration("cycle_interval", cfg.CycleInterval),
	)

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "plasmatrader",
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"symbol": cfg.Symbol},
			Logger:          logger.Sugar(),
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logger.Error("pyroscope start failed", zap.Error(err))
		} else {
			defer profiler.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Forecaster
	modelCfg := forecast.DefaultModelConfig(cfg.ModelPath)
	modelCfg.LibraryPath = cfg.ONNXLibrary
	modelCfg.Window = cfg.Fusion.Window
	forecaster := forecast.NewService(modelCfg.Opener(), logger)
	defer forecaster.Close()
	if err := forecaster.Init(); err != nil {
		// every timeframe is skipped until the model loads; decisions stay WAITING
		logger.Error("forecast model unavailable", zap.String("path", cfg.ModelPath), zap.Error(err))
	}

	engine, err := fusion.NewEngine(cfg.Fusion, forecaster, logger)
	if err != nil {
		logger.Fatal("failed to build fusion engine", zap.Error(err))
	}
	sizer := risk.NewSizer(cfg.Risk, logger)
	sim := execution.NewSimulator(cfg.Execution, cfg.Execution.Latency(), logger)

	initialBalance := decimal.NewFromFloat(cfg.InitialBalance)
	store := core.NewStore(core.NewTradingState(initialBalance, time.Now().UTC()))

	history := adapter.NewHistoryLoader(binance.NewClient("", ""), cfg.HistoryLimit, logger)
	hub := telemetry.NewHub(logger)

	opts := trader.Options{
		Broadcaster:    hub,
		History:        history,
		Timeframes:     cfg.Fusion.Timeframes,
		InitialBalance: initialBalance,
		HistoryRefresh: cfg.HistoryRefresh,
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		defer publisher.Close()
		opts.Publisher = publisher
	}

	var discord *telemetry.DiscordNotifier
	if cfg.DiscordWebhook != "" {
		discord = telemetry.NewDiscordNotifier(cfg.DiscordWebhook)
		opts.Notifier = discord
	}

	if cfg.DatasetPath != "" {
		rec, err := features.NewRecorder(cfg.DatasetPath, cfg.DatasetHorizon, cfg.Fusion.DecisionThreshold)
		if err != nil {
			logger.Fatal("failed to open dataset", zap.String("path", cfg.DatasetPath), zap.Error(err))
		}
		defer rec.Close()
		opts.Recorder = rec
	}

	tr := trader.New(cfg.Symbol, store, engine, sizer, sim, opts, logger)
	if err := tr.RefreshHistory(ctx); err != nil {
		logger.Warn("initial history load incomplete", zap.Error(err))
	}

	feed := adapter.NewBinanceFeed(cfg.Symbol, logger)

	if discord != nil {
		if err := discord.SendAlert(ctx, "PlasmaTrader Started", "Paper trading "+cfg.Symbol, telemetry.ColorBlue); err != nil {
			logger.Warn("failed to send startup notification", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.Serve(gctx, cfg.TelemetryAddr)
	})
	g.Go(func() error {
		return feed.Run(gctx)
	})
	g.Go(func() error {
		return tr.Run(gctx, feed.Snapshots(), cfg.CycleInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("plasmatrader stopped with error", zap.Error(err))
	}

	final := store.Snapshot()
	logger.Info("plasmatrader stopped",
		zap.String("wallet_balance", final.WalletBalance.StringFixed(2)),
		zap.Int("trades", len(final.Trades)),
		zap.Float64("drawdown", final.RiskMetrics.CurrentDrawdown),
	)

	if discord != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg := "Final balance " + final.WalletBalance.StringFixed(2)
		if err := discord.SendAlert(shutdownCtx, "PlasmaTrader Stopped", msg, telemetry.ColorRed); err != nil {
			logger.Warn("failed to send shutdown notification", zap.Error(err))
		}
	}
}
