package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	lendingapp "github.com/wyfcoding/creditrisk/internal/lending/application"
	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	lendingmsg "github.com/wyfcoding/creditrisk/internal/lending/infrastructure/messaging"
	"github.com/wyfcoding/creditrisk/internal/lending/infrastructure/persistence/mysql"
	lendinghttp "github.com/wyfcoding/creditrisk/internal/lending/interfaces/http"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
	simulationapp "github.com/wyfcoding/creditrisk/internal/simulation/application"
	simulationmsg "github.com/wyfcoding/creditrisk/internal/simulation/infrastructure/messaging"
	simulationhttp "github.com/wyfcoding/creditrisk/internal/simulation/interfaces/http"
	"github.com/wyfcoding/creditrisk/pkg/config"
	"github.com/wyfcoding/creditrisk/pkg/db"
	"github.com/wyfcoding/creditrisk/pkg/logger"
	"github.com/wyfcoding/creditrisk/pkg/metrics"
	"github.com/wyfcoding/creditrisk/pkg/middleware"
	"github.com/wyfcoding/creditrisk/pkg/mq"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/riskengine/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	log := logger.Get()
	ctx := context.Background()
	logger.Info(ctx, "starting risk engine", "version", cfg.Version, "environment", cfg.Environment)

	// 3. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}
	defer database.Close()

	if err := mysql.AutoMigrate(database); err != nil {
		panic(fmt.Sprintf("migrate db failed: %v", err))
	}

	// 4. Infrastructure & Domain
	universe, err := buildUniverse(cfg)
	if err != nil {
		panic(fmt.Sprintf("build asset universe failed: %v", err))
	}
	catalog := scenario.NewCatalog()
	repo := mysql.NewPortfolioRepository(database)

	lendingPublisher := lendingmsg.NewNoopEventPublisher()
	simulationPublisher := simulationmsg.NewNoopEventPublisher()
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			panic(fmt.Sprintf("create kafka producer failed: %v", err))
		}
		defer producer.Close()
		lendingPublisher = lendingmsg.NewKafkaEventPublisher(producer, cfg.Kafka.MarginTopic)
		simulationPublisher = simulationmsg.NewKafkaEventPublisher(producer, cfg.Kafka.SimulationTopic)
	}

	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		panic(fmt.Sprintf("register metrics failed: %v", err))
	}
	database.Instrument(m)

	// 5. Application
	portfolioService := lendingapp.NewPortfolioService(repo, universe, lendingPublisher, m, cfg.Simulation.RiskFreeRate, log)
	simulationService := simulationapp.NewSimulationService(
		repo, catalog, universe, simulationPublisher, m,
		simulationapp.ServiceConfig{
			DefaultTrials: cfg.Simulation.DefaultTrials,
			MaxTrials:     cfg.Simulation.MaxTrials,
			Workers:       cfg.Simulation.Workers,
		},
		log,
	)

	// 6. Interfaces
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecovery(), middleware.GinLogging(), middleware.GinMetrics(m))

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	api := r.Group("/api/v1")
	lendinghttp.NewHandler(portfolioService).RegisterRoutes(api)
	simulationhttp.NewHandler(simulationService).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 7. Start
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			logger.Info(gctx, "shutdown signal received", "signal", sig.String())
		case <-gctx.Done():
			return gctx.Err()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error(ctx, "service exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "service stopped")
}

// buildUniverse 从配置构建资产全集，未配置时使用内置三资产默认值
func buildUniverse(cfg *config.Config) (*lending.AssetUniverse, error) {
	if len(cfg.Universe) == 0 {
		return lending.DefaultUniverse(), nil
	}

	policies := make([]lending.AssetPolicy, 0, len(cfg.Universe))
	for _, a := range cfg.Universe {
		policies = append(policies, lending.AssetPolicy{
			Symbol: lending.AssetSymbol(a.Symbol),
			Margin: lending.MarginPolicy{
				WarningLTV:     a.WarningLTV,
				MarginCallLTV:  a.MarginCallLTV,
				LiquidationLTV: a.LiquidationLTV,
			},
			Risk: lending.RiskCharacteristics{
				LiquidationSlippage:  a.LiquidationSlippage,
				AnnualVolatility:     a.AnnualVolatility,
				VolatilityMultiplier: a.VolatilityMultiplier,
			},
		})
	}

	correlations := make(map[[2]lending.AssetSymbol]float64, len(cfg.Correlations))
	for _, p := range cfg.Correlations {
		correlations[[2]lending.AssetSymbol{lending.AssetSymbol(p.AssetA), lending.AssetSymbol(p.AssetB)}] = p.Value
	}
	return lending.NewAssetUniverse(policies, correlations)
}
