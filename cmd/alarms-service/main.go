package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/alarms"
	"github.com/ianic-gr/alarms-service/internal/bus"
	"github.com/ianic-gr/alarms-service/internal/config"
	"github.com/ianic-gr/alarms-service/internal/engine"
	"github.com/ianic-gr/alarms-service/internal/entities"
	"github.com/ianic-gr/alarms-service/internal/httpapi"
	"github.com/ianic-gr/alarms-service/internal/logger"
	"github.com/ianic-gr/alarms-service/internal/repository"
	"github.com/ianic-gr/alarms-service/internal/rules"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "alarms-service")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 连接规则库（Cassandra）
	cassandra, err := repository.NewCassandraSession(&cfg.Cassandra)
	if err != nil {
		log.Fatal("Failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandra.Close()
	rulesRepo := repository.NewRulesRepository(cassandra, log)

	// 4. 连接水表库（PostgreSQL）
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	defer db.Close()
	metersRepo := repository.NewWaterMeterRepository(db, log)

	// 5. 连接 Redis（报警计数）
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	counter := alarms.NewCounterStore(redisClient,
		time.Duration(cfg.Engine.AlarmCountTTL)*time.Second, log)

	// 6. 连接消息总线（NATS）
	nc, err := bus.Connect(&cfg.Nats, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()
	consumer := bus.NewStreamConsumer(nc, log)
	defer consumer.Close()
	producer := bus.NewAlarmProducer(nc, log)

	// 7. 实体图谱客户端（可选，未配置时实体事实跳过）
	var entitySource rules.EntitySource
	if cfg.Entities.BaseURL != "" {
		entitySource = entities.NewClient(&cfg.Entities, log)
	}

	// 8. 创建会话管理器并引导全部租户
	deps := rules.SessionDeps{
		Meters:   metersRepo,
		Entities: entitySource,
		Consumer: consumer,
		NewSink: func(tenant string) any {
			return alarms.NewSink(tenant, producer, counter, log)
		},
		Engine: engine.SessionConfig{
			WindowRetention: time.Duration(cfg.Engine.WindowRetention) * time.Second,
			MaxCycle:        cfg.Engine.MaxCycle,
			InsertBuffer:    cfg.Engine.InsertBuffer,
		},
		Logger: log,
	}
	manager := rules.NewSessionManager(rulesRepo, deps, log)
	defer manager.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Bootstrap(ctx); err != nil {
		log.Fatal("Failed to bootstrap stream sessions", zap.Error(err))
	}

	// 9. 启动控制 HTTP API
	router := httpapi.NewRouter(log)
	router.RegisterRulesRoutes(httpapi.NewRulesHandler(manager, rulesRepo, log))
	router.RegisterWaterMeterRoutes(httpapi.NewWaterMeterHandler(metersRepo, log))

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// 10. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}

	log.Info("Alarms service stopped")
}
