package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"QuakeSync/internal/adapter/usgs"
	"QuakeSync/internal/api"
	"QuakeSync/internal/config"
	"QuakeSync/internal/database"
	"QuakeSync/internal/observability"
	"QuakeSync/internal/service"
	"QuakeSync/internal/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

func main() {
	// 1. 加载配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 2. 初始化日志
	logrusLogger := logger.New(cfg.Log)
	logrusLogger.Info("配置文件加载成功")

	// 3. 连接 PostgreSQL（库不存在则先创建再连），按需建表
	db, err := database.Open(cfg.Database, logrusLogger)
	if err != nil {
		logrusLogger.Fatalf("初始化数据库失败: %v", err)
	}

	// 4. 指标与入库服务
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	etl := service.NewETLService(db, usgs.NewFactory(&cfg.USGS, logrusLogger), cfg.USGS.Format, metrics, clock, logrusLogger)

	// 5. 配置Gin运行模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := api.NewRouter(api.RouterDeps{
		Config:   cfg,
		DB:       db,
		Ingester: etl,
		Metrics:  metrics,
		Clock:    clock,
		Logger:   logrusLogger,
	})
	logrusLogger.Infof("Gin运行模式: %s", cfg.Server.Mode)

	// 6. 启动服务，收到 SIGINT/SIGTERM 后优雅退出
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logrusLogger.Infof("服务启动成功，端口：%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrusLogger.Fatalf("启动服务失败: %v", err)
		}
	}()

	<-ctx.Done()
	logrusLogger.Info("收到退出信号，正在关闭服务")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Error("关闭HTTP服务失败")
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logrusLogger.WithError(err).Error("关闭数据库连接失败")
		}
	}
}
