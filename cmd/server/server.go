package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/handlers"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/cache"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/mq"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/staging"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/router"
	"github.com/3Eeeecho/go-fastdb/internal/services/export"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/3Eeeecho/go-fastdb/internal/services/search"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/3Eeeecho/go-fastdb/internal/setup"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	httpServer     *http.Server
	db             *gorm.DB
	redisClient    *redis.Client
	rabbitMQClient *mq.RabbitMQClient
	staging        staging.Store
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (_ *Server, err error) {
	ctx := context.Background()
	srv := &Server{}
	defer func() {
		if err != nil {
			srv.close()
		}
	}()

	// 初始化数据库连接
	if srv.db, err = setup.InitPostgres(&cfg.Postgres, cfg.Query); err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}

	// Redis 只用作处理版本解析缓存, 未配置时直接查库
	var versionCache cache.Cache
	if cfg.Redis.Addr != "" {
		if srv.redisClient, err = setup.InitRedis(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		versionCache = cache.NewRedisCache(srv.redisClient)
	}

	//初始化rabbitmq
	if srv.rabbitMQClient, err = mq.NewRabbitMQClient(cfg.RabbitMQ.URL); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	if srv.staging, err = setup.InitStaging(ctx, cfg); err != nil {
		return nil, err
	}

	ss, err := setup.InitStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage service: %w", err)
	}

	//  初始化 Repositories
	versionRepo := repositories.NewVersionRepository(srv.db)
	measurementRepo := repositories.NewMeasurementRepository(srv.db, cfg.Query)
	ingestRepo := repositories.NewIngestRepository(srv.db, cfg.Ingest.BatchSize)

	//  初始化 Services
	versionService := versioning.NewService(versionRepo, versionCache, cfg.Redis.VersionCacheTTL)
	ltcvService := ltcv.NewService(versionService, measurementRepo, cfg.Query, nil)
	searchService := search.NewService(versionService, measurementRepo, cfg.Query)
	ingestService := ingest.NewService(versionService, ingestRepo, srv.staging, cfg.Ingest, nil)
	ingestQueue := ingest.NewQueue(versionService, srv.rabbitMQClient, cfg.RabbitMQ.IngestQueue)
	exportService := export.NewService(ltcvService, ss, cfg.Storage.ExportPrefix, cfg.Storage.ExportURLExpiry)

	// 启动所有后台 Worker
	if err = worker.StartAllWorkers(cfg, srv.rabbitMQClient, ingestService); err != nil {
		return nil, fmt.Errorf("failed to start workers: %w", err)
	}

	//  初始化 Handlers 和路由
	engine := router.InitRouter(router.Handlers{
		Version: handlers.NewVersionHandler(versionService),
		Ltcv:    handlers.NewLtcvHandler(ltcvService),
		Search:  handlers.NewSearchHandler(searchService),
		Job:     handlers.NewJobHandler(ingestQueue, exportService),
	}, cfg)

	srv.httpServer = &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}
	return srv, nil
}

// close 释放所有连接, GORM 的连接池也在这里关闭
func (s *Server) close() {
	if s.rabbitMQClient != nil {
		s.rabbitMQClient.Close()
	}
	if s.staging != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.staging.Close(ctx); err != nil {
			logger.Error("Error closing staging store", zap.Error(err))
		}
		cancel()
	}
	setup.CloseRedis(s.redisClient)
	setup.ClosePostgres(s.db)
}

// Run 启动服务器和 Worker，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) {
	defer s.close()

	// 启动 HTTP 服务器
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case <-ctx.Done():
	case err := <-errChan:
		logger.Error("Server failed to start", zap.Error(err))
		return
	}
	logger.Info("Shutting down server...")

	// 优雅关机
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("Server exited gracefully")
}
