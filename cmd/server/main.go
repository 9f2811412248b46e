package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/api"
	"github.com/qs3c/medforum_server/internal/api/handler"
	"github.com/qs3c/medforum_server/internal/database"
	"github.com/qs3c/medforum_server/internal/pkg/cron"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/pkg/identity"
	"github.com/qs3c/medforum_server/internal/pkg/logging"
	"github.com/qs3c/medforum_server/internal/pkg/oss"
	"github.com/qs3c/medforum_server/internal/pkg/pubsub"
	"github.com/qs3c/medforum_server/internal/pkg/ws"
	"github.com/qs3c/medforum_server/internal/repository"
	"github.com/qs3c/medforum_server/internal/service"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	logger.Info("database connected", zap.String("driver", cfg.Database.Driver))

	// 变更通知：配置了 Redis 时跨实例广播，否则进程内通知
	var notifier docstore.Notifier = docstore.NewLocalNotifier()
	if cfg.Redis.Host != "" {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		notifier = pubsub.NewChangeBus(rdb, logger)
		logger.Info("redis change bus connected")
	}
	store := docstore.NewGormStore(db, notifier, logger)

	// 初始化 Repository
	commentRepo := repository.NewCommentRepository(store)
	userRepo := repository.NewUserRepository(store)
	postRepo := repository.NewPostRepository(store)
	ident := identity.NewStoreProvider(store)

	// 图片存储可选，未配置时上传接口返回存储不可用
	var uploader service.Uploader
	if cfg.OSS.Endpoint != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logger.Fatal("failed to init oss client", zap.Error(err))
		}
		uploader = ossClient
	}

	// 初始化 Service
	commentService := service.NewCommentService(store, commentRepo, userRepo, postRepo, ident, cfg, logger)
	imageService := service.NewImageService(uploader, ident, cfg, logger)
	reconcileService := service.NewReconcileService(store, commentRepo, postRepo, logger)

	wsHub := ws.NewHub(logger)
	liveFeed := service.NewLiveFeed(wsHub, commentService, logger)
	defer liveFeed.Close()

	cronService := cron.NewService(reconcileService, time.Duration(cfg.Reconcile.IntervalMinutes)*time.Minute, logger)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Router
	router := api.NewRouter(
		handler.NewCommentHandler(commentService),
		handler.NewWebSocketHandler(liveFeed, cfg.JWT.Secret, logger),
		handler.NewImageHandler(imageService),
		cfg,
		logger,
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.Setup(),
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
