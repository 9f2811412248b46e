package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/database"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/pkg/logging"
	"github.com/qs3c/medforum_server/internal/pkg/pubsub"
	"github.com/qs3c/medforum_server/internal/repository"
	"github.com/qs3c/medforum_server/internal/service"
)

var dryRun = flag.Bool("dry-run", true, "Only report drifted counters, don't write fixes")

// 一次性校正帖子评论数与评论点赞数
func main() {
	flag.Parse()

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

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}

	// 修正也会通知在线订阅者刷新
	var notifier docstore.Notifier = docstore.NewLocalNotifier()
	if cfg.Redis.Host != "" {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		notifier = pubsub.NewChangeBus(rdb, logger)
	}
	store := docstore.NewGormStore(db, notifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := service.NewReconcileService(store, repository.NewCommentRepository(store), repository.NewPostRepository(store), logger)
	report, err := svc.Run(ctx, *dryRun)
	if err != nil {
		logger.Fatal("reconcile failed", zap.Error(err))
	}

	logger.Info("reconcile summary",
		zap.Bool("dry_run", report.DryRun),
		zap.Int("posts_checked", report.PostsChecked),
		zap.Int("posts_fixed", report.PostsFixed),
		zap.Int("comments_fixed", report.CommentsFixed),
		zap.Int("posts_skipped", report.PostsSkipped))
}
