package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm/logger"

	"github.com/UkralStul/comments-service/internal/broadcast"
	"github.com/UkralStul/comments-service/internal/challenge"
	"github.com/UkralStul/comments-service/internal/comments"
	"github.com/UkralStul/comments-service/internal/config"
	"github.com/UkralStul/comments-service/internal/files"
	"github.com/UkralStul/comments-service/internal/imaging"
	"github.com/UkralStul/comments-service/internal/search"
	"github.com/UkralStul/comments-service/internal/storage"
	"github.com/UkralStul/comments-service/internal/storage/inmemory"
	"github.com/UkralStul/comments-service/internal/storage/postgres"
)

// app - собранные зависимости процесса.
type app struct {
	cfg      config.Config
	store    storage.Storage
	files    files.Store
	gate     challenge.Gate
	hub      *broadcast.Hub
	search   *search.Service
	queue    *imaging.Queue
	comments *comments.Service

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore выбирает хранилище по cfg.StorageType.
func openStore(cfg config.Config) (storage.Storage, func(), error) {
	switch cfg.StorageType {
	case "memory", "in-memory":
		return inmemory.New(), func() {}, nil
	case "postgres":
		store, err := postgres.New(cfg.DatabaseURL, gormLogLevel(cfg.DBLogLevel))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("failed to close database", "err", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage type %q (want memory or postgres)", cfg.StorageType)
}

// openFiles - MinIO, если задан MINIO_ENDPOINT, иначе каталог на диске.
func openFiles(ctx context.Context, cfg config.Config) (files.Store, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		slog.Info("using MinIO for attachments", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
		return files.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	slog.Info("using local directory for attachments", "dir", cfg.MediaDir)
	return files.NewFSStore(cfg.MediaDir)
}

func openGate(cfg config.Config) (challenge.Gate, func(), error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		slog.Info("using in-memory CAPTCHA storage")
		return challenge.NewMemoryGate(cfg.ChallengeTTL), func() {}, nil
	}
	slog.Info("using Redis for CAPTCHA storage")
	gate, err := challenge.NewRedisGate(cfg.RedisURL, cfg.ChallengeTTL)
	if err != nil {
		return nil, nil, err
	}
	return gate, func() { _ = gate.Close() }, nil
}

// buildApp собирает все компоненты. Фоновая очередь запускается с ctx.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	if a.files, err = openFiles(ctx, cfg); err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}

	gate, closeGate, err := openGate(cfg)
	if err != nil {
		return nil, fmt.Errorf("captcha: %w", err)
	}
	a.gate = gate
	a.closers = append(a.closers, closeGate)

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		a.closers = append(a.closers, meili.Close)
	}
	a.search = search.NewService(meili, store)

	normalizer := imaging.NewNormalizer(store, a.files, cfg.ImageMaxWidth, cfg.ImageMaxHeight).WithMaxPixels(cfg.ImageMaxPixels)
	a.queue = imaging.NewQueue(normalizer, imaging.QueueOptions{
		Workers:    cfg.ImageWorkers,
		Size:       cfg.ImageQueueSize,
		MaxRetries: cfg.ImageMaxRetries,
		RetryDelay: cfg.ImageRetryDelay,
	})
	a.queue.Start(ctx)
	a.closers = append(a.closers, a.queue.Close)

	a.hub = broadcast.NewHub(broadcast.DefaultBuffer)

	a.comments = comments.NewService(comments.Deps{
		Store:           store,
		Files:           a.files,
		Gate:            gate,
		Publisher:       a.hub,
		Indexer:         a.search,
		Images:          a.queue,
		ChallengePolicy: cfg.ChallengePolicy,
		PageSize:        cfg.PageSize,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	ok = true
	return a, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
