package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Gamma101/web-chat/internal/api"
	"github.com/Gamma101/web-chat/internal/avatar"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/backend/memory"
	mongorec "github.com/Gamma101/web-chat/internal/backend/mongo"
	"github.com/Gamma101/web-chat/internal/backend/redisfeed"
	"github.com/Gamma101/web-chat/internal/backend/s3blob"
	"github.com/Gamma101/web-chat/internal/config"
	"github.com/Gamma101/web-chat/internal/events"
	"github.com/Gamma101/web-chat/internal/logger"
	"github.com/Gamma101/web-chat/internal/session"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// logger is not up yet
		panic(err)
	}

	log, err := logger.New(logger.Config{Development: cfg.Log.Development})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	var (
		records backend.Records
		feed    backend.ChangeFeed
		blobs   backend.BlobStore
		mirror  *events.Mirror
	)

	switch cfg.Backend.Mode {
	case "mongo":
		client, err := mongorec.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			log.Fatalw("mongo connect failed", "err", err)
		}
		defer client.Disconnect(context.Background())

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalw("redis connect failed", "err", err)
		}
		rfeed := redisfeed.New(rdb, cfg.Redis.Prefix, log)
		feed = rfeed

		var notifier backend.Notifier = rfeed
		if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
			mirror = events.NewMirror(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
			notifier = backend.MultiNotifier(rfeed, mirror)
		}
		records = mongorec.NewRecords(client.Database(cfg.Mongo.Database), notifier)

		blobs, err = s3blob.New(ctx, cfg.S3.Region, cfg.S3.Bucket, log)
		if err != nil {
			log.Fatalw("s3 init failed", "err", err)
		}
	default:
		mem := memory.New()
		records, feed, blobs = mem, mem, mem
		log.Infow("using in-memory backend", "mode", cfg.Backend.Mode)
	}

	sessions := session.NewManager(cfg.JWT.Secret, cfg.TokenTTL)
	sessions.OnAuthStateChange(func(s *session.Session) {
		if s == nil {
			log.Infow("auth state", "event", "signed_out")
		} else {
			log.Infow("auth state", "event", "signed_in", "user", s.UserID)
		}
	})
	avatars := avatar.NewService(records, blobs, log)

	server := api.NewServer(cfg, log, api.Deps{
		Records:  records,
		Blobs:    blobs,
		Feed:     feed,
		Sessions: sessions,
		Avatars:  avatars,
	})

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", api.MetricsHandler())
			log.Infow("metrics listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warnw("metrics listener stopped", "err", err)
			}
		}()
	}

	addr := ":" + cfg.Server.Port
	go func() {
		log.Infow("starting server", "addr", addr, "backend", cfg.Backend.Mode)
		if err := server.Listen(addr); err != nil {
			log.Fatalw("server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown requested")
	_ = server.Shutdown()
	if mirror != nil {
		_ = mirror.Close()
	}
	log.Info("server stopped")
}
