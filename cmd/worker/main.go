package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/successcugo/ULAS/internal/audit"
	"github.com/successcugo/ULAS/internal/config"
	"github.com/successcugo/ULAS/internal/ghstore"
	"github.com/successcugo/ULAS/internal/queue"
)

// Worker consumes audit events from the queue and appends them to the
// per-day documents in the data repository. Running it as the only writer
// keeps the append loop free of revision conflicts.
func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		log.Warn("in-memory queue: this worker only sees events published in this process")
	} else {
		redisClient := queue.NewRedisClient(cfg.RedisAddr)
		if !queue.Healthy(ctx, redisClient) {
			log.Warn("redis not reachable at startup, will retry on consume", zap.String("addr", cfg.RedisAddr))
		}
		q = queue.NewRedisQueue(redisClient, "")
	}

	dataStore := ghstore.New(cfg.GitHubAPIURL, cfg.DataOwner, cfg.DataRepo, cfg.GitHubToken)
	trail := audit.NewLog(dataStore)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("worker started, waiting for events")
	for msg := range messages {
		if msg.Type != audit.MessageType {
			continue
		}

		var e audit.Event
		if err := json.Unmarshal(msg.Body, &e); err != nil {
			log.Error("malformed event", zap.Error(err))
			continue
		}

		if err := trail.Append(ctx, e); err != nil {
			log.Error("append failed",
				zap.String("id", e.ID), zap.String("action", e.Action), zap.Error(err))
			continue
		}
		log.Info("event recorded",
			zap.String("id", e.ID), zap.String("actor", e.Actor), zap.String("action", e.Action))
	}

	log.Info("worker stopped")
}
