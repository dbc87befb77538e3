package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-laundry-orders/internal/config"
	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/projector"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(cfg.ServiceName + "-projector")
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		return errors.New("projector butuh KAFKA_BROKERS dan REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	p := &projector.Projector{Cache: redisx.NewCache(rdb), Logger: log}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, cfg.KafkaTopic, cfg.ProjectorWorkers, log)
	log.Info("projector consumer started",
		"group", cfg.ProjectorGroup, "topic", cfg.KafkaTopic, "workers", cfg.ProjectorWorkers)
	if err := cons.Start(ctx, p.HandleMessage); err != nil {
		return err
	}
	log.Info("projector stopped")
	return nil
}
