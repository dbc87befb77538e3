package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/config"
	"github.com/ariefcatur/go-laundry-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/orders/memstore"
	"github.com/ariefcatur/go-laundry-orders/internal/postgres"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(cfg.ServiceName)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store, data hilang saat restart")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info("schema migrated")
		}
		store = &orders.Repo{DB: db}
	}

	// Redis (optional)
	var cache *redisx.Cache
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, cache calls will fail soft", "addr", cfg.RedisAddr, "err", err)
		}
		cache = redisx.NewCache(rdb)
	}

	// Kafka producer (optional)
	var events orders.EventSink
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, log)
		prod.Start(ctx)
		events = kafkax.NewEventSink(prod, log)
	}

	svc := orders.NewService(orders.Options{
		Store:              store,
		Events:             events,
		Producer:           cfg.ServiceName,
		Location:           cfg.OutletTZ,
		MaxInvoiceAttempts: cfg.InvoiceMaxAttempts,
		Logger:             log,
	})

	var limiter *httpx.IPRateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpx.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httpx.NewRouter(limiter)
	oh := &httpx.OrdersHandler{Service: svc, Cache: cache, Logger: log}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, time.Minute)
			return nil
		})
	}
	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()      // tutup inbox -> flush & close writer
			prod.WaitClosed() // drain
		}
		return err
	})
	return g.Wait()
}
