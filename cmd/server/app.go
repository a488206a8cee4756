package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/config"
	platformmetrics "registrar/internal/platform/metrics"
	platformmw "registrar/internal/platform/middleware"
	platformredis "registrar/internal/platform/redis"
	ratelimitmw "registrar/internal/ratelimit/middleware"
	"registrar/internal/ratelimit/store/bucket"
	"registrar/internal/registry/adapters"
	"registrar/internal/registry/beacon"
	"registrar/internal/registry/handler"
	registrymetrics "registrar/internal/registry/metrics"
	"registrar/internal/registry/sequence"
	"registrar/internal/registry/service"
	"registrar/internal/registry/store/memory"
	"registrar/internal/registry/store/postgres"
	"registrar/pkg/platform/audit/publisher"
	kafkastore "registrar/pkg/platform/audit/store/kafka"
	auditmemory "registrar/pkg/platform/audit/store/memory"
	auditpostgres "registrar/pkg/platform/audit/store/postgres"
	redisstore "registrar/pkg/platform/audit/store/redis"
	authmw "registrar/pkg/platform/middleware/auth"
	"registrar/pkg/platform/middleware/metadata"
	"registrar/pkg/platform/middleware/request"
	"registrar/pkg/platform/middleware/requesttime"
)

// app holds everything main needs to serve and to release on exit.
type app struct {
	router    http.Handler
	publisher *publisher.Publisher
	sinks     []string
	redis     *platformredis.Client
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.closers = append(a.closers, db.Close)
	}

	a.redis, err = platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		a.closers = append(a.closers, a.redis.Close)
	}

	pubOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
	}
	sinkOpts, err := a.openSinks(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	a.publisher = publisher.NewPublisher(append(pubOpts, sinkOpts...)...)

	chain, err := openBeacon(cfg)
	if err != nil {
		return nil, err
	}
	clock, err := sequence.NewClock(cfg.Registry.Genesis, cfg.Registry.SequenceInterval)
	if err != nil {
		return nil, fmt.Errorf("build sequencer: %w", err)
	}
	events, err := adapters.NewEventSink(a.publisher)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(store, chain, clock,
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New(reg)),
		service.WithEventSink(events),
		service.WithTracer(otel.Tracer("registrar/registry")),
	)
	if err != nil {
		return nil, fmt.Errorf("build registry service: %w", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	var buckets ratelimitmw.BucketStore = bucket.NewInMemoryBucketStore()
	if a.redis != nil {
		buckets = bucket.NewRedisBucketStore(a.redis)
	}
	limiter := ratelimitmw.New(buckets, cfg.RateLimit.MintsPerWindow, cfg.RateLimit.Window, log)
	a.router = newRouter(svc, jwttoken.NewJWTServiceAdapter(jwtService), limiter, reg, log)
	return a, nil
}

// openStore selects the registry backend. db is non-nil only for postgres.
func openStore(ctx context.Context, cfg config.Config) (service.Store, *sql.DB, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := sql.Open(cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		store, err := postgres.New(db, cfg.Registry.MaxOwned)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil
	default:
		store, err := memory.New(cfg.Registry.MaxOwned)
		return store, nil, err
	}
}

// openSinks builds one publisher sink per configured backend. With nothing
// configured events land in an in-process store.
func (a *app) openSinks(ctx context.Context, cfg config.Config, db *sql.DB) ([]publisher.Option, error) {
	var opts []publisher.Option

	if db != nil {
		events := auditpostgres.New(db)
		if err := events.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare event table: %w", err)
		}
		opts = append(opts, publisher.WithSink("postgres", events))
		a.sinks = append(a.sinks, "postgres")
	}

	if client := a.redis; client != nil {
		opts = append(opts, publisher.WithSink("redis", redisstore.NewStreamStore(client, redisstore.WithStream(cfg.Redis.Stream))))
		a.sinks = append(a.sinks, "redis")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		topic, err := kafkastore.NewTopicStore(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { topic.Close(); return nil })
		if err := topic.EnsureTopic(ctx, 1, 1); err != nil {
			return nil, fmt.Errorf("ensure kafka topic: %w", err)
		}
		opts = append(opts, publisher.WithSink("kafka", topic))
		a.sinks = append(a.sinks, "kafka")
	}

	if len(opts) == 0 {
		opts = append(opts, publisher.WithSink("memory", auditmemory.NewInMemoryStore()))
		a.sinks = append(a.sinks, "memory")
	}
	return opts, nil
}

func openBeacon(cfg config.Config) (*beacon.Chain, error) {
	key, err := cfg.BeaconKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return beacon.NewRandom()
	}
	return beacon.New(key)
}

func newRouter(svc handler.Service, validator authmw.JWTValidator, limiter *ratelimitmw.Middleware, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(platformmw.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.AccessLog(log))
	r.Use(platformmw.LatencyMiddleware(platformmetrics.New(reg)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(validator, log))
		var opts []handler.Option
		if limiter != nil {
			opts = append(opts, handler.WithCreateMiddleware(limiter.RateLimitAuthenticated("mint")))
		}
		handler.New(svc, log, opts...).Register(r)
	})
	return r
}
