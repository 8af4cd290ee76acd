package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"push_notify/internal/badge"
	"push_notify/internal/config"
	"push_notify/internal/enrich"
	"push_notify/internal/keys"
	"push_notify/internal/mastodon"
	"push_notify/internal/metrics"
	"push_notify/internal/notifier"
	"push_notify/internal/repository/account"
	"push_notify/internal/repository/keypair"
	redisSvc "push_notify/internal/service/redis"
	"push_notify/internal/service/server"
	"push_notify/internal/utils/log"
)

func main() {
	cfg := config.MustLoad()

	if err := log.Init(cfg.LogLevel, cfg.Env == "development"); err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoDBClient, err := initMongo(cfg.Mongo)
	if err != nil {
		log.Fatal("connect mongo failed", zap.Error(err))
	}
	defer mongoDBClient.Disconnect(context.Background()) //nolint:errcheck

	db := mongoDBClient.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redis := redisSvc.NewRedis(rdb)
	defer redis.Close() //nolint:errcheck

	material, err := keys.Resolve(ctx, cfg.Keys, keypair.NewKeyPairRepo(db))
	if err != nil {
		log.Fatal("push key material unavailable", zap.Error(err))
	}
	log.Info("push keys loaded", zap.String("public_key", material.PublicKeyString()))

	counter := badge.NewRedisCounter(redis, cfg.Redis.BadgeKey)
	if err := counter.Init(ctx); err != nil {
		log.Fatal("init badge counter failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	accounts := account.NewAccountRepo(db)
	httpClient := &http.Client{Timeout: cfg.Enrich.FetchTimeout + cfg.Enrich.LookupTimeout}
	pipeline := enrich.New(enrich.Config{
		FetchTimeout:      cfg.Enrich.FetchTimeout,
		LookupTimeout:     cfg.Enrich.LookupTimeout,
		MaxImageBytes:     cfg.Enrich.MaxImageBytes,
		MaxImageDimension: cfg.Enrich.MaxImageDimension,
		TempDir:           cfg.Enrich.TempDir,
		HTTPClient:        httpClient,
	}, counter, accounts, mastodon.New(httpClient))

	svc, err := notifier.New(material, pipeline,
		notifier.WithDeadline(cfg.Notifier.Deadline),
		notifier.WithMetrics(m))
	if err != nil {
		log.Fatal("init notifier failed", zap.Error(err))
	}

	c := server.NewHttpServer(cfg.HttpServer, server.Deps{
		Notifier:  svc,
		Counter:   counter,
		Accounts:  accounts,
		PublicKey: material.PublicKeyString(),
		Metrics:   m,
		Gatherer:  reg,
		Health: func(ctx context.Context) error {
			return errors.Join(redis.Ping(ctx), mongoDBClient.Ping(ctx, nil))
		},
	})
	if err := c.Run(ctx); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
	log.Info("shut down")
}

func initMongo(cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
