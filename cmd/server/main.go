package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/blanc/internal/config"
	"github.com/christopherjohns/blanc/internal/ipfs"
	"github.com/christopherjohns/blanc/internal/logging"
	"github.com/christopherjohns/blanc/internal/ratelimit"
	"github.com/christopherjohns/blanc/internal/server"
	"github.com/christopherjohns/blanc/internal/session"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.New(os.Stderr, "error", "text").Error("failed to load config", logging.Err(err))
		os.Exit(1)
	}
	log := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server error", logging.Err(err))
		os.Exit(1)
	}
}

// run owns every resource it opens so deferred cleanup happens before main
// exits.
func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store session.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			rdb.Close()
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info("connected to redis", "addr", cfg.Redis.Addr)
		store = session.NewRedisStore(rdb, cfg.Session.TTL, log)
	} else {
		mem := session.NewMemoryStore(session.WithTTL(cfg.Session.TTL), session.WithLogger(log))
		go mem.RunJanitor(ctx, cfg.Session.SweepInterval)
		store = mem
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close session store", logging.Err(err))
		}
	}()

	opts := []server.Option{
		server.WithLogger(log),
		server.WithStore(store),
		server.WithRateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window,
			ratelimit.WithTrustProxy(cfg.RateLimit.TrustProxy)),
		server.WithPublicOrigin(cfg.HTTP.PublicOrigin),
		server.WithMaxWatchers(cfg.HTTP.MaxWatchers),
		server.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.ShutdownTimeout),
	}
	if cfg.Pinning.Enabled() {
		pinner := ipfs.NewPinner(cfg.Pinning.Endpoint, ipfs.Credentials{
			JWT:       cfg.Pinning.JWT,
			APIKey:    cfg.Pinning.APIKey,
			APISecret: cfg.Pinning.APISecret,
		}, nil)
		opts = append(opts, server.WithPinner(pinner, cfg.Pinning.MaxUpload))
		log.Info("media pinning enabled", "endpoint", cfg.Pinning.Endpoint)
	}

	srv := server.New(cfg.HTTP.Addr, opts...)
	log.Info("starting blanc session server", "addr", cfg.HTTP.Addr, "env", cfg.Env)
	return srv.Run(ctx)
}
