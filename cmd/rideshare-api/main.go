// README: Entry point; loads config, wires backends and services, runs the HTTP server and finalize sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rideshare/internal/config"
	httptransport "rideshare/internal/http"
	"rideshare/internal/infra"
	"rideshare/internal/logging"
	"rideshare/internal/maps"
	"rideshare/internal/modules/account"
	"rideshare/internal/modules/feed"
	"rideshare/internal/modules/points"
	"rideshare/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Module(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Ride.Location()
	if err != nil {
		log.WithError(err).Fatal("load time zone")
	}

	var dbPool *pgxpool.Pool
	if cfg.Ride.Store == "postgres" || cfg.Points.Backend == "postgres" || cfg.Auth.Provider == "local" {
		dbPool, err = infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
		if err != nil {
			log.WithError(err).Fatal("connect postgres")
		}
		defer dbPool.Close()
	}

	var redisClient *redis.Client
	if cfg.Points.Backend == "redis" || cfg.Feed.Broker == "redis" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Fatal("connect redis")
		}
		defer redisClient.Close()
	}

	var firebaseApp *firebase.App
	if cfg.Ride.Store == "firebase" || cfg.Auth.Provider == "firebase" {
		firebaseApp, err = infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
	}

	var ledger points.Ledger
	switch cfg.Points.Backend {
	case "postgres":
		ledger = points.NewPostgresLedger(dbPool)
	case "redis":
		ledger = points.NewRedisLedger(redisClient)
	default:
		ledger = points.NewMemoryLedger()
	}
	pointsSvc := points.NewService(ledger, cfg.Points).WithLogger(logger)

	var rideStore ride.Store
	switch cfg.Ride.Store {
	case "postgres":
		rideStore = ride.NewPostgresStore(dbPool)
	case "firebase":
		rtdb, err := infra.NewRTDB(ctx, firebaseApp)
		if err != nil {
			log.WithError(err).Fatal("realtime database init")
		}
		rideStore = ride.NewFirebaseStore(rtdb, loc)
	default:
		rideStore = ride.NewMemoryStore()
	}

	var broker feed.Broker
	if cfg.Feed.Broker == "redis" {
		broker = feed.NewRedisBroker(redisClient, "").WithLogger(logger)
	} else {
		broker = feed.NewMemoryBroker()
	}
	publishers := ride.Publishers{broker}
	if cfg.NSQ.Addr != "" {
		nsqPublisher, err := infra.NewNSQPublisher(cfg.NSQ.Addr, cfg.NSQ.Topic)
		if err != nil {
			log.WithError(err).Fatal("connect nsqd")
		}
		defer nsqPublisher.Stop()
		publishers = append(publishers, nsqPublisher)
	}

	rideSvc := ride.NewService(rideStore, pointsSvc, cfg.Ride).
		WithEvents(publishers).
		WithLogger(logger)
	if cfg.Points.EnforceFloor {
		rideSvc = rideSvc.WithFloor(cfg.Points.Floor)
	}

	deps := httptransport.ServerDeps{
		Rides:    rideSvc,
		Points:   pointsSvc,
		Feed:     feed.NewService(broker, rideSvc, pointsSvc).WithLogger(logger),
		Location: loc,
		Logger:   logger,
	}

	if cfg.Maps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps client")
		}
		opts := maps.Options{Region: cfg.Maps.Region, Language: cfg.Maps.Language}
		rideSvc.WithResolver(maps.NewPlacesService(mapsClient, opts))
		deps.Estimator = maps.NewRouteService(mapsClient, opts)
	}

	switch cfg.Auth.Provider {
	case "firebase":
		deps.Verifier, err = infra.NewFirebaseVerifier(ctx, firebaseApp)
		if err != nil {
			log.WithError(err).Fatal("firebase auth init")
		}
	default:
		tokens := account.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
		deps.Verifier = tokens
		deps.Accounts = account.NewService(account.NewPostgresStore(dbPool), pointsSvc, tokens).WithLogger(logger)
	}

	go rideSvc.RunFinalizeSweeper(ctx)

	log.WithFields(logrus.Fields{
		"ride_store":     cfg.Ride.Store,
		"points_backend": cfg.Points.Backend,
		"feed_broker":    cfg.Feed.Broker,
		"auth_provider":  cfg.Auth.Provider,
	}).Info("starting rideshare api")
	if err := httptransport.NewServer(cfg.HTTP.Addr, deps).Run(ctx); err != nil {
		log.WithError(err).Fatal("http server")
	}
}
