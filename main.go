package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabdeck/config"
	"collabdeck/config/database"
	"collabdeck/internal/activity"
	presentationHandler "collabdeck/internal/presentation"
	"collabdeck/internal/presentation/repository"
	"collabdeck/internal/presentation/service"
	userrepo "collabdeck/internal/user/repository"
	"collabdeck/pkg/logger"
	"collabdeck/router"
	"collabdeck/socket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.NeedsPostgres() {
		db, err = database.Connect(cfg.DB)
		if err != nil {
			logger.Sugar.Fatalf("Could not connect to database: %v", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logger.Sugar.Fatalf("Failed to prepare schema: %v", err)
		}
	}

	var (
		store repository.Store
		users service.UserDirectory
	)
	switch cfg.StorageType {
	case config.StorageMemory:
		store = repository.NewMemoryStore()
		users = userrepo.NewMemoryDirectory()
		logger.Sugar.Warn("Using in-memory storage; presentations are lost on restart")
	default:
		store = repository.NewPresentationRepository(db)
		users = userrepo.NewUserRepository(db)
	}

	var activityRepo activity.Repository
	switch cfg.ActivityBackend {
	case config.ActivityMongo:
		client, mdb, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Sugar.Fatalf("Could not connect to MongoDB: %v", err)
		}
		defer client.Disconnect(context.Background())
		activityRepo = activity.NewMongoRepository(mdb)
	case config.ActivityMemory:
		activityRepo = activity.NewMemoryRepository()
	default:
		activityRepo = activity.NewPostgresRepository(db)
	}

	hub := socket.NewHub()
	svc := service.NewPresentationService(store, activity.NewLogger(activityRepo), users, hub, hub)
	svc.LockDuration = cfg.LockDuration
	svc.PresenceStaleAfter = cfg.PresenceStaleAfter
	hub.Presence = svc
	go hub.Run()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.Setup(presentationHandler.NewPresentationHandler(svc), hub, cfg.JWTSecret, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("CollabDeck backend listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("Graceful shutdown failed: %v", err)
	}
}
