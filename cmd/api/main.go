package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"researchreg/internal/app"
	"researchreg/internal/config"
	"researchreg/internal/server"
	"researchreg/internal/util"
	"researchreg/pkg/storage"
	"researchreg/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	docStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init document store: %v", err)
	}
	blobStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	sessions, err := store.NewJWTSessionStore(cfg.SessionSecret, sessionTTL, revoker, store.JWTOptions{})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:    docStore,
		Blobs:    blobStore,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                            appCore,
		RedisAddr:                      cfg.RedisAddr,
		RedisPassword:                  cfg.RedisPassword,
		RegistrationRateLimitPerMinute: cfg.RegistrationRateLimitPerMinute,
		LoginRateLimitPerMinute:        cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:                 cfg.MaxUploadBytes,
		CORSOrigin:                     cfg.CORSOrigin,
		SessionTTL:                     sessionTTL,
		SecureCookies:                  cfg.SecureCookies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
