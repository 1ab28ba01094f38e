package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"helpdesk/api/internal/app"
	"helpdesk/api/internal/config"
	"helpdesk/api/internal/events"
	"helpdesk/api/internal/notify"
	"helpdesk/api/internal/ratelimit"
	"helpdesk/api/internal/search"
	"helpdesk/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	telegram := notify.NewTelegram(cfg.BotToken, cfg.TelegramAPIEndpoint, cfg.NotifyTimeout)
	if cfg.BotToken == "" {
		log.Printf("WARNING: TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	var limiter *ratelimit.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		limiter, err = ratelimit.New(cfg.RedisURL, cfg.SubmitRateLimit, cfg.SubmitRateWindow)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer limiter.Close()
		log.Printf("Submission rate limiting enabled (%d per %s)", cfg.SubmitRateLimit, cfg.SubmitRateWindow)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPG(db))

	var publisher *events.Publisher
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		publisher, err = events.New(cfg.AMQPURL, cfg.AMQPExchange, slog.Default())
		if err != nil {
			log.Fatalf("event broker connection failed: %v", err)
		}
		defer publisher.Close()
	}

	service := app.New(cfg, dataStore, telegram, limiter, searchService, publisher)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Helpdesk API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
