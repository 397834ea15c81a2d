package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"postpilot/internal/app"
	"postpilot/internal/catalog"
	"postpilot/internal/config"
	"postpilot/internal/docstore"
	"postpilot/internal/document"
	"postpilot/internal/history"
	"postpilot/internal/instagram"
	"postpilot/internal/notify"
	"postpilot/internal/publisher"
	"postpilot/internal/scheduler"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	store, err := docstore.New(docstore.Options{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		Object:    cfg.BlobObject,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		log.Fatalf("blob store setup failed: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("blob store unreachable: %v", err)
	}

	var source catalog.Source
	var catalogPinger *catalog.PostgresSource
	if strings.TrimSpace(cfg.CatalogDatabaseURL) != "" {
		db, err := catalog.Open(ctx, cfg.CatalogDatabaseURL)
		if err != nil {
			log.Fatalf("catalog database connection failed: %v", err)
		}
		defer db.Close()
		pg := catalog.NewPostgresSource(db)
		catalogPinger = pg
		source = pg

		if strings.TrimSpace(cfg.RedisURL) != "" {
			log.Printf("Using Redis for catalogue lookups")
			cache, err := catalog.NewCache(cfg.RedisURL, pg, cfg.CatalogCacheTTL)
			if err != nil {
				log.Fatalf("redis connection failed: %v", err)
			}
			defer cache.Close()
			source = cache
		}
	}

	factory := func(creds document.InstagramCredentials) scheduler.PostPublisher {
		client := instagram.NewClient(cfg.GraphBaseURL, creds.AccessToken, creds.AccountID)
		return publisher.New(client)
	}
	sched := scheduler.New(store, factory, source, cfg.DefaultTimezone)

	service := app.New(store, sched)
	if catalogPinger != nil {
		service.WithCatalogPinger(catalogPinger)
	}

	var sinks []notify.Sink
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL))
	}
	email := notify.NewEmail(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		To:       cfg.NotifyEmail,
	})
	if email.IsConfigured() {
		sinks = append(sinks, email)
	}
	if len(sinks) > 0 {
		service.WithSink(notify.NewMulti(sinks...))
	}

	if strings.TrimSpace(cfg.HistoryDir) != "" {
		service.WithHistory(history.New(cfg.HistoryDir))
	}

	httpServer := app.NewHTTPServer(service, cfg.SyncToken)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Postpilot API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Periodic publishing cadence. The loop is also reachable on demand via
	// POST /api/run and the one-shot scheduler binary.
	tickerCtx, stopTicker := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.SchedulerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickerCtx.Done():
				return
			case <-ticker.C:
				summary := service.RunScheduled(tickerCtx)
				log.Printf("scheduler: run finished: outcome=%s published=%d failed=%d saveOk=%t",
					summary.Outcome, summary.Published, summary.Failed, summary.SaveOK)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stopTicker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
