// Command scheduler runs a single publishing pass and exits. It exists for
// deployments that drive the cadence from cron or a container job instead of
// the API server's internal ticker.
package main

import (
	"context"
	"log"
	"os"
	"strings"
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

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

	var source catalog.Source
	if strings.TrimSpace(cfg.CatalogDatabaseURL) != "" {
		db, err := catalog.Open(ctx, cfg.CatalogDatabaseURL)
		if err != nil {
			log.Fatalf("catalog database connection failed: %v", err)
		}
		defer db.Close()
		pg := catalog.NewPostgresSource(db)
		source = pg

		if strings.TrimSpace(cfg.RedisURL) != "" {
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

	summary := service.RunScheduled(ctx)
	log.Printf("scheduler: run finished: outcome=%s attempted=%d published=%d failed=%d saveOk=%t",
		summary.Outcome, len(summary.Results), summary.Published, summary.Failed, summary.SaveOK)
	for _, result := range summary.Results {
		if result.Error != "" {
			log.Printf("scheduler: slot %s failed: %s", result.SlotID, result.Error)
		}
	}

	if !summary.SaveOK {
		os.Exit(1)
	}
}
