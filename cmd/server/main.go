package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailtrack/internal/api"
	"github.com/ignite/mailtrack/internal/attachment"
	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/esp"
	"github.com/ignite/mailtrack/internal/pkg/distlock"
	"github.com/ignite/mailtrack/internal/pkg/httpretry"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/queue"
	"github.com/ignite/mailtrack/internal/repository/memory"
	"github.com/ignite/mailtrack/internal/repository/postgres"
	"github.com/ignite/mailtrack/internal/service/campaign"
	"github.com/ignite/mailtrack/internal/service/ledger"
	"github.com/ignite/mailtrack/internal/service/sending"
	"github.com/ignite/mailtrack/internal/session"
	"github.com/ignite/mailtrack/internal/template"
	"github.com/ignite/mailtrack/internal/tracking"
	"github.com/ignite/mailtrack/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	// Ledger and recipients
	var (
		repo       ledger.Repository
		recipients ledger.RecipientSource
	)
	if db != nil {
		repo = postgres.NewTrackedMessageRepo(db)
		recipients = postgres.NewRecipientRepo(db)
	} else {
		logger.Warn("server: no DATABASE_URL, using in-memory ledger; data is lost on restart")
		mem := memory.NewRecipientRepo()
		repo = memory.NewTrackedMessageRepo(mem)
		recipients = mem
	}
	ledgerSvc := ledger.NewService(repo)

	sender, err := newSender(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s sender: %v", cfg.Mailing.Provider, err)
	}

	standard := template.NewRenderer(cfg.Mailing.TemplatesDir)
	custom := template.NewRenderer(cfg.Mailing.CustomTemplatesDir)
	campaignSvc := campaign.NewService(ledgerSvc, recipients, standard, custom, sender, campaign.Config{
		FromEmail:       cfg.Mailing.FromEmail,
		FromName:        cfg.Mailing.FromName,
		TrackingBaseURL: cfg.Tracking.BaseURL,
		Concurrency:     cfg.Mailing.Concurrency,
		DispatchTimeout: cfg.DispatchTimeout(),
	})

	// Queue and sessions live in Redis when available.
	var (
		jobQueue   queue.Queue
		queueDepth api.QueueDepthFunc
		sessStore  session.Store
		memQueue   *queue.MemoryQueue
	)
	if rdb != nil {
		rq := queue.NewRedisQueue(rdb, cfg.Redis.KeyPrefix).WithStaleAge(cfg.Worker.StaleAfter())
		jobQueue, queueDepth = rq, rq.Len
		sessStore = session.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	} else {
		memQueue = queue.NewMemoryQueue(100)
		jobQueue = memQueue
		queueDepth = func(context.Context) (int64, error) { return int64(memQueue.Len()), nil }
		sessStore = session.NewMemoryStore()
	}

	store, err := attachment.NewStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize image storage: %v", err)
	}

	campaignWorker := worker.NewCampaignWorker(jobQueue, campaignSvc,
		distlock.NewFactory(rdb, db, cfg.Worker.LockTTL()),
		worker.CampaignWorkerConfig{
			NumWorkers:        cfg.Worker.NumWorkers,
			PollTimeout:       cfg.Worker.PollTimeout(),
			HeartbeatInterval: cfg.Worker.HeartbeatInterval(),
			RecoveryInterval:  cfg.Worker.RecoveryInterval(),
		})
	if err := campaignWorker.Start(); err != nil {
		log.Fatalf("Failed to start campaign worker: %v", err)
	}

	// Opens published by the standalone tracking service.
	var consumer *tracking.Consumer
	if cfg.Tracking.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Tracking.SQSRegion))
		if err != nil {
			log.Fatalf("Failed to load AWS config for SQS: %v", err)
		}
		consumer = tracking.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.Tracking.SQSQueueURL, ledgerSvc)
		consumer.Start(ctx)
	}

	handlers := api.NewHandlers(api.HandlersConfig{
		Queue:           jobQueue,
		Templates:       standard,
		CustomTemplates: custom,
		Messages:        ledgerSvc,
		Images:          attachment.NewProcessor(store, 0),
		Sessions: session.NewManager(sessStore, session.Config{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL(),
			Secure:     cfg.Session.Secure,
		}),
		AdminRedirectURL: cfg.Mailing.AdminRedirectURL,
	})
	health := api.NewHealthChecker(db, rdb, queueDepth)
	health.SetWorkerStats(campaignWorker.Stats)
	server := api.NewServer(cfg.Server, handlers, api.RouterConfig{
		Health:   health,
		Tracking: tracking.NewHandler(tracking.NewLedgerRecorder(ledgerSvc)),
	})

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("server: listening", "addr", addr, "provider", cfg.Mailing.Provider, "tracking_base_url", cfg.Tracking.BaseURL)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("server: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown failed", "error", err)
	}

	// Running jobs finish; nothing new is taken.
	campaignWorker.Stop()
	if consumer != nil {
		consumer.Stop()
	}
	if memQueue != nil {
		memQueue.Close()
	}
	cancel()

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("server: stopped")
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	logger.Info("server: database connected")
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		logger.Warn("server: no REDIS_URL, queue and sessions are in-process")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	logger.Info("server: redis connected")
	return client, nil
}

func newSender(ctx context.Context, cfg *config.Config) (sending.Sender, error) {
	switch cfg.Mailing.Provider {
	case "ses":
		s, err := esp.NewSESSender(ctx, esp.SESConfig{
			Region:           cfg.SES.Region,
			AccessKey:        cfg.SES.AccessKey,
			SecretKey:        cfg.SES.SecretKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
			Timeout:          cfg.SES.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		client := httpretry.NewRetryClient(&http.Client{}, cfg.Mailjet.MaxRetries)
		return esp.NewMailjetSender(esp.MailjetConfig{
			PublicKey:  cfg.Mailjet.PublicKey,
			PrivateKey: cfg.Mailjet.PrivateKey,
			BaseURL:    cfg.Mailjet.BaseURL,
			Timeout:    cfg.Mailjet.Timeout(),
			MaxRetries: cfg.Mailjet.MaxRetries,
		}, client), nil
	}
}
