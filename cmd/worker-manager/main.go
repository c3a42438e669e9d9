// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"takeoff-workers/internal/common/aws"
	"takeoff-workers/internal/common/cache"
	"takeoff-workers/internal/common/config"
	"takeoff-workers/internal/common/database"
	"takeoff-workers/internal/common/genai"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/common/observability"

	// Takeoff workers
	fti "takeoff-workers/internal/workers/takeoff/fetch-takeoff-items"
	lcc "takeoff-workers/internal/workers/takeoff/lookup-cost-codes"

	// Review workers
	ati "takeoff-workers/internal/workers/review/audit-takeoff-items"
	rpp "takeoff-workers/internal/workers/review/rescan-plan-pages"
	rtr "takeoff-workers/internal/workers/review/run-takeoff-review"
	vq "takeoff-workers/internal/workers/review/validate-quantities"

	// Bid workers
	cbr "takeoff-workers/internal/workers/bid/create-bid-record"
	nrc "takeoff-workers/internal/workers/bid/notify-review-complete"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Caches ---
	pageCache := cache.NewPageImageCache(redis.Client, time.Duration(cfg.Review.PageCacheTTL)*time.Second)
	fragmentCache := cache.NewFragmentCache(redis.Client, time.Duration(cfg.Review.FragmentCacheTTL)*time.Second)

	// --- GenAI provider ---
	var provider genai.Provider
	switch cfg.GenAI.Provider {
	case "openai":
		provider, err = genai.NewOpenAIProvider(cfg.GenAI.APIKey, cfg.GenAI.BaseURL)
		if err != nil {
			zapLog.Fatal("openai provider init failed", zap.Error(err))
		}
	default:
		provider = genai.NewRESTProvider(cfg.GenAI.BaseURL, cfg.GenAI.APIKey, cfg.GenAI.MaxRetries, log)
	}
	zapLog.Info("GenAI provider initialized", zap.String("provider", cfg.GenAI.Provider))

	// --- AWS notification clients (optional) ---
	var sesClient *aws.SESClient
	var snsClient *aws.SNSClient
	if cfg.Notifications.AWS.SES.Enabled {
		sesClient, err = aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
	}
	if cfg.Notifications.AWS.SNS.Enabled {
		snsClient, err = aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
	}

	passTimeout := time.Duration(cfg.Review.PassTimeout) * time.Millisecond

	// --- Register Workers ---

	// --- 1. Takeoff Workers (2) ---
	if cfg.Workers[fti.TaskType].Enabled {
		handler := fti.NewHandler(
			&fti.Config{
				Timeout: time.Duration(cfg.Workers[fti.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, pageCache, log,
		)
		startWorker(zeebeClient, fti.TaskType, cfg.Workers[fti.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[lcc.TaskType].Enabled {
		handler := lcc.NewHandler(
			&lcc.Config{
				Index:      cfg.Database.Elasticsearch.CostCodeIndex,
				Timeout:    time.Duration(cfg.Workers[lcc.TaskType].Timeout) * time.Millisecond,
				MaxResults: 50,
			},
			esClient.Client, fragmentCache, log,
		)
		startWorker(zeebeClient, lcc.TaskType, cfg.Workers[lcc.TaskType], handler.Handle, zapLog)
	}

	// --- 2. Review Workers (4) ---
	// The three reviewer passes run both as standalone Zeebe workers and
	// as the orchestrator's in-process collaborators.
	auditor := ati.NewHandler(
		&ati.Config{
			Model:       cfg.GenAI.TextModel,
			Timeout:     passTimeout,
			MaxTokens:   cfg.GenAI.MaxTokens,
			Temperature: cfg.GenAI.Temperature,
		},
		provider, log,
	)
	if cfg.Workers[ati.TaskType].Enabled {
		startWorker(zeebeClient, ati.TaskType, cfg.Workers[ati.TaskType], auditor.Handle, zapLog)
	}

	rescanner := rpp.NewHandler(
		&rpp.Config{
			Model:       cfg.GenAI.VisionModel,
			Timeout:     passTimeout,
			MaxTokens:   cfg.GenAI.MaxTokens,
			Temperature: cfg.GenAI.Temperature,
			MaxPages:    cfg.Review.MaxPlanPages,
		},
		provider, log,
	)
	if cfg.Workers[rpp.TaskType].Enabled {
		startWorker(zeebeClient, rpp.TaskType, cfg.Workers[rpp.TaskType], rescanner.Handle, zapLog)
	}

	validator := vq.NewHandler(
		&vq.Config{
			Model:       cfg.GenAI.TextModel,
			Timeout:     passTimeout,
			MaxTokens:   cfg.GenAI.MaxTokens,
			Temperature: 0.1,
		},
		provider, log,
	)
	if cfg.Workers[vq.TaskType].Enabled {
		startWorker(zeebeClient, vq.TaskType, cfg.Workers[vq.TaskType], validator.Handle, zapLog)
	}

	if cfg.Workers[rtr.TaskType].Enabled {
		handler := rtr.NewHandler(
			&rtr.Config{
				PassTimeout: passTimeout,
			},
			auditor, rescanner, validator, obs, log,
		)
		startWorker(zeebeClient, rtr.TaskType, cfg.Workers[rtr.TaskType], handler.Handle, zapLog)
	}

	// --- 3. Bid Workers (2) ---
	if cfg.Workers[cbr.TaskType].Enabled {
		handler := cbr.NewHandler(
			&cbr.Config{
				Timeout: time.Duration(cfg.Workers[cbr.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		startWorker(zeebeClient, cbr.TaskType, cfg.Workers[cbr.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[nrc.TaskType].Enabled {
		if sesClient == nil {
			zapLog.Fatal("notify-review-complete enabled but SES is not configured")
		}
		var publisher nrc.TopicPublisher
		if snsClient != nil {
			publisher = snsClient
		}
		handler := nrc.NewHandler(
			&nrc.Config{
				FromAddress: cfg.Notifications.AWS.SES.FromEmail,
				TopicARN:    cfg.Notifications.AWS.SNS.TopicARN,
				Timeout:     time.Duration(cfg.Workers[nrc.TaskType].Timeout) * time.Millisecond,
			},
			sesClient, publisher, log,
		)
		startWorker(zeebeClient, nrc.TaskType, cfg.Workers[nrc.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	maxJobsActive := wcfg.MaxJobsActive
	if maxJobsActive <= 0 {
		maxJobsActive = 1
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(maxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", maxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
