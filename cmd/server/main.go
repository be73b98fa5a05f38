package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/config"
	"noirvision-backend/internal/database"
	"noirvision-backend/internal/handlers"
	"noirvision-backend/internal/logging"
	"noirvision-backend/internal/middleware"
	"noirvision-backend/internal/repository"
	"noirvision-backend/internal/router"
	"noirvision-backend/internal/services"
	"noirvision-backend/internal/storage"
	"noirvision-backend/internal/websocket"
	"noirvision-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)
	log.WithField("env", cfg.Env).Info("starting NoirVision backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	// ──── Step 2: Job Store ────
	jobs, closeJobs, err := openJobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeJobs()

	// ──── Step 3: Redis (optional) ────
	var redisClients *database.RedisClients
	if cfg.RedisURL != "" {
		redisClients, err = database.NewRedisClients(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClients.Close()
		log.Info("redis connected")
	} else {
		log.Info("REDIS_URL not set, using in-process queue")
	}

	// ──── Step 4: Evidence Storage ────
	blobs, err := storage.New(ctx, storage.Config{
		Type:            cfg.StorageType,
		Path:            cfg.StoragePath,
		Bucket:          cfg.S3Bucket,
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		// Submissions answer 503 through the preflight check until fixed.
		log.WithError(err).Warn("evidence storage unavailable")
		blobs = unavailableStore{err: err}
	}

	// ──── Step 5: Video Provider ────
	provider := services.NewTwelveLabsClient(services.TwelveLabsConfig{
		APIKey:           cfg.TwelveLabsAPIKey,
		IndexID:          cfg.TwelveLabsIndexID,
		BaseURL:          cfg.TwelveLabsBaseURL,
		Mock:             cfg.TwelveLabsMock,
		RequestTimeout:   cfg.TwelveLabsHTTPTimeout,
		SummarizeTimeout: cfg.TwelveLabsSummarizeTimeout,
	}, log)
	poller := services.NewPoller(provider, services.PollerConfig{
		BaseInterval: cfg.PollBaseInterval,
		MaxInterval:  cfg.PollMaxInterval,
		Multiplier:   cfg.PollMultiplier,
	}, log)
	if provider.Mock() {
		log.Warn("TWELVELABS_MOCK enabled, provider calls are simulated")
	}

	// ──── Step 6: Queue, Notifications, Workers ────
	var queue worker.Queue
	if redisClients != nil {
		queue = worker.NewRedisQueue(redisClients.Queue)
	} else {
		chQueue := worker.NewChannelQueue(cfg.WorkerCount * 25)
		defer chQueue.Close()
		queue = chQueue
	}

	storageCheck := func() error {
		if u, ok := blobs.(unavailableStore); ok {
			return u.err
		}
		return cfg.RequireS3()
	}
	analysis := services.NewAnalysisService(jobs, blobs, queue, log, cfg.RequireTwelveLabs, storageCheck)

	var notifier worker.Notifier
	var hub *websocket.Hub
	if redisClients != nil {
		hub = websocket.NewHub(redisClients.PubSub, analysis, log)
		notifier = worker.NewRedisNotifier(redisClients.Queue, log)
	} else {
		hub = websocket.NewHub(nil, analysis, log)
		notifier = hub
	}

	runner := worker.NewRunner(jobs, blobs, provider, poller, notifier, cfg.PollTimeout, log)
	workers := worker.NewPool(queue, runner, cfg.WorkerCount, log)
	workers.Start(ctx)

	// ──── Step 7: Claim Analysis (optional) ────
	var claims handlers.ClaimService
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, log)
		if err != nil {
			return fmt.Errorf("gemini: %w", err)
		}
		defer gemini.Close()
		claims = services.NewClaimAnalyzer(gemini, analysis, log)
	} else {
		log.Warn("GEMINI_API_KEY not set, claim analysis disabled")
	}

	// ──── Step 8: Users & Identity ────
	var profiles services.ProfileStore
	if cfg.DynamoDBTable != "" {
		dynamo, err := database.NewDynamoClient(ctx, database.DynamoConfig{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.DynamoDBEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			log.WithError(err).Warn("dynamodb unavailable, user routes disabled")
		} else {
			profiles = repository.NewProfileRepo(dynamo, cfg.DynamoDBTable)
		}
	}

	var verifier middleware.Verifier
	switch {
	case cfg.CognitoUserPoolID != "":
		verifier = middleware.NewCognitoVerifier(cfg.CognitoRegion, cfg.CognitoUserPoolID, cfg.CognitoClientID)
	case cfg.JWTSecret != "" && !cfg.IsProduction():
		log.Warn("COGNITO_USER_POOL_ID not set, accepting HS256 tokens signed with JWT_SECRET")
		verifier = middleware.NewHMACVerifier(cfg.JWTSecret)
	default:
		log.Warn("no identity provider configured, user routes answer 503")
	}

	// ──── Step 9: HTTP Server ────
	// Submissions start paid provider work (30 req/min per client)
	submitLimiter := middleware.NewRateLimiter(30, time.Minute)
	defer submitLimiter.Close()

	r := router.New(
		log,
		verifier,
		handlers.NewHealthHandler(claims != nil, cfg.TwelveLabsConfigured(), provider.Mock()),
		handlers.NewVideoHandler(analysis, log),
		handlers.NewAnalyzeHandler(claims, log),
		handlers.NewUserHandler(services.NewUserService(profiles, log), log),
		hub,
		submitLimiter,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // claim analysis makes several model calls
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			workers.Stop(context.Background())
			return err
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	workers.Stop(shutdownCtx)
	return nil
}

// openJobStore picks PostgreSQL when DATABASE_URL is set and SQLite otherwise.
func openJobStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (repository.JobStore, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, cfg.MigrationsPath, log); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info("job store: postgres")
		return repository.NewJobRepo(pool), pool.Close, nil
	}

	db, err := database.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: %w", err)
	}
	repo, err := repository.NewSQLiteJobRepo(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.WithField("path", cfg.SQLitePath).Info("job store: sqlite")
	return repo, func() { db.Close() }, nil
}

// unavailableStore stands in for a blob store that failed to initialize.
type unavailableStore struct{ err error }

func (u unavailableStore) PutJSON(context.Context, string, interface{}) error { return u.err }

func (u unavailableStore) GetJSON(context.Context, string, interface{}) error { return u.err }

func (u unavailableStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", u.err
}
