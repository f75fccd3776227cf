package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dme-backend/internal/activities"
	googleauth "dme-backend/internal/auth"
	"dme-backend/internal/documents"
	"dme-backend/internal/extraction"
	"dme-backend/internal/llm"
	openai "dme-backend/internal/llm/openai"
	"dme-backend/internal/orders"
	"dme-backend/internal/queue"
	"dme-backend/internal/services/health"
	sharedauth "dme-backend/internal/shared/auth"
	"dme-backend/internal/shared/config"
	"dme-backend/internal/shared/server"
	"dme-backend/internal/shared/storage/db"
	"dme-backend/internal/shared/storage/object"
	localstore "dme-backend/internal/shared/storage/object/local"
	s3store "dme-backend/internal/shared/storage/object/s3"
	"dme-backend/internal/users"
)

const tokenIssuer = "dme-backend"

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client
	Tokens *sharedauth.Manager

	UsersRepo      users.Repo
	OrdersRepo     orders.Repo
	DocumentsRepo  documents.Repo
	ActivitiesRepo activities.Repo

	UsersService        *users.Service
	OrdersService       *orders.Service
	DocumentsService    *documents.Service
	ActivitiesService   *activities.Service
	ExtractionService   *extraction.Service
	ExtractionProcessor DocumentProcessor
	HealthService       *health.Service

	UsersHandler      *users.Handler
	OrdersHandler     *orders.Handler
	DocumentsHandler  *documents.Handler
	ExtractionHandler *extraction.Handler
	ActivitiesHandler *activities.Handler
	GoogleAuth        *googleauth.GoogleService
}

// DocumentProcessor allows callers to override extraction processing for tests.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		Tokens:            app.Tokens,
		Health:            app.HealthService,
		UserHandler:       app.UsersHandler,
		OrderHandler:      app.OrdersHandler,
		DocumentHandler:   app.DocumentsHandler,
		ExtractionHandler: app.ExtractionHandler,
		ActivityHandler:   app.ActivitiesHandler,
		GoogleAuth:        app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: migrations failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	client, err := queue.NewSQSClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var userRepo users.Repo
	var orderRepo orders.Repo
	var docRepo documents.Repo
	var activityRepo activities.Repo

	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		orderRepo = &orders.PGRepo{DB: app.DB}
		docRepo = &documents.PGRepo{DB: app.DB}
		activityRepo = &activities.PGRepo{DB: app.DB}
	} else {
		userRepo = users.NewMemoryRepo()
		orderRepo = orders.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo()
		activityRepo = activities.NewMemoryRepo()
	}

	tokens := sharedauth.NewManager(
		app.Config.JWTSecret,
		tokenIssuer,
		time.Duration(app.Config.JWTTTLMinutes)*time.Minute,
	)

	// A missing API key leaves the client nil; the extraction service reports
	// itself unconfigured and documents stay pending until a key arrives.
	var llmClient llm.Client
	if strings.TrimSpace(app.Config.OpenAIAPIKey) != "" {
		client, err := openai.NewClient(app.Config.OpenAIAPIKey, app.Config.OpenAIModel)
		if err != nil {
			return err
		}
		llmClient = client
	} else {
		log.Printf("bootstrap: OPENAI_API_KEY empty; extraction disabled")
	}

	extractionSvc := extraction.NewService(docRepo, app.Store, llmClient, app.Queue)
	extractionSvc.Attempts = app.Config.ExtractMaxAttempts
	extractionSvc.RetryBase = time.Duration(app.Config.ExtractRetryBaseMS) * time.Millisecond

	activitySvc := activities.NewService(activityRepo)
	userSvc := users.NewService(userRepo, tokens)
	docSvc := documents.NewService(docRepo, app.Store, extractionSvc)
	orderSvc := orders.NewService(orderRepo, docRepo)
	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		tokens,
		userSvc,
		activitySvc,
	)

	app.Tokens = tokens
	app.UsersRepo = userRepo
	app.OrdersRepo = orderRepo
	app.DocumentsRepo = docRepo
	app.ActivitiesRepo = activityRepo
	app.UsersService = userSvc
	app.OrdersService = orderSvc
	app.DocumentsService = docSvc
	app.ActivitiesService = activitySvc
	app.ExtractionService = extractionSvc
	app.ExtractionProcessor = extractionSvc
	app.HealthService = health.NewService(app.DB)
	app.UsersHandler = users.NewHandler(userSvc, activitySvc)
	app.OrdersHandler = orders.NewHandler(orderSvc, activitySvc)
	app.DocumentsHandler = documents.NewHandler(docSvc, activitySvc)
	app.ExtractionHandler = extraction.NewHandler(extractionSvc, activitySvc)
	app.ActivitiesHandler = activities.NewHandler(activitySvc)
	app.GoogleAuth = googleAuthSvc

	return nil
}
