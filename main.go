package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"parking_backend/internal/api"
	"parking_backend/internal/api/handler"
	"parking_backend/internal/api/middleware"
	"parking_backend/internal/config"
	"parking_backend/internal/gate"
	"parking_backend/internal/repository"
	"parking_backend/internal/repository/firestore"
	"parking_backend/internal/repository/memory"
	"parking_backend/internal/repository/postgresql"
	"parking_backend/internal/service"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	log.Printf("Configuration loaded (store=%s, auth=%s)", cfg.StoreBackend, cfg.AuthProvider)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 2. Firebase app, only when something needs it
	var app *firebase.App
	if cfg.StoreBackend == "firestore" || cfg.AuthProvider == "firebase" {
		var err error
		app, err = newFirebaseApp(rootCtx, cfg)
		if err != nil {
			log.Fatalf("Could not initialize Firebase: %v", err)
		}
		log.Println("Firebase app initialized")
	}

	// 3. Store
	store, closeStore, err := openStore(rootCtx, cfg, app)
	if err != nil {
		log.Fatalf("Could not open %s store: %v", cfg.StoreBackend, err)
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	// 4. Auth provider
	var provider service.AuthProvider
	switch cfg.AuthProvider {
	case "firebase":
		authClient, err := app.Auth(rootCtx)
		if err != nil {
			log.Fatalf("Could not initialize Firebase Auth: %v", err)
		}
		provider = service.NewFirebaseAuthProvider(authClient)
	default:
		provider = service.NewLocalAuthProvider(store.Credentials, cfg.JWTSecret, cfg.JWTExpirationHours)
	}

	// 5. AWS clients
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(rootCtx, awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Could not load AWS SDK config: %v", err)
	}
	log.Println("AWS SDK config loaded for region:", cfg.AWSRegion)

	var images service.ImageStore
	if cfg.PlateBucket != "" {
		images = service.NewS3ImageStore(s3.NewFromConfig(awsSDKCfg), cfg.PlateBucket, cfg.PlateURLExpiry)
	} else {
		log.Println("WARNING: PLATE_IMAGE_BUCKET is not set, plate images will not be stored")
	}
	detector := service.NewRekognitionTextDetector(rekognition.NewFromConfig(awsSDKCfg))
	lprService := service.NewLPRService(detector, images)

	// 6. Redis for rate limiting
	var limiter redis.Scripter
	if cfg.RedisURL != "" {
		if rdb, err := newRedis(rootCtx, cfg.RedisURL); err != nil {
			log.Printf("WARNING: Redis unavailable, rate limiting disabled: %v", err)
		} else {
			defer rdb.Close()
			limiter = rdb
		}
	}

	// 7. Websocket manager and services
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start(rootCtx)
	log.Println("WebSocket Manager started")

	parkingService := service.NewParkingService(store, cfg.HourlyRate, cfg.StoreTimeout, webSocketManager)
	services := api.Services{
		Auth:    service.NewAuthService(provider, store.Users, cfg.AdminEmails),
		Parking: parkingService,
		Payment: service.NewPaymentService(store.Payments, cfg.StoreTimeout),
		User:    service.NewUserService(store, provider, cfg.StoreTimeout),
		LPR:     lprService,
	}
	authMiddleware := middleware.NewAuthMiddleware(provider)

	// 8. Gate event consumer
	var wg sync.WaitGroup
	if cfg.SQSEventQueueURL == "" {
		log.Println("WARNING: SQS_EVENT_QUEUE_URL is not set, gate consumer will not run")
	} else {
		consumer := gate.NewSQSConsumer(sqs.NewFromConfig(awsSDKCfg), cfg.SQSEventQueueURL, gate.NewEventHandler(parkingService))
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Println("SQS Consumer listening on queue:", cfg.SQSEventQueueURL)
			consumer.Start(rootCtx)
			log.Println("SQS Consumer stopped")
		}()
	}

	// 9. HTTP server
	router := api.SetupRouter(cfg, services, authMiddleware, webSocketManager, limiter)
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancelRoot()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shut down: %v", err)
	}

	if cfg.SQSEventQueueURL != "" {
		log.Println("Waiting for SQS consumer to stop (up to 5 seconds)...")
		c := make(chan struct{})
		go func() {
			defer close(c)
			wg.Wait()
		}()
		select {
		case <-c:
			log.Println("SQS consumer stopped")
		case <-time.After(5 * time.Second):
			log.Println("SQS consumer did not stop in time")
		}
	}

	log.Println("Server stopped")
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		if _, err := os.Stat(cfg.FirebaseCredentialsFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
		} else {
			log.Printf("Firebase credentials file %s not found, using application default credentials", cfg.FirebaseCredentialsFile)
		}
	}
	var fbCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	return firebase.NewApp(ctx, fbCfg, opts...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStore returns the repositories of the configured backend and what must be closed on exit.
func openStore(ctx context.Context, cfg *config.Config, app *firebase.App) (repository.Store, io.Closer, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := postgresql.NewDB(cfg)
		if err != nil {
			return repository.Store{}, nil, err
		}
		log.Println("Connected to PostgreSQL")
		if cfg.DBMigrate {
			migrateCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
			defer cancel()
			if err := postgresql.Migrate(migrateCtx, db); err != nil {
				db.Close()
				return repository.Store{}, nil, err
			}
			log.Println("Database schema is up to date")
		}
		return postgresql.NewStore(db), db, nil
	case "firestore":
		fs, err := firestore.NewStore(ctx, app)
		if err != nil {
			return repository.Store{}, nil, err
		}
		return fs.Repositories(), fs, nil
	default:
		log.Println("WARNING: using the in-memory store, data is lost on restart")
		return memory.NewStore().Repositories(), closerFunc(func() error { return nil }), nil
	}
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	log.Println("Connected to Redis")
	return rdb, nil
}
