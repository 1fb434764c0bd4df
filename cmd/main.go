package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"smartlibrary/internal/caching"
	"smartlibrary/internal/config"
	"smartlibrary/internal/handlers"
	"smartlibrary/internal/jobs"
	"smartlibrary/internal/jobs/background"
	"smartlibrary/internal/middleware"
	"smartlibrary/internal/migrations"
	"smartlibrary/internal/repositories"
	"smartlibrary/internal/services"
	"smartlibrary/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePool(pool)

	if err := migrations.Up(pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	// Redis backs both the cache and the receipt queue
	redisClient := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	cacheSvc := caching.NewRedisCacheService(redisClient)
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisClient.Options().Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize MinIO service
	minioSvc, err := services.NewMinioService(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}
	if err := minioSvc.EnsureBucketExists(ctx, cfg.Minio.ReceiptBucket); err != nil {
		log.Printf("WARN: receipt bucket %q unavailable, receipts will retry: %v", cfg.Minio.ReceiptBucket, err)
	}

	gateway := newGateway(cfg)

	// Create repositories
	paymentRepo := repositories.NewPaymentRepo(pool)
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	seatRepo := repositories.NewSeatRepo(pool)
	userRepo := repositories.NewUserRepo(pool)

	// Create services
	seatAllocator := services.NewSeatAllocator(seatRepo)
	paymentSvc := services.NewPaymentService(paymentRepo, cacheSvc, cfg.Payments.HistoryCacheTTL)
	subscriptionSvc := services.NewSubscriptionService(subscriptionRepo, userRepo, seatAllocator)
	receiptSvc := services.NewReceiptService(paymentRepo, paymentSvc, minioSvc, cfg.Minio.ReceiptBucket, cfg.Minio.URLExpiry)

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	verificationSvc := services.NewVerificationService(services.VerificationDependencies{
		Verifier:      services.NewSignatureVerifier(cfg.Razorpay.KeySecret, cfg.Razorpay.AllowTestSignatures),
		Gateway:       gateway,
		Transactor:    repositories.NewTransactor(pool),
		Payments:      paymentSvc,
		Subscriptions: subscriptionSvc,
		Seats:         seatAllocator,
		Users:         userRepo,
		Cache:         cacheSvc,
		Receipts:      jobs.NewReceiptScheduler(asynqClient),
	}, services.VerificationOptions{
		Dedupe:  cfg.Dedupe(),
		LockTTL: cfg.Payments.VerifyLockTTL,
	})
	log.Printf("Payment dedupe mode: %s", cfg.Payments.DedupeMode)

	// Background workers
	receiptWorker := jobs.NewReceiptWorker(redisOpt, cfg.Jobs.ReceiptConcurrency)
	mux := asynq.NewServeMux()
	jobs.NewReceiptTaskHandler(receiptSvc).Register(mux)
	if err := receiptWorker.Start(mux); err != nil {
		log.Printf("WARN: receipt worker failed to start: %v", err)
	}
	defer receiptWorker.Shutdown()

	scheduler, err := background.NewJobScheduler(subscriptionSvc, cfg.Jobs.ExpirySweepInterval)
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create handlers
	paymentHandlers := handlers.NewPaymentHandlers(gateway, verificationSvc, paymentSvc, receiptSvc, seatAllocator)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.PingFunc(pool.Ping),
		cacheSvc,
		handlers.PingFunc(func(ctx context.Context) error {
			found, err := minioSvc.BucketExists(ctx, cfg.Minio.ReceiptBucket)
			if err == nil && !found {
				err = fmt.Errorf("bucket %q missing", cfg.Minio.ReceiptBucket)
			}
			return err
		}),
		scheduler,
		version,
	)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	// API routes
	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))
	v1.Use(middleware.JWTMiddleware(cfg.JWTSecret))

	v1.POST("/payment/order", paymentHandlers.CreateOrder)
	v1.POST("/payment/verify", paymentHandlers.VerifyPayment)
	v1.GET("/payment/history", paymentHandlers.GetPaymentHistory)
	v1.GET("/payment/:id/receipt", paymentHandlers.GetReceipt)
	v1.GET("/seats/availability", paymentHandlers.GetSeatAvailability)

	go func() {
		log.Printf("Smart Library payment service v%s starting on port %s (%s)", version, cfg.Port, cfg.Environment)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: HTTP server shutdown: %v", err)
	}
}

func newGateway(cfg *config.Config) services.PaymentGateway {
	opts := services.GatewayOptions{
		Currency:     cfg.Razorpay.Currency,
		FetchTimeout: cfg.Razorpay.FetchTimeout,
	}

	if cfg.Razorpay.AllowTestSignatures {
		log.Printf("WARNING: RAZORPAY_ALLOW_TEST_SIGNATURES is enabled; signatures starting with %q are accepted without verification",
			services.TestSignaturePrefix)
	}

	if cfg.Razorpay.MockMode {
		log.Printf("WARNING: RAZORPAY_MOCK_MODE is enabled; orders are simulated and every fetched order is worth %d minor units",
			cfg.Razorpay.MockOrderAmount)
		return services.NewMockGateway(cfg.Razorpay.MockOrderAmount, opts)
	}

	return services.NewRazorpayGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.BaseURL, opts)
}
