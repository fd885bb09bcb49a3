package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/santaihub/santai-server/libs/config"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/libs/httpx"
	"github.com/santaihub/santai-server/libs/kafkax"
	otelx "github.com/santaihub/santai-server/libs/otel"
	"github.com/santaihub/santai-server/libs/runtime"
	"github.com/santaihub/santai-server/services/workflow-service/internal/handlers"
	"github.com/santaihub/santai-server/services/workflow-service/internal/identity"
	"github.com/santaihub/santai-server/services/workflow-service/internal/outbox"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
	"github.com/santaihub/santai-server/services/workflow-service/internal/sweeper"
	"github.com/santaihub/santai-server/services/workflow-service/internal/workflow"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "workflow-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 0)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	engine := workflow.NewEngine(pool, logger, workflow.Config{
		ResponseTTL: config.Minutes("RESPONSE_TTL_MINUTES", 30*time.Minute),
	})

	ident, err := identity.NewRemoteProvider(config.String("IDENTITY_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("identity provider init failed; using local projection", "err", err)
		ident = nil
	}
	if ident == nil {
		ident = identity.NewPGProvider(storage.NewUserRepository(pool))
	}

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	deadlineSweeper := sweeper.New(pool, logger, sweeper.Config{
		SweepEvery: config.Seconds("SWEEP_INTERVAL_SECONDS", time.Minute),
		BatchSize:  config.Int("SWEEP_BATCH_SIZE", 100),
	})
	go deadlineSweeper.Run(ctx)

	appointmentHandler := handlers.NewAppointmentHandler(engine, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(engine, logger)
	dispatchHandler := handlers.NewDispatchHandler(engine, logger)
	catalogHandler := handlers.NewCatalogHandler(engine, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/appointments", appointmentHandler.Appointments)
	api.HandleFunc("/api/v1/appointments/confirm", appointmentHandler.Confirm)
	api.HandleFunc("/api/v1/appointments/driver-confirm", appointmentHandler.DriverConfirm)
	api.HandleFunc("/api/v1/appointments/assign-driver", appointmentHandler.AssignDriver)
	api.HandleFunc("/api/v1/appointments/start", appointmentHandler.Start)
	api.HandleFunc("/api/v1/appointments/journey/start", appointmentHandler.StartJourney)
	api.HandleFunc("/api/v1/appointments/journey/arrive", appointmentHandler.Arrive)
	api.HandleFunc("/api/v1/appointments/journey/drop-off", appointmentHandler.DropOff)
	api.HandleFunc("/api/v1/appointments/session/start", appointmentHandler.StartSession)
	api.HandleFunc("/api/v1/appointments/session/request-payment", appointmentHandler.RequestPayment)
	api.HandleFunc("/api/v1/appointments/session/verify-payment", appointmentHandler.VerifyPayment)
	api.HandleFunc("/api/v1/appointments/session/complete", appointmentHandler.CompleteSession)
	api.HandleFunc("/api/v1/appointments/pickup/request", appointmentHandler.RequestPickup)
	api.HandleFunc("/api/v1/appointments/pickup/assign", appointmentHandler.AssignPickupDriver)
	api.HandleFunc("/api/v1/appointments/pickup/start", appointmentHandler.StartReturnJourney)
	api.HandleFunc("/api/v1/appointments/pickup/complete", appointmentHandler.CompleteReturnJourney)
	api.HandleFunc("/api/v1/appointments/reject", appointmentHandler.Reject)
	api.HandleFunc("/api/v1/appointments/review", appointmentHandler.Review)
	api.HandleFunc("/api/v1/availability", availabilityHandler.Windows)
	api.HandleFunc("/api/v1/drivers/queue", dispatchHandler.Queue)
	api.HandleFunc("/api/v1/drivers/queue/position", dispatchHandler.Position)
	api.HandleFunc("/api/v1/clients", catalogHandler.Clients)
	api.HandleFunc("/api/v1/services", catalogHandler.Services)

	apiMiddleware := []httpx.Middleware{
		handlers.WithAuth(jwtSecret, ident),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
		apiMiddleware = append(apiMiddleware, limiter.Middleware(logger, true))
	} else {
		apiMiddleware = append(apiMiddleware, httpx.NewRateLimiter(rateLimit, time.Minute).Middleware())
	}
	mux.Handle("/api/v1/", httpx.Chain(api, apiMiddleware...))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitOrigins(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "workflow")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}
