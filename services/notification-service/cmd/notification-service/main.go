package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/santaihub/santai-server/libs/config"
	"github.com/santaihub/santai-server/libs/db"
	"github.com/santaihub/santai-server/libs/httpx"
	"github.com/santaihub/santai-server/libs/kafkax"
	otelx "github.com/santaihub/santai-server/libs/otel"
	"github.com/santaihub/santai-server/libs/runtime"
	"github.com/santaihub/santai-server/services/notification-service/internal/consumer"
	"github.com/santaihub/santai-server/services/notification-service/internal/devices"
	"github.com/santaihub/santai-server/services/notification-service/internal/inbox"
	"github.com/santaihub/santai-server/services/notification-service/internal/push"
	"github.com/santaihub/santai-server/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type notificationPayload struct {
	AppointmentID string   `json:"appointment_id"`
	Kind          string   `json:"kind"`
	Recipients    []string `json:"recipients"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
		MaxConns: int32(config.Int("DB_MAX_CONNS", 5)),
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)

	var sender push.Sender
	switch strings.ToLower(config.String("PUSH_PROVIDER", "expo")) {
	case "noop":
		sender = push.NewNoopSender()
	default:
		sender = push.NewExpoSender()
	}

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "workflow.notification.requested.v1"),
	}
	eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload notificationPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid notification payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.Kind == "" || len(payload.Recipients) == 0 {
			logger.Error("missing notification fields", "appointment_id", payload.AppointmentID, "kind", payload.Kind)
			return nil
		}

		data := map[string]string{
			"appointment_id": payload.AppointmentID,
			"kind":           payload.Kind,
		}

		// Per-recipient delivery and audit row: one dead token must not
		// hide the push from the rest of the group.
		for _, userID := range payload.Recipients {
			tokens, err := notificationsRepo.TokensForUsers(ctx, []string{userID})
			if err != nil {
				return err
			}

			status := "sent"
			if len(tokens) == 0 {
				status = "no_device"
			} else if err := sender.Send(ctx, tokens, payload.Title, payload.Body, data); err != nil {
				status = "failed"
				logger.Error("push send failed", "err", err, "user_id", userID, "kind", payload.Kind)
			}

			if err := notificationsRepo.Insert(ctx, storage.Notification{
				AppointmentID: payload.AppointmentID,
				UserID:        userID,
				Kind:          payload.Kind,
				Title:         payload.Title,
				Body:          payload.Body,
				Payload:       data,
				Status:        status,
			}); err != nil {
				logger.Error("failed to persist notification", "err", err)
				return err
			}
		}

		logger.Info("notification processed",
			"appointment_id", payload.AppointmentID,
			"kind", payload.Kind,
			"recipients", len(payload.Recipients))
		return nil
	})
	go eventConsumer.Run(ctx)

	deviceHandler := devices.NewHandler(notificationsRepo, logger, jwtSecret)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/devices", deviceHandler.Devices)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
