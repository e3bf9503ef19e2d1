package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hireloop/scheduling/internal/availability"
	"github.com/hireloop/scheduling/internal/booking"
	"github.com/hireloop/scheduling/internal/calendar"
	"github.com/hireloop/scheduling/internal/consumer"
	"github.com/hireloop/scheduling/internal/handlers"
	"github.com/hireloop/scheduling/internal/inbox"
	"github.com/hireloop/scheduling/internal/outbox"
	"github.com/hireloop/scheduling/internal/reminder"
	"github.com/hireloop/scheduling/internal/storage"
	"github.com/hireloop/scheduling/libs/config"
	"github.com/hireloop/scheduling/libs/db"
	"github.com/hireloop/scheduling/libs/httpx"
	"github.com/hireloop/scheduling/libs/kafkax"
	otelx "github.com/hireloop/scheduling/libs/otel"
	"github.com/hireloop/scheduling/libs/runtime"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []reminder.Offset {
	var offsets []reminder.Offset
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, reminder.Offset{
			Label:  part + "m",
			Before: time.Duration(mins) * time.Minute,
		})
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
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

	sqlDB, err := sql.Open("pgx", dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	if err := storage.Migrate(sqlDB); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}
	_ = sqlDB.Close()

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	var googleProvider calendar.Provider = calendar.NewGoogleProvider(
		config.String("GOOGLE_CLIENT_ID", ""),
		config.String("GOOGLE_CLIENT_SECRET", ""),
	)
	if rdb != nil {
		cacheTTL := config.DurationSeconds("BUSY_CACHE_TTL_SECONDS", time.Minute)
		googleProvider = calendar.NewCachedProvider(googleProvider, rdb, cacheTTL, logger)
	}
	registry := calendar.NewRegistry(googleProvider)

	slotRepo := storage.NewSlotRepository(pool)
	configRepo := storage.NewConfigRepository(pool)
	idemRepo := storage.NewIdempotencyRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	reminderRepo := reminder.NewRepository()

	providerTimeout := config.DurationSeconds("PROVIDER_TIMEOUT_SECONDS", 3*time.Second)
	aggregator := availability.NewAggregator(slotRepo, configRepo, registry, providerTimeout, logger)
	availabilityService := availability.NewService(configRepo, configRepo, aggregator, slotRepo, logger)

	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,30"), logger)
	reminderScheduler := reminder.NewScheduler(reminderRepo, offsets)

	coordinator := booking.NewCoordinator(pool, slotRepo, availabilityService, aggregator, reminderScheduler, outboxRepo, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	reminderWorker := reminder.NewWorker(pool, reminderRepo, slotRepo, outboxRepo, logger, reminder.WorkerConfig{
		Interval:  config.DurationSeconds("REMINDER_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("REMINDER_BATCH_SIZE", 50),
		Backoff:   config.DurationSeconds("REMINDER_BACKOFF_SECONDS", time.Minute),
	})
	go reminderWorker.Run(ctx)

	sweeper := booking.NewSweeper(slotRepo, logger, config.DurationSeconds("SLOT_SWEEP_SECONDS", time.Minute))
	go sweeper.Run(ctx)

	if brokers := strings.TrimSpace(config.String("KAFKA_BROKERS", "")); brokers != "" {
		projectionConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topics:  consumer.ProjectionTopics,
		}, consumer.NewProjectionHandler(configRepo, logger))
		go projectionConsumer.Run(ctx)
	}

	schedulingHandler := handlers.NewSchedulingHandler(availabilityService, coordinator, slotRepo, idemRepo, pool, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/availability", schedulingHandler.Availability)
	mux.HandleFunc("/api/v1/slots", schedulingHandler.Slots)
	mux.HandleFunc("/api/v1/bookings", schedulingHandler.Bookings)
	mux.HandleFunc("/api/v1/bookings/reschedule", schedulingHandler.Reschedule)
	mux.HandleFunc("/api/v1/bookings/cancel", schedulingHandler.Cancel)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(config.DurationSeconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
	}
	if rdb != nil {
		limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		middlewares = append(middlewares, rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")

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
