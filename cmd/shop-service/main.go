package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/app"
	"github.com/vladislavdragonenkov/bgshop/internal/version"
)

const (
	envLogLevel = "SHOP_LOG_LEVEL"

	envHTTPAddr    = "SHOP_HTTP_ADDR"
	envGRPCAddr    = "SHOP_GRPC_ADDR"
	envMetricsAddr = "SHOP_METRICS_ADDR"

	envStorageDriver       = "SHOP_STORAGE_DRIVER"
	envPostgresDSN         = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate = "SHOP_POSTGRES_AUTO_MIGRATE"
	envRedisURL            = "SHOP_REDIS_URL"
	envSessionTTL          = "SHOP_SESSION_TTL"
	envKafkaBrokers        = "SHOP_KAFKA_BROKERS"

	envJWTSecret        = "SHOP_JWT_SECRET"
	envPaymentSignature = "SHOP_PAYMENT_SIGNATURE"
	envPublicBaseURL    = "SHOP_PUBLIC_BASE_URL"

	envOutboxPollInterval     = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize        = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts      = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay       = "SHOP_OUTBOX_RETRY_DELAY"
	envOutboxRetention        = "SHOP_OUTBOX_RETENTION"
	envOutboxCleanupInterval  = "SHOP_OUTBOX_CLEANUP_INTERVAL"
	envOutboxCleanupBatchSize = "SHOP_OUTBOX_CLEANUP_BATCH_SIZE"
	envConfigCacheTTL         = "SHOP_CONFIG_CACHE_TTL"

	envOrdinaryDeliveryCost       = "ORDINARY_DELIVERY_COST"
	envExpressDeliveryExtraCharge = "EXPRESS_DELIVERY_EXTRA_CHARGE"
	envFreeDeliveryBoundary       = "BOUNDARY_OF_FREE_DELIVERY"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", envLogLevel, err)
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, msg)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, msg)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	money := func(key string, dst *string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseMoney(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisURL, &cfg.RedisURL)
	duration(envSessionTTL, &cfg.SessionTTL, positiveDuration, "must be > 0")
	str(envKafkaBrokers, &cfg.KafkaBrokers)

	str(envJWTSecret, &cfg.JWTSecret)
	str(envPaymentSignature, &cfg.PaymentSignature)
	str(envPublicBaseURL, &cfg.PublicBaseURL)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	duration(envOutboxRetention, &cfg.OutboxRetention, positiveDuration, "must be > 0")
	duration(envOutboxCleanupInterval, &cfg.OutboxCleanupInterval, positiveDuration, "must be > 0")
	integer(envOutboxCleanupBatchSize, &cfg.OutboxCleanupBatchSize, positive, "must be > 0")
	duration(envConfigCacheTTL, &cfg.ConfigCacheTTL, nonNegativeDuration, "must be >= 0")

	money(envOrdinaryDeliveryCost, &cfg.OrdinaryDeliveryCost)
	money(envExpressDeliveryExtraCharge, &cfg.ExpressDeliveryExtraCharge)
	money(envFreeDeliveryBoundary, &cfg.FreeDeliveryBoundary)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid int value %d: %s", value, msg)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid duration value %s: %s", value, msg)
	}
	return value, nil
}

// parseMoney проверяет денежное значение и возвращает его в каноничной записи.
func parseMoney(raw string) (string, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid decimal value %q: %w", raw, err)
	}
	if value.IsNegative() {
		return "", fmt.Errorf("invalid decimal value %s: must be >= 0", value)
	}
	return value.String(), nil
}

func main() {
	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("некорректный уровень логирования, используем info")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.WithError(warning).Warn("некорректная переменная окружения, используем значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.GetVersion(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaBrokers != "",
	}).Info("запускаем магазин")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("магазин остановлен")
}
