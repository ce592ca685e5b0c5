package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска магазина.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisURL пустой: сессионные корзины хранятся в памяти.
	RedisURL   string
	SessionTTL time.Duration

	// KafkaBrokers: список брокеров через запятую; пустой отключает Kafka.
	KafkaBrokers string

	JWTSecret        string
	PaymentSignature string
	// PublicBaseURL: адрес API, на который платёжный симулятор шлёт webhook.
	PublicBaseURL string

	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxAttempts      int
	OutboxRetryDelay       time.Duration
	OutboxRetention        time.Duration
	OutboxCleanupInterval  time.Duration
	OutboxCleanupBatchSize int

	ConfigCacheTTL time.Duration

	// Значения конфигурации доставки, которыми заполняется пустая база.
	OrdinaryDeliveryCost       string
	ExpressDeliveryExtraCharge string
	FreeDeliveryBoundary       string
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8000",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		SessionTTL: 14 * 24 * time.Hour,

		PublicBaseURL: "http://localhost:8000",

		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        100,
		OutboxMaxAttempts:      3,
		OutboxRetryDelay:       50 * time.Millisecond,
		OutboxRetention:        24 * time.Hour,
		OutboxCleanupInterval:  10 * time.Minute,
		OutboxCleanupBatchSize: 500,

		ConfigCacheTTL: time.Minute,

		OrdinaryDeliveryCost:       "5",
		ExpressDeliveryExtraCharge: "10",
		FreeDeliveryBoundary:       "20",
	}
}

// DeliveryDefaults разбирает значения конфигурации доставки по умолчанию.
func (c Config) DeliveryDefaults() (domain.DeliveryConfig, error) {
	ordinary, err := decimal.NewFromString(c.OrdinaryDeliveryCost)
	if err != nil {
		return domain.DeliveryConfig{}, fmt.Errorf("parse ordinary delivery cost: %w", err)
	}
	express, err := decimal.NewFromString(c.ExpressDeliveryExtraCharge)
	if err != nil {
		return domain.DeliveryConfig{}, fmt.Errorf("parse express delivery extra charge: %w", err)
	}
	boundary, err := decimal.NewFromString(c.FreeDeliveryBoundary)
	if err != nil {
		return domain.DeliveryConfig{}, fmt.Errorf("parse free delivery boundary: %w", err)
	}

	cfg := domain.DeliveryConfig{
		OrdinaryDeliveryCost:       ordinary,
		ExpressDeliveryExtraCharge: express,
		FreeDeliveryBoundary:       boundary,
	}
	if err := cfg.Validate(); err != nil {
		return domain.DeliveryConfig{}, err
	}
	return cfg, nil
}
