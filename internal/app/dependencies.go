package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bgshop/internal/health"
	"github.com/vladislavdragonenkov/bgshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bgshop/internal/metrics"
	"github.com/vladislavdragonenkov/bgshop/internal/service/cart"
	"github.com/vladislavdragonenkov/bgshop/internal/service/dynconfig"
	"github.com/vladislavdragonenkov/bgshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/bgshop/internal/service/lineitem"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
	"github.com/vladislavdragonenkov/bgshop/internal/service/payment"
	"github.com/vladislavdragonenkov/bgshop/internal/service/tasks"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/postgres"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/redis"
	"github.com/vladislavdragonenkov/bgshop/internal/version"
)

const simulatorTimeout = 5 * time.Second

// runtimeDependencies: хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	store          domain.Store
	purger         domain.OutboxPurger
	sessions       domain.SessionCartStore
	storageChecker healthcheck.Checker
	sessionChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies открывает хранилище заказов и хранилище сессионных корзин.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	var deps runtimeDependencies
	var closers []func() error

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.store = store
		deps.purger = store
		deps.storageChecker = healthcheck.NewPingChecker("storage", store)
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return runtimeDependencies{}, errors.New("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.store = store
		deps.purger = store
		deps.storageChecker = healthcheck.NewPingChecker("storage", store)
		closers = append(closers, store.Close)
		logger.Info("using postgres storage")
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisURL != "" {
		sessions, err := redis.Open(ctx, cfg.RedisURL, redis.WithTTL(cfg.SessionTTL))
		if err != nil {
			closeAll(closers)
			return runtimeDependencies{}, err
		}
		deps.sessions = sessions
		deps.sessionChecker = healthcheck.NewOptionalChecker("sessions", sessions)
		closers = append(closers, sessions.Close)
		logger.Info("using redis session carts")
	} else {
		deps.sessions = memory.NewSessionCartStore()
	}

	deps.closeFn = func() error { return closeAll(closers) }
	return deps, nil
}

// newHealthHandler собирает проверки хранилища заказов и, если есть, хранилища сессий.
func newHealthHandler(deps runtimeDependencies) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())
	h.RegisterChecker("storage", deps.storageChecker)
	if deps.sessionChecker != nil {
		h.RegisterChecker("sessions", deps.sessionChecker)
	}
	return h
}

// closeAll закрывает ресурсы в обратном порядке открытия.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// services: прикладные сервисы магазина поверх хранилищ.
type services struct {
	config    *dynconfig.Store
	queue     *tasks.OutboxQueue
	orders    *order.Manager
	carts     *cart.Service
	initiator *payment.Initiator
	webhook   *payment.WebhookHandler
}

func newServices(deps runtimeDependencies, cfg Config, logger *log.Entry, m *metrics.ShopMetrics) (*services, error) {
	defaults, err := cfg.DeliveryDefaults()
	if err != nil {
		return nil, err
	}

	config := dynconfig.NewStore(deps.store, defaults, logger.WithField("component", "dynconfig"), dynconfig.WithTTL(cfg.ConfigCacheTTL))
	queue := tasks.NewOutboxQueue(deps.store.Outbox(), logger.WithField("component", "tasks"))
	reconciler := lineitem.NewReconciler(time.Now)
	ledger := inventory.NewLedger(logger.WithField("component", "inventory"), m)

	orders := order.NewManager(deps.store, reconciler, ledger, config, queue,
		order.WithLogger(logger.WithField("component", "orders")),
		order.WithMetrics(m),
	)

	return &services{
		config: config,
		queue:  queue,
		orders: orders,
		carts: cart.NewService(deps.store, orders, reconciler, deps.sessions, config,
			logger.WithField("component", "cart"), cart.WithMetrics(m)),
		initiator: payment.NewInitiator(deps.store, queue, logger.WithField("component", "payment")),
		webhook:   payment.NewWebhookHandler(deps.store, orders, cfg.PaymentSignature, logger.WithField("component", "payment-webhook"), m),
	}, nil
}

// newTaskDispatcher маршрутизирует задачи outbox по типу.
// Без Kafka уведомления о заказах пишутся в лог.
func newTaskDispatcher(cfg Config, producer *kafka.Producer, logger *log.Entry) *tasks.Dispatcher {
	var notifier domain.OutboxPublisher = tasks.NewLogNotifier(logger.WithField("component", "notifier"))
	if producer != nil {
		notifier = kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
	}

	simulator := payment.NewSimulator(
		&http.Client{Timeout: simulatorTimeout},
		payment.WebhookURL(cfg.PublicBaseURL),
		cfg.PaymentSignature,
		logger.WithField("component", "payment-simulator"),
	)

	return tasks.NewDispatcher(logger.WithField("component", "task-dispatcher")).
		Handle(domain.TaskOrderConfirmed, notifier).
		Handle(domain.TaskPaymentSimulate, simulator)
}
