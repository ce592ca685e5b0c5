// Команда notification-worker читает события заказов из Kafka и исполняет их:
// логирует подтверждённые заказы и проводит переигранные из DLQ тестовые оплаты.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bgshop/internal/service/payment"
	"github.com/vladislavdragonenkov/bgshop/internal/service/tasks"
)

const (
	envKafkaBrokers     = "SHOP_KAFKA_BROKERS"
	envGroupID          = "SHOP_NOTIFICATION_GROUP"
	envMaxRetries       = "SHOP_NOTIFICATION_MAX_RETRIES"
	envPublicBaseURL    = "SHOP_PUBLIC_BASE_URL"
	envPaymentSignature = "SHOP_PAYMENT_SIGNATURE"
	envLogLevel         = "SHOP_LOG_LEVEL"

	defaultGroupID       = "bgshop-notifications"
	defaultMaxRetries    = 3
	defaultPublicBaseURL = "http://localhost:8000"

	clientID         = "bgshop-notification-worker"
	simulatorTimeout = 5 * time.Second
)

type config struct {
	brokers          []string
	groupID          string
	maxRetries       int
	publicBaseURL    string
	paymentSignature string
}

type messageConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

var newConsumer = func(cfg config, handler kafka.MessageHandler, logger *log.Entry) (messageConsumer, func() error, error) {
	dlq, err := kafka.NewProducer(cfg.brokers, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("create dlq producer: %w", err)
	}

	consumer, err := kafka.NewConsumerWithDLQ(cfg.brokers, cfg.groupID, []string{kafka.TopicOrderEvents}, handler, dlq, cfg.maxRetries)
	if err != nil {
		if closeErr := dlq.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close dlq producer")
		}
		return nil, nil, err
	}

	return consumer, dlq.Close, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if raw := strings.TrimSpace(os.Getenv(envLogLevel)); raw != "" {
		if level, err := log.ParseLevel(raw); err == nil {
			log.SetLevel(level)
		}
	}

	cfg, err := readConfig(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.WithField("component", "notification-worker")); err != nil {
		log.WithError(err).Fatal("воркер уведомлений завершился с ошибкой")
	}
}

func readConfig(lookup func(string) (string, bool)) (config, error) {
	cfg := config{
		groupID:       defaultGroupID,
		maxRetries:    defaultMaxRetries,
		publicBaseURL: defaultPublicBaseURL,
	}

	value := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	for _, broker := range strings.Split(value(envKafkaBrokers), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("%s is required", envKafkaBrokers)
	}

	if v := value(envGroupID); v != "" {
		cfg.groupID = v
	}
	if v := value(envMaxRetries); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil || retries < 0 {
			return config{}, fmt.Errorf("%s must be a non-negative integer, got %q", envMaxRetries, v)
		}
		cfg.maxRetries = retries
	}
	if v := value(envPublicBaseURL); v != "" {
		cfg.publicBaseURL = v
	}
	cfg.paymentSignature = value(envPaymentSignature)

	return cfg, nil
}

// newHandler собирает диспетчер задач поверх конвертов из топика событий заказов.
// Без подписи платёжного шлюза задачи payment.simulate считаются неизвестными и уходят в DLQ.
func newHandler(cfg config, logger *log.Entry) kafka.MessageHandler {
	dispatcher := tasks.NewDispatcher(logger.WithField("component", "task-dispatcher")).
		Handle(domain.TaskOrderConfirmed, tasks.NewLogNotifier(logger.WithField("component", "notifier")))

	if cfg.paymentSignature != "" {
		dispatcher.Handle(domain.TaskPaymentSimulate, payment.NewSimulator(
			&http.Client{Timeout: simulatorTimeout},
			payment.WebhookURL(cfg.publicBaseURL),
			cfg.paymentSignature,
			logger.WithField("component", "payment-simulator"),
		))
	}

	return kafka.EnvelopeHandler(dispatcher)
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	consumer, closeDLQ, err := newConsumer(cfg, newHandler(cfg, logger), logger)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}

	if err := consumer.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("start kafka consumer: %w", err), closeDLQ())
	}

	logger.WithFields(log.Fields{
		"brokers":  cfg.brokers,
		"group_id": cfg.groupID,
		"topic":    kafka.TopicOrderEvents,
	}).Info("воркер уведомлений запущен")

	<-ctx.Done()

	stopErr := consumer.Stop()
	closeErr := closeDLQ()
	logger.Info("воркер уведомлений остановлен")
	return errors.Join(stopErr, closeErr)
}
