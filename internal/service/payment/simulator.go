package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/bgshop/internal/version"
)

const defaultSimulatorTimeout = 10 * time.Second

// Simulator изображает внешний платёжный шлюз: решает исход по номеру карты
// и отправляет webhook. Используется как обработчик задач payment.simulate.
type Simulator struct {
	client     *http.Client
	webhookURL string
	secret     string
	logger     *log.Entry
}

// NewSimulator создаёт Simulator. client == nil заменяется клиентом с таймаутом.
func NewSimulator(client *http.Client, webhookURL, secret string, logger *log.Entry) *Simulator {
	if client == nil {
		client = &http.Client{Timeout: defaultSimulatorTimeout}
	}
	if logger == nil {
		logger = log.New().WithField("component", "payment-simulator")
	}
	return &Simulator{client: client, webhookURL: webhookURL, secret: secret, logger: logger}
}

// WebhookURL возвращает адрес webhook оплаты для базового адреса API.
func WebhookURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/payment/webhook/"
}

// Decide возвращает исход оплаты: чётный номер, не оканчивающийся на 0, проходит.
func Decide(cardNumber string) (domain.PaymentStatus, []string) {
	n, err := strconv.ParseUint(cardNumber, 10, 64)
	if err == nil && n%2 == 0 && n%10 != 0 {
		return domain.PaymentStatusSuccess, nil
	}
	return domain.PaymentStatusFail, []string{"wrong number"}
}

// Notification строит уведомление, которое шлюз отправит для запроса.
func (s *Simulator) Notification(req SimulateRequest) Notification {
	status, errs := Decide(req.CardNumber)
	return Notification{
		Signature: s.secret,
		Status:    status,
		OrderID:   req.OrderID,
		PaymentID: strconv.FormatInt(req.OrderID, 10) + "test_payment_id",
		Errors:    errs,
	}
}

// Publish отправляет webhook. Ответ 4xx не повторяется, 5xx и сетевые ошибки повторяются.
func (s *Simulator) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	var req SimulateRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return outbox.Permanent(fmt.Errorf("decode simulate request: %w", err))
	}

	body, err := json.Marshal(s.Notification(req))
	if err != nil {
		return outbox.Permanent(fmt.Errorf("encode webhook: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return outbox.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent("payment-simulator"))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	entry := s.logger.WithFields(log.Fields{"order_id": req.OrderID, "http_status": resp.StatusCode})
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		entry.Warn("webhook refused payment notification")
		return outbox.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}

	entry.Info("payment notification delivered")
	return nil
}

var _ domain.OutboxPublisher = (*Simulator)(nil)
