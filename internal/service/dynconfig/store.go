// Package dynconfig кэширует редактируемую конфигурацию магазина.
package dynconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

// DefaultDeliveryConfig возвращает тарифы по умолчанию: 5 за обычную доставку,
// 10 наценка за экспресс, бесплатно от 20.
func DefaultDeliveryConfig() domain.DeliveryConfig {
	return domain.DeliveryConfig{
		OrdinaryDeliveryCost:       decimal.NewFromInt(5),
		ExpressDeliveryExtraCharge: decimal.NewFromInt(10),
		FreeDeliveryBoundary:       decimal.NewFromInt(20),
	}
}

// Store читает конфигурацию из хранилища и держит копию в памяти.
// Кэш сбрасывается при Update и, если задан ttl, по истечении времени.
type Store struct {
	store    domain.Store
	defaults domain.DeliveryConfig
	ttl      time.Duration
	now      func() time.Time
	logger   *log.Entry

	mu       sync.RWMutex
	cached   *domain.DeliveryConfig
	loadedAt time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithTTL ограничивает время жизни кэша; 0: кэш живёт до Invalidate.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт кэширующее хранилище. defaults записываются в базу, если строки ещё нет.
func NewStore(store domain.Store, defaults domain.DeliveryConfig, logger *log.Entry, opts ...Option) *Store {
	if logger == nil {
		logger = log.New().WithField("component", "dynconfig")
	}
	s := &Store{
		store:    store,
		defaults: defaults,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает конфигурацию из кэша или загружает её.
func (s *Store) Get(ctx context.Context) (domain.DeliveryConfig, error) {
	s.mu.RLock()
	if s.cached != nil && s.fresh() {
		cfg := *s.cached
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.fresh() {
		return *s.cached, nil
	}

	cfg, err := s.load(ctx)
	if err != nil {
		return domain.DeliveryConfig{}, err
	}
	s.cached = &cfg
	s.loadedAt = s.now()
	return cfg, nil
}

// Update валидирует и сохраняет конфигурацию, затем сбрасывает кэш.
func (s *Store) Update(ctx context.Context, cfg domain.DeliveryConfig) (domain.DeliveryConfig, error) {
	if err := cfg.Validate(); err != nil {
		return domain.DeliveryConfig{}, err
	}
	cfg.UpdatedAt = s.now().UTC()

	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.DeliveryConfig().Save(ctx, cfg)
	})
	if err != nil {
		return domain.DeliveryConfig{}, fmt.Errorf("save delivery config: %w", err)
	}

	s.Invalidate()
	s.logger.WithFields(log.Fields{
		"ordinary_delivery_cost":        cfg.OrdinaryDeliveryCost.String(),
		"express_delivery_extra_charge": cfg.ExpressDeliveryExtraCharge.String(),
		"boundary_of_free_delivery":     cfg.FreeDeliveryBoundary.String(),
	}).Info("delivery config updated")
	return cfg, nil
}

// Invalidate сбрасывает кэш.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) fresh() bool {
	return s.ttl <= 0 || s.now().Sub(s.loadedAt) < s.ttl
}

// load читает строку конфигурации и засевает значения по умолчанию, если её нет.
func (s *Store) load(ctx context.Context) (domain.DeliveryConfig, error) {
	var cfg domain.DeliveryConfig
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		cfg, err = tx.DeliveryConfig().Get(ctx)
		if !errors.Is(err, domain.ErrConfigNotFound) {
			return err
		}

		cfg = s.defaults
		cfg.UpdatedAt = s.now().UTC()
		s.logger.Info("delivery config is missing, seeding defaults")
		return tx.DeliveryConfig().Save(ctx, cfg)
	})
	if err != nil {
		return domain.DeliveryConfig{}, fmt.Errorf("load delivery config: %w", err)
	}
	return cfg, nil
}

var _ domain.DeliveryConfigSource = (*Store)(nil)
