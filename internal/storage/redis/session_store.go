// Package redis хранит корзины анонимных пользователей в Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

const (
	defaultKeyPrefix  = "shop:session:cart:"
	defaultSessionTTL = 14 * 24 * time.Hour
	pingTimeout       = 5 * time.Second
)

// SessionCartStore хранит корзину сессии как hash product_id -> count с TTL.
type SessionCartStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// Option настраивает SessionCartStore.
type Option func(*SessionCartStore)

// WithTTL задаёт время жизни корзины; каждое сохранение продлевает его.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionCartStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(s *SessionCartStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// Open подключается к Redis по URL вида redis://host:port/db и проверяет доступность.
func Open(ctx context.Context, redisURL string, opts ...Option) (*SessionCartStore, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewSessionCartStore(client, opts...), nil
}

// NewSessionCartStore оборачивает готовый клиент.
func NewSessionCartStore(client *goredis.Client, opts ...Option) *SessionCartStore {
	s := &SessionCartStore{client: client, prefix: defaultKeyPrefix, ttl: defaultSessionTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionCartStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Load возвращает корзину сессии; отсутствующая корзина: пустая карта.
func (s *SessionCartStore) Load(ctx context.Context, sessionID string) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session cart: %w", err)
	}

	cart := make(map[string]int, len(raw))
	for productID, value := range raw {
		count, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("session cart %s: bad count for product %s: %w", sessionID, productID, err)
		}
		cart[productID] = count
	}
	return cart, nil
}

// Save атомарно заменяет корзину сессии. Пустая корзина удаляет ключ.
func (s *SessionCartStore) Save(ctx context.Context, sessionID string, cart map[string]int) error {
	key := s.key(sessionID)

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(cart) == 0 {
			return nil
		}
		values := make(map[string]any, len(cart))
		for productID, count := range cart {
			values[productID] = count
		}
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session cart: %w", err)
	}
	return nil
}

func (s *SessionCartStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session cart: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *SessionCartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (s *SessionCartStore) Close() error {
	return s.client.Close()
}

var _ domain.SessionCartStore = (*SessionCartStore)(nil)
