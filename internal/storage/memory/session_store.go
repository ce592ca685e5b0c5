package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

// SessionCartStore хранит корзины анонимных сессий в памяти процесса.
type SessionCartStore struct {
	mu    sync.RWMutex
	carts map[string]map[string]int
}

// NewSessionCartStore создаёт пустое хранилище сессионных корзин.
func NewSessionCartStore() *SessionCartStore {
	return &SessionCartStore{carts: make(map[string]map[string]int)}
}

// Load возвращает копию корзины; для неизвестной сессии: пустую карту.
func (s *SessionCartStore) Load(_ context.Context, sessionID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart := maps.Clone(s.carts[sessionID])
	if cart == nil {
		cart = make(map[string]int)
	}
	return cart, nil
}

func (s *SessionCartStore) Save(_ context.Context, sessionID string, cart map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cart) == 0 {
		delete(s.carts, sessionID)
		return nil
	}
	s.carts[sessionID] = maps.Clone(cart)
	return nil
}

func (s *SessionCartStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, sessionID)
	return nil
}

var _ domain.SessionCartStore = (*SessionCartStore)(nil)
