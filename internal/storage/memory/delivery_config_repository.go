package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type deliveryConfigRepositoryInMemory struct {
	st *state
}

func (r *deliveryConfigRepositoryInMemory) Get(context.Context) (domain.DeliveryConfig, error) {
	if r.st.config == nil {
		return domain.DeliveryConfig{}, domain.ErrConfigNotFound
	}
	return *r.st.config, nil
}

func (r *deliveryConfigRepositoryInMemory) Save(_ context.Context, cfg domain.DeliveryConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	r.st.config = &cfg
	return nil
}

var _ domain.DeliveryConfigRepository = (*deliveryConfigRepositoryInMemory)(nil)
