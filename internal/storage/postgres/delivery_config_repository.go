package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type deliveryConfigRepository struct {
	q queryer
}

func (r *deliveryConfigRepository) Get(ctx context.Context) (domain.DeliveryConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cfg domain.DeliveryConfig
	err := r.q.QueryRowContext(ctx, `
		SELECT ordinary_delivery_cost, express_delivery_extra_charge, boundary_of_free_delivery,
		       company_info, legal_address, main_phone, main_email, updated_at
		FROM dynamic_config
		WHERE id = 1
	`).Scan(
		&cfg.OrdinaryDeliveryCost, &cfg.ExpressDeliveryExtraCharge, &cfg.FreeDeliveryBoundary,
		&cfg.CompanyInfo, &cfg.LegalAddress, &cfg.MainPhone, &cfg.MainEmail, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DeliveryConfig{}, domain.ErrConfigNotFound
		}
		return domain.DeliveryConfig{}, fmt.Errorf("select dynamic config: %w", err)
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, nil
}

// Save создаёт или перезаписывает единственную строку конфигурации.
func (r *deliveryConfigRepository) Save(ctx context.Context, cfg domain.DeliveryConfig) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO dynamic_config (
			id, ordinary_delivery_cost, express_delivery_extra_charge, boundary_of_free_delivery,
			company_info, legal_address, main_phone, main_email, updated_at
		) VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			ordinary_delivery_cost = EXCLUDED.ordinary_delivery_cost,
			express_delivery_extra_charge = EXCLUDED.express_delivery_extra_charge,
			boundary_of_free_delivery = EXCLUDED.boundary_of_free_delivery,
			company_info = EXCLUDED.company_info,
			legal_address = EXCLUDED.legal_address,
			main_phone = EXCLUDED.main_phone,
			main_email = EXCLUDED.main_email,
			updated_at = EXCLUDED.updated_at
	`,
		cfg.OrdinaryDeliveryCost, cfg.ExpressDeliveryExtraCharge, cfg.FreeDeliveryBoundary,
		cfg.CompanyInfo, cfg.LegalAddress, cfg.MainPhone, cfg.MainEmail, cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save dynamic config: %w", err)
	}
	return nil
}

var _ domain.DeliveryConfigRepository = (*deliveryConfigRepository)(nil)
