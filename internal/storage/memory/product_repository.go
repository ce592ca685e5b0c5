package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type productRepositoryInMemory struct {
	st *state
}

func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) GetMany(_ context.Context, ids []int64) ([]domain.Product, error) {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := r.st.products[id]; ok {
			result = append(result, product)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// LockForUpdate возвращает товары по ID; отсутствующий товар: ошибка.
func (r *productRepositoryInMemory) LockForUpdate(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		product, ok := r.st.products[id]
		if !ok {
			return nil, fmt.Errorf("lock product %d: %w", id, domain.ErrProductNotFound)
		}
		result[id] = product
	}
	return result, nil
}

func (r *productRepositoryInMemory) AddStock(_ context.Context, id int64, delta int) error {
	product, ok := r.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Count += delta
	r.st.products[id] = product
	return nil
}

// Create сохраняет товар. Нулевой ID заменяется следующим по счётчику.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	if product.ID == 0 {
		r.st.productSeq++
		product.ID = r.st.productSeq
	} else if product.ID > r.st.productSeq {
		r.st.productSeq = product.ID
	}
	if _, exists := r.st.products[product.ID]; exists {
		return domain.Product{}, fmt.Errorf("product %d already exists", product.ID)
	}

	sales := make([]domain.Sale, 0, len(product.Sales))
	for _, sale := range product.Sales {
		if err := sale.Validate(); err != nil {
			return domain.Product{}, err
		}
		r.st.saleSeq++
		sale.ID = r.st.saleSeq
		sale.ProductID = product.ID
		sales = append(sales, sale)
	}
	product.Sales = sales

	r.st.products[product.ID] = product
	return product, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
