package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

const productColumns = `id, category_id, title, short_description, price, count, is_active, release_date`

type productRepository struct {
	q queryer
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	products, err := r.GetMany(ctx, []int64{id})
	if err != nil {
		return domain.Product{}, err
	}
	if len(products) == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return products[0], nil
}

// GetMany загружает товары и данные карточки: акции, изображения, теги, отзывы.
func (r *productRepository) GetMany(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	products, err := r.selectProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return products, nil
	}

	index := make(map[int64]*domain.Product, len(products))
	found := make([]int64, 0, len(products))
	for i := range products {
		index[products[i].ID] = &products[i]
		found = append(found, products[i].ID)
	}

	if err := r.loadSales(ctx, found, index); err != nil {
		return nil, err
	}
	if err := r.loadImages(ctx, found, index); err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, found, index); err != nil {
		return nil, err
	}
	if err := r.loadReviews(ctx, found, index); err != nil {
		return nil, err
	}

	return products, nil
}

// LockForUpdate блокирует строки товаров в порядке возрастания ID.
func (r *productRepository) LockForUpdate(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	products, err := r.selectProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]domain.Product, len(products))
	for _, product := range products {
		result[product.ID] = product
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, fmt.Errorf("lock product %d: %w", id, domain.ErrProductNotFound)
		}
	}
	return result, nil
}

// AddStock меняет остаток; уход в минус отсекается CHECK-ограничением.
func (r *productRepository) AddStock(ctx context.Context, id int64, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `UPDATE products SET count = count + $2 WHERE id = $1`, id, delta)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return &domain.FulfillmentError{ProductID: id, Reason: domain.ErrInsufficientStock}
		}
		return fmt.Errorf("update product stock: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var releaseDate sql.NullTime
	if !product.ReleaseDate.IsZero() {
		releaseDate = sql.NullTime{Time: product.ReleaseDate, Valid: true}
	}

	var err error
	if product.ID == 0 {
		err = r.q.QueryRowContext(ctx, `
			INSERT INTO products (category_id, title, short_description, price, count, is_active, release_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, product.CategoryID, product.Title, product.ShortDescription, product.Price,
			product.Count, product.IsActive, releaseDate,
		).Scan(&product.ID)
	} else {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO products (id, category_id, title, short_description, price, count, is_active, release_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, product.ID, product.CategoryID, product.Title, product.ShortDescription, product.Price,
			product.Count, product.IsActive, releaseDate,
		)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	for i := range product.Sales {
		sale := &product.Sales[i]
		if err := sale.Validate(); err != nil {
			return domain.Product{}, err
		}
		sale.ProductID = product.ID
		if err := r.q.QueryRowContext(ctx, `
			INSERT INTO sales (product_id, discount, date_from, date_to)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, product.ID, sale.Discount, sale.DateFrom, sale.DateTo).Scan(&sale.ID); err != nil {
			return domain.Product{}, fmt.Errorf("insert sale: %w", err)
		}
	}

	for _, image := range product.Images {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO product_images (product_id, src, alt) VALUES ($1,$2,$3)
		`, product.ID, image.Src, image.Alt); err != nil {
			return domain.Product{}, fmt.Errorf("insert product image: %w", err)
		}
	}

	for i := range product.Tags {
		tag := &product.Tags[i]
		if err := r.q.QueryRowContext(ctx, `
			INSERT INTO tags (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, tag.Name).Scan(&tag.ID); err != nil {
			return domain.Product{}, fmt.Errorf("upsert tag: %w", err)
		}
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO product_tags (product_id, tag_id) VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, product.ID, tag.ID); err != nil {
			return domain.Product{}, fmt.Errorf("link product tag: %w", err)
		}
	}

	return product, nil
}

func (r *productRepository) selectProducts(ctx context.Context, query string, ids []int64) ([]domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, len(ids))
	for rows.Next() {
		var (
			product     domain.Product
			releaseDate sql.NullTime
		)
		if err := rows.Scan(
			&product.ID, &product.CategoryID, &product.Title, &product.ShortDescription,
			&product.Price, &product.Count, &product.IsActive, &releaseDate,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if releaseDate.Valid {
			product.ReleaseDate = releaseDate.Time.UTC()
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *productRepository) loadSales(ctx context.Context, ids []int64, index map[int64]*domain.Product) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, discount, date_from, date_to
		FROM sales
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.Discount, &sale.DateFrom, &sale.DateTo); err != nil {
			return fmt.Errorf("scan sale: %w", err)
		}
		sale.DateFrom = sale.DateFrom.UTC()
		sale.DateTo = sale.DateTo.UTC()
		product := index[sale.ProductID]
		product.Sales = append(product.Sales, sale)
	}
	return rows.Err()
}

func (r *productRepository) loadImages(ctx context.Context, ids []int64, index map[int64]*domain.Product) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, src, alt
		FROM product_images
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("select product images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			image     domain.ProductImage
		)
		if err := rows.Scan(&productID, &image.Src, &image.Alt); err != nil {
			return fmt.Errorf("scan product image: %w", err)
		}
		product := index[productID]
		product.Images = append(product.Images, image)
	}
	return rows.Err()
}

func (r *productRepository) loadTags(ctx context.Context, ids []int64, index map[int64]*domain.Product) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT pt.product_id, t.id, t.name
		FROM product_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.product_id = ANY($1)
		ORDER BY pt.product_id, t.id
	`, ids)
	if err != nil {
		return fmt.Errorf("select product tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			tag       domain.Tag
		)
		if err := rows.Scan(&productID, &tag.ID, &tag.Name); err != nil {
			return fmt.Errorf("scan product tag: %w", err)
		}
		product := index[productID]
		product.Tags = append(product.Tags, tag)
	}
	return rows.Err()
}

// loadReviews заполняет число отзывов и средний рейтинг, округлённый до сотых.
func (r *productRepository) loadReviews(ctx context.Context, ids []int64, index map[int64]*domain.Product) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, COUNT(*), ROUND(AVG(rate)::numeric, 2)
		FROM reviews
		WHERE product_id = ANY($1)
		GROUP BY product_id
	`, ids)
	if err != nil {
		return fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var count int
		var rating decimal.NullDecimal
		if err := rows.Scan(&productID, &count, &rating); err != nil {
			return fmt.Errorf("scan reviews: %w", err)
		}
		product := index[productID]
		product.ReviewsCount = count
		product.Rating = rating
	}
	return rows.Err()
}

var _ domain.ProductRepository = (*productRepository)(nil)
