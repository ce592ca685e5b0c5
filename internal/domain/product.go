package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — товар каталога. Остаток (Count) меняет только складской учёт.
type Product struct {
	ID               int64
	CategoryID       int64
	Title            string
	ShortDescription string
	Price            decimal.Decimal
	Count            int
	IsActive         bool
	ReleaseDate      time.Time
	Sales            []Sale

	// Данные карточки для отображения корзины.
	Images       []ProductImage
	Tags         []Tag
	ReviewsCount int
	Rating       decimal.NullDecimal
}

// Sale — скидочная акция на товар, действует в днях [DateFrom, DateTo] включительно.
type Sale struct {
	ID        int64
	ProductID int64
	Discount  int
	DateFrom  time.Time
	DateTo    time.Time
}

// Validate проверяет диапазон скидки и порядок дат.
func (s Sale) Validate() error {
	if s.Discount < 0 || s.Discount > 100 {
		return ErrSaleDiscountInvalid
	}
	if s.DateTo.Before(s.DateFrom) {
		return ErrSaleDatesInvalid
	}
	return nil
}

// ProductImage — изображение товара.
type ProductImage struct {
	Src string
	Alt string
}

// Tag — метка товара.
type Tag struct {
	ID   int64
	Name string
}
