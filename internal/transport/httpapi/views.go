package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/cart"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
	"github.com/vladislavdragonenkov/bgshop/internal/service/pricing"
)

type imageView struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type tagView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// productView: карточка товара в корзине и в заказе.
type productView struct {
	ID           int64       `json:"id"`
	Category     int64       `json:"category"`
	Price        string      `json:"price"`
	Count        int         `json:"count"`
	Date         string      `json:"date"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	FreeDelivery bool        `json:"freeDelivery"`
	Images       []imageView `json:"images"`
	Tags         []tagView   `json:"tags"`
	Reviews      int         `json:"reviews"`
	Rating       *string     `json:"rating"`
}

type orderView struct {
	ID           int64         `json:"id"`
	CreatedAt    string        `json:"createdAt"`
	DeliveryType string        `json:"deliveryType"`
	DeliveryCost string        `json:"deliveryCost"`
	TotalCost    string        `json:"totalCost"`
	Status       string        `json:"status"`
	Paid         bool          `json:"paid"`
	PaymentType  string        `json:"paymentType"`
	City         string        `json:"city"`
	Address      string        `json:"address"`
	Comment      string        `json:"comment"`
	Products     []productView `json:"products"`
}

func newProductView(p domain.Product, price decimal.Decimal, count int, freeDelivery bool) productView {
	v := productView{
		ID:           p.ID,
		Category:     p.CategoryID,
		Price:        price.StringFixed(2),
		Count:        count,
		Date:         p.ReleaseDate.UTC().Format(time.RFC3339),
		Title:        p.Title,
		Description:  p.ShortDescription,
		FreeDelivery: freeDelivery,
		Images:       make([]imageView, 0, len(p.Images)),
		Tags:         make([]tagView, 0, len(p.Tags)),
		Reviews:      p.ReviewsCount,
	}
	for _, img := range p.Images {
		v.Images = append(v.Images, imageView{Src: img.Src, Alt: img.Alt})
	}
	for _, tag := range p.Tags {
		v.Tags = append(v.Tags, tagView{ID: tag.ID, Name: tag.Name})
	}
	if p.Rating.Valid {
		rating := p.Rating.Decimal.StringFixed(2)
		v.Rating = &rating
	}
	return v
}

func newCartView(items []cart.Item) []productView {
	views := make([]productView, 0, len(items))
	for _, item := range items {
		views = append(views, newProductView(item.Product, item.Price, item.Count, item.FreeDelivery))
	}
	return views
}

// newOrderView показывает позиции по цене, зафиксированной в заказе.
func newOrderView(v order.View, cfg domain.DeliveryConfig) orderView {
	out := orderView{
		ID:           v.Order.ID,
		CreatedAt:    v.Order.CreatedAt.UTC().Format(time.RFC3339),
		DeliveryType: string(v.Order.DeliveryType),
		DeliveryCost: v.DeliveryCost.StringFixed(2),
		TotalCost:    v.TotalCost.StringFixed(2),
		Status:       string(v.Order.Status),
		Paid:         v.Order.Paid,
		PaymentType:  string(v.Order.PaymentType),
		City:         v.Order.City,
		Address:      v.Order.Address,
		Comment:      v.Order.Comment,
		Products:     make([]productView, 0, len(v.Items)),
	}
	for _, item := range v.Items {
		p, ok := v.Products[item.ProductID]
		if !ok {
			p = domain.Product{ID: item.ProductID}
		}
		out.Products = append(out.Products, newProductView(p, item.Price, item.Count, pricing.FreeDelivery(cfg, p.Price)))
	}
	return out
}
