// Package httpapi реализует HTTP API магазина (корзина, заказы, оплата).
package httpapi

import (
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/cart"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
	"github.com/vladislavdragonenkov/bgshop/internal/service/payment"
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// Handler обслуживает маршруты /api.
type Handler struct {
	carts     *cart.Service
	orders    *order.Manager
	initiator *payment.Initiator
	webhook   *payment.WebhookHandler
	config    domain.DeliveryConfigSource
	logger    *log.Entry
}

// NewHandler создаёт обработчик API.
func NewHandler(
	carts *cart.Service,
	orders *order.Manager,
	initiator *payment.Initiator,
	webhook *payment.WebhookHandler,
	config domain.DeliveryConfigSource,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &Handler{
		carts:     carts,
		orders:    orders,
		initiator: initiator,
		webhook:   webhook,
		config:    config,
		logger:    logger,
	}
}

type basketRequest struct {
	ID    int64 `json:"id"`
	Count int   `json:"count"`
}

type orderItemRequest struct {
	ID    int64 `json:"id"`
	Count int   `json:"count"`
}

type checkoutRequest struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	DeliveryType string `json:"deliveryType"`
	PaymentType  string `json:"paymentType"`
	City         string `json:"city"`
	Address      string `json:"address"`
	Comment      string `json:"comment"`
}

type paymentRequest struct {
	Number string `json:"number"`
}

type orderIDResponse struct {
	OrderID int64 `json:"orderId"`
}

func identity(r *http.Request) cart.Identity {
	return cart.Identity{
		UserID:    UserIDFromContext(r.Context()),
		SessionID: SessionIDFromContext(r.Context()),
	}
}

func (h *Handler) getBasket(w http.ResponseWriter, r *http.Request) {
	h.writeBasket(w, r)
}

func (h *Handler) addToBasket(w http.ResponseWriter, r *http.Request) {
	var req basketRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.Add(r.Context(), identity(r), req.ID, req.Count, false); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBasket(w, r)
}

func (h *Handler) removeFromBasket(w http.ResponseWriter, r *http.Request) {
	var req basketRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.Remove(r.Context(), identity(r), req.ID, req.Count); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeBasket(w, r)
}

func (h *Handler) writeBasket(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Items(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(items))
}

// signIn переносит сессионную корзину в корзину пользователя после входа.
func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := h.carts.Merge(r.Context(), id.UserID, id.SessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.History(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]orderView, 0, len(views))
	for _, v := range views {
		out = append(out, newOrderView(v, cfg))
	}
	writeJSON(w, http.StatusOK, out)
}

// submitOrder создаёт оформляемый заказ из корзины пользователя.
func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req []orderItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	desired := make([]domain.DesiredItem, 0, len(req))
	for _, item := range req {
		desired = append(desired, domain.DesiredItem{ProductID: item.ID, Count: item.Count})
	}

	o, err := h.orders.SubmitCart(r.Context(), UserIDFromContext(r.Context()), desired)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderIDResponse{OrderID: o.ID})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	v, err := h.orders.GetForUser(r.Context(), UserIDFromContext(r.Context()), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(v, cfg))
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.orders.Confirm(r.Context(), orderID, UserIDFromContext(r.Context()), order.Checkout{
		DeliveryType: domain.DeliveryType(req.DeliveryType),
		PaymentType:  domain.PaymentType(req.PaymentType),
		City:         strings.TrimSpace(req.City),
		Address:      strings.TrimSpace(req.Address),
		Comment:      req.Comment,
		Phone:        req.Phone,
		Email:        req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderIDResponse{OrderID: o.ID})
}

func (c checkoutRequest) validate() error {
	ve := &domain.ValidationError{}
	if strings.TrimSpace(c.City) == "" {
		ve.Add("city", "this field is required")
	}
	if strings.TrimSpace(c.Address) == "" {
		ve.Add("address", "this field is required")
	}
	if c.Phone != "" && !phonePattern.MatchString(c.Phone) {
		ve.Add("phone", "phone must be exactly 10 digits")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			ve.Add("email", "enter a valid email address")
		}
	}
	if ve.Empty() {
		return nil
	}
	return ve
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.initiator.Initiate(r.Context(), UserIDFromContext(r.Context()), orderID, req.Number); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var n payment.Notification
	if err := decodeJSON(r, &n); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.webhook.Handle(r.Context(), n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(o.Status)})
}

// orderID разбирает {id} из пути; нечисловой id: 404.
func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.ErrOrderNotFound)
		return 0, false
	}
	return id, true
}
