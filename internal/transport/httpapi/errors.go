package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusOf сопоставляет ошибку сервиса HTTP-статусу и коду ошибки.
func statusOf(err error) (int, errorResponse) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: "validation_failed", Fields: ve.Fields}
	case errors.Is(err, domain.ErrQuantityInvalid), errors.Is(err, domain.ErrQuantityTooLarge):
		return http.StatusBadRequest, errorResponse{Error: "validation_failed", Fields: map[string]string{"count": err.Error()}}
	case errors.Is(err, domain.ErrUnknownPaymentStatus):
		return http.StatusBadRequest, errorResponse{Error: "unknown_payment_status"}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorResponse{Error: "bad_request"}
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusForbidden, errorResponse{Error: "invalid_signature"}
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrLineItemNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found"}
	case errors.Is(err, domain.ErrCannotFulfill):
		return http.StatusConflict, errorResponse{Error: "cannot_fulfill"}
	case errors.Is(err, domain.ErrAlreadyPaid):
		return http.StatusConflict, errorResponse{Error: "already_paid"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, errorResponse{Error: "invalid_transition"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal_error"}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusOf(err)
	writeJSON(w, status, body)
}

// fail отвечает ошибкой; непредвиденные ошибки пишутся в лог.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request handler failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON читает тело запроса; неизвестные поля игнорируются.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

var errBadRequest = errors.New("malformed request body")
