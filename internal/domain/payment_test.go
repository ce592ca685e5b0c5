package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

func TestPaymentValidate(t *testing.T) {
	ok := domain.Payment{OrderID: 1, ExternalID: "1test_payment_id"}
	if errs := ok.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	bad := domain.Payment{}
	if errs := bad.Validate(); len(errs) != 2 {
		t.Fatalf("expected two errors, got %v", errs)
	}
}
