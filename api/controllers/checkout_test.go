package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ordersvc "github.com/mowistore/storefront-backend/internal/orders"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

type stubOrdersService struct {
	order *models.Order
	err   error
	input ordersvc.CheckoutInput
}

func (s *stubOrdersService) Checkout(ctx context.Context, input ordersvc.CheckoutInput) (*models.Order, error) {
	s.input = input
	return s.order, s.err
}

func (s *stubOrdersService) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrdersService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return nil, s.err
}

func (s *stubOrdersService) Lines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	return nil, s.err
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	return s.order, s.err
}

func controllerTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Total:         decimal.RequireFromString("25.00"),
		Status:        enums.OrderStatusPending,
		PaymentMethod: "stripe",
	}
	svc := &stubOrdersService{order: order}
	handler := Checkout(svc, controllerTestLogger())

	body := `{"user_id":"` + userID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.input.UserID != userID {
		t.Fatalf("expected user forwarded got %s", svc.input.UserID)
	}

	var envelope struct {
		Data struct {
			ID     string `json:"id"`
			Total  string `json:"total"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != order.ID.String() {
		t.Fatalf("expected order id %s got %s", order.ID, envelope.Data.ID)
	}
	if envelope.Data.Total != "25.00" {
		t.Fatalf("expected total 25.00 got %s", envelope.Data.Total)
	}
	if envelope.Data.Status != "pending" {
		t.Fatalf("expected pending got %s", envelope.Data.Status)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")}
	handler := Checkout(svc, controllerTestLogger())

	body := `{"user_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != "EMPTY_CART" {
		t.Fatalf("expected EMPTY_CART got %s", envelope.Error.Code)
	}
	if envelope.Error.Message != "cart is empty" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
}

func TestCheckoutMissingUser(t *testing.T) {
	t.Parallel()

	handler := Checkout(&stubOrdersService{}, controllerTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
