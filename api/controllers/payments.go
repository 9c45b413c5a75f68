package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	paymentsvc "github.com/mowistore/storefront-backend/internal/payments"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

// PaymentsCreateIntent registers a gateway intent for an order's full total.
func PaymentsCreateIntent(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount := decimal.Zero
		if payload.Amount != "" {
			parsed, parseErr := decimal.NewFromString(payload.Amount)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal string"))
				return
			}
			amount = parsed
		}

		result, err := svc.CreateIntent(r.Context(), payload.OrderID, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intentResponse{
			IntentID:     result.IntentID,
			ClientSecret: result.ClientSecret,
			OrderID:      result.OrderID,
			Amount:       result.Amount.StringFixed(2),
		})
	}
}

// PaymentsConfirm reconciles the gateway's view of an intent into local state.
func PaymentsConfirm(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), payload.IntentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmResponse{
			IntentID: result.IntentID,
			OrderID:  result.OrderID,
			State:    result.State.String(),
			Amount:   result.Amount.StringFixed(2),
		})
	}
}

func PaymentsStatus(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.StatusByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactionResponse{
			IntentID:      txn.GatewayIntentID,
			OrderID:       txn.OrderID,
			Amount:        txn.Amount.StringFixed(2),
			Status:        txn.Status.String(),
			PaymentMethod: txn.PaymentMethod,
			SettledAt:     txn.SettledAt,
			CreatedAt:     txn.CreatedAt,
		})
	}
}

type createIntentRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	// Optional; when present it must match the order total.
	Amount string `json:"amount"`
}

type confirmRequest struct {
	IntentID string `json:"intent_id" validate:"required"`
}

type intentResponse struct {
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	OrderID      uuid.UUID `json:"order_id"`
	Amount       string    `json:"amount"`
}

type confirmResponse struct {
	IntentID string    `json:"intent_id"`
	OrderID  uuid.UUID `json:"order_id"`
	State    string    `json:"state"`
	Amount   string    `json:"amount"`
}

type transactionResponse struct {
	IntentID      string     `json:"intent_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
