package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	ordersvc "github.com/mowistore/storefront-backend/internal/orders"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

// Checkout converts the user's cart into a pending order.
func Checkout(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Checkout(r.Context(), ordersvc.CheckoutInput{
			UserID:        payload.UserID,
			PaymentMethod: payload.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type checkoutRequest struct {
	UserID        uuid.UUID `json:"user_id" validate:"required"`
	PaymentMethod string    `json:"payment_method"`
}
