package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	ordersvc "github.com/mowistore/storefront-backend/internal/orders"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

func OrdersGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]orderResponse, len(list))
		for i := range list {
			items[i] = newOrderResponse(&list[i])
		}
		responses.WriteSuccess(w, map[string]any{"orders": items})
	}
}

func OrdersUpdateStatus(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), id, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderLineResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Product   *string   `json:"product,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	Total         string              `json:"total"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	Lines         []orderLineResponse `json:"lines,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func newOrderResponse(o *models.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, line := range o.Lines {
		item := orderLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
		}
		if line.Product != nil {
			item.Product = &line.Product.Name
		}
		lines[i] = item
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Total:         o.Total.StringFixed(2),
		Status:        o.Status.String(),
		PaymentMethod: o.PaymentMethod,
		Lines:         lines,
		CreatedAt:     o.CreatedAt,
	}
}
