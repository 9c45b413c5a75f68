package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	cartsvc "github.com/mowistore/storefront-backend/internal/cart"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

// CartGet loads (or lazily creates) the cart for the requested user.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.GetOrCreate(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.AddLine(r.Context(), payload.UserID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload setCartQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.SetQuantity(r.Context(), payload.UserID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineId"), "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.RemoveLine(r.Context(), userID, lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Clear(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

type addCartItemRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type setCartQuantityRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type cartLineResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Product   *string   `json:"product,omitempty"`
	Quantity  int       `json:"quantity"`
	Subtotal  string    `json:"subtotal"`
}

type cartResponse struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	Lines     []cartLineResponse `json:"lines"`
	Total     string             `json:"total"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func newCartResponse(c *models.Cart) cartResponse {
	lines := make([]cartLineResponse, len(c.Lines))
	for i, line := range c.Lines {
		item := cartLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal.StringFixed(2),
		}
		if line.Product != nil {
			item.Product = &line.Product.Name
		}
		lines[i] = item
	}
	return cartResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Lines:     lines,
		Total:     c.Total().StringFixed(2),
		UpdatedAt: c.UpdatedAt,
	}
}
