package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	couponsvc "github.com/mowistore/storefront-backend/internal/coupons"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

func CouponsCreate(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var payload createCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCouponResponse(coupon))
	}
}

func CouponsList(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]couponResponse, len(list))
		for i := range list {
			items[i] = newCouponResponse(&list[i])
		}
		responses.WriteSuccess(w, map[string]any{"coupons": items})
	}
}

func CouponsDeactivate(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "couponId"), "couponId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coupon, err := svc.Deactivate(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCouponResponse(coupon))
	}
}

// CouponsValidate quotes the discount without consuming a use.
func CouponsValidate(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var payload validateCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		quote, err := svc.Validate(r.Context(), payload.Code, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQuoteResponse(quote))
	}
}

func CouponsRedeem(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var payload redeemCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		quote, err := svc.Redeem(r.Context(), payload.Code, payload.UserID, payload.OrderID, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQuoteResponse(quote))
	}
}

type createCouponRequest struct {
	Code          string     `json:"code" validate:"required"`
	Description   *string    `json:"description"`
	DiscountType  string     `json:"discount_type" validate:"required"`
	DiscountValue string     `json:"discount_value" validate:"required"`
	MinimumAmount string     `json:"minimum_amount"`
	MaxUses       int        `json:"max_uses" validate:"min=0"`
	StartsAt      *time.Time `json:"starts_at"`
	EndsAt        *time.Time `json:"ends_at"`
}

func (p createCouponRequest) toInput() (couponsvc.CreateInput, error) {
	discountType, err := enums.ParseDiscountType(p.DiscountType)
	if err != nil {
		return couponsvc.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount type")
	}
	value, err := decimal.NewFromString(p.DiscountValue)
	if err != nil {
		return couponsvc.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount value")
	}
	minimum := decimal.Zero
	if p.MinimumAmount != "" {
		minimum, err = decimal.NewFromString(p.MinimumAmount)
		if err != nil {
			return couponsvc.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid minimum amount")
		}
	}
	return couponsvc.CreateInput{
		Code:          p.Code,
		Description:   p.Description,
		DiscountType:  discountType,
		DiscountValue: value,
		MinimumAmount: minimum,
		MaxUses:       p.MaxUses,
		StartsAt:      p.StartsAt,
		EndsAt:        p.EndsAt,
	}, nil
}

type validateCouponRequest struct {
	Code   string `json:"code" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

type redeemCouponRequest struct {
	Code    string     `json:"code" validate:"required"`
	UserID  uuid.UUID  `json:"user_id" validate:"required"`
	OrderID *uuid.UUID `json:"order_id"`
	Amount  string     `json:"amount" validate:"required"`
}

type couponResponse struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	Description   *string    `json:"description,omitempty"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue string     `json:"discount_value"`
	MinimumAmount string     `json:"minimum_amount"`
	MaxUses       int        `json:"max_uses"`
	UsedCount     int        `json:"used_count"`
	IsActive      bool       `json:"is_active"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
}

func newCouponResponse(c *models.Coupon) couponResponse {
	return couponResponse{
		ID:            c.ID,
		Code:          c.Code,
		Description:   c.Description,
		DiscountType:  c.DiscountType.String(),
		DiscountValue: c.DiscountValue.StringFixed(2),
		MinimumAmount: c.MinimumAmount.StringFixed(2),
		MaxUses:       c.MaxUses,
		UsedCount:     c.UsedCount,
		IsActive:      c.IsActive,
		StartsAt:      c.StartsAt,
		EndsAt:        c.EndsAt,
	}
}

type quoteResponse struct {
	Code     string `json:"code"`
	Amount   string `json:"amount"`
	Discount string `json:"discount"`
	Payable  string `json:"payable"`
}

func newQuoteResponse(q *couponsvc.Quote) quoteResponse {
	return quoteResponse{
		Code:     q.Coupon.Code,
		Amount:   q.Amount.StringFixed(2),
		Discount: q.Discount.StringFixed(2),
		Payable:  q.Payable.StringFixed(2),
	}
}
