package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	reviewsvc "github.com/mowistore/storefront-backend/internal/reviews"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

func ReviewsCreate(svc reviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reviews service unavailable"))
			return
		}

		var payload createReviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Create(r.Context(), reviewsvc.CreateInput{
			UserID:    payload.UserID,
			ProductID: payload.ProductID,
			Rating:    payload.Rating,
			Comment:   payload.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReviewResponse(review))
	}
}

// ReviewsListByProduct returns a product's reviews plus the rating summary.
func ReviewsListByProduct(svc reviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reviews service unavailable"))
			return
		}

		productID, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summarize(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]reviewResponse, len(list))
		for i := range list {
			items[i] = newReviewResponse(&list[i])
		}
		responses.WriteSuccess(w, map[string]any{
			"reviews":        items,
			"average_rating": summary.AverageRating,
			"review_count":   summary.ReviewCount,
		})
	}
}

func ReviewsDelete(svc reviewsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reviews service unavailable"))
			return
		}

		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewID, err := validators.ParsePathUUID(chi.URLParam(r, "reviewId"), "reviewId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), userID, reviewID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

type createReviewRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Comment   *string   `json:"comment"`
}

type reviewResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newReviewResponse(rv *models.Review) reviewResponse {
	return reviewResponse{
		ID:        rv.ID,
		UserID:    rv.UserID,
		ProductID: rv.ProductID,
		Rating:    rv.Rating,
		Comment:   rv.Comment,
		CreatedAt: rv.CreatedAt,
	}
}
