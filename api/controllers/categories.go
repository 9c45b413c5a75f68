package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	categorysvc "github.com/mowistore/storefront-backend/internal/categories"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

func CategoriesList(svc categorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "categories service unavailable"))
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]categoryResponse, len(list))
		for i := range list {
			items[i] = newCategoryResponse(&list[i])
		}
		responses.WriteSuccess(w, map[string]any{"categories": items})
	}
}

func CategoriesCreate(svc categorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "categories service unavailable"))
			return
		}

		var payload createCategoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		category, err := svc.Create(r.Context(), payload.Name, payload.Description)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCategoryResponse(category))
	}
}

func CategoriesDelete(svc categorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "categories service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "categoryId"), "categoryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

type createCategoryRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

type categoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newCategoryResponse(c *models.Category) categoryResponse {
	return categoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}
