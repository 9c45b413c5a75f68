package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	productsvc "github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
	"github.com/mowistore/storefront-backend/pkg/pagination"
)

// ProductsList serves the catalog. A `search` query switches to name search,
// `category_id` filters by category, otherwise the active catalog pages by cursor.
func ProductsList(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products service unavailable"))
			return
		}

		if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
			list, err := svc.Search(r.Context(), search)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, newProductListResponse(list, ""))
			return
		}

		if rawCategory := strings.TrimSpace(r.URL.Query().Get("category_id")); rawCategory != "" {
			categoryID, err := validators.ParseQueryUUID(r, "category_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			list, err := svc.ListByCategory(r.Context(), categoryID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, newProductListResponse(list, ""))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, next, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductListResponse(list, next))
	}
}

func ProductsGet(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductResponse(product))
	}
}

func ProductsCreate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products service unavailable"))
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newProductResponse(product))
	}
}

func ProductsUpdate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProductResponse(product))
	}
}

func ProductsDelete(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
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

type createProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
	CategoryID  *string `json:"category_id"`
	Price       string  `json:"price" validate:"required"`
	Stock       int     `json:"stock" validate:"min=0"`
	ImageURL    *string `json:"image_url"`
}

func (p createProductRequest) toInput() (productsvc.CreateInput, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return productsvc.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	categoryID, err := parseOptionalUUID(p.CategoryID, "category_id")
	if err != nil {
		return productsvc.CreateInput{}, err
	}
	return productsvc.CreateInput{
		Name:        p.Name,
		Description: p.Description,
		CategoryID:  categoryID,
		Price:       price,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
	}, nil
}

type updateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	CategoryID  *string `json:"category_id"`
	Price       *string `json:"price"`
	Stock       *int    `json:"stock"`
	ImageURL    *string `json:"image_url"`
	IsActive    *bool   `json:"is_active"`
}

func (p updateProductRequest) toInput() (productsvc.UpdateInput, error) {
	input := productsvc.UpdateInput{
		Name:        p.Name,
		Description: p.Description,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
		IsActive:    p.IsActive,
	}
	if p.Price != nil {
		price, err := decimal.NewFromString(*p.Price)
		if err != nil {
			return productsvc.UpdateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
		}
		input.Price = &price
	}
	categoryID, err := parseOptionalUUID(p.CategoryID, "category_id")
	if err != nil {
		return productsvc.UpdateInput{}, err
	}
	input.CategoryID = categoryID
	return input, nil
}

func parseOptionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid uuid").WithDetails(map[string]any{"field": field})
	}
	return &id, nil
}

type productResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Price       string     `json:"price"`
	Stock       int        `json:"stock"`
	SoldCount   int        `json:"sold_count"`
	ImageURL    *string    `json:"image_url,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newProductResponse(p *models.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		SoldCount:   p.SoldCount,
		ImageURL:    p.ImageURL,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
	}
	if p.Category != nil {
		resp.Category = &p.Category.Name
	}
	return resp
}

type productListResponse struct {
	Products   []productResponse `json:"products"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newProductListResponse(list []models.Product, next string) productListResponse {
	items := make([]productResponse, len(list))
	for i := range list {
		items[i] = newProductResponse(&list[i])
	}
	return productListResponse{Products: items, NextCursor: next}
}
