package controllers

import (
	"net/http"

	"github.com/mowistore/storefront-backend/api/responses"
	"github.com/mowistore/storefront-backend/api/validators"
	searchsvc "github.com/mowistore/storefront-backend/internal/search"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

// SearchAI answers a natural-language catalog query through the model.
func SearchAI(svc searchsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "search service unavailable"))
			return
		}

		var payload aiSearchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Search(r.Context(), payload.Query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, aiSearchResponse{
			Query:    result.Query,
			Products: newProductListResponse(result.Products, "").Products,
			Message:  result.Message,
			Total:    len(result.Products),
		})
	}
}

type aiSearchRequest struct {
	Query string `json:"query" validate:"required"`
}

type aiSearchResponse struct {
	Query    string            `json:"query"`
	Products []productResponse `json:"products"`
	Message  string            `json:"message"`
	Total    int               `json:"total"`
}
