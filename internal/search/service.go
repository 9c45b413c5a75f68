package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/config"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

const (
	generateContentURL = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

	// catalogLimit caps how much of the catalog is sent to the model.
	catalogLimit = 200

	noResultsMarker = "no_results"
)

// Result is the outcome of an AI-assisted catalog search.
type Result struct {
	Query     string
	Products  []models.Product
	Reasoning string
	Message   string
}

// Service answers natural-language catalog queries via the Gemini API.
type Service interface {
	Search(ctx context.Context, query string) (*Result, error)
}

type service struct {
	cfg     config.GeminiConfig
	catalog products.Repository
	client  *http.Client
	logg    *logger.Logger
}

// NewService builds an AI search service with the required dependencies.
func NewService(cfg config.GeminiConfig, catalog products.Repository, logg *logger.Logger) (Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		cfg:     cfg,
		catalog: catalog,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logg:    logg,
	}, nil
}

// Search asks the model which catalog entries match the query. Upstream
// failures degrade to an empty result with a message instead of an error.
func (s *service) Search(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search query required")
	}

	catalog, err := s.catalog.ListActive(ctx, nil, catalogLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog")
	}
	if len(catalog) == 0 {
		return &Result{Query: query, Products: []models.Product{}, Message: "catalog is empty"}, nil
	}

	answer, err := s.generate(ctx, buildPrompt(query, formatCatalog(catalog)))
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("ai search degraded: %v", err))
		return &Result{Query: query, Products: []models.Product{}, Message: "search assistant unavailable"}, nil
	}

	return &Result{
		Query:     query,
		Products:  matchProducts(answer, catalog),
		Reasoning: answer,
		Message:   "search completed",
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (s *service) generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf(generateContentURL, s.cfg.Model) + "?key=" + s.cfg.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

func buildPrompt(query, catalog string) string {
	return fmt.Sprintf(
		"You are an ecommerce assistant. The user is searching for: %q\n\nProducts:\n%s\nReturn ONLY the matching ids, comma separated, or %q.",
		query, catalog, noResultsMarker)
}

func formatCatalog(catalog []models.Product) string {
	var sb strings.Builder
	for _, p := range catalog {
		category := "n/a"
		if p.Category != nil {
			category = p.Category.Name
		}
		fmt.Fprintf(&sb, "ID:%s | %s | $%s | %s\n", p.ID, p.Name, p.Price.StringFixed(2), category)
	}
	return sb.String()
}

func matchProducts(answer string, catalog []models.Product) []models.Product {
	results := []models.Product{}
	if answer == "" || strings.Contains(answer, noResultsMarker) {
		return results
	}

	byID := make(map[uuid.UUID]models.Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	seen := map[uuid.UUID]bool{}
	for _, token := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t'
	}) {
		id, err := uuid.Parse(strings.TrimSpace(token))
		if err != nil {
			continue
		}
		if product, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			results = append(results, product)
		}
	}
	return results
}
