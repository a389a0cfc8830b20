package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/kopi/internal/ingest"
	"github.com/kalambet/kopi/internal/storage"
)

type ProductInput struct {
	ID          string `json:"id,omitempty" validate:"omitempty,max=128"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Price       string `json:"price" validate:"max=64"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
}

type ImportProductsRequest struct {
	Products []ProductInput `json:"products" validate:"required,min=1,max=500,dive"`
}

func handleImportProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportProductsRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", err)
			return
		}

		products := make([]storage.Product, len(req.Products))
		for i, in := range req.Products {
			products[i] = storage.Product{ID: in.ID, Name: in.Name, Description: in.Description, Price: in.Price, URL: in.URL}
		}
		ids, err := ingest.ImportProducts(r.Context(), deps.Store, products)
		if err != nil {
			slog.Error("product import failed", "stored", len(ids), "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import products after %d of %d", len(ids), len(req.Products))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "status": "queued"})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		var (
			interactions []storage.Interaction
			err          error
		)
		if sid := r.URL.Query().Get("session_id"); sid != "" {
			interactions, err = deps.Store.SessionInteractions(r.Context(), sid, limit)
		} else {
			interactions, err = deps.Store.RecentInteractions(r.Context(), limit, offset)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, interactions)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interaction, err := deps.Store.GetInteraction(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, interaction)
	}
}
