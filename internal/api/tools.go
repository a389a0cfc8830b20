package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/kopi/internal/calc"
	"github.com/kalambet/kopi/internal/retrieval"
	"github.com/kalambet/kopi/internal/text2sql"
)

type calculatorResponse struct {
	Expression string     `json:"expression"`
	Result     calc.Value `json:"result"`
}

func handleCalculator(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expr := strings.TrimSpace(r.URL.Query().Get("expr"))
		if expr == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "expr is required")
			return
		}

		v, err := deps.Assistant.Calculate(expr)
		switch {
		case errors.Is(err, calc.ErrDivisionByZero):
			httpError(w, http.StatusBadRequest, "calculation_error", "Division by zero is not allowed")
			return
		case errors.Is(err, calc.ErrInvalidExpression):
			httpError(w, http.StatusBadRequest, "calculation_error", "Invalid expression: %v", err)
			return
		case err != nil:
			backendError(w, r, "calculator", err)
			return
		}
		slog.Debug("calculated", "expression", expr, "result", v.String())
		writeJSON(w, http.StatusOK, calculatorResponse{Expression: expr, Result: v})
	}
}

type productsResponse struct {
	Query        string                 `json:"query"`
	Products     []retrieval.ProductHit `json:"products"`
	TotalResults int                    `json:"total_results"`
	Summary      string                 `json:"summary"`
}

func handleProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		topK := parseIntParam(r, "top_k", 0, 20)

		res, err := deps.Assistant.SearchProducts(r.Context(), query, topK)
		if err != nil {
			backendError(w, r, "product search", err)
			return
		}
		hits := res.Hits
		if hits == nil {
			hits = []retrieval.ProductHit{}
		}
		writeJSON(w, http.StatusOK, productsResponse{
			Query:        res.Query,
			Products:     hits,
			TotalResults: len(hits),
			Summary:      res.Summary,
		})
	}
}

type outletsResponse struct {
	Query        string         `json:"query"`
	Pattern      string         `json:"pattern"`
	SQL          string         `json:"sql"`
	Params       []any          `json:"params"`
	DisplaySQL   string         `json:"display_sql"`
	Description  string         `json:"description"`
	Results      []text2sql.Row `json:"results"`
	TotalResults int            `json:"total_results"`
	Summary      string         `json:"summary"`
	Blocked      bool           `json:"blocked,omitempty"`
}

func handleOutlets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		res, err := deps.Assistant.QueryOutlets(r.Context(), query)
		if err != nil {
			backendError(w, r, "outlet directory", err)
			return
		}
		rows := res.Rows
		if rows == nil {
			rows = []text2sql.Row{}
		}
		params := res.Query.Args
		if params == nil {
			params = []any{}
		}
		writeJSON(w, http.StatusOK, outletsResponse{
			Query:        res.Question,
			Pattern:      res.Query.Pattern,
			SQL:          res.Query.SQL,
			Params:       params,
			DisplaySQL:   res.Query.Display(),
			Description:  res.Query.Description,
			Results:      rows,
			TotalResults: len(rows),
			Summary:      res.Summary,
			Blocked:      res.Blocked,
		})
	}
}
