package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/kopi/internal/calc"
	"github.com/kalambet/kopi/internal/retrieval"
	"github.com/kalambet/kopi/internal/text2sql"
)

var (
	// ErrEmptyInput is returned when a required query or expression is blank.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnavailable marks collaborator failures (storage, vector search,
	// session store). Callers must report it differently from an empty
	// result.
	ErrUnavailable = errors.New("service unavailable")
)

// OutletStore runs gated outlet queries. *storage.Store satisfies it.
type OutletStore interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// ProductSearcher ranks catalogue products. *retrieval.Searcher satisfies it.
type ProductSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.ProductHit, error)
}

// OutletResult is the outcome of one outlet question.
type OutletResult struct {
	Question string         `json:"query"`
	Query    text2sql.Query `json:"translation"`
	Rows     []text2sql.Row `json:"results"`
	Summary  string         `json:"summary"`
	Blocked  bool           `json:"blocked,omitempty"`
}

// ProductResult is the outcome of one product search.
type ProductResult struct {
	Query   string                 `json:"query"`
	Hits    []retrieval.ProductHit `json:"products"`
	Summary string                 `json:"summary"`
}

// Calculate evaluates an arithmetic expression.
func (a *Assistant) Calculate(expr string) (calc.Value, error) {
	if strings.TrimSpace(expr) == "" {
		return calc.Value{}, ErrEmptyInput
	}
	return calc.Evaluate(expr)
}

// QueryOutlets translates question to SQL, passes it through the safety
// gate and runs it. A blocked query yields an empty result, not an error.
// Storage failures return ErrUnavailable.
func (a *Assistant) QueryOutlets(ctx context.Context, question string) (OutletResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return OutletResult{}, ErrEmptyInput
	}

	q := a.translator.Translate(question)
	res := OutletResult{Question: question, Query: q}

	if err := text2sql.Check(q.SQL); err != nil {
		a.logger.Warn("translated query blocked", "pattern", q.Pattern, "sql", q.SQL, "error", err)
		a.metrics.ObserveBlocked()
		res.Blocked = true
		res.Summary = text2sql.Format(nil, question)
		return res, nil
	}

	raw, err := a.outlets.QueryRows(ctx, q.SQL, q.Args...)
	if err != nil {
		a.logger.Warn("outlet query failed", "pattern", q.Pattern, "sql", q.SQL, "error", err)
		a.metrics.ObserveBackendError("outlets")
		return res, fmt.Errorf("%w: outlet lookup: %v", ErrUnavailable, err)
	}

	res.Rows = make([]text2sql.Row, len(raw))
	for i, r := range raw {
		res.Rows[i] = text2sql.Row(r)
	}
	res.Summary = text2sql.Format(res.Rows, question)
	a.logger.Debug("outlet query", "pattern", q.Pattern, "rows", len(res.Rows))
	return res, nil
}

// SearchProducts ranks catalogue products for query. topK <= 0 uses the
// configured default.
func (a *Assistant) SearchProducts(ctx context.Context, query string, topK int) (ProductResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ProductResult{}, ErrEmptyInput
	}
	if topK <= 0 {
		topK = a.topK
	}
	if a.products == nil {
		return ProductResult{Query: query}, fmt.Errorf("%w: product search is not configured", ErrUnavailable)
	}

	hits, err := a.products.Search(ctx, query, topK)
	if err != nil {
		a.logger.Warn("product search failed", "query", query, "error", err)
		a.metrics.ObserveBackendError("products")
		return ProductResult{Query: query}, fmt.Errorf("%w: product search: %v", ErrUnavailable, err)
	}
	return ProductResult{Query: query, Hits: hits, Summary: retrieval.Summarize(query, hits)}, nil
}
