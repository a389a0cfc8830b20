// Package assistant executes planner decisions: it runs the chosen backend,
// shapes the reply and keeps per-session memory.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/kopi/internal/calc"
	"github.com/kalambet/kopi/internal/memory"
	"github.com/kalambet/kopi/internal/metrics"
	"github.com/kalambet/kopi/internal/planner"
	"github.com/kalambet/kopi/internal/storage"
	"github.com/kalambet/kopi/internal/text2sql"
)

// Reply statuses.
const (
	StatusCompleted   = "completed"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)

const genericApology = "Sorry, something went wrong on my side. Please try again."

// InteractionLog records chat turns. *storage.Store satisfies it.
type InteractionLog interface {
	SaveInteraction(ctx context.Context, i storage.Interaction) error
}

// Reply is the answer to one chat turn.
type Reply struct {
	SessionID string           `json:"session_id"`
	Text      string           `json:"reply"`
	Status    string           `json:"status"`
	Decision  planner.Decision `json:"decision"`
}

// Assistant is safe for concurrent use. Turns on the same session run one
// at a time; different sessions proceed in parallel.
type Assistant struct {
	planner    *planner.Planner
	translator *text2sql.Translator
	outlets    OutletStore
	products   ProductSearcher
	sessions   memory.Store
	history    InteractionLog
	metrics    *metrics.Collector
	logger     *slog.Logger
	topK       int
	locks      *sessionLocks
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithProducts enables product search.
func WithProducts(s ProductSearcher) Option {
	return func(a *Assistant) { a.products = s }
}

// WithInteractionLog records every turn.
func WithInteractionLog(l InteractionLog) Option {
	return func(a *Assistant) { a.history = l }
}

// WithMetrics reports decisions and failures to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Assistant) { a.metrics = c }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithTopK sets the default number of product results.
func WithTopK(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.topK = n
		}
	}
}

// New creates an Assistant. sessions holds conversation memory between
// turns; outlets serves the outlet directory.
func New(p *planner.Planner, t *text2sql.Translator, outlets OutletStore, sessions memory.Store, opts ...Option) *Assistant {
	a := &Assistant{
		planner:    p,
		translator: t,
		outlets:    outlets,
		sessions:   sessions,
		logger:     slog.Default(),
		topK:       3,
		locks:      newSessionLocks(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Respond runs one turn of the conversation identified by sessionID. An
// empty sessionID starts a new session. Backend failures become reply text;
// the returned error is reserved for session-store failures.
func (a *Assistant) Respond(ctx context.Context, sessionID, text string) (Reply, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	start := time.Now()

	unlock := a.locks.lock(sessionID)
	defer unlock()

	conv, err := memory.LoadOrNew(ctx, a.sessions, sessionID)
	if err != nil {
		a.metrics.ObserveBackendError("sessions")
		return Reply{SessionID: sessionID}, fmt.Errorf("%w: loading session %s: %v", ErrUnavailable, sessionID, err)
	}

	conv.Append(memory.RoleUser, text)
	d := a.planner.Decide(text, conv)
	a.logger.Debug("decision", "session", sessionID, "action", d.Action, "rule", d.Rule,
		"confidence", d.Confidence, "rationale", d.Rationale)

	reply, status := a.execute(ctx, d)
	conv.Append(memory.RoleAssistant, reply)

	if err := a.sessions.Save(ctx, conv); err != nil {
		a.metrics.ObserveBackendError("sessions")
		return Reply{SessionID: sessionID}, fmt.Errorf("%w: saving session %s: %v", ErrUnavailable, sessionID, err)
	}

	a.metrics.ObserveDecision(string(d.Action), d.Rule)
	a.metrics.ObserveTurn(string(d.Action), time.Since(start))
	a.record(ctx, sessionID, text, d, reply, status)

	return Reply{SessionID: sessionID, Text: reply, Status: status, Decision: d}, nil
}

// execute turns a decision into reply text. A panic becomes the generic
// apology.
func (a *Assistant) execute(ctx context.Context, d planner.Decision) (reply, status string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic while executing decision", "action", d.Action, "rule", d.Rule, "panic", r)
			reply, status = genericApology, StatusError
		}
	}()

	switch d.Action {
	case planner.ActionCalculate:
		return a.calculateReply(d.Param(planner.ParamExpression)), StatusCompleted

	case planner.ActionOutletQuery:
		res, err := a.QueryOutlets(ctx, d.Param(planner.ParamQuery))
		if err != nil {
			return a.failureReply("outlet directory", err)
		}
		return res.Summary, StatusCompleted

	case planner.ActionProductSearch:
		res, err := a.SearchProducts(ctx, d.Param(planner.ParamQuery), 0)
		if errors.Is(err, ErrEmptyInput) {
			return "What kind of drinkware are you looking for? For example: a tumbler, a mug or a cold brew bottle.", StatusCompleted
		}
		if err != nil {
			return a.failureReply("product search", err)
		}
		return res.Summary, StatusCompleted

	case planner.ActionEnd:
		return d.Param(planner.ParamFarewell), StatusCompleted

	default:
		return d.Param(planner.ParamPrompt), StatusCompleted
	}
}

func (a *Assistant) calculateReply(expr string) string {
	v, err := a.Calculate(expr)
	switch {
	case err == nil:
		return fmt.Sprintf("The result of %s is %s", expr, v)
	case errors.Is(err, calc.ErrDivisionByZero):
		return fmt.Sprintf("Sorry, I can't evaluate %s because it divides by zero. Try a non-zero divisor, for example: %s", expr, suggestDivisor(expr))
	default:
		a.logger.Debug("expression rejected", "expression", expr, "error", err)
		return fmt.Sprintf("Sorry, I couldn't evaluate %q. Use numbers with + - * / %% ** and parentheses, for example: 12 * (3 + 4)", expr)
	}
}

// suggestDivisor rewrites the first division or modulo by a literal zero
// into a division by one.
func suggestDivisor(expr string) string {
	for _, op := range []string{"/ 0", "/0", "% 0", "%0"} {
		if i := strings.Index(expr, op); i >= 0 {
			return expr[:i] + op[:len(op)-1] + "1" + expr[i+len(op):]
		}
	}
	return "10 / 2"
}

func (a *Assistant) failureReply(backend string, err error) (string, string) {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Sprintf("Sorry, the %s is temporarily unavailable, so I can't answer that right now. Please try again in a moment.", backend), StatusUnavailable
	}
	a.logger.Error("unexpected backend error", "backend", backend, "error", err)
	return genericApology, StatusError
}

func (a *Assistant) record(ctx context.Context, sessionID, text string, d planner.Decision, reply, status string) {
	if a.history == nil {
		return
	}
	err := a.history.SaveInteraction(ctx, storage.Interaction{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		CreatedAt:  time.Now().UTC(),
		UserText:   text,
		Action:     string(d.Action),
		Rule:       d.Rule,
		Confidence: d.Confidence,
		Rationale:  d.Rationale,
		Reply:      reply,
		Status:     status,
	})
	if err != nil {
		a.logger.Warn("failed to record interaction", "session", sessionID, "error", err)
	}
}
