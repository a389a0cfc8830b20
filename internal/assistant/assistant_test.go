package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/kopi/internal/calc"
	"github.com/kalambet/kopi/internal/memory"
	"github.com/kalambet/kopi/internal/metrics"
	"github.com/kalambet/kopi/internal/planner"
	"github.com/kalambet/kopi/internal/retrieval"
	"github.com/kalambet/kopi/internal/storage"
	"github.com/kalambet/kopi/internal/text2sql"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeOutlets struct {
	mu      sync.Mutex
	queries []string
	queryFn func(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

func (f *fakeOutlets) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.queryFn != nil {
		return f.queryFn(ctx, query, args...)
	}
	return nil, nil
}

type fakeProducts struct {
	searchFn func(ctx context.Context, query string, topK int) ([]retrieval.ProductHit, error)
}

func (f *fakeProducts) Search(ctx context.Context, query string, topK int) ([]retrieval.ProductHit, error) {
	return f.searchFn(ctx, query, topK)
}

type fakeHistory struct {
	mu    sync.Mutex
	saved []storage.Interaction
}

func (f *fakeHistory) SaveInteraction(_ context.Context, i storage.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, i)
	return nil
}

type failingSessions struct{ err error }

func (f failingSessions) Get(context.Context, string) (*memory.Conversation, error) { return nil, f.err }
func (f failingSessions) Save(context.Context, *memory.Conversation) error        { return f.err }
func (f failingSessions) Delete(context.Context, string) error                    { return f.err }

func newTestAssistant(t *testing.T, outlets OutletStore, opts ...Option) *Assistant {
	t.Helper()
	areas := text2sql.DefaultAreas()
	return New(planner.New(areas), text2sql.NewTranslator(areas), outlets, memory.NewMemoryStore(time.Hour), opts...)
}

func openSeededStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	_, err = s.UpsertOutlets(context.Background(), []storage.Outlet{
		{Name: "ZUS Coffee SS2", Address: "No. 5, Jalan SS2/67, Petaling Jaya", Phone: "03-7865 1234", Hours: "7AM-10PM", Area: "SS2", Services: "Dine-in, Takeaway"},
		{Name: "ZUS Coffee KLCC", Address: "Lot C-12, Suria KLCC, Kuala Lumpur", Hours: "10AM-10PM", Area: "KLCC"},
		{Name: "ZUS Coffee PJ Old Town", Address: "Jalan Othman, Petaling Jaya", Hours: "8AM-9PM", Area: "Petaling Jaya"},
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return s
}

func TestRespond_Calculate(t *testing.T) {
	a := newTestAssistant(t, &fakeOutlets{})
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"what is 2 + 3 * 4?", "The result of 2 + 3 * 4 is 14"},
		{"calculate 10 / 4", "The result of 10 / 4 is 2.5"},
		{"calculate 5 / 0", "divides by zero"},
		{"calculate 5 / 0", "for example: 5 / 1"},
		{"Calculate", "What calculation would you like me to perform?"},
	}
	for _, tt := range tests {
		r, err := a.Respond(ctx, "", tt.text)
		if err != nil {
			t.Fatalf("Respond(%q): %v", tt.text, err)
		}
		if !strings.Contains(r.Text, tt.want) {
			t.Errorf("Respond(%q) = %q, want it to contain %q", tt.text, r.Text, tt.want)
		}
		if r.Status != StatusCompleted {
			t.Errorf("status = %q", r.Status)
		}
	}
}

func TestRespond_OutletsEndToEnd(t *testing.T) {
	a := newTestAssistant(t, openSeededStore(t))
	ctx := context.Background()

	r, err := a.Respond(ctx, "s1", "What are the opening hours in SS2?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.Decision.Action != planner.ActionOutletQuery {
		t.Fatalf("action = %s (%s)", r.Decision.Action, r.Decision.Rationale)
	}
	if !strings.Contains(r.Text, "ZUS Coffee SS2") || !strings.Contains(r.Text, "7AM-10PM") {
		t.Errorf("reply = %q", r.Text)
	}

	// The follow-up resolves "it" through the remembered location.
	r, err = a.Respond(ctx, "s1", "what's the phone number there?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.Decision.Param(planner.ParamLocation) != "SS2" {
		t.Errorf("follow-up location = %q (%s)", r.Decision.Param(planner.ParamLocation), r.Decision.Rationale)
	}
	if !strings.Contains(r.Text, "03-7865 1234") {
		t.Errorf("follow-up reply = %q", r.Text)
	}

	r, _ = a.Respond(ctx, "s2", "how many outlets do you have")
	if !strings.Contains(r.Text, "There are 3 outlets") {
		t.Errorf("count reply = %q", r.Text)
	}
}

func TestRespond_CountInAreaStaysScoped(t *testing.T) {
	a := newTestAssistant(t, openSeededStore(t))

	r, err := a.Respond(context.Background(), "s1", "how many outlets in SS2")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.Decision.Param(planner.ParamLocation) != "SS2" {
		t.Errorf("location = %q (%s)", r.Decision.Param(planner.ParamLocation), r.Decision.Rationale)
	}
	if strings.Contains(r.Text, "in the directory") || !strings.Contains(r.Text, "ZUS Coffee SS2") {
		t.Errorf("reply = %q", r.Text)
	}
	if strings.Contains(r.Text, "KLCC") {
		t.Errorf("reply includes outlets outside SS2: %q", r.Text)
	}
}

func TestRespond_OutletsNoResults(t *testing.T) {
	a := newTestAssistant(t, openSeededStore(t))
	r, err := a.Respond(context.Background(), "", "Is there an outlet in Timbuktu?")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusCompleted || !strings.Contains(r.Text, "couldn't find any outlets") {
		t.Errorf("reply = %q (%s)", r.Text, r.Status)
	}
}

func TestRespond_OutletStoreDown(t *testing.T) {
	m := metrics.NewCollector("test")
	a := newTestAssistant(t, &fakeOutlets{
		queryFn: func(context.Context, string, ...any) ([]map[string]any, error) {
			return nil, errors.New("database is locked")
		},
	}, WithMetrics(m))

	r, err := a.Respond(context.Background(), "", "outlets in KLCC")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r.Status != StatusUnavailable {
		t.Errorf("status = %q, want unavailable", r.Status)
	}
	if !strings.Contains(r.Text, "temporarily unavailable") || strings.Contains(r.Text, "couldn't find") {
		t.Errorf("reply should report unavailability, not an empty result: %q", r.Text)
	}
	if got := testutil.ToFloat64(m.BackendErrors.WithLabelValues("outlets")); got != 1 {
		t.Errorf("backend errors = %v", got)
	}
}

func TestQueryOutlets_BlockedQueryIsEmpty(t *testing.T) {
	outlets := &fakeOutlets{}
	bad := text2sql.Pattern{
		Name:        "bad",
		Description: "broken template",
		Regexp:      text2sql.DefaultPatterns()[0].Regexp,
		Build: func(loc string, _ int) (string, []any) {
			return "SELECT name FROM outlets; DROP TABLE outlets", nil
		},
	}
	areas := text2sql.DefaultAreas()
	m := metrics.NewCollector("test")
	a := New(planner.New(areas), text2sql.NewTranslator(areas, text2sql.WithPatterns([]text2sql.Pattern{bad})),
		outlets, memory.NewMemoryStore(time.Hour), WithMetrics(m))

	res, err := a.QueryOutlets(context.Background(), "outlets in ss2")
	if err != nil {
		t.Fatalf("QueryOutlets: %v", err)
	}
	if !res.Blocked || len(res.Rows) != 0 {
		t.Errorf("result = %+v, want blocked and empty", res)
	}
	if len(outlets.queries) != 0 {
		t.Errorf("blocked SQL reached the store: %v", outlets.queries)
	}
	if !strings.Contains(res.Summary, "outlets in ss2") {
		t.Errorf("summary = %q", res.Summary)
	}
	if testutil.ToFloat64(m.SQLBlocked) != 1 {
		t.Error("blocked counter not incremented")
	}
}

func TestQueryOutlets_Result(t *testing.T) {
	a := newTestAssistant(t, openSeededStore(t))
	res, err := a.QueryOutlets(context.Background(), "outlets in petaling jaya")
	if err != nil {
		t.Fatal(err)
	}
	if res.Query.Pattern != "location" || len(res.Query.Args) == 0 {
		t.Errorf("query = %+v", res.Query)
	}
	if len(res.Rows) != 2 {
		t.Errorf("rows = %d, want 2 (SS2 address and PJ Old Town)", len(res.Rows))
	}
}

func TestProducts(t *testing.T) {
	var gotK int
	products := &fakeProducts{
		searchFn: func(_ context.Context, q string, k int) ([]retrieval.ProductHit, error) {
			gotK = k
			return []retrieval.ProductHit{{Name: "ZUS All-Can Tumbler", Price: "RM 79.00", Score: 0.9}}, nil
		},
	}
	a := newTestAssistant(t, &fakeOutlets{}, WithProducts(products), WithTopK(5))

	r, err := a.Respond(context.Background(), "", "I'm looking for a tumbler")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.Text, "ZUS All-Can Tumbler") || gotK != 5 {
		t.Errorf("reply = %q, topK = %d", r.Text, gotK)
	}

	res, err := a.SearchProducts(context.Background(), "mug", 2)
	if err != nil || gotK != 2 || len(res.Hits) != 1 {
		t.Errorf("SearchProducts = %+v, %v (topK %d)", res, err, gotK)
	}
}

func TestProducts_Unavailable(t *testing.T) {
	a := newTestAssistant(t, &fakeOutlets{})
	if _, err := a.SearchProducts(context.Background(), "mug", 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("unconfigured search error = %v", err)
	}

	a = newTestAssistant(t, &fakeOutlets{}, WithProducts(&fakeProducts{
		searchFn: func(context.Context, string, int) ([]retrieval.ProductHit, error) {
			return nil, errors.New("connection refused")
		},
	}))
	r, err := a.Respond(context.Background(), "", "recommend me a good mug for travel")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusUnavailable || !strings.Contains(r.Text, "product search is temporarily unavailable") {
		t.Errorf("reply = %q (%s)", r.Text, r.Status)
	}
}

func TestEmptyInputs(t *testing.T) {
	a := newTestAssistant(t, &fakeOutlets{})
	ctx := context.Background()
	if _, err := a.Calculate(" "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Calculate error = %v", err)
	}
	if _, err := a.QueryOutlets(ctx, ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("QueryOutlets error = %v", err)
	}
	if _, err := a.SearchProducts(ctx, "", 3); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("SearchProducts error = %v", err)
	}
	if _, err := a.Calculate("(3 - 3) % 0"); !errors.Is(err, calc.ErrDivisionByZero) {
		t.Errorf("Calculate error = %v", err)
	}
}

func TestRespond_EndAndAsk(t *testing.T) {
	a := newTestAssistant(t, &fakeOutlets{})
	ctx := context.Background()

	r, _ := a.Respond(ctx, "", "thanks, bye!")
	if r.Decision.Action != planner.ActionEnd || !strings.Contains(r.Text, "Thank you") {
		t.Errorf("end reply = %q", r.Text)
	}
	r, _ = a.Respond(ctx, "", "where can I find an outlet near me")
	if r.Decision.Action != planner.ActionAsk || !strings.Contains(r.Text, "Which location") {
		t.Errorf("ask reply = %q", r.Text)
	}
}

func TestRespond_MemoryAndHistory(t *testing.T) {
	hist := &fakeHistory{}
	a := newTestAssistant(t, &fakeOutlets{}, WithInteractionLog(hist))
	ctx := context.Background()

	r, err := a.Respond(ctx, "", "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if r.SessionID == "" {
		t.Fatal("empty session id should be replaced with a new one")
	}
	if _, err := a.Respond(ctx, r.SessionID, "outlets in KLCC"); err != nil {
		t.Fatal(err)
	}

	snap, err := a.Session(ctx, r.SessionID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(snap.Turns) != 4 {
		t.Errorf("turns = %d, want 4", len(snap.Turns))
	}
	if snap.Turns[0].Role != memory.RoleUser || snap.Turns[1].Role != memory.RoleAssistant {
		t.Errorf("turn roles = %s, %s", snap.Turns[0].Role, snap.Turns[1].Role)
	}
	if snap.Slots[memory.SlotLocation] != "KLCC" {
		t.Errorf("location slot = %q", snap.Slots[memory.SlotLocation])
	}

	if len(hist.saved) != 2 || hist.saved[1].Action != "OUTLET_QUERY" || hist.saved[1].Rationale == "" {
		t.Errorf("history = %+v", hist.saved)
	}

	if err := a.Reset(ctx, r.SessionID); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := a.Session(ctx, r.SessionID); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Errorf("Session after reset error = %v", err)
	}
}

func TestRespond_SessionsIsolated(t *testing.T) {
	a := newTestAssistant(t, openSeededStore(t))
	ctx := context.Background()

	a.Respond(ctx, "alice", "outlets in KLCC")
	r, err := a.Respond(ctx, "bob", "what time does it open")
	if err != nil {
		t.Fatal(err)
	}
	if r.Decision.Action != planner.ActionAsk {
		t.Errorf("bob inherited alice's location: %s %q", r.Decision.Action, r.Decision.Param(planner.ParamLocation))
	}
}

func TestRespond_SessionStoreDown(t *testing.T) {
	areas := text2sql.DefaultAreas()
	a := New(planner.New(areas), text2sql.NewTranslator(areas), &fakeOutlets{}, failingSessions{err: errors.New("redis: connection refused")})

	if _, err := a.Respond(context.Background(), "s", "hi"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Respond error = %v, want ErrUnavailable", err)
	}
	if _, err := a.Session(context.Background(), "s"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Session error = %v, want ErrUnavailable", err)
	}
	if err := a.Reset(context.Background(), "s"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Reset error = %v, want ErrUnavailable", err)
	}
}

func TestRespond_PanicBecomesApology(t *testing.T) {
	a := newTestAssistant(t, &fakeOutlets{
		queryFn: func(context.Context, string, ...any) ([]map[string]any, error) {
			panic("nil map")
		},
	})
	r, err := a.Respond(context.Background(), "", "outlets in SS2")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusError || r.Text != genericApology {
		t.Errorf("reply = %q (%s)", r.Text, r.Status)
	}
}

func TestRespond_ConcurrentSameSession(t *testing.T) {
	a := newTestAssistant(t, &fakeOutlets{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := a.Respond(ctx, "shared", fmt.Sprintf("calculate %d + 1", i)); err != nil {
				t.Errorf("Respond: %v", err)
			}
		}(i)
	}
	wg.Wait()

	snap, err := a.Session(ctx, "shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Turns) != 40 {
		t.Errorf("turns = %d, want 40 (no lost updates)", len(snap.Turns))
	}
	if n := a.locks.len(); n != 0 {
		t.Errorf("%d session locks left behind", n)
	}
}

func TestSuggestDivisor(t *testing.T) {
	for in, want := range map[string]string{
		"5 / 0":     "5 / 1",
		"8%0":       "8%1",
		"(1-1)/(0)": "10 / 2",
	} {
		if got := suggestDivisor(in); got != want {
			t.Errorf("suggestDivisor(%q) = %q, want %q", in, got, want)
		}
	}
}
