package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/internal/pipeline"
	"github.com/routeworks/escort/internal/progress"
	"github.com/routeworks/escort/internal/runs"
	"github.com/routeworks/escort/internal/tools"
	"github.com/routeworks/escort/pkg/pagination"
	"github.com/routeworks/escort/run"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// toolFunc scripts one tool's behavior for the fake invoker.
type toolFunc func(args map[string]any) (tools.Result, error)

// fakeInvoker dispatches calls to scripted tool functions and counts calls
// per tool.
type fakeInvoker struct {
	mu    sync.Mutex
	tools map[string]toolFunc
	calls map[string]int
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		tools: make(map[string]toolFunc),
		calls: make(map[string]int),
	}
}

func (f *fakeInvoker) on(tool string, fn toolFunc) {
	f.tools[tool] = fn
}

func (f *fakeInvoker) respond(tool string, fields map[string]any) {
	f.on(tool, func(args map[string]any) (tools.Result, error) {
		return tools.Result{Structured: fields}, nil
	})
}

func (f *fakeInvoker) count(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tool]
}

func (f *fakeInvoker) Invoke(ctx context.Context, tool string, args map[string]any, timeout time.Duration) (tools.Result, error) {
	f.mu.Lock()
	f.calls[tool]++
	fn, ok := f.tools[tool]
	f.mu.Unlock()

	if !ok {
		return tools.Result{}, &tools.InvokeError{
			Tool:    tool,
			Failure: tools.FailureConnection,
			Err:     errors.New("not scripted"),
		}
	}
	return fn(args)
}

// memStore is a minimal in-memory engine.Store for pipeline runs.
type memStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*run.State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[uuid.UUID]*run.State)}
}

func (m *memStore) LoadState(ctx context.Context, runID uuid.UUID) (*run.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[runID]
	if !ok {
		return nil, progress.ErrNotFound
	}
	return state, nil
}

func (m *memStore) SaveState(ctx context.Context, state *run.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.RunID] = state
	return nil
}

func (m *memStore) DeleteState(ctx context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, runID)
	return nil
}

func (m *memStore) PublishEvent(ctx context.Context, event progress.Event) {}

func (m *memStore) Percent(state *run.State, subCurrent, subTotal int) int {
	return progress.Percent(state, subCurrent, subTotal)
}

func (m *memStore) CheckCancellation(ctx context.Context, state *run.State) (bool, error) {
	return false, nil
}

func (m *memStore) RequestCancel(ctx context.Context, runID uuid.UUID) error {
	return nil
}

// memArchive records archived results in place of the Postgres repository
// and signals each terminal outcome so tests can wait on background runs.
type memArchive struct {
	mu       sync.Mutex
	archived []*engine.Result
	done     chan run.Status
}

func newMemArchive() *memArchive {
	return &memArchive{done: make(chan run.Status, 4)}
}

func (m *memArchive) Handler() *runs.Handler { return nil }

func (m *memArchive) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters runs.Filters,
) (*pagination.PageResult[runs.Record], error) {
	return &pagination.PageResult[runs.Record]{}, nil
}

func (m *memArchive) Find(ctx context.Context, id uuid.UUID) (*runs.Record, error) {
	return nil, runs.ErrNotFound
}

func (m *memArchive) Archive(ctx context.Context, result *engine.Result) (*runs.Record, error) {
	m.mu.Lock()
	m.archived = append(m.archived, result)
	m.mu.Unlock()
	m.done <- result.Status
	return &runs.Record{ID: result.RunID, Status: result.Status}, nil
}

func (m *memArchive) results() []*engine.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*engine.Result(nil), m.archived...)
}

func (m *memArchive) wait(t *testing.T) run.Status {
	t.Helper()
	select {
	case status := <-m.done:
		return status
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run to archive")
		return ""
	}
}

// healthyInvoker scripts every tool for a clean end-to-end run over three
// attachments.
func healthyInvoker() *fakeInvoker {
	inv := newFakeInvoker()
	inv.respond("fetch_application", map[string]any{"applicant": "Acme Hauling"})
	inv.respond("filter_attachments", map[string]any{
		"attachments": []any{
			map[string]any{"id": "doc-1", "url": "https://intake/doc-1"},
			map[string]any{"id": "doc-2"},
			map[string]any{"id": "doc-3"},
		},
	})
	inv.respond("download_document", map[string]any{"status": "downloaded"})
	inv.respond("ingest_document", map[string]any{"status": "ingested"})
	inv.respond("score_route", map[string]any{"score": 0.82})
	inv.respond("search_policy", map[string]any{"policies": []any{"OS/OW-12"}})
	inv.respond("generate_packet", map[string]any{"packet_id": "PKT-1"})
	inv.respond("verify_packet", map[string]any{"issues": []any{}})
	return inv
}

func executeRun(inv *fakeInvoker, store engine.Store, runID uuid.UUID) *engine.Result {
	rt := &pipeline.Runtime{
		Invoker:     inv,
		Logger:      testLogger(),
		CallTimeout: time.Second,
	}
	eng := engine.New(runID, "APP-100", pipeline.Descriptors(rt), store, testLogger(), 2)
	return eng.Execute(context.Background())
}

func TestRunCompletesCleanly(t *testing.T) {
	inv := healthyInvoker()

	result := executeRun(inv, newMemStore(), uuid.New())

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s (%s), want %s", result.Status, result.FailureReason, run.StatusCompleted)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors: got %v, want none", result.Errors)
	}
	if result.ItemsProcessed != 3 || result.ItemsTotal != 3 {
		t.Errorf("items: got %d/%d, want 3/3", result.ItemsProcessed, result.ItemsTotal)
	}
	for _, tool := range []string{"download_document", "ingest_document"} {
		if got := inv.count(tool); got != 3 {
			t.Errorf("%s calls: got %d, want 3", tool, got)
		}
	}
	if got := inv.count("filter_attachments"); got != 1 {
		t.Errorf("filter_attachments calls: got %d, want 1 (bag reuse)", got)
	}
}

func TestIngestPartialFailureCompletesDegraded(t *testing.T) {
	inv := healthyInvoker()
	inv.on("ingest_document", func(args map[string]any) (tools.Result, error) {
		if args["attachment_id"] == "doc-3" {
			return tools.Result{}, &tools.InvokeError{
				Server:  "documents",
				Tool:    "ingest_document",
				Failure: tools.FailureTool,
				Payload: map[string]any{"error": "OCR failed"},
				Err:     errors.New("tool reported error"),
			}
		}
		return tools.Result{Structured: map[string]any{"status": "ingested"}}, nil
	})

	result := executeRun(inv, newMemStore(), uuid.New())

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s (%s), want %s", result.Status, result.FailureReason, run.StatusCompleted)
	}
	if result.ItemsProcessed != 2 {
		t.Errorf("items processed: got %d, want 2", result.ItemsProcessed)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors: got %d, want 1", len(result.Errors))
	}
	e := result.Errors[0]
	if e.Phase != run.PhaseIngestDocuments || e.Item != "doc-3" || e.Message != "OCR failed" {
		t.Errorf("recorded error: %+v", e)
	}
}

func TestNoAttachmentsIsFatal(t *testing.T) {
	inv := healthyInvoker()
	inv.respond("filter_attachments", map[string]any{"attachments": []any{}})

	result := executeRun(inv, newMemStore(), uuid.New())

	if result.Status != run.StatusFailed {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusFailed)
	}
	if inv.count("download_document") != 0 {
		t.Error("no downstream calls after a fatal intake failure")
	}
}

func TestRouteAnalysisFailureIsRecoverable(t *testing.T) {
	inv := healthyInvoker()
	inv.on("score_route", func(args map[string]any) (tools.Result, error) {
		return tools.Result{}, &tools.InvokeError{
			Server:  "routing",
			Tool:    "score_route",
			Failure: tools.FailureConnection,
			Err:     errors.New("dial refused"),
		}
	})

	result := executeRun(inv, newMemStore(), uuid.New())

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s (%s), want %s", result.Status, result.FailureReason, run.StatusCompleted)
	}
	if len(result.Errors) != 1 || result.Errors[0].Phase != run.PhaseAnalyzeRoute {
		t.Errorf("errors: got %v", result.Errors)
	}
	if inv.count("generate_packet") != 1 {
		t.Error("packet generation should still run after degraded analysis")
	}
}

func TestGeneratePacketFailureIsFatal(t *testing.T) {
	inv := healthyInvoker()
	inv.on("generate_packet", func(args map[string]any) (tools.Result, error) {
		return tools.Result{}, &tools.InvokeError{
			Server:  "drafting",
			Tool:    "generate_packet",
			Failure: tools.FailureTool,
			Err:     errors.New("template missing"),
		}
	})

	result := executeRun(inv, newMemStore(), uuid.New())

	if result.Status != run.StatusFailed {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusFailed)
	}
	if inv.count("verify_packet") != 0 {
		t.Error("verification must not run after packet generation fails")
	}
}

func TestVerificationIssuesCompleteDegraded(t *testing.T) {
	inv := healthyInvoker()
	inv.respond("verify_packet", map[string]any{
		"issues": []any{"missing signature page"},
	})

	result := executeRun(inv, newMemStore(), uuid.New())

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s, want %s", result.Status, run.StatusCompleted)
	}
	if len(result.Errors) != 1 || result.Errors[0].Phase != run.PhaseVerifyPacket {
		t.Errorf("errors: got %v", result.Errors)
	}
}

func TestResumeRederivesAttachments(t *testing.T) {
	inv := healthyInvoker()
	store := newMemStore()
	runID := uuid.New()

	// A previous process finished the intake phases, then died. The bag is
	// gone; the download phase must re-derive the attachment list.
	prior := run.NewState(runID, "APP-100")
	prior.MarkCompleted(run.PhaseFetchApplication)
	prior.MarkCompleted(run.PhaseFilterAttachments)
	store.states[runID] = prior

	result := executeRun(inv, store, runID)

	if result.Status != run.StatusCompleted {
		t.Fatalf("status: got %s (%s), want %s", result.Status, result.FailureReason, run.StatusCompleted)
	}
	if inv.count("fetch_application") != 0 {
		t.Error("completed prefix phases must not re-run")
	}
	if got := inv.count("filter_attachments"); got != 1 {
		t.Errorf("attachment re-derivation calls: got %d, want 1", got)
	}
	if got := inv.count("download_document"); got != 3 {
		t.Errorf("download calls: got %d, want 3", got)
	}
}

// relaunch retries Launch until the previous execution of the run has
// deregistered itself.
func relaunch(t *testing.T, svc *pipeline.Service, applicationID string, runID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := svc.Launch(applicationID, runID)
		if err == nil {
			return
		}
		if !errors.Is(err, pipeline.ErrRunActive) {
			t.Fatalf("relaunch: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("prior run still registered as active")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRelaunchAfterFailureArchivesCompletion(t *testing.T) {
	inv := healthyInvoker()
	inv.on("generate_packet", func(args map[string]any) (tools.Result, error) {
		return tools.Result{}, &tools.InvokeError{
			Server:  "drafting",
			Tool:    "generate_packet",
			Failure: tools.FailureTool,
			Err:     errors.New("template missing"),
		}
	})

	store := newMemStore()
	archive := newMemArchive()
	rt := &pipeline.Runtime{
		Invoker:     inv,
		Logger:      testLogger(),
		CallTimeout: time.Second,
	}
	svc := pipeline.NewService(context.Background(), rt, store, archive, testLogger(), 2)

	runID, err := svc.Launch("APP-300", uuid.Nil)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if got := archive.wait(t); got != run.StatusFailed {
		t.Fatalf("first outcome: got %s, want %s", got, run.StatusFailed)
	}

	// Drafting recovers; relaunching the same ID resumes the failed run and
	// its new terminal outcome must reach the archive too.
	inv.respond("generate_packet", map[string]any{"packet_id": "PKT-2"})
	relaunch(t, svc, "APP-300", runID)

	if got := archive.wait(t); got != run.StatusCompleted {
		t.Fatalf("second outcome: got %s, want %s", got, run.StatusCompleted)
	}

	results := archive.results()
	if len(results) != 2 {
		t.Fatalf("archived results: got %d, want 2", len(results))
	}
	for i, r := range results {
		if r.RunID != runID {
			t.Errorf("archived run %d: got %s, want %s", i, r.RunID, runID)
		}
	}
	if got := inv.count("download_document"); got != 3 {
		t.Errorf("download calls: got %d, want 3 (relaunch resumes, not restarts)", got)
	}
}
