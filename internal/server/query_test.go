package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pss-rag/docqa/internal/embedding"
	"github.com/pss-rag/docqa/internal/guard"
	"github.com/pss-rag/docqa/internal/index"
	"github.com/pss-rag/docqa/internal/llm"
	"github.com/pss-rag/docqa/internal/orchestrator"
	"github.com/pss-rag/docqa/internal/ratelimit"
	"github.com/pss-rag/docqa/internal/store"
	"github.com/pss-rag/docqa/internal/telemetry"
)

type fixedEncoder struct{ vec []float32 }

func (e fixedEncoder) Encode(_ context.Context, _ string) ([]float32, error) { return e.vec, nil }
func (e fixedEncoder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

type errorEncoder struct{ err error }

func (e errorEncoder) Encode(_ context.Context, _ string) ([]float32, error) { return nil, e.err }
func (e errorEncoder) EncodeBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, e.err
}

type fixedProvider struct{ answer string }

func (p fixedProvider) Complete(_ context.Context, _ string) (string, error) { return p.answer, nil }

func newTestQueryHandler(t *testing.T, limit int) *QueryHandler {
	t.Helper()
	chunks := []index.Chunk{
		{Text: "alpha report findings", SourceFile: "alpha.pdf", ChunkIndex: 0},
	}
	vectors := [][]float32{embedding.Normalize([]float32{1, 0})}
	ix, err := index.Build(chunks, vectors)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tele := telemetry.New(prometheus.NewRegistry())
	gen := llm.NewGenerator(fixedProvider{answer: "the alpha report says so"}, 1, tele)
	orch := orchestrator.New(
		guard.New(1000),
		ratelimit.New(ratelimit.NewMemoryStore(), limit, time.Minute),
		fixedEncoder{vec: embedding.Normalize([]float32{1, 0.1})},
		index.NewHandle(ix),
		gen,
		5,
		tele,
	)
	return &QueryHandler{Orch: orch, Generator: gen}
}

func doQuery(t *testing.T, h *QueryHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.query(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestQueryHappyPath(t *testing.T) {
	h := newTestQueryHandler(t, 10)

	rec := doQuery(t, h, `{"question":"what does the alpha report say"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var resp orchestrator.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != orchestrator.StatusOK {
		t.Fatalf("status = %s, want ok", resp.Status)
	}
	if len(resp.Answers) != 1 || resp.Answers[0].SourceFile != "alpha.pdf" {
		t.Fatalf("unexpected answers: %+v", resp.Answers)
	}
}

func TestQueryInternalErrorHidesDetail(t *testing.T) {
	chunks := []index.Chunk{{Text: "alpha report findings", SourceFile: "alpha.pdf"}}
	vectors := [][]float32{embedding.Normalize([]float32{1, 0})}
	ix, err := index.Build(chunks, vectors)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tele := telemetry.New(prometheus.NewRegistry())
	gen := llm.NewGenerator(fixedProvider{answer: "ok"}, 1, tele)
	encErr := errors.New(`Post "https://internal-llm.corp.example:8443/v1/embeddings": dial tcp 10.0.0.7:8443: connect: connection refused`)
	orch := orchestrator.New(
		guard.New(1000),
		ratelimit.New(ratelimit.NewMemoryStore(), 10, time.Minute),
		errorEncoder{err: encErr},
		index.NewHandle(ix),
		gen,
		5,
		tele,
	)
	h := &QueryHandler{Orch: orch, Generator: gen}

	rec := doQuery(t, h, `{"question":"what does the alpha report say"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	for _, leak := range []string{"dial tcp", "internal-llm.corp.example", "10.0.0.7", "/v1/embeddings"} {
		if strings.Contains(body, leak) {
			t.Fatalf("response leaks internal detail %q: %s", leak, body)
		}
	}
	if !strings.Contains(body, "internal error") {
		t.Fatalf("expected coarse message, got %s", body)
	}
}

func TestQueryRejectedInputIs400(t *testing.T) {
	h := newTestQueryHandler(t, 10)

	rec := doQuery(t, h, `{"question":"<script>alert(1)</script>"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestQueryRateLimitedIs429(t *testing.T) {
	h := newTestQueryHandler(t, 1)

	if rec := doQuery(t, h, `{"question":"first question"}`); rec.Code != http.StatusOK {
		t.Fatalf("first query code = %d, want 200", rec.Code)
	}
	rec := doQuery(t, h, `{"question":"second question"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d, want 429", rec.Code)
	}
}

func TestStatsReportsChunkCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM chunks`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	h := newTestQueryHandler(t, 10)
	h.Store = &store.Store{DB: db}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.stats(c); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body["chunks"]) != "42" {
		t.Fatalf("chunks = %s, want 42", body["chunks"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestQueryHandler(t, 10)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.health(c); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var health llm.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !health.Healthy {
		t.Fatal("expected healthy probe")
	}
}
