package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pss-rag/docqa/internal/embedding"
	"github.com/pss-rag/docqa/internal/guard"
	"github.com/pss-rag/docqa/internal/index"
	"github.com/pss-rag/docqa/internal/llm"
	"github.com/pss-rag/docqa/internal/ratelimit"
	"github.com/pss-rag/docqa/internal/redact"
	"github.com/pss-rag/docqa/internal/telemetry"
)

// Status is the coarse outcome of a query. Everything except StatusError
// is a normal, reportable result.
type Status string

const (
	StatusOK          Status = "ok"
	StatusRateLimited Status = "rate_limited"
	StatusRejected    Status = "rejected"
	StatusNoResults   Status = "no_results"
)

// Request is one incoming question. It is discarded after the response is
// assembled; nothing about it is persisted.
type Request struct {
	Question  string
	ClientID  string
	Timestamp time.Time
}

// Response is the assembled query outcome handed to the presentation
// collaborator: one generation result per retrieved chunk in retrieval
// order, plus the distinct source files.
type Response struct {
	RequestID string                 `json:"request_id"`
	Status    Status                 `json:"status"`
	Reason    string                 `json:"reason,omitempty"`
	Remaining int                    `json:"rate_limit_remaining"`
	Answers   []llm.GenerationResult `json:"answers,omitempty"`
	Sources   []string               `json:"sources,omitempty"`
	Elapsed   time.Duration          `json:"elapsed"`
}

// Orchestrator composes the query pipeline:
// rate-limit, validate, embed, retrieve, generate per chunk, redact.
type Orchestrator struct {
	guard     *guard.Guard
	limiter   *ratelimit.Limiter
	encoder   embedding.Encoder
	handle    *index.Handle
	generator *llm.Generator
	topK      int
	logger    *log.Logger
	tele      *telemetry.Telemetry
}

func New(g *guard.Guard, limiter *ratelimit.Limiter, encoder embedding.Encoder, handle *index.Handle, generator *llm.Generator, topK int, tele *telemetry.Telemetry) *Orchestrator {
	if topK <= 0 {
		topK = 5
	}
	return &Orchestrator{
		guard:     g,
		limiter:   limiter,
		encoder:   encoder,
		handle:    handle,
		generator: generator,
		topK:      topK,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		tele:      tele,
	}
}

// Ask runs the full pipeline for one question. Denied admission, rejected
// input and empty retrieval are normal statuses; err is reserved for
// infrastructure failures (limiter store, embedding call, missing index).
// A failed generation for one chunk never fails the query: the result list
// carries per-chunk success flags.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp := &Response{RequestID: uuid.NewString()}

	// admission runs first: a denied request performs no further work
	allowed, remaining, err := o.limiter.Admit(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	resp.Remaining = remaining
	if !allowed {
		o.tele.RecordRateLimitDenial()
		o.tele.RecordQuery("rate_limited")
		resp.Status = StatusRateLimited
		resp.Reason = "rate limit exceeded, please wait before making another request"
		resp.Elapsed = time.Since(start)
		return resp, nil
	}

	cleaned, rejection := o.guard.Validate(req.Question)
	if rejection != nil {
		o.tele.RecordQuery("rejected")
		resp.Status = StatusRejected
		resp.Reason = rejection.Message
		resp.Elapsed = time.Since(start)
		return resp, nil
	}

	ix := o.handle.Get()
	if ix == nil {
		return nil, fmt.Errorf("vector index not loaded")
	}

	vec, err := o.encoder.Encode(ctx, cleaned)
	if err != nil {
		o.tele.RecordQuery("error")
		return nil, fmt.Errorf("encode question: %w", err)
	}

	hits := ix.Search(vec, o.topK)
	o.tele.RecordRetrieval(len(hits))
	if len(hits) == 0 {
		o.tele.RecordQuery("no_results")
		resp.Status = StatusNoResults
		resp.Reason = "no relevant documents found"
		resp.Elapsed = time.Since(start)
		return resp, nil
	}

	resp.Answers = o.generateAll(ctx, cleaned, hits)
	resp.Sources = distinctSources(hits)
	resp.Status = StatusOK
	resp.Elapsed = time.Since(start)
	o.tele.RecordQuery("ok")
	o.logger.Printf("query %s answered: %d chunks, %d sources, %v", resp.RequestID, len(resp.Answers), len(resp.Sources), resp.Elapsed)
	return resp, nil
}

// generateAll fans out one generation call per retrieved chunk. Calls run
// concurrently so total latency is bounded by the slowest chunk, and the
// result slice keeps retrieval-score order regardless of completion order.
func (o *Orchestrator) generateAll(ctx context.Context, question string, hits []index.Hit) []llm.GenerationResult {
	results := make([]llm.GenerationResult, len(hits))
	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func(i int, hit index.Hit) {
			defer wg.Done()
			res := o.generator.Generate(ctx, question, hit.Chunk.Text)
			res.SourceFile = hit.Chunk.SourceFile
			res.Answer = redact.Redact(res.Answer)
			results[i] = res
		}(i, hit)
	}
	wg.Wait()
	return results
}

// distinctSources lists source files in retrieval order without duplicates.
func distinctSources(hits []index.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, ok := seen[h.Chunk.SourceFile]; ok {
			continue
		}
		seen[h.Chunk.SourceFile] = struct{}{}
		out = append(out, h.Chunk.SourceFile)
	}
	return out
}
