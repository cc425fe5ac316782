package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pss-rag/docqa/internal/telemetry"
)

// GenerationResult is the per-chunk outcome of one generation call. One
// result is produced per retrieved chunk, never one per query.
type GenerationResult struct {
	SourceFile   string        `json:"source_file"`
	Answer       string        `json:"answer"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	Err          string        `json:"error,omitempty"`
}

// Health is the outcome of a single lightweight probe call.
type Health struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Err     string        `json:"error,omitempty"`
}

// StatsSnapshot holds the generator's running aggregates.
type StatsSnapshot struct {
	TotalRequests  int64         `json:"total_requests"`
	AverageLatency time.Duration `json:"average_latency"`
	ErrorRate      float64       `json:"error_rate"`
	SuccessRate    float64       `json:"success_rate"`
}

// Generator wraps a Provider with retry-on-transient-failure and running
// performance aggregates.
type Generator struct {
	provider    Provider
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *log.Logger
	tele        *telemetry.Telemetry
	stats       *stats

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGenerator(provider Provider, maxAttempts int, tele *telemetry.Telemetry) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Generator{
		provider:    provider,
		maxAttempts: maxAttempts,
		baseBackoff: 4 * time.Second,
		maxBackoff:  10 * time.Second,
		logger:      log.New(log.Writer(), "[LLM] ", log.LstdFlags),
		tele:        tele,
		stats:       &stats{},
		sleep:       sleepCtx,
	}
}

// Generate asks the provider to answer the question against one chunk's
// text. Transient provider failures (throttling, timeouts, 5xx) are retried
// with exponential backoff; permanent request errors fail immediately.
// Exhausted retries surface as Success=false, never as a fault: the caller
// runs other chunks independently.
func (g *Generator) Generate(ctx context.Context, question, chunkText string) GenerationResult {
	start := time.Now()
	prompt := buildPrompt(question, chunkText)

	answer, err := g.completeWithRetry(ctx, prompt)
	elapsed := time.Since(start)

	g.stats.record(elapsed, err == nil)
	g.tele.RecordGeneration(err == nil, elapsed)

	if err != nil {
		g.logger.Printf("generation failed after %v: %v", elapsed, err)
		return GenerationResult{ResponseTime: elapsed, Success: false, Err: safeErrMessage(err)}
	}
	return GenerationResult{Answer: answer, ResponseTime: elapsed, Success: true}
}

// completeWithRetry is an explicit attempt loop returning a tagged outcome
// rather than relying on panics or sentinel control flow. The backoff
// doubles from the base delay and is capped.
func (g *Generator) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.baseBackoff << (attempt - 1)
			if delay > g.maxBackoff {
				delay = g.maxBackoff
			}
			g.logger.Printf("transient provider error, retrying in %v (attempt %d/%d): %v", delay, attempt+1, g.maxAttempts, lastErr)
			if err := g.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		answer, err := g.provider.Complete(ctx, prompt)
		if err == nil {
			return answer, nil
		}
		if !isTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", g.maxAttempts, lastErr)
}

// HealthCheck performs a single probe call without retries.
func (g *Generator) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	_, err := g.provider.Complete(ctx, "Hello, please respond with 'Service is healthy'")
	latency := time.Since(start)
	if err != nil {
		return Health{Healthy: false, Latency: latency, Err: safeErrMessage(err)}
	}
	return Health{Healthy: true, Latency: latency}
}

// Stats returns a snapshot of the running aggregates.
func (g *Generator) Stats() StatsSnapshot {
	return g.stats.snapshot()
}

func buildPrompt(question, chunkText string) string {
	return fmt.Sprintf("Context: %s\n\nQuestion: %s\n\nPlease provide a helpful and accurate answer based on the context provided.", chunkText, question)
}

// isTransient classifies provider failures. Structured provider errors
// decide by status; context cancellation is final; anything else is a
// transport-level failure worth one more try.
func isTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// safeErrMessage keeps raw provider payloads out of user-facing results.
func safeErrMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return fmt.Sprintf("provider error (status %d)", pe.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return "service temporarily unavailable"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
