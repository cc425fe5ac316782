package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pss-rag/docqa/internal/indexer"
	"github.com/pss-rag/docqa/internal/llm"
	"github.com/pss-rag/docqa/internal/orchestrator"
	"github.com/pss-rag/docqa/internal/ratelimit"
	"github.com/pss-rag/docqa/internal/runtime"
	"github.com/pss-rag/docqa/internal/store"
)

// QueryHandler exposes the question-answering pipeline plus its service
// introspection endpoints.
type QueryHandler struct {
	Orch        *orchestrator.Orchestrator
	Generator   *llm.Generator
	Store       *store.Store
	Reindexer   *indexer.Reindexer
	Limiter     *ratelimit.Limiter
	RequireAuth bool
}

type QueryRequest struct {
	Question string `json:"question"`
}

func (h *QueryHandler) Register(g *echo.Group, secret []byte) {
	if h.RequireAuth {
		auth := runtime.EchoAuthMiddleware(secret)
		g.POST("/query", h.query, auth)
		g.GET("/stats", h.stats, auth)
	} else {
		g.POST("/query", h.query)
		g.GET("/stats", h.stats)
	}
	g.GET("/health", h.health)
	// rebuilds are operator actions and always need a token
	g.POST("/reindex", h.reindex, runtime.EchoAuthMiddleware(secret))
}

func (h *QueryHandler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.Orch.Ask(c.Request().Context(), orchestrator.Request{
		Question:  req.Question,
		ClientID:  h.clientID(c),
		Timestamp: time.Now(),
	})
	if err != nil {
		// full detail goes to the error-handler log, never to the client
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}

	switch resp.Status {
	case orchestrator.StatusRateLimited:
		return c.JSON(http.StatusTooManyRequests, resp)
	case orchestrator.StatusRejected:
		return c.JSON(http.StatusBadRequest, resp)
	default:
		// no_results is a normal outcome, not an error
		return c.JSON(http.StatusOK, resp)
	}
}

// clientID picks the rate-limit key: the authenticated user when present,
// the caller's IP otherwise.
func (h *QueryHandler) clientID(c echo.Context) string {
	if uid, ok := c.Get("user_id").(string); ok && uid != "" {
		return uid
	}
	return c.RealIP()
}

func (h *QueryHandler) stats(c echo.Context) error {
	chunkCount, err := h.Store.CountChunks(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	body := map[string]interface{}{
		"generation": h.Generator.Stats(),
		"chunks":     chunkCount,
	}
	if h.Limiter != nil {
		body["rate_limit_per_window"] = h.Limiter.Limit()
	}
	return c.JSON(http.StatusOK, body)
}

func (h *QueryHandler) health(c echo.Context) error {
	health := h.Generator.HealthCheck(c.Request().Context())
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}

func (h *QueryHandler) reindex(c echo.Context) error {
	n, err := h.Reindexer.Rebuild(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"indexed_chunks": n})
}
