// Package llmproxy implements the LLM Proxy (SPEC_FULL.md §4.6): a
// standalone HTTP service, reachable only from within the task containers'
// network, that meters per-miner token usage and forwards model calls to
// the configured upstream providers. Grounded on the teacher's only other
// echo-based HTTP service, pkg/fake/proxy.go.
package llmproxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// AuthHeader is the header every mutating call must present, matching
// LLM_AUTH_KEY from the environment (spec.md §6).
const AuthHeader = "X-Auth-Key"

// Forwarder issues the actual upstream model call. OpenAI and Anthropic
// implementations live in openai.go/anthropic.go; tests substitute a fake.
type Forwarder interface {
	Call(ctx context.Context, entry ModelEntry, query string, temperature *float64, maxTokens *int64) (result string, promptTokens, completionTokens int64, err error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Server is the LLM Proxy. A zero-value Server is not usable; construct
// with New.
type Server struct {
	AuthKey string
	// EmbeddingAPIKey authenticates /embed and /embed/batch, which (unlike
	// /call) carry no per-request api_key in their body, spec.md §4.6.
	EmbeddingAPIKey string
	Forwarder       Forwarder

	counters *counters
	echo     *echo.Echo

	keyMu     sync.RWMutex
	activeKey string

	regMu    sync.RWMutex
	registry map[string]ModelEntry
}

func New(authKey, embeddingAPIKey string, forwarder Forwarder) *Server {
	s := &Server{
		AuthKey:         authKey,
		EmbeddingAPIKey: embeddingAPIKey,
		Forwarder:       forwarder,
		counters:        newCounters(),
		registry:        DefaultRegistry,
	}
	s.echo = newEcho(s)
	return s
}

// SetRegistry atomically replaces the model allow-list, used by
// config.RegistryWatcher on a hot-reload, SPEC_FULL.md §4.6.
func (s *Server) SetRegistry(reg map[string]ModelEntry) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.registry = reg
}

func (s *Server) lookupModel(name string) (ModelEntry, bool) {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	entry, ok := s.registry[name]
	return entry, ok
}

func (s *Server) setActiveKey(key string) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	s.activeKey = key
}

func (s *Server) getActiveKey() string {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	return s.activeKey
}

// Handler returns the http.Handler to mount (or serve directly via
// http.ListenAndServe).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// InitKey creates a counter for key and marks it active, like /init, and
// is safe to call repeatedly. Exposed directly (bypassing HTTP) for
// in-process callers like the Evaluator, which drives the proxy's control
// surface without a network hop, per SPEC_FULL.md §4.4.
func (s *Server) InitKey(_ context.Context, key string) error {
	s.counters.Init(key)
	s.setActiveKey(key)
	return nil
}

// Reset zeroes key's counter, in-process.
func (s *Server) Reset(_ context.Context, key string) error {
	s.counters.Reset(key)
	return nil
}

func newEcho(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/init", s.handleInit)
	e.POST("/reset", s.handleReset)
	e.GET("/count", s.handleCount)
	e.POST("/call", s.handleCall)
	e.POST("/embed", s.handleEmbed)
	e.POST("/embed/batch", s.handleEmbedBatch)

	return e
}

func (s *Server) requireAuth(c echo.Context) (string, bool) {
	key := c.Request().Header.Get(AuthHeader)
	if key == "" || key != s.AuthKey {
		// Per spec.md §4.6: calls without the auth header fail 500, not 401.
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "missing or invalid auth header"})
		return "", false
	}
	return key, true
}

type initRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleInit(c echo.Context) error {
	if _, ok := s.requireAuth(c); !ok {
		return nil
	}
	var req initRequest
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key is required"})
	}
	s.counters.Init(req.Key)
	s.setActiveKey(req.Key)
	return c.JSON(http.StatusOK, map[string]string{"key": req.Key})
}

func (s *Server) handleReset(c echo.Context) error {
	if _, ok := s.requireAuth(c); !ok {
		return nil
	}
	key := s.getActiveKey()
	if key == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no active key"})
	}
	s.counters.Reset(key)
	return c.JSON(http.StatusOK, map[string]string{"key": key, "count": "0"})
}

func (s *Server) handleCount(c echo.Context) error {
	key := s.getActiveKey()
	if key == "" {
		return c.JSON(http.StatusOK, map[string]any{"key": "", "count": 0})
	}
	count, _ := s.counters.Count(key)
	return c.JSON(http.StatusOK, map[string]any{"key": key, "count": count})
}

type callRequest struct {
	Query       string   `json:"query"`
	LLMName     string   `json:"llm_name"`
	APIKey      string   `json:"api_key"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int64   `json:"max_tokens,omitempty"`
}

type callResponse struct {
	Result      string `json:"result"`
	TotalTokens int64  `json:"total_tokens"`
}

func (s *Server) handleCall(c echo.Context) error {
	if _, ok := s.requireAuth(c); !ok {
		return nil
	}

	var req callRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	entry, ok := s.lookupModel(req.LLMName)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown llm_name: " + req.LLMName})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()
	ctx = withAPIKey(ctx, req.APIKey)

	result, promptTokens, completionTokens, err := callWithRetry(ctx, s.Forwarder, entry, req.Query, req.Temperature, req.MaxTokens)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	total := promptTokens + completionTokens
	if key := s.getActiveKey(); key != "" {
		s.counters.Add(key, total)
	}

	return c.JSON(http.StatusOK, callResponse{Result: result, TotalTokens: total})
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedBatchRequest struct {
	Texts []string `json:"texts"`
}

func (s *Server) handleEmbed(c echo.Context) error {
	if _, ok := s.requireAuth(c); !ok {
		return nil
	}
	var req embedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := withAPIKey(c.Request().Context(), s.EmbeddingAPIKey)
	vec, err := s.Forwarder.Embed(ctx, req.Text)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"embedding": vec})
}

func (s *Server) handleEmbedBatch(c echo.Context) error {
	if _, ok := s.requireAuth(c); !ok {
		return nil
	}
	var req embedBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := withAPIKey(c.Request().Context(), s.EmbeddingAPIKey)
	out := make([][]float64, len(req.Texts))
	for i, text := range req.Texts {
		vec, err := s.Forwarder.Embed(ctx, text)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		out[i] = vec
	}
	return c.JSON(http.StatusOK, map[string]any{"embeddings": out})
}
