package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/quantchat/internal/inference"
	"github.com/samcharles93/quantchat/internal/logger"
	"github.com/samcharles93/quantchat/internal/logits"
	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/quant"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

// Defaults seed every new session; request fields override them.
type Defaults struct {
	Model     string
	Quantized bool
	Sampler   logits.Config
	Session   inference.Config
}

func DefaultDefaults() Defaults {
	return Defaults{
		Model:     model.DefaultModelID,
		Quantized: true,
		Sampler:   logits.DefaultConfig(),
		Session:   inference.DefaultConfig(),
	}
}

type Server struct {
	store    *SessionStore
	provider ModelProvider
	tok      tokenizer.Tokenizer
	defaults Defaults
	log      logger.Logger
	clock    func() time.Time
}

func NewServer(provider ModelProvider, tok tokenizer.Tokenizer, defaults Defaults, log logger.Logger) *Server {
	return &Server{
		store:    NewSessionStore(),
		provider: provider,
		tok:      tok,
		defaults: defaults,
		log:      logger.OrDiscard(log).With("component", "api"),
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/models", s.handleListModels)

	e.POST("/v1/sessions", s.handleCreateSession)
	e.GET("/v1/sessions/:id", s.handleGetSession)
	e.DELETE("/v1/sessions/:id", s.handleDeleteSession)
	e.POST("/v1/sessions/:id/messages", s.handleCreateMessage)
	e.GET("/v1/sessions/:id/transcript", s.handleGetTranscript)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
	})
}

func (s *Server) handleListModels(c *echo.Context) error {
	models, err := s.provider.Models()
	if err != nil {
		return writeServerError(c, err.Error())
	}
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: models})
}

func (s *Server) handleCreateSession(c *echo.Context) error {
	req, err := decodeJSON[CreateSessionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	samplerCfg, sessCfg, quantized, err := s.sessionConfig(req)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = s.defaults.Model
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	scorer, err := s.provider.Scorer(ctx, modelID, quantized)
	if err != nil {
		return s.writeModelError(c, err)
	}
	sampler, err := logits.NewSampler(samplerCfg)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	id := newSessionID()
	sess, err := inference.NewSession(scorer, sampler, s.tok, sessCfg, s.log.With("session", id))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	entry := &sessionEntry{
		id:        id,
		created:   s.clock(),
		quantized: quantized,
		topK:      samplerCfg.TopK,
		topP:      samplerCfg.TopP,
		session:   sess,
	}
	s.store.put(entry)
	s.log.Info("session created", "session", id, "model", sess.ModelName(), "quantized", quantized)
	return c.JSON(http.StatusCreated, sessionResponse(entry))
}

// sessionConfig overlays req on the server defaults and validates the result.
func (s *Server) sessionConfig(req CreateSessionRequest) (logits.Config, inference.Config, bool, error) {
	samplerCfg := s.defaults.Sampler
	sessCfg := s.defaults.Session
	quantized := s.defaults.Quantized

	if req.Quantized != nil {
		quantized = *req.Quantized
	}
	if req.TopK != nil {
		samplerCfg.TopK = *req.TopK
	}
	if req.TopP != nil {
		samplerCfg.TopP = *req.TopP
	}
	if req.Seed != nil {
		samplerCfg.Seed = *req.Seed
	}
	if req.Rounds != nil {
		sessCfg.Rounds = *req.Rounds
	}
	if req.MaxLength != nil {
		sessCfg.MaxLength = *req.MaxLength
	}
	if req.MaxNewTokens != nil {
		sessCfg.MaxNewTokens = *req.MaxNewTokens
	}
	if req.Policy != "" {
		sessCfg.Policy = inference.Policy(req.Policy)
	}
	if sessCfg.Policy == inference.PolicySlide && sessCfg.MaxNewTokens == 0 {
		sessCfg.MaxNewTokens = min(inference.DefaultSlideNewTokens, sessCfg.MaxLength/2)
	}
	sessCfg.Label = "fp32"
	if quantized {
		sessCfg.Label = "int8"
	}

	if err := samplerCfg.Validate(); err != nil {
		return samplerCfg, sessCfg, quantized, newInvalidRequest(err.Error())
	}
	if err := sessCfg.Validate(); err != nil {
		return samplerCfg, sessCfg, quantized, newInvalidRequest(err.Error())
	}
	return samplerCfg, sessCfg, quantized, nil
}

func (s *Server) handleGetSession(c *echo.Context) error {
	entry, ok := s.store.get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "session not found")
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return c.JSON(http.StatusOK, sessionResponse(entry))
}

func (s *Server) handleDeleteSession(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "session not found")
	}
	s.log.Info("session deleted", "session", id)
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "session.deleted", Deleted: true})
}

func (s *Server) handleGetTranscript(c *echo.Context) error {
	entry, ok := s.store.get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "session not found")
	}
	entry.mu.Lock()
	t := entry.session.Transcript()
	entry.mu.Unlock()
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleCreateMessage(c *echo.Context) error {
	id := c.Param("id")
	entry, ok := s.store.get(id)
	if !ok {
		return writeNotFound(c, "session not found")
	}
	req, err := decodeJSON[MessageRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Content == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "content is required", "content", "")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	round, err := entry.session.Submit(c.Request().Context(), req.Content)
	if err != nil {
		return s.writeRoundError(c, id, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{
		ID:        newRoundID(),
		Object:    "session.message",
		SessionID: id,
		Round:     round.Index,
		Content:   round.Text,
		Finish:    round.Finish,
		Truncated: round.Truncated,
		Evicted:   round.Evicted,
		State:     entry.session.State().String(),
		Usage: Usage{
			InputTokens:   round.InputTokens,
			OutputTokens:  round.Generated,
			HistoryTokens: round.HistoryLen,
		},
	})
}

func (s *Server) writeRoundError(c *echo.Context, id string, err error) error {
	switch {
	case errors.Is(err, inference.ErrSessionComplete):
		return writeConflict(c, err.Error(), "session_complete")
	case errors.Is(err, inference.ErrContextFull):
		return writeConflict(c, err.Error(), "context_full")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeError(c, http.StatusServiceUnavailable, "server_error", err.Error(), "", "cancelled")
	case errors.Is(err, logits.ErrDegenerate):
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "sampling_degenerate")
	case errors.Is(err, inference.ErrScorer):
		s.log.Error("scorer failed", "session", id, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "scorer_failure")
	default:
		s.log.Error("round failed", "session", id, "error", err)
		return writeServerError(c, err.Error())
	}
}

func (s *Server) writeModelError(c *echo.Context, err error) error {
	var ce *quant.ConversionError
	switch {
	case errors.Is(err, model.ErrUnknownModel):
		return writeError(c, http.StatusNotFound, "not_found_error", err.Error(), "model", "model_not_found")
	case errors.As(err, &ce):
		s.log.Error("conversion failed", "stage", ce.Stage, "layer", ce.Layer, "error", ce.Err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "conversion_failed")
	default:
		return writeServerError(c, err.Error())
	}
}

func sessionResponse(e *sessionEntry) SessionResponse {
	cfg := e.session.Config()
	return SessionResponse{
		ID:         e.id,
		Object:     "session",
		CreatedAt:  e.created.Unix(),
		Model:      e.session.ModelName(),
		Quantized:  e.quantized,
		State:      e.session.State().String(),
		Rounds:     e.session.Rounds(),
		MaxRounds:  cfg.Rounds,
		HistoryLen: e.session.History().Len(),
		MaxLength:  cfg.MaxLength,
		Policy:     string(cfg.Policy),
		TopK:       e.topK,
		TopP:       e.topP,
	}
}
