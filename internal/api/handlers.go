package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/chat"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/exchangekeys"
	"tradebot-architect/internal/logging"
	"tradebot-architect/internal/papertrade"
	"tradebot-architect/internal/payments"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// SHARED HELPERS
// ============================================================================

// statusFor maps a service error to the HTTP status the client sees
func statusFor(err error) int {
	var gatewayErr *payments.APIError
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrUnknownModel),
		errors.Is(err, chat.ErrInvalidSession),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, database.ErrInsufficientBalance),
		errors.Is(err, payments.ErrInvalidPayload),
		errors.Is(err, payments.ErrUnknownPlan),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidAddress),
		errors.Is(err, exchangekeys.ErrUnsupportedExchange),
		errors.Is(err, exchangekeys.ErrMissingCredentials),
		errors.Is(err, papertrade.ErrNoConfig),
		errors.Is(err, papertrade.ErrInvalidCount):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, exchangekeys.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrPaymentsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, payments.ErrPayoutFailed), errors.As(err, &gatewayErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server side failures are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, err error, operation string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).WithError(err).Error("Request failed", "operation", operation, "status", status)
		if status == http.StatusInternalServerError {
			errorResponse(c, status, "internal error during "+operation)
			return
		}
	}
	errorResponse(c, status, err.Error())
}

// pagination reads limit/offset query parameters with bounds
func pagination(c *gin.Context, defLimit, maxLimit int) (int, int) {
	limit := defLimit
	offset := 0

	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// ============================================================================
// HEALTH
// ============================================================================

// handleHealth runs every probe concurrently. A failing critical probe makes
// the whole service unhealthy.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := make([]string, len(s.deps.Probes))
	var g errgroup.Group
	for i, p := range s.deps.Probes {
		i, p := i, p
		g.Go(func() error {
			if err := p.Check(ctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	checks := make(gin.H, len(results))
	for i, p := range s.deps.Probes {
		checks[p.Name] = results[i]
		if results[i] != "ok" && p.Critical {
			healthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"auth_enabled": s.authEnabled,
		"checks":       checks,
		"timestamp":    time.Now().UTC(),
	})
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	AIModel   string `json:"ai_model"`
}

// handleChat runs one conversation turn
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := s.deps.Chat.ProcessTurn(c.Request.Context(), chat.TurnRequest{
		UserID:    auth.GetUserID(c),
		SessionID: req.SessionID,
		AIModel:   req.AIModel,
		Message:   req.Message,
	})
	if err != nil {
		respondError(c, err, "chat turn")
		return
	}

	successResponse(c, reply)
}

// handleListSessions returns the caller's recent chat sessions
func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.deps.Chat.Sessions(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list sessions")
		return
	}
	successResponse(c, sessions)
}

// handleGetSession returns one transcript
func (s *Server) handleGetSession(c *gin.Context) {
	sessionID := c.Param("id")
	turns, err := s.deps.Chat.Transcript(c.Request.Context(), auth.GetUserID(c), sessionID)
	if err != nil {
		respondError(c, err, "get session")
		return
	}
	successResponse(c, gin.H{
		"session_id": sessionID,
		"messages":   turns,
	})
}

// handleDeleteSession clears one transcript
func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.deps.Chat.DeleteSession(c.Request.Context(), auth.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete session")
		return
	}
	successResponse(c, gin.H{"deleted": true})
}
