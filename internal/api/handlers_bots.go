package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/logging"
	"tradebot-architect/internal/papertrade"

	"github.com/gin-gonic/gin"
)

// marketplacePreviewTrades is the paper run size shown on marketplace cards
const marketplacePreviewTrades = 20

func (s *Server) publish(e events.Event) {
	if s.deps.EventBus != nil {
		s.deps.EventBus.Publish(e)
	}
}

// ============================================================================
// BOT HANDLERS
// ============================================================================

// handleListBots returns the caller's bots
func (s *Server) handleListBots(c *gin.Context) {
	bots, err := s.deps.Bots.ListBots(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list bots")
		return
	}
	successResponse(c, bots)
}

// handleCreateBot saves a client supplied specification, e.g. one the user
// edited after the chat finalized it
func (s *Server) handleCreateBot(c *gin.Context) {
	var req struct {
		BotConfig json.RawMessage `json:"bot_config"`
		SessionID string          `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.BotConfig) == 0 {
		errorResponse(c, http.StatusBadRequest, "bot_config is required")
		return
	}

	spec, err := conversation.ParseSpecification(req.BotConfig)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.GetUserID(c)
	bot, err := s.deps.Bots.CreateBot(c.Request.Context(), userID, strings.TrimSpace(req.SessionID), spec)
	if err != nil {
		respondError(c, err, "create bot")
		return
	}

	logging.BotContext(userID, bot.ID).Info("Bot created from API", "name", bot.Name)
	s.publish(events.BotCreated(userID, bot.ID, bot.Name, req.SessionID))

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": bot})
}

// handleGetBot returns one bot of the caller
func (s *Server) handleGetBot(c *gin.Context) {
	bot, err := s.deps.Bots.GetBot(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "get bot")
		return
	}
	successResponse(c, bot)
}

// handleUpdateBotStatus switches a bot between active, paused and stopped
func (s *Server) handleUpdateBotStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "status is required")
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !database.ValidBotStatus(status) {
		errorResponse(c, http.StatusBadRequest, "status must be one of active, paused, stopped")
		return
	}

	userID := auth.GetUserID(c)
	bot, err := s.deps.Bots.UpdateBotStatus(c.Request.Context(), userID, c.Param("id"), status)
	if err != nil {
		respondError(c, err, "update bot status")
		return
	}

	s.publish(events.BotStatusChanged(userID, bot.ID, bot.Status))
	successResponse(c, bot)
}

// handlePublishBot lists or unlists a bot on the marketplace
func (s *Server) handlePublishBot(c *gin.Context) {
	req := struct {
		Public *bool `json:"public"`
	}{}
	// An empty body means publish
	_ = c.ShouldBindJSON(&req)
	public := req.Public == nil || *req.Public

	bot, err := s.deps.Bots.SetBotPublic(c.Request.Context(), auth.GetUserID(c), c.Param("id"), public)
	if err != nil {
		respondError(c, err, "publish bot")
		return
	}
	successResponse(c, bot)
}

// handleDeleteBot removes a bot and its paper trades
func (s *Server) handleDeleteBot(c *gin.Context) {
	if err := s.deps.Bots.DeleteBot(c.Request.Context(), auth.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete bot")
		return
	}
	successResponse(c, gin.H{"deleted": true})
}

// ============================================================================
// PAPER TRADING HANDLERS
// ============================================================================

// handleRunPaperTrades simulates a fresh paper trade history
func (s *Server) handleRunPaperTrades(c *gin.Context) {
	var req struct {
		Count int `json:"count"`
	}
	// Body is optional
	_ = c.ShouldBindJSON(&req)
	if req.Count == 0 {
		req.Count = papertrade.DefaultTradeCount
	}

	report, err := s.deps.PaperTrades.Run(c.Request.Context(), auth.GetUserID(c), c.Param("id"), req.Count)
	if err != nil {
		respondError(c, err, "run paper trades")
		return
	}
	successResponse(c, report)
}

// handleGetPaperTrades returns the stored paper trade history
func (s *Server) handleGetPaperTrades(c *gin.Context) {
	report, err := s.deps.PaperTrades.Get(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "get paper trades")
		return
	}
	successResponse(c, report)
}

// handleClearPaperTrades drops the paper trade history
func (s *Server) handleClearPaperTrades(c *gin.Context) {
	n, err := s.deps.PaperTrades.Clear(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "clear paper trades")
		return
	}
	successResponse(c, gin.H{"deleted": n})
}

// ============================================================================
// MARKETPLACE HANDLERS
// ============================================================================

type marketplaceEntry struct {
	*database.Bot
	Preview *papertrade.Summary `json:"paper_preview,omitempty"`
}

// handleListMarketplace returns public bots with a paper trading preview
func (s *Server) handleListMarketplace(c *gin.Context) {
	ctx := c.Request.Context()
	limit, offset := pagination(c, 20, 100)
	strategy := strings.TrimSpace(c.Query("strategy"))

	bots, err := s.deps.Bots.ListPublicBots(ctx, strategy, limit, offset)
	if err != nil {
		respondError(c, err, "list marketplace")
		return
	}

	var previews map[string]papertrade.Summary
	if s.deps.PaperTrades != nil {
		previews, err = s.deps.PaperTrades.Previews(ctx, bots, marketplacePreviewTrades)
		if err != nil {
			// Listing still works without previews
			log().WithError(err).Warn("Marketplace previews failed")
		}
	}

	entries := make([]marketplaceEntry, 0, len(bots))
	for _, b := range bots {
		e := marketplaceEntry{Bot: b}
		if p, ok := previews[b.ID]; ok {
			p := p
			e.Preview = &p
		}
		entries = append(entries, e)
	}

	successResponse(c, gin.H{
		"bots":   entries,
		"limit":  limit,
		"offset": offset,
	})
}

// handleCloneBot copies a public bot into the caller's account
func (s *Server) handleCloneBot(c *gin.Context) {
	userID := auth.GetUserID(c)
	bot, err := s.deps.Bots.CloneBot(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "clone bot")
		return
	}

	sessionID := ""
	if bot.SessionID != nil {
		sessionID = *bot.SessionID
	}
	s.publish(events.BotCreated(userID, bot.ID, bot.Name, sessionID))

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": bot})
}
