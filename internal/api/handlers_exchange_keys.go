package api

import (
	"net/http"

	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/exchangekeys"

	"github.com/gin-gonic/gin"
)

// handleListExchangeKeys returns the caller's keys, masked
func (s *Server) handleListExchangeKeys(c *gin.Context) {
	keys, err := s.deps.ExchangeKeys.List(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list exchange keys")
		return
	}
	successResponse(c, keys)
}

// handleCreateExchangeKey stores a new credential pair
func (s *Server) handleCreateExchangeKey(c *gin.Context) {
	var req exchangekeys.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := s.deps.ExchangeKeys.Create(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err, "create exchange key")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": key})
}

// handleDeleteExchangeKey removes a key and its secret
func (s *Server) handleDeleteExchangeKey(c *gin.Context) {
	if err := s.deps.ExchangeKeys.Delete(c.Request.Context(), auth.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete exchange key")
		return
	}
	successResponse(c, gin.H{"deleted": true})
}

// handleTestExchangeKey checks the key against the exchange
func (s *Server) handleTestExchangeKey(c *gin.Context) {
	check, err := s.deps.ExchangeKeys.Test(c.Request.Context(), auth.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "test exchange key")
		return
	}
	successResponse(c, check)
}
