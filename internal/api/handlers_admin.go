package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// handleAdminListPayments lists payments of every user, optionally filtered
// by status
func (s *Server) handleAdminListPayments(c *gin.Context) {
	limit, offset := pagination(c, 50, 500)
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))

	list, err := s.deps.Payments.AllPayments(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err, "admin list payments")
		return
	}

	successResponse(c, gin.H{
		"payments": list,
		"limit":    limit,
		"offset":   offset,
	})
}
