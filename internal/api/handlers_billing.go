package api

import (
	"io"
	"net/http"

	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/logging"
	"tradebot-architect/internal/payments"

	"github.com/gin-gonic/gin"
)

const (
	// signatureHeader carries the gateway's HMAC of the IPN body
	signatureHeader = "x-nowpayments-sig"
	maxWebhookBody  = 64 << 10
)

// handleGetPlans returns the subscription catalogue
func (s *Server) handleGetPlans(c *gin.Context) {
	successResponse(c, payments.Plans())
}

// handleCreateInvoice starts a subscription purchase or balance top-up
func (s *Server) handleCreateInvoice(c *gin.Context) {
	var req payments.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := s.deps.Payments.CreateInvoice(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err, "create invoice")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": payment})
}

// handlePaymentWebhook receives gateway IPN callbacks. It is unauthenticated;
// the body signature is the only proof of origin.
func (s *Server) handlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "failed to read body")
		return
	}

	payment, err := s.deps.Payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader))
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			logging.FromContext(c.Request.Context()).Warn("Rejected payment webhook", "client_ip", c.ClientIP())
		}
		respondError(c, err, "payment webhook")
		return
	}

	successResponse(c, gin.H{
		"order_id": payment.OrderID,
		"status":   payment.Status,
	})
}

// handleListPayments returns the caller's invoices
func (s *Server) handleListPayments(c *gin.Context) {
	list, err := s.deps.Payments.Payments(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list payments")
		return
	}
	successResponse(c, list)
}

// handleGetSubscription returns the caller's current plan
func (s *Server) handleGetSubscription(c *gin.Context) {
	sub, err := s.deps.Payments.Subscription(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "get subscription")
		return
	}

	resp := gin.H{"subscription": sub}
	if plan, ok := payments.PlanByID(sub.Plan); ok {
		resp["plan"] = plan
	}
	successResponse(c, resp)
}

// handleGetBalance returns the caller's USD balance
func (s *Server) handleGetBalance(c *gin.Context) {
	balance, err := s.deps.Payments.Balance(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "get balance")
		return
	}
	successResponse(c, gin.H{
		"balance_usd": balance.StringFixed(2),
	})
}

// handleCreateWithdrawal debits the balance and requests a crypto payout
func (s *Server) handleCreateWithdrawal(c *gin.Context) {
	var req payments.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	w, err := s.deps.Payments.RequestWithdrawal(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err, "create withdrawal")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": w})
}

// handleListWithdrawals returns the caller's withdrawals
func (s *Server) handleListWithdrawals(c *gin.Context) {
	list, err := s.deps.Payments.Withdrawals(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list withdrawals")
		return
	}
	successResponse(c, list)
}
