package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_backend/internal/api/middleware"
	"parking_backend/internal/domain"
	"parking_backend/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(ps *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: ps}
}

func canSee(c *gin.Context, userID string) bool {
	if middleware.IsAdmin(c) || userID == middleware.CurrentUserID(c) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	return false
}

// GET /payments/user/:userId
func (h *PaymentHandler) ListByUser(c *gin.Context) {
	userID := c.Param("userId")
	if !canSee(c, userID) {
		return
	}
	payments, err := h.paymentService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Could not list payments")
		return
	}
	c.JSON(http.StatusOK, payments)
}

// GET /payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.paymentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Payment not found")
		return
	}
	if !canSee(c, payment.UserID) {
		return
	}
	c.JSON(http.StatusOK, payment)
}

// GET /payments/:id/receipt
func (h *PaymentHandler) Receipt(c *gin.Context) {
	payment, err := h.paymentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Payment not found")
		return
	}
	if !canSee(c, payment.UserID) {
		return
	}
	receipt, err := h.paymentService.Receipt(c.Request.Context(), payment.ID)
	if err != nil {
		respondError(c, err, "Could not build receipt")
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// GET /payments/stats
func (h *PaymentHandler) Stats(c *gin.Context) {
	var r domain.DateRange
	if err := c.ShouldBindQuery(&r); err != nil {
		badRequest(c, err)
		return
	}
	stats, err := h.paymentService.Stats(c.Request.Context(), r)
	if err != nil {
		respondError(c, err, "Could not compute payment stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// POST /payments/:id/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	var dto domain.RefundPaymentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	payment, err := h.paymentService.Refund(c.Request.Context(), c.Param("id"), dto.Reason)
	if err != nil {
		respondError(c, err, "Could not refund payment")
		return
	}
	c.JSON(http.StatusOK, payment)
}
