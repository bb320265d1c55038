package handler

import (
	"crypto-payment-gateway/internal/adapter/http/dto"
	"crypto-payment-gateway/internal/core/domain"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/pkg/apperror"
	"crypto-payment-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// EventHandler receives payment notifications from the chain monitor.
type EventHandler struct {
	paymentSvc ports.PaymentService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(paymentSvc ports.PaymentService) *EventHandler {
	return &EventHandler{paymentSvc: paymentSvc}
}

// HandleEvent handles POST /api/v1/events. Replays return the recorded
// receipt with the duplicate flag set; they are not errors.
func (h *EventHandler) HandleEvent(c *gin.Context) {
	var req dto.PaymentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount is not a valid decimal"))
		return
	}

	receipt, err := h.paymentSvc.HandlePaymentEvent(c.Request.Context(), &domain.PaymentEvent{
		Chain:           req.Chain,
		Address:         req.Address,
		Amount:          amount,
		TxHash:          req.TxHash,
		Confirmations:   req.Confirmations,
		ContractAddress: req.ContractAddress,
		LogIndex:        req.LogIndex,
		BlockHeight:     req.BlockHeight,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromReceipt(receipt))
}
