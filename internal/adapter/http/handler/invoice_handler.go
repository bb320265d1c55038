package handler

import (
	"time"

	"crypto-payment-gateway/internal/adapter/http/dto"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/pkg/apperror"
	"crypto-payment-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceHandler handles invoice registration, reads and cancellation.
type InvoiceHandler struct {
	invoiceSvc ports.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoiceSvc ports.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceSvc: invoiceSvc}
}

// CreateInvoice handles POST /api/v1/invoices.
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount is not a valid decimal"))
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		response.Error(c, apperror.Validation("expires_at must be RFC 3339"))
		return
	}

	invoice, err := h.invoiceSvc.RegisterInvoice(c.Request.Context(), ports.RegisterInvoiceRequest{
		MerchantID: uuid.MustParse(req.MerchantID),
		AddressID:  uuid.MustParse(req.AddressID),
		Amount:     amount,
		Currency:   req.Currency,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromInvoice(invoice))
}

// GetInvoice handles GET /api/v1/invoices/:id.
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid invoice id"))
		return
	}

	invoice, err := h.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromInvoice(invoice))
}

// CancelInvoice handles POST /api/v1/invoices/:id/cancel.
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid invoice id"))
		return
	}

	invoice, err := h.invoiceSvc.CancelInvoice(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromInvoice(invoice))
}
