package handler

import (
	"crypto-payment-gateway/internal/adapter/http/dto"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/pkg/apperror"
	"crypto-payment-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AddressHandler handles deposit address issuance.
type AddressHandler struct {
	addressSvc ports.AddressService
}

// NewAddressHandler creates a new AddressHandler.
func NewAddressHandler(addressSvc ports.AddressService) *AddressHandler {
	return &AddressHandler{addressSvc: addressSvc}
}

// IssueAddress handles POST /api/v1/addresses.
func (h *AddressHandler) IssueAddress(c *gin.Context) {
	var req dto.IssueAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	// Binding already checked the uuid format.
	walletID := uuid.MustParse(req.WalletID)
	merchantID := uuid.MustParse(req.MerchantID)

	addr, err := h.addressSvc.IssueAddress(c.Request.Context(), walletID, merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromAddress(addr))
}
