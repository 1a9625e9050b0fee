package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/service"
)

// AuthHandlers contains HTTP handlers for auth and token endpoints
type AuthHandlers struct {
	authService *service.AuthService
	gateway     *service.Gateway
	oracle      ports.OwnershipOracle
	debug       bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, gateway *service.Gateway, oracle ports.OwnershipOracle, debug bool) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		gateway:     gateway,
		oracle:      oracle,
		debug:       debug,
	}
}

// bindJSON decodes the body; an empty body leaves req zero-valued
func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func userJSON(identity *core.Identity) gin.H {
	return gin.H{
		"id":            identity.ID,
		"walletAddress": identity.WalletAddress,
		"name":          identity.Name,
	}
}

func amount(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

// Nonce handles POST /api/auth/nonce
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	if err := bindJSON(c, &req); err != nil {
		abortWithError(c, core.ErrInvalidRequest.WithCause(err), h.debug)
		return
	}
	h.issueNonce(c, req.WalletAddress)
}

// NonceByPath handles GET /api/auth/nonce/:walletAddress
func (h *AuthHandlers) NonceByPath(c *gin.Context) {
	h.issueNonce(c, c.Param("walletAddress"))
}

func (h *AuthHandlers) issueNonce(c *gin.Context, wallet string) {
	challenge, message, err := h.authService.RequestNonce(c.Request.Context(), wallet)
	if err != nil {
		abortWithError(c, err, h.debug)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"nonce":     challenge.Nonce,
		"message":   message,
		"expiresAt": challenge.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// VerifySignature handles POST /api/auth/verify-signature
func (h *AuthHandlers) VerifySignature(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		Signature     string `json:"signature"`
		Nonce         string `json:"nonce"`
	}
	if err := bindJSON(c, &req); err != nil {
		abortWithError(c, core.ErrMissingParameters.WithCause(err), h.debug)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.WalletAddress, req.Signature, req.Nonce)
	if err != nil {
		abortWithError(c, err, h.debug)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     result.Token,
		"tokenType": "Bearer",
		"expiresAt": result.ExpiresAt.UTC().Format(time.RFC3339),
		"user":      userJSON(result.Identity),
	})
}

// Me handles GET /api/auth/me. Any header problem is reported as a missing token.
func (h *AuthHandlers) Me(c *gin.Context) {
	claims, err := h.gateway.AuthenticateHeader(c.GetHeader("Authorization"))
	if err != nil {
		switch core.KindOf(err) {
		case core.KindNoAuthorizationHeader, core.KindInvalidTokenFormat:
			err = core.ErrNoTokenProvided
		}
		abortWithError(c, err, h.debug)
		return
	}

	identity, err := h.authService.CurrentIdentity(c.Request.Context(), claims)
	if err != nil {
		abortWithError(c, err, h.debug)
		return
	}

	user := userJSON(identity)
	user["email"] = identity.Email
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user,
	})
}

// walletOrCaller falls back to the authenticated wallet when none was given
func walletOrCaller(c *gin.Context, wallet string) string {
	if wallet != "" {
		return wallet
	}
	if claims, ok := ClaimsFrom(c); ok {
		return claims.WalletAddress
	}
	return ""
}

// tokenIDParam accepts a token id as a JSON number or a decimal or 0x hex
// string. Anything else is kept verbatim and rejected by ParseTokenID.
type tokenIDParam string

func (p *tokenIDParam) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = tokenIDParam(s)
	default:
		*p = tokenIDParam(data)
	}
	return nil
}

func invalidTokenID(base *core.Error) *core.Error {
	return base.WithMessage("token id must be a non-negative integer").WithCategory(core.CategoryValidation)
}

// VerifyOwnership handles POST /api/token/verify
func (h *AuthHandlers) VerifyOwnership(c *gin.Context) {
	var req struct {
		WalletAddress   string       `json:"walletAddress"`
		ContractAddress string       `json:"contractAddress"`
		TokenID         tokenIDParam `json:"tokenId"`
	}
	if err := bindJSON(c, &req); err != nil {
		abortWithError(c, core.ErrMissingRequiredFields.WithCause(err), h.debug)
		return
	}
	wallet := walletOrCaller(c, req.WalletAddress)
	if wallet == "" || req.ContractAddress == "" || req.TokenID == "" {
		abortWithError(c, core.ErrMissingRequiredFields, h.debug)
		return
	}
	tokenID, ok := core.ParseTokenID(string(req.TokenID))
	if !ok {
		abortWithError(c, invalidTokenID(core.ErrOwnershipQueryFailed), h.debug)
		return
	}

	result, err := h.oracle.VerifyOwnership(c.Request.Context(), wallet, req.ContractAddress, tokenID)
	if err != nil {
		abortWithError(c, err, h.debug)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"walletAddress":   result.WalletAddress,
		"contractAddress": result.ContractAddress,
		"tokenId":         result.TokenID.String(),
		"isOwner":         result.Owned,
		"balance":         amount(result.Balance),
	})
}

// VerifyBatch handles POST /api/token/verify-batch
func (h *AuthHandlers) VerifyBatch(c *gin.Context) {
	var req struct {
		WalletAddress   string         `json:"walletAddress"`
		ContractAddress string         `json:"contractAddress"`
		TokenIDs        []tokenIDParam `json:"tokenIds"`
	}
	if err := bindJSON(c, &req); err != nil {
		abortWithError(c, core.ErrMissingRequiredFields.WithCause(err), h.debug)
		return
	}
	wallet := walletOrCaller(c, req.WalletAddress)
	if wallet == "" || req.ContractAddress == "" || req.TokenIDs == nil {
		abortWithError(c, core.ErrMissingRequiredFields, h.debug)
		return
	}

	tokenIDs := make([]*big.Int, len(req.TokenIDs))
	for i, raw := range req.TokenIDs {
		id, ok := core.ParseTokenID(string(raw))
		if !ok {
			abortWithError(c, invalidTokenID(core.ErrBatchQueryFailed), h.debug)
			return
		}
		tokenIDs[i] = id
	}

	results, err := h.oracle.VerifyBatch(c.Request.Context(), wallet, req.ContractAddress, tokenIDs)
	if err != nil {
		abortWithError(c, err, h.debug)
		return
	}

	out := make([]gin.H, len(results))
	for i, r := range results {
		out[i] = gin.H{
			"tokenId": r.TokenID.String(),
			"isOwner": r.Owned,
			"balance": amount(r.Balance),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"walletAddress":   core.CanonicalAddress(wallet),
		"contractAddress": core.CanonicalAddress(req.ContractAddress),
		"results":         out,
	})
}

// VerifyTicket handles POST /api/token/verify-ticket
func (h *AuthHandlers) VerifyTicket(c *gin.Context) {
	var req struct {
		WalletAddress        string       `json:"walletAddress"`
		EventContractAddress string       `json:"eventContractAddress"`
		TicketTokenID        tokenIDParam `json:"ticketTokenId"`
	}
	if err := bindJSON(c, &req); err != nil {
		abortWithError(c, core.ErrMissingRequiredFields.WithCause(err), h.debug)
		return
	}
	wallet := walletOrCaller(c, req.WalletAddress)
	if wallet == "" || req.EventContractAddress == "" || req.TicketTokenID == "" {
		abortWithError(c, core.ErrMissingRequiredFields, h.debug)
		return
	}
	ticketID, ok := core.ParseTokenID(string(req.TicketTokenID))
	if !ok {
		abortWithError(c, invalidTokenID(core.ErrTicketQueryFailed), h.debug)
		return
	}

	result, err := h.oracle.VerifyTicket(c.Request.Context(), wallet, req.EventContractAddress, ticketID)
	if err != nil {
		abortWithError(c, err, h.debug)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"walletAddress":        result.WalletAddress,
		"eventContractAddress": result.EventContract,
		"ticketTokenId":        result.TicketTokenID.String(),
		"isValidTicket":        result.IsValidTicket,
		"ticketBalance":        amount(result.TicketBalance),
	})
}

// Authorize runs behind RequireAuth and RequireOwnership
func (h *AuthHandlers) Authorize(c *gin.Context) {
	claims, _ := ClaimsFrom(c)
	v, exists := c.Get(ownershipKey)
	if !exists || claims == nil {
		abortWithError(c, core.ErrInternal, h.debug)
		return
	}
	result := v.(*core.OwnershipResult)

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"authorized":      true,
		"walletAddress":   claims.WalletAddress,
		"contractAddress": result.ContractAddress,
		"tokenId":         result.TokenID.String(),
		"balance":         amount(result.Balance),
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Backend is running"})
}
