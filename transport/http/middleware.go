package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/service"
)

const (
	claimsKey    = "sessionClaims"
	ownershipKey = "ownership"
)

// statusFor maps an error category to an HTTP status code
func statusFor(category core.Category) int {
	switch category {
	case core.CategoryValidation:
		return http.StatusBadRequest
	case core.CategoryAuthentication:
		return http.StatusUnauthorized
	case core.CategoryAuthorization:
		return http.StatusForbidden
	case core.CategoryNotFound:
		return http.StatusNotFound
	case core.CategoryUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error envelope. The wrapped cause is only
// exposed when debug is set.
func abortWithError(c *gin.Context, err error, debug bool) {
	e := core.AsError(err)
	body := gin.H{
		"success": false,
		"error":   e.Kind,
		"message": e.Message,
	}
	if debug && e.Err != nil {
		body["detail"] = e.Err.Error()
	}
	c.AbortWithStatusJSON(statusFor(e.Category), body)
}

func setClaims(c *gin.Context, claims *core.SessionClaims) {
	c.Set(claimsKey, claims)
	c.Request = c.Request.WithContext(core.ContextWithClaims(c.Request.Context(), claims))
}

// ClaimsFrom returns the claims attached by RequireAuth or OptionalAuth
func ClaimsFrom(c *gin.Context) (*core.SessionClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*core.SessionClaims)
	return claims, ok && claims != nil
}

// RequireAuth creates middleware that rejects requests without a valid bearer credential
func RequireAuth(gateway *service.Gateway, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := gateway.AuthenticateHeader(c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, err, debug)
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid bearer credential is present and
// otherwise lets the request through anonymously
func OptionalAuth(gateway *service.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := gateway.AuthenticateHeader(c.GetHeader("Authorization")); err == nil {
			setClaims(c, claims)
		}
		c.Next()
	}
}

// RequireOwnership must run after RequireAuth. It admits the request only
// when the authenticated wallet holds :tokenId of :contractAddress.
func RequireOwnership(oracle ports.OwnershipOracle, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abortWithError(c, core.ErrNoTokenProvided, debug)
			return
		}

		tokenID, ok := core.ParseTokenID(c.Param("tokenId"))
		if !ok {
			abortWithError(c, core.ErrOwnershipQueryFailed.
				WithMessage("token id must be a non-negative integer").
				WithCategory(core.CategoryValidation), debug)
			return
		}

		result, err := oracle.VerifyOwnership(c.Request.Context(), claims.WalletAddress, c.Param("contractAddress"), tokenID)
		if err != nil {
			abortWithError(c, err, debug)
			return
		}
		if !result.Owned {
			abortWithError(c, core.ErrTokenNotFound, debug)
			return
		}

		c.Set(ownershipKey, result)
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
