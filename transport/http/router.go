package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/service"
)

// Dependencies are the collaborators the router mounts
type Dependencies struct {
	AuthService *service.AuthService
	Gateway     *service.Gateway
	Oracle      ports.OwnershipOracle
	Logger      *slog.Logger
	Debug       bool

	// Optional
	Metrics http.Handler
	Socket  http.Handler
}

// SetupRouter sets up the Gin router
func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(deps.AuthService, deps.Gateway, deps.Oracle, deps.Debug)

	api := router.Group("/api")
	api.GET("/health", handlers.Health)

	// Auth routes
	auth := api.Group("/auth")
	{
		auth.POST("/nonce", handlers.Nonce)
		auth.GET("/nonce/:walletAddress", handlers.NonceByPath)
		auth.POST("/verify-signature", handlers.VerifySignature)
		auth.POST("/verify", handlers.VerifySignature)
		auth.GET("/me", handlers.Me)
	}

	// Ownership lookups; a bearer credential only supplies the default wallet
	token := api.Group("/token")
	token.Use(OptionalAuth(deps.Gateway))
	{
		token.POST("/verify", handlers.VerifyOwnership)
		token.POST("/verify-batch", handlers.VerifyBatch)
		token.POST("/verify-ticket", handlers.VerifyTicket)
	}

	// Token-gated resources
	api.GET("/authorize/:contractAddress/:tokenId",
		RequireAuth(deps.Gateway, deps.Debug),
		RequireOwnership(deps.Oracle, deps.Debug),
		handlers.Authorize,
	)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Socket != nil {
		router.GET("/ws", gin.WrapH(deps.Socket))
	}

	return router
}
