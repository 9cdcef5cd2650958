package http

import (
	"github.com/gin-gonic/gin"

	"github.com/layer-3/wconnect"
	"github.com/layer-3/wconnect/explorer"
)

// SetupRouter sets up the Gin router
func SetupRouter(client *wconnect.Client, exp *explorer.Client, web3URL string) *gin.Engine {
	router := gin.Default()

	// Create handlers
	handlers := NewWalletHandlers(client, exp, web3URL)

	// Pairing routes
	pairing := router.Group("/pairing")
	{
		pairing.GET("", handlers.Pairing)
		pairing.GET("/qr", handlers.PairingQR)
	}

	// Session routes
	session := router.Group("/session")
	{
		session.GET("", handlers.Session)
		session.POST("/ensure", handlers.EnsureSession)
	}

	// Wallet operation routes
	wallet := router.Group("/wallet")
	{
		wallet.POST("/sign", handlers.PersonalSign)
		wallet.POST("/transfer", handlers.Transfer)
		wallet.POST("/token/transfer", handlers.TokenTransfer)
		wallet.POST("/token/approve", handlers.TokenApprove)
	}

	// Explorer routes
	explorerGroup := router.Group("/explorer")
	{
		explorerGroup.GET("/tokens", handlers.Tokens)
		explorerGroup.GET("/transfers", handlers.TokenTransfers)
	}

	return router
}
