package routes

import (
	"github.com/gin-gonic/gin"

	"creditcontrol/internal/handlers"
)

// SetupCreditLineRoutes sets up all routes related to live credit lines
func SetupCreditLineRoutes(r *gin.Engine) {
	lines := r.Group("/credit-lines")
	{
		lines.GET("", handlers.ListCreditLines)
		lines.GET("/:token", handlers.GetCreditLineStatus)
		lines.GET("/:token/balances/:holder", handlers.GetBalance)
		lines.GET("/:token/transfers", handlers.ListTransfers)
		lines.GET("/:token/validate-price", handlers.ValidatePrice)
		lines.POST("/:token/transfer", handlers.Transfer)
		lines.POST("/:token/withdraw", handlers.WithdrawCredit)
		lines.POST("/:token/accrue", handlers.AccrueInterest)
		lines.PUT("/:token/price-validation", handlers.SetPriceValidation)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/ledger/emergency-withdraw", handlers.LedgerEmergencyWithdraw)
		admin.GET("/withdrawals", handlers.ListAdminWithdrawals)
	}
}
