package routes

import (
	"github.com/gin-gonic/gin"

	"creditcontrol/internal/handlers"
)

// SetupPositionRoutes sets up all routes related to AMM positions
func SetupPositionRoutes(r *gin.Engine) {
	positions := r.Group("/positions")
	{
		positions.GET("/:token", handlers.GetPosition)
		positions.GET("/:token/price", handlers.GetPoolPrice)
		positions.GET("/:token/rebalances", handlers.ListRebalances)
		positions.POST("/:token/rebalance", handlers.Rebalance)
		positions.POST("/:token/collect-fees", handlers.CollectFees)
		positions.POST("/:token/remove-liquidity", handlers.RemoveLiquidity)
	}

	adapter := r.Group("/adapter")
	{
		adapter.PUT("/authorized-callers", handlers.SetAuthorizedCaller)
		adapter.POST("/emergency-withdraw", handlers.AdapterEmergencyWithdraw)
	}

	r.GET("/ws/prices", handlers.PriceStream)
}
