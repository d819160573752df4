package routes

import (
	"github.com/gin-gonic/gin"

	"creditcontrol/internal/handlers"
)

// SetupCreationRoutes sets up all routes related to the credit line creation saga
func SetupCreationRoutes(r *gin.Engine) {
	creation := r.Group("/creations")
	{
		creation.POST("", handlers.DeployAndInitialize)
		creation.POST("/complete", handlers.CreateCreditLine)
		creation.GET("/:creation_id", handlers.GetCreationStatus)
		creation.POST("/:creation_id/mint", handlers.MintAndApprove)
		creation.POST("/:creation_id/pool", handlers.CreatePool)
		creation.POST("/:creation_id/finalize", handlers.FinalizeCreation)
	}
}
