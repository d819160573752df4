package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"creditcontrol/internal/engine"
)

func bindCreationParams(c *gin.Context) (engine.CreditLineParams, bool) {
	var request CreditLineRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return engine.CreditLineParams{}, false
	}
	underlying, ok := bodyAddress(c, request.UnderlyingAsset, "underlying_asset")
	if !ok {
		return engine.CreditLineParams{}, false
	}
	borrower, ok := bodyAddress(c, request.Borrower, "borrower")
	if !ok {
		return engine.CreditLineParams{}, false
	}
	creditLimit, ok := bodyAmount(c, request.CreditLimit, "credit_limit")
	if !ok {
		return engine.CreditLineParams{}, false
	}
	initialLiquidity, ok := bodyAmount(c, request.InitialLiquidity, "initial_liquidity")
	if !ok {
		return engine.CreditLineParams{}, false
	}
	return engine.CreditLineParams{
		Name:             request.Name,
		Symbol:           request.Symbol,
		UnderlyingAsset:  underlying,
		CreditLimit:      creditLimit,
		ApyBps:           request.ApyBps,
		Borrower:         borrower,
		InitialLiquidity: initialLiquidity,
	}, true
}

func pathCreationID(c *gin.Context) (common.Hash, bool) {
	raw := c.Param("creation_id")
	if len(raw) != 66 || raw[:2] != "0x" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid creation id"})
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

// DeployAndInitialize starts a new credit line creation (step 1).
func DeployAndInitialize(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	params, ok := bindCreationParams(c)
	if !ok {
		return
	}

	creationID, token, err := Saga.DeployAndInitialize(caller, params)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"creation_id": creationID.Hex(),
		"token":       token.Hex(),
	})
}

// MintAndApprove runs step 2 of a creation.
func MintAndApprove(c *gin.Context) {
	creationID, ok := pathCreationID(c)
	if !ok {
		return
	}
	if err := Saga.MintAndApprove(creationID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creation_id": creationID.Hex(), "step": "Minted"})
}

// CreatePool runs step 3 of a creation.
func CreatePool(c *gin.Context) {
	creationID, ok := pathCreationID(c)
	if !ok {
		return
	}
	if err := Saga.CreatePool(creationID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creation_id": creationID.Hex(), "step": "PoolCreated"})
}

// FinalizeCreation runs step 4 of a creation.
func FinalizeCreation(c *gin.Context) {
	creationID, ok := pathCreationID(c)
	if !ok {
		return
	}
	if err := Saga.Finalize(creationID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creation_id": creationID.Hex(), "step": "Finalized"})
}

// CreateCreditLine drives all four creation steps in one call. On a partial
// failure the response carries the creation id so the caller can resume
// step by step.
func CreateCreditLine(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	params, ok := bindCreationParams(c)
	if !ok {
		return
	}

	creationID, token, err := Saga.CreateCreditLine(caller, params)
	if err != nil {
		if creationID != (common.Hash{}) {
			c.JSON(http.StatusConflict, gin.H{
				"error":       err.Error(),
				"creation_id": creationID.Hex(),
				"token":       token.Hex(),
			})
			return
		}
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"creation_id": creationID.Hex(),
		"token":       token.Hex(),
	})
}

// GetCreationStatus returns the creation record for a creation id.
func GetCreationStatus(c *gin.Context) {
	creationID, ok := pathCreationID(c)
	if !ok {
		return
	}
	record, err := Saga.GetCreationStatus(creationID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"creation_id": record.CreationID,
		"step":        record.Step.String(),
		"completed":   record.Completed,
		"token":       record.CreditLineToken,
		"initiator":   record.Initiator,
	})
}
