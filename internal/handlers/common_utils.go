package handlers

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"creditcontrol/internal/engine"
	"creditcontrol/pkg/amm"
)

// Engine components the handlers dispatch to, wired once at startup.
var (
	Saga    *engine.CreationSaga
	Ledger  *engine.Ledger
	Adapter *amm.PositionAdapter
	Stream  *amm.PriceHub
)

// Init wires the handler package to the engine components.
func Init(saga *engine.CreationSaga, ledger *engine.Ledger, adapter *amm.PositionAdapter, stream *amm.PriceHub) {
	Saga = saga
	Ledger = ledger
	Adapter = adapter
	Stream = stream
}

// callerAddress reads the caller identity from the X-Caller-Address header.
// The gateway in front of this service authenticates wallets; here the header
// is trusted. Authorization against owner, borrower and allowlist is still
// re-checked in the engine on every call.
func callerAddress(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader("X-Caller-Address")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid X-Caller-Address header"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// pathAddress parses a hex address from a path parameter.
func pathAddress(c *gin.Context, param string) (common.Address, bool) {
	raw := c.Param(param)
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address in path: " + param})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// bodyAddress parses a hex address from a request body field.
func bodyAddress(c *gin.Context, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address in field: " + field})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// bodyAmount parses a decimal amount from a request body field.
func bodyAmount(c *gin.Context, raw, field string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount in field: " + field})
		return decimal.Zero, false
	}
	return amount, true
}

// writeEngineError maps engine error classes onto HTTP statuses.
func writeEngineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidParameters):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrStalePrice):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrPoolCreationFailed), errors.Is(err, engine.ErrMintFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
