package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"creditcontrol/internal/models"
	dbconfig "creditcontrol/pkg/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GetPosition returns the pool position backing a credit line. A line with no
// pool yet returns exists=false, not an error.
func GetPosition(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	position, err := Adapter.GetPosition(token)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, position)
}

// GetPoolPrice returns the live pool price of a credit line's pool.
func GetPoolPrice(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	position, err := Adapter.GetPosition(token)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if !position.Exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Credit line has no pool"})
		return
	}
	price, err := Adapter.GetCurrentPoolPrice(common.HexToAddress(position.PoolAddress))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "pool": position.PoolAddress, "price": price.String()})
}

// Rebalance moves the concentrated position around a target price. Allowlist
// callers only; the scheduled accrual path is the usual driver, this endpoint
// covers manual operations.
func Rebalance(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var request RebalanceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	targetPrice, ok := bodyAmount(c, request.TargetPrice, "target_price")
	if !ok {
		return
	}

	if err := Adapter.RebalanceConcentratedPosition(caller, token, targetPrice); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "target_price": targetPrice.String()})
}

// CollectFees collects accumulated fees from both positions to a recipient.
func CollectFees(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var request CollectFeesRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recipient, ok := bodyAddress(c, request.Recipient, "recipient")
	if !ok {
		return
	}

	fees0, fees1, err := Adapter.CollectFees(caller, token, recipient)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token.Hex(),
		"recipient": recipient.Hex(),
		"fees0":     fees0.String(),
		"fees1":     fees1.String(),
	})
}

// RemoveLiquidity withdraws liquidity from the full-range position.
func RemoveLiquidity(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var request RemoveLiquidityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := bodyAmount(c, request.Amount, "amount")
	if !ok {
		return
	}

	if err := Adapter.RemoveLiquidity(caller, token, amount); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "amount": amount.String()})
}

// SetAuthorizedCaller grants or revokes adapter allowlist membership. Owner
// only.
func SetAuthorizedCaller(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var request AuthorizedCallerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr, ok := bodyAddress(c, request.Address, "address")
	if !ok {
		return
	}

	if err := Adapter.SetAuthorizedCaller(caller, addr, *request.Authorized); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "authorized": *request.Authorized})
}

// AdapterEmergencyWithdraw records an admin withdrawal from the adapter.
func AdapterEmergencyWithdraw(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var request EmergencyWithdrawRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	asset, ok := bodyAddress(c, request.Asset, "asset")
	if !ok {
		return
	}
	amount, ok := bodyAmount(c, request.Amount, "amount")
	if !ok {
		return
	}

	if err := Adapter.EmergencyWithdraw(caller, asset, amount); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset.Hex(), "amount": amount.String()})
}

// ListRebalances returns the rebalance history of a credit line.
func ListRebalances(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var records []models.RebalanceRecord
	err := dbconfig.DB.Where("credit_line_token = ?", token.Hex()).Order("id desc").Limit(200).Find(&records).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// ListAdminWithdrawals returns the emergency withdrawal audit trail.
func ListAdminWithdrawals(c *gin.Context) {
	var records []models.AdminWithdrawal
	if err := dbconfig.DB.Order("id desc").Limit(200).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// PriceStream upgrades to a websocket subscribed to pool price updates.
func PriceStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	Stream.Register(conn)

	// Drain client frames until the connection dies, then unregister.
	go func() {
		defer Stream.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
