package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"creditcontrol/internal/models"
	dbconfig "creditcontrol/pkg/config"
)

// ListCreditLines returns all credit lines.
func ListCreditLines(c *gin.Context) {
	var lines []models.CreditLine
	if err := dbconfig.DB.Order("id").Find(&lines).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, lines)
}

// GetCreditLineStatus returns the full status view of a credit line.
func GetCreditLineStatus(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	status, err := Ledger.GetCreditLineStatus(token)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetBalance returns a holder's balance of a tokenized claim.
func GetBalance(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	holder, ok := pathAddress(c, "holder")
	if !ok {
		return
	}

	var balance models.TokenBalance
	err := dbconfig.DB.Where("token = ? AND holder = ?", token.Hex(), holder.Hex()).First(&balance).Error
	if err != nil {
		// Unknown holders have a zero balance, not an error.
		c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "holder": holder.Hex(), "balance": "0"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "holder": holder.Hex(), "balance": balance.Balance.String()})
}

// Transfer moves tokenized claim from the caller to a recipient, subject to
// the price validation gate.
func Transfer(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var request TransferRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recipient, ok := bodyAddress(c, request.Recipient, "recipient")
	if !ok {
		return
	}
	amount, ok := bodyAmount(c, request.Amount, "amount")
	if !ok {
		return
	}

	if err := Ledger.Transfer(caller, token, recipient, amount); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "recipient": recipient.Hex(), "amount": amount.String()})
}

// WithdrawCredit draws underlying liquidity for the borrower.
func WithdrawCredit(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var request WithdrawRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := bodyAmount(c, request.Amount, "amount")
	if !ok {
		return
	}

	if err := Ledger.WithdrawCredit(caller, token, amount); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "amount": amount.String()})
}

// AccrueInterest accrues interest and rebalances the concentrated position.
func AccrueInterest(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	price, err := Ledger.AccrueInterest(token)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "price": price.String()})
}

// ValidatePrice reports whether the pool price is in tolerance of the
// accrual-implied price.
func ValidatePrice(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	valid, poolPrice, expected, err := Ledger.ValidatePrice(token)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":          token.Hex(),
		"valid":          valid,
		"pool_price":     poolPrice.String(),
		"expected_price": expected.String(),
	})
}

// SetPriceValidation toggles the transfer price gate. Owner only.
func SetPriceValidation(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var request PriceValidationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Ledger.SetPriceValidation(caller, token, *request.Enabled); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "enabled": *request.Enabled})
}

// ListTransfers returns the transfer history of a credit line.
func ListTransfers(c *gin.Context) {
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var records []models.TransferRecord
	err := dbconfig.DB.Where("token = ?", token.Hex()).Order("id desc").Limit(200).Find(&records).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// LedgerEmergencyWithdraw records an admin withdrawal from the ledger.
func LedgerEmergencyWithdraw(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var request EmergencyWithdrawRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, ok := bodyAddress(c, request.Token, "token")
	if !ok {
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

	if err := Ledger.EmergencyWithdraw(caller, token, asset, amount); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset.Hex(), "amount": amount.String()})
}
