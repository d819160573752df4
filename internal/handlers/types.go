package handlers

// CreditLineRequest is the request body for starting a credit line creation
// (step 1 or the one-shot endpoint).
type CreditLineRequest struct {
	Name             string `json:"name" binding:"required"`
	Symbol           string `json:"symbol" binding:"required"`
	UnderlyingAsset  string `json:"underlying_asset" binding:"required"`
	CreditLimit      string `json:"credit_limit" binding:"required"`
	ApyBps           int64  `json:"apy_bps"`
	Borrower         string `json:"borrower" binding:"required"`
	InitialLiquidity string `json:"initial_liquidity" binding:"required"`
}

// TransferRequest is the request body for transferring a tokenized claim.
type TransferRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

// WithdrawRequest is the request body for a borrower credit withdrawal.
type WithdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// PriceValidationRequest toggles the transfer price gate.
type PriceValidationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// AuthorizedCallerRequest grants or revokes adapter allowlist membership.
type AuthorizedCallerRequest struct {
	Address    string `json:"address" binding:"required"`
	Authorized *bool  `json:"authorized" binding:"required"`
}

// RebalanceRequest moves the concentrated position around a target price.
type RebalanceRequest struct {
	TargetPrice string `json:"target_price" binding:"required"`
}

// CollectFeesRequest names the recipient of collected pool fees.
type CollectFeesRequest struct {
	Recipient string `json:"recipient" binding:"required"`
}

// RemoveLiquidityRequest withdraws liquidity from the full-range position.
type RemoveLiquidityRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// EmergencyWithdrawRequest is the request body for admin withdrawals.
type EmergencyWithdrawRequest struct {
	Token  string `json:"token"`
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}
