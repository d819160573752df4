package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"creditcontrol/internal/models"
)

// MaxApyBps caps the APY at 50%.
const MaxApyBps = 5000

// CreditLineParams are the immutable parameters of a credit line, fixed at
// step 1 of the creation saga.
type CreditLineParams struct {
	Name             string
	Symbol           string
	UnderlyingAsset  common.Address
	CreditLimit      decimal.Decimal
	ApyBps           int64
	Borrower         common.Address
	InitialLiquidity decimal.Decimal
}

// PositionManager is the saga's and ledger's view of the position adapter.
type PositionManager interface {
	CreatePoolAndAddLiquidity(caller, token, underlying common.Address, amountToken, amountUnderlying decimal.Decimal) (*models.PoolPosition, error)
	RebalanceConcentratedPosition(caller, token common.Address, targetPrice decimal.Decimal) error
	GetPosition(token common.Address) (*models.PoolPosition, error)
	GetCurrentPoolPrice(pool common.Address) (decimal.Decimal, error)
}

// SagaConfig configures a CreationSaga.
type SagaConfig struct {
	DB          *gorm.DB
	Positions   PositionManager
	AdapterAddr common.Address // spender recorded on the step-2 allowance
	Self        common.Address // identity the saga calls the adapter as
	Publisher   Publisher      // optional
}

// CreationSaga turns CreditLineParams into a fully-backed tokenized credit
// line across four independently-invocable phases, keyed by a creation id.
// Each phase either fully completes and advances the record's step, or fails
// and leaves it unchanged; the step guard is a conditional update, so
// concurrent attempts at the same phase cannot both succeed.
type CreationSaga struct {
	db          *gorm.DB
	positions   PositionManager
	adapterAddr common.Address
	self        common.Address
	pub         Publisher
}

// NewCreationSaga creates a CreationSaga.
func NewCreationSaga(cfg SagaConfig) *CreationSaga {
	return &CreationSaga{
		db:          cfg.DB,
		positions:   cfg.Positions,
		adapterAddr: cfg.AdapterAddr,
		self:        cfg.Self,
		pub:         cfg.Publisher,
	}
}

// DeriveCreationID derives the creation identifier from the token address,
// the creation timestamp and the initiator, so it cannot be forged or reused.
func DeriveCreationID(token, initiator common.Address, at time.Time) common.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.Unix()))
	return crypto.Keccak256Hash(token.Bytes(), ts[:], initiator.Bytes())
}

// deriveTokenAddress allocates a deterministic address for the tokenized
// claim from the initiator, parameters and creation time.
func deriveTokenAddress(initiator common.Address, params CreditLineParams, at time.Time) common.Address {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))
	h := crypto.Keccak256(initiator.Bytes(), []byte(params.Name), []byte(params.Symbol), ts[:])
	return common.BytesToAddress(h[12:])
}

func validateParams(params CreditLineParams) error {
	if params.Name == "" || params.Symbol == "" {
		return fmt.Errorf("%w: name and symbol are required", ErrInvalidParameters)
	}
	if params.ApyBps < 0 || params.ApyBps > MaxApyBps {
		return fmt.Errorf("%w: apy %d bps outside [0, %d]", ErrInvalidParameters, params.ApyBps, MaxApyBps)
	}
	if !params.CreditLimit.IsPositive() {
		return fmt.Errorf("%w: credit limit must be positive", ErrInvalidParameters)
	}
	if params.Borrower == (common.Address{}) {
		return fmt.Errorf("%w: borrower must not be the zero address", ErrInvalidParameters)
	}
	if params.UnderlyingAsset == (common.Address{}) {
		return fmt.Errorf("%w: underlying asset must not be the zero address", ErrInvalidParameters)
	}
	if !params.InitialLiquidity.IsPositive() {
		return fmt.Errorf("%w: initial liquidity must be positive", ErrInvalidParameters)
	}
	if params.InitialLiquidity.GreaterThan(params.CreditLimit) {
		return fmt.Errorf("%w: initial liquidity exceeds credit limit", ErrInvalidParameters)
	}
	return nil
}

// DeployAndInitialize is phase 1: it allocates the credit line, fixes its
// immutable parameters and opens a creation record at step Deployed.
func (s *CreationSaga) DeployAndInitialize(initiator common.Address, params CreditLineParams) (common.Hash, common.Address, error) {
	if err := validateParams(params); err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if initiator == (common.Address{}) {
		return common.Hash{}, common.Address{}, fmt.Errorf("%w: initiator must not be the zero address", ErrInvalidParameters)
	}

	now := time.Now()
	token := deriveTokenAddress(initiator, params, now)
	creationID := DeriveCreationID(token, initiator, now)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		line := models.CreditLine{
			TokenAddress:           token.Hex(),
			Name:                   params.Name,
			Symbol:                 params.Symbol,
			UnderlyingAsset:        params.UnderlyingAsset.Hex(),
			CreditLimit:            params.CreditLimit,
			ApyBps:                 params.ApyBps,
			Borrower:               params.Borrower.Hex(),
			InitialLiquidity:       params.InitialLiquidity,
			Owner:                  initiator.Hex(),
			CurrentPrice:           decimal.NewFromInt(1),
			LastAccrualTime:        now,
			PriceValidationEnabled: true,
			TotalProvided:          decimal.Zero,
			TotalWithdrawn:         decimal.Zero,
			TotalSupply:            decimal.Zero,
		}
		if err := tx.Create(&line).Error; err != nil {
			return err
		}
		record := models.CreationRecord{
			CreationID:       creationID.Hex(),
			Step:             models.StepDeployed,
			CreditLineToken:  token.Hex(),
			Initiator:        initiator.Hex(),
			Name:             params.Name,
			Symbol:           params.Symbol,
			UnderlyingAsset:  params.UnderlyingAsset.Hex(),
			CreditLimit:      params.CreditLimit,
			ApyBps:           params.ApyBps,
			Borrower:         params.Borrower.Hex(),
			InitialLiquidity: params.InitialLiquidity,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}

	log.WithFields(log.Fields{
		"creation_id": creationID.Hex(),
		"token":       token.Hex(),
		"initiator":   initiator.Hex(),
	}).Info("Deployed and initialized credit line")
	s.publishCreationEvent(creationID, token, models.StepDeployed)
	return creationID, token, nil
}

// MintAndApprove is phase 2: it mints the initial supply into the line's own
// custody and records an allowance for the position adapter.
func (s *CreationSaga) MintAndApprove(creationID common.Hash) error {
	record, err := s.GetCreationStatus(creationID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.advanceStep(tx, creationID, models.StepDeployed, models.StepMinted, nil); err != nil {
			return err
		}
		balance := models.TokenBalance{
			Token:   record.CreditLineToken,
			Holder:  record.CreditLineToken, // own custody
			Balance: record.CreditLimit,
		}
		if err := tx.Create(&balance).Error; err != nil {
			return err
		}
		allowance := models.TokenAllowance{
			Token:   record.CreditLineToken,
			Owner:   record.CreditLineToken,
			Spender: s.adapterAddr.Hex(),
			Amount:  record.CreditLimit,
		}
		if err := tx.Create(&allowance).Error; err != nil {
			return err
		}
		return tx.Model(&models.CreditLine{}).
			Where("token_address = ?", record.CreditLineToken).
			Update("total_supply", record.CreditLimit).Error
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"creation_id": creationID.Hex()}).Info("Minted initial supply and approved adapter")
	s.publishCreationEvent(creationID, common.HexToAddress(record.CreditLineToken), models.StepMinted)
	return nil
}

// CreatePool is phase 3: it establishes the AMM pool and the two backing
// positions through the adapter. Adapter failures propagate and the record
// stays at step Minted.
func (s *CreationSaga) CreatePool(creationID common.Hash) error {
	record, err := s.GetCreationStatus(creationID)
	if err != nil {
		return err
	}
	token := common.HexToAddress(record.CreditLineToken)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.advanceStep(tx, creationID, models.StepMinted, models.StepPoolCreated, nil); err != nil {
			return err
		}

		// Move the provided tokens out of custody before minting positions.
		res := tx.Model(&models.TokenBalance{}).
			Where("token = ? AND holder = ? AND balance >= ?", record.CreditLineToken, record.CreditLineToken, record.InitialLiquidity).
			Update("balance", gorm.Expr("balance - ?", record.InitialLiquidity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: custody balance below initial liquidity", ErrInsufficientBalance)
		}

		if _, err := s.positions.CreatePoolAndAddLiquidity(
			s.self,
			token,
			common.HexToAddress(record.UnderlyingAsset),
			record.InitialLiquidity,
			record.InitialLiquidity,
		); err != nil {
			return err
		}

		return tx.Model(&models.CreditLine{}).
			Where("token_address = ?", record.CreditLineToken).
			Updates(map[string]interface{}{
				"total_provided":    gorm.Expr("total_provided + ?", record.InitialLiquidity),
				"last_accrual_time": time.Now(),
			}).Error
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"creation_id": creationID.Hex(), "token": token.Hex()}).Info("Created pool and added initial liquidity")
	s.publishCreationEvent(creationID, token, models.StepPoolCreated)
	return nil
}

// Finalize is phase 4: it marks the creation complete; from here the credit
// line is live and transferable.
func (s *CreationSaga) Finalize(creationID common.Hash) error {
	record, err := s.GetCreationStatus(creationID)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		extra := map[string]interface{}{"completed": true}
		if err := s.advanceStep(tx, creationID, models.StepPoolCreated, models.StepFinalized, extra); err != nil {
			return err
		}
		return tx.Model(&models.CreditLine{}).
			Where("token_address = ?", record.CreditLineToken).
			Updates(map[string]interface{}{
				"finalized":         true,
				"last_accrual_time": time.Now(),
			}).Error
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"creation_id": creationID.Hex(), "token": record.CreditLineToken}).Info("Finalized credit line")
	s.publishCreationEvent(creationID, common.HexToAddress(record.CreditLineToken), models.StepFinalized)
	return nil
}

// CreateCreditLine drives all four phases in order; on failure the creation
// can be resumed phase by phase using the returned creation id.
func (s *CreationSaga) CreateCreditLine(initiator common.Address, params CreditLineParams) (common.Hash, common.Address, error) {
	creationID, token, err := s.DeployAndInitialize(initiator, params)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if err := s.MintAndApprove(creationID); err != nil {
		return creationID, token, err
	}
	if err := s.CreatePool(creationID); err != nil {
		return creationID, token, err
	}
	if err := s.Finalize(creationID); err != nil {
		return creationID, token, err
	}
	return creationID, token, nil
}

// GetCreationStatus is a pure read of the creation record.
func (s *CreationSaga) GetCreationStatus(creationID common.Hash) (*models.CreationRecord, error) {
	var record models.CreationRecord
	if err := s.db.Where("creation_id = ?", creationID.Hex()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown creation id %s", ErrInvalidState, creationID.Hex())
		}
		return nil, err
	}
	return &record, nil
}

// advanceStep is the monotonic step guard: a conditional update that only
// succeeds when the record is exactly on the expected step. Under concurrent
// attempts the second caller sees zero rows affected and fails.
func (s *CreationSaga) advanceStep(tx *gorm.DB, creationID common.Hash, from, to models.CreationStep, extra map[string]interface{}) error {
	updates := map[string]interface{}{"step": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.CreationRecord{}).
		Where("creation_id = ? AND step = ? AND completed = false", creationID.Hex(), from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: creation %s is not on step %s", ErrInvalidState, creationID.Hex(), from)
	}
	return nil
}

func (s *CreationSaga) publishCreationEvent(creationID common.Hash, token common.Address, step models.CreationStep) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(QueueCreationEvents, map[string]interface{}{
		"creation_id": creationID.Hex(),
		"token":       token.Hex(),
		"step":        step.String(),
	}); err != nil {
		log.Warnf("Failed to publish creation event: %v", err)
	}
}
