package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"creditcontrol/internal/engine"
	"creditcontrol/internal/models"
	"creditcontrol/pkg/amm"
	dbconfig "creditcontrol/pkg/config"
)

var (
	testOwner    = common.HexToAddress("0xccc0000000000000000000000000000000000001")
	testService  = common.HexToAddress("0xccc0000000000000000000000000000000000002")
	testCreator  = common.HexToAddress("0xccc0000000000000000000000000000000000003")
	testBorrower = common.HexToAddress("0xccc0000000000000000000000000000000000004")
	alice        = common.HexToAddress("0xccc0000000000000000000000000000000000005")
	bob          = common.HexToAddress("0xccc0000000000000000000000000000000000006")
	testAsset    = common.HexToAddress("0xddd0000000000000000000000000000000000001")
)

// testEnv wires a saga and ledger against a containerized database and a
// simulated AMM, the same shape the API process uses.
type testEnv struct {
	db      *gorm.DB
	client  *amm.SimPool
	adapter *amm.PositionAdapter
	saga    *engine.CreationSaga
	ledger  *engine.Ledger
}

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "failed to open database")

	require.NoError(t, dbconfig.AutoMigrate(db), "failed to migrate schema")

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return db, cleanup
}

func setupTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()

	db, cleanup := setupTestDB(t)
	client := amm.NewSimPool()
	adapter := amm.NewPositionAdapter(amm.AdapterConfig{
		DB:     db,
		Client: client,
		Owner:  testOwner,
	})
	require.NoError(t, adapter.SetAuthorizedCaller(testOwner, testService, true))

	saga := engine.NewCreationSaga(engine.SagaConfig{
		DB:          db,
		Positions:   adapter,
		AdapterAddr: testService,
		Self:        testService,
	})
	ledger := engine.NewLedger(engine.LedgerConfig{
		DB:        db,
		Positions: adapter,
		Owner:     testOwner,
		Self:      testService,
	})
	return &testEnv{db: db, client: client, adapter: adapter, saga: saga, ledger: ledger}, cleanup
}

func testParams() engine.CreditLineParams {
	return engine.CreditLineParams{
		Name:             "Acme Credit Line",
		Symbol:           "ACL",
		UnderlyingAsset:  testAsset,
		CreditLimit:      decimal.NewFromInt(10000),
		ApyBps:           500,
		Borrower:         testBorrower,
		InitialLiquidity: decimal.NewFromInt(1000),
	}
}

// finalizedLine runs a full creation and returns the token address.
func (e *testEnv) finalizedLine(t *testing.T) common.Address {
	t.Helper()
	_, token, err := e.saga.CreateCreditLine(testCreator, testParams())
	require.NoError(t, err)
	return token
}

// seedBalance gives holder a claim balance directly, standing in for past
// distribution.
func (e *testEnv) seedBalance(t *testing.T, token, holder common.Address, amount decimal.Decimal) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.TokenBalance{
		Token:   token.Hex(),
		Holder:  holder.Hex(),
		Balance: amount,
	}).Error)
}

// backdateAccrual rewinds the line's last accrual time so elapsed time is
// deterministic in tests.
func (e *testEnv) backdateAccrual(t *testing.T, token common.Address, by time.Duration) {
	t.Helper()
	err := e.db.Model(&models.CreditLine{}).
		Where("token_address = ?", token.Hex()).
		Update("last_accrual_time", time.Now().Add(-by)).Error
	require.NoError(t, err)
}

func (e *testEnv) balanceOf(t *testing.T, token, holder common.Address) decimal.Decimal {
	t.Helper()
	var balance models.TokenBalance
	err := e.db.Where("token = ? AND holder = ?", token.Hex(), holder.Hex()).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero
	}
	require.NoError(t, err)
	return balance.Balance
}
