package settlement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	domainerrors "github.com/takara-vaults/settlement_service/internal/domain/errors"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/chain"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

type mockInvestmentRepo struct {
	mock.Mock
}

func (m *mockInvestmentRepo) Create(ctx context.Context, inv *entities.Investment) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *mockInvestmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Investment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Investment), args.Error(1)
}

func (m *mockInvestmentRepo) GetByPaymentTxHash(ctx context.Context, txHash string) (*entities.Investment, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Investment), args.Error(1)
}

func (m *mockInvestmentRepo) ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Investment), args.Error(1)
}

func (m *mockInvestmentRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*entities.Investment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Investment), args.Error(1)
}

func (m *mockInvestmentRepo) UpdateWithStatusCheck(ctx context.Context, inv *entities.Investment, expectedStatus entities.InvestmentStatus) error {
	args := m.Called(ctx, inv, expectedStatus)
	return args.Error(0)
}

type mockVaultRepo struct {
	mock.Mock
}

func (m *mockVaultRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Vault, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Vault), args.Error(1)
}

func (m *mockVaultRepo) ListActive(ctx context.Context) ([]*entities.Vault, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Vault), args.Error(1)
}

type mockChainReader struct {
	mock.Mock
}

func (m *mockChainReader) GetTransaction(ctx context.Context, chainID entities.Chain, txHash string) (*chain.Transaction, error) {
	args := m.Called(ctx, chainID, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Transaction), args.Error(1)
}

func (m *mockChainReader) GetTokenBalance(ctx context.Context, chainID entities.Chain, address string, token entities.TokenSymbol) (decimal.Decimal, error) {
	args := m.Called(ctx, chainID, address, token)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockBalances struct {
	mock.Mock
}

func (m *mockBalances) Get(ctx context.Context, chainID entities.Chain, address string, token entities.TokenSymbol) (decimal.Decimal, error) {
	args := m.Called(ctx, chainID, address, token)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// openLocker always grants the lock
type openLocker struct{}

func (openLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (openLocker) Release(ctx context.Context, key string) error { return nil }

// heldLocker never grants the lock
type heldLocker struct{}

func (heldLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}
func (heldLocker) Release(ctx context.Context, key string) error { return nil }

type serviceFixture struct {
	investmentRepo *mockInvestmentRepo
	vaultRepo      *mockVaultRepo
	chainReader    *mockChainReader
	balances       *mockBalances
	service        *Service
}

func newServiceFixture(t *testing.T, locker Locker) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		investmentRepo: new(mockInvestmentRepo),
		vaultRepo:      new(mockVaultRepo),
		chainReader:    new(mockChainReader),
		balances:       new(mockBalances),
	}
	f.service = NewService(
		f.investmentRepo,
		f.vaultRepo,
		f.chainReader,
		f.balances,
		locker,
		testMachine(),
		logger.NewNop(),
		Config{
			PaymentDeadline: 24 * time.Hour,
			ReviewWindow:    48 * time.Hour,
			LockTTL:         2 * time.Minute,
			LookupTimeout:   5 * time.Second,
		},
	)
	return f
}

func TestCreateInvestment(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("creates in AWAITING_PAYMENT", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)
		f.investmentRepo.On("Create", ctx, mock.AnythingOfType("*entities.Investment")).Return(nil)

		inv, err := f.service.CreateInvestment(ctx, userID, vault.ID, decimal.NewFromInt(100), solWallet)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusAwaitingPayment, inv.Status)
		assert.Equal(t, entities.RewardChain, inv.TokenChain)
		f.investmentRepo.AssertExpectations(t)
	})

	t.Run("rejects amount below vault minimum", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)

		_, err := f.service.CreateInvestment(ctx, userID, vault.ID, decimal.NewFromInt(5), solWallet)
		require.Error(t, err)
		f.investmentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects inactive vault", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		vault.Active = false
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)

		_, err := f.service.CreateInvestment(ctx, userID, vault.ID, decimal.NewFromInt(100), solWallet)
		require.Error(t, err)
	})

	t.Run("rejects malformed reward wallet address", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)

		_, err := f.service.CreateInvestment(ctx, userID, vault.ID, decimal.NewFromInt(100), "0xnotasolanaaddress")
		require.Error(t, err)
	})
}

func TestSubmitPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("records hash and persists against AWAITING_PAYMENT", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := testInvestment()
		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.investmentRepo.On("GetByPaymentTxHash", ctx, strings.ToLower(ethTxHash)).
			Return(nil, domainerrors.NotFoundError("INVESTMENT"))
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusAwaitingPayment).Return(nil)

		got, err := f.service.SubmitPayment(ctx, inv.ID, ethTxHash, entities.ChainEthereum)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingUSDT, got.Status)
		f.investmentRepo.AssertExpectations(t)
	})

	t.Run("rejects a hash claimed by another investment", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := testInvestment()
		other := testInvestment()
		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.investmentRepo.On("GetByPaymentTxHash", ctx, strings.ToLower(ethTxHash)).Return(other, nil)

		_, err := f.service.SubmitPayment(ctx, inv.ID, ethTxHash, entities.ChainEthereum)
		assert.True(t, domainerrors.IsHashAlreadyClaimed(err))
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("resubmission by the same investment is a no-op", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := testInvestment()
		normalized := strings.ToLower(ethTxHash)
		inv.Status = entities.StatusPendingUSDT
		inv.PaymentChain = entities.ChainEthereum
		inv.USDTTxHash = &normalized
		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.investmentRepo.On("GetByPaymentTxHash", ctx, normalized).Return(inv, nil)

		got, err := f.service.SubmitPayment(ctx, inv.ID, ethTxHash, entities.ChainEthereum)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingUSDT, got.Status)
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed hash never reaches the repository", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := testInvestment()
		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.investmentRepo.On("GetByPaymentTxHash", ctx, mock.Anything).
			Return(nil, domainerrors.NotFoundError("INVESTMENT"))

		_, err := f.service.SubmitPayment(ctx, inv.ID, "garbage", entities.ChainEthereum)
		assert.True(t, domainerrors.IsInvalidHash(err))
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSubmitDisbursement(t *testing.T) {
	ctx := context.Background()

	t.Run("records hash against PENDING_TOKENS", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		inv := testInvestment()
		inv.VaultID = vault.ID
		advanceToPendingTokens(t, testMachine(), inv)

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusPendingTokens).Return(nil)

		got, err := f.service.SubmitDisbursement(ctx, inv.ID, entities.TokenTAKARA, solTxHash)
		require.NoError(t, err)
		require.NotNil(t, got.TakaraTxHash)
		assert.Equal(t, entities.StatusPendingTokens, got.Status)
	})

	t.Run("rejected before payment confirmation", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		inv := testInvestment()
		inv.VaultID = vault.ID

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)

		_, err := f.service.SubmitDisbursement(ctx, inv.ID, entities.TokenTAKARA, solTxHash)
		assert.True(t, domainerrors.IsInvalidTransition(err))
	})

	t.Run("held lock rejects with a retryable conflict", func(t *testing.T) {
		// a concurrent submitter or reconciler owns the investment; without
		// the lock the second writer's full-row update would drop the first
		// writer's hash
		f := newServiceFixture(t, heldLocker{})
		inv := testInvestment()

		_, err := f.service.SubmitDisbursement(ctx, inv.ID, entities.TokenTAKARA, solTxHash)
		assert.True(t, domainerrors.IsStatusConflict(err))
		f.investmentRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	pendingUSDT := func(vaultID uuid.UUID) *entities.Investment {
		inv := testInvestment()
		inv.VaultID = vaultID
		normalized := strings.ToLower(ethTxHash)
		inv.Status = entities.StatusPendingUSDT
		inv.PaymentChain = entities.ChainEthereum
		inv.USDTTxHash = &normalized
		return inv
	}

	t.Run("skips when another worker holds the lock", func(t *testing.T) {
		f := newServiceFixture(t, heldLocker{})

		err := f.service.Reconcile(ctx, uuid.New())
		require.NoError(t, err)
		f.investmentRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("terminal investment is a no-op", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := testInvestment()
		inv.Status = entities.StatusCompleted
		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		f.chainReader.AssertNotCalled(t, "GetTransaction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("confirmed payment advances and persists", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(&chain.Transaction{
				Hash:      *inv.USDTTxHash,
				Confirmed: true,
				Amount:    inv.Amount,
				Token:     string(entities.TokenUSDT),
				Recipient: ethCollection,
			}, nil)
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusPendingUSDT).Return(nil)
		f.balances.On("Get", mock.Anything, entities.ChainEthereum, mock.Anything, entities.TokenUSDT).
			Return(decimal.NewFromInt(1000), nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingTokens, inv.Status)
		f.investmentRepo.AssertExpectations(t)
	})

	t.Run("payment in a different token does not advance", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(&chain.Transaction{
				Hash:      *inv.USDTTxHash,
				Confirmed: true,
				Amount:    inv.Amount,
				Token:     "SHIB",
				Recipient: ethCollection,
			}, nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingUSDT, inv.Status)
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("review-held underpayment survives the deadline sweep", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())
		inv.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
		inv.FlagForReview("underpayment: received 99 of required 100")

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(&chain.Transaction{
				Hash:      *inv.USDTTxHash,
				Confirmed: true,
				Amount:    decimal.NewFromInt(99),
				Token:     string(entities.TokenUSDT),
				Recipient: ethCollection,
			}, nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		// held for the operator, not auto-failed
		assert.Equal(t, entities.StatusPendingUSDT, inv.Status)
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("transport failure defers without persisting", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(nil, chain.ErrUnavailable)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingUSDT, inv.Status)
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing transaction past deadline fails the investment", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())
		inv.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(nil, chain.ErrTxNotFound)
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusPendingUSDT).Return(nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusFailed, inv.Status)
	})

	t.Run("missing transaction inside deadline waits", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(nil, chain.ErrTxNotFound)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingUSDT, inv.Status)
		f.investmentRepo.AssertNotCalled(t, "UpdateWithStatusCheck", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("status conflict surfaces so the sweep defers", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		inv := pendingUSDT(uuid.New())

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.ChainEthereum, *inv.USDTTxHash).
			Return(&chain.Transaction{
				Hash:      *inv.USDTTxHash,
				Confirmed: true,
				Amount:    inv.Amount,
				Token:     string(entities.TokenUSDT),
				Recipient: ethCollection,
			}, nil)
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusPendingUSDT).
			Return(domainerrors.StatusConflictError(string(entities.StatusPendingUSDT), "investment"))

		err := f.service.Reconcile(ctx, inv.ID)
		assert.True(t, domainerrors.IsStatusConflict(err))
	})

	t.Run("verifies outstanding disbursements and completes", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		vault.LaikaRatio = decimal.Zero
		inv := testInvestment()
		inv.VaultID = vault.ID
		m := testMachine()
		advanceToPendingTokens(t, m, inv)
		_, err := m.RecordDisbursement(inv, vault, entities.TokenTAKARA, solTxHash)
		require.NoError(t, err)

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)
		f.chainReader.On("GetTransaction", mock.Anything, entities.RewardChain, solTxHash).
			Return(&chain.Transaction{
				Hash:      solTxHash,
				Confirmed: true,
				Amount:    vault.Entitlement(entities.TokenTAKARA, inv.Amount),
				Token:     string(entities.TokenTAKARA),
				Recipient: inv.WalletAddress,
			}, nil)
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusPendingTokens).Return(nil)

		err = f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusCompleted, inv.Status)
	})

	t.Run("missing disbursement hash waits without error", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		inv := testInvestment()
		inv.VaultID = vault.ID
		advanceToPendingTokens(t, testMachine(), inv)

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPendingTokens, inv.Status)
		f.chainReader.AssertNotCalled(t, "GetTransaction", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stalled disbursement past review window is flagged", func(t *testing.T) {
		f := newServiceFixture(t, openLocker{})
		vault := testVault()
		inv := testInvestment()
		inv.VaultID = vault.ID
		advanceToPendingTokens(t, testMachine(), inv)
		past := time.Now().UTC().Add(-49 * time.Hour)
		inv.Step1CompletedAt = &past

		f.investmentRepo.On("GetByID", ctx, inv.ID).Return(inv, nil)
		f.vaultRepo.On("GetByID", ctx, vault.ID).Return(vault, nil)
		f.investmentRepo.On("UpdateWithStatusCheck", ctx, inv, entities.StatusPendingTokens).Return(nil)

		err := f.service.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		// still pending, never auto-failed
		assert.Equal(t, entities.StatusPendingTokens, inv.Status)
		assert.True(t, inv.NeedsReview)
	})
}
