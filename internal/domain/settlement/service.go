package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	domainerrors "github.com/takara-vaults/settlement_service/internal/domain/errors"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/chain"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/metrics"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

// InvestmentRepository is the persistence the settlement core consumes
type InvestmentRepository interface {
	Create(ctx context.Context, inv *entities.Investment) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Investment, error)
	GetByPaymentTxHash(ctx context.Context, txHash string) (*entities.Investment, error)
	ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*entities.Investment, error)
	UpdateWithStatusCheck(ctx context.Context, inv *entities.Investment, expectedStatus entities.InvestmentStatus) error
}

// VaultRepository is the read-only vault config lookup
type VaultRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Vault, error)
	ListActive(ctx context.Context) ([]*entities.Vault, error)
}

// BalanceReader is the cached balance lookup used for corroboration
type BalanceReader interface {
	Get(ctx context.Context, chainID entities.Chain, address string, token entities.TokenSymbol) (decimal.Decimal, error)
}

// Locker serializes work per investment id
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Config holds settlement service configuration
type Config struct {
	// PaymentDeadline is the maximum wait in PENDING_USDT before failing
	PaymentDeadline time.Duration
	// ReviewWindow flags PENDING_TOKENS investments for operator attention
	// once exceeded; they are never auto-failed
	ReviewWindow time.Duration
	// LockTTL bounds how long a crashed reconcile can hold an investment
	LockTTL time.Duration
	// LookupTimeout bounds a single chain evidence lookup
	LookupTimeout time.Duration
}

// DefaultConfig returns default settlement configuration
func DefaultConfig() Config {
	return Config{
		PaymentDeadline: 24 * time.Hour,
		ReviewWindow:    48 * time.Hour,
		LockTTL:         2 * time.Minute,
		LookupTimeout:   15 * time.Second,
	}
}

// Service drives the settlement state machine: it exposes the operations the
// API layer calls and the per-investment reconcile the sweep worker runs.
type Service struct {
	investmentRepo InvestmentRepository
	vaultRepo      VaultRepository
	chainReader    chain.Reader
	balances       BalanceReader
	locker         Locker
	machine        *Machine
	logger         *logger.Logger
	config         Config
}

// NewService creates a new settlement service
func NewService(
	investmentRepo InvestmentRepository,
	vaultRepo VaultRepository,
	chainReader chain.Reader,
	balances BalanceReader,
	locker Locker,
	machine *Machine,
	log *logger.Logger,
	config Config,
) *Service {
	if config.LockTTL == 0 {
		config.LockTTL = DefaultConfig().LockTTL
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultConfig().LookupTimeout
	}
	return &Service{
		investmentRepo: investmentRepo,
		vaultRepo:      vaultRepo,
		chainReader:    chainReader,
		balances:       balances,
		locker:         locker,
		machine:        machine,
		logger:         log,
		config:         config,
	}
}

// CreateInvestment creates an investment in the initial awaiting-payment
// status against an active vault
func (s *Service) CreateInvestment(ctx context.Context, userID, vaultID uuid.UUID, amount decimal.Decimal, walletAddress string) (*entities.Investment, error) {
	vault, err := s.vaultRepo.GetByID(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if !vault.Active {
		return nil, domainerrors.ValidationError("vault_id", "vault is not open for investment")
	}
	if amount.LessThan(vault.MinimumAmount) {
		return nil, domainerrors.ValidationError("amount", "amount is below the vault minimum")
	}
	if !entities.RewardChain.ValidAddress(walletAddress) {
		return nil, domainerrors.ValidationError("wallet_address", "invalid reward wallet address")
	}

	inv := entities.NewInvestment(userID, vaultID, amount, walletAddress)
	if err := s.investmentRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("Investment created",
		"investment_id", inv.ID,
		"vault_id", vaultID,
		"amount", amount.String())

	return inv, nil
}

// SubmitPayment records a user-submitted payment transaction hash and moves
// the investment AWAITING_PAYMENT -> PENDING_USDT. Fails with an invalid
// transition error when the investment is past that point, an invalid hash
// error when the hash is malformed for the chain, and a conflict when the
// hash is already claimed by another investment.
func (s *Service) SubmitPayment(ctx context.Context, investmentID uuid.UUID, txHash string, chainID entities.Chain) (*entities.Investment, error) {
	inv, err := s.investmentRepo.GetByID(ctx, investmentID)
	if err != nil {
		return nil, err
	}

	// Hash-reuse guard: one payment hash belongs to at most one investment
	normalized := chainID.NormalizeTxHash(txHash)
	if existing, err := s.investmentRepo.GetByPaymentTxHash(ctx, normalized); err == nil {
		if existing.ID != investmentID {
			return nil, domainerrors.HashAlreadyClaimedError(normalized)
		}
	} else if !domainerrors.IsNotFound(err) {
		return nil, err
	}

	expected := inv.Status
	result, err := s.machine.RecordPayment(inv, txHash, chainID)
	if err != nil {
		s.logger.Warn("Payment submission rejected",
			"investment_id", investmentID,
			"reason", result.Reason,
			"error", err)
		return nil, err
	}
	if !result.Changed {
		return inv, nil
	}

	if err := s.persist(ctx, inv, expected); err != nil {
		return nil, err
	}

	s.logger.Info("Payment hash recorded",
		"investment_id", investmentID,
		"chain", chainID,
		"tx_hash", normalized)

	return inv, nil
}

// SubmitDisbursement records the reward-token transaction hash reported by
// the minting workflow. The reconciler verifies the hash on chain; recording
// alone never completes the investment. Recording a hash does not change the
// investment status, so the compare-and-swap update cannot see a concurrent
// writer here; the per-id lock serializes submissions with each other and
// with the reconciler so neither write is lost.
func (s *Service) SubmitDisbursement(ctx context.Context, investmentID uuid.UUID, token entities.TokenSymbol, txHash string) (*entities.Investment, error) {
	acquired, err := s.locker.Acquire(ctx, investmentID.String(), s.config.LockTTL)
	if err != nil {
		return nil, domainerrors.Wrap(err, "acquire investment lock")
	}
	if !acquired {
		return nil, domainerrors.ConcurrentUpdateError("investment")
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), investmentID.String()); err != nil {
			s.logger.Warn("Failed to release investment lock",
				"investment_id", investmentID,
				"error", err)
		}
	}()

	inv, err := s.investmentRepo.GetByID(ctx, investmentID)
	if err != nil {
		return nil, err
	}

	vault, err := s.vaultRepo.GetByID(ctx, inv.VaultID)
	if err != nil {
		return nil, err
	}

	expected := inv.Status
	result, err := s.machine.RecordDisbursement(inv, vault, token, txHash)
	if err != nil {
		s.logger.Warn("Disbursement submission rejected",
			"investment_id", investmentID,
			"token", token,
			"reason", result.Reason,
			"error", err)
		return nil, err
	}
	if !result.Changed {
		return inv, nil
	}

	if err := s.persist(ctx, inv, expected); err != nil {
		return nil, err
	}

	s.logger.Info("Disbursement hash recorded",
		"investment_id", investmentID,
		"token", token,
		"tx_hash", txHash)

	return inv, nil
}

// GetStatus returns a read-only snapshot of the investment
func (s *Service) GetStatus(ctx context.Context, investmentID uuid.UUID) (*entities.Investment, error) {
	return s.investmentRepo.GetByID(ctx, investmentID)
}

// ListUserInvestments returns all investments for a user, newest first
func (s *Service) ListUserInvestments(ctx context.Context, userID uuid.UUID) ([]*entities.Investment, error) {
	return s.investmentRepo.ListByUserID(ctx, userID)
}

// ListVaults returns the vaults currently open for investment
func (s *Service) ListVaults(ctx context.Context) ([]*entities.Vault, error) {
	return s.vaultRepo.ListActive(ctx)
}

// ForceReconcile runs an on-demand single-investment sweep with the same
// guards as the scheduled sweep
func (s *Service) ForceReconcile(ctx context.Context, investmentID uuid.UUID) error {
	return s.Reconcile(ctx, investmentID)
}

// Reconcile fetches evidence for one investment and applies any justified
// transition. Work is serialized per investment id; a held lock means
// another worker owns this id right now and the call is a no-op.
func (s *Service) Reconcile(ctx context.Context, investmentID uuid.UUID) error {
	acquired, err := s.locker.Acquire(ctx, investmentID.String(), s.config.LockTTL)
	if err != nil {
		return domainerrors.Wrap(err, "acquire investment lock")
	}
	if !acquired {
		s.logger.Debug("Investment locked by another worker, skipping",
			"investment_id", investmentID)
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), investmentID.String()); err != nil {
			s.logger.Warn("Failed to release investment lock",
				"investment_id", investmentID,
				"error", err)
		}
	}()

	inv, err := s.investmentRepo.GetByID(ctx, investmentID)
	if err != nil {
		return err
	}

	switch inv.Status {
	case entities.StatusPendingUSDT:
		return s.reconcilePayment(ctx, inv)
	case entities.StatusPendingTokens:
		return s.reconcileDisbursements(ctx, inv)
	default:
		s.logger.Debug("Investment not in a settling status, nothing to do",
			"investment_id", investmentID,
			"status", inv.Status)
		return nil
	}
}

// reconcilePayment drives step 1: look up the payment transaction, apply the
// evidence, and enforce the payment deadline when no evidence exists
func (s *Service) reconcilePayment(ctx context.Context, inv *entities.Investment) error {
	if inv.USDTTxHash == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.config.LookupTimeout)
	tx, err := s.chainReader.GetTransaction(lookupCtx, inv.PaymentChain, *inv.USDTTxHash)
	cancel()

	if err != nil {
		switch {
		case chain.IsNotFound(err):
			// Absence of the transaction counts toward the deadline
			return s.applyDeadline(ctx, inv)
		case chain.IsUnavailable(err):
			// Transport failure is not evidence; defer to the next sweep
			s.logger.Warn("Payment lookup unavailable, deferring",
				"investment_id", inv.ID,
				"chain", inv.PaymentChain,
				"error", err)
			return nil
		default:
			return domainerrors.Wrap(err, "payment lookup")
		}
	}

	ev := tx.Evidence(inv.PaymentChain)

	expected := inv.Status
	result := s.machine.ApplyPaymentEvidence(inv, ev)
	if !result.Changed {
		s.logger.Debug("Payment evidence did not advance investment",
			"investment_id", inv.ID,
			"reason", result.Reason)
		metrics.EvidenceRejectedTotal.WithLabelValues("payment").Inc()
		// Unconfirmed or guard-failing evidence still counts toward the deadline
		return s.applyDeadline(ctx, inv)
	}

	if err := s.persist(ctx, inv, expected); err != nil {
		return err
	}

	if inv.NeedsReview && inv.Status == expected {
		metrics.UnderpaymentsTotal.Inc()
	}

	s.logger.Info("Payment evidence applied",
		"investment_id", inv.ID,
		"status", inv.Status,
		"reason", result.Reason)

	if inv.Status == entities.StatusPendingTokens {
		s.corroborateCollection(ctx, inv)
	}

	return nil
}

// reconcileDisbursements drives step 2: verify each recorded reward hash on
// the reward chain, and flag long-outstanding disbursements for review
func (s *Service) reconcileDisbursements(ctx context.Context, inv *entities.Investment) error {
	vault, err := s.vaultRepo.GetByID(ctx, inv.VaultID)
	if err != nil {
		return err
	}

	for _, token := range vault.RequiredTokens() {
		if inv.RewardVerifiedAt(token) != nil {
			continue
		}

		hash := inv.RewardTxHash(token)
		if hash == nil {
			// Disbursement not yet reported by the minting workflow
			continue
		}

		lookupCtx, cancel := context.WithTimeout(ctx, s.config.LookupTimeout)
		tx, err := s.chainReader.GetTransaction(lookupCtx, entities.RewardChain, *hash)
		cancel()

		if err != nil {
			if chain.IsUnavailable(err) || chain.IsNotFound(err) {
				s.logger.Debug("Disbursement not verifiable yet",
					"investment_id", inv.ID,
					"token", token,
					"error", err)
				continue
			}
			return domainerrors.Wrap(err, "disbursement lookup")
		}

		ev := tx.Evidence(entities.RewardChain)

		expected := inv.Status
		result := s.machine.ApplyDisbursementEvidence(inv, vault, token, ev)
		if !result.Changed {
			s.logger.Debug("Disbursement evidence did not advance investment",
				"investment_id", inv.ID,
				"token", token,
				"reason", result.Reason)
			metrics.EvidenceRejectedTotal.WithLabelValues("disbursement").Inc()
			continue
		}

		if err := s.persist(ctx, inv, expected); err != nil {
			return err
		}

		s.logger.Info("Disbursement evidence applied",
			"investment_id", inv.ID,
			"token", token,
			"status", inv.Status,
			"reason", result.Reason)

		if inv.Status == entities.StatusCompleted {
			return nil
		}
	}

	return s.flagStalledDisbursement(ctx, inv)
}

// applyDeadline fails a PENDING_USDT investment past the configured wait
func (s *Service) applyDeadline(ctx context.Context, inv *entities.Investment) error {
	expected := inv.Status
	result := s.machine.ApplyPaymentDeadline(inv, time.Now().UTC(), s.config.PaymentDeadline)
	if !result.Changed {
		return nil
	}

	if err := s.persist(ctx, inv, expected); err != nil {
		return err
	}

	s.logger.Warn("Investment failed on payment deadline",
		"investment_id", inv.ID,
		"created_at", inv.CreatedAt,
		"deadline", s.config.PaymentDeadline)

	return nil
}

// flagStalledDisbursement marks PENDING_TOKENS investments past the review
// window for operator attention. They are tracked, never auto-failed.
func (s *Service) flagStalledDisbursement(ctx context.Context, inv *entities.Investment) error {
	if s.config.ReviewWindow <= 0 || inv.NeedsReview || inv.Step1CompletedAt == nil {
		return nil
	}
	if time.Since(*inv.Step1CompletedAt) <= s.config.ReviewWindow {
		return nil
	}

	expected := inv.Status
	inv.FlagForReview("disbursement outstanding past review window")
	if err := s.persist(ctx, inv, expected); err != nil {
		return err
	}

	s.logger.Warn("Disbursement outstanding past review window",
		"investment_id", inv.ID,
		"step1_completed_at", inv.Step1CompletedAt)

	return nil
}

// corroborateCollection cross-checks the collection address balance after a
// confirmed payment. Purely a consistency signal: discrepancies are logged,
// never acted on.
func (s *Service) corroborateCollection(ctx context.Context, inv *entities.Investment) {
	collection, ok := s.machine.CollectionAddress(inv.PaymentChain)
	if !ok {
		return
	}

	balance, err := s.balances.Get(ctx, inv.PaymentChain, collection, entities.TokenUSDT)
	if err != nil {
		s.logger.Debug("Collection balance corroboration unavailable",
			"investment_id", inv.ID,
			"chain", inv.PaymentChain,
			"error", err)
		return
	}

	if balance.LessThan(inv.Amount) {
		s.logger.Warn("Collection balance lower than confirmed payment",
			"investment_id", inv.ID,
			"chain", inv.PaymentChain,
			"balance", balance.String(),
			"amount", inv.Amount.String())
		return
	}

	s.logger.Debug("Collection balance corroborated",
		"investment_id", inv.ID,
		"chain", inv.PaymentChain,
		"balance", balance.String())
}

// persist commits the investment through the compare-and-swap update and
// records transition metrics. A status conflict means another writer moved
// the investment first; the caller defers to the next sweep.
func (s *Service) persist(ctx context.Context, inv *entities.Investment, expected entities.InvestmentStatus) error {
	if err := s.investmentRepo.UpdateWithStatusCheck(ctx, inv, expected); err != nil {
		if domainerrors.IsStatusConflict(err) {
			metrics.StatusConflictsTotal.Inc()
			s.logger.Warn("Status conflict while persisting transition",
				"investment_id", inv.ID,
				"expected", expected,
				"attempted", inv.Status)
		}
		return err
	}

	if inv.Status != expected {
		metrics.TransitionsTotal.WithLabelValues(string(expected), string(inv.Status)).Inc()
	}

	return nil
}

// ListSettling exposes the sweep candidate query to the reconciler worker
func (s *Service) ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error) {
	return s.investmentRepo.ListSettling(ctx, limit)
}
