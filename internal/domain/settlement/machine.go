// Package settlement implements the cross-chain investment settlement state
// machine: the transition rules that move an investment from submitted
// payment through verified stablecoin receipt to verified reward-token
// disbursement, and the service operations that drive them.
package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	domainerrors "github.com/takara-vaults/settlement_service/internal/domain/errors"
)

// AmountEpsilon is the fixed tolerance for decimal amount comparisons.
// Gateways report token amounts with up to 6 decimal places (USDT precision),
// so anything below 1e-6 is representation noise, not a payment difference.
var AmountEpsilon = decimal.RequireFromString("0.000001")

// Result reports the outcome of applying evidence to an investment. Changed
// is true when the investment carries new state the caller must persist;
// Reason describes the guard outcome for logging.
type Result struct {
	Changed bool
	Reason  string
}

func noChange(reason string) Result { return Result{Changed: false, Reason: reason} }
func changed(reason string) Result  { return Result{Changed: true, Reason: reason} }

// Machine holds the pure transition logic. It mutates only the investment
// passed in; persistence (and the compare-and-swap race check) is the
// caller's job.
type Machine struct {
	// collectionAddresses is the platform's stablecoin receiving address per
	// payment chain, the only valid recipient for step-1 evidence
	collectionAddresses map[entities.Chain]string
}

// NewMachine creates a settlement machine with the platform collection
// address for each payment chain
func NewMachine(collectionAddresses map[entities.Chain]string) *Machine {
	return &Machine{collectionAddresses: collectionAddresses}
}

// CollectionAddress returns the platform receiving address for a chain
func (m *Machine) CollectionAddress(chain entities.Chain) (string, bool) {
	addr, ok := m.collectionAddresses[chain]
	return addr, ok
}

// RecordPayment applies a user-submitted payment hash:
// AWAITING_PAYMENT -> PENDING_USDT. The hash-reuse guard (one hash, one
// investment) is enforced by the service against the repository before this
// is called. Resubmitting the identical hash is a no-op.
func (m *Machine) RecordPayment(inv *entities.Investment, txHash string, chain entities.Chain) (Result, error) {
	if !chain.IsPaymentChain() {
		return noChange("unsupported payment chain"), domainerrors.ValidationError("chain", fmt.Sprintf("payments are not accepted on chain %s", chain))
	}
	if !chain.ValidTxHash(txHash) {
		return noChange("malformed hash"), domainerrors.InvalidHashError(string(chain), txHash)
	}

	normalized := chain.NormalizeTxHash(txHash)

	switch inv.Status {
	case entities.StatusAwaitingPayment:
		inv.USDTTxHash = &normalized
		inv.PaymentChain = chain
		inv.Status = entities.StatusPendingUSDT
		return changed("payment hash recorded"), nil

	case entities.StatusPendingUSDT:
		if inv.USDTTxHash != nil && *inv.USDTTxHash == normalized && inv.PaymentChain == chain {
			return noChange("payment hash already recorded"), nil
		}
		return noChange("different payment already recorded"), domainerrors.InvalidTransitionError(string(inv.Status), string(entities.StatusPendingUSDT))

	case entities.StatusPendingTokens, entities.StatusCompleted, entities.StatusFailed:
		return noChange("payment step already settled"), domainerrors.InvalidTransitionError(string(inv.Status), string(entities.StatusPendingUSDT))

	default:
		return noChange("unknown status"), fmt.Errorf("unknown investment status: %s", inv.Status)
	}
}

// ApplyPaymentEvidence evaluates step-1 confirmation evidence:
// PENDING_USDT -> PENDING_TOKENS on a confirmed payment of at least the
// principal, in the investment currency, to the platform collection address;
// PENDING_USDT -> FAILED on an
// on-chain revert. Evidence that fails any guard leaves the investment
// unchanged; replaying evidence an investment has already consumed is a no-op.
func (m *Machine) ApplyPaymentEvidence(inv *entities.Investment, ev *entities.Evidence) Result {
	switch inv.Status {
	case entities.StatusAwaitingPayment:
		return noChange("no payment submitted yet")

	case entities.StatusPendingUSDT:
		// fall through to guard evaluation below

	case entities.StatusPendingTokens, entities.StatusCompleted:
		return noChange("payment already confirmed")

	case entities.StatusFailed:
		return noChange("investment already failed")

	default:
		return noChange("unknown status")
	}

	if inv.USDTTxHash == nil {
		return noChange("no payment hash on record")
	}
	if !ev.MatchesHash(*inv.USDTTxHash) {
		return noChange("evidence is for a different transaction")
	}
	if ev.Chain != inv.PaymentChain {
		return noChange("evidence chain does not match payment chain")
	}

	if ev.Reverted {
		inv.Status = entities.StatusFailed
		inv.FlagForReview("payment transaction reverted on chain")
		return changed("payment reverted, investment failed")
	}
	if !ev.Confirmed {
		return noChange("payment not yet confirmed")
	}

	collection, ok := m.collectionAddresses[inv.PaymentChain]
	if !ok {
		return noChange("no collection address configured for chain")
	}
	if !ev.PaysTo(collection) {
		return noChange("payment recipient is not the platform collection address")
	}
	if ev.Token != inv.Currency {
		return noChange("transferred token is not the investment currency")
	}

	// Underpayment is neither accepted nor a failure: hold the investment
	// pending and flag it for an operator.
	if ev.Amount.Add(AmountEpsilon).LessThan(inv.Amount) {
		if inv.NeedsReview {
			return noChange("underpayment already flagged")
		}
		inv.FlagForReview(fmt.Sprintf("underpayment: received %s of required %s", ev.Amount, inv.Amount))
		return changed("underpayment flagged for review")
	}

	at := ev.ObservedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	inv.Step1CompletedAt = &at
	inv.Status = entities.StatusPendingTokens
	return changed("payment confirmed")
}

// RecordDisbursement records the reward-token transaction hash reported by
// the external minting workflow. The hash slot is write-once; the reconciler
// verifies it on chain before the investment can complete.
func (m *Machine) RecordDisbursement(inv *entities.Investment, vault *entities.Vault, token entities.TokenSymbol, txHash string) (Result, error) {
	if !vault.Requires(token) {
		return noChange("token not part of vault reward"), domainerrors.ValidationError("token", fmt.Sprintf("vault %s does not disburse %s", vault.Name, token))
	}
	if !entities.RewardChain.ValidTxHash(txHash) {
		return noChange("malformed hash"), domainerrors.InvalidHashError(string(entities.RewardChain), txHash)
	}

	switch inv.Status {
	case entities.StatusPendingTokens:
		// fall through

	case entities.StatusCompleted:
		if existing := inv.RewardTxHash(token); existing != nil && *existing == txHash {
			return noChange("disbursement already recorded"), nil
		}
		return noChange("investment already completed"), domainerrors.InvalidTransitionError(string(inv.Status), string(entities.StatusCompleted))

	case entities.StatusAwaitingPayment, entities.StatusPendingUSDT, entities.StatusFailed:
		return noChange("payment not confirmed"), domainerrors.InvalidTransitionError(string(inv.Status), string(entities.StatusCompleted))

	default:
		return noChange("unknown status"), fmt.Errorf("unknown investment status: %s", inv.Status)
	}

	if existing := inv.RewardTxHash(token); existing != nil {
		if *existing == txHash {
			return noChange("disbursement already recorded"), nil
		}
		return noChange("different disbursement already recorded"), domainerrors.HashAlreadyClaimedError(*existing)
	}

	inv.SetRewardTxHash(token, txHash)
	return changed("disbursement hash recorded"), nil
}

// ApplyDisbursementEvidence evaluates step-2 evidence for one reward token.
// When every token the vault requires has verified evidence the investment
// moves PENDING_TOKENS -> COMPLETED.
func (m *Machine) ApplyDisbursementEvidence(inv *entities.Investment, vault *entities.Vault, token entities.TokenSymbol, ev *entities.Evidence) Result {
	switch inv.Status {
	case entities.StatusPendingTokens:
		// fall through

	case entities.StatusCompleted:
		return noChange("investment already completed")

	case entities.StatusAwaitingPayment, entities.StatusPendingUSDT, entities.StatusFailed:
		return noChange("payment not confirmed")

	default:
		return noChange("unknown status")
	}

	if !vault.Requires(token) {
		return noChange("token not part of vault reward")
	}
	if inv.RewardVerifiedAt(token) != nil {
		return noChange("disbursement already verified")
	}

	hash := inv.RewardTxHash(token)
	if hash == nil {
		return noChange("no disbursement hash on record")
	}
	if !ev.MatchesHash(*hash) {
		return noChange("evidence is for a different transaction")
	}
	if ev.Chain != entities.RewardChain {
		return noChange("evidence chain is not the reward chain")
	}
	if ev.Reverted {
		return noChange("disbursement transaction reverted")
	}
	if !ev.Confirmed {
		return noChange("disbursement not yet confirmed")
	}
	if !ev.PaysTo(inv.WalletAddress) {
		return noChange("disbursement recipient is not the investment wallet")
	}
	if ev.Token != token {
		return noChange("transferred token is not the expected reward token")
	}

	entitlement := vault.Entitlement(token, inv.Amount)
	if ev.Amount.Sub(entitlement).Abs().GreaterThan(AmountEpsilon) {
		return noChange(fmt.Sprintf("disbursement amount %s does not match entitlement %s", ev.Amount, entitlement))
	}

	at := ev.ObservedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	inv.MarkRewardVerified(token, at)

	if inv.AllRewardsVerified(vault) {
		completedAt := at
		// step2 >= step1 when both are present
		if inv.Step1CompletedAt != nil && completedAt.Before(*inv.Step1CompletedAt) {
			completedAt = *inv.Step1CompletedAt
		}
		inv.Step2CompletedAt = &completedAt
		inv.Status = entities.StatusCompleted
		return changed("all reward tokens verified, investment completed")
	}

	return changed("reward token verified, others outstanding")
}

// ApplyPaymentDeadline fails an investment that has sat in PENDING_USDT past
// the configured maximum wait without valid evidence. Investments already
// flagged for review are held for the operator, never deadline-failed. There
// is no automatic deadline for PENDING_TOKENS.
func (m *Machine) ApplyPaymentDeadline(inv *entities.Investment, now time.Time, deadline time.Duration) Result {
	if inv.Status != entities.StatusPendingUSDT {
		return noChange("not awaiting payment confirmation")
	}
	if inv.NeedsReview {
		return noChange("held for operator review")
	}
	if now.Sub(inv.CreatedAt) <= deadline {
		return noChange("deadline not reached")
	}

	inv.Status = entities.StatusFailed
	inv.FlagForReview("payment confirmation deadline exceeded")
	return changed("payment deadline exceeded, investment failed")
}
