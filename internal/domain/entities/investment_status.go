package entities

import "fmt"

// InvestmentStatus represents the settlement status of an investment.
// Values are wire-stable and shared with the API layer.
type InvestmentStatus string

const (
	StatusAwaitingPayment InvestmentStatus = "AWAITING_PAYMENT"
	StatusPendingUSDT     InvestmentStatus = "PENDING_USDT"
	StatusPendingTokens   InvestmentStatus = "PENDING_TOKENS"
	StatusCompleted       InvestmentStatus = "COMPLETED"
	StatusFailed          InvestmentStatus = "FAILED"
)

// ValidInvestmentStatuses contains all valid settlement statuses
var ValidInvestmentStatuses = map[InvestmentStatus]bool{
	StatusAwaitingPayment: true,
	StatusPendingUSDT:     true,
	StatusPendingTokens:   true,
	StatusCompleted:       true,
	StatusFailed:          true,
}

// ValidInvestmentTransitions defines allowed status transitions.
// COMPLETED is reachable only through PENDING_USDT then PENDING_TOKENS;
// there is no transition that skips a step.
var ValidInvestmentTransitions = map[InvestmentStatus][]InvestmentStatus{
	StatusAwaitingPayment: {StatusPendingUSDT},
	StatusPendingUSDT:     {StatusPendingTokens, StatusFailed},
	StatusPendingTokens:   {StatusCompleted},
	StatusCompleted:       {}, // Terminal state
	StatusFailed:          {}, // Terminal state
}

// IsValid checks if the status is a valid settlement status
func (s InvestmentStatus) IsValid() bool {
	return ValidInvestmentStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s InvestmentStatus) CanTransitionTo(newStatus InvestmentStatus) bool {
	allowed, exists := ValidInvestmentTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s InvestmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsSettling returns true if the investment is in an intermediate state the
// reconciler is responsible for advancing
func (s InvestmentStatus) IsSettling() bool {
	return s == StatusPendingUSDT || s == StatusPendingTokens
}

// ValidateTransition validates and returns error if transition is invalid
func (s InvestmentStatus) ValidateTransition(newStatus InvestmentStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid investment status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}
