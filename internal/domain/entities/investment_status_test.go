package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvestmentStatusTransitions(t *testing.T) {
	t.Run("happy path is the only forward path", func(t *testing.T) {
		assert.True(t, StatusAwaitingPayment.CanTransitionTo(StatusPendingUSDT))
		assert.True(t, StatusPendingUSDT.CanTransitionTo(StatusPendingTokens))
		assert.True(t, StatusPendingTokens.CanTransitionTo(StatusCompleted))
	})

	t.Run("no step may be skipped", func(t *testing.T) {
		assert.False(t, StatusAwaitingPayment.CanTransitionTo(StatusPendingTokens))
		assert.False(t, StatusAwaitingPayment.CanTransitionTo(StatusCompleted))
		assert.False(t, StatusPendingUSDT.CanTransitionTo(StatusCompleted))
	})

	t.Run("no backward transitions", func(t *testing.T) {
		assert.False(t, StatusPendingUSDT.CanTransitionTo(StatusAwaitingPayment))
		assert.False(t, StatusPendingTokens.CanTransitionTo(StatusPendingUSDT))
		assert.False(t, StatusCompleted.CanTransitionTo(StatusPendingTokens))
	})

	t.Run("only PENDING_USDT may fail", func(t *testing.T) {
		assert.True(t, StatusPendingUSDT.CanTransitionTo(StatusFailed))
		assert.False(t, StatusAwaitingPayment.CanTransitionTo(StatusFailed))
		assert.False(t, StatusPendingTokens.CanTransitionTo(StatusFailed))
	})

	t.Run("terminal statuses admit nothing", func(t *testing.T) {
		for _, from := range []InvestmentStatus{StatusCompleted, StatusFailed} {
			assert.True(t, from.IsTerminal())
			for _, to := range []InvestmentStatus{StatusAwaitingPayment, StatusPendingUSDT, StatusPendingTokens, StatusCompleted, StatusFailed} {
				assert.False(t, from.CanTransitionTo(to), "%s -> %s must be rejected", from, to)
			}
		}
	})

	t.Run("settling statuses", func(t *testing.T) {
		assert.False(t, StatusAwaitingPayment.IsSettling())
		assert.True(t, StatusPendingUSDT.IsSettling())
		assert.True(t, StatusPendingTokens.IsSettling())
		assert.False(t, StatusCompleted.IsSettling())
		assert.False(t, StatusFailed.IsSettling())
	})
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, StatusPendingUSDT.ValidateTransition(StatusPendingTokens))
	assert.Error(t, StatusPendingUSDT.ValidateTransition(StatusCompleted))
	assert.Error(t, StatusFailed.ValidateTransition(StatusPendingUSDT))
}
