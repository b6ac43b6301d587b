package settlement_reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

// stubService records which investments the sweep asked it to reconcile
type stubService struct {
	mu         sync.Mutex
	settling   []*entities.Investment
	reconciled []uuid.UUID
	listErr    error
	reconcile  func(id uuid.UUID) error
}

func (s *stubService) ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.settling) > limit {
		return s.settling[:limit], nil
	}
	return s.settling, nil
}

func (s *stubService) Reconcile(ctx context.Context, investmentID uuid.UUID) error {
	s.mu.Lock()
	s.reconciled = append(s.reconciled, investmentID)
	s.mu.Unlock()
	if s.reconcile != nil {
		return s.reconcile(investmentID)
	}
	return nil
}

func (s *stubService) reconciledIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.reconciled))
	copy(out, s.reconciled)
	return out
}

// blockingService parks every reconcile until its context is cancelled
type blockingService struct {
	settling []*entities.Investment
	started  chan struct{}
}

func (s *blockingService) ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error) {
	return s.settling, nil
}

func (s *blockingService) Reconcile(ctx context.Context, investmentID uuid.UUID) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func settlingInvestments(n int) []*entities.Investment {
	invs := make([]*entities.Investment, n)
	for i := range invs {
		inv := entities.NewInvestment(uuid.New(), uuid.New(), decimal.NewFromInt(100), "4Nd1mYvG7xFVoqXEJxyNkMJdS9cBqBoCGKafUwrzGvBE")
		inv.Status = entities.StatusPendingUSDT
		invs[i] = inv
	}
	return invs
}

func newTestReconciler(t *testing.T, svc SettlementService, cfg Config) *Reconciler {
	t.Helper()
	r, err := NewReconciler(cfg, svc, logger.NewNop())
	require.NoError(t, err)
	return r
}

func TestRunSweep(t *testing.T) {
	t.Run("reconciles every settling investment", func(t *testing.T) {
		svc := &stubService{settling: settlingInvestments(5)}
		r := newTestReconciler(t, svc, DefaultConfig())

		r.runSweep(context.Background())

		ids := svc.reconciledIDs()
		assert.Len(t, ids, 5)
		seen := make(map[uuid.UUID]bool)
		for _, id := range ids {
			seen[id] = true
		}
		for _, inv := range svc.settling {
			assert.True(t, seen[inv.ID], "investment %s was not swept", inv.ID)
		}
	})

	t.Run("respects the batch size", func(t *testing.T) {
		svc := &stubService{settling: settlingInvestments(10)}
		cfg := DefaultConfig()
		cfg.BatchSize = 3
		r := newTestReconciler(t, svc, cfg)

		r.runSweep(context.Background())

		assert.Len(t, svc.reconciledIDs(), 3)
	})

	t.Run("one failing investment does not stop the others", func(t *testing.T) {
		svc := &stubService{settling: settlingInvestments(4)}
		failing := svc.settling[1].ID
		svc.reconcile = func(id uuid.UUID) error {
			if id == failing {
				return assert.AnError
			}
			return nil
		}
		r := newTestReconciler(t, svc, DefaultConfig())

		r.runSweep(context.Background())

		assert.Len(t, svc.reconciledIDs(), 4)
	})

	t.Run("list failure aborts the sweep quietly", func(t *testing.T) {
		svc := &stubService{listErr: assert.AnError}
		r := newTestReconciler(t, svc, DefaultConfig())

		r.runSweep(context.Background())

		assert.Empty(t, svc.reconciledIDs())
	})
}

func TestStartShutdown(t *testing.T) {
	t.Run("runs immediately on start and stops cleanly", func(t *testing.T) {
		svc := &stubService{settling: settlingInvestments(2)}
		cfg := DefaultConfig()
		cfg.Interval = time.Hour // only the immediate run should fire
		r := newTestReconciler(t, svc, cfg)

		require.NoError(t, r.Start(context.Background()))

		assert.Eventually(t, func() bool {
			return len(svc.reconciledIDs()) == 2
		}, time.Second, 10*time.Millisecond)

		require.NoError(t, r.Shutdown(time.Second))
	})

	t.Run("shutdown aborts an in-flight sweep", func(t *testing.T) {
		svc := &blockingService{
			settling: settlingInvestments(1),
			started:  make(chan struct{}, 1),
		}
		cfg := DefaultConfig()
		cfg.Interval = time.Hour
		r := newTestReconciler(t, svc, cfg)

		require.NoError(t, r.Start(context.Background()))
		<-svc.started // a reconcile is now parked mid-sweep

		done := make(chan error, 1)
		go func() { done <- r.Shutdown(5 * time.Second) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("shutdown did not abort the in-flight sweep")
		}
	})

	t.Run("disabled worker does nothing", func(t *testing.T) {
		svc := &stubService{settling: settlingInvestments(2)}
		cfg := DefaultConfig()
		cfg.Enabled = false
		r := newTestReconciler(t, svc, cfg)

		require.NoError(t, r.Start(context.Background()))
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, svc.reconciledIDs())
	})
}
