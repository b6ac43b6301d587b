package settlement_reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/google/uuid"
	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	"github.com/takara-vaults/settlement_service/internal/domain/settlement"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

// Config holds configuration for the settlement sweep worker
type Config struct {
	Enabled        bool
	Interval       time.Duration
	BatchSize      int
	MaxConcurrency int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Interval:       time.Minute,
		BatchSize:      50,
		MaxConcurrency: 10,
	}
}

// SettlementService is the slice of the settlement core the worker drives
type SettlementService interface {
	ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error)
	Reconcile(ctx context.Context, investmentID uuid.UUID) error
}

var _ SettlementService = (*settlement.Service)(nil)

// Reconciler periodically sweeps investments in a settling status and asks
// the settlement service to advance each one
type Reconciler struct {
	config        Config
	settlementSvc SettlementService
	logger        *logger.Logger

	// Metrics
	meter             metric.Meter
	runsCounter       metric.Int64Counter
	sweptCounter      metric.Int64Counter
	failedCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram

	// Worker management
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewReconciler creates a new settlement sweep worker
func NewReconciler(
	config Config,
	settlementSvc SettlementService,
	logger *logger.Logger,
) (*Reconciler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	meter := otel.Meter("settlement-reconciliation")

	runsCounter, err := meter.Int64Counter(
		"settlement.sweep.runs.total",
		metric.WithDescription("Total number of sweep runs"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	sweptCounter, err := meter.Int64Counter(
		"settlement.sweep.investments.total",
		metric.WithDescription("Total number of investments swept"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create swept counter: %w", err)
	}

	failedCounter, err := meter.Int64Counter(
		"settlement.sweep.failures.total",
		metric.WithDescription("Total number of failed reconcile attempts"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	durationHistogram, err := meter.Float64Histogram(
		"settlement.sweep.duration.seconds",
		metric.WithDescription("Sweep duration in seconds"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Reconciler{
		config:            config,
		settlementSvc:     settlementSvc,
		logger:            logger,
		meter:             meter,
		runsCounter:       runsCounter,
		sweptCounter:      sweptCounter,
		failedCounter:     failedCounter,
		durationHistogram: durationHistogram,
		shutdownCtx:       ctx,
		shutdownCancel:    cancel,
	}, nil
}

// Start begins the sweep worker
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.config.Enabled {
		r.logger.Info("Settlement sweep worker is disabled")
		return nil
	}

	r.logger.Info("Starting settlement sweep worker",
		"interval", r.config.Interval,
		"batch_size", r.config.BatchSize,
		"max_concurrency", r.config.MaxConcurrency,
	)

	r.wg.Add(1)
	go r.sweepLoop(ctx)

	r.logger.Info("Settlement sweep worker started successfully")
	return nil
}

// Shutdown gracefully stops the worker
func (r *Reconciler) Shutdown(timeout time.Duration) error {
	r.logger.Info("Shutting down settlement sweep worker", "timeout", timeout)

	r.shutdownCancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Settlement sweep worker shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// sweepLoop runs sweeps periodically
func (r *Reconciler) sweepLoop(ctx context.Context) {
	defer r.wg.Done()

	// Shutdown must abort an in-flight sweep, not just the loop, so the
	// sweep context is cancelled when either the caller's context or the
	// worker's shutdown context ends
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.shutdownCtx, cancel)
	defer stop()

	// Run immediately on start
	r.runSweep(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Settlement sweep worker stopping")
			return
		case <-ticker.C:
			r.runSweep(ctx)
		}
	}
}

// runSweep performs one sweep pass over settling investments
func (r *Reconciler) runSweep(ctx context.Context) {
	startTime := time.Now()

	r.runsCounter.Add(ctx, 1)

	candidates, err := r.settlementSvc.ListSettling(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("Failed to list settling investments", "error", err)
		r.failedCounter.Add(ctx, 1)
		return
	}

	if len(candidates) == 0 {
		r.logger.Debug("No investments to sweep")
		r.durationHistogram.Record(ctx, time.Since(startTime).Seconds())
		return
	}

	r.logger.Info("Found investments to sweep", "count", len(candidates))

	// Process candidates concurrently; the per-id lock inside Reconcile
	// keeps overlapping sweeps from working the same investment
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.config.MaxConcurrency)

	sweptCount := 0
	failedCount := 0
	var mu sync.Mutex

	for _, candidate := range candidates {
		wg.Add(1)
		go func(inv *entities.Investment) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := r.settlementSvc.Reconcile(ctx, inv.ID); err != nil {
				r.logger.Error("Failed to reconcile investment",
					"investment_id", inv.ID,
					"status", inv.Status,
					"error", err,
				)
				mu.Lock()
				failedCount++
				mu.Unlock()
				return
			}

			mu.Lock()
			sweptCount++
			mu.Unlock()
		}(candidate)
	}

	wg.Wait()

	duration := time.Since(startTime)

	r.sweptCounter.Add(ctx, int64(sweptCount))
	r.failedCounter.Add(ctx, int64(failedCount))
	r.durationHistogram.Record(ctx, duration.Seconds())

	r.logger.Info("Sweep run completed",
		"duration", duration,
		"total_candidates", len(candidates),
		"swept", sweptCount,
		"failed", failedCount,
	)
}
