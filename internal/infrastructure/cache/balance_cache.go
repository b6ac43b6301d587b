package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/chain"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/metrics"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

// DefaultBalanceTTL bounds how stale a served balance may be. The server-side
// TTL must exceed any client-side cache layered on top so this layer stays
// the source of truth for freshness.
const DefaultBalanceTTL = 2 * time.Minute

// BalanceCache memoizes chain balance reads with a short TTL. Concurrent
// misses on the same key are coalesced into a single upstream read. A reader
// failure with no live entry propagates as an error; stale values are never
// served.
type BalanceCache struct {
	reader chain.Reader
	ttl    time.Duration
	logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]balanceEntry
	group   singleflight.Group
}

type balanceEntry struct {
	value     decimal.Decimal
	fetchedAt time.Time
}

// NewBalanceCache creates a balance cache in front of the given reader
func NewBalanceCache(reader chain.Reader, ttl time.Duration, log *logger.Logger) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceCache{
		reader:  reader,
		ttl:     ttl,
		logger:  log,
		entries: make(map[string]balanceEntry),
	}
}

// Get returns the balance of (chain, address, token), serving a live cached
// entry without I/O when one exists. The address is normalized before key
// construction so equivalent representations share one entry.
func (c *BalanceCache) Get(ctx context.Context, chainID entities.Chain, address string, token entities.TokenSymbol) (decimal.Decimal, error) {
	key := cacheKey(chainID, address, token)

	if value, ok := c.lookup(key); ok {
		metrics.BalanceCacheReadsTotal.WithLabelValues("hit").Inc()
		return value, nil
	}
	metrics.BalanceCacheReadsTotal.WithLabelValues("miss").Inc()

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have refreshed the
		// entry between our miss and the group admitting us.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}

		value, err := c.reader.GetTokenBalance(ctx, chainID, address, token)
		if chain.IsAddressNotFound(err) {
			// An address the gateway does not index holds nothing
			value, err = decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, err
		}

		c.mu.Lock()
		c.entries[key] = balanceEntry{value: value, fetchedAt: time.Now()}
		c.mu.Unlock()

		return value, nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	if shared {
		c.logger.Debug("Balance read coalesced", "key", key)
	}
	return result.(decimal.Decimal), nil
}

// Invalidate drops the entry for (chain, address, token)
func (c *BalanceCache) Invalidate(chainID entities.Chain, address string, token entities.TokenSymbol) {
	key := cacheKey(chainID, address, token)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// lookup returns a live entry, evicting it when expired
func (c *BalanceCache) lookup(key string) (decimal.Decimal, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return decimal.Zero, false
	}
	if time.Since(entry.fetchedAt) >= c.ttl {
		c.mu.Lock()
		// Another writer may have refreshed the entry; only evict the one we saw
		if current, still := c.entries[key]; still && current.fetchedAt.Equal(entry.fetchedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return decimal.Zero, false
	}
	return entry.value, true
}

func cacheKey(chainID entities.Chain, address string, token entities.TokenSymbol) string {
	if token == "" {
		token = entities.NativeMarker
	}
	return fmt.Sprintf("%s:%s:%s", chainID, chainID.NormalizeAddress(address), token)
}
