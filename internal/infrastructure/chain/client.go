package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	"github.com/takara-vaults/settlement_service/internal/infrastructure/metrics"
	"github.com/takara-vaults/settlement_service/pkg/retry"
)

const (
	defaultTimeout           = 15 * time.Second
	defaultRequestsPerSecond = 5
)

// EndpointConfig describes one chain's indexer gateway
type EndpointConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Config maps each supported chain to its gateway endpoint
type Config struct {
	Endpoints map[entities.Chain]EndpointConfig
}

// Client reads transactions and balances from per-chain indexer gateways.
// Each chain gets its own circuit breaker and rate limiter so one flaky
// endpoint cannot starve lookups on the others.
type Client struct {
	endpoints  map[entities.Chain]EndpointConfig
	httpClient *http.Client
	breakers   map[entities.Chain]*gobreaker.CircuitBreaker
	limiters   map[entities.Chain]*rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a new chain gateway client
func NewClient(config Config, logger *zap.Logger) *Client {
	breakers := make(map[entities.Chain]*gobreaker.CircuitBreaker, len(config.Endpoints))
	limiters := make(map[entities.Chain]*rate.Limiter, len(config.Endpoints))

	maxTimeout := defaultTimeout
	for chainID, ep := range config.Endpoints {
		name := fmt.Sprintf("chain-gateway-%s", chainID)
		breakers[chainID] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("Chain gateway circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})

		rps := ep.RequestsPerSecond
		if rps == 0 {
			rps = defaultRequestsPerSecond
		}
		limiters[chainID] = rate.NewLimiter(rate.Limit(rps), 1)

		if ep.Timeout > maxTimeout {
			maxTimeout = ep.Timeout
		}
	}

	return &Client{
		endpoints:  config.Endpoints,
		httpClient: &http.Client{Timeout: maxTimeout},
		breakers:   breakers,
		limiters:   limiters,
		logger:     logger,
	}
}

// GetTransaction looks up a transaction by hash
func (c *Client) GetTransaction(ctx context.Context, chain entities.Chain, hash string) (*Transaction, error) {
	endpoint := fmt.Sprintf("/v1/%s/tx/%s", chain, url.PathEscape(chain.NormalizeTxHash(hash)))

	var tx Transaction
	if err := c.doRequest(ctx, chain, endpoint, ErrTxNotFound, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTokenBalance returns the token balance of an address
func (c *Client) GetTokenBalance(ctx context.Context, chain entities.Chain, address string, token entities.TokenSymbol) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("/v1/%s/address/%s/balance", chain, url.PathEscape(chain.NormalizeAddress(address)))
	if token != "" && token != entities.NativeMarker {
		endpoint += "?token=" + url.QueryEscape(string(token))
	}

	var resp balanceResponse
	if err := c.doRequest(ctx, chain, endpoint, ErrAddressNotFound, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// doRequest performs a rate-limited, breaker-guarded GET against the chain's
// gateway and decodes the JSON response into result. A 404 maps to notFound,
// which differs per endpoint: transaction absence is evidence, an unknown
// address is not.
func (c *Client) doRequest(ctx context.Context, chain entities.Chain, endpoint string, notFound error, result interface{}) error {
	ep, ok := c.endpoints[chain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}

	start := time.Now()
	defer func() {
		metrics.ChainLookupDuration.WithLabelValues(string(chain)).Observe(time.Since(start).Seconds())
	}()

	limiter := c.limiters[chain]
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	timeout := ep.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := retry.DefaultPolicy()
	policy.RetryableFunc = func(err error) bool {
		return errors.Is(err, ErrUnavailable)
	}

	err := retry.Do(reqCtx, policy, func() error {
		_, err := c.breakers[chain].Execute(func() (interface{}, error) {
			return nil, c.get(reqCtx, ep, endpoint, notFound, result)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open for %s", ErrUnavailable, chain)
		}
		return err
	})
	if errors.Is(err, retry.ErrMaxRetriesExceeded) {
		return fmt.Errorf("%w: %s: retries exhausted", ErrUnavailable, chain)
	}
	return err
}

func (c *Client) get(ctx context.Context, ep EndpointConfig, endpoint string, notFound error, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("X-API-Key", ep.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("Chain gateway returned retryable status",
			zap.Int("status", resp.StatusCode),
			zap.String("endpoint", endpoint))
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		var gwErr errorResponse
		if json.Unmarshal(body, &gwErr) == nil && gwErr.Error != "" {
			return fmt.Errorf("gateway error %d: %s", resp.StatusCode, gwErr.Error)
		}
		return fmt.Errorf("gateway error %d", resp.StatusCode)
	}
}
