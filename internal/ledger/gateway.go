package ledger

import (
	"context"
	"time"
)

// GatewayConfig bounds gateway behavior. Amounts are atomic units.
type GatewayConfig struct {
	BatchSize       int
	MinTransfer     int64
	MaxTransfer     int64
	QueryTimeout    time.Duration
	TransferTimeout time.Duration
}

// Gateway is the retried, circuit-broken façade over the external token
// service. Every public operation runs as withRetry(withCircuitBreaker(op)):
// each attempt passes through the breaker, so a breaker that opens mid-retry
// fails the call fast instead of hammering a dead dependency.
//
// The gateway itself is not idempotent. At-most-once submission is the
// responsibility of the transaction ledger's correlation-id guard.
type Gateway struct {
	client  TokenClient
	retry   *RetryPolicy
	breaker *CircuitBreaker
	cfg     GatewayConfig
}

func NewGateway(client TokenClient, retry *RetryPolicy, breaker *CircuitBreaker, cfg GatewayConfig) *Gateway {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Gateway{client: client, retry: retry, breaker: breaker, cfg: cfg}
}

// BreakerState exposes the breaker state for health reporting.
func (g *Gateway) BreakerState() BreakerState {
	return g.breaker.State()
}

func (g *Gateway) execute(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	return g.retry.Do(ctx, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, func(ctx context.Context) error {
			opCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return op(opCtx)
		})
	})
}

// GetBalance returns the atomic-unit balance of address.
func (g *Gateway) GetBalance(ctx context.Context, address string) (*Balance, error) {
	if !g.client.ValidAddress(address) {
		return nil, NewValidationError("malformed address %q", address)
	}

	var amount int64
	err := g.execute(ctx, g.cfg.QueryTimeout, func(ctx context.Context) error {
		var err error
		amount, err = g.client.Balance(ctx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Balance{Address: address, Amount: amount}, nil
}

// GetBalances fetches balances in fixed-size chunks to bound external load.
// Any chunk failing fails the whole call with no partial results; callers that
// need partial tolerance use GetBalance per address.
func (g *Gateway) GetBalances(ctx context.Context, addresses []string) ([]Balance, error) {
	for _, address := range addresses {
		if !g.client.ValidAddress(address) {
			return nil, NewValidationError("malformed address %q", address)
		}
	}

	balances := make([]Balance, 0, len(addresses))
	for start := 0; start < len(addresses); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(addresses) {
			end = len(addresses)
		}

		chunk := addresses[start:end]
		var chunkBalances []Balance
		err := g.execute(ctx, g.cfg.QueryTimeout, func(ctx context.Context) error {
			var err error
			chunkBalances, err = g.client.Balances(ctx, chunk)
			return err
		})
		if err != nil {
			return nil, err
		}
		balances = append(balances, chunkBalances...)
	}
	return balances, nil
}

// Transfer validates every recipient, then submits the batch as one external
// call. Zero or negative amounts and out-of-bounds amounts are VALIDATION
// errors and nothing is attempted.
func (g *Gateway) Transfer(ctx context.Context, recipients []Recipient, signingKey string) (*TransferResult, error) {
	if signingKey == "" {
		return nil, NewConfigurationError("signing key is not configured")
	}
	if len(recipients) == 0 {
		return nil, NewValidationError("no transfer recipients")
	}

	for _, r := range recipients {
		if !g.client.ValidAddress(r.Address) {
			return nil, NewValidationError("malformed recipient address %q", r.Address)
		}
		if r.Amount <= 0 {
			return nil, NewValidationError("transfer amount must be positive, got %d", r.Amount)
		}
		if g.cfg.MinTransfer > 0 && r.Amount < g.cfg.MinTransfer {
			return nil, NewValidationError("transfer amount %d below minimum %d", r.Amount, g.cfg.MinTransfer)
		}
		if g.cfg.MaxTransfer > 0 && r.Amount > g.cfg.MaxTransfer {
			return nil, NewValidationError("transfer amount %d above maximum %d", r.Amount, g.cfg.MaxTransfer)
		}
	}

	var result *TransferResult
	err := g.execute(ctx, g.cfg.TransferTimeout, func(ctx context.Context) error {
		var err error
		result, err = g.client.Transfer(ctx, recipients, signingKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransferStatus looks up the state of a submitted transfer.
func (g *Gateway) GetTransferStatus(ctx context.Context, ticketID string) (*TransferStatusInfo, error) {
	if ticketID == "" {
		return nil, NewValidationError("empty ticket id")
	}

	var info *TransferStatusInfo
	err := g.execute(ctx, g.cfg.QueryTimeout, func(ctx context.Context) error {
		var err error
		info, err = g.client.TransferStatus(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
