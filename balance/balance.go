// Package balance provides a best-effort USDC balance probe for connected
// wallets. Balances are advisory display values only; affordability is
// decided by the facilitator during verification, never by the probe.
package balance

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/postmanode/x402-solana-go"
	solutil "github.com/postmanode/x402-solana-go/internal/solana"
)

// DefaultBalance is the display value used when no balance is known.
const DefaultBalance = "0.00"

// RPCClient is the interface for the Solana RPC operations the probe needs.
// It allows dependency injection for testing.
type RPCClient interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// Probe fetches USDC balances for wallet accounts. The zero value is not
// usable; construct with New.
type Probe struct {
	network x402.Network
	mint    solana.PublicKey
	client  RPCClient
}

// Option configures a Probe.
type Option func(*Probe)

// WithRPCClient sets a custom RPC client.
func WithRPCClient(client RPCClient) Option {
	return func(p *Probe) {
		p.client = client
	}
}

// New creates a balance probe for a network. The RPC endpoint defaults to the
// network's public cluster endpoint; rpcURL overrides it when non-empty.
func New(network x402.Network, rpcURL string, opts ...Option) (*Probe, error) {
	cfg, err := x402.GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	mint, err := solana.PublicKeyFromBase58(cfg.USDCMint)
	if err != nil {
		return nil, err
	}

	if rpcURL == "" {
		rpcURL = cfg.RPCURL
	}

	p := &Probe{
		network: network,
		mint:    mint,
		client:  rpc.New(rpcURL),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Fetch returns the decimal USDC balance held by owner. It never fails: any
// error (bad address, missing token account, RPC outage) yields
// DefaultBalance so display code has no error path.
func (p *Probe) Fetch(ctx context.Context, owner string) string {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return DefaultBalance
	}

	ata, err := solutil.DeriveAssociatedTokenAddress(ownerKey, p.mint)
	if err != nil {
		return DefaultBalance
	}

	result, err := p.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	if err != nil || result == nil || result.Value == nil {
		return DefaultBalance
	}

	if result.Value.UiAmountString == "" {
		return DefaultBalance
	}
	return result.Value.UiAmountString
}
