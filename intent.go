package x402

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BuildIntent produces a canonical PaymentIntent from a displayed price and
// the engine configuration. The payee resolves from explicit configuration
// or the network's default treasury; on-chain parameters resolve from the
// static network table. Returns ErrNoTreasury when no payee can be resolved
// and ErrInvalidNetwork for an unrecognized network.
func BuildIntent(amount, description, payer string, cfg Config) (*PaymentIntent, error) {
	network, err := GetNetworkConfig(cfg.Network)
	if err != nil {
		return nil, err
	}

	payee := cfg.TreasuryAddress
	if payee == "" {
		payee = network.DefaultTreasury
	}
	if payee == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTreasury, cfg.Network)
	}

	atomic, err := AmountToAtomic(amount)
	if err != nil {
		return nil, err
	}

	return &PaymentIntent{
		Amount:       amount,
		AtomicAmount: atomic,
		Description:  description,
		Payer:        payer,
		Payee:        payee,
		Network:      cfg.Network,
		Currency:     Currency,
		Mint:         network.USDCMint,
		Nonce:        uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// IntentFromRequirements produces a PaymentIntent from a server-quoted
// payment option. The server's amount, destination, and mint take precedence
// over local configuration; the description falls back to the caller's when
// the server supplies none.
func IntentFromRequirements(req PaymentRequirements, description, payer string) (*PaymentIntent, error) {
	if err := ValidateNetwork(req.Network); err != nil {
		return nil, err
	}
	if req.PayTo == "" {
		return nil, fmt.Errorf("%w: challenge has no payTo", ErrNoTreasury)
	}

	atomic, err := AmountToAtomic(req.Amount)
	if err != nil {
		return nil, err
	}

	if req.Description != "" {
		description = req.Description
	}

	return &PaymentIntent{
		Amount:       req.Amount,
		AtomicAmount: atomic,
		Description:  description,
		Payer:        payer,
		Payee:        req.PayTo,
		Network:      req.Network,
		Currency:     Currency,
		Mint:         req.Asset,
		Nonce:        uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}, nil
}
