package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig bounds the facilitator round-trips so an attempt fails with
// a timeout instead of hanging indefinitely.
type TimeoutConfig struct {
	// VerifyTimeout is the maximum time to wait for payment verification.
	VerifyTimeout time.Duration

	// SettleTimeout is the maximum time to wait for on-chain settlement.
	SettleTimeout time.Duration

	// RequestTimeout is the overall timeout for HTTP requests.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides sensible defaults for payment operations.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// Validate ensures timeout values are usable.
func (tc TimeoutConfig) Validate() error {
	if tc.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", tc.VerifyTimeout)
	}
	if tc.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", tc.SettleTimeout)
	}
	if tc.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	}
	if tc.SettleTimeout < tc.VerifyTimeout {
		return fmt.Errorf("settle timeout (%v) should be >= verify timeout (%v)",
			tc.SettleTimeout, tc.VerifyTimeout)
	}
	return nil
}

// Config is the engine configuration. Zero values fall back to the static
// network table and protocol defaults.
type Config struct {
	// Network selects the Solana environment. Defaults to devnet.
	Network Network

	// RPCURL overrides the default cluster endpoint for balance queries.
	RPCURL string

	// APIEndpoint is the resource server issuing the 402 challenge. When
	// set, the engine uses the server-quoted price and destination; local
	// configuration is fallback only.
	APIEndpoint string

	// TreasuryAddress overrides the network's default treasury.
	TreasuryAddress string

	// FacilitatorURL overrides the default facilitator service.
	FacilitatorURL string

	// MaxPaymentAmount is an optional decimal USDC ceiling enforced before
	// any signing request reaches the wallet. Empty means no ceiling.
	MaxPaymentAmount string

	// Timeouts bounds the facilitator round-trips.
	Timeouts TimeoutConfig
}

// WithDefaults returns a copy of the config with unset fields resolved from
// the network table and protocol defaults.
func (c Config) WithDefaults() (Config, error) {
	if c.Network == "" {
		c.Network = NetworkDevnet
	}

	network, err := GetNetworkConfig(c.Network)
	if err != nil {
		return Config{}, err
	}

	if c.RPCURL == "" {
		c.RPCURL = network.RPCURL
	}
	if c.FacilitatorURL == "" {
		c.FacilitatorURL = DefaultFacilitatorURL
	}
	if c.Timeouts == (TimeoutConfig{}) {
		c.Timeouts = DefaultTimeouts
	}

	if c.MaxPaymentAmount != "" {
		if err := ValidateAmount(c.MaxPaymentAmount, ""); err != nil {
			return Config{}, fmt.Errorf("invalid max payment amount: %w", err)
		}
	}
	if err := c.Timeouts.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
