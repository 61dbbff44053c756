package x402

import "fmt"

// Network identifies a supported Solana environment. The set is closed:
// network parameters are resolved from a static table keyed by these values,
// never by free-text parsing.
type Network string

const (
	// NetworkMainnet is Solana mainnet-beta.
	NetworkMainnet Network = "solana"

	// NetworkDevnet is Solana devnet.
	NetworkDevnet Network = "solana-devnet"
)

// DefaultFacilitatorURL is the facilitator used when none is configured.
const DefaultFacilitatorURL = "https://facilitator.payai.network"

// NetworkConfig holds the on-chain parameters for one Solana environment.
type NetworkConfig struct {
	// Network is the environment identifier.
	Network Network

	// Label is the human-readable environment name.
	Label string

	// USDCMint is the official Circle USDC mint address.
	USDCMint string

	// RPCURL is the default public cluster endpoint.
	RPCURL string

	// DefaultTreasury receives payments when no treasury is configured.
	DefaultTreasury string
}

// Predefined network configurations.
var (
	// Mainnet is the configuration for Solana mainnet-beta.
	// USDC mint verified 2025-10-28.
	Mainnet = NetworkConfig{
		Network:         NetworkMainnet,
		Label:           "Mainnet",
		USDCMint:        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		RPCURL:          "https://api.mainnet-beta.solana.com",
		DefaultTreasury: "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS",
	}

	// Devnet is the configuration for Solana devnet.
	// USDC mint verified 2025-10-28.
	Devnet = NetworkConfig{
		Network:         NetworkDevnet,
		Label:           "Devnet",
		USDCMint:        "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		RPCURL:          "https://api.devnet.solana.com",
		DefaultTreasury: "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T",
	}
)

// networkConfigs maps network identifiers to their configurations.
var networkConfigs = map[Network]NetworkConfig{
	NetworkMainnet: Mainnet,
	NetworkDevnet:  Devnet,
}

// GetNetworkConfig returns the configuration for a network identifier.
// Returns ErrInvalidNetwork if the network is not recognized.
func GetNetworkConfig(network Network) (NetworkConfig, error) {
	config, ok := networkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return config, nil
}

// ValidateNetwork reports whether a network identifier is in the supported set.
func ValidateNetwork(network Network) error {
	if _, ok := networkConfigs[network]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return nil
}
