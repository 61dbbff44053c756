// Package validation provides validation utilities for payment data:
// Solana addresses, decimal amounts, networks, and challenge requirements.
package validation

import (
	"fmt"
	"regexp"

	x402 "github.com/postmanode/x402-solana-go"
)

// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset).
var solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidateAddress validates a base58 Solana account address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !solanaAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid Solana address format: %s (expected base58 string 32-44 chars)", address)
	}
	return nil
}

// ValidateRequirements performs comprehensive validation of a server-quoted
// payment option: amount, network, addresses, and scheme.
func ValidateRequirements(req x402.PaymentRequirements) error {
	if err := x402.ValidateAmount(req.Amount, ""); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirements: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirements: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("invalid requirements: asset %w", err)
	}

	switch req.Scheme {
	case x402.Scheme:
	case "":
		return fmt.Errorf("invalid requirements: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirements: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirements: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	return nil
}

// ValidateIntent validates a built payment intent before it is signed.
func ValidateIntent(intent *x402.PaymentIntent) error {
	if intent == nil {
		return fmt.Errorf("intent cannot be nil")
	}
	if err := x402.ValidateAmount(intent.Amount, ""); err != nil {
		return err
	}
	if err := x402.ValidateNetwork(intent.Network); err != nil {
		return err
	}
	if err := ValidateAddress(intent.Payer); err != nil {
		return fmt.Errorf("payer: %w", err)
	}
	if err := ValidateAddress(intent.Payee); err != nil {
		return fmt.Errorf("payee: %w", err)
	}
	if err := ValidateAddress(intent.Mint); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if intent.Nonce == "" {
		return fmt.Errorf("intent nonce cannot be empty")
	}
	return nil
}
