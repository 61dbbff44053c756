package x402

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Wallet is the signing capability consumed by the engine. It is injected at
// engine construction rather than discovered ambiently, so the engine can be
// exercised with a mock signer.
//
// Rejection (the user declines in their wallet, or the capability is absent)
// is a terminal failure for the attempt; the engine never retries signing.
type Wallet interface {
	// Address returns the connected account and true, or false when no
	// account is connected.
	Address() (solana.PublicKey, bool)

	// SignIntent produces a signed transaction for the intent. The
	// transaction is partially signed when intent.FeePayer names a
	// facilitator fee payer, fully signed otherwise.
	SignIntent(ctx context.Context, intent *PaymentIntent) (*SignedPayment, error)
}
