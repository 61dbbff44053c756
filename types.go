// Package x402 implements the client side of the x402 "payment required"
// protocol for Solana, settled in USDC.
//
// A resource server answers an unpaid request with HTTP 402 and a set of
// payment requirements. This package turns a displayed price into a signed,
// facilitator-verified, on-chain-settled SPL token transfer and reports a
// deterministic payment status to the caller. The orchestration engine lives
// in the paywall subpackage; this package holds the shared data model.
package x402

import (
	"math/big"
	"time"
)

// Currency is the only payment unit supported: Circle's USD Coin.
const Currency = "USDC"

// USDCDecimals is the number of decimal places for USDC (always 6).
const USDCDecimals = 6

// Scheme is the payment scheme identifier for exact-amount transfers.
const Scheme = "exact"

// PaymentIntent is an immutable description of what must be paid to whom.
// One intent is created per pay attempt and discarded when the attempt
// resolves; it is never mutated after construction.
type PaymentIntent struct {
	// Amount is the decimal USDC amount (e.g. "0.01"). Always > 0.
	Amount string

	// AtomicAmount is Amount converted once to atomic units (6 decimals).
	AtomicAmount uint64

	// Description is free text shown to the payer and the facilitator.
	Description string

	// Payer is the base58 account that signs the transfer.
	Payer string

	// Payee is the base58 treasury account that receives the payment.
	Payee string

	// Network is the Solana environment the transfer settles on.
	Network Network

	// Currency is always "USDC".
	Currency string

	// Mint is the USDC mint address for Network.
	Mint string

	// FeePayer is the facilitator account that sponsors transaction fees.
	// Empty when the payer covers its own fees.
	FeePayer string

	// Nonce uniquely identifies this intent so the facilitator can
	// de-duplicate settlement calls for retried attempts.
	Nonce string

	// CreatedAt is when the intent was built.
	CreatedAt time.Time
}

// SignedPayment is a PaymentIntent plus the signed transaction produced for
// it. It belongs to the attempt that created it and is never reused.
type SignedPayment struct {
	// Intent is the payment the transaction was signed for.
	Intent PaymentIntent

	// Transaction is the base64-encoded signed (or partially signed, when a
	// facilitator fee payer is involved) Solana transaction.
	Transaction string

	// Signer is the base58 account that signed the transaction.
	Signer string
}

// SettlementReceipt is the facilitator's proof that a payment reached
// finality on the ledger. Immutable once constructed.
type SettlementReceipt struct {
	// TransactionID is the ledger-assigned transaction signature.
	TransactionID string

	// ConfirmedAmount is the final settled decimal USDC amount.
	ConfirmedAmount string

	// SettledAt is when the transaction was confirmed final.
	SettledAt time.Time
}

// Status is the externally observed payment lifecycle state. Exactly one
// Status exists per engine instance at any time.
type Status string

const (
	// StatusIdle means no attempt is active and no outcome is recorded.
	StatusIdle Status = "idle"

	// StatusPending means an attempt is in flight.
	StatusPending Status = "pending"

	// StatusSuccess means the last attempt settled; a receipt exists.
	StatusSuccess Status = "success"

	// StatusError means the last attempt failed; a failure exists.
	StatusError Status = "error"
)

// PaymentRequirements is a single acceptable payment option, as quoted by a
// resource server in its 402 challenge.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier ("exact").
	Scheme string `json:"scheme"`

	// Network is the Solana environment the server accepts.
	Network Network `json:"network"`

	// Amount is the decimal USDC price of the resource.
	Amount string `json:"amount"`

	// Asset is the USDC mint address for Network.
	Asset string `json:"asset"`

	// PayTo is the treasury address that receives the payment.
	PayTo string `json:"payTo"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// MaxTimeoutSeconds is the validity period for the payment.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`
}

// PaymentRequired is the 402 response body sent by resource servers.
type PaymentRequired struct {
	// Error is a human-readable message explaining why payment is required.
	Error string `json:"error,omitempty"`

	// Accepts lists the payment options the server will accept.
	Accepts []PaymentRequirements `json:"accepts"`
}

// VerifyResponse is returned by the facilitator verification endpoint.
type VerifyResponse struct {
	// Verified indicates whether the signed payment matches the claimed
	// payer, amount, and treasury destination.
	Verified bool `json:"verified"`

	// Reason explains a failed verification.
	Reason string `json:"reason,omitempty"`

	// Payer is the address the facilitator recovered from the signature.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is returned by the facilitator settlement endpoint.
type SettleResponse struct {
	// TransactionID is the ledger-assigned transaction signature.
	TransactionID string `json:"transactionId"`

	// ConfirmedAmount is the final settled decimal USDC amount.
	ConfirmedAmount string `json:"confirmedAmount"`

	// SettledAt is when the transaction was confirmed final.
	SettledAt time.Time `json:"settledAt"`
}

// SupportedKind describes a payment type a facilitator can settle.
type SupportedKind struct {
	// Network is the Solana environment.
	Network Network `json:"network"`

	// Currency is the settlement token symbol.
	Currency string `json:"currency"`

	// FeePayer is the facilitator account that sponsors transaction fees
	// for partially signed payments on this network, if any.
	FeePayer string `json:"feePayer,omitempty"`
}

// SupportedResponse is returned by the facilitator supported endpoint.
type SupportedResponse struct {
	// Kinds lists the payment types supported by the facilitator.
	Kinds []SupportedKind `json:"kinds"`
}

// AmountToAtomic converts a decimal USDC amount string to atomic units.
// For example, "1.5" becomes 1500000. Returns ErrInvalidAmount for
// malformed, non-positive, or sub-atomic-precision amounts.
func AmountToAtomic(amount string) (uint64, error) {
	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return 0, ErrInvalidAmount
	}

	if value.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(USDCDecimals), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return 0, ErrInvalidAmount
	}
	if !value.Num().IsUint64() {
		return 0, ErrInvalidAmount
	}
	return value.Num().Uint64(), nil
}

// AtomicToAmount converts atomic units to a decimal USDC string.
// For example, 1500000 becomes "1.500000".
func AtomicToAmount(atomic uint64) string {
	rat := new(big.Rat).SetInt(new(big.Int).SetUint64(atomic))
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(USDCDecimals), nil))
	rat.Quo(rat, scale)
	return rat.FloatString(USDCDecimals)
}
