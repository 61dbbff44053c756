package x402

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for payment operations.
var (
	// ErrInvalidState indicates an operation was attempted from a lifecycle
	// state that does not permit it.
	ErrInvalidState = errors.New("x402: operation not permitted in current payment state")

	// ErrInvalidAmount indicates a malformed or non-positive amount.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrAmountExceeded indicates the amount exceeds the configured ceiling.
	ErrAmountExceeded = errors.New("x402: payment amount exceeds configured limit")

	// ErrInvalidNetwork indicates an unrecognized network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrNoTreasury indicates no payee address could be resolved.
	ErrNoTreasury = errors.New("x402: no treasury address configured for network")

	// ErrWalletNotConnected indicates the signing capability has no account.
	ErrWalletNotConnected = errors.New("x402: wallet not connected")

	// ErrSigningRejected indicates the wallet declined to sign the payment.
	ErrSigningRejected = errors.New("x402: payment signing rejected")

	// ErrFacilitatorUnavailable indicates the facilitator could not be reached.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates the facilitator rejected the payment
	// during verification.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates the facilitator could not settle the
	// payment on the ledger.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrMalformedChallenge indicates a 402 challenge body could not be parsed.
	ErrMalformedChallenge = errors.New("x402: malformed payment challenge")
)

// FailureKind classifies a terminal payment failure.
type FailureKind string

const (
	// KindWalletNotConnected means no signing account was available.
	KindWalletNotConnected FailureKind = "WalletNotConnected"

	// KindSigningRejected means the wallet declined to sign.
	KindSigningRejected FailureKind = "SigningRejected"

	// KindAmountExceedsLimit means the amount failed the configured ceiling.
	KindAmountExceedsLimit FailureKind = "AmountExceedsLimit"

	// KindInsufficientBalance means the payer lacks funds to cover the amount.
	KindInsufficientBalance FailureKind = "InsufficientBalance"

	// KindFacilitatorRejected means verification or settlement was refused.
	KindFacilitatorRejected FailureKind = "FacilitatorRejected"

	// KindNetworkUnavailable means a transport failure prevented completion.
	KindNetworkUnavailable FailureKind = "NetworkUnavailable"

	// KindTimeout means the settlement phase exceeded its bounded timeout.
	KindTimeout FailureKind = "Timeout"

	// KindUnknown is the fallback for unclassified failures.
	KindUnknown FailureKind = "Unknown"
)

// PaymentFailure is the single structured outcome of a failed attempt.
// Every failure path ends in a populated PaymentFailure with a
// human-readable message; there are no silent failures.
type PaymentFailure struct {
	// Kind classifies the failure.
	Kind FailureKind

	// Message is the human-readable explanation shown to the caller.
	Message string

	// Retriable advises whether a reset-and-retry may succeed.
	Retriable bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (f *PaymentFailure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

// Unwrap returns the underlying error.
func (f *PaymentFailure) Unwrap() error {
	return f.Err
}

// NewFailure creates a PaymentFailure with the advisory retriable flag
// derived from the kind: transport failures and timeouts are worth retrying,
// everything else needs caller intervention first.
func NewFailure(kind FailureKind, message string, err error) *PaymentFailure {
	return &PaymentFailure{
		Kind:      kind,
		Message:   message,
		Retriable: kind == KindNetworkUnavailable || kind == KindTimeout,
		Err:       err,
	}
}

// Classify maps an error from any stage of the payment flow to a
// PaymentFailure. Errors that are already a PaymentFailure pass through
// unchanged.
func Classify(err error) *PaymentFailure {
	var failure *PaymentFailure
	if errors.As(err, &failure) {
		return failure
	}

	switch {
	case errors.Is(err, ErrAmountExceeded):
		return NewFailure(KindAmountExceedsLimit, "payment amount exceeds the configured limit", err)
	case errors.Is(err, ErrInvalidAmount):
		return NewFailure(KindAmountExceedsLimit, "payment amount is not a positive USDC value", err)
	case errors.Is(err, ErrWalletNotConnected):
		return NewFailure(KindWalletNotConnected, "connect a wallet before paying", err)
	case errors.Is(err, ErrSigningRejected):
		return NewFailure(KindSigningRejected, "the wallet declined to sign the payment", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewFailure(KindTimeout, "the payment timed out before settlement completed", err)
	case errors.Is(err, ErrFacilitatorUnavailable):
		return NewFailure(KindNetworkUnavailable, "the payment facilitator could not be reached", err)
	case errors.Is(err, ErrVerificationFailed), errors.Is(err, ErrSettlementFailed):
		if mentionsInsufficientFunds(err) {
			return NewFailure(KindInsufficientBalance, "the wallet does not hold enough USDC for this payment", err)
		}
		return NewFailure(KindFacilitatorRejected, "the facilitator rejected the payment", err)
	case errors.Is(err, ErrInvalidNetwork), errors.Is(err, ErrNoTreasury):
		return NewFailure(KindUnknown, "the payment is misconfigured", err)
	default:
		return NewFailure(KindUnknown, "the payment failed unexpectedly", err)
	}
}

// mentionsInsufficientFunds reports whether a facilitator rejection reason
// indicates a condition retrying will not fix.
func mentionsInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient")
}
