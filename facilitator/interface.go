// Package facilitator defines the contract for payment verification and
// settlement services.
//
// A facilitator verifies a signed payment against the claimed intent and
// submits it for on-chain settlement, decoupling the resource server from
// ledger mechanics. This package defines the interface and the wire request
// types shared by its implementations.
package facilitator

import (
	"context"

	x402 "github.com/postmanode/x402-solana-go"
)

// Interface is the two-phase facilitator contract. Verification and
// settlement are separately failable steps so a verified-but-timed-out
// settlement is distinguishable from a full rejection.
type Interface interface {
	// Verify confirms the signed payload matches the claimed payer, the
	// amount matches the displayed price, and the destination matches the
	// expected treasury. It does not execute the transaction.
	Verify(ctx context.Context, signed *x402.SignedPayment) (*x402.VerifyResponse, error)

	// Settle submits a verified payment to the ledger and waits for
	// finality or a bounded timeout. Only called after Verify succeeds.
	Settle(ctx context.Context, signed *x402.SignedPayment) (*x402.SettleResponse, error)

	// Supported queries the payment types the facilitator can settle,
	// including the fee payer it sponsors for each network.
	Supported(ctx context.Context) (*x402.SupportedResponse, error)
}

// VerifyRequest is the request payload sent to POST /verify.
type VerifyRequest struct {
	// SignedPayload is the base64-encoded signed transaction.
	SignedPayload string `json:"signedPayload"`

	// Amount is the decimal USDC amount the payer was shown.
	Amount string `json:"amount"`

	// Currency is the settlement token symbol.
	Currency string `json:"currency"`

	// Payer is the account claimed to have signed the payload.
	Payer string `json:"payer"`

	// Payee is the treasury the payment must reach.
	Payee string `json:"payee"`

	// Network is the Solana environment.
	Network x402.Network `json:"network"`

	// Nonce de-duplicates settlement calls for retried attempts.
	Nonce string `json:"nonce,omitempty"`

	// Description is the free-text payment description.
	Description string `json:"description,omitempty"`
}

// SettleRequest is the request payload sent to POST /settle.
type SettleRequest struct {
	// SignedPayload is the base64-encoded signed transaction.
	SignedPayload string `json:"signedPayload"`

	// Amount is the decimal USDC amount being settled.
	Amount string `json:"amount"`

	// Currency is the settlement token symbol.
	Currency string `json:"currency"`

	// Payer is the paying account.
	Payer string `json:"payer"`

	// Payee is the treasury receiving the payment.
	Payee string `json:"payee"`

	// Network is the Solana environment.
	Network x402.Network `json:"network"`

	// Nonce de-duplicates settlement calls for retried attempts.
	Nonce string `json:"nonce,omitempty"`
}

// NewVerifyRequest builds the verification request for a signed payment.
func NewVerifyRequest(signed *x402.SignedPayment) VerifyRequest {
	return VerifyRequest{
		SignedPayload: signed.Transaction,
		Amount:        signed.Intent.Amount,
		Currency:      signed.Intent.Currency,
		Payer:         signed.Intent.Payer,
		Payee:         signed.Intent.Payee,
		Network:       signed.Intent.Network,
		Nonce:         signed.Intent.Nonce,
		Description:   signed.Intent.Description,
	}
}

// NewSettleRequest builds the settlement request for a signed payment.
func NewSettleRequest(signed *x402.SignedPayment) SettleRequest {
	return SettleRequest{
		SignedPayload: signed.Transaction,
		Amount:        signed.Intent.Amount,
		Currency:      signed.Intent.Currency,
		Payer:         signed.Intent.Payer,
		Payee:         signed.Intent.Payee,
		Network:       signed.Intent.Network,
		Nonce:         signed.Intent.Nonce,
	}
}
