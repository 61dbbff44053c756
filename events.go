package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment attempt has started.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment settled.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent is a payment lifecycle notification delivered to engine
// callbacks for logging, monitoring, and UI updates.
type PaymentEvent struct {
	// Type is the event type.
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Amount is the decimal USDC amount of the attempt.
	Amount string

	// Description is the attempt's description.
	Description string

	// Network is the Solana environment.
	Network Network

	// Recipient is the treasury address, when known.
	Recipient string

	// Payer is the paying account, when known.
	Payer string

	// TransactionID is the settled transaction signature (success only).
	TransactionID string

	// Failure describes what went wrong (failure only).
	Failure *PaymentFailure

	// Duration is the time from attempt start to the terminal event.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks run synchronously inside
// the payment flow and must return quickly.
type PaymentCallback func(PaymentEvent)
