// Package paywall implements the payment orchestration engine: it takes a
// displayed USDC price through guard checks, wallet signing, facilitator
// verification, and on-chain settlement, exposing a deterministic payment
// status at every step.
package paywall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	x402 "github.com/postmanode/x402-solana-go"
	"github.com/postmanode/x402-solana-go/balance"
	"github.com/postmanode/x402-solana-go/facilitator"
	x402http "github.com/postmanode/x402-solana-go/http"
	"github.com/postmanode/x402-solana-go/validation"
)

// ChallengeFetcher probes a resource endpoint for its 402 payment challenge.
type ChallengeFetcher interface {
	FetchRequired(ctx context.Context, endpoint string) (*x402.PaymentRequired, error)
}

// BalanceProbe fetches a display balance for a wallet account. It never
// fails; unknown balances come back as a default display value.
type BalanceProbe interface {
	Fetch(ctx context.Context, owner string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithFacilitator replaces the default HTTP facilitator client.
func WithFacilitator(f facilitator.Interface) Option {
	return func(e *Engine) {
		e.facilitator = f
	}
}

// WithChallengeFetcher replaces the default HTTP challenge client.
func WithChallengeFetcher(f ChallengeFetcher) Option {
	return func(e *Engine) {
		e.challenges = f
	}
}

// WithProbe replaces the default RPC balance probe.
func WithProbe(p BalanceProbe) Option {
	return func(e *Engine) {
		e.probe = p
	}
}

// WithLogger sets the structured logger. Defaults to the standard logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithPaymentCallbacks registers callbacks invoked on payment lifecycle
// events. Callbacks run synchronously inside Pay and must return quickly.
func WithPaymentCallbacks(callbacks ...x402.PaymentCallback) Option {
	return func(e *Engine) {
		e.callbacks = append(e.callbacks, callbacks...)
	}
}

// WithConnectHandler registers a callback invoked when a wallet connects,
// after the balance refresh completes.
func WithConnectHandler(handler func(address string)) Option {
	return func(e *Engine) {
		e.onConnect = handler
	}
}

// Engine drives the payment lifecycle. All methods are safe for concurrent
// use; at most one payment attempt is in flight per engine at any time.
type Engine struct {
	cfg         x402.Config
	wallet      x402.Wallet
	facilitator facilitator.Interface
	challenges  ChallengeFetcher
	probe       BalanceProbe
	logger      *logrus.Logger
	callbacks   []x402.PaymentCallback
	onConnect   func(address string)

	mu               sync.Mutex
	status           x402.Status
	failure          *x402.PaymentFailure
	receipt          *x402.SettlementReceipt
	balance          string
	feePayer         string
	feePayerResolved bool
}

// New creates an engine for the given configuration and wallet. Unset config
// fields resolve to network-table and protocol defaults.
func New(cfg x402.Config, wallet x402.Wallet, opts ...Option) (*Engine, error) {
	if wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}

	resolved, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     resolved,
		wallet:  wallet,
		status:  x402.StatusIdle,
		balance: balance.DefaultBalance,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.facilitator == nil {
		client := x402http.NewFacilitatorClient(resolved.FacilitatorURL)
		client.Timeouts = resolved.Timeouts
		e.facilitator = client
	}
	if e.challenges == nil {
		e.challenges = &x402http.ChallengeClient{}
	}
	if e.probe == nil {
		probe, err := balance.New(resolved.Network, resolved.RPCURL)
		if err != nil {
			return nil, err
		}
		e.probe = probe
	}

	return e, nil
}

// Status returns the current lifecycle state.
func (e *Engine) Status() x402.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Failure returns the failure of the last attempt, or nil when the engine is
// not in the error state.
func (e *Engine) Failure() *x402.PaymentFailure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// Receipt returns the settlement receipt of the last successful attempt, or
// nil when the engine is not in the success state.
func (e *Engine) Receipt() *x402.SettlementReceipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.receipt
}

// TransactionID returns the settled transaction signature, or an empty
// string when no attempt has succeeded.
func (e *Engine) TransactionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.receipt == nil {
		return ""
	}
	return e.receipt.TransactionID
}

// Balance returns the last known display balance for the connected wallet.
func (e *Engine) Balance() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// Reset returns the engine to the idle state, clearing the recorded failure
// or receipt. Resetting while an attempt is in flight is an error; resetting
// an already idle engine is a no-op.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == x402.StatusPending {
		return fmt.Errorf("%w: cannot reset while a payment is in flight", x402.ErrInvalidState)
	}

	e.status = x402.StatusIdle
	e.failure = nil
	e.receipt = nil
	return nil
}

// HandleConnectionChange reacts to a wallet connection change. On connect it
// refreshes the display balance and invokes the connect handler; on
// disconnect it resets the balance to the default display value.
func (e *Engine) HandleConnectionChange(ctx context.Context, connected bool) {
	if !connected {
		e.mu.Lock()
		e.balance = balance.DefaultBalance
		e.mu.Unlock()
		return
	}

	address, ok := e.wallet.Address()
	if !ok {
		return
	}

	fetched := e.probe.Fetch(ctx, address.String())
	e.mu.Lock()
	e.balance = fetched
	e.mu.Unlock()

	if e.onConnect != nil {
		e.onConnect(address.String())
	}
}

// Pay runs one payment attempt for the displayed amount. It returns nil when
// the payment settles, and a *x402.PaymentFailure otherwise.
//
// Calling Pay while an attempt is in flight logs a warning and returns nil
// without starting a second attempt. Calling Pay from a terminal state
// (success or error) returns ErrInvalidState; Reset first.
func (e *Engine) Pay(ctx context.Context, amount, description string) error {
	e.mu.Lock()
	switch e.status {
	case x402.StatusPending:
		e.mu.Unlock()
		e.logger.WithFields(logrus.Fields{
			"amount":      amount,
			"description": description,
		}).Warn("payment already in progress, ignoring duplicate request")
		return nil
	case x402.StatusSuccess, x402.StatusError:
		e.mu.Unlock()
		return fmt.Errorf("%w: previous attempt not cleared, call Reset first", x402.ErrInvalidState)
	}
	e.status = x402.StatusPending
	e.failure = nil
	e.receipt = nil
	e.mu.Unlock()

	started := time.Now()
	e.emit(x402.PaymentEvent{
		Type:        x402.PaymentEventAttempt,
		Timestamp:   started,
		Amount:      amount,
		Description: description,
		Network:     e.cfg.Network,
	})

	receipt, intent, err := e.attempt(ctx, amount, description)
	if err != nil {
		failure := x402.Classify(err)
		e.mu.Lock()
		e.status = x402.StatusError
		e.failure = failure
		e.mu.Unlock()

		e.logger.WithFields(logrus.Fields{
			"kind":      failure.Kind,
			"retriable": failure.Retriable,
			"amount":    amount,
		}).WithError(err).Error("payment failed")

		event := x402.PaymentEvent{
			Type:        x402.PaymentEventFailure,
			Timestamp:   time.Now(),
			Amount:      amount,
			Description: description,
			Network:     e.cfg.Network,
			Failure:     failure,
			Duration:    time.Since(started),
		}
		if intent != nil {
			event.Recipient = intent.Payee
			event.Payer = intent.Payer
		}
		e.emit(event)
		return failure
	}

	e.mu.Lock()
	e.status = x402.StatusSuccess
	e.receipt = receipt
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"transaction": receipt.TransactionID,
		"amount":      receipt.ConfirmedAmount,
		"duration":    time.Since(started),
	}).Info("payment settled")

	e.emit(x402.PaymentEvent{
		Type:          x402.PaymentEventSuccess,
		Timestamp:     time.Now(),
		Amount:        amount,
		Description:   description,
		Network:       e.cfg.Network,
		Recipient:     intent.Payee,
		Payer:         intent.Payer,
		TransactionID: receipt.TransactionID,
		Duration:      time.Since(started),
	})

	e.refreshBalance(ctx)
	return nil
}

// attempt runs the guarded sign-verify-settle flow. The returned intent is
// non-nil as soon as one was built, even when the attempt fails later.
func (e *Engine) attempt(ctx context.Context, amount, description string) (*x402.SettlementReceipt, *x402.PaymentIntent, error) {
	// Ceiling check runs before anything touches the wallet or the network.
	if err := x402.ValidateAmount(amount, e.cfg.MaxPaymentAmount); err != nil {
		return nil, nil, err
	}

	address, connected := e.wallet.Address()
	if !connected {
		return nil, nil, x402.ErrWalletNotConnected
	}

	intent, err := e.buildIntent(ctx, amount, description, address.String())
	if err != nil {
		return nil, nil, err
	}

	// A server-quoted price still has to clear the local ceiling.
	if intent.Amount != amount {
		if err := x402.ValidateAmount(intent.Amount, e.cfg.MaxPaymentAmount); err != nil {
			return nil, intent, err
		}
	}

	// Full intent validation before the wallet is asked to sign.
	if err := validation.ValidateIntent(intent); err != nil {
		return nil, intent, err
	}

	intent.FeePayer = e.resolveFeePayer(ctx)

	signed, err := e.wallet.SignIntent(ctx, intent)
	if err != nil {
		return nil, intent, err
	}

	verifyCtx, cancelVerify := context.WithTimeout(ctx, e.cfg.Timeouts.VerifyTimeout)
	defer cancelVerify()
	if _, err := e.facilitator.Verify(verifyCtx, signed); err != nil {
		return nil, intent, err
	}

	settleCtx, cancelSettle := context.WithTimeout(ctx, e.cfg.Timeouts.SettleTimeout)
	defer cancelSettle()
	settlement, err := e.facilitator.Settle(settleCtx, signed)
	if err != nil {
		return nil, intent, err
	}

	confirmed := settlement.ConfirmedAmount
	if confirmed == "" {
		confirmed = intent.Amount
	}
	settledAt := settlement.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	return &x402.SettlementReceipt{
		TransactionID:   settlement.TransactionID,
		ConfirmedAmount: confirmed,
		SettledAt:       settledAt,
	}, intent, nil
}

// buildIntent prefers the resource server's quoted challenge over local
// configuration. A failed or missing challenge degrades to configuration
// with a warning; the payment still proceeds.
func (e *Engine) buildIntent(ctx context.Context, amount, description, payer string) (*x402.PaymentIntent, error) {
	if e.cfg.APIEndpoint != "" {
		required, err := e.challenges.FetchRequired(ctx, e.cfg.APIEndpoint)
		if err != nil {
			e.logger.WithError(err).Warn("challenge fetch failed, falling back to configured payment parameters")
		} else if required != nil {
			req, err := x402http.SelectRequirement(required, e.cfg.Network)
			if err != nil {
				e.logger.WithError(err).Warn("challenge offers no usable option, falling back to configured payment parameters")
			} else {
				return x402.IntentFromRequirements(*req, description, payer)
			}
		}
	}

	return x402.BuildIntent(amount, description, payer, e.cfg)
}

// resolveFeePayer asks the facilitator once for the fee payer it sponsors on
// this network and caches the answer. Best effort: on failure the wallet
// pays its own fees.
func (e *Engine) resolveFeePayer(ctx context.Context) string {
	e.mu.Lock()
	if e.feePayerResolved {
		payer := e.feePayer
		e.mu.Unlock()
		return payer
	}
	e.mu.Unlock()

	supported, err := e.facilitator.Supported(ctx)
	if err != nil {
		e.logger.WithError(err).Debug("fee payer discovery failed, wallet pays its own fees")
		return ""
	}

	var payer string
	for _, kind := range supported.Kinds {
		if kind.Network == e.cfg.Network {
			payer = kind.FeePayer
			break
		}
	}

	e.mu.Lock()
	e.feePayer = payer
	e.feePayerResolved = true
	e.mu.Unlock()
	return payer
}

// refreshBalance updates the display balance after a settled payment.
func (e *Engine) refreshBalance(ctx context.Context) {
	address, ok := e.wallet.Address()
	if !ok {
		return
	}
	fetched := e.probe.Fetch(ctx, address.String())
	e.mu.Lock()
	e.balance = fetched
	e.mu.Unlock()
}

// emit delivers an event to every registered callback.
func (e *Engine) emit(event x402.PaymentEvent) {
	for _, callback := range e.callbacks {
		callback(event)
	}
}
