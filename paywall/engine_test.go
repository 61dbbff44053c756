package paywall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	x402 "github.com/postmanode/x402-solana-go"
)

const (
	testPayerAddress = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	testFeePayer     = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"
)

// mockWallet is a scriptable signing capability.
type mockWallet struct {
	connected bool
	signErr   error
	signCalls atomic.Int32
	blockSign chan struct{} // when non-nil, SignIntent waits for it to close

	mu         sync.Mutex
	lastIntent *x402.PaymentIntent
}

func (w *mockWallet) Address() (solana.PublicKey, bool) {
	if !w.connected {
		return solana.PublicKey{}, false
	}
	return solana.MustPublicKeyFromBase58(testPayerAddress), true
}

func (w *mockWallet) SignIntent(ctx context.Context, intent *x402.PaymentIntent) (*x402.SignedPayment, error) {
	w.signCalls.Add(1)
	w.mu.Lock()
	w.lastIntent = intent
	w.mu.Unlock()
	if w.blockSign != nil {
		<-w.blockSign
	}
	if w.signErr != nil {
		return nil, w.signErr
	}
	return &x402.SignedPayment{
		Intent:      *intent,
		Transaction: "AQAB",
		Signer:      testPayerAddress,
	}, nil
}

func (w *mockWallet) intent() *x402.PaymentIntent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastIntent
}

// mockFacilitator is a scriptable verify/settle service.
type mockFacilitator struct {
	verifyErr   error
	settleErr   error
	settleWait  bool // wait for context expiry instead of answering
	feePayer    string
	verifyCalls atomic.Int32
	settleCalls atomic.Int32
}

func (f *mockFacilitator) Verify(ctx context.Context, signed *x402.SignedPayment) (*x402.VerifyResponse, error) {
	f.verifyCalls.Add(1)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &x402.VerifyResponse{Verified: true, Payer: signed.Signer}, nil
}

func (f *mockFacilitator) Settle(ctx context.Context, signed *x402.SignedPayment) (*x402.SettleResponse, error) {
	f.settleCalls.Add(1)
	if f.settleWait {
		<-ctx.Done()
		return nil, fmt.Errorf("settle: %w", ctx.Err())
	}
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return &x402.SettleResponse{
		TransactionID:   "5j7s88QK3mP",
		ConfirmedAmount: signed.Intent.Amount,
		SettledAt:       time.Now().UTC(),
	}, nil
}

func (f *mockFacilitator) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	return &x402.SupportedResponse{
		Kinds: []x402.SupportedKind{
			{Network: x402.NetworkDevnet, Currency: x402.Currency, FeePayer: f.feePayer},
		},
	}, nil
}

// mockProbe returns a fixed balance.
type mockProbe struct {
	balance string
	calls   atomic.Int32
}

func (p *mockProbe) Fetch(ctx context.Context, owner string) string {
	p.calls.Add(1)
	return p.balance
}

// mockChallenges serves a canned 402 challenge.
type mockChallenges struct {
	required *x402.PaymentRequired
	err      error
	calls    atomic.Int32
}

func (c *mockChallenges) FetchRequired(ctx context.Context, endpoint string) (*x402.PaymentRequired, error) {
	c.calls.Add(1)
	return c.required, c.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(t *testing.T, cfg x402.Config, wallet *mockWallet, facilitator *mockFacilitator, opts ...Option) *Engine {
	t.Helper()
	if cfg.Network == "" {
		cfg.Network = x402.NetworkDevnet
	}
	base := []Option{
		WithFacilitator(facilitator),
		WithProbe(&mockProbe{balance: "10.00"}),
		WithLogger(quietLogger()),
	}
	engine, err := New(cfg, wallet, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine
}

func TestPaySuccess(t *testing.T) {
	wallet := &mockWallet{connected: true}
	facilitator := &mockFacilitator{feePayer: testFeePayer}

	var events []x402.PaymentEvent
	engine := newTestEngine(t, x402.Config{}, wallet, facilitator,
		WithPaymentCallbacks(func(e x402.PaymentEvent) { events = append(events, e) }),
	)

	if err := engine.Pay(context.Background(), "0.01", "Demo Content Access"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	if engine.Status() != x402.StatusSuccess {
		t.Errorf("status = %s, want success", engine.Status())
	}
	if engine.TransactionID() != "5j7s88QK3mP" {
		t.Errorf("transaction id = %s, want 5j7s88QK3mP", engine.TransactionID())
	}

	receipt := engine.Receipt()
	if receipt == nil {
		t.Fatal("expected a settlement receipt")
	}
	if receipt.ConfirmedAmount != "0.01" {
		t.Errorf("confirmed amount = %s, want 0.01", receipt.ConfirmedAmount)
	}
	if receipt.SettledAt.IsZero() {
		t.Error("expected a settlement timestamp")
	}

	if engine.Failure() != nil {
		t.Error("no failure expected after success")
	}

	// Fee payer discovery must flow into the signed intent.
	if got := wallet.intent().FeePayer; got != testFeePayer {
		t.Errorf("intent fee payer = %s, want %s", got, testFeePayer)
	}

	// One verify, one settle, in that order.
	if facilitator.verifyCalls.Load() != 1 || facilitator.settleCalls.Load() != 1 {
		t.Errorf("verify/settle calls = %d/%d, want 1/1",
			facilitator.verifyCalls.Load(), facilitator.settleCalls.Load())
	}

	// Attempt then success events.
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != x402.PaymentEventAttempt || events[1].Type != x402.PaymentEventSuccess {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].TransactionID != "5j7s88QK3mP" {
		t.Errorf("success event transaction = %s", events[1].TransactionID)
	}

	// Balance is refreshed after settlement.
	if engine.Balance() != "10.00" {
		t.Errorf("balance = %s, want refreshed 10.00", engine.Balance())
	}
}

func TestPayCeilingBlocksBeforeWallet(t *testing.T) {
	wallet := &mockWallet{connected: true}
	facilitator := &mockFacilitator{}
	engine := newTestEngine(t, x402.Config{MaxPaymentAmount: "1.00"}, wallet, facilitator)

	err := engine.Pay(context.Background(), "5.00", "Demo Content Access")
	if err == nil {
		t.Fatal("expected failure")
	}

	var failure *x402.PaymentFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error is not a PaymentFailure: %v", err)
	}
	if failure.Kind != x402.KindAmountExceedsLimit {
		t.Errorf("kind = %s, want AmountExceedsLimit", failure.Kind)
	}
	if failure.Retriable {
		t.Error("ceiling failures must not be retriable")
	}
	if engine.Status() != x402.StatusError {
		t.Errorf("status = %s, want error", engine.Status())
	}

	// The wallet and facilitator must never be contacted.
	if wallet.signCalls.Load() != 0 {
		t.Error("wallet was asked to sign an over-limit payment")
	}
	if facilitator.verifyCalls.Load() != 0 {
		t.Error("facilitator was contacted for an over-limit payment")
	}
}

func TestPayAtCeilingSucceeds(t *testing.T) {
	wallet := &mockWallet{connected: true}
	engine := newTestEngine(t, x402.Config{MaxPaymentAmount: "1.00"}, wallet, &mockFacilitator{})

	if err := engine.Pay(context.Background(), "1.00", "exactly at ceiling"); err != nil {
		t.Fatalf("Pay at the ceiling should succeed: %v", err)
	}
}

func TestPayWalletNotConnected(t *testing.T) {
	wallet := &mockWallet{connected: false}
	engine := newTestEngine(t, x402.Config{}, wallet, &mockFacilitator{})

	err := engine.Pay(context.Background(), "0.01", "test")
	var failure *x402.PaymentFailure
	if !errors.As(err, &failure) || failure.Kind != x402.KindWalletNotConnected {
		t.Fatalf("expected WalletNotConnected failure, got %v", err)
	}
	if wallet.signCalls.Load() != 0 {
		t.Error("disconnected wallet must not be asked to sign")
	}
}

func TestPayMalformedTreasuryBlocksBeforeWallet(t *testing.T) {
	wallet := &mockWallet{connected: true}
	facilitator := &mockFacilitator{}
	engine := newTestEngine(t, x402.Config{TreasuryAddress: "not-an-address"}, wallet, facilitator)

	err := engine.Pay(context.Background(), "0.01", "test")
	if err == nil {
		t.Fatal("expected failure for a malformed treasury address")
	}
	if engine.Status() != x402.StatusError {
		t.Errorf("status = %s, want error", engine.Status())
	}

	// The malformed intent must be caught before signing or any network call.
	if wallet.signCalls.Load() != 0 {
		t.Error("wallet was asked to sign a malformed intent")
	}
	if facilitator.verifyCalls.Load() != 0 {
		t.Error("facilitator was contacted for a malformed intent")
	}
}

func TestPaySigningRejected(t *testing.T) {
	wallet := &mockWallet{
		connected: true,
		signErr:   fmt.Errorf("%w: user dismissed the prompt", x402.ErrSigningRejected),
	}
	facilitator := &mockFacilitator{}
	engine := newTestEngine(t, x402.Config{}, wallet, facilitator)

	err := engine.Pay(context.Background(), "0.01", "test")
	var failure *x402.PaymentFailure
	if !errors.As(err, &failure) || failure.Kind != x402.KindSigningRejected {
		t.Fatalf("expected SigningRejected failure, got %v", err)
	}
	if failure.Retriable {
		t.Error("signing rejection must not be retriable")
	}

	// Nothing reaches the facilitator after a rejection.
	if facilitator.verifyCalls.Load() != 0 || facilitator.settleCalls.Load() != 0 {
		t.Error("facilitator contacted after signing was rejected")
	}
}

func TestPayVerificationRejected(t *testing.T) {
	wallet := &mockWallet{connected: true}
	facilitator := &mockFacilitator{
		verifyErr: fmt.Errorf("%w: amount mismatch", x402.ErrVerificationFailed),
	}
	engine := newTestEngine(t, x402.Config{}, wallet, facilitator)

	err := engine.Pay(context.Background(), "0.01", "test")
	var failure *x402.PaymentFailure
	if !errors.As(err, &failure) || failure.Kind != x402.KindFacilitatorRejected {
		t.Fatalf("expected FacilitatorRejected failure, got %v", err)
	}
	if facilitator.settleCalls.Load() != 0 {
		t.Error("settle must not run after verification fails")
	}
}

func TestPaySettleTimeoutThenRetry(t *testing.T) {
	wallet := &mockWallet{connected: true}
	facilitator := &mockFacilitator{settleWait: true}
	engine := newTestEngine(t, x402.Config{
		Timeouts: x402.TimeoutConfig{
			VerifyTimeout:  20 * time.Millisecond,
			SettleTimeout:  20 * time.Millisecond,
			RequestTimeout: 100 * time.Millisecond,
		},
	}, wallet, facilitator)

	err := engine.Pay(context.Background(), "0.01", "test")
	var failure *x402.PaymentFailure
	if !errors.As(err, &failure) || failure.Kind != x402.KindTimeout {
		t.Fatalf("expected Timeout failure, got %v", err)
	}
	if !failure.Retriable {
		t.Error("timeouts must be marked retriable")
	}

	// A reset-and-retry is a fully independent attempt that can succeed.
	if err := engine.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if engine.Status() != x402.StatusIdle {
		t.Errorf("status after reset = %s, want idle", engine.Status())
	}
	if engine.Failure() != nil {
		t.Error("reset must clear the failure")
	}

	facilitator.settleWait = false
	if err := engine.Pay(context.Background(), "0.01", "test"); err != nil {
		t.Fatalf("retry after reset failed: %v", err)
	}
	if wallet.signCalls.Load() != 2 {
		t.Errorf("sign calls = %d, retry must produce a fresh signature", wallet.signCalls.Load())
	}
}

func TestPayWhilePendingIsNoOp(t *testing.T) {
	release := make(chan struct{})
	wallet := &mockWallet{connected: true, blockSign: release}
	engine := newTestEngine(t, x402.Config{}, wallet, &mockFacilitator{})

	done := make(chan error, 1)
	go func() {
		done <- engine.Pay(context.Background(), "0.01", "first")
	}()

	// Wait for the first attempt to reach the wallet.
	deadline := time.After(2 * time.Second)
	for wallet.signCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first attempt never reached the wallet")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// A duplicate request during flight is dropped without error.
	if err := engine.Pay(context.Background(), "0.01", "duplicate"); err != nil {
		t.Fatalf("duplicate Pay should be a no-op, got %v", err)
	}
	if engine.Status() != x402.StatusPending {
		t.Errorf("status = %s, want pending", engine.Status())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Pay failed: %v", err)
	}

	if wallet.signCalls.Load() != 1 {
		t.Errorf("sign calls = %d, want exactly 1", wallet.signCalls.Load())
	}
}

func TestPayFromTerminalStateWithoutReset(t *testing.T) {
	wallet := &mockWallet{connected: true}
	engine := newTestEngine(t, x402.Config{}, wallet, &mockFacilitator{})

	if err := engine.Pay(context.Background(), "0.01", "test"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	err := engine.Pay(context.Background(), "0.01", "again")
	if !errors.Is(err, x402.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState from success state, got %v", err)
	}

	// Receipt survives the refused call.
	if engine.Receipt() == nil {
		t.Error("refused Pay must not clear the receipt")
	}
}

func TestResetWhilePending(t *testing.T) {
	release := make(chan struct{})
	wallet := &mockWallet{connected: true, blockSign: release}
	engine := newTestEngine(t, x402.Config{}, wallet, &mockFacilitator{})

	done := make(chan error, 1)
	go func() {
		done <- engine.Pay(context.Background(), "0.01", "test")
	}()

	deadline := time.After(2 * time.Second)
	for wallet.signCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("attempt never reached the wallet")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := engine.Reset(); !errors.Is(err, x402.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState resetting mid-flight, got %v", err)
	}

	close(release)
	<-done
}

func TestResetIdleIsNoOp(t *testing.T) {
	engine := newTestEngine(t, x402.Config{}, &mockWallet{connected: true}, &mockFacilitator{})
	if err := engine.Reset(); err != nil {
		t.Errorf("Reset on idle engine should be a no-op, got %v", err)
	}
}

func TestPayUsesServerChallenge(t *testing.T) {
	wallet := &mockWallet{connected: true}
	challenges := &mockChallenges{
		required: &x402.PaymentRequired{
			Accepts: []x402.PaymentRequirements{{
				Scheme:      x402.Scheme,
				Network:     x402.NetworkDevnet,
				Amount:      "0.25",
				Asset:       x402.Devnet.USDCMint,
				PayTo:       testFeePayer,
				Description: "Server priced access",
			}},
		},
	}
	engine := newTestEngine(t, x402.Config{APIEndpoint: "http://api.example.com/premium"},
		wallet, &mockFacilitator{}, WithChallengeFetcher(challenges))

	if err := engine.Pay(context.Background(), "0.01", "local description"); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if challenges.calls.Load() != 1 {
		t.Errorf("challenge calls = %d, want 1", challenges.calls.Load())
	}

	intent := wallet.intent()
	if intent.Amount != "0.25" {
		t.Errorf("intent amount = %s, server quote must win", intent.Amount)
	}
	if intent.Payee != testFeePayer {
		t.Errorf("intent payee = %s, want server payTo", intent.Payee)
	}
	if intent.Description != "Server priced access" {
		t.Errorf("intent description = %s, want server description", intent.Description)
	}
}

func TestPayServerQuoteOverCeiling(t *testing.T) {
	wallet := &mockWallet{connected: true}
	challenges := &mockChallenges{
		required: &x402.PaymentRequired{
			Accepts: []x402.PaymentRequirements{{
				Scheme:  x402.Scheme,
				Network: x402.NetworkDevnet,
				Amount:  "5.00",
				Asset:   x402.Devnet.USDCMint,
				PayTo:   testFeePayer,
			}},
		},
	}
	engine := newTestEngine(t, x402.Config{
		APIEndpoint:      "http://api.example.com/premium",
		MaxPaymentAmount: "1.00",
	}, wallet, &mockFacilitator{}, WithChallengeFetcher(challenges))

	err := engine.Pay(context.Background(), "0.01", "test")
	var failure *x402.PaymentFailure
	if !errors.As(err, &failure) || failure.Kind != x402.KindAmountExceedsLimit {
		t.Fatalf("server-quoted amount over the ceiling must fail, got %v", err)
	}
	if wallet.signCalls.Load() != 0 {
		t.Error("over-limit server quote must not reach the wallet")
	}
}

func TestPayChallengeFetchFailureDegradesToConfig(t *testing.T) {
	wallet := &mockWallet{connected: true}
	challenges := &mockChallenges{err: errors.New("endpoint unreachable")}
	engine := newTestEngine(t, x402.Config{APIEndpoint: "http://api.example.com/premium"},
		wallet, &mockFacilitator{}, WithChallengeFetcher(challenges))

	if err := engine.Pay(context.Background(), "0.01", "test"); err != nil {
		t.Fatalf("Pay should degrade to configuration, got %v", err)
	}

	intent := wallet.intent()
	if intent.Amount != "0.01" {
		t.Errorf("intent amount = %s, want configured 0.01", intent.Amount)
	}
	if intent.Payee != x402.Devnet.DefaultTreasury {
		t.Errorf("intent payee = %s, want default treasury", intent.Payee)
	}
}

func TestHandleConnectionChange(t *testing.T) {
	wallet := &mockWallet{connected: true}
	probe := &mockProbe{balance: "42.00"}

	var connectedAddress string
	engine := newTestEngine(t, x402.Config{}, wallet, &mockFacilitator{},
		WithProbe(probe),
		WithConnectHandler(func(address string) { connectedAddress = address }),
	)

	if engine.Balance() != "0.00" {
		t.Errorf("initial balance = %s, want 0.00", engine.Balance())
	}

	engine.HandleConnectionChange(context.Background(), true)
	if engine.Balance() != "42.00" {
		t.Errorf("balance after connect = %s, want 42.00", engine.Balance())
	}
	if connectedAddress != testPayerAddress {
		t.Errorf("connect handler address = %s, want %s", connectedAddress, testPayerAddress)
	}

	engine.HandleConnectionChange(context.Background(), false)
	if engine.Balance() != "0.00" {
		t.Errorf("balance after disconnect = %s, want 0.00", engine.Balance())
	}
}

func TestFailureEventsCarryTheFailure(t *testing.T) {
	wallet := &mockWallet{connected: true}
	facilitator := &mockFacilitator{
		settleErr: fmt.Errorf("%w: status 500", x402.ErrSettlementFailed),
	}

	var events []x402.PaymentEvent
	engine := newTestEngine(t, x402.Config{}, wallet, facilitator,
		WithPaymentCallbacks(func(e x402.PaymentEvent) { events = append(events, e) }),
	)

	if err := engine.Pay(context.Background(), "0.01", "test"); err == nil {
		t.Fatal("expected failure")
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want attempt + failure", len(events))
	}
	failureEvent := events[1]
	if failureEvent.Type != x402.PaymentEventFailure {
		t.Fatalf("event type = %s, want failure", failureEvent.Type)
	}
	if failureEvent.Failure == nil || failureEvent.Failure.Kind != x402.KindFacilitatorRejected {
		t.Errorf("failure event kind = %+v, want FacilitatorRejected", failureEvent.Failure)
	}
	if failureEvent.Recipient == "" {
		t.Error("failure event should carry the intended recipient once an intent exists")
	}
}

func TestNewRequiresWallet(t *testing.T) {
	if _, err := New(x402.Config{}, nil); err == nil {
		t.Error("expected error for nil wallet")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(x402.Config{Network: "base"}, &mockWallet{connected: true})
	if !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("expected ErrInvalidNetwork, got %v", err)
	}
}
