// Package wallet provides a local keypair implementation of the engine's
// signing capability, for server-side and agent use where no browser wallet
// exists. It produces SPL TransferChecked payments, partially signed when a
// facilitator fee payer sponsors the transaction.
package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/postmanode/x402-solana-go"
	solutil "github.com/postmanode/x402-solana-go/internal/solana"
)

// RPCClient is the interface for the Solana RPC operations the wallet needs.
// It allows dependency injection for testing.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// LocalWallet signs payment intents with an in-process ed25519 keypair.
// It implements the x402.Wallet interface.
type LocalWallet struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	rpcClient  RPCClient
	rpcURL     string
}

var _ x402.Wallet = (*LocalWallet)(nil)

// Option configures a LocalWallet.
type Option func(*LocalWallet) error

// WithRPCClient sets a custom RPC client.
func WithRPCClient(client RPCClient) Option {
	return func(w *LocalWallet) error {
		w.rpcClient = client
		return nil
	}
}

// WithRPCURL sets the RPC endpoint used to fetch recent blockhashes.
// Ignored when WithRPCClient is also given.
func WithRPCURL(url string) Option {
	return func(w *LocalWallet) error {
		w.rpcURL = url
		return nil
	}
}

// NewFromBase58 creates a wallet from a base58-encoded private key.
func NewFromBase58(privateKeyBase58 string, opts ...Option) (*LocalWallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewFromKey(privateKey, opts...)
}

// NewFromKey creates a wallet from an existing private key.
func NewFromKey(key solana.PrivateKey, opts ...Option) (*LocalWallet, error) {
	w := &LocalWallet{
		privateKey: key,
		publicKey:  key.PublicKey(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// NewFromKeygenFile creates a wallet from a Solana keygen JSON file
// containing a 64-byte ed25519 private key array.
func NewFromKeygenFile(path string, opts ...Option) (*LocalWallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid keygen file: %w", err)
	}

	var keyBytes []byte
	if err := json.Unmarshal(data, &keyBytes); err != nil {
		return nil, fmt.Errorf("invalid keygen file: not a JSON byte array")
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("invalid keygen file: expected 64 bytes, got %d", len(keyBytes))
	}

	return NewFromKey(solana.PrivateKey(keyBytes), opts...)
}

// Address returns the wallet's public key. A local wallet is always
// connected.
func (w *LocalWallet) Address() (solana.PublicKey, bool) {
	return w.publicKey, true
}

// SignIntent builds and signs the SPL token transfer described by the
// intent. When intent.FeePayer names a facilitator account, the transaction
// is partially signed and the facilitator adds its signature before
// submission; otherwise the wallet pays its own fees and signs fully.
func (w *LocalWallet) SignIntent(ctx context.Context, intent *x402.PaymentIntent) (*x402.SignedPayment, error) {
	mint, err := solana.PublicKeyFromBase58(intent.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address: %w", err)
	}

	recipient, err := solana.PublicKeyFromBase58(intent.Payee)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	feePayer := w.publicKey
	if intent.FeePayer != "" {
		feePayer, err = solana.PublicKeyFromBase58(intent.FeePayer)
		if err != nil {
			return nil, fmt.Errorf("invalid fee payer address: %w", err)
		}
	}

	client := w.rpcClient
	if client == nil {
		url := w.rpcURL
		if url == "" {
			url, err = solutil.ClusterRPCURL(intent.Network)
			if err != nil {
				return nil, err
			}
		}
		client = rpc.New(url)
	}

	recent, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}

	txBase64, err := buildSignedTransfer(
		w.privateKey,
		w.publicKey,
		mint,
		recipient,
		intent.AtomicAmount,
		feePayer,
		recent.Value.Blockhash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	return &x402.SignedPayment{
		Intent:      *intent,
		Transaction: txBase64,
		Signer:      w.publicKey.String(),
	}, nil
}

// buildSignedTransfer creates the USDC transfer transaction. The signature
// set covers only the wallet's key; when the fee payer differs from the
// wallet the result is partially signed.
func buildSignedTransfer(
	walletKey solana.PrivateKey,
	walletPub solana.PublicKey,
	mint solana.PublicKey,
	recipient solana.PublicKey,
	amount uint64,
	feePayer solana.PublicKey,
	blockhash solana.Hash,
) (string, error) {
	sourceATA, err := solutil.DeriveAssociatedTokenAddress(walletPub, mint)
	if err != nil {
		return "", fmt.Errorf("failed to find source ATA: %w", err)
	}

	destATA, err := solutil.DeriveAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return "", fmt.Errorf("failed to find destination ATA: %w", err)
	}

	// CreateIdempotent succeeds even if the destination ATA already exists;
	// the fee payer sponsors the rent-exempt balance when it does not.
	createATAInstruction, err := solutil.BuildCreateIdempotentATAInstruction(feePayer, recipient, mint)
	if err != nil {
		return "", fmt.Errorf("failed to build ATA creation instruction: %w", err)
	}

	instructions := []solana.Instruction{
		solutil.BuildSetComputeUnitLimitInstruction(solutil.DefaultComputeUnits),
		solutil.BuildSetComputeUnitPriceInstruction(solutil.DefaultComputeUnitPrice),
		createATAInstruction,
		solutil.BuildTransferCheckedInstruction(sourceATA, mint, destATA, walletPub, amount, x402.USDCDecimals),
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(walletPub) {
			return &walletKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(txBytes), nil
}
