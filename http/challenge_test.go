package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	x402 "github.com/postmanode/x402-solana-go"
)

func challengeBody() x402.PaymentRequired {
	return x402.PaymentRequired{
		Error: "Payment required",
		Accepts: []x402.PaymentRequirements{
			{
				Scheme:  x402.Scheme,
				Network: x402.NetworkDevnet,
				Amount:  "0.05",
				Asset:   x402.Devnet.USDCMint,
				PayTo:   "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS",
			},
			{
				Scheme:  x402.Scheme,
				Network: x402.NetworkMainnet,
				Amount:  "0.05",
				Asset:   x402.Mainnet.USDCMint,
				PayTo:   x402.Mainnet.DefaultTreasury,
			},
		},
	}
}

func TestChallengeClientFetchRequired(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(challengeBody())
	}))
	defer mockServer.Close()

	client := &ChallengeClient{}
	required, err := client.FetchRequired(context.Background(), mockServer.URL)
	if err != nil {
		t.Fatalf("FetchRequired failed: %v", err)
	}
	if len(required.Accepts) != 2 {
		t.Fatalf("accepts = %d options, want 2", len(required.Accepts))
	}
	if required.Accepts[0].Amount != "0.05" {
		t.Errorf("amount = %s, want 0.05", required.Accepts[0].Amount)
	}
}

func TestChallengeClientFetchRequiredUngated(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	client := &ChallengeClient{}
	required, err := client.FetchRequired(context.Background(), mockServer.URL)
	if err != nil {
		t.Fatalf("FetchRequired failed: %v", err)
	}
	if required != nil {
		t.Error("ungated resource should yield a nil challenge")
	}
}

func TestChallengeClientFetchRequiredMalformed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "invalid JSON body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				w.Write([]byte("not json"))
			},
		},
		{
			name: "empty accepts",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				json.NewEncoder(w).Encode(x402.PaymentRequired{Error: "pay up"})
			},
		},
		{
			name: "unexpected status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServer := httptest.NewServer(tt.handler)
			defer mockServer.Close()

			client := &ChallengeClient{}
			_, err := client.FetchRequired(context.Background(), mockServer.URL)
			if !errors.Is(err, x402.ErrMalformedChallenge) {
				t.Errorf("expected ErrMalformedChallenge, got %v", err)
			}
		})
	}
}

func TestSelectRequirement(t *testing.T) {
	required := challengeBody()

	req, err := SelectRequirement(&required, x402.NetworkMainnet)
	if err != nil {
		t.Fatalf("SelectRequirement failed: %v", err)
	}
	if req.Network != x402.NetworkMainnet {
		t.Errorf("network = %s, want mainnet", req.Network)
	}

	if _, err := SelectRequirement(&required, "solana-testnet"); !errors.Is(err, x402.ErrMalformedChallenge) {
		t.Errorf("expected ErrMalformedChallenge for unmatched network, got %v", err)
	}

	if _, err := SelectRequirement(nil, x402.NetworkDevnet); !errors.Is(err, x402.ErrMalformedChallenge) {
		t.Errorf("expected ErrMalformedChallenge for nil challenge, got %v", err)
	}
}

func TestSelectRequirementRejectsMalformedOption(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*x402.PaymentRequirements)
	}{
		{name: "bad payTo", mutate: func(r *x402.PaymentRequirements) { r.PayTo = "not-an-address" }},
		{name: "bad asset", mutate: func(r *x402.PaymentRequirements) { r.Asset = "" }},
		{name: "bad amount", mutate: func(r *x402.PaymentRequirements) { r.Amount = "-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			required := challengeBody()
			tt.mutate(&required.Accepts[0])

			_, err := SelectRequirement(&required, x402.NetworkDevnet)
			if !errors.Is(err, x402.ErrMalformedChallenge) {
				t.Errorf("expected ErrMalformedChallenge for malformed option, got %v", err)
			}
		})
	}
}
