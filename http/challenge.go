package http

import (
	"context"
	"fmt"
	"net/http"

	x402 "github.com/postmanode/x402-solana-go"
	"github.com/postmanode/x402-solana-go/http/internal/helpers"
	"github.com/postmanode/x402-solana-go/validation"
)

// ChallengeClient fetches 402 payment challenges from paid resources so the
// server-quoted price, treasury, and asset can be used instead of static
// configuration.
type ChallengeClient struct {
	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client
}

// FetchRequired probes an endpoint for its payment challenge. A 402 status
// yields the parsed challenge; a 2xx status yields (nil, nil) because the
// resource is not payment-gated. Any other status is an error.
func (c *ChallengeClient) FetchRequired(ctx context.Context, endpoint string) (*x402.PaymentRequired, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return helpers.ParsePaymentRequired(resp)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unexpected status %d from %s", x402.ErrMalformedChallenge, resp.StatusCode, endpoint)
	}
}

// SelectRequirement picks the challenge option matching the given network.
// The matched option is validated in full; a matching but malformed option is
// rejected the same way as a missing one. Returns an error when the challenge
// offers no option the payer can satisfy.
func SelectRequirement(pr *x402.PaymentRequired, network x402.Network) (*x402.PaymentRequirements, error) {
	if pr == nil {
		return nil, fmt.Errorf("%w: nil challenge", x402.ErrMalformedChallenge)
	}
	for i := range pr.Accepts {
		if pr.Accepts[i].Network == network && pr.Accepts[i].Scheme == x402.Scheme {
			if err := validation.ValidateRequirements(pr.Accepts[i]); err != nil {
				return nil, fmt.Errorf("%w: %v", x402.ErrMalformedChallenge, err)
			}
			return &pr.Accepts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no option for network %s", x402.ErrMalformedChallenge, network)
}
