// Package gin provides Gin-compatible middleware for x402 payment gating.
// This package is a thin adapter that translates gin.Context to stdlib http
// patterns and delegates verification and settlement to the http package.
package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	x402 "github.com/postmanode/x402-solana-go"
	x402http "github.com/postmanode/x402-solana-go/http"
	"github.com/postmanode/x402-solana-go/http/internal/helpers"
)

// PaymentContextKey is the gin context key for storing verified payment information.
const PaymentContextKey = "x402_payment"

// Config configures the payment middleware.
type Config struct {
	// FacilitatorURL is the facilitator service used to verify and settle
	// payments. Empty selects the default public facilitator.
	FacilitatorURL string

	// FacilitatorAuthorization is an optional Authorization header value
	// sent on facilitator requests.
	FacilitatorAuthorization string

	// PaymentRequirements lists the payment options this resource accepts.
	PaymentRequirements []x402.PaymentRequirements

	// VerifyOnly skips settlement, leaving execution to a later batch step.
	VerifyOnly bool

	// Logger receives structured request logs. Defaults to the standard logger.
	Logger *logrus.Logger
}

// NewMiddleware creates a payment-gating middleware for Gin.
//
// The middleware:
//   - Checks for an X-PAYMENT header in requests
//   - Returns 402 Payment Required with the accepted options if missing
//   - Verifies payments with the facilitator
//   - Settles payments (unless VerifyOnly is set)
//   - Stores verification info in the Gin context under PaymentContextKey
//   - Calls c.Abort() on payment failure to stop the handler chain
//
// Example usage:
//
//	r := gin.Default()
//	r.Use(x402gin.NewMiddleware(x402gin.Config{
//	    PaymentRequirements: []x402.PaymentRequirements{{
//	        Scheme:  x402.Scheme,
//	        Network: x402.NetworkDevnet,
//	        Amount:  "0.01",
//	        Asset:   x402.Devnet.USDCMint,
//	        PayTo:   "YourTreasuryAddress...",
//	    }},
//	}))
func NewMiddleware(config Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	facilitator := x402http.NewFacilitatorClient(config.FacilitatorURL)
	facilitator.Client = &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout}
	facilitator.Authorization = config.FacilitatorAuthorization

	return func(c *gin.Context) {
		paymentHeader := c.GetHeader("X-PAYMENT")
		if paymentHeader == "" {
			logger.WithField("path", c.Request.URL.Path).Info("no payment header provided")
			sendPaymentRequiredGin(c, config.PaymentRequirements, "Payment required")
			return
		}

		payment, err := helpers.ParsePaymentHeader(c.Request)
		if err != nil {
			logger.WithError(err).Warn("invalid payment header")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Invalid payment header",
			})
			return
		}

		requirement := findMatchingRequirement(payment, config.PaymentRequirements)
		if requirement == nil {
			logger.WithFields(logrus.Fields{
				"network": payment.Intent.Network,
				"amount":  payment.Intent.Amount,
			}).Warn("no matching payment requirement")
			sendPaymentRequiredGin(c, config.PaymentRequirements, "No matching payment requirement")
			return
		}

		logger.WithFields(logrus.Fields{
			"network": payment.Intent.Network,
			"amount":  payment.Intent.Amount,
			"payer":   payment.Signer,
		}).Info("verifying payment")

		verifyResp, err := facilitator.Verify(c.Request.Context(), payment)
		if err != nil {
			logger.WithError(err).Warn("payment verification failed")
			sendPaymentRequiredGin(c, config.PaymentRequirements, "Payment verification failed")
			return
		}

		if !config.VerifyOnly {
			settlement, err := facilitator.Settle(c.Request.Context(), payment)
			if err != nil {
				logger.WithError(err).Error("payment settlement failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "Payment settlement failed",
				})
				return
			}

			logger.WithField("transaction", settlement.TransactionID).Info("payment settled")

			if err := helpers.AddPaymentResponseHeader(c.Writer, settlement); err != nil {
				// The payment already settled; the client just loses the receipt header.
				logger.WithError(err).Warn("failed to add payment response header")
			}
		}

		c.Set(PaymentContextKey, verifyResp)
		c.Next()
	}
}

// findMatchingRequirement returns the configured option the payment claims to
// satisfy, matching on network, amount, and destination.
func findMatchingRequirement(payment *x402.SignedPayment, requirements []x402.PaymentRequirements) *x402.PaymentRequirements {
	for i := range requirements {
		req := &requirements[i]
		if req.Network != payment.Intent.Network {
			continue
		}
		if req.Amount != payment.Intent.Amount {
			continue
		}
		if req.PayTo != "" && req.PayTo != payment.Intent.Payee {
			continue
		}
		return req
	}
	return nil
}

// sendPaymentRequiredGin sends a 402 Payment Required response using Gin's
// JSON methods, aborting the handler chain.
func sendPaymentRequiredGin(c *gin.Context, requirements []x402.PaymentRequirements, errMsg string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
		Error:   errMsg,
		Accepts: requirements,
	})
}

// GetPaymentFromContext extracts the verified payment information from the
// Gin context. Returns nil if no payment was verified.
func GetPaymentFromContext(c *gin.Context) *x402.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}

// RequirementFor builds a single-option requirement list for a fixed price on
// one network, resolving the asset and treasury from the network table.
func RequirementFor(network x402.Network, amount, payTo, description string) ([]x402.PaymentRequirements, error) {
	cfg, err := x402.GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}
	if payTo == "" {
		payTo = cfg.DefaultTreasury
	}
	return []x402.PaymentRequirements{{
		Scheme:            x402.Scheme,
		Network:           network,
		Amount:            amount,
		Asset:             cfg.USDCMint,
		PayTo:             payTo,
		Description:       description,
		MaxTimeoutSeconds: int(x402.DefaultTimeouts.SettleTimeout / time.Second),
	}}, nil
}
