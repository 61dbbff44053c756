package x402

import (
	"fmt"
	"math/big"
)

// ValidateAmount checks a requested decimal USDC amount against an optional
// ceiling before anything is signed or sent. It rejects malformed and
// non-positive amounts with ErrInvalidAmount, and amounts above the ceiling
// with ErrAmountExceeded. Pure function, no side effects.
//
// This is the only safety backstop against a compromised or misconfigured
// caller requesting an oversized charge; it must run before any signing
// request reaches the wallet.
func ValidateAmount(amount, maxPaymentAmount string) error {
	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if value.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %q", ErrInvalidAmount, amount)
	}

	if maxPaymentAmount == "" {
		return nil
	}

	ceiling := new(big.Rat)
	if _, ok := ceiling.SetString(maxPaymentAmount); !ok {
		return fmt.Errorf("%w: invalid ceiling %q", ErrInvalidAmount, maxPaymentAmount)
	}
	if value.Cmp(ceiling) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceeded, amount, maxPaymentAmount)
	}
	return nil
}
