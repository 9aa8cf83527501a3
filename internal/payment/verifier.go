// Package payment confirms that on-chain transactions match the transfers the
// engine expects. Verification failure or timeout is always a hard rejection;
// the engine never assumes optimistic success.
package payment

import "context"

// AuditTags correlate a verification with the engine operation that asked for
// it. They appear in every verification log line.
type AuditTags struct {
	SpaceID   string
	Kind      string
	IsRenewal bool
}

const (
	// KindRental tags initial rent and renewal payments
	KindRental = "space_rental"
	// KindEntryFee tags visitor entry-fee payments
	KindEntryFee = "space_entry_fee"
)

// Receipt is the confirmation of a verified payment
type Receipt struct {
	TransactionHash string
}

// BalanceCheck is the result of a minimum-balance lookup
type BalanceCheck struct {
	HasBalance bool
	Balance    uint64
}

// Verifier confirms on-chain payments and token balances.
type Verifier interface {
	// VerifyPayment confirms that signature is a mined transaction transferring
	// exactly amount of tokenAddress from fromWallet to toWallet. Returns
	// domain.ErrVerificationFailed on any mismatch and
	// domain.ErrVerificationTimeout when confirmation did not arrive in time.
	VerifyPayment(ctx context.Context, signature, fromWallet, toWallet, tokenAddress string, amount uint64, tags AuditTags) (*Receipt, error)

	// CheckMinimumBalance reads the wallet's balance of tokenAddress and
	// compares it against minimum. A lookup failure is an error; callers must
	// fail closed on it.
	CheckMinimumBalance(ctx context.Context, wallet, tokenAddress string, minimum uint64) (*BalanceCheck, error)
}
