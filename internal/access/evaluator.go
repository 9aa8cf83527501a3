// Package access decides whether a visitor may enter a space. The decision
// function is pure: callers supply the space record and the already-performed
// balance lookup, so the same logic serves the initial entry check and the
// periodic eligibility re-check.
package access

import (
	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// BalanceResult carries the outcome of a token balance lookup. A non-nil Err
// means the lookup itself failed; the evaluator treats that as the gate NOT
// being met. Admitting on a lookup error would let an attacker force entry by
// triggering transient RPC failures.
type BalanceResult struct {
	Balance uint64
	Err     error
}

// Decision is the outcome of an entry evaluation
type Decision struct {
	CanEnter       bool
	IsOwner        bool
	BlockingReason domain.Code
	TokenGateMet   bool
	EntryFeePaid   bool
	// UserTokenBalance is set when a balance lookup succeeded
	UserTokenBalance *uint64
	// LookupFailed reports that the balance lookup errored; the periodic
	// eligibility check uses this to grant its one-shot grace
	LookupFailed bool
}

// EvaluateEntry decides whether visitorWallet may enter the space.
// The owner always has access, bypassing every other rule.
func EvaluateEntry(space *schema.Space, visitorWallet string, balance BalanceResult) Decision {
	if visitorWallet != "" && visitorWallet == space.Owner() {
		return Decision{CanEnter: true, IsOwner: true, TokenGateMet: true, EntryFeePaid: true}
	}

	switch space.AccessType {
	case schema.AccessPrivate:
		return Decision{BlockingReason: domain.CodeSpaceLocked}
	case schema.AccessPublic:
		return Decision{CanEnter: true, TokenGateMet: true, EntryFeePaid: true}
	}

	decision := Decision{TokenGateMet: true, EntryFeePaid: true}

	// token, fee, both: only the relevant rules gate entry
	if space.AccessType == schema.AccessToken || space.AccessType == schema.AccessBoth {
		decision.TokenGateMet = tokenGateMet(space.TokenGate, balance)
		if balance.Err != nil {
			decision.LookupFailed = true
		} else if space.TokenGate.Enabled {
			b := balance.Balance
			decision.UserTokenBalance = &b
		}
	}
	if space.AccessType == schema.AccessFee || space.AccessType == schema.AccessBoth {
		decision.EntryFeePaid = entryFeePaid(space, visitorWallet)
	}

	decision.CanEnter = decision.TokenGateMet && decision.EntryFeePaid
	if !decision.CanEnter {
		// Token requirement outranks the fee requirement when both fail
		if !decision.TokenGateMet {
			decision.BlockingReason = domain.CodeTokenRequired
		} else {
			decision.BlockingReason = domain.CodeFeeRequired
		}
	}

	return decision
}

// tokenGateMet fails closed: a lookup error never satisfies the gate
func tokenGateMet(gate schema.TokenGate, balance BalanceResult) bool {
	if !gate.Enabled {
		return true
	}
	if balance.Err != nil {
		return false
	}
	return balance.Balance >= gate.MinimumBalance
}

func entryFeePaid(space *schema.Space, wallet string) bool {
	if !space.EntryFee.Enabled {
		return true
	}
	return space.PaidEntryFees.HasWallet(wallet)
}
