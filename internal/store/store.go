package store

import (
	"context"
	"time"

	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// RentalClaim carries the fields written when a vacant space is claimed
type RentalClaim struct {
	Wallet   string
	Username string
	Flavor   string
	Start    time.Time
	Due      time.Time
}

// SettingsUpdate carries the fully merged owner settings written in one
// conditional statement. ResetEntryFees clears the paid-fee set in the same
// write so a rules change and its invalidation are atomic.
type SettingsUpdate struct {
	AccessType     schema.AccessType
	TokenGate      schema.TokenGate
	EntryFee       schema.EntryFee
	Banner         schema.Banner
	ResetEntryFees bool
}

// Store defines the interface for space record operations. Every racy
// transition is a single conditional write: the claim checks vacancy, renewals
// and releases check ownership, and sweep transitions check that the overdue
// predicate still holds at write time.
type Store interface {
	// UpsertSpaces seeds the space table from the fixed layout. Existing rows
	// keep their rental and access state; only layout fields are refreshed.
	UpsertSpaces(ctx context.Context, spaces []schema.Space) error
	// GetSpace retrieves a space by ID, returning nil when it does not exist
	GetSpace(ctx context.Context, spaceID string) (*schema.Space, error)
	// ListSpaces retrieves every space
	ListSpaces(ctx context.Context) ([]*schema.Space, error)
	// CountActiveRentals counts non-reserved spaces currently rented by a wallet
	CountActiveRentals(ctx context.Context, wallet string) (int64, error)
	// ClaimSpace assigns a vacant, non-reserved space to a renter. Returns
	// domain.ErrSpaceTaken if the space was no longer vacant at write time.
	ClaimSpace(ctx context.Context, spaceID string, claim RentalClaim) error
	// RenewRent advances the due date and resets the status to current.
	// Returns domain.ErrNotOwner if the wallet no longer owns the space.
	RenewRent(ctx context.Context, spaceID, wallet string, newDue, paidAt time.Time) error
	// ReleaseSpace clears all rental fields back to vacant. Returns
	// domain.ErrNotOwner if the wallet no longer owns the space.
	ReleaseSpace(ctx context.Context, spaceID, wallet string) error
	// FindOverdueSpaces returns rented, non-reserved spaces whose due date has
	// passed as of the given instant
	FindOverdueSpaces(ctx context.Context, asOf time.Time) ([]*schema.Space, error)
	// MarkGracePeriod transitions current -> grace_period, guarded by the due
	// date observed at scan time. Returns false if a renewal won the race.
	MarkGracePeriod(ctx context.Context, spaceID string, observedDue time.Time) (bool, error)
	// EvictSpace clears ownership of an overdue space, guarded by the due date
	// observed at scan time. Returns false if a renewal won the race.
	EvictSpace(ctx context.Context, spaceID string, observedDue time.Time) (bool, error)
	// AppendEntryFee records a visitor's entry-fee payment for the current epoch
	AppendEntryFee(ctx context.Context, spaceID string, fee schema.PaidEntryFee) error
	// UpdateSettings writes merged owner settings, conditional on ownership
	UpdateSettings(ctx context.Context, spaceID, ownerWallet string, update SettingsUpdate) error
	// RecordVisit increments the visit counter
	RecordVisit(ctx context.Context, spaceID string) error
	// AddRevenue adds to the revenue counter
	AddRevenue(ctx context.Context, spaceID string, amount uint64) error
}
