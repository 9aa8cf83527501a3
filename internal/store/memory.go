package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// memoryStore is a mutex-protected in-memory Store with the same conditional
// write semantics as the Postgres implementation. It backs the --memory dev
// mode and the logic tests.
type memoryStore struct {
	mu     sync.Mutex
	spaces map[string]*schema.Space
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{spaces: make(map[string]*schema.Space)}
}

func (s *memoryStore) UpsertSpaces(_ context.Context, spaces []schema.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range spaces {
		if existing, ok := s.spaces[in.SpaceID]; ok {
			existing.Position = in.Position
			existing.IsReserved = in.IsReserved
			continue
		}
		space := in
		if space.AccessType == "" {
			space.AccessType = schema.AccessPublic
		}
		s.spaces[space.SpaceID] = &space
	}
	return nil
}

func (s *memoryStore) GetSpace(_ context.Context, spaceID string) (*schema.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return nil, nil
	}
	return copySpace(space), nil
}

func (s *memoryStore) ListSpaces(_ context.Context) ([]*schema.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schema.Space, 0, len(s.spaces))
	for _, space := range s.spaces {
		out = append(out, copySpace(space))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceID < out[j].SpaceID })
	return out, nil
}

func (s *memoryStore) CountActiveRentals(_ context.Context, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, space := range s.spaces {
		if !space.IsReserved && space.Owner() == wallet {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) ClaimSpace(_ context.Context, spaceID string, claim RentalClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok || space.OwnerWallet != nil || space.IsReserved {
		return domain.ErrSpaceTaken
	}
	wallet, username := claim.Wallet, claim.Username
	start, due := claim.Start, claim.Due
	status := schema.RentCurrent
	space.OwnerWallet = &wallet
	space.OwnerUsername = &username
	space.IsRented = true
	space.Flavor = claim.Flavor
	space.RentStartDate = &start
	space.LastRentPaidDate = &start
	space.RentDueDate = &due
	space.RentStatus = &status
	return nil
}

func (s *memoryStore) RenewRent(_ context.Context, spaceID, wallet string, newDue, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok || space.Owner() != wallet {
		return domain.ErrNotOwner
	}
	due, paid := newDue, paidAt
	status := schema.RentCurrent
	space.RentDueDate = &due
	space.LastRentPaidDate = &paid
	space.RentStatus = &status
	return nil
}

func (s *memoryStore) ReleaseSpace(_ context.Context, spaceID, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok || space.Owner() != wallet {
		return domain.ErrNotOwner
	}
	clearRental(space)
	return nil
}

func (s *memoryStore) FindOverdueSpaces(_ context.Context, asOf time.Time) ([]*schema.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*schema.Space
	for _, space := range s.spaces {
		if space.OwnerWallet != nil && !space.IsReserved &&
			space.RentDueDate != nil && space.RentDueDate.Before(asOf) {
			out = append(out, copySpace(space))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceID < out[j].SpaceID })
	return out, nil
}

func (s *memoryStore) MarkGracePeriod(_ context.Context, spaceID string, observedDue time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok || space.OwnerWallet == nil || space.IsReserved ||
		space.RentDueDate == nil || !space.RentDueDate.Equal(observedDue) {
		return false, nil
	}
	status := schema.RentGracePeriod
	space.RentStatus = &status
	return true, nil
}

func (s *memoryStore) EvictSpace(_ context.Context, spaceID string, observedDue time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok || space.OwnerWallet == nil || space.IsReserved ||
		space.RentDueDate == nil || !space.RentDueDate.Equal(observedDue) {
		return false, nil
	}
	clearRental(space)
	return true, nil
}

func (s *memoryStore) AppendEntryFee(_ context.Context, spaceID string, fee schema.PaidEntryFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return domain.ErrSpaceNotFound
	}
	if space.PaidEntryFees.HasWallet(fee.WalletAddress) {
		return nil
	}
	space.PaidEntryFees = append(space.PaidEntryFees, fee)
	return nil
}

func (s *memoryStore) UpdateSettings(_ context.Context, spaceID, ownerWallet string, update SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok || space.Owner() != ownerWallet {
		return domain.ErrNotOwner
	}
	space.AccessType = update.AccessType
	space.TokenGate = update.TokenGate
	space.EntryFee = update.EntryFee
	space.Banner = update.Banner
	if update.ResetEntryFees {
		space.PaidEntryFees = schema.PaidEntryFees{}
	}
	return nil
}

func (s *memoryStore) RecordVisit(_ context.Context, spaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if space, ok := s.spaces[spaceID]; ok {
		space.Visits++
	}
	return nil
}

func (s *memoryStore) AddRevenue(_ context.Context, spaceID string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if space, ok := s.spaces[spaceID]; ok {
		space.RevenueCollected += amount
	}
	return nil
}

func clearRental(space *schema.Space) {
	space.OwnerWallet = nil
	space.OwnerUsername = nil
	space.IsRented = false
	space.Flavor = ""
	space.RentStartDate = nil
	space.LastRentPaidDate = nil
	space.RentDueDate = nil
	space.RentStatus = nil
}

func copySpace(space *schema.Space) *schema.Space {
	out := *space
	if space.OwnerWallet != nil {
		w := *space.OwnerWallet
		out.OwnerWallet = &w
	}
	if space.OwnerUsername != nil {
		u := *space.OwnerUsername
		out.OwnerUsername = &u
	}
	if space.RentStartDate != nil {
		t := *space.RentStartDate
		out.RentStartDate = &t
	}
	if space.LastRentPaidDate != nil {
		t := *space.LastRentPaidDate
		out.LastRentPaidDate = &t
	}
	if space.RentDueDate != nil {
		t := *space.RentDueDate
		out.RentDueDate = &t
	}
	if space.RentStatus != nil {
		st := *space.RentStatus
		out.RentStatus = &st
	}
	out.PaidEntryFees = append(schema.PaidEntryFees{}, space.PaidEntryFees...)
	return &out
}
