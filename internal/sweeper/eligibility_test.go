package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanner253/ClubPengu-sub005/internal/access"
	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/presence"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

type fakeEvaluator struct {
	spaces    map[string]*schema.Space
	decisions map[string]access.Decision // keyed wallet|space
}

func (f *fakeEvaluator) EvaluateEntry(_ context.Context, wallet, spaceID string) (*schema.Space, access.Decision, error) {
	space, ok := f.spaces[spaceID]
	if !ok {
		return nil, access.Decision{}, domain.ErrSpaceNotFound
	}
	return space, f.decisions[wallet+"|"+spaceID], nil
}

type fixedOccupants map[string][]presence.Occupant

func (f fixedOccupants) Snapshot() map[string][]presence.Occupant {
	return f
}

func gatedSpace(spaceID, owner string) *schema.Space {
	return &schema.Space{
		SpaceID:     spaceID,
		OwnerWallet: &owner,
		IsRented:    true,
		AccessType:  schema.AccessToken,
		TokenGate:   schema.TokenGate{Enabled: true, TokenAddress: "0xGate", MinimumBalance: 1000},
	}
}

func newEligibilitySweeper(evaluator *fakeEvaluator, occupants fixedOccupants, publisher *capturePublisher) *eligibilitySweeper {
	clock := adapter.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	return NewEligibilitySweeper(&EligibilitySweeperConfig{CheckInterval: 30 * time.Second},
		evaluator, occupants, publisher, clock)
}

func TestEligibilityCheckKicksDisqualifiedOccupant(t *testing.T) {
	evaluator := &fakeEvaluator{
		spaces: map[string]*schema.Space{"space1": gatedSpace("space1", "0xOwner")},
		decisions: map[string]access.Decision{
			"0xOwner|space1":  {CanEnter: true, IsOwner: true, TokenGateMet: true, EntryFeePaid: true},
			"0xHolder|space1": {CanEnter: true, TokenGateMet: true, EntryFeePaid: true},
			"0xSeller|space1": {TokenGateMet: false, EntryFeePaid: true, BlockingReason: domain.CodeTokenRequired},
		},
	}
	occupants := fixedOccupants{"space1": {
		{SessionID: "s1", Wallet: "0xOwner"},
		{SessionID: "s2", Wallet: "0xHolder"},
		{SessionID: "s3", Wallet: "0xSeller"},
	}}
	publisher := &capturePublisher{}

	newEligibilitySweeper(evaluator, occupants, publisher).RunCheck(context.Background())

	require.Len(t, publisher.kicks, 1)
	assert.Equal(t, "0xSeller", publisher.kicks[0].Wallet)
	assert.Equal(t, "space1", publisher.kicks[0].SpaceID)
	assert.Equal(t, domain.CodeTokenGateNotMet, publisher.kicks[0].Reason)
	assert.NotEmpty(t, publisher.kicks[0].Message)
}

func TestEligibilityLookupFailureGetsOneCycleGrace(t *testing.T) {
	evaluator := &fakeEvaluator{
		spaces: map[string]*schema.Space{"space1": gatedSpace("space1", "0xOwner")},
		decisions: map[string]access.Decision{
			"0xGuest|space1": {TokenGateMet: false, EntryFeePaid: true, LookupFailed: true, BlockingReason: domain.CodeTokenRequired},
		},
	}
	occupants := fixedOccupants{"space1": {{SessionID: "s1", Wallet: "0xGuest"}}}
	publisher := &capturePublisher{}
	sweeper := newEligibilitySweeper(evaluator, occupants, publisher)

	// First failing lookup: grace, no kick
	sweeper.RunCheck(context.Background())
	assert.Empty(t, publisher.kicks)

	// Second consecutive failure: kicked
	sweeper.RunCheck(context.Background())
	require.Len(t, publisher.kicks, 1)
	assert.Equal(t, "0xGuest", publisher.kicks[0].Wallet)
}

func TestEligibilitySuccessfulLookupResetsGrace(t *testing.T) {
	evaluator := &fakeEvaluator{
		spaces: map[string]*schema.Space{"space1": gatedSpace("space1", "0xOwner")},
		decisions: map[string]access.Decision{
			"0xGuest|space1": {TokenGateMet: false, EntryFeePaid: true, LookupFailed: true, BlockingReason: domain.CodeTokenRequired},
		},
	}
	occupants := fixedOccupants{"space1": {{SessionID: "s1", Wallet: "0xGuest"}}}
	publisher := &capturePublisher{}
	sweeper := newEligibilitySweeper(evaluator, occupants, publisher)

	sweeper.RunCheck(context.Background())
	assert.Empty(t, publisher.kicks)

	// The lookup recovers and the gate is met: grace resets
	evaluator.decisions["0xGuest|space1"] = access.Decision{CanEnter: true, TokenGateMet: true, EntryFeePaid: true}
	sweeper.RunCheck(context.Background())
	assert.Empty(t, publisher.kicks)

	// A later failure grants a fresh grace cycle
	evaluator.decisions["0xGuest|space1"] = access.Decision{TokenGateMet: false, EntryFeePaid: true, LookupFailed: true, BlockingReason: domain.CodeTokenRequired}
	sweeper.RunCheck(context.Background())
	assert.Empty(t, publisher.kicks)
}

func TestEligibilityPrivateSpaceKickReason(t *testing.T) {
	owner := "0xOwner"
	space := &schema.Space{SpaceID: "space1", OwnerWallet: &owner, IsRented: true, AccessType: schema.AccessPrivate}
	evaluator := &fakeEvaluator{
		spaces: map[string]*schema.Space{"space1": space},
		decisions: map[string]access.Decision{
			"0xGuest|space1": {BlockingReason: domain.CodeSpaceLocked},
		},
	}
	occupants := fixedOccupants{"space1": {{SessionID: "s1", Wallet: "0xGuest"}}}
	publisher := &capturePublisher{}

	newEligibilitySweeper(evaluator, occupants, publisher).RunCheck(context.Background())

	require.Len(t, publisher.kicks, 1)
	assert.Equal(t, domain.CodeSpaceNowPrivate, publisher.kicks[0].Reason)
}

func TestEligibilitySkipsAnonymousOccupants(t *testing.T) {
	evaluator := &fakeEvaluator{spaces: map[string]*schema.Space{}, decisions: map[string]access.Decision{}}
	occupants := fixedOccupants{"space1": {{SessionID: "s1", Wallet: ""}}}
	publisher := &capturePublisher{}

	newEligibilitySweeper(evaluator, occupants, publisher).RunCheck(context.Background())
	assert.Empty(t, publisher.kicks)
}
