package sweeper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/access"
	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/messaging"
	"github.com/Tanner253/ClubPengu-sub005/internal/presence"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// EntryEvaluator re-runs the entry decision for a visitor currently inside a
// space. The rental service implements it.
type EntryEvaluator interface {
	EvaluateEntry(ctx context.Context, visitorWallet, spaceID string) (*schema.Space, access.Decision, error)
}

// OccupantSource reports who is currently inside each space
type OccupantSource interface {
	Snapshot() map[string][]presence.Occupant
}

// EligibilitySweeperConfig holds configuration for the eligibility sweeper
type EligibilitySweeperConfig struct {
	CheckInterval time.Duration
}

// eligibilitySweeper periodically re-checks that everyone inside a gated
// space still qualifies, catching sold tokens and stale fee payments that no
// request would otherwise surface. A failed balance lookup earns one cycle of
// grace; a second consecutive failure kicks, because indefinitely trusting an
// unverifiable balance would hold the gate open.
type eligibilitySweeper struct {
	config    *EligibilitySweeperConfig
	evaluator EntryEvaluator
	occupants OccupantSource
	publisher messaging.Publisher
	clock     adapter.Clock
	pool      pond.Pool
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}

	mu     sync.Mutex
	graced map[string]struct{} // wallet+space pairs already granted a lookup-failure pass
}

// NewEligibilitySweeper creates a new eligibility sweeper
func NewEligibilitySweeper(
	config *EligibilitySweeperConfig,
	evaluator EntryEvaluator,
	occupants OccupantSource,
	publisher messaging.Publisher,
	clock adapter.Clock,
) *eligibilitySweeper {
	return &eligibilitySweeper{
		config:    config,
		evaluator: evaluator,
		occupants: occupants,
		publisher: publisher,
		clock:     clock,
		pool:      pond.NewPool(4),
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
		graced:    make(map[string]struct{}),
	}
}

// Name returns the sweeper's name
func (s *eligibilitySweeper) Name() string {
	return "eligibility-sweeper"
}

// Start begins the sweeper's main loop
func (s *eligibilitySweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting eligibility sweeper",
		zap.Duration("check_interval", s.config.CheckInterval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Eligibility sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Eligibility sweeper stop requested")
			return nil
		case <-s.clock.After(s.config.CheckInterval):
			s.RunCheck(ctx)
		}
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *eligibilitySweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping eligibility sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCheck executes one eligibility pass over every occupied space
func (s *eligibilitySweeper) RunCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("eligibility check panicked: %v", r))
		}
	}()

	group := s.pool.NewGroup()
	for spaceID, occupants := range s.occupants.Snapshot() {
		for _, occ := range occupants {
			if occ.Wallet == "" {
				continue
			}
			wallet := occ.Wallet
			group.Submit(func() {
				s.checkOccupant(ctx, spaceID, wallet)
			})
		}
	}
	_ = group.Wait()
}

func (s *eligibilitySweeper) checkOccupant(ctx context.Context, spaceID, wallet string) {
	space, decision, err := s.evaluator.EvaluateEntry(ctx, wallet, spaceID)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("eligibility evaluation failed: %w", err),
			zap.String("space_id", spaceID), zap.String("wallet", wallet))
		return
	}

	key := wallet + "|" + spaceID

	if decision.LookupFailed {
		s.mu.Lock()
		_, alreadyGraced := s.graced[key]
		if !alreadyGraced {
			s.graced[key] = struct{}{}
		}
		s.mu.Unlock()
		if !alreadyGraced {
			logger.WarnCtx(ctx, "Balance lookup failed, granting one-cycle grace",
				zap.String("space_id", spaceID), zap.String("wallet", wallet))
			return
		}
		// Second consecutive failure falls through to the kick below
	} else {
		s.mu.Lock()
		delete(s.graced, key)
		s.mu.Unlock()
	}

	if decision.CanEnter {
		return
	}

	reason := kickReason(space, decision)
	logger.InfoCtx(ctx, "Occupant no longer qualifies for space",
		zap.String("space_id", spaceID),
		zap.String("wallet", wallet),
		zap.String("reason", string(reason)),
	)
	kick := protocol.SpaceKicked{
		Type:    protocol.TypeSpaceKicked,
		SpaceID: spaceID,
		Wallet:  wallet,
		Reason:  reason,
		Message: reason.Message(),
	}
	if err := s.publisher.PublishSpaceKicked(ctx, kick); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to publish kick: %w", err),
			zap.String("space_id", spaceID), zap.String("wallet", wallet))
	}
}

// kickReason maps an entry denial during occupancy to the user-facing reason
func kickReason(space *schema.Space, decision access.Decision) domain.Code {
	switch {
	case space.AccessType == schema.AccessPrivate:
		return domain.CodeSpaceNowPrivate
	case !decision.TokenGateMet:
		return domain.CodeTokenGateNotMet
	default:
		return domain.CodeEntryFeeNowRequired
	}
}
