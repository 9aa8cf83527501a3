package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/messaging"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
	"github.com/Tanner253/ClubPengu-sub005/internal/store"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// RentSweeperConfig holds configuration for the rent sweeper
type RentSweeperConfig struct {
	SweepInterval  time.Duration // Time between sweep cycles
	GracePeriod    time.Duration // How long past due before eviction
	WorkerPoolSize int           // Concurrent workers per cycle
}

// Eviction records one space cleared during a sweep. PreviousOwner is the
// renter's display name, falling back to the wallet when none was recorded.
type Eviction struct {
	SpaceID       string
	PreviousOwner string
}

// SweepResult summarizes a single sweep cycle
type SweepResult struct {
	SweepID          string
	Overdue          int
	GracePeriodCount int
	Evictions        []Eviction
	Err              error
}

// rentSweeper implements the Sweeper interface for rent collection. Each cycle
// scans for overdue rentals, moving newly overdue spaces into the grace period
// and evicting those overdue past it. Every transition is guarded by the due
// date observed at scan time, so a renewal that lands mid-sweep always wins.
type rentSweeper struct {
	config    *RentSweeperConfig
	store     store.Store
	publisher messaging.Publisher
	clock     adapter.Clock
	pool      pond.Pool
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewRentSweeper creates a new rent sweeper
func NewRentSweeper(
	config *RentSweeperConfig,
	st store.Store,
	publisher messaging.Publisher,
	clock adapter.Clock,
) *rentSweeper {
	workers := config.WorkerPoolSize
	if workers <= 0 {
		workers = 4
	}
	return &rentSweeper{
		config:    config,
		store:     st,
		publisher: publisher,
		clock:     clock,
		pool:      pond.NewPool(workers),
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *rentSweeper) Name() string {
	return "rent-sweeper"
}

// Start begins the sweeper's main loop
func (s *rentSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting rent sweeper",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("grace_period", s.config.GracePeriod),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Rent sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			s.pool.StopAndWait()
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Rent sweeper stop requested")
			s.pool.StopAndWait()
			return nil
		case <-s.clock.After(s.config.SweepInterval):
			result := s.TriggerCheck(ctx)
			if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
				logger.ErrorCtx(ctx, result.Err, zap.String("sweep_id", result.SweepID))
			}
		}
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *rentSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping rent sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Rent sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Rent sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// TriggerCheck executes one sweep cycle immediately. Safe to call concurrently
// with the periodic loop: every transition re-checks its predicate at write
// time, so overlapping cycles cannot double-apply. A panic in the cycle is
// contained in the result; one bad cycle never takes the scheduler down.
func (s *rentSweeper) TriggerCheck(ctx context.Context) (result SweepResult) {
	result.SweepID = ulid.MustNewDefault(s.clock.Now()).String()
	startTime := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("sweep cycle panicked: %v", r)
		}
	}()

	overdue, err := s.store.FindOverdueSpaces(ctx, startTime)
	if err != nil {
		result.Err = fmt.Errorf("failed to scan for overdue spaces: %w", err)
		return result
	}
	result.Overdue = len(overdue)
	if len(overdue) == 0 {
		return result
	}

	logger.InfoCtx(ctx, "Found overdue spaces",
		zap.String("sweep_id", result.SweepID),
		zap.Int("count", len(overdue)),
	)

	var mu sync.Mutex
	group := s.pool.NewGroup()
	for _, space := range overdue {
		group.Submit(func() {
			eviction, graced := s.sweepSpace(ctx, space, startTime)
			mu.Lock()
			defer mu.Unlock()
			if eviction != nil {
				result.Evictions = append(result.Evictions, *eviction)
			}
			if graced {
				result.GracePeriodCount++
			}
		})
	}
	if err := group.Wait(); err != nil {
		result.Err = err
	}

	logger.InfoCtx(ctx, "Sweep cycle completed",
		zap.String("sweep_id", result.SweepID),
		zap.Duration("duration", s.clock.Since(startTime)),
		zap.Int("overdue", result.Overdue),
		zap.Int("grace_period", result.GracePeriodCount),
		zap.Int("evictions", len(result.Evictions)),
	)
	return result
}

// sweepSpace applies the grace or eviction transition to one overdue space
func (s *rentSweeper) sweepSpace(ctx context.Context, space *schema.Space, now time.Time) (*Eviction, bool) {
	if space.RentDueDate == nil {
		return nil, false
	}
	observedDue := *space.RentDueDate

	if now.Sub(observedDue) <= s.config.GracePeriod {
		if space.RentStatus != nil && *space.RentStatus == schema.RentGracePeriod {
			return nil, false
		}
		applied, err := s.store.MarkGracePeriod(ctx, space.SpaceID, observedDue)
		if err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("failed to mark grace period: %w", err),
				zap.String("space_id", space.SpaceID))
			return nil, false
		}
		if !applied {
			// Owner renewed between scan and write
			return nil, false
		}
		logger.InfoCtx(ctx, "Space entered grace period",
			zap.String("space_id", space.SpaceID),
			zap.String("wallet", space.Owner()),
			zap.Time("due", observedDue),
		)
		s.broadcast(ctx, space.SpaceID)
		return nil, true
	}

	// Eviction clears the owner fields, so take the identity first
	wallet := space.Owner()
	previousOwner := wallet
	if space.OwnerUsername != nil && *space.OwnerUsername != "" {
		previousOwner = *space.OwnerUsername
	}

	applied, err := s.store.EvictSpace(ctx, space.SpaceID, observedDue)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to evict space: %w", err),
			zap.String("space_id", space.SpaceID))
		return nil, false
	}
	if !applied {
		return nil, false
	}
	logger.InfoCtx(ctx, "Space evicted for unpaid rent",
		zap.String("space_id", space.SpaceID),
		zap.String("previous_owner", previousOwner),
		zap.String("wallet", wallet),
		zap.Time("due", observedDue),
	)
	s.broadcast(ctx, space.SpaceID)
	return &Eviction{SpaceID: space.SpaceID, PreviousOwner: previousOwner}, false
}

func (s *rentSweeper) broadcast(ctx context.Context, spaceID string) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil || space == nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to load space for broadcast: %w", err),
			zap.String("space_id", spaceID))
		return
	}
	if err := s.publisher.PublishSpaceUpdated(ctx, protocol.PublicView(space)); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to publish space update: %w", err),
			zap.String("space_id", spaceID))
	}
}
