package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values get reasonable defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// UpsertSpaces seeds the space table from the fixed layout. On conflict only
// the layout fields (position, reserved flag) are refreshed so restarts never
// touch live rental state.
func (s *pgStore) UpsertSpaces(ctx context.Context, spaces []schema.Space) error {
	if len(spaces) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "space_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "is_reserved"}),
	}).Create(&spaces).Error
	if err != nil {
		return fmt.Errorf("failed to upsert spaces: %w", err)
	}

	return nil
}

// GetSpace retrieves a space by its ID
func (s *pgStore) GetSpace(ctx context.Context, spaceID string) (*schema.Space, error) {
	var space schema.Space
	err := s.db.WithContext(ctx).Where("space_id = ?", spaceID).First(&space).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	return &space, nil
}

// ListSpaces retrieves every space ordered by ID
func (s *pgStore) ListSpaces(ctx context.Context) ([]*schema.Space, error) {
	var spaces []*schema.Space
	err := s.db.WithContext(ctx).Order("space_id").Find(&spaces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	return spaces, nil
}

// CountActiveRentals counts non-reserved spaces currently rented by a wallet
func (s *pgStore) CountActiveRentals(ctx context.Context, wallet string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("owner_wallet = ? AND is_reserved = ?", wallet, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active rentals: %w", err)
	}
	return count, nil
}

// ClaimSpace assigns a vacant space to a renter. The WHERE clause re-checks
// vacancy at write time; of two racing claims exactly one sees a row update.
func (s *pgStore) ClaimSpace(ctx context.Context, spaceID string, claim RentalClaim) error {
	status := schema.RentCurrent
	res := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ? AND owner_wallet IS NULL AND is_reserved = ?", spaceID, false).
		Updates(map[string]interface{}{
			"owner_wallet":        claim.Wallet,
			"owner_username":      claim.Username,
			"is_rented":           true,
			"flavor":              claim.Flavor,
			"rent_start_date":     claim.Start,
			"last_rent_paid_date": claim.Start,
			"rent_due_date":       claim.Due,
			"rent_status":         status,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim space: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrSpaceTaken
	}
	return nil
}

// RenewRent advances the due date, conditional on current ownership
func (s *pgStore) RenewRent(ctx context.Context, spaceID, wallet string, newDue, paidAt time.Time) error {
	status := schema.RentCurrent
	res := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ? AND owner_wallet = ?", spaceID, wallet).
		Updates(map[string]interface{}{
			"rent_due_date":       newDue,
			"last_rent_paid_date": paidAt,
			"rent_status":         status,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to renew rent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotOwner
	}
	return nil
}

// ReleaseSpace clears all rental fields, conditional on current ownership
func (s *pgStore) ReleaseSpace(ctx context.Context, spaceID, wallet string) error {
	res := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ? AND owner_wallet = ?", spaceID, wallet).
		Updates(vacantFields())
	if res.Error != nil {
		return fmt.Errorf("failed to release space: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotOwner
	}
	return nil
}

// FindOverdueSpaces returns rented, non-reserved spaces past their due date
func (s *pgStore) FindOverdueSpaces(ctx context.Context, asOf time.Time) ([]*schema.Space, error) {
	var spaces []*schema.Space
	err := s.db.WithContext(ctx).
		Where("owner_wallet IS NOT NULL AND is_reserved = ? AND rent_due_date < ?", false, asOf).
		Order("space_id").
		Find(&spaces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue spaces: %w", err)
	}
	return spaces, nil
}

// MarkGracePeriod transitions current -> grace_period. The observed due date
// guards the write: a renewal that landed after the scan changed the due date,
// so the update matches zero rows and the sweep skips the space.
func (s *pgStore) MarkGracePeriod(ctx context.Context, spaceID string, observedDue time.Time) (bool, error) {
	status := schema.RentGracePeriod
	res := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ? AND owner_wallet IS NOT NULL AND is_reserved = ? AND rent_due_date = ?",
			spaceID, false, observedDue).
		Update("rent_status", status)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark grace period: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EvictSpace clears ownership of an overdue space, guarded by the observed
// due date like MarkGracePeriod.
func (s *pgStore) EvictSpace(ctx context.Context, spaceID string, observedDue time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ? AND owner_wallet IS NOT NULL AND is_reserved = ? AND rent_due_date = ?",
			spaceID, false, observedDue).
		Updates(vacantFields())
	if res.Error != nil {
		return false, fmt.Errorf("failed to evict space: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AppendEntryFee records a visitor's entry-fee payment for the current epoch
func (s *pgStore) AppendEntryFee(ctx context.Context, spaceID string, fee schema.PaidEntryFee) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var space schema.Space
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("space_id = ?", spaceID).First(&space).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrSpaceNotFound
			}
			return fmt.Errorf("failed to lock space: %w", err)
		}

		// Idempotent per wallet per rule epoch
		if space.PaidEntryFees.HasWallet(fee.WalletAddress) {
			return nil
		}

		fees := append(space.PaidEntryFees, fee)
		if err := tx.Model(&schema.Space{}).
			Where("space_id = ?", spaceID).
			Update("paid_entry_fees", fees).Error; err != nil {
			return fmt.Errorf("failed to append entry fee: %w", err)
		}
		return nil
	})
}

// UpdateSettings writes merged owner settings, conditional on ownership
func (s *pgStore) UpdateSettings(ctx context.Context, spaceID, ownerWallet string, update SettingsUpdate) error {
	fields := map[string]interface{}{
		"access_type": update.AccessType,
		"token_gate":  update.TokenGate,
		"entry_fee":   update.EntryFee,
		"banner":      update.Banner,
	}
	if update.ResetEntryFees {
		fields["paid_entry_fees"] = schema.PaidEntryFees{}
	}

	res := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ? AND owner_wallet = ?", spaceID, ownerWallet).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotOwner
	}
	return nil
}

// RecordVisit increments the visit counter
func (s *pgStore) RecordVisit(ctx context.Context, spaceID string) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ?", spaceID).
		Update("visits", gorm.Expr("visits + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// AddRevenue adds to the revenue counter
func (s *pgStore) AddRevenue(ctx context.Context, spaceID string, amount uint64) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Space{}).
		Where("space_id = ?", spaceID).
		Update("revenue_collected", gorm.Expr("revenue_collected + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("failed to add revenue: %w", err)
	}
	return nil
}

// vacantFields is the column set written when a space returns to vacant
func vacantFields() map[string]interface{} {
	return map[string]interface{}{
		"owner_wallet":        nil,
		"owner_username":      nil,
		"is_rented":           false,
		"flavor":              "",
		"rent_start_date":     nil,
		"last_rent_paid_date": nil,
		"rent_due_date":       nil,
		"rent_status":         nil,
	}
}
