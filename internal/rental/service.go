// Package rental orchestrates every rent, payment, settings, and vacate
// operation against the space record store. All mutation funnels through here
// or the sweeper; the message router never touches the store directly.
package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/access"
	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/messaging"
	"github.com/Tanner253/ClubPengu-sub005/internal/payment"
	"github.com/Tanner253/ClubPengu-sub005/internal/presence"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
	"github.com/Tanner253/ClubPengu-sub005/internal/store"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// OccupantSource reports who is currently inside a space; the gateway's
// presence registry implements it.
type OccupantSource interface {
	Occupants(spaceID string) []presence.Occupant
}

// Config holds the rental economics and limits
type Config struct {
	DailyRent             uint64
	RentCollectionAddress string
	StakeTokenAddress     string
	MinimumStakeBalance   uint64
	MaxRentals            int
	RentPeriod            time.Duration
}

// Service implements the rental operations. Construct one per process with
// NewService; it holds no global state.
type Service struct {
	store     store.Store
	verifier  payment.Verifier
	clock     adapter.Clock
	publisher messaging.Publisher
	occupants OccupantSource
	pool      pond.Pool
	config    Config
}

// NewService creates a rental service
func NewService(st store.Store, verifier payment.Verifier, clock adapter.Clock, publisher messaging.Publisher, occupants OccupantSource, config Config) *Service {
	if config.MaxRentals == 0 {
		config.MaxRentals = 2
	}
	if config.RentPeriod == 0 {
		config.RentPeriod = 24 * time.Hour
	}
	return &Service{
		store:     st,
		verifier:  verifier,
		clock:     clock,
		publisher: publisher,
		occupants: occupants,
		pool:      pond.NewPool(8),
		config:    config,
	}
}

// CanRentResult is the structured eligibility result for a rental attempt
type CanRentResult struct {
	CanRent        bool
	Code           domain.Code
	DailyRent      uint64
	MinimumBalance uint64
	CurrentRentals int
	MaxRentals     int
}

// CanRent checks whether the caller may rent the space right now. Refusals
// come back as a Code; only infrastructure failures return an error.
func (s *Service) CanRent(ctx context.Context, caller domain.Identity, spaceID string) (*CanRentResult, error) {
	result := &CanRentResult{
		DailyRent:      s.config.DailyRent,
		MinimumBalance: s.config.MinimumStakeBalance,
		MaxRentals:     s.config.MaxRentals,
	}

	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space == nil {
		result.Code = domain.CodeSpaceNotFound
		return result, nil
	}
	if space.IsReserved {
		result.Code = domain.CodeReserved
		return result, nil
	}
	if space.OwnerWallet != nil {
		result.Code = domain.CodeAlreadyRented
		return result, nil
	}

	count, err := s.store.CountActiveRentals(ctx, caller.WalletAddress)
	if err != nil {
		return nil, err
	}
	result.CurrentRentals = int(count)
	if result.CurrentRentals >= s.config.MaxRentals {
		result.Code = domain.CodeMaxRentalsReached
		return result, nil
	}

	check, err := s.verifier.CheckMinimumBalance(ctx, caller.WalletAddress, s.config.StakeTokenAddress, s.config.MinimumStakeBalance)
	if err != nil {
		// Fail closed: an unverifiable balance never qualifies
		logger.WarnCtx(ctx, "stake balance lookup failed, refusing rental",
			zap.String("wallet", caller.WalletAddress), zap.Error(err))
		result.Code = domain.CodeInsufficientFunds
		return result, nil
	}
	if !check.HasBalance {
		result.Code = domain.CodeInsufficientFunds
		return result, nil
	}

	result.CanRent = true
	return result, nil
}

// RentResult is the outcome of StartRental
type RentResult struct {
	Code            domain.Code
	TransactionHash string
	RentDueDate     time.Time
	Space           *schema.Space
}

// StartRental verifies the initial rent payment and claims the space. The
// claim re-checks vacancy at write time, so of two racing renters exactly one
// succeeds; the loser's payment stays valid on-chain but is never applied.
func (s *Service) StartRental(ctx context.Context, caller domain.Identity, spaceID, signature string) (*RentResult, error) {
	eligibility, err := s.CanRent(ctx, caller, spaceID)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanRent {
		return &RentResult{Code: eligibility.Code}, nil
	}

	receipt, err := s.verifier.VerifyPayment(ctx, signature, caller.WalletAddress, s.config.RentCollectionAddress,
		s.config.StakeTokenAddress, s.config.DailyRent,
		payment.AuditTags{SpaceID: spaceID, Kind: payment.KindRental, IsRenewal: false})
	if err != nil {
		return &RentResult{Code: verificationCode(err)}, nil
	}

	now := s.clock.Now()
	due := now.Add(s.config.RentPeriod)
	claim := store.RentalClaim{
		Wallet:   caller.WalletAddress,
		Username: caller.Username,
		Flavor:   string(domain.FlavorForCharacter(caller.CharacterType)),
		Start:    now,
		Due:      due,
	}
	if err := s.store.ClaimSpace(ctx, spaceID, claim); err != nil {
		if errors.Is(err, domain.ErrSpaceTaken) {
			// Lost the race; no state changed on our side
			logger.InfoCtx(ctx, "rental claim lost race",
				zap.String("space_id", spaceID), zap.String("wallet", caller.WalletAddress))
			return &RentResult{Code: domain.CodeAlreadyRented}, nil
		}
		return nil, err
	}

	space := s.broadcastSpace(ctx, spaceID)
	logger.InfoCtx(ctx, "space rented",
		zap.String("space_id", spaceID),
		zap.String("wallet", caller.WalletAddress),
		zap.Time("due", due),
	)
	return &RentResult{TransactionHash: receipt.TransactionHash, RentDueDate: due, Space: space}, nil
}

// PayRentResult is the outcome of PayRent
type PayRentResult struct {
	Code            domain.Code
	TransactionHash string
	NewDueDate      time.Time
}

// PayRent verifies a renewal payment and extends the due date by one rent
// period from the current due date, not from now. Paying during the grace
// period restores current status.
func (s *Service) PayRent(ctx context.Context, caller domain.Identity, spaceID, signature string) (*PayRentResult, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return &PayRentResult{Code: domain.CodeSpaceNotFound}, nil
	}
	if space.Owner() != caller.WalletAddress {
		return &PayRentResult{Code: domain.CodeNotOwner}, nil
	}
	if space.RentDueDate == nil {
		return &PayRentResult{Code: domain.CodeNotRented}, nil
	}

	receipt, err := s.verifier.VerifyPayment(ctx, signature, caller.WalletAddress, s.config.RentCollectionAddress,
		s.config.StakeTokenAddress, s.config.DailyRent,
		payment.AuditTags{SpaceID: spaceID, Kind: payment.KindRental, IsRenewal: true})
	if err != nil {
		return &PayRentResult{Code: verificationCode(err)}, nil
	}

	newDue := space.RentDueDate.Add(s.config.RentPeriod)
	if err := s.store.RenewRent(ctx, spaceID, caller.WalletAddress, newDue, s.clock.Now()); err != nil {
		if errors.Is(err, domain.ErrNotOwner) {
			// Evicted between the read and the write
			return &PayRentResult{Code: domain.CodeNotOwner}, nil
		}
		return nil, err
	}

	s.broadcastSpace(ctx, spaceID)
	logger.InfoCtx(ctx, "rent renewed",
		zap.String("space_id", spaceID),
		zap.String("wallet", caller.WalletAddress),
		zap.Time("new_due", newDue),
	)
	return &PayRentResult{TransactionHash: receipt.TransactionHash, NewDueDate: newDue}, nil
}

// PayEntryFeeResult is the outcome of PayEntryFee
type PayEntryFeeResult struct {
	Code                 domain.Code
	TransactionSignature string
}

// PayEntryFee records a visitor's entry-fee payment. Idempotent: a wallet
// with a payment already recorded under the current rules gets success
// without re-verification.
func (s *Service) PayEntryFee(ctx context.Context, caller domain.Identity, spaceID, signature string) (*PayEntryFeeResult, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return &PayEntryFeeResult{Code: domain.CodeSpaceNotFound}, nil
	}
	if !space.EntryFee.Enabled {
		return &PayEntryFeeResult{Code: domain.CodeNoEntryFee}, nil
	}
	if space.OwnerWallet == nil {
		return &PayEntryFeeResult{Code: domain.CodeNotRented}, nil
	}

	if space.PaidEntryFees.HasWallet(caller.WalletAddress) {
		return &PayEntryFeeResult{TransactionSignature: signature}, nil
	}

	receipt, err := s.verifier.VerifyPayment(ctx, signature, caller.WalletAddress, *space.OwnerWallet,
		space.EntryFee.TokenAddress, space.EntryFee.Amount,
		payment.AuditTags{SpaceID: spaceID, Kind: payment.KindEntryFee})
	if err != nil {
		return &PayEntryFeeResult{Code: verificationCode(err)}, nil
	}

	fee := schema.PaidEntryFee{
		WalletAddress: caller.WalletAddress,
		Amount:        space.EntryFee.Amount,
		TxSignature:   signature,
		PaidAt:        s.clock.Now(),
	}
	if err := s.store.AppendEntryFee(ctx, spaceID, fee); err != nil {
		return nil, err
	}
	if err := s.store.AddRevenue(ctx, spaceID, space.EntryFee.Amount); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to record entry fee revenue: %w", err),
			zap.String("space_id", spaceID))
	}

	s.broadcastSpace(ctx, spaceID)
	logger.InfoCtx(ctx, "entry fee paid",
		zap.String("space_id", spaceID),
		zap.String("wallet", caller.WalletAddress),
		zap.Uint64("amount", space.EntryFee.Amount),
		zap.String("tx", receipt.TransactionHash),
	)
	return &PayEntryFeeResult{TransactionSignature: signature}, nil
}

// UpdateSettingsResult is the outcome of UpdateSettings
type UpdateSettingsResult struct {
	Code           domain.Code
	Space          *schema.Space
	EntryFeesReset bool
}

// UpdateSettings merges an owner's partial settings patch. A material change
// to the entry fee or token gate invalidates every recorded fee payment, and
// every present non-owner occupant is re-evaluated against the new rules.
func (s *Service) UpdateSettings(ctx context.Context, caller domain.Identity, spaceID string, patch protocol.SettingsPatch) (*UpdateSettingsResult, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return &UpdateSettingsResult{Code: domain.CodeSpaceNotFound}, nil
	}
	if space.Owner() != caller.WalletAddress {
		return &UpdateSettingsResult{Code: domain.CodeNotOwner}, nil
	}

	merged := mergeSettings(space, patch)
	merged.ResetEntryFees = rulesChangedMaterially(space, merged)

	if err := s.store.UpdateSettings(ctx, spaceID, caller.WalletAddress, merged); err != nil {
		if errors.Is(err, domain.ErrNotOwner) {
			return &UpdateSettingsResult{Code: domain.CodeNotOwner}, nil
		}
		return nil, err
	}

	updated := s.broadcastSpace(ctx, spaceID)
	if updated == nil {
		updated, _ = s.store.GetSpace(ctx, spaceID)
	}

	// Everyone currently inside must qualify under the new rules
	if merged.ResetEntryFees || merged.AccessType != space.AccessType {
		s.reevaluateOccupants(ctx, updated)
	}

	logger.InfoCtx(ctx, "space settings updated",
		zap.String("space_id", spaceID),
		zap.String("wallet", caller.WalletAddress),
		zap.Bool("entry_fees_reset", merged.ResetEntryFees),
	)
	return &UpdateSettingsResult{Space: updated, EntryFeesReset: merged.ResetEntryFees}, nil
}

// LeaveResult is the outcome of LeaveSpace
type LeaveResult struct {
	Code domain.Code
}

// LeaveSpace is the owner's voluntary vacate. Reserved spaces cannot be left
// this way; their assignment changes only by out-of-band migration.
func (s *Service) LeaveSpace(ctx context.Context, caller domain.Identity, spaceID string) (*LeaveResult, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return &LeaveResult{Code: domain.CodeSpaceNotFound}, nil
	}
	if space.Owner() != caller.WalletAddress {
		return &LeaveResult{Code: domain.CodeNotOwner}, nil
	}
	if space.IsReserved {
		return &LeaveResult{Code: domain.CodeReservedOwner}, nil
	}

	if err := s.store.ReleaseSpace(ctx, spaceID, caller.WalletAddress); err != nil {
		if errors.Is(err, domain.ErrNotOwner) {
			return &LeaveResult{Code: domain.CodeNotOwner}, nil
		}
		return nil, err
	}

	s.broadcastSpace(ctx, spaceID)
	logger.InfoCtx(ctx, "space vacated",
		zap.String("space_id", spaceID),
		zap.String("wallet", caller.WalletAddress),
	)
	return &LeaveResult{}, nil
}

// EvaluateEntry fetches the space and decides entry for the visitor, doing
// the token balance lookup only when the access rules need one.
func (s *Service) EvaluateEntry(ctx context.Context, visitorWallet, spaceID string) (*schema.Space, access.Decision, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, access.Decision{}, err
	}
	if space == nil {
		return nil, access.Decision{}, domain.ErrSpaceNotFound
	}

	return space, s.evaluate(ctx, space, visitorWallet), nil
}

// RecordVisit bumps the visit counter; fire-and-forget from the caller's view
func (s *Service) RecordVisit(ctx context.Context, spaceID string) error {
	return s.store.RecordVisit(ctx, spaceID)
}

func (s *Service) evaluate(ctx context.Context, space *schema.Space, visitorWallet string) access.Decision {
	balance := access.BalanceResult{}
	needsBalance := space.TokenGate.Enabled &&
		(space.AccessType == schema.AccessToken || space.AccessType == schema.AccessBoth) &&
		visitorWallet != space.Owner()
	if needsBalance {
		check, err := s.verifier.CheckMinimumBalance(ctx, visitorWallet, space.TokenGate.TokenAddress, space.TokenGate.MinimumBalance)
		if err != nil {
			balance.Err = err
		} else {
			balance.Balance = check.Balance
		}
	}
	return access.EvaluateEntry(space, visitorWallet, balance)
}

// reevaluateOccupants checks every present non-owner occupant against the
// space's current rules and kicks those that no longer qualify.
func (s *Service) reevaluateOccupants(ctx context.Context, space *schema.Space) {
	if space == nil || s.occupants == nil {
		return
	}

	group := s.pool.NewGroup()
	for _, occ := range s.occupants.Occupants(space.SpaceID) {
		if occ.Wallet == "" || occ.Wallet == space.Owner() {
			continue
		}
		wallet := occ.Wallet
		group.Submit(func() {
			decision := s.evaluate(ctx, space, wallet)
			if decision.CanEnter {
				return
			}
			reason := kickReason(space, decision)
			kick := protocol.SpaceKicked{
				Type:    protocol.TypeSpaceKicked,
				SpaceID: space.SpaceID,
				Wallet:  wallet,
				Reason:  reason,
				Message: reason.Message(),
			}
			if err := s.publisher.PublishSpaceKicked(ctx, kick); err != nil {
				logger.ErrorCtx(ctx, fmt.Errorf("failed to publish kick: %w", err),
					zap.String("space_id", space.SpaceID), zap.String("wallet", wallet))
			}
		})
	}
	_ = group.Wait()
}

// kickReason maps an entry denial after a settings change to the user-facing
// kick reason
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

// broadcastSpace publishes the public view of the space's current state.
// Returns the fresh record, or nil if it could not be read.
func (s *Service) broadcastSpace(ctx context.Context, spaceID string) *schema.Space {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil || space == nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to load space for broadcast: %w", err),
			zap.String("space_id", spaceID))
		return nil
	}
	if err := s.publisher.PublishSpaceUpdated(ctx, protocol.PublicView(space)); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to publish space update: %w", err),
			zap.String("space_id", spaceID))
	}
	return space
}

// mergeSettings applies the patch over the space's current settings; fields
// the patch leaves nil keep their prior values
func mergeSettings(space *schema.Space, patch protocol.SettingsPatch) store.SettingsUpdate {
	update := store.SettingsUpdate{
		AccessType: space.AccessType,
		TokenGate:  space.TokenGate,
		EntryFee:   space.EntryFee,
		Banner:     space.Banner,
	}

	if patch.AccessType != nil {
		update.AccessType = schema.AccessType(*patch.AccessType)
	}
	if patch.TokenGate != nil {
		if patch.TokenGate.Enabled != nil {
			update.TokenGate.Enabled = *patch.TokenGate.Enabled
		}
		if patch.TokenGate.TokenAddress != nil {
			update.TokenGate.TokenAddress = *patch.TokenGate.TokenAddress
		}
		if patch.TokenGate.MinimumBalance != nil {
			update.TokenGate.MinimumBalance = *patch.TokenGate.MinimumBalance
		}
		if patch.TokenGate.TokenSymbol != nil {
			update.TokenGate.TokenSymbol = *patch.TokenGate.TokenSymbol
		}
	}
	if patch.EntryFee != nil {
		if patch.EntryFee.Enabled != nil {
			update.EntryFee.Enabled = *patch.EntryFee.Enabled
		}
		if patch.EntryFee.Amount != nil {
			update.EntryFee.Amount = *patch.EntryFee.Amount
		}
		if patch.EntryFee.TokenAddress != nil {
			update.EntryFee.TokenAddress = *patch.EntryFee.TokenAddress
		}
		if patch.EntryFee.TokenSymbol != nil {
			update.EntryFee.TokenSymbol = *patch.EntryFee.TokenSymbol
		}
	}
	if patch.Banner != nil {
		if patch.Banner.Text != nil {
			update.Banner.Text = *patch.Banner.Text
		}
		if patch.Banner.BackgroundColor != nil {
			update.Banner.BackgroundColor = *patch.Banner.BackgroundColor
		}
		if patch.Banner.TextColor != nil {
			update.Banner.TextColor = *patch.Banner.TextColor
		}
		if patch.Banner.ImageURL != nil {
			update.Banner.ImageURL = *patch.Banner.ImageURL
		}
	}

	return update
}

// rulesChangedMaterially reports whether the merged fee or gate rules differ
// from the space's current rules in a way that must re-qualify every visitor.
// Cosmetic fields (symbols, banner) never reset the fee ledger.
func rulesChangedMaterially(space *schema.Space, merged store.SettingsUpdate) bool {
	if space.EntryFee.Enabled != merged.EntryFee.Enabled ||
		space.EntryFee.Amount != merged.EntryFee.Amount ||
		space.EntryFee.TokenAddress != merged.EntryFee.TokenAddress {
		return true
	}
	if space.TokenGate.Enabled != merged.TokenGate.Enabled ||
		space.TokenGate.MinimumBalance != merged.TokenGate.MinimumBalance ||
		space.TokenGate.TokenAddress != merged.TokenGate.TokenAddress {
		return true
	}
	return false
}

// verificationCode maps a verifier error to the client-facing result code
func verificationCode(err error) domain.Code {
	if errors.Is(err, domain.ErrVerificationTimeout) {
		return domain.CodeVerificationTimeout
	}
	return domain.CodeVerificationFailed
}
