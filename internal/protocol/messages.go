package protocol

import (
	"time"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// HelloRequest opens a session. The token is the identity provider's signed
// session token; identity is never taken from any later request body.
type HelloRequest struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// Welcome acknowledges a session
type Welcome struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	Authenticated bool   `json:"authenticated"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Username      string `json:"username,omitempty"`
}

// SpaceRequest covers every request that only names a space
type SpaceRequest struct {
	Type    string `json:"type"`
	SpaceID string `json:"spaceId"`
}

// PaymentRequest covers requests carrying an on-chain transaction signature
type PaymentRequest struct {
	Type                 string `json:"type"`
	SpaceID              string `json:"spaceId"`
	TransactionSignature string `json:"transactionSignature"`
}

// TokenGatePatch is a partial token-gate update; nil fields keep prior values
type TokenGatePatch struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	TokenAddress   *string `json:"tokenAddress,omitempty"`
	MinimumBalance *uint64 `json:"minimumBalance,omitempty"`
	TokenSymbol    *string `json:"tokenSymbol,omitempty"`
}

// EntryFeePatch is a partial entry-fee update; nil fields keep prior values
type EntryFeePatch struct {
	Enabled      *bool   `json:"enabled,omitempty"`
	Amount       *uint64 `json:"amount,omitempty"`
	TokenAddress *string `json:"tokenAddress,omitempty"`
	TokenSymbol  *string `json:"tokenSymbol,omitempty"`
}

// BannerPatch is a partial banner update; nil fields keep prior values
type BannerPatch struct {
	Text            *string `json:"text,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty"`
	TextColor       *string `json:"textColor,omitempty"`
	ImageURL        *string `json:"imageUrl,omitempty"`
}

// SettingsPatch is the typed partial update for owner settings
type SettingsPatch struct {
	AccessType *string         `json:"accessType,omitempty"`
	TokenGate  *TokenGatePatch `json:"tokenGate,omitempty"`
	EntryFee   *EntryFeePatch  `json:"entryFee,omitempty"`
	Banner     *BannerPatch    `json:"banner,omitempty"`
}

// UpdateSettingsRequest carries an owner settings patch
type UpdateSettingsRequest struct {
	Type     string        `json:"type"`
	SpaceID  string        `json:"spaceId"`
	Settings SettingsPatch `json:"settings"`
}

// CanRentResponse answers space_can_rent
type CanRentResponse struct {
	Type           string      `json:"type"`
	SpaceID        string      `json:"spaceId"`
	CanRent        bool        `json:"canRent"`
	Error          domain.Code `json:"error,omitempty"`
	Message        string      `json:"message,omitempty"`
	DailyRent      uint64      `json:"dailyRent,omitempty"`
	MinimumBalance uint64      `json:"minimumBalance,omitempty"`
	CurrentRentals int         `json:"currentRentals"`
	MaxRentals     int         `json:"maxRentals,omitempty"`
}

// RentResponse answers space_rent
type RentResponse struct {
	Type            string       `json:"type"`
	SpaceID         string       `json:"spaceId"`
	Success         bool         `json:"success"`
	Error           domain.Code  `json:"error,omitempty"`
	Message         string       `json:"message,omitempty"`
	TransactionHash string       `json:"transactionHash,omitempty"`
	RentDueDate     *time.Time   `json:"rentDueDate,omitempty"`
	Space           *PublicSpace `json:"space,omitempty"`
}

// PayRentResponse answers space_pay_rent
type PayRentResponse struct {
	Type            string      `json:"type"`
	SpaceID         string      `json:"spaceId"`
	Success         bool        `json:"success"`
	Error           domain.Code `json:"error,omitempty"`
	Message         string      `json:"message,omitempty"`
	TransactionHash string      `json:"transactionHash,omitempty"`
	NewDueDate      *time.Time  `json:"newDueDate,omitempty"`
}

// EntryResponse answers space_can_enter and space_eligibility_check
type EntryResponse struct {
	Type             string      `json:"type"`
	SpaceID          string      `json:"spaceId"`
	CanEnter         bool        `json:"canEnter"`
	IsOwner          bool        `json:"isOwner"`
	BlockingReason   domain.Code `json:"blockingReason,omitempty"`
	Reason           string      `json:"reason,omitempty"`
	TokenGateMet     bool        `json:"tokenGateMet"`
	EntryFeePaid     bool        `json:"entryFeePaid"`
	UserTokenBalance *uint64     `json:"userTokenBalance,omitempty"`
	OwnerWallet      string      `json:"ownerWallet,omitempty"`
	// Requirement fields so the client can render what entry takes
	AccessType     string `json:"accessType"`
	TokenAddress   string `json:"tokenAddress,omitempty"`
	MinimumBalance uint64 `json:"minimumBalance,omitempty"`
	TokenSymbol    string `json:"tokenSymbol,omitempty"`
	EntryFeeAmount uint64 `json:"entryFeeAmount,omitempty"`
}

// PayEntryResponse answers space_pay_entry
type PayEntryResponse struct {
	Type                 string      `json:"type"`
	SpaceID              string      `json:"spaceId"`
	Success              bool        `json:"success"`
	Error                domain.Code `json:"error,omitempty"`
	Message              string      `json:"message,omitempty"`
	TransactionSignature string      `json:"transactionSignature,omitempty"`
}

// UpdateSettingsResponse answers space_update_settings
type UpdateSettingsResponse struct {
	Type          string       `json:"type"`
	SpaceID       string       `json:"spaceId"`
	Success       bool         `json:"success"`
	Error         domain.Code  `json:"error,omitempty"`
	Message       string       `json:"message,omitempty"`
	Space         *PublicSpace `json:"space,omitempty"`
	EntryFeesReset bool        `json:"entryFeesReset,omitempty"`
}

// LeaveResponse answers space_leave
type LeaveResponse struct {
	Type    string      `json:"type"`
	SpaceID string      `json:"spaceId"`
	Success bool        `json:"success"`
	Error   domain.Code `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SpaceListResponse answers space_list with the public view of every space
type SpaceListResponse struct {
	Type   string         `json:"type"`
	Spaces []*PublicSpace `json:"spaces"`
}

// ErrorResponse is the uniform failure reply for anything the router refuses
type ErrorResponse struct {
	Type    string      `json:"type"`
	For     string      `json:"for,omitempty"`
	SpaceID string      `json:"spaceId,omitempty"`
	Error   domain.Code `json:"error"`
	Message string      `json:"message"`
}

// SpaceUpdated is broadcast to every connected client after an accepted
// mutation so spectators' views converge without polling
type SpaceUpdated struct {
	Type  string       `json:"type"`
	Space *PublicSpace `json:"space"`
}

// SpaceKicked tells a specific occupant they no longer qualify for a space
type SpaceKicked struct {
	Type    string      `json:"type"`
	SpaceID string      `json:"spaceId"`
	Wallet  string      `json:"-"`
	Reason  domain.Code `json:"reason"`
	Message string      `json:"message"`
}

// PublicSpace is the public-safe view of a space. It never carries the paid
// entry fee ledger or the owner's payment dates; those stay in owner replies.
type PublicSpace struct {
	SpaceID       string             `json:"spaceId"`
	Position      schema.Position    `json:"position"`
	IsReserved    bool               `json:"isReserved"`
	OwnerWallet   string             `json:"ownerWallet,omitempty"`
	OwnerUsername string             `json:"ownerUsername,omitempty"`
	IsRented      bool               `json:"isRented"`
	Flavor        string             `json:"flavor,omitempty"`
	RentStatus    *schema.RentStatus `json:"rentStatus,omitempty"`
	AccessType    schema.AccessType  `json:"accessType"`
	TokenGate     schema.TokenGate   `json:"tokenGate"`
	EntryFee      schema.EntryFee    `json:"entryFee"`
	Banner        schema.Banner      `json:"banner"`
	Visits        uint64             `json:"visits"`
}

// PublicView maps a space record to its public-safe view
func PublicView(space *schema.Space) *PublicSpace {
	if space == nil {
		return nil
	}
	view := &PublicSpace{
		SpaceID:    space.SpaceID,
		Position:   space.Position,
		IsReserved: space.IsReserved,
		IsRented:   space.IsRented,
		Flavor:     space.Flavor,
		RentStatus: space.RentStatus,
		AccessType: space.AccessType,
		TokenGate:  space.TokenGate,
		EntryFee:   space.EntryFee,
		Banner:     space.Banner,
		Visits:     space.Visits,
	}
	if space.OwnerWallet != nil {
		view.OwnerWallet = *space.OwnerWallet
	}
	if space.OwnerUsername != nil {
		view.OwnerUsername = *space.OwnerUsername
	}
	return view
}
