package schema

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// AccessType controls how non-owner visitors are admitted to a space
type AccessType string

const (
	// AccessPrivate admits the owner only
	AccessPrivate AccessType = "private"
	// AccessPublic admits everyone
	AccessPublic AccessType = "public"
	// AccessToken admits wallets holding the gate token minimum
	AccessToken AccessType = "token"
	// AccessFee admits wallets that have paid the entry fee
	AccessFee AccessType = "fee"
	// AccessBoth requires the token gate and the entry fee
	AccessBoth AccessType = "both"
)

// RentStatus tracks where a rented space sits in the payment lifecycle
type RentStatus string

const (
	// RentCurrent means rent is paid up
	RentCurrent RentStatus = "current"
	// RentGracePeriod means rent is overdue but the space is not yet evicted
	RentGracePeriod RentStatus = "grace_period"
)

// Position is the fixed layout placement of a space in the world
type Position struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

// Scan implements sql.Scanner for JSONB
func (p *Position) Scan(value interface{}) error {
	if value == nil {
		*p = Position{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Value implements driver.Valuer for JSONB
func (p Position) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// TokenGate is an access rule requiring a minimum on-chain balance of a token
type TokenGate struct {
	Enabled        bool   `json:"enabled"`
	TokenAddress   string `json:"tokenAddress"`
	MinimumBalance uint64 `json:"minimumBalance"`
	TokenSymbol    string `json:"tokenSymbol"`
}

// Scan implements sql.Scanner for JSONB
func (g *TokenGate) Scan(value interface{}) error {
	if value == nil {
		*g = TokenGate{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, g)
}

// Value implements driver.Valuer for JSONB
func (g TokenGate) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// EntryFee is a one-time payment (per rule epoch) required from visitors
type EntryFee struct {
	Enabled      bool   `json:"enabled"`
	Amount       uint64 `json:"amount"`
	TokenAddress string `json:"tokenAddress"`
	TokenSymbol  string `json:"tokenSymbol"`
}

// Scan implements sql.Scanner for JSONB
func (f *EntryFee) Scan(value interface{}) error {
	if value == nil {
		*f = EntryFee{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, f)
}

// Value implements driver.Valuer for JSONB
func (f EntryFee) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// PaidEntryFee records one visitor's entry-fee payment under the current rules
type PaidEntryFee struct {
	WalletAddress string    `json:"walletAddress"`
	Amount        uint64    `json:"amount"`
	TxSignature   string    `json:"txSignature"`
	PaidAt        time.Time `json:"paidAt"`
}

// PaidEntryFees holds all entry-fee payments for the current rule epoch.
// The whole set is cleared whenever the fee or gate rules change meaningfully.
type PaidEntryFees []PaidEntryFee

// HasWallet reports whether the wallet has a payment recorded in this epoch
func (p PaidEntryFees) HasWallet(wallet string) bool {
	for _, fee := range p {
		if fee.WalletAddress == wallet {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner for JSONB
func (p *PaidEntryFees) Scan(value interface{}) error {
	if value == nil {
		*p = PaidEntryFees{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Value implements driver.Valuer for JSONB
func (p PaidEntryFees) Value() (driver.Value, error) {
	if p == nil {
		p = PaidEntryFees{}
	}
	return json.Marshal(p)
}

// Banner holds the owner-editable cosmetic display settings
type Banner struct {
	Text            string `json:"text"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	ImageURL        string `json:"imageUrl"`
}

// Scan implements sql.Scanner for JSONB
func (b *Banner) Scan(value interface{}) error {
	if value == nil {
		*b = Banner{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, b)
}

// Value implements driver.Valuer for JSONB
func (b Banner) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Space represents the spaces table - one row per rentable plot in the world.
// Rows are seeded once from the fixed layout and never deleted; only the
// rental and access fields mutate.
type Space struct {
	// SpaceID is the immutable layout identifier (e.g. "space1")
	SpaceID string `gorm:"column:space_id;primaryKey;type:text"`
	// Position is the fixed world placement
	Position Position `gorm:"column:position;type:jsonb"`
	// IsReserved marks spaces permanently assigned out-of-band; they never
	// enter the public rental pool and never expire through the sweep
	IsReserved bool `gorm:"column:is_reserved;not null;default:false"`
	// OwnerWallet is the current renter's wallet, nil when vacant
	OwnerWallet *string `gorm:"column:owner_wallet;type:text;index"`
	// OwnerUsername caches the renter's display name
	OwnerUsername *string `gorm:"column:owner_username;type:text"`
	// IsRented is kept consistent with OwnerWallet != nil
	IsRented bool `gorm:"column:is_rented;not null;default:false"`
	// Flavor is the cosmetic variant selected from the renter's character type
	Flavor string `gorm:"column:flavor;type:text"`
	// RentStartDate is when the current rental began
	RentStartDate *time.Time `gorm:"column:rent_start_date;type:timestamptz"`
	// LastRentPaidDate is when rent was last verified on-chain
	LastRentPaidDate *time.Time `gorm:"column:last_rent_paid_date;type:timestamptz"`
	// RentDueDate advances only on a verified payment; always set while rented
	RentDueDate *time.Time `gorm:"column:rent_due_date;type:timestamptz;index"`
	// RentStatus is current or grace_period while rented, nil otherwise
	RentStatus *RentStatus `gorm:"column:rent_status;type:text"`
	// AccessType controls visitor admission
	AccessType AccessType `gorm:"column:access_type;not null;type:text;default:public"`
	// TokenGate is the minimum-balance entry rule
	TokenGate TokenGate `gorm:"column:token_gate;type:jsonb"`
	// EntryFee is the one-time payment entry rule
	EntryFee EntryFee `gorm:"column:entry_fee;type:jsonb"`
	// PaidEntryFees is the set of payments under the current rule epoch
	PaidEntryFees PaidEntryFees `gorm:"column:paid_entry_fees;type:jsonb"`
	// Banner is the owner-editable cosmetic display
	Banner Banner `gorm:"column:banner;type:jsonb"`
	// Visits counts recorded visits to this space
	Visits uint64 `gorm:"column:visits;not null;default:0"`
	// RevenueCollected totals entry-fee revenue collected by owners, in base
	// token units
	RevenueCollected uint64 `gorm:"column:revenue_collected;not null;default:0"`
	// CreatedAt is when this row was seeded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is when this row last changed
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Space model
func (Space) TableName() string {
	return "spaces"
}

// Owner returns the owner wallet or "" when vacant
func (s *Space) Owner() string {
	if s.OwnerWallet == nil {
		return ""
	}
	return *s.OwnerWallet
}

// Gated reports whether non-owner entry depends on a token gate or entry fee
func (s *Space) Gated() bool {
	switch s.AccessType {
	case AccessToken, AccessFee, AccessBoth, AccessPrivate:
		return true
	default:
		return false
	}
}
