package protocol

import "encoding/json"

// Request type strings. The router dispatches on these.
const (
	TypeHello            = "hello"
	TypeWelcome          = "welcome"
	TypeSpaceList        = "space_list"
	TypeSpaceCanRent     = "space_can_rent"
	TypeSpaceRent        = "space_rent"
	TypeSpacePayRent     = "space_pay_rent"
	TypeSpaceCanEnter    = "space_can_enter"
	TypeSpaceEligibility = "space_eligibility_check"
	TypeSpacePayEntry    = "space_pay_entry"
	TypeSpaceSettings    = "space_update_settings"
	TypeSpaceLeave       = "space_leave"
	TypeSpaceVisit       = "space_visit"

	// Server-pushed
	TypeSpaceUpdated = "space_updated"
	TypeSpaceKicked  = "space_kicked"
	TypeError        = "error"
)

// Base is the envelope every inbound message starts with
type Base struct {
	Type string `json:"type"`
}

// DecodeBase extracts the type field from a raw message
func DecodeBase(raw []byte) (Base, error) {
	var base Base
	err := json.Unmarshal(raw, &base)
	return base, err
}
