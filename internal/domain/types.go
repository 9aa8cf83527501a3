package domain

// Identity is the verified caller identity supplied by the transport layer.
// Write paths never trust identity fields found in request bodies.
type Identity struct {
	IsAuthenticated bool
	WalletAddress   string
	Username        string
	CharacterType   string
}

// SpaceFlavor is the cosmetic variant a space takes on when rented, derived
// from the renter's character type.
type SpaceFlavor string

const (
	FlavorClassic  SpaceFlavor = "classic"
	FlavorFrost    SpaceFlavor = "frost"
	FlavorLava     SpaceFlavor = "lava"
	FlavorMidnight SpaceFlavor = "midnight"
)

// FlavorForCharacter maps a renter's character type to the space flavor applied
// at rental start. Unknown character types get the classic flavor.
func FlavorForCharacter(characterType string) SpaceFlavor {
	switch characterType {
	case "ice", "arctic":
		return FlavorFrost
	case "fire", "magma":
		return FlavorLava
	case "shadow", "ninja":
		return FlavorMidnight
	default:
		return FlavorClassic
	}
}
