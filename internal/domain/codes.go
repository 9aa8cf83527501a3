package domain

// Code is a stable machine-readable result code returned to clients.
// Codes never change once shipped; clients key UI behavior off them.
type Code string

const (
	// Validation
	CodeMissingPayment   Code = "MISSING_PAYMENT"
	CodeMissingSignature Code = "MISSING_SIGNATURE"
	CodeMissingSpaceID   Code = "MISSING_SPACE_ID"

	// Authorization
	CodeNotAuthenticated Code = "NOT_AUTHENTICATED"
	CodeNotOwner         Code = "NOT_OWNER"
	CodeReservedOwner    Code = "RESERVED_OWNER"

	// Business rules
	CodeSpaceNotFound      Code = "SPACE_NOT_FOUND"
	CodeReserved           Code = "RESERVED"
	CodeAlreadyRented      Code = "ALREADY_RENTED"
	CodeMaxRentalsReached  Code = "MAX_RENTALS_REACHED"
	CodeInsufficientFunds  Code = "INSUFFICIENT_BALANCE"
	CodeNoEntryFee         Code = "NO_ENTRY_FEE"
	CodeNotRented          Code = "NOT_RENTED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeUnknownRequestType Code = "UNKNOWN_REQUEST_TYPE"

	// Entry decisions
	CodeSpaceLocked   Code = "SPACE_LOCKED"
	CodeTokenRequired Code = "TOKEN_REQUIRED"
	CodeFeeRequired   Code = "FEE_REQUIRED"

	// Kick reasons after a settings change or failed eligibility re-check
	CodeSpaceNowPrivate     Code = "SPACE_NOW_PRIVATE"
	CodeTokenGateNotMet     Code = "TOKEN_GATE_NOT_MET"
	CodeEntryFeeNowRequired Code = "ENTRY_FEE_NOW_REQUIRED"

	// External dependencies
	CodeServerError         Code = "SERVER_ERROR"
	CodeVerificationFailed  Code = "PAYMENT_VERIFICATION_FAILED"
	CodeVerificationTimeout Code = "PAYMENT_VERIFICATION_TIMEOUT"
)

// Message returns the human-readable message paired with a code. Every refusal
// sent to a client carries both the code and this message.
func (c Code) Message() string {
	switch c {
	case CodeMissingPayment:
		return "A payment transaction is required"
	case CodeMissingSignature:
		return "A transaction signature is required"
	case CodeMissingSpaceID:
		return "A space ID is required"
	case CodeNotAuthenticated:
		return "You must connect a wallet to do that"
	case CodeNotOwner:
		return "Only the space owner can do that"
	case CodeReservedOwner:
		return "Reserved spaces cannot be vacated"
	case CodeSpaceNotFound:
		return "That space does not exist"
	case CodeReserved:
		return "That space is reserved and cannot be rented"
	case CodeAlreadyRented:
		return "That space is already rented"
	case CodeMaxRentalsReached:
		return "You already hold the maximum number of rentals"
	case CodeInsufficientFunds:
		return "Your token balance is below the required minimum"
	case CodeNoEntryFee:
		return "This space does not charge an entry fee"
	case CodeNotRented:
		return "That space is not currently rented"
	case CodeRateLimited:
		return "Too many checks, slow down"
	case CodeUnknownRequestType:
		return "Unknown request type"
	case CodeSpaceLocked:
		return "This space is private"
	case CodeTokenRequired:
		return "You need to hold the required token to enter"
	case CodeFeeRequired:
		return "An entry fee is required to enter"
	case CodeSpaceNowPrivate:
		return "The owner has made this space private"
	case CodeTokenGateNotMet:
		return "You no longer meet the token requirement for this space"
	case CodeEntryFeeNowRequired:
		return "The entry fee changed, you need to pay again to stay"
	case CodeVerificationFailed:
		return "Payment verification failed"
	case CodeVerificationTimeout:
		return "Payment verification timed out"
	default:
		return "Something went wrong"
	}
}
