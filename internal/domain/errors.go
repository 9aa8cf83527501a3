package domain

import "errors"

var (
	// ErrSpaceNotFound is returned when a space ID does not exist in the layout
	ErrSpaceNotFound = errors.New("space not found")

	// ErrSpaceTaken is returned when a conditional claim finds the space no longer vacant
	ErrSpaceTaken = errors.New("space already rented")

	// ErrNotOwner is returned when a conditional write finds the caller no longer owns the space
	ErrNotOwner = errors.New("caller is not the space owner")

	// ErrVerificationFailed is returned when an on-chain payment does not match the expected transfer
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrVerificationTimeout is returned when the payment verifier did not confirm within its deadline
	ErrVerificationTimeout = errors.New("payment verification timed out")

	// ErrBalanceLookup is returned when a token balance lookup fails; callers must fail closed
	ErrBalanceLookup = errors.New("token balance lookup failed")
)
