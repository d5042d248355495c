/**
 * @description
 * Error values for the scheduling and settlement core. Validation errors
 * reject bad input at policy creation; precondition errors abort a
 * settlement attempt without mutation; arithmetic errors are fatal for the
 * attempt and never silently wrap.
 */
package billing

import "errors"

// Validation errors at policy creation.
var (
	ErrInvalidAmount      = errors.New("policy amount must be greater than zero")
	ErrInvalidInterval    = errors.New("custom interval must be greater than zero")
	ErrInvalidFrequency   = errors.New("unknown payment frequency")
	ErrInvalidMaxRenewals = errors.New("max renewals must be greater than zero when set")
	ErrInvalidPolicyType  = errors.New("unknown policy type")
	ErrMaxPoliciesReached = errors.New("user has reached the maximum number of policies")
)

// Precondition errors at settlement.
var (
	ErrPolicyNotActive     = errors.New("payment policy is not active")
	ErrGatewayInactive     = errors.New("payment gateway is not active")
	ErrProgramPaused       = errors.New("program is paused")
	ErrPaymentNotDue       = errors.New("payment is not due yet")
	ErrInsufficientBalance = errors.New("insufficient balance for payment")
	ErrFeeRateTooHigh      = errors.New("combined fee rate exceeds 100%")
)

// State machine errors.
var (
	ErrAlreadyActive = errors.New("policy is already active")
	ErrAlreadyPaused = errors.New("policy is already paused")
	ErrUserInactive  = errors.New("user payment account is not active")
)

// ErrArithmeticOverflow reports integer overflow or underflow in fee
// computation, date advancement, or counter updates. It must abort the
// settlement attempt.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")
