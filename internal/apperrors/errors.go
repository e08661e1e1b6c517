// Package apperrors defines the dispatch core's error vocabulary: the fixed
// set of kinds named in spec.md §7, each carrying an HTTP status and a
// machine-readable code so handlers translate them with a single switch.
package apperrors

import "net/http"

// Error codes, matching the sub-codes spec.md §7 names explicitly.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorised     = "UNAUTHORISED"
	CodeForbidden        = "FORBIDDEN"
	CodeDriverNotVerified = "DRIVER_NOT_VERIFIED"
	CodePenaltyUnpaid    = "PENALTY_UNPAID"
	CodeNotParticipant   = "NOT_PARTICIPANT"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRideAlreadyTaken = "RIDE_ALREADY_TAKEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidOtp       = "INVALID_OTP"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError is the dispatch core's single error type: an HTTP status, a
// machine-readable code, a human message, and an optional wrapped cause.
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func new(status int, code, message string, err error) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Err: err}
}

// Validation reports a malformed or out-of-range request (spec.md §7).
func Validation(message string, err error) *AppError {
	return new(http.StatusBadRequest, CodeValidation, message, err)
}

// Unauthorised reports a missing or invalid internal shared secret.
func Unauthorised(message string) *AppError {
	return new(http.StatusUnauthorized, CodeUnauthorised, message, nil)
}

// DriverNotVerified is the forbidden sub-code for an unverified driver
// attempting to accept a ride.
func DriverNotVerified(message string) *AppError {
	return new(http.StatusForbidden, CodeDriverNotVerified, message, nil)
}

// PenaltyUnpaid is the forbidden sub-code for a driver who owes the
// stop-riding penalty (spec.md §6 "stop-riding" penalty amount).
func PenaltyUnpaid(message string) *AppError {
	return new(http.StatusForbidden, CodePenaltyUnpaid, message, nil)
}

// NotParticipant is the forbidden sub-code for an actor attempting an
// operation on a ride they are not a party to.
func NotParticipant(message string) *AppError {
	return new(http.StatusForbidden, CodeNotParticipant, message, nil)
}

// Forbidden is the generic forbidden case with no more specific sub-code.
func Forbidden(message string) *AppError {
	return new(http.StatusForbidden, CodeForbidden, message, nil)
}

// NotFound reports a missing ride, driver, or other entity.
func NotFound(message string) *AppError {
	return new(http.StatusNotFound, CodeNotFound, message, nil)
}

// RideAlreadyTaken is the conflict sub-code for the losing side of a
// concurrent ride-accept race (spec.md §4.3, §8).
func RideAlreadyTaken(message string) *AppError {
	return new(http.StatusConflict, CodeRideAlreadyTaken, message, nil)
}

// Conflict is the generic conflict case with no more specific sub-code.
func Conflict(message string) *AppError {
	return new(http.StatusConflict, CodeConflict, message, nil)
}

// InvalidTransition reports an attempted ride-status transition that is not
// in the allowed-transitions table (spec.md §4.5).
func InvalidTransition(message string) *AppError {
	return new(http.StatusUnprocessableEntity, CodeInvalidTransition, message, nil)
}

// InvalidOtp reports an OTP mismatch on the start-ride flow (spec.md §4.8).
func InvalidOtp(message string) *AppError {
	return new(http.StatusUnprocessableEntity, CodeInvalidOtp, message, nil)
}

// Internal wraps an unexpected failure; the cause is logged but never
// surfaced to the caller.
func Internal(message string, err error) *AppError {
	return new(http.StatusInternalServerError, CodeInternal, message, err)
}

// As extracts an *AppError from err, returning ok=false if err is not one.
func As(err error) (*AppError, bool) {
	ae, ok := err.(*AppError)
	return ae, ok
}
