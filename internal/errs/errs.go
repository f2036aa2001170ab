// Package errs defines the error taxonomy shared by every entry point.
// Each error carries a stable reason code that handlers return to callers.
package errs

import (
	"errors"
	"fmt"
)

// Reason codes returned to callers in error responses.
const (
	CodeAppointmentNotFound = "appointment-not-found"
	CodeNotParticipant      = "not-a-participant"
	CodeRoomFull            = "room-full"
	CodeNotInRoom           = "not-in-room"
	CodeRoomNotFound        = "room-not-found"
	CodeValidation          = "validation-failed"
	CodeMediaDenied         = "media-permission-denied"
	CodePeerUnavailable     = "peer-unavailable"
	CodeNegotiationFailed   = "negotiation-failed"
	CodeProviderUnavailable = "video-provider-unavailable"
	CodeAppointmentNotToday = "appointment-not-today"
)

// Authorization errors. Rejected before any state mutation.
var (
	ErrAppointmentNotFound = &CodedError{Code: CodeAppointmentNotFound, Message: "appointment not found"}
	ErrNotParticipant      = &CodedError{Code: CodeNotParticipant, Message: "user is not a participant of this appointment"}
)

// Registry and relay errors.
var (
	ErrRoomFull     = &CodedError{Code: CodeRoomFull, Message: "room already has two participants"}
	ErrNotInRoom    = &CodedError{Code: CodeNotInRoom, Message: "sender is not registered in the room"}
	ErrRoomNotFound = &CodedError{Code: CodeRoomNotFound, Message: "room not found"}
)

// Client-side media and negotiation errors.
var (
	ErrPermissionDenied = &CodedError{Code: CodeMediaDenied, Message: "media permission denied"}
	ErrPeerUnavailable  = &CodedError{Code: CodePeerUnavailable, Message: "runtime lacks real-time media capability"}
)

// Managed provider errors.
var (
	ErrProviderUnavailable = &CodedError{Code: CodeProviderUnavailable, Message: "video provider unavailable"}
	ErrAppointmentNotToday = &CodedError{Code: CodeAppointmentNotToday, Message: "appointment is not scheduled for today"}
)

// CodedError is an error with a stable, caller-actionable reason code.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Message }

// Is matches any CodedError with the same code, so wrapped provider
// failures still satisfy errors.Is(err, ErrProviderUnavailable).
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	return ok && t.Code == e.Code
}

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid or missing field %q", e.Field)
}

// NewValidation returns a ValidationError for the given field.
func NewValidation(field string) error {
	return &ValidationError{Field: field}
}

// NegotiationError reports malformed or out-of-order SDP/ICE input.
// The negotiator responds with a full restart, never a crash.
type NegotiationError struct {
	Stage string
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed at %s: %v", e.Stage, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Code extracts the reason code from err, falling back to "internal-error".
func Code(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	var ne *NegotiationError
	if errors.As(err, &ne) {
		return CodeNegotiationFailed
	}
	return "internal-error"
}
