package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the ticket lifecycle taxonomy. The command layer maps
// each code to its own user-facing message; this package only guarantees
// the code and attached context.
const (
	CodeAlreadyHasActiveTicket = "ALREADY_HAS_ACTIVE_TICKET"
	CodeCreationFailed         = "CREATION_FAILED"
	CodeTicketNotFound         = "TICKET_NOT_FOUND"
	CodeInvalidState           = "INVALID_STATE"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeAlreadyParticipant     = "ALREADY_PARTICIPANT"
	CodeNotAParticipant        = "NOT_A_PARTICIPANT"
	CodeCannotRemoveCreator    = "CANNOT_REMOVE_CREATOR"
	CodeUserManagementFailed   = "USER_MANAGEMENT_FAILED"
	CodeAlreadyClosed          = "ALREADY_CLOSED"
	CodeClosingFailed          = "CLOSING_FAILED"
	CodeTranscriptUnavailable  = "TRANSCRIPT_UNAVAILABLE"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInternalError          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

func NewAlreadyHasActiveTicket(existingTicketID string) error {
	return NewDomainError(CodeAlreadyHasActiveTicket, "user already has an active ticket", http.StatusConflict,
		map[string]any{"ticket_id": existingTicketID})
}

func NewCreationFailed(reason string, cause error) error {
	return &DomainError{
		Code:       CodeCreationFailed,
		Message:    fmt.Sprintf("ticket creation failed: %s", reason),
		HTTPStatus: http.StatusBadGateway,
		Err:        cause,
	}
}

func NewTicketNotFound(details map[string]any) error {
	return NewDomainError(CodeTicketNotFound, "ticket not found", http.StatusNotFound, details)
}

func NewInvalidState(message string) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewAlreadyParticipant(userID int64) error {
	return NewDomainError(CodeAlreadyParticipant, "user is already a participant", http.StatusConflict,
		map[string]any{"user_id": userID})
}

func NewNotAParticipant(userID int64) error {
	return NewDomainError(CodeNotAParticipant, "user is not a participant", http.StatusConflict,
		map[string]any{"user_id": userID})
}

func NewCannotRemoveCreator() error {
	return NewDomainError(CodeCannotRemoveCreator, "ticket creator cannot be removed; close the ticket instead",
		http.StatusConflict, nil)
}

// NewUserManagementFailed wraps a participant mutation failure. revertErr is
// the outcome of the compensating channel action, nil when it succeeded.
func NewUserManagementFailed(cause, revertErr error) error {
	details := map[string]any{}
	if revertErr != nil {
		details["revert_error"] = revertErr.Error()
	}
	return &DomainError{
		Code:       CodeUserManagementFailed,
		Message:    "participant update failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    details,
		Err:        cause,
	}
}

func NewAlreadyClosed(ticketID string) error {
	return NewDomainError(CodeAlreadyClosed, "ticket is already closed", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewClosingFailed wraps a close failure. statusPersisted records whether
// the closed status already committed to the store before the failure.
func NewClosingFailed(cause error, statusPersisted bool) error {
	return &DomainError{
		Code:       CodeClosingFailed,
		Message:    "ticket closing failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"status_persisted": statusPersisted},
		Err:        cause,
	}
}

// NewTranscriptUnavailable classifies transcript failures. reason is
// "permission" or "transport".
func NewTranscriptUnavailable(reason string, cause error) error {
	return &DomainError{
		Code:       CodeTranscriptUnavailable,
		Message:    "transcript unavailable",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"reason": reason},
		Err:        cause,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
