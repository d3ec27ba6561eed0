package util

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := NewAlreadyClosed("AAAA1111")
	assert.True(t, HasCode(err, CodeAlreadyClosed))
	assert.False(t, HasCode(err, CodeTicketNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeAlreadyClosed))
	assert.False(t, HasCode(nil, CodeAlreadyClosed))
}

func TestDomainErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewCreationFailed("channel creation failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAlreadyHasActiveTicketCarriesExistingID(t *testing.T) {
	err := NewAlreadyHasActiveTicket("AAAA1111")
	domainErr := ToDomainError(err)

	assert.Equal(t, CodeAlreadyHasActiveTicket, domainErr.Code)
	assert.Equal(t, http.StatusConflict, domainErr.HTTPStatus)
	assert.Equal(t, "AAAA1111", domainErr.Details["ticket_id"])
}

func TestUserManagementFailedRevertDetail(t *testing.T) {
	cause := errors.New("grant failed")

	clean := ToDomainError(NewUserManagementFailed(cause, nil))
	_, has := clean.Details["revert_error"]
	assert.False(t, has)

	dirty := ToDomainError(NewUserManagementFailed(cause, errors.New("revoke failed")))
	assert.Equal(t, "revoke failed", dirty.Details["revert_error"])
}

func TestClosingFailedStatusPersisted(t *testing.T) {
	before := ToDomainError(NewClosingFailed(errors.New("db down"), false))
	assert.Equal(t, false, before.Details["status_persisted"])

	after := ToDomainError(NewClosingFailed(errors.New("archive failed"), true))
	assert.Equal(t, true, after.Details["status_persisted"])
}

func TestTranscriptUnavailableReason(t *testing.T) {
	err := ToDomainError(NewTranscriptUnavailable("permission", errors.New("forbidden")))
	assert.Equal(t, CodeTranscriptUnavailable, err.Code)
	assert.Equal(t, "permission", err.Details["reason"])
}

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	original := NewTicketNotFound(nil)
	require.Same(t, original.(*DomainError), ToDomainError(original))

	wrapped := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternalError, wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus)
}
