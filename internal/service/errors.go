package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"live-session-service/internal/response"
)

var (
	// ErrBusy matches any conflict raised because a designer already hosts a session.
	ErrBusy = &response.AppError{Code: response.ErrCodeConflict}

	ErrRequestNotFound = response.NewNotFoundError("Session request not found", "")
	ErrSessionNotFound = response.NewNotFoundError("Session not found", "")
	ErrNotAddressee    = response.NewForbiddenError("Only the addressed designer may respond", "")
	ErrNotParticipant  = response.NewForbiddenError("Not a participant of this session", "")
)

// storeErr classifies a repository error. Anything unrecognised is a
// transport failure the caller may retry.
func storeErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *response.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return response.NewNotFoundError("Record not found", operation)
	}
	return response.NewTransportError(operation, err)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return containsAny(msg, "UNIQUE constraint failed", "duplicate key value", "23505")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
