package services

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindAuthorization   ErrorKind = "authorization"
	KindNotFound        ErrorKind = "not_found"
	KindGenerator       ErrorKind = "generator"
	KindStorage         ErrorKind = "storage"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindConflict        ErrorKind = "conflict"
)

type ServiceError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error {
	return e.Err
}

func ErrValidation(msg string) error {
	return ServiceError{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg}
}

func ErrForbidden(msg string) error {
	return ServiceError{Kind: KindAuthorization, Status: http.StatusForbidden, Message: msg}
}

func ErrNotFound(msg string) error {
	return ServiceError{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

func ErrGenerator(err error) error {
	return ServiceError{Kind: KindGenerator, Status: http.StatusBadGateway, Message: "nudge generation failed", Err: err}
}

// ErrStorage hides the cause from clients; Error() still carries it for logs.
func ErrStorage(err error) error {
	return ServiceError{Kind: KindStorage, Status: http.StatusInternalServerError, Message: "storage failure", Err: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var serr ServiceError
	return errors.As(err, &serr) && serr.Kind == kind
}

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// asServiceError passes service errors through and classifies anything else
// as a storage failure.
func asServiceError(err error) error {
	if err == nil {
		return nil
	}
	var serr ServiceError
	if errors.As(err, &serr) {
		return err
	}
	return ErrStorage(err)
}
