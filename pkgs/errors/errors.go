package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error Code
// 000 - 099: General errors
const (
	ECUnknown         = 000
	ECMarshalFailed   = 001
	ECUnmarshalFailed = 002
	ECIOError         = 003
)

// HTTP 400 - 499: Client errors
const (
	ECBadRequest      = http.StatusBadRequest
	ECNotFound        = http.StatusNotFound
	ECTooManyRequests = http.StatusTooManyRequests
)

// HTTP 500 - 599: Server errors
const (
	ECInternalServerError = http.StatusInternalServerError
	ECServiceUnavailable  = http.StatusServiceUnavailable
	ECGatewayTimeout      = http.StatusGatewayTimeout
)

// Pipeline errors. The split between transient and permanent drives the
// retry behaviour: transient errors rely on queue redelivery, permanent
// errors terminate the task.
const (
	ECValidationError = iota + 520
	ECTransientExternalError
	ECPermanentExternalError
	ECQueuePublishFailed
	ECRecognitionFailed
	ECRenderFailed
)

const (
	ECDatabaseError = iota + 550
	ECNoRows
	ECIntegrityConstrainViolation
	ECTransactionRollback
	ECObjectStorageError
	ECObjectNotFound
	ECTerminalState
)

type Error struct {
	InternalStatusCode int      `json:"-"`
	HttpStatusCode     int      `json:"code"`
	Message            string   `json:"message"`
	Details            []string `json:"details,omitempty"`
	internal           error
}

var (
	Success = &Error{InternalStatusCode: 0, HttpStatusCode: http.StatusOK, Message: "ok"}

	ErrBadRequest       = NewWithHTTPStatus(http.StatusBadRequest, ECBadRequest, "bad request")
	ErrInternal         = NewWithHTTPStatus(http.StatusInternalServerError, ECInternalServerError, "internal server error")
	ErrValidationFailed = NewWithHTTPStatus(http.StatusBadRequest, ECValidationError, "validation failed")
	ErrNotFound         = NewWithHTTPStatus(http.StatusNotFound, ECNoRows, "no record found")

	ErrTransientExternal = NewWithHTTPStatus(http.StatusServiceUnavailable, ECTransientExternalError, "external service temporarily unavailable")
	ErrPermanentExternal = NewWithHTTPStatus(http.StatusBadGateway, ECPermanentExternalError, "external service rejected the request")
	ErrQueuePublish      = NewWithHTTPStatus(http.StatusInternalServerError, ECQueuePublishFailed, "failed to publish queue message")
	ErrRecognition       = NewWithHTTPStatus(http.StatusBadGateway, ECRecognitionFailed, "speech recognition failed")
	ErrRender            = NewWithHTTPStatus(http.StatusInternalServerError, ECRenderFailed, "pdf rendering failed")

	ErrDBError                       = NewWithHTTPStatus(http.StatusInternalServerError, ECDatabaseError, "database error")
	ErrDBIntegrityConstrainViolation = NewWithHTTPStatus(http.StatusConflict, ECIntegrityConstrainViolation, "integrity constraint violation")
	ErrDBTransactionRollback         = NewWithHTTPStatus(http.StatusInternalServerError, ECTransactionRollback, "transaction rollback error")
	ErrObjectStorage                 = NewWithHTTPStatus(http.StatusInternalServerError, ECObjectStorageError, "object storage error")
	ErrObjectNotFound                = NewWithHTTPStatus(http.StatusNotFound, ECObjectNotFound, "object not found")
	ErrTerminalState                 = NewWithHTTPStatus(http.StatusConflict, ECTerminalState, "task is already in a terminal state")
)

func NewWithHTTPStatus(httpSC, internalSC int, msg string, details ...string) *Error {
	return &Error{
		InternalStatusCode: internalSC,
		HttpStatusCode:     httpSC,
		Message:            msg,
		Details:            details,
		internal:           nil,
	}
}

func New(code int, message string, details ...string) *Error {
	return NewWithHTTPStatus(
		http.StatusInternalServerError,
		code,
		message,
		details...,
	)
}

// IsTransient reports whether err should be resolved by redelivery rather
// than by terminating the task.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.InternalStatusCode {
	case ECTransientExternalError, ECDatabaseError, ECTransactionRollback,
		ECObjectStorageError, ECQueuePublishFailed:
		return true
	}
	return false
}

func (e *Error) Error() string {
	if e.internal != nil {
		return fmt.Sprintf("[%d] %s (original error: %s)", e.HttpStatusCode, e.Message, e.internal.Error())
	}
	return fmt.Sprintf("[%d] %s", e.HttpStatusCode, e.Message)
}

func (e *Error) ErrorWithDetails() string {
	sb := strings.Builder{}
	sb.WriteString("Error: ")
	sb.WriteString(fmt.Sprintf("  - [%d] %s\n", e.HttpStatusCode, e.Message))
	if len(e.Details) > 0 {
		sb.WriteString("  - Details:\n")
		for _, detail := range e.Details {
			sb.WriteString(fmt.Sprintf("    - %s\n", detail))
		}
	}
	if e.internal != nil {
		sb.WriteString("  - Internal Error: ")
		sb.WriteString(e.internal.Error())
	}
	return sb.String()
}

func (e *Error) Clone() *Error {
	return &Error{
		InternalStatusCode: e.InternalStatusCode,
		HttpStatusCode:     e.HttpStatusCode,
		Message:            e.Message,
		Details:            append([]string{}, e.Details...),
		internal:           e.internal,
	}
}

func (e *Error) WithMessage(message string) *Error {
	if e == nil {
		return nil
	}
	e.Message = message
	return e
}

func (e *Error) WithDetails(details ...string) *Error {
	if e == nil {
		return nil
	}
	e.Details = append(e.Details, details...)
	return e
}

func (e *Error) Warp(err error) *Error {
	if e == nil {
		return nil
	}
	if err == nil {
		return e
	}
	e.internal = err
	return e
}

func (e *Error) Unwrap() error {
	return e.internal
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.InternalStatusCode == t.InternalStatusCode
}

func (e Error) MarshalAndWriteTo(w io.Writer) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
