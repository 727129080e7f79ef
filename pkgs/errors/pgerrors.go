package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

type PGErr struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Details  string `json:"details"`
}

func (p PGErr) String() string {
	return fmt.Sprintf("[%s][%s] %s, details: %s", p.Code, p.Severity, p.Message, p.Details)
}

func (p PGErr) Error() string {
	return p.String()
}

func NewPGErr(err error) (*PGErr, bool) {
	if err == nil {
		return nil, true
	}

	var pgErr *pgconn.PgError
	if ok := errors.As(err, &pgErr); !ok {
		return nil, false
	}

	return &PGErr{
		Code:     pgErr.Code,
		Message:  pgErr.Message,
		Severity: pgErr.Severity,
		Details:  pgErr.Detail,
	}, true
}

// IsIntegrityViolation reports whether err is a Postgres integrity
// constraint violation (duplicate key, foreign key, check constraint).
func IsIntegrityViolation(err error) bool {
	pgErr, ok := NewPGErr(err)
	if !ok || pgErr == nil {
		return false
	}
	return pgerrcode.IsIntegrityConstraintViolation(pgErr.Code)
}

// BatchErr collects per-item failures of a batch operation keyed by an
// item label, so one bad item never hides the others.
type BatchErr struct {
	Errors map[string]error `json:"errors"`
}

func NewBatchErr() *BatchErr {
	return &BatchErr{
		Errors: make(map[string]error),
	}
}

func (b *BatchErr) Add(key string, err error) {
	if err == nil {
		return
	}
	if _, exists := b.Errors[key]; !exists {
		b.Errors[key] = err
	}
}

func (b *BatchErr) Error() string {
	if len(b.Errors) == 0 {
		return "no errors"
	}

	msg := "Batch errors:\n"
	for key, err := range b.Errors {
		msg += fmt.Sprintf("  - [%s] %s\n", key, err.Error())
	}
	return msg
}

func (b *BatchErr) IsEmpty() bool {
	return len(b.Errors) == 0
}

func (b *BatchErr) ToError() error {
	if b.IsEmpty() {
		return nil
	}

	e := New(ECUnknown, "batch finished with errors")
	for key, err := range b.Errors {
		if pgErr, ok := NewPGErr(err); ok {
			e.WithDetails(fmt.Sprintf("%s: %s", key, pgErr.String()))
		} else {
			e.WithDetails(fmt.Sprintf("%s: %s", key, err.Error()))
		}
	}
	return e
}
