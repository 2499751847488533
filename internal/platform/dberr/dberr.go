// Package dberr classifies PostgreSQL constraint failures into field level
// errors using the constraint name reported by the server.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes for integrity constraint violations.
const (
	CodeNotNullViolation    = "23502"
	CodeForeignKeyViolation = "23503"
	CodeUniqueViolation     = "23505"
	CodeCheckViolation      = "23514"
)

// Kind groups constraint violations.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicate
	KindReference
	KindCheck
	KindRequired
)

func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindReference:
		return "reference"
	case KindCheck:
		return "check"
	case KindRequired:
		return "required"
	default:
		return "unknown"
	}
}

var (
	// ErrDuplicate matches any unique violation.
	ErrDuplicate = errors.New("dberr: duplicate value")
	// ErrReference matches foreign key violations.
	ErrReference = errors.New("dberr: referenced row missing")
	// ErrCheck matches check constraint violations.
	ErrCheck = errors.New("dberr: check constraint violated")
	// ErrRequired matches not-null violations.
	ErrRequired = errors.New("dberr: required value missing")
)

// Field describes the form field guarded by a constraint.
type Field struct {
	Name    string
	Message string
}

// FieldError is returned by Classify for known integrity violations.
type FieldError struct {
	Kind       Kind
	Constraint string
	Field      string
	Message    string
	Err        error
}

func (e *FieldError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("dberr: %s violation on %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("dberr: %s violation on %s (%s)", e.Kind, e.Field, e.Constraint)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is lets callers match on the kind sentinels.
func (e *FieldError) Is(target error) bool {
	switch target {
	case ErrDuplicate:
		return e.Kind == KindDuplicate
	case ErrReference:
		return e.Kind == KindReference
	case ErrCheck:
		return e.Kind == KindCheck
	case ErrRequired:
		return e.Kind == KindRequired
	}
	return false
}

// UserMessage returns the text to display next to the offending field.
func (e *FieldError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindDuplicate:
		return "El valor ya está registrado."
	case KindReference:
		return "El registro relacionado no existe."
	case KindRequired:
		return "Este campo es obligatorio."
	default:
		return "El valor ingresado no es válido."
	}
}

// Registry maps constraint names to fields.
type Registry map[string]Field

// Merge returns a registry holding the entries of r and other.
func (r Registry) Merge(other Registry) Registry {
	out := make(Registry, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Classify converts integrity violations into *FieldError. Other errors are
// returned unchanged.
func (r Registry) Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	kind := kindFor(pgErr.Code)
	if kind == KindUnknown {
		return err
	}
	fe := &FieldError{Kind: kind, Constraint: pgErr.ConstraintName, Err: err}
	if field, ok := r[pgErr.ConstraintName]; ok {
		fe.Field = field.Name
		fe.Message = field.Message
		return fe
	}
	// Not-null violations carry the column rather than a constraint.
	if kind == KindRequired && pgErr.ColumnName != "" {
		fe.Field = pgErr.ColumnName
		return fe
	}
	fe.Field = "general"
	return fe
}

// AsFieldError extracts a *FieldError from err.
func AsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func kindFor(code string) Kind {
	switch code {
	case CodeUniqueViolation:
		return KindDuplicate
	case CodeForeignKeyViolation:
		return KindReference
	case CodeCheckViolation:
		return KindCheck
	case CodeNotNullViolation:
		return KindRequired
	default:
		return KindUnknown
	}
}
