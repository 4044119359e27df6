package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error names into the classes callers branch on.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindIntegrity        Kind = "integrity"
	KindDeleteConstraint Kind = "delete_constraint"
)

// Stable error names. The numeric codes below never change once shipped.
const (
	ValidationError                = "ValidationError"
	MissingRequiredField           = "MissingRequiredField"
	InvalidRangeSize               = "InvalidRangeSize"
	InvalidRangeValue              = "InvalidRangeValue"
	InvalidAspectStatusRange       = "InvalidAspectStatusRange"
	SchemaValidationError          = "SchemaValidationError"
	ParentSubjectNotFound          = "ParentSubjectNotFound"
	SubjectNotFound                = "SubjectNotFound"
	AspectNotFound                 = "AspectNotFound"
	IllegalSelfParenting           = "IllegalSelfParenting"
	ParentSubjectNotPublished      = "ParentSubjectNotPublished"
	SubjectHasPublishedDescendants = "SubjectHasPublishedDescendants"
	DuplicateResourceName          = "DuplicateResourceName"
	ParentLinkageMismatch          = "ParentLinkageMismatch"
	SubjectDeleteConstraintError   = "SubjectDeleteConstraintError"
)

type definition struct {
	code   int
	kind   Kind
	status int
}

var definitions = map[string]definition{
	ValidationError:                {1000, KindValidation, http.StatusBadRequest},
	MissingRequiredField:           {1001, KindValidation, http.StatusBadRequest},
	InvalidRangeSize:               {1002, KindValidation, http.StatusBadRequest},
	InvalidRangeValue:              {1003, KindValidation, http.StatusBadRequest},
	InvalidAspectStatusRange:       {1004, KindValidation, http.StatusBadRequest},
	SchemaValidationError:          {1005, KindValidation, http.StatusBadRequest},
	ParentSubjectNotFound:          {1100, KindNotFound, http.StatusNotFound},
	SubjectNotFound:                {1101, KindNotFound, http.StatusNotFound},
	AspectNotFound:                 {1102, KindNotFound, http.StatusNotFound},
	IllegalSelfParenting:           {1200, KindIntegrity, http.StatusBadRequest},
	ParentSubjectNotPublished:      {1201, KindIntegrity, http.StatusBadRequest},
	SubjectHasPublishedDescendants: {1202, KindIntegrity, http.StatusBadRequest},
	DuplicateResourceName:          {1203, KindIntegrity, http.StatusConflict},
	ParentLinkageMismatch:          {1204, KindIntegrity, http.StatusBadRequest},
	SubjectDeleteConstraintError:   {1300, KindDeleteConstraint, http.StatusConflict},
}

type Error struct {
	Status int
	Code   int
	Name   string
	Kind   Kind
	Err    error
	// Entity carries the offending record for caller diagnostics.
	Entity any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Name != "" {
		return e.Name
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error for a registered name. Unknown names fall back to
// the generic validation class.
func New(name string, err error) *Error {
	def, ok := definitions[name]
	if !ok {
		def = definitions[ValidationError]
	}
	return &Error{Status: def.status, Code: def.code, Name: name, Kind: def.kind, Err: err}
}

// Newf is New with a formatted message.
func Newf(name, format string, args ...any) *Error {
	return New(name, fmt.Errorf(format, args...))
}

// WithEntity attaches diagnostics and returns the same error.
func (e *Error) WithEntity(entity any) *Error {
	e.Entity = entity
	return e
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func Is(err error, name string) bool {
	ae, ok := As(err)
	return ok && ae.Name == name
}

func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// CodeOf returns the numeric code for a registered name, or 0.
func CodeOf(name string) int {
	return definitions[name].code
}
