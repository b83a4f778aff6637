package isopack

import (
	"errors"
	"fmt"
)

var (
	ErrLengthExceeded = errors.New("length exceeded")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrEncoding       = errors.New("encoding error")
	ErrConfiguration  = errors.New("configuration error")
	ErrAmbiguousTag   = errors.New("ambiguous tag")
	ErrUnknownTag     = errors.New("unknown tag")
	ErrTruncatedInput = errors.New("truncated input")
	ErrValidation     = errors.New("validation failed")
	ErrFieldNotFound  = errors.New("field not found")
	ErrInvalidMTI     = errors.New("invalid MTI")
)

// FieldError reports a failure packing or unpacking a single field. Packager
// holds the description of the field packager that was in use.
type FieldError struct {
	Field    int
	Packager string
	Err      error
}

func (fe *FieldError) Error() string {
	if fe.Packager == "" {
		return fmt.Sprintf("field %d: %v", fe.Field, fe.Err)
	}
	return fmt.Sprintf("field %d (%s): %v", fe.Field, fe.Packager, fe.Err)
}

func (fe *FieldError) Unwrap() error {
	return fe.Err
}

// TagError reports a tag that could not be mapped or parsed.
type TagError struct {
	Tag string
	Err error
}

func (te *TagError) Error() string {
	return fmt.Sprintf("tag %q: %v", te.Tag, te.Err)
}

func (te *TagError) Unwrap() error {
	return te.Err
}

// ValidationKind classifies the constraint a ValidationError reports.
type ValidationKind int

const (
	KindLength ValidationKind = iota
	KindBlank
	KindZero
	KindCharset
	KindPattern
	KindRange
	KindFormat
	KindMandatory
	KindCustom
)

var validationKindNames = map[ValidationKind]string{
	KindLength:    "length",
	KindBlank:     "blank",
	KindZero:      "zero",
	KindCharset:   "charset",
	KindPattern:   "pattern",
	KindRange:     "range",
	KindFormat:    "format",
	KindMandatory: "mandatory",
	KindCustom:    "custom",
}

func (k ValidationKind) String() string {
	if s, ok := validationKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ValidationError is produced by the validation layer only. Component is the
// offending component as it was when the rule ran.
type ValidationError struct {
	Field     int
	Rule      string
	Kind      ValidationKind
	Message   string
	Component Component
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %d (%s): %s", ve.Field, ve.Rule, ve.Message)
}

func (ve *ValidationError) Unwrap() error {
	return ErrValidation
}

// fieldErr wraps err with the field number and packager description unless it
// already carries them.
func fieldErr(field int, p FieldPackager, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) && fe.Field == field {
		return err
	}
	desc := ""
	if p != nil {
		desc = p.Description()
	}
	return &FieldError{Field: field, Packager: desc, Err: err}
}

func truncated(offset, need, have int) error {
	return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedInput, need, offset, have)
}
