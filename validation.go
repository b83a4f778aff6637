package isopack

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidationRule is a scalar constraint on a single component.
type ValidationRule interface {
	Validate(c Component) error
	Name() string
	Kind() ValidationKind
}

// ComponentValidator validates one component. It returns the component
// unchanged, a wrapped *ErrorComponent, or an error when it breaks.
type ComponentValidator interface {
	ValidateComponent(c Component) (Component, error)
}

// FieldValidator applies rules to a field in order.
type FieldValidator struct {
	rules        []ValidationRule
	breakOnError bool
}

// NewFieldValidator returns a validator running rules in order. With
// breakOnError the first violation is returned as an error.
func NewFieldValidator(breakOnError bool, rules ...ValidationRule) *FieldValidator {
	return &FieldValidator{rules: append([]ValidationRule(nil), rules...), breakOnError: breakOnError}
}

func (v *FieldValidator) ValidateComponent(c Component) (Component, error) {
	var errs []*ValidationError
	for _, rule := range v.rules {
		err := rule.Validate(c)
		if err == nil {
			continue
		}
		ve := &ValidationError{
			Field:     c.Key(),
			Rule:      rule.Name(),
			Kind:      rule.Kind(),
			Message:   err.Error(),
			Component: unwrapComponent(c),
		}
		if v.breakOnError {
			return nil, ve
		}
		errs = append(errs, ve)
	}
	if len(errs) == 0 {
		return c, nil
	}
	return annotate(c, errs...), nil
}

// MessageRule is a cross-field constraint.
type MessageRule interface {
	Name() string
	Check(m *Message) []*ValidationError
}

// MessageValidator runs field validators in increasing field order, then
// message rules in configured order.
type MessageValidator struct {
	fields       map[int]ComponentValidator
	rules        []MessageRule
	breakOnError bool
}

// NewMessageValidator copies fields and rules.
func NewMessageValidator(fields map[int]ComponentValidator, rules []MessageRule, breakOnError bool) *MessageValidator {
	v := &MessageValidator{
		fields:       make(map[int]ComponentValidator, len(fields)),
		rules:        append([]MessageRule(nil), rules...),
		breakOnError: breakOnError,
	}
	for n, fv := range fields {
		v.fields[n] = fv
	}
	return v
}

// Validate checks m. The input is never modified: when violations
// accumulate they are recorded on a clone, which is returned.
func (v *MessageValidator) Validate(m *Message) (*Message, error) {
	out := m
	keys := make([]int, 0, len(v.fields))
	for n := range v.fields {
		keys = append(keys, n)
	}
	sort.Ints(keys)

	for _, n := range keys {
		c, ok := m.fields[n]
		if !ok {
			continue
		}
		res, err := v.fields[n].ValidateComponent(c)
		if err != nil {
			return nil, err
		}
		if res == c {
			continue
		}
		if v.breakOnError {
			if errs := collectErrors(res); len(errs) > 0 {
				return nil, errs[0]
			}
		}
		if out == m {
			out = m.Clone()
		}
		out.fields[n] = res
	}

	for _, rule := range v.rules {
		errs := rule.Check(out)
		if len(errs) == 0 {
			continue
		}
		if v.breakOnError {
			return nil, errs[0]
		}
		if out == m {
			out = m.Clone()
		}
		for _, ve := range errs {
			out.addError(ve)
		}
	}
	return out, nil
}

// ValidateComponent lets a MessageValidator check a nested message field.
func (v *MessageValidator) ValidateComponent(c Component) (Component, error) {
	sub, ok := unwrapComponent(c).(*Message)
	if !ok {
		return nil, &ValidationError{Field: c.Key(), Rule: "message", Kind: KindFormat, Message: fmt.Sprintf("expected a nested message, got %T", c), Component: c}
	}
	res, err := v.Validate(sub)
	if err != nil {
		return nil, err
	}
	if res == sub {
		return c, nil
	}
	return res, nil
}

func collectErrors(c Component) []*ValidationError {
	if ec, ok := c.(*ErrorComponent); ok {
		return ec.errs
	}
	if m, ok := c.(*Message); ok {
		return m.ValidationErrors()
	}
	return nil
}

// --- Field rules ---

// textOf returns the value a rule inspects. Binary values are inspected as
// raw bytes.
func textOf(c Component) (string, error) {
	switch v := unwrapComponent(c).(type) {
	case *Field:
		return v.value, nil
	case *BinaryField:
		return string(v.value), nil
	default:
		return "", fmt.Errorf("cannot validate %T", c)
	}
}

// LengthRule bounds the logical length. Zero bounds are not checked.
type LengthRule struct {
	MinLength   int
	MaxLength   int
	ExactLength int
	AllowEmpty  bool
}

func (r *LengthRule) Name() string         { return "length" }
func (r *LengthRule) Kind() ValidationKind { return KindLength }

func (r *LengthRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	length := len(data)
	if length == 0 && r.AllowEmpty {
		return nil
	}
	if r.ExactLength > 0 && length != r.ExactLength {
		return fmt.Errorf("expected length %d, got %d", r.ExactLength, length)
	}
	if r.MinLength > 0 && length < r.MinLength {
		return fmt.Errorf("length %d below minimum %d", length, r.MinLength)
	}
	if r.MaxLength > 0 && length > r.MaxLength {
		return fmt.Errorf("length %d exceeds maximum %d", length, r.MaxLength)
	}
	return nil
}

// NumericRule requires decimal digits only.
type NumericRule struct {
	AllowEmpty         bool
	RejectLeadingZeros bool
}

func (r *NumericRule) Name() string         { return "numeric" }
func (r *NumericRule) Kind() ValidationKind { return KindCharset }

func (r *NumericRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		if r.AllowEmpty {
			return nil
		}
		return fmt.Errorf("empty numeric value")
	}
	for i := 0; i < len(data); i++ {
		if data[i] < '0' || data[i] > '9' {
			return fmt.Errorf("non-numeric character at position %d", i)
		}
	}
	if r.RejectLeadingZeros && len(data) > 1 && data[0] == '0' {
		return fmt.Errorf("leading zeros not allowed")
	}
	return nil
}

// AlphanumericRule restricts characters to [0-9A-Za-z ], any printable
// ASCII (AllowSpecialChars), or CustomCharset when set.
type AlphanumericRule struct {
	AllowEmpty        bool
	AllowSpecialChars bool
	CustomCharset     string
}

func (r *AlphanumericRule) Name() string         { return "alphanumeric" }
func (r *AlphanumericRule) Kind() ValidationKind { return KindCharset }

func (r *AlphanumericRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	if len(data) == 0 && r.AllowEmpty {
		return nil
	}
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch {
		case r.CustomCharset != "":
			if !strings.ContainsRune(r.CustomCharset, rune(b)) {
				return fmt.Errorf("invalid character at position %d", i)
			}
		case r.AllowSpecialChars:
			if b < 32 || b > 126 {
				return fmt.Errorf("non-printable character at position %d", i)
			}
		default:
			if !((b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == ' ') {
				return fmt.Errorf("special character not allowed at position %d", i)
			}
		}
	}
	return nil
}

// NotBlankRule rejects empty and all-space values.
type NotBlankRule struct{}

func (NotBlankRule) Name() string         { return "not-blank" }
func (NotBlankRule) Kind() ValidationKind { return KindBlank }

func (NotBlankRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	if strings.TrimLeft(data, " ") == "" {
		return fmt.Errorf("value is blank")
	}
	return nil
}

// NotZeroRule rejects values made only of '0' characters (or zero bytes for
// binary fields).
type NotZeroRule struct{}

func (NotZeroRule) Name() string         { return "not-zero" }
func (NotZeroRule) Kind() ValidationKind { return KindZero }

func (NotZeroRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	zero := byte('0')
	if _, ok := unwrapComponent(c).(*BinaryField); ok {
		zero = 0
	}
	for i := 0; i < len(data); i++ {
		if data[i] != zero {
			return nil
		}
	}
	return fmt.Errorf("value is zero")
}

// RegexRule matches the value against a pattern.
type RegexRule struct {
	Pattern     string
	AllowEmpty  bool
	Description string
	regex       *regexp.Regexp
}

// NewRegexRule compiles pattern once.
func NewRegexRule(pattern, description string, allowEmpty bool) (*RegexRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: regex %q: %v", ErrConfiguration, pattern, err)
	}
	return &RegexRule{Pattern: pattern, AllowEmpty: allowEmpty, Description: description, regex: re}, nil
}

func (r *RegexRule) Name() string         { return "regex" }
func (r *RegexRule) Kind() ValidationKind { return KindPattern }

func (r *RegexRule) Validate(c Component) error {
	if r.regex == nil {
		return fmt.Errorf("regex rule %q was not compiled", r.Pattern)
	}
	data, err := textOf(c)
	if err != nil {
		return err
	}
	if len(data) == 0 && r.AllowEmpty {
		return nil
	}
	if !r.regex.MatchString(data) {
		if r.Description != "" {
			return fmt.Errorf("%s", r.Description)
		}
		return fmt.Errorf("does not match pattern %s", r.Pattern)
	}
	return nil
}

// RangeRule parses the value as an integer and bounds it.
type RangeRule struct {
	Min        int64
	Max        int64
	AllowEmpty bool
}

func (r *RangeRule) Name() string         { return "range" }
func (r *RangeRule) Kind() ValidationKind { return KindRange }

func (r *RangeRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	if len(data) == 0 && r.AllowEmpty {
		return nil
	}
	val, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse as integer: %v", err)
	}
	if val < r.Min {
		return fmt.Errorf("value %d below minimum %d", val, r.Min)
	}
	if val > r.Max {
		return fmt.Errorf("value %d exceeds maximum %d", val, r.Max)
	}
	return nil
}

// Date and time layouts understood by FormatRule.
const (
	FormatYYYYMMDD   = "YYYYMMDD"
	FormatYYMMDD     = "YYMMDD"
	FormatYYMM       = "YYMM"
	FormatMMDD       = "MMDD"
	FormatHHMMSS     = "HHMMSS"
	FormatMMDDhhmmss = "MMDDhhmmss"
)

var formatLayouts = map[string]string{
	FormatYYYYMMDD:   "20060102",
	FormatYYMMDD:     "060102",
	FormatYYMM:       "0601",
	FormatMMDD:       "0102",
	FormatHHMMSS:     "150405",
	FormatMMDDhhmmss: "0102150405",
}

// FormatRule checks that the value is a valid date or time in Format.
type FormatRule struct {
	Format string
}

// NewFormatRule rejects unknown formats.
func NewFormatRule(format string) (*FormatRule, error) {
	if _, ok := formatLayouts[format]; !ok {
		return nil, fmt.Errorf("%w: unknown date format %q", ErrConfiguration, format)
	}
	return &FormatRule{Format: format}, nil
}

func (r *FormatRule) Name() string         { return "format" }
func (r *FormatRule) Kind() ValidationKind { return KindFormat }

func (r *FormatRule) Validate(c Component) error {
	data, err := textOf(c)
	if err != nil {
		return err
	}
	layout, ok := formatLayouts[r.Format]
	if !ok {
		return fmt.Errorf("unknown format %s", r.Format)
	}
	if len(data) != len(layout) || !isDigits(data) {
		return fmt.Errorf("invalid %s value %q", r.Format, data)
	}
	if _, err := time.Parse(layout, data); err != nil {
		return fmt.Errorf("invalid %s value %q", r.Format, data)
	}
	return nil
}

// CustomRule runs an arbitrary function.
type CustomRule struct {
	RuleName     string
	ValidateFunc func(Component) error
}

func (r *CustomRule) Name() string         { return r.RuleName }
func (r *CustomRule) Kind() ValidationKind { return KindCustom }

func (r *CustomRule) Validate(c Component) error {
	return r.ValidateFunc(c)
}

// --- Message rules ---

// MandatoryRule requires every listed field to be present.
type MandatoryRule struct {
	Fields []int
}

func (r *MandatoryRule) Name() string { return "mandatory" }

func (r *MandatoryRule) Check(m *Message) []*ValidationError {
	var errs []*ValidationError
	for _, n := range r.Fields {
		if !m.Has(n) {
			errs = append(errs, &ValidationError{
				Field:   n,
				Rule:    r.Name(),
				Kind:    KindMandatory,
				Message: "mandatory field missing",
			})
		}
	}
	return errs
}

// CustomMessageRule runs an arbitrary cross-field check. A non-nil error is
// reported against Field.
type CustomMessageRule struct {
	RuleName  string
	Field     int
	CheckFunc func(*Message) error
}

func (r *CustomMessageRule) Name() string { return r.RuleName }

func (r *CustomMessageRule) Check(m *Message) []*ValidationError {
	err := r.CheckFunc(m)
	if err == nil {
		return nil
	}
	return []*ValidationError{{
		Field:     r.Field,
		Rule:      r.RuleName,
		Kind:      KindCustom,
		Message:   err.Error(),
		Component: m.Get(r.Field),
	}}
}
