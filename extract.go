package isopack

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Subfield describes a slice of a text field that carries its own value,
// such as a date inside a private-use field. From and Until are 1-based and
// inclusive; zero means the whole field.
type Subfield struct {
	Field       int    `json:"field" yaml:"field"`
	From        int    `json:"from,omitempty" yaml:"from,omitempty"`
	Until       int    `json:"until,omitempty" yaml:"until,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	TrimPadding string `json:"trim_padding,omitempty" yaml:"trim_padding,omitempty"` // characters trimmed from both ends
	Numeric     bool   `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	Length      int    `json:"length,omitempty" yaml:"length,omitempty"`
}

// Extracted is the outcome for one named subfield.
type Extracted struct {
	Value string
	Field int
	Err   error
}

func (e Extracted) Valid() bool { return e.Err == nil }

func (s Subfield) rules() ([]ValidationRule, error) {
	var rules []ValidationRule
	if s.Numeric {
		rules = append(rules, &NumericRule{})
	}
	if s.Format != "" {
		r, err := NewFormatRule(s.Format)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if s.Length > 0 {
		rules = append(rules, &LengthRule{ExactLength: s.Length})
	}
	return rules, nil
}

// Extract pulls every named subfield out of m. Absent optional fields are
// skipped. Each result carries its own error; the returned error joins
// them, ordered by name.
func Extract(m *Message, specs map[string]Subfield) (map[string]Extracted, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]Extracted, len(specs))
	var errs []error
	for _, name := range names {
		spec := specs[name]
		res, ok := extractOne(m, spec)
		if !ok {
			continue
		}
		if res.Err != nil {
			res.Err = fmt.Errorf("%s (field %d): %w", name, spec.Field, res.Err)
			errs = append(errs, res.Err)
		}
		results[name] = res
	}
	return results, errors.Join(errs...)
}

func extractOne(m *Message, spec Subfield) (Extracted, bool) {
	res := Extracted{Field: spec.Field}
	raw, err := m.GetString(spec.Field)
	if err != nil {
		if spec.Required {
			res.Err = err
			return res, true
		}
		return res, false
	}

	value := raw
	if spec.From > 0 || spec.Until > 0 {
		from, until := spec.From, spec.Until
		if from == 0 {
			from = 1
		}
		if until == 0 {
			until = len(raw)
		}
		if from > until || until > len(raw) {
			res.Err = fmt.Errorf("%w: positions %d..%d outside value of length %d", ErrLengthMismatch, from, until, len(raw))
			return res, true
		}
		value = raw[from-1 : until]
	}
	if spec.TrimPadding != "" {
		value = strings.Trim(value, spec.TrimPadding)
	}
	res.Value = value

	rules, err := spec.rules()
	if err != nil {
		res.Err = err
		return res, true
	}
	probe := NewField(spec.Field, value)
	for _, r := range rules {
		if err := r.Validate(probe); err != nil {
			res.Err = &ValidationError{Field: spec.Field, Rule: r.Name(), Kind: r.Kind(), Message: err.Error(), Component: probe}
			return res, true
		}
	}
	return res, true
}
