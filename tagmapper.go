package isopack

import (
	"fmt"
	"strconv"
)

// TagMapper maps field numbers to fixed-width tags and back. Implementations
// are immutable.
type TagMapper interface {
	TagForField(n int) (string, error)
	FieldNumberForTag(tag string) (int, error)
}

const base36Digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DecimalTagMapper maps field numbers 0..10^w-1 to zero-padded decimal tags
// and the range starting at 10^w to base-36 alphanumeric tags of the same
// width. An alphanumeric-range number whose tag would be all digits is
// ambiguous and rejected.
type DecimalTagMapper struct {
	width int
	span  int
	alnum int
}

// NewDecimalTagMapper returns a mapper for tags of width characters.
func NewDecimalTagMapper(width int) (*DecimalTagMapper, error) {
	if width < 1 || width > 6 {
		return nil, fmt.Errorf("%w: tag width %d, want 1..6", ErrConfiguration, width)
	}
	alnum := 1
	for i := 0; i < width; i++ {
		alnum *= 36
	}
	return &DecimalTagMapper{width: width, span: pow10(width), alnum: alnum}, nil
}

func (m *DecimalTagMapper) Width() int { return m.width }

func (m *DecimalTagMapper) TagForField(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: negative field number %d", ErrUnknownTag, n)
	}
	if n < m.span {
		s, _ := decimalLength(n, m.width)
		return s, nil
	}
	v := n - m.span
	if v >= m.alnum {
		return "", fmt.Errorf("%w: field %d beyond the %d-character tag space", ErrUnknownTag, n, m.width)
	}
	tag := make([]byte, m.width)
	for i := m.width - 1; i >= 0; i-- {
		tag[i] = base36Digits[v%36]
		v /= 36
	}
	if isDigits(string(tag)) {
		return "", &TagError{Tag: string(tag), Err: fmt.Errorf("%w: field %d encodes to a decimal-looking tag", ErrAmbiguousTag, n)}
	}
	return string(tag), nil
}

func (m *DecimalTagMapper) FieldNumberForTag(tag string) (int, error) {
	if len(tag) != m.width {
		return 0, &TagError{Tag: tag, Err: fmt.Errorf("%w: width %d, want %d", ErrUnknownTag, len(tag), m.width)}
	}
	if isDigits(tag) {
		n, err := strconv.Atoi(tag)
		if err != nil {
			return 0, &TagError{Tag: tag, Err: fmt.Errorf("%w: %v", ErrUnknownTag, err)}
		}
		return n, nil
	}
	v := 0
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'A' && c <= 'Z':
			d = int(c-'A') + 10
		default:
			return 0, &TagError{Tag: tag, Err: fmt.Errorf("%w: invalid tag character %q", ErrUnknownTag, c)}
		}
		v = v*36 + d
	}
	return m.span + v, nil
}

// MapTagMapper is an explicit one-to-one table of field numbers and tags.
type MapTagMapper struct {
	tags   map[int]string
	fields map[string]int
}

// NewMapTagMapper copies tags. Duplicate tags are a configuration error.
func NewMapTagMapper(tags map[int]string) (*MapTagMapper, error) {
	m := &MapTagMapper{
		tags:   make(map[int]string, len(tags)),
		fields: make(map[string]int, len(tags)),
	}
	for n, tag := range tags {
		if tag == "" {
			return nil, fmt.Errorf("%w: empty tag for field %d", ErrConfiguration, n)
		}
		if prev, dup := m.fields[tag]; dup {
			return nil, fmt.Errorf("%w: tag %q mapped to fields %d and %d", ErrConfiguration, tag, prev, n)
		}
		m.tags[n] = tag
		m.fields[tag] = n
	}
	return m, nil
}

func (m *MapTagMapper) TagForField(n int) (string, error) {
	tag, ok := m.tags[n]
	if !ok {
		return "", fmt.Errorf("%w: no tag for field %d", ErrUnknownTag, n)
	}
	return tag, nil
}

func (m *MapTagMapper) FieldNumberForTag(tag string) (int, error) {
	n, ok := m.fields[tag]
	if !ok {
		return 0, &TagError{Tag: tag, Err: ErrUnknownTag}
	}
	return n, nil
}
