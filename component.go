package isopack

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// BitmapKey is the key of the presence bitmap pseudo-field inside a Message.
const BitmapKey = -1

// Component is anything that can live at a field number inside a Message:
// a text Field, a BinaryField, the Bitmap, a nested Message, or an
// ErrorComponent produced by validation.
type Component interface {
	Key() int
	Value() any
	SetValue(v any) error
	Bytes() ([]byte, error)
	Dump(w io.Writer, indent string)
}

// Field is a leaf component holding a text value.
type Field struct {
	key   int
	value string
}

// NewField returns a text field for the given field number.
func NewField(key int, value string) *Field {
	return &Field{key: key, value: value}
}

func (f *Field) Key() int { return f.key }
func (f *Field) Value() any { return f.value }
func (f *Field) String() string { return f.value }
func (f *Field) Len() int { return len(f.value) }

// SetValue accepts string, []byte, int and int64 values.
func (f *Field) SetValue(v any) error {
	switch val := v.(type) {
	case string:
		f.value = val
	case []byte:
		f.value = string(val)
	case int:
		f.value = strconv.Itoa(val)
	case int64:
		f.value = strconv.FormatInt(val, 10)
	default:
		return fmt.Errorf("%w: field %d cannot hold %T", ErrEncoding, f.key, v)
	}
	return nil
}

func (f *Field) Bytes() ([]byte, error) {
	return []byte(f.value), nil
}

// Int parses the field value as a decimal integer.
func (f *Field) Int() (int, error) {
	return strconv.Atoi(f.value)
}

// Int64 parses the field value as a decimal int64.
func (f *Field) Int64() (int64, error) {
	return strconv.ParseInt(f.value, 10, 64)
}

func (f *Field) Dump(w io.Writer, indent string) {
	fmt.Fprintf(w, "%s<field id=\"%d\" value=\"%s\"/>\n", indent, f.key, escapeDump(f.value))
}

// BinaryField is a leaf component holding raw bytes.
type BinaryField struct {
	key   int
	value []byte
}

// NewBinaryField returns a binary field holding a copy of value.
func NewBinaryField(key int, value []byte) *BinaryField {
	return &BinaryField{key: key, value: cloneBytes(value)}
}

func (f *BinaryField) Key() int { return f.key }
func (f *BinaryField) Value() any { return f.value }
func (f *BinaryField) Len() int { return len(f.value) }

// SetValue accepts []byte (copied) and string values.
func (f *BinaryField) SetValue(v any) error {
	switch val := v.(type) {
	case []byte:
		f.value = cloneBytes(val)
	case string:
		f.value = []byte(val)
	default:
		return fmt.Errorf("%w: binary field %d cannot hold %T", ErrEncoding, f.key, v)
	}
	return nil
}

func (f *BinaryField) Bytes() ([]byte, error) {
	return f.value, nil
}

func (f *BinaryField) Dump(w io.Writer, indent string) {
	fmt.Fprintf(w, "%s<field id=\"%d\" value=\"%s\" type=\"binary\"/>\n", indent, f.key, strings.ToUpper(hex.EncodeToString(f.value)))
}

// Bitmap is the presence set of a message. Bit n is set when field n is
// present. Control bits, if any, are added by the bitmap packager and are
// not interpreted here.
type Bitmap struct {
	bits *bitset.BitSet
}

// NewBitmap returns an empty bitmap sized for 128 fields.
func NewBitmap() *Bitmap {
	return &Bitmap{bits: bitset.New(129)}
}

// BitmapOf returns a bitmap with the given field numbers set.
func BitmapOf(fields ...int) *Bitmap {
	bm := NewBitmap()
	for _, n := range fields {
		bm.Set(n)
	}
	return bm
}

func (b *Bitmap) Key() int { return BitmapKey }
func (b *Bitmap) Value() any { return b.bits }

// SetValue accepts a *bitset.BitSet (cloned) or a []int of field numbers.
func (b *Bitmap) SetValue(v any) error {
	switch val := v.(type) {
	case *bitset.BitSet:
		b.bits = val.Clone()
	case []int:
		b.bits = bitset.New(129)
		for _, n := range val {
			b.Set(n)
		}
	default:
		return fmt.Errorf("%w: bitmap cannot hold %T", ErrEncoding, v)
	}
	return nil
}

func (b *Bitmap) Set(n int) {
	if n >= 0 {
		b.bits.Set(uint(n))
	}
}

func (b *Bitmap) Clear(n int) {
	if n >= 0 {
		b.bits.Clear(uint(n))
	}
}

func (b *Bitmap) Test(n int) bool {
	return n >= 0 && b.bits.Test(uint(n))
}

// Fields returns every set bit number in increasing order.
func (b *Bitmap) Fields() []int {
	out := make([]int, 0, b.bits.Count())
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Highest returns the highest set bit, or 0 when the bitmap is empty.
func (b *Bitmap) Highest() int {
	high := 0
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		high = int(i)
	}
	return high
}

func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{bits: b.bits.Clone()}
}

// Equal reports whether both bitmaps have exactly the same bits set.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if o == nil {
		return false
	}
	bf, of := b.Fields(), o.Fields()
	if len(bf) != len(of) {
		return false
	}
	for i := range bf {
		if bf[i] != of[i] {
			return false
		}
	}
	return true
}

// Bytes renders the bitmap as a plain 64-bit aligned bit vector, field 1 in the
// MSB of the first byte.
func (b *Bitmap) Bytes() ([]byte, error) {
	n := (b.Highest() + 63) / 64 * 8
	if n == 0 {
		n = 8
	}
	out := make([]byte, n)
	for _, f := range b.Fields() {
		if f == 0 {
			continue
		}
		out[(f-1)/8] |= 0x80 >> uint((f-1)%8)
	}
	return out, nil
}

func (b *Bitmap) Dump(w io.Writer, indent string) {
	parts := make([]string, 0, b.bits.Count())
	for _, f := range b.Fields() {
		parts = append(parts, strconv.Itoa(f))
	}
	fmt.Fprintf(w, "%s<bitmap>{%s}</bitmap>\n", indent, strings.Join(parts, ", "))
}

// ErrorComponent wraps a component that failed validation. It behaves like the
// wrapped component for packing purposes and carries the violations found.
type ErrorComponent struct {
	Component
	errs []*ValidationError
}

// Unwrap returns the component that failed validation.
func (e *ErrorComponent) Unwrap() Component {
	return e.Component
}

// Errors returns the validation errors attached to the component.
func (e *ErrorComponent) Errors() []*ValidationError {
	return e.errs
}

func (e *ErrorComponent) Dump(w io.Writer, indent string) {
	e.Component.Dump(w, indent)
	for _, ve := range e.errs {
		fmt.Fprintf(w, "%s<!-- %s -->\n", indent, escapeDump(ve.Error()))
	}
}

// annotate returns c wrapped with errs. An existing wrapper is copied, not
// modified.
func annotate(c Component, errs ...*ValidationError) *ErrorComponent {
	if ec, ok := c.(*ErrorComponent); ok {
		all := make([]*ValidationError, 0, len(ec.errs)+len(errs))
		all = append(all, ec.errs...)
		return &ErrorComponent{Component: ec.Component, errs: append(all, errs...)}
	}
	return &ErrorComponent{Component: c, errs: errs}
}

// unwrapComponent strips validation wrappers.
func unwrapComponent(c Component) Component {
	for {
		ec, ok := c.(*ErrorComponent)
		if !ok {
			return c
		}
		c = ec.Component
	}
}

// componentString extracts the text value of a leaf component.
func componentString(c Component) (string, error) {
	switch v := unwrapComponent(c).(type) {
	case *Field:
		return v.value, nil
	case *BinaryField:
		return string(v.value), nil
	case nil:
		return "", fmt.Errorf("%w: nil component", ErrEncoding)
	default:
		return "", fmt.Errorf("%w: %T has no text value", ErrEncoding, v)
	}
}

// componentBytes extracts the raw value of a leaf component.
func componentBytes(c Component) ([]byte, error) {
	switch v := unwrapComponent(c).(type) {
	case *BinaryField:
		return v.value, nil
	case *Field:
		return []byte(v.value), nil
	case nil:
		return nil, fmt.Errorf("%w: nil component", ErrEncoding)
	default:
		return nil, fmt.Errorf("%w: %T has no binary value", ErrEncoding, v)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var dumpEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;")

func escapeDump(s string) string {
	return dumpEscaper.Replace(s)
}
