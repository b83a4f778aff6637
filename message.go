package isopack

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Direction records whether a message was received or is being sent. The
// codec never looks at it; transports and loggers do.
type Direction int

const (
	DirectionUnset Direction = iota
	DirectionIncoming
	DirectionOutgoing
)

func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "incoming"
	case DirectionOutgoing:
		return "outgoing"
	default:
		return "unset"
	}
}

// Message is the composite component: a sparse set of components keyed by
// field number. Field 0 conventionally holds the MTI and BitmapKey holds the
// derived presence bitmap.
//
// A Message is owned by one transaction at a time and is not safe for
// concurrent mutation.
type Message struct {
	key       int
	fields    map[int]Component
	maxField  int
	dirty     bool
	header    []byte
	direction Direction
	unmapped  map[string][]byte
	keptAt    map[string]keptPos
	errs      []*ValidationError
}

// keptPos places an unmapped chunk among the mapped fields: it follows
// field after, and seq orders chunks that share an anchor.
type keptPos struct {
	after int
	seq   int
}

// NewMessage returns an empty top-level message.
func NewMessage(opts ...MessageOption) *Message {
	m := &Message{
		fields: make(map[int]Component),
		dirty:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewSubMessage returns an empty message meant to be set as field key of an
// outer message.
func NewSubMessage(key int, opts ...MessageOption) *Message {
	m := NewMessage(opts...)
	m.key = key
	return m
}

func (m *Message) Key() int { return m.key }

// SetKey sets the field number the message occupies inside its parent.
func (m *Message) SetKey(key int) { m.key = key }

func (m *Message) Value() any { return m }

// SetValue replaces the content of m with a deep copy of another message.
func (m *Message) SetValue(v any) error {
	src, ok := v.(*Message)
	if !ok {
		return fmt.Errorf("%w: message %d cannot hold %T", ErrEncoding, m.key, v)
	}
	c := src.Clone()
	m.fields = c.fields
	m.maxField = c.maxField
	m.dirty = true
	m.header = c.header
	m.unmapped = c.unmapped
	m.keptAt = c.keptAt
	return nil
}

// Bytes is not defined for a message without a packager.
func (m *Message) Bytes() ([]byte, error) {
	return nil, fmt.Errorf("%w: message %d needs a packager to produce bytes", ErrConfiguration, m.key)
}

// Set stores c at its own key, replacing any previous component. The bitmap
// pseudo-field cannot be set directly.
func (m *Message) Set(c Component) error {
	if c == nil {
		return fmt.Errorf("%w: nil component", ErrEncoding)
	}
	key := c.Key()
	if key == BitmapKey {
		return fmt.Errorf("%w: the bitmap is derived from the fields present", ErrConfiguration)
	}
	if key < 0 {
		return fmt.Errorf("%w: invalid field number %d", ErrConfiguration, key)
	}
	if sub, ok := unwrapComponent(c).(*Message); ok && sub == m {
		return fmt.Errorf("%w: message cannot contain itself", ErrConfiguration)
	}
	m.fields[key] = c
	if key > m.maxField {
		m.maxField = key
	}
	m.dirty = true
	return nil
}

// SetField stores a text field.
func (m *Message) SetField(n int, value string) error {
	return m.Set(NewField(n, value))
}

// SetBinary stores a binary field holding a copy of value.
func (m *Message) SetBinary(n int, value []byte) error {
	return m.Set(NewBinaryField(n, value))
}

// SetInt stores value as decimal text, zero-padded to width digits.
func (m *Message) SetInt(n int, value int64, width int) error {
	if value < 0 {
		return fmt.Errorf("%w: negative value %d for field %d", ErrEncoding, value, n)
	}
	s := strconv.FormatInt(value, 10)
	if width > len(s) {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return m.SetField(n, s)
}

// Unset removes the given fields. Unknown field numbers are ignored.
func (m *Message) Unset(fields ...int) {
	changed := false
	for _, n := range fields {
		if n == BitmapKey {
			continue
		}
		if _, ok := m.fields[n]; ok {
			delete(m.fields, n)
			changed = true
		}
	}
	if !changed {
		return
	}
	m.dirty = true
	m.maxField = 0
	for k := range m.fields {
		if k > m.maxField {
			m.maxField = k
		}
	}
}

// Get returns the component at n, or nil.
func (m *Message) Get(n int) Component {
	if n == BitmapKey {
		return m.Bitmap()
	}
	return m.fields[n]
}

// Has reports whether field n is present.
func (m *Message) Has(n int) bool {
	_, ok := m.fields[n]
	return ok && n != BitmapKey
}

// HasAny reports whether at least one of fields is present.
func (m *Message) HasAny(fields ...int) bool {
	for _, n := range fields {
		if m.Has(n) {
			return true
		}
	}
	return false
}

// GetString returns the text value of field n.
func (m *Message) GetString(n int) (string, error) {
	c, ok := m.fields[n]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrFieldNotFound, n)
	}
	return componentString(c)
}

// GetBytes returns the raw value of field n.
func (m *Message) GetBytes(n int) ([]byte, error) {
	c, ok := m.fields[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFieldNotFound, n)
	}
	return componentBytes(c)
}

// GetMessage returns the nested message at field n.
func (m *Message) GetMessage(n int) (*Message, error) {
	c, ok := m.fields[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFieldNotFound, n)
	}
	sub, ok := unwrapComponent(c).(*Message)
	if !ok {
		return nil, fmt.Errorf("%w: field %d is %T, not a message", ErrEncoding, n, c)
	}
	return sub, nil
}

// MaxField returns the highest field number present.
func (m *Message) MaxField() int {
	return m.maxField
}

// Fields returns the present field numbers in increasing order, excluding the
// bitmap.
func (m *Message) Fields() []int {
	keys := make([]int, 0, len(m.fields))
	for k := range m.fields {
		if k >= 0 {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	return keys
}

// Children returns a shallow copy of the field map.
func (m *Message) Children() map[int]Component {
	out := make(map[int]Component, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// MTI returns field 0.
func (m *Message) MTI() (string, error) {
	return m.GetString(0)
}

// SetMTI sets field 0. The MTI is four characters.
func (m *Message) SetMTI(mti string) error {
	if len(mti) != 4 {
		return fmt.Errorf("%w: %q", ErrInvalidMTI, mti)
	}
	return m.SetField(0, mti)
}

// Header returns the raw header bytes, if any.
func (m *Message) Header() []byte {
	return m.header
}

// SetHeader stores a copy of h as the message header.
func (m *Message) SetHeader(h []byte) {
	m.header = cloneBytes(h)
}

func (m *Message) Direction() Direction { return m.direction }

func (m *Message) SetDirection(d Direction) { m.direction = d }

func (m *Message) IsIncoming() bool { return m.direction == DirectionIncoming }

func (m *Message) IsOutgoing() bool { return m.direction == DirectionOutgoing }

// Bitmap returns the presence bitmap, recomputing it when fields changed
// since the last call.
func (m *Message) Bitmap() *Bitmap {
	if m.dirty {
		m.RecalcBitmap()
	}
	bm, _ := m.fields[BitmapKey].(*Bitmap)
	return bm
}

// RecalcBitmap rebuilds the bitmap pseudo-field from the present fields
// (field numbers above zero).
func (m *Message) RecalcBitmap() {
	m.attachBitmap(m.presence())
}

// IsDirty reports whether the bitmap needs recomputing.
func (m *Message) IsDirty() bool {
	return m.dirty
}

func (m *Message) presence() *Bitmap {
	bm := NewBitmap()
	for k := range m.fields {
		if k > 0 {
			bm.Set(k)
		}
	}
	return bm
}

func (m *Message) attachBitmap(bm *Bitmap) {
	m.fields[BitmapKey] = bm
	m.dirty = false
}

// Unmapped returns TLV chunks whose tags had no field mapping, keyed by tag.
func (m *Message) Unmapped() map[string][]byte {
	return m.unmapped
}

// SetUnmapped stores a raw TLV chunk under its tag. It is packed after the
// mapped fields.
func (m *Message) SetUnmapped(tag string, value []byte) {
	m.setUnmappedAfter(tag, value, math.MaxInt)
}

// setUnmappedAfter stores a chunk that was read right after field after
// (-1 when it preceded every mapped field).
func (m *Message) setUnmappedAfter(tag string, value []byte, after int) {
	if m.unmapped == nil {
		m.unmapped = make(map[string][]byte)
	}
	if m.keptAt == nil {
		m.keptAt = make(map[string]keptPos)
	}
	m.unmapped[tag] = cloneBytes(value)
	m.keptAt[tag] = keptPos{after: after, seq: len(m.keptAt)}
}

func (m *Message) keptPosition(tag string) keptPos {
	if pos, ok := m.keptAt[tag]; ok {
		return pos
	}
	return keptPos{after: math.MaxInt, seq: math.MaxInt}
}

// unmappedTags returns the kept tags in the order they should be packed.
func (m *Message) unmappedTags() []string {
	tags := make([]string, 0, len(m.unmapped))
	for tag := range m.unmapped {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		pi, pj := m.keptPosition(tags[i]), m.keptPosition(tags[j])
		if pi.after != pj.after {
			return pi.after < pj.after
		}
		if pi.seq != pj.seq {
			return pi.seq < pj.seq
		}
		return tags[i] < tags[j]
	})
	return tags
}

// ValidationErrors collects every validation error recorded on the message,
// its fields and nested messages, in field order.
func (m *Message) ValidationErrors() []*ValidationError {
	out := append([]*ValidationError(nil), m.errs...)
	for _, k := range m.Fields() {
		c := m.fields[k]
		if ec, ok := c.(*ErrorComponent); ok {
			out = append(out, ec.errs...)
		}
		if sub, ok := unwrapComponent(c).(*Message); ok {
			out = append(out, sub.ValidationErrors()...)
		}
	}
	return out
}

func (m *Message) addError(ve *ValidationError) {
	m.errs = append(m.errs, ve)
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := &Message{
		key:       m.key,
		fields:    make(map[int]Component, len(m.fields)),
		maxField:  m.maxField,
		dirty:     true,
		header:    cloneBytes(m.header),
		direction: m.direction,
		errs:      append([]*ValidationError(nil), m.errs...),
	}
	for k, v := range m.fields {
		if k == BitmapKey {
			continue
		}
		c.fields[k] = cloneComponent(v)
	}
	if m.unmapped != nil {
		c.unmapped = make(map[string][]byte, len(m.unmapped))
		for tag, v := range m.unmapped {
			c.unmapped[tag] = cloneBytes(v)
		}
		c.keptAt = make(map[string]keptPos, len(m.keptAt))
		for tag, pos := range m.keptAt {
			c.keptAt[tag] = pos
		}
	}
	return c
}

func cloneComponent(c Component) Component {
	switch v := c.(type) {
	case *Field:
		return NewField(v.key, v.value)
	case *BinaryField:
		return NewBinaryField(v.key, v.value)
	case *Bitmap:
		return v.Clone()
	case *Message:
		return v.Clone()
	case *ErrorComponent:
		return &ErrorComponent{Component: cloneComponent(v.Component), errs: append([]*ValidationError(nil), v.errs...)}
	default:
		return c
	}
}

// CreateResponse clones the message, turns the request MTI into its response
// (third digit 0 -> 1, 2 -> 3, ...) and sets the response code in field 39.
func (m *Message) CreateResponse(responseCode string) (*Message, error) {
	mti, err := m.MTI()
	if err != nil {
		return nil, err
	}
	if len(mti) != 4 || mti[2] < '0' || mti[2] > '9' || (mti[2]-'0')%2 != 0 {
		return nil, fmt.Errorf("%w: cannot respond to %q", ErrInvalidMTI, mti)
	}
	res := m.Clone()
	b := []byte(mti)
	b[2]++
	if err := res.SetMTI(string(b)); err != nil {
		return nil, err
	}
	if err := res.SetField(39, responseCode); err != nil {
		return nil, err
	}
	switch m.direction {
	case DirectionIncoming:
		res.direction = DirectionOutgoing
	case DirectionOutgoing:
		res.direction = DirectionIncoming
	}
	return res, nil
}

// Dump writes a readable, XML-like rendering of the message.
func (m *Message) Dump(w io.Writer, indent string) {
	if m.key > 0 {
		fmt.Fprintf(w, "%s<isomsg id=\"%d\">\n", indent, m.key)
	} else if m.direction != DirectionUnset {
		fmt.Fprintf(w, "%s<isomsg direction=\"%s\">\n", indent, m.direction)
	} else {
		fmt.Fprintf(w, "%s<isomsg>\n", indent)
	}
	inner := indent + "  "
	if len(m.header) > 0 {
		fmt.Fprintf(w, "%s<header>%X</header>\n", inner, m.header)
	}
	for _, k := range m.Fields() {
		m.fields[k].Dump(w, inner)
	}
	for _, tag := range m.unmappedTags() {
		fmt.Fprintf(w, "%s<tag id=\"%s\" value=\"%X\"/>\n", inner, escapeDump(tag), m.unmapped[tag])
	}
	for _, ve := range m.errs {
		fmt.Fprintf(w, "%s<!-- %s -->\n", inner, escapeDump(ve.Error()))
	}
	fmt.Fprintf(w, "%s</isomsg>\n", indent)
}

// String returns the Dump rendering.
func (m *Message) String() string {
	var sb strings.Builder
	m.Dump(&sb, "")
	return sb.String()
}

// panFields hold cardholder data and are masked in log output.
var panFields = map[int]bool{2: true, 35: true, 45: true}

// LogValue implements slog.LogValuer. Cardholder data is masked.
func (m *Message) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	if mti, err := m.MTI(); err == nil {
		attrs = append(attrs, slog.String("mti", mti))
	}
	if m.direction != DirectionUnset {
		attrs = append(attrs, slog.String("direction", m.direction.String()))
	}
	fieldArgs := make([]any, 0, len(m.fields))
	for _, k := range m.Fields() {
		if k == 0 {
			continue
		}
		name := strconv.Itoa(k)
		switch c := unwrapComponent(m.fields[k]).(type) {
		case *Message:
			fieldArgs = append(fieldArgs, slog.Any(name, c))
		case *BinaryField:
			fieldArgs = append(fieldArgs, slog.String(name, fmt.Sprintf("%X", c.value)))
		case *Field:
			v := c.value
			if panFields[k] {
				v = maskPAN(v)
			}
			fieldArgs = append(fieldArgs, slog.String(name, v))
		}
	}
	attrs = append(attrs, slog.Group("fields", fieldArgs...))
	return slog.GroupValue(attrs...)
}

// maskPAN keeps the first six and last four characters.
func maskPAN(v string) string {
	if len(v) <= 10 {
		return strings.Repeat("*", len(v))
	}
	return v[:6] + strings.Repeat("*", len(v)-10) + v[len(v)-4:]
}
