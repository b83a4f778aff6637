package isopack

import (
	"fmt"
	"log/slog"
	"sort"
)

// MessageCodec converts whole messages to and from bytes.
type MessageCodec interface {
	Pack(m *Message) ([]byte, error)
	// Unpack returns the message and the number of bytes consumed.
	Unpack(b []byte) (*Message, int, error)
}

// MessagePackager packs messages laid out as
// header | field 0 | bitmap | present fields in increasing order.
// It is immutable after construction and safe for concurrent use.
type MessagePackager struct {
	fields        map[int]FieldPackager
	firstField    int
	firstFieldSet bool
	emitBitmap    bool
	bitmapField   int
	maxField      int
	headerLength  int
	validator     *MessageValidator
	bestEffort    bool
	logger        *slog.Logger
	description   string

	bitmap BitmapFieldPackager
}

// NewMessagePackager builds a packager over a field table. The table is
// copied. By default the bitmap packager lives at index 1 and data fields
// start at 2.
func NewMessagePackager(fields map[int]FieldPackager, opts ...PackagerOption) (*MessagePackager, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty field table", ErrConfiguration)
	}
	p := &MessagePackager{
		fields:      make(map[int]FieldPackager, len(fields)),
		emitBitmap:  true,
		bitmapField: 1,
		logger:      discardLogger(),
		description: "message",
	}
	for n, fp := range fields {
		if fp == nil {
			return nil, fmt.Errorf("%w: field %d has a nil packager", ErrConfiguration, n)
		}
		p.fields[n] = fp
	}
	for _, opt := range opts {
		opt(p)
	}

	if !p.firstFieldSet {
		p.firstField = 1
		if p.emitBitmap && p.bitmapField == 1 {
			p.firstField = 2
		}
	}
	if p.firstField < 1 {
		return nil, fmt.Errorf("%w: first field %d", ErrConfiguration, p.firstField)
	}
	if p.headerLength < 0 {
		return nil, fmt.Errorf("%w: header length %d", ErrConfiguration, p.headerLength)
	}

	if p.emitBitmap {
		fp, ok := p.fields[p.bitmapField]
		if !ok {
			return nil, fmt.Errorf("%w: no bitmap packager at field %d", ErrConfiguration, p.bitmapField)
		}
		bp, ok := fp.(BitmapFieldPackager)
		if !ok {
			return nil, fmt.Errorf("%w: field %d packager %q is not a bitmap packager", ErrConfiguration, p.bitmapField, fp.Description())
		}
		if p.bitmapField >= p.firstField {
			return nil, fmt.Errorf("%w: bitmap field %d must precede first field %d", ErrConfiguration, p.bitmapField, p.firstField)
		}
		p.bitmap = bp
	}

	if p.maxField == 0 {
		if p.bitmap != nil {
			p.maxField = p.bitmap.MaxLength() * 8
		} else {
			for n := range p.fields {
				if n > p.maxField {
					p.maxField = n
				}
			}
		}
	}
	return p, nil
}

func (p *MessagePackager) Description() string { return p.description }

// FieldPackager returns the packager for field n, or nil.
func (p *MessagePackager) FieldPackager(n int) FieldPackager {
	return p.fields[n]
}

// FieldNumbers returns the configured field numbers in increasing order.
func (p *MessagePackager) FieldNumbers() []int {
	keys := make([]int, 0, len(p.fields))
	for k := range p.fields {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (p *MessagePackager) MaxField() int { return p.maxField }

// MaxPackedLength sums the worst case of every configured field.
func (p *MessagePackager) MaxPackedLength() int {
	total := p.headerLength
	for _, fp := range p.fields {
		total += fp.MaxPackedLength()
	}
	return total
}

type packedField struct {
	n int
	b []byte
}

// Pack packs m. On failure m is left untouched; on success its derived
// bitmap is attached.
func (p *MessagePackager) Pack(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncoding)
	}
	src := m
	if p.validator != nil {
		vm, err := p.validator.Validate(m)
		if err != nil {
			return nil, err
		}
		for _, ve := range vm.ValidationErrors() {
			p.logger.Warn("validation failed before pack", "field", ve.Field, "rule", ve.Rule, "error", ve.Message)
		}
		src = vm
	}

	if p.headerLength > 0 && len(src.header) != p.headerLength {
		return nil, fmt.Errorf("%w: header is %d bytes, want %d", ErrLengthMismatch, len(src.header), p.headerLength)
	}

	var mti []byte
	if c, ok := src.fields[0]; ok {
		fp := p.fields[0]
		if fp == nil {
			return nil, &FieldError{Field: 0, Err: fmt.Errorf("%w: no packager", ErrConfiguration)}
		}
		b, err := fp.Pack(c)
		if err != nil {
			return nil, fieldErr(0, fp, err)
		}
		mti = b
	}

	presence := NewBitmap()
	chunks := make([]packedField, 0, len(src.fields))
	skipped := 0
	for _, n := range src.Fields() {
		if n == 0 {
			continue
		}
		if n < p.firstField {
			return nil, &FieldError{Field: n, Err: fmt.Errorf("%w: field %d is below first field %d", ErrConfiguration, n, p.firstField)}
		}
		if n > p.maxField {
			return nil, &FieldError{Field: n, Err: fmt.Errorf("%w: field %d is above max field %d", ErrConfiguration, n, p.maxField)}
		}
		fp := p.fields[n]
		if fp == nil {
			return nil, &FieldError{Field: n, Err: fmt.Errorf("%w: no packager", ErrConfiguration)}
		}
		b, err := fp.Pack(src.fields[n])
		if err != nil {
			if p.bestEffort {
				p.logger.Warn("skipping field", "field", n, "packager", fp.Description(), "error", err)
				skipped++
				continue
			}
			return nil, fieldErr(n, fp, err)
		}
		p.logger.Debug("packed field", "field", n, "packager", fp.Description(), "len", len(b))
		chunks = append(chunks, packedField{n: n, b: b})
		presence.Set(n)
	}

	var bitmap []byte
	if p.bitmap != nil {
		if got := p.bitmap.DataFields(presence); len(got) != len(chunks) {
			return nil, fieldErr(BitmapKey, p.bitmap, fmt.Errorf("%w: fields %v cannot be represented by the bitmap", ErrConfiguration, presence.Fields()))
		}
		b, err := p.bitmap.Pack(presence)
		if err != nil {
			return nil, fieldErr(BitmapKey, p.bitmap, err)
		}
		bitmap = b
	}

	bp := getBuffer()
	defer putBuffer(bp)
	buf := append(*bp, src.header...)
	buf = append(buf, mti...)
	buf = append(buf, bitmap...)
	for _, ch := range chunks {
		buf = append(buf, ch.b...)
	}
	*bp = buf
	out := make([]byte, len(buf))
	copy(out, buf)

	if skipped == 0 {
		m.attachBitmap(presence)
	}
	p.logger.Debug("packed message", "packager", p.description, "fields", len(chunks), "len", len(out))
	return out, nil
}

// Unpack parses b. Trailing bytes after the last field are logged, not
// rejected.
func (p *MessagePackager) Unpack(b []byte) (*Message, int, error) {
	m := NewMessage()
	offset := 0

	if p.headerLength > 0 {
		if err := checkBounds(b, 0, p.headerLength); err != nil {
			return nil, 0, fmt.Errorf("header: %w", err)
		}
		m.header = cloneBytes(b[:p.headerLength])
		offset = p.headerLength
	}

	if fp := p.fields[0]; fp != nil {
		n, err := p.unpackField(m, fp, 0, b, offset)
		if err != nil {
			return nil, 0, err
		}
		offset += n
	}

	if p.bitmap != nil {
		c, n, err := p.bitmap.Unpack(BitmapKey, b, offset)
		if err != nil {
			return nil, 0, fieldErr(BitmapKey, p.bitmap, err)
		}
		bm, ok := unwrapComponent(c).(*Bitmap)
		if !ok {
			return nil, 0, fieldErr(BitmapKey, p.bitmap, fmt.Errorf("%w: bitmap packager returned %T", ErrConfiguration, c))
		}
		offset += n
		for _, f := range p.bitmap.DataFields(bm) {
			if f < p.firstField || f > p.maxField {
				return nil, 0, &FieldError{Field: f, Err: fmt.Errorf("%w: bitmap announces field %d outside %d..%d", ErrConfiguration, f, p.firstField, p.maxField)}
			}
			fp := p.fields[f]
			if fp == nil {
				return nil, 0, &FieldError{Field: f, Err: fmt.Errorf("%w: no packager", ErrConfiguration)}
			}
			n, err := p.unpackField(m, fp, f, b, offset)
			if err != nil {
				return nil, 0, err
			}
			offset += n
		}
	} else {
		for f := p.firstField; f <= p.maxField && offset < len(b); f++ {
			fp := p.fields[f]
			if fp == nil {
				continue
			}
			n, err := p.unpackField(m, fp, f, b, offset)
			if err != nil {
				return nil, 0, err
			}
			offset += n
		}
	}

	if offset != len(b) {
		p.logger.Warn("unpack consumed fewer bytes than supplied", "packager", p.description, "consumed", offset, "len", len(b))
	}
	m.RecalcBitmap()

	if p.validator != nil {
		vm, err := p.validator.Validate(m)
		if err != nil {
			return nil, 0, err
		}
		m = vm
	}
	return m, offset, nil
}

func (p *MessagePackager) unpackField(m *Message, fp FieldPackager, f int, b []byte, offset int) (int, error) {
	c, n, err := fp.Unpack(f, b, offset)
	if err != nil {
		return 0, fieldErr(f, fp, err)
	}
	if err := m.Set(c); err != nil {
		return 0, fieldErr(f, fp, err)
	}
	p.logger.Debug("unpacked field", "field", f, "packager", fp.Description(), "offset", offset, "len", n)
	return n, nil
}
