package isopack

import (
	"fmt"
	"log/slog"
	"strings"
)

// TaggedPackager packs a message as a sequence of tag | length | value
// chunks with fixed-width ASCII tags and lengths. It has no bitmap: the
// tags say which fields are present.
type TaggedPackager struct {
	tagSize     int
	lenSize     int
	swap        bool
	lengthBase  int
	mapper      TagMapper
	static      map[int]FieldPackager
	policy      UnknownTagPolicy
	binary      bool
	logger      *slog.Logger
	description string
}

// TaggedOption represents a functional option for TaggedPackager.
type TaggedOption func(*TaggedPackager)

// WithSwappedTagLength emits the length before the tag.
func WithSwappedTagLength() TaggedOption {
	return func(p *TaggedPackager) { p.swap = true }
}

// WithLengthBase sets the radix of the length field, 10 (default) or 16.
func WithLengthBase(base int) TaggedOption {
	return func(p *TaggedPackager) { p.lengthBase = base }
}

// WithTagPackager uses fp for field n. The tag is still written first and fp
// supplies its own length handling.
func WithTagPackager(n int, fp FieldPackager) TaggedOption {
	return func(p *TaggedPackager) {
		if p.static == nil {
			p.static = make(map[int]FieldPackager)
		}
		p.static[n] = fp
	}
}

// WithUnknownTagPolicy decides what Unpack does with unmapped tags.
func WithUnknownTagPolicy(policy UnknownTagPolicy) TaggedOption {
	return func(p *TaggedPackager) { p.policy = policy }
}

// WithBinaryValues makes Unpack produce BinaryFields instead of Fields.
func WithBinaryValues() TaggedOption {
	return func(p *TaggedPackager) { p.binary = true }
}

// WithTaggedLogger sets the logger. A nil logger discards.
func WithTaggedLogger(l *slog.Logger) TaggedOption {
	return func(p *TaggedPackager) { p.logger = loggerOrDiscard(l) }
}

// WithTaggedDescription names the packager in errors and logs.
func WithTaggedDescription(desc string) TaggedOption {
	return func(p *TaggedPackager) { p.description = desc }
}

// NewTaggedPackager returns a TLV packager with tagSize-character tags and
// lenSize-character lengths.
func NewTaggedPackager(tagSize, lenSize int, mapper TagMapper, opts ...TaggedOption) (*TaggedPackager, error) {
	p := &TaggedPackager{
		tagSize:     tagSize,
		lenSize:     lenSize,
		lengthBase:  10,
		mapper:      mapper,
		logger:      discardLogger(),
		description: "tlv",
	}
	for _, opt := range opts {
		opt(p)
	}
	if tagSize < 1 || lenSize < 1 {
		return nil, fmt.Errorf("%w: tag size %d, length size %d", ErrConfiguration, tagSize, lenSize)
	}
	if mapper == nil {
		return nil, fmt.Errorf("%w: tagged packager needs a tag mapper", ErrConfiguration)
	}
	if dm, ok := mapper.(*DecimalTagMapper); ok && dm.Width() != tagSize {
		return nil, fmt.Errorf("%w: mapper width %d does not match tag size %d", ErrConfiguration, dm.Width(), tagSize)
	}
	if p.lengthBase != 10 && p.lengthBase != 16 {
		return nil, fmt.Errorf("%w: length base %d, want 10 or 16", ErrConfiguration, p.lengthBase)
	}
	if p.swap && len(p.static) > 0 {
		return nil, fmt.Errorf("%w: per-tag packagers cannot be combined with a swapped tag/length order", ErrConfiguration)
	}
	for n, fp := range p.static {
		if fp == nil {
			return nil, fmt.Errorf("%w: nil packager for tag field %d", ErrConfiguration, n)
		}
	}
	return p, nil
}

func (p *TaggedPackager) Description() string { return p.description }

// Pack emits the fields of m in increasing field order. Kept unmapped
// chunks go back next to the field they followed when unpacked.
func (p *TaggedPackager) Pack(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncoding)
	}
	bp := getBuffer()
	defer putBuffer(bp)
	buf := *bp

	kept := m.unmappedTags()
	next := 0
	// appendKept emits kept chunks anchored before field before, or all of
	// the remaining ones when before is negative.
	appendKept := func(before int) error {
		for ; next < len(kept); next++ {
			tag := kept[next]
			if before >= 0 && m.keptPosition(tag).after >= before {
				return nil
			}
			if len(tag) != p.tagSize {
				return &TagError{Tag: tag, Err: fmt.Errorf("%w: kept tag width %d, want %d", ErrConfiguration, len(tag), p.tagSize)}
			}
			var err error
			if buf, err = p.appendChunk(buf, tag, m.unmapped[tag]); err != nil {
				return &TagError{Tag: tag, Err: err}
			}
		}
		return nil
	}

	for _, n := range m.Fields() {
		if err := appendKept(n); err != nil {
			return nil, err
		}
		c := m.fields[n]
		tag, err := p.mapper.TagForField(n)
		if err != nil {
			return nil, &FieldError{Field: n, Packager: p.description, Err: err}
		}
		if len(tag) != p.tagSize {
			return nil, &FieldError{Field: n, Packager: p.description, Err: &TagError{Tag: tag, Err: fmt.Errorf("%w: tag width %d, want %d", ErrConfiguration, len(tag), p.tagSize)}}
		}
		if fp, ok := p.static[n]; ok {
			b, err := fp.Pack(c)
			if err != nil {
				return nil, fieldErr(n, fp, err)
			}
			buf = append(buf, tag...)
			buf = append(buf, b...)
			continue
		}
		value, err := componentBytes(c)
		if err != nil {
			return nil, &FieldError{Field: n, Packager: p.description, Err: err}
		}
		if buf, err = p.appendChunk(buf, tag, value); err != nil {
			return nil, &FieldError{Field: n, Packager: p.description, Err: err}
		}
		p.logger.Debug("packed tag", "field", n, "tag", tag, "len", len(value))
	}

	if err := appendKept(-1); err != nil {
		return nil, err
	}

	*bp = buf
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (p *TaggedPackager) appendChunk(buf []byte, tag string, value []byte) ([]byte, error) {
	length, err := p.formatLength(len(value))
	if err != nil {
		return buf, err
	}
	if p.swap {
		buf = append(buf, length...)
		buf = append(buf, tag...)
	} else {
		buf = append(buf, tag...)
		buf = append(buf, length...)
	}
	return append(buf, value...), nil
}

func (p *TaggedPackager) formatLength(n int) (string, error) {
	if p.lengthBase == 10 {
		return decimalLength(n, p.lenSize)
	}
	if n >= 1<<(4*p.lenSize) {
		return "", fmt.Errorf("%w: length %d does not fit %d hex digits", ErrLengthExceeded, n, p.lenSize)
	}
	b := make([]byte, p.lenSize)
	if err := (HexPrefixer{Digits: p.lenSize}).EncodeLength(n, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *TaggedPackager) parseLength(b []byte, offset int) (int, error) {
	if p.lengthBase == 10 {
		return AsciiPrefixer{Digits: p.lenSize}.DecodeLength(b, offset)
	}
	return HexPrefixer{Digits: p.lenSize}.DecodeLength(b, offset)
}

// Unpack scans chunks until b is exhausted. Every chunk is either consumed
// whole or the call fails.
func (p *TaggedPackager) Unpack(b []byte) (*Message, int, error) {
	m := NewMessage()
	offset := 0
	lastField := -1
	for offset < len(b) {
		var (
			tag    string
			length int
			err    error
		)
		pos := offset
		if p.swap {
			if length, err = p.parseLength(b, pos); err != nil {
				return nil, 0, fmt.Errorf("tag length at offset %d: %w", pos, err)
			}
			pos += p.lenSize
			if err = checkBounds(b, pos, p.tagSize); err != nil {
				return nil, 0, fmt.Errorf("tag at offset %d: %w", pos, err)
			}
			tag = string(b[pos : pos+p.tagSize])
			pos += p.tagSize
		} else {
			if err = checkBounds(b, pos, p.tagSize); err != nil {
				return nil, 0, fmt.Errorf("tag at offset %d: %w", pos, err)
			}
			tag = string(b[pos : pos+p.tagSize])
			pos += p.tagSize
		}

		n, mapErr := p.mapper.FieldNumberForTag(tag)
		if mapErr == nil {
			if fp, ok := p.static[n]; ok {
				c, used, err := fp.Unpack(n, b, pos)
				if err != nil {
					return nil, 0, fieldErr(n, fp, err)
				}
				if err := m.Set(c); err != nil {
					return nil, 0, fieldErr(n, fp, err)
				}
				offset = pos + used
				lastField = n
				continue
			}
		}

		if !p.swap {
			if length, err = p.parseLength(b, pos); err != nil {
				return nil, 0, &TagError{Tag: tag, Err: err}
			}
			pos += p.lenSize
		}
		if err := checkBounds(b, pos, length); err != nil {
			return nil, 0, &TagError{Tag: tag, Err: err}
		}
		value := b[pos : pos+length]
		offset = pos + length

		if mapErr != nil {
			switch p.policy {
			case UnknownTagDrop:
				p.logger.Debug("dropping unmapped tag", "tag", tag, "len", length)
			case UnknownTagKeep:
				m.setUnmappedAfter(tag, value, lastField)
			default:
				return nil, 0, mapErr
			}
			continue
		}
		var c Component
		if p.binary {
			c = NewBinaryField(n, value)
		} else {
			c = NewField(n, string(value))
		}
		if err := m.Set(c); err != nil {
			return nil, 0, &TagError{Tag: tag, Err: err}
		}
		lastField = n
		p.logger.Debug("unpacked tag", "field", n, "tag", tag, "len", length)
	}
	m.RecalcBitmap()
	return m, offset, nil
}

// String lists the configuration, for debugging.
func (p *TaggedPackager) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: tag %d, length %d (base %d)", p.description, p.tagSize, p.lenSize, p.lengthBase)
	if p.swap {
		sb.WriteString(", swapped")
	}
	fmt.Fprintf(&sb, ", unknown tags %s", p.policy)
	return sb.String()
}
