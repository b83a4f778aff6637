package isopack

import (
	"fmt"
	"log/slog"
)

// BERTLVPackager packs EMV-style BER-TLV data. Each field number is the
// big-endian value of its tag bytes, so tag 9F02 is field 40706. With a
// positive depth, constructed tags (bit 6 of the first byte) are unpacked
// into nested messages.
type BERTLVPackager struct {
	maxDepth int
	logger   *slog.Logger
}

// NewBERTLVPackager returns a BER-TLV codec that descends into constructed
// tags up to maxDepth levels. A nil logger discards.
func NewBERTLVPackager(maxDepth int, logger *slog.Logger) *BERTLVPackager {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &BERTLVPackager{maxDepth: maxDepth, logger: loggerOrDiscard(logger)}
}

func (p *BERTLVPackager) Description() string { return "ber-tlv" }

// TagBytes returns the wire form of a tag number.
func TagBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid BER tag %d", ErrUnknownTag, n)
	}
	var tag []byte
	for v := n; v > 0; v >>= 8 {
		tag = append([]byte{byte(v)}, tag...)
	}
	end, err := berTagEnd(tag, 0)
	if err != nil || end != len(tag) {
		return nil, &TagError{Tag: fmt.Sprintf("%X", tag), Err: fmt.Errorf("%w: not a well-formed BER tag", ErrUnknownTag)}
	}
	return tag, nil
}

// berTagEnd returns the offset just past the tag starting at offset.
func berTagEnd(b []byte, offset int) (int, error) {
	if err := checkBounds(b, offset, 1); err != nil {
		return 0, err
	}
	pos := offset + 1
	if b[offset]&0x1F == 0x1F {
		for pos < len(b) && b[pos]&0x80 != 0 {
			pos++
		}
		if pos >= len(b) {
			return 0, truncated(pos, 1, len(b))
		}
		pos++
	}
	if pos-offset > 4 {
		return 0, fmt.Errorf("%w: tag longer than 4 bytes at offset %d", ErrEncoding, offset)
	}
	return pos, nil
}

func constructed(tag []byte) bool {
	return tag[0]&0x20 != 0
}

// Pack rejects nested messages deeper than maxDepth, since Unpack would
// read them back as raw bytes.
func (p *BERTLVPackager) Pack(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncoding)
	}
	return p.pack(m, 0)
}

func (p *BERTLVPackager) pack(m *Message, depth int) ([]byte, error) {
	var out []byte
	for _, n := range m.Fields() {
		tag, err := TagBytes(n)
		if err != nil {
			return nil, &FieldError{Field: n, Packager: p.Description(), Err: err}
		}
		var value []byte
		if sub, ok := unwrapComponent(m.fields[n]).(*Message); ok {
			if !constructed(tag) {
				return nil, &FieldError{Field: n, Packager: p.Description(), Err: fmt.Errorf("%w: primitive tag %X holds a message", ErrEncoding, tag)}
			}
			if depth >= p.maxDepth {
				return nil, &FieldError{Field: n, Packager: p.Description(), Err: fmt.Errorf("%w: tag %X nests deeper than %d levels", ErrEncoding, tag, p.maxDepth)}
			}
			if value, err = p.pack(sub, depth+1); err != nil {
				return nil, fieldErr(n, nil, err)
			}
		} else if value, err = componentBytes(m.fields[n]); err != nil {
			return nil, &FieldError{Field: n, Packager: p.Description(), Err: err}
		}
		out = append(out, tag...)
		out = appendBERLength(out, len(value))
		out = append(out, value...)
	}
	return out, nil
}

func appendBERLength(b []byte, n int) []byte {
	if n < 0x80 {
		return append(b, byte(n))
	}
	var lb []byte
	for v := n; v > 0; v >>= 8 {
		lb = append([]byte{byte(v)}, lb...)
	}
	b = append(b, 0x80|byte(len(lb)))
	return append(b, lb...)
}

func (p *BERTLVPackager) Unpack(b []byte) (*Message, int, error) {
	m, err := p.unpack(b, 0)
	if err != nil {
		return nil, 0, err
	}
	return m, len(b), nil
}

func (p *BERTLVPackager) unpack(b []byte, depth int) (*Message, error) {
	m := NewMessage()
	offset := 0
	for offset < len(b) {
		end, err := berTagEnd(b, offset)
		if err != nil {
			return nil, err
		}
		tag := b[offset:end]
		n := 0
		for _, v := range tag {
			n = n<<8 | int(v)
		}
		length, pos, err := readBERLength(b, end)
		if err != nil {
			return nil, &TagError{Tag: fmt.Sprintf("%X", tag), Err: err}
		}
		if err := checkBounds(b, pos, length); err != nil {
			return nil, &TagError{Tag: fmt.Sprintf("%X", tag), Err: err}
		}
		value := b[pos : pos+length]
		offset = pos + length

		var c Component
		if constructed(tag) && depth < p.maxDepth {
			sub, err := p.unpack(value, depth+1)
			if err != nil {
				return nil, &TagError{Tag: fmt.Sprintf("%X", tag), Err: err}
			}
			sub.SetKey(n)
			c = sub
		} else {
			c = NewBinaryField(n, value)
		}
		if err := m.Set(c); err != nil {
			return nil, err
		}
		p.logger.Debug("unpacked BER tag", "tag", fmt.Sprintf("%X", tag), "len", length, "depth", depth)
	}
	m.RecalcBitmap()
	return m, nil
}

func readBERLength(b []byte, offset int) (int, int, error) {
	if err := checkBounds(b, offset, 1); err != nil {
		return 0, 0, err
	}
	first := b[offset]
	if first&0x80 == 0 {
		return int(first), offset + 1, nil
	}
	count := int(first & 0x7F)
	if count == 0 || count > 4 {
		return 0, 0, fmt.Errorf("%w: invalid BER length byte %02X", ErrEncoding, first)
	}
	if err := checkBounds(b, offset+1, count); err != nil {
		return 0, 0, err
	}
	n := 0
	for _, v := range b[offset+1 : offset+1+count] {
		n = n<<8 | int(v)
	}
	return n, offset + 1 + count, nil
}
