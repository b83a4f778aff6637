package isopack

import (
	"fmt"
)

// BitmapFieldPackager is a field packager for the presence bitmap. The
// message packager treats the bitmap as an opaque presence set and relies
// on DataFields to drop whatever control bits the convention uses.
type BitmapFieldPackager interface {
	FieldPackager
	DataFields(bm *Bitmap) []int
}

const bitmapBlockBits = 64

// BitmapPackager packs the presence bitmap in 64-bit blocks, up to MaxBits
// (64, 128 or 192) bits.
type BitmapPackager struct {
	encoding   BitmapEncoding
	maxBits    int
	convention BitmapConvention
}

// NewBitmapPackager returns a bitmap packager. maxBits must be 64, 128 or 192.
func NewBitmapPackager(enc BitmapEncoding, maxBits int, conv BitmapConvention) (*BitmapPackager, error) {
	switch maxBits {
	case 64, 128, 192:
	default:
		return nil, fmt.Errorf("%w: bitmap size %d, want 64, 128 or 192", ErrConfiguration, maxBits)
	}
	switch enc {
	case BitmapBinary, BitmapHex, BitmapEBCDICHex:
	default:
		return nil, fmt.Errorf("%w: unknown bitmap encoding %d", ErrConfiguration, int(enc))
	}
	return &BitmapPackager{encoding: enc, maxBits: maxBits, convention: conv}, nil
}

func (p *BitmapPackager) Encoding() BitmapEncoding     { return p.encoding }
func (p *BitmapPackager) Convention() BitmapConvention { return p.convention }

// MaxLength is the largest bitmap size in bytes.
func (p *BitmapPackager) MaxLength() int { return p.maxBits / 8 }

func (p *BitmapPackager) MaxPackedLength() int { return p.unit() * p.maxBits / 8 }

func (p *BitmapPackager) Description() string {
	return fmt.Sprintf("%s bitmap %d (%s)", p.encoding, p.maxBits, p.convention)
}

func (p *BitmapPackager) unit() int {
	if p.encoding == BitmapBinary {
		return 1
	}
	return 2
}

// controlBit reports whether bit n announces an extension block.
func (p *BitmapPackager) controlBit(n int) bool {
	if p.convention != BitmapExtension {
		return false
	}
	return (n == 1 && p.maxBits > 64) || (n == 65 && p.maxBits > 128)
}

// DataFields returns the field numbers in bm, without control bits.
func (p *BitmapPackager) DataFields(bm *Bitmap) []int {
	if bm == nil {
		return nil
	}
	all := bm.Fields()
	out := all[:0:0]
	for _, n := range all {
		if n > 0 && !p.controlBit(n) {
			out = append(out, n)
		}
	}
	return out
}

// Pack renders the bitmap. The input is not modified; control bits are
// computed from the highest data field.
func (p *BitmapPackager) Pack(c Component) ([]byte, error) {
	bm, ok := unwrapComponent(c).(*Bitmap)
	if !ok {
		return nil, fieldErr(BitmapKey, p, fmt.Errorf("%w: bitmap packager cannot pack %T", ErrEncoding, c))
	}
	fields := p.DataFields(bm)
	high := 0
	if len(fields) > 0 {
		high = fields[len(fields)-1]
	}
	if high > p.maxBits {
		return nil, fieldErr(BitmapKey, p, fmt.Errorf("%w: field %d beyond a %d-bit bitmap", ErrLengthExceeded, high, p.maxBits))
	}

	blocks := p.maxBits / bitmapBlockBits
	if p.convention == BitmapExtension {
		blocks = (high + bitmapBlockBits - 1) / bitmapBlockBits
		if blocks == 0 {
			blocks = 1
		}
	}
	raw := make([]byte, blocks*8)
	for _, n := range fields {
		raw[(n-1)/8] |= 0x80 >> uint((n-1)%8)
	}
	if p.convention == BitmapExtension {
		if blocks > 1 {
			raw[0] |= 0x80
		}
		if blocks > 2 {
			raw[8] |= 0x80
		}
	}
	return p.encode(raw)
}

func (p *BitmapPackager) encode(raw []byte) ([]byte, error) {
	switch p.encoding {
	case BitmapHex:
		out := make([]byte, 2*len(raw))
		encodeHexUpper(out, raw)
		return out, nil
	case BitmapEBCDICHex:
		out := make([]byte, 2*len(raw))
		if err := (EBCDICHexInterpreter{}).InterpretBinary(raw, out, 0); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return raw, nil
	}
}

func (p *BitmapPackager) decodeBlock(b []byte, offset int) ([]byte, error) {
	switch p.encoding {
	case BitmapHex:
		return AsciiHexInterpreter{}.UninterpretBinary(b, offset, 8)
	case BitmapEBCDICHex:
		return EBCDICHexInterpreter{}.UninterpretBinary(b, offset, 8)
	default:
		return LiteralBinaryInterpreter{}.UninterpretBinary(b, offset, 8)
	}
}

// Unpack decodes one to three 64-bit blocks. The returned bitmap holds every
// bit found on the wire, control bits included.
func (p *BitmapPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	bm := NewBitmap()
	consumed := 0
	for block := 0; block < p.maxBits/bitmapBlockBits; block++ {
		raw, err := p.decodeBlock(b, offset+consumed)
		if err != nil {
			return nil, 0, fieldErr(fieldNumber, p, err)
		}
		consumed += 8 * p.unit()
		base := block * bitmapBlockBits
		for i := 0; i < bitmapBlockBits; i++ {
			if raw[i/8]&(0x80>>uint(i%8)) != 0 {
				bm.Set(base + i + 1)
			}
		}
		if p.convention == BitmapExtension && !bm.Test(base+1) {
			break
		}
	}
	return bm, consumed, nil
}
