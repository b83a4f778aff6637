package isopack

import (
	"fmt"
	"strings"
)

// The packagers in this file are fixed recipes for the most common field
// kinds. Each one is equivalent to some composition of interpreter, padder
// and prefixer but is cheaper to declare and read.

// NumericASCIIPackager packs a fixed-width numeric as zero-padded ASCII digits.
type NumericASCIIPackager struct {
	Length int
	Desc   string
}

func (p NumericASCIIPackager) MaxLength() int       { return p.Length }
func (p NumericASCIIPackager) MaxPackedLength() int { return p.Length }
func (p NumericASCIIPackager) Description() string  { return describe(p.Desc, "n-%d", p.Length) }

func (p NumericASCIIPackager) Pack(c Component) ([]byte, error) {
	v, err := componentString(c)
	if err != nil {
		return nil, fieldErr(keyOf(c), p, err)
	}
	if !isDigits(v) {
		return nil, fieldErr(c.Key(), p, fmt.Errorf("%w: %q is not numeric", ErrEncoding, v))
	}
	if len(v) > p.Length {
		return nil, fieldErr(c.Key(), p, exceeded(len(v), p.Length))
	}
	return []byte(strings.Repeat("0", p.Length-len(v)) + v), nil
}

func (p NumericASCIIPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	if err := checkBounds(b, offset, p.Length); err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	v := string(b[offset : offset+p.Length])
	if !isDigits(v) {
		return nil, 0, fieldErr(fieldNumber, p, fmt.Errorf("%w: %q is not numeric", ErrEncoding, v))
	}
	return NewField(fieldNumber, v), p.Length, nil
}

// VarCharPackager packs a character field behind a 2 or 3 digit ASCII
// length prefix (LLVAR / LLLVAR).
type VarCharPackager struct {
	Digits int
	Max    int
	Desc   string
}

func (p VarCharPackager) MaxLength() int       { return p.Max }
func (p VarCharPackager) MaxPackedLength() int { return p.Digits + p.Max }
func (p VarCharPackager) Description() string {
	return describe(p.Desc, strings.Repeat("L", p.Digits)+"VAR-%d", p.Max)
}

func (p VarCharPackager) Pack(c Component) ([]byte, error) {
	v, err := componentString(c)
	if err != nil {
		return nil, fieldErr(keyOf(c), p, err)
	}
	if len(v) > p.Max {
		return nil, fieldErr(c.Key(), p, exceeded(len(v), p.Max))
	}
	out := make([]byte, p.Digits+len(v))
	if err := (AsciiPrefixer{Digits: p.Digits}).EncodeLength(len(v), out); err != nil {
		return nil, fieldErr(c.Key(), p, err)
	}
	copy(out[p.Digits:], v)
	return out, nil
}

func (p VarCharPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	n, err := AsciiPrefixer{Digits: p.Digits}.DecodeLength(b, offset)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	if n > p.Max {
		return nil, 0, fieldErr(fieldNumber, p, exceeded(n, p.Max))
	}
	if err := checkBounds(b, offset+p.Digits, n); err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	start := offset + p.Digits
	return NewField(fieldNumber, string(b[start:start+n])), p.Digits + n, nil
}

// FixedBinaryPackager packs exactly Length raw bytes. Shorter values are
// rejected rather than padded.
type FixedBinaryPackager struct {
	Length int
	Desc   string
}

func (p FixedBinaryPackager) MaxLength() int       { return p.Length }
func (p FixedBinaryPackager) MaxPackedLength() int { return p.Length }
func (p FixedBinaryPackager) Description() string  { return describe(p.Desc, "b-%d", p.Length) }

func (p FixedBinaryPackager) Pack(c Component) ([]byte, error) {
	v, err := componentBytes(c)
	if err != nil {
		return nil, fieldErr(keyOf(c), p, err)
	}
	if err := exactLength(len(v), p.Length); err != nil {
		return nil, fieldErr(c.Key(), p, err)
	}
	return cloneBytes(v), nil
}

func (p FixedBinaryPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	if err := checkBounds(b, offset, p.Length); err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	return NewBinaryField(fieldNumber, b[offset:offset+p.Length]), p.Length, nil
}

// BCDNumericPackager packs a fixed-width numeric as BCD. Values are first
// zero-filled to Length digits; for odd lengths PadLeft puts the spare
// nibble first.
type BCDNumericPackager struct {
	Length  int
	PadLeft bool
	Desc    string
}

func (p BCDNumericPackager) interp() BCDInterpreter { return BCDInterpreter{LeftPadded: p.PadLeft} }

func (p BCDNumericPackager) MaxLength() int       { return p.Length }
func (p BCDNumericPackager) MaxPackedLength() int { return (p.Length + 1) / 2 }
func (p BCDNumericPackager) Description() string  { return describe(p.Desc, "bcd n-%d", p.Length) }

func (p BCDNumericPackager) Pack(c Component) ([]byte, error) {
	v, err := componentString(c)
	if err != nil {
		return nil, fieldErr(keyOf(c), p, err)
	}
	if len(v) > p.Length {
		return nil, fieldErr(c.Key(), p, exceeded(len(v), p.Length))
	}
	v = strings.Repeat("0", p.Length-len(v)) + v
	out := make([]byte, p.MaxPackedLength())
	if err := p.interp().Interpret(v, out, 0); err != nil {
		return nil, fieldErr(c.Key(), p, err)
	}
	return out, nil
}

func (p BCDNumericPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	v, err := p.interp().Uninterpret(b, offset, p.Length)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	return NewField(fieldNumber, v), p.MaxPackedLength(), nil
}

// AmountBCDPackager packs a signed amount: a literal 'C' or 'D' byte
// followed by Length-1 BCD digits.
type AmountBCDPackager struct {
	Length int
	Desc   string
}

func (p AmountBCDPackager) MaxLength() int       { return p.Length }
func (p AmountBCDPackager) MaxPackedLength() int { return 1 + p.Length/2 }
func (p AmountBCDPackager) Description() string  { return describe(p.Desc, "bcd x+n-%d", p.Length) }

func (p AmountBCDPackager) Pack(c Component) ([]byte, error) {
	v, err := componentString(c)
	if err != nil {
		return nil, fieldErr(keyOf(c), p, err)
	}
	if len(v) == 0 || (v[0] != 'C' && v[0] != 'D') {
		return nil, fieldErr(c.Key(), p, fmt.Errorf("%w: amount %q must start with C or D", ErrEncoding, v))
	}
	digits := p.Length - 1
	if len(v)-1 > digits {
		return nil, fieldErr(c.Key(), p, exceeded(len(v), p.Length))
	}
	amount := strings.Repeat("0", digits-(len(v)-1)) + v[1:]
	out := make([]byte, 1+(digits+1)/2)
	out[0] = v[0]
	if err := BCDLeftPadded.Interpret(amount, out, 1); err != nil {
		return nil, fieldErr(c.Key(), p, err)
	}
	return out, nil
}

func (p AmountBCDPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	if err := checkBounds(b, offset, 1); err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	sign := b[offset]
	if sign != 'C' && sign != 'D' {
		return nil, 0, fieldErr(fieldNumber, p, fmt.Errorf("%w: invalid amount sign %02X", ErrEncoding, sign))
	}
	amount, err := BCDLeftPadded.Uninterpret(b, offset+1, p.Length-1)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	return NewField(fieldNumber, string(sign)+amount), 1 + p.Length/2, nil
}

// HexBinaryPackager packs exactly Length raw bytes as 2*Length uppercase hex
// characters.
type HexBinaryPackager struct {
	Length int
	Desc   string
}

func (p HexBinaryPackager) MaxLength() int       { return p.Length }
func (p HexBinaryPackager) MaxPackedLength() int { return 2 * p.Length }
func (p HexBinaryPackager) Description() string  { return describe(p.Desc, "hex b-%d", p.Length) }

func (p HexBinaryPackager) Pack(c Component) ([]byte, error) {
	v, err := componentBytes(c)
	if err != nil {
		return nil, fieldErr(keyOf(c), p, err)
	}
	if err := exactLength(len(v), p.Length); err != nil {
		return nil, fieldErr(c.Key(), p, err)
	}
	out := make([]byte, 2*len(v))
	encodeHexUpper(out, v)
	return out, nil
}

func (p HexBinaryPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	v, err := AsciiHexInterpreter{}.UninterpretBinary(b, offset, p.Length)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	return NewBinaryField(fieldNumber, v), 2 * p.Length, nil
}

func exactLength(n, want int) error {
	if n > want {
		return exceeded(n, want)
	}
	if n < want {
		return fmt.Errorf("%w: length %d, want %d", ErrLengthMismatch, n, want)
	}
	return nil
}

func describe(desc, format string, n int) string {
	if desc != "" {
		return desc
	}
	return fmt.Sprintf(format, n)
}

func keyOf(c Component) int {
	if c == nil {
		return 0
	}
	return c.Key()
}
