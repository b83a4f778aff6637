package isopack

import (
	"fmt"
	"strconv"
)

// NoPrefix is returned by DecodeLength when a field has no length prefix and
// its fixed maximum length applies.
const NoPrefix = -1

// Prefixer writes and reads the length prefix of variable-length fields.
type Prefixer interface {
	// EncodeLength writes n into b, which holds exactly PackedLength() bytes.
	EncodeLength(n int, b []byte) error
	// DecodeLength reads the prefix at offset, or returns NoPrefix.
	DecodeLength(b []byte, offset int) (int, error)
	PackedLength() int
}

// NullPrefixer marks fixed-length fields.
type NullPrefixer struct{}

func (NullPrefixer) EncodeLength(int, []byte) error        { return nil }
func (NullPrefixer) DecodeLength([]byte, int) (int, error) { return NoPrefix, nil }
func (NullPrefixer) PackedLength() int                     { return 0 }

// AsciiPrefixer writes the length as Digits ASCII decimal digits.
type AsciiPrefixer struct {
	Digits int
}

var (
	PrefixL      = AsciiPrefixer{Digits: 1}
	PrefixLL     = AsciiPrefixer{Digits: 2}
	PrefixLLL    = AsciiPrefixer{Digits: 3}
	PrefixLLLL   = AsciiPrefixer{Digits: 4}
	PrefixLLLLL  = AsciiPrefixer{Digits: 5}
	PrefixLLLLLL = AsciiPrefixer{Digits: 6}
)

func (p AsciiPrefixer) EncodeLength(n int, b []byte) error {
	s, err := decimalLength(n, p.Digits)
	if err != nil {
		return err
	}
	copy(b, s)
	return nil
}

func (p AsciiPrefixer) DecodeLength(b []byte, offset int) (int, error) {
	if err := checkBounds(b, offset, p.Digits); err != nil {
		return 0, err
	}
	return parseDecimalLength(b[offset : offset+p.Digits])
}

func (p AsciiPrefixer) PackedLength() int { return p.Digits }

// BCDPrefixer writes the length as Digits BCD digits, left padded to whole
// bytes.
type BCDPrefixer struct {
	Digits int
}

func (p BCDPrefixer) EncodeLength(n int, b []byte) error {
	if _, err := decimalLength(n, p.Digits); err != nil {
		return err
	}
	s, _ := decimalLength(n, 2*p.PackedLength())
	return BCDRightPadded.Interpret(s, b, 0)
}

func (p BCDPrefixer) DecodeLength(b []byte, offset int) (int, error) {
	s, err := BCDRightPadded.Uninterpret(b, offset, 2*p.PackedLength())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func (p BCDPrefixer) PackedLength() int { return (p.Digits + 1) / 2 }

// BinaryPrefixer writes the length as a big-endian unsigned integer of Bytes
// bytes (1 or 2).
type BinaryPrefixer struct {
	Bytes int
}

func (p BinaryPrefixer) EncodeLength(n int, b []byte) error {
	if n < 0 || n >= 1<<(8*p.Bytes) {
		return fmt.Errorf("%w: length %d does not fit a %d-byte binary prefix", ErrLengthExceeded, n, p.Bytes)
	}
	for i := p.Bytes - 1; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return nil
}

func (p BinaryPrefixer) DecodeLength(b []byte, offset int) (int, error) {
	if err := checkBounds(b, offset, p.Bytes); err != nil {
		return 0, err
	}
	n := 0
	for _, v := range b[offset : offset+p.Bytes] {
		n = n<<8 | int(v)
	}
	return n, nil
}

func (p BinaryPrefixer) PackedLength() int { return p.Bytes }

// HexPrefixer writes the length as Digits uppercase hex ASCII characters.
type HexPrefixer struct {
	Digits int
}

func (p HexPrefixer) EncodeLength(n int, b []byte) error {
	if n < 0 || n >= 1<<(4*p.Digits) {
		return fmt.Errorf("%w: length %d does not fit %d hex digits", ErrLengthExceeded, n, p.Digits)
	}
	for i := p.Digits - 1; i >= 0; i-- {
		b[i] = hexTableUpper[n&0x0F]
		n >>= 4
	}
	return nil
}

func (p HexPrefixer) DecodeLength(b []byte, offset int) (int, error) {
	if err := checkBounds(b, offset, p.Digits); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range b[offset : offset+p.Digits] {
		v, ok := hexNibble(c)
		if !ok {
			return 0, fmt.Errorf("%w: malformed hex length %q", ErrEncoding, b[offset:offset+p.Digits])
		}
		n = n<<4 | int(v)
	}
	return n, nil
}

func (p HexPrefixer) PackedLength() int { return p.Digits }

// EBCDICPrefixer writes the length as Digits EBCDIC decimal digits.
type EBCDICPrefixer struct {
	Digits int
}

func (p EBCDICPrefixer) EncodeLength(n int, b []byte) error {
	s, err := decimalLength(n, p.Digits)
	if err != nil {
		return err
	}
	return EBCDICInterpreter{}.Interpret(s, b, 0)
}

func (p EBCDICPrefixer) DecodeLength(b []byte, offset int) (int, error) {
	s, err := EBCDICInterpreter{}.Uninterpret(b, offset, p.Digits)
	if err != nil {
		return 0, err
	}
	return parseDecimalLength([]byte(s))
}

func (p EBCDICPrefixer) PackedLength() int { return p.Digits }

// decimalLength formats n zero-padded to width digits.
func decimalLength(n, width int) (string, error) {
	if n < 0 || n >= pow10(width) {
		return "", fmt.Errorf("%w: length %d does not fit %d digits", ErrLengthExceeded, n, width)
	}
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s, nil
}

func parseDecimalLength(b []byte) (int, error) {
	if !isDigits(string(b)) {
		return 0, fmt.Errorf("%w: malformed length prefix %q", ErrEncoding, b)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return n, nil
}
