package isopack

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Interpreter converts a text value to and from its wire bytes.
// Implementations are stateless and safe for concurrent use.
type Interpreter interface {
	// Interpret writes data into b starting at offset. b must hold
	// PackedLength(len(data)) bytes from offset.
	Interpret(data string, b []byte, offset int) error
	// Uninterpret decodes length logical units starting at offset.
	Uninterpret(raw []byte, offset, length int) (string, error)
	// PackedLength maps a logical length to a wire length.
	PackedLength(n int) int
}

// BinaryInterpreter is the byte-valued analogue of Interpreter.
type BinaryInterpreter interface {
	InterpretBinary(data []byte, b []byte, offset int) error
	UninterpretBinary(raw []byte, offset, length int) ([]byte, error)
	PackedLength(n int) int
}

// LiteralInterpreter writes one byte per character.
type LiteralInterpreter struct{}

func (LiteralInterpreter) Interpret(data string, b []byte, offset int) error {
	if err := checkBounds(b, offset, len(data)); err != nil {
		return err
	}
	copy(b[offset:], data)
	return nil
}

func (LiteralInterpreter) Uninterpret(raw []byte, offset, length int) (string, error) {
	if err := checkBounds(raw, offset, length); err != nil {
		return "", err
	}
	return string(raw[offset : offset+length]), nil
}

func (LiteralInterpreter) PackedLength(n int) int { return n }

// LiteralBinaryInterpreter copies bytes unchanged.
type LiteralBinaryInterpreter struct{}

func (LiteralBinaryInterpreter) InterpretBinary(data []byte, b []byte, offset int) error {
	if err := checkBounds(b, offset, len(data)); err != nil {
		return err
	}
	copy(b[offset:], data)
	return nil
}

func (LiteralBinaryInterpreter) UninterpretBinary(raw []byte, offset, length int) ([]byte, error) {
	if err := checkBounds(raw, offset, length); err != nil {
		return nil, err
	}
	return cloneBytes(raw[offset : offset+length]), nil
}

func (LiteralBinaryInterpreter) PackedLength(n int) int { return n }

// BCDInterpreter packs two decimal digits per byte. For odd lengths one pad
// nibble is added on the left (LeftPadded) or on the right, holding 0 or F
// (FPadded).
type BCDInterpreter struct {
	LeftPadded bool
	FPadded    bool
}

var (
	BCDLeftPadded  = BCDInterpreter{LeftPadded: true}
	BCDRightPadded = BCDInterpreter{}
	BCDRightPadF   = BCDInterpreter{FPadded: true}
	BCDLeftPadF    = BCDInterpreter{LeftPadded: true, FPadded: true}
)

func (bi BCDInterpreter) padNibble() byte {
	if bi.FPadded {
		return 0x0F
	}
	return 0
}

func (bi BCDInterpreter) Interpret(data string, b []byte, offset int) error {
	n := len(data)
	if err := checkBounds(b, offset, bi.PackedLength(n)); err != nil {
		return err
	}
	if !isDigits(data) {
		return fmt.Errorf("%w: BCD value %q is not numeric", ErrEncoding, data)
	}
	start := 0
	if n%2 == 1 && bi.LeftPadded {
		start = 1
	}
	// Nibble position i covers the padded digit string.
	total := n + n%2
	for i := 0; i < total; i++ {
		var nib byte
		j := i - start
		if j < 0 || j >= n {
			nib = bi.padNibble()
		} else {
			nib = data[j] - '0'
		}
		idx := offset + i/2
		if i%2 == 0 {
			b[idx] = nib << 4
		} else {
			b[idx] |= nib
		}
	}
	return nil
}

func (bi BCDInterpreter) Uninterpret(raw []byte, offset, length int) (string, error) {
	packed := bi.PackedLength(length)
	if err := checkBounds(raw, offset, packed); err != nil {
		return "", err
	}
	start := 0
	if length%2 == 1 && bi.LeftPadded {
		start = 1
	}
	out := make([]byte, length)
	for j := 0; j < length; j++ {
		i := j + start
		v := raw[offset+i/2]
		var nib byte
		if i%2 == 0 {
			nib = v >> 4
		} else {
			nib = v & 0x0F
		}
		if nib > 9 {
			return "", fmt.Errorf("%w: invalid BCD nibble %X at offset %d", ErrEncoding, nib, offset+i/2)
		}
		out[j] = '0' + nib
	}
	return string(out), nil
}

func (BCDInterpreter) PackedLength(n int) int { return (n + 1) / 2 }

// AsciiHexInterpreter renders every byte as two uppercase hex characters. As
// a text interpreter each character of the value is one byte.
type AsciiHexInterpreter struct{}

func (AsciiHexInterpreter) Interpret(data string, b []byte, offset int) error {
	return AsciiHexInterpreter{}.InterpretBinary([]byte(data), b, offset)
}

func (AsciiHexInterpreter) Uninterpret(raw []byte, offset, length int) (string, error) {
	v, err := AsciiHexInterpreter{}.UninterpretBinary(raw, offset, length)
	return string(v), err
}

func (AsciiHexInterpreter) InterpretBinary(data []byte, b []byte, offset int) error {
	if err := checkBounds(b, offset, 2*len(data)); err != nil {
		return err
	}
	encodeHexUpper(b[offset:], data)
	return nil
}

func (AsciiHexInterpreter) UninterpretBinary(raw []byte, offset, length int) ([]byte, error) {
	if err := checkBounds(raw, offset, 2*length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	if !decodeHex(out, raw[offset:offset+2*length]) {
		return nil, fmt.Errorf("%w: malformed hex %q", ErrEncoding, raw[offset:offset+2*length])
	}
	return out, nil
}

func (AsciiHexInterpreter) PackedLength(n int) int { return 2 * n }

var ebcdic = charmap.CodePage1047

// EBCDICInterpreter translates the ASCII repertoire to code page 1047, one
// byte per character.
type EBCDICInterpreter struct{}

func (EBCDICInterpreter) Interpret(data string, b []byte, offset int) error {
	if err := checkBounds(b, offset, len(data)); err != nil {
		return err
	}
	for i := 0; i < len(data); i++ {
		c := data[i]
		e, ok := ebcdic.EncodeRune(rune(c))
		if c >= 0x80 || !ok {
			return fmt.Errorf("%w: %q has no EBCDIC mapping", ErrEncoding, c)
		}
		b[offset+i] = e
	}
	return nil
}

func (EBCDICInterpreter) Uninterpret(raw []byte, offset, length int) (string, error) {
	if err := checkBounds(raw, offset, length); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		r := ebcdic.DecodeByte(raw[offset+i])
		if r >= 0x80 {
			return "", fmt.Errorf("%w: EBCDIC byte %02X outside the ASCII repertoire", ErrEncoding, raw[offset+i])
		}
		out[i] = byte(r)
	}
	return string(out), nil
}

func (EBCDICInterpreter) PackedLength(n int) int { return n }

// EBCDICHexInterpreter renders every byte as two hex digits in EBCDIC.
type EBCDICHexInterpreter struct{}

func (EBCDICHexInterpreter) InterpretBinary(data []byte, b []byte, offset int) error {
	if err := checkBounds(b, offset, 2*len(data)); err != nil {
		return err
	}
	encodeHexUpper(b[offset:], data)
	for i := offset; i < offset+2*len(data); i++ {
		b[i], _ = ebcdic.EncodeRune(rune(b[i]))
	}
	return nil
}

func (EBCDICHexInterpreter) UninterpretBinary(raw []byte, offset, length int) ([]byte, error) {
	if err := checkBounds(raw, offset, 2*length); err != nil {
		return nil, err
	}
	ascii := make([]byte, 2*length)
	for i := range ascii {
		r := ebcdic.DecodeByte(raw[offset+i])
		if r >= 0x80 {
			return nil, fmt.Errorf("%w: EBCDIC byte %02X is not a hex digit", ErrEncoding, raw[offset+i])
		}
		ascii[i] = byte(r)
	}
	out := make([]byte, length)
	if !decodeHex(out, ascii) {
		return nil, fmt.Errorf("%w: malformed EBCDIC hex %q", ErrEncoding, ascii)
	}
	return out, nil
}

func (EBCDICHexInterpreter) PackedLength(n int) int { return 2 * n }
