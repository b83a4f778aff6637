package isopack

import (
	"fmt"
)

// FieldPackager packs and unpacks the component of a single field.
// Implementations are immutable after construction and safe for concurrent
// use.
type FieldPackager interface {
	MaxLength() int
	Description() string
	Pack(c Component) ([]byte, error)
	// Unpack decodes the field starting at offset and returns the component
	// and the number of bytes consumed.
	Unpack(fieldNumber int, b []byte, offset int) (Component, int, error)
	// MaxPackedLength is the worst-case wire size, prefix included.
	MaxPackedLength() int
}

// ComposedPackager is a field packager assembled from a datatype, an
// interpreter, a padder and a length prefixer.
type ComposedPackager struct {
	maxLength   int
	dataType    DataType
	interp      Interpreter
	binInterp   BinaryInterpreter
	padder      Padder
	prefixer    Prefixer
	description string
}

// NewFieldPackager composes a field packager. A nil padder or prefixer means
// none. For DataTypeBinary the interpreter must also work on bytes
// (LiteralInterpreter, AsciiHexInterpreter, or any BinaryInterpreter).
func NewFieldPackager(maxLength int, dt DataType, interp Interpreter, padder Padder, prefixer Prefixer, desc string) (*ComposedPackager, error) {
	if interp == nil {
		return nil, fmt.Errorf("%w: %s: no interpreter", ErrConfiguration, desc)
	}
	p := &ComposedPackager{maxLength: maxLength, dataType: dt, interp: interp}
	if dt == DataTypeBinary {
		bi, ok := binaryOf(interp)
		if !ok {
			return nil, fmt.Errorf("%w: %s: interpreter %T cannot carry binary data", ErrConfiguration, desc, interp)
		}
		p.binInterp = bi
	}
	return p.finish(padder, prefixer, desc)
}

// NewBinaryFieldPackager composes a binary field packager from a byte
// interpreter.
func NewBinaryFieldPackager(maxLength int, interp BinaryInterpreter, padder Padder, prefixer Prefixer, desc string) (*ComposedPackager, error) {
	if interp == nil {
		return nil, fmt.Errorf("%w: %s: no interpreter", ErrConfiguration, desc)
	}
	p := &ComposedPackager{maxLength: maxLength, dataType: DataTypeBinary, binInterp: interp}
	return p.finish(padder, prefixer, desc)
}

func (p *ComposedPackager) finish(padder Padder, prefixer Prefixer, desc string) (*ComposedPackager, error) {
	if p.maxLength <= 0 {
		return nil, fmt.Errorf("%w: %s: max length %d", ErrConfiguration, desc, p.maxLength)
	}
	if p.dataType == DataTypeAmount && p.maxLength < 2 {
		return nil, fmt.Errorf("%w: %s: an amount needs a sign and at least one digit", ErrConfiguration, desc)
	}
	if padder == nil {
		padder = NullPadder{}
	}
	if prefixer == nil {
		prefixer = NullPrefixer{}
	}
	p.padder = padder
	p.prefixer = prefixer
	p.description = desc
	return p, nil
}

func binaryOf(interp Interpreter) (BinaryInterpreter, bool) {
	if bi, ok := interp.(BinaryInterpreter); ok {
		return bi, true
	}
	if _, ok := interp.(LiteralInterpreter); ok {
		return LiteralBinaryInterpreter{}, true
	}
	return nil, false
}

func (p *ComposedPackager) MaxLength() int      { return p.maxLength }
func (p *ComposedPackager) Description() string { return p.description }
func (p *ComposedPackager) DataType() DataType  { return p.dataType }

func (p *ComposedPackager) fixed() bool {
	return p.prefixer.PackedLength() == 0
}

func (p *ComposedPackager) MaxPackedLength() int {
	if p.dataType == DataTypeBinary {
		return p.prefixer.PackedLength() + p.binInterp.PackedLength(p.maxLength)
	}
	if p.dataType == DataTypeAmount {
		return p.prefixer.PackedLength() + 1 + p.interp.PackedLength(p.maxLength-1)
	}
	return p.prefixer.PackedLength() + p.interp.PackedLength(p.maxLength)
}

func (p *ComposedPackager) Pack(c Component) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil component", ErrEncoding)
	}
	var (
		out []byte
		err error
	)
	switch p.dataType {
	case DataTypeBinary:
		out, err = p.packBinary(c)
	case DataTypeAmount:
		out, err = p.packAmount(c)
	default:
		out, err = p.packText(c)
	}
	if err != nil {
		return nil, fieldErr(c.Key(), p, err)
	}
	return out, nil
}

// prepare validates the logical length and pads fixed fields.
func (p *ComposedPackager) prepare(value string, maxLength int) (string, error) {
	if !p.fixed() {
		if len(value) > maxLength {
			return "", exceeded(len(value), maxLength)
		}
		return value, nil
	}
	padded, err := p.padder.Pad(value, maxLength)
	if err != nil {
		return "", err
	}
	if len(padded) != maxLength {
		return "", fmt.Errorf("%w: length %d, want %d", ErrLengthMismatch, len(padded), maxLength)
	}
	return padded, nil
}

func (p *ComposedPackager) packText(c Component) ([]byte, error) {
	value, err := componentString(c)
	if err != nil {
		return nil, err
	}
	if p.dataType == DataTypeNumeric && !isDigits(value) {
		return nil, fmt.Errorf("%w: %q is not numeric", ErrEncoding, value)
	}
	value, err = p.prepare(value, p.maxLength)
	if err != nil {
		return nil, err
	}
	pl := p.prefixer.PackedLength()
	out := make([]byte, pl+p.interp.PackedLength(len(value)))
	if err := p.prefixer.EncodeLength(len(value), out[:pl]); err != nil {
		return nil, err
	}
	if err := p.interp.Interpret(value, out, pl); err != nil {
		return nil, err
	}
	return out, nil
}

// packAmount writes the sign as one literal byte, then the digits through
// the interpreter. The prefix counts the sign.
func (p *ComposedPackager) packAmount(c Component) ([]byte, error) {
	value, err := componentString(c)
	if err != nil {
		return nil, err
	}
	if len(value) < 1 {
		return nil, fmt.Errorf("%w: amount has no sign", ErrEncoding)
	}
	sign, digits := value[0], value[1:]
	if !isDigits(digits) {
		return nil, fmt.Errorf("%w: amount %q is not numeric", ErrEncoding, value)
	}
	digits, err = p.prepare(digits, p.maxLength-1)
	if err != nil {
		return nil, err
	}
	pl := p.prefixer.PackedLength()
	out := make([]byte, pl+1+p.interp.PackedLength(len(digits)))
	if err := p.prefixer.EncodeLength(len(digits)+1, out[:pl]); err != nil {
		return nil, err
	}
	out[pl] = sign
	if err := p.interp.Interpret(digits, out, pl+1); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ComposedPackager) packBinary(c Component) ([]byte, error) {
	value, err := componentBytes(c)
	if err != nil {
		return nil, err
	}
	if p.fixed() {
		value, err = p.padder.PadBinary(value, p.maxLength)
		if err != nil {
			return nil, err
		}
		if len(value) != p.maxLength {
			return nil, fmt.Errorf("%w: length %d, want %d", ErrLengthMismatch, len(value), p.maxLength)
		}
	} else if len(value) > p.maxLength {
		return nil, exceeded(len(value), p.maxLength)
	}
	pl := p.prefixer.PackedLength()
	out := make([]byte, pl+p.binInterp.PackedLength(len(value)))
	if err := p.prefixer.EncodeLength(len(value), out[:pl]); err != nil {
		return nil, err
	}
	if err := p.binInterp.InterpretBinary(value, out, pl); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ComposedPackager) Unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	c, n, err := p.unpack(fieldNumber, b, offset)
	if err != nil {
		return nil, 0, fieldErr(fieldNumber, p, err)
	}
	return c, n, nil
}

func (p *ComposedPackager) unpack(fieldNumber int, b []byte, offset int) (Component, int, error) {
	length, err := p.prefixer.DecodeLength(b, offset)
	if err != nil {
		return nil, 0, err
	}
	if length == NoPrefix {
		length = p.maxLength
	} else if length > p.maxLength {
		return nil, 0, exceeded(length, p.maxLength)
	}
	pl := p.prefixer.PackedLength()
	pos := offset + pl

	switch p.dataType {
	case DataTypeBinary:
		v, err := p.binInterp.UninterpretBinary(b, pos, length)
		if err != nil {
			return nil, 0, err
		}
		return NewBinaryField(fieldNumber, v), pl + p.binInterp.PackedLength(length), nil
	case DataTypeAmount:
		if length < 1 {
			return nil, 0, fmt.Errorf("%w: amount has no sign", ErrEncoding)
		}
		if err := checkBounds(b, pos, 1); err != nil {
			return nil, 0, err
		}
		digits, err := p.interp.Uninterpret(b, pos+1, length-1)
		if err != nil {
			return nil, 0, err
		}
		if !isDigits(digits) {
			return nil, 0, fmt.Errorf("%w: amount digits %q are not numeric", ErrEncoding, digits)
		}
		return NewField(fieldNumber, string(b[pos])+digits), pl + 1 + p.interp.PackedLength(length-1), nil
	default:
		v, err := p.interp.Uninterpret(b, pos, length)
		if err != nil {
			return nil, 0, err
		}
		if p.dataType == DataTypeNumeric && !isDigits(v) {
			return nil, 0, fmt.Errorf("%w: %q is not numeric", ErrEncoding, v)
		}
		return NewField(fieldNumber, v), pl + p.interp.PackedLength(length), nil
	}
}
