package isopack

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustField takes a packager constructor call directly and panics on a
// construction error.
func mustField(fp *ComposedPackager, err error) *ComposedPackager {
	if err != nil {
		panic(err)
	}
	return fp
}

func TestWireExamples(t *testing.T) {
	numeric := mustField(NewFieldPackager(4, DataTypeNumeric, LiteralInterpreter{}, ZeroPadder, nil, "n-4"))
	llchar := mustField(NewFieldPackager(25, DataTypeString, LiteralInterpreter{}, nil, PrefixLL, "LL ans-25"))
	bcd := mustField(NewFieldPackager(4, DataTypeNumeric, BCDLeftPadded, ZeroPadder, nil, "bcd n-4"))
	hexbin := mustField(NewBinaryFieldPackager(2, AsciiHexInterpreter{}, nil, nil, "hex b-2"))

	tests := []struct {
		name string
		fp   FieldPackager
		in   Component
		want []byte
	}{
		{"fixed ascii numeric", numeric, NewField(3, "42"), []byte{0x30, 0x30, 0x34, 0x32}},
		{"legacy fixed ascii numeric", NumericASCIIPackager{Length: 4}, NewField(3, "42"), []byte("0042")},
		{"ascii LL char", llchar, NewField(44, "AB"), []byte{0x30, 0x32, 0x41, 0x42}},
		{"legacy ascii LL char", VarCharPackager{Digits: 2, Max: 25}, NewField(44, "AB"), []byte("02AB")},
		{"bcd fixed numeric", bcd, NewField(3, "1234"), []byte{0x12, 0x34}},
		{"legacy bcd fixed numeric", BCDNumericPackager{Length: 4}, NewField(3, "1234"), []byte{0x12, 0x34}},
		{"hex binary", hexbin, NewBinaryField(52, []byte{0xDE, 0xAD}), []byte("DEAD")},
		{"legacy hex binary", HexBinaryPackager{Length: 2}, NewBinaryField(52, []byte{0xDE, 0xAD}), []byte("DEAD")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fp.Pack(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			c, n, err := tt.fp.Unpack(tt.in.Key(), got, 0)
			require.NoError(t, err)
			assert.Equal(t, len(got), n)
			assert.Equal(t, tt.in.Key(), c.Key())
		})
	}
}

func TestVariableLengthLimit(t *testing.T) {
	fp := mustField(NewFieldPackager(25, DataTypeString, LiteralInterpreter{}, nil, PrefixLL, "LL ans-25"))

	ok := strings.Repeat("A", 25)
	b, err := fp.Pack(NewField(44, ok))
	require.NoError(t, err)
	assert.Equal(t, "25"+ok, string(b))

	_, err = fp.Pack(NewField(44, ok+"A"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLengthExceeded)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 44, fe.Field)
	assert.Equal(t, "LL ans-25", fe.Packager)

	// A prefix announcing more than the maximum is rejected on the way in.
	_, _, err = fp.Unpack(44, []byte("26"+ok+"A"), 0)
	assert.ErrorIs(t, err, ErrLengthExceeded)
}

func TestFixedFieldPadding(t *testing.T) {
	an := mustField(NewFieldPackager(8, DataTypeString, LiteralInterpreter{}, SpacePadder, nil, "ans-8"))
	b, err := an.Pack(NewField(41, "T1"))
	require.NoError(t, err)
	assert.Equal(t, "T1      ", string(b))

	c, n, err := an.Unpack(41, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "T1      ", c.Value())

	_, err = an.Pack(NewField(41, "TERMINAL1"))
	assert.ErrorIs(t, err, ErrLengthExceeded)

	nopad := mustField(NewFieldPackager(8, DataTypeString, LiteralInterpreter{}, nil, nil, "ans-8"))
	_, err = nopad.Pack(NewField(41, "T1"))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	trunc := mustField(NewFieldPackager(4, DataTypeString, LiteralInterpreter{}, RightTPadder{Char: ' '}, nil, "ans-4"))
	b, err = trunc.Pack(NewField(43, "ABCDEF"))
	require.NoError(t, err)
	assert.Equal(t, "ABCD", string(b))
}

func TestNumericFieldRejectsText(t *testing.T) {
	fp := mustField(NewFieldPackager(6, DataTypeNumeric, LiteralInterpreter{}, ZeroPadder, nil, "n-6"))
	_, err := fp.Pack(NewField(3, "12A"))
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = NumericASCIIPackager{Length: 6}.Pack(NewField(3, "12A"))
	assert.ErrorIs(t, err, ErrEncoding)

	fixed := mustField(NewFieldPackager(4, DataTypeNumeric, LiteralInterpreter{}, ZeroPadder, nil, "n-4"))
	_, _, err = fixed.Unpack(3, []byte("12A4"), 0)
	assert.ErrorIs(t, err, ErrEncoding)

	ll := mustField(NewFieldPackager(19, DataTypeNumeric, LiteralInterpreter{}, nil, PrefixLL, "LL n-19"))
	_, _, err = ll.Unpack(2, []byte("044111"), 0)
	require.NoError(t, err)
	_, _, err = ll.Unpack(2, []byte("04411 "), 0)
	assert.ErrorIs(t, err, ErrEncoding)

	amount := mustField(NewFieldPackager(9, DataTypeAmount, LiteralInterpreter{}, ZeroPadder, nil, "x+n-9"))
	_, _, err = amount.Unpack(28, []byte("C0000010X"), 0)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestVariableBCDField(t *testing.T) {
	fp := mustField(NewFieldPackager(19, DataTypeNumeric, BCDRightPadded, nil, BCDPrefixer{Digits: 2}, "LL bcd n-19"))
	b, err := fp.Pack(NewField(2, "12345"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x12, 0x34, 0x50}, b)

	c, n, err := fp.Unpack(2, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "12345", c.Value())
}

func TestAmountField(t *testing.T) {
	fp := mustField(NewFieldPackager(9, DataTypeAmount, LiteralInterpreter{}, ZeroPadder, nil, "x+n-9"))
	b, err := fp.Pack(NewField(28, "C100"))
	require.NoError(t, err)
	assert.Equal(t, "C00000100", string(b))

	c, n, err := fp.Unpack(28, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "C00000100", c.Value())

	bcd := AmountBCDPackager{Length: 9}
	b, err = bcd.Pack(NewField(28, "D100"))
	require.NoError(t, err)
	assert.Equal(t, []byte{'D', 0x00, 0x00, 0x01, 0x00}, b)

	c, n, err = bcd.Unpack(28, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "D00000100", c.Value())

	_, err = bcd.Pack(NewField(28, "X100"))
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestBinaryPrefixedField(t *testing.T) {
	fp := mustField(NewBinaryFieldPackager(300, LiteralBinaryInterpreter{}, nil, BinaryPrefixer{Bytes: 2}, "BB b-300"))
	data := []byte{1, 2, 3}
	b, err := fp.Pack(NewBinaryField(63, data))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x03, 1, 2, 3}, b)

	c, n, err := fp.Unpack(63, append([]byte{0xFF}, b...), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, data, c.Value())
}

func TestUnpackTruncated(t *testing.T) {
	fp := mustField(NewFieldPackager(25, DataTypeString, LiteralInterpreter{}, nil, PrefixLL, "LL ans-25"))
	_, _, err := fp.Unpack(44, []byte("05AB"), 0)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	_, _, err = FixedBinaryPackager{Length: 8}.Unpack(52, []byte{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestFieldPackagerConfigurationErrors(t *testing.T) {
	_, err := NewFieldPackager(0, DataTypeString, LiteralInterpreter{}, nil, nil, "bad")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewFieldPackager(1, DataTypeAmount, LiteralInterpreter{}, nil, nil, "bad")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewFieldPackager(4, DataTypeBinary, BCDLeftPadded, nil, nil, "bad")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPrefixers(t *testing.T) {
	tests := []struct {
		name string
		p    Prefixer
		n    int
		want []byte
	}{
		{"ascii", PrefixLLL, 42, []byte("042")},
		{"bcd odd digits", BCDPrefixer{Digits: 3}, 123, []byte{0x01, 0x23}},
		{"binary", BinaryPrefixer{Bytes: 1}, 200, []byte{0xC8}},
		{"hex", HexPrefixer{Digits: 2}, 200, []byte("C8")},
		{"ebcdic", EBCDICPrefixer{Digits: 2}, 12, []byte{0xF1, 0xF2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, tt.p.PackedLength())
			require.NoError(t, tt.p.EncodeLength(tt.n, b))
			assert.Equal(t, tt.want, b)

			n, err := tt.p.DecodeLength(b, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)
		})
	}

	assert.ErrorIs(t, PrefixLL.EncodeLength(100, make([]byte, 2)), ErrLengthExceeded)
	assert.ErrorIs(t, BinaryPrefixer{Bytes: 1}.EncodeLength(256, make([]byte, 1)), ErrLengthExceeded)

	n, err := NullPrefixer{}.DecodeLength(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, NoPrefix, n)
}
