package isopack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func interpret(t *testing.T, i Interpreter, s string) []byte {
	t.Helper()
	b := make([]byte, i.PackedLength(len(s)))
	require.NoError(t, i.Interpret(s, b, 0))
	return b
}

func TestBCDInterpreterPadding(t *testing.T) {
	tests := []struct {
		name   string
		interp BCDInterpreter
		in     string
		want   []byte
	}{
		{"even", BCDRightPadded, "1234", []byte{0x12, 0x34}},
		{"left padded odd", BCDLeftPadded, "123", []byte{0x01, 0x23}},
		{"right padded odd", BCDRightPadded, "123", []byte{0x12, 0x30}},
		{"right F padded odd", BCDRightPadF, "123", []byte{0x12, 0x3F}},
		{"left F padded odd", BCDLeftPadF, "123", []byte{0xF1, 0x23}},
		{"empty", BCDLeftPadded, "", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interpret(t, tt.interp, tt.in)
			assert.Equal(t, tt.want, got)

			back, err := tt.interp.Uninterpret(got, 0, len(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestBCDInterpreterRejectsBadInput(t *testing.T) {
	err := BCDRightPadded.Interpret("12A4", make([]byte, 2), 0)
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = BCDRightPadded.Uninterpret([]byte{0x1A}, 0, 2)
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = BCDRightPadded.Uninterpret([]byte{0x12}, 0, 4)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestAsciiHexInterpreter(t *testing.T) {
	out := make([]byte, 4)
	require.NoError(t, AsciiHexInterpreter{}.InterpretBinary([]byte{0xDE, 0xAD}, out, 0))
	assert.Equal(t, "DEAD", string(out))

	v, err := AsciiHexInterpreter{}.UninterpretBinary([]byte("dead"), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, v)

	_, err = AsciiHexInterpreter{}.UninterpretBinary([]byte("DEXD"), 0, 2)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestEBCDICInterpreter(t *testing.T) {
	got := interpret(t, EBCDICInterpreter{}, "A1 ")
	assert.Equal(t, []byte{0xC1, 0xF1, 0x40}, got)

	back, err := EBCDICInterpreter{}.Uninterpret(got, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "A1 ", back)

	err = EBCDICInterpreter{}.Interpret("é", make([]byte, 2), 0)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestEBCDICHexInterpreter(t *testing.T) {
	out := make([]byte, 4)
	require.NoError(t, EBCDICHexInterpreter{}.InterpretBinary([]byte{0x0A, 0x19}, out, 0))
	assert.Equal(t, []byte{0xF0, 0xC1, 0xF1, 0xF9}, out)

	back, err := EBCDICHexInterpreter{}.UninterpretBinary(out, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0A, 0x19}, back)
}

func TestInterpreterOffsets(t *testing.T) {
	b := []byte("XX")
	b = append(b, make([]byte, 3)...)
	require.NoError(t, LiteralInterpreter{}.Interpret("abc", b, 2))
	assert.Equal(t, "XXabc", string(b))

	err := LiteralInterpreter{}.Interpret("abcd", b, 2)
	assert.True(t, errors.Is(err, ErrTruncatedInput))
}

func TestBCDRoundTripProperty(t *testing.T) {
	variants := []BCDInterpreter{BCDLeftPadded, BCDRightPadded, BCDLeftPadF, BCDRightPadF}
	rapid.Check(t, func(t *rapid.T) {
		digits := rapid.StringMatching(`[0-9]{0,24}`).Draw(t, "digits")
		interp := variants[rapid.IntRange(0, len(variants)-1).Draw(t, "variant")]

		b := make([]byte, interp.PackedLength(len(digits)))
		if err := interp.Interpret(digits, b, 0); err != nil {
			t.Fatalf("interpret %q: %v", digits, err)
		}
		back, err := interp.Uninterpret(b, 0, len(digits))
		if err != nil {
			t.Fatalf("uninterpret %X: %v", b, err)
		}
		if back != digits {
			t.Fatalf("round trip %q -> %X -> %q", digits, b, back)
		}
	})
}

func TestHexRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "data")
		for _, interp := range []BinaryInterpreter{AsciiHexInterpreter{}, EBCDICHexInterpreter{}, LiteralBinaryInterpreter{}} {
			b := make([]byte, interp.PackedLength(len(data)))
			if err := interp.InterpretBinary(data, b, 0); err != nil {
				t.Fatalf("%T interpret: %v", interp, err)
			}
			back, err := interp.UninterpretBinary(b, 0, len(data))
			if err != nil {
				t.Fatalf("%T uninterpret: %v", interp, err)
			}
			if string(back) != string(data) {
				t.Fatalf("%T round trip %X -> %X", interp, data, back)
			}
		}
	})
}

func TestEBCDICRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[ -~]{0,32}`).Draw(t, "text")
		b := make([]byte, len(s))
		if err := (EBCDICInterpreter{}).Interpret(s, b, 0); err != nil {
			t.Fatalf("interpret %q: %v", s, err)
		}
		back, err := EBCDICInterpreter{}.Uninterpret(b, 0, len(s))
		if err != nil {
			t.Fatalf("uninterpret: %v", err)
		}
		if back != s {
			t.Fatalf("round trip %q -> %q", s, back)
		}
	})
}
