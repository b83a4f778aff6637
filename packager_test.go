package isopack

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newISO87A(t testing.TB, opts ...PackagerOption) *MessagePackager {
	t.Helper()
	p, err := NewISO87APackager(opts...)
	require.NoError(t, err)
	return p
}

func authRequest(t testing.TB) *Message {
	t.Helper()
	return NewBuilder().
		MTI("0200").
		ProcessingCode("000000").
		Amount("000000001000").
		STAN("000001").
		Field(41, "TERM0001").
		MustBuild()
}

func TestPackAuthorizationRequest(t *testing.T) {
	p := newISO87A(t)
	m := authRequest(t)

	b, err := p.Pack(m)
	require.NoError(t, err)

	want := "0200" +
		"3020000000800000" +
		"000000" +
		"000000001000" +
		"000001" +
		"TERM0001"
	assert.Equal(t, want, string(b))
	assert.False(t, m.IsDirty(), "a successful pack attaches the bitmap")
	assert.Equal(t, []int{3, 4, 11, 41}, m.Bitmap().Fields())

	got, n, err := p.Unpack(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	for _, f := range []int{0, 3, 4, 11, 41} {
		want, _ := m.GetString(f)
		have, err := got.GetString(f)
		require.NoError(t, err, "field %d", f)
		assert.Equal(t, want, have, "field %d", f)
	}
	assert.Equal(t, []int{0, 3, 4, 11, 41}, got.Fields())
}

func TestPackWithPANAndSecondaryBitmap(t *testing.T) {
	p := newISO87A(t)
	m := NewBuilder().MTI("0800").PAN("4111111111111111").Field(70, "301").MustBuild()

	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.Equal(t, "0800"+"C000000000000000"+"0400000000000000"+"164111111111111111"+"301", string(b))

	got, _, err := p.Unpack(b)
	require.NoError(t, err)
	pan, err := got.GetString(2)
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", pan)
	assert.True(t, got.Has(70))
	assert.False(t, got.Has(1), "control bits are not fields")
}

func TestPackFailureLeavesMessageUntouched(t *testing.T) {
	p := newISO87A(t)
	m := authRequest(t)
	require.NoError(t, m.SetField(44, strings.Repeat("X", 26)))
	before := m.String()

	_, err := p.Pack(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLengthExceeded)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 44, fe.Field)
	assert.Equal(t, before, m.String())
	assert.True(t, m.IsDirty())
}

func TestPackBestEffort(t *testing.T) {
	p := newISO87A(t, WithBestEffortPack())
	m := authRequest(t)
	require.NoError(t, m.SetField(3, "ABCDEF"))

	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.Equal(t, "0200"+"1020000000800000"+"000000001000"+"000001"+"TERM0001", string(b))
	assert.True(t, m.IsDirty(), "a partial pack does not attach its bitmap")
}

func TestPackRejectsUnknownField(t *testing.T) {
	p, err := NewMessagePackager(map[int]FieldPackager{
		0: NumericASCIIPackager{Length: 4},
		1: mustBitmap(t, BitmapHex, 64),
		3: NumericASCIIPackager{Length: 6},
	})
	require.NoError(t, err)

	m := NewBuilder().MTI("0200").Field(4, "1").MustBuild()
	_, err = p.Pack(m)
	assert.ErrorIs(t, err, ErrConfiguration)

	m = NewBuilder().MTI("0200").Field(65, "1").MustBuild()
	_, err = p.Pack(m)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func mustBitmap(t testing.TB, enc BitmapEncoding, bits int) *BitmapPackager {
	t.Helper()
	bp, err := NewBitmapPackager(enc, bits, BitmapExtension)
	require.NoError(t, err)
	return bp
}

func TestHeader(t *testing.T) {
	p := newISO87A(t, WithHeaderLength(4))
	m := authRequest(t)

	_, err := p.Pack(m)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	m.SetHeader([]byte("ISO1"))
	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "ISO10200"))

	got, _, err := p.Unpack(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("ISO1"), got.Header())

	_, _, err = p.Unpack([]byte("IS"))
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestUnpackTruncatedMessage(t *testing.T) {
	p := newISO87A(t)
	b, err := p.Pack(authRequest(t))
	require.NoError(t, err)

	_, _, err = p.Unpack(b[:len(b)-3])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 41, fe.Field)
}

func TestUnpackTrailingBytes(t *testing.T) {
	p := newISO87A(t)
	b, err := p.Pack(authRequest(t))
	require.NoError(t, err)

	_, n, err := p.Unpack(append(b, "XYZ"...))
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
}

func TestPositionalPackager(t *testing.T) {
	p, err := NewMessagePackager(map[int]FieldPackager{
		1: NumericASCIIPackager{Length: 2},
		2: VarCharPackager{Digits: 2, Max: 10},
		3: FixedBinaryPackager{Length: 2},
	}, WithoutBitmap())
	require.NoError(t, err)

	m := NewMessage()
	require.NoError(t, m.SetField(1, "7"))
	require.NoError(t, m.SetField(2, "abc"))
	require.NoError(t, m.SetBinary(3, []byte{0xCA, 0xFE}))

	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("0703abc"), 0xCA, 0xFE), b)

	got, n, err := p.Unpack(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, []int{1, 2, 3}, got.Fields())
}

func TestFixedBitmapConvention(t *testing.T) {
	bp, err := NewBitmapPackager(BitmapBinary, 64, BitmapFixed)
	require.NoError(t, err)
	p, err := NewMessagePackager(map[int]FieldPackager{
		BitmapKey: bp,
		1:         NumericASCIIPackager{Length: 2},
		3:         NumericASCIIPackager{Length: 2},
	}, WithBitmapField(BitmapKey))
	require.NoError(t, err)

	m := NewMessage()
	require.NoError(t, m.SetField(1, "11"))
	require.NoError(t, m.SetField(3, "33"))
	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0xA0, 0, 0, 0, 0, 0, 0, 0}, "1133"...), b)

	got, _, err := p.Unpack(b)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got.Fields())
}

func TestPackagerConfigurationErrors(t *testing.T) {
	_, err := NewMessagePackager(nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewMessagePackager(map[int]FieldPackager{1: NumericASCIIPackager{Length: 2}})
	assert.ErrorIs(t, err, ErrConfiguration, "field 1 must hold a bitmap packager")

	_, err = NewMessagePackager(map[int]FieldPackager{3: NumericASCIIPackager{Length: 2}}, WithoutBitmap(), WithHeaderLength(-1))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPackagerValidatorAccumulates(t *testing.T) {
	p := newISO87A(t, WithValidator(NewISO87Validator(false)))
	m := authRequest(t)
	require.NoError(t, m.SetField(13, "1399"))

	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.Empty(t, m.ValidationErrors(), "the caller's message is not annotated")

	got, _, err := p.Unpack(b)
	require.NoError(t, err)
	errs := got.ValidationErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, 13, errs[0].Field)
	assert.Equal(t, KindFormat, errs[0].Kind)
}

func TestPackagerValidatorBreaks(t *testing.T) {
	p := newISO87A(t, WithValidator(NewISO87Validator(true)))
	m := authRequest(t)
	require.NoError(t, m.SetField(13, "1399"))

	_, err := p.Pack(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 13, ve.Field)
}

func TestCompositeField(t *testing.T) {
	mapper, err := NewDecimalTagMapper(2)
	require.NoError(t, err)
	inner, err := NewTaggedPackager(2, 3, mapper)
	require.NoError(t, err)
	composite, err := NewCompositePackager(VarCharPackager{Digits: 3, Max: 999}, inner)
	require.NoError(t, err)

	base := newISO87A(t)
	fields := make(map[int]FieldPackager)
	for _, n := range base.FieldNumbers() {
		fields[n] = base.FieldPackager(n)
	}
	fields[48] = composite
	p, err := NewMessagePackager(fields)
	require.NoError(t, err)

	m := NewBuilder().MTI("0100").STAN("000042").Sub(48, func(b *Builder) {
		b.Field(1, "AB").Field(12, "XYZ")
	}).MustBuild()

	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(b), "015"+"01002AB"+"12003XYZ"), "got %s", b)

	got, _, err := p.Unpack(b)
	require.NoError(t, err)
	sub, err := got.GetMessage(48)
	require.NoError(t, err)
	assert.Equal(t, 48, sub.Key())
	v, err := sub.GetString(12)
	require.NoError(t, err)
	assert.Equal(t, "XYZ", v)

	_, err = composite.Pack(NewField(48, "flat"))
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestMaxPackedLength(t *testing.T) {
	p, err := NewMessagePackager(map[int]FieldPackager{
		0: NumericASCIIPackager{Length: 4},
		1: mustBitmap(t, BitmapBinary, 64),
		2: VarCharPackager{Digits: 2, Max: 19},
	}, WithHeaderLength(2))
	require.NoError(t, err)
	assert.Equal(t, 2+4+8+21, p.MaxPackedLength())
}

// iso87Values draws a valid value for a field of the ISO 8583:1987 table.
func iso87Values(t *rapid.T, n int) Component {
	f := iso87Fields[n]
	label := fmt.Sprintf("field%d", n)
	switch f.kind {
	case iso87N:
		return NewField(n, rapid.StringMatching(fmt.Sprintf(`[0-9]{%d}`, f.length)).Draw(t, label))
	case iso87AN:
		return NewField(n, rapid.StringMatching(fmt.Sprintf(`[A-Z0-9]{%d}`, f.length)).Draw(t, label))
	case iso87LLN:
		return NewField(n, rapid.StringMatching(fmt.Sprintf(`[0-9]{0,%d}`, f.length)).Draw(t, label))
	case iso87LL, iso87LLL:
		return NewField(n, rapid.StringMatching(fmt.Sprintf(`[ -~]{0,%d}`, min(f.length, 40))).Draw(t, label))
	case iso87B:
		return NewBinaryField(n, rapid.SliceOfN(rapid.Byte(), f.length, f.length).Draw(t, label))
	case iso87LLLB:
		return NewBinaryField(n, rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, label))
	default:
		sign := rapid.SampledFrom([]string{"C", "D"}).Draw(t, label+"sign")
		return NewField(n, sign+rapid.StringMatching(fmt.Sprintf(`[0-9]{%d}`, f.length-1)).Draw(t, label))
	}
}

func TestISO87RoundTripProperty(t *testing.T) {
	packagers := map[string]*MessagePackager{}
	var err error
	packagers["ascii"], err = NewISO87APackager()
	require.NoError(t, err)
	packagers["bcd"], err = NewISO87BPackager()
	require.NoError(t, err)

	numbers := make([]int, 0, len(iso87Fields))
	for n := range iso87Fields {
		if n == 65 {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for name, p := range packagers {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				m := NewMessage()
				if err := m.SetMTI(rapid.StringMatching(`[0-9]{4}`).Draw(t, "mti")); err != nil {
					t.Fatal(err)
				}
				chosen := rapid.SliceOfNDistinct(rapid.SampledFrom(numbers), 1, 12, rapid.ID[int]).Draw(t, "fields")
				for _, n := range chosen {
					if err := m.Set(iso87Values(t, n)); err != nil {
						t.Fatal(err)
					}
				}

				b, err := p.Pack(m)
				if err != nil {
					t.Fatalf("pack: %v", err)
				}
				got, n, err := p.Unpack(b)
				if err != nil {
					t.Fatalf("unpack %X: %v", b, err)
				}
				if n != len(b) {
					t.Fatalf("consumed %d of %d", n, len(b))
				}
				if diff := cmp.Diff(dumpFields(m), dumpFields(got)); diff != "" {
					t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		})
	}
}

// dumpFields renders each field's value for comparison.
func dumpFields(m *Message) map[int]string {
	out := make(map[int]string)
	for _, n := range m.Fields() {
		b, err := componentBytes(m.Get(n))
		if err != nil {
			out[n] = "error: " + err.Error()
			continue
		}
		out[n] = fmt.Sprintf("%X", b)
	}
	return out
}
