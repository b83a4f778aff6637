package isopack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostConfig(t *testing.T) {
	data, err := os.ReadFile("testdata/host.json")
	require.NoError(t, err)

	var got PackagerConfig
	require.NoError(t, json.Unmarshal(data, &got))

	want := PackagerConfig{
		Name:   "host",
		Bitmap: &BitmapConfig{Encoding: BitmapBinary, MaxBits: 64},
		Fields: map[int]FieldConfig{
			0:  {Class: "bcd-numeric", Length: 4, PadLeft: true},
			2:  {Length: 19, DataType: DataTypeNumeric, Interpreter: "bcd-right", Prefixer: "BCD-LL"},
			3:  {Class: "bcd-numeric", Length: 6, PadLeft: true},
			4:  {Class: "bcd-numeric", Length: 12, PadLeft: true},
			11: {Class: "bcd-numeric", Length: 6, PadLeft: true},
			28: {Class: "amount-bcd", Length: 9},
			37: {Length: 12, Interpreter: "ebcdic", Padder: "right-space"},
			39: {Length: 2, Padder: "right-space"},
			52: {Class: "fixed-binary", Length: 8},
			63: {Length: 99, Prefixer: "BB", DataType: DataTypeBinary},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parsed config mismatch (-want +got):\n%s", diff)
	}
}

func TestHostConfigRoundTrip(t *testing.T) {
	codec, err := LoadPackagerFile("testdata/host.json")
	require.NoError(t, err)
	p, ok := codec.(*MessagePackager)
	require.True(t, ok)
	assert.Equal(t, "host", p.Description())
	assert.Equal(t, 64, p.MaxField())

	pin := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	m := NewBuilder().
		MTI("0200").
		PAN("4111111111111111").
		ProcessingCode("000000").
		Amount("000000001000").
		STAN("000001").
		Field(28, "C100").
		Field(37, "RRN1").
		Field(39, "00").
		Binary(52, pin).
		Binary(63, []byte("private")).
		MustBuild()

	b, err := p.Pack(m)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x70, 0x20}, b[:4])

	got, n, err := p.Unpack(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)

	want := map[int]string{
		0:  "0200",
		2:  "4111111111111111",
		3:  "000000",
		4:  "000000001000",
		11: "000001",
		28: "C00000100",
		37: "RRN1        ",
		39: "00",
	}
	for f, v := range want {
		have, err := got.GetString(f)
		require.NoError(t, err, "field %d", f)
		assert.Equal(t, v, have, "field %d", f)
	}
	raw, err := got.GetBytes(52)
	require.NoError(t, err)
	assert.Equal(t, pin, raw)
	raw, err = got.GetBytes(63)
	require.NoError(t, err)
	assert.Equal(t, []byte("private"), raw)
}

func posMessage(t *testing.T) *Message {
	t.Helper()
	return NewBuilder().
		MTI("0200").
		Header([]byte("H1")).
		PAN("4111111111111111").
		ProcessingCode("000000").
		Amount("1000").
		STAN("000001").
		Field(41, "T1").
		Sub(48, func(b *Builder) {
			b.Field(1, "AB").Field(12, "XYZ")
		}).
		Sub(55, func(b *Builder) {
			b.Binary(0x82, []byte{0x19, 0x80}).Binary(0x9F02, []byte{0, 0, 0, 0, 0x10, 0})
		}).
		MustBuild()
}

func TestPosConfigRoundTrip(t *testing.T) {
	codec, err := LoadPackagerFile("testdata/pos.yaml")
	require.NoError(t, err)
	p := codec.(*MessagePackager)
	assert.Equal(t, "pos", p.Description())

	b, err := p.Pack(posMessage(t))
	require.NoError(t, err)
	assert.Equal(t, "H10200", string(b[:6]))
	assert.Contains(t, string(b), "015"+"01002AB12003XYZ")
	assert.Contains(t, string(b), "013"+"82021980"+"9F0206000000001000")

	got, _, err := p.Unpack(b)
	require.NoError(t, err)
	assert.Empty(t, got.ValidationErrors())

	amount, err := got.GetString(4)
	require.NoError(t, err)
	assert.Equal(t, "000000001000", amount)

	tlv, err := got.GetMessage(48)
	require.NoError(t, err)
	v, err := tlv.GetString(12)
	require.NoError(t, err)
	assert.Equal(t, "XYZ", v)

	emv, err := got.GetMessage(55)
	require.NoError(t, err)
	raw, err := emv.GetBytes(0x82)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x19, 0x80}, raw)
}

func TestPosConfigValidator(t *testing.T) {
	codec, err := LoadPackagerFile("testdata/pos.yaml")
	require.NoError(t, err)

	m := posMessage(t)
	m.Unset(11)
	b, err := codec.Pack(m)
	require.NoError(t, err)

	got, _, err := codec.Unpack(b)
	require.NoError(t, err)
	errs := got.ValidationErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, 11, errs[0].Field)
	assert.Equal(t, KindMandatory, errs[0].Kind)
}

func TestTaggedConfig(t *testing.T) {
	codec, err := LoadPackagerFromYAML([]byte(`
name: private
kind: tagged
tagged:
  tag_size: 4
  len_size: 2
  tags: {1: DF01, 2: DF02}
fields:
  2: {class: numeric-ascii, length: 4}
`))
	require.NoError(t, err)

	m := NewMessage()
	require.NoError(t, m.SetField(1, "hi"))
	require.NoError(t, m.SetField(2, "7"))
	b, err := codec.Pack(m)
	require.NoError(t, err)
	assert.Equal(t, "DF0102hi"+"DF020007", string(b))
}

func TestBERTLVConfig(t *testing.T) {
	codec, err := LoadPackagerFromJSON([]byte(`{"kind": "ber-tlv", "max_depth": 1}`))
	require.NoError(t, err)
	_, ok := codec.(*BERTLVPackager)
	assert.True(t, ok)
}

func TestConfigErrorsAreJoined(t *testing.T) {
	_, err := LoadPackagerFromJSON([]byte(`{
		"name": "bad",
		"bitmap": {"encoding": "hex"},
		"fields": {
			"2": {"length": 0},
			"3": {"class": "nope", "length": 6},
			"4": {"length": 4, "interpreter": "klingon"}
		}
	}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	for _, path := range []string{"bad/field 2", "bad/field 3", "bad/field 4"} {
		assert.Contains(t, err.Error(), path)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bitmap collides with a field", "bitmap: {encoding: hex}\nfields:\n  1: {length: 2}\n"},
		{"unknown kind", "kind: xml\n"},
		{"bad bitmap size", "bitmap: {encoding: binary, max_bits: 32}\nfields:\n  2: {length: 2}\n"},
		{"unknown padder", "fields:\n  2: {length: 2, padder: middle}\n"},
		{"unknown prefixer", "fields:\n  2: {length: 2, prefixer: LLLLLLL}\n"},
		{"tagged without settings", "kind: tagged\n"},
		{"bad regex", "fields:\n  2: {length: 2}\nvalidator:\n  fields:\n    2: {regex: '['}\n"},
		{"bad date format", "fields:\n  2: {length: 2}\nvalidator:\n  fields:\n    2: {format: DDMM}\n"},
		{"varchar digits", "fields:\n  2: {class: varchar, length: 9, digits: 4}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPackagerFromYAML([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	_, err := LoadPackagerFromYAML([]byte("fields:\n  2: {length: 2, type: weird}\n"))
	assert.Error(t, err)
}

func TestLoadPackagerFileExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packager.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = 'x'"), 0o600))
	_, err := LoadPackagerFile(path)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = LoadPackagerFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
