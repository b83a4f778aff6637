package isopack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBitmapPackagerPrimaryOnly(t *testing.T) {
	bp, err := NewBitmapPackager(BitmapBinary, 128, BitmapExtension)
	require.NoError(t, err)

	b, err := bp.Pack(BitmapOf(2, 3, 11))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x20, 0, 0, 0, 0, 0, 0}, b)

	c, n, err := bp.Unpack(BitmapKey, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []int{2, 3, 11}, bp.DataFields(c.(*Bitmap)))
}

func TestBitmapPackagerSecondary(t *testing.T) {
	bp, err := NewBitmapPackager(BitmapBinary, 128, BitmapExtension)
	require.NoError(t, err)

	in := BitmapOf(3, 70)
	b, err := bp.Pack(in)
	require.NoError(t, err)
	require.Len(t, b, 16)
	assert.Equal(t, byte(0xA0), b[0])
	assert.Equal(t, byte(0x04), b[8])
	assert.False(t, in.Test(1), "pack must not modify its input")

	c, n, err := bp.Unpack(BitmapKey, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	bm := c.(*Bitmap)
	assert.True(t, bm.Test(1))
	assert.Equal(t, []int{3, 70}, bp.DataFields(bm))
}

func TestBitmapPackagerHex(t *testing.T) {
	bp, err := NewBitmapPackager(BitmapHex, 64, BitmapExtension)
	require.NoError(t, err)

	b, err := bp.Pack(BitmapOf(2, 3, 11))
	require.NoError(t, err)
	assert.Equal(t, "6020000000000000", string(b))

	_, err = bp.Pack(BitmapOf(2, 65))
	assert.ErrorIs(t, err, ErrLengthExceeded)

	_, _, err = bp.Unpack(BitmapKey, []byte("60200000"), 0)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestBitmapPackagerEBCDICHex(t *testing.T) {
	bp, err := NewBitmapPackager(BitmapEBCDICHex, 64, BitmapExtension)
	require.NoError(t, err)

	b, err := bp.Pack(BitmapOf(2, 3))
	require.NoError(t, err)
	require.Len(t, b, 16)
	assert.Equal(t, []byte{0xF6, 0xF0}, b[:2])

	c, _, err := bp.Unpack(BitmapKey, b, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, bp.DataFields(c.(*Bitmap)))
}

func TestBitmapPackagerFixedConvention(t *testing.T) {
	bp, err := NewBitmapPackager(BitmapBinary, 128, BitmapFixed)
	require.NoError(t, err)

	b, err := bp.Pack(BitmapOf(1, 2))
	require.NoError(t, err)
	require.Len(t, b, 16, "a fixed bitmap always has its full size")
	assert.Equal(t, byte(0xC0), b[0])

	c, n, err := bp.Unpack(BitmapKey, b, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, []int{1, 2}, bp.DataFields(c.(*Bitmap)))
}

func TestBitmapPackagerRejectsBadSize(t *testing.T) {
	_, err := NewBitmapPackager(BitmapBinary, 96, BitmapExtension)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBitmapRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxBits := rapid.SampledFrom([]int{64, 128, 192}).Draw(t, "maxBits")
		enc := rapid.SampledFrom([]BitmapEncoding{BitmapBinary, BitmapHex, BitmapEBCDICHex}).Draw(t, "encoding")
		bp, err := NewBitmapPackager(enc, maxBits, BitmapExtension)
		if err != nil {
			t.Fatal(err)
		}
		fields := rapid.SliceOfNDistinct(rapid.IntRange(2, maxBits), 0, 20, rapid.ID[int]).Draw(t, "fields")
		in := NewBitmap()
		for _, n := range fields {
			if n == 65 {
				continue
			}
			in.Set(n)
		}

		b, err := bp.Pack(in)
		if err != nil {
			t.Fatalf("pack %v: %v", in.Fields(), err)
		}
		c, n, err := bp.Unpack(BitmapKey, b, 0)
		if err != nil {
			t.Fatalf("unpack %X: %v", b, err)
		}
		if n != len(b) {
			t.Fatalf("consumed %d of %d bytes", n, len(b))
		}
		got := bp.DataFields(c.(*Bitmap))
		want := bp.DataFields(in)
		if len(got) != len(want) {
			t.Fatalf("fields %v, want %v", got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("fields %v, want %v", got, want)
			}
		}
	})
}

func TestBitmapComponent(t *testing.T) {
	bm := BitmapOf(2, 3, 70)
	assert.Equal(t, 70, bm.Highest())
	assert.Equal(t, []int{2, 3, 70}, bm.Fields())

	raw, err := bm.Bytes()
	require.NoError(t, err)
	assert.Len(t, raw, 16)
	assert.Equal(t, byte(0x60), raw[0])

	clone := bm.Clone()
	clone.Clear(70)
	assert.True(t, bm.Test(70))
	assert.False(t, bm.Equal(clone))

	require.NoError(t, clone.SetValue([]int{2, 3, 70}))
	assert.True(t, bm.Equal(clone))
	assert.Error(t, clone.SetValue("nope"))
}
