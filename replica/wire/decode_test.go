package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFixedIntRoundTrip checks that for signed/unsigned N-byte integers
// in range, decode(encode_le(X)) == X.
func TestFixedIntRoundTrip(t *testing.T) {
	cases := []struct {
		width  int
		signed bool
		value  int64
	}{
		{1, false, 200},
		{1, true, -100},
		{2, false, 60000},
		{2, true, -30000},
		{3, false, 12_000_000},
		{3, true, -8_000_000},
		{4, false, 4_000_000_000},
		{4, true, -2_000_000_000},
		{8, false, 9_000_000_000_000_000_000},
		{8, true, -4_000_000_000_000_000_000},
	}
	for _, c := range cases {
		buf := make([]byte, c.width)
		uv := uint64(c.value)
		for i := 0; i < c.width; i++ {
			buf[i] = byte(uv >> (8 * i))
		}
		got, next, ok := ReadFixedInt(buf, 0, c.width, c.signed)
		require.True(t, ok)
		assert.Equal(t, c.width, next)
		assert.Equal(t, c.value, got)
	}
}

func TestReadUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 3_735_928_559)
	v, pos, ok := ReadUint32(buf, 0)
	require.True(t, ok)
	assert.Equal(t, 4, pos)
	assert.Equal(t, uint32(3_735_928_559), v)
}

func TestReadUint48RoundTrip(t *testing.T) {
	want := uint64(0x0000_AABBCCDDEEFF)
	buf := make([]byte, 6)
	for i := 0; i < 6; i++ {
		buf[i] = byte(want >> (8 * i))
	}
	got, pos, ok := ReadUint48(buf, 0)
	require.True(t, ok)
	assert.Equal(t, 6, pos)
	assert.Equal(t, want, got)
}

func TestReadFixedIntShortBufferFails(t *testing.T) {
	_, _, ok := ReadFixedInt([]byte{1, 2}, 0, 4, false)
	assert.False(t, ok)
}

func TestLenEncIntRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40} {
		buf := AppendLenEncInt(nil, v)
		got, pos, ok := ReadLenEncInt(buf, 0)
		require.True(t, ok)
		assert.Equal(t, len(buf), pos)
		assert.Equal(t, v, got)
	}
}

func TestLenEncStringRoundTrip(t *testing.T) {
	buf := AppendLenEncString(nil, "shop.item")
	got, pos, ok := ReadLenEncString(buf, 0)
	require.True(t, ok)
	assert.Equal(t, len(buf), pos)
	assert.Equal(t, "shop.item", string(got))
}

// TestBitmapRankSkipsUnsetColumns checks that the decoder consumes bytes
// only for present columns, and a column's slot in the (smaller) per-row
// null bitmap is its rank among the present bits, not its absolute
// column index.
func TestBitmapRankSkipsUnsetColumns(t *testing.T) {
	// Present bitmap 0b00000101: columns 0 and 2 are present, 1 is not.
	present := Bitmap{0b0000_0101}
	assert.True(t, present.Bit(0))
	assert.False(t, present.Bit(1))
	assert.True(t, present.Bit(2))

	assert.Equal(t, 0, present.Rank(0)) // column 0 is the 0th present column
	assert.Equal(t, 1, present.Rank(2)) // column 2 is the 1st present column (column 1 doesn't count)
	assert.Equal(t, 2, present.Count(3))
}

func TestBitmapByteSizeRoundsUp(t *testing.T) {
	assert.Equal(t, 0, BitmapByteSize(0))
	assert.Equal(t, 1, BitmapByteSize(1))
	assert.Equal(t, 1, BitmapByteSize(8))
	assert.Equal(t, 2, BitmapByteSize(9))
}
