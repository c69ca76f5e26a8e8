package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFixedIntRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		typ      Type
		width    int
		unsigned bool
		data     []byte
		wantInt  int64
		wantUint uint64
	}{
		{"tiny signed negative", TypeTiny, 1, false, []byte{0xFF}, -1, 0},
		{"tiny unsigned max", TypeTiny, 1, true, []byte{0xFF}, 0, 255},
		{"short signed", TypeShort, 2, false, []byte{0xD0, 0x07}, 2000, 0},
		{"int24 unsigned", TypeInt24, 3, true, []byte{0xFF, 0xFF, 0xFF}, 0, 0xFFFFFF},
		{"long signed 42", TypeLong, 4, false, []byte{0x2A, 0x00, 0x00, 0x00}, 42, 0},
		{"longlong unsigned", TypeLongLong, 8, true, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0, ^uint64(0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v, pos, err := Decode(c.typ, c.data, 0, Meta{Unsigned: c.unsigned}, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, len(c.data), pos)
			if c.unsigned {
				assert.Equal(t, KindUint, v.Kind)
				assert.Equal(t, c.wantUint, v.Uint)
			} else {
				assert.Equal(t, KindInt, v.Kind)
				assert.Equal(t, c.wantInt, v.Int)
			}
		})
	}
}

func TestDecodeVarcharShortAndLongLength(t *testing.T) {
	// declared length <= 255: 1-byte length prefix.
	data := []byte{0x02, 'h', 'i'}
	v, pos, err := Decode(TypeVarString, data, 0, Meta{DeclaredLen: 16}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, []byte("hi"), v.Bytes)

	// declared length > 255: 2-byte length prefix.
	long := []byte{0x02, 0x00, 'h', 'i'}
	v, pos, err = Decode(TypeVarchar, long, 0, Meta{DeclaredLen: 1000}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)
	assert.Equal(t, []byte("hi"), v.Bytes)
}

func TestDecodeBlobLengthPrefixWidths(t *testing.T) {
	for _, width := range []BlobLengthBytes{1, 2, 3, 4} {
		data := make([]byte, int(width)+2)
		data[0] = 2 // low byte of length = 2, rest zero
		data[width] = 'h'
		data[width+1] = 'i'
		v, pos, err := Decode(TypeBlob, data, 0, Meta{}, width, 0)
		require.NoError(t, err)
		assert.Equal(t, len(data), pos)
		assert.Equal(t, []byte("hi"), v.Bytes)
	}
}

func TestDecodeEnumWidth(t *testing.T) {
	values := make([]string, 300) // forces 2-byte enum index storage
	v, pos, err := Decode(TypeEnum, []byte{0x02, 0x01}, 0, Meta{EnumValues: values}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	assert.Equal(t, int64(0x0102), v.Int)
}

func TestDecodeSetMembers(t *testing.T) {
	values := []string{"a", "b", "c", "d"}
	// bits 0 and 2 set -> members a, c
	v, pos, err := Decode(TypeSet, []byte{0x05}, 0, Meta{EnumValues: values}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []uint64{0, 2}, v.Set)
}

func TestDecodeBitSizing(t *testing.T) {
	// 10 bits -> ceil(10/8) = 2 bytes.
	data := []byte{0xFF, 0x03}
	v, pos, err := Decode(TypeBit, data, 0, Meta{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	assert.Equal(t, data, v.Bytes)
}

func TestDecodeYearZeroSentinel(t *testing.T) {
	v, pos, err := Decode(TypeYear, []byte{0x00}, 0, Meta{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.EqualValues(t, 0, v.Int)

	v, pos, err = Decode(TypeYear, []byte{50}, 0, Meta{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.EqualValues(t, 1950, v.Int)
}

func TestDecodeDatePacked(t *testing.T) {
	// 2021-03-15 packed as year<<9 | month<<5 | day.
	packed := uint32(2021)<<9 | uint32(3)<<5 | uint32(15)
	data := []byte{byte(packed), byte(packed >> 8), byte(packed >> 16)}
	v, pos, err := Decode(TypeDate, data, 0, Meta{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, 2021, v.Time.Year)
	assert.Equal(t, 3, v.Time.Month)
	assert.Equal(t, 15, v.Time.Day)
}

func TestDecodeTimestampLegacyVsPacked(t *testing.T) {
	// 2021-01-01T00:00:00Z = 1609459200
	legacy := []byte{0x00, 0x66, 0xEE, 0x5F}
	v, pos, err := Decode(TypeTimestamp, legacy, 0, Meta{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)
	assert.Equal(t, 2021, v.Time.Year)

	// Same instant, packed TIMESTAMP2 with 0 decimals: big-endian seconds.
	packed := []byte{0x5F, 0xEE, 0x66, 0x00}
	v, pos, err = Decode(TypeTimestamp2, packed, 0, Meta{Decimals: 0}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)
	assert.Equal(t, 2021, v.Time.Year)
}

func TestDecodeDateTime2Packed(t *testing.T) {
	// 2023-06-15 14:30:00, 0 decimals: ymd = 2023*13+6 = 26305, packed as
	// sign-biased (ymd<<22 | day<<17 | hour<<12 | minute<<6 | second).
	packed := []byte{0x99, 0xB0, 0x5E, 0xE7, 0x80}
	v, pos, err := Decode(TypeDateTime2, packed, 0, Meta{Decimals: 0}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, pos)
	assert.Equal(t, 2023, v.Time.Year)
	assert.Equal(t, 6, v.Time.Month)
	assert.Equal(t, 15, v.Time.Day)
	assert.Equal(t, 14, v.Time.Hour)
	assert.Equal(t, 30, v.Time.Minute)
	assert.Equal(t, 0, v.Time.Second)
}

func TestDecodeFloatDouble(t *testing.T) {
	// 1.5f little-endian.
	v, pos, err := Decode(TypeFloat, []byte{0x00, 0x00, 0xC0, 0x3F}, 0, Meta{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)
	assert.InDelta(t, 1.5, v.Float, 0.0001)

	v, pos, err = Decode(TypeDouble, []byte{0, 0, 0, 0, 0, 0, 0xF8, 0x3F}, 0, Meta{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, pos)
	assert.InDelta(t, 1.5, v.Float, 0.0001)
}

func TestDecodeShortBufferErrors(t *testing.T) {
	_, _, err := Decode(TypeLong, []byte{0x01, 0x02}, 0, Meta{}, 0, 0)
	require.Error(t, err)
}
