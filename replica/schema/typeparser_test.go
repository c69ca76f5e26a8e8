package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParshinPavel/libslave/replica/field"
)

func TestParseColumnTypeNumeric(t *testing.T) {
	typ, meta, _, err := parseColumnType("int(11) unsigned")
	require.NoError(t, err)
	assert.Equal(t, field.TypeLong, typ)
	assert.True(t, meta.Unsigned)

	typ, meta, _, err = parseColumnType("bigint(20)")
	require.NoError(t, err)
	assert.Equal(t, field.TypeLongLong, typ)
	assert.False(t, meta.Unsigned)
}

func TestParseColumnTypeVarchar(t *testing.T) {
	typ, meta, _, err := parseColumnType("varchar(255)")
	require.NoError(t, err)
	assert.Equal(t, field.TypeVarchar, typ)
	assert.EqualValues(t, 255, meta.DeclaredLen)
}

func TestParseColumnTypeEnumSet(t *testing.T) {
	typ, meta, _, err := parseColumnType("enum('small','medium','large')")
	require.NoError(t, err)
	assert.Equal(t, field.TypeEnum, typ)
	assert.Equal(t, []string{"small", "medium", "large"}, meta.EnumValues)

	typ, meta, _, err = parseColumnType("set('a','b','c')")
	require.NoError(t, err)
	assert.Equal(t, field.TypeSet, typ)
	assert.Equal(t, []string{"a", "b", "c"}, meta.EnumValues)
}

func TestParseColumnTypeTemporalPrecision(t *testing.T) {
	typ, meta, _, err := parseColumnType("datetime(3)")
	require.NoError(t, err)
	assert.Equal(t, field.TypeDateTime2, typ)
	assert.EqualValues(t, 3, meta.Decimals)

	typ, _, _, err = parseColumnType("timestamp")
	require.NoError(t, err)
	assert.Equal(t, field.TypeTimestamp2, typ)
}

func TestParseColumnTypeBit(t *testing.T) {
	typ, _, bitLen, err := parseColumnType("bit(10)")
	require.NoError(t, err)
	assert.Equal(t, field.TypeBit, typ)
	assert.Equal(t, 10, bitLen)
}

func TestParseColumnTypeBlobText(t *testing.T) {
	typ, _, _, err := parseColumnType("mediumtext")
	require.NoError(t, err)
	assert.Equal(t, field.TypeMediumBlob, typ)

	typ, _, _, err = parseColumnType("json")
	require.NoError(t, err)
	assert.Equal(t, field.TypeJSON, typ)
}

func TestQuotedListHandlesEscapedQuote(t *testing.T) {
	out := quotedList("'it''s',b")
	assert.Equal(t, []string{"it's", "b"}, out)
}
