package event

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParshinPavel/libslave/replica/field"
	"github.com/ParshinPavel/libslave/replica/schema"
	"github.com/ParshinPavel/libslave/replica/wire"
)

// buildTableMapBody assembles a raw TABLE_MAP_EVENT body for a table with
// one LONG column and one VARSTRING(16) column, matching the layout
// decodeColumnMetadata expects.
func buildTableMapBody(t *testing.T, tableID uint64, database, table string) []byte {
	t.Helper()
	body := make([]byte, 0, 32)
	for i := 0; i < 6; i++ {
		body = append(body, byte(tableID>>(8*i)))
	}
	body = append(body, 0, 0) // flags

	body = append(body, byte(len(database)))
	body = append(body, []byte(database)...)
	body = append(body, 0)

	body = append(body, byte(len(table)))
	body = append(body, []byte(table)...)
	body = append(body, 0)

	body = append(body, 2) // column_count
	body = append(body, byte(field.TypeLong), byte(field.TypeVarString))

	// metadata: LONG contributes nothing, VARSTRING contributes its
	// 2-byte declared length (16).
	body = append(body, 2, 16, 0)

	body = append(body, 0) // null_bitmap, 1 byte for 2 columns, nothing marked nullable
	return body
}

// buildWriteRowsBody assembles a raw WRITE_ROWS_EVENT (V1) body for one row
// with id=42 and name="hi", both columns present and non-null.
func buildWriteRowsBody(t *testing.T, tableID uint64) []byte {
	t.Helper()
	body := make([]byte, 0, 32)
	for i := 0; i < 6; i++ {
		body = append(body, byte(tableID>>(8*i)))
	}
	body = append(body, 0, 0) // flags

	body = append(body, 2)    // column_count
	body = append(body, 0b11) // columns_present_bitmap

	body = append(body, 0b00) // row null_bitmap: no nulls
	body = append(body, 42, 0, 0, 0)
	body = append(body, 2, 'h', 'i')
	return body
}

func TestParseTableMapAndWriteRowsHappyPathInsert(t *testing.T) {
	tmBody := buildTableMapBody(t, 108, "shop", "item")
	tm, err := ParseTableMap(tmBody)
	require.NoError(t, err)

	assert.Equal(t, uint64(108), tm.TableID)
	assert.Equal(t, "shop", tm.Database)
	assert.Equal(t, "item", tm.Table)
	require.Len(t, tm.Columns, 2)
	assert.Equal(t, field.TypeLong, tm.Columns[0].Type)
	assert.Equal(t, field.TypeVarString, tm.Columns[1].Type)
	assert.Equal(t, uint32(16), tm.Columns[1].DeclaredLen)

	tbl := &schema.Table{
		Database: "shop",
		Name:     "item",
		Columns: []schema.Column{
			{Name: "id", Position: 0, Type: field.TypeLong, Meta: field.Meta{Unsigned: true}},
			{Name: "name", Position: 1, Type: field.TypeVarString},
		},
	}

	rowsBody := buildWriteRowsBody(t, 108)
	rows, err := ParseRows(rowsBody, RowInsert, false, tm, tbl)
	require.NoError(t, err)

	require.Len(t, rows.Rows, 1)
	row := rows.Rows[0]
	require.Len(t, row.After, 2)

	assert.Equal(t, field.KindUint, row.After[0].Kind)
	assert.Equal(t, uint64(42), row.After[0].Uint)

	assert.Equal(t, field.KindBytes, row.After[1].Kind)
	assert.Equal(t, "hi", string(row.After[1].Bytes))
}

func TestParseTableMapAndWriteRowsWithoutBoundSchemaDecodesSigned(t *testing.T) {
	tmBody := buildTableMapBody(t, 108, "shop", "item")
	tm, err := ParseTableMap(tmBody)
	require.NoError(t, err)

	rowsBody := buildWriteRowsBody(t, 108)
	rows, err := ParseRows(rowsBody, RowInsert, false, tm, nil)
	require.NoError(t, err)

	require.Len(t, rows.Rows, 1)
	require.Len(t, rows.Rows[0].After, 2)
	assert.Equal(t, field.KindInt, rows.Rows[0].After[0].Kind)
	assert.Equal(t, int64(42), rows.Rows[0].After[0].Int)
}

func buildEventWithChecksum(t *testing.T, eventType Type, body []byte, corrupt bool) []byte {
	t.Helper()
	hdr := make([]byte, headerSize)
	hdr[4] = byte(eventType)
	raw := append(hdr, body...)

	sum := crc32.ChecksumIEEE(raw)
	if corrupt {
		sum++
	}
	var trailer [4]byte
	trailer[0] = byte(sum)
	trailer[1] = byte(sum >> 8)
	trailer[2] = byte(sum >> 16)
	trailer[3] = byte(sum >> 24)
	return append(raw, trailer[:]...)
}

func TestParserRejectsChecksumMismatch(t *testing.T) {
	p := NewParser(nil)
	p.SetChecksumAlg(ChecksumAlgCRC32)

	body := make([]byte, 8+len("mysql-bin.000002"))
	body[0] = 4
	copy(body[8:], "mysql-bin.000002")

	good := buildEventWithChecksum(t, TypeRotate, body, false)
	_, err := p.Parse(good)
	require.NoError(t, err)

	bad := buildEventWithChecksum(t, TypeRotate, body, true)
	_, err = p.Parse(bad)
	require.Error(t, err)
	_, ok := err.(*wire.ChecksumMismatchError)
	assert.True(t, ok, "expected a *wire.ChecksumMismatchError, got %T", err)
}
