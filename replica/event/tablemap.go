package event

import (
	"fmt"

	"github.com/ParshinPavel/libslave/replica/field"
	"github.com/ParshinPavel/libslave/replica/wire"
)

// ColumnMap is one column's wire-decoding parameters as carried by
// TABLE_MAP, independent of whatever SchemaRegistry separately learned
// from SHOW FULL COLUMNS. TABLE_MAP is the authoritative source for the
// numbers that actually shape how many bytes a ROWS_EVENT column
// consumes (declared string length, BLOB length-prefix width, BIT bit
// count, temporal fractional digits); SchemaRegistry is authoritative
// for everything TABLE_MAP can't express (ENUM/SET value lists,
// collation names, primary key membership).
type ColumnMap struct {
	Type         field.Type
	Decimals     uint8
	DeclaredLen  uint32
	BlobLenBytes field.BlobLengthBytes
	BitLen       int
}

// TableMap is a decoded TABLE_MAP_EVENT.
type TableMap struct {
	TableID  uint64
	Flags    uint16
	Database string
	Table    string
	Columns  []ColumnMap
	// NullBitmap marks, per TABLE_MAP ordinal, whether the column may
	// contain SQL NULL at all (not whether any particular row is null —
	// that's per-row, carried by the ROWS_EVENT itself).
	NullBitmap wire.Bitmap
}

// ParseTableMap reads a TABLE_MAP_EVENT body.
//
// Layout:
//
//	6      table_id (or 4 on servers predating the 6-byte table id extension)
//	2      flags
//	1      schema name length (X)
//	X      schema name
//	1      zero byte
//	1      table name length (Y)
//	Y      table name
//	1      zero byte
//	lenenc column_count (N)
//	N      column_types
//	lenenc metadata_length (M)
//	M      metadata, one variable-width block per column per its type
//	ceil(N/8) null_bitmap
func ParseTableMap(body []byte) (TableMap, error) {
	tableID, pos, ok := wire.ReadUint48(body, 0)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT table_id", 6, len(body))
	}
	flags, pos, ok := wire.ReadUint16(body, pos)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT flags", 2, len(body)-pos)
	}

	schemaLen, pos, ok := wire.ReadByte(body, pos)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT schema length", 1, 0)
	}
	schema, pos, ok := wire.ReadBytes(body, pos, int(schemaLen))
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT schema name", int(schemaLen), 0)
	}
	pos++ // skip the trailing zero byte

	tableLen, pos, ok := wire.ReadByte(body, pos)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT table length", 1, 0)
	}
	table, pos, ok := wire.ReadBytes(body, pos, int(tableLen))
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT table name", int(tableLen), 0)
	}
	pos++

	colCount, pos, ok := wire.ReadLenEncInt(body, pos)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT column count", 1, 0)
	}
	types, pos, ok := wire.ReadBytes(body, pos, int(colCount))
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT column types", int(colCount), 0)
	}

	metaLen, pos, ok := wire.ReadLenEncInt(body, pos)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT metadata length", 1, 0)
	}
	metadata, pos, ok := wire.ReadBytes(body, pos, int(metaLen))
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT metadata", int(metaLen), 0)
	}

	nullBitmapSize := wire.BitmapByteSize(int(colCount))
	nullBitmap, pos, ok := wire.ReadBytes(body, pos, nullBitmapSize)
	if !ok {
		return TableMap{}, errShort("TABLE_MAP_EVENT null bitmap", nullBitmapSize, 0)
	}
	_ = pos

	cols, err := decodeColumnMetadata(types, metadata)
	if err != nil {
		return TableMap{}, err
	}

	return TableMap{
		TableID:    tableID,
		Flags:      flags,
		Database:   string(schema),
		Table:      string(table),
		Columns:    cols,
		NullBitmap: append(wire.Bitmap(nil), nullBitmap...),
	}, nil
}

// decodeColumnMetadata walks the column_types array alongside the
// metadata block, consuming each column's variable-width metadata
// according to its type — mirroring MySQL's Field::do_field_metadata
// family (sql/field.cc), reproduced here by column-type table rather
// than by carrying a C++ class hierarchy.
func decodeColumnMetadata(types, metadata []byte) ([]ColumnMap, error) {
	cols := make([]ColumnMap, len(types))
	pos := 0

	for i, tb := range types {
		t := field.Type(tb)
		cm := ColumnMap{Type: t}

		switch t {
		case field.TypeTinyBlob, field.TypeMediumBlob, field.TypeLongBlob, field.TypeBlob,
			field.TypeGeometry, field.TypeJSON:
			if pos >= len(metadata) {
				return nil, fmt.Errorf("event: TABLE_MAP metadata underrun at column %d", i)
			}
			cm.BlobLenBytes = field.BlobLengthBytes(metadata[pos])
			pos++

		case field.TypeFloat, field.TypeDouble:
			// pack length (4 or 8); decode.go infers width from the type
			// itself, so this byte is only consumed, not retained.
			pos++

		case field.TypeVarchar, field.TypeVarString:
			if pos+2 > len(metadata) {
				return nil, fmt.Errorf("event: TABLE_MAP metadata underrun at column %d", i)
			}
			cm.DeclaredLen = uint32(metadata[pos]) | uint32(metadata[pos+1])<<8
			pos += 2

		case field.TypeBit:
			if pos+2 > len(metadata) {
				return nil, fmt.Errorf("event: TABLE_MAP metadata underrun at column %d", i)
			}
			extraBits := int(metadata[pos])
			wholeBytes := int(metadata[pos+1])
			cm.BitLen = wholeBytes*8 + extraBits
			pos += 2

		case field.TypeNewDecimal:
			if pos+2 > len(metadata) {
				return nil, fmt.Errorf("event: TABLE_MAP metadata underrun at column %d", i)
			}
			// precision, scale: decimal values are not currently
			// re-rendered as fixed-point text, so only advance past them.
			pos += 2

		case field.TypeTime2, field.TypeDateTime2, field.TypeTimestamp2:
			if pos >= len(metadata) {
				return nil, fmt.Errorf("event: TABLE_MAP metadata underrun at column %d", i)
			}
			cm.Decimals = metadata[pos]
			pos++

		case field.TypeString:
			// CHAR, ENUM and SET all appear as MYSQL_TYPE_STRING(254) on
			// the wire; the two metadata bytes fold in the real type and
			// the declared length, per Field_string::do_field_metadata /
			// Field_enum::do_field_metadata.
			if pos+2 > len(metadata) {
				return nil, fmt.Errorf("event: TABLE_MAP metadata underrun at column %d", i)
			}
			b0, b1 := metadata[pos], metadata[pos+1]
			pos += 2
			if b0&0x30 != 0x30 {
				// Real CHAR: high two bits of the declared length were
				// folded into b0's bits 4-5, XORed against STRING's own
				// 0x30 pattern.
				cm.Type = field.TypeString
				cm.DeclaredLen = uint32(b1) | uint32((b0^0xf0)&0x30)<<4
			} else {
				switch field.Type(b0) {
				case field.TypeEnum:
					cm.Type = field.TypeEnum
				case field.TypeSet:
					cm.Type = field.TypeSet
				default:
					cm.Type = field.TypeString
					cm.DeclaredLen = uint32(b1)
				}
				// b1 here is the storage pack length (1/2 for ENUM, up to
				// 8 for SET), not a value count; decode.go derives the
				// actual width again from SchemaRegistry's EnumValues, so
				// it is only consumed.
			}

		default:
			// Fixed-width integer/date/year/null types carry no metadata.
		}

		cols[i] = cm
	}

	return cols, nil
}
