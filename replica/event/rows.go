package event

import (
	"fmt"

	"github.com/ParshinPavel/libslave/replica/field"
	"github.com/ParshinPavel/libslave/replica/schema"
	"github.com/ParshinPavel/libslave/replica/wire"
)

// RowKind distinguishes WRITE/UPDATE/DELETE_ROWS.
type RowKind int

const (
	RowInsert RowKind = iota
	RowUpdate
	RowDelete
)

// Row is one row image from a ROWS_EVENT. Before is populated for
// UPDATE/DELETE, After for INSERT/UPDATE; the unused side is nil.
type Row struct {
	Before []field.Value
	After  []field.Value
}

// Rows is a decoded WRITE/UPDATE/DELETE_ROWS event (V1 or V2 — the two
// versions share a body layout once the V2-only extra_data block is
// skipped).
type Rows struct {
	TableID uint64
	Flags   uint16
	Kind    RowKind
	Rows    []Row
}

// ParseRows decodes a ROWS_EVENT body. tm is the TABLE_MAP previously
// seen for this table_id (it supplies the authoritative per-column wire
// width); tbl is the same table's SchemaRegistry layout (it supplies
// ENUM/SET value lists and collations that TABLE_MAP cannot carry, both
// already resolved by Registry at describe time). v2 selects the V2
// wire format, which adds an extra_data block; per-column null-ability
// handling is otherwise identical to V1.
//
// Layout (V2; V1 omits the extra_data_length/extra_data pair):
//
//	6        table_id
//	2        flags
//	2        extra_data_length (including these 2 bytes)
//	variable extra_data
//	lenenc   column_count
//	ceil(N/8) columns_present_bitmap
//	[UPDATE] ceil(N/8) columns_present_bitmap_after
//	repeated until end of event:
//	  ceil(popcount(present)/8) null_bitmap
//	  one value per present, non-null column
//	  [UPDATE only: a second null_bitmap + value set, for the after-image]
func ParseRows(body []byte, kind RowKind, v2 bool, tm TableMap, tbl *schema.Table) (Rows, error) {
	tableID, pos, ok := wire.ReadUint48(body, 0)
	if !ok {
		return Rows{}, errShort("ROWS_EVENT table_id", 6, len(body))
	}
	flags, pos, ok := wire.ReadUint16(body, pos)
	if !ok {
		return Rows{}, errShort("ROWS_EVENT flags", 2, len(body)-pos)
	}

	if v2 {
		extraLen, p, ok := wire.ReadUint16(body, pos)
		if !ok {
			return Rows{}, errShort("ROWS_EVENT extra_data_length", 2, len(body)-pos)
		}
		pos = p
		if int(extraLen) < 2 {
			return Rows{}, fmt.Errorf("event: ROWS_EVENT extra_data_length %d is smaller than itself", extraLen)
		}
		pos += int(extraLen) - 2
	}

	colCount, pos, ok := wire.ReadLenEncInt(body, pos)
	if !ok {
		return Rows{}, errShort("ROWS_EVENT column count", 1, 0)
	}
	n := int(colCount)

	presentSize := wire.BitmapByteSize(n)
	present, pos, ok := wire.ReadBytes(body, pos, presentSize)
	if !ok {
		return Rows{}, errShort("ROWS_EVENT columns_present_bitmap", presentSize, 0)
	}

	var presentAfter wire.Bitmap
	if kind == RowUpdate {
		b, p, ok := wire.ReadBytes(body, pos, presentSize)
		if !ok {
			return Rows{}, errShort("ROWS_EVENT columns_present_bitmap_after", presentSize, 0)
		}
		presentAfter = wire.Bitmap(b)
		pos = p
	}

	dec := &rowDecoder{
		tm:      tm,
		tbl:     tbl,
		present: wire.Bitmap(present),
		n:       n,
	}

	var rows []Row
	for pos < len(body) {
		row := Row{}
		switch kind {
		case RowInsert:
			vals, next, err := dec.decodeImage(body, pos, dec.present)
			if err != nil {
				return Rows{}, err
			}
			row.After = vals
			pos = next
		case RowDelete:
			vals, next, err := dec.decodeImage(body, pos, dec.present)
			if err != nil {
				return Rows{}, err
			}
			row.Before = vals
			pos = next
		case RowUpdate:
			before, next, err := dec.decodeImage(body, pos, dec.present)
			if err != nil {
				return Rows{}, err
			}
			pos = next
			after, next, err := dec.decodeImage(body, pos, presentAfter)
			if err != nil {
				return Rows{}, err
			}
			row.Before = before
			row.After = after
			pos = next
		}
		rows = append(rows, row)
	}

	return Rows{TableID: tableID, Flags: flags, Kind: kind, Rows: rows}, nil
}

// rowDecoder holds the per-event context shared across every row image
// in a ROWS_EVENT: the TABLE_MAP column layout, the matching
// SchemaRegistry table (for signedness, ENUM/SET values and collation),
// and the columns-present bitmap with its column count.
type rowDecoder struct {
	tm      TableMap
	tbl     *schema.Table
	present wire.Bitmap
	n       int
}

// decodeImage decodes one row image (before- or after-), given which
// columns-present bitmap applies to it.
func (d *rowDecoder) decodeImage(body []byte, pos int, present wire.Bitmap) ([]field.Value, int, error) {
	presentCount := present.Count(d.n)
	nullSize := wire.BitmapByteSize(presentCount)
	nullBitmap, pos, ok := wire.ReadBytes(body, pos, nullSize)
	if !ok {
		return nil, 0, errShort("ROWS_EVENT row null_bitmap", nullSize, 0)
	}
	nb := wire.Bitmap(nullBitmap)

	values := make([]field.Value, d.n)
	for i := 0; i < d.n; i++ {
		if !present.Bit(i) {
			continue
		}
		rank := present.Rank(i)
		if nb.Bit(rank) {
			values[i] = field.Value{Kind: field.KindNull}
			continue
		}

		cm, ok := columnAt(d.tm.Columns, i)
		if !ok {
			return nil, 0, fmt.Errorf("event: ROWS_EVENT references column %d past TABLE_MAP's %d columns", i, len(d.tm.Columns))
		}
		// TABLE_MAP never carries signedness, ENUM/SET value lists, or
		// collation — those only ever appear in DDL, so they come from
		// SchemaRegistry's layout when one is bound for this table.
		meta := field.Meta{Decimals: cm.Decimals, DeclaredLen: cm.DeclaredLen}
		if d.tbl != nil {
			if sc, ok := d.tbl.ColumnByPosition(i); ok {
				meta.Unsigned = sc.Meta.Unsigned
				meta.EnumValues = sc.Meta.EnumValues
				meta.Collation = sc.Meta.Collation
			}
		}

		v, next, err := field.Decode(cm.Type, body, pos, meta, cm.BlobLenBytes, cm.BitLen)
		if err != nil {
			return nil, 0, fmt.Errorf("event: decoding column %d (%s): %w", i, cm.Type, err)
		}
		values[i] = v
		pos = next
	}

	return values, pos, nil
}

func columnAt(cols []ColumnMap, i int) (ColumnMap, bool) {
	if i < 0 || i >= len(cols) {
		return ColumnMap{}, false
	}
	return cols[i], true
}
