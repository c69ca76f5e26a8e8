// Package schema builds and caches the per-table column layout that
// event.Parser needs to decode ROWS_EVENTs: MySQL hands TABLE_MAP events
// only a bare column-type byte plus a metadata blob, and the ENUM/SET
// value lists, string lengths and collations those events assume have to
// come from a side-channel describe of the table itself, the same gap
// information_schema-style introspection queries fill for server metadata
// and SHOW FULL COLUMNS fills here.
package schema

import "github.com/ParshinPavel/libslave/replica/field"

// Column describes one column of a table as seen by SHOW FULL COLUMNS,
// resolved into the form field.Decode needs.
type Column struct {
	Name         string
	Position     int // 0-based ordinal within the table
	Type         field.Type
	Meta         field.Meta
	BlobLenBytes field.BlobLengthBytes // length-prefix width for BLOB/TEXT/JSON
	BitLen       int                   // declared bit count for BIT columns
	PrimaryKey   bool
	Nullable     bool
}

// Table is the resolved layout of a single table, keyed by database and
// name, in TABLE_MAP column order.
type Table struct {
	Database string
	Name     string
	Columns  []Column
}

// ColumnByPosition returns the column at TABLE_MAP ordinal i, or false if
// out of range — TABLE_MAP events carry the column count but not names,
// so event decoding always indexes by position.
func (t *Table) ColumnByPosition(i int) (Column, bool) {
	if i < 0 || i >= len(t.Columns) {
		return Column{}, false
	}
	return t.Columns[i], true
}
