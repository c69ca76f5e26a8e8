package replica

import (
	"github.com/ParshinPavel/libslave/replica/event"
	"github.com/ParshinPavel/libslave/replica/field"
)

// RowKind is re-exported from event so callers never need to import the
// event package directly.
type RowKind = event.RowKind

const (
	Insert = event.RowInsert
	Update = event.RowUpdate
	Delete = event.RowDelete
)

// RowCallback receives one decoded row. before is nil for Insert, after
// is nil for Delete; both are populated for Update.
type RowCallback func(kind RowKind, before, after []field.Value)

// Filter decides whether a row is delivered to its RowCallback. A nil
// Filter delivers every row.
type Filter func(before, after []field.Value) bool

// XIDCallback receives the originating server id of a committed
// transaction, at the XID_EVENT boundary.
type XIDCallback func(serverID uint32)

// StatsSink is an optional telemetry hook: tick a counter on event-local
// errors, and observe every TABLE_MAP the parser resolves (independent of
// whether any callback is subscribed to it).
type StatsSink interface {
	TickError()
	ProcessTableMap(tableID uint64, table, db string)
}

type tableKey struct {
	database string
	table    string
}

type subscription struct {
	database string
	table    string
	callback RowCallback
	filter   Filter
}
