package event

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/field"
	"github.com/ParshinPavel/libslave/replica/schema"
	"github.com/ParshinPavel/libslave/replica/wire"
)

// Decoded is the tagged result of parsing one binlog event: exactly one
// of the typed fields is populated, selected by Header.Type. Events the
// Parser has no use for (LOAD, CREATE_FILE, GTID, and anything
// MariaDB-specific) still come back with Header set and every typed
// field nil, so the caller can at least advance its position tracking.
type Decoded struct {
	Header Header

	Format *FormatDescription
	Query  *Query
	XID    *XID
	Rotate *Rotate
	IntVar *IntVar
	Rand   *Rand
	Heart  *Heartbeat
	Table  *TableMap
	Rows   *Rows
}

// Parser turns a stream of raw event buffers into Decoded values,
// tracking the two bits of cross-event state the wire format demands:
// the FORMAT_DESCRIPTION-announced header length and checksum algorithm
// (every later event's checksum trailer and body offset depend on it),
// and the TABLE_MAP table_id -> (db, table) bindings a ROWS_EVENT needs
// to resolve before it can be decoded at all.
//
// A Parser is not safe for concurrent use; ReplicationClient drives it
// from a single read loop goroutine.
type Parser struct {
	registry *schema.Registry

	format     FormatDescription
	haveFormat bool

	tables map[uint64]boundTable
}

type boundTable struct {
	tableMap TableMap
	schema   *schema.Table
}

// NewParser builds a Parser backed by registry for column layouts.
// registry may be nil for callers that only need structural decoding
// (header/type/position) without full row-value decoding —
// ReplicationClient always supplies one once connected.
func NewParser(registry *schema.Registry) *Parser {
	return &Parser{
		registry: registry,
		tables:   make(map[uint64]boundTable),
	}
}

// SetChecksumAlg primes the checksum algorithm before any event has been
// read. The checksum handshake (SET @master_binlog_checksum) happens
// before COM_BINLOG_DUMP, so the algorithm is known — and already in
// effect on the wire, including for the very first FORMAT_DESCRIPTION
// event — before Parser would otherwise learn it from that same event.
func (p *Parser) SetChecksumAlg(alg ChecksumAlg) {
	p.format.ChecksumAlg = alg
	p.haveFormat = true
}

// Parse decodes one event. raw is the full event buffer exactly as read
// off the wire, including the common header and, when checksums are
// enabled, the trailing CRC32 — Parse verifies and strips the checksum
// itself rather than trusting the caller to have done so, since that
// verification depends on the checksum algorithm this same Parser
// learned from FORMAT_DESCRIPTION.
func (p *Parser) Parse(raw []byte) (Decoded, error) {
	stripped := raw
	if p.haveFormat && p.format.ChecksumAlg == ChecksumAlgCRC32 {
		var err error
		stripped, err = wire.VerifyChecksum(raw)
		if err != nil {
			return Decoded{}, err
		}
	}

	hdr, ok := ParseHeader(stripped)
	if !ok {
		return Decoded{}, fmt.Errorf("event: buffer too short for common header: %d bytes", len(stripped))
	}

	headerLen := headerSize
	if p.haveFormat && int(p.format.HeaderLength) >= headerSize {
		headerLen = int(p.format.HeaderLength)
	}
	if headerLen > len(stripped) {
		return Decoded{}, fmt.Errorf("event: header length %d exceeds event size %d", headerLen, len(stripped))
	}
	body := stripped[headerLen:]

	dec := Decoded{Header: hdr}

	switch hdr.Type {
	case TypeFormatDescription:
		fd, err := ParseFormatDescription(body)
		if err != nil {
			return Decoded{}, err
		}
		p.format = fd
		p.haveFormat = true
		dec.Format = &fd

	case TypeQuery:
		q, err := ParseQuery(body)
		if err != nil {
			return Decoded{}, err
		}
		dec.Query = &q

	case TypeXID:
		x, err := ParseXID(body)
		if err != nil {
			return Decoded{}, err
		}
		dec.XID = &x

	case TypeRotate:
		r, err := ParseRotate(body)
		if err != nil {
			return Decoded{}, err
		}
		dec.Rotate = &r

	case TypeIntVar:
		iv, err := ParseIntVar(body)
		if err != nil {
			return Decoded{}, err
		}
		dec.IntVar = &iv

	case TypeRand:
		r, err := ParseRand(body)
		if err != nil {
			return Decoded{}, err
		}
		dec.Rand = &r

	case TypeHeartbeat:
		h := ParseHeartbeat(body)
		dec.Heart = &h

	case TypeTableMap:
		tm, err := ParseTableMap(body)
		if err != nil {
			return Decoded{}, err
		}
		if err := p.bindTable(tm); err != nil {
			return Decoded{}, err
		}
		dec.Table = &tm

	case TypeWriteRowsV1, TypeWriteRowsV2,
		TypeUpdateRowsV1, TypeUpdateRowsV2,
		TypeDeleteRowsV1, TypeDeleteRowsV2:
		kind, v2 := rowsEventKind(hdr.Type)
		rows, err := p.parseRowsEvent(body, kind, v2)
		if err != nil {
			return Decoded{}, err
		}
		dec.Rows = rows

	default:
		// Structurally uninteresting event; Header alone is enough for
		// ReplicationClient to advance its position.
	}

	return dec, nil
}

func rowsEventKind(t Type) (RowKind, bool) {
	switch t {
	case TypeWriteRowsV1:
		return RowInsert, false
	case TypeWriteRowsV2:
		return RowInsert, true
	case TypeUpdateRowsV1:
		return RowUpdate, false
	case TypeUpdateRowsV2:
		return RowUpdate, true
	case TypeDeleteRowsV1:
		return RowDelete, false
	case TypeDeleteRowsV2:
		return RowDelete, true
	}
	return RowInsert, false
}

func (p *Parser) bindTable(tm TableMap) error {
	bt := boundTable{tableMap: tm}
	if p.registry != nil {
		t, err := p.registry.Get(tm.Database, tm.Table)
		if err != nil {
			return errors.Wrapf(err, "event: describe %s.%s", tm.Database, tm.Table)
		}
		bt.schema = t
		applyTemporalReset(tm, t)
	}
	p.tables[tm.TableID] = bt
	return nil
}

// applyTemporalReset resets a column's temporal storage format per
// TABLE_MAP: its own column type byte — TIMESTAMP/DATETIME/TIME versus
// their *2 packed counterparts — always overrides whatever
// SchemaRegistry's DDL-derived guess was, since that's the one place the
// wire format actually tells us which layout a given row was written
// with.
func applyTemporalReset(tm TableMap, t *schema.Table) {
	for i, cm := range tm.Columns {
		sc, ok := t.ColumnByPosition(i)
		if !ok {
			continue
		}
		switch cm.Type {
		case field.TypeTimestamp, field.TypeDateTime, field.TypeTime:
			sc.Meta.IsOldStorage = true
			sc.Type = cm.Type
		case field.TypeTimestamp2, field.TypeDateTime2, field.TypeTime2:
			sc.Meta.IsOldStorage = false
			sc.Type = cm.Type
		}
		t.Columns[i] = sc
	}
}

func (p *Parser) parseRowsEvent(body []byte, kind RowKind, v2 bool) (*Rows, error) {
	tableID, _, ok := wire.ReadUint48(body, 0)
	if !ok {
		return nil, errShort("ROWS_EVENT table_id", 6, len(body))
	}
	bound, ok := p.tables[tableID]
	if !ok {
		glog.Warningf("event: ROWS_EVENT for unbound table_id %d, skipping", tableID)
		return nil, nil
	}

	rows, err := ParseRows(body, kind, v2, bound.tableMap, bound.schema)
	if err != nil {
		return nil, err
	}
	return &rows, nil
}
