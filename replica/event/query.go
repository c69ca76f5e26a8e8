package event

import "github.com/ParshinPavel/libslave/replica/wire"

// Query is a decoded QUERY_EVENT: a statement executed in statement-based
// or mixed-mode replication (BEGIN/COMMIT, DDL, and any row-unsafe
// statement). The status-vars block precedes Database/SQL on the wire
// but carries nothing ReplicationClient or ddl.Watcher currently need, so
// it is skipped rather than decoded field by field.
type Query struct {
	ThreadID    uint32
	ExecuteTime uint32
	ErrorCode   uint16
	Database    string
	SQL         string
}

// ParseQuery reads a QUERY_EVENT body (past the common + headerLength
// extra headers, i.e. starting right at thread_id).
//
// Layout:
//
//	4   thread_id
//	4   execution time
//	1   length of db_name (X)
//	2   error code
//	2   length of status-vars block (Y)
//	Y   status vars
//	X+1 db_name + NUL
//	*   SQL text, no terminator
func ParseQuery(body []byte) (Query, error) {
	const fixedPrefix = 4 + 4 + 1 + 2 + 2
	if len(body) < fixedPrefix {
		return Query{}, errShort("QUERY_EVENT", fixedPrefix, len(body))
	}

	threadID, pos, _ := wire.ReadUint32(body, 0)
	execTime, pos, _ := wire.ReadUint32(body, pos)
	dbLen, pos, _ := wire.ReadByte(body, pos)
	errCode, pos, _ := wire.ReadUint16(body, pos)
	varsLen, pos, _ := wire.ReadUint16(body, pos)

	dbPos := pos + int(varsLen)
	sqlPos := dbPos + int(dbLen) + 1
	if sqlPos > len(body) {
		return Query{}, errShort("QUERY_EVENT db+sql", sqlPos, len(body))
	}

	return Query{
		ThreadID:    threadID,
		ExecuteTime: execTime,
		ErrorCode:   errCode,
		Database:    string(body[dbPos : dbPos+int(dbLen)]),
		SQL:         string(body[sqlPos:]),
	}, nil
}

// XID is a decoded XID_EVENT: the transaction commit marker in ROW-based
// replication, carrying the InnoDB transaction ID. ReplicationClient
// treats XID as the point at which the current position becomes safe to
// durably publish, per the "durable frontier" property.
type XID struct {
	TransactionID uint64
}

// ParseXID reads an XID_EVENT body: a single 8-byte little-endian
// transaction ID.
func ParseXID(body []byte) (XID, error) {
	v, _, ok := wire.ReadUint64(body, 0)
	if !ok {
		return XID{}, errShort("XID_EVENT", 8, len(body))
	}
	return XID{TransactionID: v}, nil
}

// Rotate is a decoded ROTATE_EVENT: the master telling the replica
// which binlog file to continue reading from, either because the current
// file filled up or because it's the first event sent in response to
// COM_BINLOG_DUMP.
type Rotate struct {
	NextPosition uint64
	NextFile     string
}

// ParseRotate reads a ROTATE_EVENT body: an 8-byte little-endian file
// position followed by the new file's name (no length prefix or
// terminator — it runs to the end of the event).
func ParseRotate(body []byte) (Rotate, error) {
	pos64, pos, ok := wire.ReadUint64(body, 0)
	if !ok {
		return Rotate{}, errShort("ROTATE_EVENT", 8, len(body))
	}
	return Rotate{NextPosition: pos64, NextFile: string(body[pos:])}, nil
}

// IntVar is a decoded INTVAR_EVENT, carrying the value an
// auto_increment/LAST_INSERT_ID() call produced for the query that
// follows in statement-based replication.
type IntVar struct {
	Name  string
	Value uint64
}

const (
	intVarLastInsertID = 1
	intVarInsertID     = 2
)

// ParseIntVar reads an INTVAR_EVENT body: a 1-byte variable ID followed
// by an 8-byte little-endian value.
func ParseIntVar(body []byte) (IntVar, error) {
	const want = 1 + 8
	if len(body) < want {
		return IntVar{}, errShort("INTVAR_EVENT", want, len(body))
	}
	name := ""
	switch body[0] {
	case intVarLastInsertID:
		name = "LAST_INSERT_ID"
	case intVarInsertID:
		name = "INSERT_ID"
	default:
		name = "UNKNOWN"
	}
	v, _, _ := wire.ReadUint64(body, 1)
	return IntVar{Name: name, Value: v}, nil
}

// Rand is a decoded RAND_EVENT: the two seeds RAND() used, captured so a
// statement-based RAND() call replays deterministically.
type Rand struct {
	Seed1 uint64
	Seed2 uint64
}

// ParseRand reads a RAND_EVENT body: two 8-byte little-endian seeds.
func ParseRand(body []byte) (Rand, error) {
	const want = 16
	if len(body) < want {
		return Rand{}, errShort("RAND_EVENT", want, len(body))
	}
	s1, pos, _ := wire.ReadUint64(body, 0)
	s2, _, _ := wire.ReadUint64(body, pos)
	return Rand{Seed1: s1, Seed2: s2}, nil
}

// Heartbeat is a decoded HEARTBEAT_EVENT: a server-generated keepalive
// sent when MASTER_HEARTBEAT_PERIOD has elapsed with no real event to
// send, carrying no payload beyond the current binlog filename. This
// client does nothing with it beyond the generic per-event handling: the
// in-memory position advances from its header's next_log_pos, and
// nothing is published.
type Heartbeat struct {
	LogFile string
}

// ParseHeartbeat reads a HEARTBEAT_EVENT body: the current binlog
// filename, with no length prefix or terminator.
func ParseHeartbeat(body []byte) Heartbeat {
	return Heartbeat{LogFile: string(body)}
}
