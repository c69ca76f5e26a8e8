// Package event decodes binlog events off the replication stream, from
// the raw bytes a replica/conn.Conn hands back (trailing CRC32 still
// attached; Parser verifies and strips it) into typed Go values.
package event

import "github.com/ParshinPavel/libslave/replica/wire"

// Type identifies a binlog event's type_code header byte.
type Type byte

const (
	TypeUnknown           Type = 0
	TypeStartV3           Type = 1
	TypeQuery             Type = 2
	TypeStop              Type = 3
	TypeRotate            Type = 4
	TypeIntVar            Type = 5
	TypeLoad              Type = 6
	TypeSlave             Type = 7
	TypeCreateFile        Type = 8
	TypeAppendBlock       Type = 9
	TypeExecLoad          Type = 10
	TypeDeleteFile        Type = 11
	TypeNewLoad           Type = 12
	TypeRand              Type = 13
	TypeUserVar           Type = 14
	TypeFormatDescription Type = 15
	TypeXID               Type = 16
	TypeBeginLoadQuery    Type = 17
	TypeExecuteLoadQuery  Type = 18
	TypeTableMap          Type = 19
	TypeWriteRowsV0       Type = 20
	TypeUpdateRowsV0      Type = 21
	TypeDeleteRowsV0      Type = 22
	TypeWriteRowsV1       Type = 23
	TypeUpdateRowsV1      Type = 24
	TypeDeleteRowsV1      Type = 25
	TypeIncident          Type = 26
	TypeHeartbeat         Type = 27
	TypeIgnorable         Type = 28
	TypeRowsQuery         Type = 29
	TypeWriteRowsV2       Type = 30
	TypeUpdateRowsV2      Type = 31
	TypeDeleteRowsV2      Type = 32
	TypeGTID              Type = 33
	TypeAnonymousGTID     Type = 34
	TypePreviousGTIDs     Type = 35
)

func (t Type) String() string {
	switch t {
	case TypeQuery:
		return "QUERY_EVENT"
	case TypeRotate:
		return "ROTATE_EVENT"
	case TypeIntVar:
		return "INTVAR_EVENT"
	case TypeRand:
		return "RAND_EVENT"
	case TypeFormatDescription:
		return "FORMAT_DESCRIPTION_EVENT"
	case TypeXID:
		return "XID_EVENT"
	case TypeTableMap:
		return "TABLE_MAP_EVENT"
	case TypeWriteRowsV1, TypeWriteRowsV2:
		return "WRITE_ROWS_EVENT"
	case TypeUpdateRowsV1, TypeUpdateRowsV2:
		return "UPDATE_ROWS_EVENT"
	case TypeDeleteRowsV1, TypeDeleteRowsV2:
		return "DELETE_ROWS_EVENT"
	case TypeHeartbeat:
		return "HEARTBEAT_EVENT"
	default:
		return "UNKNOWN_EVENT"
	}
}

// headerSize is the fixed v4 binlog event header: every event, including
// FORMAT_DESCRIPTION itself, starts with exactly this layout regardless
// of HeaderLength, which only governs the body offset of later events.
const headerSize = 19

// Header is the fixed portion of every binlog event.
type Header struct {
	Timestamp   uint32
	Type        Type
	ServerID    uint32
	EventLength uint32
	NextLogPos  uint32
	Flags       uint16
}

// ParseHeader reads the 19-byte common header from the front of a raw
// event buffer (post-checksum-stripping, post-OK-byte).
func ParseHeader(data []byte) (Header, bool) {
	if len(data) < headerSize {
		return Header{}, false
	}
	ts, pos, _ := wire.ReadUint32(data, 0)
	typeByte, pos, _ := wire.ReadByte(data, pos)
	serverID, pos, _ := wire.ReadUint32(data, pos)
	length, pos, _ := wire.ReadUint32(data, pos)
	nextPos, pos, _ := wire.ReadUint32(data, pos)
	flags, _, _ := wire.ReadUint16(data, pos)
	return Header{
		Timestamp:   ts,
		Type:        Type(typeByte),
		ServerID:    serverID,
		EventLength: length,
		NextLogPos:  nextPos,
		Flags:       flags,
	}, true
}
