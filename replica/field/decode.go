package field

import (
	"fmt"

	"github.com/ParshinPavel/libslave/replica/wire"
)

// BlobLengthBytes is metadata carried alongside Meta for BLOB/TEXT columns:
// TABLE_MAP stores the length-prefix width (1, 2, 3 or 4 bytes) as the
// column's single metadata byte, rather than a byte count to read
// directly.
type BlobLengthBytes = uint8

// Decode reads one column value of logical type t, starting at pos in
// data, using meta for anything the wire form needs beyond the bytes
// themselves (signedness, declared length, temporal precision/format,
// collation). It returns the decoded value and the position just past it.
//
// blobLen is only consulted for BLOB/TEXT columns, and bitLen only for
// BIT columns; both default to sane minimums (1, 0) when zero, matching
// how TABLE_MAP metadata is threaded through by event.ColumnMap.
func Decode(t Type, data []byte, pos int, meta Meta, blobLen BlobLengthBytes, bitLen int) (Value, int, error) {
	switch t {
	case TypeTiny:
		return decodeFixedInt(data, pos, 1, meta.Unsigned)
	case TypeShort:
		return decodeFixedInt(data, pos, 2, meta.Unsigned)
	case TypeInt24:
		return decodeFixedInt(data, pos, 3, meta.Unsigned)
	case TypeLong:
		return decodeFixedInt(data, pos, 4, meta.Unsigned)
	case TypeLongLong:
		return decodeFixedInt(data, pos, 8, meta.Unsigned)

	case TypeFloat:
		v, pos, ok := wire.ReadUint32(data, pos)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindFloat, Float: float64(float32FromBits(v))}, pos, nil
	case TypeDouble:
		v, pos, ok := wire.ReadUint64(data, pos)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindFloat, Float: float64FromBits(v)}, pos, nil

	case TypeDate, TypeNewDate:
		tm, pos, ok := DecodeDate(data, pos)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil

	case TypeYear:
		y, pos, ok := DecodeYear(data, pos)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindInt, Int: int64(y)}, pos, nil

	case TypeTimestamp:
		tm, pos, ok := decodeTimestampByStorage(data, pos, meta, true)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil
	case TypeTimestamp2:
		tm, pos, ok := decodeTimestampByStorage(data, pos, meta, false)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil

	case TypeTime:
		tm, pos, ok := decodeTimeByStorage(data, pos, meta, true)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil
	case TypeTime2:
		tm, pos, ok := decodeTimeByStorage(data, pos, meta, false)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil

	case TypeDateTime:
		tm, pos, ok := decodeDateTimeByStorage(data, pos, meta, true)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil
	case TypeDateTime2:
		tm, pos, ok := decodeDateTimeByStorage(data, pos, meta, false)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindTemporal, Time: tm}, pos, nil

	case TypeVarchar, TypeVarString, TypeString:
		b, pos, ok := decodeLengthPrefixedString(data, pos, meta.DeclaredLen)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindBytes, Bytes: b}, pos, nil

	case TypeEnum:
		width := enumWidth(len(meta.EnumValues))
		iv, pos, ok := wire.ReadFixedInt(data, pos, width, false)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindInt, Int: iv}, pos, nil

	case TypeSet:
		width := setWidth(len(meta.EnumValues))
		uv, pos, ok := wire.ReadFixedInt(data, pos, width, false)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		members := setBitsOf(uint64(uv))
		return Value{Kind: KindSet, Set: members}, pos, nil

	case TypeBit:
		size := wire.BitmapByteSize(bitLen)
		b, pos, ok := wire.ReadBytes(data, pos, size)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindBytes, Bytes: append([]byte(nil), b...)}, pos, nil

	case TypeTinyBlob, TypeMediumBlob, TypeLongBlob, TypeBlob,
		TypeJSON:
		b, pos, ok := decodeBlob(data, pos, blobLen)
		if !ok {
			return Value{}, 0, errShortRead(t)
		}
		return Value{Kind: KindBytes, Bytes: b}, pos, nil

	default:
		return Value{}, 0, fmt.Errorf("field: unsupported column type %s", t)
	}
}

func decodeFixedInt(data []byte, pos int, width int, unsigned bool) (Value, int, error) {
	v, pos, ok := wire.ReadFixedInt(data, pos, width, !unsigned)
	if !ok {
		return Value{}, 0, errShortReadAt(width)
	}
	if unsigned {
		return Value{Kind: KindUint, Uint: uint64(v) & mask(width)}, pos, nil
	}
	return Value{Kind: KindInt, Int: v}, pos, nil
}

func mask(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (uint(width) * 8)) - 1
}

func decodeTimestampByStorage(data []byte, pos int, meta Meta, tableMapSaysLegacy bool) (Temporal, int, bool) {
	if useLegacyStorage(meta, tableMapSaysLegacy) {
		return DecodeTimestampLegacy(data, pos)
	}
	return DecodeTimestamp2(data, pos, meta.Decimals)
}

func decodeTimeByStorage(data []byte, pos int, meta Meta, tableMapSaysLegacy bool) (Temporal, int, bool) {
	if useLegacyStorage(meta, tableMapSaysLegacy) {
		return DecodeTimeLegacy(data, pos)
	}
	return DecodeTime2(data, pos, meta.Decimals)
}

func decodeDateTimeByStorage(data []byte, pos int, meta Meta, tableMapSaysLegacy bool) (Temporal, int, bool) {
	if useLegacyStorage(meta, tableMapSaysLegacy) {
		return DecodeDateTimeLegacy(data, pos)
	}
	return DecodeDateTime2(data, pos, meta.Decimals)
}

// useLegacyStorage decides whether to read the 4/3/8-byte legacy layout
// or the packed 5.6.4+ layout. The column's own TABLE_MAP type (TIMESTAMP
// vs TIMESTAMP2, etc, captured here as tableMapSaysLegacy) alone decides;
// Meta.IsOldStorage is not consulted — a per-column choice, not a single
// server-wide switch.
func useLegacyStorage(meta Meta, tableMapSaysLegacy bool) bool {
	return tableMapSaysLegacy
}

// decodeLengthPrefixedString reads VARCHAR/VAR_STRING/STRING bytes: a
// 1-byte length if the declared column length is <= 255, else a 2-byte
// length.
func decodeLengthPrefixedString(data []byte, pos int, declaredLen uint32) ([]byte, int, bool) {
	if declaredLen <= 255 {
		n, pos, ok := wire.ReadByte(data, pos)
		if !ok {
			return nil, 0, false
		}
		return wire.ReadBytes(data, pos, int(n))
	}
	n, pos, ok := wire.ReadUint16(data, pos)
	if !ok {
		return nil, 0, false
	}
	return wire.ReadBytes(data, pos, int(n))
}

// decodeBlob reads a BLOB/TEXT/JSON value: lengthBytes bytes of
// little-endian length prefix (1, 2, 3 or 4, taken from the column's
// TABLE_MAP metadata byte), then that many raw bytes.
func decodeBlob(data []byte, pos int, lengthBytes BlobLengthBytes) ([]byte, int, bool) {
	if lengthBytes == 0 {
		lengthBytes = 1
	}
	n, pos, ok := wire.ReadFixedInt(data, pos, int(lengthBytes), false)
	if !ok {
		return nil, 0, false
	}
	return wire.ReadBytes(data, pos, int(n))
}

// enumWidth returns 1 byte if the ENUM can be represented in a byte
// (<=255 distinct values, matching MySQL's storage rule), else 2 bytes.
func enumWidth(numValues int) int {
	if numValues <= 255 {
		return 1
	}
	return 2
}

// setWidth returns ceil(numValues/8) bytes, clamped to MySQL's 8-byte
// (64-bit) maximum SET width.
func setWidth(numValues int) int {
	w := (numValues + 7) / 8
	if w < 1 {
		w = 1
	}
	if w > 8 {
		w = 8
	}
	return w
}

func setBitsOf(v uint64) []uint64 {
	var members []uint64
	for i := uint64(0); i < 64 && (uint64(1)<<i) <= v; i++ {
		if v&(1<<i) != 0 {
			members = append(members, i)
		}
	}
	return members
}

func errShortRead(t Type) error {
	return fmt.Errorf("field: short read decoding %s column", t)
}

func errShortReadAt(width int) error {
	return fmt.Errorf("field: short read decoding %d-byte integer", width)
}
