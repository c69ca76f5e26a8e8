package event

import (
	"bytes"
	"fmt"

	"github.com/ParshinPavel/libslave/replica/wire"
)

// FormatDescription is the FORMAT_DESCRIPTION_EVENT every binlog (or
// COM_BINLOG_DUMP stream) opens with. HeaderLength tells every later
// event's Parser where its header ends and body begins; ChecksumAlg
// tells the Parser whether to expect and verify a trailing 4-byte CRC32
// on every subsequent event.
type FormatDescription struct {
	FormatVersion uint16
	ServerVersion string
	HeaderLength  uint8
	ChecksumAlg   ChecksumAlg
}

type ChecksumAlg byte

const (
	ChecksumAlgOff   ChecksumAlg = 0
	ChecksumAlgCRC32 ChecksumAlg = 1
	ChecksumAlgUndef ChecksumAlg = 255
)

// ParseFormatDescription reads the FORMAT_DESCRIPTION body. body is the
// event payload past the fixed 19-byte header. The checksum algorithm
// byte, when present, is the last byte of the body — FORMAT_DESCRIPTION
// is the one event type whose own checksum algorithm is announced
// in-band rather than assumed from a prior handshake.
func ParseFormatDescription(body []byte) (FormatDescription, error) {
	const fixed = 2 + 50 + 4 + 1
	if len(body) < fixed {
		return FormatDescription{}, errShort("FORMAT_DESCRIPTION", fixed, len(body))
	}
	version, pos, _ := wire.ReadUint16(body, 0)
	serverVerBytes, pos, _ := wire.ReadBytes(body, pos, 50)
	_, pos, _ = wire.ReadUint32(body, pos) // created timestamp, unused
	headerLen, pos, _ := wire.ReadByte(body, pos)

	fd := FormatDescription{
		FormatVersion: version,
		ServerVersion: string(bytes.TrimRight(serverVerBytes, "\x00")),
		HeaderLength:  headerLen,
		ChecksumAlg:   ChecksumAlgUndef,
	}
	// Everything from pos to the end is the event-type-to-fixed-length
	// array, with the checksum algorithm byte appended at the very end
	// on servers that support it (5.6.1+). The last byte is taken as the
	// algorithm whenever the body extends past the fixed part; bodies
	// from older servers, which append no such byte, are not told apart,
	// so their last array entry is read instead. ChecksumAlg stays Undef
	// only when the body ends right after the fixed part.
	if pos < len(body) {
		fd.ChecksumAlg = ChecksumAlg(body[len(body)-1])
	}
	return fd, nil
}

func errShort(name string, want, got int) error {
	return fmt.Errorf("event: %s too short: want at least %d bytes, got %d", name, want, got)
}
