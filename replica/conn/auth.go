package conn

import (
	"crypto/sha1"

	"github.com/ParshinPavel/libslave/replica/wire"
	"github.com/pkg/errors"
)

// Client capability flags. Only the handful this client actually sets or
// reads are named; the rest of the protocol's flag space is irrelevant
// here since there is no TLS, no compression and no multi-statement use.
const (
	clientLongPassword     = 0x00000001
	clientProtocol41       = 0x00000200
	clientSecureConnection = 0x00008000
	clientPluginAuth       = 0x00080000
	clientLongFlag         = 0x00000004
	clientTransactions     = 0x00002000
)

const clientCapabilities = clientLongPassword | clientProtocol41 |
	clientSecureConnection | clientPluginAuth | clientLongFlag | clientTransactions

// handshake performs the server's initial handshake (v10) and responds
// with HandshakeResponse41 using mysql_native_password, the only
// authentication plugin MySQL 5.1+ speaks without extra negotiation.
func (c *Conn) handshake(user, password string) error {
	pkt, err := c.readPacket()
	if err != nil {
		return errors.Wrap(err, "conn: read initial handshake")
	}
	if len(pkt) > 0 && pkt[0] == errPacket {
		return parseErrPacket(pkt)
	}

	authData, err := parseHandshakeV10(pkt, c)
	if err != nil {
		return err
	}

	scramble := scramblePassword(authData, password)
	resp := buildHandshakeResponse41(user, scramble)
	if err := c.writePacket(resp); err != nil {
		return errors.Wrap(err, "conn: write handshake response")
	}

	reply, err := c.readPacket()
	if err != nil {
		return errors.Wrap(err, "conn: read handshake result")
	}
	if len(reply) > 0 && reply[0] == errPacket {
		return parseErrPacket(reply)
	}
	return nil
}

// parseHandshakeV10 reads the fields needed to build a response: the
// connection id (recorded on the Conn, not otherwise used) and the concatenated 20-byte
// auth-plugin-data scramble (split across two fields in the wire format).
func parseHandshakeV10(pkt []byte, c *Conn) ([]byte, error) {
	pos := 1 // protocol version, always 10 here
	version, next, ok := wire.ReadBytes(pkt, pos, indexByte(pkt[pos:], 0))
	if !ok {
		return nil, errors.New("conn: malformed handshake: server version")
	}
	c.serverVersion = string(version)
	pos = next + 1 // skip the NUL terminator

	connID, pos, ok := wire.ReadUint32(pkt, pos)
	if !ok {
		return nil, errors.New("conn: malformed handshake: connection id")
	}
	c.connectionID = connID

	authPart1, pos, ok := wire.ReadBytes(pkt, pos, 8)
	if !ok {
		return nil, errors.New("conn: malformed handshake: auth-plugin-data-part-1")
	}
	pos++ // filler byte

	pos += 2 // capability flags (lower 2 bytes) — not consulted, we always ask for native password
	if pos >= len(pkt) {
		return append([]byte{}, authPart1...), nil
	}
	pos++ // character set
	pos += 2 // status flags
	pos += 2 // capability flags (upper 2 bytes)

	authLen, pos, ok := wire.ReadByte(pkt, pos)
	if !ok {
		return append([]byte{}, authPart1...), nil
	}
	pos += 10 // reserved

	part2Len := int(authLen) - 8
	if part2Len < 0 {
		part2Len = 13
	}
	authPart2, _, ok := wire.ReadBytes(pkt, pos, part2Len)
	if !ok {
		return append([]byte{}, authPart1...), nil
	}
	// authPart2 is NUL-terminated; trim it.
	authPart2 = trimNUL(authPart2)

	return append(append([]byte{}, authPart1...), authPart2...), nil
}

// scramblePassword implements mysql_native_password:
// SHA1(password) XOR SHA1(authData + SHA1(SHA1(password))).
func scramblePassword(authData []byte, password string) []byte {
	if password == "" {
		return nil
	}
	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])

	h := sha1.New()
	h.Write(authData)
	h.Write(stage2[:])
	stage3 := h.Sum(nil)

	out := make([]byte, len(stage1))
	for i := range out {
		out[i] = stage1[i] ^ stage3[i]
	}
	return out
}

func buildHandshakeResponse41(user string, scramble []byte) []byte {
	buf := make([]byte, 0, 64+len(user)+len(scramble))
	buf = appendUint32(buf, clientCapabilities)
	buf = appendUint32(buf, 1<<24) // max packet size, 16MiB
	buf = append(buf, 0x21)        // character set: utf8_general_ci
	buf = append(buf, make([]byte, 23)...)
	buf = append(buf, []byte(user)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(scramble)))
	buf = append(buf, scramble...)
	buf = append(buf, []byte("mysql_native_password")...)
	buf = append(buf, 0)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return len(b)
}

func trimNUL(b []byte) []byte {
	if i := indexByte(b, 0); i < len(b) {
		return b[:i]
	}
	return b
}

// sqlError is an error carrying the server's numeric error code, so
// callers can classify transport-transient codes (1153, 1236, 2013)
// without string-matching the message.
type sqlError struct {
	Code    uint16
	Message string
}

func (e *sqlError) Error() string {
	return e.Message
}

// Code extracts the MySQL error code from err, if it or something it
// wraps carries one. readPacket/ReadEvent errors are routinely wrapped
// with errors.Wrap for context, so this unwraps via errors.Cause rather
// than asserting on err directly.
func Code(err error) (uint16, bool) {
	if se, ok := errors.Cause(err).(*sqlError); ok {
		return se.Code, true
	}
	return 0, false
}

func (e *sqlError) code() uint16 { return e.Code }

func parseErrPacket(pkt []byte) error {
	if len(pkt) < 3 {
		return errors.New("conn: malformed ERR packet")
	}
	code := uint16(pkt[1]) | uint16(pkt[2])<<8
	msg := string(pkt[3:])
	// A 5-byte SQL state marker ('#' + 5-char state) may follow the code
	// before the human-readable message; skip it if present.
	if len(pkt) > 3 && pkt[3] == '#' && len(pkt) >= 9 {
		msg = string(pkt[9:])
	}
	return &sqlError{Code: code, Message: msg}
}
