// Package conn implements the minimal raw MySQL client-protocol
// connection a replica-impersonating client needs: the initial
// handshake/login, and the two verbs no database/sql driver exposes,
// COM_REGISTER_SLAVE and COM_BINLOG_DUMP. Everything else (schema
// introspection, SHOW MASTER STATUS, and the like) goes through an
// ordinary database/sql connection instead; see replica/schema and
// replica.Client.
package conn

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Command bytes, per the MySQL client/server protocol.
const (
	comQuit          = 0x01
	comQuery         = 0x03
	comRegisterSlave = 0x15
	comBinlogDump    = 0x12
)

// Packet header markers seen as the first byte of a command response.
const (
	okPacket  = 0x00
	eofPacket = 0xfe
	errPacket = 0xff
)

// Conn is a single MySQL protocol connection used purely for the
// replication handshake and event stream. It is not safe for concurrent
// use — ReplicationClient drives it from one goroutine only.
type Conn struct {
	netConn net.Conn
	r       *bufio.Reader
	seq     byte

	// serverVersion and connectionID are recorded from the initial
	// handshake packet; nothing is negotiated from them — there's no TLS
	// and no compression here.
	serverVersion string
	connectionID  uint32
}

// DialConfig carries what Dial needs; it is the replication-socket
// analogue of a database/sql DSN, but there's no driver to hand a DSN
// string to here, so it's a plain struct instead.
type DialConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// Dial opens a TCP connection to addr and performs the MySQL client
// handshake (handshake v10 / native password), leaving the connection
// ready for simpleCommand calls.
func Dial(cfg DialConfig) (*Conn, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "conn: dial %s", addr)
	}

	c := &Conn{netConn: nc, r: bufio.NewReaderSize(nc, 16*1024)}
	if err := c.handshake(cfg.User, cfg.Password); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Close sends COM_QUIT best-effort and closes the socket. Errors from the
// COM_QUIT are deliberately ignored: a replica disconnecting shouldn't
// block on the master's acknowledgment, so it is sent fire-and-forget.
func (c *Conn) Close() error {
	_ = c.writePacket([]byte{comQuit})
	return c.netConn.Close()
}

// readPacket reads one full MySQL protocol packet, reassembling any
// 0xffffff-boundary split (a payload of 2^24-1 bytes or more travels as
// consecutive 0xffffff-byte chunks ended by a shorter, possibly empty,
// chunk, and must be reassembled by the reader).
func (c *Conn) readPacket() ([]byte, error) {
	var payload []byte
	for {
		header := make([]byte, 4)
		if _, err := readFull(c.r, header); err != nil {
			return nil, errors.Wrap(err, "conn: read packet header")
		}
		length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
		seq := header[3]
		c.seq = seq + 1

		chunk := make([]byte, length)
		if length > 0 {
			if _, err := readFull(c.r, chunk); err != nil {
				return nil, errors.Wrap(err, "conn: read packet body")
			}
		}
		payload = append(payload, chunk...)
		if length < 0xffffff {
			return payload, nil
		}
	}
}

// writePacket frames payload as one or more MySQL protocol packets,
// splitting at the 0xffffff boundary exactly as readPacket expects to
// reassemble it.
func (c *Conn) writePacket(payload []byte) error {
	for {
		n := len(payload)
		if n > 0xffffff {
			n = 0xffffff
		}
		header := []byte{byte(n), byte(n >> 8), byte(n >> 16), c.seq}
		c.seq++
		if _, err := c.netConn.Write(header); err != nil {
			return errors.Wrap(err, "conn: write packet header")
		}
		if n > 0 {
			if _, err := c.netConn.Write(payload[:n]); err != nil {
				return errors.Wrap(err, "conn: write packet body")
			}
		}
		payload = payload[n:]
		if len(payload) == 0 && n < 0xffffff {
			return nil
		}
	}
}

// simpleCommand sends a one-byte command code followed by body, after
// resetting the packet sequence number (every new command restarts it at
// 0, per the protocol). It reads no response: callers that expect an
// OK/ERR reply read it with readPacket, and the COM_BINLOG_DUMP stream is
// read packet by packet through ReadEvent.
func (c *Conn) simpleCommand(command byte, body []byte) error {
	c.seq = 0
	buf := make([]byte, 1+len(body))
	buf[0] = command
	copy(buf[1:], body)
	return c.writePacket(buf)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
