package conn

import (
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// errLostConnection is MySQL error 2013, CR_SERVER_LOST: the code the
// C client library reports for an unexpected socket failure while
// reading, which this package reproduces for any such failure since Go's
// net package reports it structurally (io.EOF, *net.OpError) rather than
// by number.
const errLostConnection = 2013

// RegisterSlave sends COM_REGISTER_SLAVE, announcing this connection as a
// replica identified by serverID. Body layout (net_store_data is a
// length-prefixed string: one length byte for anything under 251 bytes,
// which every field here always is):
//
//	4  server_id
//	lenenc-ish report_host
//	lenenc-ish report_user
//	lenenc-ish report_password
//	2  report_port
//	4  rpl_recovery_rank (always 0; unused since 5.5)
//	4  master_id (always 0; the master fills this in)
func (c *Conn) RegisterSlave(serverID uint32, reportUser, reportPassword string, reportPort uint16) error {
	host := reportHostname()

	buf := make([]byte, 0, 4+1+len(host)+1+len(reportUser)+1+len(reportPassword)+2+4+4)
	buf = appendUint32(buf, serverID)
	buf = appendNetString(buf, host)
	buf = appendNetString(buf, reportUser)
	buf = appendNetString(buf, reportPassword)
	buf = append(buf, byte(reportPort), byte(reportPort>>8))
	buf = appendUint32(buf, 0) // rpl_recovery_rank
	buf = appendUint32(buf, 0) // master_id, filled in by the master

	if err := c.simpleCommand(comRegisterSlave, buf); err != nil {
		return errors.Wrap(err, "conn: send COM_REGISTER_SLAVE")
	}
	reply, err := c.readPacket()
	if err != nil {
		return errors.Wrap(err, "conn: read COM_REGISTER_SLAVE reply")
	}
	if len(reply) > 0 && reply[0] == errPacket {
		return errors.Wrap(parseErrPacket(reply), "conn: register slave on master")
	}
	glog.V(1).Infof("conn: registered as slave, server_id=%d", serverID)
	return nil
}

// reportHostname returns the local hostname to report in
// COM_REGISTER_SLAVE, falling back to "0.0.0.0" when it can't be
// determined.
func reportHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "0.0.0.0"
	}
	return h
}

func appendNetString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, []byte(s)...)
}

// RequestDump sends COM_BINLOG_DUMP, asking the master to start streaming
// from (logName, pos). Body layout:
//
//	4  binlog_pos
//	2  binlog_flags (always 0 here — no BINLOG_DUMP_NON_BLOCK)
//	4  server_id
//	N  binlog_filename (no length prefix, no terminator)
func (c *Conn) RequestDump(serverID uint32, logName string, pos uint32) error {
	buf := make([]byte, 0, 4+2+4+len(logName))
	buf = appendUint32(buf, pos)
	buf = append(buf, 0, 0) // flags
	buf = appendUint32(buf, serverID)
	buf = append(buf, []byte(logName)...)

	if err := c.simpleCommand(comBinlogDump, buf); err != nil {
		return errors.Wrap(err, "conn: send COM_BINLOG_DUMP")
	}
	glog.V(1).Infof("conn: requested binlog dump from %s:%d", logName, pos)
	return nil
}

// EventResult is one packet read from an active COM_BINLOG_DUMP stream,
// classified by the read loop's rules for EOF-vs-error-vs-event.
type EventResult struct {
	// EOF is true when the master sends the 0xFE end-of-data marker
	// (length < 8, first byte 0xFE): "no event this cycle", not an error.
	EOF bool
	// Event is the raw event buffer (the common header onward), with the
	// leading 0x00 OK byte already stripped.
	Event []byte
}

// ReadEvent reads one packet from the dump stream and classifies it.
// A socket-level failure (EOF, reset, timeout) is reported with code
// 2013 ("lost connection"), matching what the MySQL C client library's
// mysql_errno() reports for the same condition — callers check conn.Code
// to distinguish transient disconnects (1153/1236/2013) from anything
// else.
func (c *Conn) ReadEvent() (EventResult, error) {
	pkt, err := c.readPacket()
	if err != nil {
		return EventResult{}, errors.Wrap(&sqlError{Code: errLostConnection, Message: err.Error()}, "conn: read binlog event")
	}

	if len(pkt) < 8 && len(pkt) > 0 && pkt[0] == eofPacket {
		return EventResult{EOF: true}, nil
	}
	if len(pkt) > 0 && pkt[0] == errPacket {
		return EventResult{}, errors.Wrap(parseErrPacket(pkt), "conn: binlog dump stream")
	}
	if len(pkt) == 0 {
		return EventResult{EOF: true}, nil
	}

	// First byte is the OK marker (0x00); the remainder is the event.
	return EventResult{Event: pkt[1:]}, nil
}
