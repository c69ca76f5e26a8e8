package replica

import (
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/ddl"
	"github.com/ParshinPavel/libslave/replica/event"
	"github.com/ParshinPavel/libslave/replica/schema"
	"github.com/ParshinPavel/libslave/replica/state"
)

// minMasterVersion is the oldest server checkMasterVersion accepts.
var minMasterVersion = masterVersion{5, 1, 23}

// oldStorageCeiling is the version below which MasterInfo.IsOldStorage is
// set. Row decoding does not use that flag: each TIMESTAMP/DATETIME/TIME
// column's layout follows its own TABLE_MAP column-type byte (see
// event.applyTemporalReset).
var oldStorageCeiling = masterVersion{5, 6, 4}

type masterVersion struct {
	major, minor, patch int
}

func (v masterVersion) less(other masterVersion) bool {
	if v.major != other.major {
		return v.major < other.major
	}
	if v.minor != other.minor {
		return v.minor < other.minor
	}
	return v.patch < other.patch
}

func parseMasterVersion(s string) (masterVersion, error) {
	// SELECT VERSION() returns things like "5.7.20-log" or
	// "8.0.34-0ubuntu0.22.04.1" — only the leading major.minor.patch
	// matters here.
	core := s
	if i := strings.IndexAny(core, "-+ "); i >= 0 {
		core = core[:i]
	}
	parts := strings.SplitN(core, ".", 3)
	if len(parts) < 3 {
		return masterVersion{}, errors.Errorf("replica: unparseable server version %q", s)
	}
	v := masterVersion{}
	var err error
	if v.major, err = strconv.Atoi(parts[0]); err != nil {
		return masterVersion{}, errors.Wrapf(err, "replica: server version %q", s)
	}
	if v.minor, err = strconv.Atoi(parts[1]); err != nil {
		return masterVersion{}, errors.Wrapf(err, "replica: server version %q", s)
	}
	if v.patch, err = strconv.Atoi(parts[2]); err != nil {
		return masterVersion{}, errors.Wrapf(err, "replica: server version %q", s)
	}
	return v, nil
}

// handshake drives the Handshaking state: version check, binlog_format
// check, slave registration, checksum negotiation, and position
// bootstrap. reconnecting is true on every pass after a reconnect; such a
// pass skips the position bootstrap and resumes from the in-memory
// position. The checksum algorithm is renegotiated on every pass, since
// it is fixed only for the life of one dump session.
func (c *Client) handshake(reconnecting bool) error {
	if err := c.checkMasterVersion(); err != nil {
		return errors.Wrap(err, "check master version")
	}
	if err := c.checkMasterBinlogFormat(); err != nil {
		return errors.Wrap(err, "check master binlog_format")
	}

	if c.serverID == 0 {
		id, err := c.generateSlaveID()
		if err != nil {
			return errors.Wrap(err, "generate slave id")
		}
		c.serverID = id
	}
	if err := c.registerSlaveOnMaster(); err != nil {
		return errors.Wrap(err, "register slave on master")
	}

	alg, err := c.doChecksumHandshake()
	if err != nil {
		return errors.Wrap(err, "checksum handshake")
	}
	c.master.ChecksumAlg = alg

	if !reconnecting {
		if err := c.bootstrapPosition(); err != nil {
			return errors.Wrap(err, "bootstrap position")
		}
	}

	cat, err := schema.LoadCollationCatalog(c.metaDB)
	if err != nil {
		return errors.Wrap(err, "load collation catalog")
	}
	c.collations = cat
	c.registry = schema.NewRegistry(c.metaDB, cat)
	c.watcher = ddl.NewWatcher(c.registry, c)
	c.parser = event.NewParser(c.registry)
	c.parser.SetChecksumAlg(alg)

	return nil
}

// checkMasterVersion runs SELECT VERSION(), parses major.minor.patch,
// fails below 5.1.23, and sets MasterInfo.IsOldStorage = version < 5.6.4.
func (c *Client) checkMasterVersion() error {
	var raw string
	if err := c.metaDB.QueryRow("SELECT VERSION()").Scan(&raw); err != nil {
		return errors.Wrap(err, "SELECT VERSION()")
	}
	v, err := parseMasterVersion(raw)
	if err != nil {
		return err
	}
	if v.less(minMasterVersion) {
		return errors.Errorf("replica: master version %q is below the minimum supported 5.1.23", raw)
	}
	c.master.IsOldStorage = v.less(oldStorageCeiling)
	glog.Infof("replica: master version %q, is_old_storage=%v", raw, c.master.IsOldStorage)
	return nil
}

// checkMasterBinlogFormat requires binlog_format to be ROW: statement and
// mixed modes don't carry row images, which this client depends on.
func (c *Client) checkMasterBinlogFormat() error {
	var varName, value string
	row := c.metaDB.QueryRow("SHOW VARIABLES LIKE 'binlog_format'")
	if err := row.Scan(&varName, &value); err != nil {
		return errors.Wrap(err, "SHOW VARIABLES LIKE 'binlog_format'")
	}
	if !strings.EqualFold(value, "ROW") {
		return errors.Errorf("replica: binlog_format is %q, not ROW", value)
	}
	return nil
}

// generateSlaveID hashes (current_time XOR (pid << 16)) into a candidate
// server id, then linearly probes upward past any id SHOW SLAVE HOSTS
// already reports, to avoid colliding with another replica registered on
// the same master.
func (c *Client) generateSlaveID() (uint32, error) {
	seed := uint32(time.Now().Unix()) ^ (uint32(os.Getpid()) << 16)
	candidate := seed
	if candidate == 0 {
		candidate = 1
	}

	taken, err := c.slaveHostIDs()
	if err != nil {
		// SHOW SLAVE HOSTS failing is not itself configuration-fatal —
		// collision avoidance degrades to "pick the hash and hope".
		glog.Warningf("replica: SHOW SLAVE HOSTS failed, skipping collision probe: %v", err)
		return candidate, nil
	}

	for taken[candidate] {
		candidate++
		if candidate == 0 {
			candidate = 1
		}
	}
	return candidate, nil
}

func (c *Client) slaveHostIDs() (map[uint32]bool, error) {
	rows, err := c.metaDB.Query("SHOW SLAVE HOSTS")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	serverIDIdx := 0
	for i, name := range cols {
		if strings.EqualFold(name, "Server_id") {
			serverIDIdx = i
			break
		}
	}

	taken := make(map[uint32]bool)
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for i := range vals {
			scanArgs[i] = &vals[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		if id, err := strconv.ParseUint(vals[serverIDIdx].String, 10, 32); err == nil {
			taken[uint32(id)] = true
		}
	}
	return taken, rows.Err()
}

// registerSlaveOnMaster sends COM_REGISTER_SLAVE over the replication
// socket connection.
func (c *Client) registerSlaveOnMaster() error {
	return c.conn.RegisterSlave(c.serverID, c.cfg.ReportUser, c.cfg.ReportPassword, c.cfg.ReportPort)
}

// doChecksumHandshake runs SET @master_binlog_checksum =
// @@global.binlog_checksum; if the server
// rejects it as an unknown system variable, checksums are off (pre-5.6.1
// masters). Otherwise read back @master_binlog_checksum and map
// "NONE"->OFF, "CRC32"->CRC32; anything else is fatal.
func (c *Client) doChecksumHandshake() (event.ChecksumAlg, error) {
	_, err := c.metaDB.Exec("SET @master_binlog_checksum = @@global.binlog_checksum")
	if err != nil {
		if isUnknownSystemVariable(err) {
			glog.V(1).Infof("replica: master has no binlog_checksum variable, checksums off")
			return event.ChecksumAlgOff, nil
		}
		return 0, errors.Wrap(err, "SET @master_binlog_checksum")
	}

	var value string
	if err := c.metaDB.QueryRow("SELECT @master_binlog_checksum").Scan(&value); err != nil {
		return 0, errors.Wrap(err, "SELECT @master_binlog_checksum")
	}
	switch strings.ToUpper(value) {
	case "NONE":
		return event.ChecksumAlgOff, nil
	case "CRC32":
		return event.ChecksumAlgCRC32, nil
	default:
		return 0, errors.Errorf("replica: unknown binlog checksum algorithm %q", value)
	}
}

// isUnknownSystemVariable reports whether err is MySQL error 1193
// (ER_UNKNOWN_SYSTEM_VARIABLE); go-sql-driver/mysql surfaces it as a
// *mysql.MySQLError, checked by number rather than string match so this
// survives localized server error messages.
func isUnknownSystemVariable(err error) bool {
	if me, ok := err.(*mysqldriver.MySQLError); ok {
		return me.Number == 1193
	}
	return strings.Contains(err.Error(), "Unknown system variable")
}

// bootstrapPosition loads a saved (name, pos) from the ExternalStateAdapter,
// or falls back to SHOW MASTER STATUS and persists that before continuing.
func (c *Client) bootstrapPosition() error {
	if c.adapter != nil {
		if pos, ok, err := c.adapter.LoadMasterInfo(); err != nil {
			return errors.Wrap(err, "load master info")
		} else if ok {
			c.master.Position = pos
			glog.Infof("replica: resuming from saved position %s:%d", pos.LogName, pos.LogPos)
			return nil
		}
	}

	pos, err := c.showMasterStatus()
	if err != nil {
		return err
	}
	c.master.Position = pos
	glog.Infof("replica: starting from SHOW MASTER STATUS position %s:%d", pos.LogName, pos.LogPos)

	if c.adapter != nil {
		c.adapter.SetMasterLogNamePos(pos.LogName, pos.LogPos)
		if err := c.adapter.SaveMasterInfo(); err != nil {
			return errors.Wrap(err, "save master info")
		}
	}
	return nil
}

func (c *Client) showMasterStatus() (state.Position, error) {
	rows, err := c.metaDB.Query("SHOW MASTER STATUS")
	if err != nil {
		return state.Position{}, errors.Wrap(err, "SHOW MASTER STATUS")
	}
	defer rows.Close()

	if !rows.Next() {
		return state.Position{}, errors.New("replica: SHOW MASTER STATUS returned no rows (is binary logging enabled?)")
	}

	cols, err := rows.Columns()
	if err != nil {
		return state.Position{}, err
	}
	vals := make([]sql.NullString, len(cols))
	scanArgs := make([]interface{}, len(cols))
	for i := range vals {
		scanArgs[i] = &vals[i]
	}
	if err := rows.Scan(scanArgs...); err != nil {
		return state.Position{}, errors.Wrap(err, "scan SHOW MASTER STATUS")
	}

	// Columns are always File, Position, ... in that order across every
	// supported server version.
	pos, err := strconv.ParseUint(vals[1].String, 10, 32)
	if err != nil {
		return state.Position{}, errors.Wrapf(err, "replica: malformed SHOW MASTER STATUS position %q", vals[1].String)
	}
	return state.Position{LogName: vals[0].String, LogPos: uint32(pos)}, nil
}

// requestDump sends COM_BINLOG_DUMP from the in-memory (name, pos).
func (c *Client) requestDump() error {
	return c.conn.RequestDump(c.serverID, c.master.Position.LogName, c.master.Position.LogPos)
}
