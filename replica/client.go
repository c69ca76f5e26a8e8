// Package replica drives the replication handshake and event read loop:
// it impersonates a MySQL replica, decodes the primary's row-based binary
// log, and delivers typed rows to per-table callbacks while tracking and
// persisting replication position.
package replica

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/conn"
	"github.com/ParshinPavel/libslave/replica/ddl"
	"github.com/ParshinPavel/libslave/replica/event"
	"github.com/ParshinPavel/libslave/replica/schema"
	"github.com/ParshinPavel/libslave/replica/state"
)

// State is a Client's position in its connect/stream/reconnect state
// machine: Disconnected -> Connecting -> Handshaking -> Streaming ->
// (Error -> Reconnecting -> Handshaking) -> Streaming, with a terminal
// Stopped reached only when the caller's interrupt predicate fires.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// errReconnect is returned internally by readLoop to signal a
// transport-transient error: Run catches it and re-enters the handshake
// rather than surfacing it to the caller.
var errReconnect = errors.New("replica: transport-transient error")

// Client drives one replication session against a single primary. It is
// not safe for concurrent use outside of Subscribe/SetXIDCallback/
// SetStats, which are expected to be called before Run and never
// concurrently with it.
type Client struct {
	cfg     Config
	adapter state.Adapter

	mu          sync.Mutex
	subs        map[tableKey]*subscription
	xidCallback XIDCallback
	stats       StatsSink

	serverID uint32
	master   MasterInfo

	stateMu sync.Mutex
	state   State

	metaDB     *sql.DB
	registry   *schema.Registry
	collations *schema.CollationCatalog
	watcher    *ddl.Watcher
	parser     *event.Parser

	conn *conn.Conn

	// tableBindings maps a ROWS_EVENT's table_id to this Client's own
	// subscription, refreshed on every TABLE_MAP. It is a separate
	// binding from event.Parser's internal one: Parser's binding exists
	// to decode columns; this one exists to route the decoded row to the
	// right callback, and is nil'd out for tables nobody subscribed to so
	// ROWS_EVENTs against them are skipped without decoding overhead.
	tableBindings map[uint64]*subscription
}

// NewClient builds a Client. adapter may be nil, in which case position
// is never persisted across restarts and every run starts from whatever
// SHOW MASTER STATUS reports at connect time.
func NewClient(cfg Config, adapter state.Adapter) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:           cfg,
		adapter:       adapter,
		subs:          make(map[tableKey]*subscription),
		tableBindings: make(map[uint64]*subscription),
		serverID:      cfg.ServerID,
	}
}

// Subscribe registers a callback for every row event against
// database.table. filter may be nil to receive every row.
func (c *Client) Subscribe(database, table string, cb RowCallback, filter Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[tableKey{database, table}] = &subscription{
		database: database,
		table:    table,
		callback: cb,
		filter:   filter,
	}
}

// Subscribed implements ddl.Subscription so Watcher only rebuilds tables
// this Client actually delivers rows for.
func (c *Client) Subscribed(database, table string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[tableKey{database, table}]
	return ok
}

func (c *Client) subscriptionFor(database, table string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[tableKey{database, table}]
}

// SetXIDCallback registers the optional transaction-commit observer.
func (c *Client) SetXIDCallback(cb XIDCallback) {
	c.mu.Lock()
	c.xidCallback = cb
	c.mu.Unlock()
}

// SetStats registers the optional stats sink.
func (c *Client) SetStats(s StatsSink) {
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State reports the Client's current position in the state machine.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Run drives the handshake and read loop until interrupt returns true.
// Configuration-fatal and schema-fatal errors terminate Run and are
// returned to the caller; transport-transient errors are retried
// internally and never surfaced.
func (c *Client) Run(interrupt func() bool) error {
	reconnecting := false
	firstFailureLogged := false

	for {
		if interrupt() {
			c.setState(StateStopped)
			return nil
		}

		c.setState(StateConnecting)
		if c.adapter != nil {
			c.adapter.SetConnecting()
		}
		if err := c.connect(); err != nil {
			if !firstFailureLogged {
				glog.Warningf("replica: connect failed: %v", err)
				firstFailureLogged = true
			} else {
				glog.V(2).Infof("replica: connect retry failed: %v", err)
			}
			if !sleepInterruptible(c.cfg.ConnectRetry, interrupt) {
				c.setState(StateStopped)
				return nil
			}
			continue
		}
		firstFailureLogged = false

		c.setState(StateHandshaking)
		if err := c.handshake(reconnecting); err != nil {
			c.teardown()
			return errors.Wrap(err, "replica: handshake")
		}

		if err := c.requestDump(); err != nil {
			c.teardown()
			return errors.Wrap(err, "replica: request dump")
		}

		c.setState(StateStreaming)
		if c.adapter != nil {
			c.adapter.SetStateProcessing(true)
		}

		err := c.readLoop(interrupt)
		c.teardown()

		switch {
		case err == nil:
			c.setState(StateStopped)
			return nil
		case errors.Is(err, errReconnect):
			reconnecting = true
			c.setState(StateReconnecting)
			continue
		default:
			return err
		}
	}
}

// sleepInterruptible sleeps for d, polling interrupt every 100ms so a
// caller-initiated shutdown during the connect backoff isn't delayed by
// the full retry interval. Returns false if interrupted.
func sleepInterruptible(d time.Duration, interrupt func() bool) bool {
	const tick = 100 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if interrupt() {
			return false
		}
		time.Sleep(tick)
	}
	return !interrupt()
}

func (c *Client) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?parseTime=false", c.cfg.MysqlUser, c.cfg.MysqlPass, c.cfg.MysqlHost, c.cfg.MysqlPort)
}

// connect opens the two connections a session needs: the replication
// socket (conn.Conn) and a short-lived secondary "metadata" connection
// for schema introspection. They are never used concurrently, and both
// are torn down and reopened on every reconnect cycle.
func (c *Client) connect() error {
	db, err := sql.Open("mysql", c.dsn())
	if err != nil {
		return errors.Wrap(err, "replica: open metadata connection")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return errors.Wrap(err, "replica: ping metadata connection")
	}

	rc, err := conn.Dial(conn.DialConfig{
		Host:     c.cfg.MysqlHost,
		Port:     c.cfg.MysqlPort,
		User:     c.cfg.MysqlUser,
		Password: c.cfg.MysqlPass,
	})
	if err != nil {
		db.Close()
		return errors.Wrap(err, "replica: dial replication socket")
	}

	c.metaDB = db
	c.conn = rc
	return nil
}

func (c *Client) teardown() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.metaDB != nil {
		c.metaDB.Close()
		c.metaDB = nil
	}
}
