package replica

import (
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ParshinPavel/libslave/replica/conn"
	"github.com/ParshinPavel/libslave/replica/event"
	"github.com/ParshinPavel/libslave/replica/schema"
	"github.com/ParshinPavel/libslave/replica/state"
	"github.com/ParshinPavel/libslave/replica/wire"
)

// These are the MySQL error numbers classified as transport-transient: a
// read error that should reconnect and resume rather than surface to the
// caller. Any other read error also reconnects, logged first; the
// constants below only matter for the special-case handling of 2013
// during an in-flight interrupt request.
const (
	errPacketTooLarge = 1153
	errFatalBinlog    = 1236
	errLostConnection = 2013
)

// readLoop repeatedly reads one protocol packet, classifies it, and
// either advances state or signals a reconnect via errReconnect. It
// returns nil only when interrupt fires cleanly; any other return is
// either errReconnect or a fatal error the caller (Run) should surface.
func (c *Client) readLoop(interrupt func() bool) error {
	for {
		if interrupt() {
			return nil
		}

		res, err := c.conn.ReadEvent()
		if err != nil {
			code, _ := conn.Code(err)
			// On 2013 while the caller has already asked to stop, continue
			// the loop rather than reconnecting — the interrupt check at
			// the top of the next iteration is what actually ends it, not
			// a fresh handshake that would be thrown away immediately.
			if code == errLostConnection && interrupt() {
				continue
			}
			glog.Warningf("replica: read error (code %d): %v", code, err)
			return errReconnect
		}

		if res.EOF {
			continue
		}

		if err := c.processEvent(res.Event); err != nil {
			if _, isChecksum := errors.Cause(err).(*wire.ChecksumMismatchError); isChecksum {
				glog.Warningf("replica: %v", err)
				return errReconnect
			}
			if _, isSchemaFatal := errors.Cause(err).(*schema.FatalError); isSchemaFatal {
				return err
			}

			// Event-local error: tick the stat, pause 1s, and continue with
			// the next packet. Position is not advanced for the event that
			// failed.
			if c.stats != nil {
				c.stats.TickError()
			}
			glog.Errorf("replica: event processing error: %v", err)
			if !sleepInterruptible(time.Second, interrupt) {
				return nil
			}
			continue
		}
	}
}

// processEvent parses one raw event buffer and applies its effect:
// position tracking, schema binding, DDL re-discovery, and row-callback
// dispatch.
func (c *Client) processEvent(raw []byte) error {
	dec, err := c.parser.Parse(raw)
	if err != nil {
		return err
	}

	// Defensive against malformed timestamps: kept as a guard, not grown
	// into a validation layer.
	if int32(dec.Header.Timestamp) < 0 {
		glog.Warningf("replica: event with malformed negative timestamp, type=%s", dec.Header.Type)
	}

	switch {
	case dec.Rotate != nil:
		c.master.Position = state.Position{
			LogName: dec.Rotate.NextFile,
			LogPos:  uint32(dec.Rotate.NextPosition),
		}
		c.publishPosition()

	case dec.XID != nil:
		c.advancePosition(dec.Header)
		c.publishPosition()
		if c.xidCallback != nil {
			c.xidCallback(dec.Header.ServerID)
		}

	case dec.Query != nil:
		c.advancePosition(dec.Header)
		if err := c.watcher.Observe(dec.Query.Database, dec.Query.SQL); err != nil {
			return err
		}

	case dec.Table != nil:
		c.advancePosition(dec.Header)
		c.bindTableRouting(dec.Table.TableID, dec.Table.Database, dec.Table.Table)
		if c.stats != nil {
			c.stats.ProcessTableMap(dec.Table.TableID, dec.Table.Table, dec.Table.Database)
		}

	case dec.Rows != nil:
		c.advancePosition(dec.Header)
		c.dispatchRows(dec.Rows)

	default:
		c.advancePosition(dec.Header)
	}

	if c.adapter != nil {
		c.adapter.SetLastEventTimePos(time.Unix(int64(dec.Header.Timestamp), 0), dec.Header.NextLogPos)
	}
	return nil
}

// advancePosition updates the in-memory position from an event's
// next_log_pos. This is advisory — it is not what gets durably
// published; only publishPosition (called at XID and ROTATE) does that.
func (c *Client) advancePosition(hdr event.Header) {
	if hdr.NextLogPos > c.master.Position.LogPos {
		c.master.Position.LogPos = hdr.NextLogPos
	}
}

// publishPosition writes the current in-memory position to the
// ExternalStateAdapter and durably persists it — called only at the two
// points where the current position is guaranteed safe to resume from,
// XID and ROTATE.
func (c *Client) publishPosition() {
	if c.adapter == nil {
		return
	}
	c.adapter.SetMasterLogNamePos(c.master.Position.LogName, c.master.Position.LogPos)
	if err := c.adapter.SaveMasterInfo(); err != nil {
		glog.Errorf("replica: save master info: %v", err)
	}
}

// bindTableRouting records which subscription (if any) a table_id
// currently refers to, so dispatchRows doesn't need to re-resolve
// (db, table) names for every row.
func (c *Client) bindTableRouting(tableID uint64, database, table string) {
	c.tableBindings[tableID] = c.subscriptionFor(database, table)
}

// dispatchRows delivers each decoded row to its table's callback. A row
// event with no preceding TABLE_MAP binding is skipped, not fatal —
// c.tableBindings simply has no entry (event.Parser never produces a
// Rows value for an unbound table_id in the first place).
func (c *Client) dispatchRows(rows *event.Rows) {
	sub := c.tableBindings[rows.TableID]
	if sub == nil {
		return
	}

	kind := RowKind(rows.Kind)
	for _, row := range rows.Rows {
		if sub.filter != nil && !sub.filter(row.Before, row.After) {
			continue
		}
		sub.callback(kind, row.Before, row.After)
	}
}
