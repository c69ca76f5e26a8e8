package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParshinPavel/libslave/replica/event"
	"github.com/ParshinPavel/libslave/replica/field"
	"github.com/ParshinPavel/libslave/replica/state"
)

type fakeAdapter struct {
	saved   []state.Position
	current state.Position
}

func (f *fakeAdapter) LoadMasterInfo() (state.Position, bool, error) { return state.Position{}, false, nil }
func (f *fakeAdapter) SaveMasterInfo() error {
	f.saved = append(f.saved, f.current)
	return nil
}
func (f *fakeAdapter) SetMasterLogNamePos(name string, pos uint32) {
	f.current = state.Position{LogName: name, LogPos: pos}
}
func (f *fakeAdapter) SetLastEventTimePos(time.Time, uint32) {}
func (f *fakeAdapter) SetConnecting()                        {}
func (f *fakeAdapter) SetStateProcessing(bool)                {}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultReportUser, cfg.ReportUser)
	assert.Equal(t, defaultReportPassword, cfg.ReportPassword)
	assert.Equal(t, defaultConnectRetry, cfg.ConnectRetry)

	cfg2 := Config{ReportUser: "custom", ConnectRetry: 30 * time.Second}.withDefaults()
	assert.Equal(t, "custom", cfg2.ReportUser)
	assert.Equal(t, 30*time.Second, cfg2.ConnectRetry)
}

func TestDispatchRowsDeliversToSubscribedTable(t *testing.T) {
	c := NewClient(Config{}, nil)

	var got []RowKind
	var gotAfter [][]field.Value
	c.Subscribe("shop", "item", func(kind RowKind, before, after []field.Value) {
		got = append(got, kind)
		gotAfter = append(gotAfter, after)
	}, nil)

	c.bindTableRouting(108, "shop", "item")

	rows := &event.Rows{
		TableID: 108,
		Kind:    event.RowInsert,
		Rows: []event.Row{
			{After: []field.Value{{Kind: field.KindInt, Int: 42}}},
		},
	}
	c.dispatchRows(rows)

	require.Len(t, got, 1)
	assert.Equal(t, Insert, got[0])
	assert.Equal(t, int64(42), gotAfter[0][0].Int)
}

func TestDispatchRowsSkipsUnboundTable(t *testing.T) {
	c := NewClient(Config{}, nil)

	called := false
	c.Subscribe("shop", "item", func(kind RowKind, before, after []field.Value) {
		called = true
	}, nil)
	// No TABLE_MAP seen for table_id 999: bindTableRouting was never called.

	c.dispatchRows(&event.Rows{TableID: 999, Kind: event.RowInsert, Rows: []event.Row{{}}})
	assert.False(t, called)
}

func TestDispatchRowsHonorsFilter(t *testing.T) {
	c := NewClient(Config{}, nil)

	var delivered int
	c.Subscribe("shop", "item", func(kind RowKind, before, after []field.Value) {
		delivered++
	}, func(before, after []field.Value) bool {
		return after[0].Int > 10
	})
	c.bindTableRouting(1, "shop", "item")

	c.dispatchRows(&event.Rows{
		TableID: 1,
		Kind:    event.RowInsert,
		Rows: []event.Row{
			{After: []field.Value{{Kind: field.KindInt, Int: 5}}},
			{After: []field.Value{{Kind: field.KindInt, Int: 15}}},
		},
	})
	assert.Equal(t, 1, delivered)
}

func TestAdvancePositionIsMonotonic(t *testing.T) {
	c := NewClient(Config{}, nil)
	c.master.Position.LogPos = 100

	c.advancePosition(event.Header{NextLogPos: 50})
	assert.Equal(t, uint32(100), c.master.Position.LogPos, "must not regress")

	c.advancePosition(event.Header{NextLogPos: 250})
	assert.Equal(t, uint32(250), c.master.Position.LogPos)
}

func TestPublishPositionWritesThroughAdapter(t *testing.T) {
	adapter := &fakeAdapter{}
	c := NewClient(Config{}, adapter)
	c.master.Position = state.Position{LogName: "mysql-bin.000003", LogPos: 874}

	c.publishPosition()

	require.Len(t, adapter.saved, 1)
	assert.Equal(t, "mysql-bin.000003", adapter.saved[0].LogName)
	assert.Equal(t, uint32(874), adapter.saved[0].LogPos)
}

func TestRotateResetsPositionToFour(t *testing.T) {
	c := NewClient(Config{}, nil)
	c.master.Position = state.Position{LogName: "mysql-bin.000001", LogPos: 98234}
	c.parser = event.NewParser(nil)

	err := c.processEvent(buildRotateEvent(t, "mysql-bin.000002", 4))
	require.NoError(t, err)
	assert.Equal(t, "mysql-bin.000002", c.master.Position.LogName)
	assert.Equal(t, uint32(4), c.master.Position.LogPos)
}

// buildRotateEvent constructs a minimal raw ROTATE_EVENT buffer (19-byte
// common header + 8-byte position + filename) with no checksum trailer,
// matching what Parser.Parse expects when SetChecksumAlg was never
// called (checksums off by default).
func buildRotateEvent(t *testing.T, file string, pos uint64) []byte {
	t.Helper()
	buf := make([]byte, 19)
	buf[4] = byte(event.TypeRotate)
	body := make([]byte, 8+len(file))
	for i := 0; i < 8; i++ {
		body[i] = byte(pos >> (8 * i))
	}
	copy(body[8:], file)
	return append(buf, body...)
}
