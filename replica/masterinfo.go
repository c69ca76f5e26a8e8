package replica

import (
	"github.com/ParshinPavel/libslave/replica/event"
	"github.com/ParshinPavel/libslave/replica/state"
)

// MasterInfo is the per-connection state learned and maintained across
// the life of a dump session. It is owned exclusively by the Client's
// read-loop goroutine.
type MasterInfo struct {
	ChecksumAlg  event.ChecksumAlg
	IsOldStorage bool
	Position     state.Position
}
