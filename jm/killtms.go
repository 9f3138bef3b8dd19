package jm

import (
	"time"

	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/wire"
)

// KillTMs reloads the fleet one last time and sends msg_terminate to
// every member, closing each connection immediately after. Errors
// connecting to any one member are logged and otherwise ignored, since
// a TM that's already gone doesn't need to be told to stop. Mirrors
// jm.py's killtms().
func KillTMs(nodefile string, connTimeout time.Duration) {
	nlog.Infof("killing task managers...")
	fleet := newFleetCache().Load(nodefile)

	fleet.Each(func(name string, m Member) {
		nlog.Infof("connecting to %s...", name)
		ep := m.dialEndpoint()
		if err := ep.Open(connTimeout); err != nil {
			nlog.Warningf("error connecting to task manager at %s: %v", name, err)
			return
		}
		if err := ep.WriteInt64(int64(wire.MsgTerminate)); err != nil {
			nlog.Warningf("error connecting to task manager at %s: %v", name, err)
		}
		ep.Close()
	})
}
