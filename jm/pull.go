package jm

import (
	"time"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/wire"
)

const pullCycleBackoff = 2 * time.Second

// jobCommitter is the subset of *bridge.Module the pull engine needs.
type jobCommitter interface {
	CommitPit(h bridge.Handle, result []byte) (int64, error)
}

// PullEngine drains completed results from the fleet and commits each
// one through the job module's committer. Mirrors jm.py's committer().
type PullEngine struct {
	state       *State
	committer   jobCommitter
	handle      bridge.Handle
	nodefile    string
	connTimeout time.Duration
	recvTimeout time.Duration
}

func NewPullEngine(state *State, committer jobCommitter, handle bridge.Handle, nodefile string, connTimeout, recvTimeout time.Duration) *PullEngine {
	return &PullEngine{state: state, committer: committer, handle: handle, nodefile: nodefile, connTimeout: connTimeout, recvTimeout: recvTimeout}
}

// Run drives the pull cycle until state.Done(): all tasks generated and
// every in-flight task pulled back and committed.
func (e *PullEngine) Run(stop <-chan struct{}) {
	nlog.Infof("committer running...")
	cache := newFleetCache()
	fleet := cache.Load(e.nodefile)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if reloaded := cache.Load(e.nodefile); reloaded.Len() > 0 {
			fleet = reloaded
		} else {
			nlog.Warningf("new list of task managers is empty and will not be updated!")
		}

		fleet.Each(func(name string, m Member) {
			nlog.Infof("connecting to %s...", name)
			ep := m.dialEndpoint()
			if !e.setupForPulling(ep, name) {
				return
			}
			nlog.Infof("pulling tasks from %s...", name)

			e.commitTasks(ep, name)
			ep.Close()
			nlog.Infof("finished pulling tasks from %s.", name)
		})

		if e.state.Done() {
			nlog.Infof("all tasks committed.")
			return
		}

		time.Sleep(pullCycleBackoff)
	}
}

// setupForPulling dials member and asks to begin reading results,
// mirroring setup_endpoint_for_pulling.
func (e *PullEngine) setupForPulling(ep wire.Endpoint, name string) bool {
	if err := ep.Open(e.connTimeout); err != nil {
		nlog.Warningf("error connecting to task manager at %s: %v", name, err)
		ep.Close()
		return false
	}
	if err := ep.WriteInt64(int64(wire.MsgReadResult)); err != nil {
		nlog.Warningf("error connecting to task manager at %s: %v", name, err)
		ep.Close()
		return false
	}
	return true
}

// commitTasks drains ep's completion queue one result at a time,
// acking each with msg_read_result and committing it through the
// module's committer, until msg_read_empty or a connection failure.
// Mirrors commit_tasks.
//
// Per the pinned resolution of the duplicate-commit Open Question, a
// duplicate or stray taskid is logged but commit_pit is still invoked
// - the engine never silently drops a delivery.
func (e *PullEngine) commitTasks(ep wire.Endpoint, name string) {
	for {
		taskid, err := ep.ReadInt64(e.recvTimeout)
		if err != nil {
			return
		}
		if wire.Opcode(taskid) == wire.MsgReadEmpty {
			return
		}

		res, err := wire.ReadResultBody(ep, taskid, e.recvTimeout)
		if err != nil {
			return
		}

		if err := ep.WriteInt64(int64(wire.MsgReadResult)); err != nil {
			return
		}

		// Everything past this point mirrors jm.py's own comment: a
		// failure here would lose the task, since the TM has already
		// been told the result was received.

		switch {
		case wire.UpperFlag(res.Status) == wire.StatusModuleError:
			nlog.Errorf("the remote worker crashed while executing task %d!", taskid)
		case res.Status != 0:
			nlog.Errorf("the task %d was not successfully executed, worker returned %d!", taskid, res.Status)
		}

		duplicate, stray := e.state.beginCompletion(taskid, res.Status)
		if duplicate {
			nlog.Warningf("the task %d was received more than once!", taskid)
		}
		if stray {
			nlog.Errorf("the task %d was not in the working list!", taskid)
		}

		commitStatus, err := e.committer.CommitPit(e.handle, res.Bytes)
		if err != nil {
			nlog.Errorf("committer failed for task %d: %v", taskid, err)
		} else if commitStatus != 0 {
			nlog.Errorf("the task %d was not successfully committed, committer returned %d", taskid, commitStatus)
		}
		e.state.finishCompletion(taskid, commitStatus)
	}
}
