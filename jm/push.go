package jm

import (
	"time"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/wire"
)

const pushCycleBackoff = 250 * time.Millisecond

// jobGenerator is the subset of *bridge.Module the push engine needs,
// narrowed to an interface so tests can inject a fake generator instead
// of loading a real job binary through cgo/dlopen.
type jobGenerator interface {
	JobManagerNextTask(h bridge.Handle) (more bool, task []byte, err error)
}

// PushEngine streams generated tasks out to the fleet until the job
// module's generator is exhausted. Mirrors jm.py's jobmanager().
type PushEngine struct {
	state       *State
	gen         jobGenerator
	handle      bridge.Handle
	nodefile    string
	connTimeout time.Duration
	recvTimeout time.Duration
}

func NewPushEngine(state *State, gen jobGenerator, handle bridge.Handle, nodefile string, connTimeout, recvTimeout time.Duration) *PushEngine {
	return &PushEngine{state: state, gen: gen, handle: handle, nodefile: nodefile, connTimeout: connTimeout, recvTimeout: recvTimeout}
}

// Run drives the push cycle: reload the fleet, dial each member in file
// order, push as many tasks as it accepts, and repeat until next_task
// reports the generation exhausted. Returns once state.genDone is set.
func (e *PushEngine) Run(stop <-chan struct{}) {
	nlog.Infof("job manager running...")
	cache := newFleetCache()
	fleet := cache.Load(e.nodefile)

	var taskid int64
	var held []byte

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

		finished := false
		fleet.Each(func(name string, m Member) {
			if finished {
				return
			}
			nlog.Infof("connecting to %s...", name)
			ep := m.dialEndpoint()
			if !e.setupForPushing(ep, name) {
				return
			}
			nlog.Infof("pushing tasks to %s...", name)

			var done bool
			done, taskid, held = e.pushTasks(ep, name, taskid, held)
			ep.Close()
			nlog.Infof("finished pushing tasks to %s.", name)

			if done {
				nlog.Infof("all tasks generated.")
				e.state.markGenerationDone()
				finished = true
			}
		})
		if finished {
			return
		}

		time.Sleep(pushCycleBackoff)
	}
}

// setupForPushing dials member and asks it to begin accepting tasks,
// mirroring setup_endpoint_for_pushing.
func (e *PushEngine) setupForPushing(ep wire.Endpoint, name string) bool {
	if err := ep.Open(e.connTimeout); err != nil {
		nlog.Warningf("error connecting to task manager at %s: %v", name, err)
		ep.Close()
		return false
	}
	if err := ep.WriteInt64(int64(wire.MsgSendTask)); err != nil {
		nlog.Warningf("error connecting to task manager at %s: %v", name, err)
		ep.Close()
		return false
	}
	resp, err := ep.ReadInt64(e.recvTimeout)
	if err != nil {
		nlog.Warningf("error connecting to task manager at %s: %v", name, err)
		ep.Close()
		return false
	}
	switch wire.Opcode(resp) {
	case wire.MsgSendMore:
		return true
	case wire.MsgSendFull:
		nlog.Infof("task manager at %s is full.", name)
	default:
		nlog.Errorf("unknown response from the task manager!")
	}
	ep.Close()
	return false
}

// pushTasks pushes generated tasks to ep until the generation is
// exhausted, ep goes full, rejects a task, or the connection fails.
// Mirrors push_tasks: a non-nil held task is retried before generating
// a new one, so a task survives a dropped connection to be retried on
// the next fleet member.
func (e *PushEngine) pushTasks(ep wire.Endpoint, name string, taskid int64, held []byte) (finished bool, _ int64, _ []byte) {
	for {
		if held == nil {
			taskid++
			more, task, err := e.gen.JobManagerNextTask(e.handle)
			if err != nil {
				nlog.Errorf("job manager generator failed: %v", err)
				return false, taskid, nil
			}
			if !more {
				return true, 0, nil
			}
			held = task
			e.state.insertPending(taskid, task)
			nlog.Infof("generated task %d.", taskid)
		}

		nlog.Infof("pushing %d...", taskid)
		if err := wire.WriteTask(ep, wire.Task{ID: taskid, Payload: held}); err != nil {
			return false, taskid, held
		}

		resp, err := ep.ReadInt64(e.recvTimeout)
		if err != nil {
			return false, taskid, held
		}

		switch wire.Opcode(resp) {
		case wire.MsgSendFull:
			return false, taskid, nil
		case wire.MsgSendMore:
			held = nil
		case wire.MsgSendRjct:
			// The task was never accepted; it survives to be retried
			// on the next fleet member, exactly as push_tasks leaves
			// its local `task` unset before breaking out.
			nlog.Warningf("task manager at %s rejected task %d", name, taskid)
			return false, taskid, held
		default:
			nlog.Errorf("unknown response from the task manager!")
			return false, taskid, held
		}
	}
}
