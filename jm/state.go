// Package jm implements the job manager: a push engine that streams
// generated tasks out to a fleet of task managers, a pull engine that
// drains their completion queues and commits results, and the fleet
// membership list both engines read.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package jm

import (
	"sync"

	"github.com/caianbenedicto/spitz/spitzstats"
)

// pendingTask is one outstanding entry in the tasklist: the payload the
// push engine sent (or is about to send again), mirroring jm.py's
// tasklist[taskid] = (status, task) tuple. status is never set and stays
// zero; the entry is removed as soon as a result for it comes back.
type pendingTask struct {
	status  int64
	payload []byte
}

// completedTask is one entry in the completed table: the worker status
// and the committer's per-task commit status, mirroring jm.py's
// completed[taskid] = (r, r2).
type completedTask struct {
	workerStatus int64
	commitStatus int64
}

// State holds everything shared between the push and pull engines:
// the in-flight tasklist, the completed table, and the generation-done
// flag. The Python original overloads completed[0] as that flag; the Go
// rendition keeps it as its own field since taskid 0 is never assigned.
type State struct {
	mu        sync.Mutex
	tasklist  map[int64]pendingTask
	completed map[int64]completedTask
	genDone   bool
	stats     *spitzstats.JM
}

// NewState builds an empty State. stats is optional - pass none in
// tests, or the process's *spitzstats.JM in jm/run.go to make the
// tasklist/completed sizes and duplicate/stray counts observable over
// the -metrics_addr exporter.
func NewState(stats ...*spitzstats.JM) *State {
	s := &State{
		tasklist:  make(map[int64]pendingTask),
		completed: make(map[int64]completedTask),
	}
	if len(stats) > 0 {
		s.stats = stats[0]
	}
	return s
}

// insertPending records a task as in-flight, called before the network
// send so a push that never gets acked still shows up in the tasklist.
func (s *State) insertPending(taskid int64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasklist[taskid] = pendingTask{payload: payload}
	if s.stats != nil {
		s.stats.Generated.Inc()
		s.stats.Pending.Set(float64(len(s.tasklist)))
	}
}

// markGenerationDone sets genDone, called once next_task returns 0.
func (s *State) markGenerationDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genDone = true
}

// beginCompletion removes taskid from the tasklist and provisionally
// records its worker status (commit status filled in later by
// finishCompletion, once commit_pit has actually been called - it's
// called outside any lock). Returns whether taskid was already present
// in completed (a duplicate delivery) and whether it was missing from
// both tables (a stray taskid never scheduled). Mirrors commit_tasks'
// ordering: the duplicate/stray checks and the tasklist.pop happen
// together, before commit_pit is invoked.
func (s *State) beginCompletion(taskid, workerStatus int64) (duplicate, stray bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, duplicate = s.completed[taskid]
	_, inTasklist := s.tasklist[taskid]
	stray = !inTasklist && !duplicate
	delete(s.tasklist, taskid)
	s.completed[taskid] = completedTask{workerStatus: workerStatus}
	if s.stats != nil {
		s.stats.Pending.Set(float64(len(s.tasklist)))
		s.stats.Completed.Set(float64(len(s.completed)))
		if duplicate {
			s.stats.Duplicates.Inc()
		}
		if stray {
			s.stats.StrayResults.Inc()
		}
	}
	return duplicate, stray
}

// finishCompletion fills in the commit status recorded by beginCompletion,
// once commit_pit has returned. Mirrors completed[taskid] = (r, r2).
func (s *State) finishCompletion(taskid, commitStatus int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.completed[taskid]
	c.commitStatus = commitStatus
	s.completed[taskid] = c
}

// Done reports whether the job is fully committed: no in-flight tasks
// remain and task generation has finished. Mirrors committer()'s
// "len(tasklist) == 0 and completed[0] == 1" exit check.
func (s *State) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genDone && len(s.tasklist) == 0
}

// Snapshot returns a point-in-time copy of the tasklist/completed sizes
// and the genDone flag, for the debug dump (jm/debugdump.go) and tests.
type Snapshot struct {
	Pending   int  `json:"pending"`
	Completed int  `json:"completed"`
	GenDone   bool `json:"gen_done"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Pending: len(s.tasklist), Completed: len(s.completed), GenDone: s.genDone}
}
