package jm

import (
	jsoniter "github.com/json-iterator/go"
)

// DumpSnapshot serializes a point-in-time view of the tasklist/completed
// sizes and the generation-done flag as JSON (useful for diagnosing a
// stuck pull engine - a task manager that disappeared mid-flight -
// without attaching a debugger). No endpoint in this module serves it.
func DumpSnapshot(s *State) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s.Snapshot())
}
