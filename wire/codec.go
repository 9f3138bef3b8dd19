package wire

import "time"

// Task is one outbound (taskid, payload) pair as pushed by the job
// manager and received by the task manager's intake loop.
type Task struct {
	ID      int64
	Payload []byte
}

// Result is one (taskid, status, bytes) triple as produced by a worker
// and pulled by the job manager.
type Result struct {
	ID     int64
	Status int64
	Bytes  []byte
}

// WriteTask writes (taskid, len(payload), payload) - the three frames a
// JM sends per pushed task in the push handshake.
func WriteTask(e Endpoint, t Task) error {
	if err := e.WriteInt64(t.ID); err != nil {
		return err
	}
	if err := e.WriteInt64(int64(len(t.Payload))); err != nil {
		return err
	}
	return e.Write(t.Payload)
}

// ReadTaskBody reads the payload-length and payload frames that follow a
// taskid already read by the caller (the TM's intake loop reads the
// taskid itself to decide whether to keep looping).
func ReadTaskBody(e Endpoint, readTimeout time.Duration) ([]byte, error) {
	n, err := e.ReadInt64(readTimeout)
	if err != nil {
		return nil, err
	}
	return e.Read(int(n), readTimeout)
}

// WriteResult writes (taskid, status, len(bytes), bytes) - the four
// frames a TM sends per drained completion-queue entry in the pull
// handshake.
func WriteResult(e Endpoint, r Result) error {
	if err := e.WriteInt64(r.ID); err != nil {
		return err
	}
	if err := e.WriteInt64(r.Status); err != nil {
		return err
	}
	if err := e.WriteInt64(int64(len(r.Bytes))); err != nil {
		return err
	}
	return e.Write(r.Bytes)
}

// ReadResultBody reads the status/length/bytes frames that follow a
// taskid already read by the caller.
func ReadResultBody(e Endpoint, taskid int64, readTimeout time.Duration) (Result, error) {
	status, err := e.ReadInt64(readTimeout)
	if err != nil {
		return Result{}, err
	}
	n, err := e.ReadInt64(readTimeout)
	if err != nil {
		return Result{}, err
	}
	b, err := e.Read(int(n), readTimeout)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: taskid, Status: status, Bytes: b}, nil
}
