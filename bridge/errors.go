package bridge

import "github.com/pkg/errors"

// ErrNoAnswer is returned by WorkerRun/CommitJob when the job binary's
// pusher callback was never invoked - the module returned without ever
// producing a result. Callers map this onto wire.StatusModuleNoAnswer.
var ErrNoAnswer = errors.New("job binary never invoked the push callback")

// ErrDoublePush is returned when the pusher callback fired more than
// once for a single call - a job-binary bug, since the ABI allows
// exactly one push per worker_run/commit_job invocation. Callers map
// this onto wire.StatusModuleCtxErr.
var ErrDoublePush = errors.New("job binary invoked the push callback more than once")
