package jm

import (
	"context"
	"time"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/cmn/cos"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/perf"
	"github.com/caianbenedicto/spitz/spitzstats"
	"github.com/google/uuid"
)

// perfReportInterval mirrors PerfModule's reporting cadence for a
// long-running compute job; rinterv/subsamp in the original are
// constructor arguments, fixed here since the JM has no per-invocation
// knob for them.
const perfReportInterval = 10 * time.Second

// Config holds the job manager's fleet file location, kill-on-exit
// policy, and I/O timeouts - the Go shape of jm.py's jm_killtms/
// jm_conn_timeout/jm_recv_timeout/jm_send_timeout globals.
type Config struct {
	Nodefile    string
	KillTMs     bool
	ConnTimeout time.Duration
	RecvTimeout time.Duration
	SendTimeout time.Duration
	// MetricsAddr, if non-empty, serves the Prometheus gauges on
	// this host:port for the lifetime of Run.
	MetricsAddr string
	// Perf enables the ./perf/<uid>-{cpu,cpumem} sampler for the
	// lifetime of Run.
	Perf bool
}

// Run is the job manager's top-level entry: it optionally hands control
// to the job module's own spits_main before running the job, then kills
// the fleet once the module - directly or through spits_main - returns.
// Mirrors jm.py's main(): `r = job.spits_main(margv, run_wrapper)`
// happens before `if jm_killtms: killtms()`, not inside run() itself.
//
// stop lets a caller (e.g. a signal handler) request early shutdown;
// the engines only observe it between cycles, so neither aborts a
// handshake already in progress.
func Run(cfg Config, module *bridge.Module, argv []string, stop <-chan struct{}) (status int64, result []byte, err error) {
	nlog.Infof("job manager instance %s starting.", uuid.New())

	stats := spitzstats.NewJM()
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	go func() {
		if err := spitzstats.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
			nlog.Errorf("metrics exporter stopped: %v", err)
		}
	}()

	if cfg.Perf {
		sampler := perf.NewSampler(cos.GenUUID(), 0, perfReportInterval)
		defer sampler.Stop()
	}

	if module.HasMain() {
		nlog.Infof("module exports spits_main, handing off control...")
	}
	status, result, err = module.Main(argv, func(argv []string) (int64, []byte, error) {
		return runJob(cfg, module, argv, stop, stats)
	})

	if cfg.KillTMs {
		KillTMs(cfg.Nodefile, cfg.ConnTimeout)
	}

	return status, result, err
}

// runJob constructs the job manager and committer from the job module,
// drives the push and pull engines to completion, and commits the
// final job result. Mirrors jm.py's run(argv, job): spits_job_manager_new
// and spits_committer_new are each created once, the two engines run
// concurrently sharing one State, and spits_committer_commit_job runs
// only after both have finished.
func runJob(cfg Config, module *bridge.Module, argv []string, stop <-chan struct{}, stats *spitzstats.JM) (status int64, result []byte, err error) {
	state := NewState(stats)

	nlog.Infof("starting job manager...")
	jmHandle, err := module.JobManagerNew(argv)
	if err != nil {
		return 0, nil, err
	}
	defer module.JobManagerFinalize(jmHandle)

	nlog.Infof("starting committer...")
	coHandle, err := module.CommitterNew(argv)
	if err != nil {
		return 0, nil, err
	}
	defer module.CommitterFinalize(coHandle)

	push := NewPushEngine(state, module, jmHandle, cfg.Nodefile, cfg.ConnTimeout, cfg.RecvTimeout)
	pull := NewPullEngine(state, module, coHandle, cfg.Nodefile, cfg.ConnTimeout, cfg.RecvTimeout)

	done := make(chan struct{}, 2)
	go func() { push.Run(stop); done <- struct{}{} }()
	go func() { pull.Run(stop); done <- struct{}{} }()
	<-done
	<-done

	nlog.Infof("committing job...")
	status, result, err = module.CommitJob(coHandle)
	if err != nil {
		nlog.Errorf("error committing job: %v", err)
	}

	return status, result, err
}
