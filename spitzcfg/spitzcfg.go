// Package spitzcfg turns command-line flags into the job manager's and
// task manager's run configs. Mirrors Args.py/libspitz/config's defaults,
// expressed as a predeclared flag.FlagSet instead of Args.py's generic
// "--key=value until the first bare argument" scanner: flag.Parse()
// already stops at the first non-flag token, so the module path and its
// own argv fall out of fs.Args() with no custom scanner needed.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package spitzcfg

import (
	"flag"
	"fmt"
	"runtime"
	"time"

	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/jm"
	"github.com/caianbenedicto/spitz/tm"
)

// Default ports, straight out of libspitz/config's spitz_jm_port/
// spitz_tm_port. conn/recv/send timeouts default to 0 (no deadline),
// matching config's send_timeout = recv_timeout = conn_timeout = None.
const (
	DefaultJMPort = 7726
	DefaultTMPort = 7727

	DefaultNodefile = "nodes.txt"
)

// JM holds the parsed job manager invocation: the run config plus the
// job module path and the argv to forward to it.
type JM struct {
	Config      jm.Config
	MetricsAddr string
	LogDir      string
	Module      string
	ModuleArgs  []string
}

// TM holds the parsed task manager invocation: the run config plus the
// job module path and the argv to forward to it.
//
// ConnTimeout is parsed for parity with the reference's -ctimeout flag
// but, like tm.py's own tm_conn_timeout, goes unused: the task manager
// only accepts connections, it never dials out.
type TM struct {
	Config      tm.Config
	ConnTimeout time.Duration
	MetricsAddr string
	LogDir      string
	Module      string
	ModuleArgs  []string
}

func secs(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// ParseJM declares the job manager's flags on fs, parses argv[1:], and
// returns the resulting config. argv[0] is the program name, matched to
// os.Args's own convention. The first non-flag argument is the job
// module's path; anything after it is forwarded to the module untouched.
func ParseJM(fs *flag.FlagSet, argv []string) (JM, error) {
	var (
		killtms     = fs.Bool("killtms", true, "terminate all task managers once the job finishes")
		ctimeout    = fs.Float64("ctimeout", 0, "socket connect timeout, in seconds (0 disables the timeout)")
		rtimeout    = fs.Float64("rtimeout", 0, "socket receive timeout, in seconds (0 disables the timeout)")
		stimeout    = fs.Float64("stimeout", 0, "socket send timeout, in seconds (0 disables the timeout)")
		nodefile    = fs.String("nodefile", DefaultNodefile, "path to the task manager list")
		metricsAddr = fs.String("metrics_addr", "", "optional host:port to expose Prometheus metrics on")
		perfSampler = fs.Bool("perf", false, "write periodic CPU/memory samples under ./perf/")
		logDir      = fs.String("log_dir", "", "directory to write log files to (empty logs to stderr)")
	)
	nlog.InitFlags(fs)

	if err := fs.Parse(argv[1:]); err != nil {
		return JM{}, err
	}
	args := fs.Args()
	if len(args) == 0 {
		return JM{}, fmt.Errorf("missing job module argument")
	}

	return JM{
		Config: jm.Config{
			Nodefile:    *nodefile,
			KillTMs:     *killtms,
			ConnTimeout: secs(*ctimeout),
			RecvTimeout: secs(*rtimeout),
			SendTimeout: secs(*stimeout),
			MetricsAddr: *metricsAddr,
			Perf:        *perfSampler,
		},
		MetricsAddr: *metricsAddr,
		LogDir:      *logDir,
		Module:      args[0],
		ModuleArgs:  args,
	}, nil
}

// ParseTM declares the task manager's flags on fs, parses argv[1:], and
// returns the resulting config. nw defaults to the number of logical
// CPUs, matching tm.py's default of os.cpu_count(); a non-positive -nw
// falls back to the same default.
func ParseTM(fs *flag.FlagSet, argv []string) (TM, error) {
	var (
		addr        = fs.String("tmaddr", "0.0.0.0", "address to bind the task manager's listener to")
		port        = fs.Int("tmport", DefaultTMPort, "port to bind the task manager's listener to")
		nw          = fs.Int("nw", runtime.NumCPU(), "number of worker goroutines (<=0 uses the number of logical CPUs)")
		overfill    = fs.Int("overfill", 0, "number of extra tasks the task manager may hold beyond nw before rejecting pushes")
		ctimeout    = fs.Float64("ctimeout", 0, "socket connect timeout, in seconds (0 disables the timeout)")
		rtimeout    = fs.Float64("rtimeout", 0, "socket receive timeout, in seconds (0 disables the timeout)")
		stimeout    = fs.Float64("stimeout", 0, "socket send timeout, in seconds (0 disables the timeout)")
		metricsAddr = fs.String("metrics_addr", "", "optional host:port to expose Prometheus metrics on")
		logDir      = fs.String("log_dir", "", "directory to write log files to (empty logs to stderr)")
	)
	nlog.InitFlags(fs)

	if err := fs.Parse(argv[1:]); err != nil {
		return TM{}, err
	}
	args := fs.Args()
	if len(args) == 0 {
		return TM{}, fmt.Errorf("missing job module argument")
	}

	workers := *nw
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return TM{
		Config: tm.Config{
			Addr:        *addr,
			Port:        *port,
			Workers:     workers,
			Overfill:    *overfill,
			RecvTimeout: secs(*rtimeout),
			SendTimeout: secs(*stimeout),
			MetricsAddr: *metricsAddr,
		},
		ConnTimeout: secs(*ctimeout),
		MetricsAddr: *metricsAddr,
		LogDir:      *logDir,
		Module:      args[0],
		ModuleArgs:  args,
	}, nil
}
