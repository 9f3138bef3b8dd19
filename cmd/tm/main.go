// Command tm is the task manager entry point: it loads a job binary,
// starts its worker pool, and serves push/pull connections from a job
// manager until terminated.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/cmn/cos"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/spitzcfg"
	"github.com/caianbenedicto/spitz/tm"
)

var (
	build     string
	buildtime string
)

func printVer() {
	fmt.Printf("spitz task manager, build %s (%s)\n", build, buildtime)
}

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "version" || os.Args[1] == "-version") {
		printVer()
		os.Exit(0)
	}

	if len(os.Args) == 1 {
		printVer()
		fmt.Fprintln(os.Stderr, "usage: tm [flags] <job-binary> [job-args...]")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, err := spitzcfg.ParseTM(flag.CommandLine, os.Args)
	if err != nil {
		cos.ExitLogf("%v", err)
	}
	if cfg.LogDir != "" {
		nlog.SetLogDirRole(cfg.LogDir, "tm")
	}
	nlog.SetTitle(fmt.Sprintf("spitz task manager, build %s (%s)", build, buildtime))

	module, err := bridge.Load(cfg.Module)
	if err != nil {
		cos.ExitLogf("failed to load job binary %q: %v", cfg.Module, err)
	}

	installSignalHandler()

	err = tm.Run(cfg.Config, module, cfg.ModuleArgs)
	nlog.Flush(true)
	if err != nil {
		cos.ExitLogf("task manager failed: %v", err)
	}
}

// installSignalHandler: an interrupt or termination signal exits
// cleanly rather than leaving the listener bound. A msg_terminate
// opcode over the wire is the ordinary shutdown path (Server.Handle
// calls os.Exit(0) directly); this is the fallback for an
// operator-driven shutdown.
func installSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Warningf("received interrupt, shutting down...")
		os.Exit(0)
	}()
}
