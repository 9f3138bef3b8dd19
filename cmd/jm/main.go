// Command jm is the job manager entry point: it loads a job binary and
// drives it to completion against the fleet of task managers named in
// its node list.
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
	"github.com/caianbenedicto/spitz/jm"
	"github.com/caianbenedicto/spitz/spitzcfg"
)

var (
	build     string
	buildtime string
)

func printVer() {
	fmt.Printf("spitz job manager, build %s (%s)\n", build, buildtime)
}

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "version" || os.Args[1] == "-version") {
		printVer()
		os.Exit(0)
	}

	if len(os.Args) == 1 {
		printVer()
		fmt.Fprintln(os.Stderr, "usage: jm [flags] <job-binary> [job-args...]")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, err := spitzcfg.ParseJM(flag.CommandLine, os.Args)
	if err != nil {
		cos.ExitLogf("%v", err)
	}
	if cfg.LogDir != "" {
		nlog.SetLogDirRole(cfg.LogDir, "jm")
	}
	nlog.SetTitle(fmt.Sprintf("spitz job manager, build %s (%s)", build, buildtime))

	module, err := bridge.Load(cfg.Module)
	if err != nil {
		cos.ExitLogf("failed to load job binary %q: %v", cfg.Module, err)
	}

	stop := make(chan struct{})
	installSignalHandler(stop)

	status, _, err := jm.Run(cfg.Config, module, cfg.ModuleArgs, stop)
	nlog.Flush(true)
	if err != nil {
		cos.ExitLogf("job manager failed: %v", err)
	}
	if status != 0 {
		os.Exit(1)
	}
}

func installSignalHandler(stop chan<- struct{}) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Warningf("received interrupt, shutting down...")
		close(stop)
	}()
}
