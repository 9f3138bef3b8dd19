// Package nlog - the framework's own logger, provides buffering, timestamping, writing,
// and flushing/syncing.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
)

// MaxSize is the number of buffered bytes, per severity, tolerated before
// a synchronous flush to disk is forced.
var MaxSize int64 = 4 * 1024 * 1024

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// SetLogDirRole points the logger at a directory and tags output file names
// with role (e.g. "jm" or "tm"). Called once at startup, before the first log line.
func SetLogDirRole(dir, r string) { logDir, role = dir, r }

func SetTitle(s string) { title = s }

func InfoLogName() string { return sname() + "." + sevText[sevInfo] }
func ErrLogName() string  { return sname() + "." + sevText[sevErr] }

// Flush forces buffered log lines to disk. Pass true on process exit to
// also sync and close the underlying files.
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	flushOne(nlogs[sevInfo], ex)
	flushOne(nlogs[sevErr], ex)
}
