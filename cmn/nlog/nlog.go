// Package nlog is the framework's own logger: line-buffered, timestamped,
// severity-leveled, with size-triggered flushing to disk (log files are
// never rotated).
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/caianbenedicto/spitz/cmn/mono"
)

const maxLineSize = 2 * 1024

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}
var sevText = [...]string{sevInfo: "INFO", sevWarn: "WARNING", sevErr: "ERROR"}

type nlog struct {
	mw      sync.Mutex
	w       *bufio.Writer
	file    *os.File
	written int64
	last    int64 // mono.NanoTime of last flush
	sev     severity
}

var (
	nlogs = [...]*nlog{
		sevInfo: {sev: sevInfo},
		sevWarn: {sev: sevWarn},
		sevErr:  {sev: sevErr},
	}

	toStderr     bool
	alsoToStderr bool
	logDir       string
	role         string
	title        string

	host, _ = os.Hostname()
	pid     = os.Getpid()

	once sync.Once
)

func ensure(n *nlog) {
	if n.w != nil || toStderr {
		return
	}
	if logDir == "" {
		n.w = bufio.NewWriter(os.Stderr)
		return
	}
	name := fmt.Sprintf("%s.%s.%s.%s.%d.log", sname(), host, role, sevText[n.sev], pid)
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		n.w = bufio.NewWriter(os.Stderr)
		return
	}
	n.file = f
	n.w = bufio.NewWriter(f)
	hdr := fmt.Sprintf("Started up at %s, host %s, %s for %s/%s\n",
		time.Now().Format("2006/01/02 15:04:05"), host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	n.w.WriteString(hdr)
	if title != "" {
		n.w.WriteString(title + "\n")
	}
}

func sname() string {
	if role != "" {
		return role
	}
	return filepath.Base(os.Args[0])
}

func header(sev severity, depth int) string {
	_, fn, ln, ok := runtime.Caller(3 + depth)
	if !ok {
		fn, ln = "???", 0
	} else if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
		fn = fn[idx+1:]
	}
	now := time.Now()
	return fmt.Sprintf("%c %s %s:%d] ", sevChar[sev], now.Format("15:04:05.000000"), fn, ln)
}

func format(sev severity, depth int, f string, args ...any) string {
	hdr := header(sev, depth+1)
	var msg string
	if f == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(f, args...)
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
	}
	return hdr + msg
}

func log(sev severity, depth int, f string, args ...any) {
	once.Do(func() {})
	line := format(sev, depth+1, f, args...)

	if toStderr || (alsoToStderr && sev < sevErr) || sev >= sevErr {
		os.Stderr.WriteString(line)
	}
	if toStderr {
		return
	}

	write(nlogs[sevInfo], line)
	if sev >= sevWarn {
		write(nlogs[sevErr], line)
	}
}

func write(n *nlog, line string) {
	n.mw.Lock()
	ensure(n)
	n.w.WriteString(line)
	n.written += int64(len(line))
	n.last = mono.NanoTime()
	if n.w.Buffered() >= maxLineSize || n.written >= MaxSize {
		n.w.Flush()
		n.written = 0
	}
	n.mw.Unlock()
}

func flushOne(n *nlog, exit bool) {
	n.mw.Lock()
	if n.w != nil {
		n.w.Flush()
	}
	if exit && n.file != nil {
		n.file.Sync()
		n.file.Close()
	}
	n.mw.Unlock()
}
