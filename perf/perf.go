// Package perf is a minimal CPU/memory sampler writing the same
// ./perf/<uid>-cpu and ./perf/<uid>-cpumem files the reference's
// PerfModule produces, trimmed to that file-naming and header-comment
// contract rather than reproducing every corner of its /proc parsing
// (page-size fallback probing, Windows stubs, and the like are out of
// scope, per the performance-sampling subsystem being covered "only
// where it affects the core").
/*
 * Copyright (c) 2017, Caian Benedicto <caian@ggaunicamp.com>
 */
package perf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caianbenedicto/spitz/cmn/nlog"
)

// clockTicksPerSec is Linux's near-universal USER_HZ; the original reads
// it via os.sysconf(SC_CLK_TCK) but every common distribution fixes it
// at 100, and a fixed constant avoids a cgo sysconf call for one number.
const clockTicksPerSec = 100

const perfDir = "./perf"

// Sampler periodically reads /proc/self/stat and appends a summary row
// to ./perf/<uid>-cpu and ./perf/<uid>-cpumem, mirroring PerfModule's
// RunCPU/Dump. nworkers is recorded but never used to normalize a
// statistic, exactly as in the original.
type Sampler struct {
	uid      string
	nworkers int
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSampler starts the background sampling goroutine. uid should come
// from cmn/cos.GenUUID so concurrent JM/TM processes never collide on a
// perf file name.
func NewSampler(uid string, nworkers int, interval time.Duration) *Sampler {
	s := &Sampler{uid: uid, nworkers: nworkers, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
	nlog.Infof("starting performance sampler...")
	go s.run()
	return s
}

// Stop signals the sampling goroutine to exit and waits for it.
func (s *Sampler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sampler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	pagesize := int64(os.Getpagesize())
	first := true
	var lastWall, startWall time.Time
	var lastUser, lastSys, startUser, startSys float64

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			rss, ut, st, err := readSelfStat()
			if err != nil {
				nlog.Warningf("performance sampler: %v", err)
				continue
			}
			rssMiB := float64(rss*pagesize) / 1024 / 1024
			userSecs := ut / clockTicksPerSec
			sysSecs := st / clockTicksPerSec

			if first {
				first = false
				lastWall, lastUser, lastSys = now, userSecs, sysSecs
				startWall, startUser, startSys = now, userSecs, sysSecs
				continue
			}

			delta := now.Sub(lastWall).Seconds()
			if delta <= 0 {
				continue
			}
			upct := (userSecs - lastUser) * 100 / delta
			spct := (sysSecs - lastSys) * 100 / delta
			tpct := upct + spct
			wallUs := now.Sub(startWall).Microseconds()

			s.dump("cpu", cpuHeader, []any{s.nworkers, wallUs, int64((userSecs - startUser) * 1e6), int64((sysSecs - startSys) * 1e6), upct, spct, tpct})
			s.dump("cpumem", memHeader, []any{wallUs, rssMiB})

			lastWall, lastUser, lastSys = now, userSecs, sysSecs
		}
	}
}

const cpuHeader = `# (1) Number of compute workers
# (2) Total wall time (since beginning of the sampler) [us]
# (3) Total user time (since beginning of the sampler) [us]
# (4) Total system time (since beginning of the sampler) [us]
# (5) CPU utilization in user mode [%]
# (6) CPU utilization in system mode [%]
# (7) Total CPU utilization [%]`

const memHeader = `# (1) Total wall time (since beginning of the sampler) [us]
# (2) Resident set size [MiB]`

// dump appends one row to ./perf/<uid>-tag, writing header first if the
// file doesn't already exist - mirrors PerfModule.Dump's "new" flag,
// simplified to an existence check before every write instead of
// the original's always-truncate-on-first-write flag threaded from the
// caller.
func (s *Sampler) dump(tag, header string, fields []any) {
	if err := os.MkdirAll(perfDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(perfDir, s.uid+"-"+tag)

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if isNew {
		fmt.Fprintln(w, header)
	}
	parts := make([]string, len(fields))
	for i, v := range fields {
		parts[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
	w.Flush()
}

// readSelfStat parses /proc/self/stat for (rss pages, utime ticks, stime
// ticks) - fields 24, 14, 15 (1-indexed), skipping past the parenthesized
// (and possibly space-containing) command name exactly as PerfModule.Stat
// does by slicing between the first '(' and last ')'.
func readSelfStat() (rss, utime, stime float64, err error) {
	raw, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, 0, 0, err
	}
	line := string(raw)
	i := strings.IndexByte(line, '(')
	j := strings.LastIndexByte(line, ')')
	if i >= 0 && j >= 0 && j > i {
		line = line[:i] + line[j:]
	}
	fields := strings.Fields(line)
	const minFields = 24
	if len(fields) < minFields {
		return 0, 0, 0, fmt.Errorf("unexpected /proc/self/stat format")
	}
	utime, err = strconv.ParseFloat(fields[13], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	stime, err = strconv.ParseFloat(fields[14], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	rss, err = strconv.ParseFloat(fields[23], 64)
	if err != nil {
		return 0, 0, 0, err
	}
	return rss, utime, stime, nil
}
