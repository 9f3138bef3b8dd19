//go:build debug

// Package debug provides invariant checks that compile away entirely in
// production builds and activate under the "debug" build tag.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"os"
	"sync"
)

func ON() bool { return true }

func Infof(f string, a ...any) { fmt.Fprintf(os.Stderr, "[DEBUG] "+f+"\n", a...) }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprint("assertion failed: ", fmt.Sprint(a...)))
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: unexpected error: " + err.Error())
	}
}

func Assertf(cond bool, f string, a ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(f, a...))
	}
}

// AssertMutexLocked and friends are best-effort: Go has no portable way to
// query mutex state, so these merely document the invariant at the call site.
func AssertMutexLocked(_ *sync.Mutex)      {}
func AssertRWMutexLocked(_ *sync.RWMutex)  {}
func AssertRWMutexRLocked(_ *sync.RWMutex) {}
