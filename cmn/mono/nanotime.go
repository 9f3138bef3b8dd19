//go:build !mono

// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic-clock reading in nanoseconds. The "mono"
// build tag switches to a faster runtime.nanotime link-name; absent it,
// time.Since (which uses the monotonic reading time.Now carries on every
// platform we build for) is precise enough for log-flush and cycle-timing
// math. Readings count from package initialization.
func NanoTime() int64 { return int64(time.Since(start)) }
