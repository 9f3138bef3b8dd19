// Package cos provides common low-level types and utilities shared by the
// job manager, the task manager, and the job-binary bridge.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating short, log-friendly ids - borrowed from the
// upstream cluster's own id generator, trimmed of the bucket/daemon-id
// machinery this module has no use for.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenShortID = 9

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenUUID returns a short, unique-enough id for a single run. The job
// manager uses it in the performance-sampler file name ("./perf/<uid>-cpu");
// the instance id in the startup log lines comes from google/uuid instead.
func GenUUID() string {
	if sid == nil {
		InitShortID(uint64(GenTie()[0]))
	}
	return sid.MustGenerate()
}

// GenTie returns a 3-character tie-breaker, fast enough to call on every
// dial-out when de-duplicating log spam (e.g. "node list unchanged").
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[(^tie)&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

// Checksum64 is a cheap xxhash content fingerprint - the same checksum the
// fleet loader (jm/fleet.go) computes, by calling xxhash directly, to skip
// a re-parse log line when the node-list file did not change between cycles.
func Checksum64(b []byte) uint64 { return xxhash.Checksum64(b) }
