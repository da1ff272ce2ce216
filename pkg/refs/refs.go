// Copyright 2023 The rvisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package refs defines an atomic reference counter for kernel objects whose
// lifetimes are managed explicitly rather than by the garbage collector.
//
// A task control block, for example, is pointed to by raw per-hart slots that
// the collector cannot see, so its storage must stay alive for exactly as
// long as counted references exist.
package refs

import (
	"fmt"

	"rvisor.dev/rvisor/pkg/atomicbitops"
	"rvisor.dev/rvisor/pkg/log"
)

// enableLogging indicates whether reference-related events should be logged.
// This is false by default and should only be set to true for debugging
// purposes, as it can generate a large amount of output and drastically
// degrade performance.
const enableLogging = false

// Refs keeps a reference count using atomic operations and calls the
// destructor when the count reaches zero.
//
// NOTE: Do not introduce additional fields to the Refs struct. It is embedded
// in every task control block, and we want to keep it the same size as using
// an int64 directly.
type Refs struct {
	// refCount is composed of two fields:
	//
	//	[32-bit speculative references]:[32-bit real references]
	//
	// Speculative references are used for TryIncRef, to avoid a
	// CompareAndSwap loop. See IncRef, DecRef and TryIncRef for details of
	// how these fields are used.
	refCount atomicbitops.Int64
}

// InitRefs initializes r with one reference.
func (r *Refs) InitRefs() {
	r.refCount.Store(1)
}

// ReadRefs returns the current number of references. The returned count is
// inherently racy and is unsafe to use without external synchronization.
func (r *Refs) ReadRefs() int64 {
	return r.refCount.Load()
}

// IncRef takes a reference on r.
//
// The caller must already hold a reference; incrementing a released count is
// a fatal error.
//
//go:nosplit
func (r *Refs) IncRef() {
	v := r.refCount.Add(1)
	if enableLogging {
		log.Debugf("refs: IncRef %p -> %d", r, v)
	}
	if v <= 1 {
		panic(fmt.Sprintf("Incrementing non-positive count %p", r))
	}
}

// TryIncRef attempts to take a reference on r, without requiring that the
// caller already holds one. It returns false if the object has already been
// destroyed.
//
// To do this safely without a loop, a speculative reference is first acquired
// on the object. This allows multiple concurrent TryIncRef calls to
// distinguish other TryIncRef calls from genuine references held.
//
//go:nosplit
func (r *Refs) TryIncRef() bool {
	const speculativeRef = 1 << 32
	if v := r.refCount.Add(speculativeRef); int32(v) == 0 {
		// This object has already been freed.
		r.refCount.Add(-speculativeRef)
		return false
	}

	// Turn into a real reference.
	v := r.refCount.Add(-speculativeRef + 1)
	if enableLogging {
		log.Debugf("refs: TryIncRef %p -> %d", r, v)
	}
	return true
}

// DecRef drops a reference on r, calling destroy when no references remain.
//
// Note that speculative references are counted here. Since they were added
// prior to real references reaching zero, they will successfully convert to
// real references. In other words, we see speculative references only in the
// following case:
//
//	A: TryIncRef [speculative increase => sees non-negative references]
//	B: DecRef [real decrease]
//	A: TryIncRef [transform speculative to real]
//
//go:nosplit
func (r *Refs) DecRef(destroy func()) {
	v := r.refCount.Add(-1)
	if enableLogging {
		log.Debugf("refs: DecRef %p -> %d", r, v)
	}
	switch {
	case v < 0:
		panic(fmt.Sprintf("Decrementing non-positive ref count %p", r))

	case v == 0:
		// Call the destructor.
		if destroy != nil {
			destroy()
		}
	}
}
