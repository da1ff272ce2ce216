// Copyright 2024 The rvisor Authors.
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

// Package metric provides primitives for collecting kernel event counters.
//
// Counters are cheap enough to increment from hot paths (a single atomic
// add), so hardware-model events like TLB flushes and context switches are
// counted unconditionally. Tests assert the flush and switch invariants
// through counter deltas, the same way an operator would read them off a
// metrics page.
package metric

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"rvisor.dev/rvisor/pkg/atomicbitops"
	"rvisor.dev/rvisor/pkg/sync"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")
)

// Uint64Metric encapsulates a uint64 that represents some kind of metric to
// be monitored.
type Uint64Metric struct {
	name  string
	value atomicbitops.Uint64
}

type metricData struct {
	metric      *Uint64Metric
	description string
}

type metricSet struct {
	mu sync.RWMutex
	m  map[string]metricData
}

var allMetrics = metricSet{m: make(map[string]metricData)}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name. Metric names must be valid Prometheus metric names.
func NewUint64Metric(name string, description string) (*Uint64Metric, error) {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if _, ok := allMetrics.m[name]; ok {
		return nil, ErrNameInUse
	}
	m := &Uint64Metric{name: name}
	allMetrics.m[name] = metricData{metric: m, description: description}
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name string, description string) *Uint64Metric {
	m, err := NewUint64Metric(name, description)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %v", name, err))
	}
	return m
}

// Value returns the current value of the metric.
func (m *Uint64Metric) Value() uint64 {
	return m.value.Load()
}

// Increment increments the metric by 1.
func (m *Uint64Metric) Increment() {
	m.value.Add(1)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64) {
	m.value.Add(v)
}

// WriteText writes a snapshot of all registered metrics to w in the
// Prometheus text exposition format, sorted by name.
func WriteText(w io.Writer) error {
	allMetrics.mu.RLock()
	names := make([]string, 0, len(allMetrics.m))
	for name := range allMetrics.m {
		names = append(names, name)
	}
	sort.Strings(names)
	type row struct {
		name, description string
		value             uint64
	}
	rows := make([]row, 0, len(names))
	for _, name := range names {
		d := allMetrics.m[name]
		rows = append(rows, row{name, d.description, d.metric.Value()})
	}
	allMetrics.mu.RUnlock()

	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", r.name, r.description, r.name, r.name, r.value); err != nil {
			return err
		}
	}
	return nil
}
