// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

// StreamResult tallies one reconciliation pass over one stream.
type StreamResult struct {
	Stream   Stream
	Admitted int
	Skipped  int
	Failed   int
}

// OK reports whether the pass completed without failures.
func (r StreamResult) OK() bool { return r.Failed == 0 }

// CycleResult carries per-stream outcomes of one fetch-reconcile-commit
// cycle. A nil stream pointer means the stream is disabled by configuration
// and was not attempted.
type CycleResult struct {
	Glucose *StreamResult
	Dose    *StreamResult
	Device  *StreamResult
}

// OK reports whether every attempted stream completed without failures.
func (c CycleResult) OK() bool {
	for _, r := range []*StreamResult{c.Glucose, c.Dose, c.Device} {
		if r != nil && !r.OK() {
			return false
		}
	}
	return true
}
