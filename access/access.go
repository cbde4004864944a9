// Copyright 2024 Google LLC
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

// Package access holds the shared variable-access record and access-map
// types consulted across the computation-flow IR (flow), sync-stage
// implantation (syncstage) and GPU kernel grouping (gpu) packages, so none
// of those three needs to import another to share this one concept.
// Grounded on the Hashtable<VariableAccess*> access maps referenced
// throughout computation_flow.h (accessMap, getAccessLogsForSpaceInIndexLimit,
// populateAccessMapForSpaceLimit) and composite_stage.cc. VariableAccess's
// own declaration was not present in the retrieval pack; its fields are
// reconstructed from those call sites plus spec.md's access-map description
// (read/write/reduction access on a task-global variable).
package access

import "github.com/partlang/partc/base/ordered"

// VariableAccess records how one task-global variable is touched by a flow
// stage: whether it is read, written and/or reduced into.
type VariableAccess struct {
	Name    string
	Read    bool
	Written bool
	Reduced bool
}

// Merge folds other into v in place, taking the union of the access kinds.
// Grounded on the accumulation performed while populating access maps
// across a stage range in getAccessLogsForSpaceInIndexLimit.
func (v *VariableAccess) Merge(other *VariableAccess) {
	v.Read = v.Read || other.Read
	v.Written = v.Written || other.Written
	v.Reduced = v.Reduced || other.Reduced
}

// Map is an ordered name-to-access table: one flow stage's (or one
// accumulated range's) access log. Backed by base/ordered.Map so iteration
// order is deterministic for codegen and for reproducible diagnostics,
// mirroring the original's Hashtable in effect if not in implementation.
type Map struct {
	entries *ordered.Map[string, *VariableAccess]
}

// NewMap returns an empty access map.
func NewMap() *Map {
	return &Map{entries: ordered.NewMap[string, *VariableAccess]()}
}

// Record adds one access observation for name, merging with any existing
// entry rather than overwriting it.
func (m *Map) Record(name string, read, written, reduced bool) {
	if existing, ok := m.entries.Load(name); ok {
		existing.Merge(&VariableAccess{Read: read, Written: written, Reduced: reduced})
		return
	}
	m.entries.Store(name, &VariableAccess{Name: name, Read: read, Written: written, Reduced: reduced})
}

// Lookup returns the access record for name, if any.
func (m *Map) Lookup(name string) (*VariableAccess, bool) {
	return m.entries.Load(name)
}

// MergeFrom folds every entry of other into m, in other's iteration order.
// Grounded on the range-accumulation loop in getAccessLogsForSpaceInIndexLimit,
// which folds each stage's access map into a running total across an index
// range.
func (m *Map) MergeFrom(other *Map) {
	if other == nil {
		return
	}
	for name, va := range other.entries.Iter() {
		m.Record(name, va.Read, va.Written, va.Reduced)
	}
}

// Names returns the recorded variable names in first-seen order.
func (m *Map) Names() []string {
	var names []string
	for name := range m.entries.Keys() {
		names = append(names, name)
	}
	return names
}

// Size returns the number of distinct variables recorded.
func (m *Map) Size() int { return m.entries.Size() }

// AnyWritten reports whether any recorded variable in m was written, the
// condition spec.md's reappearance-sync rule checks before appending a
// reappearance sync stage on re-entry to an ascending LPS.
func (m *Map) AnyWritten() bool {
	for _, va := range m.entries.Iter() {
		if va.Written {
			return true
		}
	}
	return false
}
