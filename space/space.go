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

// Package space models the Logical and Physical Processing Space hierarchy
// (LPS/PPS) that a task's partitioned data structures and computation flow
// are defined over.
package space

// LPS is a logical processing space: a node in the partition hierarchy that
// a data structure or a flow stage is defined against.
type LPS struct {
	Name   string
	Parent *LPS // nil only for the root LPS.

	// DimensionCount is the number of partition dimensions of this LPS.
	// Zero means the LPS is unpartitioned (a data structure local to it is
	// replicated rather than split into parts).
	DimensionCount int

	// SubPartition marks this LPS as a sub-partition of its parent: it
	// inherits the parent's dimensionality context for id assignment instead
	// of introducing a new one.
	SubPartition bool

	// localStructures is the ordered set of data-structure names declared
	// local to this LPS.
	localStructures []string
	localSet        map[string]bool
}

// NewLPS creates an LPS under the given parent (nil for the root).
func NewLPS(name string, parent *LPS, dimensionCount int) *LPS {
	return &LPS{
		Name:           name,
		Parent:         parent,
		DimensionCount: dimensionCount,
		localSet:       make(map[string]bool),
	}
}

// IsRoot reports whether this LPS has no parent.
func (s *LPS) IsRoot() bool { return s.Parent == nil }

// AddLocalStructure registers a data-structure name as used by this LPS.
// Duplicate names are ignored, preserving first-seen order.
func (s *LPS) AddLocalStructure(name string) {
	if s.localSet[name] {
		return
	}
	s.localSet[name] = true
	s.localStructures = append(s.localStructures, name)
}

// LocallyUsedStructureNames returns the ordered set of data-structure names
// declared local to this LPS.
func (s *LPS) LocallyUsedStructureNames() []string {
	return s.localStructures
}

// IsParentSpace reports whether maybeAncestor is a (strict) ancestor of s in
// the LPS hierarchy. Note the asymmetric naming, carried over from the
// original compiler: s.IsParentSpace(p) asks "is p my parent (at any
// distance)", not "is s the parent of p".
func (s *LPS) IsParentSpace(maybeAncestor *LPS) bool {
	for cur := s.Parent; cur != nil; cur = cur.Parent {
		if cur == maybeAncestor {
			return true
		}
	}
	return false
}

func (s *LPS) chainToRoot() []*LPS {
	var chain []*LPS
	for cur := s; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	return chain
}

// ConnectingSequence returns the list of LPSes on the path from a up to the
// lowest common ancestor then down to b, or nil if a and b are identical (no
// transition is needed). Grounded on
// Space::getConnetingSpaceSequenceForSpacePair, referenced from
// composite_stage.cc's addSyncStagesBeforeExecution/addSyncStagesOnReturn.
func ConnectingSequence(a, b *LPS) []*LPS {
	if a == b {
		return nil
	}
	aChain := a.chainToRoot()
	aIndex := make(map[*LPS]int, len(aChain))
	for i, s := range aChain {
		aIndex[s] = i
	}
	bChain := b.chainToRoot()
	for i, s := range bChain {
		lcaPos, ok := aIndex[s]
		if !ok {
			continue
		}
		seq := make([]*LPS, 0, lcaPos+1+i)
		seq = append(seq, aChain[:lcaPos+1]...)
		for j := i - 1; j >= 0; j-- {
			seq = append(seq, bChain[j])
		}
		return seq
	}
	return nil
}

// PPS is a physical processing space definition: one level of the hardware
// hierarchy a task is mapped onto. A smaller ID means closer to the hardware
// leaves.
type PPS struct {
	ID        int
	Units     int
	CoreSpace bool
}

// PCubeSModel is the ordered list of PPS definitions for a task, from the
// highest (furthest from hardware) down to the lowest (closest) level.
// Exactly one entry should have CoreSpace set.
type PCubeSModel struct {
	Levels []PPS
}

// CoreSpace returns the PPS marked as the physical-core level, or nil if
// none is marked (a configuration error the caller should report).
func (m *PCubeSModel) CoreSpace() *PPS {
	for i := range m.Levels {
		if m.Levels[i].CoreSpace {
			return &m.Levels[i]
		}
	}
	return nil
}

// ByID returns the PPS definition with the given id, or nil.
func (m *PCubeSModel) ByID(id int) *PPS {
	for i := range m.Levels {
		if m.Levels[i].ID == id {
			return &m.Levels[i]
		}
	}
	return nil
}
