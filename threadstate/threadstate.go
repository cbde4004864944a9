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

// Package threadstate implements the thread-state generator (C7): per-task
// thread-id allocation, the parent-index map, and the compute-next-LPU
// routines a generated program's entry point drives once per OS thread.
// Grounded on MultiCoreBackEnd/codegen/thread_state_mgmt.cc for the
// compute-next-LPU shape (per-LPS branches constructing a new LPU,
// inheriting or computing its part descriptor) and on spec.md §4.6 for the
// PPU-id and thread-count arithmetic, whose own dedicated source file was
// not present in the retrieval pack.
package threadstate

import (
	"github.com/pkg/errors"

	"github.com/partlang/partc/container"
	"github.com/partlang/partc/partition"
	"github.com/partlang/partc/space"
	"github.com/partlang/partc/task"
)

// Invalid marks a PpuIDs.ID that does not exist: a thread whose
// group-thread-id is nonzero has no valid PPU id at that LPS. (The root
// LPS's missing parent is marked by an empty name in ParentIndexMap.)
const Invalid = -1

// Generator computes the thread-state artifacts for one task: total thread
// counts, per-thread PPU id triples, the LPS parent-index map, and the
// per-LPS next-LPU construction plans.
type Generator struct {
	tk *task.Task
}

// NewGenerator returns a Generator for tk.
func NewGenerator(tk *task.Task) *Generator {
	return &Generator{tk: tk}
}

// pcubeIndex returns the position of pps in the ordered PCubeS level list,
// where index 0 is the highest (furthest from hardware) level.
func (g *Generator) pcubeIndex(pps *space.PPS) int {
	levels := g.tk.PCubeS.Levels
	for i := range levels {
		if levels[i].ID == pps.ID {
			return i
		}
	}
	return -1
}

// lowestMappedIndex returns the largest PCubeS level index referenced by
// any node of the mapping tree: the "lowest PPS that any LPS maps to" of
// spec.md §4.6.
func (g *Generator) lowestMappedIndex() int {
	lowest := 0
	var walk func(n *task.MappingNode)
	walk = func(n *task.MappingNode) {
		if idx := g.pcubeIndex(n.PPS); idx > lowest {
			lowest = idx
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(g.tk.MappingRoot)
	return lowest
}

// TotalThreads returns the product of unit counts from the topmost PCubeS
// level down to the lowest level any LPS maps to, per Invariant 9.
func (g *Generator) TotalThreads() int {
	total := 1
	for i := 0; i <= g.lowestMappedIndex(); i++ {
		total *= g.tk.PCubeS.Levels[i].Units
	}
	return total
}

// ThreadsPerCore returns TotalThreads divided by the PPU count at the core
// PCubeS level: the extra parallelism factor beyond one thread per
// physical core, e.g. when LPSes map to levels below the core level.
func (g *Generator) ThreadsPerCore() (int, error) {
	core := g.tk.PCubeS.CoreSpace()
	if core == nil {
		return 0, errors.New("threadstate: PCubeS model has no core-space level")
	}
	coreIdx := g.pcubeIndex(core)
	coreUnits := 1
	for i := 0; i <= coreIdx; i++ {
		coreUnits *= g.tk.PCubeS.Levels[i].Units
	}
	if coreUnits == 0 {
		return 0, errors.New("threadstate: core-space unit product is zero")
	}
	return g.TotalThreads() / coreUnits, nil
}

// PpuIDs is the group-size / group-id / ppu-count / id quadruple computed
// for one LPS given an input thread number. Grounded on the triple
// described in spec.md §4.6's PPU-ids-for-thread routine.
type PpuIDs struct {
	GroupSize int
	GroupID   int
	PpuCount  int
	ID        int
}

// GetPpuIDsForThread runs a BFS over the mapping tree, returning the PpuIDs
// quadruple for every LPS given threadNo. Grounded on spec.md §4.6's
// PPU-ids-for-thread routine and validated against scenario S2.
func (g *Generator) GetPpuIDsForThread(threadNo int) map[string]PpuIDs {
	result := make(map[string]PpuIDs)

	type queued struct {
		node              *task.MappingNode
		parentThreadCount int
		parentIdx         int
	}
	queue := []queued{{node: g.tk.MappingRoot, parentThreadCount: g.TotalThreads(), parentIdx: threadNo}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := cur.node

		var ids PpuIDs
		var childThreadCount, childIdx int

		if n.LPS.SubPartition && n.Parent != nil {
			parentIDs := result[n.Parent.LPS.Name]
			ids = PpuIDs{GroupSize: parentIDs.GroupSize, GroupID: 0, PpuCount: 1, ID: 0}
			childThreadCount, childIdx = cur.parentThreadCount, cur.parentIdx
		} else {
			partitionCount := 1
			if n.Parent != nil {
				partitionCount = g.partitionCountBetween(n.Parent.PPS, n.PPS)
			}
			groupSize := cur.parentThreadCount
			if n.LPS.DimensionCount > 0 {
				groupSize = cur.parentThreadCount / partitionCount
			}
			groupID := cur.parentIdx / groupSize
			groupThreadID := cur.parentIdx % groupSize
			id := Invalid
			if groupThreadID == 0 {
				id = groupID
			}
			ids = PpuIDs{GroupSize: groupSize, GroupID: groupID, PpuCount: partitionCount, ID: id}
			childThreadCount, childIdx = groupSize, groupThreadID
		}

		result[n.LPS.Name] = ids
		for _, c := range n.Children {
			queue = append(queue, queued{node: c, parentThreadCount: childThreadCount, parentIdx: childIdx})
		}
	}
	return result
}

// LpusForThread returns the concrete, segment-tagged LPU containers tree
// holds for lps's processing group at threadNo: threadNo's GroupID at lps
// (from GetPpuIDsForThread) is used as the part-container tree's segment
// tag, and lpsID is the tree's own plain-integer branch key for lps (the
// container package is deliberately decoupled from space.LPS, so the
// caller supplies the correspondence). Grounded on
// BranchingContainer::listDescendantContainersForLps, invoked by the
// thread-state generator to enumerate all LPUs a given LPS produces for
// one thread's segment.
func (g *Generator) LpusForThread(tree *container.Tree, lps *space.LPS, lpsID, threadNo int) ([]*container.Container, error) {
	ids := g.GetPpuIDsForThread(threadNo)
	ppu, ok := ids[lps.Name]
	if !ok {
		return nil, errors.Errorf("threadstate: no PPU ids computed for LPS %q", lps.Name)
	}
	return tree.ListDescendantContainersForLps(lpsID, ppu.GroupID), nil
}

// partitionCountBetween returns the product of PCubeS unit counts strictly
// below parentPPS's level down to and including currentPPS's level. An
// empty range (current at or above parent's level) yields 1.
func (g *Generator) partitionCountBetween(parentPPS, currentPPS *space.PPS) int {
	parentIdx := g.pcubeIndex(parentPPS)
	currentIdx := g.pcubeIndex(currentPPS)
	if currentIdx <= parentIdx {
		return 1
	}
	count := 1
	for i := parentIdx + 1; i <= currentIdx; i++ {
		count *= g.tk.PCubeS.Levels[i].Units
	}
	return count
}

// ParentIndexMap returns, for every LPS in the mapping tree, the name of
// its parent LPS; the root LPS maps to the empty string, standing in for
// spec.md §4.6's INVALID parent-id sentinel since LPSes are keyed by name
// in this implementation rather than by a dense integer id.
func (g *Generator) ParentIndexMap() map[string]string {
	parents := make(map[string]string)
	var walk func(n *task.MappingNode)
	walk = func(n *task.MappingNode) {
		if n.Parent != nil {
			parents[n.LPS.Name] = n.Parent.LPS.Name
		} else {
			parents[n.LPS.Name] = ""
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(g.tk.MappingRoot)
	return parents
}

// ArrayPartPlan is one data structure's contribution to a NextLpuPlan:
// either it inherits its parent LPU's part descriptor unchanged (replicated
// at this LPS) or it must be computed by invoking the data structure's
// compiled GetPart closure against the ancestor LPU's part descriptor.
// Grounded on the get<Array>PartForSpace<LPS>Lpu call sites in
// generateComputeNextLpuRoutine.
type ArrayPartPlan struct {
	ArrayName   string
	Replicated  bool
	AncestorLPS *space.LPS
	PartConfig  *partition.DataPartitionConfig
}

// NextLpuPlan is the compute-next-LPU plan for one LPS: which ancestor LPS
// supplies each referenced variable's part descriptor, materialized at most
// once per ancestor and reused across variables, per spec.md §4.6's
// "Ancestor-LPU discovery" paragraph.
type NextLpuPlan struct {
	LPS        *space.LPS
	ParentLPS  *space.LPS
	ArrayParts []ArrayPartPlan

	// AncestorLPS is the ordered, de-duplicated list of ancestor LPSes this
	// plan's array parts reference, each materialized exactly once.
	AncestorLPS []*space.LPS
}

// RootLpuPlan returns the NextLpuPlan for the mapping tree's root LPS: the
// dimensionless seed LPU every per-thread LPU stack starts from.
func (g *Generator) RootLpuPlan(plans []*NextLpuPlan) *NextLpuPlan {
	for _, p := range plans {
		if p.LPS == g.tk.MappingRoot.LPS {
			return p
		}
	}
	return nil
}

// ComputeNextLpuPlans walks the mapping tree building one NextLpuPlan per
// LPS, resolving each locally-used data structure's ancestor LPS per
// spec.md §4.6: for a sub-partition LPS, arrays are looked up through the
// mapping-tree parent's catalog entry and that parent LPS is taken
// unconditionally as the ancestor; otherwise the structure's OriginSpace is
// used when it was inherited, falling back to the mapping-tree parent LPS
// when the structure originates locally. Grounded on
// generateComputeNextLpuRoutine's ancestor-selection logic in
// thread_state_mgmt.cc, reconciled with this module's partition.Catalog
// model (see DESIGN.md).
func (g *Generator) ComputeNextLpuPlans(cat *partition.Catalog) ([]*NextLpuPlan, error) {
	var plans []*NextLpuPlan
	var walk func(n *task.MappingNode) error
	walk = func(n *task.MappingNode) error {
		plan, err := g.computeNextLpuPlan(n, cat)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(g.tk.MappingRoot); err != nil {
		return nil, err
	}
	return plans, nil
}

func (g *Generator) computeNextLpuPlan(n *task.MappingNode, cat *partition.Catalog) (*NextLpuPlan, error) {
	plan := &NextLpuPlan{LPS: n.LPS}
	if n.Parent != nil {
		plan.ParentLPS = n.Parent.LPS
	}

	seenAncestor := make(map[*space.LPS]bool)
	addAncestor := func(lps *space.LPS) {
		if lps == nil || seenAncestor[lps] {
			return
		}
		seenAncestor[lps] = true
		plan.AncestorLPS = append(plan.AncestorLPS, lps)
	}

	for _, name := range n.LPS.LocallyUsedStructureNames() {
		lookupSpace := n.LPS
		forcedAncestor := (*space.LPS)(nil)
		if n.LPS.SubPartition && n.Parent != nil {
			lookupSpace = n.Parent.LPS
			forcedAncestor = n.Parent.LPS
		}

		ds, ok := cat.Lookup(lookupSpace, name)
		if !ok {
			return nil, errors.Errorf("threadstate: LPS %q has no catalog entry for structure %q", lookupSpace.Name, name)
		}

		ancestor := forcedAncestor
		if ancestor == nil {
			if ds.Source != nil {
				ancestor = ds.OriginSpace()
			} else if n.Parent != nil {
				ancestor = n.Parent.LPS
			}
		}
		addAncestor(ancestor)

		plan.ArrayParts = append(plan.ArrayParts, ArrayPartPlan{
			ArrayName:   name,
			Replicated:  ds.PartConfig == nil || ds.PartConfig.Replicated,
			AncestorLPS: ancestor,
			PartConfig:  ds.PartConfig,
		})
	}
	return plan, nil
}
