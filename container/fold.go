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

package container

// Range is an inclusive, contiguous span of container ids coalesced into a
// single PartFolding.
type Range struct {
	Min, Max int
}

// PartFolding is a range-compressed, content-deduplicated view of a subtree
// of the container tree: a run of sibling containers carrying the same
// segment tag, with structurally identical descendants, collapsed into one
// node with an id Range instead of one node per id. Grounded on the
// PartFolding usages in Container::foldContainerForSegment /
// foldBackContainer and BranchingContainer::foldContainer / foldContainer
// in part_distribution.cpp; PartFolding's own declaration was not present
// in the retrieved sources and is reconstructed here from those call
// sites plus the folding description in the specification.
type PartFolding struct {
	DimNo       int
	Level       int
	Descendants []*PartFolding

	idRange Range
}

func newFold(id, dimNo, level int) *PartFolding {
	return &PartFolding{DimNo: dimNo, Level: level, idRange: Range{Min: id, Max: id}}
}

// IDRange returns the (possibly coalesced) id span this fold represents.
func (f *PartFolding) IDRange() Range { return f.idRange }

// Coalesce extends f's id range to also cover r. Callers are responsible
// for only coalescing contiguous, content-equal folds; Coalesce itself
// performs no adjacency check.
func (f *PartFolding) Coalesce(r Range) {
	if r.Min < f.idRange.Min {
		f.idRange.Min = r.Min
	}
	if r.Max > f.idRange.Max {
		f.idRange.Max = r.Max
	}
}

// ContentEqual reports whether f and other have structurally identical
// descendants (same dimension, level, id range and, recursively, the same
// descendants), ignoring f and other's own ids. Two sibling folds that are
// ContentEqual and contiguous in id are coalesce candidates. Grounded on
// the isEqualInContent check in BranchingContainer::foldContainer.
func (f *PartFolding) ContentEqual(other *PartFolding) bool {
	if f == nil || other == nil {
		return f == other
	}
	if len(f.Descendants) != len(other.Descendants) {
		return false
	}
	for i := range f.Descendants {
		a, b := f.Descendants[i], other.Descendants[i]
		if a.DimNo != b.DimNo || a.Level != b.Level || a.idRange != b.idRange {
			return false
		}
		if !a.ContentEqual(b) {
			return false
		}
	}
	return true
}

// FoldContainerForSegment folds the whole tree for segmentTag along
// dimOrder, starting from the root's branches (the root itself is never
// materialized in a fold). foldBack is accepted for signature symmetry
// with (*Container).FoldContainerForSegment but has no effect here: the
// tree root has no ancestor to fold back into.
func (t *Tree) FoldContainerForSegment(segmentTag int, dimOrder []LpsDimConfig, foldBack bool) []*PartFolding {
	return t.foldChildren(t.rootRef, segmentTag, dimOrder, 0)
}

// foldChildren folds the descendants of containerRef reachable through the
// branch keyed by dimOrder[position], coalescing adjacent content-equal
// siblings as it goes. Grounded on BranchingContainer::foldContainer.
func (t *Tree) foldChildren(containerRef nodeRef, segmentTag int, dimOrder []LpsDimConfig, position int) []*PartFolding {
	n := t.nodes[containerRef]
	cfg := dimOrder[position]
	b := t.getBranch(n, cfg.LpsID)
	if b == nil {
		return nil
	}

	lastPosition := position == len(dimOrder)-1
	var fold []*PartFolding
	for _, childRef := range b.descendants {
		child := t.nodes[childRef]
		if !t.hasTag(child, segmentTag) {
			continue
		}

		var element *PartFolding
		if !lastPosition {
			descendants := t.foldChildren(childRef, segmentTag, dimOrder, position+1)
			if len(descendants) > 0 {
				element = newFold(child.id, cfg.DimNo, cfg.Level)
				element.Descendants = descendants
			}
		} else if t.hasLeafTag(child, segmentTag) {
			element = newFold(child.id, cfg.DimNo, cfg.Level)
		}
		if element == nil {
			continue
		}

		if len(fold) > 0 {
			prev := fold[len(fold)-1]
			if prev.idRange.Max == child.id-1 && element.ContentEqual(prev) {
				prev.Coalesce(Range{Min: child.id, Max: child.id})
				continue
			}
		}
		fold = append(fold, element)
	}
	return fold
}

// FoldContainerForSegment folds the subtree rooted at c for segmentTag
// along dimOrder, matching c's own position in dimOrder by its
// LpsDimConfig. If foldBack is true, the result is wrapped by each of c's
// ancestors in turn (skipping the tree root) instead of being returned
// bare. Returns nil if c does not carry segmentTag or nothing below it
// does. Grounded on the BranchingContainer/Container split of
// foldContainerForSegment, collapsed here into one method since Kind
// already distinguishes the cases without a type switch.
func (c *Container) FoldContainerForSegment(segmentTag int, dimOrder []LpsDimConfig, foldBack bool) *PartFolding {
	t := c.tree
	n := t.nodes[c.ref]
	if !t.hasTag(n, segmentTag) {
		return nil
	}

	position := -1
	for i, cfg := range dimOrder {
		if cfg.equal(n.config) {
			position = i
			break
		}
	}
	if position == -1 {
		panic(&ErrInvariantBreach{Reason: "container's LpsDimConfig does not appear in dimOrder"})
	}

	var folding *PartFolding
	if position == len(dimOrder)-1 {
		if !t.hasLeafTag(n, segmentTag) {
			return nil
		}
		folding = newFold(n.id, n.config.DimNo, n.config.Level)
	} else {
		descendants := t.foldChildren(c.ref, segmentTag, dimOrder, position+1)
		if len(descendants) == 0 {
			return nil
		}
		folding = newFold(n.id, n.config.DimNo, n.config.Level)
		folding.Descendants = descendants
	}

	if foldBack && n.parent != noRef {
		return t.foldBack(n.parent, folding)
	}
	return folding
}

// foldBack wraps under by each ancestor of containerRef in turn, stopping
// at (and excluding) the tree root. Grounded on Container::foldBackContainer.
func (t *Tree) foldBack(containerRef nodeRef, under *PartFolding) *PartFolding {
	n := t.nodes[containerRef]
	if n.config.Level == -1 {
		return under
	}
	wrapped := newFold(n.id, n.config.DimNo, n.config.Level)
	if under != nil {
		wrapped.Descendants = []*PartFolding{under}
	}
	if n.parent == noRef {
		return wrapped
	}
	return t.foldBack(n.parent, wrapped)
}
