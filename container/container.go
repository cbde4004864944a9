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

// Package container implements the part-container tree: a segment-tagged
// index of data parts, branching one level per LPS-and-dimension pair a
// partitioned data structure passes through on its way from the root LPS
// down to the LPS it is actually partitioned at. Grounded on
// Communication/communication/part_distribution.cpp (Container,
// BranchingContainer, HybridBranchingContainer).
package container

import "github.com/partlang/partc/index"

// Kind tags what role a container node plays at its coordinate. The
// original models this with a Container/BranchingContainer/
// HybridBranchingContainer inheritance chain and downcasts; a single tagged
// node with a Kind field serves the same three roles without casts and
// without a second arena slot for the hybrid case.
type Kind int

const (
	// KindLeaf holds only segment tags: its LPS-dimension pair is the last
	// one the owning data structure passes through.
	KindLeaf Kind = iota
	// KindIntermediate branches into further containers at the next
	// LPS-dimension pair; it never itself terminates a part path.
	KindIntermediate
	// KindHybrid is both: a coordinate where one data structure's path
	// ends and another's continues past it. It carries both a leaf tag
	// set and an intermediate (union) tag set and a branch list.
	KindHybrid
)

// LpsDimConfig identifies one step of a part path: the LPS the step belongs
// to, which of that LPS's partition dimensions it indexes, and that LPS's
// position (depth) among the data structure's partitioned ancestors.
// Level -1 is reserved for the tree root, which is never itself addressed
// by a dimOrder entry. Grounded on PartitionParameterConfig /
// LpsDimConfig references in thread_state_mgmt.cc and part_distribution.cpp.
type LpsDimConfig struct {
	LpsID int
	DimNo int
	Level int
}

func (c LpsDimConfig) equal(o LpsDimConfig) bool {
	return c.LpsID == o.LpsID && c.DimNo == o.DimNo && c.Level == o.Level
}

// ErrInvariantBreach is panicked when the tree's structural invariants
// (leaf containers only at the last dimOrder position) are found broken.
// insertPart's conversion rules (convertLeaf/convertIntermediate) are built
// to make this unreachable; the panic is a fail-loud backstop against a
// future bug rather than a reachable error path today.
type ErrInvariantBreach struct {
	Reason string
}

func (e *ErrInvariantBreach) Error() string {
	return "container: invariant breach: " + e.Reason
}

type nodeRef int

const noRef nodeRef = -1

type branch struct {
	config        LpsDimConfig
	descendantIDs []int
	descendants   []nodeRef
}

type node struct {
	id       int
	config   LpsDimConfig
	parent   nodeRef
	kind     Kind
	tags     []int // Leaf: own tags. Intermediate/Hybrid: union (base) tags.
	leafTags []int // Hybrid only: the leaf side's own tags.
	branches []*branch
}

// Tree is an arena-indexed part-container tree rooted at a single sentinel
// container of Level -1. Nodes reference each other by index into Tree.nodes
// rather than by pointer, matching the arena-indexed convention used
// elsewhere in this compiler for structures with parent-pointing,
// non-owning references.
type Tree struct {
	nodes   []*node
	rootRef nodeRef
}

// NewTree returns an empty tree with only its root sentinel.
func NewTree() *Tree {
	t := &Tree{}
	t.rootRef = t.addNode(&node{id: 0, config: LpsDimConfig{Level: -1}, parent: noRef, kind: KindIntermediate})
	return t
}

func (t *Tree) addNode(n *node) nodeRef {
	t.nodes = append(t.nodes, n)
	return nodeRef(len(t.nodes) - 1)
}

func (t *Tree) getBranch(n *node, lpsID int) *branch {
	for _, b := range n.branches {
		if b.config.LpsID == lpsID {
			return b
		}
	}
	return nil
}

func (t *Tree) branchInsert(b *branch, id int, ref nodeRef) {
	pos := index.LocatePointOfInsert(b.descendantIDs, id)
	b.descendantIDs = append(b.descendantIDs, 0)
	copy(b.descendantIDs[pos+1:], b.descendantIDs[pos:])
	b.descendantIDs[pos] = id

	b.descendants = append(b.descendants, noRef)
	copy(b.descendants[pos+1:], b.descendants[pos:])
	b.descendants[pos] = ref
}

func (t *Tree) branchReplace(b *branch, id int, ref nodeRef) {
	idx := index.Locate(b.descendantIDs, id)
	b.descendants[idx] = ref
}

func addSorted(tags []int, tag int) []int {
	tags, _ = index.InsertSorted(tags, tag)
	return tags
}

func hasTagIn(tags []int, tag int) bool {
	return index.Locate(tags, tag) != index.NotFound
}

// hasTag checks a node's base (union, or own for a leaf) tag set. Grounded
// on the plain Container::hasSegmentTag, which the original always checks
// against the base-class tag set, even for a HybridBranchingContainer.
func (t *Tree) hasTag(n *node, tag int) bool {
	return hasTagIn(n.tags, tag)
}

// hasLeafTag checks the tag set a container's leaf role would be queried
// on: the leaf's own tags for KindLeaf, the separate leaf tag set for
// KindHybrid. Grounded on the hybrid-unwrap-to-getLeaf() step in
// BranchingContainer::foldContainer's terminal-level branch.
func (t *Tree) hasLeafTag(n *node, tag int) bool {
	switch n.kind {
	case KindLeaf:
		return hasTagIn(n.tags, tag)
	case KindHybrid:
		return hasTagIn(n.leafTags, tag)
	default:
		return false
	}
}

// InsertPart records one data part's path into the tree under segmentTag.
// dimOrder is the ordered sequence of LPS-dimension steps the owning data
// structure's part path takes from the first partitioned LPS down to the
// LPS it is ultimately partitioned at; partIDPath[level][dimNo] gives the
// container id at each step. Grounded on
// BranchingContainer::insertPart.
func (t *Tree) InsertPart(dimOrder []LpsDimConfig, segmentTag int, partIDPath [][]int) {
	t.insertPart(t.rootRef, dimOrder, segmentTag, partIDPath, 0)
}

func (t *Tree) insertPart(containerRef nodeRef, dimOrder []LpsDimConfig, segmentTag int, partIDPath [][]int, position int) {
	cfg := dimOrder[position]
	containerID := partIDPath[cfg.Level][cfg.DimNo]
	lastEntry := position == len(dimOrder)-1

	n := t.nodes[containerRef]
	b := t.getBranch(n, cfg.LpsID)

	var childRef nodeRef = noRef
	if b != nil {
		if idx := index.Locate(b.descendantIDs, containerID); idx != index.NotFound {
			childRef = b.descendants[idx]
		}
	}

	if childRef == noRef {
		kind := KindIntermediate
		if lastEntry {
			kind = KindLeaf
		}
		childRef = t.addNode(&node{id: containerID, config: cfg, parent: containerRef, kind: kind, tags: []int{segmentTag}})
		if b == nil {
			b = &branch{config: cfg}
			n.branches = append(n.branches, b)
		}
		t.branchInsert(b, containerID, childRef)
	} else {
		child := t.nodes[childRef]
		switch {
		case lastEntry && child.kind == KindIntermediate:
			t.convertIntermediate(child, segmentTag)
		case !lastEntry && child.kind == KindLeaf:
			t.convertLeaf(child, segmentTag)
		case child.kind == KindHybrid:
			t.addHybridTag(child, segmentTag, lastEntry)
		default:
			child.tags = addSorted(child.tags, segmentTag)
		}
	}

	if !lastEntry {
		child := t.nodes[childRef]
		if child.kind == KindLeaf {
			panic(&ErrInvariantBreach{Reason: "leaf container reached at a non-terminal dimOrder position"})
		}
		t.insertPart(childRef, dimOrder, segmentTag, partIDPath, position+1)
	}
}

// convertIntermediate turns an existing intermediate container into a
// hybrid one in place: the node keeps its branches and union tags, and
// gains a fresh leaf tag set seeded with terminalTag. Grounded on
// HybridBranchingContainer::convertIntermediate.
func (t *Tree) convertIntermediate(n *node, terminalTag int) {
	n.kind = KindHybrid
	n.leafTags = addSorted(n.leafTags, terminalTag)
	n.tags = addSorted(n.tags, terminalTag)
}

// convertLeaf turns an existing leaf container into a hybrid one in place:
// its former tags become the leaf tag set, and the union tag set starts as
// that same set plus branchTag. Grounded on
// HybridBranchingContainer::convertLeaf (intermediate.addAllSegmentTags(leaf
// tags); intermediate.addSegmentTag(branchTag)).
func (t *Tree) convertLeaf(n *node, branchTag int) {
	leafTags := n.tags
	n.kind = KindHybrid
	n.leafTags = leafTags
	n.tags = addSorted(append([]int(nil), leafTags...), branchTag)
	n.branches = nil
}

// addHybridTag records segmentTag on a hybrid container's union tag set,
// and also on its leaf tag set when the traversal is at the data
// structure's terminal position. Grounded on
// HybridBranchingContainer::addSegmentTag(tag, leafLevel).
func (t *Tree) addHybridTag(n *node, tag int, leafLevel bool) {
	if leafLevel {
		n.leafTags = addSorted(n.leafTags, tag)
	}
	n.tags = addSorted(n.tags, tag)
}

// Container is a read-only view onto one tree node, returned by GetContainer
// and ListDescendantContainersForLps.
type Container struct {
	ID       int
	Config   LpsDimConfig
	Kind     Kind
	Tags     []int
	LeafTags []int

	tree *Tree
	ref  nodeRef
}

func (t *Tree) view(ref nodeRef) *Container {
	if ref == noRef {
		return nil
	}
	n := t.nodes[ref]
	return &Container{ID: n.id, Config: n.config, Kind: n.kind, Tags: n.tags, LeafTags: n.leafTags, tree: t, ref: ref}
}

// HasSegmentTag reports whether c carries tag in its base (union, or own
// for a leaf) tag set.
func (c *Container) HasSegmentTag(tag int) bool {
	return hasTagIn(c.Tags, tag)
}

// Parent returns the container view one LPS-dimension step up, or nil at
// the tree root.
func (c *Container) Parent() *Container {
	n := c.tree.nodes[c.ref]
	if n.parent == noRef {
		return nil
	}
	return c.tree.view(n.parent)
}

// GetContainer walks dimOrder from the tree root following partIDPath,
// mirroring InsertPart read-only, and returns the container found at the
// final step or nil if the path does not exist. Grounded on
// BranchingContainer::getContainer.
func (t *Tree) GetContainer(dimOrder []LpsDimConfig, partIDPath [][]int) *Container {
	ref := t.rootRef
	for _, cfg := range dimOrder {
		n := t.nodes[ref]
		b := t.getBranch(n, cfg.LpsID)
		if b == nil {
			return nil
		}
		containerID := partIDPath[cfg.Level][cfg.DimNo]
		idx := index.Locate(b.descendantIDs, containerID)
		if idx == index.NotFound {
			return nil
		}
		ref = b.descendants[idx]
	}
	return t.view(ref)
}

// ListDescendantContainersForLps returns every container anywhere in the
// tree that belongs to the given LPS (i.e. whose branch key is lpsID) and
// carries segmentTag in its base tag set, across all parents, in
// unspecified but deterministic order. Grounded on
// BranchingContainer::listDescendantContainersForLps, used by the
// thread-state generator to enumerate the LPUs a given LPS produces for one
// segment.
func (t *Tree) ListDescendantContainersForLps(lpsID, segmentTag int) []*Container {
	var out []*Container
	t.collectForLps(t.rootRef, lpsID, segmentTag, &out)
	return out
}

func (t *Tree) collectForLps(ref nodeRef, lpsID, segmentTag int, out *[]*Container) {
	n := t.nodes[ref]
	for _, b := range n.branches {
		if b.config.LpsID == lpsID {
			for _, childRef := range b.descendants {
				if t.hasTag(t.nodes[childRef], segmentTag) {
					*out = append(*out, t.view(childRef))
				}
			}
		}
		for _, childRef := range b.descendants {
			t.collectForLps(childRef, lpsID, segmentTag, out)
		}
	}
}
