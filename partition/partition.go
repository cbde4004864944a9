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

// Package partition holds per-dimension partition descriptors and the
// compiled data-partition configurations that the thread-state generator
// (package threadstate) consults to build per-LPU data-part closures.
package partition

import (
	"github.com/partlang/partc/base/ordered"
	"github.com/partlang/partc/space"
)

// DimConfig is a single dimension's partition descriptor: which partition
// function splits the dimension, and which of the task's partition
// arguments it consumes. Grounded on the PartitionParameterConfig usage in
// thread_state_mgmt.cc (dimensionNo, partitionArgsIndexes).
type DimConfig struct {
	DimensionNo int
	// Function names the partition function (e.g. "block", "block_cyclic").
	// The specific semantics of reduction/partition primitives are a
	// Non-goal of this compiler core; the name is carried through to
	// codegen uninterpreted.
	Function string
	// ArgIndexes are indexes into the task's partitionArgs array consumed
	// by Function, in call order.
	ArgIndexes []int
}

// PartDims is an opaque per-LPU part descriptor, produced and consumed by
// generated/runtime code. The compiler core never inspects its content; it
// only orchestrates when a GetPart closure is invoked and what flows into
// and out of it, matching the original's "PartitionDimension**" being an
// opaque pointer array to this compiler's static analysis.
type PartDims any

// GetPartFunc computes a data structure's part descriptor for one LPU, given
// the parent LPU's part descriptor, the LPU counts and id at the current
// LPS, and any extra partition arguments. Grounded on the
// "get<Array>PartForSpace<LPS>Lpu" closures invoked from
// generateComputeNextLpuRoutine in thread_state_mgmt.cc.
type GetPartFunc func(parentPart PartDims, lpuCounts []int, lpuID []int, partitionArgs []any) PartDims

// DataPartitionConfig is the compiled partition configuration for one data
// structure, combining its per-dimension DimConfigs. Grounded on
// DataItems::generatePartitionConfig / getPartitionConfig in
// part_management.h.
type DataPartitionConfig struct {
	ArrayName      string
	Dimensionality int
	Dims           []DimConfig

	// Replicated marks a data structure whose parts are not split by the
	// owning LPS: it shares its parent's part descriptor unchanged.
	Replicated bool

	// GetPart is the compiled closure used to compute a new part when
	// Replicated is false.
	GetPart GetPartFunc
}

// Compile assembles a DataPartitionConfig from per-dimension configs, in
// dimension order. Grounded on DataItems::addDimPartitionConfig followed by
// generatePartitionConfig.
func Compile(arrayName string, dims []DimConfig, getPart GetPartFunc) *DataPartitionConfig {
	return &DataPartitionConfig{
		ArrayName:      arrayName,
		Dimensionality: len(dims),
		Dims:           append([]DimConfig(nil), dims...),
		Replicated:     getPart == nil,
		GetPart:        getPart,
	}
}

// DataStructure is a task-global array (or scalar, with Dimensionality 0)
// declared local to some LPS. Grounded on the ArrayDataStructure references
// throughout thread_state_mgmt.cc.
type DataStructure struct {
	Name           string
	Dimensionality int

	// Space is the LPS this DataStructure instance is attached to. For a
	// structure inherited into a sub-partition LPS, Space is that
	// sub-partition LPS while Source points back to the structure actually
	// partitioned.
	Space *space.LPS

	// Source is the DataStructure this one was inherited from, or nil if
	// this is the structure's own definition. Grounded on
	// "lps->getLocalStructure(arrayName)->getSource()->getSpace()" in
	// computeLpuCounts.
	Source *DataStructure

	Partitioned bool
	PartConfig  *DataPartitionConfig
}

// OriginSpace returns the LPS where this data structure is actually defined
// and partitioned, following the Source chain through any sub-partition
// inheritance.
func (d *DataStructure) OriginSpace() *space.LPS {
	cur := d
	for cur.Source != nil {
		cur = cur.Source
	}
	return cur.Space
}

// Catalog is a per-task symbol table mapping each LPS to its locally
// declared data structures, keyed by name in declaration order. Grounded on
// Space::getLocalStructure, referenced throughout thread_state_mgmt.cc.
type Catalog struct {
	bySpace map[*space.LPS]*ordered.Map[string, *DataStructure]
}

// NewCatalog returns an empty symbol table.
func NewCatalog() *Catalog {
	return &Catalog{bySpace: make(map[*space.LPS]*ordered.Map[string, *DataStructure])}
}

// Declare registers a data structure as local to its Space, and records its
// name in the LPS's locally-used structure name set.
func (c *Catalog) Declare(ds *DataStructure) {
	table, ok := c.bySpace[ds.Space]
	if !ok {
		table = ordered.NewMap[string, *DataStructure]()
		c.bySpace[ds.Space] = table
	}
	table.Store(ds.Name, ds)
	ds.Space.AddLocalStructure(ds.Name)
}

// Lookup returns the data structure declared local to lps under name.
func (c *Catalog) Lookup(lps *space.LPS, name string) (*DataStructure, bool) {
	table, ok := c.bySpace[lps]
	if !ok {
		return nil, false
	}
	return table.Load(name)
}
