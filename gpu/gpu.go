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

// Package gpu carves GPU execution contexts out of a task's implanted
// computation flow: contiguous sub-flows whose entry LPS maps onto a GPU
// PPS, split into sequential kernel configurations wherever a
// synchronization requirement cannot be satisfied by an intra-kernel
// barrier. Grounded on
// compilers/hybrid-backend/src/static-analysis/gpu_execution_ctxt.h
// (GpuContextType, KernelGroupConfig, GpuExecutionContext).
package gpu

import (
	"fmt"

	"github.com/partlang/partc/access"
	"github.com/partlang/partc/base/sync"
	"github.com/partlang/partc/flow"
	"github.com/partlang/partc/space"
)

// ContextType distinguishes how a GPU execution context's LPUs are
// distributed across PPUs: precisely, for sub-partitioned LPSes that
// require exact placement, or freely otherwise. Grounded on GpuContextType
// (LOCATION_SENSITIVE_LPU_DISTR_CONTEXT / LOCATION_INDIPENDENT_LPU_DISTR_CONTEXT).
type ContextType int

const (
	// LocationSensitive is used when any LPS inside the context is
	// sub-partitioned: LPU-to-PPU mapping must be exact.
	LocationSensitive ContextType = iota
	// LocationIndependent is used otherwise: LPU batches may be
	// multiplexed to arbitrary PPUs of the intended PPS.
	LocationIndependent
)

func (t ContextType) String() string {
	if t == LocationSensitive {
		return "LocationSensitive"
	}
	return "LocationIndependent"
}

// KernelGroupConfig is the portion of a GPU context's sub-flow grouped
// inside a single repeat block (the repeat itself runs at the host level);
// a non-repeating context flow is represented by a single non-repeating
// KernelGroupConfig covering the whole thing. Grounded on KernelGroupConfig.
type KernelGroupConfig struct {
	GroupID         int
	Repeating       bool
	RepeatCondition any

	// ContextSubflow is the original flow stages, from the source IR,
	// included in this kernel group.
	ContextSubflow []*flow.Stage

	// KernelConfigs is ContextSubflow translated into a sequence of
	// composite stages, one per GPU kernel launch, split wherever
	// consecutive stages carry a data dependency an intra-kernel barrier
	// cannot satisfy.
	KernelConfigs []*flow.Stage
}

// ExecutionContext is a sub-flow of a task's computation flow that should
// execute on the GPU. Grounded on GpuExecutionContext.
type ExecutionContext struct {
	// ContextID is the index of the first flow stage within the context,
	// used to name and look up the context during code generation.
	ContextID int

	ContextLPS  *space.LPS
	ContextFlow []*flow.Stage
	ContextType ContextType

	VarAccessLog              *access.Map
	EpochDependentVarAccesses []string

	KernelGroupConfigs []*KernelGroupConfig
}

// ContextName returns the name used for the generated GPU code executor
// class for this context, based on its ContextID. Grounded on
// GpuExecutionContext::generateContextName.
func (c *ExecutionContext) ContextName() string {
	return fmt.Sprintf("GpuExecutionContext_%d", c.ContextID)
}

// ModifiedVariables returns the names of every variable this context
// writes to, in first-seen order.
func (c *ExecutionContext) ModifiedVariables() []string {
	var names []string
	for _, name := range c.VarAccessLog.Names() {
		if va, ok := c.VarAccessLog.Lookup(name); ok && va.Written {
			names = append(names, name)
		}
	}
	return names
}

// EpochIndependentVariables returns the names this context accesses that
// are not in EpochDependentVarAccesses.
func (c *ExecutionContext) EpochIndependentVariables() []string {
	dependent := make(map[string]bool, len(c.EpochDependentVarAccesses))
	for _, name := range c.EpochDependentVarAccesses {
		dependent[name] = true
	}
	var names []string
	for _, name := range c.VarAccessLog.Names() {
		if !dependent[name] {
			names = append(names, name)
		}
	}
	return names
}

// getContextLps walks the root-to-entryLps chain and returns the first LPS
// that has been mapped to the GPU, i.e. whose mapped PPS is topmostGpuPPS
// or any PPS between it and the hardware. Falls back to entryLps itself if
// the flow dives directly into a lower GPU level without passing through
// any LPS mapped to topmostGpuPPS or above, per the original's handling of
// that edge case. Grounded on
// GpuExecutionContext::getContextLps(int topmostGpuPps, Space *entryStageLps).
func getContextLps(lpsToPPS map[*space.LPS]*space.PPS, topmostGpuPPS *space.PPS, entryLPS *space.LPS) *space.LPS {
	var chain []*space.LPS
	for cur := entryLPS; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		lps := chain[i]
		if pps, ok := lpsToPPS[lps]; ok && pps.ID <= topmostGpuPPS.ID {
			return lps
		}
	}
	return entryLPS
}

// NewExecutionContext builds an ExecutionContext for contextFlow, whose
// entry stage's LPS maps (directly or through an ancestor) onto a GPU PPS.
// lpsToPPS is the task's LPS-to-PPS mapping (see task.MappingNode);
// contextID is the index of contextFlow's first stage within the task's
// full flow.
func NewExecutionContext(lpsToPPS map[*space.LPS]*space.PPS, topmostGpuPPS *space.PPS, contextFlow []*flow.Stage, contextID int) *ExecutionContext {
	var entryLPS *space.LPS
	if len(contextFlow) > 0 {
		entryLPS = contextFlow[0].Space
	}
	c := &ExecutionContext{
		ContextID:   contextID,
		ContextLPS:  getContextLps(lpsToPPS, topmostGpuPPS, entryLPS),
		ContextFlow: contextFlow,
		VarAccessLog: access.NewMap(),
	}
	c.performVariableAccessAnalysis()
	c.ContextType = classifyContext(contextFlow)
	c.KernelGroupConfigs = generateKernelGroups(contextFlow)
	return c
}

// classifyContext reports LocationSensitive if any LPS reachable within
// contextFlow is sub-partitioned, else LocationIndependent. Grounded on
// spec.md §4.7's "Context type is LOCATION_SENSITIVE when any LPS inside
// the context is sub-partitioned".
func classifyContext(contextFlow []*flow.Stage) ContextType {
	sensitive := false
	walkStages(contextFlow, func(s *flow.Stage) {
		if s.Space != nil && s.Space.SubPartition {
			sensitive = true
		}
	})
	if sensitive {
		return LocationSensitive
	}
	return LocationIndependent
}

// performVariableAccessAnalysis records every task-global variable this
// context touches, folding each stage's per-variable access log into the
// context's own, and separately tracks which of those variables are
// epoch-dependent: accessed by a stage that follows an EpochBoundaryBlock
// within the context's flow, per spec.md §4.6's "after [an
// EpochBoundaryBlock] every multi-version data structure used within must
// advance one epoch" — such a variable's staged-in GPU copy can go stale
// mid-context and needs epoch-aware stage-out handling, unlike one only
// ever touched before any boundary. Grounded on
// GpuExecutionContext::performVariableAccessAnalysis; the original's own
// epoch-dependence criterion was not recoverable from the retrieval pack
// (no .cc was present), so this is reconstructed from the EpochBoundaryBlock
// semantics spec.md documents.
func (c *ExecutionContext) performVariableAccessAnalysis() {
	epochCrossed := false
	seen := make(map[string]bool)
	walkStages(c.ContextFlow, func(s *flow.Stage) {
		c.VarAccessLog.MergeFrom(s.AccessMap)
		if s.Kind == flow.KindEpochBoundaryBlock {
			epochCrossed = true
			return
		}
		if !epochCrossed {
			return
		}
		for _, name := range s.AccessMap.Names() {
			if seen[name] {
				continue
			}
			seen[name] = true
			c.EpochDependentVarAccesses = append(c.EpochDependentVarAccesses, name)
		}
	})
}

// walkStages visits every stage reachable from roots, depth-first,
// including composite containers themselves before their children.
func walkStages(roots []*flow.Stage, visit func(*flow.Stage)) {
	for _, s := range roots {
		visit(s)
		if s.IsComposite() {
			walkStages(s.Stages, visit)
		}
	}
}

// generateKernelGroups splits contextFlow into KernelGroupConfigs: a new
// repeating group for every RepeatControlBlock encountered, and each run of
// consecutive non-repeating stages between repeat blocks accumulated into
// its own non-repeating group, in flow order. Grounded on
// KernelGroupConfig::generateKernelConfig's DFS-with-a-queue description in
// spec.md §4.7 ("a DFS walks the stages with a queue").
func generateKernelGroups(contextFlow []*flow.Stage) []*KernelGroupConfig {
	var groups []*KernelGroupConfig
	var nonRepeating []*flow.Stage
	nextGroupID := 0

	flushNonRepeating := func() {
		if len(nonRepeating) == 0 {
			return
		}
		groups = append(groups, &KernelGroupConfig{
			GroupID:        nextGroupID,
			ContextSubflow: nonRepeating,
			KernelConfigs:  splitIntoKernelConfigs(nonRepeating),
		})
		nextGroupID++
		nonRepeating = nil
	}

	queue := append([]*flow.Stage(nil), contextFlow...)
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		switch {
		case s.Kind == flow.KindRepeatControlBlock:
			flushNonRepeating()
			groups = append(groups, &KernelGroupConfig{
				GroupID:         nextGroupID,
				Repeating:       true,
				RepeatCondition: s.RepeatCondition,
				ContextSubflow:  s.Stages,
				KernelConfigs:   splitIntoKernelConfigs(s.Stages),
			})
			nextGroupID++
		case s.IsComposite():
			queue = append(append([]*flow.Stage(nil), s.Stages...), queue...)
		default:
			nonRepeating = append(nonRepeating, s)
		}
	}
	flushNonRepeating()
	return groups
}

// splitIntoKernelConfigs walks stages in order, grouping consecutive
// non-sync stages into one CompositeStage kernel launch, starting a new
// kernel whenever a stage pair crosses a synchronization boundary an
// intra-kernel barrier cannot satisfy. Grounded on spec.md §4.7's "split
// into CompositeStage kernel configs at every internal point where a
// synchronization requirement cannot be satisfied by intra-kernel
// barriers", validated against scenario S6 (two write-read-dependent
// stages split into exactly two sequential kernel configs).
func splitIntoKernelConfigs(stages []*flow.Stage) []*flow.Stage {
	var kernels []*flow.Stage
	var current *flow.Stage
	var lastNonSync *flow.Stage

	startKernel := func(sp *space.LPS) *flow.Stage {
		k := flow.NewCompositeStage(sp)
		kernels = append(kernels, k)
		return k
	}

	for _, s := range stages {
		if current == nil {
			current = startKernel(s.Space)
		} else if lastNonSync != nil && crossesKernelBoundary(lastNonSync, s) {
			current = startKernel(s.Space)
		}
		current.AddStageAtEnd(s)
		if s.Kind != flow.KindSyncStage {
			lastNonSync = s
		}
	}
	return kernels
}

// crossesKernelBoundary reports whether next reads or writes a variable
// prev wrote: a write-then-access dependency no intra-kernel barrier can
// order, forcing a host-level kernel boundary between prev and next.
func crossesKernelBoundary(prev, next *flow.Stage) bool {
	for _, name := range prev.AccessMap.Names() {
		prevVA, ok := prev.AccessMap.Lookup(name)
		if !ok || !prevVA.Written {
			continue
		}
		if nextVA, ok := next.AccessMap.Lookup(name); ok && (nextVA.Read || nextVA.Written) {
			return true
		}
	}
	return false
}

// ContextRegistry is the per-compilation analogue of the original's static
// gpuContextMap: every GPU execution context produced for a task, keyed by
// ContextID, so code generation can look one up by the index of its first
// flow stage. Backed by base/sync.Map so concurrent readers need no
// external locking; instantiated fresh per task rather than as a package-level
// global, per SPEC_FULL.md's concurrency notes.
type ContextRegistry struct {
	contexts sync.Map[int, *ExecutionContext]
}

// NewContextRegistry returns an empty ContextRegistry.
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{}
}

// Register records ctx under its ContextID.
func (r *ContextRegistry) Register(ctx *ExecutionContext) {
	r.contexts.Store(ctx.ContextID, ctx)
}

// Lookup returns the context registered under contextID, or nil if none
// was registered under that id.
func (r *ContextRegistry) Lookup(contextID int) *ExecutionContext {
	return r.contexts.Load(contextID)
}
