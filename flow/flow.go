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

// Package flow implements the computation-flow intermediate representation:
// the tree of flow stages a task's compute/meta-compute sections are
// lowered to, ahead of sync-stage implantation (package syncstage) and
// thread-state generation (package threadstate). Grounded on
// compilers/frontend/src/semantics/computation_flow.h.
package flow

import (
	"github.com/partlang/partc/access"
	"github.com/partlang/partc/space"
)

// Kind tags which of the seven FlowStage variants a Stage plays. The
// original expresses these as an inheritance chain
// (FlowStage -> CompositeStage -> {RepeatControlBlock, ConditionalExecutionBlock,
// LpsTransitionBlock, EpochBoundaryBlock}, plus the leaf StageInstanciation
// and the C6-inserted SyncStage); this package collapses it to one struct
// with a Kind tag, matching the translation used for container.Kind.
type Kind int

const (
	// KindStageInstanciation is a leaf compute stage invoked from a
	// Computation Section.
	KindStageInstanciation Kind = iota
	// KindCompositeStage holds an ordered list of child stages.
	KindCompositeStage
	// KindRepeatControlBlock is a composite stage iterated under a repeat
	// instruction.
	KindRepeatControlBlock
	// KindConditionalExecutionBlock is a composite stage executed only if
	// its condition holds.
	KindConditionalExecutionBlock
	// KindLpsTransitionBlock marks a transition from an ancestor LPS to a
	// descendant LPS in the flow.
	KindLpsTransitionBlock
	// KindEpochBoundaryBlock marks a sub-flow boundary after which every
	// multi-version data structure used within must advance one epoch.
	KindEpochBoundaryBlock
	// KindSyncStage is inserted by package syncstage during implantation.
	KindSyncStage
)

// RepeatCycleType distinguishes a condition-driven repeat from a
// fixed-range one. Its declaration was not present in the retrieval pack;
// reconstructed from the RepeatControlBlock constructor's "type" parameter
// and spec.md's repeat-control-block description.
type RepeatCycleType int

const (
	// RepeatWhileCondition repeats while Stage.RepeatCondition holds.
	RepeatWhileCondition RepeatCycleType = iota
	// RepeatFixedRange repeats over a fixed, compile-time-bounded range.
	RepeatFixedRange
)

// SyncKind distinguishes the four sync-stage roles spec.md §4.5 implants:
// entry, exit, reappearance and return.
type SyncKind int

const (
	SyncEntry SyncKind = iota
	SyncExit
	SyncReappearance
	SyncReturn
)

// Stage is one node of the computation-flow tree. Which fields are
// meaningful depends on Kind: composite-family kinds (CompositeStage,
// RepeatControlBlock, ConditionalExecutionBlock, LpsTransitionBlock,
// EpochBoundaryBlock) use Stages; StageInstanciation uses Name/Code;
// RepeatControlBlock additionally uses RepeatCondition/RepeatType;
// ConditionalExecutionBlock uses Condition; LpsTransitionBlock uses
// AncestorSpace; SyncStage uses SyncKind/SyncSpace.
type Stage struct {
	Kind  Kind
	Space *space.LPS

	Parent      *Stage
	Index       int
	GroupNo     int
	RepeatIndex int

	AccessMap *access.Map

	// StageInstanciation.
	Name string
	// Code is the stage's statement body. Its structure is the parser's
	// concern (a Non-goal here); this package only ever treats it opaquely.
	Code any

	// Composite-family: ordered child stages.
	Stages []*Stage

	// RepeatControlBlock.
	RepeatCondition any
	RepeatType      RepeatCycleType

	// ConditionalExecutionBlock.
	Condition any

	// LpsTransitionBlock.
	AncestorSpace *space.LPS

	// SyncStage, populated by package syncstage.
	SyncKind  SyncKind
	SyncSpace *space.LPS
}

func newStage(kind Kind, sp *space.LPS) *Stage {
	return &Stage{Kind: kind, Space: sp, AccessMap: access.NewMap()}
}

// NewStageInstanciation returns a leaf compute stage for sp.
func NewStageInstanciation(sp *space.LPS, name string, code any) *Stage {
	s := newStage(KindStageInstanciation, sp)
	s.Name = name
	s.Code = code
	return s
}

// NewCompositeStage returns an empty composite stage for sp.
func NewCompositeStage(sp *space.LPS) *Stage {
	return newStage(KindCompositeStage, sp)
}

// NewRepeatControlBlock returns an empty repeat control block for sp.
func NewRepeatControlBlock(sp *space.LPS, cycleType RepeatCycleType, cond any) *Stage {
	s := newStage(KindRepeatControlBlock, sp)
	s.RepeatType = cycleType
	s.RepeatCondition = cond
	return s
}

// NewConditionalExecutionBlock returns an empty conditional execution block
// for sp, executed only while cond holds.
func NewConditionalExecutionBlock(sp *space.LPS, cond any) *Stage {
	s := newStage(KindConditionalExecutionBlock, sp)
	s.Condition = cond
	return s
}

// NewLpsTransitionBlock returns an empty LPS-transition block for sp,
// remembering the ancestor space the flow is descending from.
func NewLpsTransitionBlock(sp, ancestorSpace *space.LPS) *Stage {
	s := newStage(KindLpsTransitionBlock, sp)
	s.AncestorSpace = ancestorSpace
	return s
}

// NewEpochBoundaryBlock returns an empty epoch-boundary block for sp.
func NewEpochBoundaryBlock(sp *space.LPS) *Stage {
	return newStage(KindEpochBoundaryBlock, sp)
}

// NewSyncStage returns a sync stage of the given kind for forSpace,
// constructed on sp (the space the sync stage itself executes on; package
// syncstage passes the LPS being entered or left for both sp and forSpace).
func NewSyncStage(sp *space.LPS, kind SyncKind, forSpace *space.LPS) *Stage {
	s := newStage(KindSyncStage, sp)
	s.SyncKind = kind
	s.SyncSpace = forSpace
	return s
}

// IsComposite reports whether s's Kind carries a Stages list. Grounded on
// the CompositeStage subclass family (CompositeStage itself,
// RepeatControlBlock, ConditionalExecutionBlock, LpsTransitionBlock,
// EpochBoundaryBlock).
func (s *Stage) IsComposite() bool {
	switch s.Kind {
	case KindCompositeStage, KindRepeatControlBlock, KindConditionalExecutionBlock,
		KindLpsTransitionBlock, KindEpochBoundaryBlock:
		return true
	default:
		return false
	}
}

func (s *Stage) mustBeComposite(op string) {
	if !s.IsComposite() {
		panic("flow: " + op + " called on a non-composite stage (Kind=" + kindName(s.Kind) + ")")
	}
}

func kindName(k Kind) string {
	switch k {
	case KindStageInstanciation:
		return "StageInstanciation"
	case KindCompositeStage:
		return "CompositeStage"
	case KindRepeatControlBlock:
		return "RepeatControlBlock"
	case KindConditionalExecutionBlock:
		return "ConditionalExecutionBlock"
	case KindLpsTransitionBlock:
		return "LpsTransitionBlock"
	case KindEpochBoundaryBlock:
		return "EpochBoundaryBlock"
	case KindSyncStage:
		return "SyncStage"
	default:
		return "Unknown"
	}
}

// AddStageAtBeginning prepends child to s's stage list, setting child's
// Parent to s.
func (s *Stage) AddStageAtBeginning(child *Stage) {
	s.mustBeComposite("AddStageAtBeginning")
	child.Parent = s
	s.Stages = append([]*Stage{child}, s.Stages...)
}

// AddStageAtEnd appends child to s's stage list, setting child's Parent to
// s.
func (s *Stage) AddStageAtEnd(child *Stage) {
	s.mustBeComposite("AddStageAtEnd")
	child.Parent = s
	s.Stages = append(s.Stages, child)
}

// InsertStageAt inserts child at position i in s's stage list.
func (s *Stage) InsertStageAt(i int, child *Stage) {
	s.mustBeComposite("InsertStageAt")
	child.Parent = s
	s.Stages = append(s.Stages, nil)
	copy(s.Stages[i+1:], s.Stages[i:])
	s.Stages[i] = child
}

// RemoveStageAt removes the stage at position i from s's stage list.
func (s *Stage) RemoveStageAt(i int) {
	s.mustBeComposite("RemoveStageAt")
	s.Stages = append(s.Stages[:i], s.Stages[i+1:]...)
}

// IsStageListEmpty reports whether s has no child stages.
func (s *Stage) IsStageListEmpty() bool {
	s.mustBeComposite("IsStageListEmpty")
	return len(s.Stages) == 0
}

// SwapStageList replaces s's stage list with newList and returns the
// previous one, re-parenting newList's entries to s.
func (s *Stage) SwapStageList(newList []*Stage) []*Stage {
	s.mustBeComposite("SwapStageList")
	old := s.Stages
	for _, child := range newList {
		child.Parent = s
	}
	s.Stages = newList
	return old
}

// GetLastNonSyncStage returns the last child stage that is not itself a
// sync stage, or nil if none exists. Grounded on
// CompositeStage::getLastNonSyncStage, used while incrementally
// reconstructing a stage list during sync-stage implantation.
func (s *Stage) GetLastNonSyncStage() *Stage {
	s.mustBeComposite("GetLastNonSyncStage")
	for i := len(s.Stages) - 1; i >= 0; i-- {
		if s.Stages[i].Kind != KindSyncStage {
			return s.Stages[i]
		}
	}
	return nil
}

// GetLastNonSyncStagesSpace returns the Space of GetLastNonSyncStage's
// result, or s's own Space if it has no non-sync child yet. Grounded on
// CompositeStage::getLastNonSyncStagesSpace, whose fallback to the
// container's own space (rather than nil) is what lets sync-stage
// implantation compute a sensible transition chain before any child has
// been re-inserted.
func (s *Stage) GetLastNonSyncStagesSpace() *space.LPS {
	last := s.GetLastNonSyncStage()
	if last == nil {
		return s.Space
	}
	return last.Space
}
