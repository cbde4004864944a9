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

// Package syncstage implements sync-stage implantation: rewriting a
// user-authored composite stage so every LPS transition between adjacent
// non-sync children is made explicit as a sequence of sync stages.
// Grounded on
// compilers/frontend/src/semantics/compute-flow/composite_stage.cc
// (CompositeStage::implantSyncStagesInFlow, addSyncStagesBeforeExecution,
// addSyncStagesOnReturn) and the SpaceEntryCheckpoint references therein;
// the checkpoint type's own declaration and sync_stage_implantation.h's
// generator functions were not present in the retrieval pack and are
// reconstructed from those call sites plus spec.md §3/§4.5 (see DESIGN.md).
package syncstage

import (
	"github.com/pkg/errors"

	"github.com/partlang/partc/access"
	"github.com/partlang/partc/flow"
	"github.com/partlang/partc/space"
)

// ErrDisjointTransition is panicked when a computed space-transition chain
// contains a step that is neither an ascent nor a descent: a bug in the
// flow's LPS assignment, not a recoverable user error, matching the
// original's std::exit(EXIT_FAILURE) for this case.
type ErrDisjointTransition struct {
	Old, New *space.LPS
}

func (e *ErrDisjointTransition) Error() string {
	return "syncstage: disjoint space transition chain between " + e.Old.Name + " and " + e.New.Name
}

// Checkpoint records where a composite stage's rebuilt child list entered
// a descendant LPS, and the placeholder entry-sync stage attached there
// (populated in full once the matching exit is processed). Grounded on
// SpaceEntryCheckpoint, referenced throughout composite_stage.cc but not
// itself declared in the retrieval pack.
type Checkpoint struct {
	Space      *space.LPS
	StageIndex int
	EntrySync  *flow.Stage
}

// checkpointRegistry is a per-space push/pop stack of Checkpoints, scoped
// to one Implantor (one top-level Implant call), per spec.md §9's "scope
// it per-implantation-run" design note and §5's single-threaded,
// push/pop-disciplined concurrency note.
type checkpointRegistry struct {
	stacks map[*space.LPS][]*Checkpoint
}

func newCheckpointRegistry() *checkpointRegistry {
	return &checkpointRegistry{stacks: make(map[*space.LPS][]*Checkpoint)}
}

// addIfApplicable pushes a new checkpoint for sp at stageIndex. Named
// after SpaceEntryCheckpoint::addACheckpointIfApplicable; the push/pop
// stack discipline makes every descent-without-a-matching-checkpoint case
// safe to push unconditionally.
func (r *checkpointRegistry) addIfApplicable(sp *space.LPS, stageIndex int) *Checkpoint {
	ck := &Checkpoint{Space: sp, StageIndex: stageIndex}
	r.stacks[sp] = append(r.stacks[sp], ck)
	return ck
}

// get returns the innermost active checkpoint for sp, or nil if none.
func (r *checkpointRegistry) get(sp *space.LPS) *Checkpoint {
	stack := r.stacks[sp]
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

// remove pops the innermost active checkpoint for sp.
func (r *checkpointRegistry) remove(sp *space.LPS) {
	stack := r.stacks[sp]
	if len(stack) == 0 {
		return
	}
	r.stacks[sp] = stack[:len(stack)-1]
}

// Implantor runs one sync-stage implantation pass. Its checkpoint registry
// is private to the instance, never a package-level global, so compiling
// more than one task in the same process never cross-contaminates.
type Implantor struct {
	registry *checkpointRegistry
}

// NewImplantor returns a fresh Implantor.
func NewImplantor() *Implantor {
	return &Implantor{registry: newCheckpointRegistry()}
}

// Implant rewrites root's subtree in place, splicing sync stages into
// every composite-family stage's child list, and returns the flat,
// program-order list of every stage visited (used internally for
// access-log index-range bookkeeping, and useful to callers for
// diagnostics). Grounded on
// CompositeStage::implantSyncStagesInFlow.
func (im *Implantor) Implant(root *flow.Stage) []*flow.Stage {
	var flat []*flow.Stage
	im.implant(root, nil, &flat)
	return flat
}

func (im *Implantor) implant(stage *flow.Stage, containerStage *flow.Stage, flat *[]*flow.Stage) {
	if stage.Kind != flow.KindStageInstanciation && !stage.IsComposite() {
		// Defensive: every Kind this package knows about is either a leaf
		// StageInstanciation or carries a Stages list.
		panic(errors.Errorf("syncstage: stage kind %v is neither a leaf nor composite", stage.Kind))
	}

	if !stage.IsComposite() {
		im.reinsert(stage, containerStage, flat)
		return
	}

	oldChildren := stage.SwapStageList(nil)
	im.reinsert(stage, containerStage, flat)
	for _, child := range oldChildren {
		im.implant(child, stage, flat)
	}
	im.addSyncStagesOnReturn(stage, *flat)
}

// reinsert performs the insertion step common to every stage kind: sync
// stages are spliced into containerStage before stage as needed, stage's
// program-order Index is recorded, and stage itself is appended both to
// containerStage's rebuilt child list and to the shared flat list. At the
// top of the traversal (containerStage == nil) there is nothing to splice
// sync stages before.
func (im *Implantor) reinsert(stage *flow.Stage, containerStage *flow.Stage, flat *[]*flow.Stage) {
	if containerStage != nil {
		im.addSyncStagesBeforeExecution(containerStage, stage, *flat)
	}
	stage.Index = len(*flat)
	if containerStage != nil {
		containerStage.AddStageAtEnd(stage)
	}
	*flat = append(*flat, stage)
}

// addSyncStagesBeforeExecution splices sync stages into containerStage
// ahead of nextStage, covering the LPS transition chain from
// containerStage's last non-sync child's space to nextStage's space.
// Grounded on CompositeStage::addSyncStagesBeforeExecution.
func (im *Implantor) addSyncStagesBeforeExecution(containerStage, nextStage *flow.Stage, flat []*flow.Stage) {
	previousSpace := containerStage.GetLastNonSyncStagesSpace()
	nextSpace := nextStage.Space
	chain := space.ConnectingSequence(previousSpace, nextSpace)
	if len(chain) == 0 {
		return
	}
	im.spliceChain(containerStage, chain, flat, len(flat))
}

// addSyncStagesOnReturn splices sync stages into containerStage covering
// the transition chain from its last non-sync child's space back to its
// own space, once all of containerStage's children have been re-inserted.
// Grounded on CompositeStage::addSyncStagesOnReturn.
func (im *Implantor) addSyncStagesOnReturn(containerStage *flow.Stage, flat []*flow.Stage) {
	previousSpace := containerStage.GetLastNonSyncStagesSpace()
	currentSpace := containerStage.Space
	chain := space.ConnectingSequence(previousSpace, currentSpace)
	if len(chain) == 0 {
		return
	}
	last := containerStage.GetLastNonSyncStage()
	lastIndex := 0
	if last != nil {
		lastIndex = last.Index
	}
	im.spliceChain(containerStage, chain, flat, lastIndex+1)
}

// spliceChain walks chain pairwise, implanting one ascend/descend step at
// a time, following spec.md §4.5's algorithm. upperBoundExclusive is the
// flat-list index one past the last stage already in scope for this
// splice point (nextStageIndex for before-execution, lastStageIndex+1 for
// on-return).
func (im *Implantor) spliceChain(containerStage *flow.Stage, chain []*space.LPS, flat []*flow.Stage, upperBoundExclusive int) {
	for i := 1; i < len(chain); i++ {
		oldSpace := chain[i-1]
		newSpace := chain[i]
		switch {
		case oldSpace.IsParentSpace(newSpace):
			im.ascend(containerStage, oldSpace, newSpace, flat, upperBoundExclusive)
		case newSpace.IsParentSpace(oldSpace):
			im.descend(containerStage, newSpace, upperBoundExclusive)
		case oldSpace != newSpace:
			panic(&ErrDisjointTransition{Old: oldSpace, New: newSpace})
		}
	}
}

func (im *Implantor) ascend(containerStage *flow.Stage, oldSpace, newSpace *space.LPS, flat []*flow.Stage, upperBoundExclusive int) {
	checkpoint := im.registry.get(oldSpace)
	accessLogs := accessLogsForRange(flat, oldSpace, checkpoint.StageIndex, upperBoundExclusive-1, true)

	if checkpoint.EntrySync != nil {
		populateAccessMapOfEntrySyncStage(checkpoint.EntrySync, accessLogs)
	}
	if reappearance := generateReappearanceSyncStage(oldSpace, accessLogs); reappearance != nil {
		containerStage.AddStageAtEnd(reappearance)
	}

	im.registry.remove(oldSpace)
	for _, exitSync := range generateExitSyncStages(oldSpace, accessLogs) {
		containerStage.AddStageAtEnd(exitSync)
	}

	returnLogs := accessLogsForRange(flat, newSpace, 0, upperBoundExclusive-1, true)
	if returnSync := generateReturnSyncStage(newSpace, returnLogs); returnSync != nil {
		containerStage.AddStageAtEnd(returnSync)
	}
}

func (im *Implantor) descend(containerStage *flow.Stage, newSpace *space.LPS, stageIndex int) {
	entrySync := generateEntrySyncStage(newSpace)
	checkpoint := im.registry.addIfApplicable(newSpace, stageIndex)
	checkpoint.EntrySync = entrySync
	if entrySync != nil {
		containerStage.AddStageAtEnd(entrySync)
	}
}

func accessLogsForRange(flat []*flow.Stage, lps *space.LPS, start, endInclusive int, includeMentionedSpace bool) *access.Map {
	acc := access.NewMap()
	for i := start; i <= endInclusive; i++ {
		if i < 0 || i >= len(flat) {
			continue
		}
		flat[i].PopulateAccessMapForSpaceLimit(acc, lps, includeMentionedSpace)
	}
	return acc
}
