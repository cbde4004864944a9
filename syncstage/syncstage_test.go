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

package syncstage_test

import (
	"testing"

	"github.com/partlang/partc/flow"
	"github.com/partlang/partc/space"
	"github.com/partlang/partc/syncstage"
)

// TestImplantSplicesEntryAndExitSyncsAroundWrite builds a small composite
// stage at Root with a leaf at Root followed by a nested composite at
// descendant space A whose only child writes a variable, and checks that
// Implant splices an entry sync for A before descending into A, and that a
// sync stage spliced after ascending back out of it records the write.
func TestImplantSplicesEntryAndExitSyncsAroundWrite(t *testing.T) {
	root := space.NewLPS("Root", nil, 0)
	a := space.NewLPS("A", root, 1)

	container := flow.NewCompositeStage(root)
	leafRoot := flow.NewStageInstanciation(root, "leafRoot", nil)
	inner := flow.NewCompositeStage(a)
	leafA := flow.NewStageInstanciation(a, "leafA", nil)
	leafA.AccessMap.Record("x", false, true, false)
	inner.AddStageAtEnd(leafA)
	container.AddStageAtEnd(leafRoot)
	container.AddStageAtEnd(inner)

	im := syncstage.NewImplantor()
	flat := im.Implant(container)

	if len(flat) != 4 {
		t.Fatalf("len(flat) = %d, want 4 (container, leafRoot, inner, leafA)", len(flat))
	}

	// container's rebuilt child list must still contain leafRoot and inner,
	// in order, with at least one entry sync for A spliced in strictly
	// between them (implanted on the way down into A).
	idxLeafRoot, idxInner := -1, -1
	var entry *flow.Stage
	for i, s := range container.Stages {
		switch s {
		case leafRoot:
			idxLeafRoot = i
		case inner:
			idxInner = i
		default:
			if s.Kind == flow.KindSyncStage && s.SyncKind == flow.SyncEntry && entry == nil && idxInner == -1 {
				entry = s
			}
		}
	}
	if idxLeafRoot == -1 || idxInner == -1 || idxLeafRoot >= idxInner {
		t.Fatalf("container.Stages = %v, want leafRoot before inner", describe(container.Stages))
	}
	if entry == nil {
		t.Fatalf("no entry sync stage spliced before inner: %v", describe(container.Stages))
	}
	if entry.Space != a {
		t.Errorf("entry sync stage's Space = %v, want A", entry.Space.Name)
	}
	if va, ok := entry.AccessMap.Lookup("x"); !ok || !va.Written {
		t.Errorf("entry sync's access map missing written record for x: %+v", entry.AccessMap.Names())
	}

	// Something implanted after inner must record the write to x, covering
	// the ascent back out of A.
	var sawWriteAfterInner bool
	for i := idxInner + 1; i < len(container.Stages); i++ {
		s := container.Stages[i]
		if s.Kind != flow.KindSyncStage {
			continue
		}
		if va, ok := s.AccessMap.Lookup("x"); ok && va.Written {
			sawWriteAfterInner = true
		}
	}
	if !sawWriteAfterInner {
		t.Errorf("no sync stage after inner records the write to x: %v", describe(container.Stages))
	}

	if len(inner.Stages) != 1 || inner.Stages[0] != leafA {
		t.Errorf("inner.Stages = %v, want [leafA] (no transition needed returning to its own space)", describe(inner.Stages))
	}
}

// TestImplantNoOpWithinSingleSpace covers the case where every stage stays
// in the same space: no sync stages should be implanted at all.
func TestImplantNoOpWithinSingleSpace(t *testing.T) {
	root := space.NewLPS("Root", nil, 0)
	container := flow.NewCompositeStage(root)
	a := flow.NewStageInstanciation(root, "a", nil)
	b := flow.NewStageInstanciation(root, "b", nil)
	container.AddStageAtEnd(a)
	container.AddStageAtEnd(b)

	im := syncstage.NewImplantor()
	im.Implant(container)

	if len(container.Stages) != 2 {
		t.Fatalf("container.Stages = %v, want [a, b] unchanged", describe(container.Stages))
	}
	if container.Stages[0] != a || container.Stages[1] != b {
		t.Errorf("container.Stages = %v, want [a, b] in order", describe(container.Stages))
	}
}

func describe(stages []*flow.Stage) []int {
	var out []int
	for _, s := range stages {
		out = append(out, int(s.Kind))
	}
	return out
}
