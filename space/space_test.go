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

package space_test

import (
	"testing"

	"github.com/partlang/partc/space"
)

// root
//   A
//     B (child of A)
//     C (child of A)
//       D (child of C)
func buildTree() (root, a, b, c, d *space.LPS) {
	root = space.NewLPS("Root", nil, 0)
	a = space.NewLPS("A", root, 1)
	b = space.NewLPS("B", a, 1)
	c = space.NewLPS("C", a, 1)
	d = space.NewLPS("D", c, 1)
	return
}

func TestIsParentSpace(t *testing.T) {
	_, a, b, _, d := buildTree()
	if !b.IsParentSpace(a) {
		t.Errorf("expected A to be an ancestor of B")
	}
	if b.IsParentSpace(d) {
		t.Errorf("did not expect D to be an ancestor of B")
	}
	if !d.IsParentSpace(a) {
		t.Errorf("expected A to be an ancestor of D")
	}
}

func TestConnectingSequenceSameSpace(t *testing.T) {
	_, a, _, _, _ := buildTree()
	if seq := space.ConnectingSequence(a, a); seq != nil {
		t.Errorf("ConnectingSequence(a, a) = %v, want nil", seq)
	}
}

func TestConnectingSequenceSiblings(t *testing.T) {
	_, _, b, c, _ := buildTree()
	got := space.ConnectingSequence(b, c)
	want := []*space.LPS{b, b.Parent, c}
	if len(got) != len(want) {
		t.Fatalf("ConnectingSequence(b, c) length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ConnectingSequence(b, c)[%d] = %s, want %s", i, got[i].Name, want[i].Name)
		}
	}
}

func TestConnectingSequenceDescendant(t *testing.T) {
	_, a, _, c, d := buildTree()
	got := space.ConnectingSequence(a, d)
	want := []*space.LPS{a, c, d}
	if len(got) != len(want) {
		t.Fatalf("ConnectingSequence(a, d) length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ConnectingSequence(a, d)[%d] = %s, want %s", i, got[i].Name, want[i].Name)
		}
	}
}

func TestPCubeSModel(t *testing.T) {
	m := &space.PCubeSModel{Levels: []space.PPS{
		{ID: 3, Units: 2},
		{ID: 2, Units: 4},
		{ID: 1, Units: 2, CoreSpace: true},
	}}
	core := m.CoreSpace()
	if core == nil || core.ID != 1 {
		t.Fatalf("CoreSpace() = %v, want PPS with ID 1", core)
	}
	if p := m.ByID(2); p == nil || p.Units != 4 {
		t.Errorf("ByID(2) = %v, want Units=4", p)
	}
}
