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

package task_test

import (
	"encoding/json"
	"testing"

	"github.com/partlang/partc/task"
)

const sampleConfigJSON = `{
	"task_name": "Sample",
	"pcubes": [
		{"id": 3, "units": 2},
		{"id": 2, "units": 4},
		{"id": 1, "units": 2, "core_space": true}
	],
	"mapping": {
		"lps": {"name": "Root", "dimension_count": 0},
		"pps_id": 3,
		"children": [
			{
				"lps": {"name": "A", "dimension_count": 1},
				"pps_id": 1,
				"children": []
			}
		]
	}
}`

func TestBuildFromConfig(t *testing.T) {
	var cfg task.Config
	if err := json.Unmarshal([]byte(sampleConfigJSON), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tk, err := task.Build(&cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tk.Name != "Sample" {
		t.Errorf("Name = %q, want Sample", tk.Name)
	}
	if len(tk.PCubeS.Levels) != 3 {
		t.Fatalf("len(PCubeS.Levels) = %d, want 3", len(tk.PCubeS.Levels))
	}
	if tk.PCubeS.CoreSpace() == nil {
		t.Fatalf("expected a core PPS level")
	}
	root := tk.MappingRoot
	if root.LPS.Name != "Root" || !root.LPS.IsRoot() {
		t.Fatalf("MappingRoot.LPS = %+v, want root LPS named Root", root.LPS)
	}
	if len(root.Children) != 1 || root.Children[0].LPS.Name != "A" {
		t.Fatalf("MappingRoot.Children = %v, want [A]", root.Children)
	}
	if root.Children[0].LPS.Parent != root.LPS {
		t.Errorf("A's parent LPS is not wired to Root")
	}
	if root.Children[0].PPS.ID != 1 {
		t.Errorf("A's PPS id = %d, want 1", root.Children[0].PPS.ID)
	}
	if got := tk.LPSByName["A"]; got != root.Children[0].LPS {
		t.Errorf("LPSByName[A] not wired to the same LPS instance")
	}
}

func TestBuildRejectsUnknownPPSID(t *testing.T) {
	cfg := &task.Config{
		TaskName: "Bad",
		PCubeS:   []task.PPSConfig{{ID: 1, Units: 1, CoreSpace: true}},
		Mapping:  &task.MappingNodeConfig{LPS: task.LPSConfig{Name: "Root"}, PPSID: 99},
	}
	if _, err := task.Build(cfg); err == nil {
		t.Fatalf("expected an error for an unknown PPS id")
	}
}

func TestBuildRequiresCoreSpace(t *testing.T) {
	cfg := &task.Config{
		TaskName: "Bad",
		PCubeS:   []task.PPSConfig{{ID: 1, Units: 1}},
		Mapping:  &task.MappingNodeConfig{LPS: task.LPSConfig{Name: "Root"}, PPSID: 1},
	}
	if _, err := task.Build(cfg); err == nil {
		t.Fatalf("expected an error when no PPS level is marked core_space")
	}
}
