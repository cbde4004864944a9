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

	"github.com/partlang/partc/space"
	"github.com/partlang/partc/task"
)

const catalogConfigJSON = `{
	"task_name": "Sample",
	"pcubes": [
		{"id": 1, "units": 4, "core_space": true}
	],
	"mapping": {
		"lps": {"name": "Root", "dimension_count": 0},
		"pps_id": 1,
		"children": [
			{
				"lps": {"name": "A", "dimension_count": 1},
				"pps_id": 1,
				"children": []
			}
		]
	},
	"count_function_args": {
		"A": [
			{"array_name": "grid", "dimension_no": 1, "partition_args_indexes": [0]}
		]
	},
	"lpu_part_function_args": {
		"A_grid": [1]
	}
}`

// TestBuildCatalogDeclaresPartitionedStructure covers the CLI's catalog
// construction step: a count_function_args entry keyed by an LPS name
// declares that LPS's array local, partitioned and carrying the configured
// dimension, so the LPS's LocallyUsedStructureNames is no longer empty.
func TestBuildCatalogDeclaresPartitionedStructure(t *testing.T) {
	var cfg task.Config
	if err := json.Unmarshal([]byte(catalogConfigJSON), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tk, err := task.Build(&cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cat, err := task.BuildCatalog(tk)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	aLPS := tk.LPSByName["A"]
	if names := aLPS.LocallyUsedStructureNames(); len(names) != 1 || names[0] != "grid" {
		t.Fatalf("A.LocallyUsedStructureNames() = %v, want [grid]", names)
	}

	ds, ok := cat.Lookup(aLPS, "grid")
	if !ok {
		t.Fatalf("catalog has no entry for A/grid")
	}
	if !ds.Partitioned {
		t.Errorf("grid.Partitioned = false, want true")
	}
	if ds.PartConfig == nil || ds.PartConfig.Replicated {
		t.Fatalf("grid.PartConfig = %+v, want a non-replicated compiled config", ds.PartConfig)
	}
	if len(ds.PartConfig.Dims) != 1 || ds.PartConfig.Dims[0].DimensionNo != 1 {
		t.Errorf("grid.PartConfig.Dims = %+v, want one dim with DimensionNo 1", ds.PartConfig.Dims)
	}
	if len(ds.PartConfig.Dims[0].ArgIndexes) != 1 || ds.PartConfig.Dims[0].ArgIndexes[0] != 0 {
		t.Errorf("grid.PartConfig.Dims[0].ArgIndexes = %v, want [0]", ds.PartConfig.Dims[0].ArgIndexes)
	}

	got := ds.PartConfig.GetPart(nil, nil, nil, []any{"arg0", "arg1"})
	if got != nil {
		t.Errorf("GetPart(nil parent, ...) = %v, want nil (placeholder passes the parent part through)", got)
	}
}

func TestBuildCatalogRejectsUnknownLPS(t *testing.T) {
	tk := &task.Task{
		CountFunctionArgs: map[string][]task.PartitionParameterConfig{
			"Ghost": {{ArrayName: "grid", DimensionNo: 1}},
		},
		LPSByName: map[string]*space.LPS{},
	}
	if _, err := task.BuildCatalog(tk); err == nil {
		t.Fatalf("expected an error for a count_function_args entry referencing an unknown LPS")
	}
}
