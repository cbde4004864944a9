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

package env_test

import (
	"io"
	"strings"
	"testing"

	"github.com/partlang/partc/env"
)

func runInit(t *testing.T, inst env.InitInstruction) {
	t.Helper()
	if err := inst.SetupDimensions(); err != nil {
		t.Fatalf("SetupDimensions: %v", err)
	}
	inst.PreprocessProgramEnv()
	if err := inst.SetupPartsList(); err != nil {
		t.Fatalf("SetupPartsList: %v", err)
	}
	inst.PostprocessProgramEnv()
}

func TestStaleRefreshInstructionMarksFresh(t *testing.T) {
	item := &env.TaskItem{Name: "a"}
	inst := env.NewStaleRefreshInstruction(item)
	runInit(t, inst)
	if !item.Fresh {
		t.Errorf("item.Fresh = false, want true after stale-refresh completes")
	}
	if inst.Type() != env.TypeStaleRefresh {
		t.Errorf("Type() = %v, want TypeStaleRefresh", inst.Type())
	}
}

func TestCreateFreshInstructionAssignsKeyAndVersion(t *testing.T) {
	item := &env.TaskItem{Name: "b", DataSourceKey: "stale-key"}
	inst := env.NewCreateFreshInstruction(item)
	runInit(t, inst)
	if item.DataSourceKey == "" || item.DataSourceKey == "stale-key" {
		t.Errorf("DataSourceKey = %q, want a freshly assigned key", item.DataSourceKey)
	}
	if !item.VersionManaged {
		t.Errorf("VersionManaged = false, want true")
	}
	if item.Fresh {
		t.Errorf("Fresh = true, want false: a freshly allocated item has not recorded fresh parts lists yet")
	}
}

func TestReadFromFileInstructionParsesDimensionHeader(t *testing.T) {
	item := &env.TaskItem{Name: "c"}
	inst := env.NewReadFromFileInstruction(item, "unused.dat")

	restore := env.SetFileOpenerForTest(func(name string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("10\n20\n\nbinary payload follows")), nil
	})
	defer restore()

	runInit(t, inst)
	if len(item.Dimensions) != 2 || item.Dimensions[0] != 10 || item.Dimensions[1] != 20 {
		t.Fatalf("Dimensions = %v, want [10 20]", item.Dimensions)
	}
	if !item.VersionManaged {
		t.Errorf("VersionManaged = false, want true")
	}
}

func TestDataTransferInstructionCopiesSourceDimension(t *testing.T) {
	item := &env.TaskItem{Name: "d"}
	inst := env.NewDataTransferInstruction(item, &env.ArrayTransferConfig{SourceDimension: []int{4, 4}})
	runInit(t, inst)
	if len(item.Dimensions) != 2 || item.Dimensions[0] != 4 {
		t.Fatalf("Dimensions = %v, want [4 4]", item.Dimensions)
	}
	if !item.Fresh {
		t.Errorf("Fresh = false, want true after a data transfer completes")
	}
}

func TestDataTransferInstructionRequiresConfig(t *testing.T) {
	inst := env.NewDataTransferInstruction(&env.TaskItem{Name: "e"}, nil)
	if err := inst.SetupDimensions(); err == nil {
		t.Fatalf("expected an error when TransferConfig is nil")
	}
}

func TestChangeNotifyInstructionExecutes(t *testing.T) {
	c := env.NewChangeNotifyInstruction(&env.TaskItem{Name: "f"})
	c.Execute()
}
