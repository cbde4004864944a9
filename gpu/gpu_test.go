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

package gpu_test

import (
	"testing"

	"github.com/partlang/partc/flow"
	"github.com/partlang/partc/gpu"
	"github.com/partlang/partc/space"
)

// TestNewExecutionContextSplitsRepeatBlockIntoTwoKernels covers scenario
// S6: a repeat block containing two stages with a write-read dependency
// produces one KernelGroupConfig with two sequential kernel CompositeStages.
func TestNewExecutionContextSplitsRepeatBlockIntoTwoKernels(t *testing.T) {
	gpuLPS := space.NewLPS("GpuSpace", nil, 1)
	gpuPPS := space.PPS{ID: 1, Units: 1}

	write := flow.NewStageInstanciation(gpuLPS, "produce", nil)
	write.AccessMap.Record("grid", false, true, false)

	read := flow.NewStageInstanciation(gpuLPS, "consume", nil)
	read.AccessMap.Record("grid", true, false, false)

	repeat := flow.NewRepeatControlBlock(gpuLPS, flow.RepeatWhileCondition, "more")
	repeat.AddStageAtEnd(write)
	repeat.AddStageAtEnd(read)

	lpsToPPS := map[*space.LPS]*space.PPS{gpuLPS: &gpuPPS}
	ctx := gpu.NewExecutionContext(lpsToPPS, &gpuPPS, []*flow.Stage{repeat}, 0)

	if len(ctx.KernelGroupConfigs) != 1 {
		t.Fatalf("len(KernelGroupConfigs) = %d, want 1", len(ctx.KernelGroupConfigs))
	}
	kg := ctx.KernelGroupConfigs[0]
	if !kg.Repeating {
		t.Errorf("KernelGroupConfig.Repeating = false, want true")
	}
	if len(kg.KernelConfigs) != 2 {
		t.Fatalf("len(KernelConfigs) = %d, want 2 (write/read dependency forces a kernel split)", len(kg.KernelConfigs))
	}
	if len(kg.KernelConfigs[0].Stages) != 1 || kg.KernelConfigs[0].Stages[0] != write {
		t.Errorf("first kernel config = %v, want [write]", kg.KernelConfigs[0].Stages)
	}
	if len(kg.KernelConfigs[1].Stages) != 1 || kg.KernelConfigs[1].Stages[0] != read {
		t.Errorf("second kernel config = %v, want [read]", kg.KernelConfigs[1].Stages)
	}
}

func TestNewExecutionContextClassifiesLocationSensitive(t *testing.T) {
	parent := space.NewLPS("Parent", nil, 1)
	sub := space.NewLPS("Sub", parent, 1)
	sub.SubPartition = true
	pps := space.PPS{ID: 1, Units: 1}

	stage := flow.NewStageInstanciation(sub, "work", nil)
	lpsToPPS := map[*space.LPS]*space.PPS{parent: &pps, sub: &pps}

	ctx := gpu.NewExecutionContext(lpsToPPS, &pps, []*flow.Stage{stage}, 1)
	if ctx.ContextType != gpu.LocationSensitive {
		t.Errorf("ContextType = %v, want LocationSensitive", ctx.ContextType)
	}
}

func TestNewExecutionContextClassifiesLocationIndependent(t *testing.T) {
	lps := space.NewLPS("Flat", nil, 1)
	pps := space.PPS{ID: 1, Units: 1}
	stage := flow.NewStageInstanciation(lps, "work", nil)

	ctx := gpu.NewExecutionContext(map[*space.LPS]*space.PPS{lps: &pps}, &pps, []*flow.Stage{stage}, 2)
	if ctx.ContextType != gpu.LocationIndependent {
		t.Errorf("ContextType = %v, want LocationIndependent", ctx.ContextType)
	}
}

func TestExecutionContextVariableAccessAnalysis(t *testing.T) {
	lps := space.NewLPS("L", nil, 1)
	pps := space.PPS{ID: 1, Units: 1}

	s1 := flow.NewStageInstanciation(lps, "a", nil)
	s1.AccessMap.Record("x", true, false, false)
	s2 := flow.NewStageInstanciation(lps, "b", nil)
	s2.AccessMap.Record("y", false, true, false)

	ctx := gpu.NewExecutionContext(map[*space.LPS]*space.PPS{lps: &pps}, &pps, []*flow.Stage{s1, s2}, 0)
	if ctx.VarAccessLog.Size() != 2 {
		t.Fatalf("VarAccessLog.Size() = %d, want 2", ctx.VarAccessLog.Size())
	}
	mods := ctx.ModifiedVariables()
	if len(mods) != 1 || mods[0] != "y" {
		t.Errorf("ModifiedVariables() = %v, want [y]", mods)
	}
}

// TestExecutionContextEpochDependencyAnalysis covers spec.md §4.6's
// EpochBoundaryBlock semantics: a variable accessed only before the
// boundary is epoch-independent, one accessed after it is epoch-dependent.
func TestExecutionContextEpochDependencyAnalysis(t *testing.T) {
	lps := space.NewLPS("L", nil, 1)
	pps := space.PPS{ID: 1, Units: 1}

	before := flow.NewStageInstanciation(lps, "before", nil)
	before.AccessMap.Record("early", true, false, false)

	boundary := flow.NewEpochBoundaryBlock(lps)

	after := flow.NewStageInstanciation(lps, "after", nil)
	after.AccessMap.Record("late", false, true, false)

	ctx := gpu.NewExecutionContext(map[*space.LPS]*space.PPS{lps: &pps}, &pps,
		[]*flow.Stage{before, boundary, after}, 0)

	if len(ctx.EpochDependentVarAccesses) != 1 || ctx.EpochDependentVarAccesses[0] != "late" {
		t.Fatalf("EpochDependentVarAccesses = %v, want [late]", ctx.EpochDependentVarAccesses)
	}

	indep := ctx.EpochIndependentVariables()
	if len(indep) != 1 || indep[0] != "early" {
		t.Errorf("EpochIndependentVariables() = %v, want [early]", indep)
	}
}

func TestContextRegistryRoundTrip(t *testing.T) {
	reg := gpu.NewContextRegistry()
	if got := reg.Lookup(5); got != nil {
		t.Fatalf("Lookup on empty registry = %v, want nil", got)
	}
	ctx := &gpu.ExecutionContext{ContextID: 5}
	reg.Register(ctx)
	if got := reg.Lookup(5); got != ctx {
		t.Errorf("Lookup(5) = %v, want %v", got, ctx)
	}
}
