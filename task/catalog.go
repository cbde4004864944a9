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

package task

import (
	"github.com/pkg/errors"

	"github.com/partlang/partc/partition"
)

// BuildCatalog declares one partition.DataStructure per array named in
// tk.CountFunctionArgs, local to the LPS the map entry is keyed by, and
// returns the resulting catalog. Grounded on generateComputeLpuCountRoutine's
// countFunctionsArgsConfig->Lookup(lps->getName()) in thread_state_mgmt.cc:
// CountFunctionArgs is keyed by LPS name, and each PartitionParameterConfig
// entry names one dimension of one array partitioned at that LPS.
//
// LpuPartFunctionArgs, keyed by "<lpsName>_<arrayName>" per
// generateComputeNextLpuRoutine's lpuPartFunctionsArgsConfig lookup, supplies
// the extra partition-argument indexes a structure's get-Part call needs
// beyond the parent part descriptor; BuildCatalog closes over them in the
// declared DataStructure's GetPart closure. The closure itself only selects
// those argument values — it never computes a partition, since the
// partition-function arithmetic a real get-Part closure performs is
// generated, runtime-supplied code outside this compiler core's scope (see
// partition.DimConfig.Function's doc comment).
func BuildCatalog(tk *Task) (*partition.Catalog, error) {
	cat := partition.NewCatalog()
	for lpsName, paramConfigs := range tk.CountFunctionArgs {
		lps, ok := tk.LPSByName[lpsName]
		if !ok {
			return nil, errors.Errorf("task: count_function_args references unknown LPS %q", lpsName)
		}

		order := make([]string, 0, len(paramConfigs))
		dimsByArray := make(map[string][]partition.DimConfig)
		for _, pc := range paramConfigs {
			if pc.ArrayName == "" {
				continue
			}
			if _, seen := dimsByArray[pc.ArrayName]; !seen {
				order = append(order, pc.ArrayName)
			}
			dimsByArray[pc.ArrayName] = append(dimsByArray[pc.ArrayName], partition.DimConfig{
				DimensionNo: pc.DimensionNo,
				ArgIndexes:  pc.PartitionArgsIndexes,
			})
		}

		for _, arrayName := range order {
			argIdxs := tk.LpuPartFunctionArgs[lpsName+"_"+arrayName]
			getPart := func(parent partition.PartDims, lpuCounts, lpuID []int, partitionArgs []any) partition.PartDims {
				selected := make([]any, len(argIdxs))
				for i, idx := range argIdxs {
					if idx >= 0 && idx < len(partitionArgs) {
						selected[i] = partitionArgs[idx]
					}
				}
				_ = selected // the actual partition arithmetic is generated code, outside this compiler core
				return parent
			}
			cat.Declare(&partition.DataStructure{
				Name:           arrayName,
				Dimensionality: len(dimsByArray[arrayName]),
				Space:          lps,
				Partitioned:    true,
				PartConfig:     partition.Compile(arrayName, dimsByArray[arrayName], getPart),
			})
		}
	}
	return cat, nil
}
