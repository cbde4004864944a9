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

// Package task models the external input IR boundary: the already-parsed
// task description (MappingNode tree, PCubeS model, task-global symbol
// lists) that a parser/semantic front end hands to this compiler core.
// Grounded on spec.md §6 and the MappingNode/PCubeSModel/
// PartitionParameterConfig types referenced throughout
// MultiCoreBackEnd/codegen/thread_state_mgmt.cc and
// compilers/hybrid-backend/src/static-analysis/gpu_execution_ctxt.h.
// Lexing, parsing and AST construction are explicitly out of scope
// (spec.md §1); Config is this package's stand-in wire format for an
// already-parsed task, decodable from JSON by a caller such as cmd/partc.
package task

import (
	"github.com/pkg/errors"

	"github.com/partlang/partc/space"
)

// PPSConfig is the wire form of one space.PPS level.
type PPSConfig struct {
	ID        int  `json:"id"`
	Units     int  `json:"units"`
	CoreSpace bool `json:"core_space"`
}

// LPSConfig is the wire form of one space.LPS declaration, as carried by a
// MappingNodeConfig.
type LPSConfig struct {
	Name           string `json:"name"`
	DimensionCount int    `json:"dimension_count"`
	SubPartition   bool   `json:"sub_partition"`
}

// MappingNodeConfig is the wire form of a MappingNode tree: each node pairs
// an LPS declaration with the PPS id it is mapped onto, per spec.md §6's
// "MappingNode tree (each node has {LPS, PPS} config and children)".
type MappingNodeConfig struct {
	LPS      LPSConfig            `json:"lps"`
	PPSID    int                  `json:"pps_id"`
	Children []*MappingNodeConfig `json:"children"`
}

// PartitionParameterConfig wires a data structure's name, which partition
// dimension it supplies, and which task partition-argument indexes it
// consumes, into a generated get-LPU-count or get-Part closure call.
// Grounded on the PartitionParameterConfig usage throughout
// thread_state_mgmt.cc (generateComputeLpuCountRoutine's
// countFunctionsArgsConfig).
type PartitionParameterConfig struct {
	ArrayName            string `json:"array_name"`
	DimensionNo          int    `json:"dimension_no"`
	PartitionArgsIndexes []int  `json:"partition_args_indexes"`
}

// ScalarDecl is a task-global scalar declaration.
type ScalarDecl struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
}

// TupleDecl is a task-global tuple (record) declaration.
type TupleDecl struct {
	Name   string       `json:"name"`
	Fields []ScalarDecl `json:"fields"`
}

// EnvironmentLink declares that a task parameter is linked to an item in
// the program environment, optionally creating a fresh item rather than
// binding to an existing one. Grounded on the environment-link declarations
// referenced in spec.md §6. Nothing in this repository selects env
// instructions from these declarations.
type EnvironmentLink struct {
	VarName    string `json:"var_name"`
	ItemName   string `json:"item_name"`
	CreatesNew bool   `json:"creates_new"`
}

// GlobalSymbols holds a task's global scalar, tuple and environment-link
// declarations. No type-checking is performed here — that is the parser's
// concern (a Non-goal of this compiler core, per spec.md §1).
type GlobalSymbols struct {
	Scalars          []ScalarDecl      `json:"scalars"`
	Tuples           []TupleDecl       `json:"tuples"`
	EnvironmentLinks []EnvironmentLink `json:"environment_links"`
}

// Config is the wire form of a whole task, decodable straight from JSON by
// a caller such as cmd/partc, and converted to linked form by Build.
type Config struct {
	TaskName            string                                `json:"task_name"`
	PCubeS              []PPSConfig                           `json:"pcubes"`
	Mapping             *MappingNodeConfig                    `json:"mapping"`
	Globals             GlobalSymbols                         `json:"globals"`
	CountFunctionArgs   map[string][]PartitionParameterConfig `json:"count_function_args"`
	LpuPartFunctionArgs map[string][]int                      `json:"lpu_part_function_args"`
}

// MappingNode is the linked form of a MappingNodeConfig: a node in the
// mapping tree pairing an LPS with the PPS it has been mapped onto.
// Grounded on the MappingNode struct referenced throughout
// thread_state_mgmt.cc (mappingConfig->LPS, children) and
// gpu_execution_ctxt.h's GpuExecutionContext::getContextLps.
type MappingNode struct {
	LPS      *space.LPS
	PPS      *space.PPS
	Parent   *MappingNode
	Children []*MappingNode
}

// AddChild appends child to n's children, re-parenting it.
func (n *MappingNode) AddChild(child *MappingNode) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// Task is the linked form of a Config: the complete input IR for one
// compile invocation.
type Task struct {
	Name                string
	PCubeS              *space.PCubeSModel
	MappingRoot         *MappingNode
	Globals             GlobalSymbols
	CountFunctionArgs   map[string][]PartitionParameterConfig
	LpuPartFunctionArgs map[string][]int
	LPSByName           map[string]*space.LPS
}

// Build converts cfg into a linked Task, constructing the space.LPS tree
// and resolving every MappingNodeConfig's PPS id against cfg.PCubeS.
func Build(cfg *Config) (*Task, error) {
	if cfg.Mapping == nil {
		return nil, errors.New("task: config has no mapping root")
	}
	pcubes := &space.PCubeSModel{}
	for _, p := range cfg.PCubeS {
		pcubes.Levels = append(pcubes.Levels, space.PPS{ID: p.ID, Units: p.Units, CoreSpace: p.CoreSpace})
	}
	if pcubes.CoreSpace() == nil {
		return nil, errors.New("task: no PPS level marked core_space")
	}

	lpsByName := map[string]*space.LPS{}
	root, err := buildMappingNode(cfg.Mapping, nil, pcubes, lpsByName)
	if err != nil {
		return nil, err
	}
	return &Task{
		Name:                cfg.TaskName,
		PCubeS:              pcubes,
		MappingRoot:         root,
		Globals:             cfg.Globals,
		CountFunctionArgs:   cfg.CountFunctionArgs,
		LpuPartFunctionArgs: cfg.LpuPartFunctionArgs,
		LPSByName:           lpsByName,
	}, nil
}

func buildMappingNode(cfg *MappingNodeConfig, parentLPS *space.LPS, pcubes *space.PCubeSModel, lpsByName map[string]*space.LPS) (*MappingNode, error) {
	if _, exists := lpsByName[cfg.LPS.Name]; exists {
		return nil, errors.Errorf("task: duplicate LPS name %q in mapping tree", cfg.LPS.Name)
	}
	lps := space.NewLPS(cfg.LPS.Name, parentLPS, cfg.LPS.DimensionCount)
	lps.SubPartition = cfg.LPS.SubPartition
	lpsByName[lps.Name] = lps

	pps := pcubes.ByID(cfg.PPSID)
	if pps == nil {
		return nil, errors.Errorf("task: mapping node %q references unknown PPS id %d", cfg.LPS.Name, cfg.PPSID)
	}
	node := &MappingNode{LPS: lps, PPS: pps}
	for _, childCfg := range cfg.Children {
		child, err := buildMappingNode(childCfg, lps, pcubes, lpsByName)
		if err != nil {
			return nil, err
		}
		node.AddChild(child)
	}
	return node, nil
}
