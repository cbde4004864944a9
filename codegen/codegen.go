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

// Package codegen renders thread-state generator output (package
// threadstate) into the two text streams a task's emission target
// expects: a header and a program file, per spec.md §6's "Emission
// target". Grounded on the string-building shape of
// MultiCoreBackEnd/codegen/thread_state_mgmt.cc
// (generateRootLpuComputeRoutine, generateParentIndexMapRoutine,
// generateComputeNextLpuRoutine), generalized through text/template using
// base/tmpl rather than hand-built ostringstream concatenation.
package codegen

import (
	"io"
	"os"
	"sort"
	"text/template"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/partlang/partc/base/tmpl"
	"github.com/partlang/partc/threadstate"
)

// ThreadStateRoutines is the structural description of one task's
// thread-state generator output, ready to be rendered by a Writer: the
// total-thread constants, the LPS parent-index map, and the per-LPS
// compute-next-LPU plans. It carries nothing for a PPU-ids-for-thread
// routine, and the Writer renders none.
type ThreadStateRoutines struct {
	TaskName       string
	TotalThreads   int
	ThreadsPerCore int
	ParentIndexMap map[string]string
	Plans          []*threadstate.NextLpuPlan
	RootPlan       *threadstate.NextLpuPlan
}

// NewThreadStateRoutines runs g's artifact computations and assembles a
// ThreadStateRoutines ready for rendering.
func NewThreadStateRoutines(taskName string, g *threadstate.Generator, plans []*threadstate.NextLpuPlan) (*ThreadStateRoutines, error) {
	threadsPerCore, err := g.ThreadsPerCore()
	if err != nil {
		return nil, errors.Wrap(err, "codegen: computing threads-per-core")
	}
	return &ThreadStateRoutines{
		TaskName:       taskName,
		TotalThreads:   g.TotalThreads(),
		ThreadsPerCore: threadsPerCore,
		ParentIndexMap: g.ParentIndexMap(),
		Plans:          plans,
		RootPlan:       g.RootLpuPlan(plans),
	}, nil
}

var rootLpuTmpl = template.Must(template.New("rootLpu").Parse(
	`// Construction of task specific root LPU
void ThreadStateImpl::setRootLpu() {
	Space{{.LPS.Name}}_LPU *lpu = new Space{{.LPS.Name}}_LPU;
{{- range .ArrayParts}}
	lpu->{{.ArrayName}} = NULL;
{{- end}}
	lpsStates[Space_{{.LPS.Name}}]->lpu = lpu;
}
`))

var nextLpuTmpl = template.Must(template.New("nextLpu").Parse(
	`// Construction of next LPU for LPS {{.LPS.Name}}
void ThreadStateImpl::computeNextLpu_{{.LPS.Name}}(int *lpuCounts, int *nextLpuId) {
	Space{{.LPS.Name}}_LPU *lpu = new Space{{.LPS.Name}}_LPU;
{{- range .ArrayParts}}
{{- if .Replicated}}
	lpu->{{.ArrayName}} = parentLpu->{{.ArrayName}};
{{- else}}
	lpu->{{.ArrayName}} = get{{.ArrayName}}PartForSpace{{$.LPS.Name}}Lpu(parentLpu->{{.ArrayName}}, lpuCounts, nextLpuId);
{{- end}}
{{- end}}
	lpsStates[Space_{{.LPS.Name}}]->lpu = lpu;
}
`))

var parentIndexEntryTmpl = template.Must(template.New("parentIndexEntry").Parse(
	`lpsParentIndexMap[Space_{{.Name}}] = {{.ParentExpr}};
`))

// parentIndexEntry pairs one LPS name with its parent-reference C++
// expression, rendered by parentIndexEntryTmpl.
type parentIndexEntry struct {
	Name       string
	ParentExpr string
}

// Writer renders ThreadStateRoutines into header and program text streams.
// Grounded on spec.md §6's "a shared include list at a well-known path is
// copied verbatim into both streams".
type Writer struct {
	IncludeListPath string
}

// NewWriter returns a Writer that copies the include list at
// includeListPath into every stream it renders.
func NewWriter(includeListPath string) *Writer {
	return &Writer{IncludeListPath: includeListPath}
}

func (w *Writer) writeIncludeList(out io.Writer) error {
	data, err := os.ReadFile(w.IncludeListPath)
	if err != nil {
		return errors.Wrapf(err, "codegen: reading include list %q", w.IncludeListPath)
	}
	if _, err := out.Write(data); err != nil {
		return errors.Wrap(err, "codegen: writing include list")
	}
	return nil
}

// WriteHeader renders routines' declarations into out, preceded by the
// shared include list.
func (w *Writer) WriteHeader(out io.Writer, routines *ThreadStateRoutines) error {
	if err := w.writeIncludeList(out); err != nil {
		return err
	}
	// Forward-declare every LPS's LPU type before the routine declarations
	// that reference it, in a deterministic order: map iteration order is
	// not itself stable across runs.
	lpsNames := maps.Keys(routines.ParentIndexMap)
	sort.Strings(lpsNames)
	for _, name := range lpsNames {
		if _, err := io.WriteString(out, "class Space"+name+"_LPU;\n"); err != nil {
			return errors.Wrap(err, "codegen: writing LPU forward declaration")
		}
	}
	for _, plan := range routines.Plans {
		if _, err := io.WriteString(out, "void computeNextLpu_"+plan.LPS.Name+"(int *lpuCounts, int *nextLpuId);\n"); err != nil {
			return errors.Wrap(err, "codegen: writing header declaration")
		}
	}
	return nil
}

// WriteProgram renders routines' root-LPU routine, parent-index map and
// every per-LPS compute-next-LPU routine into out, preceded by the shared
// include list.
func (w *Writer) WriteProgram(out io.Writer, routines *ThreadStateRoutines) error {
	if err := w.writeIncludeList(out); err != nil {
		return err
	}
	if routines.RootPlan != nil {
		rendered, err := tmpl.IterateTmpl([]*threadstate.NextLpuPlan{routines.RootPlan}, rootLpuTmpl)
		if err != nil {
			return errors.Wrap(err, "codegen: rendering root LPU routine")
		}
		if _, err := io.WriteString(out, rendered); err != nil {
			return errors.Wrap(err, "codegen: writing root LPU routine")
		}
	}

	if err := w.writeParentIndexMap(out, routines); err != nil {
		return err
	}

	var nonRoot []*threadstate.NextLpuPlan
	for _, p := range routines.Plans {
		if p != routines.RootPlan {
			nonRoot = append(nonRoot, p)
		}
	}
	rendered, err := tmpl.IterateTmpl(nonRoot, nextLpuTmpl)
	if err != nil {
		return errors.Wrap(err, "codegen: rendering compute-next-LPU routines")
	}
	if _, err := io.WriteString(out, rendered); err != nil {
		return errors.Wrap(err, "codegen: writing compute-next-LPU routines")
	}
	return nil
}

func (w *Writer) writeParentIndexMap(out io.Writer, routines *ThreadStateRoutines) error {
	if _, err := io.WriteString(out, "// Construction of task specific LPS hierarchy index map\n"); err != nil {
		return errors.Wrap(err, "codegen: writing parent-index-map header")
	}
	entries := make([]parentIndexEntry, 0, len(routines.ParentIndexMap))
	for _, p := range routines.Plans {
		parent := routines.ParentIndexMap[p.LPS.Name]
		expr := "INVALID_SPACE_ID"
		if parent != "" {
			expr = "Space_" + parent
		}
		entries = append(entries, parentIndexEntry{Name: p.LPS.Name, ParentExpr: expr})
	}
	rendered, err := tmpl.IterateTmpl(entries, parentIndexEntryTmpl)
	if err != nil {
		return errors.Wrap(err, "codegen: rendering parent-index-map entries")
	}
	_, err = io.WriteString(out, rendered)
	return errors.Wrap(err, "codegen: writing parent-index-map entries")
}
