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

// Command partc drives the thread-state generator (package threadstate)
// and the codegen writer (package codegen) over a single task's input IR,
// emitting the header and program text streams spec.md §6 describes as
// this compiler core's emission target.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/partlang/partc/codegen"
	"github.com/partlang/partc/task"
	"github.com/partlang/partc/threadstate"
)

var (
	configPath  = flag.String("config", "", "path to the task's JSON input-IR config")
	includeList = flag.String("include_list", "", "path to the shared include list copied into every emitted stream")
	headerOut   = flag.String("header_out", "", "output path for the generated header stream")
	programOut  = flag.String("program_out", "", "output path for the generated program stream")
)

func run() error {
	flag.Parse()
	if *configPath == "" {
		return fmt.Errorf("no config specified: please use --config to specify the task's input IR")
	}
	if *includeList == "" {
		return fmt.Errorf("no include list specified: please use --include_list")
	}
	if *headerOut == "" || *programOut == "" {
		return fmt.Errorf("both --header_out and --program_out are required")
	}

	configData, err := os.ReadFile(*configPath)
	if err != nil {
		return fmt.Errorf("cannot read config %s: %v", *configPath, err)
	}
	var cfg task.Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return fmt.Errorf("cannot parse config %s: %v", *configPath, err)
	}

	tk, err := task.Build(&cfg)
	if err != nil {
		return fmt.Errorf("cannot build task from config: %v", err)
	}

	cat, err := task.BuildCatalog(tk)
	if err != nil {
		return fmt.Errorf("cannot build data-structure catalog: %v", err)
	}

	gen := threadstate.NewGenerator(tk)
	plans, err := gen.ComputeNextLpuPlans(cat)
	if err != nil {
		return fmt.Errorf("cannot compute next-LPU plans: %v", err)
	}
	routines, err := codegen.NewThreadStateRoutines(tk.Name, gen, plans)
	if err != nil {
		return fmt.Errorf("cannot assemble thread-state routines: %v", err)
	}

	w := codegen.NewWriter(*includeList)

	headerFile, err := os.Create(*headerOut)
	if err != nil {
		return fmt.Errorf("cannot create header output %s: %v", *headerOut, err)
	}
	defer headerFile.Close()
	if err := w.WriteHeader(headerFile, routines); err != nil {
		return fmt.Errorf("cannot write header %s: %v", *headerOut, err)
	}

	programFile, err := os.Create(*programOut)
	if err != nil {
		return fmt.Errorf("cannot create program output %s: %v", *programOut, err)
	}
	defer programFile.Close()
	if err := w.WriteProgram(programFile, routines); err != nil {
		return fmt.Errorf("cannot write program %s: %v", *programOut, err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
