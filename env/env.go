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

// Package env implements the environment-instruction boundary a task's
// generated entry code drives at task initialization and completion.
// Grounded directly on
// compilers/segmented-memory-backend/src/environment/env_instruction.h
// (TaskInitEnvInstruction and its four subclasses, TaskEndEnvInstruction
// and ChangeNotifyInstruction), including the side effects described in
// that header's class comments.
package env

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// TaskItem is the program-environment record an instruction operates on:
// one task-global variable's current data item. Grounded on the TaskItem
// references throughout env_instruction.h; its own declaration was not in
// the retrieval pack, so only the fields the instructions' documented side
// effects actually touch are carried.
type TaskItem struct {
	Name string

	// Dimensions holds each dimension's length, populated by
	// setupDimensions before partition configuration can proceed.
	Dimensions []int

	// DataSourceKey uniquely identifies this item's current data source,
	// assigned fresh whenever a new data item is created for the variable.
	DataSourceKey string

	// VersionManaged reports whether an object-version-manager has been
	// started for this item in the program environment.
	VersionManaged bool

	// Fresh reports whether the item's parts lists are up to date across
	// every stale/fresh version the program environment tracks.
	Fresh bool

	keySeq int
}

func (it *TaskItem) removeOldPartsListReferences() {
	it.DataSourceKey = ""
}

func (it *TaskItem) allocatePartsLists() {
	// Parts-list allocation itself belongs to the part-container tree
	// (package container), built once dimensions and partition
	// configuration are known; this instruction only marks the item as
	// needing a fresh allocation, matching allocatePartsLists' role as a
	// precursor step in the original.
	it.Fresh = false
}

func (it *TaskItem) assignDataSourceKeyForItem() {
	it.keySeq++
	it.DataSourceKey = fmt.Sprintf("%s#%d", it.Name, it.keySeq)
}

func (it *TaskItem) initiateVersionManagement() {
	it.VersionManaged = true
}

func (it *TaskItem) recordFreshPartsListVersions() {
	it.Fresh = true
}

// InitType enumerates the four TaskInitEnvInstruction variants, numbered
// per env_instruction.h's getType().
type InitType int

const (
	TypeStaleRefresh InitType = 0
	TypeCreateFresh  InitType = 1
	TypeReadFromFile InitType = 2
	TypeDataTransfer InitType = 3
)

// InitInstruction is the common interface every TaskInitEnvInstruction
// variant implements: the four lifecycle hooks a task's entry code invokes
// in order, plus the item being updated and a type tag for instruction
// retrieval by type.
type InitInstruction interface {
	Item() *TaskItem
	Type() InitType
	SetupDimensions() error
	PreprocessProgramEnv()
	SetupPartsList() error
	PostprocessProgramEnv()
}

// StaleRefreshInstruction is the default instruction for linked task
// environmental variables: if the existing parts list is up to date
// nothing happens; a stale list gets refreshed (a fresh-to-stale transfer
// the runtime library issues automatically, outside this package's scope)
// and is then flagged fresh again on completion.
type StaleRefreshInstruction struct {
	item *TaskItem
}

// NewStaleRefreshInstruction returns a StaleRefreshInstruction for item.
func NewStaleRefreshInstruction(item *TaskItem) *StaleRefreshInstruction {
	return &StaleRefreshInstruction{item: item}
}

func (i *StaleRefreshInstruction) Item() *TaskItem         { return i.item }
func (i *StaleRefreshInstruction) Type() InitType          { return TypeStaleRefresh }
func (i *StaleRefreshInstruction) SetupDimensions() error  { return nil }
func (i *StaleRefreshInstruction) PreprocessProgramEnv()   {}
func (i *StaleRefreshInstruction) SetupPartsList() error   { return nil }
func (i *StaleRefreshInstruction) PostprocessProgramEnv() {
	i.item.recordFreshPartsListVersions()
}

// CreateFreshInstruction is the instruction for environmental variables
// created by the task; a previously created item for the same variable is
// let go of before the new one is set up.
type CreateFreshInstruction struct {
	item *TaskItem
}

// NewCreateFreshInstruction returns a CreateFreshInstruction for item.
func NewCreateFreshInstruction(item *TaskItem) *CreateFreshInstruction {
	return &CreateFreshInstruction{item: item}
}

func (i *CreateFreshInstruction) Item() *TaskItem        { return i.item }
func (i *CreateFreshInstruction) Type() InitType         { return TypeCreateFresh }
func (i *CreateFreshInstruction) SetupDimensions() error { return nil }
func (i *CreateFreshInstruction) PreprocessProgramEnv() {
	i.item.removeOldPartsListReferences()
}
func (i *CreateFreshInstruction) SetupPartsList() error {
	i.item.allocatePartsLists()
	i.item.assignDataSourceKeyForItem()
	return nil
}
func (i *CreateFreshInstruction) PostprocessProgramEnv() {
	i.item.initiateVersionManagement()
}

// ReadFromFileInstruction causes a task item's data-part content to be
// read from an external file. Grounded on ReadFromFileInstruction; per
// spec.md §6, the dimension metadata is a leading header in the file
// itself, read by setupDimensions before any further processing.
type ReadFromFileInstruction struct {
	item     *TaskItem
	FileName string
}

// NewReadFromFileInstruction returns a ReadFromFileInstruction for item,
// reading from fileName.
func NewReadFromFileInstruction(item *TaskItem, fileName string) *ReadFromFileInstruction {
	return &ReadFromFileInstruction{item: item, FileName: fileName}
}

func (i *ReadFromFileInstruction) Item() *TaskItem { return i.item }
func (i *ReadFromFileInstruction) Type() InitType  { return TypeReadFromFile }

// SetupDimensions reads the dimension-length header that leads the file's content
// (one integer dimension length per line, terminated by a blank line) and
// copies it back into the task item's Dimensions.
func (i *ReadFromFileInstruction) SetupDimensions() error {
	f, err := fileOpener(i.FileName)
	if err != nil {
		return errors.Wrapf(err, "env: opening %q for dimension header", i.FileName)
	}
	defer f.Close()
	return i.readDimensionHeader(f)
}

func (i *ReadFromFileInstruction) readDimensionHeader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var dims []int
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		var n int
		if _, err := fmt.Sscanf(line, "%d", &n); err != nil {
			return errors.Wrapf(err, "env: parsing dimension header line %q", line)
		}
		dims = append(dims, n)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "env: reading dimension header")
	}
	i.item.Dimensions = dims
	return nil
}

func (i *ReadFromFileInstruction) PreprocessProgramEnv() {
	i.item.removeOldPartsListReferences()
}
func (i *ReadFromFileInstruction) SetupPartsList() error {
	i.item.allocatePartsLists()
	return nil
}
func (i *ReadFromFileInstruction) PostprocessProgramEnv() {
	i.item.initiateVersionManagement()
}

// fileOpener is overridden in tests to avoid real filesystem access.
var fileOpener = func(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// SetFileOpenerForTest overrides the function ReadFromFileInstruction uses
// to open its source file, returning a function that restores the previous
// opener. Exposed for tests outside this package.
func SetFileOpenerForTest(open func(name string) (io.ReadCloser, error)) (restore func()) {
	prev := fileOpener
	fileOpener = open
	return func() { fileOpener = prev }
}

// ArrayTransferConfig describes an explicit object-to-object environment
// assignment, restricted (per the original's TODO) to equal-dimension
// source and destination items.
type ArrayTransferConfig struct {
	SourceItem      *TaskItem
	SourceDimension []int
}

// DataTransferInstruction encodes an explicit object assignment from one
// task's environment item to another, e.g. `envA.a = envB.b`.
type DataTransferInstruction struct {
	item           *TaskItem
	TransferConfig *ArrayTransferConfig
}

// NewDataTransferInstruction returns a DataTransferInstruction for item,
// sourcing its dimension information from config.
func NewDataTransferInstruction(item *TaskItem, config *ArrayTransferConfig) *DataTransferInstruction {
	return &DataTransferInstruction{item: item, TransferConfig: config}
}

func (i *DataTransferInstruction) Item() *TaskItem { return i.item }
func (i *DataTransferInstruction) Type() InitType  { return TypeDataTransfer }

// SetupDimensions copies the transfer config's SourceDimension into the
// destination item's Dimensions.
func (i *DataTransferInstruction) SetupDimensions() error {
	if i.TransferConfig == nil {
		return errors.New("env: DataTransferInstruction has no transfer config")
	}
	i.item.Dimensions = append([]int(nil), i.TransferConfig.SourceDimension...)
	return nil
}
func (i *DataTransferInstruction) PreprocessProgramEnv() {
	i.item.removeOldPartsListReferences()
}
func (i *DataTransferInstruction) SetupPartsList() error { return nil }
func (i *DataTransferInstruction) PostprocessProgramEnv() {
	i.item.recordFreshPartsListVersions()
}

// EndInstruction is the common interface for TaskEndEnvInstruction
// variants: Execute runs updateProgramEnv then doAdditionalProcessing, per
// the original's non-virtual Execute wrapping its two hooks.
type EndInstruction interface {
	Execute()
}

// ChangeNotifyInstruction records, at task completion, that a multi-version
// data item's stale/fresh version list needs updating. Both hooks are
// no-ops in the original (the actual bookkeeping lives in the version
// manager this instruction notifies); carried through unchanged.
type ChangeNotifyInstruction struct {
	Item *TaskItem
}

// NewChangeNotifyInstruction returns a ChangeNotifyInstruction for item.
func NewChangeNotifyInstruction(item *TaskItem) *ChangeNotifyInstruction {
	return &ChangeNotifyInstruction{Item: item}
}

func (c *ChangeNotifyInstruction) Execute() {
	c.updateProgramEnv()
	c.doAdditionalProcessing()
}

func (c *ChangeNotifyInstruction) updateProgramEnv()      {}
func (c *ChangeNotifyInstruction) doAdditionalProcessing() {}
