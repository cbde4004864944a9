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

package flow

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/partlang/partc/access"
	"github.com/partlang/partc/partition"
	"github.com/partlang/partc/space"
)

// PerformDataAccessChecking validates that every variable s's own access
// map (or, for a composite-family stage, any of its descendants') records
// is declared local to a data structure reachable from the stage's own
// Space — i.e. local to that Space or one of its ancestors, honoring
// LPS-locality. catalog is the task's data-structure symbol table (package
// partition). It returns the number of violations found and an error that
// unwraps (via multierr.Errors) to one cause per violation; a well-formed
// flow returns (0, nil). Grounded on FlowStage::performDataAccessChecking,
// generalized here to validate against the partition.Catalog built from
// the task's declarations rather than against a full type-checker's Scope,
// since source-level scope resolution is this compiler's parser's concern
// (a Non-goal).
func (s *Stage) PerformDataAccessChecking(catalog *partition.Catalog) (int, error) {
	n, err := 0, error(nil)
	for _, name := range s.AccessMap.Names() {
		if !declaredReachable(catalog, s.Space, name) {
			n++
			err = multierr.Append(err, errors.Errorf(
				"stage %q on space %s: access to %q is not declared local to this space or any ancestor",
				kindName(s.Kind), s.Space.Name, name))
		}
	}
	if s.IsComposite() {
		for _, child := range s.Stages {
			cn, cerr := child.PerformDataAccessChecking(catalog)
			n += cn
			err = multierr.Append(err, cerr)
		}
	}
	return n, err
}

func declaredReachable(catalog *partition.Catalog, lps *space.LPS, name string) bool {
	for cur := lps; cur != nil; cur = cur.Parent {
		if _, ok := catalog.Lookup(cur, name); ok {
			return true
		}
	}
	return false
}

// PopulateAccessMapForSpaceLimit accumulates into acc the access records of
// every stage in s's subtree whose Space is lps (only when
// includeLimiterLps is true) or a strict descendant of lps. Grounded on
// FlowStage::populateAccessMapForSpaceLimit / CompositeStage's override.
func (s *Stage) PopulateAccessMapForSpaceLimit(acc *access.Map, lps *space.LPS, includeLimiterLps bool) {
	if s.belongsUnder(lps, includeLimiterLps) {
		acc.MergeFrom(s.AccessMap)
	}
	if s.IsComposite() {
		for _, child := range s.Stages {
			child.PopulateAccessMapForSpaceLimit(acc, lps, includeLimiterLps)
		}
	}
}

func (s *Stage) belongsUnder(lps *space.LPS, includeLimiterLps bool) bool {
	if s.Space == lps {
		return includeLimiterLps
	}
	return s.Space.IsParentSpace(lps)
}
