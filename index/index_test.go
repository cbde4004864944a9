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

package index_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/partlang/partc/index"
)

func TestLocate(t *testing.T) {
	vec := []int{1, 3, 5, 7, 9}
	tests := []struct {
		key  int
		want int
	}{
		{key: 1, want: 0},
		{key: 7, want: 3},
		{key: 9, want: 4},
		{key: 0, want: index.NotFound},
		{key: 4, want: index.NotFound},
		{key: 10, want: index.NotFound},
	}
	for _, test := range tests {
		if got := index.Locate(vec, test.key); got != test.want {
			t.Errorf("Locate(%v, %d) = %d, want %d", vec, test.key, got, test.want)
		}
	}
}

func TestLocatePointOfInsert(t *testing.T) {
	vec := []int{1, 3, 5, 7, 9}
	tests := []struct {
		key  int
		want int
	}{
		{key: 0, want: 0},
		{key: 1, want: 0},
		{key: 2, want: 1},
		{key: 9, want: 4},
		{key: 10, want: 5},
	}
	for _, test := range tests {
		if got := index.LocatePointOfInsert(vec, test.key); got != test.want {
			t.Errorf("LocatePointOfInsert(%v, %d) = %d, want %d", vec, test.key, got, test.want)
		}
	}
}

func TestInsertSorted(t *testing.T) {
	var vec []int
	for _, key := range []int{5, 1, 3, 1, 9, 3} {
		vec, _ = index.InsertSorted(vec, key)
	}
	want := []int{1, 3, 5, 9}
	if diff := cmp.Diff(want, vec); diff != "" {
		t.Errorf("InsertSorted sequence mismatch (-want +got):\n%s", diff)
	}
}
