/*
Copyright 2024 KubeNexus Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package greedylb

import (
	"testing"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
)

func threeNodeFixture() []orchestrator.Node {
	return []orchestrator.Node{
		{Name: "a", Ready: true, AllocatableCPUMillis: 2000, AllocatableMemoryBytes: 2000},
		{Name: "b", Ready: true, AllocatableCPUMillis: 1500, AllocatableMemoryBytes: 1500},
		{Name: "c", Ready: true, AllocatableCPUMillis: 1000, AllocatableMemoryBytes: 1000},
	}
}

func TestSelectBestNodePicksMostFreeResources(t *testing.T) {
	nodes := threeNodeFixture()

	best, _, ok := SelectBestNode(nodes, nil)
	if !ok {
		t.Fatal("expected a schedulable node")
	}
	if best.Name != "a" {
		t.Errorf("best node = %q, want %q", best.Name, "a")
	}
}

func TestSelectBestNodeSkipsUnschedulable(t *testing.T) {
	nodes := []orchestrator.Node{
		{Name: "a", Ready: false, AllocatableCPUMillis: 9999, AllocatableMemoryBytes: 9999},
		{Name: "b", Ready: true, Cordoned: true, AllocatableCPUMillis: 9999, AllocatableMemoryBytes: 9999},
		{Name: "c", Ready: true, AllocatableCPUMillis: 100, AllocatableMemoryBytes: 100},
	}

	best, _, ok := SelectBestNode(nodes, nil)
	if !ok {
		t.Fatal("expected a schedulable node")
	}
	if best.Name != "c" {
		t.Errorf("best node = %q, want %q (only schedulable candidate)", best.Name, "c")
	}
}

func TestSelectBestNodeTiesBreakFirstSeen(t *testing.T) {
	nodes := []orchestrator.Node{
		{Name: "first", Ready: true, AllocatableCPUMillis: 1000, AllocatableMemoryBytes: 1000},
		{Name: "second", Ready: true, AllocatableCPUMillis: 1000, AllocatableMemoryBytes: 1000},
	}

	best, _, ok := SelectBestNode(nodes, nil)
	if !ok {
		t.Fatal("expected a schedulable node")
	}
	if best.Name != "first" {
		t.Errorf("tie-break winner = %q, want %q", best.Name, "first")
	}
}

func TestSelectBestNodeNoCandidates(t *testing.T) {
	_, _, ok := SelectBestNode(nil, nil)
	if ok {
		t.Fatal("expected ok=false with no nodes")
	}
}

func TestScoreNodeFormula(t *testing.T) {
	node := orchestrator.Node{Name: "a", Ready: true, AllocatableCPUMillis: 1000, AllocatableMemoryBytes: 1000}
	got := ScoreNode(node, nil)
	// available == allocatable with no pods, so both ratios are 1.0.
	want := cpuWeight*100 + memWeight*100
	if got != want {
		t.Errorf("ScoreNode() = %v, want %v", got, want)
	}
}
