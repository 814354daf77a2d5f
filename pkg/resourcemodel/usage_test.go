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

package resourcemodel_test

import (
	"testing"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/resourcemodel"
)

func TestComputeNodeUsage(t *testing.T) {
	node := orchestrator.Node{
		Name:                   "node-a",
		Ready:                  true,
		AllocatableCPUMillis:   4000,
		AllocatableMemoryBytes: 8 * 1024 * 1024 * 1024,
	}

	pods := []orchestrator.Pod{
		{
			Name: "p1", NodeName: "node-a", Phase: orchestrator.PodRunning,
			Containers: []orchestrator.ContainerResources{{CPUMillis: 1000, MemoryBytes: 1024 * 1024 * 1024}},
		},
		{
			Name: "p2", NodeName: "node-a", Phase: orchestrator.PodSucceeded,
			Containers: []orchestrator.ContainerResources{{CPUMillis: 1000, MemoryBytes: 1024 * 1024 * 1024}},
		},
		{
			Name: "p3", NodeName: "node-b", Phase: orchestrator.PodRunning,
			Containers: []orchestrator.ContainerResources{{CPUMillis: 2000, MemoryBytes: 2 * 1024 * 1024 * 1024}},
		},
	}

	usage := resourcemodel.ComputeNodeUsage(node.ToCapacity(), orchestrator.PodUsages(pods))

	if usage.UsedCPUMillis != 1000 {
		t.Errorf("UsedCPUMillis = %v, want 1000 (terminal and other-node pods excluded)", usage.UsedCPUMillis)
	}
	if usage.PodCount != 1 {
		t.Errorf("PodCount = %v, want 1", usage.PodCount)
	}
	if usage.AvailableCPUMillis() != 3000 {
		t.Errorf("AvailableCPUMillis() = %v, want 3000", usage.AvailableCPUMillis())
	}
}

func TestNodeUsageUtilizationFloorsAllocatableAtOne(t *testing.T) {
	usage := resourcemodel.NodeUsage{UsedCPUMillis: 50, AllocatableCPUMillis: 0}
	if got := usage.CPUUtilizationPercent(); got != 5000 {
		t.Errorf("CPUUtilizationPercent() = %v, want 5000 (divide by floored 1)", got)
	}
}
