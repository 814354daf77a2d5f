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

package patterndetector

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func TestRunOneTickSleepsOnErrorAndReturnsNil(t *testing.T) {
	client := &fakeClient{listPodsErr: context.DeadlineExceeded}
	detector := NewDetector(client, Classifier{StableThreshold: 10, LinearThreshold: 30}, "greedylb-scheduler", "refinelb-scheduler", 6)

	err := detector.runOneTick(context.Background(), backoff.NewConstantBackOff(time.Millisecond))
	if err != nil {
		t.Fatalf("runOneTick() error = %v, want nil (errors are logged, not propagated)", err)
	}
}

func TestRunOneTickSucceeds(t *testing.T) {
	client := &fakeClient{}
	detector := NewDetector(client, Classifier{StableThreshold: 10, LinearThreshold: 30}, "greedylb-scheduler", "refinelb-scheduler", 6)

	if err := detector.runOneTick(context.Background(), backoff.NewConstantBackOff(time.Millisecond)); err != nil {
		t.Fatalf("runOneTick() error = %v, want nil", err)
	}
}

func TestRunOneTickReturnsImmediatelyOnContextCancelDuringBackoff(t *testing.T) {
	client := &fakeClient{listPodsErr: context.DeadlineExceeded}
	detector := NewDetector(client, Classifier{StableThreshold: 10, LinearThreshold: 30}, "greedylb-scheduler", "refinelb-scheduler", 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- detector.runOneTick(ctx, backoff.NewConstantBackOff(time.Hour))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runOneTick() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runOneTick() did not return promptly after context cancellation")
	}
}
