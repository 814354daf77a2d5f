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

// Package watchloop implements the watch/bind state machine shared by
// GreedyLB and RefineLB: {Watching, Reconnecting, Backoff, Shutdown}.
// Pods are placed synchronously as their events arrive, so the stream is
// never advanced ahead of the current pod's bind attempt. Stream-expired
// errors trigger an immediate re-subscribe with no backoff; any other
// transport error enters a fixed backoff before the next attempt.
package watchloop

import (
	"context"
	"errors"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	klog "k8s.io/klog/v2"

	"github.com/cenkalti/backoff/v5"

	"github.com/kube-nexus/kubenexus-scheduler/pkg/metrics"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator"
	"github.com/kube-nexus/kubenexus-scheduler/pkg/orchestrator/errs"
)

// State is one of the four states the loop can be in.
type State int

const (
	Watching State = iota
	Reconnecting
	Backoff
	Shutdown
)

func (s State) String() string {
	switch s {
	case Watching:
		return "Watching"
	case Reconnecting:
		return "Reconnecting"
	case Backoff:
		return "Backoff"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// BackoffDelay is the fixed delay applied in the Backoff state.
const BackoffDelay = 5 * time.Second

// PlaceFunc attempts to place a single claimable pod. It is called
// synchronously from the watch loop's goroutine; the stream is not
// advanced until it returns.
type PlaceFunc func(ctx context.Context, pod orchestrator.Pod)

// Loop drives a single placer's watch-and-bind cycle.
type Loop struct {
	Client        orchestrator.Client
	SchedulerName string
	Place         PlaceFunc
	backoff       backoff.BackOff
}

// NewLoop constructs a Loop for the given scheduler name.
func NewLoop(client orchestrator.Client, schedulerName string, place PlaceFunc) *Loop {
	return &Loop{
		Client:        client,
		SchedulerName: schedulerName,
		Place:         place,
		backoff:       backoff.NewConstantBackOff(BackoffDelay),
	}
}

// Run drives the state machine until ctx is cancelled, at which point it
// returns nil at the next suspension point. Any in-flight bind attempt is
// allowed to complete first.
func (l *Loop) Run(ctx context.Context) error {
	state := Watching
	resourceVersion := ""

	for {
		if ctx.Err() != nil {
			return nil
		}

		metrics.WatchLoopState.WithLabelValues(l.SchedulerName).Set(float64(state))

		switch state {
		case Watching:
			selector := orchestrator.PodFieldSelector(l.SchedulerName)
			w, err := l.Client.WatchPods(ctx, selector, resourceVersion)
			if err != nil {
				if errors.Is(err, errs.ErrStreamExpired) {
					klog.InfoS("Watch expired on subscribe, re-listing", "scheduler", l.SchedulerName)
					state = Reconnecting
					continue
				}
				klog.ErrorS(err, "Transient error subscribing to pod watch", "scheduler", l.SchedulerName)
				state = Backoff
				continue
			}

			nextState, newRV := l.consume(ctx, w)
			resourceVersion = newRV
			state = nextState

		case Reconnecting:
			// A fresh, unconditional list+watch re-emits every unbound
			// pod, so no pod is lost across the expiry.
			resourceVersion = ""
			state = Watching

		case Backoff:
			delay := l.backoff.NextBackOff()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			state = Watching

		case Shutdown:
			return nil
		}
	}
}

// consume drains a single watch.Interface, placing claimable pods as
// ADDED/MODIFIED events arrive. It returns the next state to enter and
// the last-seen resource version (for a best-effort resumption point;
// Watching always re-subscribes with it, Reconnecting discards it).
func (l *Loop) consume(ctx context.Context, w watch.Interface) (State, string) {
	defer w.Stop()

	resourceVersion := ""

	for {
		select {
		case <-ctx.Done():
			return Shutdown, resourceVersion

		case event, ok := <-w.ResultChan():
			if !ok {
				// Server closed the stream; resume watching from where
				// we left off.
				return Watching, resourceVersion
			}

			switch event.Type {
			case watch.Added, watch.Modified:
				pod, ok := event.Object.(interface {
					GetResourceVersion() string
				})
				if ok {
					resourceVersion = pod.GetResourceVersion()
				}
				l.handlePodEvent(ctx, event)

			case watch.Error:
				if isStreamExpired(event.Object) {
					klog.InfoS("Watch stream expired mid-stream, re-listing", "scheduler", l.SchedulerName)
					return Reconnecting, ""
				}
				klog.ErrorS(nil, "Watch stream error", "scheduler", l.SchedulerName, "object", event.Object)
				return Backoff, resourceVersion

			case watch.Deleted, watch.Bookmark:
				// Deletions and bookmarks carry no placement work.
			}
		}
	}
}

func (l *Loop) handlePodEvent(ctx context.Context, event watch.Event) {
	v1Pod, ok := event.Object.(*corev1.Pod)
	if !ok {
		return
	}

	pod := orchestrator.FromV1Pod(v1Pod)
	if !pod.Claimable(l.SchedulerName) {
		return
	}

	klog.InfoS("Detected unscheduled pod", "pod", klog.KRef(pod.Namespace, pod.Name), "scheduler", l.SchedulerName)
	l.Place(ctx, pod)
}

func isStreamExpired(obj interface{}) bool {
	status, ok := obj.(*v1.Status)
	if !ok {
		return false
	}
	err := apierrors.FromObject(status)
	return apierrors.IsResourceExpired(err) || apierrors.IsGone(err)
}
