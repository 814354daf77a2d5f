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

// Package errs defines the sentinel error kinds shared by the placers and
// the pattern detector. Call sites classify errors with errors.Is against
// these sentinels (or with the k8s.io/apimachinery/pkg/api/errors helpers,
// which callers wrap into the sentinels below) rather than matching on
// error text or transport status codes directly.
package errs

import "errors"

var (
	// ErrConfigurationUnavailable is returned when neither an in-cluster
	// nor a local kubeconfig could be discovered at startup. Fatal.
	ErrConfigurationUnavailable = errors.New("orchestrator: no client configuration available")

	// ErrTransientAPI wraps an API call failure that isn't one of the
	// other specific kinds below. The caller sleeps and retries.
	ErrTransientAPI = errors.New("orchestrator: transient API error")

	// ErrStreamExpired indicates the watch's resource version is too old
	// (HTTP 410 Gone) and the caller must re-list and re-watch.
	ErrStreamExpired = errors.New("orchestrator: watch stream expired")

	// ErrBindConflict indicates a binding was rejected because the pod is
	// already bound or has disappeared. Non-fatal; the pod is abandoned.
	ErrBindConflict = errors.New("orchestrator: bind conflict")

	// ErrNoSchedulableNode indicates no node passed the readiness/cordon
	// filter, or every candidate scored zero.
	ErrNoSchedulableNode = errors.New("orchestrator: no schedulable node")

	// ErrScoringError indicates an error while computing a single node's
	// score; that node is treated as scoring 0 and other candidates
	// proceed.
	ErrScoringError = errors.New("orchestrator: scoring error")
)
