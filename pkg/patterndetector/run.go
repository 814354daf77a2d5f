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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	klog "k8s.io/klog/v2"
)

// ErrorSleep is the fixed delay a failed Tick waits before the loop
// resumes; the sample window is untouched across it.
const ErrorSleep = 10 * time.Second

// RunOnTicker samples the detector on a fixed monotonic interval — the
// default driver, matching the literal "every monitor_interval seconds"
// wording. It blocks until ctx is cancelled.
func (d *Detector) RunOnTicker(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	errBackoff := backoff.NewConstantBackOff(ErrorSleep)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.runOneTick(ctx, errBackoff); err != nil {
				return err
			}
		}
	}
}

// RunOnCronSchedule samples the detector on a cron expression instead of a
// monotonic interval, for operators who want sampling aligned to wall-clock
// boundaries. It blocks until ctx is cancelled.
func (d *Detector) RunOnCronSchedule(ctx context.Context, expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return err
	}

	errBackoff := backoff.NewConstantBackOff(ErrorSleep)

	next := schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := d.runOneTick(ctx, errBackoff); err != nil {
				return err
			}
			next = schedule.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

// runOneTick runs a single Tick, logging its Report on success. On failure
// it sleeps ErrorSleep (cancellable via ctx) and returns nil to keep the
// caller's loop alive; the sample window is untouched by a failed tick.
func (d *Detector) runOneTick(ctx context.Context, errBackoff backoff.BackOff) error {
	report, err := d.Tick(ctx, time.Now())
	if err != nil {
		klog.ErrorS(err, "Pattern detector cycle failed, sleeping before resuming")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(errBackoff.NextBackOff()):
		}
		return nil
	}

	klog.InfoS("Pattern detector cycle complete", "report", report.String())
	return nil
}
