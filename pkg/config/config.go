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

// Package config defines the flag-bound settings for each of this
// system's binaries. Every binary parses its own subset with
// github.com/spf13/pflag through a cobra command; defaults here match the
// documented configuration contract.
package config

import "github.com/spf13/pflag"

// Default scheduler names, matching the documented configuration
// contract exactly.
const (
	DefaultGreedySchedulerName  = "greedylb-scheduler"
	DefaultRefinedSchedulerName = "refinelb-scheduler"
)

// Default detector tuning values.
const (
	DefaultMonitorIntervalSeconds = 10
	DefaultHistoryWindow          = 6
	DefaultStableThresholdPercent = 10
	DefaultLinearThresholdPercent = 30
)

// DefaultMetricsAddr is the address the /metrics HTTP server binds to in
// every binary.
const DefaultMetricsAddr = ":8080"

// PlacerConfig holds the settings shared by both placer binaries.
type PlacerConfig struct {
	SchedulerName string
	Kubeconfig    string
	MetricsAddr   string
}

// BindPlacerFlags registers a placer's flags on fs, defaulting
// scheduler-name to defaultSchedulerName.
func BindPlacerFlags(fs *pflag.FlagSet, defaultSchedulerName string) *PlacerConfig {
	cfg := &PlacerConfig{}
	fs.StringVar(&cfg.SchedulerName, "scheduler-name", defaultSchedulerName, "Scheduler name this placer claims pods for")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", "", "Path to a kubeconfig file; empty uses in-cluster config")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", DefaultMetricsAddr, "Address the /metrics HTTP server listens on")
	return cfg
}

// DetectorConfig holds the pattern detector's settings.
type DetectorConfig struct {
	MonitorIntervalSeconds int
	MonitorSchedule        string
	HistoryWindow          int
	StableThresholdPercent float64
	LinearThresholdPercent float64
	GreedySchedulerName    string
	RefinedSchedulerName   string
	Kubeconfig             string
	MetricsAddr            string
}

// BindDetectorFlags registers the pattern detector's flags on fs.
func BindDetectorFlags(fs *pflag.FlagSet) *DetectorConfig {
	cfg := &DetectorConfig{}
	fs.IntVar(&cfg.MonitorIntervalSeconds, "monitor-interval", DefaultMonitorIntervalSeconds, "Seconds between sampling cycles")
	fs.StringVar(&cfg.MonitorSchedule, "monitor-schedule", "", "Cron expression for sampling cadence; overrides --monitor-interval when set")
	fs.IntVar(&cfg.HistoryWindow, "history-window", DefaultHistoryWindow, "Number of samples retained in the sliding window")
	fs.Float64Var(&cfg.StableThresholdPercent, "stable-threshold", DefaultStableThresholdPercent, "Growth-rate percentage below which the pattern is stable")
	fs.Float64Var(&cfg.LinearThresholdPercent, "linear-threshold", DefaultLinearThresholdPercent, "Growth-rate percentage at or above which the pattern is exponential")
	fs.StringVar(&cfg.GreedySchedulerName, "greedy-scheduler-name", DefaultGreedySchedulerName, "Scheduler name routed to for stable/linear growth")
	fs.StringVar(&cfg.RefinedSchedulerName, "refined-scheduler-name", DefaultRefinedSchedulerName, "Scheduler name routed to for exponential growth")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", "", "Path to a kubeconfig file; empty uses in-cluster config")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", DefaultMetricsAddr, "Address the /metrics HTTP server listens on")
	return cfg
}

// WebhookConfig holds the admission webhook's settings.
type WebhookConfig struct {
	Port                  int
	CertFile              string
	KeyFile               string
	FallbackSchedulerName string
	Kubeconfig            string
}

// BindWebhookFlags registers the webhook's flags on fs.
func BindWebhookFlags(fs *pflag.FlagSet) *WebhookConfig {
	cfg := &WebhookConfig{}
	fs.IntVar(&cfg.Port, "port", 8443, "Webhook server port")
	fs.StringVar(&cfg.CertFile, "tls-cert-file", "/etc/webhook/certs/tls.crt", "TLS certificate file path")
	fs.StringVar(&cfg.KeyFile, "tls-key-file", "/etc/webhook/certs/tls.key", "TLS private key file path")
	fs.StringVar(&cfg.FallbackSchedulerName, "fallback-scheduler-name", DefaultGreedySchedulerName, "Scheduler name used when the routing-state ConfigMap is unreadable")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", "", "Path to a kubeconfig file; empty uses in-cluster config")
	return cfg
}
