/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

// Package metrics exposes fixedalloc.Allocator statistics to Prometheus,
// following the GaugeVec-plus-registry pattern used elsewhere for
// runtime-sampled (as opposed to event-driven) gauges.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"fixedalloc"
)

var (
	totalAllocatedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fixedalloc",
			Name:      "total_allocated_bytes",
			Help:      "Current live allocated bytes for a registered allocator.",
		}, []string{"allocator"})

	peakUsageGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fixedalloc",
			Name:      "peak_usage_bytes",
			Help:      "Peak live allocated bytes observed for a registered allocator.",
		}, []string{"allocator"})

	allocationCountGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fixedalloc",
			Name:      "allocation_count",
			Help:      "Current live allocation count for a registered allocator.",
		}, []string{"allocator"})

	fragmentationGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fixedalloc",
			Name:      "fragmentation_percentage",
			Help:      "Fragmentation percentage for a registered allocator, per its own definition.",
		}, []string{"allocator"})
)

func init() {
	prometheus.MustRegister(totalAllocatedGauge, peakUsageGauge, allocationCountGauge, fragmentationGauge)
}

// Registry samples a fixed set of named allocators on demand and pushes
// their current stats into the package's gauge vectors. It does not poll
// on its own; call Sample whenever the caller wants a fresh snapshot
// (e.g. from an HTTP handler right before /metrics is scraped).
type Registry struct {
	mu         sync.Mutex
	allocators map[string]fixedalloc.Allocator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{allocators: make(map[string]fixedalloc.Allocator)}
}

// Register associates name with allocator, overwriting any allocator
// already registered under that name.
func (r *Registry) Register(name string, allocator fixedalloc.Allocator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocators[name] = allocator
}

// Unregister removes name and clears its gauge series.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.allocators, name)

	totalAllocatedGauge.DeleteLabelValues(name)
	peakUsageGauge.DeleteLabelValues(name)
	allocationCountGauge.DeleteLabelValues(name)
	fragmentationGauge.DeleteLabelValues(name)
}

// Sample pushes every registered allocator's current counters into the
// gauge vectors under its registered name.
func (r *Registry) Sample() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, a := range r.allocators {
		totalAllocatedGauge.WithLabelValues(name).Set(float64(a.TotalAllocated()))
		peakUsageGauge.WithLabelValues(name).Set(float64(a.PeakUsage()))
		allocationCountGauge.WithLabelValues(name).Set(float64(a.AllocationCount()))
		fragmentationGauge.WithLabelValues(name).Set(a.FragmentationPercentage())
	}
}
