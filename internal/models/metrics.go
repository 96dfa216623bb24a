package models

import "time"

// SystemMetrics is a JSON snapshot of the process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	AllocationRuns           uint64    `json:"allocation_runs"`
	AverageRunDurationMs     float64   `json:"average_run_duration_ms"`
	AssignedTotal            uint64    `json:"assigned_total"`
	UnassignedTotal          uint64    `json:"unassigned_total"`
	SkippedSlotsTotal        uint64    `json:"skipped_slots_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
