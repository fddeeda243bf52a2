// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package health

import "time"

// Status represents the overall health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// HealthStatus is the complete health report for one node.
type HealthStatus struct {
	Status         Status          `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
	StoreStatus    *StoreHealth    `json:"store,omitempty"`
	ResourceStatus *ResourceHealth `json:"resources,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

// StoreHealth reports whether the KV backend answers a round-trip probe.
type StoreHealth struct {
	Status  Status `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResourceHealth reports the node process's memory, goroutine, and disk
// usage against ResourceThresholds — distinct from StoreHealth, which
// only answers whether the KV backend round-trips a probe, not whether
// the machine underneath it has room left to keep growing the KEL/TEL
// and group message logs.
type ResourceHealth struct {
	Status        Status  `json:"status"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskUsedGB    uint64  `json:"disk_used_gb"`
	DiskTotalGB   uint64  `json:"disk_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	GoRoutines    int     `json:"goroutines"`
	Error         string  `json:"error,omitempty"`
}
