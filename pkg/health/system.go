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

import (
	"fmt"
	"runtime"
	"syscall"
)

// ResourceThresholds bounds the memory/disk usage percentages at which
// CheckResources downgrades a node from healthy to degraded or
// unhealthy. The KEL/TEL store and group message log both grow
// unboundedly on disk, so a node that is otherwise answering KV probes
// fine can still be one `putEvent`/`Send` away from running out of room.
type ResourceThresholds struct {
	MemoryDegradedPercent  float64
	MemoryUnhealthyPercent float64
	DiskDegradedPercent    float64
	DiskUnhealthyPercent   float64
}

// DefaultResourceThresholds mirrors the node's own quorum-style two-level
// escalation (degraded before unhealthy) at 70%/85% of capacity.
var DefaultResourceThresholds = ResourceThresholds{
	MemoryDegradedPercent:  70.0,
	MemoryUnhealthyPercent: 85.0,
	DiskDegradedPercent:    70.0,
	DiskUnhealthyPercent:   85.0,
}

// CheckResources samples the running process's memory and goroutine
// counts via runtime.MemStats and the working directory's disk usage via
// syscall.Statfs, and classifies the result against thresholds.
func CheckResources(thresholds ResourceThresholds) *ResourceHealth {
	res := &ResourceHealth{Status: StatusHealthy}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	res.MemoryUsedMB = mem.Alloc / 1024 / 1024
	res.MemoryTotalMB = mem.Sys / 1024 / 1024
	if res.MemoryTotalMB > 0 {
		res.MemoryPercent = float64(res.MemoryUsedMB) / float64(res.MemoryTotalMB) * 100
	}
	res.GoRoutines = runtime.NumGoroutine()

	var fsStat syscall.Statfs_t
	if err := syscall.Statfs(".", &fsStat); err != nil {
		res.Error = fmt.Sprintf("statfs working directory: %v", err)
	} else {
		totalBytes := fsStat.Blocks * uint64(fsStat.Bsize)
		freeBytes := fsStat.Bfree * uint64(fsStat.Bsize)
		res.DiskTotalGB = totalBytes / 1024 / 1024 / 1024
		res.DiskUsedGB = (totalBytes - freeBytes) / 1024 / 1024 / 1024
		if res.DiskTotalGB > 0 {
			res.DiskPercent = float64(res.DiskUsedGB) / float64(res.DiskTotalGB) * 100
		}
	}

	switch {
	case res.MemoryPercent >= thresholds.MemoryUnhealthyPercent || res.DiskPercent >= thresholds.DiskUnhealthyPercent:
		res.Status = StatusUnhealthy
	case res.MemoryPercent >= thresholds.MemoryDegradedPercent || res.DiskPercent >= thresholds.DiskDegradedPercent:
		res.Status = StatusDegraded
	}

	return res
}
