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

// Package health probes a node's KV backend and process resources for
// liveness/readiness endpoints, independent of the Prometheus metrics
// internal/metrics exposes.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/kerimesh/kerimesh/pkg/kv"
)

const probeKey = "health/probe"

// Checker performs health checks against a KV backend.
type Checker struct {
	backend kv.Backend
}

// NewChecker creates a Checker bound to backend.
func NewChecker(backend kv.Backend) *Checker {
	return &Checker{backend: backend}
}

// CheckAll performs every health check and aggregates the worst status.
func (c *Checker) CheckAll(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Status:    StatusHealthy,
		Errors:    make([]string, 0),
	}

	status.StoreStatus = c.checkStore(ctx)
	if status.StoreStatus.Status != StatusHealthy {
		status.Status = status.StoreStatus.Status
		if status.StoreStatus.Error != "" {
			status.Errors = append(status.Errors, "store: "+status.StoreStatus.Error)
		}
	}

	status.ResourceStatus = CheckResources(DefaultResourceThresholds)
	if status.ResourceStatus.Status != StatusHealthy {
		if status.Status == StatusHealthy || status.ResourceStatus.Status == StatusUnhealthy {
			status.Status = status.ResourceStatus.Status
		}
		if status.ResourceStatus.Error != "" {
			status.Errors = append(status.Errors, "resources: "+status.ResourceStatus.Error)
		}
	}

	return status
}

// checkStore round-trips a probe key through the backend: put, get, delete.
func (c *Checker) checkStore(ctx context.Context) *StoreHealth {
	start := time.Now()

	probe := []byte(fmt.Sprintf("%d", start.UnixNano()))
	if err := c.backend.Put(ctx, probeKey, probe); err != nil {
		return &StoreHealth{Status: StatusUnhealthy, Error: err.Error()}
	}
	got, found, err := c.backend.Get(ctx, probeKey)
	if err != nil {
		return &StoreHealth{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !found || string(got) != string(probe) {
		return &StoreHealth{Status: StatusUnhealthy, Error: "probe round-trip mismatch"}
	}
	if err := c.backend.Del(ctx, probeKey); err != nil {
		return &StoreHealth{Status: StatusDegraded, Error: err.Error()}
	}

	return &StoreHealth{Status: StatusHealthy, Latency: time.Since(start).String()}
}
