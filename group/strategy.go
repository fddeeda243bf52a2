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

package group

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/internal/metrics"
)

// DefaultSyncTimeout bounds a single sync request attempt.
const DefaultSyncTimeout = 5 * time.Second

// DefaultSyncCooldown bounds how often SmartSyncStrategy will issue a fresh
// sync for the same group absent a Force call.
const DefaultSyncCooldown = 10 * time.Second

// Peer is the transport-level capability needed to pull a sync response
// directly from one member, bypassing the store-and-forward Bus when a
// member is rejoining after a partition and wants the fastest possible
// catch-up rather than waiting on broadcast delivery.
type Peer interface {
	RequestSync(ctx context.Context, req SyncRequest) (*SyncResponse, error)
}

// SyncStrategy recovers groupID's missing messages from a set of peers.
type SyncStrategy interface {
	Sync(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error
}

// SyncStrategyFunc adapts a plain function to a SyncStrategy, the same
// adapter shape net/http's HandlerFunc uses.
type SyncStrategyFunc func(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error

func (f SyncStrategyFunc) Sync(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error {
	return f(ctx, e, groupID, peers)
}

// RaceSyncStrategy is the race primitive: it sends a SyncRequest to every
// known peer concurrently and applies whichever SyncResponse returns
// first, cancelling the rest. Each attempt is bounded by Timeout (default
// DefaultSyncTimeout) and retried up to Retries times (default 0, meaning
// a single attempt) before giving up.
type RaceSyncStrategy struct {
	Timeout time.Duration
	Retries int
}

func (s RaceSyncStrategy) Sync(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error {
	if len(peers) == 0 {
		return nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	attempts := s.Retries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		resp, peerAID, err := s.raceOnce(ctx, e, groupID, peers, timeout)
		if err != nil {
			metrics.GroupSyncDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
			lastErr = err
			continue
		}
		if resp == nil {
			// Every peer failed or timed out this attempt; retry.
			metrics.GroupSyncDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
			continue
		}
		metrics.GroupSyncDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
		e.log.Info("sync recovered from peer", logger.String("groupId", groupID), logger.String("peer", peerAID))
		return e.ProcessSyncResponse(ctx, *resp)
	}
	if lastErr != nil {
		return lastErr
	}
	return nil
}

func (s RaceSyncStrategy) raceOnce(ctx context.Context, e *Engine, groupID string, peers map[string]Peer, timeout time.Duration) (*SyncResponse, string, error) {
	req, err := e.CreateSyncRequest(ctx, groupID)
	if err != nil {
		return nil, "", err
	}

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		aid  string
		resp *SyncResponse
	}
	results := make(chan result, len(peers))

	g, gctx := errgroup.WithContext(raceCtx)
	for aid, peer := range peers {
		aid, peer := aid, peer
		g.Go(func() error {
			resp, err := peer.RequestSync(gctx, *req)
			if err != nil {
				e.log.Debug("sync peer failed", logger.String("groupId", groupID), logger.String("peer", aid), logger.Error(err))
				return nil
			}
			select {
			case results <- result{aid: aid, resp: resp}:
			case <-gctx.Done():
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case first := <-results:
		cancel()
		<-done
		return first.resp, first.aid, nil
	case <-done:
		return nil, "", nil
	}
}

// SmartSyncStrategy wraps a RaceSyncStrategy but suppresses repeated sync
// requests for the same group within a cool-down window, so a burst of
// out-of-order-arrival failures doesn't hammer every peer. Force bypasses
// the cool-down for a caller-driven catch-up (e.g. a user pressing
// "retry now").
type SmartSyncStrategy struct {
	Inner    SyncStrategy
	Cooldown time.Duration

	mu       sync.Mutex
	lastSync map[string]time.Time
}

func NewSmartSyncStrategy(inner SyncStrategy, cooldown time.Duration) *SmartSyncStrategy {
	if inner == nil {
		inner = RaceSyncStrategy{}
	}
	if cooldown <= 0 {
		cooldown = DefaultSyncCooldown
	}
	return &SmartSyncStrategy{Inner: inner, Cooldown: cooldown, lastSync: make(map[string]time.Time)}
}

func (s *SmartSyncStrategy) Sync(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error {
	if !s.shouldRun(groupID, time.Now()) {
		e.log.Debug("sync suppressed by cooldown", logger.String("groupId", groupID))
		return nil
	}
	return s.Inner.Sync(ctx, e, groupID, peers)
}

// Force runs a sync regardless of the cool-down window and resets it.
func (s *SmartSyncStrategy) Force(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error {
	s.mu.Lock()
	s.lastSync[groupID] = time.Now()
	s.mu.Unlock()
	return s.Inner.Sync(ctx, e, groupID, peers)
}

func (s *SmartSyncStrategy) shouldRun(groupID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSync[groupID]; ok && now.Sub(last) < s.Cooldown {
		return false
	}
	s.lastSync[groupID] = now
	return true
}
