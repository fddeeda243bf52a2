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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	delay int
	resp  *SyncResponse
	err   error
}

func (p *fakePeer) RequestSync(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if p.delay > 0 {
		select {
		case <-time.After(time.Duration(p.delay) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func TestRaceSyncStrategyAppliesFastestResponse(t *testing.T) {
	ctx := context.Background()
	alice, _ := newTestEngine(t, "alice")

	grp, err := alice.CreateGroup(ctx, "race", "alice", 0.5, true)
	require.NoError(t, err)
	msg, err := alice.Send(ctx, grp.GroupID, "hello")
	require.NoError(t, err)

	fast := &fakePeer{resp: &SyncResponse{GroupID: grp.GroupID, From: "bob", Messages: []GroupMessage{*msg}, MyVector: VectorClock{"bob": 1}}}
	slow := &fakePeer{delay: 200, err: errors.New("too slow")}

	bob, _ := newTestEngine(t, "bob")
	require.NoError(t, bob.putGroup(ctx, grp))
	require.NoError(t, bob.putMember(ctx, grp.GroupID, &GroupMember{AID: "bob", VectorClock: VectorClock{}}))

	strategy := RaceSyncStrategy{Timeout: 50 * time.Millisecond}
	require.NoError(t, strategy.Sync(ctx, bob, grp.GroupID, map[string]Peer{"alice": fast, "carol": slow}))

	got, ok, err := bob.loadMessage(ctx, grp.GroupID, msg.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusCanonical, got.Status)

	member, err := bob.loadMember(ctx, grp.GroupID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, member.VectorClock["bob"])
}

func TestRaceSyncStrategyRetriesOnAllFailures(t *testing.T) {
	ctx := context.Background()
	bob, _ := newTestEngine(t, "bob")
	grp, err := bob.CreateGroup(ctx, "race", "bob", 0.5, true)
	require.NoError(t, err)

	calls := 0
	failThenSucceed := &fakePeerFunc{fn: func(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return &SyncResponse{GroupID: grp.GroupID, From: "alice", MyVector: VectorClock{}}, nil
	}}

	strategy := RaceSyncStrategy{Timeout: 50 * time.Millisecond, Retries: 2}
	require.NoError(t, strategy.Sync(ctx, bob, grp.GroupID, map[string]Peer{"alice": failThenSucceed}))
	assert.GreaterOrEqual(t, calls, 2)
}

type fakePeerFunc struct {
	fn func(ctx context.Context, req SyncRequest) (*SyncResponse, error)
}

func (p *fakePeerFunc) RequestSync(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	return p.fn(ctx, req)
}

func TestSmartSyncStrategySuppressesWithinCooldown(t *testing.T) {
	ctx := context.Background()
	bob, _ := newTestEngine(t, "bob")
	grp, err := bob.CreateGroup(ctx, "smart", "bob", 0.5, true)
	require.NoError(t, err)

	calls := 0
	counting := SyncStrategyFunc(func(ctx context.Context, e *Engine, groupID string, peers map[string]Peer) error {
		calls++
		return nil
	})

	smart := NewSmartSyncStrategy(counting, time.Hour)

	require.NoError(t, smart.Sync(ctx, bob, grp.GroupID, nil))
	require.NoError(t, smart.Sync(ctx, bob, grp.GroupID, nil))
	assert.Equal(t, 1, calls, "second call within the cooldown window must be suppressed")

	require.NoError(t, smart.Force(ctx, bob, grp.GroupID, nil))
	assert.Equal(t, 2, calls, "Force must bypass the cooldown window")
}
