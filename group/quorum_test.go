package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasQuorum_StrictMajority(t *testing.T) {
	assert.False(t, hasQuorum(map[string]bool{"a": true}, 3, 0.5))
	assert.False(t, hasQuorum(map[string]bool{"a": true, "b": false}, 3, 0.5))
	assert.True(t, hasQuorum(map[string]bool{"a": true, "b": true}, 3, 0.5))
}

func TestHasQuorum_CeilingProportion(t *testing.T) {
	// 3 of 4 required at threshold 0.67 (ceil(4*0.67) = 3)
	assert.False(t, hasQuorum(map[string]bool{"a": true, "b": true}, 4, 0.67))
	assert.True(t, hasQuorum(map[string]bool{"a": true, "b": true, "c": true}, 4, 0.67))
}

func TestResolveConflict_Deterministic(t *testing.T) {
	msgs := []*GroupMessage{
		{ID: "zzz", LamportClock: 5, Votes: map[string]bool{"a": true}},
		{ID: "aaa", LamportClock: 5, Votes: map[string]bool{"a": true}},
		{ID: "bbb", LamportClock: 3, Votes: map[string]bool{}},
	}
	quorumOf := func(m *GroupMessage) bool { return hasQuorum(m.Votes, 1, 0.5) }

	out := resolveConflict(msgs, quorumOf)
	require := assert.New(t)
	require.Equal("aaa", out[0].ID, "among quorum-holding messages, lower Lamport then lower id wins")
	require.Equal("zzz", out[1].ID)
	require.Equal("bbb", out[2].ID, "no-quorum messages always sort after quorum-holding ones")

	// Resolving the same set again, built in a different slice order,
	// produces the same winner — this is the determinism property every
	// honest member depends on.
	reordered := []*GroupMessage{msgs[2], msgs[0], msgs[1]}
	out2 := resolveConflict(reordered, quorumOf)
	require.Equal(out[0].ID, out2[0].ID)
}
