package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerimesh/kerimesh/challenge"
	"github.com/kerimesh/kerimesh/identity"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

func newTestNode() *Node {
	return New(Options{Backend: kv.NewMemory()})
}

func TestCreateIdentity_PublishesKeyState(t *testing.T) {
	ctx := context.Background()
	n := newTestNode()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")

	aid, err := n.CreateIdentity(ctx, "alice", mnemonic, "pass", identity.KeyTypeEd25519)
	require.NoError(t, err)
	require.NotEmpty(t, aid)

	issued, err := n.Auth.IssueChallenge(ctx, challenge.IssueRequest{
		AID:     aid,
		Purpose: challenge.PurposeRegister,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ChallengeID)
}

func TestRotateIdentity_RepublishesKeyState(t *testing.T) {
	ctx := context.Background()
	n := newTestNode()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")

	aid, err := n.CreateIdentity(ctx, "bob", mnemonic, "pass", identity.KeyTypeEd25519)
	require.NoError(t, err)

	ev, err := n.RotateIdentity(ctx, aid, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.S)

	issued, err := n.Auth.IssueChallenge(ctx, challenge.IssueRequest{
		AID:     aid,
		Purpose: challenge.PurposeSend,
	})
	require.NoError(t, err)
	assert.Equal(t, aid, issued.Payload.AID)
}

func TestCreateIdentity_AliasInUsePropagates(t *testing.T) {
	ctx := context.Background()
	n := newTestNode()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")

	_, err := n.CreateIdentity(ctx, "carol", mnemonic, "pass", identity.KeyTypeEd25519)
	require.NoError(t, err)

	_, err = n.CreateIdentity(ctx, "carol", mnemonic, "pass2", identity.KeyTypeEd25519)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.AliasInUse))
}
