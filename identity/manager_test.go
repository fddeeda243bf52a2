package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/keri"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

func newTestManager() (*Manager, *keri.EventStore) {
	backend := kv.NewMemory()
	dig := keri.NewDigester()
	log := logger.NewDefaultLogger()
	events := keri.NewEventStore(backend, dig, log)
	return NewManager(backend, events, dig, log), events
}

func TestNewAccount_WeakEntropyRejected(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.NewAccount(context.Background(), "alice", []byte("short"), "pass", KeyTypeEd25519)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.WeakEntropy))
}

func TestNewAccount_AliasInUseRejected(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")

	_, err := m.NewAccount(ctx, "alice", mnemonic, "pass", KeyTypeEd25519)
	require.NoError(t, err)

	_, err = m.NewAccount(ctx, "alice", mnemonic, "pass2", KeyTypeEd25519)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.AliasInUse))
}

func TestNewAccountAndRotate(t *testing.T) {
	ctx := context.Background()
	m, events := newTestManager()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")

	aid, err := m.NewAccount(ctx, "alice", mnemonic, "correct horse battery staple", KeyTypeEd25519)
	require.NoError(t, err)
	assert.NotEmpty(t, aid)

	kel, err := events.GetKel(ctx, aid)
	require.NoError(t, err)
	require.Len(t, kel, 1)
	assert.Equal(t, 0, kel[0].S)

	signer, err := m.GetSigner(ctx, aid)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	rotated, err := m.Rotate(ctx, aid, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rotated.S)

	kel, err = events.GetKel(ctx, aid)
	require.NoError(t, err)
	require.Len(t, kel, 2)

	newSigner, err := m.GetSigner(ctx, aid)
	require.NoError(t, err)
	assert.NotEqual(t, signer.PublicKey(), newSigner.PublicKey())
}

func TestUnlockFromStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	dig := keri.NewDigester()
	log := logger.NewDefaultLogger()
	events := keri.NewEventStore(backend, dig, log)

	m1 := NewManager(backend, events, dig, log)
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")
	aid, err := m1.NewAccount(ctx, "bob", mnemonic, "s3cret", KeyTypeEd25519)
	require.NoError(t, err)

	m2 := NewManager(backend, events, dig, log)
	_, err = m2.GetSigner(ctx, aid)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.LockedKey))

	ok, err := m2.UnlockFromStore(ctx, aid, "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	signer, err := m2.GetSigner(ctx, aid)
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestLock_DiscardsRing(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")
	aid, err := m.NewAccount(ctx, "dave", mnemonic, "pass", KeyTypeEd25519)
	require.NoError(t, err)

	_, err = m.GetSigner(ctx, aid)
	require.NoError(t, err)

	m.Lock(aid)
	_, err = m.GetSigner(ctx, aid)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.LockedKey))

	// The sealed bundle survives a lock; unlocking restores access.
	ok, err := m.UnlockFromStore(ctx, aid, "pass")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = m.GetSigner(ctx, aid)
	require.NoError(t, err)
}

func TestUnlockFromStore_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	mnemonic := []byte("this is a sufficiently long mnemonic phrase")
	aid, err := m.NewAccount(ctx, "carol", mnemonic, "right-pass", KeyTypeEd25519)
	require.NoError(t, err)

	_, err = m.UnlockFromStore(ctx, aid, "wrong-pass")
	require.Error(t, err)
}
