package group

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerimesh/kerimesh/identity"
	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/keri"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

// recordingBus captures every Send for inspection.
type recordingBus struct {
	sent []string // recipient AIDs, in order
	envs []Envelope
}

func (b *recordingBus) Send(_ context.Context, recipientAID string, env Envelope) error {
	b.sent = append(b.sent, recipientAID)
	b.envs = append(b.envs, env)
	return nil
}

func (b *recordingBus) OnReceive(func(senderAID string, env Envelope)) {}

func TestNewEnvelopeSignsWithCurrentKey(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	dig := keri.NewDigester()
	log := logger.NewDefaultLogger()
	events := keri.NewEventStore(backend, dig, log)
	keys := identity.NewManager(backend, events, dig, log)

	mnemonic := []byte("this is a sufficiently long mnemonic phrase")
	aid, err := keys.NewAccount(ctx, "alice", mnemonic, "pass", identity.KeyTypeEd25519)
	require.NoError(t, err)

	bus := &recordingBus{}
	e := NewEngine(backend, dig, keys, bus, aid, log, nil)

	grp, err := e.CreateGroup(ctx, "signed", aid, 0.5, true)
	require.NoError(t, err)

	msg, err := e.Send(ctx, grp.GroupID, "hello")
	require.NoError(t, err)

	env, err := e.NewEnvelope(ctx, EnvGroupMessage, msg)
	require.NoError(t, err)
	assert.Equal(t, EnvGroupMessage, env.Type)

	sp, err := DecodeSignedPayload(*env)
	require.NoError(t, err)
	assert.Equal(t, aid, sp.AID)

	// The signature must verify against the key the AID's KEL currently
	// registers.
	kel, err := events.GetKel(ctx, aid)
	require.NoError(t, err)
	pub, err := base58.Decode(kel[len(kel)-1].K[0])
	require.NoError(t, err)
	require.NoError(t, identity.VerifyWithPublicKey(identity.KeyTypeEd25519, pub, sp.Body, sp.Sig))
}

func TestBroadcastSkipsSelf(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, "alice")

	bus := &recordingBus{}
	e.bus = bus

	grp, err := e.CreateGroup(ctx, "fanout", "alice", 0.5, true)
	require.NoError(t, err)
	grp.Members = append(grp.Members, "bob", "carol")
	require.NoError(t, e.putGroup(ctx, grp))

	require.NoError(t, e.Broadcast(ctx, grp.GroupID, Envelope{Type: EnvGroupMetadataUpdate}))
	assert.Equal(t, []string{"bob", "carol"}, bus.sent)
}
