package keri

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

func newTestStore() *EventStore {
	return NewEventStore(kv.NewMemory(), NewDigester(), logger.NewDefaultLogger())
}

// buildIcp constructs and SAID-stamps an inception event with the given
// current and next key material.
func buildIcp(t *testing.T, dig Digester, k, n []string) KelEvent {
	t.Helper()
	ev := KelEvent{T: ICP, S: 0, K: k, Kt: len(k), N: n, Nt: len(n)}
	body, err := toBody(ev)
	require.NoError(t, err)
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	ev.D = said
	ev.I = said
	return ev
}

func TestPutEvent_InceptionAndChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	icp := buildIcp(t, dig, []string{"K0"}, []string{dig.Digest([]byte("K1"))})
	raw, err := json.Marshal(icp)
	require.NoError(t, err)

	admitted, err := s.PutEvent(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, icp.D, admitted.D)

	head, seq, ok, err := s.GetHead(ctx, icp.I)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, icp.D, head)
	assert.Equal(t, 0, seq)

	rot := KelEvent{T: ROT, I: icp.I, S: 1, P: icp.D, K: []string{"K1"}, Kt: 1, N: []string{dig.Digest([]byte("K2"))}, Nt: 1}
	body, err := toBody(rot)
	require.NoError(t, err)
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	rot.D = said
	rawRot, err := json.Marshal(rot)
	require.NoError(t, err)

	_, err = s.PutEvent(ctx, rawRot)
	require.NoError(t, err)

	kel, err := s.GetKel(ctx, icp.I)
	require.NoError(t, err)
	require.Len(t, kel, 2)
	assert.Equal(t, 0, kel[0].S)
	assert.Equal(t, 1, kel[1].S)
	assert.Equal(t, kel[0].D, kel[1].P)
}

func TestPutEvent_RotationKeyMismatchRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	icp := buildIcp(t, dig, []string{"K0"}, []string{dig.Digest([]byte("K1"))})
	raw, err := json.Marshal(icp)
	require.NoError(t, err)
	_, err = s.PutEvent(ctx, raw)
	require.NoError(t, err)

	rot := KelEvent{T: ROT, I: icp.I, S: 1, P: icp.D, K: []string{"WRONG_KEY"}, Kt: 1, N: []string{dig.Digest([]byte("K2"))}, Nt: 1}
	body, err := toBody(rot)
	require.NoError(t, err)
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	rot.D = said
	rawRot, err := json.Marshal(rot)
	require.NoError(t, err)

	_, err = s.PutEvent(ctx, rawRot)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.RotationKeyMismatch))
}

func TestPutEvent_OutOfOrderRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	icp := buildIcp(t, dig, []string{"K0"}, []string{dig.Digest([]byte("K1"))})
	raw, err := json.Marshal(icp)
	require.NoError(t, err)
	_, err = s.PutEvent(ctx, raw)
	require.NoError(t, err)

	ixn := KelEvent{T: IXN, I: icp.I, S: 2, P: icp.D, K: icp.K, Kt: icp.Kt, N: icp.N, Nt: icp.Nt}
	body, err := toBody(ixn)
	require.NoError(t, err)
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	ixn.D = said
	rawIxn, err := json.Marshal(ixn)
	require.NoError(t, err)

	_, err = s.PutEvent(ctx, rawIxn)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.OutOfOrder))
}

func TestPutEvent_DuplicateIdenticalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	icp := buildIcp(t, dig, []string{"K0"}, []string{dig.Digest([]byte("K1"))})
	raw, err := json.Marshal(icp)
	require.NoError(t, err)

	_, err = s.PutEvent(ctx, raw)
	require.NoError(t, err)

	// Byte-identical resubmission (a cancelled caller retrying) is a no-op.
	admitted, err := s.PutEvent(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, icp.D, admitted.D)

	kel, err := s.GetKel(ctx, icp.I)
	require.NoError(t, err)
	assert.Len(t, kel, 1)
}

func TestPutEvent_DifferentContentAtOccupiedSeqRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	icp := buildIcp(t, dig, []string{"K0"}, []string{dig.Digest([]byte("K1"))})
	raw, err := json.Marshal(icp)
	require.NoError(t, err)
	_, err = s.PutEvent(ctx, raw)
	require.NoError(t, err)

	buildIxn := func(n []string) []byte {
		ixn := KelEvent{T: IXN, I: icp.I, S: 1, P: icp.D, K: icp.K, Kt: icp.Kt, N: n, Nt: 1}
		body, err := toBody(ixn)
		require.NoError(t, err)
		said, err := ComputeSaid(dig, body)
		require.NoError(t, err)
		ixn.D = said
		raw, err := json.Marshal(ixn)
		require.NoError(t, err)
		return raw
	}

	_, err = s.PutEvent(ctx, buildIxn([]string{dig.Digest([]byte("K1"))}))
	require.NoError(t, err)

	// A different event contending for the occupied s=1 slot.
	_, err = s.PutEvent(ctx, buildIxn([]string{dig.Digest([]byte("K2"))}))
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.DuplicateEvent))
}

func TestPutEvent_SaidMismatchRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	icp := buildIcp(t, dig, []string{"K0"}, []string{dig.Digest([]byte("K1"))})
	icp.D = "tamperedSAIDtamperedSAIDtamperedSAIDtamperedSAID"
	icp.I = icp.D
	raw, err := json.Marshal(icp)
	require.NoError(t, err)

	_, err = s.PutEvent(ctx, raw)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.SaidMismatch))
}

func TestPutTelEvent_RegistryChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	vcp := TelEvent{T: VCP, S: 0}
	body, err := toBody(vcp)
	require.NoError(t, err)
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	vcp.D, vcp.I = said, said
	raw, err := json.Marshal(vcp)
	require.NoError(t, err)

	_, err = s.PutTelEvent(ctx, raw)
	require.NoError(t, err)

	iss := TelEvent{T: ISS, I: vcp.I, S: 1, P: vcp.D, Acdc: "credential-said"}
	body, err = toBody(iss)
	require.NoError(t, err)
	said, err = ComputeSaid(dig, body)
	require.NoError(t, err)
	iss.D = said
	raw, err = json.Marshal(iss)
	require.NoError(t, err)

	_, err = s.PutTelEvent(ctx, raw)
	require.NoError(t, err)

	tel, err := s.GetTel(ctx, vcp.I)
	require.NoError(t, err)
	require.Len(t, tel, 2)
	assert.Equal(t, VCP, tel[0].T)
	assert.Equal(t, ISS, tel[1].T)

	// A revocation skipping ahead of the chain is rejected.
	rev := TelEvent{T: REV, I: vcp.I, S: 3, P: iss.D, Acdc: "credential-said"}
	body, err = toBody(rev)
	require.NoError(t, err)
	said, err = ComputeSaid(dig, body)
	require.NoError(t, err)
	rev.D = said
	raw, err = json.Marshal(rev)
	require.NoError(t, err)

	_, err = s.PutTelEvent(ctx, raw)
	require.ErrorIs(t, err, kerierr.Sentinel(kerierr.OutOfOrder))
}

func TestPutAcdc_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	dig := NewDigester()

	cred := Acdc{I: "issuer-aid", S: "schema-said", A: map[string]any{"name": "alice"}}
	body, err := toBody(cred)
	require.NoError(t, err)
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	cred.D = said
	raw, err := json.Marshal(cred)
	require.NoError(t, err)

	_, err = s.PutAcdc(ctx, raw)
	require.NoError(t, err)

	got, ok, err := s.GetAcdc(ctx, said)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "issuer-aid", got.I)
	assert.Equal(t, "alice", got.A["name"])
}

func TestVerifySaid_RoundTrip(t *testing.T) {
	dig := NewDigester()
	body := map[string]any{"d": "", "i": "alice", "s": float64(0)}
	said, err := ComputeSaid(dig, body)
	require.NoError(t, err)
	body["d"] = said

	digest, err := VerifySaid(dig, "icp", body)
	require.NoError(t, err)
	assert.Equal(t, said, digest)
}
