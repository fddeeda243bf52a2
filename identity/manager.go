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

package identity

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/keri"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

const minMnemonicLen = 16 // bytes; below this, newAccount rejects with WeakEntropy

// unlockedRing is the in-memory state produced by unlockFromStore. It is
// never written back to the KV store except as a freshly resealed bundle;
// the passphrase is retained only so rotate can reseal the bundle under
// the same key without asking the caller again.
type unlockedRing struct {
	passphrase  string
	alias       string
	keyType     KeyType
	currentSeed []byte
	nextSeed    []byte
	currentKP   KeyPair
	nextKP      KeyPair
	ksn         int
	lastEvtSaid string
}

// Manager holds per-AID key material and exposes Signer capabilities. It
// never exposes a KeyPair or a raw seed outside this package.
type Manager struct {
	kvBackend kv.Backend
	events    *keri.EventStore
	dig       keri.Digester
	log       logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	rings map[string]*unlockedRing
}

// NewManager constructs a Manager storing KEL events through events and
// key bundles directly in backend.
func NewManager(backend kv.Backend, events *keri.EventStore, dig keri.Digester, log logger.Logger) *Manager {
	return &Manager{
		kvBackend: backend,
		events:    events,
		dig:       dig,
		log:       log,
		locks:     make(map[string]*sync.Mutex),
		rings:     make(map[string]*unlockedRing),
	}
}

func (m *Manager) lockFor(aid string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[aid]
	if !ok {
		l = &sync.Mutex{}
		m.locks[aid] = l
	}
	return l
}

func aliasKey(alias string) string { return kv.PrefixKeyManager + "alias/" + alias }
func bundleKey(aid string) string  { return fmt.Sprintf("%s%s/bundle", kv.PrefixKeyManager, aid) }

func newKeyPairFromSeed(kind KeyType, seed []byte) (KeyPair, error) {
	switch kind {
	case KeyTypeEd25519:
		return Ed25519KeyPairFromSeed(seed)
	case KeyTypeSecp256k1:
		return Secp256k1KeyPairFromSeed(seed)
	default:
		return nil, fmt.Errorf("identity: unsupported key type %q", kind)
	}
}

func keyString(kp KeyPair) string { return base58.Encode(kp.PublicKeyBytes()) }

func bodyOf(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewAccount derives "current" and "next" seeds from mnemonic, constructs
// and stores an icp event via the event store, and persists an encrypted
// key bundle under keymanager/{aid}/bundle.
//
// Errors: kerierr.WeakEntropy if mnemonic is too short, kerierr.AliasInUse
// if alias is already registered.
func (m *Manager) NewAccount(ctx context.Context, alias string, mnemonic []byte, passphrase string, keyType KeyType) (string, error) {
	const op = "identity.NewAccount"

	if len(mnemonic) < minMnemonicLen {
		return "", kerierr.New(kerierr.WeakEntropy, op, fmt.Errorf("mnemonic must be at least %d bytes", minMnemonicLen))
	}

	if _, found, err := m.kvBackend.Get(ctx, aliasKey(alias)); err != nil {
		return "", kerierr.New(kerierr.AliasInUse, op, err)
	} else if found {
		return "", kerierr.New(kerierr.AliasInUse, op, nil)
	}

	currentSeed, err := deriveSeed(mnemonic, "current")
	if err != nil {
		return "", kerierr.New(kerierr.WeakEntropy, op, err)
	}
	nextSeed, err := deriveSeed(mnemonic, "next")
	if err != nil {
		return "", kerierr.New(kerierr.WeakEntropy, op, err)
	}

	currentKP, err := newKeyPairFromSeed(keyType, currentSeed)
	if err != nil {
		return "", kerierr.New(kerierr.WeakEntropy, op, err)
	}
	nextKP, err := newKeyPairFromSeed(keyType, nextSeed)
	if err != nil {
		return "", kerierr.New(kerierr.WeakEntropy, op, err)
	}

	ev := keri.KelEvent{
		T:  keri.ICP,
		S:  0,
		K:  []string{keyString(currentKP)},
		Kt: 1,
		N:  []string{m.dig.Digest([]byte(keyString(nextKP)))},
		Nt: 1,
	}
	body, err := bodyOf(ev)
	if err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, op, err)
	}
	said, err := keri.ComputeSaid(m.dig, body)
	if err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, op, err)
	}
	ev.D, ev.I = said, said

	raw, err := json.Marshal(ev)
	if err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, op, err)
	}
	admitted, err := m.events.PutEvent(ctx, raw)
	if err != nil {
		return "", err
	}
	aid := admitted.D

	ring := &unlockedRing{
		passphrase:  passphrase,
		alias:       alias,
		keyType:     keyType,
		currentSeed: currentSeed,
		nextSeed:    nextSeed,
		currentKP:   currentKP,
		nextKP:      nextKP,
		ksn:         0,
		lastEvtSaid: aid,
	}
	if err := m.persistBundle(ctx, aid, ring); err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if err := m.kvBackend.Put(ctx, aliasKey(alias), []byte(aid)); err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, op, err)
	}

	m.mu.Lock()
	m.rings[aid] = ring
	m.mu.Unlock()

	m.log.Info("account created", logger.String("alias", alias), logger.String("aid", aid))
	return aid, nil
}

func (m *Manager) persistBundle(ctx context.Context, aid string, ring *unlockedRing) error {
	bundle := keyBundle{
		Alias:       ring.alias,
		AID:         aid,
		KeyType:     ring.keyType,
		CurrentSeed: ring.currentSeed,
		NextSeed:    ring.nextSeed,
		KSN:         ring.ksn,
		LastEvtSaid: ring.lastEvtSaid,
	}
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	sealed, err := sealBundle(ring.passphrase, plaintext)
	if err != nil {
		return err
	}
	return m.kvBackend.Put(ctx, bundleKey(aid), sealed)
}

// UnlockFromStore decrypts the stored bundle for aid into the in-memory
// ring, scoped to this Manager instance's lifetime.
func (m *Manager) UnlockFromStore(ctx context.Context, aid, passphrase string) (bool, error) {
	sealed, found, err := m.kvBackend.Get(ctx, bundleKey(aid))
	if err != nil {
		return false, kerierr.New(kerierr.NotFound, "identity.UnlockFromStore", err)
	}
	if !found {
		return false, nil
	}

	plaintext, err := openBundle(passphrase, sealed)
	if err != nil {
		return false, kerierr.New(kerierr.InvalidSignature, "identity.UnlockFromStore", err)
	}

	var bundle keyBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return false, kerierr.New(kerierr.MalformedEvent, "identity.UnlockFromStore", err)
	}

	currentKP, err := newKeyPairFromSeed(bundle.KeyType, bundle.CurrentSeed)
	if err != nil {
		return false, kerierr.New(kerierr.MalformedEvent, "identity.UnlockFromStore", err)
	}
	nextKP, err := newKeyPairFromSeed(bundle.KeyType, bundle.NextSeed)
	if err != nil {
		return false, kerierr.New(kerierr.MalformedEvent, "identity.UnlockFromStore", err)
	}

	ring := &unlockedRing{
		passphrase:  passphrase,
		alias:       bundle.Alias,
		keyType:     bundle.KeyType,
		currentSeed: bundle.CurrentSeed,
		nextSeed:    bundle.NextSeed,
		currentKP:   currentKP,
		nextKP:      nextKP,
		ksn:         bundle.KSN,
		lastEvtSaid: bundle.LastEvtSaid,
	}

	m.mu.Lock()
	m.rings[aid] = ring
	m.mu.Unlock()
	return true, nil
}

// Lock discards aid's unlocked ring, zeroising the raw seeds before the
// ring is dropped. Signers handed out earlier keep working — they close
// over their own KeyPair — but no new Signer can be obtained until the
// bundle is unlocked again.
func (m *Manager) Lock(aid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.rings[aid]
	if !ok {
		return
	}
	for i := range ring.currentSeed {
		ring.currentSeed[i] = 0
	}
	for i := range ring.nextSeed {
		ring.nextSeed[i] = 0
	}
	ring.passphrase = ""
	delete(m.rings, aid)
}

// GetSigner returns a capability bound to aid's current signing key. The
// returned Signer's public key is checked against the latest KEL event for
// aid; a mismatch is a hard error, never silently ignored.
//
// Errors: kerierr.LockedKey if aid has not been unlocked, kerierr.InvalidSignature
// if the held key does not match the AID's current KEL keys.
func (m *Manager) GetSigner(ctx context.Context, aid string) (*Signer, error) {
	const op = "identity.GetSigner"

	lock := m.lockFor(aid)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	ring, ok := m.rings[aid]
	m.mu.Unlock()
	if !ok {
		return nil, kerierr.New(kerierr.LockedKey, op, nil)
	}

	kel, err := m.events.GetKel(ctx, aid)
	if err != nil || len(kel) == 0 {
		return nil, kerierr.New(kerierr.NotFound, op, err)
	}
	latest := kel[len(kel)-1]

	want := keyString(ring.currentKP)
	found := false
	for _, k := range latest.K {
		if k == want {
			found = true
			break
		}
	}
	if !found {
		return nil, kerierr.New(kerierr.InvalidSignature, op, fmt.Errorf("signer's public key is not among the AID's current KEL keys"))
	}

	return newSigner(aid, ring.currentKP), nil
}

// Rotate constructs a rot event revealing the pre-images matching the
// prior event's next-key digests, commits a freshly derived next-key
// digest, and stores the event via the event store. When newMnemonic is
// nil, the new next seed is drawn from crypto/rand instead of a mnemonic.
//
// Errors: kerierr.LockedKey if aid has not been unlocked; any error
// PutEvent can return.
func (m *Manager) Rotate(ctx context.Context, aid string, newMnemonic []byte) (*keri.KelEvent, error) {
	const op = "identity.Rotate"

	lock := m.lockFor(aid)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	ring, ok := m.rings[aid]
	m.mu.Unlock()
	if !ok {
		return nil, kerierr.New(kerierr.LockedKey, op, nil)
	}

	head, seq, ok2, err := m.events.GetHead(ctx, aid)
	if err != nil || !ok2 {
		return nil, kerierr.New(kerierr.NotFound, op, err)
	}

	var newNextSeed []byte
	if newMnemonic != nil {
		newNextSeed, err = deriveSeed(newMnemonic, fmt.Sprintf("next-%d", ring.ksn+1))
	} else {
		newNextSeed = make([]byte, 32)
		_, err = io.ReadFull(rand.Reader, newNextSeed)
	}
	if err != nil {
		return nil, kerierr.New(kerierr.WeakEntropy, op, err)
	}
	newNextKP, err := newKeyPairFromSeed(ring.keyType, newNextSeed)
	if err != nil {
		return nil, kerierr.New(kerierr.WeakEntropy, op, err)
	}

	ev := keri.KelEvent{
		T:  keri.ROT,
		I:  aid,
		S:  seq + 1,
		P:  head,
		K:  []string{keyString(ring.nextKP)},
		Kt: 1,
		N:  []string{m.dig.Digest([]byte(keyString(newNextKP)))},
		Nt: 1,
	}
	body, err := bodyOf(ev)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	said, err := keri.ComputeSaid(m.dig, body)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	ev.D = said

	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	admitted, err := m.events.PutEvent(ctx, raw)
	if err != nil {
		return nil, err
	}

	ring.currentSeed, ring.currentKP = ring.nextSeed, ring.nextKP
	ring.nextSeed, ring.nextKP = newNextSeed, newNextKP
	ring.ksn++
	ring.lastEvtSaid = admitted.D

	if err := m.persistBundle(ctx, aid, ring); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}

	m.log.Info("key rotated", logger.String("aid", aid), logger.Int("ksn", ring.ksn))
	return admitted, nil
}
