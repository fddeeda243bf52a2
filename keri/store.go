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

package keri

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/internal/metrics"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/keycodec"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

// EventStore admits KEL/TEL events and ACDCs, verifying SAID and chaining
// invariants before persisting them under their canonical keys.
type EventStore struct {
	kv  kv.Backend
	dig Digester
	log logger.Logger

	mu       sync.Mutex
	aidLocks map[string]*sync.Mutex
}

// NewEventStore constructs an EventStore over backend, using dig for SAID
// computation and verification.
func NewEventStore(backend kv.Backend, dig Digester, log logger.Logger) *EventStore {
	return &EventStore{
		kv:       backend,
		dig:      dig,
		log:      log,
		aidLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor serialises PutEvent calls against the same AID. KEL events must
// be admitted in sequence order by the owning identity.
func (s *EventStore) lockFor(aid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.aidLocks[aid]
	if !ok {
		l = &sync.Mutex{}
		s.aidLocks[aid] = l
	}
	return l
}

// PutEvent admits a serialised KEL event: verifies its SAID, verifies its
// chaining against the current head for its AID, and persists it.
//
// Errors: kerierr.MalformedEvent, kerierr.SaidMismatch, kerierr.OutOfOrder,
// kerierr.PriorMismatch, kerierr.RotationKeyMismatch, kerierr.DuplicateEvent.
func (s *EventStore) PutEvent(ctx context.Context, raw []byte) (*KelEvent, error) {
	start := time.Now()
	ev, err := s.putEvent(ctx, raw)
	metrics.KelEventVerifyDuration.Observe(time.Since(start).Seconds())

	kind, result := "unknown", "accepted"
	if ev != nil {
		kind = string(ev.T)
	}
	if err != nil {
		result = "rejected"
	}
	metrics.KelEventsAdmitted.WithLabelValues(kind, result).Inc()
	return ev, err
}

func (s *EventStore) putEvent(ctx context.Context, raw []byte) (*KelEvent, error) {
	const op = "keri.PutEvent"

	var ev KelEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if ev.D == "" || ev.I == "" || len(ev.K) == 0 {
		return nil, kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("missing required field"))
	}

	body, err := toBody(ev)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if _, err := VerifySaid(s.dig, string(ev.T), body); err != nil {
		return nil, err
	}

	aid := ev.I
	if ev.T == ICP {
		if ev.S != 0 || ev.P != "" {
			return nil, kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("icp must have s=0 and no prior"))
		}
		if ev.I != ev.D {
			return nil, kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("icp's i must equal its own SAID"))
		}
	}

	lock := s.lockFor(aid)
	lock.Lock()
	defer lock.Unlock()

	head, seq, ok, err := s.GetHead(ctx, aid)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}

	switch {
	case !ok && ev.T != ICP:
		return nil, kerierr.New(kerierr.OutOfOrder, op, fmt.Errorf("no inception stored for %s", aid))
	case ok:
		// Identical resubmission of a stored event is an idempotent no-op;
		// different content at an occupied (aid, s) is DuplicateEvent.
		if existing, dup, err := s.duplicateOf(ctx, aid, ev.S, raw); err != nil {
			return nil, err
		} else if dup {
			var prior KelEvent
			if err := json.Unmarshal(existing, &prior); err != nil {
				return nil, kerierr.New(kerierr.MalformedEvent, op, err)
			}
			return &prior, nil
		}

		if ev.T == ICP {
			return nil, kerierr.New(kerierr.DuplicateEvent, op, fmt.Errorf("inception already stored for %s", aid))
		}
		if ev.S != seq+1 {
			return nil, kerierr.New(kerierr.OutOfOrder, op, fmt.Errorf("expected s=%d, got s=%d", seq+1, ev.S))
		}
		if ev.P != head {
			return nil, kerierr.New(kerierr.PriorMismatch, op, nil)
		}

		if ev.T == ROT {
			priorKey, err := kelSeqKeyForAnyKind(ctx, s.kv, aid, seq)
			if err != nil || priorKey == "" {
				return nil, kerierr.New(kerierr.PriorMismatch, op, fmt.Errorf("cannot locate prior event"))
			}
			priorRaw, found, err := s.kv.Get(ctx, priorKey)
			if err != nil || !found {
				return nil, kerierr.New(kerierr.PriorMismatch, op, fmt.Errorf("cannot load prior event"))
			}
			var prior KelEvent
			if err := json.Unmarshal(priorRaw, &prior); err != nil {
				return nil, kerierr.New(kerierr.MalformedEvent, op, err)
			}
			if err := verifyRotationKeys(s.dig, ev.K, prior.N); err != nil {
				return nil, err
			}
		}
	}

	if err := s.persistKel(ctx, &ev, raw); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}

	s.log.Info("kel event admitted", logger.String("aid", aid), logger.String("kind", string(ev.T)), logger.Int("s", ev.S))
	return &ev, nil
}

// duplicateOf reports whether the store already has an event at (aid, s);
// if so, it returns the stored bytes and whether raw is byte-identical to
// them. A non-identical resubmission at an already-occupied sequence
// number fails the caller's putEvent with DuplicateEvent.
func (s *EventStore) duplicateOf(ctx context.Context, aid string, seqNum int, raw []byte) ([]byte, bool, error) {
	key, err := kelSeqKeyForAnyKind(ctx, s.kv, aid, seqNum)
	if err != nil {
		return nil, false, nil
	}
	if key == "" {
		return nil, false, nil
	}
	existing, found, err := s.kv.Get(ctx, key)
	if err != nil || !found {
		return nil, false, nil
	}
	if bytes.Equal(existing, raw) {
		return existing, true, nil
	}
	return nil, false, kerierr.New(kerierr.DuplicateEvent, "keri.PutEvent", fmt.Errorf("s=%d already occupied by a different event", seqNum))
}

// kelSeqKeyForAnyKind finds the stored key at (aid, seq) regardless of
// event kind by listing the narrow prefix that seq number can occupy.
func kelSeqKeyForAnyKind(ctx context.Context, backend kv.Backend, aid string, seq int) (string, error) {
	prefix := fmt.Sprintf("%s%s/kel/%06d.", kv.PrefixAID, aid, seq)
	entries, err := backend.List(ctx, prefix, kv.ListOptions{KeysOnly: true, Limit: 1})
	if err != nil || len(entries) == 0 {
		return "", err
	}
	return entries[0].Key, nil
}

func verifyRotationKeys(dig Digester, newKeys, priorNextDigests []string) error {
	if len(newKeys) != len(priorNextDigests) {
		return kerierr.New(kerierr.RotationKeyMismatch, "keri.PutEvent", fmt.Errorf("key count mismatch"))
	}
	for i, k := range newKeys {
		if dig.Digest([]byte(k)) != priorNextDigests[i] {
			return kerierr.New(kerierr.RotationKeyMismatch, "keri.PutEvent", nil)
		}
	}
	return nil
}

func kelKey(aid string, seq int, kind Kind) keycodec.Key {
	return keycodec.Key{
		Path:        []string{"aid", aid, "kel", fmt.Sprintf("%06d", seq)},
		ContentKind: keycodec.ContentKindCesr,
		EventKind:   kind.eventKind(),
	}
}

func saidKey(said string) keycodec.Key {
	return keycodec.Key{Path: []string{"said", said}, ContentKind: keycodec.ContentKindCesr}
}

// headKey is the bare pointer key holding the current head's SAID as text;
// it carries no structured-key suffix.
func headKey(aid string) string { return fmt.Sprintf("%s%s/head", kv.PrefixAID, aid) }

func (s *EventStore) persistKel(ctx context.Context, ev *KelEvent, raw []byte) error {
	return s.kv.Batch(ctx, []kv.Op{
		kv.PutOp(kelKey(ev.I, ev.S, ev.T).String(), raw),
		kv.PutOp(saidKey(ev.D).String(), raw),
		kv.PutOp(headKey(ev.I), []byte(ev.D)),
	})
}

// GetEventBySaid looks up an event's raw bytes by its SAID: first the
// KEL/TEL reverse index (said/{d}.cesr), then the ACDC content-address
// space (said/{d}.json).
func (s *EventStore) GetEventBySaid(ctx context.Context, said string) ([]byte, bool, error) {
	raw, ok, err := s.kv.Get(ctx, saidKey(said).String())
	if err != nil || ok {
		return raw, ok, err
	}
	acdcKey := keycodec.Key{Path: []string{"said", said}, ContentKind: keycodec.ContentKindJSON}
	return s.kv.Get(ctx, acdcKey.String())
}

// GetKel returns every stored event for aid, in ascending sequence order.
func (s *EventStore) GetKel(ctx context.Context, aid string) ([]KelEvent, error) {
	prefix := fmt.Sprintf("%s%s/kel/", kv.PrefixAID, aid)
	entries, err := s.kv.List(ctx, prefix, kv.ListOptions{})
	if err != nil {
		return nil, kerierr.New(kerierr.NotFound, "keri.GetKel", err)
	}
	out := make([]KelEvent, 0, len(entries))
	for _, e := range entries {
		var ev KelEvent
		if err := json.Unmarshal(e.Value, &ev); err != nil {
			return nil, kerierr.New(kerierr.MalformedEvent, "keri.GetKel", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetHead returns the current head SAID and sequence number for aid. The
// pointer key stores only the SAID text; the sequence number is resolved
// through the said/ reverse index.
func (s *EventStore) GetHead(ctx context.Context, aid string) (said string, seq int, ok bool, err error) {
	raw, found, err := s.kv.Get(ctx, headKey(aid))
	if err != nil || !found {
		return "", 0, false, err
	}
	said = string(raw)

	evRaw, found, err := s.kv.Get(ctx, saidKey(said).String())
	if err != nil {
		return "", 0, false, err
	}
	if !found {
		return "", 0, false, fmt.Errorf("keri: head %s of %s has no stored event", said, aid)
	}
	var ev KelEvent
	if err := json.Unmarshal(evRaw, &ev); err != nil {
		return "", 0, false, err
	}
	return said, ev.S, true, nil
}

// PutTelEvent admits a TEL event chained against the registry/credential
// SAID named by its `i` field, applying the same SAID and chaining checks
// as PutEvent.
func (s *EventStore) PutTelEvent(ctx context.Context, raw []byte) (*TelEvent, error) {
	ev, err := s.putTelEvent(ctx, raw)

	kind, result := "unknown", "accepted"
	if ev != nil {
		kind = string(ev.T)
	}
	if err != nil {
		result = "rejected"
	}
	metrics.KelEventsAdmitted.WithLabelValues(kind, result).Inc()
	return ev, err
}

func (s *EventStore) putTelEvent(ctx context.Context, raw []byte) (*TelEvent, error) {
	const op = "keri.PutTelEvent"

	var ev TelEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if ev.D == "" || ev.I == "" {
		return nil, kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("missing required field"))
	}

	body, err := toBody(ev)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if _, err := VerifySaid(s.dig, string(ev.T), body); err != nil {
		return nil, err
	}

	lock := s.lockFor("tel:" + ev.I)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.GetTel(ctx, ev.I)
	if err != nil {
		return nil, err
	}

	switch {
	case len(existing) == 0 && ev.T != VCP:
		return nil, kerierr.New(kerierr.OutOfOrder, op, fmt.Errorf("no registry inception stored for %s", ev.I))
	case len(existing) > 0 && ev.T == VCP:
		return nil, kerierr.New(kerierr.DuplicateEvent, op, fmt.Errorf("registry inception already stored for %s", ev.I))
	case len(existing) > 0:
		last := existing[len(existing)-1]
		if ev.S != last.S+1 {
			return nil, kerierr.New(kerierr.OutOfOrder, op, fmt.Errorf("expected s=%d, got s=%d", last.S+1, ev.S))
		}
		if ev.P != last.D {
			return nil, kerierr.New(kerierr.PriorMismatch, op, nil)
		}
	default:
		if ev.S != 0 || ev.P != "" {
			return nil, kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("vcp must have s=0 and no prior"))
		}
	}

	telK := keycodec.Key{
		Path:        []string{"said", ev.I, "tel", fmt.Sprintf("%06d", ev.S)},
		ContentKind: keycodec.ContentKindCesr,
		EventKind:   ev.T.eventKind(),
	}
	if err := s.kv.Batch(ctx, []kv.Op{
		kv.PutOp(telK.String(), raw),
		kv.PutOp(saidKey(ev.D).String(), raw),
	}); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}

	s.log.Info("tel event admitted", logger.String("registry", ev.I), logger.String("kind", string(ev.T)), logger.Int("s", ev.S))
	return &ev, nil
}

// GetTel returns every stored TEL event scoped to registrySaid, in
// ascending sequence order.
func (s *EventStore) GetTel(ctx context.Context, registrySaid string) ([]TelEvent, error) {
	prefix := fmt.Sprintf("said/%s/tel/", registrySaid)
	entries, err := s.kv.List(ctx, prefix, kv.ListOptions{})
	if err != nil {
		return nil, kerierr.New(kerierr.NotFound, "keri.GetTel", err)
	}
	out := make([]TelEvent, 0, len(entries))
	for _, e := range entries {
		var ev TelEvent
		if err := json.Unmarshal(e.Value, &ev); err != nil {
			return nil, kerierr.New(kerierr.MalformedEvent, "keri.GetTel", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// PutAcdc admits a credential: it only verifies the SAID, since chaining is
// enforced by the TEL rather than at the ACDC layer.
func (s *EventStore) PutAcdc(ctx context.Context, raw []byte) (*Acdc, error) {
	const op = "keri.PutAcdc"

	var cred Acdc
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if cred.D == "" || cred.I == "" || cred.S == "" {
		return nil, kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("missing required field"))
	}

	body, err := toBody(cred)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if _, err := VerifySaid(s.dig, "acdc", body); err != nil {
		return nil, err
	}

	acdcKey := keycodec.Key{Path: []string{"said", cred.D}, ContentKind: keycodec.ContentKindJSON}
	if err := s.kv.Put(ctx, acdcKey.String(), raw); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	return &cred, nil
}

// GetAcdc loads a credential by its self-SAID.
func (s *EventStore) GetAcdc(ctx context.Context, said string) (*Acdc, bool, error) {
	acdcKey := keycodec.Key{Path: []string{"said", said}, ContentKind: keycodec.ContentKindJSON}
	raw, ok, err := s.kv.Get(ctx, acdcKey.String())
	if err != nil || !ok {
		return nil, ok, err
	}
	var cred Acdc
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, false, kerierr.New(kerierr.MalformedEvent, "keri.GetAcdc", err)
	}
	return &cred, true, nil
}
