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

package challenge

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/kerimesh/kerimesh/identity"
	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/internal/metrics"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

// DefaultTTL is the default lifetime of an issued challenge.
const DefaultTTL = 5 * time.Minute

func challengeKey(id string) string { return kv.PrefixChallenges + id }
func keyStateKey(aid string) string { return kv.PrefixKeyState + aid }

// Authenticator issues, signs, and verifies single-use purpose-bound
// challenges. It owns everything under the challenges/ prefix, and writes
// keystate/ records only through RegisterKeyState, which the identity
// owner calls to publish its current key state.
type Authenticator struct {
	kvBackend kv.Backend
	log       logger.Logger
	ttl       time.Duration
	Now       func() time.Time // overridable for tests; defaults to time.Now

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAuthenticator constructs an Authenticator backed by backend, issuing
// challenges with DefaultTTL.
func NewAuthenticator(backend kv.Backend, log logger.Logger) *Authenticator {
	return &Authenticator{
		kvBackend: backend,
		log:       log,
		ttl:       DefaultTTL,
		Now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// WithTTL overrides the default challenge lifetime.
func (a *Authenticator) WithTTL(ttl time.Duration) *Authenticator {
	a.ttl = ttl
	return a
}

func (a *Authenticator) lockFor(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// RegisterKeyState persists rec at keystate/{AID}. If a record already
// exists for rec.AID, rec.KSN must be greater than or equal to the stored
// KSN; a regression is rejected.
//
// Errors: kerierr.StaleKeyState.
func (a *Authenticator) RegisterKeyState(ctx context.Context, rec KeyStateRecord) error {
	const op = "challenge.RegisterKeyState"

	lock := a.lockFor("keystate/" + rec.AID)
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := a.kvBackend.Get(ctx, keyStateKey(rec.AID))
	if err != nil {
		return kerierr.New(kerierr.NotFound, op, err)
	}
	if found {
		var prev KeyStateRecord
		if err := json.Unmarshal(existing, &prev); err != nil {
			return kerierr.New(kerierr.MalformedEvent, op, err)
		}
		if rec.KSN < prev.KSN {
			return kerierr.New(kerierr.StaleKeyState, op, fmt.Errorf("ksn %d < stored ksn %d", rec.KSN, prev.KSN))
		}
	}

	rec.UpdatedAt = a.Now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if err := a.kvBackend.Put(ctx, keyStateKey(rec.AID), raw); err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}
	a.log.Info("key state registered", logger.String("aid", rec.AID), logger.Int("ksn", rec.KSN))
	return nil
}

// IssueChallenge constructs a payload {nonce, aid, purpose, argsHash, iat,
// exp}, stores it unconsumed, and returns both the challenge id and the
// payload the caller must sign.
func (a *Authenticator) IssueChallenge(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	const op = "challenge.IssueChallenge"

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	nonce := base58.Encode(nonceBytes)

	now := a.Now().UTC()
	exp := now.Add(a.ttl)

	payload := Payload{
		Nonce:    nonce,
		AID:      req.AID,
		Purpose:  req.Purpose,
		ArgsHash: req.ArgsHash,
		Iat:      now.Unix(),
		Exp:      exp.Unix(),
	}

	ch := Challenge{
		ChallengeID: uuid.NewString(),
		AID:         req.AID,
		Purpose:     req.Purpose,
		ArgsHash:    req.ArgsHash,
		Nonce:       nonce,
		IssuedAt:    now,
		ExpiresAt:   exp,
		Consumed:    false,
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if err := a.kvBackend.Put(ctx, challengeKey(ch.ChallengeID), raw); err != nil {
		return nil, kerierr.New(kerierr.MalformedEvent, op, err)
	}

	metrics.ChallengesIssued.WithLabelValues(string(req.Purpose)).Inc()
	return &IssueResult{ChallengeID: ch.ChallengeID, Payload: payload}, nil
}

// Verify checks req.Sigs against the key-state record registered for the
// challenge's AID, consuming the challenge atomically on success.
//
// Errors: kerierr.UnknownChallenge, kerierr.AlreadyConsumed,
// kerierr.Expired, kerierr.PurposeMismatch, kerierr.ArgsMismatch,
// kerierr.UnknownKeyState, kerierr.InsufficientSignatures,
// kerierr.InvalidSignature.
func (a *Authenticator) Verify(ctx context.Context, req VerifyRequest) error {
	err := a.verify(ctx, req)

	result := "success"
	var kerr *kerierr.Error
	if errors.As(err, &kerr) {
		result = string(kerr.Code)
	} else if err != nil {
		result = "error"
	}
	metrics.ChallengesVerified.WithLabelValues(string(req.Purpose), result).Inc()
	return err
}

func (a *Authenticator) verify(ctx context.Context, req VerifyRequest) error {
	const op = "challenge.Verify"

	lock := a.lockFor("challenge/" + req.ChallengeID)
	lock.Lock()
	defer lock.Unlock()

	raw, found, err := a.kvBackend.Get(ctx, challengeKey(req.ChallengeID))
	if err != nil {
		return kerierr.New(kerierr.UnknownChallenge, op, err)
	}
	if !found {
		return kerierr.New(kerierr.UnknownChallenge, op, nil)
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}

	if ch.Consumed {
		return kerierr.New(kerierr.AlreadyConsumed, op, nil)
	}
	if !a.Now().UTC().Before(ch.ExpiresAt) {
		return kerierr.New(kerierr.Expired, op, nil)
	}
	if ch.Purpose != req.Purpose {
		return kerierr.New(kerierr.PurposeMismatch, op, nil)
	}
	if ch.ArgsHash != req.ArgsHash {
		return kerierr.New(kerierr.ArgsMismatch, op, nil)
	}

	ksRaw, found, err := a.kvBackend.Get(ctx, keyStateKey(ch.AID))
	if err != nil {
		return kerierr.New(kerierr.UnknownKeyState, op, err)
	}
	if !found {
		return kerierr.New(kerierr.UnknownKeyState, op, nil)
	}
	var ks KeyStateRecord
	if err := json.Unmarshal(ksRaw, &ks); err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if ks.KSN != req.KSN {
		return kerierr.New(kerierr.UnknownKeyState, op, fmt.Errorf("requested ksn %d does not match registered ksn %d", req.KSN, ks.KSN))
	}

	payload := Payload{
		Nonce:    ch.Nonce,
		AID:      ch.AID,
		Purpose:  ch.Purpose,
		ArgsHash: ch.ArgsHash,
		Iat:      ch.IssuedAt.Unix(),
		Exp:      ch.ExpiresAt.Unix(),
	}
	message, err := canonicalJSON(payload)
	if err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}

	valid, attempted := 0, 0
	for i, key := range ks.CurrentKeys {
		if i >= len(req.Sigs) || req.Sigs[i] == nil {
			continue
		}
		attempted++
		pubKey, err := base58.Decode(key)
		if err != nil {
			continue
		}
		if err := identity.VerifyWithPublicKey(ks.KeyType, pubKey, message, req.Sigs[i]); err == nil {
			valid++
		}
	}
	if attempted > 0 && valid == 0 {
		return kerierr.New(kerierr.InvalidSignature, op, nil)
	}
	if valid < ks.Threshold {
		return kerierr.New(kerierr.InsufficientSignatures, op, fmt.Errorf("%d of %d required signatures verified", valid, ks.Threshold))
	}

	ch.Consumed = true
	raw, err = json.Marshal(ch)
	if err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}
	if err := a.kvBackend.Put(ctx, challengeKey(ch.ChallengeID), raw); err != nil {
		return kerierr.New(kerierr.MalformedEvent, op, err)
	}
	a.log.Info("challenge verified", logger.String("aid", ch.AID), logger.String("challengeId", ch.ChallengeID))
	return nil
}

// Purge deletes consumed and expired challenges. Challenges are ephemeral;
// a consumed record is kept only long enough to answer a replay with
// AlreadyConsumed, and callers run Purge on a timer to reclaim the rest.
// Returns the number of challenges removed.
func (a *Authenticator) Purge(ctx context.Context) (int, error) {
	entries, err := a.kvBackend.List(ctx, kv.PrefixChallenges, kv.ListOptions{})
	if err != nil {
		return 0, err
	}

	now := a.Now().UTC()
	removed := 0
	for _, entry := range entries {
		var ch Challenge
		if err := json.Unmarshal(entry.Value, &ch); err != nil {
			// An unreadable record is garbage either way.
			if err := a.kvBackend.Del(ctx, entry.Key); err != nil {
				return removed, err
			}
			removed++
			continue
		}
		if !ch.Consumed && now.Before(ch.ExpiresAt) {
			continue
		}
		if err := a.kvBackend.Del(ctx, entry.Key); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		a.log.Debug("challenges purged", logger.Int("count", removed))
	}
	return removed, nil
}
