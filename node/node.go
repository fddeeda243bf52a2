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

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package node wires Components A through F into one local process: a KV
// backend, the KERI event store, the identity and key manager, the group
// consensus engine, and the challenge authenticator. It owns the one piece
// of plumbing no single component can own without an import cycle —
// publishing an identity's current key state to the authenticator whenever
// the identity manager mints or rotates keys.
package node

import (
	"context"
	"fmt"

	"github.com/kerimesh/kerimesh/challenge"
	"github.com/kerimesh/kerimesh/group"
	"github.com/kerimesh/kerimesh/identity"
	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/keri"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

// Node bundles one local member's view of the mesh: its KV backend, KEL
// event store, key manager, group engine, and challenge authenticator, all
// sharing the same backend and digester.
type Node struct {
	Backend kv.Backend
	Events  *keri.EventStore
	Keys    *identity.Manager
	Auth    *challenge.Authenticator
	Group   *group.Engine
	log     logger.Logger
}

// Options configures New. Bus and Self are required to construct the group
// engine; a nil Bus is valid for a node that only manages identities and
// challenges without joining any group.
type Options struct {
	Backend     kv.Backend
	Log         logger.Logger
	Bus         group.Bus
	Self        string
	OnCanonical func(groupID string, msg *group.GroupMessage)
}

// New constructs a Node over backend, wiring the event store, identity
// manager, challenge authenticator, and (when a Bus and Self are given) the
// group engine, all sharing backend and a single blake2b-256 digester.
func New(opts Options) *Node {
	log := opts.Log
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	dig := keri.NewDigester()
	events := keri.NewEventStore(opts.Backend, dig, log)
	keys := identity.NewManager(opts.Backend, events, dig, log)
	auth := challenge.NewAuthenticator(opts.Backend, log)

	n := &Node{
		Backend: opts.Backend,
		Events:  events,
		Keys:    keys,
		Auth:    auth,
		log:     log,
	}

	if opts.Bus != nil && opts.Self != "" {
		n.Group = group.NewEngine(opts.Backend, dig, keys, opts.Bus, opts.Self, log, opts.OnCanonical)
	}

	return n
}

// CreateIdentity mints a new AID via the identity manager and publishes its
// initial key state to the challenge authenticator, so the new identity can
// authenticate challenges immediately without a separate registration step.
func (n *Node) CreateIdentity(ctx context.Context, alias string, mnemonic []byte, passphrase string, keyType identity.KeyType) (string, error) {
	aid, err := n.Keys.NewAccount(ctx, alias, mnemonic, passphrase, keyType)
	if err != nil {
		return "", err
	}
	if err := n.publishKeyState(ctx, aid); err != nil {
		return "", err
	}
	return aid, nil
}

// RotateIdentity rotates aid's signing key via the identity manager and
// republishes the resulting key state to the challenge authenticator.
func (n *Node) RotateIdentity(ctx context.Context, aid string, newMnemonic []byte) (*keri.KelEvent, error) {
	ev, err := n.Keys.Rotate(ctx, aid, newMnemonic)
	if err != nil {
		return nil, err
	}
	if err := n.publishKeyState(ctx, aid); err != nil {
		return nil, err
	}
	return ev, nil
}

// publishKeyState reads aid's latest KEL event and current Signer, and
// registers both with the challenge authenticator as a
// challenge.KeyStateRecord. This is the one piece of cross-component
// wiring that cannot live inside either identity or challenge without
// introducing an import cycle between them.
func (n *Node) publishKeyState(ctx context.Context, aid string) error {
	kel, err := n.Events.GetKel(ctx, aid)
	if err != nil || len(kel) == 0 {
		return kerierr.New(kerierr.NotFound, "node.publishKeyState", err)
	}
	latest := kel[len(kel)-1]

	signer, err := n.Keys.GetSigner(ctx, aid)
	if err != nil {
		return err
	}

	return n.Auth.RegisterKeyState(ctx, challenge.KeyStateRecord{
		AID:         aid,
		KSN:         latest.S,
		KeyType:     signer.KeyType(),
		CurrentKeys: latest.K,
		Threshold:   latest.Kt,
		LastEvtSaid: latest.D,
	})
}

// Close releases the underlying KV backend.
func (n *Node) Close() error {
	if n.Backend == nil {
		return nil
	}
	if err := n.Backend.Close(); err != nil {
		return fmt.Errorf("node: closing backend: %w", err)
	}
	return nil
}
