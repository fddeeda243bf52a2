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
	"encoding/json"
	"fmt"

	"github.com/kerimesh/kerimesh/internal/logger"
)

// Bus is the external message-bus capability the engine depends on. It
// does not specify a wire protocol: callers inject a transport of their
// choosing.
type Bus interface {
	// Send delivers env to recipientAID. The engine never inspects the
	// transport error beyond success/failure.
	Send(ctx context.Context, recipientAID string, env Envelope) error

	// OnReceive registers the callback invoked whenever a peer delivers an
	// Envelope addressed to this node. Only one callback is active at a
	// time; a later call replaces the prior one.
	OnReceive(func(senderAID string, env Envelope))
}

// SignedPayload wraps an Envelope's payload with a signature from the
// sending AID's current key, fulfilling the data-flow note that the group
// engine uses the identity manager to sign outgoing messages and votes —
// without adding a signature field to GroupMessage or Vote themselves.
type SignedPayload struct {
	Body []byte `json:"body"`
	AID  string `json:"aid"`
	Sig  []byte `json:"sig"`
}

// NewEnvelope marshals record, signs it with self's current key, and wraps
// both in an Envelope ready for Bus.Send.
func (e *Engine) NewEnvelope(ctx context.Context, typ EnvelopeType, record any) (*Envelope, error) {
	if e.signers == nil {
		return nil, fmt.Errorf("group: engine has no identity manager to sign with")
	}

	body, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	signer, err := e.signers.GetSigner(ctx, e.Self)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(SignedPayload{Body: body, AID: e.Self, Sig: sig})
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: typ, Payload: payload}, nil
}

// DecodeSignedPayload unwraps an incoming Envelope's SignedPayload. It does
// not verify the signature: the caller checks Sig against the key state it
// holds for AID before trusting Body.
func DecodeSignedPayload(env Envelope) (*SignedPayload, error) {
	var sp SignedPayload
	if err := json.Unmarshal(env.Payload, &sp); err != nil {
		return nil, fmt.Errorf("group: decoding signed payload: %w", err)
	}
	if sp.AID == "" || len(sp.Body) == 0 {
		return nil, fmt.Errorf("group: signed payload missing aid or body")
	}
	return &sp, nil
}

// Broadcast delivers env to every member of groupID except self. Delivery
// is best-effort: a failed send is logged and the remaining members still
// get the envelope.
func (e *Engine) Broadcast(ctx context.Context, groupID string, env Envelope) error {
	if e.bus == nil {
		return fmt.Errorf("group: engine has no bus")
	}
	grp, err := e.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, member := range grp.Members {
		if member == e.Self {
			continue
		}
		if err := e.bus.Send(ctx, member, env); err != nil {
			e.log.Error("broadcast: send failed", logger.String("groupId", groupID), logger.String("to", member), logger.Error(err))
		}
	}
	return nil
}
