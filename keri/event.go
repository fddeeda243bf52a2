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

// Package keri implements the KEL/TEL/ACDC event store: it admits a
// serialised event, verifies its SAID and chaining, persists it under
// canonical keys, and maintains the derived head/reverse indices.
package keri

import "github.com/kerimesh/kerimesh/pkg/keycodec"

// Kind is a KEL or TEL event tag. Values mirror keycodec.EventKind exactly;
// this package re-declares them so callers constructing events don't need
// to import keycodec directly.
type Kind string

const (
	ICP Kind = "icp" // KEL inception
	ROT Kind = "rot" // KEL rotation
	IXN Kind = "ixn" // KEL interaction
	VCP Kind = "vcp" // TEL registry inception
	ISS Kind = "iss" // TEL credential issuance
	REV Kind = "rev" // TEL credential revocation
)

func (k Kind) eventKind() keycodec.EventKind { return keycodec.EventKind(k) }

// KelEvent is a single Key Event Log entry. Struct field order is `t, d,
// i, s, p, k, kt, n, nt` for readability only — the SAID digest itself is
// computed over the JSON object with its keys in alphabetical order
// (VerifySaid/ComputeSaid round-trip the event through map[string]any,
// and encoding/json always renders map keys sorted), not this struct's
// declaration order.
type KelEvent struct {
	T  Kind     `json:"t"`
	D  string   `json:"d"`           // event SAID
	I  string   `json:"i"`           // AID
	S  int      `json:"s"`           // sequence number
	P  string   `json:"p,omitempty"` // prior event digest; absent on icp
	K  []string `json:"k"`           // current signing keys
	Kt int      `json:"kt"`          // signing threshold
	N  []string `json:"n"`           // digests of next keys
	Nt int      `json:"nt"`          // next-key threshold
}

// TelEvent is a single Transaction Event Log entry, scoped to a registry or
// credential SAID rather than an AID.
type TelEvent struct {
	T    Kind   `json:"t"`
	D    string `json:"d"`              // event SAID
	I    string `json:"i"`              // registry or credential SAID this event is scoped to
	S    int    `json:"s"`              // sequence number
	P    string `json:"p,omitempty"`    // prior event digest; absent on vcp
	Acdc string `json:"acdc,omitempty"` // credential SAID this iss/rev event concerns
}

// Acdc is an Authentic Chained Data Container: a credential envelope.
// ACDCs are content-addressed but carry no chain-order constraint of their
// own — chaining is enforced at the TEL layer via iss/rev events.
type Acdc struct {
	D string         `json:"d"` // self-SAID
	I string         `json:"i"` // issuer AID
	S string         `json:"s"` // schema SAID
	A map[string]any `json:"a"` // subject attributes
}
