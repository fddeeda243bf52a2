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
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Digester is the capability this module requires of a content digest: the
// specific primitive beneath it (Blake3 in the source system) is out of
// scope, so this is the swappable contract the rest of the event store
// depends on rather than a concrete algorithm choice.
type Digester interface {
	// Digest returns the content digest of canonical, rendered as the text
	// form stored in SAIDs and AIDs.
	Digest(canonical []byte) string
	// PlaceholderLen is the length, in characters, of the placeholder run
	// substituted into the SAID field before hashing.
	PlaceholderLen() int
}

// blake2b256Digester renders a blake2b-256 digest as a base58 string. It is
// the concrete default: any digest with a fixed output length and a stable
// text rendering satisfies the Digester contract equally well.
type blake2b256Digester struct{}

// NewDigester returns the default Digester used by the event store, the
// group engine's message-id hash, and the identity manager's next-key
// digests.
func NewDigester() Digester { return blake2b256Digester{} }

// saidLen is the fixed width of a rendered digest. Raw base58 of 32 bytes
// comes out 43 or 44 characters depending on magnitude; a SAID must always
// be the same width as its placeholder run or recomputation drifts, so
// shorter renderings are left-padded with '1' (the base58 zero digit).
const saidLen = 44

func (blake2b256Digester) Digest(canonical []byte) string {
	sum := blake2b.Sum256(canonical)
	s := base58.Encode(sum[:])
	for len(s) < saidLen {
		s = "1" + s
	}
	return s
}

// PlaceholderLen matches the fixed width Digest renders at.
func (blake2b256Digester) PlaceholderLen() int { return saidLen }

// placeholderChar is substituted PlaceholderLen() times into the SAID field
// prior to hashing.
const placeholderChar = '#'

// Placeholder returns a run of n placeholder characters.
func Placeholder(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = placeholderChar
	}
	return string(b)
}
