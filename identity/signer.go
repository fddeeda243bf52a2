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

// Signer is a capability bound to one AID's current signing key. It
// exposes a public-key accessor and a sign method and nothing else: there
// is no way to reach the private key through a Signer value, honouring the
// rule that the key manager exclusively owns unlocked private-key
// material.
type Signer struct {
	aid     string
	keyType KeyType
	pubKey  []byte
	signFn  func([]byte) ([]byte, error)
}

// AID returns the identifier this Signer is bound to.
func (s *Signer) AID() string { return s.aid }

// KeyType returns the signing algorithm behind this Signer.
func (s *Signer) KeyType() KeyType { return s.keyType }

// PublicKey returns the raw public key bytes.
func (s *Signer) PublicKey() []byte { return s.pubKey }

// Sign signs message with the bound private key.
func (s *Signer) Sign(message []byte) ([]byte, error) { return s.signFn(message) }

func newSigner(aid string, kp KeyPair) *Signer {
	return &Signer{
		aid:     aid,
		keyType: kp.Type(),
		pubKey:  kp.PublicKeyBytes(),
		signFn:  kp.Sign,
	}
}
