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
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// keyBundle is the plaintext structure sealed under keymanager/{aid}/bundle.
// It carries the raw private seeds for the current and next key, plus
// which algorithm they belong to, so unlockFromStore can reconstruct both
// KeyPairs without re-deriving them from the mnemonic.
type keyBundle struct {
	Alias       string  `json:"alias"`
	AID         string  `json:"aid"`
	KeyType     KeyType `json:"keyType"`
	CurrentSeed []byte  `json:"currentSeed"`
	NextSeed    []byte  `json:"nextSeed"`
	KSN         int     `json:"ksn"`
	LastEvtSaid string  `json:"lastEvtSaid"`
}

const nonceSize = 24

// sealBundle encrypts plaintext under a key derived from passphrase via
// HKDF-SHA256, using nacl/secretbox (XSalsa20-Poly1305) for authenticated
// encryption.
func sealBundle(passphrase string, plaintext []byte) ([]byte, error) {
	var key [32]byte
	if err := deriveKey(passphrase, key[:]); err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("identity: generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	return sealed, nil
}

// openBundle reverses sealBundle.
func openBundle(passphrase string, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("identity: sealed bundle too short")
	}
	var key [32]byte
	if err := deriveKey(passphrase, key[:]); err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &key)
	if !ok {
		return nil, ErrInvalidSignature
	}
	return plaintext, nil
}

// deriveKey stretches passphrase into out using HKDF-SHA256 with a fixed
// application-scoped info string, keeping raw passphrases out of the
// secretbox key directly.
func deriveKey(passphrase string, out []byte) error {
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("kerimesh/identity/bundle"))
	_, err := io.ReadFull(r, out)
	return err
}

// deriveSeed derives a labelled 32-byte seed from mnemonic bytes, used for
// the "current" and "next" key seeds newAccount needs.
func deriveSeed(mnemonic []byte, label string) ([]byte, error) {
	r := hkdf.New(sha256.New, mnemonic, nil, []byte("kerimesh/identity/seed/"+label))
	seed := make([]byte, 32)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, err
	}
	return seed, nil
}
