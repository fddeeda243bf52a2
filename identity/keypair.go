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

// Package identity holds per-AID key material and hands out Signer
// capabilities bound to the current signing key. It never hands out
// private bytes: callers get a closure that signs, not the key itself.
package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyType names the signing algorithm behind an AID's keys. Only the two
// types the AID signing layer needs are supported; RSA, X25519 and JWK
// export are not signing-key algorithms and have no place here.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeSecp256k1 KeyType = "Secp256k1"
)

// KeyPair is a generated signing key, private half included. It never
// leaves this package: the Manager converts one into a Signer before
// returning it to a caller.
type KeyPair interface {
	Type() KeyType
	PublicKeyBytes() []byte
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
}

type ed25519KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// GenerateEd25519KeyPair creates a fresh random Ed25519 key pair.
func GenerateEd25519KeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ed25519KeyPair{priv: priv, pub: pub}, nil
}

// Ed25519KeyPairFromSeed derives a deterministic key pair from a 32-byte
// seed, used when deriving "current"/"next" keys from a mnemonic.
func Ed25519KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &ed25519KeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (kp *ed25519KeyPair) Type() KeyType          { return KeyTypeEd25519 }
func (kp *ed25519KeyPair) PublicKeyBytes() []byte { return []byte(kp.pub) }

func (kp *ed25519KeyPair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(kp.priv, message), nil
}

func (kp *ed25519KeyPair) Verify(message, signature []byte) error {
	if !ed25519.Verify(kp.pub, message, signature) {
		return ErrInvalidSignature
	}
	return nil
}

type secp256k1KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// GenerateSecp256k1KeyPair creates a fresh random secp256k1 key pair.
func GenerateSecp256k1KeyPair() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &secp256k1KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// Secp256k1KeyPairFromSeed derives a deterministic key pair from a 32-byte
// seed.
func Secp256k1KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("identity: secp256k1 seed must be 32 bytes")
	}
	priv := secp256k1.PrivKeyFromBytes(seed)
	return &secp256k1KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

func (kp *secp256k1KeyPair) Type() KeyType { return KeyTypeSecp256k1 }

func (kp *secp256k1KeyPair) PublicKeyBytes() []byte {
	return kp.pub.SerializeCompressed()
}

func (kp *secp256k1KeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, kp.priv.ToECDSA(), hash[:])
	if err != nil {
		return nil, err
	}
	return serializeSignature(r, s), nil
}

func (kp *secp256k1KeyPair) Verify(message, signature []byte) error {
	hash := sha256.Sum256(message)
	r, s, err := deserializeSignature(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !ecdsa.Verify(kp.pub.ToECDSA(), hash[:], r, s) {
		return ErrInvalidSignature
	}
	return nil
}

func serializeSignature(r, s *big.Int) []byte {
	rBytes, sBytes := r.Bytes(), s.Bytes()
	sig := make([]byte, 64)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig
}

func deserializeSignature(data []byte) (*big.Int, *big.Int, error) {
	if len(data) != 64 {
		return nil, nil, ErrInvalidSignature
	}
	return new(big.Int).SetBytes(data[:32]), new(big.Int).SetBytes(data[32:]), nil
}

// VerifyWithPublicKey verifies signature against message using a raw public
// key of the given type, without needing a live KeyPair. The challenge
// authenticator uses this: it only ever sees public material.
func VerifyWithPublicKey(kind KeyType, pubKey, message, signature []byte) error {
	switch kind {
	case KeyTypeEd25519:
		if len(pubKey) != ed25519.PublicKeySize {
			return ErrInvalidSignature
		}
		if !ed25519.Verify(ed25519.PublicKey(pubKey), message, signature) {
			return ErrInvalidSignature
		}
		return nil
	case KeyTypeSecp256k1:
		pub, err := secp256k1.ParsePubKey(pubKey)
		if err != nil {
			return ErrInvalidSignature
		}
		hash := sha256.Sum256(message)
		r, s, err := deserializeSignature(signature)
		if err != nil {
			return ErrInvalidSignature
		}
		if !ecdsa.Verify(pub.ToECDSA(), hash[:], r, s) {
			return ErrInvalidSignature
		}
		return nil
	default:
		return fmt.Errorf("identity: unsupported key type %q", kind)
	}
}
