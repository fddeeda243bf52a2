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

// Package challenge gates a privileged operation (message send, receive,
// account registration) on proof that the caller controls the signing key
// currently registered for an AID. Challenges are single-use and
// purpose-bound: issuing one for "send" never verifies against "receive".
package challenge

import (
	"time"

	"github.com/kerimesh/kerimesh/identity"
)

// Purpose names what a Challenge authorises. The set is open-ended;
// callers may define their own values, this package only compares them
// for equality.
type Purpose string

const (
	PurposeSend     Purpose = "send"
	PurposeReceive  Purpose = "receive"
	PurposeRegister Purpose = "register"
)

// Payload is the signed object a caller proves possession of the signing
// key over. Field order here is the struct's declaration order, but what
// actually gets signed is the canonical form produced by canonicalJSON,
// not this struct's default json.Marshal output.
type Payload struct {
	Nonce    string  `json:"nonce"`
	AID      string  `json:"aid"`
	Purpose  Purpose `json:"purpose"`
	ArgsHash string  `json:"argsHash"`
	Iat      int64   `json:"iat"`
	Exp      int64   `json:"exp"`
}

// Challenge is the stored record at challenges/{challengeId}.
type Challenge struct {
	ChallengeID string    `json:"challengeId"`
	AID         string    `json:"aid"`
	Purpose     Purpose   `json:"purpose"`
	ArgsHash    string    `json:"argsHash"`
	Nonce       string    `json:"nonce"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Consumed    bool      `json:"consumed"`
}

// KeyStateRecord is the per-AID snapshot the identity owner publishes
// through Authenticator.RegisterKeyState (package node does so on identity
// creation and rotation), read here to verify challenge signatures. It is
// stored at keystate/{AID}; this package never writes the AID's own KEL
// keys, only this derived snapshot.
type KeyStateRecord struct {
	AID         string           `json:"aid"`
	KSN         int              `json:"ksn"`
	KeyType     identity.KeyType `json:"keyType"`
	CurrentKeys []string         `json:"currentKeys"` // base58, same encoding identity.Manager uses
	Threshold   int              `json:"threshold"`
	LastEvtSaid string           `json:"lastEvtSaid"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// IssueRequest is the input to Authenticator.IssueChallenge.
type IssueRequest struct {
	AID      string
	Purpose  Purpose
	ArgsHash string
}

// IssueResult is returned by IssueChallenge: the stored challenge's id and
// the exact payload the caller must have their signer sign.
type IssueResult struct {
	ChallengeID string
	Payload     Payload
}

// VerifyRequest is the input to Authenticator.Verify.
type VerifyRequest struct {
	ChallengeID string
	// Sigs is indexed against the registered KeyStateRecord's CurrentKeys:
	// Sigs[i] is checked against CurrentKeys[i]. A caller possessing fewer
	// keys than CurrentKeys simply omits the indices it cannot sign for by
	// passing a nil entry.
	Sigs     [][]byte
	KSN      int
	Purpose  Purpose
	ArgsHash string
}
