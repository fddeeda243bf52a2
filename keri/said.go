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
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/kerimesh/kerimesh/kerierr"
)

// VerifySaid recomputes the digest of body with its `d` field replaced by a
// placeholder run of the same length as the stored value, and compares the
// two constant-time. It returns the recomputed digest so callers — the
// identity manager constructing a fresh event, or the challenge
// authenticator validating one it did not build — can reuse it without a
// second pass.
//
// body is canonicalised by marshalling the map directly: encoding/json
// always renders map keys in sorted order, which gives every implementation
// the same byte sequence for the same logical content regardless of the
// order fields were inserted in, satisfying the round-trip invariant
// without requiring a bespoke ordered-serialisation pass.
//
// Errors: returns kerierr.MalformedEvent if body has no string `d` field,
// kerierr.SaidMismatch if the recomputed digest disagrees with the stored
// SAID.
func VerifySaid(dig Digester, kind string, body map[string]any) (string, error) {
	op := fmt.Sprintf("VerifySaid(%s)", kind)

	said, ok := body["d"].(string)
	if !ok || said == "" {
		return "", kerierr.New(kerierr.MalformedEvent, op, fmt.Errorf("missing SAID field %q", "d"))
	}

	placeheld := make(map[string]any, len(body))
	for k, v := range body {
		placeheld[k] = v
	}
	placeheld["d"] = Placeholder(len(said))
	// A self-addressed identifier field (an icp's i, a vcp's registry id)
	// equals the SAID and was placeholdered at computation time too.
	if i, ok := body["i"].(string); ok && i == said {
		placeheld["i"] = Placeholder(len(said))
	}

	canonical, err := json.Marshal(placeheld)
	if err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, op, err)
	}

	digest := dig.Digest(canonical)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(said)) != 1 {
		return digest, kerierr.New(kerierr.SaidMismatch, op, nil)
	}
	return digest, nil
}

// ComputeSaid derives the SAID of body as it would be if body's `d` field
// were set to the result. Used when constructing a fresh event: the caller
// fills every field except `d` (leaving `i` empty too when the event is
// self-addressing), calls ComputeSaid, then sets `d` — and `i`, for a
// self-addressing event — to the result before persisting.
func ComputeSaid(dig Digester, body map[string]any) (string, error) {
	placeheld := make(map[string]any, len(body))
	for k, v := range body {
		placeheld[k] = v
	}
	placeheld["d"] = Placeholder(dig.PlaceholderLen())
	// An empty i marks a self-addressing event whose identifier will be set
	// to the computed SAID; placeholder it so verification, which sees
	// i == d, recomputes the same bytes.
	if i, ok := placeheld["i"].(string); ok && i == "" {
		placeheld["i"] = Placeholder(dig.PlaceholderLen())
	}

	canonical, err := json.Marshal(placeheld)
	if err != nil {
		return "", kerierr.New(kerierr.MalformedEvent, "ComputeSaid", err)
	}
	return dig.Digest(canonical), nil
}

// toBody round-trips v through JSON into a map[string]any, the shape
// VerifySaid and ComputeSaid operate on.
func toBody(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}
