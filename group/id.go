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
	"time"

	"github.com/kerimesh/kerimesh/keri"
)

// messageIDTag distinguishes a group-message id from a SAID in logs and
// diagnostics. A short text prefix rather than a tag byte, since Digester
// already deals in text-rendered digests rather than raw bytes.
const messageIDTag = "m1:"

// computeMessageID is the engine's deterministic digest over the tuple
// (prevId, from, content, timestamp). Any two implementations sharing the
// same Digester compute the same id for the same input tuple.
func computeMessageID(dig keri.Digester, prevID, from, content string, timestamp time.Time) string {
	canonical := prevID + "\x00" + from + "\x00" + content + "\x00" + timestamp.UTC().Format(time.RFC3339Nano)
	full := dig.Digest([]byte(canonical))
	if len(full) > 32 {
		full = full[:32]
	}
	return messageIDTag + full
}
