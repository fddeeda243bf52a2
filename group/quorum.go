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
	"math"
	"sort"
)

// hasQuorum implements the quorum rule exactly as specified: a strict
// majority when threshold is 0.5, otherwise a ceiling proportion.
func hasQuorum(votes map[string]bool, n int, threshold float64) bool {
	required := requiredVotes(n, threshold)
	count := 0
	for _, v := range votes {
		if v {
			count++
		}
	}
	return count >= required
}

func requiredVotes(n int, threshold float64) int {
	if threshold == 0.5 {
		return n/2 + 1
	}
	return int(math.Ceil(float64(n) * threshold))
}

// resolveConflict sorts a conflict set — every contender for the same
// chain slot, i.e. sharing a prevId — so that index 0 is the
// deterministic winner across every honest member: quorum status first
// (true before false), then Lamport clock ascending, then message id
// ascending.
func resolveConflict(msgs []*GroupMessage, quorumOf func(*GroupMessage) bool) []*GroupMessage {
	out := make([]*GroupMessage, len(msgs))
	copy(out, msgs)

	sort.SliceStable(out, func(i, j int) bool {
		qi, qj := quorumOf(out[i]), quorumOf(out[j])
		if qi != qj {
			return qi // true sorts before false
		}
		if out[i].LamportClock != out[j].LamportClock {
			return out[i].LamportClock < out[j].LamportClock
		}
		return out[i].ID < out[j].ID
	})
	return out
}
