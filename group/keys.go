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

import "fmt"

// These keys match the external-interfaces KV layout table exactly: group
// records are plain JSON blobs under groups/{groupId}/, not structured
// keys — the table names no content-kind or event-kind suffix for them.

func metadataKey(groupID string) string { return fmt.Sprintf("groups/%s/metadata", groupID) }
func messageKey(groupID, id string) string {
	return fmt.Sprintf("groups/%s/messages/%s", groupID, id)
}
func headKey(groupID string) string        { return fmt.Sprintf("groups/%s/HEAD", groupID) }
func seqKey(groupID string) string         { return fmt.Sprintf("groups/%s/seq", groupID) }
func lamportKey(groupID string) string     { return fmt.Sprintf("groups/%s/lamportClock", groupID) }
func memberKey(groupID, aid string) string { return fmt.Sprintf("groups/%s/members/%s", groupID, aid) }
func messagesPrefix(groupID string) string { return fmt.Sprintf("groups/%s/messages/", groupID) }
