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
	"context"
	"encoding/json"

	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

// CreateSyncRequest builds a SyncRequest describing self's current view of
// groupID, for a peer to diff against its own canonical log.
func (e *Engine) CreateSyncRequest(ctx context.Context, groupID string) (*SyncRequest, error) {
	lock := e.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	head, err := e.loadHead(ctx, groupID)
	if err != nil {
		return nil, err
	}
	member, err := e.loadMember(ctx, groupID, e.Self)
	if err != nil {
		return nil, err
	}

	return &SyncRequest{
		GroupID:  groupID,
		From:     e.Self,
		MyHead:   head,
		MyVector: member.VectorClock.Clone(),
	}, nil
}

// CreateSyncResponse answers req with every canonical message whose Seq is
// strictly greater than the sequence of the requester's HEAD, ordered
// ascending by Seq. A null (empty) requester HEAD means "return every
// canonical message."
func (e *Engine) CreateSyncResponse(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	lock := e.lockFor(req.GroupID)
	lock.Lock()
	defer lock.Unlock()

	afterSeq := 0
	if req.MyHead != "" {
		headMsg, ok, err := e.loadMessage(ctx, req.GroupID, req.MyHead)
		if err != nil {
			return nil, err
		}
		if ok {
			afterSeq = headMsg.Seq
		}
	}

	entries, err := e.kvBackend.List(ctx, messagesPrefix(req.GroupID), kv.ListOptions{})
	if err != nil {
		return nil, err
	}

	missing := make([]GroupMessage, 0)
	for _, entry := range entries {
		var msg GroupMessage
		if err := json.Unmarshal(entry.Value, &msg); err != nil {
			return nil, err
		}
		if msg.Status != StatusCanonical || msg.Seq <= afterSeq {
			continue
		}
		missing = append(missing, msg)
	}
	sortMessagesBySeq(missing)

	head, err := e.loadHead(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	member, err := e.loadMember(ctx, req.GroupID, e.Self)
	if err != nil {
		return nil, err
	}

	return &SyncResponse{
		GroupID:  req.GroupID,
		From:     e.Self,
		Messages: missing,
		MyHead:   head,
		MyVector: member.VectorClock.Clone(),
	}, nil
}

// ProcessSyncResponse admits every canonical message resp carries, in
// order, skipping ones we already hold. It does not re-run quorum (the
// messages are already canonical at the source) — it replays the chain
// directly, resuming from the last known point after a partition. A single
// malformed message is logged and skipped rather than aborting the
// remainder of the batch.
func (e *Engine) ProcessSyncResponse(ctx context.Context, resp SyncResponse) error {
	lock := e.lockFor(resp.GroupID)
	lock.Lock()
	defer lock.Unlock()

	grp, err := e.loadGroup(ctx, resp.GroupID)
	if err != nil {
		return err
	}

	for i := range resp.Messages {
		msg := resp.Messages[i]
		if _, ok, err := e.loadMessage(ctx, resp.GroupID, msg.ID); err != nil {
			e.log.Error("sync: failed checking existing message, skipping", logger.String("groupId", resp.GroupID), logger.String("id", msg.ID), logger.Error(err))
			continue
		} else if ok {
			continue
		}
		if err := e.admitSyncedMessage(ctx, grp, &msg); err != nil {
			e.log.Error("sync: failed admitting message, skipping", logger.String("groupId", resp.GroupID), logger.String("id", msg.ID), logger.Error(err))
			continue
		}
	}

	member, err := e.loadMember(ctx, resp.GroupID, e.Self)
	if err != nil {
		return err
	}
	member.VectorClock = member.VectorClock.MergeMax(resp.MyVector)
	return e.putMember(ctx, resp.GroupID, member)
}

// admitSyncedMessage writes a replayed canonical message directly,
// advancing the local head, sequence counter, lamport clock, and the
// receiving member's vector clock to match it.
func (e *Engine) admitSyncedMessage(ctx context.Context, grp *Group, msg *GroupMessage) error {
	if err := e.putMessage(ctx, grp.GroupID, msg); err != nil {
		return err
	}

	// resp.Messages arrives sorted by Seq ascending, so the last message
	// admitted always has the highest seq seen so far.
	if err := e.storeHead(ctx, grp.GroupID, msg.ID); err != nil {
		return err
	}

	seq, err := e.loadSeqCounter(ctx, grp.GroupID)
	if err != nil {
		return err
	}
	if msg.Seq+1 > seq {
		if err := e.storeSeqCounter(ctx, grp.GroupID, msg.Seq+1); err != nil {
			return err
		}
	}

	lamport, err := e.loadLamport(ctx, grp.GroupID)
	if err != nil {
		return err
	}
	if msg.LamportClock > lamport {
		if err := e.storeLamport(ctx, grp.GroupID, msg.LamportClock); err != nil {
			return err
		}
	}

	member, err := e.loadMember(ctx, grp.GroupID, e.Self)
	if err != nil {
		return err
	}
	member.VectorClock = member.VectorClock.MergeMax(msg.VectorClock)
	if err := e.putMember(ctx, grp.GroupID, member); err != nil {
		return err
	}

	e.log.Debug("synced message admitted", logger.String("groupId", grp.GroupID), logger.String("id", msg.ID))
	if e.onMessageCanonical != nil {
		e.onMessageCanonical(grp.GroupID, msg)
	}
	return nil
}

func sortMessagesBySeq(msgs []GroupMessage) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j-1].Seq > msgs[j].Seq; j-- {
			msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
		}
	}
}
