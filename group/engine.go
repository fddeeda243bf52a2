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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kerimesh/kerimesh/identity"
	"github.com/kerimesh/kerimesh/internal/logger"
	"github.com/kerimesh/kerimesh/internal/metrics"
	"github.com/kerimesh/kerimesh/keri"
	"github.com/kerimesh/kerimesh/kerierr"
	"github.com/kerimesh/kerimesh/pkg/kv"
)

// Engine maintains per-group state and enforces the quorum-based discipline
// over the group's hash chain for one local identity, named Self.
type Engine struct {
	kvBackend kv.Backend
	dig       keri.Digester
	signers   *identity.Manager
	bus       Bus
	log       logger.Logger
	Self      string

	mu         sync.Mutex
	groupLocks map[string]*sync.Mutex

	onMessageCanonical func(groupID string, msg *GroupMessage)
}

// NewEngine constructs an Engine for the local identity self. onCanonical,
// when non-nil, is invoked every time a message transitions to canonical.
func NewEngine(backend kv.Backend, dig keri.Digester, signers *identity.Manager, bus Bus, self string, log logger.Logger, onCanonical func(string, *GroupMessage)) *Engine {
	return &Engine{
		kvBackend:          backend,
		dig:                dig,
		signers:            signers,
		bus:                bus,
		log:                log,
		Self:               self,
		groupLocks:         make(map[string]*sync.Mutex),
		onMessageCanonical: onCanonical,
	}
}

func (e *Engine) lockFor(groupID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.groupLocks[groupID]
	if !ok {
		l = &sync.Mutex{}
		e.groupLocks[groupID] = l
	}
	return l
}

// CreateGroup persists a new Group record with creatorAID as its sole
// initial member.
func (e *Engine) CreateGroup(ctx context.Context, name, creatorAID string, threshold float64, allowInvite bool) (*Group, error) {
	grp := &Group{
		GroupID:    uuid.NewString(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		CreatorAID: creatorAID,
		Members:    []string{creatorAID},
		Settings:   Settings{QuorumThreshold: threshold, AllowMemberInvite: allowInvite},
	}
	if err := e.putGroup(ctx, grp); err != nil {
		return nil, kerierr.New(kerierr.NotFound, "group.CreateGroup", err)
	}
	member := &GroupMember{AID: creatorAID, Role: RoleCreator, JoinedAt: grp.CreatedAt, VectorClock: VectorClock{}, LastOnlineAt: grp.CreatedAt, IsOnline: true}
	if err := e.putMember(ctx, grp.GroupID, member); err != nil {
		return nil, kerierr.New(kerierr.NotFound, "group.CreateGroup", err)
	}
	return grp, nil
}

func (e *Engine) putGroup(ctx context.Context, grp *Group) error {
	raw, err := json.Marshal(grp)
	if err != nil {
		return err
	}
	return e.kvBackend.Put(ctx, metadataKey(grp.GroupID), raw)
}

func (e *Engine) loadGroup(ctx context.Context, groupID string) (*Group, error) {
	raw, ok, err := e.kvBackend.Get(ctx, metadataKey(groupID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kerierr.New(kerierr.NotFound, "group.loadGroup", fmt.Errorf("group %s not found", groupID))
	}
	var grp Group
	if err := json.Unmarshal(raw, &grp); err != nil {
		return nil, err
	}
	return &grp, nil
}

func isMember(grp *Group, aid string) bool {
	for _, m := range grp.Members {
		if m == aid {
			return true
		}
	}
	return false
}

func (e *Engine) putMember(ctx context.Context, groupID string, m *GroupMember) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return e.kvBackend.Put(ctx, memberKey(groupID, m.AID), raw)
}

func (e *Engine) loadMember(ctx context.Context, groupID, aid string) (*GroupMember, error) {
	raw, ok, err := e.kvBackend.Get(ctx, memberKey(groupID, aid))
	if err != nil {
		return nil, err
	}
	if !ok {
		m := &GroupMember{AID: aid, VectorClock: VectorClock{}}
		return m, nil
	}
	var m GroupMember
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.VectorClock == nil {
		m.VectorClock = VectorClock{}
	}
	return &m, nil
}

func (e *Engine) putMessage(ctx context.Context, groupID string, msg *GroupMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.kvBackend.Put(ctx, messageKey(groupID, msg.ID), raw)
}

func (e *Engine) loadMessage(ctx context.Context, groupID, id string) (*GroupMessage, bool, error) {
	raw, ok, err := e.kvBackend.Get(ctx, messageKey(groupID, id))
	if err != nil || !ok {
		return nil, ok, err
	}
	var msg GroupMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false, err
	}
	return &msg, true, nil
}

func (e *Engine) loadHead(ctx context.Context, groupID string) (string, error) {
	raw, ok, err := e.kvBackend.Get(ctx, headKey(groupID))
	if err != nil || !ok {
		return "", err
	}
	var head string
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", err
	}
	return head, nil
}

func (e *Engine) storeHead(ctx context.Context, groupID, id string) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return e.kvBackend.Put(ctx, headKey(groupID), raw)
}

func (e *Engine) loadSeqCounter(ctx context.Context, groupID string) (int, error) {
	raw, ok, err := e.kvBackend.Get(ctx, seqKey(groupID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	var seq int
	if err := json.Unmarshal(raw, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (e *Engine) storeSeqCounter(ctx context.Context, groupID string, next int) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return e.kvBackend.Put(ctx, seqKey(groupID), raw)
}

func (e *Engine) loadLamport(ctx context.Context, groupID string) (int, error) {
	raw, ok, err := e.kvBackend.Get(ctx, lamportKey(groupID))
	if err != nil || !ok {
		return 0, err
	}
	var clock int
	if err := json.Unmarshal(raw, &clock); err != nil {
		return 0, err
	}
	return clock, nil
}

func (e *Engine) storeLamport(ctx context.Context, groupID string, clock int) error {
	raw, err := json.Marshal(clock)
	if err != nil {
		return err
	}
	return e.kvBackend.Put(ctx, lamportKey(groupID), raw)
}

// Send creates a message from self with content, persists it pending with
// self's own vote, and checks quorum (a single-member group reaches
// quorum immediately). The caller is responsible for broadcasting the
// returned message to the rest of the group via the bus.
//
// Errors: kerierr.NotMember if self is not in the group.
func (e *Engine) Send(ctx context.Context, groupID, content string) (*GroupMessage, error) {
	const op = "group.Send"

	lock := e.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	grp, err := e.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !isMember(grp, e.Self) {
		return nil, kerierr.New(kerierr.NotMember, op, nil)
	}

	prevID, err := e.loadHead(ctx, groupID)
	if err != nil {
		return nil, err
	}

	member, err := e.loadMember(ctx, groupID, e.Self)
	if err != nil {
		return nil, err
	}
	member.VectorClock[e.Self] = member.VectorClock[e.Self] + 1

	lamport, err := e.loadLamport(ctx, groupID)
	if err != nil {
		return nil, err
	}
	lamport++

	now := time.Now().UTC()
	id := computeMessageID(e.dig, prevID, e.Self, content, now)

	msg := &GroupMessage{
		ID:           id,
		GroupID:      groupID,
		From:         e.Self,
		PrevID:       prevID,
		Content:      content,
		Timestamp:    now,
		LamportClock: lamport,
		VectorClock:  member.VectorClock.Clone(),
		Votes:        map[string]bool{e.Self: true},
		Status:       StatusPending,
	}

	if err := e.putMessage(ctx, groupID, msg); err != nil {
		return nil, err
	}
	if err := e.putMember(ctx, groupID, member); err != nil {
		return nil, err
	}
	if err := e.storeLamport(ctx, groupID, lamport); err != nil {
		return nil, err
	}

	if err := e.checkQuorum(ctx, grp, msg); err != nil {
		return nil, err
	}

	metrics.GroupMessagesSent.Inc()
	e.log.Info("message sent", logger.String("groupId", groupID), logger.String("id", id))
	return msg, nil
}

// ReceiveMessage admits an incoming GroupMessage: validates membership,
// chain linkage, id, and duplication in that order, then merges clocks,
// records our own vote, checks quorum, and returns the outbound Vote for
// the caller to send back to the sender.
//
// Errors: kerierr.NotMember, kerierr.InvalidPrevId, kerierr.InvalidMessageHash,
// kerierr.DuplicateMessage.
func (e *Engine) ReceiveMessage(ctx context.Context, groupID string, incoming GroupMessage) (vote *Vote, err error) {
	const op = "group.ReceiveMessage"

	defer func() {
		result := "accepted"
		if err != nil {
			result = "rejected"
		}
		metrics.GroupMessagesReceived.WithLabelValues(result).Inc()
	}()

	lock := e.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	grp, err := e.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !isMember(grp, e.Self) {
		return nil, kerierr.New(kerierr.NotMember, op, nil)
	}
	if !isMember(grp, incoming.From) {
		return nil, kerierr.New(kerierr.NotMember, op, fmt.Errorf("sender %s is not a member", incoming.From))
	}

	if incoming.PrevID != "" {
		if _, ok, err := e.loadMessage(ctx, groupID, incoming.PrevID); err != nil {
			return nil, err
		} else if !ok {
			return nil, kerierr.New(kerierr.InvalidPrevId, op, nil)
		}
	}

	wantID := computeMessageID(e.dig, incoming.PrevID, incoming.From, incoming.Content, incoming.Timestamp)
	if wantID != incoming.ID {
		return nil, kerierr.New(kerierr.InvalidMessageHash, op, nil)
	}

	if _, ok, err := e.loadMessage(ctx, groupID, incoming.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, kerierr.New(kerierr.DuplicateMessage, op, nil)
	}

	member, err := e.loadMember(ctx, groupID, e.Self)
	if err != nil {
		return nil, err
	}
	member.VectorClock = member.VectorClock.MergeMax(incoming.VectorClock)
	member.VectorClock[e.Self] = member.VectorClock[e.Self] + 1

	lamport, err := e.loadLamport(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if incoming.LamportClock > lamport {
		lamport = incoming.LamportClock
	}
	lamport++

	if incoming.Votes == nil {
		incoming.Votes = map[string]bool{}
	}
	incoming.Votes[e.Self] = true

	if err := e.putMessage(ctx, groupID, &incoming); err != nil {
		return nil, err
	}
	if err := e.putMember(ctx, groupID, member); err != nil {
		return nil, err
	}
	if err := e.storeLamport(ctx, groupID, lamport); err != nil {
		return nil, err
	}

	if err := e.checkQuorum(ctx, grp, &incoming); err != nil {
		return nil, err
	}

	return &Vote{
		GroupID:     groupID,
		MessageID:   incoming.ID,
		From:        e.Self,
		Vote:        true,
		VectorClock: member.VectorClock.Clone(),
	}, nil
}

// ReceiveVote records an inbound vote. Votes from non-members are silently
// dropped rather than surfaced as errors.
func (e *Engine) ReceiveVote(ctx context.Context, groupID string, vote Vote) error {
	lock := e.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	grp, err := e.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !isMember(grp, vote.From) {
		e.log.Debug("vote from non-member rejected", logger.String("groupId", groupID), logger.String("from", vote.From))
		return nil
	}

	msg, ok, err := e.loadMessage(ctx, groupID, vote.MessageID)
	if err != nil {
		return err
	}
	if !ok {
		return kerierr.New(kerierr.NotFound, "group.ReceiveVote", fmt.Errorf("message %s not found", vote.MessageID))
	}

	if msg.Votes == nil {
		msg.Votes = map[string]bool{}
	}
	msg.Votes[vote.From] = vote.Vote
	if err := e.putMessage(ctx, groupID, msg); err != nil {
		return err
	}

	return e.checkQuorum(ctx, grp, msg)
}

// checkQuorum re-evaluates msg's votes against the group's threshold. On
// quorum it gathers every contender for the same chain slot (all messages
// sharing msg's prevId, whatever their status) and runs conflict
// resolution over them. A late quorum re-opens the slot: if the winner
// differs from a previously canonical sibling still at the chain head,
// the sibling is demoted and the winner takes its seq, so every replica
// converges on the same canonical chain no matter the order votes
// arrived in. A slot whose canonical holder already has a canonical
// successor is settled for good — the chain has grown past it and a late
// contender simply loses.
func (e *Engine) checkQuorum(ctx context.Context, grp *Group, msg *GroupMessage) error {
	if msg.Status == StatusCanonical {
		return nil
	}
	if !hasQuorum(msg.Votes, len(grp.Members), grp.Settings.QuorumThreshold) {
		metrics.GroupQuorumChecks.WithLabelValues("pending").Inc()
		return nil
	}
	metrics.GroupQuorumChecks.WithLabelValues("reached").Inc()

	siblings, err := e.findSiblings(ctx, grp.GroupID, msg)
	if err != nil {
		return err
	}

	var canonical *GroupMessage
	for _, sib := range siblings {
		if sib.Status == StatusCanonical {
			canonical = sib
		}
	}

	if canonical != nil {
		head, err := e.loadHead(ctx, grp.GroupID)
		if err != nil {
			return err
		}
		if head != canonical.ID {
			// The chain has grown past this slot; it cannot be re-opened.
			return e.discard(ctx, grp.GroupID, msg)
		}
	}

	if len(siblings) == 0 {
		if err := e.canonicalize(ctx, grp, msg); err != nil {
			return err
		}
		metrics.GroupMessagesCanonicalized.WithLabelValues("false").Inc()
		return nil
	}

	all := append([]*GroupMessage{msg}, siblings...)
	ordered := resolveConflict(all, func(m *GroupMessage) bool {
		return hasQuorum(m.Votes, len(grp.Members), grp.Settings.QuorumThreshold)
	})
	winner := ordered[0]

	for _, loser := range ordered[1:] {
		if loser.Status == StatusCanonical || loser.Status == StatusDiscarded {
			continue
		}
		if err := e.discard(ctx, grp.GroupID, loser); err != nil {
			return err
		}
	}

	if canonical != nil && winner.ID == canonical.ID {
		// The slot already holds the winner; msg was discarded above (or
		// arrived already discarded).
		return nil
	}

	if canonical != nil {
		// A late quorum elected a different winner for the slot: demote the
		// sitting canonical and promote the winner into its seq.
		slot := canonical.Seq
		if err := e.discard(ctx, grp.GroupID, canonical); err != nil {
			return err
		}
		if err := e.canonicalizeAt(ctx, grp, winner, slot); err != nil {
			return err
		}
	} else {
		if err := e.canonicalize(ctx, grp, winner); err != nil {
			return err
		}
	}
	metrics.GroupMessagesCanonicalized.WithLabelValues("true").Inc()
	return nil
}

// findSiblings lists every other message in groupID sharing msg's prevId,
// regardless of status.
func (e *Engine) findSiblings(ctx context.Context, groupID string, msg *GroupMessage) ([]*GroupMessage, error) {
	entries, err := e.kvBackend.List(ctx, messagesPrefix(groupID), kv.ListOptions{})
	if err != nil {
		return nil, err
	}
	var out []*GroupMessage
	for _, entry := range entries {
		var candidate GroupMessage
		if err := json.Unmarshal(entry.Value, &candidate); err != nil {
			return nil, err
		}
		if candidate.ID == msg.ID || candidate.PrevID != msg.PrevID {
			continue
		}
		out = append(out, &candidate)
	}
	return out, nil
}

func (e *Engine) discard(ctx context.Context, groupID string, msg *GroupMessage) error {
	if msg.Status == StatusDiscarded {
		return nil
	}
	msg.Status = StatusDiscarded
	msg.Seq = 0
	if err := e.putMessage(ctx, groupID, msg); err != nil {
		return err
	}
	metrics.GroupMessagesDiscarded.Inc()
	return nil
}

func (e *Engine) canonicalize(ctx context.Context, grp *Group, msg *GroupMessage) error {
	seq, err := e.loadSeqCounter(ctx, grp.GroupID)
	if err != nil {
		return err
	}
	if err := e.storeSeqCounter(ctx, grp.GroupID, seq+1); err != nil {
		return err
	}
	return e.canonicalizeAt(ctx, grp, msg, seq)
}

// canonicalizeAt installs msg as the canonical holder of a specific seq,
// advancing the group HEAD to it. The seq counter is not touched: either
// the caller just allocated seq from it, or msg is being promoted into a
// demoted sibling's slot.
func (e *Engine) canonicalizeAt(ctx context.Context, grp *Group, msg *GroupMessage, seq int) error {
	msg.Seq = seq
	msg.Status = StatusCanonical

	if err := e.putMessage(ctx, grp.GroupID, msg); err != nil {
		return err
	}
	if err := e.storeHead(ctx, grp.GroupID, msg.ID); err != nil {
		return err
	}

	e.log.Info("message canonicalised", logger.String("groupId", grp.GroupID), logger.String("id", msg.ID), logger.Int("seq", seq))
	if e.onMessageCanonical != nil {
		e.onMessageCanonical(grp.GroupID, msg)
	}
	return nil
}
