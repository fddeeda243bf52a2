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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kerimesh/kerimesh/group"
	"github.com/kerimesh/kerimesh/node"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage group-chat membership and messages",
	Long: `Create groups, send and receive quorum-gated messages, and run the
pull-based sync protocol. This CLI never owns a wire transport: "receive"
and "sync-respond" read a peer-supplied JSON group message or sync request
from stdin or --in, for a calling process to pipe over whatever transport
it chooses.`,
}

var (
	groupSelf        string
	groupName        string
	groupThreshold   float64
	groupAllowInvite bool
	groupID          string
	groupContent     string
	groupInFile      string
)

var groupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new group",
	RunE:  runGroupCreate,
}

var groupSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a group",
	RunE:  runGroupSend,
}

var groupReceiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Admit a peer-delivered message, printing the resulting vote",
	RunE:  runGroupReceive,
}

var groupSyncRequestCmd = &cobra.Command{
	Use:   "sync-request",
	Short: "Build a sync request describing this node's view of a group",
	RunE:  runGroupSyncRequest,
}

var groupSyncRespondCmd = &cobra.Command{
	Use:   "sync-respond",
	Short: "Answer a peer-supplied sync request read from stdin or --in",
	RunE:  runGroupSyncRespond,
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupCreateCmd, groupSendCmd, groupReceiveCmd, groupSyncRequestCmd, groupSyncRespondCmd)

	groupCmd.PersistentFlags().StringVar(&groupSelf, "self", "", "this node's AID (required)")
	_ = groupCmd.MarkPersistentFlagRequired("self")

	groupCreateCmd.Flags().StringVar(&groupName, "name", "", "group name (required)")
	groupCreateCmd.Flags().Float64Var(&groupThreshold, "threshold", 0.5, "quorum threshold in (0,1]")
	groupCreateCmd.Flags().BoolVar(&groupAllowInvite, "allow-invite", true, "allow members to invite new members")
	_ = groupCreateCmd.MarkFlagRequired("name")

	groupSendCmd.Flags().StringVar(&groupID, "group", "", "group id (required)")
	groupSendCmd.Flags().StringVar(&groupContent, "content", "", "message content (required)")
	_ = groupSendCmd.MarkFlagRequired("group")
	_ = groupSendCmd.MarkFlagRequired("content")

	groupReceiveCmd.Flags().StringVar(&groupID, "group", "", "group id (required)")
	groupReceiveCmd.Flags().StringVar(&groupInFile, "in", "", "path to a JSON-encoded GroupMessage (default: stdin)")
	_ = groupReceiveCmd.MarkFlagRequired("group")

	groupSyncRequestCmd.Flags().StringVar(&groupID, "group", "", "group id (required)")
	_ = groupSyncRequestCmd.MarkFlagRequired("group")

	groupSyncRespondCmd.Flags().StringVar(&groupInFile, "in", "", "path to a JSON-encoded SyncRequest (default: stdin)")
}

func openGroupNode(ctx context.Context) (*node.Node, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	backend, err := cfg.OpenBackend(ctx)
	if err != nil {
		return nil, err
	}
	log := newConfiguredLogger(cfg)

	return node.New(node.Options{
		Backend: backend,
		Log:     log,
		Bus:     noopBus{},
		Self:    groupSelf,
	}), nil
}

func runGroupCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openGroupNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	grp, err := n.Group.CreateGroup(ctx, groupName, groupSelf, groupThreshold, groupAllowInvite)
	if err != nil {
		return fmt.Errorf("group create: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(grp)
}

func runGroupSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openGroupNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	msg, err := n.Group.Send(ctx, groupID, groupContent)
	if err != nil {
		return fmt.Errorf("group send: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(msg)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runGroupReceive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openGroupNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	raw, err := readInput(groupInFile)
	if err != nil {
		return fmt.Errorf("group receive: reading input: %w", err)
	}
	var incoming group.GroupMessage
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return fmt.Errorf("group receive: %w", err)
	}

	vote, err := n.Group.ReceiveMessage(ctx, groupID, incoming)
	if err != nil {
		return fmt.Errorf("group receive: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(vote)
}

func runGroupSyncRequest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openGroupNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	req, err := n.Group.CreateSyncRequest(ctx, groupID)
	if err != nil {
		return fmt.Errorf("group sync-request: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(req)
}

func runGroupSyncRespond(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openGroupNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	raw, err := readInput(groupInFile)
	if err != nil {
		return fmt.Errorf("group sync-respond: reading input: %w", err)
	}
	var req group.SyncRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("group sync-respond: %w", err)
	}

	resp, err := n.Group.CreateSyncResponse(ctx, req)
	if err != nil {
		return fmt.Errorf("group sync-respond: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}

// noopBus is used by the CLI, which never owns a live transport: every
// group subcommand operates on one local engine and leaves delivery to
// whatever process is piping JSON between invocations.
type noopBus struct{}

func (noopBus) Send(ctx context.Context, recipientAID string, env group.Envelope) error { return nil }
func (noopBus) OnReceive(func(senderAID string, env group.Envelope))                    {}
