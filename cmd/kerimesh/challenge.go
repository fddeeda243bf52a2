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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	kchallenge "github.com/kerimesh/kerimesh/challenge"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Issue and verify signed challenges for privileged operations",
	Long: `Issue a single-use, purpose-bound challenge for an AID and verify a
caller's signatures over it. Key states are registered by "identity create"
and "identity rotate"; this command has no subcommand that registers one.`,
}

var (
	challengeAID      string
	challengePurpose  string
	challengeArgsHash string
	challengeID       string
	challengeSigsHex  []string
)

var challengeIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a challenge",
	RunE:  runChallengeIssue,
}

var challengeVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify signatures over a previously issued challenge",
	RunE:  runChallengeVerify,
}

var challengePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete consumed and expired challenges",
	RunE:  runChallengePurge,
}

func init() {
	rootCmd.AddCommand(challengeCmd)
	challengeCmd.AddCommand(challengeIssueCmd, challengeVerifyCmd, challengePurgeCmd)

	challengeIssueCmd.Flags().StringVar(&challengeAID, "aid", "", "target AID (required)")
	challengeIssueCmd.Flags().StringVar(&challengePurpose, "purpose", "send", "purpose: send, receive, or register")
	challengeIssueCmd.Flags().StringVar(&challengeArgsHash, "args-hash", "", "hash binding the challenge to a specific operation's arguments")
	_ = challengeIssueCmd.MarkFlagRequired("aid")

	challengeVerifyCmd.Flags().StringVar(&challengeID, "challenge-id", "", "challenge id returned by issue (required)")
	challengeVerifyCmd.Flags().StringVar(&challengePurpose, "purpose", "send", "purpose: send, receive, or register")
	challengeVerifyCmd.Flags().StringVar(&challengeArgsHash, "args-hash", "", "must match the hash the challenge was issued with")
	challengeVerifyCmd.Flags().IntVar(&challengeKSN, "ksn", 0, "key sequence number the signatures were produced under")
	challengeVerifyCmd.Flags().StringSliceVar(&challengeSigsHex, "sig", nil, "hex-encoded signature, one per --sig flag, ordered to match the registered keys")
	_ = challengeVerifyCmd.MarkFlagRequired("challenge-id")
}

var challengeKSN int

func runChallengeIssue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	res, err := n.Auth.IssueChallenge(ctx, kchallenge.IssueRequest{
		AID:      challengeAID,
		Purpose:  kchallenge.Purpose(challengePurpose),
		ArgsHash: challengeArgsHash,
	})
	if err != nil {
		return fmt.Errorf("challenge issue: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}

func runChallengeVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	sigs := make([][]byte, len(challengeSigsHex))
	for i, s := range challengeSigsHex {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("challenge verify: decoding --sig %d: %w", i, err)
		}
		sigs[i] = raw
	}

	err = n.Auth.Verify(ctx, kchallenge.VerifyRequest{
		ChallengeID: challengeID,
		Sigs:        sigs,
		KSN:         challengeKSN,
		Purpose:     kchallenge.Purpose(challengePurpose),
		ArgsHash:    challengeArgsHash,
	})
	if err != nil {
		return fmt.Errorf("challenge verify: %w", err)
	}
	fmt.Println("verified")
	return nil
}

func runChallengePurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	removed, err := n.Auth.Purge(ctx)
	if err != nil {
		return fmt.Errorf("challenge purge: %w", err)
	}
	fmt.Printf("purged %d challenge(s)\n", removed)
	return nil
}
