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
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/kerimesh/kerimesh/identity"
	"github.com/kerimesh/kerimesh/node"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage KERI autonomous identifiers",
	Long: `Manage KERI autonomous identifiers (AIDs) and their key event logs.

SUBCOMMANDS:
  create   Mint a new AID from a mnemonic
  rotate   Rotate an AID's signing key
  sign     Sign a message with an AID's current key`,
}

var (
	identityAlias      string
	identityMnemonic   string
	identityPassphrase string
	identityKeyType    string
)

var identityCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a new AID",
	Long: `Derive current and next signing keys from a mnemonic, commit the
inception event, and register the resulting key state with the challenge
authenticator.`,
	Example: `  kerimesh identity create --alias alice --mnemonic "correct horse battery staple enough entropy" --passphrase hunter2`,
	RunE:    runIdentityCreate,
}

var identityRotateCmd = &cobra.Command{
	Use:   "rotate <aid>",
	Short: "Rotate an AID's signing key",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityRotate,
}

var identitySignCmd = &cobra.Command{
	Use:   "sign <aid> <message>",
	Short: "Sign message with the AID's current key",
	Args:  cobra.ExactArgs(2),
	RunE:  runIdentitySign,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityCreateCmd, identityRotateCmd, identitySignCmd)

	identityCreateCmd.Flags().StringVar(&identityAlias, "alias", "", "human-readable alias (required)")
	identityCreateCmd.Flags().StringVar(&identityMnemonic, "mnemonic", "", "seed mnemonic, at least 16 bytes (required)")
	identityCreateCmd.Flags().StringVar(&identityPassphrase, "passphrase", "", "passphrase to seal the key bundle under (required)")
	identityCreateCmd.Flags().StringVar(&identityKeyType, "key-type", "Ed25519", "key type: Ed25519 or Secp256k1")
	_ = identityCreateCmd.MarkFlagRequired("alias")
	_ = identityCreateCmd.MarkFlagRequired("mnemonic")
	_ = identityCreateCmd.MarkFlagRequired("passphrase")

	identityRotateCmd.Flags().StringVar(&identityMnemonic, "mnemonic", "", "new next-key mnemonic (random if omitted)")
	identityRotateCmd.Flags().StringVar(&identityPassphrase, "passphrase", "", "passphrase the key bundle was sealed under (required)")
	_ = identityRotateCmd.MarkFlagRequired("passphrase")

	identitySignCmd.Flags().StringVar(&identityPassphrase, "passphrase", "", "passphrase the key bundle was sealed under (required)")
	_ = identitySignCmd.MarkFlagRequired("passphrase")
}

// unlockAID opens aid's sealed key bundle into the node's in-memory ring;
// every fresh CLI process starts locked.
func unlockAID(ctx context.Context, n *node.Node, aid string) error {
	ok, err := n.Keys.UnlockFromStore(ctx, aid, identityPassphrase)
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", aid, err)
	}
	if !ok {
		return fmt.Errorf("unlocking %s: no key bundle stored", aid)
	}
	return nil
}

func runIdentityCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	kt := identity.KeyTypeEd25519
	if identityKeyType == "Secp256k1" {
		kt = identity.KeyTypeSecp256k1
	}

	aid, err := n.CreateIdentity(ctx, identityAlias, []byte(identityMnemonic), identityPassphrase, kt)
	if err != nil {
		return fmt.Errorf("identity create: %w", err)
	}

	fmt.Printf("aid: %s\n", aid)
	return nil
}

func runIdentityRotate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	var mnemonic []byte
	if identityMnemonic != "" {
		mnemonic = []byte(identityMnemonic)
	}

	if err := unlockAID(ctx, n, args[0]); err != nil {
		return fmt.Errorf("identity rotate: %w", err)
	}
	ev, err := n.RotateIdentity(ctx, args[0], mnemonic)
	if err != nil {
		return fmt.Errorf("identity rotate: %w", err)
	}

	fmt.Printf("rotated aid=%s seq=%d said=%s\n", args[0], ev.S, ev.D)
	return nil
}

func runIdentitySign(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	aid, message := args[0], args[1]
	if err := unlockAID(ctx, n, aid); err != nil {
		return fmt.Errorf("identity sign: %w", err)
	}
	signer, err := n.Keys.GetSigner(ctx, aid)
	if err != nil {
		return fmt.Errorf("identity sign: %w", err)
	}

	sig, err := signer.Sign([]byte(message))
	if err != nil {
		return fmt.Errorf("identity sign: %w", err)
	}

	fmt.Printf("pubkey: %s\n", base58.Encode(signer.PublicKey()))
	fmt.Printf("signature: %s\n", hex.EncodeToString(sig))
	return nil
}
