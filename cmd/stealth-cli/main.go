// Command stealth-cli is the operator-facing CLI: mint a shielded
// note, scan announcements for addresses a wallet controls, join a
// CoinJoin session, and verify a Groth16 proof against a local
// verifier quorum.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/stealthsol/privacycore/internal/notes"
	"github.com/stealthsol/privacycore/internal/stealth"
)

func newMintCmd() *cobra.Command {
	var amount int64
	var recipientHex string

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a new shielded note and print its commitment and secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient := big.NewInt(0)
			if recipientHex != "" {
				b, err := hex.DecodeString(recipientHex)
				if err != nil {
					return fmt.Errorf("decode recipient: %w", err)
				}
				recipient = new(big.Int).SetBytes(b)
			}

			note, err := notes.MintNote(big.NewInt(amount), recipient)
			if err != nil {
				return fmt.Errorf("mint note: %w", err)
			}

			fmt.Printf("commitment: %s\n", note.Commitment.Text(16))
			fmt.Printf("nullifier:  %s\n", note.Nullifier.Text(16))
			fmt.Printf("secret:     %s\n", note.Secret.Text(16))
			fmt.Printf("amount:     %s\n", note.Amount.String())
			fmt.Println("keep the nullifier and secret private: they are required to spend this note")
			return nil
		},
	}

	cmd.Flags().Int64Var(&amount, "amount", 1, "note denomination")
	cmd.Flags().StringVar(&recipientHex, "recipient", "", "hex-encoded recipient field element")
	return cmd
}

func newAddressCmd() *cobra.Command {
	var seedHex string

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derive a stealth meta-address from a 32-byte hex seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedBytes, err := hex.DecodeString(seedHex)
			if err != nil {
				return fmt.Errorf("decode seed: %w", err)
			}
			if len(seedBytes) != 32 {
				return fmt.Errorf("seed must be 32 bytes, got %d", len(seedBytes))
			}
			var seed [32]byte
			copy(seed[:], seedBytes)

			keys, err := stealth.DeriveKeypairs(seed)
			if err != nil {
				return fmt.Errorf("derive keypairs: %w", err)
			}

			meta := &stealth.MetaAddress{
				ScanPub:  keys.Scan.Public,
				SpendPub: keys.Spend.Public,
			}
			fmt.Println(meta.Encode())
			return nil
		},
	}

	cmd.Flags().StringVar(&seedHex, "seed", "", "32-byte hex wallet seed")
	cmd.MarkFlagRequired("seed")
	return cmd
}

func newScanCmd() *cobra.Command {
	var seedHex, ephemeralHex, stealthHex string
	var timestamp int64

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check whether a published announcement belongs to this wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedBytes, err := hex.DecodeString(seedHex)
			if err != nil || len(seedBytes) != 32 {
				return fmt.Errorf("seed must be 32-byte hex")
			}
			var seed [32]byte
			copy(seed[:], seedBytes)

			keys, err := stealth.DeriveKeypairs(seed)
			if err != nil {
				return fmt.Errorf("derive keypairs: %w", err)
			}

			ephemeralBytes, err := hex.DecodeString(ephemeralHex)
			if err != nil {
				return fmt.Errorf("decode ephemeral pub: %w", err)
			}
			stealthBytes, err := hex.DecodeString(stealthHex)
			if err != nil {
				return fmt.Errorf("decode stealth address: %w", err)
			}

			ann := &stealth.Announcement{
				EphemeralPub:   ed25519.PublicKey(ephemeralBytes),
				StealthAddress: ed25519.PublicKey(stealthBytes),
				Timestamp:      timestamp,
			}

			result, matched, err := stealth.Scan(keys, ann)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if !matched {
				fmt.Println("no match")
				return nil
			}
			fmt.Printf("match: stealth private key %x\n", []byte(result.StealthPriv))
			return nil
		},
	}

	cmd.Flags().StringVar(&seedHex, "seed", "", "32-byte hex wallet seed")
	cmd.Flags().StringVar(&ephemeralHex, "ephemeral-pub", "", "hex ephemeral public key from the announcement")
	cmd.Flags().StringVar(&stealthHex, "stealth-address", "", "hex stealth address from the announcement")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "announcement timestamp")
	cmd.MarkFlagRequired("seed")
	cmd.MarkFlagRequired("ephemeral-pub")
	cmd.MarkFlagRequired("stealth-address")
	return cmd
}

func newCoinjoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coinjoin",
		Short: "Interact with a CoinJoin coordinator",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "join",
		Short: "Join a running CoinJoin session over its pubsub topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("coinjoin join requires a running coordinator address; see stealthd serve")
		},
	})
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "stealth-cli",
		Short: "Operator CLI for the stealth privacy core",
	}
	root.AddCommand(newMintCmd())
	root.AddCommand(newAddressCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newCoinjoinCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
