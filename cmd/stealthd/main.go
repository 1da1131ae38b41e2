// Command stealthd runs the long-lived coordinator and verifier-quorum
// daemon: it hosts CoinJoin sessions and participates in threshold
// attestation of shielded-pool proofs. Configuration is loaded from
// YAML via viper; subcommands are wired through cobra.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stealthsol/privacycore/internal/blindsig"
	"github.com/stealthsol/privacycore/internal/circuits"
	"github.com/stealthsol/privacycore/internal/coinjoin"
	"github.com/stealthsol/privacycore/internal/merkle"
	"github.com/stealthsol/privacycore/internal/notes"
	"github.com/stealthsol/privacycore/internal/storage"
	"github.com/stealthsol/privacycore/internal/verifierquorum"
)

// daemonConfig is the YAML configuration surface of the daemon.
type daemonConfig struct {
	RSABits             int            `mapstructure:"rsaBits"`
	MillerRabinRounds   int            `mapstructure:"millerRabinIterations"`
	MerkleDepth         int            `mapstructure:"merkleDepth"`
	Denominations       []int64        `mapstructure:"denominations"`
	MinParticipants     int            `mapstructure:"minParticipants"`
	MaxParticipants     int            `mapstructure:"maxParticipants"`
	SessionTimeout      time.Duration  `mapstructure:"sessionTimeout"`
	ThresholdT          int            `mapstructure:"thresholdT"`
	ThresholdN          int            `mapstructure:"thresholdN"`
	AttestationValidity time.Duration  `mapstructure:"attestationValidityWindow"`
	ListenAddr          string         `mapstructure:"listenAddr"`
	Database            storage.Config `mapstructure:"database"`
}

// attestationRequest asks the verifier quorum daemon to verify and
// attest a Groth16 proof against its public inputs, returning the
// aggregated result on Reply.
type attestationRequest struct {
	Proof        *circuits.Proof
	PublicInputs interface{}
	Reply        chan<- attestationResult
}

type attestationResult struct {
	Attestation *verifierquorum.Attestation
	Err         error
}

// serveAttestations drains attestation requests one at a time until
// ctx is cancelled. A single worker is enough here: Verifier.Verify
// already parallelizes its own peer fan-out internally.
func serveAttestations(ctx context.Context, vq *verifierquorum.Verifier, requests <-chan attestationRequest, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			att, err := vq.Verify(ctx, req.Proof, req.PublicInputs)
			if err != nil {
				log.Warn().Err(err).Msg("attestation request failed")
			}
			req.Reply <- attestationResult{Attestation: att, Err: err}
		}
	}
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		RSABits:             blindsig.MinBits,
		MillerRabinRounds:   64,
		MerkleDepth:         20,
		Denominations:       []int64{1, 10, 100},
		MinParticipants:     5,
		MaxParticipants:     20,
		SessionTimeout:      2 * time.Minute,
		ThresholdT:          2,
		ThresholdN:          3,
		AttestationValidity: verifierquorum.DefaultValidityWindow,
		ListenAddr:          "/ip4/0.0.0.0/tcp/0",
		Database:            *storage.DefaultConfig(),
	}
}

func loadConfig(cfgFile string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CoinJoin coordinator and verifier-quorum attestation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "stealthd").Logger()

			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if cfg.RSABits < blindsig.MinBits {
				return fmt.Errorf("rsaBits %d below minimum %d", cfg.RSABits, blindsig.MinBits)
			}

			log.Info().
				Int("rsaBits", cfg.RSABits).
				Int("merkleDepth", cfg.MerkleDepth).
				Int("minParticipants", cfg.MinParticipants).
				Int("maxParticipants", cfg.MaxParticipants).
				Int("thresholdT", cfg.ThresholdT).
				Int("thresholdN", cfg.ThresholdN).
				Msg("starting stealthd")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			store, err := storage.NewPostgresStore(ctx, &cfg.Database)
			if err != nil {
				return fmt.Errorf("connect persistence layer: %w", err)
			}
			defer store.Close()

			tree, err := merkle.New(ctx, store, cfg.MerkleDepth)
			if err != nil {
				return fmt.Errorf("load merkle tree: %w", err)
			}
			log.Info().Uint64("leaves", tree.Size()).Str("root", tree.Root().Text(16)).Msg("persistence layer ready")

			log.Info().Msg("generating coordinator RSA key, this can take a while at 2048+ bits")
			coordKey, err := blindsig.GenerateKeyPairWithRounds(cfg.RSABits, cfg.MillerRabinRounds)
			if err != nil {
				return fmt.Errorf("generate coordinator key: %w", err)
			}

			mgr := circuits.NewManager()
			if err := mgr.CompileDeposit(); err != nil {
				return fmt.Errorf("compile deposit circuit: %w", err)
			}
			if err := mgr.CompileWithdraw(); err != nil {
				return fmt.Errorf("compile withdraw circuit: %w", err)
			}

			quorumPub, quorumPriv, err := ed25519.GenerateKey(nil)
			if err != nil {
				return fmt.Errorf("generate verifier key: %w", err)
			}
			vq := verifierquorum.New(quorumPriv, mgr, nil, verifierquorum.Config{
				Threshold:      cfg.ThresholdT,
				QuorumPubKeys:  []ed25519.PublicKey{quorumPub},
				ValidityWindow: cfg.AttestationValidity,
				RequestTimeout: 5 * time.Second,
			}, log.With().Str("component", "verifierquorum").Logger())
			log.Info().Str("quorumPub", fmt.Sprintf("%x", quorumPub)).Msg("verifier quorum ready")
			attestationRequests := make(chan attestationRequest, 16)
			go serveAttestations(ctx, vq, attestationRequests, log)

			denomination := big.NewInt(cfg.Denominations[0])
			session := coinjoin.NewSession("stealthd-default", coinjoin.Config{
				MinParticipants: cfg.MinParticipants,
				MaxParticipants: cfg.MaxParticipants,
				Denomination:    denomination,
				Deadlines: coinjoin.PhaseDeadlines{
					Join:                cfg.SessionTimeout,
					CollectingBlinded:   cfg.SessionTimeout,
					CollectingUnblinded: cfg.SessionTimeout,
					SigningTransaction:  cfg.SessionTimeout,
					Broadcasting:        cfg.SessionTimeout,
				},
				MaxBroadcastRetries: 3,
			}, coordKey)

			transport, err := coinjoin.NewTransport(ctx, session.ID, coinjoin.TransportConfig{
				ListenAddrs: []string{cfg.ListenAddr},
			})
			if err != nil {
				return fmt.Errorf("start transport: %w", err)
			}
			defer transport.Close()

			log.Info().Str("peerId", transport.ID().String()).Msg("coordinator listening")
			transport.Start()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	return cmd
}

// newVerifyWithdrawCmd checks a withdraw proof against a freshly
// compiled withdraw circuit and, if it verifies, spends the note's
// nullifier against the persistent pool. Any
// failure — an invalid proof or an already-spent nullifier — surfaces
// as the single generic notes.Withdraw rejection; this command never
// prints which one occurred.
//
// Compiling a fresh circuit (and therefore a fresh verifying key) per
// invocation is illustrative rather than production-ready: a real
// deployment would load a persisted verifying key matching the one
// proofs were generated against, rather than re-running Groth16.Setup
// on every verification.
func newVerifyWithdrawCmd() *cobra.Command {
	var cfgFile string
	var proofHex, publicInputsHex, nullifierHex string

	cmd := &cobra.Command{
		Use:   "verify-withdraw",
		Short: "Verify a withdraw proof and spend its nullifier against the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := storage.NewPostgresStore(ctx, &cfg.Database)
			if err != nil {
				return fmt.Errorf("connect persistence layer: %w", err)
			}
			defer store.Close()

			mgr := circuits.NewManager()
			if err := mgr.CompileWithdraw(); err != nil {
				return fmt.Errorf("compile withdraw circuit: %w", err)
			}

			proofBytes, err := hex.DecodeString(proofHex)
			if err != nil {
				return fmt.Errorf("decode proof: %w", err)
			}
			publicBytes, err := hex.DecodeString(publicInputsHex)
			if err != nil {
				return fmt.Errorf("decode public inputs: %w", err)
			}
			nullifierBytes, err := hex.DecodeString(nullifierHex)
			if err != nil {
				return fmt.Errorf("decode nullifier: %w", err)
			}

			proof := &circuits.Proof{
				ProofType:    circuits.ProofTypeWithdraw,
				Bytes:        proofBytes,
				PublicInputs: publicBytes,
			}
			note := &notes.Note{Nullifier: new(big.Int).SetBytes(nullifierBytes)}

			nh, err := notes.Withdraw(ctx, mgr, store.Nullifiers(), proof, note)
			if err != nil {
				return err
			}
			fmt.Printf("withdrawal accepted, nullifier hash: %s\n", nh.Text(16))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&proofHex, "proof", "", "hex-encoded Groth16 proof bytes")
	cmd.Flags().StringVar(&publicInputsHex, "public-inputs", "", "hex-encoded serialized public witness")
	cmd.Flags().StringVar(&nullifierHex, "nullifier", "", "hex-encoded note nullifier")
	cmd.MarkFlagRequired("proof")
	cmd.MarkFlagRequired("public-inputs")
	cmd.MarkFlagRequired("nullifier")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "stealthd",
		Short: "Stealth privacy core coordinator and verifier daemon",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newVerifyWithdrawCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
