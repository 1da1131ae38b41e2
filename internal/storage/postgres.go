// Package storage implements the PostgreSQL-backed persistence layer:
// Merkle tree leaves, spent-nullifier tracking, note metadata, and
// published stealth announcements. It fulfils the injected-store
// interfaces (internal/merkle.Store, internal/notes.Store, and, via
// the separate NullifierPostgresStore handle,
// internal/notes.NullifierStore) over a shared pgxpool connection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stealthsol/privacycore/internal/notes"
	"github.com/stealthsol/privacycore/internal/stealth"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
	"github.com/stealthsol/privacycore/pkg/types"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for a unique constraint
// violation (23505).
const pgUniqueViolation = "23505"

// Common errors returned in addition to pkg/privacyerr sentinels,
// covering failure modes specific to the storage boundary itself.
var (
	ErrNotFound     = errors.New("not found")
	ErrDBConnection = errors.New("database connection error")
)

// PostgresStore implements persistent storage backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "stealthsol",
		Database: "stealthsol",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// NewPostgresStore opens a connection pool and verifies it with a
// ping before returning.
func NewPostgresStore(ctx context.Context, cfg *Config) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ============================================
// merkle.Store
// ============================================

// GetLeaf satisfies internal/merkle.Store.
func (s *PostgresStore) GetLeaf(ctx context.Context, index uint64) (*types.FieldElement, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM merkle_leaves WHERE leaf_index = $1`, index).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, false, privacyerr.ErrMalformedInput
	}
	return v, true, nil
}

// SetLeaf satisfies internal/merkle.Store.
func (s *PostgresStore) SetLeaf(ctx context.Context, index uint64, value *types.FieldElement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merkle_leaves (leaf_index, value) VALUES ($1, $2)
		ON CONFLICT (leaf_index) DO UPDATE SET value = $2
	`, index, value.Text(10))
	return err
}

// Len satisfies internal/merkle.Store.
func (s *PostgresStore) Len(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM merkle_leaves`).Scan(&count)
	return count, err
}

// ============================================
// notes.Store
// ============================================

// Insert satisfies internal/notes.Store.
func (s *PostgresStore) Insert(ctx context.Context, note *notes.Note) error {
	var merkleRoot interface{}
	if note.MerkleRoot != nil {
		merkleRoot = note.MerkleRoot.Text(10)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notes (
			commitment, nullifier, secret, amount, recipient, leaf_index, merkle_root
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (commitment) DO UPDATE SET leaf_index = $6, merkle_root = $7
	`,
		note.Commitment.Text(10),
		note.Nullifier.Text(10),
		note.Secret.Text(10),
		note.Amount.Text(10),
		note.Recipient.Text(10),
		note.LeafIndex,
		merkleRoot,
	)
	return err
}

// ByCommitment satisfies internal/notes.Store.
func (s *PostgresStore) ByCommitment(ctx context.Context, commitment *types.FieldElement) (*notes.Note, bool, error) {
	var nullifier, secret, amount, recipient string
	var merkleRoot *string
	var leafIndex int64

	err := s.pool.QueryRow(ctx, `
		SELECT nullifier, secret, amount, recipient, leaf_index, merkle_root
		FROM notes WHERE commitment = $1
	`, commitment.Text(10)).Scan(&nullifier, &secret, &amount, &recipient, &leafIndex, &merkleRoot)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	note := &notes.Note{
		Commitment: new(big.Int).Set(commitment),
		LeafIndex:  leafIndex,
	}
	var ok bool
	if note.Nullifier, ok = new(big.Int).SetString(nullifier, 10); !ok {
		return nil, false, privacyerr.ErrMalformedInput
	}
	if note.Secret, ok = new(big.Int).SetString(secret, 10); !ok {
		return nil, false, privacyerr.ErrMalformedInput
	}
	if note.Amount, ok = new(big.Int).SetString(amount, 10); !ok {
		return nil, false, privacyerr.ErrMalformedInput
	}
	if note.Recipient, ok = new(big.Int).SetString(recipient, 10); !ok {
		return nil, false, privacyerr.ErrMalformedInput
	}
	if merkleRoot != nil {
		if note.MerkleRoot, ok = new(big.Int).SetString(*merkleRoot, 10); !ok {
			return nil, false, privacyerr.ErrMalformedInput
		}
	}

	return note, true, nil
}

// MarkSpent satisfies internal/notes.Store.
func (s *PostgresStore) MarkSpent(ctx context.Context, nullifierHash *types.FieldElement) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notes SET spent = TRUE WHERE nullifier_hash = $1
	`, nullifierHash.Text(10))
	return err
}

// IterUnspent satisfies internal/notes.Store.
func (s *PostgresStore) IterUnspent(ctx context.Context) ([]*notes.Note, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT commitment, nullifier, secret, amount, recipient, leaf_index, merkle_root
		FROM notes WHERE spent = FALSE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*notes.Note
	for rows.Next() {
		var commitment, nullifier, secret, amount, recipient string
		var merkleRoot *string
		var leafIndex int64

		if err := rows.Scan(&commitment, &nullifier, &secret, &amount, &recipient, &leafIndex, &merkleRoot); err != nil {
			return nil, err
		}

		note := &notes.Note{LeafIndex: leafIndex}
		var ok bool
		if note.Commitment, ok = new(big.Int).SetString(commitment, 10); !ok {
			return nil, privacyerr.ErrMalformedInput
		}
		if note.Nullifier, ok = new(big.Int).SetString(nullifier, 10); !ok {
			return nil, privacyerr.ErrMalformedInput
		}
		if note.Secret, ok = new(big.Int).SetString(secret, 10); !ok {
			return nil, privacyerr.ErrMalformedInput
		}
		if note.Amount, ok = new(big.Int).SetString(amount, 10); !ok {
			return nil, privacyerr.ErrMalformedInput
		}
		if note.Recipient, ok = new(big.Int).SetString(recipient, 10); !ok {
			return nil, privacyerr.ErrMalformedInput
		}
		if merkleRoot != nil {
			if note.MerkleRoot, ok = new(big.Int).SetString(*merkleRoot, 10); !ok {
				return nil, privacyerr.ErrMalformedInput
			}
		}
		out = append(out, note)
	}
	return out, rows.Err()
}

// ============================================
// notes.NullifierStore
// ============================================
//
// notes.Store and notes.NullifierStore both declare an Insert method
// with a different argument type, which Go cannot satisfy from a
// single receiver. NullifierPostgresStore is a thin second handle onto
// the same pool, holding only the spent_nullifiers concern.

// NullifierPostgresStore implements internal/notes.NullifierStore
// against the same schema PostgresStore manages.
type NullifierPostgresStore struct {
	pool *pgxpool.Pool
}

// Nullifiers returns a NullifierPostgresStore sharing this store's
// connection pool.
func (s *PostgresStore) Nullifiers() *NullifierPostgresStore {
	return &NullifierPostgresStore{pool: s.pool}
}

// Insert satisfies internal/notes.NullifierStore. It is atomic: the
// unique constraint on nullifier_hash rejects a second insert of the
// same hash, which is translated to ErrDoubleSpend rather than leaking
// the raw SQLSTATE to callers (double-spend rejection must
// not distinguish itself via an ad hoc error channel).
func (n *NullifierPostgresStore) Insert(ctx context.Context, nullifierHash *types.FieldElement) error {
	_, err := n.pool.Exec(ctx, `
		INSERT INTO spent_nullifiers (nullifier_hash) VALUES ($1)
	`, nullifierHash.Text(10))
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return privacyerr.ErrDoubleSpend
	}
	return err
}

// Contains satisfies internal/notes.NullifierStore.
func (n *NullifierPostgresStore) Contains(ctx context.Context, nullifierHash *types.FieldElement) (bool, error) {
	var exists bool
	err := n.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM spent_nullifiers WHERE nullifier_hash = $1)
	`, nullifierHash.Text(10)).Scan(&exists)
	return exists, err
}

// ============================================
// Stealth Announcements
// ============================================

// AnnouncementStore persists published stealth announcements so a
// recipient's wallet can scan the history for addresses it controls.
type AnnouncementStore interface {
	SaveAnnouncement(ctx context.Context, ann *stealth.Announcement) error
	AnnouncementsSince(ctx context.Context, afterTimestamp int64) ([]*stealth.Announcement, error)
}

// SaveAnnouncement persists a published announcement.
func (s *PostgresStore) SaveAnnouncement(ctx context.Context, ann *stealth.Announcement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO announcements (ephemeral_pub, stealth_address, announced_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (ephemeral_pub, stealth_address) DO NOTHING
	`, []byte(ann.EphemeralPub), []byte(ann.StealthAddress), ann.Timestamp)
	return err
}

// AnnouncementsSince returns announcements published after
// afterTimestamp, in ascending timestamp order, for incremental
// wallet scans.
func (s *PostgresStore) AnnouncementsSince(ctx context.Context, afterTimestamp int64) ([]*stealth.Announcement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ephemeral_pub, stealth_address, announced_at
		FROM announcements WHERE announced_at > $1
		ORDER BY announced_at ASC
	`, afterTimestamp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*stealth.Announcement
	for rows.Next() {
		var ephemeralPub, stealthAddr []byte
		var ts int64
		if err := rows.Scan(&ephemeralPub, &stealthAddr, &ts); err != nil {
			return nil, err
		}
		out = append(out, &stealth.Announcement{
			EphemeralPub:   ephemeralPub,
			StealthAddress: stealthAddr,
			Timestamp:      ts,
		})
	}
	return out, rows.Err()
}

// Schema is the DDL this store expects to already be applied.
// Migration tooling is left to the deployment environment; this repo
// only consumes the schema.
const Schema = `
CREATE TABLE IF NOT EXISTS merkle_leaves (
	leaf_index BIGINT PRIMARY KEY,
	value      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	commitment   TEXT PRIMARY KEY,
	nullifier    TEXT NOT NULL,
	secret       TEXT NOT NULL,
	amount       TEXT NOT NULL,
	recipient    TEXT NOT NULL,
	leaf_index   BIGINT NOT NULL DEFAULT -1,
	merkle_root  TEXT,
	spent        BOOLEAN NOT NULL DEFAULT FALSE,
	nullifier_hash TEXT
);

CREATE TABLE IF NOT EXISTS spent_nullifiers (
	nullifier_hash TEXT PRIMARY KEY,
	spent_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS announcements (
	ephemeral_pub   BYTEA NOT NULL,
	stealth_address BYTEA NOT NULL,
	announced_at    BIGINT NOT NULL,
	PRIMARY KEY (ephemeral_pub, stealth_address)
);
`
