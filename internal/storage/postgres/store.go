package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"honestledger/internal/model"
	"honestledger/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	name        TEXT PRIMARY KEY,
	version     BIGINT NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ledger_journal (
	id          TEXT PRIMARY KEY,
	ledger      TEXT NOT NULL,
	version     BIGINT NOT NULL,
	operation   TEXT NOT NULL,
	caller      TEXT NOT NULL,
	error_code  TEXT,
	payload     JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_journal_ledger_version ON ledger_journal (ledger, version);
`

// Store provides Postgres persistence for one named ledger.
type Store struct {
	pool *pgxpool.Pool
	name string
}

func NewStore(ctx context.Context, dsn, name string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if name == "" {
		return nil, fmt.Errorf("ledger name is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, name: name}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the ledger tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for the ledger.
func (s *Store) Load(ctx context.Context) (model.Snapshot, bool, error) {
	var payload []byte
	row := s.pool.QueryRow(ctx, `SELECT payload FROM ledger_snapshots WHERE name=$1`, s.name)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// Save upserts the snapshot if it directly follows the stored version.
func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_snapshots (name, version, payload, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (name) DO UPDATE
		SET version = EXCLUDED.version, payload = EXCLUDED.payload, updated_at = now()
		WHERE ledger_snapshots.version = EXCLUDED.version - 1
	`, s.name, int64(snap.Version), string(payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save snapshot v%d: %w", snap.Version, storage.ErrVersionConflict)
	}
	return nil
}

// Append inserts journal entries, ignoring ids already stored.
func (s *Store) Append(ctx context.Context, entries ...model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		var code *string
		if e.ErrorCode != "" {
			code = &e.ErrorCode
		}
		batch.Queue(`
			INSERT INTO ledger_journal (id, ledger, version, operation, caller, error_code, payload, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::timestamptz)
			ON CONFLICT (id) DO NOTHING
		`,
			e.ID,
			s.name,
			int64(e.Version),
			e.Operation,
			e.Caller,
			code,
			string(payload),
			e.RecordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
