package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/horizonmkt/market-engine/internal/model"
)

// PostgresStore persists the snapshot as a single JSONB row keyed by
// market ID. The whole document is upserted on every save, matching the
// rewrite-wholesale snapshot contract.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS snapshots (
//	    market_id  TEXT PRIMARY KEY,
//	    state      JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool     *pgxpool.Pool
	marketID string
}

// NewPostgresStore creates a PostgreSQL-backed snapshot store scoped to
// one market ID.
func NewPostgresStore(pool *pgxpool.Pool, marketID string) *PostgresStore {
	return &PostgresStore{pool: pool, marketID: marketID}
}

func (s *PostgresStore) Load(ctx context.Context) (*model.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM snapshots WHERE market_id = $1`, s.marketID).
		Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot %s: %w", s.marketID, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", s.marketID, err)
	}
	return &snap, nil
}

func (s *PostgresStore) Save(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (market_id, state, updated_at)
		 VALUES ($1, $2::JSONB, now())
		 ON CONFLICT (market_id)
		 DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		s.marketID, data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", s.marketID, err)
	}
	return nil
}
