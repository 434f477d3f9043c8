package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink mirrors the profile set into Postgres. Each Save rewrites
// the table inside one transaction; the set is small (one row per cloned
// voice) so full rewrites stay cheap and keep the sink trivially
// consistent with the in-memory map.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initProfileSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func initProfileSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS voice_profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		sample_paths TEXT[] NOT NULL DEFAULT '{}',
		artifact_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init profile schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, profiles []Profile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM voice_profiles`); err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}
	for _, p := range profiles {
		_, err := tx.Exec(ctx,
			`INSERT INTO voice_profiles (id, name, state, created_at, sample_paths, artifact_path, error, progress)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			p.ID, p.Name, string(p.State), p.CreatedAt, p.SamplePaths, p.ArtifactPath, p.Error, p.Progress,
		)
		if err != nil {
			return fmt.Errorf("insert profile %s: %w", p.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresSink) Load(ctx context.Context) ([]Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, state, created_at, sample_paths, artifact_path, error, progress
		 FROM voice_profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var state string
		if err := rows.Scan(&p.ID, &p.Name, &state, &p.CreatedAt, &p.SamplePaths, &p.ArtifactPath, &p.Error, &p.Progress); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.State = State(state)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
