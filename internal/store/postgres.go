package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/db"
	"github.com/sells-group/conjoint-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS design_rows (
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	doc         JSONB NOT NULL,
	PRIMARY KEY (workflow_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_workflows_name ON workflows(name);
CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, w *model.Workflow) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	docJSON, err := marshalWorkflowDoc(w)
	if err != nil {
		return err
	}

	// Doc update, design clear, and design reload commit atomically so a
	// failed reload cannot leave the workflow without its design matrix.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin upsert %s", w.ID)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO workflows (id, name, doc, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, doc = $3, updated_at = $5`,
		w.ID, w.Name, docJSON, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert workflow %s", w.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM design_rows WHERE workflow_id = $1`, w.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear design rows %s", w.ID)
	}

	if len(w.Design) > 0 {
		rows := make([][]any, 0, len(w.Design))
		for i, row := range w.Design {
			rowJSON, err := json.Marshal(row)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal design row %d", i)
			}
			rows = append(rows, []any{w.ID, i, rowJSON})
		}
		if _, err := db.CopyFrom(ctx, tx, "design_rows", []string{"workflow_id", "seq", "doc"}, rows); err != nil {
			return eris.Wrapf(err, "postgres: load design rows %s", w.ID)
		}
	}

	return eris.Wrapf(tx.Commit(ctx), "postgres: commit upsert %s", w.ID)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Workflow, error) {
	var docJSON []byte
	var createdAt, updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at, updated_at FROM workflows WHERE id = $1`, id,
	).Scan(&docJSON, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get workflow %s", id)
	}

	w, err := unmarshalWorkflowDoc(string(docJSON), createdAt, updatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM design_rows WHERE workflow_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get design rows %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var rowJSON []byte
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan design row")
		}
		var dr conjoint.DesignRow
		if err := json.Unmarshal(rowJSON, &dr); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal design row")
		}
		w.Design = append(w.Design, dr)
	}
	return w, eris.Wrap(rows.Err(), "postgres: design rows iterate")
}

func (s *PostgresStore) List(ctx context.Context, filter WorkflowFilter) ([]model.Workflow, error) {
	query := `SELECT doc, created_at, updated_at FROM workflows WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Name != "" {
		query += fmt.Sprintf(` AND name = $%d`, argIdx)
		args = append(args, filter.Name)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list workflows")
	}
	defer rows.Close()

	var workflows []model.Workflow
	for rows.Next() {
		var docJSON []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&docJSON, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan workflow")
		}
		w, err := unmarshalWorkflowDoc(string(docJSON), createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	return workflows, eris.Wrap(rows.Err(), "postgres: list workflows iterate")
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM design_rows WHERE workflow_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete design rows %s", id)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete workflow %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
