package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS design_rows (
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	doc         TEXT NOT NULL,
	PRIMARY KEY (workflow_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_workflows_name ON workflows(name);
CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(ctx context.Context, w *model.Workflow) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	docJSON, err := marshalWorkflowDoc(w)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workflows (id, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, doc = excluded.doc, updated_at = excluded.updated_at`,
		w.ID, w.Name, string(docJSON), w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert workflow %s", w.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM design_rows WHERE workflow_id = ?`, w.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear design rows %s", w.ID)
	}

	if len(w.Design) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO design_rows (workflow_id, seq, doc) VALUES (?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare design insert")
		}
		defer stmt.Close()

		for i, row := range w.Design {
			rowJSON, err := json.Marshal(row)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal design row %d", i)
			}
			if _, err := stmt.ExecContext(ctx, w.ID, i, string(rowJSON)); err != nil {
				return eris.Wrapf(err, "sqlite: insert design row %d", i)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at, updated_at FROM workflows WHERE id = ?`, id)

	var docJSON string
	var createdAt, updatedAt time.Time
	err := row.Scan(&docJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get workflow %s", id)
	}

	w, err := unmarshalWorkflowDoc(docJSON, createdAt, updatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM design_rows WHERE workflow_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get design rows %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var rowJSON string
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan design row")
		}
		var dr conjoint.DesignRow
		if err := json.Unmarshal([]byte(rowJSON), &dr); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal design row")
		}
		w.Design = append(w.Design, dr)
	}
	return w, eris.Wrap(rows.Err(), "sqlite: design rows iterate")
}

func (s *SQLiteStore) List(ctx context.Context, filter WorkflowFilter) ([]model.Workflow, error) {
	query := `SELECT doc, created_at, updated_at FROM workflows WHERE 1=1`
	var args []any

	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list workflows")
	}
	defer rows.Close()

	var workflows []model.Workflow
	for rows.Next() {
		var docJSON string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&docJSON, &createdAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan workflow")
		}
		w, err := unmarshalWorkflowDoc(docJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	return workflows, eris.Wrap(rows.Err(), "sqlite: list workflows iterate")
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM design_rows WHERE workflow_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete design rows %s", id)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete workflow %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalWorkflowDoc serializes a workflow without its design matrix, which
// lives in design_rows.
func marshalWorkflowDoc(w *model.Workflow) ([]byte, error) {
	doc := *w
	doc.Design = nil
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal workflow")
	}
	return docJSON, nil
}

func unmarshalWorkflowDoc(docJSON string, createdAt, updatedAt time.Time) (*model.Workflow, error) {
	var w model.Workflow
	if err := json.Unmarshal([]byte(docJSON), &w); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal workflow")
	}
	w.CreatedAt = createdAt
	w.UpdatedAt = updatedAt
	return &w, nil
}
