package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"plugline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const runColumns = `id,source,capabilities_json,state,COALESCE(branch,''),COALESCE(commit_hash,''),COALESCE(error,''),created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var (
		r    domain.Run
		caps string
	)
	err := row.Scan(&r.ID, &r.Source, &caps, &r.State, &r.Branch, &r.CommitHash, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(caps), &r.Capabilities); err != nil {
		return r, fmt.Errorf("decode capabilities for run %s: %w", r.ID, err)
	}
	return r, nil
}

func (r Repo) InsertRun(ctx context.Context, run domain.Run) error {
	return r.insertRun(ctx, r.DB, run)
}

func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	return r.insertRun(ctx, tx, run)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) insertRun(ctx context.Context, ex execer, run domain.Run) error {
	caps, err := json.Marshal(run.Capabilities)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO runs(id,source,capabilities_json,state,branch,commit_hash,error,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Source, string(caps), run.State, nullable(run.Branch), nullable(run.CommitHash), nullable(run.Error), run.CreatedAt, run.UpdatedAt)
	return err
}

// RunUpdate carries the fields to change; nil pointers are left alone.
type RunUpdate struct {
	State      *domain.WorkflowState
	Branch     *string
	CommitHash *string
	Error      *string
	UpdatedAt  string
}

func (r Repo) UpdateRun(ctx context.Context, tx *sql.Tx, id string, u RunUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.State != nil {
		fields = append(fields, "state=?")
		args = append(args, string(*u.State))
	}
	if u.Branch != nil {
		fields = append(fields, "branch=?")
		args = append(args, nullableStringPtr(u.Branch))
	}
	if u.CommitHash != nil {
		fields = append(fields, "commit_hash=?")
		args = append(args, nullableStringPtr(u.CommitHash))
	}
	if u.Error != nil {
		fields = append(fields, "error=?")
		args = append(args, nullableStringPtr(u.Error))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, u.UpdatedAt, id)
	query := fmt.Sprintf(`UPDATE runs SET %s WHERE id=?`, strings.Join(fields, ","))
	var ex execer = r.DB
	if tx != nil {
		ex = tx
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

// ListRuns returns runs newest first. A non-empty cursor pair continues after
// the given run.
func (r Repo) ListRuns(ctx context.Context, limit int, state, cursorCreatedAt, cursorID string) ([]domain.Run, error) {
	clauses := []string{"1=1"}
	var args []any
	if state != "" {
		clauses = append(clauses, "state=?")
		args = append(args, state)
	}
	if cursorCreatedAt != "" && cursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
