package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/host"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

var _ host.RunStore = (*Database)(nil)

const runColumns = `id, seed, width, height, cell_size, palette, fingerprint, state,
	collapsed, elapsed_ms, failure_x, failure_y, failure_reason, created_at`

// SaveRun stores a run and its resolutions in one transaction and returns
// the new run ID. rec.ID is set on success.
func (d *Database) SaveRun(rec *host.RunRecord) (int64, error) {
	if rec == nil {
		return 0, errors.New("nil run record")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var fx, fy sql.NullInt64
	var reason sql.NullString
	if rec.Failure != nil {
		fx = sql.NullInt64{Int64: int64(rec.Failure.X), Valid: true}
		fy = sql.NullInt64{Int64: int64(rec.Failure.Y), Valid: true}
		reason = sql.NullString{String: rec.Failure.Reason, Valid: true}
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := d.dialect.Rebind(`INSERT INTO runs (seed, width, height, cell_size, palette, fingerprint, state,
		collapsed, elapsed_ms, failure_x, failure_y, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	id, err := d.dialect.InsertRun(tx, query,
		int64(rec.Seed), rec.Width, rec.Height, rec.CellSize, rec.Palette, rec.Fingerprint, rec.State,
		rec.Collapsed, rec.Elapsed.Milliseconds(), fx, fy, reason, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	if len(rec.Resolutions) > 0 {
		stmt, err := tx.Prepare(d.dialect.Rebind(
			"INSERT INTO resolutions (run_id, seq, x, y, artwork, rotation, forced) VALUES (?, ?, ?, ?, ?, ?, ?)"))
		if err != nil {
			return 0, fmt.Errorf("failed to prepare resolution insert: %w", err)
		}
		defer stmt.Close()

		for seq, r := range rec.Resolutions {
			if _, err := stmt.Exec(id, seq, r.X, r.Y, r.Artwork, r.Rotation, r.Forced); err != nil {
				return 0, fmt.Errorf("failed to insert resolution %d: %w", seq, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

// GetRun loads a run without its resolutions.
func (d *Database) GetRun(id int64) (*host.RunRecord, error) {
	row := d.db.QueryRow(d.dialect.Rebind("SELECT "+runColumns+" FROM runs WHERE id = ?"), id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 50.
func (d *Database) ListRuns(limit int) ([]*host.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(d.dialect.Rebind("SELECT "+runColumns+" FROM runs ORDER BY id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*host.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetResolutions returns a run's resolved cells in resolution order.
func (d *Database) GetResolutions(runID int64) ([]host.Resolution, error) {
	rows, err := d.db.Query(d.dialect.Rebind(
		"SELECT x, y, artwork, rotation, forced FROM resolutions WHERE run_id = ? ORDER BY seq"), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resolutions: %w", err)
	}
	defer rows.Close()

	var out []host.Resolution
	for rows.Next() {
		var r host.Resolution
		if err := rows.Scan(&r.X, &r.Y, &r.Artwork, &r.Rotation, &r.Forced); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, by cascade, its resolutions.
func (d *Database) DeleteRun(id int64) error {
	res, err := d.db.Exec(d.dialect.Rebind("DELETE FROM runs WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// CountRuns returns the number of stored runs with the given state, or of
// all runs when state is empty.
func (d *Database) CountRuns(state string) (int, error) {
	var count int
	var err error
	if state == "" {
		err = d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	} else {
		err = d.db.QueryRow(d.dialect.Rebind("SELECT COUNT(*) FROM runs WHERE state = ?"), state).Scan(&count)
	}
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*host.RunRecord, error) {
	var (
		rec       host.RunRecord
		seed      int64
		elapsedMS int64
		fx, fy    sql.NullInt64
		reason    sql.NullString
	)
	err := row.Scan(&rec.ID, &seed, &rec.Width, &rec.Height, &rec.CellSize, &rec.Palette, &rec.Fingerprint,
		&rec.State, &rec.Collapsed, &elapsedMS, &fx, &fy, &reason, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Seed = uint64(seed)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if fx.Valid && fy.Valid {
		rec.Failure = &host.FailureInfo{X: int(fx.Int64), Y: int(fy.Int64), Reason: reason.String}
	}
	return &rec, nil
}
