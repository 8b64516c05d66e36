package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/kintone/core/schema"
	"github.com/artpar/kintone/ports"
)

// MirrorStore implements ports.MirrorStore using SQLite.
type MirrorStore struct {
	db *DB
}

// NewMirrorStore creates a new SQLite mirror store.
func NewMirrorStore(db *DB) *MirrorStore {
	return &MirrorStore{db: db}
}

var _ ports.MirrorStore = (*MirrorStore)(nil)

// SaveForm replaces the stored form of an app.
func (s *MirrorStore) SaveForm(ctx context.Context, appID int64, form map[string]*schema.Field) error {
	data, err := json.Marshal(map[string]any{"properties": form})
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forms (app_id, properties, field_count, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET
			properties = excluded.properties,
			field_count = excluded.field_count,
			saved_at = excluded.saved_at
	`, appID, string(data), len(form), time.Now().UTC())
	return err
}

// LoadForm returns the stored form of an app.
func (s *MirrorStore) LoadForm(ctx context.Context, appID int64) (map[string]*schema.Field, error) {
	var properties string
	err := s.db.QueryRowContext(ctx, `
		SELECT properties FROM forms WHERE app_id = ?
	`, appID).Scan(&properties)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return schema.FieldsFromJSON([]byte(properties))
}

// UpsertRecords stores records keyed by their $id in one transaction and
// returns how many were written. A stored record with a higher revision is
// left untouched apart from its mirrored_at stamp.
func (s *MirrorStore) UpsertRecords(ctx context.Context, appID int64, records []*schema.Record, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (app_id, record_id, revision, body, updated_at, mirrored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, record_id) DO UPDATE SET
			revision = CASE WHEN excluded.revision >= records.revision THEN excluded.revision ELSE records.revision END,
			body = CASE WHEN excluded.revision >= records.revision THEN excluded.body ELSE records.body END,
			updated_at = CASE WHEN excluded.revision >= records.revision THEN excluded.updated_at ELSE records.updated_at END,
			mirrored_at = excluded.mirrored_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	at = at.UTC()
	for i, rec := range records {
		id, ok := rec.ID()
		if !ok {
			return 0, fmt.Errorf("record %d has no %s", i, schema.CodeID)
		}
		revision, _ := rec.Revision()
		body, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encode record %d: %w", id, err)
		}
		var updated sql.NullTime
		if f := rec.UpdatedTime(); f != nil {
			updated.Time, updated.Valid = f.Time()
		}
		if _, err := stmt.ExecContext(ctx, appID, id, revision, string(body), updated, at); err != nil {
			return 0, fmt.Errorf("upsert record %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// Record returns one stored record.
func (s *MirrorStore) Record(ctx context.Context, appID, id int64) (*schema.Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM records WHERE app_id = ? AND record_id = ?
	`, appID, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return schema.RecordFromJSON([]byte(body))
}

// Records returns stored records ordered by id. A limit <= 0 returns all.
func (s *MirrorStore) Records(ctx context.Context, appID int64, limit, offset int) ([]*schema.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM records
		WHERE app_id = ?
		ORDER BY record_id
		LIMIT ? OFFSET ?
	`, appID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*schema.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := schema.RecordFromJSON([]byte(body))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecords returns the number of stored records of an app.
func (s *MirrorStore) CountRecords(ctx context.Context, appID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE app_id = ?
	`, appID).Scan(&n)
	return n, err
}

// DeleteStale removes records not written since before, i.e. records that
// were deleted in kintone since the previous full run.
func (s *MirrorStore) DeleteStale(ctx context.Context, appID int64, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE app_id = ? AND mirrored_at < ?
	`, appID, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// StartRun records a new run.
func (s *MirrorStore) StartRun(ctx context.Context, run ports.MirrorRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_runs (id, app_id, status, records, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.AppID, run.Status, run.Records, run.StartedAt.UTC())
	return err
}

// FinishRun stores the outcome of a run.
func (s *MirrorStore) FinishRun(ctx context.Context, run ports.MirrorRun) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mirror_runs
		SET status = ?, records = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Records, nullString(run.Error), run.FinishedAt.UTC(), run.ID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastRun returns the most recent run of an app.
func (s *MirrorStore) LastRun(ctx context.Context, appID int64) (ports.MirrorRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app_id, status, records, error, started_at, finished_at
		FROM mirror_runs
		WHERE app_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, appID)
	return scanRun(row)
}

func scanRun(row *sql.Row) (ports.MirrorRun, error) {
	var run ports.MirrorRun
	var errText sql.NullString
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.AppID, &run.Status, &run.Records, &errText, &run.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.MirrorRun{}, ErrNotFound
	}
	if err != nil {
		return ports.MirrorRun{}, err
	}
	run.Error = errText.String
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
