package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/pdf-genie/internal/database"
)

// SQLStore は processing_jobs テーブルにジョブを保存します。
type SQLStore struct {
	db *database.DB
}

// NewSQLStore は SQLStore を作成します。
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

const jobColumns = `id, user_id, job_type, status, input_files, output_files, parameters,
	error_message, created_at, started_at, completed_at, processing_time`

// Create はジョブを保存します。
func (s *SQLStore) Create(ctx context.Context, job *Job) error {
	inputs, outputs, params, err := encodeJobLists(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO processing_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.OwnerID, string(job.Kind), string(job.Status),
		inputs, outputs, params,
		nullString(job.Error), job.CreatedAt.UTC(),
		nullTime(job.StartedAt), nullTime(job.CompletedAt), nullFloat(job.ProcessingTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Finalize は終了状態を保存します。既に終了状態の行は更新しません。
func (s *SQLStore) Finalize(ctx context.Context, job *Job) error {
	_, outputs, _, err := encodeJobLists(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE processing_jobs
		SET status = ?, output_files = ?, error_message = ?, completed_at = ?, processing_time = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')`),
		string(job.Status), outputs, nullString(job.Error),
		nullTime(job.CompletedAt), nullFloat(job.ProcessingTime), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT 1 FROM processing_jobs WHERE id = ?`), job.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	if err != nil {
		return err
	}
	return ErrTerminal
}

// Get は所有者が一致するジョブを返します。
func (s *SQLStore) Get(ctx context.Context, jobID, ownerID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+jobColumns+`
		FROM processing_jobs WHERE id = ? AND user_id = ?`), jobID, ownerID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// List は所有者のジョブを作成日時の新しい順に返します。
func (s *SQLStore) List(ctx context.Context, ownerID string, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT `+jobColumns+`
		FROM processing_jobs WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`), ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                     Job
		kind, status            string
		inputs, outputs, params string
		errMsg                  sql.NullString
		started, completed      sql.NullTime
		processingTime          sql.NullFloat64
	)
	if err := row.Scan(&job.ID, &job.OwnerID, &kind, &status, &inputs, &outputs, &params,
		&errMsg, &job.CreatedAt, &started, &completed, &processingTime); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	job.Error = errMsg.String
	job.CreatedAt = job.CreatedAt.UTC()
	if started.Valid {
		t := started.Time.UTC()
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		job.CompletedAt = &t
	}
	if processingTime.Valid {
		v := processingTime.Float64
		job.ProcessingTime = &v
	}
	if err := json.Unmarshal([]byte(inputs), &job.InputIDs); err != nil {
		return nil, fmt.Errorf("failed to decode input_files: %w", err)
	}
	if err := json.Unmarshal([]byte(outputs), &job.OutputPaths); err != nil {
		return nil, fmt.Errorf("failed to decode output_files: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &job.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if job.OutputPaths == nil {
		job.OutputPaths = []string{}
	}
	return &job, nil
}

func encodeJobLists(job *Job) (inputs, outputs, params string, err error) {
	in := job.InputIDs
	if in == nil {
		in = []string{}
	}
	out := job.OutputPaths
	if out == nil {
		out = []string{}
	}
	p := job.Parameters
	if p == nil {
		p = map[string]string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", "", "", err
	}
	inputs = string(b)
	if b, err = json.Marshal(out); err != nil {
		return "", "", "", err
	}
	outputs = string(b)
	if b, err = json.Marshal(p); err != nil {
		return "", "", "", err
	}
	params = string(b)
	return inputs, outputs, params, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
