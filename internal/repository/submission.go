package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/DocScrub/internal/model"
)

// SubmissionRepository wraps all SQL used by the API and the worker.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository constructs a repository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const selectColumns = `id, filename, content_type, status, replacements, output_location, replaced_count,
	error_kind, error_message, rating, rating_note, created_at, updated_at`

// touched advances updated_at even when two writes land in the same tick.
const touched = `updated_at = GREATEST($2, updated_at + interval '1 microsecond')`

// Create inserts a queued submission before processing begins.
func (r *SubmissionRepository) Create(ctx context.Context, rec *model.Submission) error {
	pairs, err := json.Marshal(nonNil(rec.Replacements))
	if err != nil {
		return fmt.Errorf("encode replacements: %w", err)
	}
	now := time.Now().UTC()
	rec.Status = model.StatusQueued
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err = r.pool.Exec(ctx, `
		INSERT INTO submissions (id, filename, content_type, status, replacements, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.Filename, rec.ContentType, string(rec.Status), pairs, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Get returns a submission by id.
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*model.Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM submissions WHERE id=$1`, id)
	rec, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select submission: %w", err)
	}
	return rec, nil
}

// List returns submissions newest first.
func (r *SubmissionRepository) List(ctx context.Context, limit, offset int) ([]*model.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM submissions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	out := []*model.Submission{}
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

// MarkProcessing moves a queued submission to processing.
func (r *SubmissionRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, model.StatusProcessing, `SET status=$3, `+touched)
}

// MarkDone records the output location and replacement count.
func (r *SubmissionRepository) MarkDone(ctx context.Context, id, location string, replaced int) error {
	return r.transition(ctx, id, model.StatusDone, `
		SET status=$3, output_location=$4, replaced_count=$5, error_kind=NULL, error_message=NULL, `+touched,
		location, replaced)
}

// MarkFailed records why processing failed.
func (r *SubmissionRepository) MarkFailed(ctx context.Context, id string, kind model.ErrorKind, msg string) error {
	return r.transition(ctx, id, model.StatusFailed, `
		SET status=$3, error_kind=$4, error_message=$5, output_location=NULL, replaced_count=NULL, `+touched,
		string(kind), msg)
}

// Rate stores a rating in any status and returns the updated row.
func (r *SubmissionRepository) Rate(ctx context.Context, id string, rating int, note *string) (*model.Submission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE submissions SET rating=$3, rating_note=$4, `+touched+`
		WHERE id=$1
		RETURNING `+selectColumns,
		id, time.Now().UTC(), rating, note)
	rec, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rate submission: %w", err)
	}
	return rec, nil
}

// transition runs set guarded by the statuses allowed to precede to, so
// concurrent writers cannot regress a row. $1 is the id, $2 the timestamp and
// $3 the target status; extra args continue from $4.
func (r *SubmissionRepository) transition(ctx context.Context, id string, to model.Status, set string, args ...any) error {
	var from []string
	for _, s := range []model.Status{model.StatusQueued, model.StatusProcessing, model.StatusDone, model.StatusFailed} {
		if model.CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	params := append([]any{id, time.Now().UTC(), string(to)}, args...)
	params = append(params, from)
	stmt := fmt.Sprintf(`UPDATE submissions %s WHERE id=$1 AND status = ANY($%d)`, set, len(params))
	tag, err := r.pool.Exec(ctx, stmt, params...)
	if err != nil {
		return fmt.Errorf("update submission %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM submissions WHERE id=$1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update submission %s to %s: %w", id, to, err)
	}
	return fmt.Errorf("submission %s %s -> %s: %w", id, current, to, model.ErrInvalidTransition)
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var (
		rec       model.Submission
		status    string
		pairs     []byte
		errorKind *string
	)
	err := row.Scan(&rec.ID, &rec.Filename, &rec.ContentType, &status, &pairs,
		&rec.OutputLocation, &rec.ReplacedCount, &errorKind, &rec.ErrorMessage,
		&rec.Rating, &rec.RatingNote, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	if err := json.Unmarshal(pairs, &rec.Replacements); err != nil {
		return nil, fmt.Errorf("decode replacements: %w", err)
	}
	if errorKind != nil {
		kind := model.ErrorKind(*errorKind)
		rec.ErrorKind = &kind
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func nonNil(pairs model.Replacements) model.Replacements {
	if pairs == nil {
		return model.Replacements{}
	}
	return pairs
}
