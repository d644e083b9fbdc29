package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/score"
)

const recordColumns = `id, student_id, class_subject_id, score, average_score, status, created_at, updated_at`

type recordRow struct {
	ID             string         `db:"id"`
	StudentID      string         `db:"student_id"`
	ClassSubjectID string         `db:"class_subject_id"`
	Score          types.JSONText `db:"score"`
	AverageScore   null.Float64   `db:"average_score"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r recordRow) record() (score.Record, error) {
	scores := make(score.Scores)
	if len(r.Score) > 0 {
		if err := r.Score.Unmarshal(&scores); err != nil {
			return score.Record{}, errors.Wrap(err, "decoding scores")
		}
	}
	return score.Record{
		ID:             r.ID,
		StudentID:      r.StudentID,
		ClassSubjectID: r.ClassSubjectID,
		Score:          scores,
		AverageScore:   r.AverageScore.Ptr(),
		Status:         score.Status(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

type recordRepository struct {
	exec core.DBExecutor
}

var _ score.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(exec core.DBExecutor) *recordRepository {
	return &recordRepository{exec: exec}
}

func (repo recordRepository) get(ctx context.Context, q string, args ...interface{}) (score.Record, error) {
	var row recordRow
	if err := repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return score.Record{}, trapNoRowsErr(err, score.ErrNotFound, "selecting score record")
	}
	return row.record()
}

func (repo recordRepository) QueryRecords(ctx context.Context, filter *score.QueryFilter) ([]score.Record, error) {
	var w where
	if filter != nil {
		if filter.ClassSubjectID != "" {
			if !isUUID(filter.ClassSubjectID) {
				return []score.Record{}, nil
			}
			w.add("class_subject_id = ?", filter.ClassSubjectID)
		}
		if filter.StudentID != "" {
			if !isUUID(filter.StudentID) {
				return []score.Record{}, nil
			}
			w.add("student_id = ?", filter.StudentID)
		}
	}

	var rows []recordRow
	q := `SELECT ` + recordColumns + ` FROM user_subject_scores` + w.String() + ` ORDER BY created_at, id`
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting score records")
	}
	recs := make([]score.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (repo recordRepository) GetRecord(ctx context.Context, id string) (score.Record, error) {
	if !isUUID(id) {
		return score.Record{}, score.ErrNotFound
	}
	return repo.get(ctx, `SELECT `+recordColumns+` FROM user_subject_scores WHERE id = $1`, id)
}

func (repo recordRepository) CreateRecordIfNotExists(ctx context.Context, rec score.Record) (score.Record, bool, error) {
	scores, err := json.Marshal(rec.Score)
	if err != nil {
		return score.Record{}, false, errors.Wrap(err, "encoding scores")
	}

	q := `INSERT INTO user_subject_scores (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, class_subject_id) DO NOTHING
		RETURNING ` + recordColumns
	created, err := repo.get(
		ctx, q,
		uuid.New().String(), rec.StudentID, rec.ClassSubjectID, types.JSONText(scores),
		null.Float64FromPtr(rec.AverageScore), string(rec.Status), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err == nil {
		return created, true, nil
	}
	if !core.IsNotFound(err) {
		return score.Record{}, false, errors.Wrap(err, "inserting score record")
	}

	existing, err := repo.get(
		ctx,
		`SELECT `+recordColumns+` FROM user_subject_scores WHERE student_id = $1 AND class_subject_id = $2`,
		rec.StudentID, rec.ClassSubjectID,
	)
	return existing, false, err
}

func (repo recordRepository) PatchOpenScores(
	ctx context.Context,
	id string,
	set score.Scores,
	unset []score.Slot,
	updatedAt time.Time,
) (score.Record, error) {
	if !isUUID(id) {
		return score.Record{}, score.ErrNotFound
	}
	patch, err := json.Marshal(set)
	if err != nil {
		return score.Record{}, errors.Wrap(err, "encoding scores")
	}
	keys := make([]string, 0, len(unset))
	for _, slot := range unset {
		keys = append(keys, string(slot))
	}

	q := `UPDATE user_subject_scores
		SET score = (score || $2::jsonb) - $3::text[], updated_at = $4
		WHERE id = $1 AND status = $5
		RETURNING ` + recordColumns
	return repo.get(ctx, q, id, types.JSONText(patch), pq.Array(keys), updatedAt.UTC(), string(score.StatusOpen))
}

func (repo recordRepository) ConfirmRecord(
	ctx context.Context,
	id string,
	scores score.Scores,
	average float64,
	updatedAt time.Time,
) (score.Record, error) {
	if !isUUID(id) {
		return score.Record{}, score.ErrNotFound
	}
	if scores == nil {
		scores = score.Scores{}
	}
	expected, err := json.Marshal(scores)
	if err != nil {
		return score.Record{}, errors.Wrap(err, "encoding scores")
	}

	// jsonb equality ignores key order and compares numbers by value
	q := `UPDATE user_subject_scores
		SET status = $2, average_score = $3, updated_at = $4
		WHERE id = $1 AND status = $5 AND score = $6::jsonb
		RETURNING ` + recordColumns
	return repo.get(
		ctx, q,
		id, string(score.StatusConfirm), average, updatedAt.UTC(), string(score.StatusOpen), types.JSONText(expected),
	)
}
