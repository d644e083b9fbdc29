package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
)

const classSubjectColumns = `id, class_name, subject_name, subject_key, teacher_id, year, semester, status, created_at, updated_at`

type classSubjectRow struct {
	ID          string      `db:"id"`
	ClassName   string      `db:"class_name"`
	SubjectName string      `db:"subject_name"`
	SubjectKey  string      `db:"subject_key"`
	TeacherID   null.String `db:"teacher_id"`
	Year        int         `db:"year"`
	Semester    int         `db:"semester"`
	Status      string      `db:"status"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r classSubjectRow) classSubject() course.ClassSubject {
	return course.ClassSubject{
		ID:          r.ID,
		ClassName:   r.ClassName,
		SubjectName: r.SubjectName,
		SubjectKey:  r.SubjectKey,
		TeacherID:   r.TeacherID.String,
		Year:        r.Year,
		Semester:    r.Semester,
		Status:      course.Status(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type classSubjectRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*classSubjectRepository)(nil) // interface compliance check

func NewClassSubjectRepository(exec core.DBExecutor) *classSubjectRepository {
	return &classSubjectRepository{exec: exec}
}

func (repo classSubjectRepository) CreateClassSubject(ctx context.Context, cs course.ClassSubject) (course.ClassSubject, error) {
	cs.ID = uuid.New().String()
	q := `INSERT INTO class_subjects (` + classSubjectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + classSubjectColumns

	var row classSubjectRow
	err := repo.exec.GetContext(
		ctx, &row, q,
		cs.ID, cs.ClassName, cs.SubjectName, cs.SubjectKey, null.NewString(cs.TeacherID, cs.TeacherID != ""),
		cs.Year, cs.Semester, string(cs.Status), cs.CreatedAt.UTC(), cs.UpdatedAt.UTC(),
	)
	if err != nil {
		return course.ClassSubject{}, errors.Wrap(err, "inserting class subject")
	}
	return row.classSubject(), nil
}

func (repo classSubjectRepository) GetClassSubject(ctx context.Context, id string) (course.ClassSubject, error) {
	if !isUUID(id) {
		return course.ClassSubject{}, course.ErrNotFound
	}
	var row classSubjectRow
	q := `SELECT ` + classSubjectColumns + ` FROM class_subjects WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return course.ClassSubject{}, trapNoRowsErr(err, course.ErrNotFound, "selecting class subject")
	}
	return row.classSubject(), nil
}

func (repo classSubjectRepository) QueryClassSubjects(ctx context.Context, filter *course.QueryFilter) ([]course.ClassSubject, error) {
	var w where
	if filter != nil {
		if filter.TeacherID != "" {
			if !isUUID(filter.TeacherID) {
				return []course.ClassSubject{}, nil
			}
			w.add("teacher_id = ?", filter.TeacherID)
		}
		if filter.Year != 0 {
			w.add("year = ?", filter.Year)
		}
		if filter.Semester != 0 {
			w.add("semester = ?", filter.Semester)
		}
	}

	var rows []classSubjectRow
	q := `SELECT ` + classSubjectColumns + ` FROM class_subjects` + w.String() +
		` ORDER BY year DESC, semester DESC, class_name, subject_name`
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting class subjects")
	}
	subjects := make([]course.ClassSubject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.classSubject())
	}
	return subjects, nil
}

func (repo classSubjectRepository) UpdateClassSubjectStatus(
	ctx context.Context,
	id string,
	status course.Status,
	updatedAt time.Time,
) (course.ClassSubject, error) {
	if !isUUID(id) {
		return course.ClassSubject{}, course.ErrNotFound
	}
	var row classSubjectRow
	q := `UPDATE class_subjects SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + classSubjectColumns
	if err := repo.exec.GetContext(ctx, &row, q, id, string(status), updatedAt.UTC()); err != nil {
		return course.ClassSubject{}, trapNoRowsErr(err, course.ErrNotFound, "updating class subject status")
	}
	return row.classSubject(), nil
}
