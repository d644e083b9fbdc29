package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/alama/core/course"
)

type classSubjectRepository struct {
	db *classSubjectTable
}

var _ course.Repository = (*classSubjectRepository)(nil) // interface compliance check

func NewClassSubjectRepository(db *DB) *classSubjectRepository {
	return &classSubjectRepository{db: db.classSubject}
}

func (repo *classSubjectRepository) CreateClassSubject(_ context.Context, cs course.ClassSubject) (course.ClassSubject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cs.ID = uuid.New().String()
	repo.db.t[cs.ID] = &cs
	return cs, nil
}

func (repo *classSubjectRepository) GetClassSubject(_ context.Context, id string) (course.ClassSubject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cs, ok := repo.db.t[id]; ok {
		return *cs, nil
	}
	return course.ClassSubject{}, course.ErrNotFound
}

func (repo *classSubjectRepository) QueryClassSubjects(_ context.Context, filter *course.QueryFilter) ([]course.ClassSubject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]course.ClassSubject, 0, len(repo.db.t))
	for _, cs := range repo.db.t {
		if filter != nil {
			if filter.TeacherID != "" && cs.TeacherID != filter.TeacherID {
				continue
			}
			if filter.Year != 0 && cs.Year != filter.Year {
				continue
			}
			if filter.Semester != 0 && cs.Semester != filter.Semester {
				continue
			}
		}
		subjects = append(subjects, *cs)
	}
	sort.Slice(subjects, func(i, j int) bool {
		a, b := subjects[i], subjects[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Semester != b.Semester {
			return a.Semester > b.Semester
		}
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		return a.SubjectName < b.SubjectName
	})
	return subjects, nil
}

func (repo *classSubjectRepository) UpdateClassSubjectStatus(
	_ context.Context,
	id string,
	status course.Status,
	updatedAt time.Time,
) (course.ClassSubject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cs, ok := repo.db.t[id]
	if !ok {
		return course.ClassSubject{}, course.ErrNotFound
	}
	cs.Status = status
	cs.UpdatedAt = updatedAt
	return *cs, nil
}
