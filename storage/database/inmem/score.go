package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/alama/core/score"
)

type recordRepository struct {
	db *recordTable
}

var _ score.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) *recordRepository {
	return &recordRepository{db: db.record}
}

// copyRecord returns a copy of rec not sharing its scores or average.
func copyRecord(rec *score.Record) score.Record {
	cp := *rec
	cp.Score = rec.Score.Copy()
	if rec.AverageScore != nil {
		avg := *rec.AverageScore
		cp.AverageScore = &avg
	}
	return cp
}

func (repo *recordRepository) QueryRecords(_ context.Context, filter *score.QueryFilter) ([]score.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := make([]score.Record, 0, len(repo.db.t))
	for _, rec := range repo.db.t {
		if filter != nil {
			if filter.ClassSubjectID != "" && rec.ClassSubjectID != filter.ClassSubjectID {
				continue
			}
			if filter.StudentID != "" && rec.StudentID != filter.StudentID {
				continue
			}
		}
		recs = append(recs, copyRecord(rec))
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

func (repo *recordRepository) GetRecord(_ context.Context, id string) (score.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.t[id]; ok {
		return copyRecord(rec), nil
	}
	return score.Record{}, score.ErrNotFound
}

func (repo *recordRepository) CreateRecordIfNotExists(_ context.Context, rec score.Record) (score.Record, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.t {
		if existing.StudentID == rec.StudentID && existing.ClassSubjectID == rec.ClassSubjectID {
			return copyRecord(existing), false, nil
		}
	}
	rec.ID = uuid.New().String()
	if rec.Score == nil {
		rec.Score = score.Scores{}
	}
	stored := copyRecord(&rec)
	repo.db.t[rec.ID] = &stored
	return copyRecord(&stored), true, nil
}

func (repo *recordRepository) PatchOpenScores(
	_ context.Context,
	id string,
	set score.Scores,
	unset []score.Slot,
	updatedAt time.Time,
) (score.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.t[id]
	if !ok || rec.Status != score.StatusOpen {
		return score.Record{}, score.ErrNotFound
	}
	for slot, val := range set {
		rec.Score[slot] = val
	}
	for _, slot := range unset {
		delete(rec.Score, slot)
	}
	rec.UpdatedAt = updatedAt
	return copyRecord(rec), nil
}

func (repo *recordRepository) ConfirmRecord(
	_ context.Context,
	id string,
	scores score.Scores,
	average float64,
	updatedAt time.Time,
) (score.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.t[id]
	if !ok || rec.Status != score.StatusOpen || !sameScores(rec.Score, scores) {
		return score.Record{}, score.ErrNotFound
	}
	rec.Status = score.StatusConfirm
	rec.AverageScore = &average
	rec.UpdatedAt = updatedAt
	return copyRecord(rec), nil
}

func sameScores(a, b score.Scores) bool {
	if len(a) != len(b) {
		return false
	}
	for slot, val := range a {
		if other, ok := b[slot]; !ok || other != val {
			return false
		}
	}
	return true
}
