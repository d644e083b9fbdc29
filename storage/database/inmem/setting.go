package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/alama/core/setting"
)

type settingRepository struct {
	db *settingTable
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) *settingRepository {
	return &settingRepository{db: db.setting}
}

func (repo *settingRepository) GetSetting(_ context.Context) (setting.Setting, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.db.s == nil {
		return setting.Setting{}, setting.ErrNotFound
	}
	s := *repo.db.s
	s.Data = s.Data.Merge(nil)
	return s, nil
}

func (repo *settingRepository) MergeSettingData(_ context.Context, patch setting.Data, at time.Time) (setting.Setting, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.s == nil {
		repo.db.s = &setting.Setting{ID: uuid.New().String(), Data: setting.Data{}, CreatedAt: at}
	}
	repo.db.s.Data = repo.db.s.Data.Merge(patch)
	repo.db.s.UpdatedAt = at

	s := *repo.db.s
	s.Data = s.Data.Merge(nil)
	return s, nil
}
