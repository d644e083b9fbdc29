package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/setting"
)

const settingColumns = `id, data, created_at, updated_at`

type settingRow struct {
	ID        string         `db:"id"`
	Data      types.JSONText `db:"data"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r settingRow) setting() (setting.Setting, error) {
	data := make(setting.Data)
	if len(r.Data) > 0 {
		if err := r.Data.Unmarshal(&data); err != nil {
			return setting.Setting{}, errors.Wrap(err, "decoding setting data")
		}
	}
	return setting.Setting{
		ID:        r.ID,
		Data:      data,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

type settingRepository struct {
	exec core.DBExecutor
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(exec core.DBExecutor) *settingRepository {
	return &settingRepository{exec: exec}
}

func (repo settingRepository) GetSetting(ctx context.Context) (setting.Setting, error) {
	var row settingRow
	q := `SELECT ` + settingColumns + ` FROM settings ORDER BY created_at LIMIT 1`
	if err := repo.exec.GetContext(ctx, &row, q); err != nil {
		return setting.Setting{}, trapNoRowsErr(err, setting.ErrNotFound, "selecting setting")
	}
	return row.setting()
}

func (repo settingRepository) MergeSettingData(ctx context.Context, patch setting.Data, at time.Time) (setting.Setting, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return setting.Setting{}, errors.Wrap(err, "encoding setting data")
	}

	q := `INSERT INTO settings (id, data, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (singleton) DO UPDATE SET data = settings.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
		RETURNING ` + settingColumns

	var row settingRow
	if err = repo.exec.GetContext(ctx, &row, q, uuid.New().String(), types.JSONText(data), at.UTC()); err != nil {
		return setting.Setting{}, errors.Wrap(err, "upserting setting")
	}
	return row.setting()
}
