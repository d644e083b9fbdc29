package inmemdb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	inmemdb "github.com/trezcool/alama/storage/database/inmem"
	"github.com/trezcool/alama/tests"
)

func TestRecordRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewRecordRepository(inmemdb.Open())

	rec := testutil.CreateRecord(t, repo, "s1", "cs1", score.Scores{score.SlotMidterm: 6})
	testutil.CreateRecord(t, repo, "s2", "cs1", nil)
	testutil.CreateRecord(t, repo, "s1", "cs2", nil)

	again := testutil.CreateRecord(t, repo, "s1", "cs1", nil)
	assert.Equal(t, rec.ID, again.ID, "one record per student and class subject")

	recs, err := repo.QueryRecords(ctx, &score.QueryFilter{ClassSubjectID: "cs1"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	recs, err = repo.QueryRecords(ctx, &score.QueryFilter{StudentID: "s1", ClassSubjectID: "cs2"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// returned records do not share state with the store
	got, err := repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	got.Score[score.SlotFinal] = 10
	got, err = repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, score.Scores{score.SlotMidterm: 6}, got.Score)

	got, err = repo.PatchOpenScores(ctx, rec.ID, score.Scores{score.SlotFinal: 7}, []score.Slot{score.SlotMidterm}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, score.Scores{score.SlotFinal: 7}, got.Score)

	// scores the average was not computed from are refused
	for _, stale := range []score.Scores{nil, {score.SlotFinal: 8}, {score.SlotFinal: 7, score.SlotMidterm: 5}} {
		_, err = repo.ConfirmRecord(ctx, rec.ID, stale, 3.5, time.Now())
		assert.Equal(t, score.ErrNotFound, err, "%v", stale)
	}

	confirmed := testutil.ConfirmRecord(t, repo, rec.ID, 3.5)
	assert.Equal(t, score.StatusConfirm, confirmed.Status)

	_, err = repo.ConfirmRecord(ctx, rec.ID, score.Scores{score.SlotFinal: 7}, 9, time.Now())
	assert.Equal(t, score.ErrNotFound, err)
	_, err = repo.PatchOpenScores(ctx, rec.ID, score.Scores{score.SlotFinal: 1}, nil, time.Now())
	assert.Equal(t, score.ErrNotFound, err)
	_, err = repo.GetRecord(ctx, "lol")
	assert.Equal(t, score.ErrNotFound, err)
}

func TestRecordRepository_ConfirmRecord_concurrent(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewRecordRepository(inmemdb.Open())
	scores := score.Scores{score.SlotMidterm: 6, score.SlotFinal: 8}
	rec := testutil.CreateRecord(t, repo, "s1", "cs1", scores)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.ConfirmRecord(ctx, rec.ID, scores, float64(i), time.Now())
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			assert.Equal(t, -1, winner, "confirmed twice")
			winner = i
			continue
		}
		assert.Equal(t, score.ErrNotFound, err)
	}
	require.NotEqual(t, -1, winner)

	got, err := repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	if assert.NotNil(t, got.AverageScore) {
		assert.Equal(t, float64(winner), *got.AverageScore)
	}
}

func TestSettingRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewSettingRepository(inmemdb.Open())

	_, err := repo.GetSetting(ctx)
	assert.Equal(t, setting.ErrNotFound, err)

	patch, err := setting.WithScoreSchema(score.DefaultRateSchema)
	require.NoError(t, err)
	s, err := repo.MergeSettingData(ctx, patch, time.Now())
	require.NoError(t, err)

	got, err := repo.GetSetting(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
