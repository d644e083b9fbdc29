package score_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
	emailsvc "github.com/trezcool/alama/services/email"
	logsvc "github.com/trezcool/alama/services/logger"
	inmemdb "github.com/trezcool/alama/storage/database/inmem"
	"github.com/trezcool/alama/tests"
)

type fixture struct {
	svc        *score.Service
	newService func(repo score.Repository) *score.Service
	settingSvc *setting.Service
	mailSvc    *emailsvc.ConsoleServiceMock
	usrRepo    user.Repository
	csRepo     course.Repository
	recRepo    score.Repository

	student user.User
	teacher user.User
	active  course.ClassSubject
	closed  course.ClassSubject
}

func setup(t *testing.T) *fixture {
	conf := testutil.NewConfig()
	validate, _ := testutil.NewValidator()
	logger := logsvc.NewDiscardLogger()

	db := inmemdb.Open()
	fx := &fixture{
		usrRepo: inmemdb.NewUserRepository(db),
		csRepo:  inmemdb.NewClassSubjectRepository(db),
		recRepo: inmemdb.NewRecordRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}
	usrSvc := user.NewService(fx.usrRepo, validate)
	csSvc := course.NewService(fx.csRepo, usrSvc, validate)
	fx.settingSvc = setting.NewService(inmemdb.NewSettingRepository(db), conf)
	fx.newService = func(repo score.Repository) *score.Service {
		return score.NewService(repo, fx.settingSvc, csSvc, usrSvc, fx.mailSvc, logger, validate)
	}
	fx.svc = fx.newService(fx.recRepo)

	fx.student = testutil.CreateUser(t, fx.usrRepo, "Student", "s01", "s01@test.cd", "", user.RoleStudent, true)
	fx.teacher = testutil.CreateUser(t, fx.usrRepo, "Teacher", "t01", "t01@test.cd", "", user.RoleTeacher, true)
	fx.active = testutil.CreateClassSubject(t, fx.csRepo, "6A", "Maths", fx.teacher.ID, 2020, 1, course.StatusActive)
	fx.closed = testutil.CreateClassSubject(t, fx.csRepo, "6A", "Physics", fx.teacher.ID, 2020, 1, course.StatusClosed)
	return fx
}

func TestService_Confirm(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	incomplete := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{score.SlotMidterm: 7})
	closed := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.closed.ID, score.Scores{score.SlotMidterm: 7, score.SlotFinal: 7})

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "not found", id: "lol", wantErr: score.ErrNotFound},
		{name: "MIDDLE or FINAL missing", id: incomplete.ID, wantErr: score.ErrIncompleteRequired},
		{name: "class subject closed", id: closed.ID, wantErr: score.ErrClassSubjectClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Confirm(ctx, tt.id)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	refreshed, err := fx.recRepo.GetRecord(ctx, incomplete.ID)
	require.NoError(t, err)
	assert.Equal(t, score.StatusOpen, refreshed.Status)
	assert.Nil(t, refreshed.AverageScore)
	assert.Empty(t, fx.mailSvc.SentMessages())
}

func TestService_Confirm_once(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{
		score.SlotShortQuiz1: 7, score.SlotInClass1: 7, score.SlotMidterm: 7, score.SlotFinal: 7.05,
	})

	confirmed, err := fx.svc.Confirm(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, score.StatusConfirm, confirmed.Status)
	if assert.NotNil(t, confirmed.AverageScore) {
		assert.InDelta(t, 7.03, *confirmed.AverageScore, 1e-9)
	}

	// the student got notified
	sent := fx.mailSvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, fx.student.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Maths")
		assert.Contains(t, sent[0].TextContent, "7.03")
	}

	// confirming again is rejected and changes nothing
	_, err = fx.svc.Confirm(ctx, rec.ID)
	assert.Equal(t, score.ErrAlreadyConfirmed, err)
	assert.True(t, core.IsConflict(err))

	// a confirmed record is read-only
	_, err = fx.svc.UpdateScores(ctx, rec.ID, score.Update{Score: map[score.Slot]*float64{score.SlotFinal: testutil.F(10)}})
	assert.Equal(t, score.ErrRecordConfirmed, err)

	refreshed, err := fx.recRepo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, confirmed, refreshed)
	assert.Len(t, fx.mailSvc.SentMessages(), 1)
}

func TestService_Confirm_concurrent(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{
		score.SlotShortQuiz1: 7, score.SlotInClass1: 7, score.SlotMidterm: 7, score.SlotFinal: 7.05,
	})

	const n = 8
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = fx.svc.Confirm(ctx, rec.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, score.ErrAlreadyConfirmed, err)
	}
	assert.Equal(t, 1, succeeded)

	persisted, err := fx.recRepo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, score.StatusConfirm, persisted.Status)
	if assert.NotNil(t, persisted.AverageScore) {
		assert.InDelta(t, 7.03, *persisted.AverageScore, 1e-9)
	}
	assert.Len(t, fx.mailSvc.SentMessages(), 1)
}

func TestService_Confirm_racingUpdates(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{score.SlotMidterm: 6, score.SlotFinal: 6})

	start := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < 50; i++ {
			final := float64(i % 11)
			_, err := fx.svc.UpdateScores(ctx, rec.ID, score.Update{Score: map[score.Slot]*float64{score.SlotFinal: &final}})
			if err == score.ErrRecordConfirmed {
				return
			}
			assert.NoError(t, err)
		}
	}()

	var succeeded int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				_, err := fx.svc.Confirm(ctx, rec.ID)
				switch err {
				case nil:
					atomic.AddInt32(&succeeded, 1)
					return
				case score.ErrAlreadyConfirmed:
					return
				case score.ErrConcurrentUpdate:
					continue
				default:
					t.Errorf("Confirm() unexpected error: %v", err)
					return
				}
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&succeeded))

	persisted, err := fx.recRepo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, score.StatusConfirm, persisted.Status)
	want, ok := score.ComputeConclusion(persisted.Score, score.DefaultRateSchema)
	require.True(t, ok)
	if assert.NotNil(t, persisted.AverageScore) {
		assert.Equal(t, want, *persisted.AverageScore, "average of %v", persisted.Score)
	}
	assert.Len(t, fx.mailSvc.SentMessages(), 1)
}

type scorePatch struct {
	set   score.Scores
	unset []score.Slot
}

// interleavingRepo applies the next pending patch right before each ConfirmRecord,
// like an update landing between the read and the write of Confirm.
type interleavingRepo struct {
	score.Repository
	patches []scorePatch
}

func (repo *interleavingRepo) ConfirmRecord(
	ctx context.Context,
	id string,
	scores score.Scores,
	average float64,
	updatedAt time.Time,
) (score.Record, error) {
	if len(repo.patches) > 0 {
		p := repo.patches[0]
		repo.patches = repo.patches[1:]
		if _, err := repo.PatchOpenScores(ctx, id, p.set, p.unset, updatedAt); err != nil {
			return score.Record{}, err
		}
	}
	return repo.Repository.ConfirmRecord(ctx, id, scores, average, updatedAt)
}

func TestService_Confirm_scoresChangedMeanwhile(t *testing.T) {
	tests := []struct {
		name       string
		patches    []scorePatch
		wantScores score.Scores
		wantAvg    float64
		wantErr    error
	}{
		{
			name:       "average follows the new scores",
			patches:    []scorePatch{{set: score.Scores{score.SlotFinal: 2}}},
			wantScores: score.Scores{score.SlotMidterm: 10, score.SlotFinal: 2},
			wantAvg:    3.5,
		},
		{
			name:       "optional score added",
			patches:    []scorePatch{{set: score.Scores{score.SlotShortQuiz1: 0}}},
			wantScores: score.Scores{score.SlotShortQuiz1: 0, score.SlotMidterm: 10, score.SlotFinal: 10},
			wantAvg:    7.5,
		},
		{
			name:    "required score cleared",
			patches: []scorePatch{{unset: []score.Slot{score.SlotFinal}}},
			wantErr: score.ErrIncompleteRequired,
		},
		{
			name: "scores keep changing",
			patches: []scorePatch{
				{set: score.Scores{score.SlotFinal: 1}},
				{set: score.Scores{score.SlotFinal: 2}},
				{set: score.Scores{score.SlotFinal: 3}},
			},
			wantErr: score.ErrConcurrentUpdate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := setup(t)
			ctx := context.Background()
			svc := fx.newService(&interleavingRepo{Repository: fx.recRepo, patches: tt.patches})

			rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{score.SlotMidterm: 10, score.SlotFinal: 10})
			got, err := svc.Confirm(ctx, rec.ID)

			persisted, gerr := fx.recRepo.GetRecord(ctx, rec.ID)
			require.NoError(t, gerr)

			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				assert.Equal(t, score.StatusOpen, persisted.Status)
				assert.Nil(t, persisted.AverageScore)
				assert.Empty(t, fx.mailSvc.SentMessages())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, persisted, got)
			assert.Equal(t, tt.wantScores, persisted.Score)
			want, ok := score.ComputeConclusion(persisted.Score, score.DefaultRateSchema)
			require.True(t, ok)
			if assert.NotNil(t, persisted.AverageScore) {
				assert.InDelta(t, tt.wantAvg, *persisted.AverageScore, 1e-9)
				assert.Equal(t, want, *persisted.AverageScore)
			}
			assert.Len(t, fx.mailSvc.SentMessages(), 1)
		})
	}
}

func TestService_Confirm_usesSchemaInForce(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.settingSvc.UpdateRateSchema(ctx, map[score.Bucket]float64{
		score.BucketShortQuiz: 20, score.BucketInClass: 20, score.BucketMidterm: 20, score.BucketFinal: 40,
	})
	require.NoError(t, err)

	rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{score.SlotMidterm: 6, score.SlotFinal: 8})
	confirmed, err := fx.svc.Confirm(ctx, rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.4, *confirmed.AverageScore, 1e-9)

	// changing the schema later leaves the persisted average alone
	_, err = fx.settingSvc.UpdateRateSchema(ctx, score.DefaultRateSchema.Candidate())
	require.NoError(t, err)

	views, err := fx.svc.QueryViews(ctx, &score.QueryFilter{StudentID: fx.student.ID})
	require.NoError(t, err)
	if assert.Len(t, views, 1) {
		assert.Equal(t, &score.Conclusion{Value: 4.4}, views[0].Conclusion)
	}
}

func TestService_UpdateScores(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{score.SlotShortQuiz1: 5, score.SlotMidterm: 6})
	closed := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.closed.ID, nil)

	tests := []struct {
		name       string
		id         string
		upd        score.Update
		want       score.Scores
		wantErr    error
		wantErrVal bool
	}{
		{name: "not found", id: "lol", upd: score.Update{Score: map[score.Slot]*float64{}}, wantErr: score.ErrNotFound},
		{name: "unknown slot", id: rec.ID, upd: score.Update{Score: map[score.Slot]*float64{"BONUS": testutil.F(1)}}, wantErrVal: true},
		{name: "out of range", id: rec.ID, upd: score.Update{Score: map[score.Slot]*float64{score.SlotFinal: testutil.F(11)}}, wantErrVal: true},
		{name: "class subject closed", id: closed.ID, upd: score.Update{Score: map[score.Slot]*float64{}}, wantErr: score.ErrClassSubjectClosed},
		{
			name: "partial update",
			id:   rec.ID,
			upd:  score.Update{Score: map[score.Slot]*float64{score.SlotFinal: testutil.F(8.5)}},
			want: score.Scores{score.SlotShortQuiz1: 5, score.SlotMidterm: 6, score.SlotFinal: 8.5},
		},
		{
			name: "clear and overwrite",
			id:   rec.ID,
			upd:  score.Update{Score: map[score.Slot]*float64{score.SlotShortQuiz1: nil, score.SlotMidterm: testutil.F(0)}},
			want: score.Scores{score.SlotMidterm: 0, score.SlotFinal: 8.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.svc.UpdateScores(ctx, tt.id, tt.upd)
			switch {
			case tt.wantErrVal:
				assert.IsType(t, validator.ValidationErrors{}, err)
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			default:
				if assert.NoError(t, err) {
					assert.Equal(t, tt.want, got.Score)
					assert.Equal(t, score.StatusOpen, got.Status)
					assert.Nil(t, got.AverageScore)
				}
			}
		})
	}
}

func TestService_Enroll(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	rec, created, err := fx.svc.Enroll(ctx, score.Enrollment{StudentID: fx.student.ID, ClassSubjectID: fx.active.ID})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, score.StatusOpen, rec.Status)
	assert.Empty(t, rec.Score)

	again, created, err := fx.svc.Enroll(ctx, score.Enrollment{StudentID: fx.student.ID, ClassSubjectID: fx.active.ID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, again.ID)

	isValidationErr := func(err error) bool {
		_, ok := errors.Cause(err).(*core.ValidationError)
		return ok
	}

	_, _, err = fx.svc.Enroll(ctx, score.Enrollment{StudentID: fx.teacher.ID, ClassSubjectID: fx.active.ID})
	assert.True(t, isValidationErr(err), "enrolling a teacher: %v", err)

	_, _, err = fx.svc.Enroll(ctx, score.Enrollment{StudentID: "8d3c1c4e-6b0e-4f4e-9d4e-1f0c1a2b3c4d", ClassSubjectID: fx.active.ID})
	assert.True(t, isValidationErr(err), "enrolling an unknown student: %v", err)

	_, _, err = fx.svc.Enroll(ctx, score.Enrollment{StudentID: "lol", ClassSubjectID: fx.active.ID})
	assert.IsType(t, validator.ValidationErrors{}, err)

	_, _, err = fx.svc.Enroll(ctx, score.Enrollment{StudentID: fx.student.ID, ClassSubjectID: fx.closed.ID})
	assert.Equal(t, score.ErrClassSubjectClosed, err)
}

func TestService_QueryViews(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	open := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, score.Scores{score.SlotMidterm: 8, score.SlotFinal: 6})
	other := testutil.CreateUser(t, fx.usrRepo, "Other", "s02", "s02@test.cd", "", user.RoleStudent, true)
	incomplete := testutil.CreateRecord(t, fx.recRepo, other.ID, fx.active.ID, score.Scores{score.SlotMidterm: 8})

	views, err := fx.svc.QueryViews(ctx, &score.QueryFilter{ClassSubjectID: fx.active.ID})
	require.NoError(t, err)
	require.Len(t, views, 2)

	byID := map[string]score.View{views[0].ID: views[0], views[1].ID: views[1]}
	assert.Equal(t, &score.Conclusion{Value: 5, Provisional: true}, byID[open.ID].Conclusion)
	assert.Equal(t, fx.student.ID, byID[open.ID].Student.ID)
	assert.Equal(t, fx.active.ID, byID[open.ID].ClassSubject.ID)
	assert.Nil(t, byID[incomplete.ID].Conclusion)
	assert.Equal(t, other.ID, byID[incomplete.ID].Student.ID)

	// previews are never written back
	refreshed, err := fx.recRepo.GetRecord(ctx, open.ID)
	require.NoError(t, err)
	assert.Nil(t, refreshed.AverageScore)

	views, err = fx.svc.QueryViews(ctx, &score.QueryFilter{StudentID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestService_Transcript(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	rec := testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.active.ID, nil)
	testutil.ConfirmRecord(t, fx.recRepo, rec.ID, 7.5)
	testutil.CreateRecord(t, fx.recRepo, fx.student.ID, fx.closed.ID, nil)

	tr, err := fx.svc.Transcript(ctx, fx.student.ID)
	require.NoError(t, err)
	require.Len(t, tr.Years, 1)
	sem1 := tr.Years[0].Semesters[0]
	assert.Len(t, sem1.Entries, 2)
	assert.Nil(t, sem1.Average, "an open record withholds the average")

	_, err = fx.svc.Transcript(ctx, fx.teacher.ID)
	assert.Equal(t, user.ErrNotFound, err)

	_, err = fx.svc.Transcript(ctx, "lol")
	assert.Equal(t, user.ErrNotFound, err)
}
