package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/storage/database"
)

// DatabaseURLEnv names the env var holding the postgres URL used by database tests.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// NewConfig returns the configuration used by tests.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		AppName:          "Alama",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		DefaultFromEmail: "noreply@test.cd",
		RateSchemaTTL:    time.Minute,
		Server: core.ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
	}
}

// NewValidator returns a validator with all custom validations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	score.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB opens and migrates the database at TEST_DATABASE_URL. The test is skipped when it is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = database.Ping(ctx, db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ResetDB(t, db)
	return db
}

// ResetDB empties all tables.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE user_subject_scores, class_subjects, settings, users CASCADE`); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, code, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FullName:  name,
		Code:      code,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClassSubject(
	t *testing.T,
	repo course.Repository,
	className, subjectName, teacherID string,
	year, semester int,
	status course.Status,
) course.ClassSubject {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	cs, err := repo.CreateClassSubject(context.Background(), course.ClassSubject{
		ClassName:   className,
		SubjectName: subjectName,
		SubjectKey:  subjectName,
		TeacherID:   teacherID,
		Year:        year,
		Semester:    semester,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateClassSubject() failed: %v", err)
	}
	return cs
}

// CreateRecord creates an OPEN record holding scores.
func CreateRecord(t *testing.T, repo score.Repository, studentID, classSubjectID string, scores score.Scores) score.Record {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec, _, err := repo.CreateRecordIfNotExists(context.Background(), score.Record{
		StudentID:      studentID,
		ClassSubjectID: classSubjectID,
		Score:          score.Scores{},
		Status:         score.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	if len(scores) > 0 {
		if rec, err = repo.PatchOpenScores(context.Background(), rec.ID, scores, nil, now); err != nil {
			t.Fatalf("CreateRecord() failed: %v", err)
		}
	}
	return rec
}

// ConfirmRecord confirms a record, as it currently stands, with the given persisted average.
func ConfirmRecord(t *testing.T, repo score.Repository, id string, average float64) score.Record {
	t.Helper()
	ctx := context.Background()
	rec, err := repo.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("ConfirmRecord() failed: %v", err)
	}
	rec, err = repo.ConfirmRecord(ctx, id, rec.Score, average, time.Now().UTC())
	if err != nil {
		t.Fatalf("ConfirmRecord() failed: %v", err)
	}
	return rec
}

// F returns a pointer to val.
func F(val float64) *float64 {
	return &val
}
