package score

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("score record not found")
	ErrAlreadyConfirmed   = core.NewConflictError("score record is already confirmed")
	ErrRecordConfirmed    = core.NewConflictError("score record is confirmed and can no longer be changed")
	ErrClassSubjectClosed = core.NewConflictError("class subject is closed")
	ErrConcurrentUpdate   = core.NewConflictError("score record kept changing during confirmation, try again")
	ErrIncompleteRequired = core.NewValidationError(
		errIncomplete,
		core.FieldError{Field: "score", Error: "MIDDLE and FINAL scores are required"},
	)
	errIncomplete     = errors.New("incomplete required fields")
	errNotAStudent    = errors.New("enrolled user is not a student")
	errUnknownStudent = errors.New("enrolled student does not exist")
)

const maxConfirmAttempts = 3

const confirmedEmailBody = `Hello {{.Name}},

Your score in {{.Subject}} ({{.Class}}, {{.Year}} - {{.Semester}}) has been confirmed.

Conclusion score: {{printf "%.2f" .Average}}
`

type (
	// Repository persists score records.
	// PatchOpenScores and ConfirmRecord only write records which are still OPEN and return
	// ErrNotFound when no such record matches. ConfirmRecord also requires the stored scores to
	// equal scores, the ones average was computed from.
	Repository interface {
		QueryRecords(ctx context.Context, filter *QueryFilter) ([]Record, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		CreateRecordIfNotExists(ctx context.Context, rec Record) (Record, bool, error)
		PatchOpenScores(ctx context.Context, id string, set Scores, unset []Slot, updatedAt time.Time) (Record, error)
		ConfirmRecord(ctx context.Context, id string, scores Scores, average float64, updatedAt time.Time) (Record, error)
	}

	// RateSchemaSource provides the rate schema currently in force.
	RateSchemaSource interface {
		RateSchema(ctx context.Context) (RateSchema, error)
	}

	ClassSubjectFinder interface {
		Get(ctx context.Context, id string) (course.ClassSubject, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		Query(ctx context.Context, filter *user.QueryFilter) ([]user.User, error)
	}

	Enrollment struct {
		StudentID      string `json:"student_id" validate:"required,uuid"`
		ClassSubjectID string `json:"class_subject_id" validate:"required,uuid"`
	}

	Service struct {
		repo     Repository
		rates    RateSchemaSource
		subjects ClassSubjectFinder
		users    UserFinder
		mailSvc  core.EmailService
		logger   core.Logger
		validate *validator.Validate
	}
)

func NewService(
	repo Repository,
	rates RateSchemaSource,
	subjects ClassSubjectFinder,
	users UserFinder,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		rates:    rates,
		subjects: subjects,
		users:    users,
		mailSvc:  mailSvc,
		logger:   logger,
		validate: validate,
	}
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Record, error) {
	return svc.repo.GetRecord(ctx, id)
}

// QueryViews lists the records matching filter along with their student, class-subject and conclusion.
func (svc *Service) QueryViews(ctx context.Context, filter *QueryFilter) ([]View, error) {
	recs, err := svc.repo.QueryRecords(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return svc.Views(ctx, recs...)
}

// Views decorates recs with their student, class-subject and conclusion.
// Open records get a provisional conclusion computed with the rate schema in force.
func (svc *Service) Views(ctx context.Context, recs ...Record) ([]View, error) {
	views := make([]View, 0, len(recs))
	if len(recs) == 0 {
		return views, nil
	}

	schema, err := svc.rates.RateSchema(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting rate schema")
	}

	studentIDs := make([]string, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if !seen[rec.StudentID] {
			seen[rec.StudentID] = true
			studentIDs = append(studentIDs, rec.StudentID)
		}
	}
	students, err := svc.users.Query(ctx, &user.QueryFilter{IDs: studentIDs})
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	studentsByID := make(map[string]user.User, len(students))
	for _, usr := range students {
		studentsByID[usr.ID] = usr
	}

	subjects := make(map[string]course.ClassSubject)
	for _, rec := range recs {
		view := View{Record: rec, Conclusion: rec.Conclusion(schema)}
		if usr, ok := studentsByID[rec.StudentID]; ok {
			view.Student = &usr
		}
		cs, ok := subjects[rec.ClassSubjectID]
		if !ok {
			cs, err = svc.subjects.Get(ctx, rec.ClassSubjectID)
			if err != nil {
				return nil, errors.Wrap(err, "getting class subject")
			}
			subjects[rec.ClassSubjectID] = cs
		}
		view.ClassSubject = &cs
		views = append(views, view)
	}
	return views, nil
}

// UpdateScores applies a partial scores update to an OPEN record of an ACTIVE class-subject.
// Concurrent updates of the same record are last-write-wins per slot.
func (svc *Service) UpdateScores(ctx context.Context, id string, upd Update) (Record, error) {
	if err := upd.Validate(svc.validate); err != nil {
		return Record{}, err
	}

	rec, err := svc.writableRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec.IsConfirmed() {
		return Record{}, ErrRecordConfirmed
	}

	set, unset := upd.split()
	rec, err = svc.repo.PatchOpenScores(ctx, id, set, unset, time.Now().UTC())
	if err != nil {
		if core.IsNotFound(err) { // confirmed in the meantime
			return Record{}, ErrRecordConfirmed
		}
		return Record{}, errors.Wrap(err, "patching scores")
	}
	return rec, nil
}

// Confirm persists the conclusion score of an OPEN record, computed with the rate schema in force,
// and moves it to CONFIRM. A record is confirmed at most once; later calls return ErrAlreadyConfirmed.
// The student is then notified by email.
//
// The average is only persisted along with the exact scores it was computed from: when the scores
// change between the read and the write, the record is read again, up to maxConfirmAttempts times.
func (svc *Service) Confirm(ctx context.Context, id string) (Record, error) {
	for attempt := 1; ; attempt++ {
		rec, err := svc.writableRecord(ctx, id)
		if err != nil {
			return Record{}, err
		}
		if rec.IsConfirmed() {
			return Record{}, ErrAlreadyConfirmed
		}
		if !rec.Score.HasRequired() {
			return Record{}, ErrIncompleteRequired
		}

		schema, err := svc.rates.RateSchema(ctx)
		if err != nil {
			return Record{}, errors.Wrap(err, "getting rate schema")
		}
		avg, ok := ComputeConclusion(rec.Score, schema)
		if !ok {
			return Record{}, ErrIncompleteRequired
		}

		confirmed, err := svc.repo.ConfirmRecord(ctx, id, rec.Score, avg, time.Now().UTC())
		if err == nil {
			svc.notifyConfirmed(ctx, confirmed)
			return confirmed, nil
		}
		if !core.IsNotFound(err) {
			return Record{}, errors.Wrap(err, "confirming record")
		}
		// confirmed or scores changed in the meantime
		if attempt == maxConfirmAttempts {
			return Record{}, ErrConcurrentUpdate
		}
	}
}

// writableRecord returns the record if its class-subject is still ACTIVE.
func (svc *Service) writableRecord(ctx context.Context, id string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	cs, err := svc.subjects.Get(ctx, rec.ClassSubjectID)
	if err != nil {
		return Record{}, errors.Wrap(err, "getting class subject")
	}
	if !cs.IsActive() {
		return Record{}, ErrClassSubjectClosed
	}
	return rec, nil
}

func (svc *Service) notifyConfirmed(ctx context.Context, rec Record) {
	if rec.AverageScore == nil {
		return
	}
	student, err := svc.users.GetByID(ctx, rec.StudentID)
	if err != nil {
		svc.logger.Error("notifying confirmed score", errors.Wrap(err, "getting student"))
		return
	}
	cs, err := svc.subjects.Get(ctx, rec.ClassSubjectID)
	if err != nil {
		svc.logger.Error("notifying confirmed score", errors.Wrap(err, "getting class subject"))
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:       []mail.Address{{Name: student.FullName, Address: student.Email}},
		Subject:  fmt.Sprintf("Score confirmed: %s", cs.SubjectName),
		Category: "score-confirmed",
		Body:     confirmedEmailBody,
		Data: map[string]interface{}{
			"Name":     student.FullName,
			"Subject":  cs.SubjectName,
			"Class":    cs.ClassName,
			"Year":     cs.Year,
			"Semester": cs.Semester,
			"Average":  *rec.AverageScore,
		},
	})
}

// Enroll creates the OPEN record of a student in a class-subject.
// Enrolling twice returns the existing record with created set to false.
func (svc *Service) Enroll(ctx context.Context, enr Enrollment) (rec Record, created bool, err error) {
	enr.StudentID = core.CleanString(enr.StudentID)
	enr.ClassSubjectID = core.CleanString(enr.ClassSubjectID)
	if err = svc.validate.Struct(enr); err != nil {
		return Record{}, false, err
	}

	student, err := svc.users.GetByID(ctx, enr.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Record{}, false, core.NewValidationError(
				errUnknownStudent, core.FieldError{Field: "student_id", Error: errUnknownStudent.Error()})
		}
		return Record{}, false, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() {
		return Record{}, false, core.NewValidationError(
			errNotAStudent, core.FieldError{Field: "student_id", Error: errNotAStudent.Error()})
	}

	cs, err := svc.subjects.Get(ctx, enr.ClassSubjectID)
	if err != nil {
		return Record{}, false, err
	}
	if !cs.IsActive() {
		return Record{}, false, ErrClassSubjectClosed
	}

	now := time.Now().UTC()
	return svc.repo.CreateRecordIfNotExists(ctx, Record{
		StudentID:      student.ID,
		ClassSubjectID: cs.ID,
		Score:          Scores{},
		Status:         StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// Transcript returns the yearly report of a student.
func (svc *Service) Transcript(ctx context.Context, studentID string) (Transcript, error) {
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return Transcript{}, err
	}
	if !student.IsStudent() {
		return Transcript{}, user.ErrNotFound
	}

	recs, err := svc.repo.QueryRecords(ctx, &QueryFilter{StudentID: student.ID})
	if err != nil {
		return Transcript{}, errors.Wrap(err, "querying records")
	}

	entries := make([]Entry, 0, len(recs))
	subjects := make(map[string]course.ClassSubject)
	for _, rec := range recs {
		cs, ok := subjects[rec.ClassSubjectID]
		if !ok {
			if cs, err = svc.subjects.Get(ctx, rec.ClassSubjectID); err != nil {
				return Transcript{}, errors.Wrap(err, "getting class subject")
			}
			subjects[rec.ClassSubjectID] = cs
		}
		entries = append(entries, Entry{ClassSubject: cs, Record: rec})
	}
	return BuildTranscript(student.ID, entries), nil
}
