package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("class subject not found")
	errNotATeacher    = errors.New("assigned user is not a teacher")
	errUnknownTeacher = errors.New("assigned teacher does not exist")
)

type (
	QueryFilter struct {
		TeacherID string `query:"teacher_id"`
		Year      int    `query:"year"`
		Semester  int    `query:"semester"`
	}

	Repository interface {
		CreateClassSubject(ctx context.Context, cs ClassSubject) (ClassSubject, error)
		GetClassSubject(ctx context.Context, id string) (ClassSubject, error)
		QueryClassSubjects(ctx context.Context, filter *QueryFilter) ([]ClassSubject, error)
		UpdateClassSubjectStatus(ctx context.Context, id string, status Status, updatedAt time.Time) (ClassSubject, error)
	}

	// TeacherFinder looks up the teacher assigned to a class-subject.
	TeacherFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo     Repository
		users    TeacherFinder
		validate *validator.Validate
	}
)

func NewService(repo Repository, users TeacherFinder, validate *validator.Validate) *Service {
	return &Service{repo: repo, users: users, validate: validate}
}

func (svc *Service) Create(ctx context.Context, ncs NewClassSubject) (ClassSubject, error) {
	ncs.Clean()
	if err := svc.validate.Struct(ncs); err != nil {
		return ClassSubject{}, err
	}

	teacher, err := svc.users.GetByID(ctx, ncs.TeacherID)
	if err != nil {
		if core.IsNotFound(err) {
			return ClassSubject{}, core.NewValidationError(
				errUnknownTeacher, core.FieldError{Field: "teacher_id", Error: errUnknownTeacher.Error()})
		}
		return ClassSubject{}, errors.Wrap(err, "finding teacher")
	}
	if !teacher.IsTeacher() {
		return ClassSubject{}, core.NewValidationError(
			errNotATeacher, core.FieldError{Field: "teacher_id", Error: errNotATeacher.Error()})
	}

	now := time.Now().UTC()
	return svc.repo.CreateClassSubject(ctx, ClassSubject{
		ClassName:   ncs.ClassName,
		SubjectName: ncs.SubjectName,
		SubjectKey:  ncs.SubjectKey,
		TeacherID:   ncs.TeacherID,
		Year:        ncs.Year,
		Semester:    ncs.Semester,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (ClassSubject, error) {
	return svc.repo.GetClassSubject(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]ClassSubject, error) {
	return svc.repo.QueryClassSubjects(ctx, filter)
}

// SetStatus opens or closes a class-subject. Scores of a closed class-subject can no longer change.
func (svc *Service) SetStatus(ctx context.Context, id string, us UpdateStatus) (ClassSubject, error) {
	if err := svc.validate.Struct(us); err != nil {
		return ClassSubject{}, err
	}
	return svc.repo.UpdateClassSubjectStatus(ctx, id, us.Status, time.Now().UTC())
}
