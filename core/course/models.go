package course

import (
	"time"

	"github.com/trezcool/alama/core"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// ClassSubject is a subject taught to a class by a teacher during one semester of a school year.
type ClassSubject struct {
	ID          string    `json:"id"`
	ClassName   string    `json:"class_name"`
	SubjectName string    `json:"subject_name"`
	SubjectKey  string    `json:"subject_key"`
	TeacherID   string    `json:"teacher_id"`
	Year        int       `json:"year"`
	Semester    int       `json:"semester"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (cs ClassSubject) IsActive() bool {
	return cs.Status == StatusActive
}

// IsTaughtBy reports whether userID is the teacher assigned to the class-subject.
func (cs ClassSubject) IsTaughtBy(userID string) bool {
	return cs.TeacherID != "" && cs.TeacherID == userID
}

// NewClassSubject contains information needed to create a new ClassSubject.
type NewClassSubject struct {
	ClassName   string `json:"class_name" validate:"required"`
	SubjectName string `json:"subject_name" validate:"required"`
	SubjectKey  string `json:"subject_key" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required,uuid"`
	Year        int    `json:"year" validate:"required,gte=1000,lte=9999"`
	Semester    int    `json:"semester" validate:"required,oneof=1 2"`
}

func (ncs *NewClassSubject) Clean() {
	ncs.ClassName = core.CleanString(ncs.ClassName)
	ncs.SubjectName = core.CleanString(ncs.SubjectName)
	ncs.SubjectKey = core.CleanString(ncs.SubjectKey, true /* lower */)
	ncs.TeacherID = core.CleanString(ncs.TeacherID)
}

type UpdateStatus struct {
	Status Status `json:"status" validate:"required,oneof=ACTIVE CLOSED"`
}
