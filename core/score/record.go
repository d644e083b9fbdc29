package score

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/user"
)

type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusConfirm Status = "CONFIRM"
)

// Record holds the scores of one student in one class-subject.
// AverageScore is only set when the record gets confirmed; CONFIRM is terminal.
type Record struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	ClassSubjectID string    `json:"class_subject_id"`
	Score          Scores    `json:"score"`
	AverageScore   *float64  `json:"average_score"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

func (r Record) IsConfirmed() bool {
	return r.Status == StatusConfirm
}

// CanConfirm reports whether the confirm preconditions hold: OPEN with MIDDLE and FINAL scored.
func (r Record) CanConfirm() bool {
	return r.Status == StatusOpen && r.Score.HasRequired()
}

// Conclusion is the conclusion score shown for a record.
type Conclusion struct {
	Value       float64 `json:"value"`
	Provisional bool    `json:"provisional"`
}

// Conclusion returns the persisted average of a confirmed record, or a provisional preview computed
// with schema for an open one. It is nil when there is nothing to show.
// A confirmed record is never recomputed.
func (r Record) Conclusion(schema RateSchema) *Conclusion {
	if r.IsConfirmed() {
		if r.AverageScore == nil {
			return nil
		}
		return &Conclusion{Value: *r.AverageScore}
	}
	val, ok := ComputeConclusion(r.Score, schema)
	if !ok {
		return nil
	}
	return &Conclusion{Value: val, Provisional: true}
}

// View is a Record as listed: with its student, class-subject and conclusion.
type View struct {
	Record
	Student      *user.User           `json:"student,omitempty"`
	ClassSubject *course.ClassSubject `json:"class_subject,omitempty"`
	Conclusion   *Conclusion          `json:"conclusion"`
}

// Update is a partial update of the slot scores of an open record.
// A slot set to null is cleared, an absent slot is left untouched.
type Update struct {
	Score map[Slot]*float64 `json:"score" validate:"required,dive,keys,slot,endkeys,omitempty,gte=0,lte=10"`
}

func (u Update) Validate(validate *validator.Validate) error {
	return validate.Struct(u)
}

// Apply returns the scores resulting from applying the update to scores.
func (u Update) Apply(scores Scores) Scores {
	res := scores.Copy()
	for slot, val := range u.Score {
		if val == nil {
			delete(res, slot)
		} else {
			res[slot] = *val
		}
	}
	return res
}

// split returns the slots to set and the slots to clear.
func (u Update) split() (Scores, []Slot) {
	set := make(Scores, len(u.Score))
	unset := make([]Slot, 0)
	for _, slot := range Slots {
		val, ok := u.Score[slot]
		if !ok {
			continue
		}
		if val == nil {
			unset = append(unset, slot)
		} else {
			set[slot] = *val
		}
	}
	return set, unset
}

type QueryFilter struct {
	ClassSubjectID string `query:"class_subject_id"`
	StudentID      string `query:"student_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf == nil || (qf.ClassSubjectID == "" && qf.StudentID == "")
}
