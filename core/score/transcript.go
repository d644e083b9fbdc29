package score

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/trezcool/alama/core/course"
)

type Level string

// Levels
const (
	LevelVeryGood Level = "Very Good"
	LevelGood     Level = "Good"
	LevelAverage  Level = "Average"
	LevelWeak     Level = "Weak"
	LevelPoor     Level = "Poor"
)

// LevelOf returns the level label of an average score.
func LevelOf(avg float64) Level {
	switch {
	case avg >= 8:
		return LevelVeryGood
	case avg >= 6.5:
		return LevelGood
	case avg >= 5:
		return LevelAverage
	case avg >= 3:
		return LevelWeak
	}
	return LevelPoor
}

type (
	Average struct {
		Value float64 `json:"value"`
		Level Level   `json:"level"`
	}

	// Entry is a score record along with the class-subject it belongs to.
	Entry struct {
		ClassSubject course.ClassSubject `json:"class_subject"`
		Record       Record              `json:"record"`
	}

	SemesterReport struct {
		Semester int      `json:"semester"`
		Entries  []Entry  `json:"entries"`
		Average  *Average `json:"average"`
	}

	YearReport struct {
		Year      int              `json:"year"`
		Semesters []SemesterReport `json:"semesters"`
		Average   *Average         `json:"average"`
	}

	Transcript struct {
		StudentID string       `json:"student_id"`
		Years     []YearReport `json:"years"`
	}
)

// BuildTranscript groups entries by year and semester, years in ascending order.
//
// A semester has an average only when it has entries and all of them are confirmed; it is the mean of
// their persisted averages, a missing one counting as 0. A year has an average only when both of its
// semesters have one.
func BuildTranscript(studentID string, entries []Entry) Transcript {
	byYear := make(map[int]map[int][]Entry)
	for _, e := range entries {
		y := e.ClassSubject.Year
		if byYear[y] == nil {
			byYear[y] = make(map[int][]Entry, 2)
		}
		byYear[y][e.ClassSubject.Semester] = append(byYear[y][e.ClassSubject.Semester], e)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	tr := Transcript{StudentID: studentID, Years: make([]YearReport, 0, len(years))}
	for _, y := range years {
		yr := YearReport{Year: y, Semesters: make([]SemesterReport, 0, 2)}
		avgs := make([]decimal.Decimal, 0, 2)
		for _, sem := range []int{1, 2} {
			sEntries := byYear[y][sem]
			sort.SliceStable(sEntries, func(i, j int) bool {
				return sEntries[i].ClassSubject.SubjectName < sEntries[j].ClassSubject.SubjectName
			})
			sr := SemesterReport{Semester: sem, Entries: sEntries}
			if sr.Entries == nil {
				sr.Entries = []Entry{}
			}
			if avg, ok := semesterAverage(sEntries); ok {
				sr.Average = newAverage(avg)
				avgs = append(avgs, avg)
			}
			yr.Semesters = append(yr.Semesters, sr)
		}
		if len(avgs) == 2 {
			yr.Average = newAverage(mean(avgs))
		}
		tr.Years = append(tr.Years, yr)
	}
	return tr
}

func semesterAverage(entries []Entry) (decimal.Decimal, bool) {
	if len(entries) == 0 {
		return decimal.Zero, false
	}
	vals := make([]decimal.Decimal, 0, len(entries))
	for _, e := range entries {
		if !e.Record.IsConfirmed() {
			return decimal.Zero, false
		}
		if e.Record.AverageScore == nil {
			vals = append(vals, decimal.Zero)
		} else {
			vals = append(vals, decimal.NewFromFloat(*e.Record.AverageScore))
		}
	}
	return mean(vals), true
}

func mean(vals []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(vals[0], vals[1:]...).Div(decimal.NewFromInt(int64(len(vals))))
}

func newAverage(d decimal.Decimal) *Average {
	val, _ := roundHalfUp(d, 2).Float64()
	return &Average{Value: val, Level: LevelOf(val)}
}
