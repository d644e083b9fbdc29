package score

import (
	"fmt"
	"math"
	"sort"
)

// RateSchema holds the percentage weight of each bucket. The four rates sum to 100.
type RateSchema struct {
	ShortQuiz int `json:"15MIN"`
	InClass   int `json:"LESSION"`
	Midterm   int `json:"MIDDLE"`
	Final     int `json:"FINAL"`
}

// DefaultRateSchema is in force until an authoritative schema is loaded, or when none is configured.
var DefaultRateSchema = RateSchema{ShortQuiz: 10, InClass: 15, Midterm: 25, Final: 50}

func (rs RateSchema) Rate(b Bucket) int {
	switch b {
	case BucketShortQuiz:
		return rs.ShortQuiz
	case BucketInClass:
		return rs.InClass
	case BucketMidterm:
		return rs.Midterm
	case BucketFinal:
		return rs.Final
	}
	return 0
}

func (rs RateSchema) Total() int {
	return rs.ShortQuiz + rs.InClass + rs.Midterm + rs.Final
}

// Candidate returns the schema as an unvalidated candidate.
func (rs RateSchema) Candidate() map[Bucket]float64 {
	return map[Bucket]float64{
		BucketShortQuiz: float64(rs.ShortQuiz),
		BucketInClass:   float64(rs.InClass),
		BucketMidterm:   float64(rs.Midterm),
		BucketFinal:     float64(rs.Final),
	}
}

func (rs RateSchema) Validate() error {
	_, err := ValidateRates(rs.Candidate())
	return err
}

// FailReason tells why a rate schema candidate was rejected.
type FailReason string

const (
	FailNotInteger    FailReason = "NotInteger"
	FailOutOfRange    FailReason = "OutOfRange"
	FailSumNot100     FailReason = "SumNot100"
	FailUnknownBucket FailReason = "UnknownBucket"
)

// RateError is returned by ValidateRates.
type RateError struct {
	Reason FailReason
	Bucket Bucket
	Total  int
}

func (err *RateError) Error() string {
	switch err.Reason {
	case FailNotInteger:
		return fmt.Sprintf("rate of %s must be an integer", err.Bucket)
	case FailOutOfRange:
		return fmt.Sprintf("rate of %s must be greater than 0 and at most 100", err.Bucket)
	case FailSumNot100:
		return fmt.Sprintf("invalid rate, current total rate is %d, total must be 100", err.Total)
	case FailUnknownBucket:
		return fmt.Sprintf("unknown rate bucket %q", err.Bucket)
	}
	return string(err.Reason)
}

// ValidateRates checks a rate schema candidate: every bucket rate is a positive integer <= 100 and
// the four rates sum to exactly 100. A missing bucket counts as 0.
func ValidateRates(candidate map[Bucket]float64) (RateSchema, error) {
	unknown := make([]string, 0)
	for b := range candidate {
		if !b.Valid() {
			unknown = append(unknown, string(b))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return RateSchema{}, &RateError{Reason: FailUnknownBucket, Bucket: Bucket(unknown[0])}
	}

	rates := make(map[Bucket]int, len(Buckets))
	var total int
	for _, b := range Buckets {
		val := candidate[b]
		if math.IsNaN(val) || math.IsInf(val, 0) || val != math.Trunc(val) {
			return RateSchema{}, &RateError{Reason: FailNotInteger, Bucket: b}
		}
		if val <= 0 || val > 100 {
			return RateSchema{}, &RateError{Reason: FailOutOfRange, Bucket: b}
		}
		rates[b] = int(val)
		total += int(val)
	}
	if total != 100 {
		return RateSchema{}, &RateError{Reason: FailSumNot100, Total: total}
	}

	return RateSchema{
		ShortQuiz: rates[BucketShortQuiz],
		InClass:   rates[BucketInClass],
		Midterm:   rates[BucketMidterm],
		Final:     rates[BucketFinal],
	}, nil
}
