package score

import (
	"math"

	"github.com/shopspring/decimal"
)

// Scores maps the slots that have a value to their raw score. A missing slot has no score.
type Scores map[Slot]float64

// HasRequired reports whether all RequiredSlots have a score.
func (s Scores) HasRequired() bool {
	for _, slot := range RequiredSlots {
		if _, ok := s[slot]; !ok {
			return false
		}
	}
	return true
}

func (s Scores) Copy() Scores {
	cp := make(Scores, len(s))
	for slot, val := range s {
		cp[slot] = val
	}
	return cp
}

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// ComputeConclusion returns the weighted conclusion score of scores under schema.
//
// ok is false unless both MIDDLE and FINAL are present. The slots of each bucket are averaged first,
// the mean is weighted by the bucket rate, and buckets without any score are skipped.
// The sum is rounded half up to 2 decimals. Values are not range checked; non-finite values make the
// conclusion uncomputable.
func ComputeConclusion(scores Scores, schema RateSchema) (conclusion float64, ok bool) {
	if !scores.HasRequired() {
		return 0, false
	}

	groups := make(map[Bucket][]decimal.Decimal, len(Buckets))
	for slot, val := range scores {
		if !slot.Valid() {
			continue
		}
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		b := slot.Bucket()
		groups[b] = append(groups[b], decimal.NewFromFloat(val))
	}

	total := decimal.Zero
	for _, b := range Buckets {
		vals := groups[b]
		if len(vals) == 0 {
			continue
		}
		mean := decimal.Sum(vals[0], vals[1:]...).Div(decimal.NewFromInt(int64(len(vals))))
		total = total.Add(mean.Mul(decimal.NewFromInt(int64(schema.Rate(b)))).Div(hundred))
	}

	conclusion, _ = roundHalfUp(total, 2).Float64()
	return conclusion, true
}

// roundHalfUp rounds d to places decimals, ties going towards positive infinity.
func roundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// Round2 rounds val half up to 2 decimals.
func Round2(val float64) float64 {
	r, _ := roundHalfUp(decimal.NewFromFloat(val), 2).Float64()
	return r
}
