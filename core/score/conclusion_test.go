package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeConclusion(t *testing.T) {
	custom := RateSchema{ShortQuiz: 20, InClass: 20, Midterm: 20, Final: 40}

	tests := []struct {
		name   string
		scores Scores
		schema RateSchema
		want   float64
		wantOk bool
	}{
		{name: "no scores", scores: Scores{}, schema: DefaultRateSchema},
		{name: "nil scores", schema: DefaultRateSchema},
		{name: "FINAL missing", scores: Scores{SlotShortQuiz1: 8, SlotInClass1: 8, SlotMidterm: 8}, schema: DefaultRateSchema},
		{name: "MIDDLE missing", scores: Scores{SlotShortQuiz1: 8, SlotInClass1: 8, SlotFinal: 8}, schema: DefaultRateSchema},
		{
			name:   "all slots",
			scores: Scores{SlotShortQuiz1: 9, SlotShortQuiz2: 9, SlotShortQuiz3: 9, SlotInClass1: 9, SlotInClass2: 9, SlotMidterm: 9, SlotFinal: 9},
			schema: DefaultRateSchema, want: 9, wantOk: true,
		},
		{
			name:   "rounds half up",
			scores: Scores{SlotShortQuiz1: 7, SlotInClass1: 7, SlotMidterm: 7, SlotFinal: 7.05},
			schema: DefaultRateSchema, want: 7.03, wantOk: true,
		},
		{
			name:   "slots of a bucket are averaged",
			scores: Scores{SlotShortQuiz1: 6, SlotShortQuiz2: 8, SlotMidterm: 10, SlotFinal: 10},
			schema: DefaultRateSchema, want: 8.2, wantOk: true,
		},
		{
			name:   "empty buckets are skipped",
			scores: Scores{SlotMidterm: 8, SlotFinal: 6},
			schema: DefaultRateSchema, want: 5, wantOk: true,
		},
		{
			name:   "custom schema",
			scores: Scores{SlotMidterm: 6, SlotFinal: 8},
			schema: custom, want: 4.4, wantOk: true,
		},
		{
			name:   "unknown slots are ignored",
			scores: Scores{Slot("BONUS"): 10, SlotMidterm: 4, SlotFinal: 4},
			schema: DefaultRateSchema, want: 3, wantOk: true,
		},
		{
			name:   "zeros",
			scores: Scores{SlotMidterm: 0, SlotFinal: 0},
			schema: DefaultRateSchema, want: 0, wantOk: true,
		},
		{name: "NaN", scores: Scores{SlotMidterm: math.NaN(), SlotFinal: 5}, schema: DefaultRateSchema},
		{name: "Inf", scores: Scores{SlotMidterm: 5, SlotFinal: math.Inf(1)}, schema: DefaultRateSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComputeConclusion(tt.scores, tt.schema)
			assert.Equal(t, tt.wantOk, ok)
			if tt.wantOk {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		val  float64
		want float64
	}{
		{val: 7.025, want: 7.03},
		{val: 7.024, want: 7.02},
		{val: 0.005, want: 0.01},
		{val: 9, want: 9},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Round2(tt.val), 1e-9, "Round2(%v)", tt.val)
	}
}

func TestRecord_Conclusion(t *testing.T) {
	avg := 6.0
	all9 := Scores{SlotMidterm: 9, SlotFinal: 9}

	tests := []struct {
		name string
		rec  Record
		want *Conclusion
	}{
		{name: "open incomplete", rec: Record{Status: StatusOpen, Score: Scores{SlotMidterm: 9}}},
		{name: "open", rec: Record{Status: StatusOpen, Score: all9}, want: &Conclusion{Value: 6.75, Provisional: true}},
		{name: "confirmed keeps its average", rec: Record{Status: StatusConfirm, Score: all9, AverageScore: &avg}, want: &Conclusion{Value: 6}},
		{name: "confirmed without average", rec: Record{Status: StatusConfirm, Score: all9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Conclusion(DefaultRateSchema))
		})
	}
}

func TestRecord_CanConfirm(t *testing.T) {
	complete := Scores{SlotMidterm: 5, SlotFinal: 5}
	assert.True(t, Record{Status: StatusOpen, Score: complete}.CanConfirm())
	assert.False(t, Record{Status: StatusOpen, Score: Scores{SlotFinal: 5}}.CanConfirm())
	assert.False(t, Record{Status: StatusConfirm, Score: complete}.CanConfirm())
}
