package score

// Slot is a single exam occurrence contributing a raw score.
// The string values are the wire names shared with existing clients.
type Slot string

const (
	SlotShortQuiz1 Slot = "15MIN_1"
	SlotShortQuiz2 Slot = "15MIN_2"
	SlotShortQuiz3 Slot = "15MIN_3"
	SlotInClass1   Slot = "LESSION_1"
	SlotInClass2   Slot = "LESSION_2"
	SlotMidterm    Slot = "MIDDLE"
	SlotFinal      Slot = "FINAL"
)

// Bucket groups slots for weighting purposes.
type Bucket string

const (
	BucketShortQuiz Bucket = "15MIN"
	BucketInClass   Bucket = "LESSION"
	BucketMidterm   Bucket = "MIDDLE"
	BucketFinal     Bucket = "FINAL"
)

const (
	MinScore = 0
	MaxScore = 10
)

var (
	// Slots in display order.
	Slots = []Slot{
		SlotShortQuiz1, SlotShortQuiz2, SlotShortQuiz3,
		SlotInClass1, SlotInClass2,
		SlotMidterm, SlotFinal,
	}

	Buckets = []Bucket{BucketShortQuiz, BucketInClass, BucketMidterm, BucketFinal}

	// RequiredSlots must all be present before a conclusion can be computed or confirmed.
	RequiredSlots = []Slot{SlotMidterm, SlotFinal}

	slotBuckets = map[Slot]Bucket{
		SlotShortQuiz1: BucketShortQuiz,
		SlotShortQuiz2: BucketShortQuiz,
		SlotShortQuiz3: BucketShortQuiz,
		SlotInClass1:   BucketInClass,
		SlotInClass2:   BucketInClass,
		SlotMidterm:    BucketMidterm,
		SlotFinal:      BucketFinal,
	}
)

func (s Slot) Valid() bool {
	_, ok := slotBuckets[s]
	return ok
}

// Bucket returns the rate bucket the slot belongs to.
func (s Slot) Bucket() Bucket {
	return slotBuckets[s]
}

func (b Bucket) Valid() bool {
	switch b {
	case BucketShortQuiz, BucketInClass, BucketMidterm, BucketFinal:
		return true
	}
	return false
}
