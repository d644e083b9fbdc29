package setting

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/score"
)

// ScoreSchemaKey is the data key holding the rate schema.
const ScoreSchemaKey = "SCORE_SCHEMA"

// Data holds application-wide settings by key. Keys this service does not know are kept as is.
type Data map[string]json.RawMessage

// Setting is the single application settings record.
type Setting struct {
	ID        string    `json:"id"`
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// ScoreSchema returns the stored rate schema, or nil if none is set.
func (d Data) ScoreSchema() (*score.RateSchema, error) {
	raw, ok := d[ScoreSchemaKey]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var candidate map[score.Bucket]float64
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return nil, errors.Wrap(err, "decoding score schema")
	}
	rs, err := score.ValidateRates(candidate)
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

// WithScoreSchema returns the data patch setting the rate schema.
func WithScoreSchema(rs score.RateSchema) (Data, error) {
	raw, err := json.Marshal(rs)
	if err != nil {
		return nil, errors.Wrap(err, "encoding score schema")
	}
	return Data{ScoreSchemaKey: raw}, nil
}

// Merge returns a copy of d with the keys of patch set.
func (d Data) Merge(patch Data) Data {
	res := make(Data, len(d)+len(patch))
	for k, v := range d {
		res[k] = v
	}
	for k, v := range patch {
		res[k] = v
	}
	return res
}
