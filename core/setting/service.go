package setting

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/score"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("setting not found")
)

type (
	Repository interface {
		// GetSetting returns the settings record, or ErrNotFound if none was saved yet.
		GetSetting(ctx context.Context) (Setting, error)
		// MergeSettingData sets the keys of patch on the settings record, creating it if needed.
		MergeSettingData(ctx context.Context, patch Data, at time.Time) (Setting, error)
	}

	// Service serves the settings and keeps the rate schema in force cached for ttl.
	Service struct {
		repo Repository
		ttl  time.Duration
		now  func() time.Time

		mu       sync.RWMutex
		schema   score.RateSchema
		loadedAt time.Time
		loaded   bool
	}
)

var _ score.RateSchemaSource = (*Service)(nil)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{
		repo:   repo,
		ttl:    conf.RateSchemaTTL,
		now:    time.Now,
		schema: score.DefaultRateSchema,
	}
}

// Get returns the settings record, nil if there is none.
func (svc *Service) Get(ctx context.Context) (*Setting, error) {
	s, err := svc.repo.GetSetting(ctx)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting setting")
	}
	return &s, nil
}

// RateSchema returns the rate schema in force.
// It is score.DefaultRateSchema when none is stored or the stored one is not valid.
func (svc *Service) RateSchema(ctx context.Context) (score.RateSchema, error) {
	svc.mu.RLock()
	if svc.loaded && svc.now().Sub(svc.loadedAt) < svc.ttl {
		rs := svc.schema
		svc.mu.RUnlock()
		return rs, nil
	}
	svc.mu.RUnlock()

	s, err := svc.Get(ctx)
	if err != nil {
		return score.RateSchema{}, err
	}
	rs := score.DefaultRateSchema
	if s != nil {
		if stored, err := s.Data.ScoreSchema(); err == nil && stored != nil {
			rs = *stored
		}
	}

	svc.mu.Lock()
	svc.schema, svc.loadedAt, svc.loaded = rs, svc.now(), true
	svc.mu.Unlock()
	return rs, nil
}

// UpdateRateSchema validates candidate and saves it as the rate schema in force.
// Nothing is saved when it is invalid. Other setting data is kept.
func (svc *Service) UpdateRateSchema(ctx context.Context, candidate map[score.Bucket]float64) (Setting, error) {
	rs, err := score.ValidateRates(candidate)
	if err != nil {
		return Setting{}, err
	}
	patch, err := WithScoreSchema(rs)
	if err != nil {
		return Setting{}, err
	}

	s, err := svc.repo.MergeSettingData(ctx, patch, svc.now().UTC())
	if err != nil {
		return Setting{}, errors.Wrap(err, "saving score schema")
	}

	svc.mu.Lock()
	svc.schema, svc.loadedAt, svc.loaded = rs, svc.now(), true
	svc.mu.Unlock()
	return s, nil
}

// Invalidate drops the cached rate schema.
func (svc *Service) Invalidate() {
	svc.mu.Lock()
	svc.loaded = false
	svc.mu.Unlock()
}
