package reference

import (
	"context"

	"github.com/smallbiznis/sentinel/internal/bbl"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/reference/domain"
	"github.com/smallbiznis/sentinel/internal/socrata"
)

// The reference surface derives from the live scoring config and the
// dataset registry instead of seeded tables, so it can never drift from
// the multipliers the scorer actually applies.
type repository struct {
	scoring *config.ScoringHolder
}

func NewRepository(scoring *config.ScoringHolder) domain.Repository {
	return &repository{scoring: scoring}
}

func (r *repository) ListBoroughs(ctx context.Context) ([]domain.Borough, error) {
	cfg := r.scoring.Get()

	boroughs := make([]domain.Borough, 0, 5)
	for code := bbl.BoroughManhattan; code <= bbl.BoroughStatenIsland; code++ {
		name := bbl.BoroughName(code)
		multiplier := cfg.BoroughMultiplier(code)
		boroughs = append(boroughs, domain.Borough{
			Code:                  code,
			Name:                  name,
			ExposureMultiplier:    multiplier,
			BaseExposure:          int64(float64(cfg.BaseExposure) * multiplier),
			EnforcementMultiplier: cfg.EnforcementMultiplier(name),
		})
	}
	return boroughs, nil
}

func (r *repository) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	scored := make(map[string]struct{})
	for _, dataset := range socrata.ScoringDatasets() {
		scored[dataset.ID] = struct{}{}
	}

	all := socrata.AllDatasets()
	datasets := make([]domain.Dataset, 0, len(all))
	for _, dataset := range all {
		_, isScored := scored[dataset.ID]
		datasets = append(datasets, domain.Dataset{
			ID:     dataset.ID,
			Name:   dataset.Name,
			Source: dataset.Source,
			Kind:   string(dataset.Kind),
			Scored: isScored,
		})
	}
	return datasets, nil
}
