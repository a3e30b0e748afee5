package rollup

import (
	"context"
	"time"

	"github.com/smallbiznis/sentinel/internal/bbl"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	"github.com/smallbiznis/sentinel/internal/severity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("rollup.service"),
	}
}

type rollupRow struct {
	BBL                string     `gorm:"column:bbl"`
	Borough            int        `gorm:"column:borough"`
	ClassA             int        `gorm:"column:class_a"`
	ClassB             int        `gorm:"column:class_b"`
	ClassC             int        `gorm:"column:class_c"`
	OpenClassA         int        `gorm:"column:open_class_a"`
	OpenClassB         int        `gorm:"column:open_class_b"`
	OpenClassC         int        `gorm:"column:open_class_c"`
	RelevantComplaints int        `gorm:"column:relevant_complaints"`
	TotalComplaints    int        `gorm:"column:total_complaints"`
	LastEvent          *time.Time `gorm:"column:last_event"`
}

// BuildAll aggregates every normalized record into per-BBL rollups with a
// single grouped scan. Counting stays in the database so a full run never
// loads the record table into memory.
func (s *Service) BuildAll(ctx context.Context) (map[string]*PropertyRollup, error) {
	var rows []rollupRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT bbl,
		        MAX(borough) AS borough,
		        SUM(CASE WHEN kind = ? AND severity = ? THEN 1 ELSE 0 END) AS class_a,
		        SUM(CASE WHEN kind = ? AND severity = ? THEN 1 ELSE 0 END) AS class_b,
		        SUM(CASE WHEN kind = ? AND severity = ? THEN 1 ELSE 0 END) AS class_c,
		        SUM(CASE WHEN kind = ? AND severity = ? AND open = ? THEN 1 ELSE 0 END) AS open_class_a,
		        SUM(CASE WHEN kind = ? AND severity = ? AND open = ? THEN 1 ELSE 0 END) AS open_class_b,
		        SUM(CASE WHEN kind = ? AND severity = ? AND open = ? THEN 1 ELSE 0 END) AS open_class_c,
		        SUM(CASE WHEN kind = ? AND relevant = ? THEN 1 ELSE 0 END) AS relevant_complaints,
		        SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS total_complaints,
		        MAX(event_date) AS last_event
		 FROM normalized_records
		 GROUP BY bbl`,
		ingestdomain.KindViolation,
		severity.ClassA,
		ingestdomain.KindViolation,
		severity.ClassB,
		ingestdomain.KindViolation,
		severity.ClassC,
		ingestdomain.KindViolation,
		severity.ClassA,
		true,
		ingestdomain.KindViolation,
		severity.ClassB,
		true,
		ingestdomain.KindViolation,
		severity.ClassC,
		true,
		ingestdomain.KindComplaint,
		true,
		ingestdomain.KindComplaint,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	rollups := make(map[string]*PropertyRollup, len(rows))
	for _, row := range rows {
		rollups[row.BBL] = &PropertyRollup{
			BBL:                row.BBL,
			Borough:            row.Borough,
			ClassA:             row.ClassA,
			ClassB:             row.ClassB,
			ClassC:             row.ClassC,
			OpenClassA:         row.OpenClassA,
			OpenClassB:         row.OpenClassB,
			OpenClassC:         row.OpenClassC,
			RelevantComplaints: row.RelevantComplaints,
			TotalComplaints:    row.TotalComplaints,
			LastEvent:          row.LastEvent,
		}
	}
	return rollups, nil
}

// BuildOne aggregates a single property. Violations and complaints arrive
// from different feeds and are aggregated as separate partial batches,
// then merged, so a property present in only one feed still rolls up.
func (s *Service) BuildOne(ctx context.Context, property bbl.BBL) (*PropertyRollup, error) {
	violations, err := s.recordsByKind(ctx, property, ingestdomain.KindViolation)
	if err != nil {
		return nil, err
	}
	complaints, err := s.recordsByKind(ctx, property, ingestdomain.KindComplaint)
	if err != nil {
		return nil, err
	}

	merged := Merge(Aggregate(violations), Aggregate(complaints))
	if rollup, ok := merged[property.String()]; ok {
		return rollup, nil
	}
	return &PropertyRollup{BBL: property.String(), Borough: property.Borough()}, nil
}

func (s *Service) recordsByKind(ctx context.Context, property bbl.BBL, kind ingestdomain.RecordKind) ([]ingestdomain.NormalizedRecord, error) {
	var records []ingestdomain.NormalizedRecord
	if err := s.db.WithContext(ctx).
		Where("bbl = ? AND kind = ?", property.String(), kind).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
