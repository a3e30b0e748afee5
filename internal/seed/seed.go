// Package seed loads a deterministic demo dataset so every read surface
// works before the first live Socrata sync. The demo buildings span all
// five boroughs and land one property in each fix-priority tier.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// socrataTimestamp is the floating-timestamp layout the demo payloads
// mirror so re-normalizing a demo batch parses the same dates.
const socrataTimestamp = "2006-01-02T15:04:05.000"

// demoRecordPrefix marks every seeded source record. The prefix is the
// idempotency key: if any record carries it, seeding already ran.
const demoRecordPrefix = "demo-"

// EnsureDemoData seeds building profiles and normalized records for the
// demo portfolio. Safe to call on every startup; it is a no-op once the
// demo records exist. Dates are laid out relative to now so the heat
// window and freshness views stay populated.
func EnsureDemoData(db *gorm.DB, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	now = now.UTC()
	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ingestdomain.NormalizedRecord
		err := tx.WithContext(ctx).
			Where("source_record_id LIKE ?", demoRecordPrefix+"%").
			First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		seq := 0
		for _, building := range demoBuildings() {
			if err := seedBuilding(ctx, tx, node, building, now, &seq); err != nil {
				return fmt.Errorf("seed %s: %w", building.bbl, err)
			}
		}
		return nil
	})
}

func seedBuilding(ctx context.Context, tx *gorm.DB, node *snowflake.Node, building demoBuilding, now time.Time, seq *int) error {
	profile := riskdomain.BuildingProfile{
		BBL:             building.bbl,
		Address:         building.address,
		Borough:         int(building.bbl[0] - '0'),
		UnitCount:       building.unitCount,
		YearBuilt:       building.yearBuilt,
		CouncilDistrict: building.district,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if building.lastInspectionDays > 0 {
		profile.LastInspection = now.AddDate(0, 0, -building.lastInspectionDays).Format("2006-01-02")
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&profile).Error
	if err != nil {
		return err
	}

	for _, violation := range building.violations {
		*seq++
		raw, record := demoViolationRecords(node, building.bbl, violation, now, *seq)
		if err := createRecordPair(ctx, tx, raw, record); err != nil {
			return err
		}
	}
	for _, complaint := range building.complaints {
		*seq++
		raw, record := demoComplaintRecords(node, building.bbl, complaint, now, *seq)
		if err := createRecordPair(ctx, tx, raw, record); err != nil {
			return err
		}
	}
	return nil
}

func createRecordPair(ctx context.Context, tx *gorm.DB, raw ingestdomain.RawRecord, record ingestdomain.NormalizedRecord) error {
	if err := tx.WithContext(ctx).Create(&raw).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(&record).Error
}

func demoViolationRecords(node *snowflake.Node, bbl string, violation demoViolation, now time.Time, seq int) (ingestdomain.RawRecord, ingestdomain.NormalizedRecord) {
	dataset := socrata.DatasetHPDViolations
	if violation.source == "dob" {
		dataset = socrata.DatasetDOBViolations
	}
	recordID := fmt.Sprintf("%s%s-%04d", demoRecordPrefix, dataset.Source, seq)

	disposition := "OPEN"
	if !violation.open {
		disposition = ingestdomain.DispositionClosed
	}

	record := ingestdomain.NormalizedRecord{
		ID:             node.Generate(),
		Source:         dataset.Source,
		Dataset:        dataset.ID,
		SourceRecordID: recordID,
		Kind:           ingestdomain.KindViolation,
		BBL:            bbl,
		Borough:        int(bbl[0] - '0'),
		Category:       violation.category,
		Severity:       violation.class,
		Disposition:    disposition,
		Open:           violation.open,
		CreatedAt:      now,
	}

	payload := datatypes.JSONMap{
		dataset.IDField:       recordID,
		dataset.BBLField:      bbl,
		dataset.CategoryField: violation.category,
		dataset.StatusField:   disposition,
	}
	if violation.ageDays >= 0 {
		eventDate := now.AddDate(0, 0, -violation.ageDays)
		record.EventDate = &eventDate
		record.DateKnown = true
		payload[dataset.DateField] = eventDate.Format(socrataTimestamp)
	}
	if !violation.open && violation.ageDays >= 0 {
		resolved := now.AddDate(0, 0, -violation.ageDays/2)
		record.ResolvedAt = &resolved
		if dataset.ResolvedDateField != "" {
			payload[dataset.ResolvedDateField] = resolved.Format(socrataTimestamp)
		}
	}

	raw := ingestdomain.RawRecord{
		ID:             node.Generate(),
		Source:         dataset.Source,
		Dataset:        dataset.ID,
		SourceRecordID: recordID,
		Payload:        payload,
		FetchedAt:      now,
		CreatedAt:      now,
	}
	return raw, record
}

func demoComplaintRecords(node *snowflake.Node, bbl string, complaint demoComplaint, now time.Time, seq int) (ingestdomain.RawRecord, ingestdomain.NormalizedRecord) {
	dataset := socrata.Dataset311Complaints
	recordID := fmt.Sprintf("%s%s-%04d", demoRecordPrefix, dataset.Source, seq)

	disposition := "OPEN"
	if !complaint.open {
		disposition = ingestdomain.DispositionClosed
	}

	eventDate := now.AddDate(0, 0, -complaint.ageDays)
	record := ingestdomain.NormalizedRecord{
		ID:             node.Generate(),
		Source:         dataset.Source,
		Dataset:        dataset.ID,
		SourceRecordID: recordID,
		Kind:           ingestdomain.KindComplaint,
		BBL:            bbl,
		Borough:        int(bbl[0] - '0'),
		Category:       complaint.category,
		Relevant:       complaint.relevant,
		Disposition:    disposition,
		Open:           complaint.open,
		EventDate:      &eventDate,
		DateKnown:      true,
		CreatedAt:      now,
	}

	raw := ingestdomain.RawRecord{
		ID:             node.Generate(),
		Source:         dataset.Source,
		Dataset:        dataset.ID,
		SourceRecordID: recordID,
		Payload: datatypes.JSONMap{
			dataset.IDField:       recordID,
			dataset.BBLField:      bbl,
			dataset.DateField:     eventDate.Format(socrataTimestamp),
			dataset.CategoryField: complaint.category,
			dataset.StatusField:   disposition,
		},
		FetchedAt: now,
		CreatedAt: now,
	}
	return raw, record
}
