package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/bbl"
	"github.com/smallbiznis/sentinel/internal/config"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	obsmetrics "github.com/smallbiznis/sentinel/internal/observability/metrics"
	"github.com/smallbiznis/sentinel/internal/severity"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"github.com/smallbiznis/sentinel/pkg/db/option"
	"github.com/smallbiznis/sentinel/pkg/db/pagination"
	"github.com/smallbiznis/sentinel/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Fetcher    *socrata.Client
	Scoring    *config.ScoringHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	fetcher    *socrata.Client
	scoring    *config.ScoringHolder
	obsMetrics *obsmetrics.Metrics
	recordRepo repository.Repository[ingestdomain.NormalizedRecord]
}

func NewService(p ServiceParam) ingestdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("ingest.service"),

		genID:      p.GenID,
		fetcher:    p.Fetcher,
		scoring:    p.Scoring,
		obsMetrics: p.ObsMetrics,
		recordRepo: repository.ProvideStore[ingestdomain.NormalizedRecord](p.DB),
	}
}

// SyncSources fetches every requested feed over the window and lands the
// accepted records. Feeds fail independently; the returned error joins
// per-feed fetch failures while the successful feeds keep their data.
func (s *Service) SyncSources(ctx context.Context, req ingestdomain.SyncRequest) (*ingestdomain.SyncResult, error) {
	window := req.WindowDays
	if window == 0 {
		window = s.fetcher.WindowDays()
	}
	if window < 0 {
		return nil, ingestdomain.ErrInvalidWindow
	}

	datasets, err := resolveDatasets(req.Datasets)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -window)
	norm := newNormalizer(s.scoring.Get())

	result := &ingestdomain.SyncResult{
		WindowDays: window,
		StartedAt:  now,
	}

	var errs []error
	for _, ds := range datasets {
		sync := s.syncDataset(ctx, ds, norm, since)
		if sync.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", ds.ID, sync.Error))
		}
		result.Datasets = append(result.Datasets, sync)
		result.Fetched += sync.Fetched
		result.Accepted += sync.Accepted
		result.Rejected += sync.Rejected
		result.UnknownDates += sync.UnknownDates
	}
	result.CompletedAt = time.Now().UTC()

	s.log.Info("sync completed",
		zap.Int("window_days", window),
		zap.Int("fetched", result.Fetched),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.Int("unknown_dates", result.UnknownDates),
	)

	return result, errors.Join(errs...)
}

func (s *Service) syncDataset(ctx context.Context, ds socrata.Dataset, norm *normalizer, since time.Time) ingestdomain.DatasetSync {
	sync := ingestdomain.DatasetSync{Dataset: ds.ID, Name: ds.Name}

	fetched, err := s.fetcher.FetchWindow(ctx, ds, since)
	if err != nil {
		sync.Error = err.Error()
		s.obsMetrics.RecordDatasetFetch(ctx, ds.ID, "error")
		s.log.Warn("dataset fetch failed",
			zap.String("dataset", ds.ID),
			zap.Error(err),
		)
		return sync
	}
	sync.Fetched = len(fetched)
	s.obsMetrics.RecordDatasetFetch(ctx, ds.ID, "ok")

	now := time.Now().UTC()
	raws := make([]ingestdomain.RawRecord, 0, len(fetched))
	accepted := make([]ingestdomain.NormalizedRecord, 0, len(fetched))
	rejections := map[string]int{}

	for _, rec := range fetched {
		record, reason := norm.normalize(ds, rec)
		if reason != "" {
			sync.Rejected++
			rejections[reason]++
			continue
		}

		raws = append(raws, ingestdomain.RawRecord{
			ID:             s.genID.Generate(),
			Source:         ds.Source,
			Dataset:        ds.ID,
			SourceRecordID: record.SourceRecordID,
			Payload:        datatypes.JSONMap(rec),
			FetchedAt:      now,
		})

		record.ID = s.genID.Generate()
		record.CreatedAt = now
		if !record.DateKnown {
			sync.UnknownDates++
		}
		accepted = append(accepted, *record)
	}

	for reason, count := range rejections {
		s.obsMetrics.RecordRejected(ctx, ds.Source, reason, count)
	}

	if err := s.insertRawBatch(ctx, raws); err != nil {
		sync.Error = err.Error()
		return sync
	}
	if err := s.insertNormalizedBatch(ctx, accepted); err != nil {
		sync.Error = err.Error()
		return sync
	}

	sync.Accepted = len(accepted)
	s.obsMetrics.RecordIngested(ctx, ds.Source, sync.Accepted)
	return sync
}

// ViolationSummary folds every stored record for one property into the
// per-class, open-vs-resolved read model.
func (s *Service) ViolationSummary(ctx context.Context, rawBBL string) (*ingestdomain.ViolationSummary, error) {
	parsed, err := bbl.Parse(rawBBL)
	if err != nil {
		return nil, ingestdomain.ErrInvalidBBL
	}

	records, err := s.recordRepo.Find(ctx, &ingestdomain.NormalizedRecord{BBL: parsed.String()})
	if err != nil {
		return nil, err
	}
	return summarize(parsed.String(), records), nil
}

// HeatComplaintCount counts dated heat and hot-water complaints for a
// property since the given time. Used by the seasonal heat model's
// complaint-velocity factor.
func (s *Service) HeatComplaintCount(ctx context.Context, rawBBL string, since time.Time) (int, error) {
	parsed, err := bbl.Parse(rawBBL)
	if err != nil {
		return 0, ingestdomain.ErrInvalidBBL
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&ingestdomain.NormalizedRecord{}).
		Where("kind = ? AND bbl = ?", ingestdomain.KindComplaint, parsed.String()).
		Where("UPPER(category) LIKE ? OR UPPER(category) LIKE ?", "%HEAT%", "%HOT WATER%").
		Where("event_date >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *Service) List(ctx context.Context, req ingestdomain.ListRecordsRequest) (ingestdomain.ListRecordsResponse, error) {
	filter, pageSize, err := buildRecordFilter(req)
	if err != nil {
		return ingestdomain.ListRecordsResponse{}, err
	}

	items, err := s.recordRepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "event_date": true}}),
	)
	if err != nil {
		return ingestdomain.ListRecordsResponse{}, err
	}
	return buildRecordListResponse(items, pageSize)
}

func (s *Service) insertRawBatch(ctx context.Context, records []ingestdomain.RawRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(sourceRecordConflictClause()).
		CreateInBatches(records, insertBatchSize).Error
}

func (s *Service) insertNormalizedBatch(ctx context.Context, records []ingestdomain.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(sourceRecordConflictClause()).
		CreateInBatches(records, insertBatchSize).Error
}

// sourceRecordConflictClause makes re-ingesting a window idempotent:
// records already present under their (source, source_record_id) key are
// skipped, not duplicated. Works across postgres, mysql and sqlite.
func sourceRecordConflictClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "source_record_id"}},
		DoNothing: true,
	}
}

func resolveDatasets(ids []string) ([]socrata.Dataset, error) {
	scoring := socrata.ScoringDatasets()
	if len(ids) == 0 {
		return scoring, nil
	}

	byID := make(map[string]socrata.Dataset, len(scoring))
	for _, ds := range scoring {
		byID[ds.ID] = ds
	}

	datasets := make([]socrata.Dataset, 0, len(ids))
	for _, id := range ids {
		ds, ok := byID[strings.TrimSpace(id)]
		if !ok {
			return nil, ingestdomain.ErrInvalidDataset
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func summarize(propertyBBL string, records []*ingestdomain.NormalizedRecord) *ingestdomain.ViolationSummary {
	summary := &ingestdomain.ViolationSummary{BBL: propertyBBL}

	var resolvedDays float64
	var resolvedWithDates int
	var lastInspection time.Time

	for _, record := range records {
		if record == nil {
			continue
		}
		switch record.Kind {
		case ingestdomain.KindViolation:
			summary.TotalViolations++
			switch record.Severity {
			case severity.ClassA:
				summary.ClassA++
			case severity.ClassB:
				summary.ClassB++
			case severity.ClassC:
				summary.ClassC++
			}
			if record.Open {
				summary.OpenViolations++
			} else {
				summary.ResolvedViolations++
				if record.EventDate != nil && record.ResolvedAt != nil {
					resolvedDays += record.ResolvedAt.Sub(*record.EventDate).Hours() / 24
					resolvedWithDates++
				}
			}
			if record.DateKnown && record.EventDate.After(lastInspection) {
				lastInspection = *record.EventDate
			}
		case ingestdomain.KindComplaint:
			summary.TotalComplaints++
			if record.Relevant {
				summary.RelevantComplaints++
			}
		}
	}

	if resolvedWithDates > 0 {
		summary.AvgDaysOpen = math.Round(resolvedDays/float64(resolvedWithDates)*10) / 10
	}
	if !lastInspection.IsZero() {
		summary.LastInspection = lastInspection.Format("2006-01-02")
	}
	return summary
}

func buildRecordFilter(req ingestdomain.ListRecordsRequest) (*ingestdomain.NormalizedRecord, int32, error) {
	filter := &ingestdomain.NormalizedRecord{
		Source: strings.TrimSpace(req.Source),
	}

	if req.BBL != "" {
		parsed, err := bbl.Parse(req.BBL)
		if err != nil {
			return nil, 0, ingestdomain.ErrInvalidBBL
		}
		filter.BBL = parsed.String()
	}

	switch kind := ingestdomain.RecordKind(strings.TrimSpace(req.Kind)); kind {
	case "", ingestdomain.KindViolation, ingestdomain.KindComplaint:
		filter.Kind = kind
	default:
		return nil, 0, ingestdomain.ErrInvalidDataset
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return filter, pageSize, nil
}

func buildRecordListResponse(items []*ingestdomain.NormalizedRecord, pageSize int32) (ingestdomain.ListRecordsResponse, error) {
	items, pageInfo := pagination.TrimPage(items, pageSize, func(record *ingestdomain.NormalizedRecord) string {
		token, err := pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		}.Encode()
		if err != nil {
			return ""
		}
		return token
	})

	records := make([]ingestdomain.NormalizedRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	resp := ingestdomain.ListRecordsResponse{
		Records:  records,
		PageInfo: *pageInfo,
	}
	return resp, nil
}
