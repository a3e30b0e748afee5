package ranking

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"go.uber.org/zap"
)

// ExportKind selects which artifact family LatestExport looks up.
type ExportKind string

const (
	ExportCSV  ExportKind = "csv"
	ExportJSON ExportKind = "json"
)

const (
	exportTimestampLayout = "20060102_1504"

	fullPrefix   = "nyc_compliance_full_"
	samplePrefix = "nyc_compliance_sample_"
	demoPrefix   = "nyc_compliance_demo_"

	demoSize = 50
)

// Snapshot describes one export of the ranked dataset.
type Snapshot struct {
	RunID       snowflake.ID `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Properties  int          `json:"properties"`
	FullPath    string       `json:"full_path"`
	SamplePath  string       `json:"sample_path"`
	DemoPath    string       `json:"demo_path"`
}

// ExportRecord is the flat serialization of one assessment. The class
// counts carry enough information to re-derive the risk score from the
// record alone.
type ExportRecord struct {
	BBL                string  `json:"bbl"`
	Borough            int     `json:"borough"`
	Exposure           int64   `json:"exposure"`
	RiskScore          float64 `json:"risk_score"`
	ViolationCount     int     `json:"violation_count"`
	OpenViolations     int     `json:"open_violations"`
	ClassA             int     `json:"class_a"`
	ClassB             int     `json:"class_b"`
	ClassC             int     `json:"class_c"`
	OpenClassA         int     `json:"open_class_a"`
	OpenClassB         int     `json:"open_class_b"`
	OpenClassC         int     `json:"open_class_c"`
	RelevantComplaints int     `json:"relevant_complaints"`
	FixPriority        string  `json:"fix_priority"`
	DataFreshnessDate  string  `json:"data_freshness_date"`
	DataCoverageDays   int     `json:"data_coverage_days"`
}

var exportHeader = []string{
	"bbl", "borough", "exposure", "risk_score",
	"violation_count", "open_violations",
	"class_a", "class_b", "class_c",
	"open_class_a", "open_class_b", "open_class_c",
	"relevant_complaints", "fix_priority",
	"data_freshness_date", "data_coverage_days",
}

func newExportRecord(a riskdomain.RiskAssessment) ExportRecord {
	return ExportRecord{
		BBL:                a.BBL,
		Borough:            a.Borough,
		Exposure:           a.Exposure,
		RiskScore:          a.RiskScore,
		ViolationCount:     a.ViolationCount,
		OpenViolations:     a.OpenViolations,
		ClassA:             a.ClassA,
		ClassB:             a.ClassB,
		ClassC:             a.ClassC,
		OpenClassA:         a.OpenClassA,
		OpenClassB:         a.OpenClassB,
		OpenClassC:         a.OpenClassC,
		RelevantComplaints: a.RelevantComplaints,
		FixPriority:        string(a.FixPriority),
		DataFreshnessDate:  a.DataFreshnessDate,
		DataCoverageDays:   a.DataCoverageDays,
	}
}

func (r ExportRecord) csvRow() []string {
	return []string{
		r.BBL,
		strconv.Itoa(r.Borough),
		strconv.FormatInt(r.Exposure, 10),
		strconv.FormatFloat(r.RiskScore, 'f', 2, 64),
		strconv.Itoa(r.ViolationCount),
		strconv.Itoa(r.OpenViolations),
		strconv.Itoa(r.ClassA),
		strconv.Itoa(r.ClassB),
		strconv.Itoa(r.ClassC),
		strconv.Itoa(r.OpenClassA),
		strconv.Itoa(r.OpenClassB),
		strconv.Itoa(r.OpenClassC),
		strconv.Itoa(r.RelevantComplaints),
		r.FixPriority,
		r.DataFreshnessDate,
		strconv.Itoa(r.DataCoverageDays),
	}
}

// ExportSnapshot writes the ranked dataset of the latest succeeded run
// as three artifacts: the full CSV, a top-N JSON sample for client
// outreach and an anonymized demo CSV. Returns ErrNoData when no
// succeeded run with assessments exists yet.
func (s *Service) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	ranked, run, err := s.rankedSnapshot(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load ranked snapshot: %w", err)
	}
	if run == nil || len(ranked) == 0 {
		return nil, ErrNoData
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	records := make([]ExportRecord, len(ranked))
	for i, assessment := range ranked {
		records[i] = newExportRecord(assessment)
	}

	now := s.clock.Now().UTC()
	stamp := now.Format(exportTimestampLayout)

	fullPath := filepath.Join(s.dir, fullPrefix+stamp+".csv")
	if err := writeCSV(fullPath, records); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordExportSnapshot(ctx, "full_csv")

	sampleSize := s.scoring.Get().ExportSampleSize
	if sampleSize > len(records) {
		sampleSize = len(records)
	}
	samplePath := filepath.Join(s.dir, samplePrefix+stamp+".json")
	if err := writeJSON(samplePath, records[:sampleSize]); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordExportSnapshot(ctx, "sample_json")

	demoCount := demoSize
	if demoCount > len(records) {
		demoCount = len(records)
	}
	demo := make([]ExportRecord, demoCount)
	for i, record := range records[:demoCount] {
		record.BBL = fmt.Sprintf("SAMPLE-%04d", i+1)
		demo[i] = record
	}
	demoPath := filepath.Join(s.dir, demoPrefix+stamp+".csv")
	if err := writeCSV(demoPath, demo); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordExportSnapshot(ctx, "demo_csv")

	s.log.Info("export snapshot written",
		zap.String("run_id", run.ID.String()),
		zap.Int("properties", len(records)),
		zap.String("full", fullPath),
		zap.String("sample", samplePath),
	)

	return &Snapshot{
		RunID:       run.ID,
		GeneratedAt: now,
		Properties:  len(records),
		FullPath:    fullPath,
		SamplePath:  samplePath,
		DemoPath:    demoPath,
	}, nil
}

// LatestExport returns the path of the most recent full artifact of the
// given kind. Timestamped names sort lexicographically, so the newest
// file is the greatest matching name.
func (s *Service) LatestExport(kind ExportKind) (string, error) {
	prefix, suffix := fullPrefix, ".csv"
	if kind == ExportJSON {
		prefix, suffix = samplePrefix, ".json"
	}

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return "", ErrNoExports
	}
	if err != nil {
		return "", fmt.Errorf("read export directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", ErrNoExports
	}
	sort.Strings(names)
	return filepath.Join(s.dir, names[len(names)-1]), nil
}

func writeCSV(path string, records []ExportRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record.csvRow()); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

func writeJSON(path string, records []ExportRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode export sample: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export sample: %w", err)
	}
	return nil
}
