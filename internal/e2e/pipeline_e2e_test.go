package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type runPayload struct {
	ID              string `json:"id"`
	Trigger         string `json:"trigger"`
	Status          string `json:"status"`
	WindowDays      int    `json:"window_days"`
	FetchedRecords  int    `json:"fetched_records"`
	AcceptedRecords int    `json:"accepted_records"`
	RejectedRecords int    `json:"rejected_records"`
	AssessmentCount int    `json:"assessment_count"`
	Checksum        string `json:"checksum"`
}

type assessmentPayload struct {
	BBL                string  `json:"bbl"`
	Borough            int     `json:"borough"`
	RiskScore          float64 `json:"risk_score"`
	Exposure           int64   `json:"exposure"`
	FixPriority        string  `json:"fix_priority"`
	ViolationCount     int     `json:"violation_count"`
	OpenViolations     int     `json:"open_violations"`
	ClassA             int     `json:"class_a"`
	ClassB             int     `json:"class_b"`
	ClassC             int     `json:"class_c"`
	RelevantComplaints int     `json:"relevant_complaints"`
	DataCoverageDays   int     `json:"data_coverage_days"`
}

type summaryPayload struct {
	BBL                string  `json:"bbl"`
	TotalViolations    int     `json:"total_violations"`
	ClassA             int     `json:"class_a"`
	ClassB             int     `json:"class_b"`
	ClassC             int     `json:"class_c"`
	OpenViolations     int     `json:"open_violations"`
	ResolvedViolations int     `json:"resolved_violations"`
	AvgDaysOpen        float64 `json:"avg_days_open"`
	LastInspection     string  `json:"last_inspection"`
	TotalComplaints    int     `json:"total_complaints"`
	RelevantComplaints int     `json:"relevant_complaints"`
}

type portfolioRiskPayload struct {
	Slug             string         `json:"slug"`
	Name             string         `json:"name"`
	Buildings        int            `json:"buildings"`
	ScoredBuildings  int            `json:"scored_buildings"`
	TotalExposure    int64          `json:"total_exposure"`
	TotalRiskScore   float64        `json:"total_risk_score"`
	AverageRiskScore float64        `json:"average_risk_score"`
	Priorities       map[string]int `json:"priorities"`
	Worst            *struct {
		BBL         string  `json:"bbl"`
		RiskScore   float64 `json:"risk_score"`
		FixPriority string  `json:"fix_priority"`
	} `json:"worst_property"`
}

// triggerRefresh runs the full pipeline through the admin endpoint and
// returns the finished run.
func triggerRefresh(t *testing.T, windowDays int) runPayload {
	t.Helper()

	resp, body := doJSON(t, newHTTPClient(), http.MethodPost, env.baseURL+"/v1/admin/refresh",
		map[string]any{"window_days": windowDays}, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh failed: %d: %s", resp.StatusCode, string(body))
	}

	var run runPayload
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("decode run: %v: %s", err, string(body))
	}
	if run.Status != "SUCCEEDED" {
		t.Fatalf("expected SUCCEEDED run, got %s: %s", run.Status, string(body))
	}
	return run
}

func getAssessment(t *testing.T, bbl string) assessmentPayload {
	t.Helper()

	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/properties/"+bbl+"/risk", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get risk for %s failed: %d: %s", bbl, resp.StatusCode, string(body))
	}
	var assessment assessmentPayload
	if err := json.Unmarshal(body, &assessment); err != nil {
		t.Fatalf("decode assessment: %v", err)
	}
	return assessment
}

func TestE2E_RefreshPipelineScoresProperties(t *testing.T) {
	resetDatabase(t, env.db)

	run := triggerRefresh(t, 60)
	if run.WindowDays != 60 {
		t.Fatalf("expected window of 60 days, got %d", run.WindowDays)
	}
	if run.FetchedRecords != 10 || run.AcceptedRecords != 8 || run.RejectedRecords != 2 {
		t.Fatalf("unexpected ingest counters: fetched=%d accepted=%d rejected=%d",
			run.FetchedRecords, run.AcceptedRecords, run.RejectedRecords)
	}
	if run.AssessmentCount != 2 {
		t.Fatalf("expected 2 assessed properties, got %d", run.AssessmentCount)
	}
	if len(run.Checksum) != 64 {
		t.Fatalf("expected sha256 checksum, got %q", run.Checksum)
	}

	brooklyn := getAssessment(t, "3012340056")
	// 2 class B (2.0 each) + 1 relevant complaint (1.5) + 3 violations (0.5 each).
	if brooklyn.RiskScore != 7.0 {
		t.Fatalf("expected risk score 7.0, got %v", brooklyn.RiskScore)
	}
	if brooklyn.Borough != 3 || brooklyn.Exposure != 27450 {
		t.Fatalf("unexpected borough/exposure: %d/%d", brooklyn.Borough, brooklyn.Exposure)
	}
	if brooklyn.FixPriority != "CRITICAL" {
		t.Fatalf("open class C must rank CRITICAL, got %s", brooklyn.FixPriority)
	}
	if brooklyn.ViolationCount != 3 || brooklyn.OpenViolations != 3 {
		t.Fatalf("unexpected violation counts: total=%d open=%d", brooklyn.ViolationCount, brooklyn.OpenViolations)
	}
	if brooklyn.ClassB != 2 || brooklyn.ClassC != 1 || brooklyn.RelevantComplaints != 1 {
		t.Fatalf("unexpected class rollup: B=%d C=%d relevant=%d",
			brooklyn.ClassB, brooklyn.ClassC, brooklyn.RelevantComplaints)
	}
	if brooklyn.DataCoverageDays != 60 {
		t.Fatalf("expected coverage of 60 days, got %d", brooklyn.DataCoverageDays)
	}

	manhattan := getAssessment(t, "1000010010")
	// 1 relevant complaint (1.5) + 2 violations (0.5 each), Manhattan multiplier 1.2.
	if manhattan.RiskScore != 2.5 {
		t.Fatalf("expected risk score 2.5, got %v", manhattan.RiskScore)
	}
	if manhattan.Exposure != 32940 {
		t.Fatalf("expected exposure 32940, got %d", manhattan.Exposure)
	}
	if manhattan.FixPriority != "LOW" {
		t.Fatalf("expected LOW priority, got %s", manhattan.FixPriority)
	}
	if manhattan.ClassA != 2 || manhattan.OpenViolations != 0 {
		t.Fatalf("unexpected rollup: classA=%d open=%d", manhattan.ClassA, manhattan.OpenViolations)
	}

	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/properties/1000010010/violations", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("violation summary failed: %d: %s", resp.StatusCode, string(body))
	}
	var summary summaryPayload
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalViolations != 2 || summary.ClassA != 2 || summary.ResolvedViolations != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.AvgDaysOpen != 20.0 {
		t.Fatalf("expected avg of 20 days open, got %v", summary.AvgDaysOpen)
	}
	if summary.TotalComplaints != 1 || summary.RelevantComplaints != 1 {
		t.Fatalf("unexpected complaint counts: %+v", summary)
	}
	if summary.LastInspection == "" {
		t.Fatal("expected a last inspection date")
	}
	if _, err := time.Parse("2006-01-02", summary.LastInspection); err != nil {
		t.Fatalf("malformed last inspection date %q: %v", summary.LastInspection, err)
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/properties/3012340056/heat", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heat risk failed: %d: %s", resp.StatusCode, string(body))
	}
	var heat struct {
		BBL     string  `json:"bbl"`
		Level   string  `json:"level"`
		Urgency float64 `json:"urgency"`
	}
	if err := json.Unmarshal(body, &heat); err != nil {
		t.Fatalf("decode heat risk: %v", err)
	}
	if heat.BBL != "3012340056" {
		t.Fatalf("heat model echoed wrong property: %s", heat.BBL)
	}
	switch heat.Level {
	case "LOW", "MODERATE", "HIGH", "CRITICAL":
	default:
		t.Fatalf("unexpected heat level %q", heat.Level)
	}
	if heat.Urgency <= 0 {
		t.Fatalf("expected positive heat urgency, got %v", heat.Urgency)
	}
}

func TestE2E_RefreshIsIdempotent(t *testing.T) {
	resetDatabase(t, env.db)

	first := triggerRefresh(t, 60)
	second := triggerRefresh(t, 60)

	// Upstream records carry stable source IDs, so a rerun lands the same
	// rows and produces the same scores.
	if second.FetchedRecords != 10 || second.AcceptedRecords != 8 {
		t.Fatalf("rerun counters drifted: fetched=%d accepted=%d", second.FetchedRecords, second.AcceptedRecords)
	}
	if first.Checksum != second.Checksum {
		t.Fatalf("rerun checksum drifted: %s vs %s", first.Checksum, second.Checksum)
	}

	if got := countRows(t, env.db, "normalized_records", ""); got != 8 {
		t.Fatalf("expected 8 normalized records after rerun, got %d", got)
	}
	if got := countRows(t, env.db, "raw_records", ""); got != 8 {
		t.Fatalf("expected 8 raw records after rerun, got %d", got)
	}
	if got := countRows(t, env.db, "assessment_runs", ""); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
	if got := countRows(t, env.db, "risk_assessments", ""); got != 4 {
		t.Fatalf("expected 2 assessments per run, got %d total", got)
	}
}

func TestE2E_UnassessedPropertyReadsClean(t *testing.T) {
	resetDatabase(t, env.db)
	triggerRefresh(t, 60)

	// 5000010001 never appears in the feeds. It still resolves, scored on
	// the fly against the latest run's window.
	clean := getAssessment(t, "5000010001")
	if clean.FixPriority != "CLEAN" {
		t.Fatalf("expected CLEAN priority, got %s", clean.FixPriority)
	}
	if clean.RiskScore != 0 || clean.ViolationCount != 0 {
		t.Fatalf("clean property must carry no findings: %+v", clean)
	}
	if clean.Borough != 5 || clean.Exposure != 23332 {
		t.Fatalf("unexpected borough/exposure: %d/%d", clean.Borough, clean.Exposure)
	}
	if clean.DataCoverageDays != 60 {
		t.Fatalf("expected coverage from the latest run, got %d", clean.DataCoverageDays)
	}
}

func TestE2E_BenchmarkNeedsPeers(t *testing.T) {
	resetDatabase(t, env.db)
	triggerRefresh(t, 60)

	// Each fixture property is alone in its borough, so no cohort exists.
	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/properties/3012340056/benchmark", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", resp.StatusCode, string(body))
	}
	envelope := decodeError(t, body)
	if envelope.Error.Code != "insufficient_peer_data" {
		t.Fatalf("expected insufficient_peer_data, got %q", envelope.Error.Code)
	}
}

func TestE2E_PropertyReportPDF(t *testing.T) {
	resetDatabase(t, env.db)
	triggerRefresh(t, 60)

	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/properties/3012340056/report.pdf", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report failed: %d: %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
		t.Fatalf("expected pdf content type, got %q", ct)
	}
	if disposition := resp.Header.Get("Content-Disposition"); !strings.Contains(disposition, "compliance_3012340056.pdf") {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if !strings.HasPrefix(string(body), "%PDF") {
		t.Fatalf("response is not a pdf document: %q", string(body[:min(len(body), 16)]))
	}
}

func TestE2E_SchedulerRunOncePublishesExports(t *testing.T) {
	resetDatabase(t, env.db)

	if err := env.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("scheduler pass failed: %v", err)
	}

	if got := countRows(t, env.db, "assessment_runs", "\"trigger\" = ? AND status = ?", "scheduled", "SUCCEEDED"); got != 1 {
		t.Fatalf("expected 1 scheduled run, got %d", got)
	}

	matches, err := filepath.Glob(filepath.Join(env.exportDir, "nyc_compliance_full_*.csv"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("expected a full export on disk, got %v (err %v)", matches, err)
	}

	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/exports/latest.csv", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csv export failed: %d: %s", resp.StatusCode, string(body))
	}
	if disposition := resp.Header.Get("Content-Disposition"); !strings.Contains(disposition, "nyc_compliance_full_") {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	csv := string(body)
	if !strings.HasPrefix(csv, "bbl,") {
		t.Fatalf("csv is missing its header: %q", csv[:min(len(csv), 40)])
	}
	if !strings.Contains(csv, "3012340056") {
		t.Fatal("csv export is missing the scored property")
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/exports/latest.json", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json export failed: %d: %s", resp.StatusCode, string(body))
	}
	var sample []struct {
		BBL       string  `json:"bbl"`
		RiskScore float64 `json:"risk_score"`
	}
	if err := json.Unmarshal(body, &sample); err != nil {
		t.Fatalf("decode json export: %v", err)
	}
	if len(sample) == 0 || sample[0].BBL != "3012340056" {
		t.Fatalf("expected riskiest property first in sample, got %+v", sample)
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/rankings?limit=1", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rankings failed: %d: %s", resp.StatusCode, string(body))
	}
	var rankings struct {
		Data []assessmentPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &rankings); err != nil {
		t.Fatalf("decode rankings: %v", err)
	}
	if len(rankings.Data) != 1 || rankings.Data[0].BBL != "3012340056" {
		t.Fatalf("expected the critical property to rank first, got %+v", rankings.Data)
	}
}

func TestE2E_PortfolioRiskRollup(t *testing.T) {
	resetDatabase(t, env.db)
	triggerRefresh(t, 60)

	createReq := map[string]any{
		"name": "Harlem Holdings LLC",
		"bbls": []string{"3012340056", "1000010010", "5000010001"},
	}
	resp, body := doJSON(t, newHTTPClient(), http.MethodPost, env.baseURL+"/v1/portfolios", createReq, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create portfolio failed: %d: %s", resp.StatusCode, string(body))
	}
	var created struct {
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	if created.Slug != "harlem-holdings-llc" {
		t.Fatalf("unexpected slug %q", created.Slug)
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/portfolios/"+created.Slug+"/risk", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portfolio risk failed: %d: %s", resp.StatusCode, string(body))
	}
	var summary portfolioRiskPayload
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode portfolio risk: %v", err)
	}
	if summary.Buildings != 3 || summary.ScoredBuildings != 2 {
		t.Fatalf("expected 2 of 3 buildings scored, got %d of %d", summary.ScoredBuildings, summary.Buildings)
	}
	if summary.TotalExposure != 60390 {
		t.Fatalf("expected total exposure 60390, got %d", summary.TotalExposure)
	}
	if summary.TotalRiskScore != 9.5 || summary.AverageRiskScore != 4.75 {
		t.Fatalf("unexpected scores: total=%v avg=%v", summary.TotalRiskScore, summary.AverageRiskScore)
	}
	if summary.Priorities["CRITICAL"] != 1 || summary.Priorities["LOW"] != 1 || summary.Priorities["CLEAN"] != 1 {
		t.Fatalf("unexpected priority histogram: %+v", summary.Priorities)
	}
	if summary.Worst == nil || summary.Worst.BBL != "3012340056" || summary.Worst.RiskScore != 7.0 {
		t.Fatalf("unexpected worst property: %+v", summary.Worst)
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/portfolios/"+created.Slug+"/report.pdf", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portfolio report failed: %d: %s", resp.StatusCode, string(body))
	}
	if !strings.HasPrefix(string(body), "%PDF") {
		t.Fatal("portfolio report is not a pdf document")
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/portfolios/no-such-portfolio/risk", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", resp.StatusCode, string(body))
	}
	envelope := decodeError(t, body)
	if envelope.Error.Type != "not_found" {
		t.Fatalf("expected not_found type, got %q", envelope.Error.Type)
	}
}

func TestE2E_RunHistory(t *testing.T) {
	resetDatabase(t, env.db)
	run := triggerRefresh(t, 60)

	resp, body := doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/admin/runs?status=SUCCEEDED", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list runs failed: %d: %s", resp.StatusCode, string(body))
	}
	var listed struct {
		Data []runPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(listed.Data) != 1 || listed.Data[0].ID != run.ID {
		t.Fatalf("expected the finished run, got %+v", listed.Data)
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/admin/runs/"+run.ID, nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get run failed: %d: %s", resp.StatusCode, string(body))
	}
	var fetched runPayload
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if fetched.Trigger != "manual" || fetched.Status != "SUCCEEDED" {
		t.Fatalf("unexpected run detail: %+v", fetched)
	}

	resp, body = doJSON(t, newHTTPClient(), http.MethodGet, env.baseURL+"/v1/admin/runs/987654321", nil, authHeader(env.adminKey))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown run, got %d: %s", resp.StatusCode, string(body))
	}
	envelope := decodeError(t, body)
	if envelope.Error.Type != "not_found" {
		t.Fatalf("expected not_found type, got %q", envelope.Error.Type)
	}
}
