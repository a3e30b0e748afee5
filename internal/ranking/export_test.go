package ranking

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportSnapshotWritesArtifacts(t *testing.T) {
	h := setupRankingService(t)

	run := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	h.seedAssessment(t, run, "3012340056", 1, 1, 1, 1)
	h.seedAssessment(t, run, "1000010001", 0, 0, 0, 1)
	h.seedAssessment(t, run, "4008920031", 0, 2, 0, 0)

	snapshot, err := h.svc.ExportSnapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, run, snapshot.RunID)
	assert.Equal(t, 3, snapshot.Properties)
	assert.Equal(t, h.clock.now, snapshot.GeneratedAt)
	assert.Equal(t, filepath.Join(h.dir, "nyc_compliance_full_20240301_1200.csv"), snapshot.FullPath)

	rows := readCSV(t, snapshot.FullPath)
	require.Len(t, rows, 4, "header plus three properties")
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "3012340056", rows[1][0], "highest risk first")
	assert.Equal(t, "5.00", rows[1][3])
	assert.Equal(t, "27450", rows[1][2])
	assert.Equal(t, "4008920031", rows[2][0])
	assert.Equal(t, "1000010001", rows[3][0])

	var sample []ExportRecord
	data, err := os.ReadFile(snapshot.SamplePath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &sample))
	require.Len(t, sample, 3, "fewer properties than the sample size exports them all")
	assert.Equal(t, "3012340056", sample[0].BBL)
	assert.Equal(t, 5.0, sample[0].RiskScore)

	demoRows := readCSV(t, snapshot.DemoPath)
	require.Len(t, demoRows, 4)
	assert.Equal(t, "SAMPLE-0001", demoRows[1][0])
	assert.Equal(t, "SAMPLE-0003", demoRows[3][0])
	assert.Equal(t, "5.00", demoRows[1][3], "counts survive anonymization")
}

func TestExportRoundTripReproducesScore(t *testing.T) {
	h := setupRankingService(t)

	run := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	h.seedAssessment(t, run, "3012340056", 2, 3, 1, 4)
	h.seedAssessment(t, run, "1000010001", 0, 0, 0, 7)
	h.seedAssessment(t, run, "5000780099", 10, 0, 0, 0)

	snapshot, err := h.svc.ExportSnapshot(context.Background())
	require.NoError(t, err)

	rows := readCSV(t, snapshot.FullPath)
	require.Greater(t, len(rows), 1)

	for _, row := range rows[1:] {
		exported, err := strconv.ParseFloat(row[3], 64)
		require.NoError(t, err)
		violations, err := strconv.Atoi(row[4])
		require.NoError(t, err)
		classB, err := strconv.Atoi(row[7])
		require.NoError(t, err)
		relevant, err := strconv.Atoi(row[12])
		require.NoError(t, err)

		rederived := math.Round((float64(classB)*2.0+float64(relevant)*1.5+float64(violations)*0.5)*100) / 100
		assert.Equal(t, exported, rederived, "row %s", row[0])
	}
}

func TestExportSnapshotNoData(t *testing.T) {
	h := setupRankingService(t)

	_, err := h.svc.ExportSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoData)

	h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)

	_, err = h.svc.ExportSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoData, "a run with zero assessments has nothing to export")
}

func TestExportSampleCapsAtConfiguredSize(t *testing.T) {
	h := setupRankingService(t)

	run := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	// Valid BBLs on distinct Brooklyn lots, more than the default sample of 100.
	for lot := 1; lot <= 120; lot++ {
		h.seedAssessment(t, run, "301234"+strconv.Itoa(4000+lot), 0, lot%5, 0, 0)
	}

	snapshot, err := h.svc.ExportSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, snapshot.Properties)

	var sample []ExportRecord
	data, err := os.ReadFile(snapshot.SamplePath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &sample))
	assert.Len(t, sample, 100)

	demoRows := readCSV(t, snapshot.DemoPath)
	assert.Len(t, demoRows, 51, "demo keeps the top fifty")

	fullRows := readCSV(t, snapshot.FullPath)
	assert.Len(t, fullRows, 121)
}

func TestLatestExportPicksNewestArtifact(t *testing.T) {
	h := setupRankingService(t)

	run := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	h.seedAssessment(t, run, "3012340056", 1, 1, 1, 1)

	_, err := h.svc.ExportSnapshot(context.Background())
	require.NoError(t, err)

	h.clock.now = h.clock.now.Add(24 * time.Hour)
	_, err = h.svc.ExportSnapshot(context.Background())
	require.NoError(t, err)

	csvPath, err := h.svc.LatestExport(ExportCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(csvPath, "nyc_compliance_full_20240302_1200.csv"), csvPath)

	jsonPath, err := h.svc.LatestExport(ExportJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(jsonPath, "nyc_compliance_sample_20240302_1200.json"), jsonPath)
}

func TestLatestExportWithoutArtifacts(t *testing.T) {
	h := setupRankingService(t)

	_, err := h.svc.LatestExport(ExportCSV)
	assert.ErrorIs(t, err, ErrNoExports)

	h.svc.dir = filepath.Join(h.dir, "missing")
	_, err = h.svc.LatestExport(ExportJSON)
	assert.ErrorIs(t, err, ErrNoExports)
}
