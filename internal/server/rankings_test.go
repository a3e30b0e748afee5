package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/ranking"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// rankingBackedServer swaps the fake ranking dependency for the real
// service over in-memory sqlite, since rankings and exports read
// persisted runs rather than a domain interface.
type rankingBackedServer struct {
	*testServer
	db   *gorm.DB
	node *snowflake.Node
	svc  *ranking.Service
}

func setupRankingBackedServer(t *testing.T) *rankingBackedServer {
	t.Helper()

	ts := newTestServer(t)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&riskdomain.AssessmentRun{}, &riskdomain.RiskAssessment{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	svc := ranking.NewService(ranking.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Config:  config.Config{ExportDir: t.TempDir()},
		Clock:   clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		Scoring: config.NewStaticScoringHolder(config.DefaultScoringConfig()),
	})
	ts.srv.rankingSvc = svc

	return &rankingBackedServer{testServer: ts, db: db, node: node, svc: svc}
}

func (h *rankingBackedServer) seedRun(t *testing.T, status riskdomain.RunStatus) snowflake.ID {
	t.Helper()

	run := riskdomain.AssessmentRun{
		ID:        h.node.Generate(),
		Trigger:   "scheduled",
		Status:    status,
		StartedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.db.Create(&run).Error)
	return run.ID
}

func (h *rankingBackedServer) seedAssessment(t *testing.T, runID snowflake.ID, bbl string, classB, relevant int) {
	t.Helper()

	borough := int(bbl[0] - '0')
	score := math.Round((float64(classB)*2.0+float64(relevant)*1.5+float64(classB)*0.5)*100) / 100
	assessment := riskdomain.RiskAssessment{
		ID:                 h.node.Generate(),
		RunID:              runID,
		BBL:                bbl,
		Borough:            borough,
		RiskScore:          score,
		Exposure:           27450,
		FixPriority:        riskdomain.PriorityLow,
		ViolationCount:     classB,
		ClassB:             classB,
		RelevantComplaints: relevant,
		DataFreshnessDate:  "2024-03-01",
		DataCoverageDays:   90,
	}
	require.NoError(t, h.db.Create(&assessment).Error)
}

func TestListRankingsOrdersByRiskAndHonorsLimit(t *testing.T) {
	h := setupRankingBackedServer(t)
	run := h.seedRun(t, riskdomain.RunStatusSucceeded)
	h.seedAssessment(t, run, "3012340056", 4, 2)
	h.seedAssessment(t, run, "1000010001", 1, 0)
	h.seedAssessment(t, run, "4008920031", 2, 1)

	resp := h.do(http.MethodGet, "/v1/rankings?limit=2", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data []riskdomain.RiskAssessment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "3012340056", body.Data[0].BBL)
	assert.Equal(t, "4008920031", body.Data[1].BBL)
}

func TestListRankingsFiltersByBorough(t *testing.T) {
	h := setupRankingBackedServer(t)
	run := h.seedRun(t, riskdomain.RunStatusSucceeded)
	h.seedAssessment(t, run, "3012340056", 4, 2)
	h.seedAssessment(t, run, "1000010001", 1, 0)

	resp := h.do(http.MethodGet, "/v1/rankings?borough=1", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data []riskdomain.RiskAssessment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "1000010001", body.Data[0].BBL)
}

func TestListRankingsEmptyCityReadsAsEmptyList(t *testing.T) {
	h := setupRankingBackedServer(t)

	resp := h.do(http.MethodGet, "/v1/rankings", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data []riskdomain.RiskAssessment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
}

func TestLatestExportNotFoundBeforeFirstSnapshot(t *testing.T) {
	h := setupRankingBackedServer(t)

	resp := h.do(http.MethodGet, "/v1/exports/latest.csv", "")

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}

func TestLatestExportServesNewestCSV(t *testing.T) {
	h := setupRankingBackedServer(t)
	run := h.seedRun(t, riskdomain.RunStatusSucceeded)
	h.seedAssessment(t, run, "3012340056", 4, 2)
	_, err := h.svc.ExportSnapshot(context.Background())
	require.NoError(t, err)

	resp := h.do(http.MethodGet, "/v1/exports/latest.csv", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "nyc_compliance_full_20240301_1200.csv")
	assert.True(t, strings.HasPrefix(resp.Body.String(), "bbl,"))
	assert.Contains(t, resp.Body.String(), "3012340056")
}

func TestLatestExportServesJSONSample(t *testing.T) {
	h := setupRankingBackedServer(t)
	run := h.seedRun(t, riskdomain.RunStatusSucceeded)
	h.seedAssessment(t, run, "3012340056", 4, 2)
	_, err := h.svc.ExportSnapshot(context.Background())
	require.NoError(t, err)

	resp := h.do(http.MethodGet, "/v1/exports/latest.json", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var sample []ranking.ExportRecord
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sample))
	require.NotEmpty(t, sample)
	assert.Equal(t, "3012340056", sample[0].BBL)
}
