package ranking

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/sentinel/internal/config"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type rankingHarness struct {
	svc   *Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *fakeClock
	dir   string
}

func setupRankingService(t *testing.T) *rankingHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&riskdomain.AssessmentRun{}, &riskdomain.RiskAssessment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	dir := t.TempDir()

	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Config:  config.Config{ExportDir: dir},
		Clock:   clk,
		Scoring: config.NewStaticScoringHolder(config.DefaultScoringConfig()),
	})

	return &rankingHarness{svc: svc, db: db, node: node, clock: clk, dir: dir}
}

func (h *rankingHarness) seedRun(t *testing.T, status riskdomain.RunStatus, startedAt time.Time) snowflake.ID {
	t.Helper()

	run := riskdomain.AssessmentRun{
		ID:        h.node.Generate(),
		Trigger:   "manual",
		Status:    status,
		StartedAt: startedAt,
	}
	require.NoError(t, h.db.Create(&run).Error)
	return run.ID
}

// seedAssessment derives the score and exposure from the counts the same
// way the scorer does, so exported rows are internally consistent.
func (h *rankingHarness) seedAssessment(t *testing.T, runID snowflake.ID, bblID string, classA, classB, classC, relevant int) riskdomain.RiskAssessment {
	t.Helper()

	borough := int(bblID[0] - '0')
	total := classA + classB + classC
	score := math.Round((float64(classB)*2.0+float64(relevant)*1.5+float64(total)*0.5)*100) / 100

	exposures := map[int]int64{1: 32940, 2: 30195, 3: 27450, 4: 24705, 5: 23332}

	assessment := riskdomain.RiskAssessment{
		ID:                 h.node.Generate(),
		RunID:              runID,
		BBL:                bblID,
		Borough:            borough,
		RiskScore:          score,
		Exposure:           exposures[borough],
		FixPriority:        riskdomain.PriorityLow,
		ViolationCount:     total,
		OpenViolations:     classB + classC,
		ClassA:             classA,
		ClassB:             classB,
		ClassC:             classC,
		OpenClassB:         classB,
		OpenClassC:         classC,
		RelevantComplaints: relevant,
		DataFreshnessDate:  "2024-03-01",
		DataCoverageDays:   90,
	}
	require.NoError(t, h.db.Create(&assessment).Error)
	return assessment
}

func TestRankingsEmptyWhenNoRuns(t *testing.T) {
	h := setupRankingService(t)

	ranked, err := h.svc.Rankings(context.Background(), RankingsRequest{})

	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankingsReadLatestSucceededRun(t *testing.T) {
	h := setupRankingService(t)

	stale := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now.Add(-24*time.Hour))
	h.seedAssessment(t, stale, "3012340056", 0, 9, 0, 0)

	current := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	h.seedAssessment(t, current, "3012340056", 1, 1, 1, 1)
	h.seedAssessment(t, current, "1000010001", 0, 0, 0, 1)

	ranked, err := h.svc.Rankings(context.Background(), RankingsRequest{})

	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "3012340056", ranked[0].BBL)
	assert.Equal(t, 5.0, ranked[0].RiskScore, "latest run's counts, not the stale run's")
	assert.Equal(t, "1000010001", ranked[1].BBL)
}

func TestRankingsSkipFailedRuns(t *testing.T) {
	h := setupRankingService(t)

	succeeded := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now.Add(-time.Hour))
	h.seedAssessment(t, succeeded, "2017890123", 0, 2, 0, 0)

	failed := h.seedRun(t, riskdomain.RunStatusFailed, h.clock.now)
	h.seedAssessment(t, failed, "2017890123", 0, 5, 0, 5)

	ranked, err := h.svc.Rankings(context.Background(), RankingsRequest{})

	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, 5.0, ranked[0].RiskScore)
}

func TestRankingsBoroughFilter(t *testing.T) {
	h := setupRankingService(t)

	run := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	h.seedAssessment(t, run, "3012340056", 0, 3, 0, 0)
	h.seedAssessment(t, run, "3045670012", 0, 1, 0, 0)
	h.seedAssessment(t, run, "1000010001", 0, 4, 0, 0)

	ranked, err := h.svc.Rankings(context.Background(), RankingsRequest{Borough: 3})

	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "3012340056", ranked[0].BBL)
	assert.Equal(t, "3045670012", ranked[1].BBL)
}

func TestRankingsLimitCapsResult(t *testing.T) {
	h := setupRankingService(t)

	run := h.seedRun(t, riskdomain.RunStatusSucceeded, h.clock.now)
	h.seedAssessment(t, run, "3012340056", 0, 3, 0, 0)
	h.seedAssessment(t, run, "1000010001", 0, 2, 0, 0)
	h.seedAssessment(t, run, "4008920031", 0, 1, 0, 0)

	ranked, err := h.svc.Rankings(context.Background(), RankingsRequest{Limit: 2})

	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "3012340056", ranked[0].BBL)

	oversized, err := h.svc.Rankings(context.Background(), RankingsRequest{Limit: maxRankingsLimit + 1})
	require.NoError(t, err)
	assert.Len(t, oversized, 3)
}
