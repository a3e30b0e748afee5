package service

import (
	"context"
	"math"
	"time"

	"github.com/smallbiznis/sentinel/internal/bbl"
	"github.com/smallbiznis/sentinel/internal/config"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"go.uber.org/zap"
)

// Heat complaints older than this window no longer raise urgency.
const heatComplaintWindowDays = 30

// HeatRisk evaluates the seasonal heat model for one property from its
// recent heat complaints and an optional outdoor temperature reading.
func (s *Service) HeatRisk(ctx context.Context, rawBBL string, outdoorTempF *float64) (*riskdomain.HeatRisk, error) {
	property, err := bbl.Parse(rawBBL)
	if err != nil {
		return nil, ingestdomain.ErrInvalidBBL
	}

	now := s.clock.Now()
	complaints, err := s.ingest.HeatComplaintCount(ctx, property.String(), now.AddDate(0, 0, -heatComplaintWindowDays))
	if err != nil {
		return nil, err
	}

	cfg := s.scoring.Get().Heat
	seasonal := seasonalMultiplier(now)
	temperature := temperatureMultiplier(cfg, outdoorTempF)
	factor := complaintFactor(complaints)

	urgency := seasonal * temperature * factor
	level, days := heatBand(cfg, urgency)

	s.log.Debug("heat risk evaluated",
		zap.String("bbl", property.String()),
		zap.Int("heat_complaints", complaints),
		zap.Float64("urgency", urgency),
		zap.String("level", level),
	)

	return &riskdomain.HeatRisk{
		BBL:                   property.String(),
		InSeason:              heatSeason(now),
		SeasonalMultiplier:    seasonal,
		TemperatureMultiplier: temperature,
		ComplaintFactor:       factor,
		HeatComplaints:        complaints,
		Urgency:               math.Round(urgency*10) / 10,
		Level:                 level,
		DaysToViolation:       days,
		AsOf:                  now,
	}, nil
}

// heatSeason reports whether a date falls inside the NYC heat season,
// October 1 through May 31.
func heatSeason(at time.Time) bool {
	month := at.Month()
	return month >= time.October || month <= time.May
}

// seasonalMultiplier weights urgency by where the date falls in the heat
// season: the midwinter peak, the shoulders around it, the rest of the
// season, or off season.
func seasonalMultiplier(at time.Time) float64 {
	month, day := at.Month(), at.Day()
	switch {
	case (month == time.January && day >= 15) || month == time.February || (month == time.March && day <= 15):
		return 2.0
	case month == time.December || month == time.November ||
		(month == time.October && day >= 15) || (month == time.April && day <= 15):
		return 1.5
	case heatSeason(at):
		return 1.2
	default:
		return 1.0
	}
}

// temperatureMultiplier converts an outdoor reading into urgency. A
// missing reading is neutral. Applied year round so a cold snap outside
// the season still registers.
func temperatureMultiplier(cfg config.HeatConfig, outdoorTempF *float64) float64 {
	if outdoorTempF == nil {
		return 1.0
	}
	switch {
	case *outdoorTempF < cfg.TempSevereF:
		return 2.0
	case *outdoorTempF < cfg.TempColdF:
		return 1.5
	default:
		return 1.0
	}
}

// complaintFactor scales urgency by heat complaint volume over the
// lookback window.
func complaintFactor(complaints int) float64 {
	switch {
	case complaints >= 5:
		return 3.0
	case complaints >= 3:
		return 2.0
	case complaints >= 1:
		return 1.5
	default:
		return 1.0
	}
}

// heatBand maps the urgency product onto a level and a compliance
// horizon in days. Banding uses the exact product; only the reported
// urgency is rounded, so a product just under a threshold never rounds
// itself into the higher tier.
func heatBand(cfg config.HeatConfig, urgency float64) (string, int) {
	switch {
	case urgency >= cfg.CriticalUrgency:
		return riskdomain.HeatLevelCritical, 7
	case urgency >= cfg.HighUrgency:
		return riskdomain.HeatLevelHigh, 14
	case urgency >= cfg.ModerateUrgency:
		return riskdomain.HeatLevelModerate, 21
	default:
		return riskdomain.HeatLevelLow, 30
	}
}
