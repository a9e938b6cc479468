// Package forecast projects expected daily revenue from historical
// day-of-week patterns. The reference date is always an argument so a
// projection can be replayed deterministically.
package forecast

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

// Options selects the projection mode. The zero value means historical
// averages. Multiplier mode requires a base average; weekdays missing
// from the multiplier table scale by 1.0.
type Options struct {
	UseMultipliers bool
	BaseAverage    decimal.Decimal
	Multipliers    map[time.Weekday]decimal.Decimal
}

// DefaultMultipliers reflects the observed weekly rhythm: the weekend
// ramp peaks on Friday and Monday is the slowest day.
func DefaultMultipliers() map[time.Weekday]decimal.Decimal {
	return map[time.Weekday]decimal.Decimal{
		time.Monday:   decimal.NewFromFloat(0.7),
		time.Tuesday:  decimal.NewFromFloat(0.8),
		time.Thursday: decimal.NewFromFloat(1.2),
		time.Friday:   decimal.NewFromFloat(1.4),
		time.Saturday: decimal.NewFromFloat(1.3),
	}
}

// BuildDayPattern groups records by weekday. The global average covers
// every record regardless of weekday and backs days with no samples.
func BuildDayPattern(records []domain.RevenueRecord) domain.DayPattern {
	pattern := domain.DayPattern{Days: make(map[int]domain.DayStat, 7)}
	total := decimal.Zero
	for _, rec := range records {
		day := int(rec.Date.Weekday())
		stat := pattern.Days[day]
		stat.TotalRevenue = stat.TotalRevenue.Add(rec.Amount)
		stat.SampleCount++
		pattern.Days[day] = stat
		total = total.Add(rec.Amount)
	}
	if len(records) > 0 {
		pattern.GlobalAverage = total.Div(decimal.NewFromInt(int64(len(records))))
	}
	return pattern
}

// Forecast projects expected revenue for the target date. A weekday with
// no samples falls back to the global average without failing.
func Forecast(logger zerolog.Logger, pattern domain.DayPattern, target time.Time, opts Options) domain.ForecastResult {
	weekday := target.Weekday()

	if opts.UseMultipliers {
		multiplier := decimal.NewFromInt(1)
		if m, ok := opts.Multipliers[weekday]; ok {
			multiplier = m
		}
		return domain.ForecastResult{
			Date:            target,
			Weekday:         weekday.String(),
			ExpectedRevenue: opts.BaseAverage.Mul(multiplier),
			Basis:           domain.ForecastBasisMultiplier,
		}
	}

	stat, ok := pattern.Days[int(weekday)]
	if !ok || stat.SampleCount == 0 {
		logger.Debug().
			Str("weekday", weekday.String()).
			Msg("no samples for weekday, using global average")
		return domain.ForecastResult{
			Date:             target,
			Weekday:          weekday.String(),
			ExpectedRevenue:  pattern.GlobalAverage,
			Basis:            domain.ForecastBasisHistorical,
			UsedGlobalBackup: true,
		}
	}

	return domain.ForecastResult{
		Date:            target,
		Weekday:         weekday.String(),
		ExpectedRevenue: stat.TotalRevenue.Div(decimal.NewFromInt(int64(stat.SampleCount))),
		Basis:           domain.ForecastBasisHistorical,
		SampleCount:     stat.SampleCount,
	}
}
