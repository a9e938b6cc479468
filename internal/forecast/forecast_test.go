package forecast

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

// day returns a date with the requested weekday inside June 2026.
func day(t *testing.T, weekday time.Weekday, week int) time.Time {
	t.Helper()
	// 2026-06-01 is a Monday.
	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(time.Monday) + 7) % 7
	return base.AddDate(0, 0, offset+week*7)
}

func record(t *testing.T, weekday time.Weekday, week int, amount int64) domain.RevenueRecord {
	t.Helper()
	return domain.RevenueRecord{
		ID:       "rev-test",
		BranchID: "br-laban",
		Date:     day(t, weekday, week),
		Amount:   decimal.NewFromInt(amount),
	}
}

func TestBuildDayPatternAveragesPerWeekday(t *testing.T) {
	records := []domain.RevenueRecord{
		record(t, time.Friday, 0, 1600),
		record(t, time.Friday, 1, 1400),
		record(t, time.Monday, 0, 700),
		record(t, time.Monday, 1, 900),
	}

	pattern := BuildDayPattern(records)

	friday := pattern.Days[int(time.Friday)]
	if friday.SampleCount != 2 {
		t.Fatalf("expected 2 friday samples, got %d", friday.SampleCount)
	}
	if !friday.TotalRevenue.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("expected friday total 3000, got %s", friday.TotalRevenue)
	}
	if !pattern.GlobalAverage.Equal(decimal.NewFromInt(1150)) {
		t.Fatalf("expected global average 1150, got %s", pattern.GlobalAverage)
	}
}

func TestForecastUsesWeekdayAverage(t *testing.T) {
	records := []domain.RevenueRecord{
		record(t, time.Friday, 0, 1600),
		record(t, time.Friday, 1, 1400),
		record(t, time.Monday, 0, 700),
	}
	pattern := BuildDayPattern(records)

	result := Forecast(zerolog.Nop(), pattern, day(t, time.Friday, 4), Options{})

	if !result.ExpectedRevenue.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected friday forecast 1500, got %s", result.ExpectedRevenue)
	}
	if result.Basis != domain.ForecastBasisHistorical {
		t.Fatalf("expected historical basis, got %q", result.Basis)
	}
	if result.SampleCount != 2 {
		t.Fatalf("expected 2 samples, got %d", result.SampleCount)
	}
	if result.UsedGlobalBackup {
		t.Fatalf("friday has samples, global backup should not trigger")
	}
	if result.Weekday != "Friday" {
		t.Fatalf("expected Friday, got %q", result.Weekday)
	}
}

func TestForecastFallsBackToGlobalAverage(t *testing.T) {
	records := []domain.RevenueRecord{
		record(t, time.Friday, 0, 1600),
		record(t, time.Monday, 0, 700),
		record(t, time.Tuesday, 0, 700),
	}
	pattern := BuildDayPattern(records)

	result := Forecast(zerolog.Nop(), pattern, day(t, time.Sunday, 4), Options{})

	if !result.UsedGlobalBackup {
		t.Fatalf("expected global backup for weekday with no samples")
	}
	if !result.ExpectedRevenue.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected global average 1000, got %s", result.ExpectedRevenue)
	}
	if result.SampleCount != 0 {
		t.Fatalf("expected zero samples, got %d", result.SampleCount)
	}
}

func TestForecastEmptyHistoryYieldsZero(t *testing.T) {
	pattern := BuildDayPattern(nil)

	result := Forecast(zerolog.Nop(), pattern, day(t, time.Wednesday, 0), Options{})

	if !result.ExpectedRevenue.IsZero() {
		t.Fatalf("expected zero forecast with no history, got %s", result.ExpectedRevenue)
	}
	if !result.UsedGlobalBackup {
		t.Fatalf("expected global backup marker with no history")
	}
}

func TestForecastMultiplierMode(t *testing.T) {
	opts := Options{
		UseMultipliers: true,
		BaseAverage:    decimal.NewFromInt(1000),
		Multipliers:    DefaultMultipliers(),
	}

	friday := Forecast(zerolog.Nop(), domain.DayPattern{}, day(t, time.Friday, 0), opts)
	if !friday.ExpectedRevenue.Equal(decimal.NewFromFloat(1400)) {
		t.Fatalf("expected friday multiplier forecast 1400, got %s", friday.ExpectedRevenue)
	}
	if friday.Basis != domain.ForecastBasisMultiplier {
		t.Fatalf("expected multiplier basis, got %q", friday.Basis)
	}

	// Wednesday is absent from the default table and scales by 1.0.
	wednesday := Forecast(zerolog.Nop(), domain.DayPattern{}, day(t, time.Wednesday, 0), opts)
	if !wednesday.ExpectedRevenue.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected unmapped weekday to scale by 1.0, got %s", wednesday.ExpectedRevenue)
	}
}
