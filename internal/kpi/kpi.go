// Package kpi aggregates approved revenue and expense records into
// period-level ratios, month-over-month trends, and ABC contribution
// tiers.
package kpi

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// PeriodInputs carries everything a snapshot needs beyond the revenue
// and expense records themselves.
type PeriodInputs struct {
	BranchID           string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	CostOfGoods        decimal.Decimal
	CurrentAssets      decimal.Decimal
	CurrentLiabilities decimal.Decimal
	InvestedCapital    decimal.Decimal
	InvoiceCount       int64
	CustomerCount      int64
}

// Aggregate computes a snapshot for one period. Ratio denominators at
// zero yield a zero ratio rather than an error.
func Aggregate(revenues []domain.RevenueRecord, expenses []domain.ExpenseRecord, in PeriodInputs) domain.KpiSnapshot {
	totalRevenue := decimal.Zero
	for _, rec := range revenues {
		totalRevenue = totalRevenue.Add(rec.Amount)
	}
	totalExpenses := decimal.Zero
	for _, exp := range expenses {
		if exp.Status != domain.ExpenseStatusApproved {
			continue
		}
		totalExpenses = totalExpenses.Add(exp.Amount)
	}

	netProfit := totalRevenue.Sub(totalExpenses)
	grossProfit := totalRevenue.Sub(in.CostOfGoods)

	snapshot := domain.KpiSnapshot{
		BranchID:      in.BranchID,
		PeriodStart:   in.PeriodStart,
		PeriodEnd:     in.PeriodEnd,
		TotalRevenue:  totalRevenue,
		TotalExpenses: totalExpenses,
		NetProfit:     netProfit,
		InvoiceCount:  in.InvoiceCount,
		CustomerCount: in.CustomerCount,
	}
	if totalRevenue.IsPositive() {
		snapshot.GrossProfitMargin = grossProfit.Div(totalRevenue).Mul(hundred)
		snapshot.NetProfitMargin = netProfit.Div(totalRevenue).Mul(hundred)
	}
	if in.InvestedCapital.IsPositive() {
		snapshot.ROI = netProfit.Div(in.InvestedCapital).Mul(hundred)
	}
	if in.CurrentLiabilities.IsPositive() {
		snapshot.CurrentRatio = in.CurrentAssets.Div(in.CurrentLiabilities)
	}
	if in.InvoiceCount > 0 {
		snapshot.AverageOrderValue = totalRevenue.Div(decimal.NewFromInt(in.InvoiceCount))
	}
	return snapshot
}

// MonthlyFigure is one month of pre-aggregated totals feeding the trend.
type MonthlyFigure struct {
	Month    string
	Revenue  decimal.Decimal
	Expenses decimal.Decimal
}

// CalculateChange reports the percent change between consecutive
// periods. A zero previous value reports zero change, not infinity.
func CalculateChange(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred)
}

// BuildTrend assembles a trend series with the active-month filter:
// months with zero revenue mark non-operating periods and are excluded
// from the averages. All months inactive yields an empty active set.
func BuildTrend(months []MonthlyFigure) domain.TrendSummary {
	summary := domain.TrendSummary{Points: make([]domain.TrendPoint, 0, len(months))}
	sumRevenue := decimal.Zero
	sumExpenses := decimal.Zero
	sumProfit := decimal.Zero

	for i, m := range months {
		point := domain.TrendPoint{
			Month:     m.Month,
			Revenue:   m.Revenue,
			Expenses:  m.Expenses,
			NetProfit: m.Revenue.Sub(m.Expenses),
			Active:    m.Revenue.IsPositive(),
		}
		if i > 0 {
			point.RevenueChange = CalculateChange(m.Revenue, months[i-1].Revenue)
		}
		if point.Active {
			summary.ActiveMonthCount++
			sumRevenue = sumRevenue.Add(point.Revenue)
			sumExpenses = sumExpenses.Add(point.Expenses)
			sumProfit = sumProfit.Add(point.NetProfit)
		}
		summary.Points = append(summary.Points, point)
	}

	if summary.ActiveMonthCount > 0 {
		n := decimal.NewFromInt(int64(summary.ActiveMonthCount))
		summary.AvgRevenue = sumRevenue.Div(n)
		summary.AvgExpenses = sumExpenses.Div(n)
		summary.AvgNetProfit = sumProfit.Div(n)
	}
	return summary
}

var (
	tierACutoff = decimal.NewFromInt(80)
	tierBCutoff = decimal.NewFromInt(95)
)

// ClassifyABC ranks products descending by revenue and assigns tiers by
// cumulative revenue share. Boundary hits stay in the lower-letter tier.
// A zero total puts everything in tier C.
func ClassifyABC(products []domain.ProductRevenue) []domain.AbcEntry {
	sorted := slices.Clone(products)
	slices.SortFunc(sorted, func(a, b domain.ProductRevenue) int {
		return b.Revenue.Cmp(a.Revenue)
	})

	total := decimal.Zero
	for _, p := range sorted {
		total = total.Add(p.Revenue)
	}

	entries := make([]domain.AbcEntry, 0, len(sorted))
	cumulative := decimal.Zero
	for _, p := range sorted {
		entry := domain.AbcEntry{
			ProductID: p.ProductID,
			Name:      p.Name,
			Revenue:   p.Revenue,
			Tier:      domain.TierC,
		}
		if total.IsPositive() {
			entry.RevenueShare = p.Revenue.Div(total).Mul(hundred)
			cumulative = cumulative.Add(entry.RevenueShare)
			entry.CumulativePct = cumulative
			switch {
			case cumulative.LessThanOrEqual(tierACutoff):
				entry.Tier = domain.TierA
			case cumulative.LessThanOrEqual(tierBCutoff):
				entry.Tier = domain.TierB
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
