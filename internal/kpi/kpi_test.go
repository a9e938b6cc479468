package kpi

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAggregateComputesRatios(t *testing.T) {
	revenues := []domain.RevenueRecord{
		{Amount: dec("30000")},
		{Amount: dec("20000")},
	}
	expenses := []domain.ExpenseRecord{
		{Amount: dec("8000"), Status: domain.ExpenseStatusApproved},
		{Amount: dec("2000"), Status: domain.ExpenseStatusApproved},
		{Amount: dec("9999"), Status: domain.ExpenseStatusPending},
	}

	snapshot := Aggregate(revenues, expenses, PeriodInputs{
		BranchID:           "br-laban",
		PeriodStart:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:          time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CostOfGoods:        dec("15000"),
		CurrentAssets:      dec("42000"),
		CurrentLiabilities: dec("18000"),
		InvestedCapital:    dec("120000"),
		InvoiceCount:       400,
		CustomerCount:      260,
	})

	if !snapshot.TotalRevenue.Equal(dec("50000")) {
		t.Fatalf("expected total revenue 50000, got %s", snapshot.TotalRevenue)
	}
	if !snapshot.TotalExpenses.Equal(dec("10000")) {
		t.Fatalf("expected pending expense excluded, got %s", snapshot.TotalExpenses)
	}
	if !snapshot.NetProfit.Equal(dec("40000")) {
		t.Fatalf("expected net profit 40000, got %s", snapshot.NetProfit)
	}
	if !snapshot.GrossProfitMargin.Equal(dec("70")) {
		t.Fatalf("expected gross margin 70, got %s", snapshot.GrossProfitMargin)
	}
	if !snapshot.NetProfitMargin.Equal(dec("80")) {
		t.Fatalf("expected net margin 80, got %s", snapshot.NetProfitMargin)
	}
	if !snapshot.AverageOrderValue.Equal(dec("125")) {
		t.Fatalf("expected AOV 125, got %s", snapshot.AverageOrderValue)
	}
}

func TestAggregateZeroDenominators(t *testing.T) {
	snapshot := Aggregate(nil, nil, PeriodInputs{BranchID: "br-idle"})

	if !snapshot.GrossProfitMargin.IsZero() || !snapshot.NetProfitMargin.IsZero() {
		t.Fatalf("expected zero margins at zero revenue")
	}
	if !snapshot.ROI.IsZero() || !snapshot.CurrentRatio.IsZero() || !snapshot.AverageOrderValue.IsZero() {
		t.Fatalf("expected zero ratios for zero denominators")
	}
}

func TestCalculateChange(t *testing.T) {
	if got := CalculateChange(dec("120"), dec("100")); !got.Equal(dec("20")) {
		t.Fatalf("expected +20%%, got %s", got)
	}
	if got := CalculateChange(dec("80"), dec("100")); !got.Equal(dec("-20")) {
		t.Fatalf("expected -20%%, got %s", got)
	}
	if got := CalculateChange(dec("500"), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected zero change against zero base, got %s", got)
	}
}

func TestBuildTrendActiveMonthFilter(t *testing.T) {
	months := []MonthlyFigure{
		{Month: "2026-03", Revenue: decimal.Zero, Expenses: dec("100")},
		{Month: "2026-04", Revenue: decimal.Zero},
		{Month: "2026-05", Revenue: dec("24685"), Expenses: dec("5000")},
		{Month: "2026-06", Revenue: decimal.Zero},
		{Month: "2026-07", Revenue: dec("4650"), Expenses: dec("1500")},
		{Month: "2026-08", Revenue: decimal.Zero},
	}

	summary := BuildTrend(months)

	if len(summary.Points) != 6 {
		t.Fatalf("expected all 6 months in series, got %d", len(summary.Points))
	}
	if summary.ActiveMonthCount != 2 {
		t.Fatalf("expected 2 active months, got %d", summary.ActiveMonthCount)
	}
	if !summary.AvgRevenue.Equal(dec("14667.5")) {
		t.Fatalf("expected average revenue 14667.5, got %s", summary.AvgRevenue)
	}
	if !summary.AvgExpenses.Equal(dec("3250")) {
		t.Fatalf("expected average expenses 3250, got %s", summary.AvgExpenses)
	}
	if summary.Points[0].Active || summary.Points[1].Active {
		t.Fatalf("expected zero-revenue months to be inactive")
	}
	if !summary.Points[2].Active {
		t.Fatalf("expected may to be active")
	}
	// Change against a zero-revenue month reports zero, not infinity.
	if !summary.Points[2].RevenueChange.IsZero() {
		t.Fatalf("expected zero change after inactive month, got %s", summary.Points[2].RevenueChange)
	}
}

func TestBuildTrendAllInactive(t *testing.T) {
	summary := BuildTrend([]MonthlyFigure{
		{Month: "2026-01"},
		{Month: "2026-02"},
	})

	if summary.ActiveMonthCount != 0 {
		t.Fatalf("expected no active months, got %d", summary.ActiveMonthCount)
	}
	if !summary.AvgRevenue.IsZero() {
		t.Fatalf("expected zero average with no active months, got %s", summary.AvgRevenue)
	}
}

func TestClassifyABCTiers(t *testing.T) {
	products := []domain.ProductRevenue{
		{ProductID: "svc-skincare", Name: "Skincare", Revenue: dec("4100")},
		{ProductID: "svc-haircut", Name: "Haircut", Revenue: dec("14200")},
		{ProductID: "svc-products", Name: "Retail Products", Revenue: dec("1100")},
		{ProductID: "svc-beard", Name: "Beard Trim", Revenue: dec("8600")},
		{ProductID: "svc-coloring", Name: "Hair Coloring", Revenue: dec("2300")},
	}

	entries := ClassifyABC(products)

	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	// Cumulative shares: haircut 46.9%, beard 75.2%, skincare 88.8%,
	// coloring 96.4%, retail products 100%.
	if entries[0].ProductID != "svc-haircut" || entries[0].Tier != domain.TierA {
		t.Fatalf("expected haircut first in tier A, got %s/%s", entries[0].ProductID, entries[0].Tier)
	}
	if entries[1].ProductID != "svc-beard" || entries[1].Tier != domain.TierA {
		t.Fatalf("expected beard second in tier A, got %s/%s", entries[1].ProductID, entries[1].Tier)
	}
	if entries[2].ProductID != "svc-skincare" || entries[2].Tier != domain.TierB {
		t.Fatalf("expected skincare third in tier B, got %s/%s", entries[2].ProductID, entries[2].Tier)
	}
	if entries[3].Tier != domain.TierC || entries[4].Tier != domain.TierC {
		t.Fatalf("expected tail entries in tier C, got %s/%s", entries[3].Tier, entries[4].Tier)
	}
}

func TestClassifyABCBoundaries(t *testing.T) {
	products := []domain.ProductRevenue{
		{ProductID: "p1", Revenue: dec("80")},
		{ProductID: "p2", Revenue: dec("15")},
		{ProductID: "p3", Revenue: dec("5")},
	}

	entries := ClassifyABC(products)

	// Exactly 80% cumulative stays in tier A, exactly 95% in tier B.
	if entries[0].Tier != domain.TierA {
		t.Fatalf("expected 80%% boundary in tier A, got %s", entries[0].Tier)
	}
	if entries[1].Tier != domain.TierB {
		t.Fatalf("expected 95%% boundary in tier B, got %s", entries[1].Tier)
	}
	if entries[2].Tier != domain.TierC {
		t.Fatalf("expected remainder in tier C, got %s", entries[2].Tier)
	}
}

func TestClassifyABCIsIdempotent(t *testing.T) {
	products := []domain.ProductRevenue{
		{ProductID: "p1", Revenue: dec("500")},
		{ProductID: "p2", Revenue: dec("300")},
		{ProductID: "p3", Revenue: dec("200")},
	}

	first := ClassifyABC(products)
	second := ClassifyABC(products)

	if len(first) != len(second) {
		t.Fatalf("entry count changed between runs")
	}
	for i := range first {
		if first[i].ProductID != second[i].ProductID || first[i].Tier != second[i].Tier {
			t.Fatalf("classification changed between runs at %d: %v vs %v", i, first[i], second[i])
		}
		if !first[i].CumulativePct.Equal(second[i].CumulativePct) {
			t.Fatalf("cumulative share changed between runs at %d", i)
		}
	}
}

func TestClassifyABCZeroTotal(t *testing.T) {
	products := []domain.ProductRevenue{
		{ProductID: "p1", Revenue: decimal.Zero},
		{ProductID: "p2", Revenue: decimal.Zero},
	}

	entries := ClassifyABC(products)

	for _, entry := range entries {
		if entry.Tier != domain.TierC {
			t.Fatalf("expected tier C for zero total, got %s", entry.Tier)
		}
		if !entry.RevenueShare.IsZero() || !entry.CumulativePct.IsZero() {
			t.Fatalf("expected zero shares for zero total")
		}
	}
}
