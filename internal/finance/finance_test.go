package finance

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
	"github.com/llu77/erp-system-sub005/internal/store"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateProfitTypicalMonth(t *testing.T) {
	result := CalculateProfit(dec("50000"), dec("30"), dec("16100"), decimal.Zero)

	if !result.VariableCosts.Equal(dec("15000")) {
		t.Fatalf("expected variable costs 15000, got %s", result.VariableCosts)
	}
	if !result.TotalCosts.Equal(dec("31100")) {
		t.Fatalf("expected total costs 31100, got %s", result.TotalCosts)
	}
	if !result.NetProfit.Equal(dec("18900")) {
		t.Fatalf("expected net profit 18900, got %s", result.NetProfit)
	}
	if !result.ProfitMargin.Equal(dec("37.8")) {
		t.Fatalf("expected margin 37.8, got %s", result.ProfitMargin)
	}
	if result.Status != domain.ProfitStatusProfit {
		t.Fatalf("expected profit status, got %q", result.Status)
	}
}

func TestCalculateProfitLossMonth(t *testing.T) {
	result := CalculateProfit(dec("20000"), dec("30"), dec("16100"), decimal.Zero)

	if !result.NetProfit.Equal(dec("-2100")) {
		t.Fatalf("expected net profit -2100, got %s", result.NetProfit)
	}
	if result.Status != domain.ProfitStatusLoss {
		t.Fatalf("expected loss status, got %q", result.Status)
	}
}

func TestCalculateProfitZeroRevenue(t *testing.T) {
	result := CalculateProfit(decimal.Zero, dec("30"), dec("16100"), decimal.Zero)

	if !result.NetProfit.Equal(dec("-16100")) {
		t.Fatalf("expected net profit -16100, got %s", result.NetProfit)
	}
	if !result.ProfitMargin.IsZero() {
		t.Fatalf("expected zero margin at zero revenue, got %s", result.ProfitMargin)
	}
	if result.Status != domain.ProfitStatusLoss {
		t.Fatalf("expected loss status, got %q", result.Status)
	}
}

func TestCalculateProfitZeroNetIsProfit(t *testing.T) {
	// revenue 23000 at 30% variable rate against 16100 fixed nets exactly zero
	result := CalculateProfit(dec("23000"), dec("30"), dec("16100"), decimal.Zero)

	if !result.NetProfit.IsZero() {
		t.Fatalf("expected zero net profit, got %s", result.NetProfit)
	}
	if result.Status != domain.ProfitStatusProfit {
		t.Fatalf("expected zero net to classify as profit, got %q", result.Status)
	}
}

func TestCalculateProfitWithOtherExpenses(t *testing.T) {
	result := CalculateProfit(dec("50000"), dec("30"), dec("16100"), dec("2400"))

	if !result.TotalCosts.Equal(dec("33500")) {
		t.Fatalf("expected total costs 33500, got %s", result.TotalCosts)
	}
	if !result.NetProfit.Equal(dec("16500")) {
		t.Fatalf("expected net profit 16500, got %s", result.NetProfit)
	}
}

func TestCalculateBreakEvenTypical(t *testing.T) {
	result := CalculateBreakEven(dec("16100"), dec("30"), decimal.Zero)

	if result.Unreachable {
		t.Fatalf("expected reachable break-even")
	}
	if result.MonthlyThreshold != 23000 {
		t.Fatalf("expected monthly threshold 23000, got %v", result.MonthlyThreshold)
	}
	if result.DailyThreshold != 767 {
		t.Fatalf("expected daily threshold 767, got %v", result.DailyThreshold)
	}
}

func TestCalculateBreakEvenDoubleFixedCosts(t *testing.T) {
	result := CalculateBreakEven(dec("32200"), dec("30"), decimal.Zero)

	if result.MonthlyThreshold != 46000 {
		t.Fatalf("expected monthly threshold 46000, got %v", result.MonthlyThreshold)
	}
}

func TestCalculateBreakEvenUnreachable(t *testing.T) {
	result := CalculateBreakEven(dec("16100"), dec("100"), decimal.Zero)

	if !result.Unreachable {
		t.Fatalf("expected unreachable break-even at 100%% variable rate")
	}
	if !math.IsInf(result.MonthlyThreshold, 1) || !math.IsInf(result.DailyThreshold, 1) {
		t.Fatalf("expected infinite thresholds, got %v / %v", result.MonthlyThreshold, result.DailyThreshold)
	}
	if result.WarningMessage == "" {
		t.Fatalf("expected warning message for unreachable break-even")
	}
}

func TestTotalFixedCostsRejectsNegativeItems(t *testing.T) {
	cfg := CostConfiguration{
		LineItems: []domain.FixedCostLineItem{
			{Name: "rent", MonthlyAmount: dec("10000")},
			{Name: "adjustment", MonthlyAmount: dec("-50")},
		},
		BranchCount: 2,
	}

	_, err := cfg.TotalFixedCosts()
	if !errors.Is(err, store.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestPerBranchFixedCostSplitsEvenly(t *testing.T) {
	cfg := CostConfiguration{
		LineItems: []domain.FixedCostLineItem{
			{Name: "salaries", MonthlyAmount: dec("15000")},
			{Name: "shop rent", MonthlyAmount: dec("10000")},
			{Name: "housing rent", MonthlyAmount: dec("3500")},
			{Name: "electricity", MonthlyAmount: dec("2500")},
			{Name: "internet", MonthlyAmount: dec("1200")},
		},
		BranchCount: 2,
	}

	share, err := cfg.PerBranchFixedCost()
	if err != nil {
		t.Fatalf("per branch fixed cost failed: %v", err)
	}
	if !share.Equal(dec("16100")) {
		t.Fatalf("expected per-branch share 16100, got %s", share)
	}

	cfg.BranchCount = 0
	if _, err := cfg.PerBranchFixedCost(); !errors.Is(err, store.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration for zero branches, got %v", err)
	}
}
