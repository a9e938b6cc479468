// Package finance computes profitability and break-even figures from a
// cost configuration supplied by the caller. Every function here is pure:
// inputs in, a value out, no clocks and no package state.
package finance

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
	"github.com/llu77/erp-system-sub005/internal/store"
)

// CostConfiguration is built per request from the fixed-cost line items
// on record. It is a value, never shared or mutated after construction.
type CostConfiguration struct {
	LineItems           []domain.FixedCostLineItem
	BranchCount         int
	VariableCostRatePct decimal.Decimal
}

func (c CostConfiguration) TotalFixedCosts() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range c.LineItems {
		if item.MonthlyAmount.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: negative amount for %q", store.ErrInvalidConfiguration, item.Name)
		}
		total = total.Add(item.MonthlyAmount)
	}
	return total, nil
}

func (c CostConfiguration) PerBranchFixedCost() (decimal.Decimal, error) {
	if c.BranchCount <= 0 {
		return decimal.Zero, fmt.Errorf("%w: branch count must be positive, got %d", store.ErrInvalidConfiguration, c.BranchCount)
	}
	total, err := c.TotalFixedCosts()
	if err != nil {
		return decimal.Zero, err
	}
	return total.Div(decimal.NewFromInt(int64(c.BranchCount))), nil
}

var hundred = decimal.NewFromInt(100)

// CalculateProfit combines revenue with the three cost components.
// Negative revenue is handled mathematically, not rejected, since
// historical corrections can push a day below zero.
func CalculateProfit(revenue, variableCostRatePct, fixedCosts, otherExpenses decimal.Decimal) domain.ProfitResult {
	variableCosts := revenue.Mul(variableCostRatePct).Div(hundred)
	totalCosts := variableCosts.Add(fixedCosts).Add(otherExpenses)
	netProfit := revenue.Sub(totalCosts)

	margin := decimal.Zero
	if revenue.IsPositive() {
		margin = netProfit.Div(revenue).Mul(hundred)
	}

	// Exactly zero net profit classifies as profit.
	status := domain.ProfitStatusProfit
	if netProfit.IsNegative() {
		status = domain.ProfitStatusLoss
	}

	return domain.ProfitResult{
		Revenue:       revenue,
		VariableCosts: variableCosts,
		FixedCosts:    fixedCosts,
		OtherExpenses: otherExpenses,
		TotalCosts:    totalCosts,
		NetProfit:     netProfit,
		ProfitMargin:  margin,
		Status:        status,
	}
}

// CalculateBreakEven derives the revenue level where net profit is zero.
// A variable-cost rate at or above 100% makes break-even unreachable;
// that is a reportable state, not an error.
func CalculateBreakEven(fixedCosts, variableCostRatePct, otherExpenses decimal.Decimal) domain.BreakEvenResult {
	if variableCostRatePct.GreaterThanOrEqual(hundred) {
		return domain.BreakEvenResult{
			MonthlyThreshold: math.Inf(1),
			DailyThreshold:   math.Inf(1),
			Unreachable:      true,
			WarningMessage:   "variable cost rate too high to reach break-even",
		}
	}

	contributionRate := decimal.NewFromInt(1).Sub(variableCostRatePct.Div(hundred))
	monthly := fixedCosts.Add(otherExpenses).Div(contributionRate)
	monthlyF, _ := monthly.Float64()
	return domain.BreakEvenResult{
		MonthlyThreshold: monthlyF,
		DailyThreshold:   math.Round(monthlyF / 30),
	}
}
